package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/spf13/cobra"
)

var (
	compileVars   map[string]string
	compileServer string
	compileRun    bool
)

func compileCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "compile [query file]",
		Short: "Compile a query document to T-SQL",
		Long: `Compile a YAML or JSON query document and print the SQL Server
statements with their parameters. The document is read from stdin when no
file is given. With --server the document is sent to a running navql
service instead.`,
		Args: cobra.MaximumNArgs(1),
		Run:  cmdCompile,
	}

	c.Flags().StringToStringVar(&compileVars, "var", nil, "query variable, name=value")
	c.Flags().StringVar(&compileServer, "server", "", "url of a navql service")
	c.Flags().BoolVar(&compileRun, "run", false, "run the query and print the records")
	return c
}

func cmdCompile(cmd *cobra.Command, args []string) {
	doc, err := readDocument(args, cmd.InOrStdin())
	if err != nil {
		log.Fatalf("%s", err)
	}

	vars := parseVars(compileVars)
	out := cmd.OutOrStdout()

	if compileServer != "" {
		if err := compileRemote(out, compileServer, doc, vars); err != nil {
			log.Fatalf("%s", err)
		}
		return
	}

	nq := newNavQL(compileRun)
	ctx := context.Background()

	if compileRun {
		res, err := nq.QueryDocument(ctx, doc, vars)
		if err != nil {
			log.Fatalf("%s", err)
		}
		printYAML(out, res.Records)
		return
	}

	res, err := nq.CompileDocument(ctx, doc, vars)
	if err != nil {
		log.Fatalf("%s", err)
	}

	for i, st := range res.Statements {
		if i != 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, st.CommandText)
	}
}

func readDocument(args []string, stdin io.Reader) ([]byte, error) {
	if len(args) == 0 {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(args[0])
}

// parseVars turns the values of --var flags into numbers or booleans when
// they read as one.
func parseVars(in map[string]string) map[string]interface{} {
	vars := make(map[string]interface{}, len(in))

	for k, v := range in {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			vars[k] = n
			continue
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			vars[k] = f
			continue
		}
		if b, err := strconv.ParseBool(v); err == nil {
			vars[k] = b
			continue
		}
		if strings.EqualFold(v, "null") {
			vars[k] = nil
			continue
		}
		vars[k] = v
	}
	return vars
}

type remoteStmt struct {
	CommandText string `json:"command_text"`
}

type remoteResp struct {
	Statements []remoteStmt `json:"statements"`
	Error      string       `json:"error"`
}

func compileRemote(out io.Writer, server string, doc []byte, vars map[string]interface{}) error {
	var res, rerr remoteResp

	r, err := resty.New().R().
		SetBody(map[string]interface{}{
			"query":     string(doc),
			"variables": vars,
		}).
		SetResult(&res).
		SetError(&rerr).
		Post(strings.TrimRight(server, "/") + "/api/v1/compile")
	if err != nil {
		return err
	}

	if r.IsError() {
		return fmt.Errorf("%s: %s", r.Status(), rerr.Error)
	}

	for i, st := range res.Statements {
		if i != 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintln(out, st.CommandText)
	}
	return nil
}
