package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func versionCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "version",
		Short: "Version information",
		Run:   cmdVersion,
	}
	return c
}

func cmdVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("%s\n", BuildDetails())
}

func BuildDetails() string {
	if version == "" {
		return `
navql (unknown version)

To build with version information set them with -ldflags
> go build -ldflags "-X github.com/navql/navql/internal/cmd.version=v0.1.0" ./cmd/navql
`
	}

	return fmt.Sprintf(`
navql %v

Commit SHA-1          : %v
Commit timestamp      : %v
Go version            : %v
`,
		version,
		commit,
		date,
		runtime.Version())
}
