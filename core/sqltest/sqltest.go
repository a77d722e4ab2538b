// Package sqltest collects the commands an engine logs and compares them
// with the SQL a test expects.
package sqltest

import (
	"strings"
	"sync"
	"testing"

	"github.com/gosimple/slug"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sebdah/goldie/v2"
)

// Recorder keeps the commands handed to it, safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	cmds []string
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Record(cmd string) {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
}

// Commands returns a copy of the recorded commands.
func (r *Recorder) Commands() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.cmds...)
}

func (r *Recorder) Clear() {
	r.mu.Lock()
	r.cmds = nil
	r.mu.Unlock()
}

const separator = "\n\n--------\n\n"

// AssertSQL checks that the recorder holds exactly the expected commands.
// On mismatch the test fails with a diff of expected and actual text.
func AssertSQL(t testing.TB, rec *Recorder, expected ...string) bool {
	t.Helper()

	actual := rec.Commands()
	if equal(expected, actual) {
		return true
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(expected, separator)),
		B:        difflib.SplitLines(strings.Join(actual, separator)),
		FromFile: "expected",
		ToFile:   "actual",
		Context:  3,
	})
	if err != nil {
		t.Fatalf("diffing sql: %s", err)
	}

	t.Errorf("sql does not match (%d expected, %d recorded):\n%s", len(expected), len(actual), diff)
	return false
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// AssertGolden compares the recorded commands with the golden file named
// after the test, testdata/<test-name>.sql. Run the tests with -update to
// rewrite the golden files.
func AssertGolden(t *testing.T, rec *Recorder) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata"),
		goldie.WithNameSuffix(".sql"),
		goldie.WithDiffEngine(goldie.ColoredDiff))

	g.Assert(t, GoldenName(t.Name()), []byte(strings.Join(rec.Commands(), separator)+"\n"))
}

// GoldenName turns a test name into a file name.
func GoldenName(testName string) string {
	return slug.Make(strings.ReplaceAll(testName, "/", "-"))
}
