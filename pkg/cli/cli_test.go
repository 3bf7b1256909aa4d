package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"
)

func newTestSet() (*FlagSet, *string, *bool, *int, *time.Duration, *[]string) {
	var (
		out     string
		verbose bool
		jobs    int
		timeout time.Duration
		calls   []string
	)
	fs := NewFlagSet("test")
	fs.String(&out, "output", "o", "a.s", "Output file.", "file")
	fs.Bool(&verbose, "verbose", "v", false, "Verbose output.")
	fs.Int(&jobs, "jobs", "j", 4, "Parallel jobs.", "n")
	fs.Duration(&timeout, "timeout", "", time.Second, "Compile timeout.")
	fs.List(&calls, "call", "c", "Call a function.", "expr")
	return fs, &out, &verbose, &jobs, &timeout, &calls
}

func TestParse(t *testing.T) {
	fs, out, verbose, jobs, timeout, calls := newTestSet()
	err := fs.Parse([]string{"-o", "x.s", "-v", "--jobs=8", "--timeout", "250ms", "-cf(1)", "--call", "g()", "in.gsc", "--", "-raw"})
	be.Err(t, err, nil)
	be.Equal(t, *out, "x.s")
	be.True(t, *verbose)
	be.Equal(t, *jobs, 8)
	be.Equal(t, *timeout, 250*time.Millisecond)
	be.Equal(t, *calls, []string{"f(1)", "g()"})
	be.Equal(t, fs.Args(), []string{"in.gsc", "-raw"})
}

func TestParseErrors(t *testing.T) {
	for _, args := range [][]string{
		{"--nope"},
		{"-o"},
		{"--jobs", "many"},
		{"--verbose=maybe"},
		{"--timeout", "soon"},
	} {
		fs, _, _, _, _, _ := newTestSet()
		be.True(t, fs.Parse(args) != nil)
	}
}

func TestGroups(t *testing.T) {
	fs := NewFlagSet("test")
	shadow := &GroupEntry{Name: "shadow", Usage: "Warn about shadowing.", Enabled: true}
	unused := &GroupEntry{Name: "unused", Usage: "Warn about unused values."}
	fs.AddGroup(&FlagGroup{Name: "Warning Flags", Prefix: "W", Kind: "warning", Entries: []*GroupEntry{shadow, unused}})

	be.Err(t, fs.Parse([]string{"-Wno-shadow", "-Wunused"}), nil)
	be.True(t, shadow.Off)
	be.True(t, !shadow.On)
	be.True(t, unused.On)
}

func TestHelp(t *testing.T) {
	app := NewApp("gsc")
	app.Synopsis = "[options] <input.gsc>"
	app.Description = "Compiles scripts."
	var verbose bool
	app.FlagSet.Bool(&verbose, "verbose", "v", false, "Verbose output.")
	app.FlagSet.AddGroup(&FlagGroup{Name: "Feature Flags", Prefix: "F", Kind: "feature", Entries: []*GroupEntry{{Name: "inline", Usage: "Inline calls.", Enabled: true}}})

	var buf bytes.Buffer
	app.Stdout = &buf
	be.Err(t, app.Run([]string{"--help"}), nil)
	help := buf.String()
	for _, want := range []string{"Synopsis", "gsc [options] <input.gsc>", "-v, --verbose", "-Fno-<feature>", "inline", "|x|"} {
		if !strings.Contains(help, want) {
			t.Errorf("help lacks %q:\n%s", want, help)
		}
	}
}

func TestRunAction(t *testing.T) {
	app := NewApp("gsc")
	var got []string
	app.Action = func(args []string) error { got = args; return nil }
	be.Err(t, app.Run([]string{"a", "b"}), nil)
	be.Equal(t, got, []string{"a", "b"})

	var stderr bytes.Buffer
	app = NewApp("gsc")
	app.Stderr = &stderr
	be.True(t, app.Run([]string{"--bogus"}) != nil)
	be.True(t, strings.Contains(stderr.String(), "unknown flag"))
}

func TestWrapText(t *testing.T) {
	be.Equal(t, wrapText("one two three four", 9), []string{"one two", "three", "four"})
	be.Equal(t, len(wrapText("   ", 10)), 0)
	be.Equal(t, TerminalWidth(&bytes.Buffer{}), 80)
	be.True(t, !IsTerminal(&bytes.Buffer{}))
}
