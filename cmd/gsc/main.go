package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/xplshn/gsc/pkg/cli"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/jit"
	"github.com/xplshn/gsc/pkg/testcase"
	"github.com/xplshn/gsc/pkg/types"
	"github.com/xplshn/gsc/pkg/util"
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cNone   = "\x1b[0m"
)

func main() {
	log.SetFlags(0)

	app := cli.NewApp("gsc")
	app.Synopsis = "[options] <input.gsc>"
	app.Description = "A multi-pass compiler for DSP scripts. Scripts are compiled to QBE IL and native assembly, or run in-process for quick checks."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/gsc>"

	var (
		outFile  string
		emit     string
		target   string
		calls    []string
		timeout  time.Duration
		loops    int
		wall     bool
		pedantic bool
		stats    bool
	)

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "-", "Place the output into <file>.", "file")
	fs.String(&emit, "emit", "e", "asm", "What to output: asm, qbe, ast or none.", "kind")
	fs.String(&target, "target", "t", "", "QBE target (amd64_sysv, amd64_apple, arm64, arm64_apple, rv64).", "target")
	fs.List(&calls, "call", "c", "Call a function after compiling, e.g. -c 'gain(0.5f)'.", "call")
	fs.Duration(&timeout, "timeout", "", config.DefaultCompileTimeout, "Abort compilation after this long.")
	fs.Int(&loops, "loop-limit", "", config.DefaultLoopLimit, "Iterations after which a while loop is reported as endless.", "n")
	fs.Bool(&wall, "Wall", "", false, "Enable most warnings.")
	fs.Bool(&pedantic, "pedantic", "", false, "Issue all warnings demanded by the strict language rules.")
	fs.Bool(&stats, "stats", "s", false, "Print register statistics per function.")

	cfg := config.NewConfig()
	warningFlags, featureFlags := cfg.SetupFlagGroups(fs)

	app.Action = func(args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("expected exactly one input file, got %d", len(args))
		}
		if err := cfg.LoadEnv(); err != nil {
			log.Printf("%s[WARN]%s %v\n", cYellow, cNone, err)
		}
		if wall {
			cfg.ProcessDirectiveFlags("-Wall")
		}
		if pedantic {
			cfg.ProcessDirectiveFlags("-pedantic")
		}
		cfg.ApplyFlagGroups(warningFlags, featureFlags)
		if target != "" {
			if err := cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target); err != nil {
				log.Printf("%s[WARN]%s %v\n", cYellow, cNone, err)
			}
		}
		if timeout != config.DefaultCompileTimeout {
			cfg.CompileTimeout = timeout
		}
		if loops != config.DefaultLoopLimit {
			cfg.LoopLimit = loops
		}
		return run(args[0], outFile, emit, calls, stats, cfg)
	}

	if err := app.Run(os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

func run(input, outFile, emit string, calls []string, stats bool, cfg *config.Config) error {
	src, err := os.ReadFile(input)
	if err != nil {
		log.Printf("%s[ERROR]%s %v\n", cRed, cNone, err)
		return err
	}
	reporter := util.NewReporter(cfg, os.Stderr, util.SourceFileRecord{Name: input, Content: []rune(string(src))})

	start := time.Now()
	m, err := jit.Compile(context.Background(), input, string(src), cfg)
	if err != nil {
		reporter.PrintError(err)
		return err
	}
	defer m.Close()
	for _, w := range m.Warnings {
		reporter.Print(w)
	}
	if cli.IsTerminal(os.Stderr) {
		log.Printf("%s[OK]%s compiled %d function(s) in %s\n", cGreen, cNone, len(m.Functions()), time.Since(start).Round(time.Microsecond))
	}

	if stats {
		for _, f := range m.Result().Functions {
			log.Printf("%s%-32s%s allocated %-4d reused %-4d flagged %d\n", cCyan, f.Sig, cNone, f.Stats.Allocated, f.Stats.Reused, f.Stats.Flagged)
		}
	}

	for _, c := range calls {
		if err := call(m, c); err != nil {
			log.Printf("%s[ERROR]%s %s: %v\n", cRed, cNone, c, err)
			return err
		}
	}

	var out string
	switch emit {
	case "none":
		return nil
	case "ast":
		res := m.Result()
		out = res.Tree.Dump(res.Tree.Root())
	case "qbe":
		if out, err = m.QBE(); err != nil {
			log.Printf("%s[ERROR]%s backend IR generation failed: %v\n", cRed, cNone, err)
			return err
		}
	case "asm":
		buf, err := m.Assembly()
		if err != nil {
			log.Printf("%s[ERROR]%s backend code generation failed: %v\n", cRed, cNone, err)
			return err
		}
		out = buf.String()
	default:
		return fmt.Errorf("unknown output kind %q", emit)
	}
	return writeOutput(outFile, out)
}

// call runs one `name(args)` expression given on the command line.
func call(m *jit.Module, expr string) error {
	c, err := testcase.ParseCall(expr + " => void")
	if err != nil {
		return err
	}
	fn, ok := m.Match(c.Func, len(c.Args))
	if !ok {
		return fmt.Errorf("no function %s taking %d argument(s)", c.Func, len(c.Args))
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		args[i] = a
	}
	v, err := fn.Call(args...)
	if err != nil {
		return err
	}
	if v.Kind == types.Void {
		fmt.Printf("%s = void\n", c)
		return nil
	}
	fmt.Printf("%s = %s\n", c, v)
	return nil
}

func writeOutput(path, content string) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			log.Printf("%s[ERROR]%s %v\n", cRed, cNone, err)
			return err
		}
		defer f.Close()
		w = f
	}
	_, err := io.WriteString(w, content)
	return err
}
