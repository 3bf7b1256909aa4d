// gtest runs the markdown test suites against the in-process compiler.
// Results land in a JSON report keyed by suite path; with -cached a suite
// whose content and configuration hash match a previous PASS is not run again.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/jit"
	"github.com/xplshn/gsc/pkg/testcase"
)

type CaseResult struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"` // PASS, FAIL, ERROR
	Diff     string        `json:"diff,omitempty"`
	Duration time.Duration `json:"duration"`
}

type FileTestResult struct {
	File    string        `json:"file"`
	Hash    string        `json:"hash"`
	Status  string        `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string        `json:"message,omitempty"`
	Cases   []*CaseResult `json:"cases,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	testFiles  = flag.String("test-files", "pkg/jit/testdata/*_test.md", "Glob pattern(s) for suites to run (space-separated).")
	skipFiles  = flag.String("skip-files", "", "Suites to skip (space-separated).")
	outputJSON = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	extraFlags = flag.String("flags", "", "Directive flags applied before each case's own, e.g. \"-Wall -Fno-fold\".")
	timeout    = flag.Duration("timeout", 5*time.Second, "Timeout for compiling and running one case.")
	jobs       = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose    = flag.Bool("v", false, "List every case, not only failures.")
	useCache   = flag.Bool("cached", false, "Skip suites that passed last time and have not changed.")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

func main() {
	flag.Parse()
	log.SetFlags(0)

	ctx, cancel := context.WithCancel(context.Background())
	setupInterruptHandler(cancel)

	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	previous := make(TestSuiteResults)
	if data, err := os.ReadFile(*outputJSON); err == nil {
		if json.Unmarshal(data, &previous) != nil {
			log.Printf("%s[WARN]%s Could not parse previous results file %s. Cache will not be used.\n", cYellow, cNone, *outputJSON)
			previous = make(TestSuiteResults)
		}
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		if abs, err := filepath.Abs(f); err == nil {
			skipList[abs] = true
		}
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup
	for i := 0; i < max(*jobs, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(ctx, file, previous)
			}
		}()
	}

	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		tasks <- file
	}
	close(tasks)
	wg.Wait()
	close(resultsChan)

	var all []*FileTestResult
	for r := range resultsChan {
		all = append(all, r)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].File < all[j].File })

	printSummary(all)
	if hasFailures(writeJSONReport(all, previous)) {
		os.Exit(1)
	}
}

// setupInterruptHandler cancels in-flight compilations on CTRL+C
func setupInterruptHandler(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		cancel()
		fmt.Printf("\n%s[INTERRUPT]%s Test run cancelled.\n", cYellow, cNone)
		os.Exit(1)
	}()
}

// hashSuite keys a suite on its content and on every flag that changes how
// it compiles.
func hashSuite(content []byte) string {
	cfg := config.NewConfig()
	cfg.ProcessDirectiveFlags(*extraFlags)
	h := xxhash.New()
	h.WriteString(cfg.Key())
	h.Write([]byte{0})
	h.Write(content)
	return fmt.Sprintf("%x", h.Sum64())
}

func testFile(ctx context.Context, file string, previous TestSuiteResults) *FileTestResult {
	content, err := os.ReadFile(file)
	if err != nil {
		return &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read suite: %v", err)}
	}
	hash := hashSuite(content)
	if prev, ok := previous[file]; *useCache && ok && prev.Hash == hash && prev.Status == "PASS" {
		return &FileTestResult{File: file, Hash: hash, Status: "SKIP", Message: "Unchanged since last passing run", Cases: prev.Cases}
	}

	cases, err := testcase.ExtractTestCases(string(content))
	if err != nil {
		return &FileTestResult{File: file, Hash: hash, Status: "ERROR", Message: err.Error()}
	}

	res := &FileTestResult{File: file, Hash: hash, Status: "PASS"}
	failed := 0
	for _, tc := range cases {
		cr := runCase(ctx, tc)
		res.Cases = append(res.Cases, cr)
		if cr.Status != "PASS" {
			failed++
			res.Status = "FAIL"
		}
	}
	res.Message = fmt.Sprintf("%d/%d cases passed", len(cases)-failed, len(cases))
	return res
}

// runCase compiles one case and renders both the expectations and what
// actually happened as lines, so a mismatch reads as a plain diff.
func runCase(ctx context.Context, tc testcase.TestCase) *CaseResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	cfg := config.NewConfig()
	cfg.ProcessDirectiveFlags(*extraFlags)
	cfg.ProcessDirectiveFlags(tc.Flags)

	var want, got []string
	m, err := jit.Compile(ctx, tc.Name, tc.Input, cfg)
	if err != nil && !tc.ExpectsCompileError() {
		return &CaseResult{Name: tc.Name, Status: "ERROR", Diff: err.Error(), Duration: time.Since(start)}
	}
	if m != nil {
		defer m.Close()
	}

	for _, a := range tc.Assertions {
		if m == nil && a.Type != testcase.AssertionCompileError {
			for _, line := range a.Lines() {
				want = append(want, line)
				got = append(got, "<did not compile>")
			}
			continue
		}
		switch a.Type {
		case testcase.AssertionCompileError:
			msg := "<compiled without error>"
			if err != nil {
				msg = err.Error()
			}
			for _, line := range a.Lines() {
				want = append(want, "error: "+line)
				got = append(got, "error: "+matchLine(msg, line))
			}
		case testcase.AssertionWarning:
			for _, line := range a.Lines() {
				want = append(want, "warning: "+line)
				got = append(got, "warning: "+matchWarning(m, line))
			}
		case testcase.AssertionQBE:
			il, qerr := m.QBE()
			if qerr != nil {
				il = qerr.Error()
			}
			for _, line := range a.Lines() {
				want = append(want, "qbe: "+line)
				if strings.Contains(il, line) {
					got = append(got, "qbe: "+line)
				} else {
					got = append(got, "qbe: <missing>")
				}
			}
		case testcase.AssertionCall:
			for _, c := range a.Calls {
				w, g := runCall(ctx, m, c)
				want = append(want, w)
				got = append(got, g)
			}
		}
	}

	cr := &CaseResult{Name: tc.Name, Status: "PASS", Duration: time.Since(start)}
	if diff := cmp.Diff(want, got); diff != "" {
		cr.Status = "FAIL"
		cr.Diff = diff
	}
	return cr
}

// matchLine returns want when msg contains it and msg otherwise.
func matchLine(msg, want string) string {
	if strings.Contains(msg, want) {
		return want
	}
	return msg
}

func matchWarning(m *jit.Module, want string) string {
	if len(m.Warnings) == 0 {
		return "<no warnings>"
	}
	for _, w := range m.Warnings {
		if strings.Contains(w.Message, want) {
			return want
		}
	}
	return m.Warnings[0].Message
}

func runCall(ctx context.Context, m *jit.Module, c testcase.Call) (want, got string) {
	switch {
	case c.WantError != "":
		want = fmt.Sprintf("%s => error: %s", c, c.WantError)
	case c.Void:
		want = fmt.Sprintf("%s => void", c)
	default:
		want = fmt.Sprintf("%s => %s", c, c.Want)
	}

	fn, ok := m.Match(c.Func, len(c.Args))
	if !ok {
		return want, fmt.Sprintf("%s => <no function taking %d argument(s)>", c, len(c.Args))
	}
	args := make([]any, len(c.Args))
	for i, a := range c.Args {
		args[i] = a
	}
	v, err := fn.CallContext(ctx, args...)
	switch {
	case err != nil:
		return want, fmt.Sprintf("%s => error: %s", c, matchLine(err.Error(), c.WantError))
	case c.WantError != "":
		return want, fmt.Sprintf("%s => %s", c, v)
	case c.Void:
		return want, fmt.Sprintf("%s => void", c)
	}
	return want, fmt.Sprintf("%s => %s", c, v)
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	var maxCaseLen int
	for _, r := range results {
		for _, c := range r.Cases {
			maxCaseLen = max(maxCaseLen, len(c.Name))
		}
	}

	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
			continue
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		var total time.Duration
		for _, c := range result.Cases {
			total += c.Duration
			switch {
			case c.Status != "PASS":
				fmt.Printf("    [%s%s%s] %-*s %s\n", cRed, c.Status, cNone, maxCaseLen, c.Name, formatDuration(c.Duration))
				fmt.Print(formatDiff(c.Diff))
			case *verbose:
				fmt.Printf("    [%sPASS%s] %-*s %s\n", cGreen, cNone, maxCaseLen, c.Name, formatDuration(c.Duration))
			}
		}
		if len(result.Cases) > 0 {
			fmt.Printf("  total: %s\n", formatDuration(total))
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("      --- Diff ---\n")
	for _, line := range strings.Split(strings.TrimRight(diff, "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmed, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("      " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

// writeJSONReport merges this run into the previous report so suites that
// were not selected keep their entries.
func writeJSONReport(results []*FileTestResult, previous TestSuiteResults) TestSuiteResults {
	report := make(TestSuiteResults, len(previous)+len(results))
	for k, v := range previous {
		report[k] = v
	}
	current := make(TestSuiteResults, len(results))
	for _, r := range results {
		if r.Status == "SKIP" && r.Hash != "" {
			r.Status = "PASS"
		}
		report[r.File] = r
		current[r.File] = r
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return current
	}
	if err := os.WriteFile(*outputJSON, data, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, *outputJSON, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", *outputJSON)
	}
	return current
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			abs, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if seen[abs] {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				allFiles = append(allFiles, abs)
				seen[abs] = true
			}
		}
	}
	return allFiles, nil
}
