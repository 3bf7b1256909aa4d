package util

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/token"
)

type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	if s == SeverityWarning {
		return "warning"
	}
	return "error"
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

// Diagnostic is a compile error or warning anchored at a token.
type Diagnostic struct {
	Severity Severity
	Message  string
	Tok      token.Token
	File     string
	Warning  config.Warning
}

func (d *Diagnostic) Error() string {
	file := d.File
	if file == "" {
		file = "input"
	}
	msg := fmt.Sprintf("%s:%d:%d: %s: %s", file, d.Tok.Line, d.Tok.Column, d.Severity, d.Message)
	return msg
}

func (d *Diagnostic) Line() int   { return d.Tok.Line }
func (d *Diagnostic) Column() int { return d.Tok.Column }

// Errorf builds an error diagnostic at tok.
func Errorf(tok token.Token, format string, args ...any) *Diagnostic {
	return &Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Tok: tok}
}

// Diagnostics flattens an error produced by errors.Join into its diagnostics.
func Diagnostics(err error) []*Diagnostic {
	if err == nil {
		return nil
	}
	var out []*Diagnostic
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, Diagnostics(e)...)
		}
		return out
	}
	var d *Diagnostic
	if errors.As(err, &d) {
		out = append(out, d)
	}
	return out
}

// Reporter resolves file names for diagnostics, filters warnings by the
// active configuration and either prints or collects them.
type Reporter struct {
	cfg      *config.Config
	out      io.Writer
	files    []SourceFileRecord
	mu       sync.Mutex
	warnings []*Diagnostic
}

func NewReporter(cfg *config.Config, out io.Writer, files ...SourceFileRecord) *Reporter {
	return &Reporter{cfg: cfg, out: out, files: files}
}

func (r *Reporter) SetSourceFiles(files []SourceFileRecord) { r.files = files }

func (r *Reporter) fileName(tok token.Token) string {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) {
		return "unknown"
	}
	return r.files[tok.FileIndex].Name
}

// Locate fills in the file name of a diagnostic.
func (r *Reporter) Locate(d *Diagnostic) *Diagnostic {
	if d.File == "" {
		d.File = r.fileName(d.Tok)
	}
	return d
}

// Warn records a warning if wt is enabled.
func (r *Reporter) Warn(wt config.Warning, tok token.Token, format string, args ...any) {
	if r.cfg != nil && !r.cfg.IsWarningEnabled(wt) {
		return
	}
	d := r.Locate(&Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Tok: tok, Warning: wt})
	r.mu.Lock()
	r.warnings = append(r.warnings, d)
	r.mu.Unlock()
	if r.out != nil {
		r.Print(d)
	}
}

func (r *Reporter) Warnings() []*Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Diagnostic(nil), r.warnings...)
}

// Print renders d with the offending source line and a caret.
func (r *Reporter) Print(d *Diagnostic) {
	if r.out == nil {
		return
	}
	r.Locate(d)
	color := "\033[31m"
	if d.Severity == SeverityWarning {
		color = "\033[33m"
	}
	fmt.Fprintf(r.out, "%s:%d:%d: %s%s:\033[0m %s", d.File, d.Tok.Line, d.Tok.Column, color, d.Severity, d.Message)
	if d.Severity == SeverityWarning && r.cfg != nil {
		fmt.Fprintf(r.out, " [-W%s]", r.cfg.Warnings[d.Warning].Name)
	}
	fmt.Fprintln(r.out)
	r.printErrorLine(d.Tok)
}

// PrintError prints every diagnostic contained in err.
func (r *Reporter) PrintError(err error) {
	diags := Diagnostics(err)
	if len(diags) == 0 && err != nil && r.out != nil {
		fmt.Fprintf(r.out, "\033[31merror:\033[0m %v\n", err)
		return
	}
	for _, d := range diags {
		r.Print(d)
	}
}

// printErrorLine prints the source line and a caret indicating the error position
func (r *Reporter) printErrorLine(tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.files) || tok.Line == 0 {
		return
	}

	content := r.files[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, ch := range content {
		if lineNum <= 1 {
			break
		}
		if ch == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(r.out, "  %s\n", string(content[lineStart:lineEnd]))

	col := tok.Column
	if col < 1 {
		col = 1
	}
	fmt.Fprintf(r.out, "  %s\033[32m^", strings.Repeat(" ", col-1))
	if tok.Len > 1 {
		fmt.Fprintf(r.out, "%s", strings.Repeat("~", tok.Len-1))
	}
	fmt.Fprintln(r.out, "\033[0m")
}
