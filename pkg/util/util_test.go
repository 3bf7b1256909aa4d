package util

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/token"
)

func TestDiagnosticError(t *testing.T) {
	d := Errorf(token.Token{Line: 3, Column: 7}, "%s is not defined", "x")
	be.Equal(t, d.Error(), "input:3:7: error: x is not defined")
	d.File = "osc.gsc"
	be.Equal(t, d.Error(), "osc.gsc:3:7: error: x is not defined")
	be.Equal(t, d.Line(), 3)
	be.Equal(t, d.Column(), 7)
}

func TestDiagnostics(t *testing.T) {
	a := Errorf(token.Token{Line: 1}, "a")
	b := Errorf(token.Token{Line: 2}, "b")
	err := errors.Join(a, errors.Join(b, errors.New("plain")))
	ds := Diagnostics(err)
	be.Equal(t, len(ds), 2)
	be.Equal(t, ds[0], a)
	be.Equal(t, ds[1], b)
	be.Equal(t, len(Diagnostics(nil)), 0)
}

func TestReporterWarn(t *testing.T) {
	cfg := config.NewConfig()
	cfg.SetWarning(config.WarnShadow, false)
	src := SourceFileRecord{Name: "mix.gsc", Content: []rune("float a;\nint b = a;\n")}
	var out bytes.Buffer
	r := NewReporter(cfg, &out, src)

	r.Warn(config.WarnShadow, token.Token{Line: 2, Column: 5}, "ignored")
	r.Warn(config.WarnImplicitCast, token.Token{Line: 2, Column: 9, Len: 1}, "implicit cast from %s to %s", "float", "int")

	ws := r.Warnings()
	be.Equal(t, len(ws), 1)
	be.Equal(t, ws[0].File, "mix.gsc")
	be.Equal(t, ws[0].Warning, config.WarnImplicitCast)
	be.Equal(t, ws[0].Severity, SeverityWarning)

	printed := out.String()
	be.True(t, strings.Contains(printed, "mix.gsc:2:9:"))
	be.True(t, strings.Contains(printed, "[-Wimplicit-cast]"))
	be.True(t, strings.Contains(printed, "  int b = a;\n"))
	be.True(t, strings.Contains(printed, "        \033[32m^"))
}

func TestReporterPrintError(t *testing.T) {
	var out bytes.Buffer
	r := NewReporter(nil, &out, SourceFileRecord{Name: "f.gsc", Content: []rune("x")})
	r.PrintError(errors.Join(Errorf(token.Token{Line: 1, Column: 1, Len: 1}, "bad")))
	be.True(t, strings.HasPrefix(out.String(), "f.gsc:1:1: "))

	out.Reset()
	r.PrintError(errors.New("disk full"))
	be.True(t, strings.Contains(out.String(), "disk full"))

	// out of range file index
	d := r.Locate(Errorf(token.Token{FileIndex: 4}, "lost"))
	be.Equal(t, d.File, "unknown")
}
