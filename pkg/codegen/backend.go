package codegen

import (
	"bytes"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// GenerateIR renders the program in the backend's intermediate language.
	GenerateIR(prog *ir.Program, cfg *config.Config) (string, error)
	// Generate takes an IR program and a configuration, and produces the target
	// assembly as a byte buffer.
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
}
