//go:build !windows

package codegen

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
	"modernc.org/libqbe"
)

// Generate lowers prog through the in-process copy of QBE.
func (b *qbeBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	il, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}

	var asm bytes.Buffer
	if err := libqbe.Main(cfg.QbeTarget, "module.ssa", strings.NewReader(il), &asm, nil); err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\ntarget %s, %d function(s):\n%s\n\nlibqbe error: %w", cfg.QbeTarget, len(prog.Funcs), il, err)
	}
	return &asm, nil
}
