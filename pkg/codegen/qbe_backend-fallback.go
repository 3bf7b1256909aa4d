//go:build windows

package codegen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/xplshn/gsc/pkg/config"
	"github.com/xplshn/gsc/pkg/ir"
)

func (b *qbeBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	_, err := exec.LookPath("qbe")
	if err != nil {
		return nil, fmt.Errorf("libqbe is unavailable on windows and qbe was not found in PATH: %w", err)
	}

	qbeIR, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}

	inputFile, err := os.CreateTemp("", "gsc-qbe-*.temp.ssa")
	if err != nil {
		return nil, err
	}
	defer inputFile.Close()
	defer os.Remove(inputFile.Name())

	if _, err = inputFile.WriteString(qbeIR); err != nil {
		return nil, err
	}

	outputFileName := inputFile.Name() + ".asm"
	cmd := exec.Command(
		"qbe",
		"-o", outputFileName,
		"-t", cfg.QbeTarget,
		inputFile.Name(),
	)

	err = cmd.Run()
	if err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IR:\n%s\n\nError: %w", qbeIR, err)
	}

	outputFile, err := os.Open(outputFileName)
	if err != nil {
		return nil, err
	}
	defer outputFile.Close()
	defer os.Remove(outputFileName)

	var asmBuf bytes.Buffer
	if _, err = io.Copy(&asmBuf, outputFile); err != nil {
		return nil, err
	}

	return &asmBuf, nil
}
