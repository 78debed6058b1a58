//go:build windows

package codegen

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

func (b *qbeBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	util.Info("Self-contained QBE backend is not supported on Windows, using the system's 'qbe'")
	if _, err := exec.LookPath("qbe"); err != nil {
		return nil, fmt.Errorf("QBE not found in PATH: %s", err.Error())
	}

	qbeIR, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}

	inputFile, err := os.CreateTemp("", "lync-qbe-*.ssa")
	if err != nil {
		return nil, err
	}
	defer inputFile.Close()
	defer os.Remove(inputFile.Name())

	if _, err = inputFile.WriteString(qbeIR); err != nil {
		return nil, err
	}
	if err = inputFile.Sync(); err != nil {
		return nil, err
	}

	outputName := inputFile.Name() + ".asm"
	cmd := exec.Command(
		"qbe",
		"-o", outputName,
		"-t", cfg.BackendTarget,
		inputFile.Name(),
	)

	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("\n--- QBE Compilation Failed ---\nGenerated IR:\n%s\n\nqbe: %s: %w", qbeIR, out, err)
	}

	outputFile, err := os.Open(outputName)
	if err != nil {
		return nil, err
	}
	defer outputFile.Close()
	defer os.Remove(outputName)

	var asmBuf bytes.Buffer
	if _, err = io.Copy(&asmBuf, outputFile); err != nil {
		return nil, err
	}

	return &asmBuf, nil
}
