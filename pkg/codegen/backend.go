package codegen

import (
	"bytes"
	"fmt"

	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
)

// Backend is the interface that all code generation backends must implement.
type Backend interface {
	// GenerateIR renders the program in the backend's own intermediate language.
	GenerateIR(prog *ir.Program, cfg *config.Config) (string, error)
	// Generate produces the final artifact: assembly for qbe, LLVM IR for llvm.
	Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error)
}

// NewBackend selects a backend by the name used on the command line.
func NewBackend(name string) (Backend, error) {
	switch name {
	case "qbe", "":
		return NewQBEBackend(), nil
	case "llvm":
		return NewLLVMBackend(), nil
	}
	return nil, fmt.Errorf("unknown backend '%s'", name)
}
