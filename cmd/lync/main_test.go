package main

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestRuntimeIsEmbedded(t *testing.T) {
	for _, fn := range []string{"print_i64", "print_f64", "print_str"} {
		be.True(t, strings.Contains(runtimeC, "void "+fn+"("))
	}
}
