package config

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/nalgeon/be"
)

func TestFlagsToggleFeaturesAndWarnings(t *testing.T) {
	cfg := NewConfig()
	be.Equal(t, cfg.IsFeatureEnabled(FeatStrictGenerics), false)
	be.Equal(t, cfg.IsWarningEnabled(WarnUnreachableCode), true)

	flags := []string{"Fstrict-generics", "Wno-unreachable-code", "Wraise-sentinel"}
	cfg.ProcessFlags(func(fn func(string)) {
		for _, f := range flags {
			fn(f)
		}
	})
	be.Equal(t, cfg.IsFeatureEnabled(FeatStrictGenerics), true)
	be.Equal(t, cfg.IsWarningEnabled(WarnUnreachableCode), false)
	be.Equal(t, cfg.IsWarningEnabled(WarnRaiseSentinel), true)
}

func TestWallAppliesBeforeSpecificWarnings(t *testing.T) {
	cfg := NewConfig()
	flags := []string{"Wno-shadow", "Wall"}
	cfg.ProcessFlags(func(fn func(string)) {
		for _, f := range flags {
			fn(f)
		}
	})
	be.Equal(t, cfg.IsWarningEnabled(WarnGenericFallback), true)
	be.Equal(t, cfg.IsWarningEnabled(WarnShadow), false)
}

func TestSetTargetWordSize(t *testing.T) {
	cfg := NewConfig()
	cfg.Stderr = io.Discard
	cfg.SetTarget("linux", "arm", "rv32")
	be.Equal(t, cfg.WordSize, 4)
	be.Equal(t, cfg.WordType, "w")
	cfg.SetTarget("linux", "amd64", "amd64_sysv")
	be.Equal(t, cfg.WordSize, 8)
}

func TestParseProject(t *testing.T) {
	src := []byte("target: rv64\nbackend: llvm\nfeatures:\n  strict-raise: true\nwarnings:\n  generic-fallback: true\n")
	p, err := ParseProject(src, "lyn.yaml")
	be.Err(t, err, nil)
	be.Equal(t, p.Target, "rv64")

	cfg := NewConfig()
	be.Err(t, cfg.Apply(p), nil)
	be.Equal(t, cfg.BackendName, "llvm")
	be.Equal(t, cfg.IsFeatureEnabled(FeatStrictRaise), true)
	be.Equal(t, cfg.IsWarningEnabled(WarnGenericFallback), true)
}

func TestParseProjectRejectsUnknownNames(t *testing.T) {
	_, err := ParseProject([]byte("backend: gcc\n"), "lyn.yaml")
	be.True(t, err != nil)

	p, err := ParseProject([]byte("features:\n  nope: true\n"), "lyn.yaml")
	be.Err(t, err, nil)
	be.True(t, NewConfig().Apply(p) != nil)
}

func TestFindProjectWalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	be.Err(t, os.MkdirAll(nested, 0o755), nil)
	be.Err(t, os.WriteFile(filepath.Join(root, ProjectFileName), []byte("backend: qbe\n"), 0o644), nil)

	found, err := FindProject(nested)
	be.Err(t, err, nil)
	be.Equal(t, found, filepath.Join(root, ProjectFileName))
}

func TestFingerprintTracksCodegenFeatures(t *testing.T) {
	a, b := NewConfig(), NewConfig()
	be.Equal(t, a.Fingerprint(), b.Fingerprint())
	b.SetFeature(FeatStrictRaise, true)
	be.True(t, a.Fingerprint() != b.Fingerprint())
	b.SetFeature(FeatStrictRaise, false)
	b.SetFeature(FeatIRCache, false)
	be.Equal(t, a.Fingerprint(), b.Fingerprint())
}
