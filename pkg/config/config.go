package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"modernc.org/libqbe"
)

type Feature int

const (
	FeatStrictGenerics Feature = iota
	FeatStrictRaise
	FeatIRCache
	FeatCount
)

type Warning int

const (
	WarnGenericFallback Warning = iota
	WarnRaiseSentinel
	WarnUnreachableCode
	WarnShadow
	WarnOverflow
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

type Config struct {
	Features       map[Feature]Info
	Warnings       map[Warning]Info
	FeatureMap     map[string]Feature
	WarningMap     map[string]Warning
	TargetArch     string
	BackendName    string
	BackendTarget  string
	WordSize       int
	WordType       string
	StackAlignment int
	Stderr         io.Writer
}

func NewConfig() *Config {
	cfg := &Config{
		Features:    make(map[Feature]Info),
		Warnings:    make(map[Warning]Info),
		FeatureMap:  make(map[string]Feature),
		WarningMap:  make(map[string]Warning),
		BackendName: "qbe",
		Stderr:      os.Stderr,
	}

	features := map[Feature]Info{
		FeatStrictGenerics: {"strict-generics", false, "Reject payload loads whose generic type is unknown instead of defaulting to i32."},
		FeatStrictRaise:    {"strict-raise", false, "Reject '.raise()' in functions that cannot propagate the failure instead of returning a sentinel."},
		FeatIRCache:        {"ir-cache", true, "Reuse generated IR for unchanged sources."},
	}

	warnings := map[Warning]Info{
		WarnGenericFallback: {"generic-fallback", false, "Warn when a payload type is unknown and defaults to i32."},
		WarnRaiseSentinel:   {"raise-sentinel", false, "Warn when '.raise()' returns a sentinel value on failure."},
		WarnUnreachableCode: {"unreachable-code", true, "Warn about code that will never be executed."},
		WarnShadow:          {"shadow", false, "Warn when a pattern binding shadows a variable."},
		WarnOverflow:        {"overflow", true, "Warn when an integer constant is out of range for its type."},
		WarnExtra:           {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	cfg.WordSize, cfg.WordType, cfg.StackAlignment = 8, "l", 16
	return cfg
}

// SetTarget configures the compiler for a specific architecture and QBE target.
func (c *Config) SetTarget(goos, goarch, qbeTarget string) {
	if qbeTarget == "" {
		c.BackendTarget = libqbe.DefaultTarget(goos, goarch)
		fmt.Fprintf(c.Stderr, "lync: info: no target specified, defaulting to host target '%s'\n", c.BackendTarget)
	} else {
		c.BackendTarget = qbeTarget
	}

	c.TargetArch = goarch

	switch c.BackendTarget {
	case "amd64_sysv", "amd64_apple", "arm64", "arm64_apple", "rv64":
		c.WordSize, c.WordType, c.StackAlignment = 8, "l", 16
	case "arm", "rv32":
		c.WordSize, c.WordType, c.StackAlignment = 4, "w", 8
	default:
		fmt.Fprintf(c.Stderr, "lync: warning: unrecognized or unsupported target '%s', defaulting to 64-bit properties\n", c.BackendTarget)
		c.WordSize, c.WordType, c.StackAlignment = 8, "l", 16
	}
}

func (c *Config) SetBackend(name string) error {
	switch name {
	case "qbe", "llvm":
		c.BackendName = name
		return nil
	}
	return fmt.Errorf("unsupported backend '%s'. Supported: 'qbe', 'llvm'", name)
}

func (c *Config) SetFeature(ft Feature, enabled bool) {
	if info, ok := c.Features[ft]; ok {
		info.Enabled = enabled
		c.Features[ft] = info
	}
}

func (c *Config) IsFeatureEnabled(ft Feature) bool { return c.Features[ft].Enabled }

func (c *Config) SetWarning(wt Warning, enabled bool) {
	if info, ok := c.Warnings[wt]; ok {
		info.Enabled = enabled
		c.Warnings[wt] = info
	}
}

func (c *Config) IsWarningEnabled(wt Warning) bool { return c.Warnings[wt].Enabled }

func (c *Config) applyFlag(flag string) {
	trimmed := strings.TrimPrefix(flag, "-")
	isNo := strings.HasPrefix(trimmed, "Wno-") || strings.HasPrefix(trimmed, "Fno-")
	enable := !isNo

	var name string
	var isWarning bool

	switch {
	case strings.HasPrefix(trimmed, "W"):
		name = strings.TrimPrefix(trimmed, "W")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
		isWarning = true
	case strings.HasPrefix(trimmed, "F"):
		name = strings.TrimPrefix(trimmed, "F")
		if isNo {
			name = strings.TrimPrefix(name, "no-")
		}
	default:
		name = trimmed
		isWarning = true
	}

	if name == "all" && isWarning {
		for i := Warning(0); i < WarnCount; i++ {
			c.SetWarning(i, enable)
		}
		return
	}

	if isWarning {
		if w, ok := c.WarningMap[name]; ok {
			c.SetWarning(w, enable)
		}
	} else {
		if f, ok := c.FeatureMap[name]; ok {
			c.SetFeature(f, enable)
		}
	}
}

func (c *Config) ProcessFlags(visitFlag func(fn func(name string))) {
	visitFlag(func(name string) {
		if name == "Wall" || name == "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
	visitFlag(func(name string) {
		if name != "Wall" && name != "Wno-all" {
			c.applyFlag("-" + name)
		}
	})
}

// Fingerprint renders every setting that influences generated code.
func (c *Config) Fingerprint() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s/%s/%d", c.BackendName, c.BackendTarget, c.WordSize)
	for i := Feature(0); i < FeatCount; i++ {
		if i == FeatIRCache {
			continue
		}
		fmt.Fprintf(&sb, ",%s=%t", c.Features[i].Name, c.Features[i].Enabled)
	}
	return sb.String()
}
