package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Project is the optional lyn.yaml file next to the sources.
type Project struct {
	Target   string          `yaml:"target,omitempty"`
	Backend  string          `yaml:"backend,omitempty"`
	Output   string          `yaml:"output,omitempty"`
	CacheDir string          `yaml:"cache_dir,omitempty"`
	Features map[string]bool `yaml:"features,omitempty"`
	Warnings map[string]bool `yaml:"warnings,omitempty"`
}

const ProjectFileName = "lyn.yaml"

func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading project file %s: %w", path, err)
	}
	return ParseProject(data, path)
}

// ParseProject parses lyn.yaml content. The path is used only for error messages.
func ParseProject(data []byte, path string) (*Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if p.Backend != "" && p.Backend != "qbe" && p.Backend != "llvm" {
		return nil, fmt.Errorf("%s: unknown backend '%s'", path, p.Backend)
	}
	return &p, nil
}

// FindProject walks up from dir looking for lyn.yaml. It returns "" when none exists.
func FindProject(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Apply copies the project settings into the configuration. Unknown
// feature or warning names are reported as an error.
func (c *Config) Apply(p *Project) error {
	if p.Backend != "" {
		if err := c.SetBackend(p.Backend); err != nil {
			return err
		}
	}
	for name, on := range p.Features {
		ft, ok := c.FeatureMap[name]
		if !ok {
			return fmt.Errorf("unknown feature '%s'", name)
		}
		c.SetFeature(ft, on)
	}
	for name, on := range p.Warnings {
		wt, ok := c.WarningMap[name]
		if !ok {
			return fmt.Errorf("unknown warning '%s'", name)
		}
		c.SetWarning(wt, on)
	}
	return nil
}
