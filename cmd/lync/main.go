package main

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/Zeeeepa/lynlang-sub004/pkg/cache"
	"github.com/Zeeeepa/lynlang-sub004/pkg/cli"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/pipeline"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

//go:embed runtime.c.in
var runtimeC string

// exitError carries the status of an interpreted main out of the action.
type exitError struct{ code int }

func (e exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	app := cli.NewApp("lync")
	app.Synopsis = "[options] <input.lyn> ..."
	app.Description = "A compiler for the lyn language. Emits QBE or LLVM and links with cc, or interprets the program directly."

	var (
		outFile    string
		target     string
		backend    string
		emit       string
		configPath string
		cacheDir   string
		run        bool
		verbose    bool
		warnFlags  []string
		featFlags  []string
	)

	cfg := config.NewConfig()

	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Place the output into <file>.", "file")
	fs.String(&target, "target", "t", "", "Set the QBE target ABI (amd64_sysv, arm64, rv64, rv32, ...).", "target")
	fs.String(&backend, "backend", "", "", "Select the backend: qbe or llvm.", "name")
	fs.String(&emit, "emit", "", "", "Stop after producing ir, ssa, llvm or asm.", "kind")
	fs.String(&configPath, "config", "", "", "Read project settings from <file> instead of searching for lyn.yaml.", "file")
	fs.String(&cacheDir, "cache-dir", "", "", "Persist generated output in <dir>.", "dir")
	fs.Bool(&run, "run", "r", false, "Interpret main instead of building an executable.")
	fs.Bool(&verbose, "verbose", "v", false, "Report each compilation stage.")
	fs.Prefix(&warnFlags, "W", groupOf("Warnings", "warning", cfg.Warnings))
	fs.Prefix(&featFlags, "F", groupOf("Features", "feature", cfg.Features))

	app.Action = func(inputs []string) error {
		if len(inputs) == 0 {
			return errors.New("no input files specified")
		}

		project, err := loadProject(configPath, inputs[0])
		if err != nil {
			return err
		}
		if project != nil {
			if err := cfg.Apply(project); err != nil {
				return err
			}
			target = firstNonEmpty(target, project.Target)
			outFile = firstNonEmpty(outFile, project.Output)
			cacheDir = firstNonEmpty(cacheDir, project.CacheDir)
		}

		// Command line flags override the project file.
		cfg.ProcessFlags(func(visit func(name string)) {
			for _, w := range warnFlags {
				visit("W" + w)
			}
			for _, f := range featFlags {
				visit("F" + f)
			}
		})
		if backend != "" {
			if err := cfg.SetBackend(backend); err != nil {
				return err
			}
		}
		cfg.SetTarget(runtime.GOOS, runtime.GOARCH, target)

		srcs, err := readSources(inputs)
		if err != nil {
			return err
		}

		c := pipeline.New(cfg)
		c.Verbose = verbose
		if cacheDir != "" {
			c.Cache = cache.New(cacheDir)
		}

		if run {
			code, err := c.Run(srcs, os.Stdout)
			if err != nil {
				return err
			}
			if code != 0 {
				return exitError{code}
			}
			return nil
		}

		if emit != "" {
			kind, err := pipeline.ParseEmitKind(emit)
			if err != nil {
				return err
			}
			out, err := c.Emit(srcs, kind)
			if err != nil {
				return err
			}
			if outFile == "" {
				_, err = os.Stdout.Write(out)
				return err
			}
			return os.WriteFile(outFile, out, 0o644)
		}

		asm, err := c.Emit(srcs, pipeline.EmitAsm)
		if err != nil {
			return err
		}
		outFile = firstNonEmpty(outFile, "a.out")
		if verbose {
			util.Info("Linking to create '%s'...", outFile)
		}
		if err := assembleAndLink(outFile, string(asm)); err != nil {
			return fmt.Errorf("assembler/linker failed: %w", err)
		}
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		var ee exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		util.Report(err)
		os.Exit(1)
	}
}

func groupOf[K comparable](title, kind string, infos map[K]config.Info) cli.Group {
	g := cli.Group{Title: title, Kind: kind}
	for _, info := range infos {
		g.Entries = append(g.Entries, cli.GroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	return g
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// loadProject reads the explicit config file, or the nearest lyn.yaml
// above the first input.
func loadProject(explicit, firstInput string) (*config.Project, error) {
	path := explicit
	if path == "" {
		found, err := config.FindProject(filepath.Dir(firstInput))
		if err != nil || found == "" {
			return nil, err
		}
		path = found
	}
	return config.LoadProject(path)
}

func readSources(paths []string) ([]pipeline.Source, error) {
	srcs := make([]pipeline.Source, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("could not read file '%s': %w", path, err)
		}
		srcs = append(srcs, pipeline.Source{Name: path, Text: string(content)})
	}
	return srcs, nil
}

func writeTemp(pattern, content string) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	return f.Name(), nil
}

func assembleAndLink(outFile, asm string) error {
	asmFile, err := writeTemp("lync-main-*.s", asm)
	if err != nil {
		return err
	}
	defer os.Remove(asmFile)
	rtFile, err := writeTemp("lync-rt-*.c", runtimeC)
	if err != nil {
		return err
	}
	defer os.Remove(rtFile)

	cmd := exec.Command("cc", "-no-pie", "-o", outFile, asmFile, rtFile)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("cc command failed: %w\nOutput:\n%s", err, string(output))
	}
	return nil
}
