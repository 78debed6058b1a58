package cli

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

type opts struct {
	out      string
	backend  string
	run      bool
	inputs   []string
	warnings []string
	features []string
}

func newTestApp() (*App, *opts) {
	o := &opts{}
	app := NewApp("lync")
	fs := app.FlagSet
	fs.String(&o.out, "output", "o", "a.out", "Place the output into <file>", "file")
	fs.String(&o.backend, "backend", "", "qbe", "Backend", "name")
	fs.Bool(&o.run, "run", "r", false, "Interpret main")
	fs.Prefix(&o.warnings, "W", Group{Title: "Warnings", Kind: "warning", Entries: []GroupEntry{
		{Name: "shadow", Usage: "Warn on shadowing"},
		{Name: "overflow", Usage: "Warn on overflow", Enabled: true},
	}})
	fs.Prefix(&o.features, "F", Group{Title: "Features", Kind: "feature"})
	app.Action = func(args []string) error {
		o.inputs = args
		return nil
	}
	return app, o
}

func TestParseForms(t *testing.T) {
	app, o := newTestApp()
	err := app.Run([]string{"-oprog", "--backend=llvm", "a.lyn", "-r", "-Wshadow", "-Wno-overflow", "-Fstrict-raise", "--", "-weird.lyn"})
	be.Err(t, err, nil)
	be.Equal(t, o.out, "prog")
	be.Equal(t, o.backend, "llvm")
	be.True(t, o.run)
	be.Equal(t, o.inputs, []string{"a.lyn", "-weird.lyn"})
	if diff := cmp.Diff([]string{"shadow", "no-overflow"}, o.warnings); diff != "" {
		t.Errorf("warnings (-want +got):\n%s", diff)
	}
	be.Equal(t, o.features, []string{"strict-raise"})
}

func TestSeparateValues(t *testing.T) {
	app, o := newTestApp()
	be.Err(t, app.Run([]string{"-o", "x", "--backend", "qbe", "--run=false"}), nil)
	be.Equal(t, o.out, "x")
	be.Equal(t, o.backend, "qbe")
	be.Equal(t, o.run, false)
}

func TestParseErrors(t *testing.T) {
	cases := map[string][]string{
		"unknown flag: --nope":               {"--nope"},
		"unknown flag: -z":                   {"-z"},
		"flag needs an argument: -o":         {"-o"},
		"flag needs an argument: --backend":  {"--backend"},
		"invalid boolean value 'maybe'":      {"--run=maybe"},
		"flag -r does not take a value":      {"-rx"},
	}
	for want, args := range cases {
		t.Run(want, func(t *testing.T) {
			app, _ := newTestApp()
			var stderr strings.Builder
			app.Stderr = &stderr
			err := app.Run(args)
			be.Err(t, err, want)
			be.True(t, strings.Contains(stderr.String(), "lync --help"))
		})
	}
}

func TestHelp(t *testing.T) {
	app, o := newTestApp()
	var stdout strings.Builder
	app.Stdout = &stdout
	app.Synopsis = "[options] <input.lyn> ..."
	be.Err(t, app.Run([]string{"--help", "in.lyn"}), nil)
	be.Equal(t, o.inputs, []string(nil))

	help := stdout.String()
	for _, want := range []string{
		"Usage: lync [options] <input.lyn> ...",
		"-o, --output <file>",
		"|a.out|",
		"-W<warning>",
		"-Fno-<feature>",
		"|x|",
		"|-|",
	} {
		be.True(t, strings.Contains(help, want))
	}
}

func TestWrapText(t *testing.T) {
	got := wrapText("one two three four", 9)
	be.Equal(t, got, []string{"one two", "three", "four"})
	be.Equal(t, len(wrapText("", 9)), 0)
}
