// Package cli parses lync's command line. Long flags take "--name value" or
// "--name=value", shorthands take "-o value" or "-ovalue", and prefix flags
// such as -W and -F collect every "-W<name>" they see.
package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"
)

type Value interface {
	String() string
	Set(string) error
}

type stringValue struct{ p *string }

func (v stringValue) Set(s string) error { *v.p = s; return nil }
func (v stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s'", s)
	}
	*v.p = b
	return nil
}
func (v boolValue) String() string { return strconv.FormatBool(*v.p) }

type listValue struct{ p *[]string }

func (v listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v listValue) String() string     { return strings.Join(*v.p, ",") }

type Flag struct {
	Name      string
	Shorthand string
	Usage     string
	Arg       string
	Default   string
	Value     Value
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(boolValue)
	return ok
}

// Group describes a family of prefix flags for the help page.
type Group struct {
	Title   string
	Prefix  string
	Kind    string
	Entries []GroupEntry
}

type GroupEntry struct {
	Name    string
	Usage   string
	Enabled bool
}

type FlagSet struct {
	flags    map[string]*Flag
	short    map[string]*Flag
	prefixes map[string]*Flag
	groups   []Group
	args     []string
}

func NewFlagSet() *FlagSet {
	return &FlagSet{
		flags:    make(map[string]*Flag),
		short:    make(map[string]*Flag),
		prefixes: make(map[string]*Flag),
	}
}

func (fs *FlagSet) Args() []string { return fs.args }

func (fs *FlagSet) Lookup(name string) *Flag { return fs.flags[name] }

func (fs *FlagSet) String(p *string, name, shorthand, value, usage, arg string) {
	*p = value
	fs.Var(&Flag{Name: name, Shorthand: shorthand, Usage: usage, Arg: arg, Default: value, Value: stringValue{p}})
}

func (fs *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	fs.Var(&Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: boolValue{p}})
}

func (fs *FlagSet) List(p *[]string, name, shorthand, usage, arg string) {
	fs.Var(&Flag{Name: name, Shorthand: shorthand, Usage: usage, Arg: arg, Value: listValue{p}})
}

// Prefix registers a flag written as -<prefix><value>, like -Wshadow.
func (fs *FlagSet) Prefix(p *[]string, prefix string, g Group) {
	f := &Flag{Name: prefix, Value: listValue{p}}
	fs.prefixes[prefix] = f
	g.Prefix = prefix
	fs.groups = append(fs.groups, g)
}

func (fs *FlagSet) Var(f *Flag) {
	if _, dup := fs.flags[f.Name]; dup {
		panic("cli: flag redefined: " + f.Name)
	}
	fs.flags[f.Name] = f
	if f.Shorthand != "" {
		if _, dup := fs.short[f.Shorthand]; dup {
			panic("cli: shorthand redefined: " + f.Shorthand)
		}
		fs.short[f.Shorthand] = f
	}
}

func (fs *FlagSet) Parse(arguments []string) error {
	fs.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			fs.args = append(fs.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			fs.args = append(fs.args, arg)
		case strings.HasPrefix(arg, "--"):
			name, value, hasValue := strings.Cut(arg[2:], "=")
			f, ok := fs.flags[name]
			if !ok {
				return fmt.Errorf("unknown flag: --%s", name)
			}
			if err := fs.set(f, "--"+name, value, hasValue, arguments, &i); err != nil {
				return err
			}
		default:
			if err := fs.parseShort(arg, arguments, &i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (fs *FlagSet) parseShort(arg string, arguments []string, i *int) error {
	body := arg[1:]
	for prefix, f := range fs.prefixes {
		if rest, ok := strings.CutPrefix(body, prefix); ok && rest != "" {
			return f.Value.Set(rest)
		}
	}
	// Single-dash long names, as in -help.
	if name, value, hasValue := strings.Cut(body, "="); len(name) > 1 {
		if f, ok := fs.flags[name]; ok {
			return fs.set(f, "-"+name, value, hasValue, arguments, i)
		}
	}
	f, ok := fs.short[body[:1]]
	if !ok {
		return fmt.Errorf("unknown flag: -%s", body[:1])
	}
	rest := body[1:]
	if f.isBool() {
		if rest != "" {
			return fmt.Errorf("flag -%s does not take a value", f.Shorthand)
		}
		return f.Value.Set("")
	}
	return fs.set(f, "-"+f.Shorthand, rest, rest != "", arguments, i)
}

func (fs *FlagSet) set(f *Flag, spelled, value string, hasValue bool, arguments []string, i *int) error {
	if !hasValue && !f.isBool() {
		if *i+1 >= len(arguments) {
			return fmt.Errorf("flag needs an argument: %s", spelled)
		}
		*i++
		value, hasValue = arguments[*i], true
	}
	if err := f.Value.Set(value); err != nil {
		return fmt.Errorf("%s: %w", spelled, err)
	}
	return nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	FlagSet     *FlagSet
	Action      func(args []string) error
	Stdout      io.Writer
	Stderr      io.Writer
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(), Stdout: os.Stdout, Stderr: os.Stderr}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(a.Stderr, "%s: %v\n", a.Name, err)
		fmt.Fprintf(a.Stderr, "Run '%s --help' for all available options.\n", a.Name)
		return err
	}
	if help {
		a.WriteHelp(a.Stdout)
		return nil
	}
	if a.Action == nil {
		return nil
	}
	return a.Action(a.FlagSet.Args())
}

// WriteHelp renders the option table followed by one table per group.
func (a *App) WriteHelp(w io.Writer) {
	var sb strings.Builder
	width := terminalWidth(w)

	fmt.Fprintf(&sb, "Usage: %s %s\n", a.Name, a.Synopsis)
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%s\n", a.Description)
	}

	var flags []*Flag
	for _, f := range a.FlagSet.flags {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i].Name < flags[j].Name })

	left := 0
	for _, f := range flags {
		left = max(left, len(flagSpelling(f)))
	}
	for _, g := range a.FlagSet.groups {
		left = max(left, len(g.Prefix)+len("-no-<>")+len(g.Kind))
		for _, e := range g.Entries {
			left = max(left, len(e.Name))
		}
	}

	sb.WriteString("\nOptions\n")
	for _, f := range flags {
		usage := f.Usage
		if f.Default != "" {
			usage += " |" + f.Default + "|"
		}
		writeEntry(&sb, width, left, flagSpelling(f), usage)
	}

	for _, g := range a.FlagSet.groups {
		fmt.Fprintf(&sb, "\n%s\n", g.Title)
		writeEntry(&sb, width, left, fmt.Sprintf("-%s<%s>", g.Prefix, g.Kind), "Enable a "+g.Kind)
		writeEntry(&sb, width, left, fmt.Sprintf("-%sno-<%s>", g.Prefix, g.Kind), "Disable a "+g.Kind)
		entries := append([]GroupEntry(nil), g.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			mark := "|-|"
			if e.Enabled {
				mark = "|x|"
			}
			writeEntry(&sb, width, left, e.Name, e.Usage+" "+mark)
		}
	}
	fmt.Fprint(w, sb.String())
}

func flagSpelling(f *Flag) string {
	var sb strings.Builder
	if f.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", f.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", f.Name)
	if !f.isBool() && f.Arg != "" {
		fmt.Fprintf(&sb, " <%s>", f.Arg)
	}
	return sb.String()
}

const indent = "    "

func writeEntry(sb *strings.Builder, width, left int, name, usage string) {
	lines := wrapText(usage, max(width-len(indent)-left-1, 10))
	if len(lines) == 0 {
		lines = []string{""}
	}
	fmt.Fprintf(sb, "%s%-*s %s\n", indent, left, name, lines[0])
	pad := strings.Repeat(" ", left+1)
	for _, l := range lines[1:] {
		fmt.Fprintf(sb, "%s%s%s\n", indent, pad, l)
	}
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 80
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	var lines []string
	var line strings.Builder
	for _, word := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(word) > maxWidth {
			lines = append(lines, line.String())
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return lines
}
