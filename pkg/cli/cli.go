// Package cli is a small flag parser with grouped -W/-F style toggles and
// terminal-aware help pages.
package cli

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

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
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = b
	return nil
}
func (v boolValue) String() string { return strconv.FormatBool(*v.p) }

type intValue struct{ p *int }

func (v intValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s': %w", s, err)
	}
	*v.p = n
	return nil
}
func (v intValue) String() string { return strconv.Itoa(*v.p) }

type durationValue struct{ p *time.Duration }

func (v durationValue) Set(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", s, err)
	}
	*v.p = d
	return nil
}
func (v durationValue) String() string { return v.p.String() }

type listValue struct{ p *[]string }

func (v listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v listValue) String() string     { return strings.Join(*v.p, ", ") }

type Flag struct {
	Name      string
	Shorthand string
	Usage     string
	Value     Value
	DefValue  string
	Arg       string // placeholder shown in help, empty for booleans
}

func (f *Flag) isBool() bool {
	_, ok := f.Value.(boolValue)
	return ok
}

// GroupEntry is one toggle of a FlagGroup. It defines -<Prefix><Name> and
// -<Prefix>no-<Name>.
type GroupEntry struct {
	Name    string
	Usage   string
	Enabled bool
	On, Off bool
}

// FlagGroup is a family of toggles such as the -W warnings.
type FlagGroup struct {
	Name    string
	Prefix  string
	Kind    string
	Entries []*GroupEntry
}

type FlagSet struct {
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	groups     []*FlagGroup
	toggles    map[string]*bool
	args       []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
		toggles:    make(map[string]*bool),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

func (f *FlagSet) String(p *string, name, shorthand, value, usage, arg string) {
	*p = value
	f.Var(stringValue{p}, name, shorthand, usage, value, arg)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int, name, shorthand string, value int, usage, arg string) {
	*p = value
	f.Var(intValue{p}, name, shorthand, usage, strconv.Itoa(value), arg)
}

func (f *FlagSet) Duration(p *time.Duration, name, shorthand string, value time.Duration, usage string) {
	*p = value
	f.Var(durationValue{p}, name, shorthand, usage, value.String(), "duration")
}

func (f *FlagSet) List(p *[]string, name, shorthand, usage, arg string) {
	*p = nil
	f.Var(listValue{p}, name, shorthand, usage, "", arg)
}

func (f *FlagSet) Var(v Value, name, shorthand, usage, defValue, arg string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	fl := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: v, DefValue: defValue, Arg: arg}
	f.flags[name] = fl
	if shorthand == "" {
		return
	}
	if _, ok := f.shorthands[shorthand]; ok {
		panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
	}
	f.shorthands[shorthand] = fl
}

// AddGroup registers a toggle family. Entries keep their Enabled state as
// the default shown in help; On and Off record what the command line asked
// for.
func (f *FlagSet) AddGroup(g *FlagGroup) {
	for _, e := range g.Entries {
		f.toggles[g.Prefix+e.Name] = &e.On
		f.toggles[g.Prefix+"no-"+e.Name] = &e.Off
	}
	f.groups = append(f.groups, g)
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = nil
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		if len(arg) < 2 || arg[0] != '-' {
			f.args = append(f.args, arg)
			continue
		}
		if arg == "--" {
			f.args = append(f.args, arguments[i+1:]...)
			break
		}

		name := strings.TrimLeft(arg, "-")
		name, value, hasValue := strings.Cut(name, "=")
		if p, ok := f.toggles[name]; ok && !hasValue {
			*p = true
			continue
		}

		fl, ok := f.flags[name]
		if !ok && !strings.HasPrefix(arg, "--") {
			fl, ok = f.shorthands[name[:1]]
			if ok && !fl.isBool() && len(name) > 1 && !hasValue {
				value, hasValue = name[1:], true
			}
		}
		if !ok {
			return fmt.Errorf("unknown flag: %s", arg)
		}

		switch {
		case hasValue:
		case fl.isBool():
			value = ""
		case i+1 < len(arguments):
			i++
			value = arguments[i]
		default:
			return fmt.Errorf("flag needs an argument: %s", arg)
		}
		if err := fl.Value.Set(value); err != nil {
			return fmt.Errorf("%s: %w", arg, err)
		}
	}
	return nil
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error

	Stdout, Stderr io.Writer
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name), Stdout: os.Stdout, Stderr: os.Stderr}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintln(a.Stderr, err)
		fmt.Fprintf(a.Stderr, "Usage: %s %s\nRun '%s --help' for all available options and flags.\n", a.Name, a.Synopsis, a.Name)
		return err
	}
	if help {
		a.WriteHelp(a.Stdout, TerminalWidth(a.Stdout))
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// WriteHelp renders the full help page wrapped to width columns.
func (a *App) WriteHelp(w io.Writer, width int) {
	const indent = "    "
	var sb strings.Builder

	if len(a.Authors) > 0 {
		fmt.Fprintf(&sb, "\n%sCopyright (c) %d: %s and contributors\n", indent, time.Now().Year(), strings.Join(a.Authors, ", "))
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indent, a.Repository)
	}
	if a.Synopsis != "" {
		fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s%s %s\n", indent, indent, indent, a.Name, a.Synopsis)
	}
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n", indent)
		for _, l := range wrapText(a.Description, width-2*len(indent)) {
			fmt.Fprintf(&sb, "%s%s%s\n", indent, indent, l)
		}
	}

	var rows [][3]string
	for _, fl := range a.sortedFlags() {
		def := ""
		if !fl.isBool() && fl.DefValue != "" {
			def = "|" + fl.DefValue + "|"
		}
		rows = append(rows, [3]string{flagString(fl), fl.Usage, def})
	}
	left := 0
	for _, r := range rows {
		left = max(left, len(r[0]))
	}
	for _, g := range a.FlagSet.groups {
		left = max(left, len("-"+g.Prefix+"no-<"+g.Kind+">"))
		for _, e := range g.Entries {
			left = max(left, len(e.Name))
		}
	}

	if len(rows) > 0 {
		fmt.Fprintf(&sb, "\n%sOptions\n", indent)
		for _, r := range rows {
			writeRow(&sb, indent+indent, left, width, r)
		}
	}
	for _, g := range a.FlagSet.groups {
		fmt.Fprintf(&sb, "\n%s%s\n", indent, g.Name)
		writeRow(&sb, indent+indent, left, width, [3]string{"-" + g.Prefix + "<" + g.Kind + ">", "Enable a specific " + g.Kind, ""})
		writeRow(&sb, indent+indent, left, width, [3]string{"-" + g.Prefix + "no-<" + g.Kind + ">", "Disable a specific " + g.Kind, ""})
		entries := slices.Clone(g.Entries)
		slices.SortFunc(entries, func(x, y *GroupEntry) int { return strings.Compare(x.Name, y.Name) })
		for _, e := range entries {
			mark := "|-|"
			if e.Enabled {
				mark = "|x|"
			}
			writeRow(&sb, indent+indent, left, width, [3]string{e.Name, e.Usage, mark})
		}
	}
	io.WriteString(w, sb.String())
}

func (a *App) sortedFlags() []*Flag {
	var out []*Flag
	for _, fl := range a.FlagSet.flags {
		out = append(out, fl)
	}
	slices.SortFunc(out, func(x, y *Flag) int { return strings.Compare(x.Name, y.Name) })
	return out
}

func flagString(fl *Flag) string {
	var sb strings.Builder
	if fl.Shorthand != "" {
		sb.WriteString("-" + fl.Shorthand)
		if !fl.isBool() {
			sb.WriteString(" <" + fl.Arg + ">")
		}
		sb.WriteString(", ")
	}
	sb.WriteString("--" + fl.Name)
	if !fl.isBool() && fl.Arg != "" && fl.Shorthand == "" {
		sb.WriteString("=" + fl.Arg)
	}
	return sb.String()
}

// writeRow prints name, usage and a right hand marker, wrapping the usage
// under itself when it does not fit.
func writeRow(sb *strings.Builder, indent string, left, width int, r [3]string) {
	room := max(width-len(indent)-left-3-len(r[2]), 10)
	lines := wrapText(r[1], room)
	if len(lines) == 0 {
		lines = []string{""}
	}
	first := fmt.Sprintf("%s%-*s %s", indent, left, r[0], lines[0])
	if r[2] != "" {
		first = fmt.Sprintf("%s%-*s %-*s  %s", indent, left, r[0], room, lines[0], r[2])
	}
	sb.WriteString(strings.TrimRight(first, " ") + "\n")
	pad := strings.Repeat(" ", len(indent)+left+1)
	for _, l := range lines[1:] {
		sb.WriteString(pad + l + "\n")
	}
}

// TerminalWidth is the column count of w when it is a terminal, 80
// otherwise.
func TerminalWidth(w io.Writer) int {
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

// IsTerminal reports whether w is an interactive terminal, which decides
// whether diagnostics are coloured.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if width <= 0 {
		return []string{strings.Join(words, " ")}
	}
	var lines []string
	line := words[0]
	for _, w := range words[1:] {
		if len(line)+1+len(w) > width {
			lines = append(lines, line)
			line = w
			continue
		}
		line += " " + w
	}
	return append(lines, line)
}
