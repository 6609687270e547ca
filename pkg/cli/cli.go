// Package cli is the small flag parser and help renderer shared by the bplc
// command line tools.
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

func (v *stringValue) Set(s string) error { *v.p = s; return nil }
func (v *stringValue) String() string     { return *v.p }

type boolValue struct{ p *bool }

func (v *boolValue) Set(s string) error {
	if s == "" {
		*v.p = true
		return nil
	}
	val, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *boolValue) String() string { return strconv.FormatBool(*v.p) }

type intValue struct{ p *int64 }

func (v *intValue) Set(s string) error {
	val, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return fmt.Errorf("invalid integer value '%s': %w", s, err)
	}
	*v.p = val
	return nil
}
func (v *intValue) String() string { return strconv.FormatInt(*v.p, 10) }

type listValue struct{ p *[]string }

func (v *listValue) Set(s string) error { *v.p = append(*v.p, s); return nil }
func (v *listValue) String() string     { return strings.Join(*v.p, ", ") }

type Flag struct {
	Name         string
	Shorthand    string
	Usage        string
	Value        Value
	DefValue     string
	ExpectedType string
	// Set records whether the flag appeared on the command line.
	Set bool
}

func (fl *Flag) isBool() bool {
	_, ok := fl.Value.(*boolValue)
	return ok
}

// FlagGroup documents a family of prefixed flags such as -W<warning>.
type FlagGroup struct {
	Name    string
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
	name       string
	flags      map[string]*Flag
	shorthands map[string]*Flag
	prefixes   map[string]*Flag
	groups     []FlagGroup
	args       []string
}

func NewFlagSet(name string) *FlagSet {
	return &FlagSet{
		name:       name,
		flags:      make(map[string]*Flag),
		shorthands: make(map[string]*Flag),
		prefixes:   make(map[string]*Flag),
	}
}

func (f *FlagSet) Args() []string { return f.args }

func (f *FlagSet) Lookup(name string) *Flag { return f.flags[name] }

// Changed reports whether the named flag was given on the command line.
func (f *FlagSet) Changed(name string) bool {
	fl, ok := f.flags[name]
	return ok && fl.Set
}

func (f *FlagSet) String(p *string, name, shorthand, value, usage, expectedType string) {
	*p = value
	f.Var(&stringValue{p}, name, shorthand, usage, value, expectedType)
}

func (f *FlagSet) Bool(p *bool, name, shorthand string, value bool, usage string) {
	*p = value
	f.Var(&boolValue{p}, name, shorthand, usage, strconv.FormatBool(value), "")
}

func (f *FlagSet) Int(p *int64, name, shorthand string, value int64, usage, expectedType string) {
	*p = value
	f.Var(&intValue{p}, name, shorthand, usage, strconv.FormatInt(value, 10), expectedType)
}

func (f *FlagSet) List(p *[]string, name, shorthand string, value []string, usage, expectedType string) {
	*p = value
	f.Var(&listValue{p}, name, shorthand, usage, "", expectedType)
}

// Prefix collects every argument of the form -<prefix><value>, e.g. -Wall.
func (f *FlagSet) Prefix(p *[]string, prefix, usage, expectedType string) {
	*p = []string{}
	f.Var(&listValue{p}, prefix, "", usage, "", expectedType)
	f.prefixes[prefix] = f.flags[prefix]
}

// AddGroup documents a prefixed flag family in the help page.
func (f *FlagSet) AddGroup(g FlagGroup) { f.groups = append(f.groups, g) }

func (f *FlagSet) Var(value Value, name, shorthand, usage, defValue, expectedType string) {
	if name == "" {
		panic("flag name cannot be empty")
	}
	if _, ok := f.flags[name]; ok {
		panic(fmt.Sprintf("flag redefined: %s", name))
	}
	fl := &Flag{Name: name, Shorthand: shorthand, Usage: usage, Value: value, DefValue: defValue, ExpectedType: expectedType}
	f.flags[name] = fl
	if shorthand != "" {
		if _, ok := f.shorthands[shorthand]; ok {
			panic(fmt.Sprintf("shorthand flag redefined: %s", shorthand))
		}
		f.shorthands[shorthand] = fl
	}
}

func (f *FlagSet) Parse(arguments []string) error {
	f.args = []string{}
	for i := 0; i < len(arguments); i++ {
		arg := arguments[i]
		switch {
		case arg == "--":
			f.args = append(f.args, arguments[i+1:]...)
			return nil
		case len(arg) < 2 || arg[0] != '-':
			f.args = append(f.args, arg)
			continue
		}

		long := strings.HasPrefix(arg, "--")
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		fl, ok := f.flags[name]
		if !ok && !long {
			if fl, value, ok = f.matchShort(arg); ok {
				hasValue = value != ""
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
		fl.Set = true
	}
	return nil
}

// matchShort resolves prefix flags (-Wall) and shorthands with an
// attached value (-oout.bpli).
func (f *FlagSet) matchShort(arg string) (*Flag, string, bool) {
	for prefix, fl := range f.prefixes {
		if strings.HasPrefix(arg, "-"+prefix) && len(arg) > len(prefix)+1 {
			return fl, arg[len(prefix)+1:], true
		}
	}
	fl, ok := f.shorthands[arg[1:2]]
	if !ok {
		return nil, "", false
	}
	return fl, arg[2:], true
}

type App struct {
	Name        string
	Synopsis    string
	Description string
	Authors     []string
	Repository  string
	FlagSet     *FlagSet
	Action      func(args []string) error
}

func NewApp(name string) *App {
	return &App{Name: name, FlagSet: NewFlagSet(name)}
}

func (a *App) Run(arguments []string) error {
	help := false
	a.FlagSet.Bool(&help, "help", "h", false, "Display this information.")

	if err := a.FlagSet.Parse(arguments); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", a.Name, err)
		a.Usage(os.Stderr)
		return err
	}
	if help {
		a.Help(os.Stdout)
		return nil
	}
	if a.Action != nil {
		return a.Action(a.FlagSet.Args())
	}
	return nil
}

// Usage writes the short usage text shown after a flag error.
func (a *App) Usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s %s\n", a.Name, a.Synopsis)
	fmt.Fprintf(w, "Run '%s --help' for all available options and flags.\n", a.Name)
}

// Help writes the full help page.
func (a *App) Help(w io.Writer) {
	var sb strings.Builder
	width := terminalWidth()
	flags := a.options()
	left := 0
	for _, fl := range flags {
		left = max(left, len(flagString(fl)))
	}
	for _, g := range a.FlagSet.groups {
		left = max(left, len(fmt.Sprintf("-%sno-<%s>", g.Prefix, g.Kind)))
	}

	if len(a.Authors) > 0 {
		fmt.Fprintf(&sb, "\n%sCopyright (c): %s and contributors\n", indent(1), strings.Join(a.Authors, ", "))
	}
	if a.Repository != "" {
		fmt.Fprintf(&sb, "%sFor more details refer to %s\n", indent(1), a.Repository)
	}
	fmt.Fprintf(&sb, "\n%sSynopsis\n%s%s %s\n", indent(1), indent(2), a.Name, a.Synopsis)
	if a.Description != "" {
		fmt.Fprintf(&sb, "\n%sDescription\n", indent(1))
		for _, line := range wrapText(a.Description, width-len(indent(2))) {
			fmt.Fprintf(&sb, "%s%s\n", indent(2), line)
		}
	}

	fmt.Fprintf(&sb, "\n%sOptions\n", indent(1))
	for _, fl := range flags {
		right := ""
		if !fl.isBool() && fl.DefValue != "" && fl.DefValue != "0" {
			right = "|" + fl.DefValue + "|"
		}
		writeEntry(&sb, width, left, flagString(fl), fl.Usage, right)
	}

	for _, g := range a.FlagSet.groups {
		fmt.Fprintf(&sb, "\n%s%s\n", indent(1), g.Name)
		writeEntry(&sb, width, left, fmt.Sprintf("-%s<%s>", g.Prefix, g.Kind), "Enable a specific "+g.Kind+".", "")
		writeEntry(&sb, width, left, fmt.Sprintf("-%sno-<%s>", g.Prefix, g.Kind), "Disable a specific "+g.Kind+".", "")
		entries := append([]GroupEntry(nil), g.Entries...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
		for _, e := range entries {
			mark := "|-|"
			if e.Enabled {
				mark = "|x|"
			}
			writeEntry(&sb, width, left, e.Name, e.Usage, mark)
		}
	}
	fmt.Fprint(w, sb.String())
}

func (a *App) options() []*Flag {
	var res []*Flag
	for _, fl := range a.FlagSet.flags {
		if _, ok := a.FlagSet.prefixes[fl.Name]; !ok {
			res = append(res, fl)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res
}

func flagString(fl *Flag) string {
	var sb strings.Builder
	if fl.Shorthand != "" {
		fmt.Fprintf(&sb, "-%s, ", fl.Shorthand)
	}
	fmt.Fprintf(&sb, "--%s", fl.Name)
	if !fl.isBool() && fl.ExpectedType != "" {
		fmt.Fprintf(&sb, " <%s>", fl.ExpectedType)
	}
	return sb.String()
}

func indent(level int) string { return strings.Repeat(" ", 4*level) }

func writeEntry(sb *strings.Builder, width, left int, name, usage, right string) {
	avail := max(width-len(indent(2))-left-len(right)-3, 10)
	lines := wrapText(usage, avail)
	if len(lines) == 0 {
		lines = []string{""}
	}
	if right != "" {
		fmt.Fprintf(sb, "%s%-*s %-*s  %s\n", indent(2), left, name, avail, lines[0], right)
	} else {
		fmt.Fprintf(sb, "%s%-*s %s\n", indent(2), left, name, lines[0])
	}
	for _, l := range lines[1:] {
		fmt.Fprintf(sb, "%s%s %s\n", indent(2), strings.Repeat(" ", left), l)
	}
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		return 80
	}
	return max(width, 20)
}

func wrapText(text string, maxWidth int) []string {
	words := strings.Fields(text)
	if maxWidth <= 0 || len(words) == 0 {
		return words
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > maxWidth {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
