package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

type opts struct {
	output   string
	run      bool
	limit    int64
	warnings []string
	features []string
	flags    []string
}

func newFlagSet(o *opts) *FlagSet {
	fs := NewFlagSet("bplc")
	fs.String(&o.output, "output", "o", "a.bpli", "Place the output into <file>.", "file")
	fs.Bool(&o.run, "run", "r", false, "Run the program after compiling it.")
	fs.Int(&o.limit, "step-limit", "", 0, "Abort after <n> instructions.", "n")
	fs.List(&o.flags, "flag", "", nil, "Extra flag.", "flag")
	fs.Prefix(&o.warnings, "W", "Enable or disable a warning.", "warning")
	fs.Prefix(&o.features, "F", "Enable or disable a feature.", "feature")
	return fs
}

func TestParse(t *testing.T) {
	var o opts
	fs := newFlagSet(&o)
	err := fs.Parse([]string{
		"-Wall", "--step-limit=0x10", "-oprog.bpli", "-r", "a.bpl",
		"-Fno-defer", "--flag", "x", "--flag=y", "-Wno-shadow", "--", "-W", "b.bpl",
	})
	be.Err(t, err, nil)
	be.Equal(t, o.output, "prog.bpli")
	be.True(t, o.run)
	be.Equal(t, o.limit, int64(16))
	be.Equal(t, o.warnings, []string{"all", "no-shadow"})
	be.Equal(t, o.features, []string{"no-defer"})
	be.Equal(t, o.flags, []string{"x", "y"})
	be.Equal(t, fs.Args(), []string{"a.bpl", "-W", "b.bpl"})

	be.True(t, fs.Changed("output"))
	be.True(t, fs.Changed("step-limit"))
	be.True(t, !fs.Changed("help"))
	be.Equal(t, fs.Lookup("output").DefValue, "a.bpli")
}

func TestParseDefaults(t *testing.T) {
	var o opts
	fs := newFlagSet(&o)
	be.Err(t, fs.Parse([]string{"-", "x.bpl"}), nil)
	be.Equal(t, o.output, "a.bpli")
	be.True(t, !o.run)
	be.Equal(t, o.warnings, []string{})
	be.Equal(t, fs.Args(), []string{"-", "x.bpl"})
	be.True(t, !fs.Changed("output"))
}

func TestParseSeparateValue(t *testing.T) {
	var o opts
	fs := newFlagSet(&o)
	be.Err(t, fs.Parse([]string{"-o", "out.bpli", "--run=false", "--output", "last.bpli"}), nil)
	be.Equal(t, o.output, "last.bpli")
	be.True(t, !o.run)
	be.True(t, fs.Changed("run"))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		args []string
		msg  string
	}{
		{[]string{"--nope"}, "unknown flag: --nope"},
		{[]string{"-x"}, "unknown flag: -x"},
		{[]string{"--output"}, "flag needs an argument: --output"},
		{[]string{"--step-limit=ten"}, "--step-limit=ten: invalid integer value 'ten'"},
		{[]string{"--run=maybe"}, "--run=maybe: invalid boolean value 'maybe'"},
	}
	for _, tt := range tests {
		var o opts
		err := newFlagSet(&o).Parse(tt.args)
		be.True(t, err != nil)
		be.True(t, strings.HasPrefix(err.Error(), tt.msg))
	}
}

func TestRedefinitionPanics(t *testing.T) {
	var o opts
	fs := newFlagSet(&o)
	defer func() { be.True(t, recover() != nil) }()
	fs.Bool(&o.run, "run", "", false, "again")
}

func TestAppRun(t *testing.T) {
	var o opts
	var got []string
	app := NewApp("bplc")
	app.FlagSet = newFlagSet(&o)
	app.Action = func(args []string) error {
		got = args
		return nil
	}
	be.Err(t, app.Run([]string{"-r", "main.bpl"}), nil)
	be.Equal(t, got, []string{"main.bpl"})
	be.True(t, o.run)
}

func TestHelp(t *testing.T) {
	var o opts
	app := NewApp("bplc")
	app.Synopsis = "[options] <file.bpl>"
	app.Description = "Compile and run BPL programs."
	app.FlagSet = newFlagSet(&o)
	app.FlagSet.AddGroup(FlagGroup{
		Name:   "Warning Flags",
		Prefix: "W",
		Kind:   "warning",
		Entries: []GroupEntry{
			{Name: "shadow", Usage: "Warn on shadowing.", Enabled: false},
			{Name: "overflow", Usage: "Warn on overflowing literals.", Enabled: true},
		},
	})

	var buf bytes.Buffer
	app.Help(&buf)
	help := buf.String()
	be.True(t, strings.Contains(help, "bplc [options] <file.bpl>\n"))
	be.True(t, strings.Contains(help, "-o, --output <file>"))
	be.True(t, strings.Contains(help, "|a.bpli|"))
	be.True(t, strings.Contains(help, "-r, --run"))
	be.True(t, strings.Contains(help, "-Wno-<warning>"))
	be.True(t, !strings.Contains(help, "--W "))

	over := strings.Index(help, "overflow")
	shadow := strings.Index(help, "shadow ")
	be.True(t, over > 0 && over < shadow)
	be.True(t, strings.Contains(help[over:], "|x|"))

	buf.Reset()
	app.Usage(&buf)
	be.Equal(t, buf.String(), "Usage: bplc [options] <file.bpl>\nRun 'bplc --help' for all available options and flags.\n")
}

func TestWrapText(t *testing.T) {
	be.Equal(t, wrapText("one two three four", 9), []string{"one two", "three", "four"})
	be.Equal(t, len(wrapText("", 10)), 0)
}
