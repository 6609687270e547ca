package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"github.com/xplshn/bplc/pkg/bytecode"
	"github.com/xplshn/bplc/pkg/cli"
	"github.com/xplshn/bplc/pkg/compiler"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/image"
	"github.com/xplshn/bplc/pkg/vm"
	"golang.org/x/term"
)

var log = commonlog.GetLogger("bplc")

// Exit codes used when the program itself did not produce one.
const (
	exitCompileError = 1
	exitRuntimeError = 2
)

func main() {
	app := cli.NewApp("bplc")
	app.Synopsis = "[options] <input.bpl|input.bpli>"
	app.Description = "Compiles a BPL program to bytecode and runs it on the stack VM. The process exits with the value main returns."
	app.Authors = []string{"xplshn"}
	app.Repository = "<https://github.com/xplshn/bplc>"

	var (
		outFile       string
		configPath    string
		dump          bool
		trace         bool
		checkOverflow bool
		verbose       bool
		debug         bool
		maxStack      int64
		stepLimit     int64
		warnFlags     []string
		featureFlags  []string
	)

	cfg := config.NewConfig()
	fs := app.FlagSet
	fs.String(&outFile, "output", "o", "", "Write the compiled image to <file> instead of running it.", "file")
	fs.String(&configPath, "config", "c", "", "Read settings from <file> instead of ./"+config.FileName+".", "file")
	fs.Bool(&dump, "dump", "d", false, "Print a disassembly of the program and exit.")
	fs.Bool(&trace, "trace", "t", false, "Trace every executed instruction and the stack to stderr.")
	fs.Bool(&checkOverflow, "check-overflow", "", false, "Fail on signed 64-bit overflow instead of wrapping.")
	fs.Int(&maxStack, "max-stack", "", int64(config.DefaultMaxStack), "Maximum number of VM stack entries.", "n")
	fs.Int(&stepLimit, "step-limit", "", 0, "Abort after <n> executed instructions (0 disables the limit).", "n")
	fs.Bool(&verbose, "verbose", "v", false, "Log compiler and VM progress.")
	fs.Bool(&debug, "debug", "", false, "Log compiler and VM internals.")
	fs.Prefix(&warnFlags, "W", "Enable or disable a warning.", "warning")
	fs.Prefix(&featureFlags, "F", "Enable or disable a language feature.", "feature")
	fs.AddGroup(warningGroup(cfg))
	fs.AddGroup(featureGroup(cfg))

	app.Action = func(args []string) error {
		switch {
		case debug:
			commonlog.Configure(2, nil)
		case verbose:
			commonlog.Configure(1, nil)
		default:
			commonlog.Configure(0, nil)
		}

		if len(args) != 1 {
			return fmt.Errorf("expected exactly one input file, got %d", len(args))
		}
		input := args[0]

		file, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		if file != nil {
			log.Infof("using settings from %s", file.Path)
		}
		cfg.ApplyFile(file)
		cfg.ProcessFlags(prefixed("W", warnFlags))
		cfg.ProcessFlags(prefixed("F", featureFlags))
		if cfg.IsWarningEnabled(config.WarnExtra) {
			for _, u := range cfg.Unknown {
				fmt.Fprintf(os.Stderr, "bplc: warning: unknown flag '%s' ignored [-Wextra]\n", u)
			}
		}
		if fs.Changed("check-overflow") {
			cfg.CheckOverflow = checkOverflow
		}
		if fs.Changed("max-stack") {
			cfg.MaxStack = int(maxStack)
		}
		if fs.Changed("step-limit") {
			cfg.StepLimit = stepLimit
		}
		if fs.Changed("trace") {
			cfg.Trace = trace
		}

		img, err := load(input, cfg)
		if err != nil {
			return err
		}

		switch {
		case dump:
			return bytecode.Dump(os.Stdout, img.Code, img.Labels())
		case outFile != "":
			if err := image.Write(outFile, img); err != nil {
				return err
			}
			log.Infof("wrote %s (%d bytes of code, %d functions)", outFile, len(img.Code), len(img.Funcs))
			return nil
		}

		opts := vm.OptionsFromConfig(cfg)
		if cfg.Trace {
			opts.Trace = os.Stderr
		}
		exit, err := vm.Run(img.Code, os.Stdout, opts)
		if err != nil {
			return &runtimeError{err}
		}
		log.Infof("%s exited with %d", input, exit)
		os.Exit(int(exit))
		return nil
	}

	if err := app.Run(os.Args[1:]); err != nil {
		var ce *compileError
		var re *runtimeError
		switch {
		case errors.As(err, &ce):
			os.Exit(exitCompileError)
		case errors.As(err, &re):
			fmt.Fprintf(os.Stderr, "bplc: runtime error: %v\n", re.err)
			os.Exit(exitRuntimeError)
		default:
			fmt.Fprintf(os.Stderr, "bplc: %v\n", err)
			os.Exit(exitCompileError)
		}
	}
}

type compileError struct{ err error }

func (e *compileError) Error() string { return e.err.Error() }
func (e *compileError) Unwrap() error { return e.err }

type runtimeError struct{ err error }

func (e *runtimeError) Error() string { return e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

// load compiles a source file or reads a previously written image.
func load(input string, cfg *config.Config) (*image.Image, error) {
	if filepath.Ext(input) == image.Ext {
		log.Infof("loading image %s", input)
		return image.Read(input)
	}
	unit, err := compiler.CompileFile(input, cfg)
	if unit == nil {
		return nil, err
	}
	rep := unit.Reporter(term.IsTerminal(int(os.Stderr.Fd())))
	rep.Warnings(os.Stderr, unit.Diags)
	if err != nil {
		rep.Error(os.Stderr, err)
		return nil, &compileError{err}
	}
	return image.FromProgram(unit.Program, input), nil
}

func loadConfig(path string) (*config.File, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadDefault()
}

func prefixed(prefix string, flags []string) []string {
	res := make([]string, len(flags))
	for i, f := range flags {
		res[i] = prefix + f
	}
	return res
}

func warningGroup(cfg *config.Config) cli.FlagGroup {
	g := cli.FlagGroup{Name: "Warnings", Prefix: "W", Kind: "warning"}
	for i := config.Warning(0); i < config.WarnCount; i++ {
		info := cfg.Warnings[i]
		g.Entries = append(g.Entries, cli.GroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	g.Entries = append(g.Entries, cli.GroupEntry{Name: "all", Usage: "Every warning above."})
	return g
}

func featureGroup(cfg *config.Config) cli.FlagGroup {
	g := cli.FlagGroup{Name: "Features", Prefix: "F", Kind: "feature"}
	for i := config.Feature(0); i < config.FeatCount; i++ {
		info := cfg.Features[i]
		g.Entries = append(g.Entries, cli.GroupEntry{Name: info.Name, Usage: info.Description, Enabled: info.Enabled})
	}
	return g
}
