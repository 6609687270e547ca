package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/BurntSushi/toml"
)

// FileName is the project file picked up from the working directory.
const FileName = "bplc.toml"

// File mirrors the layout of a bplc.toml project file.
type File struct {
	Compiler CompilerSection `toml:"compiler"`
	VM       VMSection       `toml:"vm"`

	// Path is the file the settings were read from (set at load time).
	Path string `toml:"-"`
}

type CompilerSection struct {
	Flags []string `toml:"flags"`
}

type VMSection struct {
	MaxStack      *int   `toml:"max-stack"`
	CheckOverflow *bool  `toml:"check-overflow"`
	StepLimit     *int64 `toml:"step-limit"`
	Trace         *bool  `toml:"trace"`
}

// LoadFile parses a project file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// LoadDefault loads ./bplc.toml if it exists. A missing file is not an error.
func LoadDefault() (*File, error) {
	f, err := LoadFile(FileName)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return f, err
}

func ParseFile(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.VM.MaxStack != nil && *f.VM.MaxStack <= 0 {
		return nil, fmt.Errorf("vm.max-stack must be positive, got %d", *f.VM.MaxStack)
	}
	if f.VM.StepLimit != nil && *f.VM.StepLimit < 0 {
		return nil, fmt.Errorf("vm.step-limit must not be negative, got %d", *f.VM.StepLimit)
	}
	return &f, nil
}

// ApplyFile merges file settings into c. Command-line flags are applied afterwards and win.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.ProcessFlags(f.Compiler.Flags)
	if f.VM.MaxStack != nil {
		c.MaxStack = *f.VM.MaxStack
	}
	if f.VM.CheckOverflow != nil {
		c.CheckOverflow = *f.VM.CheckOverflow
	}
	if f.VM.StepLimit != nil {
		c.StepLimit = *f.VM.StepLimit
	}
	if f.VM.Trace != nil {
		c.Trace = *f.VM.Trace
	}
}
