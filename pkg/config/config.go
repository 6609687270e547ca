package config

import (
	"fmt"
	"strings"
)

type Feature int

const (
	FeatShortDecl Feature = iota
	FeatDefer
	FeatPointers
	FeatCEsc
	FeatCount
)

type Warning int

const (
	WarnOverflow Warning = iota
	WarnUnrecognizedEscape
	WarnShadow
	WarnDiscardedValue
	WarnExtra
	WarnCount
)

type Info struct {
	Name        string
	Enabled     bool
	Description string
}

// DefaultMaxStack is the number of tagged entries the VM stack may hold.
const DefaultMaxStack = 0xffff

type Config struct {
	Features   map[Feature]Info
	Warnings   map[Warning]Info
	FeatureMap map[string]Feature
	WarningMap map[string]Warning

	MaxStack      int
	CheckOverflow bool
	StepLimit     int64
	Trace         bool

	// Unknown collects flags that matched neither table.
	Unknown []string
}

func NewConfig() *Config {
	cfg := &Config{
		Features:   make(map[Feature]Info),
		Warnings:   make(map[Warning]Info),
		FeatureMap: make(map[string]Feature),
		WarningMap: make(map[string]Warning),
		MaxStack:   DefaultMaxStack,
	}

	features := map[Feature]Info{
		FeatShortDecl: {"short-decl", true, "Enable short declarations `x := expr`."},
		FeatDefer:     {"defer", true, "Allow `defer` statements."},
		FeatPointers:  {"pointers", true, "Allow pointer types and the '&'/'*' operators."},
		FeatCEsc:      {"c-esc", true, "Recognize C-style '\\' escapes in string literals."},
	}

	warnings := map[Warning]Info{
		WarnOverflow:           {"overflow", true, "Warn when an integer literal does not fit in a signed 64-bit word."},
		WarnUnrecognizedEscape: {"u-esc", true, "Warn on unrecognized escape sequences."},
		WarnShadow:             {"shadow", false, "Warn when a declaration shadows a symbol from an enclosing scope."},
		WarnDiscardedValue:     {"discarded-value", false, "Warn when the result of a non-void call is discarded."},
		WarnExtra:              {"extra", true, "Enable extra miscellaneous warnings."},
	}

	cfg.Features, cfg.Warnings = features, warnings
	for ft, info := range features {
		cfg.FeatureMap[info.Name] = ft
	}
	for wt, info := range warnings {
		cfg.WarningMap[info.Name] = wt
	}

	return cfg
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

// splitFlag breaks "-Wno-shadow" into ('W', "shadow", false).
func splitFlag(flag string) (class byte, name string, enable bool) {
	body := strings.TrimPrefix(flag, "-")
	if body == "" {
		return 0, "", false
	}
	class, body = body[0], body[1:]
	name, negated := strings.CutPrefix(body, "no-")
	return class, name, !negated
}

// ApplyFlag applies a single -W/-F style flag. It reports whether the flag was recognized.
func (c *Config) ApplyFlag(flag string) bool {
	class, name, enable := splitFlag(flag)
	switch class {
	case 'W':
		if name == "all" {
			for wt := range c.Warnings {
				c.SetWarning(wt, enable)
			}
			return true
		}
		if wt, ok := c.WarningMap[name]; ok {
			c.SetWarning(wt, enable)
			return true
		}
	case 'F':
		if ft, ok := c.FeatureMap[name]; ok {
			c.SetFeature(ft, enable)
			return true
		}
	}
	c.Unknown = append(c.Unknown, flag)
	return false
}

// ProcessFlags applies -Wall/-Wno-all first so that specific flags can override them.
func (c *Config) ProcessFlags(flags []string) {
	isAll := func(f string) bool {
		class, name, _ := splitFlag(f)
		return class == 'W' && name == "all"
	}
	for _, f := range flags {
		if isAll(f) {
			c.ApplyFlag(f)
		}
	}
	for _, f := range flags {
		if !isAll(f) {
			c.ApplyFlag(f)
		}
	}
}

func (c *Config) String() string {
	var sb strings.Builder
	for i := Feature(0); i < FeatCount; i++ {
		info := c.Features[i]
		fmt.Fprintf(&sb, "feature %-16s %v\n", info.Name, info.Enabled)
	}
	for i := Warning(0); i < WarnCount; i++ {
		info := c.Warnings[i]
		fmt.Fprintf(&sb, "warning %-16s %v\n", info.Name, info.Enabled)
	}
	fmt.Fprintf(&sb, "vm max-stack=%d check-overflow=%v step-limit=%d trace=%v\n", c.MaxStack, c.CheckOverflow, c.StepLimit, c.Trace)
	return sb.String()
}
