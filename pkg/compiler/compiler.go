// Package compiler runs the BPL front end and code generator over one
// source file.
package compiler

import (
	"os"

	"github.com/tliron/commonlog"
	"github.com/xplshn/bplc/pkg/codegen"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/lexer"
	"github.com/xplshn/bplc/pkg/parser"
	"github.com/xplshn/bplc/pkg/sema"
	"github.com/xplshn/bplc/pkg/types"
	"github.com/xplshn/bplc/pkg/util"
)

var log = commonlog.GetLogger("bpl.compiler")

// Unit is a compiled source file together with what is needed to report on it.
type Unit struct {
	File    util.SourceFileRecord
	Program *codegen.Program
	Diags   *util.Diagnostics
}

// Compile compiles src. Warnings are collected in the returned unit even
// when compilation fails.
func Compile(name string, src string, cfg *config.Config) (*Unit, error) {
	u := &Unit{
		File:  util.SourceFileRecord{Name: name, Content: []rune(src)},
		Diags: util.NewDiagnostics(cfg),
	}

	log.Debugf("%s: lexing %d runes", name, len(u.File.Content))
	tokens, err := lexer.NewLexer(u.File.Content, 0, cfg, u.Diags).Tokenize()
	if err != nil {
		return u, err
	}

	root, err := parser.NewParser(tokens, u.File.Content, cfg).Parse()
	if err != nil {
		return u, err
	}

	reg := types.NewRegistry()
	funcs, err := sema.Resolve(root, reg)
	if err != nil {
		return u, err
	}
	log.Debugf("%s: %d functions declared", name, len(funcs.All()))

	prog, err := codegen.NewGenerator(cfg, u.Diags, reg, funcs).Generate(root)
	if err != nil {
		return u, err
	}
	u.Program = prog
	if n := len(u.Diags.Warnings); n > 0 {
		log.Infof("%s: compiled with %d warnings", name, n)
	}
	return u, nil
}

// CompileFile reads and compiles the file at path.
func CompileFile(path string, cfg *config.Config) (*Unit, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Compile(path, string(src), cfg)
}

// Reporter returns a reporter bound to the unit's source.
func (u *Unit) Reporter(color bool) *util.Reporter {
	return &util.Reporter{Files: []util.SourceFileRecord{u.File}, Color: color}
}
