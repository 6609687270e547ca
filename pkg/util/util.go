package util

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/token"
)

// ErrorKind classifies compile-time failures.
type ErrorKind int

const (
	ErrSyntax ErrorKind = iota
	ErrFuncRedeclared
	ErrSymRedeclared
	ErrFuncUndeclared
	ErrSymUndeclared
	ErrTypeUndeclared
	ErrWrongNumArgs
	ErrWrongArgTypes
	ErrTypeMismatch
	ErrReturnMissing
	ErrStatementUnreachable
	ErrInvalidDereference
	ErrUnaddressable
	ErrUnassignable
	ErrVoidAsValue
	ErrMainMissing
	ErrMainOverloaded
	ErrFeatureDisabled
	ErrInternal
)

var kindNames = [...]string{
	ErrSyntax:               "syntax",
	ErrFuncRedeclared:       "func-redeclared",
	ErrSymRedeclared:        "sym-redeclared",
	ErrFuncUndeclared:       "func-undeclared",
	ErrSymUndeclared:        "sym-undeclared",
	ErrTypeUndeclared:       "type-undeclared",
	ErrWrongNumArgs:         "wrong-num-args",
	ErrWrongArgTypes:        "wrong-arg-types",
	ErrTypeMismatch:         "type-mismatch",
	ErrReturnMissing:        "return-missing",
	ErrStatementUnreachable: "statement-unreachable",
	ErrInvalidDereference:   "invalid-dereference",
	ErrUnaddressable:        "unaddressable",
	ErrUnassignable:         "unassignable",
	ErrVoidAsValue:          "void-as-value",
	ErrMainMissing:          "main-missing",
	ErrMainOverloaded:       "main-overloaded",
	ErrFeatureDisabled:      "feature-disabled",
	ErrInternal:             "internal",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// CompileError is the single error value every compiler pass returns.
type CompileError struct {
	Kind ErrorKind
	Tok  token.Token
	Msg  string
	// Arities is set for ErrWrongNumArgs: the declared parameter counts, ascending.
	Arities []int
}

func (e *CompileError) Error() string {
	if e.Tok.Line == 0 {
		return "error: " + e.Msg
	}
	return fmt.Sprintf("%d:%d: error: %s", e.Tok.Line, e.Tok.Column, e.Msg)
}

// Errorf builds a CompileError positioned at tok.
func Errorf(kind ErrorKind, tok token.Token, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of a compile error anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return 0, false
}

type Warning struct {
	Kind config.Warning
	Name string
	Tok  token.Token
	Msg  string
}

func (w *Warning) String() string {
	return fmt.Sprintf("%d:%d: warning: %s [-W%s]", w.Tok.Line, w.Tok.Column, w.Msg, w.Name)
}

// Diagnostics collects the warnings raised while compiling.
type Diagnostics struct {
	cfg      *config.Config
	Warnings []*Warning
}

func NewDiagnostics(cfg *config.Config) *Diagnostics {
	return &Diagnostics{cfg: cfg}
}

// Warn records a warning if it is enabled. A nil receiver discards it.
func (d *Diagnostics) Warn(wt config.Warning, tok token.Token, format string, args ...any) {
	if d == nil || d.cfg == nil || !d.cfg.IsWarningEnabled(wt) {
		return
	}
	d.Warnings = append(d.Warnings, &Warning{
		Kind: wt,
		Name: d.cfg.Warnings[wt].Name,
		Tok:  tok,
		Msg:  fmt.Sprintf(format, args...),
	})
}

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

// Reporter renders diagnostics against the source they came from.
type Reporter struct {
	Files []SourceFileRecord
	Color bool
}

func (r *Reporter) paint(code, s string) string {
	if !r.Color {
		return s
	}
	return code + s + "\033[0m"
}

// findFileAndLine converts a token to a file-specific location
func (r *Reporter) findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.Files) {
		return "unknown", tok.Line, tok.Column
	}
	return r.Files[tok.FileIndex].Name, tok.Line, tok.Column
}

// printErrorLine prints the source line and a caret indicating the error position
func (r *Reporter) printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(r.Files) || tok.Line == 0 {
		return
	}

	content := r.Files[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, ch := range content {
		if lineNum <= 1 {
			break
		}
		if ch == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))

	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", max(tok.Column-1, 0)), r.paint("\033[32m", caret))
}

// Error prints err. Compile errors get a file position and a caret line.
func (r *Reporter) Error(w io.Writer, err error) {
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Tok.Line == 0 {
		fmt.Fprintf(w, "%s %v\n", r.paint("\033[31m", "error:"), unwrapMsg(err))
		return
	}
	filename, line, col := r.findFileAndLine(ce.Tok)
	fmt.Fprintf(w, "%s:%d:%d: %s %s\n", filename, line, col, r.paint("\033[31m", "error:"), ce.Msg)
	r.printErrorLine(w, ce.Tok)
}

func unwrapMsg(err error) string {
	var ce *CompileError
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return err.Error()
}

// Warnings prints every collected warning.
func (r *Reporter) Warnings(w io.Writer, d *Diagnostics) {
	if d == nil {
		return
	}
	for _, wn := range d.Warnings {
		filename, line, col := r.findFileAndLine(wn.Tok)
		fmt.Fprintf(w, "%s:%d:%d: %s %s [-W%s]\n", filename, line, col, r.paint("\033[33m", "warning:"), wn.Msg, wn.Name)
		r.printErrorLine(w, wn.Tok)
	}
}

// Compact returns src[start:end] with whitespace removed outside string literals.
func Compact(src []rune, start, end int) string {
	if start < 0 {
		start = 0
	}
	if end > len(src) {
		end = len(src)
	}
	var sb strings.Builder
	inString, escaped := false, false
	for _, ch := range src[start:max(start, end)] {
		switch {
		case inString:
			sb.WriteRune(ch)
			if escaped {
				escaped = false
			} else if ch == '\\' {
				escaped = true
			} else if ch == '"' {
				inString = false
			}
		case ch == '"':
			inString = true
			sb.WriteRune(ch)
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
		default:
			sb.WriteRune(ch)
		}
	}
	return sb.String()
}
