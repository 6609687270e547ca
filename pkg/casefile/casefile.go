// Package casefile reads BPL test cases written as Markdown.
//
// Every heading of the form "Test: <name>" starts a case. The case takes
// one program fence and any number of assertion fences:
//
//	```bpl            a complete program
//	```bpl-main       statements wrapped in `func main() int { ... return 0; }`
//	```flags          -W/-F flags, one per line
//	```output         expected print output
//	```exit           expected exit code
//	```compile-error  substring of the expected compile error
//	```runtime-error  substring of the expected runtime error
package casefile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type InputType string

const (
	InputProgram InputType = "bpl"
	InputMain    InputType = "bpl-main"
)

type AssertionType string

const (
	AssertOutput       AssertionType = "output"
	AssertExit         AssertionType = "exit"
	AssertCompileError AssertionType = "compile-error"
	AssertRuntimeError AssertionType = "runtime-error"
)

const fenceFlags = "flags"

type Assertion struct {
	Type    AssertionType
	Content string
}

type TestCase struct {
	Name       string
	Line       int
	Input      string
	InputType  InputType
	Flags      []string
	Assertions []Assertion
}

// Source returns the program text the case compiles.
func (tc *TestCase) Source() string {
	if tc.InputType == InputMain {
		return WrapMain(tc.Input)
	}
	return tc.Input
}

// WrapMain places stmts on the second line of a main function returning 0.
func WrapMain(stmts string) string {
	return "func main() int {\n" + stmts + "\nreturn 0;\n}"
}

// Extract parses a Markdown document and returns its test cases in order.
func Extract(markdown []byte) ([]TestCase, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(markdown))

	var cases []TestCase
	var cur *TestCase
	flush := func() error {
		if cur == nil {
			return nil
		}
		if err := validate(cur); err != nil {
			return err
		}
		cases = append(cases, *cur)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			title := headingText(n, markdown)
			if !strings.HasPrefix(title, "Test: ") {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			cur = &TestCase{Name: strings.TrimPrefix(title, "Test: "), Line: lineOf(n, markdown)}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(markdown))
			body := fenceContent(n, markdown)
			line := lineOf(n, markdown)
			switch {
			case lang == "":
				return ast.WalkContinue, nil
			case cur == nil:
				return ast.WalkStop, fmt.Errorf("line %d: %s fence outside of a test case", line, lang)
			}
			if err := cur.add(lang, body, line); err != nil {
				return ast.WalkStop, err
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

func (tc *TestCase) add(lang, body string, line int) error {
	switch lang {
	case string(InputProgram), string(InputMain):
		if tc.Input != "" {
			return fmt.Errorf("line %d: multiple program fences in test '%s'", line, tc.Name)
		}
		tc.Input = strings.TrimRight(body, "\n")
		tc.InputType = InputType(lang)
	case fenceFlags:
		tc.Flags = append(tc.Flags, strings.Fields(body)...)
	case string(AssertExit):
		content := strings.TrimSpace(body)
		if _, err := strconv.ParseInt(content, 0, 64); err != nil {
			return fmt.Errorf("line %d: exit fence in test '%s' is not an integer: %q", line, tc.Name, content)
		}
		tc.Assertions = append(tc.Assertions, Assertion{Type: AssertExit, Content: content})
	case string(AssertOutput):
		// Output is compared exactly; only the fence's own trailing newline is dropped.
		tc.Assertions = append(tc.Assertions, Assertion{Type: AssertOutput, Content: strings.TrimSuffix(body, "\n")})
	case string(AssertCompileError), string(AssertRuntimeError):
		tc.Assertions = append(tc.Assertions, Assertion{Type: AssertionType(lang), Content: strings.TrimSpace(body)})
	default:
		return fmt.Errorf("line %d: unknown fence language '%s' in test '%s'", line, lang, tc.Name)
	}
	return nil
}

func validate(tc *TestCase) error {
	if tc.Input == "" {
		return fmt.Errorf("test '%s' has no program fence", tc.Name)
	}
	if len(tc.Assertions) == 0 {
		return fmt.Errorf("test '%s' has no assertion fences", tc.Name)
	}
	return nil
}

func headingText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := c.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(n *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return buf.String()
}

func lineOf(n ast.Node, source []byte) int {
	if n.Lines().Len() == 0 {
		return 1
	}
	start := n.Lines().At(0).Start
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}
