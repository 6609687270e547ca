package casefile

import (
	"errors"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/bplc/pkg/util"
	"github.com/xplshn/bplc/pkg/vm"
)

const doc = "# Arithmetic\n" +
	"\n" +
	"Some prose.\n" +
	"\n" +
	"## Test: addition\n" +
	"\n" +
	"```bpl-main\n" +
	"print(1 + 2);\n" +
	"```\n" +
	"\n" +
	"```output\n" +
	"3\n" +
	"```\n" +
	"\n" +
	"## Test: exit code\n" +
	"\n" +
	"```bpl\n" +
	"func main() int { return 7; }\n" +
	"```\n" +
	"\n" +
	"```flags\n" +
	"-Wall -Fno-defer\n" +
	"-Wno-shadow\n" +
	"```\n" +
	"\n" +
	"```exit\n" +
	"7\n" +
	"```\n" +
	"\n" +
	"```output\n" +
	"\n" +
	"```\n" +
	"\n" +
	"```\n" +
	"untagged fences are ignored\n" +
	"```\n"

func TestExtract(t *testing.T) {
	cases, err := Extract([]byte(doc))
	be.Err(t, err, nil)
	be.Equal(t, len(cases), 2)

	add := cases[0]
	be.Equal(t, add.Name, "addition")
	be.Equal(t, add.Line, 5)
	be.Equal(t, add.InputType, InputMain)
	be.Equal(t, add.Input, "print(1 + 2);")
	be.Equal(t, add.Source(), "func main() int {\nprint(1 + 2);\nreturn 0;\n}")
	be.Equal(t, add.Assertions, []Assertion{{Type: AssertOutput, Content: "3"}})

	exit := cases[1]
	be.Equal(t, exit.Name, "exit code")
	be.Equal(t, exit.InputType, InputProgram)
	be.Equal(t, exit.Source(), "func main() int { return 7; }")
	be.Equal(t, exit.Flags, []string{"-Wall", "-Fno-defer", "-Wno-shadow"})
	be.Equal(t, exit.Assertions, []Assertion{
		{Type: AssertExit, Content: "7"},
		{Type: AssertOutput, Content: ""},
	})
}

func TestExtractErrors(t *testing.T) {
	tests := []struct {
		doc string
		msg string
	}{
		{"```bpl\nfunc main() int { return 0; }\n```\n", "line 2: bpl fence outside of a test case"},
		{"# Test: empty\n\n```output\n1\n```\n", "test 'empty' has no program fence"},
		{"# Test: bare\n\n```bpl-main\nprint(1);\n```\n", "test 'bare' has no assertion fences"},
		{"# Test: two\n\n```bpl-main\nprint(1);\n```\n\n```bpl\nx\n```\n", "multiple program fences in test 'two'"},
		{"# Test: lang\n\n```c\nint x;\n```\n", "unknown fence language 'c' in test 'lang'"},
		{"# Test: exit\n\n```bpl-main\nprint(1);\n```\n\n```exit\nzero\n```\n", `exit fence in test 'exit' is not an integer: "zero"`},
	}
	for _, tt := range tests {
		_, err := Extract([]byte(tt.doc))
		be.True(t, err != nil)
		be.True(t, strings.Contains(err.Error(), tt.msg))
	}
}

func TestExecute(t *testing.T) {
	cases, err := Extract([]byte(doc))
	be.Err(t, err, nil)

	res := Execute(&cases[0])
	be.Err(t, res.CompileError, nil)
	be.Err(t, res.RuntimeError, nil)
	be.Equal(t, res.Output, "3")
	be.Equal(t, Verify(&cases[0], res), []string(nil))

	res = Execute(&cases[1])
	be.Equal(t, res.Exit, int64(7))
	be.Equal(t, len(Verify(&cases[1], res)), 0)
}

func TestExecuteErrors(t *testing.T) {
	res := Execute(&TestCase{Name: "undeclared", InputType: InputMain, Input: "print(x);"})
	var ce *util.CompileError
	be.True(t, errors.As(res.CompileError, &ce))
	be.Equal(t, ce.Kind, util.ErrSymUndeclared)

	res = Execute(&TestCase{Name: "div", InputType: InputMain, Input: "x := 0;\nprint(1 / x);"})
	be.Err(t, res.CompileError, nil)
	be.True(t, errors.Is(res.RuntimeError, vm.DivisionByZero))

	res = Execute(&TestCase{Name: "loop", InputType: InputMain, Input: "while (1) { }"})
	be.True(t, errors.Is(res.RuntimeError, vm.StepLimit))

	res = Execute(&TestCase{Name: "flags", InputType: InputMain, Input: "defer print(1);", Flags: []string{"-Fno-defer"}})
	be.True(t, res.CompileError != nil)
}

func TestVerify(t *testing.T) {
	tc := &TestCase{
		Name: "all",
		Assertions: []Assertion{
			{Type: AssertOutput, Content: "ab"},
			{Type: AssertExit, Content: "0x10"},
		},
	}
	be.Equal(t, len(Verify(tc, Result{Output: "ab", Exit: 16})), 0)
	be.Equal(t, Verify(tc, Result{Output: "a", Exit: 1}), []string{
		`output: have "a" want "ab"`,
		"exit: have 1 want 16",
	})
	be.Equal(t, Verify(tc, Result{Output: "ab", Exit: 16, RuntimeError: vm.StepLimit}), []string{
		"unexpected runtime error: step limit exceeded",
	})

	tc = &TestCase{Name: "compile", Assertions: []Assertion{{Type: AssertCompileError, Content: "undeclared"}}}
	be.Equal(t, Verify(tc, Result{}), []string{`compile error: none, want "undeclared"`})
	be.Equal(t, len(Verify(tc, Result{CompileError: errors.New("1:7: error: symbol 'x' undeclared")})), 0)
	be.Equal(t, Verify(tc, Result{CompileError: errors.New("boom")}), []string{`compile error: have "boom" want "undeclared"`})

	tc = &TestCase{Name: "runtime", Assertions: []Assertion{
		{Type: AssertOutput, Content: "1"},
		{Type: AssertRuntimeError, Content: "division by zero"},
	}}
	be.Equal(t, len(Verify(tc, Result{Output: "1", RuntimeError: errors.New("00000030 IDIV: division by zero: 1 / 0")})), 0)
}
