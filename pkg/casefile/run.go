package casefile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/bplc/pkg/compiler"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/vm"
)

// DefaultStepLimit keeps a broken loop from hanging a test run.
const DefaultStepLimit = 1 << 24

// Result is what compiling and running a case produced.
type Result struct {
	Output       string
	Exit         int64
	CompileError error
	RuntimeError error
}

// Execute compiles and runs tc in memory.
func Execute(tc *TestCase) Result {
	cfg := config.NewConfig()
	cfg.StepLimit = DefaultStepLimit
	cfg.ProcessFlags(tc.Flags)

	unit, err := compiler.Compile(tc.Name, tc.Source(), cfg)
	if err != nil {
		return Result{CompileError: err}
	}
	var out bytes.Buffer
	exit, err := vm.Run(unit.Program.Code, &out, vm.OptionsFromConfig(cfg))
	return Result{Output: out.String(), Exit: exit, RuntimeError: err}
}

// Verify checks res against every assertion of tc and describes each
// failed one. A case without an error assertion must not fail.
func Verify(tc *TestCase, res Result) []string {
	var problems []string
	wantCompileErr, wantRuntimeErr := false, false
	for _, a := range tc.Assertions {
		switch a.Type {
		case AssertOutput:
			if res.CompileError == nil && res.Output != a.Content {
				problems = append(problems, fmt.Sprintf("output: have %q want %q", res.Output, a.Content))
			}
		case AssertExit:
			want, _ := strconv.ParseInt(a.Content, 0, 64)
			if res.CompileError == nil && res.RuntimeError == nil && res.Exit != want {
				problems = append(problems, fmt.Sprintf("exit: have %d want %d", res.Exit, want))
			}
		case AssertCompileError:
			wantCompileErr = true
			problems = append(problems, matchError("compile error", res.CompileError, a.Content)...)
		case AssertRuntimeError:
			wantRuntimeErr = true
			problems = append(problems, matchError("runtime error", res.RuntimeError, a.Content)...)
		}
	}
	if !wantCompileErr && res.CompileError != nil {
		problems = append(problems, fmt.Sprintf("unexpected compile error: %v", res.CompileError))
	}
	if !wantRuntimeErr && res.RuntimeError != nil {
		problems = append(problems, fmt.Sprintf("unexpected runtime error: %v", res.RuntimeError))
	}
	return problems
}

func matchError(what string, err error, want string) []string {
	if err == nil {
		return []string{fmt.Sprintf("%s: none, want %q", what, want)}
	}
	if !strings.Contains(err.Error(), want) {
		return []string{fmt.Sprintf("%s: have %q want %q", what, err.Error(), want)}
	}
	return nil
}
