package vm

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nalgeon/be"
	"github.com/xplshn/bplc/pkg/bytecode"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/types"
)

// mainEntry is where the body of the first function starts in a program
// without strings.
var mainEntry = bytecode.HeaderSize(0)

// assemble builds a program whose data segment holds strs and whose first
// function (main) is emitted by build.
func assemble(strs []string, build func(b *bytecode.Builder)) []byte {
	var data []byte
	for _, s := range strs {
		data = append(data, bytecode.EncodeString(s)...)
	}
	var b bytecode.Builder
	build(&b)
	code := bytecode.WriteHeader(nil, data, bytecode.HeaderSize(len(data)))
	return append(code, b.Bytes()...)
}

func run(t *testing.T, code []byte, opts Options) (string, int64, error) {
	t.Helper()
	var out bytes.Buffer
	exit, err := Run(code, &out, opts)
	return out.String(), exit, err
}

func TestExitCode(t *testing.T) {
	code := assemble(nil, func(b *bytecode.Builder) {
		b.OpI64(bytecode.IPUSH, 42)
		b.Op(bytecode.RET)
	})
	out, exit, err := run(t, code, Options{})
	be.Err(t, err, nil)
	be.Equal(t, out, "")
	be.Equal(t, exit, int64(42))
}

func TestArithmetic(t *testing.T) {
	tests := []struct {
		op   bytecode.Opcode
		l, r int64
		want string
	}{
		{bytecode.IADD, 1, 41, "2a"},
		{bytecode.ISUB, 8, 2, "6"},
		{bytecode.ISUB, 0, 1, "ffffffffffffffff"},
		{bytecode.IMUL, 6, 7, "2a"},
		{bytecode.IDIV, 8, 3, "2"},
		{bytecode.IDIV, -7, 2, "fffffffffffffffd"},
		{bytecode.ILT, 1, 2, "1"},
		{bytecode.IGT, 1, 2, "0"},
		{bytecode.ILTE, 2, 2, "1"},
		{bytecode.IGTE, 1, 2, "0"},
		{bytecode.IEQ, 3, 3, "1"},
		{bytecode.INEQ, 3, 3, "0"},
		{bytecode.IDIV, math.MinInt64, -1, "8000000000000000"},
		{bytecode.IADD, math.MaxInt64, 1, "8000000000000000"},
	}
	for _, tt := range tests {
		code := assemble(nil, func(b *bytecode.Builder) {
			b.OpI64(bytecode.IPUSH, tt.l)
			b.OpI64(bytecode.IPUSH, tt.r)
			b.Op(tt.op)
			b.OpU32(bytecode.PRINT, 1)
			b.OpI64(bytecode.IPUSH, 0)
			b.Op(bytecode.RET)
		})
		out, _, err := run(t, code, Options{})
		be.Err(t, err, nil)
		be.Equal(t, out, tt.want)
	}
}

func TestPrint(t *testing.T) {
	code := assemble([]string{"hi ", "!"}, func(b *bytecode.Builder) {
		b.OpU32x2(bytecode.SPUSH, uint32(types.TagString), 4)
		b.OpI64(bytecode.IPUSH, 255)
		b.OpU32x2(bytecode.SPUSH, uint32(types.TagString), 11)
		b.OpU32(bytecode.NPUSH, uint32(types.TagInt.Pointer()))
		b.OpU32(bytecode.PRINT, 4)
		b.OpI64(bytecode.IPUSH, 0)
		b.Op(bytecode.RET)
	})
	out, _, err := run(t, code, Options{})
	be.Err(t, err, nil)
	be.Equal(t, out, "hi ff!ffffffffffffffff")
}

func TestCallFrames(t *testing.T) {
	// main: IPUSH 2; IPUSH 3; CALL add, 2; RET
	addEntry := mainEntry + 2*bytecode.IPushSize + 9 + 1
	code := assemble(nil, func(b *bytecode.Builder) {
		b.OpI64(bytecode.IPUSH, 2)
		b.OpI64(bytecode.IPUSH, 3)
		b.OpU32x2(bytecode.CALL, uint32(addEntry), 2)
		b.Op(bytecode.RET)
		// add(a, b): a - b, so the argument order is visible
		b.OpI32(bytecode.LOAD, -5)
		b.OpI32(bytecode.LOAD, -4)
		b.Op(bytecode.ISUB)
		b.Op(bytecode.RET)
	})
	m, err := New(code, &bytes.Buffer{}, Options{})
	be.Err(t, err, nil)
	exit, err := m.Run()
	be.Err(t, err, nil)
	be.Equal(t, exit, int64(-1))
	be.Equal(t, m.Stack(), []Value{{V: -1, T: types.TagInt}})
}

func TestPointers(t *testing.T) {
	ptr := uint32(types.TagInt.Pointer())
	code := assemble(nil, func(b *bytecode.Builder) {
		b.OpU32(bytecode.LOCALS, 2)
		b.OpI64(bytecode.IPUSH, 7)
		b.OpI32(bytecode.STORE, 0)
		b.OpU32I32(bytecode.ADDR_OF, ptr, 0)
		b.OpI32(bytecode.STORE, 1)
		// *p = 9
		b.OpI64(bytecode.IPUSH, 9)
		b.OpI32(bytecode.LOAD, 1)
		b.Op(bytecode.RESOLVE)
		b.Op(bytecode.STOREI)
		// print(*p, x)
		b.OpI32(bytecode.LOAD, 1)
		b.Op(bytecode.VAL_OF)
		b.OpI32(bytecode.LOAD, 0)
		b.OpU32(bytecode.PRINT, 2)
		b.OpI32(bytecode.LOAD, 0)
		b.Op(bytecode.RET)
	})
	out, exit, err := run(t, code, Options{})
	be.Err(t, err, nil)
	be.Equal(t, out, "99")
	be.Equal(t, exit, int64(9))
}

func TestBranches(t *testing.T) {
	for _, tt := range []struct {
		op   bytecode.Opcode
		cond int64
		want int64
	}{
		{bytecode.BREQ, 0, 6},
		{bytecode.BREQ, 1, 5},
		{bytecode.BRNE, 0, 5},
		{bytecode.BRNE, 2, 6},
	} {
		code := assemble(nil, func(b *bytecode.Builder) {
			b.OpI64(bytecode.IPUSH, tt.cond)
			b.Jump(tt.op, bytecode.IPushSize+1)
			b.OpI64(bytecode.IPUSH, 5)
			b.Op(bytecode.RET)
			b.OpI64(bytecode.IPUSH, 6)
			b.Op(bytecode.RET)
		})
		_, exit, err := run(t, code, Options{})
		be.Err(t, err, nil)
		be.Equal(t, exit, tt.want)
	}
}

func TestRuntimeErrors(t *testing.T) {
	tests := []struct {
		name  string
		opts  Options
		build func(b *bytecode.Builder)
		kind  Kind
	}{
		{"division by zero", Options{}, func(b *bytecode.Builder) {
			b.OpI64(bytecode.IPUSH, 1)
			b.OpI64(bytecode.IPUSH, 0)
			b.Op(bytecode.IDIV)
		}, DivisionByZero},
		{"add overflow", Options{CheckOverflow: true}, func(b *bytecode.Builder) {
			b.OpI64(bytecode.IPUSH, math.MaxInt64)
			b.OpI64(bytecode.IPUSH, 1)
			b.Op(bytecode.IADD)
		}, ArithmeticOverflow},
		{"sub overflow", Options{CheckOverflow: true}, func(b *bytecode.Builder) {
			b.OpI64(bytecode.IPUSH, math.MinInt64)
			b.OpI64(bytecode.IPUSH, 1)
			b.Op(bytecode.ISUB)
		}, ArithmeticOverflow},
		{"mul overflow", Options{CheckOverflow: true}, func(b *bytecode.Builder) {
			b.OpI64(bytecode.IPUSH, math.MaxInt64/2+1)
			b.OpI64(bytecode.IPUSH, 2)
			b.Op(bytecode.IMUL)
		}, ArithmeticOverflow},
		{"div overflow", Options{CheckOverflow: true}, func(b *bytecode.Builder) {
			b.OpI64(bytecode.IPUSH, math.MinInt64)
			b.OpI64(bytecode.IPUSH, -1)
			b.Op(bytecode.IDIV)
		}, ArithmeticOverflow},
		{"stack overflow", Options{MaxStack: 16}, func(b *bytecode.Builder) {
			b.OpU32(bytecode.LOCALS, 100)
		}, StackOverflow},
		{"stack underflow", Options{}, func(b *bytecode.Builder) {
			for range 4 {
				b.Op(bytecode.POP)
			}
		}, StackUnderflow},
		{"print underflow", Options{}, func(b *bytecode.Builder) {
			b.OpU32(bytecode.PRINT, 5)
		}, StackUnderflow},
		{"illegal opcode", Options{}, func(b *bytecode.Builder) {
			b.Op(bytecode.Opcode(0x13))
		}, IllegalOpcode},
		{"jump out of code", Options{}, func(b *bytecode.Builder) {
			b.Jump(bytecode.JMP, 1000)
		}, IllegalAddress},
		{"call out of code", Options{}, func(b *bytecode.Builder) {
			b.OpU32x2(bytecode.CALL, 1000, 0)
		}, IllegalAddress},
		{"load out of stack", Options{}, func(b *bytecode.Builder) {
			b.OpI32(bytecode.LOAD, 10)
		}, IllegalAddress},
		{"null dereference", Options{}, func(b *bytecode.Builder) {
			b.OpU32(bytecode.NPUSH, uint32(types.TagInt.Pointer()))
			b.Op(bytecode.VAL_OF)
		}, IllegalAddress},
		{"bad string", Options{}, func(b *bytecode.Builder) {
			b.OpU32x2(bytecode.SPUSH, uint32(types.TagString), 5000)
			b.OpU32(bytecode.PRINT, 1)
		}, IllegalAddress},
		{"tag mismatch", Options{}, func(b *bytecode.Builder) {
			b.OpU32x2(bytecode.SPUSH, uint32(types.TagString), 4)
			b.OpI64(bytecode.IPUSH, 1)
			b.Op(bytecode.IADD)
		}, IllegalState},
		{"truncated operand", Options{}, func(b *bytecode.Builder) {
			b.Op(bytecode.IPUSH)
			b.Op(bytecode.NOP)
		}, IllegalAddress},
		{"step limit", Options{StepLimit: 100}, func(b *bytecode.Builder) {
			b.Jump(bytecode.JMP, -bytecode.JumpSize)
		}, StepLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, assemble(nil, tt.build), tt.opts)
			be.True(t, errors.Is(err, tt.kind))
			var rerr *Error
			be.True(t, errors.As(err, &rerr))
			be.Equal(t, rerr.Kind, tt.kind)
		})
	}
}

func TestErrorPosition(t *testing.T) {
	code := assemble(nil, func(b *bytecode.Builder) {
		b.OpI64(bytecode.IPUSH, 1)
		b.OpI64(bytecode.IPUSH, 0)
		b.Op(bytecode.IDIV)
	})
	_, _, err := run(t, code, Options{})
	var rerr *Error
	be.True(t, errors.As(err, &rerr))
	be.Equal(t, rerr.IP, mainEntry+2*bytecode.IPushSize)
	be.Equal(t, rerr.Op, bytecode.IDIV)
	be.Equal(t, err.Error(), "00000020 IDIV: division by zero: 1 / 0")
}

func TestOutputFlushedBeforeError(t *testing.T) {
	code := assemble(nil, func(b *bytecode.Builder) {
		b.OpI64(bytecode.IPUSH, 10)
		b.OpU32(bytecode.PRINT, 1)
		for range 4 {
			b.Op(bytecode.POP)
		}
	})
	out, _, err := run(t, code, Options{})
	be.True(t, errors.Is(err, StackUnderflow))
	be.Equal(t, out, "a")
}

func TestTrace(t *testing.T) {
	code := assemble(nil, func(b *bytecode.Builder) {
		b.OpI64(bytecode.IPUSH, 3)
		b.Op(bytecode.RET)
	})
	var trace bytes.Buffer
	_, exit, err := run(t, code, Options{Trace: &trace})
	be.Err(t, err, nil)
	be.Equal(t, exit, int64(3))

	lines := strings.Split(strings.TrimSuffix(trace.String(), "\n"), "\n")
	be.Equal(t, len(lines), 4)
	be.Equal(t, lines[0], "00000004  (0x34) CALL    [0xe, 0x0]  stack=[int:0x0, int:-0x1, int:0xd]")
	be.Equal(t, lines[1], "0000000e  (0x02) IPUSH   [0x3]  stack=[int:0x0, int:-0x1, int:0xd, int:0x3]")
	be.Equal(t, lines[2], "00000017  (0x35) RET     []  stack=[int:0x3]")
	be.Equal(t, lines[3], "0000000d  (0xff) HALT    []  stack=[int:0x3]")
}

var errTraceFull = errors.New("trace full")

// shortWriter accepts n writes and then fails.
type shortWriter struct{ n int }

func (w *shortWriter) Write(p []byte) (int, error) {
	if w.n == 0 {
		return 0, errTraceFull
	}
	w.n--
	return len(p), nil
}

func TestTraceWriteErrors(t *testing.T) {
	code := assemble(nil, func(b *bytecode.Builder) {
		b.OpI64(bytecode.IPUSH, 3)
		b.Op(bytecode.RET)
	})
	for n := range 4 {
		_, _, err := run(t, code, Options{Trace: &shortWriter{n: n}})
		be.True(t, errors.Is(err, errTraceFull))
	}

	// Four POPs reach below the frame; the fourth fails after its listing
	// is written, so only the closing newline hits the full writer.
	bad := assemble(nil, func(b *bytecode.Builder) {
		for range 4 {
			b.Op(bytecode.POP)
		}
	})
	_, _, err := run(t, bad, Options{Trace: &shortWriter{n: 9}})
	be.True(t, errors.Is(err, errTraceFull))
	be.True(t, errors.Is(err, StackUnderflow))
}

func TestBadProgram(t *testing.T) {
	_, _, err := run(t, []byte{0, 0}, Options{})
	be.True(t, errors.Is(err, bytecode.ErrShortProgram))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.CheckOverflow = true
	cfg.StepLimit = 10
	opts := OptionsFromConfig(cfg)
	be.Equal(t, opts.MaxStack, config.DefaultMaxStack)
	be.True(t, opts.CheckOverflow)
	be.Equal(t, opts.StepLimit, int64(10))
	be.True(t, opts.Trace == nil)
}
