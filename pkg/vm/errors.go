package vm

import (
	"fmt"

	"github.com/xplshn/bplc/pkg/bytecode"
)

// Kind classifies runtime failures. Every Kind is also an error, so
// errors.Is(err, vm.StackOverflow) matches any *Error of that kind.
type Kind int

const (
	StackOverflow Kind = iota + 1
	StackUnderflow
	IllegalOpcode
	IllegalAddress
	IllegalState
	ArithmeticOverflow
	DivisionByZero
	StepLimit
)

var kindNames = map[Kind]string{
	StackOverflow:      "stack overflow",
	StackUnderflow:     "stack underflow",
	IllegalOpcode:      "illegal opcode",
	IllegalAddress:     "illegal address",
	IllegalState:       "illegal state",
	ArithmeticOverflow: "arithmetic overflow",
	DivisionByZero:     "division by zero",
	StepLimit:          "step limit exceeded",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) Error() string { return k.String() }

// Error is a fatal runtime error raised while executing the instruction at IP.
type Error struct {
	Kind Kind
	IP   int
	Op   bytecode.Opcode
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%08x %s: %s", e.IP, e.Op, e.Kind)
	}
	return fmt.Sprintf("%08x %s: %s: %s", e.IP, e.Op, e.Kind, e.Msg)
}

func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

func (m *Machine) fail(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, IP: m.cur, Op: m.op, Msg: fmt.Sprintf(format, args...)}
}
