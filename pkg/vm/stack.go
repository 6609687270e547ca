package vm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xplshn/bplc/pkg/types"
)

// Value is one tagged stack entry.
type Value struct {
	V int64
	T types.Tag
}

func (v Value) String() string {
	return fmt.Sprintf("%s:%#x", v.T, v.V)
}

const initialStack = 64

func (m *Machine) push(v Value) error {
	if m.sp+1 >= m.opts.MaxStack {
		return m.fail(StackOverflow, "more than %d entries", m.opts.MaxStack)
	}
	m.sp++
	if m.sp >= len(m.stack) {
		n := min(max(2*len(m.stack), initialStack), m.opts.MaxStack)
		grown := make([]Value, n)
		copy(grown, m.stack)
		m.stack = grown
	}
	m.stack[m.sp] = v
	return nil
}

func (m *Machine) pop() (Value, error) {
	if m.sp < 0 {
		return Value{}, m.fail(StackUnderflow, "pop from empty stack")
	}
	v := m.stack[m.sp]
	m.sp--
	return v, nil
}

// slot checks that addr is a live stack index.
func (m *Machine) slot(addr int64) (int, error) {
	if addr < 0 || addr > int64(m.sp) {
		return 0, m.fail(IllegalAddress, "stack index %d out of range [0, %d]", addr, m.sp)
	}
	return int(addr), nil
}

// Stack returns a copy of the live stack, bottom first.
func (m *Machine) Stack() []Value {
	return append([]Value(nil), m.stack[:m.sp+1]...)
}

func formatStack(vals []Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func hex(v int64) string { return strconv.FormatUint(uint64(v), 16) }
