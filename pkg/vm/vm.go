// Package vm executes BPL bytecode on a tagged value stack.
package vm

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/tliron/commonlog"
	"github.com/xplshn/bplc/pkg/bytecode"
	"github.com/xplshn/bplc/pkg/config"
	"github.com/xplshn/bplc/pkg/types"
)

var log = commonlog.GetLogger("bpl.vm")

type Options struct {
	// MaxStack bounds the number of stack entries. Zero means config.DefaultMaxStack.
	MaxStack int
	// CheckOverflow turns wrapping integer arithmetic into ArithmeticOverflow errors.
	CheckOverflow bool
	// StepLimit aborts execution after that many instructions. Zero disables it.
	StepLimit int64
	// Trace receives one line per executed instruction when set.
	Trace io.Writer
}

// OptionsFromConfig copies the runtime settings of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{MaxStack: cfg.MaxStack, CheckOverflow: cfg.CheckOverflow, StepLimit: cfg.StepLimit}
}

type Machine struct {
	code  []byte
	opts  Options
	out   *bufio.Writer
	stack []Value
	sp    int
	fp    int
	ip    int
	steps int64

	cur int // address of the executing instruction
	op  bytecode.Opcode
}

func New(code []byte, out io.Writer, opts Options) (*Machine, error) {
	if opts.MaxStack <= 0 {
		opts.MaxStack = config.DefaultMaxStack
	}
	_, entry, err := bytecode.ReadHeader(code)
	if err != nil {
		return nil, err
	}
	return &Machine{
		code: code,
		opts: opts,
		out:  bufio.NewWriter(out),
		sp:   -1,
		fp:   -1,
		ip:   entry,
	}, nil
}

// Run executes code and returns the value main returned.
func Run(code []byte, out io.Writer, opts Options) (int64, error) {
	m, err := New(code, out, opts)
	if err != nil {
		return 0, err
	}
	return m.Run()
}

// Run executes until HALT or the end of the code. The exit code is the
// value on top of the stack at that point.
func (m *Machine) Run() (int64, error) {
	log.Debugf("run: %d bytes from %#x, max stack %d", len(m.code), m.ip, m.opts.MaxStack)
	err := m.loop()
	if ferr := m.out.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		return 0, err
	}
	var exit int64
	if m.sp >= 0 {
		exit = m.stack[m.sp].V
	}
	log.Debugf("halt after %d steps, exit code %d", m.steps, exit)
	return exit, nil
}

func (m *Machine) loop() error {
	for m.ip < len(m.code) {
		m.steps++
		if m.opts.StepLimit > 0 && m.steps > m.opts.StepLimit {
			return m.fail(StepLimit, "more than %d instructions", m.opts.StepLimit)
		}
		halt, err := m.step()
		if err != nil {
			if m.opts.Trace != nil {
				if _, werr := fmt.Fprintln(m.opts.Trace); werr != nil {
					return errors.Join(err, werr)
				}
			}
			return err
		}
		if m.opts.Trace != nil {
			if err := m.out.Flush(); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(m.opts.Trace, "  stack=%s\n", formatStack(m.stack[:m.sp+1])); err != nil {
				return err
			}
		}
		if halt {
			return nil
		}
	}
	return nil
}

func (m *Machine) i64(at int) int64 { return int64(binary.BigEndian.Uint64(m.code[at:])) }
func (m *Machine) i32(at int) int64 { return int64(int32(binary.BigEndian.Uint32(m.code[at:]))) }
func (m *Machine) u32(at int) int64 { return int64(binary.BigEndian.Uint32(m.code[at:])) }

// step executes one instruction and reports whether it was HALT.
func (m *Machine) step() (bool, error) {
	m.cur = m.ip
	m.op = bytecode.Opcode(m.code[m.ip])
	size := bytecode.Size(m.op)
	if size == 0 {
		return false, m.fail(IllegalOpcode, "0x%02x", byte(m.op))
	}
	if m.ip+size > len(m.code) {
		return false, m.fail(IllegalAddress, "operands run past the end of the code")
	}
	if m.opts.Trace != nil {
		in, _ := bytecode.Decode(m.code, m.ip)
		if _, err := fmt.Fprint(m.opts.Trace, in.String()); err != nil {
			return false, err
		}
	}
	arg := m.ip + 1
	m.ip += size

	switch m.op {
	case bytecode.NOP:

	case bytecode.POP:
		_, err := m.pop()
		return false, err

	case bytecode.IPUSH:
		return false, m.push(Value{V: m.i64(arg), T: types.TagInt})

	case bytecode.IADD, bytecode.ISUB, bytecode.IMUL, bytecode.IDIV,
		bytecode.ILT, bytecode.IGT, bytecode.ILTE, bytecode.IGTE, bytecode.IEQ, bytecode.INEQ:
		return false, m.arith()

	case bytecode.LOAD:
		addr, err := m.slot(int64(m.fp) + m.i32(arg) + 1)
		if err != nil {
			return false, err
		}
		return false, m.push(m.stack[addr])

	case bytecode.STORE:
		v, err := m.pop()
		if err != nil {
			return false, err
		}
		addr, err := m.slot(int64(m.fp) + m.i32(arg) + 1)
		if err != nil {
			return false, err
		}
		m.stack[addr] = v

	case bytecode.SPUSH:
		return false, m.push(Value{V: m.u32(arg + 4), T: types.Tag(m.u32(arg))})

	case bytecode.NPUSH:
		return false, m.push(Value{V: -1, T: types.Tag(m.u32(arg))})

	case bytecode.CALL:
		return false, m.call(m.u32(arg), m.u32(arg+4))

	case bytecode.RET:
		return false, m.ret()

	case bytecode.LOCALS:
		for n := m.u32(arg); n > 0; n-- {
			if err := m.push(Value{T: types.TagNone}); err != nil {
				return false, err
			}
		}

	case bytecode.ADDR_OF:
		addr := int64(m.fp) + m.i32(arg+4) + 1
		return false, m.push(Value{V: addr, T: types.Tag(m.u32(arg))})

	case bytecode.VAL_OF:
		p, err := m.pop()
		if err != nil {
			return false, err
		}
		addr, err := m.slot(p.V)
		if err != nil {
			return false, err
		}
		return false, m.push(m.stack[addr])

	case bytecode.RESOLVE:
		p, err := m.pop()
		if err != nil {
			return false, err
		}
		return false, m.push(Value{V: p.V - int64(m.fp+1), T: types.TagInt})

	case bytecode.STOREI:
		off, err := m.pop()
		if err != nil {
			return false, err
		}
		v, err := m.pop()
		if err != nil {
			return false, err
		}
		addr, err := m.slot(int64(m.fp) + off.V + 1)
		if err != nil {
			return false, err
		}
		m.stack[addr] = v

	case bytecode.JMP:
		return false, m.jump(m.i32(arg))

	case bytecode.BREQ, bytecode.BRNE:
		c, err := m.pop()
		if err != nil {
			return false, err
		}
		if (c.V == 0) == (m.op == bytecode.BREQ) {
			return false, m.jump(m.i32(arg))
		}

	case bytecode.PRINT:
		return false, m.print(int(m.u32(arg)))

	case bytecode.HALT:
		return true, nil
	}
	return false, nil
}

// jump moves ip relative to the end of the current instruction. Landing
// exactly on the end of the code terminates the program.
func (m *Machine) jump(off int64) error {
	target := int64(m.ip) + off
	if target < 0 || target > int64(len(m.code)) {
		return m.fail(IllegalAddress, "jump target %#x outside code of %d bytes", target, len(m.code))
	}
	m.ip = int(target)
	return nil
}

// call pushes the call state (argument count, saved fp, return address)
// and makes the saved return address the new frame base.
func (m *Machine) call(entry, nArgs int64) error {
	if entry < 0 || entry >= int64(len(m.code)) {
		return m.fail(IllegalAddress, "call target %#x outside code of %d bytes", entry, len(m.code))
	}
	for _, v := range []int64{nArgs, int64(m.fp), int64(m.ip)} {
		if err := m.push(Value{V: v, T: types.TagInt}); err != nil {
			return err
		}
	}
	m.fp = m.sp
	m.ip = int(entry)
	return nil
}

func (m *Machine) ret() error {
	rv, err := m.pop()
	if err != nil {
		return err
	}
	if m.fp < 2 || m.fp > m.sp {
		return m.fail(IllegalState, "return without a call frame (fp=%d)", m.fp)
	}
	m.sp = m.fp
	var state [3]Value
	for i := range state {
		if state[i], err = m.pop(); err != nil {
			return err
		}
	}
	ip, fp, nArgs := state[0].V, state[1].V, state[2].V
	if nArgs < 0 || nArgs > int64(m.sp+1) {
		return m.fail(StackUnderflow, "return drops %d arguments from %d entries", nArgs, m.sp+1)
	}
	m.sp -= int(nArgs)
	m.fp = int(fp)
	m.ip = int(ip)
	return m.push(rv)
}

func (m *Machine) arith() error {
	r, err := m.pop()
	if err != nil {
		return err
	}
	l, err := m.pop()
	if err != nil {
		return err
	}
	if l.T != r.T {
		return m.fail(IllegalState, "operand tags differ: %s and %s", l.T, r.T)
	}

	var res int64
	switch m.op {
	case bytecode.IADD:
		res = l.V + r.V
		if m.opts.CheckOverflow && (l.V > 0 && r.V > 0 && res < 0 || l.V < 0 && r.V < 0 && res >= 0) {
			return m.fail(ArithmeticOverflow, "%d + %d", l.V, r.V)
		}
	case bytecode.ISUB:
		res = l.V - r.V
		if m.opts.CheckOverflow && (l.V >= 0 && r.V < 0 && res < 0 || l.V < 0 && r.V > 0 && res >= 0) {
			return m.fail(ArithmeticOverflow, "%d - %d", l.V, r.V)
		}
	case bytecode.IMUL:
		res = l.V * r.V
		if m.opts.CheckOverflow && l.V != 0 && (res/l.V != r.V || l.V == -1 && r.V == math.MinInt64) {
			return m.fail(ArithmeticOverflow, "%d * %d", l.V, r.V)
		}
	case bytecode.IDIV:
		if r.V == 0 {
			return m.fail(DivisionByZero, "%d / 0", l.V)
		}
		if m.opts.CheckOverflow && l.V == math.MinInt64 && r.V == -1 {
			return m.fail(ArithmeticOverflow, "%d / %d", l.V, r.V)
		}
		res = l.V / r.V
	case bytecode.ILT:
		res = bool2int(l.V < r.V)
	case bytecode.IGT:
		res = bool2int(l.V > r.V)
	case bytecode.ILTE:
		res = bool2int(l.V <= r.V)
	case bytecode.IGTE:
		res = bool2int(l.V >= r.V)
	case bytecode.IEQ:
		res = bool2int(l.V == r.V)
	case bytecode.INEQ:
		res = bool2int(l.V != r.V)
	}
	return m.push(Value{V: res, T: types.TagInt})
}

func bool2int(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// print renders the top n entries in push order.
func (m *Machine) print(n int) error {
	if n > m.sp+1 {
		return m.fail(StackUnderflow, "print of %d values from %d entries", n, m.sp+1)
	}
	for _, v := range m.stack[m.sp-n+1 : m.sp+1] {
		if v.T == types.TagString {
			s, ok := bytecode.DecodeString(m.code, v.V)
			if !ok {
				return m.fail(IllegalAddress, "no string at %#x", v.V)
			}
			m.out.WriteString(s)
			continue
		}
		m.out.WriteString(hex(v.V))
	}
	m.sp -= n
	return nil
}
