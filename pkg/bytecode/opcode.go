// Package bytecode defines the BPL instruction set and program layout.
package bytecode

import "fmt"

type Opcode byte

const (
	NOP   Opcode = 0x00
	POP   Opcode = 0x01
	IPUSH Opcode = 0x02
	IADD  Opcode = 0x03
	ISUB  Opcode = 0x04
	IMUL  Opcode = 0x05
	IDIV  Opcode = 0x06
	ILT   Opcode = 0x07
	IGT   Opcode = 0x08
	ILTE  Opcode = 0x09
	IGTE  Opcode = 0x10
	IEQ   Opcode = 0x11
	INEQ  Opcode = 0x12

	LOAD    Opcode = 0x30
	STORE   Opcode = 0x31
	SPUSH   Opcode = 0x32
	NPUSH   Opcode = 0x33
	CALL    Opcode = 0x34
	RET     Opcode = 0x35
	LOCALS  Opcode = 0x36
	ADDR_OF Opcode = 0x37
	VAL_OF  Opcode = 0x38
	RESOLVE Opcode = 0x39
	STOREI  Opcode = 0x3a

	JMP  Opcode = 0x40
	BREQ Opcode = 0x41
	BRNE Opcode = 0x42

	PRINT Opcode = 0xfe
	HALT  Opcode = 0xff
)

// Operand kinds, used by the disassembler.
type Operand int

const (
	OpdI64 Operand = iota // signed 64-bit immediate
	OpdI32                // signed 32-bit offset
	OpdU32                // unsigned 32-bit count, address or tag
)

func (o Operand) Size() int {
	if o == OpdI64 {
		return 8
	}
	return 4
}

type Info struct {
	Name     string
	Operands []Operand
}

// Width is the number of operand bytes following the opcode.
func (i Info) Width() int {
	n := 0
	for _, o := range i.Operands {
		n += o.Size()
	}
	return n
}

var table = map[Opcode]Info{
	NOP:     {"NOP", nil},
	POP:     {"POP", nil},
	IPUSH:   {"IPUSH", []Operand{OpdI64}},
	IADD:    {"IADD", nil},
	ISUB:    {"ISUB", nil},
	IMUL:    {"IMUL", nil},
	IDIV:    {"IDIV", nil},
	ILT:     {"ILT", nil},
	IGT:     {"IGT", nil},
	ILTE:    {"ILTE", nil},
	IGTE:    {"IGTE", nil},
	IEQ:     {"IEQ", nil},
	INEQ:    {"INEQ", nil},
	LOAD:    {"LOAD", []Operand{OpdI32}},
	STORE:   {"STORE", []Operand{OpdI32}},
	SPUSH:   {"SPUSH", []Operand{OpdU32, OpdU32}},
	NPUSH:   {"NPUSH", []Operand{OpdU32}},
	CALL:    {"CALL", []Operand{OpdU32, OpdU32}},
	RET:     {"RET", nil},
	LOCALS:  {"LOCALS", []Operand{OpdU32}},
	ADDR_OF: {"ADDR_OF", []Operand{OpdU32, OpdI32}},
	VAL_OF:  {"VAL_OF", nil},
	RESOLVE: {"RESOLVE", nil},
	STOREI:  {"STOREI", nil},
	JMP:     {"JMP", []Operand{OpdI32}},
	BREQ:    {"BREQ", []Operand{OpdI32}},
	BRNE:    {"BRNE", []Operand{OpdI32}},
	PRINT:   {"PRINT", []Operand{OpdU32}},
	HALT:    {"HALT", nil},
}

// Lookup returns the table entry for op.
func Lookup(op Opcode) (Info, bool) {
	info, ok := table[op]
	return info, ok
}

// Size is the encoded length of op including its operands, or 0 if op is unknown.
func Size(op Opcode) int {
	info, ok := table[op]
	if !ok {
		return 0
	}
	return 1 + info.Width()
}

func (op Opcode) String() string {
	if info, ok := table[op]; ok {
		return info.Name
	}
	return fmt.Sprintf("OP_%02X", byte(op))
}
