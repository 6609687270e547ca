package bytecode

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func TestSizes(t *testing.T) {
	tests := []struct {
		op   Opcode
		size int
	}{
		{NOP, 1}, {POP, 1}, {IPUSH, 9}, {IADD, 1}, {IGTE, 1}, {INEQ, 1},
		{LOAD, 5}, {STORE, 5}, {SPUSH, 9}, {NPUSH, 5}, {CALL, 9}, {RET, 1},
		{LOCALS, 5}, {ADDR_OF, 9}, {VAL_OF, 1}, {RESOLVE, 1}, {STOREI, 1},
		{JMP, 5}, {BREQ, 5}, {BRNE, 5}, {PRINT, 5}, {HALT, 1},
		{Opcode(0x13), 0}, {Opcode(0x20), 0},
	}
	for _, tt := range tests {
		be.Equal(t, Size(tt.op), tt.size)
	}
	be.Equal(t, Size(JMP), JumpSize)
	be.Equal(t, Size(IPUSH), IPushSize)
	be.Equal(t, IGTE.String(), "IGTE")
	be.Equal(t, Opcode(0x13).String(), "OP_13")
}

func TestBuilderEncoding(t *testing.T) {
	var b Builder
	b.OpI64(IPUSH, -2)
	b.OpI32(LOAD, -4)
	b.OpU32x2(CALL, 0x1234, 2)
	b.Jump(BREQ, 14)
	b.Op(HALT)
	want := []byte{
		0x02, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xfe,
		0x30, 0xff, 0xff, 0xff, 0xfc,
		0x34, 0x00, 0x00, 0x12, 0x34, 0x00, 0x00, 0x00, 0x02,
		0x41, 0x00, 0x00, 0x00, 0x0e,
		0xff,
	}
	if diff := cmp.Diff(want, b.Bytes()); diff != "" {
		t.Errorf("encoding mismatch (-want +got):\n%s", diff)
	}
	be.Equal(t, b.Len(), len(want))
}

func TestHeader(t *testing.T) {
	data := append(EncodeString("hi"), EncodeString("")...)
	code := WriteHeader(nil, data, 0x2a)
	be.Equal(t, len(code), HeaderSize(len(data)))

	gotData, entry, err := ReadHeader(code)
	be.Err(t, err, nil)
	be.Equal(t, gotData, data)
	be.Equal(t, entry, EntryIP(len(data)))
	be.Equal(t, entry, 4+10)

	s, ok := DecodeString(code, DataLenSize)
	be.True(t, ok)
	be.Equal(t, s, "hi")
	s, ok = DecodeString(code, DataLenSize+6)
	be.True(t, ok)
	be.Equal(t, s, "")
	_, ok = DecodeString(code, int64(len(code)))
	be.True(t, !ok)
	_, ok = DecodeString(code, -1)
	be.True(t, !ok)

	in, err := Decode(code, entry)
	be.Err(t, err, nil)
	be.Equal(t, in.Op, CALL)
	be.Equal(t, in.Operands, []int64{0x2a, 0})
	in, err = Decode(code, in.Next())
	be.Err(t, err, nil)
	be.Equal(t, in.Op, HALT)
}

func TestShortProgram(t *testing.T) {
	_, _, err := ReadHeader([]byte{0, 0})
	be.True(t, errors.Is(err, ErrShortProgram))
	_, _, err = ReadHeader([]byte{0, 0, 0, 9, 1})
	be.True(t, errors.Is(err, ErrShortProgram))
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{0x13}, 0)
	var de *DecodeError
	be.True(t, errors.As(err, &de))
	be.Equal(t, de.Msg, "illegal opcode")

	_, err = Decode([]byte{byte(IPUSH), 0, 0}, 0)
	be.True(t, errors.As(err, &de))
	be.Equal(t, de.Msg, "truncated operands")

	_, err = Decode([]byte{byte(NOP)}, 3)
	be.True(t, errors.As(err, &de))
}

func TestDisassembleAndDump(t *testing.T) {
	var body Builder
	body.OpU32(LOCALS, 1)
	body.OpU32x2(SPUSH, 2, DataLenSize)
	body.OpU32(PRINT, 1)
	body.OpI64(IPUSH, 0)
	body.Op(RET)

	data := EncodeString("ok")
	mainEntry := HeaderSize(len(data))
	code := append(WriteHeader(nil, data, mainEntry), body.Bytes()...)

	instrs, err := Disassemble(code)
	be.Err(t, err, nil)
	ops := make([]Opcode, len(instrs))
	for i, in := range instrs {
		ops[i] = in.Op
	}
	be.Equal(t, ops, []Opcode{CALL, HALT, LOCALS, SPUSH, PRINT, IPUSH, RET})
	be.Equal(t, instrs[2].Addr, mainEntry)
	be.Equal(t, instrs[3].String(), "00000019  (0x32) SPUSH   [0x2, 0x4]")

	var out bytes.Buffer
	be.Err(t, Dump(&out, code, map[int]string{mainEntry: "main() int"}), nil)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	be.Equal(t, lines[0], "; data segment: 6 bytes")
	be.Equal(t, lines[1], `00000004  "ok"`)
	be.Equal(t, lines[2], "0000000a  (0x34) CALL    [0x14, 0x0]")
	be.Equal(t, lines[4], "")
	be.Equal(t, lines[5], "main() int:")
	be.Equal(t, len(lines), 11)
}
