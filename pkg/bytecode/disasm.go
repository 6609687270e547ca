package bytecode

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"
)

// Instr is one decoded instruction.
type Instr struct {
	Addr     int
	Op       Opcode
	Operands []int64
}

// Size is the encoded length of the instruction.
func (in Instr) Size() int { return Size(in.Op) }

// Next is the address of the following instruction.
func (in Instr) Next() int { return in.Addr + in.Size() }

func (in Instr) String() string {
	parts := make([]string, len(in.Operands))
	for i, v := range in.Operands {
		parts[i] = fmt.Sprintf("%#x", v)
	}
	return fmt.Sprintf("%08x  (0x%02x) %-7s [%s]", in.Addr, byte(in.Op), in.Op, strings.Join(parts, ", "))
}

// DecodeError reports bytes that do not form a valid instruction.
type DecodeError struct {
	Addr int
	Op   Opcode
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%08x: %s (opcode 0x%02x)", e.Addr, e.Msg, byte(e.Op))
}

// Decode reads the instruction at ip.
func Decode(code []byte, ip int) (Instr, error) {
	if ip < 0 || ip >= len(code) {
		return Instr{}, &DecodeError{Addr: ip, Msg: "address out of range"}
	}
	op := Opcode(code[ip])
	info, ok := Lookup(op)
	if !ok {
		return Instr{}, &DecodeError{Addr: ip, Op: op, Msg: "illegal opcode"}
	}
	if ip+1+info.Width() > len(code) {
		return Instr{}, &DecodeError{Addr: ip, Op: op, Msg: "truncated operands"}
	}
	in := Instr{Addr: ip, Op: op}
	at := ip + 1
	for _, o := range info.Operands {
		switch o {
		case OpdI64:
			in.Operands = append(in.Operands, int64(binary.BigEndian.Uint64(code[at:])))
		case OpdI32:
			in.Operands = append(in.Operands, int64(int32(binary.BigEndian.Uint32(code[at:]))))
		case OpdU32:
			in.Operands = append(in.Operands, int64(binary.BigEndian.Uint32(code[at:])))
		}
		at += o.Size()
	}
	return in, nil
}

// Disassemble decodes the instructions of code, skipping the data segment.
func Disassemble(code []byte) ([]Instr, error) {
	_, ip, err := ReadHeader(code)
	if err != nil {
		return nil, err
	}
	var res []Instr
	for ip < len(code) {
		in, err := Decode(code, ip)
		if err != nil {
			return res, err
		}
		res = append(res, in)
		ip = in.Next()
	}
	return res, nil
}

// Dump writes a listing of code. labels maps function entry addresses to
// names and is printed as a heading above each function.
func Dump(w io.Writer, code []byte, labels map[int]string) error {
	data, _, err := ReadHeader(code)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "; data segment: %d bytes\n", len(data))
	for at := 0; at < len(data); {
		s, ok := DecodeString(code, int64(DataLenSize+at))
		if !ok {
			break
		}
		fmt.Fprintf(w, "%08x  %q\n", DataLenSize+at, s)
		at += DataLenSize + len(s)
	}

	instrs, err := Disassemble(code)
	for _, in := range instrs {
		if name, ok := labels[in.Addr]; ok {
			fmt.Fprintf(w, "\n%s:\n", name)
		}
		fmt.Fprintln(w, in)
	}
	return err
}
