package bytecode

import "encoding/binary"

// Builder accumulates encoded instructions.
type Builder struct {
	buf []byte
}

func (b *Builder) Bytes() []byte { return b.buf }
func (b *Builder) Len() int      { return len(b.buf) }

func (b *Builder) Append(code []byte) { b.buf = append(b.buf, code...) }

func (b *Builder) Op(op Opcode) { b.buf = append(b.buf, byte(op)) }

func (b *Builder) OpI64(op Opcode, v int64) {
	b.buf = append(b.buf, byte(op))
	b.buf = binary.BigEndian.AppendUint64(b.buf, uint64(v))
}

func (b *Builder) OpI32(op Opcode, v int32) {
	b.buf = append(b.buf, byte(op))
	b.buf = binary.BigEndian.AppendUint32(b.buf, uint32(v))
}

func (b *Builder) OpU32(op Opcode, v uint32) {
	b.buf = append(b.buf, byte(op))
	b.buf = binary.BigEndian.AppendUint32(b.buf, v)
}

func (b *Builder) OpU32x2(op Opcode, x, y uint32) {
	b.buf = append(b.buf, byte(op))
	b.buf = binary.BigEndian.AppendUint32(b.buf, x)
	b.buf = binary.BigEndian.AppendUint32(b.buf, y)
}

// OpU32I32 encodes a tag followed by a signed frame offset.
func (b *Builder) OpU32I32(op Opcode, x uint32, y int32) {
	b.OpU32x2(op, x, uint32(y))
}

// Jump encodes a relative branch. off is measured from the end of the instruction.
func (b *Builder) Jump(op Opcode, off int) { b.OpI32(op, int32(off)) }

// Instruction sizes the emitter relies on when computing branch offsets.
const (
	JumpSize  = 5
	IPushSize = 9
)
