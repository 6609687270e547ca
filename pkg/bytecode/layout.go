package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Program layout:
//
//	[u32 data length][data segment][CALL main, 0][HALT][function bodies...]
//
// Data segment entries are [u32 length][UTF-8 bytes].
const (
	DataLenSize = 4
	// PreambleLen covers the length word, the entry CALL and the HALT.
	PreambleLen = DataLenSize + 9 + 1
)

// HeaderSize is the offset of the first function body for a data segment of dataLen bytes.
func HeaderSize(dataLen int) int { return PreambleLen + dataLen }

// EntryIP is the address of the CALL main instruction.
func EntryIP(dataLen int) int { return DataLenSize + dataLen }

// WriteHeader appends the program header to dst.
func WriteHeader(dst, data []byte, mainEntry int) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(data)))
	dst = append(dst, data...)
	var b Builder
	b.OpU32x2(CALL, uint32(mainEntry), 0)
	b.Op(HALT)
	return append(dst, b.Bytes()...)
}

var ErrShortProgram = errors.New("bytecode: program shorter than its header")

// ReadHeader returns the data segment of a program and the address execution starts at.
func ReadHeader(code []byte) (data []byte, entryIP int, err error) {
	if len(code) < DataLenSize {
		return nil, 0, ErrShortProgram
	}
	n := int(binary.BigEndian.Uint32(code))
	if DataLenSize+n > len(code) {
		return nil, 0, fmt.Errorf("%w: data segment of %d bytes", ErrShortProgram, n)
	}
	return code[DataLenSize : DataLenSize+n], EntryIP(n), nil
}

// EncodeString returns the data segment encoding of s.
func EncodeString(s string) []byte {
	out := binary.BigEndian.AppendUint32(nil, uint32(len(s)))
	return append(out, s...)
}

// DecodeString reads the length-prefixed payload at addr.
func DecodeString(code []byte, addr int64) (string, bool) {
	if addr < 0 || addr+DataLenSize > int64(len(code)) {
		return "", false
	}
	n := int64(binary.BigEndian.Uint32(code[addr:]))
	start := addr + DataLenSize
	if start+n > int64(len(code)) {
		return "", false
	}
	return string(code[start : start+n]), true
}
