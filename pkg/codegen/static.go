package codegen

import "github.com/xplshn/bplc/pkg/bytecode"

// Static is the data segment. Each distinct string is stored once.
type Static struct {
	offsets map[string]int
	order   []string
	data    []byte
}

func NewStatic() *Static {
	return &Static{offsets: make(map[string]int)}
}

// Intern returns the absolute program address of s's length prefix.
func (s *Static) Intern(v string) uint32 {
	off, ok := s.offsets[v]
	if !ok {
		off = len(s.data)
		s.offsets[v] = off
		s.order = append(s.order, v)
		s.data = append(s.data, bytecode.EncodeString(v)...)
	}
	return uint32(bytecode.DataLenSize + off)
}

func (s *Static) Len() int          { return len(s.data) }
func (s *Static) Bytes() []byte     { return s.data }
func (s *Static) Strings() []string { return s.order }
