// Package image stores compiled BPL programs on disk.
//
// An image is a canonical CBOR map holding the bytecode, the function
// table needed to disassemble it, and an xxhash checksum of the code.
package image

import (
	"errors"
	"fmt"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"
	"github.com/xplshn/bplc/pkg/codegen"
)

const (
	Magic   = "BPLI"
	Version = 1
	// Ext is the file extension bplc uses for images.
	Ext = ".bpli"
)

var (
	ErrBadMagic = errors.New("image: not a BPL image")
	ErrVersion  = errors.New("image: unsupported version")
	ErrChecksum = errors.New("image: checksum mismatch")
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("image: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Symbol is one function table entry.
type Symbol struct {
	Name      string `cbor:"1,keyasint"`
	Signature string `cbor:"2,keyasint"`
	Entry     uint32 `cbor:"3,keyasint"`
}

type Image struct {
	Magic    string   `cbor:"1,keyasint"`
	Version  int      `cbor:"2,keyasint"`
	Source   string   `cbor:"3,keyasint,omitempty"` // source file name
	Code     []byte   `cbor:"4,keyasint"`
	Funcs    []Symbol `cbor:"5,keyasint,omitempty"`
	Strings  []string `cbor:"6,keyasint,omitempty"`
	Entry    uint32   `cbor:"7,keyasint"`
	Checksum uint64   `cbor:"8,keyasint"`
}

// FromProgram wraps a generated program.
func FromProgram(p *codegen.Program, source string) *Image {
	img := &Image{
		Magic:   Magic,
		Version: Version,
		Source:  source,
		Code:    p.Code,
		Strings: p.Strings,
		Entry:   uint32(p.Entry),
	}
	for _, f := range p.Funcs.All() {
		img.Funcs = append(img.Funcs, Symbol{Name: f.Name, Signature: f.String(), Entry: uint32(f.Entry)})
	}
	return img
}

// Labels maps every function entry to its signature.
func (img *Image) Labels() map[int]string {
	labels := make(map[int]string, len(img.Funcs))
	for _, f := range img.Funcs {
		labels[int(f.Entry)] = f.Signature
	}
	return labels
}

// Encode serializes img, filling in its checksum.
func Encode(img *Image) ([]byte, error) {
	img.Checksum = xxhash.Sum64(img.Code)
	return encMode.Marshal(img)
}

// Decode parses and verifies an encoded image.
func Decode(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("image: unmarshal: %w", err)
	}
	if img.Magic != Magic {
		return nil, ErrBadMagic
	}
	if img.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, img.Version)
	}
	if sum := xxhash.Sum64(img.Code); sum != img.Checksum {
		return nil, fmt.Errorf("%w: have %016x want %016x", ErrChecksum, sum, img.Checksum)
	}
	return &img, nil
}

func Write(path string, img *Image) error {
	data, err := Encode(img)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func Read(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(data)
}
