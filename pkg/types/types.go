// Package types is the registry of BPL types. Types are interned, so two
// *Type values are equal iff they denote the same type.
package types

import (
	"fmt"
	"strings"
)

type Kind int

const (
	KindInt Kind = iota + 1
	KindString
	KindPointer
)

// Tag is the runtime type tag stored next to every VM stack entry.
// The low byte is the base type, the next bits count pointer indirections.
type Tag uint32

const (
	TagNone   Tag = 0
	TagInt    Tag = 1
	TagString Tag = 2

	tagDepthShift = 8
)

func (t Tag) Base() Tag    { return t & (1<<tagDepthShift - 1) }
func (t Tag) Depth() int   { return int(t >> tagDepthShift) }
func (t Tag) Pointer() Tag { return t + 1<<tagDepthShift }

func (t Tag) String() string {
	var base string
	switch t.Base() {
	case TagNone:
		return "none"
	case TagInt:
		base = "int"
	case TagString:
		base = "str"
	default:
		base = fmt.Sprintf("tag%d", uint32(t.Base()))
	}
	return strings.Repeat("*", t.Depth()) + base
}

// WordSize is the machine width of every BPL value.
const WordSize = 8

type Type struct {
	kind  Kind
	name  string
	elem  *Type
	order int
	tag   Tag
}

func (t *Type) Kind() Kind      { return t.kind }
func (t *Type) Elem() *Type     { return t.elem }
func (t *Type) IsPointer() bool { return t.kind == KindPointer }
func (t *Type) Width() int      { return WordSize }

// Order is stable for the life of a registry and ranks types for
// deterministic overload listings.
func (t *Type) Order() int { return t.order }
func (t *Type) Tag() Tag   { return t.tag }

func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	return t.name
}

// Registry owns the types of one compilation.
type Registry struct {
	byName map[string]*Type
	ptrs   map[*Type]*Type
	byTag  map[Tag]*Type
	next   int
	intT   *Type
	strT   *Type
}

func NewRegistry() *Registry {
	r := &Registry{
		byName: make(map[string]*Type),
		ptrs:   make(map[*Type]*Type),
		byTag:  make(map[Tag]*Type),
	}
	r.intT = r.add(&Type{kind: KindInt, name: "int", tag: TagInt})
	r.strT = r.add(&Type{kind: KindString, name: "string", tag: TagString})
	return r
}

func (r *Registry) add(t *Type) *Type {
	t.order = r.next
	r.next++
	r.byTag[t.tag] = t
	if t.kind != KindPointer {
		r.byName[t.name] = t
	}
	return t
}

func (r *Registry) Int() *Type { return r.intT }
func (r *Registry) Str() *Type { return r.strT }

// Lookup finds a named (non-pointer) type.
func (r *Registry) Lookup(name string) (*Type, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// PointerTo returns the cached pointer type to elem, creating it on first use.
func (r *Registry) PointerTo(elem *Type) *Type {
	if p, ok := r.ptrs[elem]; ok {
		return p
	}
	p := r.add(&Type{kind: KindPointer, name: "*" + elem.name, elem: elem, tag: elem.tag.Pointer()})
	r.ptrs[elem] = p
	return p
}

// ByTag maps a runtime tag back to its type, if the registry has seen it.
func (r *Registry) ByTag(tag Tag) (*Type, bool) {
	t, ok := r.byTag[tag]
	return t, ok
}

// List formats a type list as "[int, string]".
func List(ts []*Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// Equal reports whether two type lists are identical.
func Equal(a, b []*Type) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Less orders type lists by length, then element-wise by Order.
func Less(a, b []*Type) bool {
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	for i := range a {
		if a[i].order != b[i].order {
			return a[i].order < b[i].order
		}
	}
	return false
}
