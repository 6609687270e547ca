package sema

import (
	"github.com/xplshn/bplc/pkg/token"
	"github.com/xplshn/bplc/pkg/types"
)

// ParamStart is the frame offset of the last declared parameter. Earlier
// parameters sit further below the frame pointer.
const ParamStart = -4

// Symbol is a named stack slot. Slot >= 0 is a local at fp+Slot+1,
// Slot < 0 a parameter below the saved call state.
type Symbol struct {
	Name string
	Type *types.Type
	Slot int
	Tok  token.Token
}

func (s *Symbol) IsParam() bool { return s.Slot < 0 }

// SymTable is the per-function symbol table: a flat parameter list plus a
// stack of block scopes.
type SymTable struct {
	scopes  []map[string]*Symbol
	params  map[string]*Symbol
	order   []*Symbol
	nLocals int
}

func NewSymTable() *SymTable {
	return &SymTable{params: make(map[string]*Symbol)}
}

func (st *SymTable) PushScope() {
	st.scopes = append(st.scopes, make(map[string]*Symbol))
}

func (st *SymTable) PopScope() {
	if len(st.scopes) > 0 {
		st.scopes = st.scopes[:len(st.scopes)-1]
	}
}

func (st *SymTable) Depth() int { return len(st.scopes) }

// DeclParam appends a parameter. It returns false if the name is taken.
func (st *SymTable) DeclParam(name string, t *types.Type, tok token.Token) (*Symbol, bool) {
	if _, ok := st.params[name]; ok {
		return nil, false
	}
	for _, sym := range st.order {
		sym.Slot--
	}
	sym := &Symbol{Name: name, Type: t, Slot: ParamStart, Tok: tok}
	st.params[name] = sym
	st.order = append(st.order, sym)
	return sym, true
}

// DeclLocal allocates the next local slot in the innermost scope. It
// returns false if the name is already declared in that scope.
func (st *SymTable) DeclLocal(name string, t *types.Type, tok token.Token) (*Symbol, bool) {
	if len(st.scopes) == 0 {
		st.PushScope()
	}
	cur := st.scopes[len(st.scopes)-1]
	if _, ok := cur[name]; ok {
		return nil, false
	}
	sym := &Symbol{Name: name, Type: t, Slot: st.nLocals, Tok: tok}
	st.nLocals++
	cur[name] = sym
	return sym, true
}

// Temp allocates an anonymous local slot.
func (st *SymTable) Temp(t *types.Type) *Symbol {
	sym := &Symbol{Type: t, Slot: st.nLocals}
	st.nLocals++
	return sym
}

// Lookup resolves name from the innermost scope outwards, then the parameters.
func (st *SymTable) Lookup(name string) (*Symbol, bool) {
	for i := len(st.scopes) - 1; i >= 0; i-- {
		if sym, ok := st.scopes[i][name]; ok {
			return sym, true
		}
	}
	sym, ok := st.params[name]
	return sym, ok
}

// Shadows reports whether declaring name in the innermost scope would hide
// an outer declaration.
func (st *SymTable) Shadows(name string) bool {
	for i := len(st.scopes) - 2; i >= 0; i-- {
		if _, ok := st.scopes[i][name]; ok {
			return true
		}
	}
	_, ok := st.params[name]
	return ok
}

func (st *SymTable) NumLocals() int { return st.nLocals }

func (st *SymTable) Params() []*Symbol { return st.order }

func (st *SymTable) ParamTypes() []*types.Type {
	res := make([]*types.Type, len(st.order))
	for i, sym := range st.order {
		res[i] = sym.Type
	}
	return res
}

// ClearLocals drops every scope and resets slot allocation. Parameters stay.
func (st *SymTable) ClearLocals() {
	st.scopes = nil
	st.nLocals = 0
}
