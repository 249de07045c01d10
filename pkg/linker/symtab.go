package linker

import "sort"

// SymbolTable is the resolved global symbol table. It is built once by
// ResolveSymbols and only read afterwards.
type SymbolTable struct {
	syms map[string]*Symbol
}

func newSymbolTable(syms map[string]*Symbol) *SymbolTable {
	t := &SymbolTable{syms: make(map[string]*Symbol, len(syms))}
	for name, sym := range syms {
		t.syms[name] = sym
	}
	return t
}

// Lookup returns the definition of name, if any object defines it.
func (t *SymbolTable) Lookup(name string) (*Symbol, bool) {
	sym, ok := t.syms[name]
	if !ok || !sym.IsDefined() {
		return nil, false
	}
	return sym, true
}

func (t *SymbolTable) Names() []string {
	names := make([]string, 0, len(t.syms))
	for name, sym := range t.syms {
		if sym.IsDefined() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (t *SymbolTable) Len() int {
	return len(t.Names())
}
