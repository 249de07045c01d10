package linker

// Symbol is either a local symbol owned by one object or the single
// global entry shared by every object that names it. A symbol refers to
// its definition by object and section index.
type Symbol struct {
	Name string

	File   int32
	SymIdx int32
	Shndx  uint32

	Value uint64
	Size  uint64

	// Largest size and alignment over every common occurrence of
	// the name.
	CommonSize  uint64
	CommonAlign uint64

	IsLocal  bool
	IsWeak   bool
	IsCommon bool
	IsAbs    bool
}

func NewSymbol(name string) *Symbol {
	s := &Symbol{
		Name:   name,
		File:   -1,
		SymIdx: -1,
	}
	return s
}

func GetSymbolByName(ctx *Context, name string) *Symbol {
	if sym, ok := ctx.SymbolMap[name]; ok {
		return sym
	}
	ctx.SymbolMap[name] = NewSymbol(name)
	return ctx.SymbolMap[name]
}

func (s *Symbol) IsDefined() bool {
	return s.File >= 0
}

func (s *Symbol) InputSection(ctx *Context) *InputSection {
	if s.File < 0 || s.IsAbs {
		return nil
	}
	return ctx.Objs[s.File].Sections[s.Shndx]
}

// GetAddr returns the final virtual address. Undefined weak symbols sit
// at address zero.
func (s *Symbol) GetAddr(ctx *Context) uint64 {
	if s.File < 0 || s.IsAbs {
		return s.Value
	}

	isec := s.InputSection(ctx)
	if isec == nil || !isec.IsAlive {
		return 0
	}
	return isec.GetAddr(ctx) + s.Value
}

func (s *Symbol) GetRank(ctx *Context) uint64 {
	if s.File < 0 {
		return 7 << 24
	}
	return rank(ctx.Objs[s.File].Priority, s.IsWeak || s.IsCommon)
}
