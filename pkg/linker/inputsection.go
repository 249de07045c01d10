package linker

import (
	"debug/elf"
	"fmt"
	"math"

	"github.com/ksco/xld/pkg/utils"
)

const NoRelsec uint32 = math.MaxUint32

type SectionKind uint8

const (
	SectionKindOther SectionKind = iota
	SectionKindCode
	SectionKindData
	SectionKindReadOnly
	SectionKindZeroFill
)

func (k SectionKind) String() string {
	switch k {
	case SectionKindCode:
		return "code"
	case SectionKindData:
		return "data"
	case SectionKindReadOnly:
		return "rodata"
	case SectionKindZeroFill:
		return "zerofill"
	}
	return "other"
}

// InputSection is one allocated section of one object. Offset is its
// position inside OutputSection once layout has run.
type InputSection struct {
	File          int32
	Name          string
	Shdr          Shdr
	Contents      []byte
	Rels          []Rela
	OutputSection uint32
	Offset        uint64
	Shndx         uint32
	RelsecIdx     uint32
	ShSize        uint64
	IsAlive       bool
	P2Align       uint8
}

func NewInputSection(file *ObjectFile, name string, shndx int64) (*InputSection, error) {
	s := &InputSection{
		File:          file.Idx,
		Name:          name,
		Shdr:          file.ElfSections[shndx],
		Offset:        math.MaxUint64,
		OutputSection: math.MaxUint32,
		Shndx:         uint32(shndx),
		RelsecIdx:     NoRelsec,
		IsAlive:       true,
	}

	var err error
	if s.Contents, err = file.GetBytesFromShdr(&s.Shdr); err != nil {
		return nil, err
	}

	alignment := s.Shdr.AddrAlign
	if alignment == 0 {
		alignment = 1
	}
	if !utils.HasSingleBit(alignment) {
		return nil, malformed(file.File.Name, "%s: alignment is not a power of two: %d", name, alignment)
	}

	s.ShSize = s.Shdr.Size
	s.P2Align = uint8(utils.CountrZero[uint64](alignment))
	return s, nil
}

func (s *InputSection) Kind() SectionKind {
	flags := s.Shdr.Flags
	switch {
	case s.Shdr.Type == uint32(elf.SHT_NOBITS):
		return SectionKindZeroFill
	case flags&uint64(elf.SHF_EXECINSTR) != 0:
		return SectionKindCode
	case flags&uint64(elf.SHF_WRITE) != 0:
		return SectionKindData
	case flags&uint64(elf.SHF_ALLOC) != 0:
		return SectionKindReadOnly
	}
	return SectionKindOther
}

// GetAddr reads the section's address from the layout plan. Sections
// that were not placed sit at address zero.
func (s *InputSection) GetAddr(ctx *Context) uint64 {
	addr, _ := ctx.Layout.SectionAddr(s.File, s.Shndx)
	return addr
}

func (s *InputSection) ScanRelocations(ctx *Context) error {
	file := ctx.Objs[s.File]
	for i := 0; i < len(s.Rels); i++ {
		rel := &s.Rels[i]
		kind, err := GetRelocKind(rel.Type)
		if err != nil {
			return s.relocError(ctx, err, rel)
		}
		if kind == RelocNone {
			continue
		}

		if rel.Offset+uint64(kind.Size()) > s.ShSize {
			return malformed(file.File.Name, "%s: relocation %s at 0x%x runs past the section end",
				s.Name, RelTypeName(rel.Type), rel.Offset)
		}

		sym := file.Symbols[rel.Sym]
		if sym.IsLocal && sym.File >= 0 && !sym.IsAbs {
			if isec := sym.InputSection(ctx); isec == nil || !isec.IsAlive {
				return malformed(file.File.Name, "%s: relocation against %q in a discarded section",
					s.Name, sym.Name)
			}
		}
		if !sym.IsLocal && !sym.IsDefined() && !file.ElfSyms[rel.Sym].IsWeak() {
			return undefinedSymbol(file.File.Name, sym.Name)
		}

		if kind.NeedsGot() {
			ctx.Got.AddGotSymbol(sym)
		}
	}
	return nil
}

func (s *InputSection) WriteTo(ctx *Context, buf []byte) error {
	if s.Shdr.Type == uint32(elf.SHT_NOBITS) || s.ShSize == 0 {
		return nil
	}

	copy(buf, s.Contents)
	return s.ApplyRelocAlloc(ctx, buf)
}

// ApplyRelocAlloc patches the copy of the section in base. Relocations
// never read each other's results, so order does not matter.
func (s *InputSection) ApplyRelocAlloc(ctx *Context, base []byte) error {
	file := ctx.Objs[s.File]
	for i := 0; i < len(s.Rels); i++ {
		rel := &s.Rels[i]
		kind, err := GetRelocKind(rel.Type)
		if err != nil {
			return s.relocError(ctx, err, rel)
		}
		if kind == RelocNone {
			continue
		}

		sym := file.Symbols[rel.Sym]
		loc := base[rel.Offset:]

		S := sym.GetAddr(ctx)
		A := uint64(rel.Addend)
		P := s.GetAddr(ctx) + rel.Offset

		var G uint64
		if kind.NeedsGot() {
			var ok bool
			if G, ok = ctx.Got.GetEntryAddr(sym); !ok {
				return &LinkError{
					Kind:   ErrUnsupportedRelocation,
					File:   file.File.Name,
					Symbol: sym.Name,
					Detail: fmt.Sprintf("%s at %s+0x%x has no GOT slot", RelTypeName(rel.Type), s.Name, rel.Offset),
				}
			}
		}

		if err := kind.Apply(loc, S, A, P, G); err != nil {
			return s.relocError(ctx, err, rel)
		}
	}
	return nil
}

func (s *InputSection) relocError(ctx *Context, err error, rel *Rela) error {
	file := ctx.Objs[s.File]
	return &LinkError{
		Kind:   err,
		File:   file.File.Name,
		Symbol: file.Symbols[rel.Sym].Name,
		Detail: fmt.Sprintf("%s at %s+0x%x", RelTypeName(rel.Type), s.Name, rel.Offset),
	}
}
