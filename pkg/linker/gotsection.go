package linker

import (
	"debug/elf"

	"github.com/ksco/xld/pkg/utils"
)

// GotEntry is one 8-byte slot of the static GOT.
type GotEntry struct {
	Idx int64
	Val uint64
}

// GotSection holds the address of every symbol reached through a
// GOTPCREL relocation. Output is static, so the slots are filled at
// link time and nothing patches them at run time.
type GotSection struct {
	Chunk
	GotSyms []*Symbol
	idx     map[*Symbol]int32
}

func NewGotSection() *GotSection {
	g := &GotSection{Chunk: NewChunk(), idx: make(map[*Symbol]int32)}
	g.Name = ".got"
	g.Shdr.Type = uint32(elf.SHT_PROGBITS)
	g.Shdr.Flags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE)
	g.Shdr.AddrAlign = 8
	return g
}

func (g *GotSection) AddGotSymbol(sym *Symbol) {
	if _, ok := g.idx[sym]; ok {
		return
	}
	g.idx[sym] = int32(len(g.GotSyms))
	g.Shdr.Size += 8
	g.GotSyms = append(g.GotSyms, sym)
}

// GetEntryAddr returns the address of sym's slot. ok is false if sym was
// never added.
func (g *GotSection) GetEntryAddr(sym *Symbol) (addr uint64, ok bool) {
	idx, ok := g.idx[sym]
	if !ok {
		return 0, false
	}
	return g.Shdr.Addr + uint64(idx)*8, true
}

func (g *GotSection) GetEntries(ctx *Context) []GotEntry {
	entries := make([]GotEntry, 0, len(g.GotSyms))
	for i, sym := range g.GotSyms {
		entries = append(entries, GotEntry{Idx: int64(i), Val: sym.GetAddr(ctx)})
	}
	return entries
}

func (g *GotSection) CopyBuf(ctx *Context) error {
	buf := ctx.Buf[g.Shdr.Offset:]
	for _, ent := range g.GetEntries(ctx) {
		if err := utils.Write[uint64](buf[ent.Idx*8:], ent.Val); err != nil {
			return err
		}
	}
	return nil
}
