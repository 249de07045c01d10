package linker

import (
	"debug/elf"
	"math"
	"sort"

	"github.com/ksco/xld/pkg/utils"
)

// ResolveSymbols merges the global symbols of all inputs and freezes the
// result into ctx.Symtab. Nothing may change a Symbol after this returns.
func ResolveSymbols(ctx *Context) error {
	for _, file := range ctx.Objs {
		if err := file.ResolveSymbols(ctx); err != nil {
			return err
		}
	}

	for _, file := range ctx.Objs {
		if err := file.CheckUndefinedSymbols(ctx); err != nil {
			return err
		}
	}

	if err := CreateInternalFile(ctx); err != nil {
		return err
	}

	ctx.Symtab = newSymbolTable(ctx.SymbolMap)
	ctx.Logf("resolved %d global symbols", ctx.Symtab.Len())
	return nil
}

// CreateInternalFile allocates the common symbols that won resolution in
// a zero-filled .bss section owned by a synthetic object.
func CreateInternalFile(ctx *Context) error {
	commons := make([]*Symbol, 0)
	for _, file := range ctx.Objs {
		for i := file.FirstGlobal; i < int64(len(file.ElfSyms)); i++ {
			sym := file.Symbols[i]
			if sym.IsCommon && sym.File == file.Idx && sym.SymIdx == int32(i) {
				commons = append(commons, sym)
			}
		}
	}

	if len(commons) == 0 {
		return nil
	}

	offset := uint64(0)
	align := uint64(1)
	for _, sym := range commons {
		a := max(sym.CommonAlign, 1)
		offset = utils.AlignTo(offset, a)
		sym.Value = offset
		sym.Size = sym.CommonSize
		offset += sym.CommonSize
		align = max(align, a)
	}

	obj := &ObjectFile{Idx: int32(len(ctx.Objs))}
	obj.File = &File{Name: "<internal>"}
	obj.Priority = uint32(obj.Idx)
	obj.ShStrtab = []byte("\x00.bss\x00")
	obj.ElfSections = []Shdr{{}, {
		Name:      1,
		Type:      uint32(elf.SHT_NOBITS),
		Flags:     uint64(elf.SHF_ALLOC | elf.SHF_WRITE),
		Size:      offset,
		AddrAlign: align,
	}}

	isec, err := NewInputSection(obj, ".bss", 1)
	if err != nil {
		return err
	}
	obj.Sections = []*InputSection{nil, isec}

	for _, sym := range commons {
		sym.File = obj.Idx
		sym.Shndx = 1
	}

	ctx.InternalObj = obj
	ctx.Objs = append(ctx.Objs, obj)
	ctx.Logf("allocated %d common symbols (%d bytes)", len(commons), offset)
	return nil
}

func CreateSyntheticSections(ctx *Context) {
	push := func(chunk Chunker) Chunker {
		ctx.Chunks = append(ctx.Chunks, chunk)
		return chunk
	}

	ctx.Ehdr = push(NewOutputEhdr()).(*OutputEhdr)
	ctx.Phdr = push(NewOutputPhdr()).(*OutputPhdr)
	ctx.Shdr = push(NewOutputShdr()).(*OutputShdr)
	ctx.Shstrtab = push(NewStrtabSection(".shstrtab")).(*StrtabSection)

	ctx.Got = push(NewGotSection()).(*GotSection)
}

// BinSections assigns every live input section to its output section,
// in input order and then section order.
func BinSections(ctx *Context) {
	for _, file := range ctx.Objs {
		for _, isec := range file.Sections {
			if isec == nil || !isec.IsAlive {
				continue
			}

			osec := GetOutputSectionInstance(ctx, isec.Name, isec.Shdr.Type, isec.Shdr.Flags)
			isec.OutputSection = osec.Idx
			osec.Members = append(osec.Members, isec)
		}
	}
}

func CollectOutputSections(ctx *Context) []Chunker {
	osecs := make([]Chunker, 0)
	for _, osec := range ctx.OutputSections {
		if len(osec.Members) != 0 {
			osecs = append(osecs, osec)
		}
	}
	return osecs
}

func ScanRelocations(ctx *Context) error {
	for _, file := range ctx.Objs {
		if err := file.ScanRelocations(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ComputeSectionSizes places each member at the next offset its own
// alignment allows. The strictest member alignment becomes the output
// section's alignment.
func ComputeSectionSizes(ctx *Context) {
	for _, osec := range ctx.OutputSections {
		offset := uint64(0)
		p2align := uint8(0)

		for _, isec := range osec.Members {
			offset = utils.AlignTo(offset, 1<<isec.P2Align)
			isec.Offset = offset
			offset += isec.ShSize
			p2align = max(p2align, isec.P2Align)
		}

		osec.Shdr.Size = offset
		osec.Shdr.AddrAlign = 1 << p2align
	}
}

func SortOutputSections(ctx *Context) {
	getRank := func(chunk Chunker) int32 {
		typ := chunk.GetShdr().Type
		flags := chunk.GetShdr().Flags

		if chunk == ctx.Ehdr {
			return 0
		}
		if chunk == ctx.Phdr {
			return 1
		}
		if flags&uint64(elf.SHF_ALLOC) == 0 {
			if chunk == ctx.Shdr {
				return math.MaxInt32
			}
			return math.MaxInt32 - 1
		}

		b2i := func(b bool) int {
			if b {
				return 1
			}
			return 0
		}

		writeable := b2i(flags&uint64(elf.SHF_WRITE) != 0)
		notExec := b2i(flags&uint64(elf.SHF_EXECINSTR) == 0)
		isBss := b2i(typ == uint32(elf.SHT_NOBITS))

		return int32((1 << 10) | writeable<<9 | notExec<<8 | isBss<<5)
	}

	sort.SliceStable(ctx.Chunks, func(i, j int) bool {
		return getRank(ctx.Chunks[i]) < getRank(ctx.Chunks[j])
	})
}

// doSetOsecOffsets assigns addresses from the image base, moving to a
// new page whenever the segment permissions change. Loaded chunks sit at
// file offset addr-base so every segment's offset and address agree
// modulo the page size.
func doSetOsecOffsets(ctx *Context) uint64 {
	base := ctx.Arg.ImageBase
	addr := base
	prevFlags := uint32(0)

	for _, chunk := range ctx.Chunks {
		shdr := chunk.GetShdr()
		if shdr.Flags&uint64(elf.SHF_ALLOC) == 0 {
			continue
		}

		if shdr.Size > 0 {
			flags := toPhdrFlags(chunk)
			if prevFlags != 0 && flags != prevFlags {
				addr = utils.AlignTo(addr, PageSize)
			}
			prevFlags = flags
		}

		addr = utils.AlignTo(addr, shdr.AddrAlign)
		shdr.Addr = addr
		shdr.Offset = addr - base
		addr += shdr.Size
	}

	fileoff := uint64(0)
	for _, chunk := range ctx.Chunks {
		shdr := chunk.GetShdr()
		if shdr.Flags&uint64(elf.SHF_ALLOC) != 0 && shdr.Type != uint32(elf.SHT_NOBITS) {
			fileoff = max(fileoff, shdr.Offset+shdr.Size)
		}
	}

	for _, chunk := range ctx.Chunks {
		shdr := chunk.GetShdr()
		if shdr.Flags&uint64(elf.SHF_ALLOC) != 0 {
			continue
		}
		fileoff = utils.AlignTo(fileoff, shdr.AddrAlign)
		shdr.Offset = fileoff
		fileoff += shdr.Size
	}
	return fileoff
}

func SetOsecOffsets(ctx *Context) uint64 {
	for {
		fileoff := doSetOsecOffsets(ctx)

		size := ctx.Phdr.Shdr.Size
		ctx.Phdr.UpdateShdr(ctx)

		if size == ctx.Phdr.Shdr.Size {
			return fileoff
		}
	}
}
