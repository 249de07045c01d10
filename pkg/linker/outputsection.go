package linker

import (
	"debug/elf"
)

const permFlags = uint64(elf.SHF_ALLOC | elf.SHF_WRITE | elf.SHF_EXECINSTR)

type OutputSection struct {
	Chunk
	Members []*InputSection
	Idx     uint32
}

func NewOutputSection(name string, typ uint32, flags uint64, idx uint32) *OutputSection {
	o := &OutputSection{Chunk: NewChunk()}
	o.Name = name
	o.Shdr.Type = typ
	o.Shdr.Flags = flags
	o.Idx = idx
	return o
}

// GetOutputSectionInstance returns the output section for an input
// section name, creating it on first use. Sections that share a name
// share an output section; its permissions are the union of the
// members' and it is zero-fill only if every member is.
func GetOutputSectionInstance(ctx *Context, name string, typ uint32, flags uint64) *OutputSection {
	name = GetOutputName(name)
	typ = CanonicalizeType(name, typ)
	flags = flags & permFlags

	if typ == uint32(elf.SHT_INIT_ARRAY) || typ == uint32(elf.SHT_FINI_ARRAY) {
		flags |= uint64(elf.SHF_WRITE)
	}

	for _, osec := range ctx.OutputSections {
		if osec.Name == name {
			osec.Shdr.Flags |= flags
			if osec.Shdr.Type == uint32(elf.SHT_NOBITS) && typ != uint32(elf.SHT_NOBITS) {
				osec.Shdr.Type = typ
			}
			return osec
		}
	}

	osec := NewOutputSection(name, typ, flags, uint32(len(ctx.OutputSections)))
	ctx.OutputSections = append(ctx.OutputSections, osec)
	return osec
}

func (o *OutputSection) Kind() int {
	return ChunkKindOutputSection
}

func (o *OutputSection) CopyBuf(ctx *Context) error {
	if o.Shdr.Type == uint32(elf.SHT_NOBITS) {
		return nil
	}

	buf := ctx.Buf[o.Shdr.Offset:]
	for _, isec := range o.Members {
		pl, ok := ctx.Layout.Placement(isec.File, isec.Shndx)
		if !ok {
			continue
		}
		if err := isec.WriteTo(ctx, buf[pl.Offset:]); err != nil {
			return err
		}
	}
	return nil
}
