package linker

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

type OutputEhdr struct {
	Chunk
}

func NewOutputEhdr() *OutputEhdr {
	return &OutputEhdr{
		Chunk: Chunk{
			Shdr: Shdr{
				Flags:     uint64(elf.SHF_ALLOC),
				Size:      uint64(EhdrSize),
				AddrAlign: 8,
			},
		},
	}
}

func (o *OutputEhdr) Kind() int {
	return ChunkKindHeader
}

// GetEntryAddr returns the address of the configured entry symbol. The
// entry must be a defined global.
func GetEntryAddr(ctx *Context) (uint64, error) {
	sym, ok := ctx.Symtab.Lookup(ctx.Arg.Entry)
	if !ok {
		return 0, &LinkError{Kind: ErrMissingEntryPoint, Symbol: ctx.Arg.Entry}
	}
	return sym.GetAddr(ctx), nil
}

func (o *OutputEhdr) CopyBuf(ctx *Context) error {
	entry, err := GetEntryAddr(ctx)
	if err != nil {
		return err
	}

	ehdr := &Ehdr{}
	WriteMagic(ehdr.Ident[:])
	ehdr.Ident[elf.EI_CLASS] = uint8(elf.ELFCLASS64)
	ehdr.Ident[elf.EI_DATA] = uint8(elf.ELFDATA2LSB)
	ehdr.Ident[elf.EI_VERSION] = uint8(elf.EV_CURRENT)
	ehdr.Ident[elf.EI_OSABI] = uint8(elf.ELFOSABI_NONE)
	ehdr.Ident[elf.EI_ABIVERSION] = 0
	ehdr.Type = uint16(elf.ET_EXEC)
	ehdr.Machine = uint16(elf.EM_X86_64)
	ehdr.Version = uint32(elf.EV_CURRENT)
	ehdr.Entry = entry
	ehdr.PhOff = ctx.Phdr.Shdr.Offset
	ehdr.ShOff = ctx.Shdr.Shdr.Offset
	ehdr.EhSize = uint16(EhdrSize)
	ehdr.PhEntSize = uint16(PhdrSize)
	ehdr.PhNum = uint16(len(ctx.Layout.Phdrs))
	ehdr.ShEntSize = uint16(ShdrSize)
	ehdr.ShNum = uint16(ctx.Shdr.Shdr.Size / uint64(ShdrSize))
	ehdr.ShStrndx = uint16(ctx.Shstrtab.Shndx)

	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, ehdr); err != nil {
		return err
	}
	copy(ctx.Buf[o.Shdr.Offset:], buf.Bytes())
	return nil
}
