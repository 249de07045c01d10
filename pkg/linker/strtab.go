package linker

import (
	"debug/elf"
)

// StrtabSection holds the names of the emitted section headers.
type StrtabSection struct {
	Chunk
	contents []byte
}

func NewStrtabSection(name string) *StrtabSection {
	s := &StrtabSection{Chunk: NewChunk()}
	s.Name = name
	s.Shdr.Type = uint32(elf.SHT_STRTAB)
	return s
}

func (s *StrtabSection) UpdateShdr(ctx *Context) {
	s.contents = []byte{0}
	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() <= 0 {
			continue
		}
		chunk.GetShdr().Name = uint32(len(s.contents))
		buf := make([]byte, len(chunk.GetName())+1)
		writeString(buf, chunk.GetName())
		s.contents = append(s.contents, buf...)
	}
	s.Shdr.Size = uint64(len(s.contents))
}

func (s *StrtabSection) CopyBuf(ctx *Context) error {
	copy(ctx.Buf[s.Shdr.Offset:], s.contents)
	return nil
}
