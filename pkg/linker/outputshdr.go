package linker

import (
	"github.com/ksco/xld/pkg/utils"
)

type OutputShdr struct {
	Chunk
}

func NewOutputShdr() *OutputShdr {
	o := &OutputShdr{Chunk: NewChunk()}
	o.Shdr.AddrAlign = 8
	return o
}

func (o *OutputShdr) UpdateShdr(ctx *Context) {
	n := uint64(0)
	for _, chunk := range ctx.Chunks {
		if chunk.GetShndx() > 0 {
			n = max(n, uint64(chunk.GetShndx()))
		}
	}

	o.Shdr.Size = (n + 1) * uint64(ShdrSize)
}

func (o *OutputShdr) Kind() int {
	return ChunkKindHeader
}

func (o *OutputShdr) CopyBuf(ctx *Context) error {
	base := ctx.Buf[o.Shdr.Offset:]
	if err := utils.Write[Shdr](base, Shdr{}); err != nil {
		return err
	}

	for _, chunk := range ctx.Layout.Chunks {
		if chunk.GetShndx() > 0 {
			err := utils.Write[Shdr](base[chunk.GetShndx()*int64(ShdrSize):], *chunk.GetShdr())
			if err != nil {
				return err
			}
		}
	}
	return nil
}
