package linker

import (
	"debug/elf"

	"github.com/ksco/xld/pkg/utils"
)

type SectionKey struct {
	File  int32
	Shndx uint32
}

// Placement says where an input section ended up.
type Placement struct {
	OutputSection *OutputSection
	Offset        uint64
}

func (p Placement) Addr() uint64 {
	return p.OutputSection.Shdr.Addr + p.Offset
}

// LayoutPlan is the result of PlanLayout. It is not modified afterwards;
// relocation and image output read addresses and offsets only from here.
// Phdrs is the full program header table and Segments its PT_LOAD subset.
type LayoutPlan struct {
	Chunks         []Chunker
	OutputSections []*OutputSection
	Phdrs          []Phdr
	Segments       []Phdr
	FileSize       uint64

	placements map[SectionKey]Placement
}

func (p *LayoutPlan) Placement(file int32, shndx uint32) (Placement, bool) {
	pl, ok := p.placements[SectionKey{File: file, Shndx: shndx}]
	return pl, ok
}

func (p *LayoutPlan) SectionAddr(file int32, shndx uint32) (uint64, bool) {
	pl, ok := p.Placement(file, shndx)
	if !ok {
		return 0, false
	}
	return pl.Addr(), true
}

// PlanLayout sizes, orders and places every chunk of the output file.
// Relocations must already have been scanned so the GOT size is known.
func PlanLayout(ctx *Context) {
	ComputeSectionSizes(ctx)
	ctx.Chunks = append(ctx.Chunks, CollectOutputSections(ctx)...)
	SortOutputSections(ctx)

	for _, chunk := range ctx.Chunks {
		chunk.UpdateShdr(ctx)
	}

	ctx.Chunks = utils.RemoveIf[Chunker](ctx.Chunks, func(chunk Chunker) bool {
		return chunk.Kind() != ChunkKindOutputSection && chunk.GetShdr().Size == 0
	})

	shndx := int64(1)
	for i := 0; i < len(ctx.Chunks); i++ {
		if ctx.Chunks[i].Kind() != ChunkKindHeader {
			ctx.Chunks[i].SetShndx(shndx)
			shndx++
		}
	}

	for _, chunk := range ctx.Chunks {
		chunk.UpdateShdr(ctx)
	}

	fileSize := SetOsecOffsets(ctx)
	ctx.Layout = newLayoutPlan(ctx, fileSize)
	ctx.Logf("layout: %d chunks, %d segments, %d bytes",
		len(ctx.Chunks), len(ctx.Layout.Segments), fileSize)
}

func newLayoutPlan(ctx *Context, fileSize uint64) *LayoutPlan {
	plan := &LayoutPlan{
		Chunks:     append([]Chunker(nil), ctx.Chunks...),
		Phdrs:      append([]Phdr(nil), ctx.Phdr.Phdrs...),
		FileSize:   fileSize,
		placements: make(map[SectionKey]Placement),
	}

	for _, chunk := range plan.Chunks {
		if osec, ok := chunk.(*OutputSection); ok {
			plan.OutputSections = append(plan.OutputSections, osec)
			for _, isec := range osec.Members {
				plan.placements[SectionKey{File: isec.File, Shndx: isec.Shndx}] = Placement{
					OutputSection: osec,
					Offset:        isec.Offset,
				}
			}
		}
	}

	for _, phdr := range plan.Phdrs {
		if phdr.Type == uint32(elf.PT_LOAD) {
			plan.Segments = append(plan.Segments, phdr)
		}
	}
	return plan
}
