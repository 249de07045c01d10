package linker

import (
	"fmt"
)

// Link runs every phase in order and writes the executable to
// ctx.Arg.Output. Nothing is written unless every earlier phase
// succeeded.
func Link(ctx *Context, inputs []string) error {
	if ctx.Arg.ImageBase%PageSize != 0 {
		return &LinkError{
			Kind:   ErrInvalidOption,
			Detail: fmt.Sprintf("image base 0x%x is not a multiple of the page size", ctx.Arg.ImageBase),
		}
	}

	if err := ReadInputFiles(ctx, inputs); err != nil {
		return err
	}
	if err := ResolveSymbols(ctx); err != nil {
		return err
	}

	CreateSyntheticSections(ctx)
	BinSections(ctx)

	if err := ScanRelocations(ctx); err != nil {
		return err
	}

	PlanLayout(ctx)

	if err := BuildImage(ctx); err != nil {
		return err
	}
	return WriteOutput(ctx.Arg.Output, ctx.Buf)
}

// BuildImage renders the whole output file into ctx.Buf and applies
// every relocation on the way.
func BuildImage(ctx *Context) error {
	if _, err := GetEntryAddr(ctx); err != nil {
		return err
	}

	ctx.Buf = make([]byte, ctx.Layout.FileSize)
	for _, chunk := range ctx.Layout.Chunks {
		if err := chunk.CopyBuf(ctx); err != nil {
			return err
		}
	}
	return nil
}
