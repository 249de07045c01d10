package linker

import (
	"runtime"

	"github.com/ksco/xld/pkg/utils"
)

type ContextArg struct {
	Output    string
	Entry     string
	Emulation MachineType
	ImageBase uint64
	Jobs      int
	Verbose   bool
	Dump      bool
}

type Context struct {
	Arg ContextArg

	SymbolMap map[string]*Symbol
	Symtab    *SymbolTable
	Layout    *LayoutPlan

	Ehdr     *OutputEhdr
	Shdr     *OutputShdr
	Phdr     *OutputPhdr
	Shstrtab *StrtabSection
	Got      *GotSection

	Buf []byte

	Objs        []*ObjectFile
	InternalObj *ObjectFile

	Chunks []Chunker

	OutputSections []*OutputSection
}

func NewContext() *Context {
	return &Context{
		Arg: ContextArg{
			Emulation: MachineTypeNone,
			Output:    "a.out",
			Entry:     "_start",
			ImageBase: ImageBase,
			Jobs:      runtime.NumCPU(),
		},
		SymbolMap: make(map[string]*Symbol),
	}
}

func (ctx *Context) Logf(format string, args ...any) {
	if ctx.Arg.Verbose {
		utils.Info(format, args...)
	}
}
