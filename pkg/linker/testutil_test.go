package linker

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/ksco/xld/pkg/utils"
)

type testSym struct {
	key     string
	name    string
	bind    elf.SymBind
	typ     elf.SymType
	section string
	shndx   elf.SectionIndex
	value   uint64
	size    uint64
}

type testRel struct {
	off    uint64
	typ    elf.R_X86_64
	sym    string
	addend int64
}

type testSection struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	align uint64
	data  []byte
	size  uint64
	info  uint32
	rels  []testRel
}

// objBuilder assembles a relocatable x86-64 object in memory.
type objBuilder struct {
	machine  elf.Machine
	typ      elf.Type
	class    elf.Class
	order    elf.Data
	sections []*testSection
	syms     []testSym
}

func newObj() *objBuilder {
	return &objBuilder{
		machine: elf.EM_X86_64,
		typ:     elf.ET_REL,
		class:   elf.ELFCLASS64,
		order:   elf.ELFDATA2LSB,
	}
}

func (b *objBuilder) section(name string, typ elf.SectionType, flags elf.SectionFlag, align uint64, data []byte) *objBuilder {
	b.sections = append(b.sections, &testSection{
		name:  name,
		typ:   typ,
		flags: flags,
		align: align,
		data:  data,
		size:  uint64(len(data)),
	})
	return b
}

func (b *objBuilder) text(name string, code []byte) *objBuilder {
	return b.section(name, elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_EXECINSTR, 16, code)
}

func (b *objBuilder) data(name string, data []byte) *objBuilder {
	return b.section(name, elf.SHT_PROGBITS, elf.SHF_ALLOC|elf.SHF_WRITE, 8, data)
}

func (b *objBuilder) rodata(name string, data []byte) *objBuilder {
	return b.section(name, elf.SHT_PROGBITS, elf.SHF_ALLOC, 8, data)
}

func (b *objBuilder) bss(name string, size, align uint64) *objBuilder {
	b.section(name, elf.SHT_NOBITS, elf.SHF_ALLOC|elf.SHF_WRITE, align, nil)
	b.sections[len(b.sections)-1].size = size
	return b
}

func (b *objBuilder) sym(s testSym) *objBuilder {
	if s.key == "" {
		s.key = s.name
	}
	b.syms = append(b.syms, s)
	return b
}

func (b *objBuilder) global(name, section string, value uint64) *objBuilder {
	return b.sym(testSym{name: name, bind: elf.STB_GLOBAL, section: section, value: value})
}

func (b *objBuilder) weak(name, section string, value uint64) *objBuilder {
	return b.sym(testSym{name: name, bind: elf.STB_WEAK, section: section, value: value})
}

func (b *objBuilder) local(name, section string, value uint64) *objBuilder {
	return b.sym(testSym{name: name, bind: elf.STB_LOCAL, section: section, value: value})
}

// sectionSym adds an STT_SECTION symbol that relocations can name by the
// section's name.
func (b *objBuilder) sectionSym(section string) *objBuilder {
	return b.sym(testSym{key: section, bind: elf.STB_LOCAL, typ: elf.STT_SECTION, section: section})
}

func (b *objBuilder) undef(name string) *objBuilder {
	return b.sym(testSym{name: name, bind: elf.STB_GLOBAL})
}

func (b *objBuilder) undefWeak(name string) *objBuilder {
	return b.sym(testSym{name: name, bind: elf.STB_WEAK})
}

func (b *objBuilder) common(name string, size, align uint64) *objBuilder {
	return b.sym(testSym{name: name, bind: elf.STB_GLOBAL, typ: elf.STT_OBJECT,
		shndx: elf.SHN_COMMON, value: align, size: size})
}

func (b *objBuilder) abs(name string, value uint64) *objBuilder {
	return b.sym(testSym{name: name, bind: elf.STB_GLOBAL, shndx: elf.SHN_ABS, value: value})
}

func (b *objBuilder) rela(section string, off uint64, typ elf.R_X86_64, sym string, addend int64) *objBuilder {
	_, sec := b.findSection(section)
	if sec == nil {
		panic("unknown section " + section)
	}
	sec.rels = append(sec.rels, testRel{off: off, typ: typ, sym: sym, addend: addend})
	return b
}

func (b *objBuilder) findSection(name string) (int, *testSection) {
	for i, sec := range b.sections {
		if sec.name == name {
			return i + 1, sec
		}
	}
	return 0, nil
}

type testStrtab struct {
	buf []byte
}

func (s *testStrtab) add(str string) uint32 {
	if len(s.buf) == 0 {
		s.buf = []byte{0}
	}
	if str == "" {
		return 0
	}
	off := uint32(len(s.buf))
	s.buf = append(s.buf, str...)
	s.buf = append(s.buf, 0)
	return off
}

func encode(v any) []byte {
	buf := &bytes.Buffer{}
	if err := binary.Write(buf, binary.LittleEndian, v); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func (b *objBuilder) build() []byte {
	syms := []testSym{{}}
	for _, s := range b.syms {
		if s.bind == elf.STB_LOCAL {
			syms = append(syms, s)
		}
	}
	firstGlobal := len(syms)
	for _, s := range b.syms {
		if s.bind != elf.STB_LOCAL {
			syms = append(syms, s)
		}
	}

	symIdx := make(map[string]int)
	for i, s := range syms {
		if i > 0 {
			symIdx[s.key] = i
		}
	}

	shstrtab := &testStrtab{}
	strtab := &testStrtab{}
	shstrtab.add("")
	strtab.add("")

	type outSec struct {
		shdr Shdr
		data []byte
	}
	secs := []outSec{{}}

	for _, sec := range b.sections {
		data := sec.data
		if sec.typ == elf.SHT_NOBITS {
			data = nil
		}
		secs = append(secs, outSec{
			shdr: Shdr{
				Name:      shstrtab.add(sec.name),
				Type:      uint32(sec.typ),
				Flags:     uint64(sec.flags),
				Size:      sec.size,
				Info:      sec.info,
				AddrAlign: sec.align,
			},
			data: data,
		})
	}

	symtabIdx := len(secs)
	strtabIdx := symtabIdx + 1

	var symData []byte
	for _, s := range syms {
		esym := Sym{}
		if s.bind != elf.STB_LOCAL || s.typ != 0 || s.key != "" {
			esym.Name = strtab.add(s.name)
			esym.Info = uint8(s.bind)<<4 | uint8(s.typ)
			esym.Val = s.value
			esym.Size = s.size
			esym.Shndx = uint16(s.shndx)
			if s.section != "" {
				idx, _ := b.findSection(s.section)
				if idx == 0 {
					panic("unknown section " + s.section)
				}
				esym.Shndx = uint16(idx)
			}
		}
		symData = append(symData, encode(esym)...)
	}

	secs = append(secs, outSec{
		shdr: Shdr{
			Name:      shstrtab.add(".symtab"),
			Type:      uint32(elf.SHT_SYMTAB),
			Link:      uint32(strtabIdx),
			Info:      uint32(firstGlobal),
			AddrAlign: 8,
			EntSize:   uint64(SymSize),
			Size:      uint64(len(symData)),
		},
		data: symData,
	})
	strtabPos := len(secs)
	secs = append(secs, outSec{})

	for i, sec := range b.sections {
		if len(sec.rels) == 0 {
			continue
		}
		var relData []byte
		for _, rel := range sec.rels {
			idx, ok := symIdx[rel.sym]
			if !ok {
				panic("unknown symbol " + rel.sym)
			}
			relData = append(relData, encode(Rela{
				Offset: rel.off,
				Type:   uint32(rel.typ),
				Sym:    uint32(idx),
				Addend: rel.addend,
			})...)
		}
		secs = append(secs, outSec{
			shdr: Shdr{
				Name:      shstrtab.add(".rela" + sec.name),
				Type:      uint32(elf.SHT_RELA),
				Flags:     uint64(elf.SHF_INFO_LINK),
				Link:      uint32(symtabIdx),
				Info:      uint32(i + 1),
				AddrAlign: 8,
				EntSize:   uint64(RelaSize),
				Size:      uint64(len(relData)),
			},
			data: relData,
		})
	}

	secs[strtabPos] = outSec{
		shdr: Shdr{
			Name:      shstrtab.add(".strtab"),
			Type:      uint32(elf.SHT_STRTAB),
			AddrAlign: 1,
			Size:      uint64(len(strtab.buf)),
		},
		data: strtab.buf,
	}

	shstrtabIdx := len(secs)
	name := shstrtab.add(".shstrtab")
	secs = append(secs, outSec{
		shdr: Shdr{
			Name:      name,
			Type:      uint32(elf.SHT_STRTAB),
			AddrAlign: 1,
			Size:      uint64(len(shstrtab.buf)),
		},
		data: shstrtab.buf,
	})

	buf := make([]byte, EhdrSize)
	for i := 1; i < len(secs); i++ {
		for len(buf)%8 != 0 {
			buf = append(buf, 0)
		}
		secs[i].shdr.Offset = uint64(len(buf))
		buf = append(buf, secs[i].data...)
	}
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}

	shoff := len(buf)
	for _, sec := range secs {
		buf = append(buf, encode(sec.shdr)...)
	}

	ehdr := Ehdr{
		Type:      uint16(b.typ),
		Machine:   uint16(b.machine),
		Version:   uint32(elf.EV_CURRENT),
		ShOff:     uint64(shoff),
		EhSize:    uint16(EhdrSize),
		ShEntSize: uint16(ShdrSize),
		ShNum:     uint16(len(secs)),
		ShStrndx:  uint16(shstrtabIdx),
	}
	WriteMagic(ehdr.Ident[:])
	ehdr.Ident[elf.EI_CLASS] = uint8(b.class)
	ehdr.Ident[elf.EI_DATA] = uint8(b.order)
	ehdr.Ident[elf.EI_VERSION] = uint8(elf.EV_CURRENT)
	if err := utils.Write[Ehdr](buf, ehdr); err != nil {
		panic(err)
	}

	return buf
}

func writeFile(t *testing.T, dir, name string, contents []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, contents, 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	return path
}

func parseObj(t *testing.T, b *objBuilder) (*ObjectFile, error) {
	t.Helper()
	return NewObjectFile(&File{Name: "test.o", Contents: b.build()}, 0)
}

// link writes each object to a temporary directory and links them into
// dir/a.out.
func link(t *testing.T, objs ...*objBuilder) (*Context, string, error) {
	t.Helper()
	dir := t.TempDir()
	inputs := make([]string, 0, len(objs))
	for i, obj := range objs {
		inputs = append(inputs, writeFile(t, dir, fmt.Sprintf("in%d.o", i), obj.build()))
	}

	ctx := NewContext()
	ctx.Arg.Output = filepath.Join(dir, "a.out")
	err := Link(ctx, inputs)
	return ctx, ctx.Arg.Output, err
}

func mustLink(t *testing.T, objs ...*objBuilder) (*Context, string) {
	t.Helper()
	ctx, out, err := link(t, objs...)
	if err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	return ctx, out
}

func symAddr(t *testing.T, ctx *Context, name string) uint64 {
	t.Helper()
	sym, ok := ctx.Symtab.Lookup(name)
	if !ok {
		t.Fatalf("Symbol %s is not defined", name)
	}
	return sym.GetAddr(ctx)
}

// readAt returns n bytes of the output image at virtual address addr.
func readAt(t *testing.T, ctx *Context, addr uint64, n int) []byte {
	t.Helper()
	for _, seg := range ctx.Layout.Segments {
		if addr >= seg.VAddr && addr+uint64(n) <= seg.VAddr+seg.FileSize {
			off := seg.Offset + addr - seg.VAddr
			return ctx.Buf[off : off+uint64(n)]
		}
	}
	t.Fatalf("Address 0x%x is not backed by file data", addr)
	return nil
}

func assertNoFile(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Expected no output at %s, stat returned %v", path, err)
	}
}

// Program fragments for a freestanding x86-64 Linux process.
var (
	// call extern_call; mov edi, eax; mov eax, 60; syscall
	mainCode = []byte{
		0xe8, 0x00, 0x00, 0x00, 0x00,
		0x89, 0xc7,
		0xb8, 0x3c, 0x00, 0x00, 0x00,
		0x0f, 0x05,
	}
	// mov eax, 42; ret
	libCode = []byte{0xb8, 0x2a, 0x00, 0x00, 0x00, 0xc3}
	// mov eax, 60; syscall
	exitCode = []byte{0xb8, 0x3c, 0x00, 0x00, 0x00, 0x0f, 0x05}
)

func mainObj() *objBuilder {
	return newObj().
		text(".text", mainCode).
		global("_start", ".text", 0).
		global("main", ".text", 0).
		undef("extern_call").
		rela(".text", 1, elf.R_X86_64_PLT32, "extern_call", -4)
}

func libObj() *objBuilder {
	return newObj().
		text(".text", libCode).
		global("extern_call", ".text", 0)
}
