package linker

import (
	"debug/elf"

	"github.com/ksco/xld/pkg/utils"
)

type InputFile struct {
	File         *File
	Ehdr         Ehdr
	ElfSections  []Shdr
	FirstGlobal  int64
	ShStrtab     []byte
	SymbolStrtab []byte

	ElfSyms  []Sym
	Priority uint32
}

func NewInputFile(file *File) (*InputFile, error) {
	f := &InputFile{File: file}
	contents := file.Contents
	if len(contents) < EhdrSize {
		return nil, malformed(file.Name, "file too small")
	}
	if !CheckMagic(contents) {
		return nil, malformed(file.Name, "not an ELF file")
	}
	if contents[elf.EI_CLASS] != byte(elf.ELFCLASS64) {
		return nil, malformed(file.Name, "unsupported ELF class: %s", elf.Class(contents[elf.EI_CLASS]))
	}
	if contents[elf.EI_DATA] != byte(elf.ELFDATA2LSB) {
		return nil, malformed(file.Name, "unsupported byte order: %s", elf.Data(contents[elf.EI_DATA]))
	}
	if contents[elf.EI_VERSION] != byte(elf.EV_CURRENT) {
		return nil, malformed(file.Name, "unsupported ELF version: %d", contents[elf.EI_VERSION])
	}

	ehdr, err := utils.Read[Ehdr](contents)
	if err != nil {
		return nil, truncated(file.Name, "ELF header", err)
	}
	f.Ehdr = ehdr
	if elf.Type(ehdr.Type) != elf.ET_REL {
		return nil, malformed(file.Name, "not a relocatable object: %s", elf.Type(ehdr.Type))
	}
	if ehdr.ShOff == 0 || ehdr.ShOff+uint64(ShdrSize) > uint64(len(contents)) ||
		ehdr.ShOff+uint64(ShdrSize) < ehdr.ShOff {
		return nil, malformed(file.Name, "section header table is out of range: %d", ehdr.ShOff)
	}
	if int(ehdr.ShEntSize) != ShdrSize {
		return nil, malformed(file.Name, "bad section header size: %d", ehdr.ShEntSize)
	}

	table := contents[ehdr.ShOff:]
	shdr, err := utils.Read[Shdr](table)
	if err != nil {
		return nil, truncated(file.Name, "section header", err)
	}

	numSections := uint64(ehdr.ShNum)
	if numSections == 0 {
		numSections = shdr.Size
	}
	if numSections == 0 || numSections > uint64(len(table)/ShdrSize) {
		return nil, malformed(file.Name, "bad section count: %d", numSections)
	}

	f.ElfSections = []Shdr{shdr}
	for numSections > 1 {
		table = table[ShdrSize:]
		sec, err := utils.Read[Shdr](table)
		if err != nil {
			return nil, truncated(file.Name, "section header", err)
		}
		f.ElfSections = append(f.ElfSections, sec)
		numSections--
	}

	shstrtabIdx := int64(ehdr.ShStrndx)
	if ehdr.ShStrndx == uint16(elf.SHN_XINDEX) {
		shstrtabIdx = int64(shdr.Link)
	}

	if f.ShStrtab, err = f.GetBytesFromIdx(shstrtabIdx); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *InputFile) GetBytesFromShdr(s *Shdr) ([]byte, error) {
	if s.Type == uint32(elf.SHT_NOBITS) {
		return nil, nil
	}

	end := s.Offset + s.Size
	if end < s.Offset || uint64(len(f.File.Contents)) < end {
		return nil, malformed(f.File.Name, "section is out of range: offset %d size %d", s.Offset, s.Size)
	}

	return f.File.Contents[s.Offset:end], nil
}

func (f *InputFile) GetBytesFromIdx(idx int64) ([]byte, error) {
	if idx < 0 || idx >= int64(len(f.ElfSections)) {
		return nil, malformed(f.File.Name, "section index out of range: %d", idx)
	}
	return f.GetBytesFromShdr(&f.ElfSections[idx])
}

func (f *InputFile) FillUpElfSyms(s *Shdr) error {
	bs, err := f.GetBytesFromShdr(s)
	if err != nil {
		return err
	}
	nums := len(bs) / SymSize
	elfSyms := make([]Sym, 0, nums)
	for nums > 0 {
		sym, err := utils.Read[Sym](bs)
		if err != nil {
			return truncated(f.File.Name, "symbol table", err)
		}
		elfSyms = append(elfSyms, sym)
		bs = bs[SymSize:]
		nums--
	}

	f.ElfSyms = elfSyms
	return nil
}

func (f *InputFile) FindSection(ty uint32) *Shdr {
	for i := 0; i < len(f.ElfSections); i++ {
		sec := &f.ElfSections[i]
		if sec.Type == ty {
			return sec
		}
	}
	return nil
}

func (f *InputFile) GetEhdr() Ehdr {
	return f.Ehdr
}

func (f *InputFile) SectionName(shdr *Shdr) (string, error) {
	name, ok := getName(f.ShStrtab, shdr.Name)
	if !ok {
		return "", malformed(f.File.Name, "bad section name offset: %d", shdr.Name)
	}
	return name, nil
}
