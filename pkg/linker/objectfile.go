package linker

import (
	"debug/elf"
	"sort"
	"strings"

	"github.com/ksco/xld/pkg/utils"
)

type ObjectFile struct {
	InputFile
	Idx      int32
	Sections []*InputSection

	SymtabSec      *Shdr
	SymtabShndxSec []uint32

	Symbols   []*Symbol
	LocalSyms []Symbol
}

// NewObjectFile parses a relocatable object. idx is the position of the
// file on the command line and doubles as its resolution priority.
func NewObjectFile(file *File, idx int32) (*ObjectFile, error) {
	if err := CheckFileType(file); err != nil {
		return nil, err
	}
	f, err := NewInputFile(file)
	if err != nil {
		return nil, err
	}

	o := &ObjectFile{InputFile: *f, Idx: idx}
	o.Priority = uint32(idx)
	if err := o.parse(); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *ObjectFile) parse() error {
	o.SymtabSec = o.FindSection(uint32(elf.SHT_SYMTAB))
	if o.SymtabSec != nil {
		if err := o.FillUpElfSyms(o.SymtabSec); err != nil {
			return err
		}

		o.FirstGlobal = int64(o.SymtabSec.Info)
		if o.FirstGlobal > int64(len(o.ElfSyms)) || (len(o.ElfSyms) > 0 && o.FirstGlobal < 1) {
			return malformed(o.File.Name, "bad first global symbol index: %d", o.FirstGlobal)
		}

		var err error
		o.SymbolStrtab, err = o.GetBytesFromIdx(int64(o.SymtabSec.Link))
		if err != nil {
			return err
		}
	}

	if err := o.initializeSections(); err != nil {
		return err
	}
	if err := o.initializeRelocations(); err != nil {
		return err
	}
	return o.initializeSymbols()
}

func (o *ObjectFile) initializeSections() error {
	o.Sections = make([]*InputSection, len(o.ElfSections))
	for i := 0; i < len(o.ElfSections); i++ {
		shdr := &o.ElfSections[i]
		name, err := o.SectionName(shdr)
		if err != nil {
			return err
		}

		switch elf.SectionType(shdr.Type) {
		case elf.SHT_GROUP, elf.SHT_SYMTAB, elf.SHT_STRTAB, elf.SHT_RELA, elf.SHT_NULL:
			continue
		case elf.SHT_SYMTAB_SHNDX:
			if err := o.FillUpSymtabShndxSec(shdr); err != nil {
				return err
			}
			continue
		case elf.SHT_REL:
			if !o.appliesToAlloc(shdr) {
				continue
			}
			return malformed(o.File.Name, "%s: REL relocations are not used on x86-64", name)
		case elf.SHT_NOTE:
			continue
		}

		if shdr.Flags&uint64(elf.SHF_ALLOC) == 0 || shdr.Flags&uint64(SHF_EXCLUDE) != 0 {
			continue
		}
		if name == ".eh_frame" || shdr.Type == SHT_X86_64_UNWIND {
			continue
		}
		if strings.HasPrefix(name, ".gnu.warning.") {
			continue
		}
		if shdr.Flags&uint64(elf.SHF_TLS) != 0 {
			return malformed(o.File.Name, "%s: thread-local storage is not supported", name)
		}

		isec, err := NewInputSection(o, name, int64(i))
		if err != nil {
			return err
		}
		o.Sections[i] = isec
	}
	return nil
}

func (o *ObjectFile) appliesToAlloc(shdr *Shdr) bool {
	if shdr.Info >= uint32(len(o.ElfSections)) {
		return false
	}
	return o.ElfSections[shdr.Info].Flags&uint64(elf.SHF_ALLOC) != 0
}

func (o *ObjectFile) initializeRelocations() error {
	for i := 0; i < len(o.ElfSections); i++ {
		shdr := &o.ElfSections[i]
		if shdr.Type != uint32(elf.SHT_RELA) {
			continue
		}

		if shdr.Info >= uint32(len(o.Sections)) {
			return malformed(o.File.Name, "invalid relocated section index: %d", shdr.Info)
		}

		target := o.Sections[shdr.Info]
		if target == nil {
			continue
		}
		if target.Shdr.Type == uint32(elf.SHT_NOBITS) {
			return malformed(o.File.Name, "%s: relocations against a zero-fill section", target.Name)
		}
		if target.RelsecIdx != NoRelsec {
			return malformed(o.File.Name, "%s: more than one relocation section", target.Name)
		}
		if o.SymtabSec == nil || shdr.Link >= uint32(len(o.ElfSections)) ||
			&o.ElfSections[shdr.Link] != o.SymtabSec {
			return malformed(o.File.Name, "%s: relocations do not refer to the symbol table", target.Name)
		}
		target.RelsecIdx = uint32(i)

		bs, err := o.GetBytesFromShdr(shdr)
		if err != nil {
			return err
		}
		nums := len(bs) / RelaSize
		rels := make([]Rela, 0, nums)
		for nums > 0 {
			rel, err := utils.Read[Rela](bs)
			if err != nil {
				return truncated(o.File.Name, "relocation section", err)
			}
			if rel.Sym >= uint32(len(o.ElfSyms)) {
				return malformed(o.File.Name, "%s: relocation symbol index out of range: %d",
					target.Name, rel.Sym)
			}
			if rel.Offset >= target.ShSize {
				return malformed(o.File.Name, "%s: relocation offset out of range: 0x%x",
					target.Name, rel.Offset)
			}
			rels = append(rels, rel)
			bs = bs[RelaSize:]
			nums--
		}

		sort.SliceStable(rels, func(i, j int) bool {
			return rels[i].Offset < rels[j].Offset
		})
		target.Rels = rels
	}
	return nil
}

func (o *ObjectFile) initializeSymbols() error {
	if o.SymtabSec == nil {
		return nil
	}

	o.LocalSyms = make([]Symbol, o.FirstGlobal)
	for i := 0; i < len(o.LocalSyms); i++ {
		o.LocalSyms[i] = *NewSymbol("")
		o.LocalSyms[i].IsLocal = true
	}

	for i := int64(1); i < o.FirstGlobal; i++ {
		esym := &o.ElfSyms[i]
		if esym.IsCommon() {
			return malformed(o.File.Name, "common local symbol at index %d", i)
		}

		name, ok := getName(o.SymbolStrtab, esym.Name)
		if !ok {
			return malformed(o.File.Name, "bad symbol name offset: %d", esym.Name)
		}

		sym := &o.LocalSyms[i]
		sym.Value = esym.Val
		sym.Size = esym.Size
		sym.SymIdx = int32(i)

		if esym.IsUndef() {
			continue
		}
		sym.File = o.Idx

		if esym.IsAbs() {
			sym.IsAbs = true
			sym.Name = name
			continue
		}

		shndx, err := o.GetShndx(esym, i)
		if err != nil {
			return err
		}
		sym.Shndx = uint32(shndx)

		if name == "" && esym.Type() == uint8(elf.STT_SECTION) {
			name, _ = o.SectionName(&o.ElfSections[shndx])
		}
		sym.Name = name
	}

	o.Symbols = make([]*Symbol, len(o.ElfSyms))
	for i := int64(0); i < o.FirstGlobal; i++ {
		o.Symbols[i] = &o.LocalSyms[i]
	}

	for i := o.FirstGlobal; i < int64(len(o.ElfSyms)); i++ {
		esym := &o.ElfSyms[i]
		if _, ok := getName(o.SymbolStrtab, esym.Name); !ok {
			return malformed(o.File.Name, "bad symbol name offset: %d", esym.Name)
		}
		if esym.IsUndef() || esym.IsAbs() || esym.IsCommon() {
			continue
		}
		if _, err := o.GetShndx(esym, i); err != nil {
			return err
		}
	}
	return nil
}

func (o *ObjectFile) FillUpSymtabShndxSec(s *Shdr) error {
	bs, err := o.GetBytesFromShdr(s)
	if err != nil {
		return err
	}
	nums := len(bs) / 4
	o.SymtabShndxSec = make([]uint32, 0, nums)
	for nums > 0 {
		shndx, err := utils.Read[uint32](bs)
		if err != nil {
			return truncated(o.File.Name, "extended section index table", err)
		}
		o.SymtabShndxSec = append(o.SymtabShndxSec, shndx)
		bs = bs[4:]
		nums--
	}
	return nil
}

func (o *ObjectFile) GetShndx(esym *Sym, idx int64) (int64, error) {
	shndx := int64(esym.Shndx)
	if esym.Shndx == uint16(elf.SHN_XINDEX) {
		if idx >= int64(len(o.SymtabShndxSec)) {
			return 0, malformed(o.File.Name, "missing extended section index for symbol %d", idx)
		}
		shndx = int64(o.SymtabShndxSec[idx])
	} else if esym.Shndx >= uint16(elf.SHN_LORESERVE) {
		return 0, malformed(o.File.Name, "unsupported special section index 0x%x for symbol %d",
			esym.Shndx, idx)
	}

	if shndx >= int64(len(o.ElfSections)) {
		return 0, malformed(o.File.Name, "symbol %d: section index out of range: %d", idx, shndx)
	}
	return shndx, nil
}

func (o *ObjectFile) GetGlobalSyms() []*Symbol {
	return o.Symbols[o.FirstGlobal:]
}

func (o *ObjectFile) symbolName(idx int64) string {
	name, _ := getName(o.SymbolStrtab, o.ElfSyms[idx].Name)
	return name
}

// ResolveSymbols binds every global symbol of o to the shared entry and
// lets o's definitions compete for it.
func (o *ObjectFile) ResolveSymbols(ctx *Context) error {
	for i := o.FirstGlobal; i < int64(len(o.ElfSyms)); i++ {
		esym := &o.ElfSyms[i]
		sym := GetSymbolByName(ctx, o.symbolName(i))
		o.Symbols[i] = sym

		if esym.IsUndef() {
			continue
		}

		var shndx int64
		if !esym.IsAbs() && !esym.IsCommon() {
			shndx, _ = o.GetShndx(esym, i)
			if o.Sections[shndx] == nil {
				continue
			}
		}

		if esym.IsCommon() {
			if !utils.HasSingleBit(esym.Val) {
				return malformed(o.File.Name, "common symbol %q: alignment is not a power of two: %d",
					sym.Name, esym.Val)
			}
			sym.CommonSize = max(sym.CommonSize, esym.Size)
			sym.CommonAlign = max(sym.CommonAlign, esym.Val)
		}

		newRank := GetRank(o, esym)
		oldRank := sym.GetRank(ctx)
		if isStrongRank(newRank) && isStrongRank(oldRank) {
			return duplicateSymbol(ctx.Objs[sym.File].File.Name, o.File.Name, sym.Name)
		}

		if newRank < oldRank {
			sym.File = o.Idx
			sym.SymIdx = int32(i)
			sym.Shndx = uint32(shndx)
			sym.Value = esym.Val
			sym.Size = esym.Size
			sym.IsWeak = esym.IsWeak()
			sym.IsCommon = esym.IsCommon()
			sym.IsAbs = esym.IsAbs()
		}
	}
	return nil
}

// CheckUndefinedSymbols reports the first strong reference that nothing
// defines.
func (o *ObjectFile) CheckUndefinedSymbols(ctx *Context) error {
	for i := o.FirstGlobal; i < int64(len(o.ElfSyms)); i++ {
		esym := &o.ElfSyms[i]
		if !esym.IsUndef() || esym.IsWeak() {
			continue
		}
		if sym := o.Symbols[i]; !sym.IsDefined() {
			return undefinedSymbol(o.File.Name, sym.Name)
		}
	}
	return nil
}

func (o *ObjectFile) ScanRelocations(ctx *Context) error {
	for _, isec := range o.Sections {
		if isec != nil && isec.IsAlive {
			if err := isec.ScanRelocations(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}
