package linker

import (
	"bufio"
	"debug/elf"
	"fmt"
	"io"
)

// Dump prints the header, sections, symbols and relocations of a parsed
// object. Sections the linker drops are listed with kind "-".
func Dump(w io.Writer, obj *ObjectFile) error {
	bw := bufio.NewWriter(w)
	ehdr := obj.GetEhdr()

	fmt.Fprintf(bw, "%s: %s %s, %d sections, %d symbols\n", obj.File.Name,
		elf.Type(ehdr.Type), elf.Machine(ehdr.Machine), len(obj.ElfSections), len(obj.ElfSyms))

	fmt.Fprintf(bw, "\nsections:\n")
	for i := 1; i < len(obj.ElfSections); i++ {
		shdr := &obj.ElfSections[i]
		name, _ := obj.SectionName(shdr)
		kind := "-"
		if isec := obj.Sections[i]; isec != nil {
			kind = isec.Kind().String()
		}
		fmt.Fprintf(bw, "%4d  %-20s %-14s %-8s size=0x%x align=%d flags=%s\n", i, name,
			elf.SectionType(shdr.Type), kind, shdr.Size, shdr.AddrAlign, elf.SectionFlag(shdr.Flags))
	}

	fmt.Fprintf(bw, "\nsymbols:\n")
	for i := 1; i < len(obj.ElfSyms); i++ {
		esym := &obj.ElfSyms[i]
		fmt.Fprintf(bw, "%4d  %016x %6d %-12s %-10s %-4s %s\n", i, esym.Val, esym.Size,
			elf.SymType(esym.Type()), elf.SymBind(esym.Bind()), dumpShndx(esym), obj.dumpSymName(i))
	}

	for _, isec := range obj.Sections {
		if isec == nil || len(isec.Rels) == 0 {
			continue
		}
		fmt.Fprintf(bw, "\nrelocations for %s:\n", isec.Name)
		for _, rel := range isec.Rels {
			fmt.Fprintf(bw, "  %08x  %-22s %s%+d\n", rel.Offset, RelTypeName(rel.Type),
				obj.dumpSymName(int(rel.Sym)), rel.Addend)
		}
	}

	return bw.Flush()
}

func dumpShndx(esym *Sym) string {
	switch {
	case esym.IsUndef():
		return "UND"
	case esym.IsAbs():
		return "ABS"
	case esym.IsCommon():
		return "COM"
	}
	return fmt.Sprint(esym.Shndx)
}

func (o *ObjectFile) dumpSymName(idx int) string {
	esym := &o.ElfSyms[idx]
	name, _ := getName(o.SymbolStrtab, esym.Name)
	if name == "" && esym.Type() == uint8(elf.STT_SECTION) && int(esym.Shndx) < len(o.ElfSections) {
		name, _ = o.SectionName(&o.ElfSections[esym.Shndx])
	}
	return name
}
