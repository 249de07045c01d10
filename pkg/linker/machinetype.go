package linker

import (
	"debug/elf"
	"encoding/binary"
)

type MachineType = int8

const (
	MachineTypeNone   MachineType = iota
	MachineTypeX86_64 MachineType = iota
)

func GetMachineTypeFromContents(contents []byte) MachineType {
	ft := GetFileType(contents)

	switch ft {
	case FileTypeObject, FileTypeExec, FileTypeDso:
		if len(contents) < 20 {
			return MachineTypeNone
		}
		machine := binary.LittleEndian.Uint16(contents[18:])
		if machine == uint16(elf.EM_X86_64) &&
			contents[elf.EI_CLASS] == byte(elf.ELFCLASS64) &&
			contents[elf.EI_DATA] == byte(elf.ELFDATA2LSB) {
			return MachineTypeX86_64
		}
	}

	return MachineTypeNone
}

type MachineTypeStringer struct {
	MachineType
}

func (mts MachineTypeStringer) String() string {
	switch mts.MachineType {
	case MachineTypeX86_64:
		return "x86_64"
	}
	return "none"
}
