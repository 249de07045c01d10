package linker

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"unicode"
)

type FileType = int8

const (
	FileTypeUnknown FileType = iota
	FileTypeEmpty   FileType = iota
	FileTypeObject  FileType = iota
	FileTypeExec    FileType = iota
	FileTypeDso     FileType = iota
	FileTypeAr      FileType = iota
	FileTypeThinAr  FileType = iota
	FileTypeText    FileType = iota
)

func GetFileType(contents []byte) FileType {
	if len(contents) == 0 {
		return FileTypeEmpty
	}

	if CheckMagic(contents) {
		if len(contents) < 18 {
			return FileTypeUnknown
		}
		et := elf.Type(binary.LittleEndian.Uint16(contents[16:]))
		switch et {
		case elf.ET_REL:
			return FileTypeObject
		case elf.ET_EXEC:
			return FileTypeExec
		case elf.ET_DYN:
			return FileTypeDso
		}
		return FileTypeUnknown
	}

	if bytes.HasPrefix(contents, []byte("!<arch>\n")) {
		return FileTypeAr
	}
	if bytes.HasPrefix(contents, []byte("!<thin>\n")) {
		return FileTypeThinAr
	}

	isTextFile := func() bool {
		return len(contents) >= 4 &&
			unicode.IsPrint(rune(contents[0])) &&
			unicode.IsPrint(rune(contents[1])) &&
			unicode.IsPrint(rune(contents[2])) &&
			unicode.IsPrint(rune(contents[3]))
	}

	if isTextFile() {
		return FileTypeText
	}

	return FileTypeUnknown
}

// CheckFileType rejects everything but relocatable objects.
func CheckFileType(file *File) error {
	switch GetFileType(file.Contents) {
	case FileTypeObject:
		return nil
	case FileTypeEmpty:
		return malformed(file.Name, "empty file")
	case FileTypeAr, FileTypeThinAr:
		return malformed(file.Name, "archive files are not supported")
	case FileTypeDso:
		return malformed(file.Name, "shared objects are not supported")
	case FileTypeExec:
		return malformed(file.Name, "not a relocatable object")
	case FileTypeText:
		return malformed(file.Name, "linker scripts are not supported")
	}
	if !CheckMagic(file.Contents) {
		return malformed(file.Name, "not an ELF file")
	}
	return malformed(file.Name, "not a relocatable object")
}

func CheckFileCompatibility(ctx *Context, file *File) error {
	mt := GetMachineTypeFromContents(file.Contents)
	if mt != ctx.Arg.Emulation {
		return incompatible(file.Name, "%s object in a %s link",
			MachineTypeStringer{mt}, MachineTypeStringer{ctx.Arg.Emulation})
	}
	return nil
}
