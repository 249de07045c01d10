package linker

import (
	"debug/elf"
	"math"

	"github.com/ksco/xld/pkg/utils"
)

// RelocKind is the closed set of relocations the linker can apply. Each
// ELF type maps to exactly one kind; anything else is rejected up front.
type RelocKind uint8

const (
	RelocNone RelocKind = iota
	RelocAbs64
	RelocAbs32
	RelocAbs32S
	RelocAbs16
	RelocAbs8
	RelocPC64
	RelocPC32
	RelocPC16
	RelocPC8
	RelocGotPC32
)

func GetRelocKind(typ uint32) (RelocKind, error) {
	switch elf.R_X86_64(typ) {
	case elf.R_X86_64_NONE:
		return RelocNone, nil
	case elf.R_X86_64_64:
		return RelocAbs64, nil
	case elf.R_X86_64_32:
		return RelocAbs32, nil
	case elf.R_X86_64_32S:
		return RelocAbs32S, nil
	case elf.R_X86_64_16:
		return RelocAbs16, nil
	case elf.R_X86_64_8:
		return RelocAbs8, nil
	case elf.R_X86_64_PC64:
		return RelocPC64, nil
	case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
		return RelocPC32, nil
	case elf.R_X86_64_PC16:
		return RelocPC16, nil
	case elf.R_X86_64_PC8:
		return RelocPC8, nil
	case elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
		return RelocGotPC32, nil
	}
	return RelocNone, ErrUnsupportedRelocation
}

func RelTypeName(typ uint32) string {
	return elf.R_X86_64(typ).String()
}

// Size is the width of the patched field in bytes.
func (k RelocKind) Size() int {
	switch k {
	case RelocAbs64, RelocPC64:
		return 8
	case RelocAbs32, RelocAbs32S, RelocPC32, RelocGotPC32:
		return 4
	case RelocAbs16, RelocPC16:
		return 2
	case RelocAbs8, RelocPC8:
		return 1
	}
	return 0
}

func (k RelocKind) NeedsGot() bool {
	return k == RelocGotPC32
}

// Apply writes the relocated value into loc. S is the symbol address, A
// the addend, P the address of loc and G the address of the symbol's GOT
// slot.
func (k RelocKind) Apply(loc []byte, S, A, P, G uint64) error {
	switch k {
	case RelocNone:
		return nil
	case RelocAbs64:
		return utils.Write[uint64](loc, S+A)
	case RelocPC64:
		return utils.Write[uint64](loc, S+A-P)
	case RelocAbs32:
		val := S + A
		if val > math.MaxUint32 {
			return ErrRelocationOverflow
		}
		return utils.Write[uint32](loc, uint32(val))
	case RelocAbs32S:
		val := int64(S + A)
		if !fitsSigned(val, 32) {
			return ErrRelocationOverflow
		}
		return utils.Write[uint32](loc, uint32(val))
	case RelocPC32:
		val := int64(S + A - P)
		if !fitsSigned(val, 32) {
			return ErrRelocationOverflow
		}
		return utils.Write[uint32](loc, uint32(val))
	case RelocGotPC32:
		val := int64(G + A - P)
		if !fitsSigned(val, 32) {
			return ErrRelocationOverflow
		}
		return utils.Write[uint32](loc, uint32(val))
	case RelocAbs16:
		val := S + A
		if !fitsSigned(int64(val), 16) && val > math.MaxUint16 {
			return ErrRelocationOverflow
		}
		return utils.Write[uint16](loc, uint16(val))
	case RelocPC16:
		val := int64(S + A - P)
		if !fitsSigned(val, 16) {
			return ErrRelocationOverflow
		}
		return utils.Write[uint16](loc, uint16(val))
	case RelocAbs8:
		val := S + A
		if !fitsSigned(int64(val), 8) && val > math.MaxUint8 {
			return ErrRelocationOverflow
		}
		loc[0] = uint8(val)
	case RelocPC8:
		val := int64(S + A - P)
		if !fitsSigned(val, 8) {
			return ErrRelocationOverflow
		}
		loc[0] = uint8(val)
	default:
		return ErrUnsupportedRelocation
	}
	return nil
}

func fitsSigned(val int64, bits int) bool {
	lo := -(int64(1) << (bits - 1))
	hi := int64(1)<<(bits-1) - 1
	return val >= lo && val <= hi
}
