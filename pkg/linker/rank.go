package linker

// GetRank orders competing definitions; lower wins. Strong definitions
// beat weak and common ones, and ties go to the earlier input.
func GetRank(file *ObjectFile, esym *Sym) uint64 {
	return rank(file.Priority, esym.IsWeak() || esym.IsCommon())
}

func rank(priority uint32, isWeak bool) uint64 {
	if isWeak {
		return (2 << 24) + uint64(priority)
	}
	return (1 << 24) + uint64(priority)
}

func isStrongRank(r uint64) bool {
	return r>>24 == 1
}
