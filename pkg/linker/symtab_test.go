package linker

import (
	"errors"
	"testing"
)

func TestSymbolTableLookup(t *testing.T) {
	a := newObj().
		text(".text", mainCode).
		global("_start", ".text", 0).
		global("main", ".text", 0).
		local("helper", ".text", 3).
		undefWeak("optional").
		undef("extern_call")

	ctx, _ := mustLink(t, a, libObj())

	names := ctx.Symtab.Names()
	want := []string{"_start", "extern_call", "main"}
	if len(names) != len(want) {
		t.Fatalf("Names: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Names: got %v, want %v", names, want)
		}
	}
	if ctx.Symtab.Len() != 3 {
		t.Errorf("Len: got %d, want 3", ctx.Symtab.Len())
	}
	if _, ok := ctx.Symtab.Lookup("helper"); ok {
		t.Errorf("Local symbols must not be visible globally")
	}
	if _, ok := ctx.Symtab.Lookup("optional"); ok {
		t.Errorf("Undefined weak symbols must not be visible as definitions")
	}
}

func TestLocalSymbolsDoNotClash(t *testing.T) {
	a := newObj().text(".text", mainCode).
		global("_start", ".text", 0).
		local("helper", ".text", 0).
		undef("extern_call")
	b := newObj().text(".text", libCode).
		global("extern_call", ".text", 0).
		local("helper", ".text", 0)

	if _, _, err := link(t, a, b); err != nil {
		t.Errorf("Locals with the same name in two objects must not conflict: %v", err)
	}
}

func TestDuplicateSymbolNamesBothFiles(t *testing.T) {
	a := newObj().text(".text", exitCode).global("_start", ".text", 0)
	b := newObj().text(".text", exitCode).global("_start", ".text", 0)

	_, _, err := link(t, a, b)
	var lerr *LinkError
	if !errors.As(err, &lerr) {
		t.Fatalf("Expected a LinkError, got %v", err)
	}
	if lerr.Symbol != "_start" || lerr.File == "" || lerr.Detail == "" {
		t.Errorf("Expected both definitions in the error, got %v", err)
	}
}

func TestRank(t *testing.T) {
	if !(rank(5, false) < rank(0, true)) {
		t.Errorf("Strong definitions must beat weak ones regardless of input order")
	}
	if !(rank(0, true) < rank(1, true)) {
		t.Errorf("Earlier weak definitions must win")
	}
	if !isStrongRank(rank(3, false)) || isStrongRank(rank(3, true)) {
		t.Errorf("isStrongRank misclassifies ranks")
	}
}
