package linker

import (
	"debug/elf"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

func runExitCode(t *testing.T, path string) int {
	t.Helper()
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("Produced binaries only run on linux/amd64")
	}

	err := exec.Command(path).Run()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	if errors.Is(err, fs.ErrPermission) {
		t.Skipf("Cannot execute from the temporary directory: %v", err)
	}
	t.Fatalf("Failed to run %s: %v", path, err)
	return -1
}

func TestRunCrossFileCall(t *testing.T) {
	_, out := mustLink(t, mainObj(), libObj())
	if code := runExitCode(t, out); code != 42 {
		t.Errorf("Exit code: got %d, want 42", code)
	}
}

func TestRunDataLoad(t *testing.T) {
	// mov eax, [rip+value]; mov edi, eax; exit
	code := []byte{0x8b, 0x05, 0, 0, 0, 0, 0x89, 0xc7}
	b := newObj().
		text(".text", append(code, exitCode...)).
		data(".data", []byte{7, 0, 0, 0}).
		global("_start", ".text", 0).
		global("value", ".data", 0).
		rela(".text", 2, elf.R_X86_64_PC32, "value", -4)

	_, out := mustLink(t, b)
	if code := runExitCode(t, out); code != 7 {
		t.Errorf("Exit code: got %d, want 7", code)
	}
}

func TestRunBssStore(t *testing.T) {
	// mov dword [rip+counter], 5; mov edi, [rip+counter]; exit
	code := []byte{
		0xc7, 0x05, 0, 0, 0, 0, 0x05, 0, 0, 0,
		0x8b, 0x3d, 0, 0, 0, 0,
	}
	b := newObj().
		text(".text", append(code, exitCode...)).
		bss(".bss", 4096*3, 16).
		global("_start", ".text", 0).
		global("counter", ".bss", 4096*2).
		rela(".text", 2, elf.R_X86_64_PC32, "counter", -8).
		rela(".text", 12, elf.R_X86_64_PC32, "counter", -4)

	_, out := mustLink(t, b)
	if code := runExitCode(t, out); code != 5 {
		t.Errorf("Exit code: got %d, want 5", code)
	}
}

func TestRunGotLoad(t *testing.T) {
	// mov rax, [rip+value@GOTPCREL]; mov edi, [rax]; exit
	code := []byte{0x48, 0x8b, 0x05, 0, 0, 0, 0, 0x8b, 0x38}
	b := newObj().
		text(".text", append(code, exitCode...)).
		global("_start", ".text", 0).
		undef("value").
		rela(".text", 3, elf.R_X86_64_REX_GOTPCRELX, "value", -4)
	lib := newObj().
		data(".data", []byte{0, 0, 0, 0, 9, 0, 0, 0}).
		global("value", ".data", 4)

	_, out := mustLink(t, b, lib)
	if code := runExitCode(t, out); code != 9 {
		t.Errorf("Exit code: got %d, want 9", code)
	}
}

func TestRunCommonSymbol(t *testing.T) {
	// mov dword [rip+shared], 3; mov edi, [rip+shared]; exit
	code := []byte{
		0xc7, 0x05, 0, 0, 0, 0, 0x03, 0, 0, 0,
		0x8b, 0x3d, 0, 0, 0, 0,
	}
	b := newObj().
		text(".text", append(code, exitCode...)).
		global("_start", ".text", 0).
		common("shared", 4, 4).
		rela(".text", 2, elf.R_X86_64_PC32, "shared", -8).
		rela(".text", 12, elf.R_X86_64_PC32, "shared", -4)
	other := newObj().common("shared", 64, 32)

	_, out := mustLink(t, b, other)
	if code := runExitCode(t, out); code != 3 {
		t.Errorf("Exit code: got %d, want 3", code)
	}
}

// TestRunCompiledObjects links objects produced by the system C compiler.
func TestRunCompiledObjects(t *testing.T) {
	if runtime.GOOS != "linux" || runtime.GOARCH != "amd64" {
		t.Skip("Produced binaries only run on linux/amd64")
	}
	cc, err := exec.LookPath("gcc")
	if err != nil {
		t.Skip("gcc not found")
	}

	dir := t.TempDir()
	var objs []string
	for _, src := range []string{"main.c", "lib.c"} {
		obj := filepath.Join(dir, src+".o")
		cmd := exec.Command(cc, "-c", "-O1", "-fno-pic", "-fno-asynchronous-unwind-tables",
			"-fno-stack-protector", "-ffreestanding", "-nostdlib",
			"-o", obj, filepath.Join("testdata", src))
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("gcc cannot build %s: %v\n%s", src, err, out)
		}
		objs = append(objs, obj)
	}

	ctx := NewContext()
	ctx.Arg.Output = filepath.Join(dir, "prog")
	if err := Link(ctx, objs); err != nil {
		t.Fatalf("Link failed: %v", err)
	}
	if _, err := os.Stat(ctx.Arg.Output); err != nil {
		t.Fatal(err)
	}
	if code := runExitCode(t, ctx.Arg.Output); code != 42 {
		t.Errorf("Exit code: got %d, want 42", code)
	}
}
