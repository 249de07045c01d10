package linker

import (
	"debug/elf"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ReadInputFiles parses every input in parallel. Objects keep command-line
// order, and when several inputs are bad the earliest one is reported.
func ReadInputFiles(ctx *Context, args []string) error {
	if len(args) == 0 {
		return &LinkError{Kind: ErrMalformedObject, Detail: "no input files"}
	}

	objs, err := parseInputs(args, ctx.Arg.Jobs)
	if err != nil {
		return err
	}

	first := objs[0]
	if ctx.Arg.Emulation == MachineTypeNone {
		ctx.Arg.Emulation = GetMachineTypeFromContents(first.File.Contents)
	}
	if ctx.Arg.Emulation != MachineTypeX86_64 {
		return incompatible(first.File.Name, "unsupported target: %s", elf.Machine(first.GetEhdr().Machine))
	}

	for _, obj := range objs {
		if err := CheckFileCompatibility(ctx, obj.File); err != nil {
			return err
		}
		ctx.Logf("read %s: %d symbols, sections: %s", obj.File.Name, len(obj.ElfSyms), sectionSummary(obj))
	}

	ctx.Objs = objs
	return nil
}

// parseInputs reads and parses args with at most jobs workers. Once an
// input fails, inputs after it are no longer parsed.
func parseInputs(args []string, jobs int) ([]*ObjectFile, error) {
	objs := make([]*ObjectFile, len(args))
	errs := make([]error, len(args))

	var firstBad atomic.Int64
	firstBad.Store(int64(len(args)))

	var g errgroup.Group
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, arg := range args {
		g.Go(func() error {
			if int64(i) > firstBad.Load() {
				return nil
			}
			file, err := NewFile(arg)
			if err == nil {
				objs[i], err = NewObjectFile(file, int32(i))
			}
			if err != nil {
				errs[i] = err
				for {
					cur := firstBad.Load()
					if int64(i) >= cur || firstBad.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
			}
			return err
		})
	}
	_ = g.Wait()

	// Every input before the lowest failing index was parsed, so this
	// always picks the same error.
	for _, err := range errs {
		if err != nil {
			return objs, err
		}
	}
	return objs, nil
}

// sectionSummary counts the kept sections of obj by kind, e.g.
// "code=2 rodata=1 zerofill=1".
func sectionSummary(obj *ObjectFile) string {
	var counts [SectionKindZeroFill + 1]int
	for _, isec := range obj.Sections {
		if isec != nil {
			counts[isec.Kind()]++
		}
	}

	var parts []string
	for kind, n := range counts {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", SectionKind(kind), n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, " ")
}
