package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ksco/xld/pkg/linker"
	"github.com/ksco/xld/pkg/utils"
	"github.com/xyproto/env/v2"
)

var version = "dev"

func main() {
	ctx := linker.NewContext()
	loadEnvDefaults(ctx)
	inputs := parseNonpositionalArgs(ctx, os.Args[1:])

	if len(inputs) == 0 {
		utils.Fatal("no input files")
	}

	if ctx.Arg.Dump {
		for _, path := range inputs {
			if err := dumpObject(os.Stdout, path); err != nil {
				utils.Fatal(err)
			}
		}
		return
	}

	if err := linker.Link(ctx, inputs); err != nil {
		utils.Fatal(err)
	}
}

// dumpObject parses one input the way the linker does and prints what
// it found.
func dumpObject(w io.Writer, path string) error {
	file, err := linker.NewFile(path)
	if err != nil {
		return err
	}
	obj, err := linker.NewObjectFile(file, 0)
	if err != nil {
		return err
	}
	return linker.Dump(w, obj)
}

func loadEnvDefaults(ctx *linker.Context) {
	ctx.Arg.Output = env.Str("XLD_OUTPUT", ctx.Arg.Output)
	ctx.Arg.Entry = env.Str("XLD_ENTRY", ctx.Arg.Entry)
	ctx.Arg.Jobs = env.Int("XLD_JOBS", ctx.Arg.Jobs)
	ctx.Arg.Verbose = env.Bool("XLD_VERBOSE")

	if base := env.Str("XLD_IMAGE_BASE"); base != "" {
		ctx.Arg.ImageBase = parseAddr("XLD_IMAGE_BASE", base)
	}
}

func parseAddr(name, s string) uint64 {
	val, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		utils.Fatal(fmt.Sprintf("%s: invalid address: %s", name, s))
	}
	return val
}

func parseNonpositionalArgs(ctx *linker.Context, args []string) []string {
	dashes := func(name string) []string {
		if len(name) == 1 {
			return []string{"-" + name}
		}
		return []string{"-" + name, "--" + name}
	}

	remaining := make([]string, 0)
	var arg string

	readArg := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				if len(args) == 1 {
					utils.Fatal(fmt.Sprintf("option -%s: argument missing", name))
				}
				arg = args[1]
				args = args[2:]
				return true
			}

			prefix := opt
			if len(name) > 1 {
				prefix += "="
			}

			if strings.HasPrefix(args[0], prefix) {
				arg = args[0][len(prefix):]
				args = args[1:]
				return true
			}
		}
		return false
	}

	readFlag := func(name string) bool {
		for _, opt := range dashes(name) {
			if args[0] == opt {
				args = args[1:]
				return true
			}
		}
		return false
	}

	for len(args) > 0 {
		if readFlag("help") {
			fmt.Printf("Usage: %s [options] file...\n", os.Args[0])
			fmt.Println("  -i FILE             add an input object")
			fmt.Println("  -o FILE             output path (default a.out)")
			fmt.Println("  -e, --entry SYMBOL  entry symbol (default _start)")
			fmt.Println("  --image-base ADDR   load address of the image")
			fmt.Println("  -m elf_x86_64       emulation")
			fmt.Println("  -j N                parallel input parsing")
			fmt.Println("  --verbose           print progress")
			fmt.Println("  --dump              print the structure of each input and exit")
			os.Exit(0)
		}

		if readFlag("version") || readFlag("v") {
			fmt.Printf("xld %s\n", version)
			os.Exit(0)
		} else if readArg("output") || readArg("o") {
			ctx.Arg.Output = arg
		} else if readArg("image-base") {
			ctx.Arg.ImageBase = parseAddr("--image-base", arg)
		} else if readArg("i") {
			remaining = append(remaining, arg)
		} else if readArg("entry") || readArg("e") {
			ctx.Arg.Entry = arg
		} else if readArg("m") {
			if arg == "elf_x86_64" {
				ctx.Arg.Emulation = linker.MachineTypeX86_64
			} else {
				utils.Fatal(fmt.Sprintf("unknown -m argument: %s", arg))
			}
		} else if readArg("j") {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 1 {
				utils.Fatal(fmt.Sprintf("option -j: invalid job count: %s", arg))
			}
			ctx.Arg.Jobs = n
		} else if readFlag("verbose") {
			ctx.Arg.Verbose = true
		} else if readFlag("dump") {
			ctx.Arg.Dump = true
		} else if readFlag("static") {
			// Output is always static.
		} else {
			if strings.HasPrefix(args[0], "-") {
				utils.Fatal(fmt.Sprintf("unknown command line option: %s", args[0]))
			}
			remaining = append(remaining, args[0])
			args = args[1:]
		}
	}

	return remaining
}
