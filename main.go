package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/thiremani/strata/ir"
	"github.com/thiremani/strata/lower"
	"tinygo.org/x/go-llvm"
)

var IR_SUFFIX = ".ll"

var KERNEL_DIR = "kernels"

// defaultCache resolves the artifact cache directory: STCACHE env override,
// then the per-OS user cache location.
func defaultCache() string {
	if env := os.Getenv("STCACHE"); env != "" {
		return env
	}

	homeDir, _ := os.UserHomeDir()
	var cache string
	switch runtime.GOOS {
	case OS_WINDOWS:
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			return filepath.Join(localAppData, "strata")
		}
		cache = filepath.Join(homeDir, "AppData", "Local", "strata")

	case "darwin":
		cache = filepath.Join(homeDir, "Library", "Caches", "strata")

	default: // Linux and others
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "strata")
		}
		cache = filepath.Join(homeDir, ".cache", "strata")
	}

	return cache
}

// buildDemoKernel lowers a sample wraparound kernel: a 4x4 load through a
// tensor pointer that wraps along the column axis of an 8x8 tensor starting
// at column 6, stored densely to a second base pointer.
func buildDemoKernel(ctx llvm.Context) (*lower.Lowerer, error) {
	l := lower.NewLowerer(ctx, "strata_demo")

	charPtr := llvm.PointerType(ctx.Int8Type(), 0)
	fn := l.BeginKernel("wrap_load_store", []llvm.Type{charPtr, charPtr})
	src := fn.Param(0)
	dst := fn.Param(1)
	f32 := ctx.FloatType()

	srcPtr := &ir.MakeTensorPtrOp{
		Pos:     ir.Pos{File: "demo", Line: 1, Column: 1},
		Base:    src,
		Elem:    f32,
		Offsets: ir.Statics(0, 6),
		Strides: ir.Statics(8, 1),
		Sizes:   []int64{4, 4},
		Shape:   []ir.Index{ir.Static(0), ir.Static(8)},
		Order:   []int{1, 0},
		Kind:    ir.Split,
		Wrap:    ir.WrapSideBySide,
	}
	load := &ir.LoadOp{
		Pos:   ir.Pos{File: "demo", Line: 2, Column: 1},
		Ptr:   srcPtr,
		Shape: []int64{4, 4},
	}
	dstPtr := &ir.MakeTensorPtrOp{
		Pos:     ir.Pos{File: "demo", Line: 3, Column: 1},
		Base:    dst,
		Elem:    f32,
		Offsets: ir.Statics(0, 0),
		Strides: ir.Statics(4, 1),
		Sizes:   []int64{4, 4},
		Order:   []int{1, 0},
		Kind:    ir.Structured,
	}
	store := &ir.StoreOp{
		Pos: ir.Pos{File: "demo", Line: 4, Column: 1},
		Ptr: dstPtr,
		Val: load,
	}

	prog := &ir.Program{}
	prog.Add(srcPtr, load, dstPtr, store)

	if err := l.Run(prog); err != nil {
		for _, d := range l.Errors {
			fmt.Println(d.Error())
		}
		return nil, err
	}
	l.EndKernel()
	return l, nil
}

// genObject optimizes the kernel IR and compiles it to an object file that
// can be linked against the tensor runtime objects.
func genObject(kernelLL, kernelDir, name string) (string, error) {
	optFile := filepath.Join(kernelDir, name+".opt"+IR_SUFFIX)
	objFile := filepath.Join(kernelDir, name+OBJ_SUFFIX)

	optCmd := exec.Command("opt", OPT_LEVEL, "-S", kernelLL, "-o", optFile)
	if output, err := optCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("optimization failed: %s\n%s", err, string(output))
	}

	llcCmd := exec.Command("llc", "-filetype=obj", "-relocation-model=pic", optFile, "-o", objFile)
	if output, err := llcCmd.CombinedOutput(); err != nil {
		return "", fmt.Errorf("llc compilation failed: %s\n%s", err, string(output))
	}

	return objFile, nil
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		printVersion()
		return
	}

	cache := defaultCache()
	fmt.Printf("Using STCACHE: %s\n", cache)
	kernelDir := filepath.Join(cache, KERNEL_DIR)
	if err := os.MkdirAll(kernelDir, 0755); err != nil {
		fmt.Printf("Error creating kernel directory: %v\n", err)
		os.Exit(1)
	}

	ctx := llvm.NewContext()
	defer ctx.Dispose()

	l, err := buildDemoKernel(ctx)
	if err != nil {
		fmt.Printf("Lowering failed: %v\n", err)
		os.Exit(1)
	}

	name := "wrap_load_store"
	kernelLL := filepath.Join(kernelDir, name+IR_SUFFIX)
	if err := os.WriteFile(kernelLL, []byte(l.GenerateIR()), 0644); err != nil {
		fmt.Printf("Error writing IR to %s: %v\n", kernelLL, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote kernel IR: %s\n", kernelLL)

	rtObjs, err := prepareRuntime(cache)
	if err != nil {
		fmt.Printf("Runtime preparation failed: %v\n", err)
		os.Exit(1)
	}

	objFile, err := genObject(kernelLL, kernelDir, name)
	if err != nil {
		fmt.Printf("Kernel compilation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Kernel object: %s\n", objFile)
	fmt.Printf("Runtime objects: %v\n", rtObjs)
	fmt.Println("Link the kernel object and runtime objects into your application.")
}
