// Package lower rewrites structured-pointer programs into LLVM IR over the
// tensor buffer runtime: reinterpret-style buffer views plus the copy, fill
// and materialize calls that move data through them. Each op kind has one
// rewrite rule; a rule validates everything that can fail before it emits
// anything, so a failed rule leaves the module untouched.
package lower

import (
	"fmt"

	"github.com/thiremani/strata/ir"
	"tinygo.org/x/go-llvm"
)

type Lowerer struct {
	Context llvm.Context
	Module  llvm.Module
	builder llvm.Builder

	tmpCounter int
	Errors     []*ir.Diagnostic

	// lowered maps each converted op to its result: a LoweredPtr for
	// tensor-pointer ops, an llvm.Value handle for tensor values.
	lowered map[ir.Value]any
}

func NewLowerer(ctx llvm.Context, modName string) *Lowerer {
	module := ctx.NewModule(modName)
	builder := ctx.NewBuilder()

	return &Lowerer{
		Context: ctx,
		Module:  module,
		builder: builder,
		Errors:  []*ir.Diagnostic{},
		lowered: make(map[ir.Value]any),
	}
}

// BeginKernel adds a void function with the given parameter types, positions
// the builder at its entry block, and returns the function. Dynamic operands
// of the program under lowering are typically this function's parameters.
func (l *Lowerer) BeginKernel(name string, params []llvm.Type) llvm.Value {
	fnType := llvm.FunctionType(l.Context.VoidType(), params, false)
	fn := llvm.AddFunction(l.Module, name, fnType)
	entry := l.Context.AddBasicBlock(fn, "entry")
	l.builder.SetInsertPointAtEnd(entry)
	return fn
}

// EndKernel terminates the current kernel.
func (l *Lowerer) EndKernel() {
	l.builder.CreateRetVoid()
}

// Run lowers every op in program order. Ops that fail preconditions are
// reported as diagnostics and left unconverted; the rest of the program is
// still attempted. Returns non-nil if any op failed.
func (l *Lowerer) Run(prog *ir.Program) error {
	for _, op := range prog.Ops {
		switch op := op.(type) {
		case *ir.MakeTensorPtrOp:
			l.lowerMakeTensorPtr(op)
		case *ir.LoadOp:
			l.lowerLoad(op)
		case *ir.StoreOp:
			l.lowerStore(op)
		default:
			panic(fmt.Sprintf("cannot lower op type %T", op))
		}
	}

	if len(l.Errors) > 0 {
		return fmt.Errorf("lowering failed: %d op(s) did not convert", len(l.Errors))
	}
	return nil
}

func (l *Lowerer) GenerateIR() string {
	return l.Module.String()
}

func (l *Lowerer) errorf(pos ir.Pos, format string, args ...any) {
	l.Errors = append(l.Errors, &ir.Diagnostic{
		Pos: pos,
		Msg: fmt.Sprintf(format, args...),
	})
}

// Ptr returns the lowered pointer for a converted tensor-pointer op.
func (l *Lowerer) Ptr(v ir.Value) (LoweredPtr, bool) {
	p, ok := l.lowered[v].(LoweredPtr)
	return p, ok
}

// TensorValue returns the lowered tensor value for an op result or external
// argument.
func (l *Lowerer) TensorValue(v ir.Value) (llvm.Value, bool) {
	if arg, ok := v.(*ir.Arg); ok {
		return arg.V, true
	}
	val, ok := l.lowered[v].(llvm.Value)
	return val, ok
}

func (l *Lowerer) ConstI64(v uint64) llvm.Value {
	return llvm.ConstInt(l.Context.Int64Type(), v, false)
}

func (l *Lowerer) tmpName(prefix string) string {
	name := fmt.Sprintf("%s_%d", prefix, l.tmpCounter)
	l.tmpCounter++
	return name
}

// createEntryBlockAlloca creates an alloca in the current function's entry
// block so stack slots are not re-allocated inside loops or branches.
func (l *Lowerer) createEntryBlockAlloca(ty llvm.Type, name string) llvm.Value {
	current := l.builder.GetInsertBlock()
	fn := current.Parent()
	entry := fn.EntryBasicBlock()
	first := entry.FirstInstruction()

	if first.IsNil() {
		l.builder.SetInsertPointAtEnd(entry)
	} else {
		l.builder.SetInsertPointBefore(first)
	}

	alloca := l.builder.CreateAlloca(ty, name)
	l.builder.SetInsertPointAtEnd(current)
	return alloca
}

// createIfCont emits a conditional branch and creates if/cont blocks in the
// current function.
func (l *Lowerer) createIfCont(cond llvm.Value, ifName, contName string) (llvm.BasicBlock, llvm.BasicBlock) {
	fn := l.builder.GetInsertBlock().Parent()
	ifBlock := l.Context.AddBasicBlock(fn, ifName)
	contBlock := l.Context.AddBasicBlock(fn, contName)
	l.builder.CreateCondBr(cond, ifBlock, contBlock)
	return ifBlock, contBlock
}

// indexArray spills per-dimension quantities into an entry-block [n x i64]
// slot and returns a pointer to its first element. The buffer runtime takes
// sizes, strides and offsets this way.
func (l *Lowerer) indexArray(name string, ixs []ir.Index) llvm.Value {
	arrType := llvm.ArrayType(l.Context.Int64Type(), len(ixs))
	arr := l.createEntryBlockAlloca(arrType, l.tmpName(name))
	zero := l.ConstI64(0)
	for i, ix := range ixs {
		gep := l.builder.CreateGEP(arrType, arr, []llvm.Value{zero, l.ConstI64(uint64(i))}, name+"_elt")
		l.builder.CreateStore(l.indexVal(ix), gep)
	}
	return l.builder.CreateGEP(arrType, arr, []llvm.Value{zero, zero}, name+"_ptr")
}
