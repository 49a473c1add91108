package lower

import (
	"fmt"

	"github.com/thiremani/strata/ir"
	"tinygo.org/x/go-llvm"
)

// The buffer runtime the lowering targets. All handles are pointers to the
// opaque StBuffer struct; per-dimension arrays are i64*.
const (
	TENSOR_ALLOC       = "tensor_alloc"
	TENSOR_VIEW        = "tensor_view"
	TENSOR_SUBVIEW     = "tensor_subview"
	TENSOR_SLICE       = "tensor_slice"
	TENSOR_COPY        = "tensor_copy"
	TENSOR_FILL        = "tensor_fill"
	TENSOR_FREEZE      = "tensor_freeze"
	TENSOR_MATERIALIZE = "tensor_materialize"
)

// GetFnType returns the LLVM FunctionType for a tensor runtime helper name,
// like "tensor_view" or "tensor_copy".
func (l *Lowerer) GetFnType(name string) llvm.Type {
	buf := l.NamedOpaquePtr("StBuffer")
	charPtr := llvm.PointerType(l.Context.Int8Type(), 0)
	i64 := l.Context.Int64Type()
	i64Ptr := llvm.PointerType(i64, 0)
	void := l.Context.VoidType()

	switch name {
	case TENSOR_ALLOC:
		// rank, sizes, elem_size
		return llvm.FunctionType(buf, []llvm.Type{i64, i64Ptr, i64}, false)
	case TENSOR_VIEW:
		// base, offset (elements), rank, sizes, strides, elem_size
		return llvm.FunctionType(buf, []llvm.Type{charPtr, i64, i64, i64Ptr, i64Ptr, i64}, false)
	case TENSOR_SUBVIEW, TENSOR_SLICE:
		// src, rank, offsets, sizes
		return llvm.FunctionType(buf, []llvm.Type{buf, i64, i64Ptr, i64Ptr}, false)
	case TENSOR_COPY:
		return llvm.FunctionType(void, []llvm.Type{buf, buf}, false)
	case TENSOR_FILL:
		// dst, pointer to one element
		return llvm.FunctionType(void, []llvm.Type{buf, charPtr}, false)
	case TENSOR_FREEZE:
		return llvm.FunctionType(buf, []llvm.Type{buf}, false)
	case TENSOR_MATERIALIZE:
		// val, dst; dst is made writable
		return llvm.FunctionType(void, []llvm.Type{buf, buf}, false)
	default:
		panic("unknown tensor runtime function " + name)
	}
}

func (l *Lowerer) GetBufFunc(name string) (llvm.Type, llvm.Value) {
	fnType := l.GetFnType(name)
	fn := l.Module.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(l.Module, name, fnType)
	}

	return fnType, fn
}

// NamedOpaquePtr returns a pointer type to a named opaque struct, creating
// it if needed.
func (l *Lowerer) NamedOpaquePtr(name string) llvm.Type {
	st := l.Module.GetTypeByName(name)
	if st.IsNil() {
		st = l.Context.StructCreateNamed(name)
	}
	return llvm.PointerType(st, 0)
}

// elemByteSize computes element width in bytes from the LLVM type. Kept on
// the Go side so runtime call operands stay constant-foldable.
func elemByteSize(t llvm.Type) int64 {
	switch t.TypeKind() {
	case llvm.IntegerTypeKind:
		return int64((t.IntTypeWidth() + 7) / 8)
	case llvm.TypeKind(1): // LLVMHalfTypeKind; go-llvm does not export this constant
		return 2
	case llvm.FloatTypeKind:
		return 4
	case llvm.DoubleTypeKind:
		return 8
	case llvm.PointerTypeKind:
		return 8
	default:
		panic(fmt.Sprintf("unsupported element type kind %d", t.TypeKind()))
	}
}

// emitAlloc allocates a dense row-major buffer of the given static shape.
func (l *Lowerer) emitAlloc(shape []int64, elem llvm.Type, name string) llvm.Value {
	sizes := make([]ir.Index, len(shape))
	for i, s := range shape {
		sizes[i] = ir.Static(s)
	}
	fnType, fn := l.GetBufFunc(TENSOR_ALLOC)
	args := []llvm.Value{
		l.ConstI64(uint64(len(shape))),
		l.indexArray("alloc_sizes", sizes),
		l.ConstI64(uint64(elemByteSize(elem))),
	}
	return l.builder.CreateCall(fnType, fn, args, name)
}

// emitView builds an aliasing strided view over base. No data moves.
func (l *Lowerer) emitView(base llvm.Value, offset ir.Index, sizes, strides []ir.Index, elem llvm.Type, name string) llvm.Value {
	fnType, fn := l.GetBufFunc(TENSOR_VIEW)
	args := []llvm.Value{
		base,
		l.indexVal(offset),
		l.ConstI64(uint64(len(sizes))),
		l.indexArray("view_sizes", sizes),
		l.indexArray("view_strides", strides),
		l.ConstI64(uint64(elemByteSize(elem))),
	}
	return l.builder.CreateCall(fnType, fn, args, name)
}

// emitSubview takes a unit-stride sub-view of an existing buffer or view.
func (l *Lowerer) emitSubview(src llvm.Value, offsets, sizes []ir.Index, name string) llvm.Value {
	fnType, fn := l.GetBufFunc(TENSOR_SUBVIEW)
	args := []llvm.Value{
		src,
		l.ConstI64(uint64(len(sizes))),
		l.indexArray("subview_offsets", offsets),
		l.indexArray("subview_sizes", sizes),
	}
	return l.builder.CreateCall(fnType, fn, args, name)
}

// emitSlice extracts a sub-slice of an immutable tensor value.
func (l *Lowerer) emitSlice(val llvm.Value, offsets, sizes []ir.Index, name string) llvm.Value {
	fnType, fn := l.GetBufFunc(TENSOR_SLICE)
	args := []llvm.Value{
		val,
		l.ConstI64(uint64(len(sizes))),
		l.indexArray("slice_offsets", offsets),
		l.indexArray("slice_sizes", sizes),
	}
	return l.builder.CreateCall(fnType, fn, args, name)
}

func (l *Lowerer) emitCopy(src, dst llvm.Value) {
	fnType, fn := l.GetBufFunc(TENSOR_COPY)
	l.builder.CreateCall(fnType, fn, []llvm.Value{src, dst}, "")
}

// emitFill spills the scalar into an entry-block slot and fills dst with it.
func (l *Lowerer) emitFill(dst llvm.Value, scalar llvm.Value) {
	slot := l.createEntryBlockAlloca(scalar.Type(), l.tmpName("fill_val"))
	l.builder.CreateStore(scalar, slot)
	elemPtr := l.builder.CreateBitCast(slot, llvm.PointerType(l.Context.Int8Type(), 0), "fill_ptr")

	fnType, fn := l.GetBufFunc(TENSOR_FILL)
	l.builder.CreateCall(fnType, fn, []llvm.Value{dst, elemPtr}, "")
}

func (l *Lowerer) emitFreeze(buf llvm.Value, name string) llvm.Value {
	fnType, fn := l.GetBufFunc(TENSOR_FREEZE)
	return l.builder.CreateCall(fnType, fn, []llvm.Value{buf}, name)
}

func (l *Lowerer) emitMaterialize(val, dst llvm.Value) {
	fnType, fn := l.GetBufFunc(TENSOR_MATERIALIZE)
	l.builder.CreateCall(fnType, fn, []llvm.Value{val, dst}, "")
}
