package lower

import (
	"fmt"

	"github.com/thiremani/strata/ir"
	"tinygo.org/x/go-llvm"
)

// Load Lowerer: allocates a dense destination buffer, copies the addressed
// region into it (two chunk copies for split pointers), optionally pre-fills
// the out-of-mask remainder, and freezes the buffer into the load's result
// value. The destination is private to one lowering and never mutated after
// the freeze.

func (l *Lowerer) lowerLoad(op *ir.LoadOp) {
	ptr, ok := l.Ptr(op.Ptr)
	if !ok {
		l.errorf(op.Pos, "load pointer operand did not lower")
		return
	}

	if op.HasMask() {
		l.lowerMaskedLoad(op, ptr)
		return
	}
	l.lowerPlainLoad(op, ptr)
}

func (l *Lowerer) lowerPlainLoad(op *ir.LoadOp, ptr LoweredPtr) {
	if op.HasOther() {
		// Fill values only accompany masked loads; pointer analysis routes
		// masked loads through the masked path.
		panic("fill value used in non-masked load")
	}

	alloc := l.emitAlloc(op.Shape, l.loadElem(ptr), "load_dst")

	switch p := ptr.(type) {
	case *Single:
		l.emitCopy(p.View.Val, alloc)
	case *SideBySide:
		l.createSideBySideCopies(p.First, p.Second, alloc)
	case *Stacked:
		l.createStackedCopies(p.First, p.Second, alloc)
	default:
		panic(fmt.Sprintf("unexpected wraparound type %T", p))
	}

	l.lowered[op] = l.emitFreeze(alloc, "load_val")
}

func (l *Lowerer) lowerMaskedLoad(op *ir.LoadOp, ptr LoweredPtr) {
	alloc := l.emitAlloc(op.Shape, l.loadElem(ptr), "load_dst")
	dims := op.MaskDims

	if op.HasOther() {
		l.fillIfPartial(op, alloc)
	}

	zeros := make([]ir.Index, op.Rank())
	for i := range zeros {
		zeros[i] = ir.Static(0)
	}

	switch p := ptr.(type) {
	case *Single:
		// One sub-region copy: offsets zero, sizes = valid extents, placed
		// at the matching corner of the destination.
		src := l.emitSubview(p.View.Val, zeros, dims, "mask_src")
		dst := l.emitSubview(alloc, zeros, dims, "mask_dst")
		l.emitCopy(src, dst)
	case *SideBySide:
		// Chunk 1 keeps min(its width, requested width); chunk 2 gets the
		// remainder.
		col1 := l.minIndex(p.First.Sizes[1], dims[1])
		col2 := l.subIndex(dims[1], col1)
		sub1 := l.clipChunk(p.First, []ir.Index{dims[0], col1}, "mask_first")
		sub2 := l.clipChunk(p.Second, []ir.Index{dims[0], col2}, "mask_second")
		l.createSideBySideCopies(sub1, sub2, alloc)
	case *Stacked:
		row1 := l.minIndex(p.First.Sizes[0], dims[0])
		row2 := l.subIndex(dims[0], row1)
		sub1 := l.clipChunk(p.First, []ir.Index{row1, dims[1]}, "mask_first")
		sub2 := l.clipChunk(p.Second, []ir.Index{row2, dims[1]}, "mask_second")
		l.createStackedCopies(sub1, sub2, alloc)
	default:
		panic(fmt.Sprintf("unexpected wraparound type %T", p))
	}

	l.lowered[op] = l.emitFreeze(alloc, "load_val")
}

// fillIfPartial pre-fills the whole destination with the fill value when any
// mask extent is strictly smaller than the full shape. The in-bounds copy
// that follows overwrites the valid sub-region, leaving only genuinely
// out-of-bounds elements holding the fill value. Static extents fold out of
// the check; a runtime branch is emitted only for dynamic ones.
func (l *Lowerer) fillIfPartial(op *ir.LoadOp, alloc llvm.Value) {
	staticPartial := false
	var acc llvm.Value
	for i, dim := range op.MaskDims {
		cmp, folded, isStatic := l.ltIndex(dim, ir.Static(op.Shape[i]))
		if isStatic {
			staticPartial = staticPartial || folded
			continue
		}
		if acc.IsNil() {
			acc = cmp
		} else {
			acc = l.builder.CreateOr(acc, cmp, "mask_partial")
		}
	}

	if staticPartial {
		// Some dimension is known short; fill unconditionally.
		l.emitFill(alloc, op.Other)
		return
	}
	if acc.IsNil() {
		// Every extent is statically full; nothing to fill.
		return
	}

	fillBlock, contBlock := l.createIfCont(acc, "mask_fill", "mask_fill_cont")
	l.builder.SetInsertPointAtEnd(fillBlock)
	l.emitFill(alloc, op.Other)
	l.builder.CreateBr(contBlock)
	l.builder.SetInsertPointAtEnd(contBlock)
}

// createSideBySideCopies places two wrap chunks into dst side by side: the
// first at column 0, the second immediately after the first chunk's width.
func (l *Lowerer) createSideBySideCopies(first, second *BufferView, dst llvm.Value) {
	zero := ir.Static(0)
	dst1 := l.emitSubview(dst, []ir.Index{zero, zero}, first.Sizes, "wrap_dst1")
	dst2 := l.emitSubview(dst, []ir.Index{zero, first.Sizes[1]}, second.Sizes, "wrap_dst2")
	l.emitCopy(first.Val, dst1)
	l.emitCopy(second.Val, dst2)
}

// createStackedCopies places two wrap chunks into dst one above the other:
// the first at row 0, the second below the first chunk's height.
func (l *Lowerer) createStackedCopies(first, second *BufferView, dst llvm.Value) {
	zero := ir.Static(0)
	dst1 := l.emitSubview(dst, []ir.Index{zero, zero}, first.Sizes, "wrap_dst1")
	dst2 := l.emitSubview(dst, []ir.Index{first.Sizes[0], zero}, second.Sizes, "wrap_dst2")
	l.emitCopy(first.Val, dst1)
	l.emitCopy(second.Val, dst2)
}

// clipChunk takes the leading sizes-shaped corner of a wrap chunk.
func (l *Lowerer) clipChunk(chunk *BufferView, sizes []ir.Index, name string) *BufferView {
	zeros := make([]ir.Index, len(sizes))
	for i := range zeros {
		zeros[i] = ir.Static(0)
	}
	handle := l.emitSubview(chunk.Val, zeros, sizes, name)
	return &BufferView{
		Val:   handle,
		Elem:  chunk.Elem,
		Sizes: sizes,
	}
}

func (l *Lowerer) loadElem(ptr LoweredPtr) llvm.Type {
	switch p := ptr.(type) {
	case *Single:
		return p.View.Elem
	case *SideBySide:
		return p.First.Elem
	case *Stacked:
		return p.First.Elem
	default:
		panic(fmt.Sprintf("unexpected wraparound type %T", p))
	}
}
