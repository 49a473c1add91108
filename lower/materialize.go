package lower

import (
	"fmt"

	"github.com/thiremani/strata/ir"
)

// Pointer Materializer: rewrites a make_tensor_ptr descriptor into the
// buffer view(s) that alias the same memory, preserving the exact start
// offset, strides and requested sizes. Split descriptors decompose into two
// views whose extents along the wrapping axis sum to the request.

func (l *Lowerer) lowerMakeTensorPtr(op *ir.MakeTensorPtrOp) {
	if !isStrictlyDecreasing(op.Order) {
		l.errorf(op.Pos, "non-decreasing dimension order on tensor pointers is not supported")
		return
	}

	if op.IsSplitPtr() {
		l.lowered[op] = l.materializeSplit(op)
		return
	}

	// Structured and block pointers share the addressing math; the kinds
	// differ only in the source-level pointer form.
	l.lowered[op] = &Single{View: l.materializeView(op)}
}

func isStrictlyDecreasing(order []int) bool {
	for i := 1; i < len(order); i++ {
		if order[i-1] <= order[i] {
			return false
		}
	}
	return true
}

// accumulateTargetOffset collapses the per-dimension starting offsets into
// one scalar element offset, folding when every offset is static.
func (l *Lowerer) accumulateTargetOffset(op *ir.MakeTensorPtrOp) ir.Index {
	target := ir.Static(0)
	for _, o := range op.Offsets {
		target = l.addIndex(target, o)
	}
	return target
}

// effectiveStrides replaces the stride of any size-1 dimension whose stride
// folds to 0 with the product of the sizes of all lower dimensions.
// Downstream view algebra treats a literal zero stride as degenerate, and a
// size-1 dimension never advances, so any positive stride is equivalent.
func (l *Lowerer) effectiveStrides(op *ir.MakeTensorPtrOp) []ir.Index {
	rank := op.Rank()
	strides := make([]ir.Index, rank)
	accumulate := int64(1)
	for i := rank - 1; i >= 0; i-- {
		stride := op.Strides[i]
		if op.Sizes[i] == 1 && stride.IsStatic() && stride.Int() == 0 {
			strides[i] = ir.Static(accumulate)
		} else {
			strides[i] = stride
		}
		accumulate *= op.Sizes[i]
	}
	return strides
}

func (l *Lowerer) materializeView(op *ir.MakeTensorPtrOp) *BufferView {
	offset := l.accumulateTargetOffset(op)
	strides := l.effectiveStrides(op)
	sizes := ir.Statics(op.Sizes...)

	handle := l.emitView(op.Base, offset, sizes, strides, op.Elem, "tensor_ptr")
	return &BufferView{
		Val:     handle,
		Elem:    op.Elem,
		Offset:  offset,
		Sizes:   sizes,
		Strides: strides,
	}
}

func (l *Lowerer) materializeSplit(op *ir.MakeTensorPtrOp) LoweredPtr {
	if op.Rank() != 2 {
		panic(fmt.Sprintf("split tensor pointer of rank %d; wraparound splitting is 2-D only", op.Rank()))
	}

	switch op.Wrap {
	case ir.WrapSideBySide:
		first, second := l.createSideBySideViews(op)
		return &SideBySide{First: first, Second: second}
	case ir.WrapStacked:
		first, second := l.createStackedViews(op)
		return &Stacked{First: first, Second: second}
	default:
		panic(fmt.Sprintf("split tensor pointer with unrecognized wrap tag %s", op.Wrap))
	}
}

// createSideBySideViews splits a pointer wrapping along the column axis.
//
// The start offset must lie within the first period. Once the
// multi-dimensional offset has been collapsed into one scalar, an offset
// that overflowed the column count is indistinguishable from one that
// legitimately refers to a later row, so that case cannot be detected here;
// upstream analysis guarantees it does not occur. The stacked case below has
// the same precondition.
//
//	nextOffset - targetOffset = colSize
//	d1 + d2 = colSize
//	                      N
//	                            x            clampedOffset
//	  --------------------------*----------------*-----*
//	  |                                          |     nextOffset (might
//	  |                    targetOffset          |             overflow)
//	y *-----                    *----------------|
//	  |    |                    |                |
//	  |-----                    -----------------|
//	  | d2                              d1       |
//	  --------------------------------------------
//
//	x = targetOffset % N
//	nextOffset = x + colSize
//	clampedOffset = min(nextOffset, N)
//	d1 = clampedOffset - x
func (l *Lowerer) createSideBySideViews(op *ir.MakeTensorPtrOp) (*BufferView, *BufferView) {
	targetOffset := l.accumulateTargetOffset(op)

	rowSize := ir.Static(op.Sizes[0])
	colSize := ir.Static(op.Sizes[1])
	modN := op.Shape[1]

	x := l.remIndex(targetOffset, modN)
	// y is the row-aligned base of the current period; the second chunk
	// starts there, wrapped back to column 0.
	y := l.subIndex(targetOffset, x)

	nextOffset := l.addIndex(x, colSize)
	clampedOffset := l.minIndex(nextOffset, modN)
	d1 := l.subIndex(clampedOffset, x)
	d2 := l.subIndex(colSize, d1)

	first := l.splitView(op, targetOffset, []ir.Index{rowSize, d1}, "wrap_first")
	second := l.splitView(op, y, []ir.Index{rowSize, d2}, "wrap_second")
	return first, second
}

// createStackedViews splits a pointer wrapping along the row axis.
//
//	We're loading a tensor of dim (rowSize, colSize)
//	d1 + d2 = rowSize
//	d2 is the number of rows that overflow
//
//	                   cols
//
//	           wrappedAroundOff
//	  --------------*------------*--------
//	  |        d2   |            |       |
//	  |             |------------|       |
//	  |                                  |
//	  |           targetOffset           |
//	  |             *------------|       |
//	  |             |            |       |
//	  |         d1  |            |       |
//	  |             | clampedOff |       |
//	  --------------*---------------------
//	                |  overflow  |
//	                *-------------
//	             nextOff
//
//	wrappedAroundOff = targetOffset % strideRow
//	clampedOff = modRow + wrappedAroundOff
//	d1 = (clampedOff - targetOffset) / strideRow
//
// modRow is the row bound already expressed in linearized (row-stride)
// units; upstream analysis computes rows * strideRow before this stage.
func (l *Lowerer) createStackedViews(op *ir.MakeTensorPtrOp) (*BufferView, *BufferView) {
	targetOffset := l.accumulateTargetOffset(op)

	rowSize := ir.Static(op.Sizes[0])
	colSize := ir.Static(op.Sizes[1])
	strideRow := op.Strides[0]
	modRow := op.Shape[0]

	wrappedAroundOff := l.remIndex(targetOffset, strideRow)
	clampedOff := l.addIndex(modRow, wrappedAroundOff)
	d1 := l.divIndex(l.subIndex(clampedOff, targetOffset), strideRow)
	d2 := l.subIndex(rowSize, d1)

	first := l.splitView(op, targetOffset, []ir.Index{d1, colSize}, "wrap_first")
	second := l.splitView(op, wrappedAroundOff, []ir.Index{d2, colSize}, "wrap_second")
	return first, second
}

// splitView builds one chunk of a split pointer. Chunks reuse the original
// strides; the zero-stride adjustment only applies to non-split pointers.
func (l *Lowerer) splitView(op *ir.MakeTensorPtrOp, offset ir.Index, sizes []ir.Index, name string) *BufferView {
	handle := l.emitView(op.Base, offset, sizes, op.Strides, op.Elem, name)
	return &BufferView{
		Val:     handle,
		Elem:    op.Elem,
		Offset:  offset,
		Sizes:   sizes,
		Strides: op.Strides,
	}
}
