package lower

import (
	"github.com/thiremani/strata/ir"
)

// Store Lowerer: materializes a tensor value into the destination view,
// whole or mask-clipped. There is no wraparound counterpart to the load
// path: a store whose pointer lowered to a split pair is unsupported and
// fails conversion with a diagnostic.

func (l *Lowerer) lowerStore(op *ir.StoreOp) {
	ptr, ok := l.Ptr(op.Ptr)
	if !ok {
		l.errorf(op.Pos, "store pointer operand did not lower")
		return
	}

	single, ok := ptr.(*Single)
	if !ok {
		l.errorf(op.Pos, "store through a wrapping tensor pointer is not supported")
		return
	}

	val, ok := l.TensorValue(op.Val)
	if !ok {
		l.errorf(op.Pos, "store value operand did not lower")
		return
	}

	if !op.HasMask() {
		l.emitMaterialize(val, single.View.Val)
		return
	}

	dims := op.MaskDims
	zeros := make([]ir.Index, len(dims))
	for i := range zeros {
		zeros[i] = ir.Static(0)
	}

	// Slice the source down to the valid extents and write it into the
	// matching corner of the destination view.
	srcSlice := l.emitSlice(val, zeros, dims, "store_src")
	dstSub := l.emitSubview(single.View.Val, zeros, dims, "store_dst")
	l.emitMaterialize(srcSlice, dstSub)
}
