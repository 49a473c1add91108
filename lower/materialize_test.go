package lower

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/thiremani/strata/ir"
)

func TestMaterializeAccumulatesOffset(t *testing.T) {
	l, fn := newTestKernel(t, "testAccOffset")

	ptr := f32Ptr(l, fn.Param(0), ir.Statics(3, 0), ir.Statics(10, 1), []int64{2, 2})
	runOps(t, l, ptr)

	view := singleView(t, l, ptr)
	require.True(t, view.Offset.IsStatic())
	require.Equal(t, int64(3), view.Offset.Int())
	require.Equal(t, int64(10), view.Strides[0].Int())
	require.Equal(t, int64(1), view.Strides[1].Int())
	require.Equal(t, int64(2), view.Sizes[0].Int())

	irText := l.GenerateIR()
	require.Equal(t, 1, callCount(irText, TENSOR_VIEW))
}

func TestMaterializeMixedOffset(t *testing.T) {
	l, fn := newTestKernel(t, "testMixedOffset")

	offsets := []ir.Index{ir.Dyn(fn.Param(1)), ir.Static(3)}
	ptr := f32Ptr(l, fn.Param(0), offsets, ir.Statics(10, 1), []int64{2, 2})
	runOps(t, l, ptr)

	view := singleView(t, l, ptr)
	require.False(t, view.Offset.IsStatic())
	require.Contains(t, l.GenerateIR(), "idx_add")
}

func TestZeroStrideElimination(t *testing.T) {
	l, fn := newTestKernel(t, "testZeroStride")

	ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 0, 0), ir.Statics(8, 0, 1), []int64{4, 1, 8})
	runOps(t, l, ptr)

	// The size-1 middle dimension had stride 0; it becomes the product of
	// the sizes below it. The other strides pass through.
	view := singleView(t, l, ptr)
	require.Equal(t, int64(8), view.Strides[0].Int())
	require.Equal(t, int64(8), view.Strides[1].Int())
	require.Equal(t, int64(1), view.Strides[2].Int())
}

func TestZeroStrideKeptOnWideDim(t *testing.T) {
	l, fn := newTestKernel(t, "testZeroStrideWide")

	// Stride 0 on a dimension of size > 1 is a genuine broadcast and is
	// left alone.
	ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 0), ir.Statics(0, 1), []int64{4, 8})
	runOps(t, l, ptr)

	view := singleView(t, l, ptr)
	require.Equal(t, int64(0), view.Strides[0].Int())
}

func TestNonDecreasingOrderFails(t *testing.T) {
	l, fn := newTestKernel(t, "testBadOrder")

	ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 0), ir.Statics(8, 1), []int64{4, 4})
	ptr.Order = []int{0, 1}

	prog := &ir.Program{}
	prog.Add(ptr)
	require.Error(t, l.Run(prog))
	require.Len(t, l.Errors, 1)
	require.Contains(t, l.Errors[0].Msg, "non-decreasing dimension order")

	_, ok := l.Ptr(ptr)
	require.False(t, ok)
	// Failed conversion leaves the module untouched.
	require.NotContains(t, l.GenerateIR(), "@"+TENSOR_VIEW+"(")
}

func TestBlockPtrSharesAddressing(t *testing.T) {
	l, fn := newTestKernel(t, "testBlockPtr")

	ptr := f32Ptr(l, fn.Param(0), ir.Statics(3, 2), ir.Statics(10, 1), []int64{2, 2})
	ptr.Kind = ir.Block
	runOps(t, l, ptr)

	view := singleView(t, l, ptr)
	require.Equal(t, int64(5), view.Offset.Int())
}

func TestSideBySideSplit(t *testing.T) {
	l, fn := newTestKernel(t, "testSideBySide")

	// 2x6 request starting at column 7 of a 10-column row: 3 columns fit
	// before the boundary, 3 wrap back to column 0.
	ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 7), ir.Statics(10, 1), []int64{2, 6})
	ptr.Kind = ir.Split
	ptr.Wrap = ir.WrapSideBySide
	ptr.Shape = []ir.Index{ir.Static(0), ir.Static(10)}
	runOps(t, l, ptr)

	p, ok := l.Ptr(ptr)
	require.True(t, ok)
	split, ok := p.(*SideBySide)
	require.True(t, ok)

	require.Equal(t, int64(7), split.First.Offset.Int())
	require.Equal(t, int64(2), split.First.Sizes[0].Int())
	require.Equal(t, int64(3), split.First.Sizes[1].Int())

	require.Equal(t, int64(0), split.Second.Offset.Int())
	require.Equal(t, int64(2), split.Second.Sizes[0].Int())
	require.Equal(t, int64(3), split.Second.Sizes[1].Int())

	require.Equal(t, 2, callCount(l.GenerateIR(), TENSOR_VIEW))
}

func TestSideBySideNoActualWrap(t *testing.T) {
	l, fn := newTestKernel(t, "testSideBySideEdge")

	// The request ends exactly at the boundary: the second chunk is empty.
	ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 4), ir.Statics(10, 1), []int64{2, 6})
	ptr.Kind = ir.Split
	ptr.Wrap = ir.WrapSideBySide
	ptr.Shape = []ir.Index{ir.Static(0), ir.Static(10)}
	runOps(t, l, ptr)

	p, _ := l.Ptr(ptr)
	split := p.(*SideBySide)
	require.Equal(t, int64(6), split.First.Sizes[1].Int())
	require.Equal(t, int64(0), split.Second.Sizes[1].Int())
}

func TestStackedSplit(t *testing.T) {
	l, fn := newTestKernel(t, "testStacked")

	// 4x4 request starting at linear offset 42 (row 5, column 2) of a
	// 6-row tensor with row stride 8. One row fits below the boundary,
	// three wrap to the top. Shape[0] carries rows * rowStride.
	ptr := f32Ptr(l, fn.Param(0), ir.Statics(40, 2), ir.Statics(8, 1), []int64{4, 4})
	ptr.Kind = ir.Split
	ptr.Wrap = ir.WrapStacked
	ptr.Shape = []ir.Index{ir.Static(48), ir.Static(0)}
	runOps(t, l, ptr)

	p, ok := l.Ptr(ptr)
	require.True(t, ok)
	split, ok := p.(*Stacked)
	require.True(t, ok)

	require.Equal(t, int64(42), split.First.Offset.Int())
	require.Equal(t, int64(1), split.First.Sizes[0].Int())
	require.Equal(t, int64(4), split.First.Sizes[1].Int())

	require.Equal(t, int64(2), split.Second.Offset.Int())
	require.Equal(t, int64(3), split.Second.Sizes[0].Int())
	require.Equal(t, int64(4), split.Second.Sizes[1].Int())
}

func TestSplitChunksKeepOriginalStrides(t *testing.T) {
	l, fn := newTestKernel(t, "testSplitStrides")

	ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 7), ir.Statics(10, 1), []int64{2, 6})
	ptr.Kind = ir.Split
	ptr.Wrap = ir.WrapSideBySide
	ptr.Shape = []ir.Index{ir.Static(0), ir.Static(10)}
	runOps(t, l, ptr)

	p, _ := l.Ptr(ptr)
	split := p.(*SideBySide)
	for _, view := range []*BufferView{split.First, split.Second} {
		require.Equal(t, int64(10), view.Strides[0].Int())
		require.Equal(t, int64(1), view.Strides[1].Int())
	}
}

func TestMaterializeDeterministic(t *testing.T) {
	build := func(name string) (int64, int64) {
		l, fn := newTestKernel(t, name)
		ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 6), ir.Statics(8, 1), []int64{4, 4})
		ptr.Kind = ir.Split
		ptr.Wrap = ir.WrapSideBySide
		ptr.Shape = []ir.Index{ir.Static(0), ir.Static(8)}
		runOps(t, l, ptr)

		p, _ := l.Ptr(ptr)
		split := p.(*SideBySide)
		return split.First.Sizes[1].Int(), split.Second.Sizes[1].Int()
	}

	d1a, d2a := build("testDeterministicA")
	d1b, d2b := build("testDeterministicB")
	require.Equal(t, d1a, d1b)
	require.Equal(t, d2a, d2b)
	require.Equal(t, int64(4), d1a+d2a)
}

func TestSplitRejectsNon2D(t *testing.T) {
	l, fn := newTestKernel(t, "testSplit3D")

	ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 0, 0), ir.Statics(64, 8, 1), []int64{2, 4, 4})
	ptr.Kind = ir.Split
	ptr.Wrap = ir.WrapSideBySide
	ptr.Shape = ir.Statics(0, 0, 8)

	prog := &ir.Program{}
	prog.Add(ptr)
	require.Panics(t, func() { l.Run(prog) })
}

func TestSplitRejectsMissingWrapTag(t *testing.T) {
	l, fn := newTestKernel(t, "testSplitNoTag")

	ptr := f32Ptr(l, fn.Param(0), ir.Statics(0, 6), ir.Statics(8, 1), []int64{4, 4})
	ptr.Kind = ir.Split
	ptr.Shape = []ir.Index{ir.Static(0), ir.Static(8)}

	prog := &ir.Program{}
	prog.Add(ptr)
	require.Panics(t, func() { l.Run(prog) })
}

func TestDynamicSplitEmitsArithmetic(t *testing.T) {
	l, fn := newTestKernel(t, "testDynSplit")

	offsets := []ir.Index{ir.Static(0), ir.Dyn(fn.Param(1))}
	ptr := f32Ptr(l, fn.Param(0), offsets, ir.Statics(10, 1), []int64{2, 6})
	ptr.Kind = ir.Split
	ptr.Wrap = ir.WrapSideBySide
	ptr.Shape = []ir.Index{ir.Static(0), ir.Static(10)}
	runOps(t, l, ptr)

	p, _ := l.Ptr(ptr)
	split := p.(*SideBySide)
	require.False(t, split.First.Sizes[1].IsStatic())
	require.False(t, split.Second.Sizes[1].IsStatic())

	irText := l.GenerateIR()
	for _, instr := range []string{"idx_rem", "idx_min", "idx_sub"} {
		if !strings.Contains(irText, instr) {
			t.Errorf("IR missing %s for dynamic split:\n%s", instr, irText)
		}
	}
}
