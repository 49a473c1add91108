package lower

import (
	"github.com/thiremani/strata/ir"
	"tinygo.org/x/go-llvm"
)

// BufferView is the lowered form of a tensor pointer: a non-owning, aliasing
// descriptor over an existing base. Val holds the runtime view handle; the
// Index fields keep the extents the handle was built from so later rules can
// fold placement arithmetic instead of re-reading dimensions at run time.
type BufferView struct {
	Val  llvm.Value
	Elem llvm.Type

	Offset  ir.Index
	Sizes   []ir.Index
	Strides []ir.Index
}

// LoweredPtr is the tagged result of materializing a tensor pointer. The
// load lowerer selects its copy strategy by switching on the variant; an
// unknown variant in such a switch is an internal bug.
type LoweredPtr interface {
	loweredPtr()
}

// Single is a non-wrapping pointer lowered to one view.
type Single struct {
	View *BufferView
}

// SideBySide is a pointer that wraps along the trailing (column) axis,
// lowered to two views whose column extents sum to the requested width.
type SideBySide struct {
	First  *BufferView
	Second *BufferView
}

// Stacked is a pointer that wraps along the leading (row) axis, lowered to
// two views whose row extents sum to the requested height.
type Stacked struct {
	First  *BufferView
	Second *BufferView
}

func (*Single) loweredPtr()     {}
func (*SideBySide) loweredPtr() {}
func (*Stacked) loweredPtr()    {}
