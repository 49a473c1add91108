// Package ir holds the structured-pointer intermediate representation
// produced by pointer analysis: tensor-shaped memory descriptors plus the
// load and store ops that read and write through them. The lower package
// rewrites these ops into bounds-checked buffer views over a flat address
// space.
package ir

import (
	"bytes"
	"fmt"

	"tinygo.org/x/go-llvm"
)

// Kind classifies a tensor-pointer descriptor.
type Kind int

const (
	// Structured is a plain tensor-of-pointers descriptor.
	Structured Kind = iota
	// Block is a single pointer to a tensor region. Same addressing math as
	// Structured; only the source-level pointer form differs.
	Block
	// Split marks a descriptor whose addressed region straddles a wrap
	// boundary along exactly one axis.
	Split
)

func (k Kind) String() string {
	switch k {
	case Structured:
		return "structured"
	case Block:
		return "block"
	case Split:
		return "split"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Wrap tags the axis a Split descriptor wraps along.
type Wrap int

const (
	WrapNone Wrap = iota
	// WrapSideBySide wraps along the trailing (column) axis.
	WrapSideBySide
	// WrapStacked wraps along the leading (row) axis.
	WrapStacked
)

func (w Wrap) String() string {
	switch w {
	case WrapNone:
		return "none"
	case WrapSideBySide:
		return "side_by_side"
	case WrapStacked:
		return "stacked"
	}
	return fmt.Sprintf("wrap(%d)", int(w))
}

// Value is anything an op can consume: the result of an earlier op in the
// program, or an external tensor value supplied by the surrounding kernel.
type Value interface {
	valueNode()
}

// Op is one rewritable instruction in a structured-pointer program.
type Op interface {
	OpPos() Pos
	String() string
	opNode()
}

// Arg wraps an externally produced tensor value (for example a kernel
// argument) so it can feed a store.
type Arg struct {
	V llvm.Value
}

func (a *Arg) valueNode() {}

// MakeTensorPtrOp describes a regularly-strided region of a linear memory
// base: per-dimension starting offsets, strides, static extents, and the
// underlying tensor bounds used as wrap moduli. Order is the dimension-to-
// physical-axis permutation; only strictly decreasing orders are supported.
type MakeTensorPtrOp struct {
	Pos  Pos
	Base llvm.Value
	// Elem is the element type of the addressed region.
	Elem llvm.Type

	Offsets []Index
	Strides []Index
	// Sizes are the static per-dimension extents of the addressed region.
	Sizes []int64
	// Shape holds the per-dimension bounds of the underlying tensor. Only
	// consulted as the wrap modulus of a Split descriptor.
	Shape []Index
	Order []int

	Kind Kind
	// Wrap is the split axis tag. WrapNone unless Kind is Split.
	Wrap Wrap
}

func (op *MakeTensorPtrOp) opNode()    {}
func (op *MakeTensorPtrOp) valueNode() {}

func (op *MakeTensorPtrOp) OpPos() Pos { return op.Pos }

func (op *MakeTensorPtrOp) Rank() int { return len(op.Sizes) }

func (op *MakeTensorPtrOp) IsStructuredPtr() bool { return op.Kind == Structured }
func (op *MakeTensorPtrOp) IsBlockPtr() bool      { return op.Kind == Block }
func (op *MakeTensorPtrOp) IsSplitPtr() bool      { return op.Kind == Split }

func (op *MakeTensorPtrOp) String() string {
	var out bytes.Buffer
	out.WriteString("make_tensor_ptr ")
	out.WriteString(op.Kind.String())
	if op.Kind == Split {
		out.WriteString("/" + op.Wrap.String())
	}
	out.WriteString(" offsets:")
	writeIndexVec(&out, op.Offsets)
	out.WriteString(" strides:")
	writeIndexVec(&out, op.Strides)
	out.WriteString(" sizes:[")
	for i, s := range op.Sizes {
		if i > 0 {
			out.WriteString(", ")
		}
		fmt.Fprintf(&out, "%d", s)
	}
	out.WriteString("] order:")
	fmt.Fprintf(&out, "%v", op.Order)
	return out.String()
}

// LoadOp reads the region a tensor pointer addresses into a freshly
// allocated dense value. MaskDims, when present, bound the in-bounds region
// per dimension; Other, when present alongside a mask, pre-fills the
// out-of-bounds remainder.
type LoadOp struct {
	Pos Pos
	Ptr Value
	// Shape is the logical tensor shape of the load result.
	Shape    []int64
	MaskDims []Index
	// Other is the optional fill value. Nil llvm.Value means absent.
	Other llvm.Value
}

func (op *LoadOp) opNode()    {}
func (op *LoadOp) valueNode() {}

func (op *LoadOp) OpPos() Pos { return op.Pos }

func (op *LoadOp) HasMask() bool  { return len(op.MaskDims) > 0 }
func (op *LoadOp) HasOther() bool { return !op.Other.IsNil() }

func (op *LoadOp) Rank() int { return len(op.Shape) }

func (op *LoadOp) String() string {
	var out bytes.Buffer
	out.WriteString("load")
	if op.HasMask() {
		out.WriteString(" mask:")
		writeIndexVec(&out, op.MaskDims)
	}
	if op.HasOther() {
		out.WriteString(" other")
	}
	fmt.Fprintf(&out, " shape:%v", op.Shape)
	return out.String()
}

// StoreOp writes a tensor value through a tensor pointer. MaskDims, when
// present, restrict the write to the in-bounds sub-region.
type StoreOp struct {
	Pos      Pos
	Ptr      Value
	Val      Value
	MaskDims []Index
}

func (op *StoreOp) opNode() {}

func (op *StoreOp) OpPos() Pos { return op.Pos }

func (op *StoreOp) HasMask() bool { return len(op.MaskDims) > 0 }

func (op *StoreOp) String() string {
	var out bytes.Buffer
	out.WriteString("store")
	if op.HasMask() {
		out.WriteString(" mask:")
		writeIndexVec(&out, op.MaskDims)
	}
	return out.String()
}

// Program is a straight-line sequence of structured-pointer ops in emission
// order. Ops reference earlier ops' results directly as Values.
type Program struct {
	Ops []Op
}

func (p *Program) Add(ops ...Op) {
	p.Ops = append(p.Ops, ops...)
}

func (p *Program) String() string {
	var out bytes.Buffer
	for _, op := range p.Ops {
		out.WriteString(op.String())
		out.WriteString("\n")
	}
	return out.String()
}

func writeIndexVec(out *bytes.Buffer, ixs []Index) {
	out.WriteString("[")
	for i, ix := range ixs {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(ix.String())
	}
	out.WriteString("]")
}
