package ir

import (
	"strconv"

	"tinygo.org/x/go-llvm"
)

// Index is a per-dimension quantity that is either a compile-time constant
// or a value computed at kernel run time. Offsets, strides, mask extents and
// wrap moduli are all carried as Index so the lowering can fold arithmetic
// whenever every operand is known at compile time.
type Index struct {
	val int64
	dyn llvm.Value
}

// Static wraps a compile-time constant.
func Static(v int64) Index {
	return Index{val: v}
}

// Dyn wraps a value computed at run time.
func Dyn(v llvm.Value) Index {
	if v.IsNil() {
		panic("internal: Dyn index from nil llvm value")
	}
	return Index{dyn: v}
}

func (ix Index) IsStatic() bool {
	return ix.dyn.IsNil()
}

// Int returns the compile-time constant. Panics on a dynamic index.
func (ix Index) Int() int64 {
	if !ix.IsStatic() {
		panic("internal: Int on dynamic index")
	}
	return ix.val
}

// Val returns the runtime value. Panics on a static index.
func (ix Index) Val() llvm.Value {
	if ix.IsStatic() {
		panic("internal: Val on static index")
	}
	return ix.dyn
}

func (ix Index) String() string {
	if ix.IsStatic() {
		return strconv.FormatInt(ix.val, 10)
	}
	return "?"
}

// Statics converts a slice of compile-time extents to indices.
func Statics(vs ...int64) []Index {
	out := make([]Index, len(vs))
	for i, v := range vs {
		out[i] = Static(v)
	}
	return out
}
