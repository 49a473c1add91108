package lower

import (
	"github.com/thiremani/strata/ir"
	"tinygo.org/x/go-llvm"
)

// Fold-or-emit arithmetic over mixed static/dynamic index quantities. Every
// helper returns a static index when all operands are static; otherwise it
// materializes the operands and emits the instruction at the current insert
// point.

// indexVal materializes an index as an i64 value.
func (l *Lowerer) indexVal(ix ir.Index) llvm.Value {
	if ix.IsStatic() {
		return l.ConstI64(uint64(ix.Int()))
	}
	return ix.Val()
}

func (l *Lowerer) addIndex(a, b ir.Index) ir.Index {
	if a.IsStatic() && b.IsStatic() {
		return ir.Static(a.Int() + b.Int())
	}
	// Adding a static zero is a no-op either way.
	if a.IsStatic() && a.Int() == 0 {
		return b
	}
	if b.IsStatic() && b.Int() == 0 {
		return a
	}
	return ir.Dyn(l.builder.CreateAdd(l.indexVal(a), l.indexVal(b), "idx_add"))
}

func (l *Lowerer) subIndex(a, b ir.Index) ir.Index {
	if a.IsStatic() && b.IsStatic() {
		return ir.Static(a.Int() - b.Int())
	}
	if b.IsStatic() && b.Int() == 0 {
		return a
	}
	return ir.Dyn(l.builder.CreateSub(l.indexVal(a), l.indexVal(b), "idx_sub"))
}

func (l *Lowerer) minIndex(a, b ir.Index) ir.Index {
	if a.IsStatic() && b.IsStatic() {
		return ir.Static(min(a.Int(), b.Int()))
	}
	av := l.indexVal(a)
	bv := l.indexVal(b)
	lt := l.builder.CreateICmp(llvm.IntSLT, av, bv, "idx_lt")
	return ir.Dyn(l.builder.CreateSelect(lt, av, bv, "idx_min"))
}

func (l *Lowerer) remIndex(a, b ir.Index) ir.Index {
	if a.IsStatic() && b.IsStatic() {
		return ir.Static(a.Int() % b.Int())
	}
	return ir.Dyn(l.builder.CreateSRem(l.indexVal(a), l.indexVal(b), "idx_rem"))
}

func (l *Lowerer) divIndex(a, b ir.Index) ir.Index {
	if a.IsStatic() && b.IsStatic() {
		return ir.Static(a.Int() / b.Int())
	}
	return ir.Dyn(l.builder.CreateSDiv(l.indexVal(a), l.indexVal(b), "idx_div"))
}

// ltIndex compares a < b, folding to a static boolean when both operands are
// static. The second return reports whether the result folded.
func (l *Lowerer) ltIndex(a, b ir.Index) (llvm.Value, bool, bool) {
	if a.IsStatic() && b.IsStatic() {
		return llvm.Value{}, a.Int() < b.Int(), true
	}
	return l.builder.CreateICmp(llvm.IntSLT, l.indexVal(a), l.indexVal(b), "idx_cmp"), false, false
}
