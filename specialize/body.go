package specialize

import "github.com/EWSoftware/SHFB-sub006/ir"

// VisitBody specializes a method body in place: declared locals, handler
// filter types and every statement and expression reachable from the blocks.
// Parameter types belong to the method signature and are left to it.
func (s *Specializer) VisitBody(b *ir.Body) {
	if b == nil {
		return
	}
	w := bodyVisitor{s: s, locals: make(map[*ir.Local]bool, len(b.Locals))}
	for _, l := range b.Locals {
		w.local(l)
	}
	for _, h := range b.Handlers {
		h.FilterType = s.SpecializeTypeReference(h.FilterType)
	}
	for _, blk := range b.Blocks {
		w.block(blk)
	}
}

type bodyVisitor struct {
	s      *Specializer
	locals map[*ir.Local]bool
}

// local specializes each local once, whether it is declared or only
// reachable through a reference.
func (w *bodyVisitor) local(l *ir.Local) {
	if l == nil || w.locals[l] {
		return
	}
	w.locals[l] = true
	l.Type = w.s.SpecializeTypeReference(l.Type)
}

func (w *bodyVisitor) block(b *ir.Block) {
	if b == nil {
		return
	}
	for _, st := range b.Statements {
		w.statement(st)
	}
}

func (w *bodyVisitor) statement(st ir.Statement) {
	switch st := st.(type) {
	case *ir.Block:
		// fragments only; listed blocks are walked by VisitBody
		if st.Index < 0 {
			w.block(st)
		}
	case *ir.ExpressionStatement:
		st.Expr = w.expr(st.Expr)
	case *ir.AssignmentStatement:
		st.Target = w.expr(st.Target)
		st.Source = w.expr(st.Source)
	case *ir.Branch:
		st.Condition = w.expr(st.Condition)
	case *ir.SwitchInstruction:
		st.Value = w.expr(st.Value)
	case *ir.Return:
		st.Value = w.expr(st.Value)
	case *ir.Throw:
		st.Value = w.expr(st.Value)
	case *ir.EndFilter:
		st.Value = w.expr(st.Value)
	case *ir.EndFinally:
	}
}

func (w *bodyVisitor) exprs(list []ir.Expression) {
	for i, e := range list {
		list[i] = w.expr(e)
	}
}

func (w *bodyVisitor) expr(e ir.Expression) ir.Expression {
	s := w.s
	switch e := e.(type) {
	case nil:
		return nil
	case *ir.Literal:
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.LocalRef:
		w.local(e.Local)
	case *ir.ParameterRef:
	case *ir.BinaryExpr:
		e.Left = w.expr(e.Left)
		e.Right = w.expr(e.Right)
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.UnaryExpr:
		e.Operand = w.expr(e.Operand)
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.Conversion:
		e.Operand = w.expr(e.Operand)
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.Call:
		e.Target = w.expr(e.Target)
		w.exprs(e.Args)
		e.Method = s.SpecializeMember(e.Method)
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.Construct:
		w.exprs(e.Args)
		e.Constructor = s.SpecializeMember(e.Constructor)
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.FieldRef:
		e.Target = w.expr(e.Target)
		e.Field = s.SpecializeMember(e.Field)
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.ArrayElement:
		e.Array = w.expr(e.Array)
		e.Index = w.expr(e.Index)
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.Dup:
	case *ir.Pop:
		e.Operand = w.expr(e.Operand)
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.Arglist:
		e.Typ = s.SpecializeTypeReference(e.Typ)
	case *ir.CaughtException:
		e.Typ = s.SpecializeTypeReference(e.Typ)
	}
	return e
}
