package unstack

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

// Option configures Unstack.
type Option func(*unstacker)

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(u *unstacker) { u.log = l }
}

// WithNames interns the names of new locals in tab instead of ident.Default.
func WithNames(tab *ident.Table) Option {
	return func(u *unstacker) { u.names = tab }
}

// Unstack rewrites body so that every operand travels through a local.
// New locals are named t0, t1, ... and appended to body.Locals.
//
// sys supplies Void, which marks values that are not pushed, and Object,
// the type of exceptions caught without a declared filter type.
//
// On error the body is left unchanged.
func Unstack(body *ir.Body, sys *ir.SystemTypes, opts ...Option) error {
	order, err := Sort(body)
	if err != nil {
		return err
	}
	u := &unstacker{
		body:      body,
		sys:       sys,
		log:       Logger(),
		names:     ident.Default,
		order:     order,
		entry:     make(map[*ir.Block]*LocalsStack),
		rewritten: make(map[*ir.Block][]ir.Statement, len(body.Blocks)),
	}
	for _, o := range opts {
		o(u)
	}

	if err := u.seedHandlers(); err != nil {
		return err
	}
	for _, b := range order.Blocks {
		if err := u.block(b); err != nil {
			return err
		}
	}

	for b, stmts := range u.rewritten {
		b.Statements = stmts
	}
	body.Locals = append(body.Locals, u.locals...)
	u.log.Debug("unstacked body",
		zap.Int("blocks", len(order.Blocks)),
		zap.Int("locals", len(u.locals)),
		zap.Int("copies", u.copies))
	return nil
}

type unstacker struct {
	body      *ir.Body
	sys       *ir.SystemTypes
	log       *zap.Logger
	names     *ident.Table
	order     *Order
	entry     map[*ir.Block]*LocalsStack
	rewritten map[*ir.Block][]ir.Statement
	locals    []*ir.Local
	// slots holds the local most recently allocated at each depth.
	slots  []*ir.Local
	copies int
}

// seedHandlers commits the entry stacks of handler blocks. Catch and filter
// handlers, and filter expressions, start with the exception pending.
func (u *unstacker) seedHandlers() error {
	for i, h := range u.body.Handlers {
		if h.HandlerStart == nil {
			return errors.Consistency(errors.PhaseUnstack, "handler %d has no start block", i)
		}
		if h.Kind == ir.HandlerFilter && h.FilterStart == nil {
			return errors.Consistency(errors.PhaseUnstack, "filter handler %d has no filter block", i)
		}
		if !h.Kind.PushesException() {
			u.commit(h.HandlerStart, NewLocalsStack())
			continue
		}
		typ := h.FilterType
		if h.Kind == ir.HandlerFilter || !typ.IsValid() {
			typ = u.sys.Object
		}
		u.commit(h.HandlerStart, u.exceptionStack(typ))
		if h.FilterStart != nil {
			u.commit(h.FilterStart, u.exceptionStack(u.sys.Object))
		}
	}
	return nil
}

func (u *unstacker) exceptionStack(typ ir.TypeID) *LocalsStack {
	s := NewLocalsStack()
	s.SetException(u.newLocal(0, typ))
	return s
}

func (u *unstacker) commit(b *ir.Block, s *LocalsStack) {
	if _, ok := u.entry[b]; !ok {
		u.entry[b] = s
	}
}

func (u *unstacker) block(b *ir.Block) error {
	stack, ok := u.entry[b]
	if !ok {
		// Unreachable so far; record the assumption so a later
		// predecessor with a different shape is caught.
		stack = NewLocalsStack()
		u.entry[b] = stack
	}
	stack = stack.Clone()

	var out []ir.Statement
	if l := stack.TakeException(); l != nil {
		out = append(out, &ir.AssignmentStatement{
			Target: &ir.LocalRef{Local: l},
			Source: &ir.CaughtException{Typ: l.Type},
		})
	}
	out, err := u.statements(out, b.Statements, stack)
	if err != nil {
		return errors.New(errors.PhaseUnstack, errors.KindInternalConsistency).
			Detail("block %d", b.Index).
			Cause(err).
			Build()
	}

	if succ := u.order.Successor[b]; succ != nil {
		copies, err := u.reconcile(stack, succ)
		if err != nil {
			return errors.New(errors.PhaseUnstack, errors.KindInternalConsistency).
				Detail("block %d falling into block %d", b.Index, succ.Index).
				Cause(err).
				Build()
		}
		out = append(out, copies...)
	}
	u.rewritten[b] = out
	return nil
}

// reconcile commits stack as target's entry shape, or returns the copies
// aligning stack with the shape already committed.
func (u *unstacker) reconcile(stack *LocalsStack, target *ir.Block) ([]ir.Statement, error) {
	committed, ok := u.entry[target]
	if !ok {
		u.entry[target] = stack.Clone()
		return nil, nil
	}
	copies, err := stack.Transfer(committed)
	if err != nil {
		return nil, err
	}
	u.copies += len(copies)
	return copies, nil
}

func (u *unstacker) statements(out, in []ir.Statement, stack *LocalsStack) ([]ir.Statement, error) {
	for _, st := range in {
		var err error
		out, err = u.statement(out, st, stack)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// statement appends the rewritten form of st to out.
func (u *unstacker) statement(out []ir.Statement, st ir.Statement, stack *LocalsStack) ([]ir.Statement, error) {
	switch st := st.(type) {
	case *ir.ExpressionStatement:
		return u.expressionStatement(out, st, stack)

	case *ir.AssignmentStatement:
		src, err := u.expr(st.Source, stack)
		if err != nil {
			return nil, err
		}
		dst, err := u.expr(st.Target, stack)
		if err != nil {
			return nil, err
		}
		return append(out, &ir.AssignmentStatement{Target: dst, Source: src}), nil

	case *ir.Branch:
		cond, err := u.expr(st.Condition, stack)
		if err != nil {
			return nil, err
		}
		br := &ir.Branch{Condition: cond, Target: st.Target}
		return u.jump(out, br, stack, st.Target)

	case *ir.SwitchInstruction:
		val, err := u.expr(st.Value, stack)
		if err != nil {
			return nil, err
		}
		sw := &ir.SwitchInstruction{Value: val, Targets: st.Targets}
		return u.jump(out, sw, stack, st.Targets...)

	case *ir.Return:
		val, err := u.expr(st.Value, stack)
		if err != nil {
			return nil, err
		}
		return append(out, &ir.Return{Value: val}), nil

	case *ir.Throw:
		val, err := u.expr(st.Value, stack)
		if err != nil {
			return nil, err
		}
		return append(out, &ir.Throw{Value: val}), nil

	case *ir.EndFilter:
		val, err := u.expr(st.Value, stack)
		if err != nil {
			return nil, err
		}
		return append(out, &ir.EndFilter{Value: val}), nil

	case *ir.EndFinally:
		return append(out, st), nil

	case *ir.Block:
		inner, err := u.statements(nil, st.Statements, stack)
		if err != nil {
			return nil, err
		}
		return append(out, &ir.Block{Statements: inner, Index: -1}), nil
	}
	return nil, errors.Consistency(errors.PhaseUnstack, "unexpected statement %T", st)
}

func (u *unstacker) expressionStatement(out []ir.Statement, st *ir.ExpressionStatement, stack *LocalsStack) ([]ir.Statement, error) {
	switch e := st.Expr.(type) {
	case *ir.Dup:
		top, err := stack.Peek()
		if err != nil {
			return nil, err
		}
		src := &ir.LocalRef{Local: top}
		l := u.slotLocal(stack.Len(), top.Type, src)
		if _, err := stack.Dup(l); err != nil {
			return nil, err
		}
		return append(out, &ir.AssignmentStatement{Target: &ir.LocalRef{Local: l}, Source: src}), nil

	case *ir.Pop:
		if e.Operand == nil {
			// bare pop: the value is discarded
			_, err := stack.Pop()
			return out, err
		}
	}

	val, err := u.expr(st.Expr, stack)
	if err != nil {
		return nil, err
	}
	if !u.pushes(val) {
		return append(out, &ir.ExpressionStatement{Expr: val}), nil
	}
	l := u.slotLocal(stack.Len(), val.Type(), val)
	stack.Push(l)
	return append(out, &ir.AssignmentStatement{Target: &ir.LocalRef{Local: l}, Source: val}), nil
}

// jump reconciles stack with each target and returns st, wrapped in a
// fragment behind the alignment copies when any are needed.
func (u *unstacker) jump(out []ir.Statement, st ir.Statement, stack *LocalsStack, targets ...*ir.Block) ([]ir.Statement, error) {
	var copies []ir.Statement
	for _, t := range targets {
		c, err := u.reconcile(stack, t)
		if err != nil {
			return nil, err
		}
		copies = append(copies, c...)
	}
	if len(copies) == 0 {
		return append(out, st), nil
	}
	fragment := &ir.Block{Statements: append(copies, st), Index: -1}
	return append(out, fragment), nil
}

// pushes reports whether an evaluated expression leaves a value on the stack.
func (u *unstacker) pushes(e ir.Expression) bool {
	t := e.Type()
	return t.IsValid() && t != u.sys.Void
}

// slotLocal returns the local for a value pushed at depth. The previous
// local of that depth is reused when the type matches and the value does
// not read it; otherwise a new local is allocated.
func (u *unstacker) slotLocal(depth int, typ ir.TypeID, val ir.Expression) *ir.Local {
	if depth < len(u.slots) {
		if l := u.slots[depth]; l != nil && l.Type == typ && !mentions(val, l) {
			return l
		}
	}
	return u.newLocal(depth, typ)
}

func (u *unstacker) newLocal(depth int, typ ir.TypeID) *ir.Local {
	n := len(u.locals)
	l := &ir.Local{
		Name:  u.names.Intern("t" + strconv.Itoa(n)),
		Type:  typ,
		Index: len(u.body.Locals) + n,
	}
	u.locals = append(u.locals, l)
	for len(u.slots) <= depth {
		u.slots = append(u.slots, nil)
	}
	u.slots[depth] = l
	return l
}

// expr returns a copy of e with every Pop replaced by a read of the popped
// local. Operands are visited right to left, the reverse of push order.
func (u *unstacker) expr(e ir.Expression, stack *LocalsStack) (ir.Expression, error) {
	switch e := e.(type) {
	case nil:
		return nil, nil

	case *ir.Pop:
		if e.Operand == nil {
			l, err := stack.Pop()
			if err != nil {
				return nil, err
			}
			return &ir.LocalRef{Local: l}, nil
		}
		op, err := u.expr(e.Operand, stack)
		if err != nil {
			return nil, err
		}
		return &ir.Pop{Operand: op, Typ: u.sys.Void}, nil

	case *ir.Dup:
		return nil, errors.Consistency(errors.PhaseUnstack, "dup used as an operand")

	case *ir.Literal, *ir.LocalRef, *ir.ParameterRef, *ir.Arglist, *ir.CaughtException:
		return e, nil

	case *ir.BinaryExpr:
		right, err := u.expr(e.Right, stack)
		if err != nil {
			return nil, err
		}
		left, err := u.expr(e.Left, stack)
		if err != nil {
			return nil, err
		}
		return &ir.BinaryExpr{Left: left, Right: right, Typ: e.Typ, Op: e.Op}, nil

	case *ir.UnaryExpr:
		op, err := u.expr(e.Operand, stack)
		if err != nil {
			return nil, err
		}
		return &ir.UnaryExpr{Operand: op, Typ: e.Typ, Op: e.Op}, nil

	case *ir.Conversion:
		op, err := u.expr(e.Operand, stack)
		if err != nil {
			return nil, err
		}
		return &ir.Conversion{Operand: op, Typ: e.Typ}, nil

	case *ir.Call:
		args, err := u.exprsReversed(e.Args, stack)
		if err != nil {
			return nil, err
		}
		target, err := u.expr(e.Target, stack)
		if err != nil {
			return nil, err
		}
		return &ir.Call{Target: target, Args: args, Method: e.Method, Typ: e.Typ, Virtual: e.Virtual}, nil

	case *ir.Construct:
		args, err := u.exprsReversed(e.Args, stack)
		if err != nil {
			return nil, err
		}
		return &ir.Construct{Args: args, Constructor: e.Constructor, Typ: e.Typ}, nil

	case *ir.FieldRef:
		target, err := u.expr(e.Target, stack)
		if err != nil {
			return nil, err
		}
		return &ir.FieldRef{Target: target, Field: e.Field, Typ: e.Typ}, nil

	case *ir.ArrayElement:
		index, err := u.expr(e.Index, stack)
		if err != nil {
			return nil, err
		}
		array, err := u.expr(e.Array, stack)
		if err != nil {
			return nil, err
		}
		return &ir.ArrayElement{Array: array, Index: index, Typ: e.Typ}, nil
	}
	return nil, errors.Consistency(errors.PhaseUnstack, "unexpected expression %T", e)
}

func (u *unstacker) exprsReversed(list []ir.Expression, stack *LocalsStack) ([]ir.Expression, error) {
	if list == nil {
		return nil, nil
	}
	out := make([]ir.Expression, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		e, err := u.expr(list[i], stack)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// mentions reports whether e reads or writes l.
func mentions(e ir.Expression, l *ir.Local) bool {
	switch e := e.(type) {
	case *ir.LocalRef:
		return e.Local == l
	case *ir.BinaryExpr:
		return mentions(e.Left, l) || mentions(e.Right, l)
	case *ir.UnaryExpr:
		return mentions(e.Operand, l)
	case *ir.Conversion:
		return mentions(e.Operand, l)
	case *ir.Pop:
		return mentions(e.Operand, l)
	case *ir.Call:
		return mentions(e.Target, l) || mentionsAny(e.Args, l)
	case *ir.Construct:
		return mentionsAny(e.Args, l)
	case *ir.FieldRef:
		return mentions(e.Target, l)
	case *ir.ArrayElement:
		return mentions(e.Array, l) || mentions(e.Index, l)
	}
	return false
}

func mentionsAny(list []ir.Expression, l *ir.Local) bool {
	for _, e := range list {
		if mentions(e, l) {
			return true
		}
	}
	return false
}
