package ir

import "github.com/EWSoftware/SHFB-sub006/ident"

// Body is a method body: basic blocks in source order, the exception
// handler table and the declared locals.
type Body struct {
	Blocks   []*Block
	Handlers []*Handler
	Locals   []*Local
}

// HandlerKind identifies an exception handler
type HandlerKind uint8

const (
	HandlerCatch HandlerKind = iota + 1
	HandlerFilter
	HandlerFinally
	HandlerFault
)

func (k HandlerKind) String() string {
	switch k {
	case HandlerCatch:
		return "catch"
	case HandlerFilter:
		return "filter"
	case HandlerFinally:
		return "finally"
	case HandlerFault:
		return "fault"
	}
	return "unknown"
}

// PushesException reports whether entering the handler pushes the exception object.
func (k HandlerKind) PushesException() bool {
	return k == HandlerCatch || k == HandlerFilter
}

// Handler associates a try region with its handler blocks.
// FilterStart is set for HandlerFilter only; FilterType for HandlerCatch.
type Handler struct {
	TryStart     *Block
	TryEnd       *Block
	HandlerStart *Block
	HandlerEnd   *Block
	FilterStart  *Block
	FilterType   TypeID
	Kind         HandlerKind
}

// Local is a method local variable slot.
type Local struct {
	Name  ident.Identifier
	Type  TypeID
	Index int
}

// Statement is implemented by every statement node.
type Statement interface {
	statementNode()
}

// Block is an ordered statement list. Blocks listed in Body.Blocks carry
// their source-order position in Index; fragments created by passes use -1.
type Block struct {
	Statements []Statement
	Index      int
}

// ExpressionStatement evaluates an expression. In stack-machine form a
// non-void value is pushed onto the operand stack.
type ExpressionStatement struct {
	Expr Expression
}

// AssignmentStatement stores Source into Target.
type AssignmentStatement struct {
	Target Expression
	Source Expression
}

// Branch jumps to Target, conditionally when Condition is non-nil.
type Branch struct {
	Condition Expression
	Target    *Block
}

// SwitchInstruction jumps to Targets[Value] or falls through.
type SwitchInstruction struct {
	Value   Expression
	Targets []*Block
}

// Return leaves the method, with Value for non-void methods.
type Return struct {
	Value Expression
}

// Throw raises Value; a nil Value rethrows the current exception.
type Throw struct {
	Value Expression
}

// EndFilter ends a filter block with its verdict.
type EndFilter struct {
	Value Expression
}

// EndFinally ends a finally or fault block.
type EndFinally struct{}

func (*Block) statementNode()               {}
func (*ExpressionStatement) statementNode() {}
func (*AssignmentStatement) statementNode() {}
func (*Branch) statementNode()              {}
func (*SwitchInstruction) statementNode()   {}
func (*Return) statementNode()              {}
func (*Throw) statementNode()               {}
func (*EndFilter) statementNode()           {}
func (*EndFinally) statementNode()          {}

// TransfersControl reports whether s never falls through to the next statement.
func TransfersControl(s Statement) bool {
	switch s := s.(type) {
	case *Return, *Throw, *EndFilter, *EndFinally:
		return true
	case *Branch:
		return s.Condition == nil
	case *Block:
		return len(s.Statements) > 0 && TransfersControl(s.Statements[len(s.Statements)-1])
	}
	return false
}

// Expression is implemented by every expression node.
type Expression interface {
	// Type returns the static type of the value, or NoType when unknown.
	Type() TypeID
	expressionNode()
}

// BinaryOp is a binary operator.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var binaryOpText = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpRem: "%",
	OpAnd: "&", OpOr: "|", OpXor: "^", OpShl: "<<", OpShr: ">>",
	OpEq: "==", OpNe: "!=", OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryOpText) && binaryOpText[op] != "" {
		return binaryOpText[op]
	}
	return "?"
}

// UnaryOp is a unary operator.
type UnaryOp uint8

const (
	OpNeg UnaryOp = iota + 1
	OpNot
)

// Literal is a constant.
type Literal struct {
	Value any
	Typ   TypeID
}

// LocalRef reads or writes a local.
type LocalRef struct {
	Local *Local
}

// ParameterRef reads or writes a parameter.
type ParameterRef struct {
	Param *Parameter
}

// BinaryExpr applies Op to Left and Right.
type BinaryExpr struct {
	Left  Expression
	Right Expression
	Typ   TypeID
	Op    BinaryOp
}

// UnaryExpr applies Op to Operand.
type UnaryExpr struct {
	Operand Expression
	Typ     TypeID
	Op      UnaryOp
}

// Conversion converts or casts Operand to Typ.
type Conversion struct {
	Operand Expression
	Typ     TypeID
}

// Call invokes Method on Target (nil for static calls).
type Call struct {
	Target  Expression
	Args    []Expression
	Method  MemberID
	Typ     TypeID
	Virtual bool
}

// Construct allocates an object with Constructor.
type Construct struct {
	Args        []Expression
	Constructor MemberID
	Typ         TypeID
}

// FieldRef reads or writes Field of Target (nil for static fields).
type FieldRef struct {
	Target Expression
	Field  MemberID
	Typ    TypeID
}

// ArrayElement indexes an array.
type ArrayElement struct {
	Array Expression
	Index Expression
	Typ   TypeID
}

// Dup duplicates the top of the operand stack.
type Dup struct{}

// Pop with a nil Operand reads and removes the top of the operand stack.
// With an Operand it evaluates the operand and discards the value.
type Pop struct {
	Operand Expression
	Typ     TypeID
}

// Arglist is the handle to a vararg method's argument list.
type Arglist struct {
	Typ TypeID
}

// CaughtException is the exception object pushed on entry to a catch or filter.
type CaughtException struct {
	Typ TypeID
}

func (e *Literal) Type() TypeID         { return e.Typ }
func (e *LocalRef) Type() TypeID        { return e.Local.Type }
func (e *ParameterRef) Type() TypeID    { return e.Param.Type }
func (e *BinaryExpr) Type() TypeID      { return e.Typ }
func (e *UnaryExpr) Type() TypeID       { return e.Typ }
func (e *Conversion) Type() TypeID      { return e.Typ }
func (e *Call) Type() TypeID            { return e.Typ }
func (e *Construct) Type() TypeID       { return e.Typ }
func (e *FieldRef) Type() TypeID        { return e.Typ }
func (e *ArrayElement) Type() TypeID    { return e.Typ }
func (e *Dup) Type() TypeID             { return NoType }
func (e *Pop) Type() TypeID             { return e.Typ }
func (e *Arglist) Type() TypeID         { return e.Typ }
func (e *CaughtException) Type() TypeID { return e.Typ }

func (*Literal) expressionNode()         {}
func (*LocalRef) expressionNode()        {}
func (*ParameterRef) expressionNode()    {}
func (*BinaryExpr) expressionNode()      {}
func (*UnaryExpr) expressionNode()       {}
func (*Conversion) expressionNode()      {}
func (*Call) expressionNode()            {}
func (*Construct) expressionNode()       {}
func (*FieldRef) expressionNode()        {}
func (*ArrayElement) expressionNode()    {}
func (*Dup) expressionNode()             {}
func (*Pop) expressionNode()             {}
func (*Arglist) expressionNode()         {}
func (*CaughtException) expressionNode() {}
