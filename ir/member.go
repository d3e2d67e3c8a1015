package ir

import "github.com/EWSoftware/SHFB-sub006/ident"

// MemberKind identifies the kind of a member
type MemberKind uint8

const (
	MemberField MemberKind = iota + 1
	MemberMethod
	MemberProperty
	MemberEvent
	MemberNestedType
)

func (k MemberKind) String() string {
	switch k {
	case MemberField:
		return "field"
	case MemberMethod:
		return "method"
	case MemberProperty:
		return "property"
	case MemberEvent:
		return "event"
	case MemberNestedType:
		return "nested"
	}
	return "unknown"
}

// Member is owned by exactly one declaring type.
//
// Type is the field, property or event type; for MemberNestedType it is the
// nested type itself. Methods use ReturnType, Parameters and Body.
type Member struct {
	Name               ident.Identifier
	Attributes         []Attribute
	SecurityAttributes []SecurityAttribute
	Parameters         []*Parameter
	TemplateParameters []TypeID
	TemplateArguments  []TypeID
	ThisParameter      *Parameter
	Body               *Body
	ID                 MemberID
	DeclaringType      TypeID
	Type               TypeID
	ReturnType         TypeID
	Template           MemberID
	Getter             MemberID
	Setter             MemberID
	Flags              uint16
	Kind               MemberKind
}

// Method flag bits used by the reader.
const (
	MethodFlagStatic  uint16 = 0x0010
	MethodFlagVirtual uint16 = 0x0040
)

// IsStatic reports whether a method has no this parameter.
func (m *Member) IsStatic() bool {
	return m.Kind == MemberMethod && m.Flags&MethodFlagStatic != 0
}

// Parameter is a method parameter, including the implicit this parameter.
type Parameter struct {
	Name       ident.Identifier
	Attributes []Attribute
	Type       TypeID
	Index      int
	Flags      uint16
}

// Attribute is a custom attribute application.
type Attribute struct {
	Arguments   []Expression
	Type        TypeID
	Constructor MemberID
}

// SecurityAttribute groups permission attributes under one security action.
type SecurityAttribute struct {
	Attributes []Attribute
	Action     uint16
}
