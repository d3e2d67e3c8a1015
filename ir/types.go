package ir

import "github.com/EWSoftware/SHFB-sub006/ident"

// TypeID identifies a type node in a Graph.
type TypeID uint32

// MemberID identifies a member node in a Graph.
type MemberID uint32

// Zero handles are sentinels.
const (
	NoType   TypeID   = 0
	NoMember MemberID = 0
)

// IsValid returns true if the ID is valid (non-zero).
func (id TypeID) IsValid() bool   { return id != NoType }
func (id MemberID) IsValid() bool { return id != NoMember }

// TypeKind identifies the shape of a type node
type TypeKind uint8

const (
	KindClass TypeKind = iota + 1
	KindInterface
	KindStruct
	KindEnum
	KindDelegate
	KindArray
	KindPointer
	KindReference
	KindOptionalModifier
	KindRequiredModifier
	KindFunctionPointer
	KindTypeParameter
	KindClassParameter // type parameter lowered to a class with a concrete base
)

var kindNames = [...]string{
	KindClass:            "class",
	KindInterface:        "interface",
	KindStruct:           "struct",
	KindEnum:             "enum",
	KindDelegate:         "delegate",
	KindArray:            "array",
	KindPointer:          "pointer",
	KindReference:        "reference",
	KindOptionalModifier: "modopt",
	KindRequiredModifier: "modreq",
	KindFunctionPointer:  "fnptr",
	KindTypeParameter:    "typeparam",
	KindClassParameter:   "classparam",
}

func (k TypeKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// IsStructural reports whether the kind is derived from other types by a
// construction rule rather than declared by name.
func (k TypeKind) IsStructural() bool {
	switch k {
	case KindArray, KindPointer, KindReference,
		KindOptionalModifier, KindRequiredModifier, KindFunctionPointer:
		return true
	}
	return false
}

// IsParameter reports whether the kind is a template parameter placeholder.
func (k TypeKind) IsParameter() bool {
	return k == KindTypeParameter || k == KindClassParameter
}

// TypeFlags holds the raw TypeAttributes bits from metadata.
type TypeFlags uint32

const (
	TypeFlagInterface TypeFlags = 0x20
	TypeFlagAbstract  TypeFlags = 0x80
	TypeFlagSealed    TypeFlags = 0x100
)

// GenericParamFlags holds the raw GenericParamAttributes bits.
type GenericParamFlags uint16

// TypeNode is a class, interface, struct, enum, delegate, structural type or
// type parameter.
//
// A node with TemplateArguments always has Template set. A type parameter
// never has TemplateArguments. Interfaces doubles as the constraint list of
// a type parameter.
type TypeNode struct {
	Name               ident.Identifier
	Namespace          ident.Identifier
	Module             *Module
	Attributes         []Attribute
	SecurityAttributes []SecurityAttribute
	Interfaces         []TypeID
	TemplateArguments  []TypeID
	TemplateParameters []TypeID
	ParameterTypes     []TypeID
	members            []MemberID
	provider           MemberProvider
	ID                 TypeID
	DeclaringType      TypeID
	BaseType           TypeID
	Template           TypeID
	ElementType        TypeID
	Modifier           TypeID
	ReturnType         TypeID
	DeclaringMember    MemberID
	Flags              TypeFlags
	ParameterIndex     int
	Rank               int
	ParamFlags         GenericParamFlags
	Kind               TypeKind
}

// IsTemplateInstance reports whether t was instantiated from a template.
func (t *TypeNode) IsTemplateInstance() bool {
	return t.Template.IsValid() && len(t.TemplateArguments) > 0
}

// IsGenericDefinition reports whether t declares parameters and has no arguments.
func (t *TypeNode) IsGenericDefinition() bool {
	return len(t.TemplateParameters) > 0 && len(t.TemplateArguments) == 0
}

// MemberProvider materializes a type's member list on first use.
type MemberProvider func(g *Graph, t TypeID) ([]MemberID, error)
