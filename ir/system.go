package ir

import "strings"

// SystemTypes is the bootstrap table of well-known base types, looked up by
// full name. One instance is created per Graph and passed to the passes
// that need it.
type SystemTypes struct {
	byName map[string]TypeID
	Module *Module

	Object            TypeID
	ValueType         TypeID
	Enum              TypeID
	Void              TypeID
	Boolean           TypeID
	Char              TypeID
	SByte             TypeID
	Byte              TypeID
	Int16             TypeID
	UInt16            TypeID
	Int32             TypeID
	UInt32            TypeID
	Int64             TypeID
	UInt64            TypeID
	Single            TypeID
	Double            TypeID
	String            TypeID
	IntPtr            TypeID
	UIntPtr           TypeID
	TypedReference    TypeID
	Array             TypeID
	Delegate          TypeID
	MulticastDelegate TypeID
	Exception         TypeID
	Type              TypeID
}

// NewSystemTypes registers the core library types in g under a module
// named coreLibrary (mscorlib when empty).
func NewSystemTypes(g *Graph, coreLibrary string) *SystemTypes {
	if coreLibrary == "" {
		coreLibrary = "mscorlib"
	}
	s := &SystemTypes{
		byName: make(map[string]TypeID),
		Module: g.NewModule(coreLibrary),
	}

	s.Object = s.define(g, "System.Object", KindClass, NoType)
	s.ValueType = s.define(g, "System.ValueType", KindClass, s.Object)
	s.Enum = s.define(g, "System.Enum", KindClass, s.ValueType)
	s.String = s.define(g, "System.String", KindClass, s.Object)
	s.Array = s.define(g, "System.Array", KindClass, s.Object)
	s.Delegate = s.define(g, "System.Delegate", KindClass, s.Object)
	s.MulticastDelegate = s.define(g, "System.MulticastDelegate", KindClass, s.Delegate)
	s.Exception = s.define(g, "System.Exception", KindClass, s.Object)
	s.Type = s.define(g, "System.Type", KindClass, s.Object)

	for _, p := range []struct {
		dst  *TypeID
		name string
	}{
		{&s.Void, "System.Void"},
		{&s.Boolean, "System.Boolean"},
		{&s.Char, "System.Char"},
		{&s.SByte, "System.SByte"},
		{&s.Byte, "System.Byte"},
		{&s.Int16, "System.Int16"},
		{&s.UInt16, "System.UInt16"},
		{&s.Int32, "System.Int32"},
		{&s.UInt32, "System.UInt32"},
		{&s.Int64, "System.Int64"},
		{&s.UInt64, "System.UInt64"},
		{&s.Single, "System.Single"},
		{&s.Double, "System.Double"},
		{&s.IntPtr, "System.IntPtr"},
		{&s.UIntPtr, "System.UIntPtr"},
		{&s.TypedReference, "System.TypedReference"},
	} {
		*p.dst = s.define(g, p.name, KindStruct, s.ValueType)
	}
	return s
}

func (s *SystemTypes) define(g *Graph, fullName string, kind TypeKind, base TypeID) TypeID {
	ns, name := SplitFullName(fullName)
	id := g.AddType(&TypeNode{
		Kind:      kind,
		Name:      g.Intern(name),
		Namespace: g.Intern(ns),
		Module:    s.Module,
		BaseType:  base,
	})
	s.byName[fullName] = id
	return id
}

// Lookup finds a well-known type by full name.
func (s *SystemTypes) Lookup(fullName string) (TypeID, bool) {
	id, ok := s.byName[fullName]
	return id, ok
}

// Register adds or replaces a well-known type.
func (s *SystemTypes) Register(fullName string, id TypeID) {
	s.byName[fullName] = id
}

// SplitFullName splits "A.B.C" into namespace "A.B" and name "C".
func SplitFullName(fullName string) (namespace, name string) {
	i := strings.LastIndexByte(fullName, '.')
	if i < 0 {
		return "", fullName
	}
	return fullName[:i], fullName[i+1:]
}
