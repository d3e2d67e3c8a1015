package ir

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/EWSoftware/SHFB-sub006/ident"
)

// Module is a unit of loaded metadata. It owns its type definitions and the
// cache of template instantiations created on its behalf.
type Module struct {
	Name      ident.Identifier
	Types     []TypeID
	instances map[string]TypeID
	MVID      uuid.UUID
}

// Instance returns a memoized instantiation.
func (m *Module) Instance(key string) (TypeID, bool) {
	id, ok := m.instances[key]
	return id, ok
}

// StoreInstance memoizes an instantiation under key.
func (m *Module) StoreInstance(key string, id TypeID) {
	if m.instances == nil {
		m.instances = make(map[string]TypeID)
	}
	m.instances[key] = id
}

// DeleteInstance drops the instantiation memoized under key.
func (m *Module) DeleteInstance(key string) {
	delete(m.instances, key)
}

// InstanceCount returns the number of memoized instantiations.
func (m *Module) InstanceCount() int {
	return len(m.instances)
}

// InstanceKey builds the memoization key of template applied to args.
func InstanceKey(template TypeID, args []TypeID) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(uint64(template), 10))
	b.WriteByte('<')
	for i, a := range args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(a), 10))
	}
	b.WriteByte('>')
	return b.String()
}

// Graph is the arena holding every type and member node.
type Graph struct {
	Names      *ident.Table
	types      []*TypeNode
	members    []*Member
	modules    []*Module
	structural map[string]TypeID
}

// NewGraph creates an empty graph interning names in names
// (ident.Default when nil).
func NewGraph(names *ident.Table) *Graph {
	if names == nil {
		names = ident.Default
	}
	return &Graph{
		Names:      names,
		types:      []*TypeNode{nil},
		members:    []*Member{nil},
		structural: make(map[string]TypeID),
	}
}

// Intern interns s in the graph's name table.
func (g *Graph) Intern(s string) ident.Identifier {
	return g.Names.Intern(s)
}

// NewModule registers an empty module.
func (g *Graph) NewModule(name string) *Module {
	m := &Module{Name: g.Intern(name)}
	g.modules = append(g.modules, m)
	return m
}

// AddModule registers a module built elsewhere.
func (g *Graph) AddModule(m *Module) {
	g.modules = append(g.modules, m)
}

// Modules returns the registered modules in registration order.
func (g *Graph) Modules() []*Module {
	return g.modules
}

// Type returns the node for id, or nil.
func (g *Graph) Type(id TypeID) *TypeNode {
	if id == NoType || int(id) >= len(g.types) {
		return nil
	}
	return g.types[id]
}

// Member returns the node for id, or nil.
func (g *Graph) Member(id MemberID) *Member {
	if id == NoMember || int(id) >= len(g.members) {
		return nil
	}
	return g.members[id]
}

// TypeCount returns the number of type nodes.
func (g *Graph) TypeCount() int {
	return len(g.types) - 1
}

// AddType stores t and assigns its ID. Named types with a module are
// recorded in that module's type list.
func (g *Graph) AddType(t *TypeNode) TypeID {
	t.ID = TypeID(len(g.types))
	g.types = append(g.types, t)
	if t.Module != nil && !t.Kind.IsStructural() && !t.Kind.IsParameter() && !t.IsTemplateInstance() {
		t.Module.Types = append(t.Module.Types, t.ID)
	}
	return t.ID
}

// AddMember stores m and assigns its ID without attaching it to a type.
func (g *Graph) AddMember(m *Member) MemberID {
	m.ID = MemberID(len(g.members))
	g.members = append(g.members, m)
	return m.ID
}

// AppendMember stores m as the last member of decl.
// Nested type members also set the nested type's declaring type.
func (g *Graph) AppendMember(decl TypeID, m *Member) MemberID {
	id := g.AddMember(m)
	m.DeclaringType = decl
	if t := g.Type(decl); t != nil {
		t.members = append(t.members, id)
	}
	if m.Kind == MemberNestedType {
		if nt := g.Type(m.Type); nt != nil {
			nt.DeclaringType = decl
		}
	}
	return id
}

// AppendPlaceholder appends an empty member slot to decl.
func (g *Graph) AppendPlaceholder(decl TypeID) {
	if t := g.Type(decl); t != nil {
		t.members = append(t.members, NoMember)
	}
}

// SetMembers replaces decl's member list.
func (g *Graph) SetMembers(decl TypeID, members []MemberID) {
	if t := g.Type(decl); t != nil {
		t.members = members
		t.provider = nil
	}
}

// SetMemberProvider defers decl's member list until MembersOf is called.
func (g *Graph) SetMemberProvider(decl TypeID, p MemberProvider) {
	if t := g.Type(decl); t != nil {
		t.provider = p
	}
}

// MemberProvider returns decl's pending provider, or nil once materialized.
func (g *Graph) MemberProvider(decl TypeID) MemberProvider {
	if t := g.Type(decl); t != nil {
		return t.provider
	}
	return nil
}

// Materialized reports whether decl's member list has been produced.
func (g *Graph) Materialized(decl TypeID) bool {
	t := g.Type(decl)
	return t == nil || t.provider == nil
}

// MembersOf returns decl's member list, materializing it on first use.
// The list may contain NoMember placeholder slots.
func (g *Graph) MembersOf(decl TypeID) ([]MemberID, error) {
	t := g.Type(decl)
	if t == nil {
		return nil, nil
	}
	if p := t.provider; p != nil {
		t.provider = nil
		members, err := p(g, decl)
		if err != nil {
			t.provider = p
			return nil, err
		}
		t.members = members
	}
	return t.members, nil
}

// NestedType finds a nested type of decl by name.
func (g *Graph) NestedType(decl TypeID, name ident.Identifier) (TypeID, error) {
	members, err := g.MembersOf(decl)
	if err != nil {
		return NoType, err
	}
	for _, id := range members {
		m := g.Member(id)
		if m != nil && m.Kind == MemberNestedType && m.Name.Equal(name) {
			return m.Type, nil
		}
	}
	return NoType, nil
}

// ArrayOf returns the array type of elem with the given rank.
// Rank 1 is a single-dimension zero-based vector.
func (g *Graph) ArrayOf(elem TypeID, rank int) TypeID {
	if rank < 1 {
		rank = 1
	}
	key := "a" + strconv.Itoa(rank) + ":" + idKey(elem)
	return g.structuralType(key, &TypeNode{Kind: KindArray, ElementType: elem, Rank: rank})
}

// PointerTo returns the unmanaged pointer type to elem.
func (g *Graph) PointerTo(elem TypeID) TypeID {
	return g.structuralType("p:"+idKey(elem), &TypeNode{Kind: KindPointer, ElementType: elem})
}

// ReferenceTo returns the managed reference type to elem.
func (g *Graph) ReferenceTo(elem TypeID) TypeID {
	return g.structuralType("r:"+idKey(elem), &TypeNode{Kind: KindReference, ElementType: elem})
}

// Modified returns elem wrapped in an optional or required modifier.
func (g *Graph) Modified(kind TypeKind, modifier, elem TypeID) TypeID {
	prefix := "mo:"
	if kind == KindRequiredModifier {
		prefix = "mr:"
	} else {
		kind = KindOptionalModifier
	}
	key := prefix + idKey(modifier) + ":" + idKey(elem)
	return g.structuralType(key, &TypeNode{Kind: kind, ElementType: elem, Modifier: modifier})
}

// FunctionPointer returns the function pointer type with the given signature.
func (g *Graph) FunctionPointer(ret TypeID, params []TypeID) TypeID {
	var b strings.Builder
	b.WriteString("f:")
	b.WriteString(idKey(ret))
	for _, p := range params {
		b.WriteByte(',')
		b.WriteString(idKey(p))
	}
	ps := append([]TypeID(nil), params...)
	return g.structuralType(b.String(), &TypeNode{Kind: KindFunctionPointer, ReturnType: ret, ParameterTypes: ps})
}

func (g *Graph) structuralType(key string, t *TypeNode) TypeID {
	if id, ok := g.structural[key]; ok {
		return id
	}
	id := g.AddType(t)
	g.structural[key] = id
	return id
}

func idKey(id TypeID) string {
	return strconv.FormatUint(uint64(id), 10)
}
