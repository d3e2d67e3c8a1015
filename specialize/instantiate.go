package specialize

import (
	"slices"

	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

// Instantiate returns template applied to args, creating the instance on
// first request. Repeated requests for the same (template, args) pair in the
// same module return the same node. Applying a definition to its own
// parameters returns the definition.
func Instantiate(g *ir.Graph, template ir.TypeID, args []ir.TypeID, module *ir.Module, opts ...Option) (ir.TypeID, error) {
	tt := g.Type(template)
	if tt == nil {
		return ir.NoType, errors.InvalidInput(errors.PhaseSpecialize, "template not in graph")
	}
	if !tt.IsGenericDefinition() {
		return ir.NoType, errors.New(errors.PhaseSpecialize, errors.KindInvalidInput).
			TypeName(g.FullName(template)).
			Detail("not a generic definition").
			Build()
	}
	if len(args) != len(tt.TemplateParameters) {
		return ir.NoType, errors.New(errors.PhaseSpecialize, errors.KindInvalidInput).
			TypeName(g.FullName(template)).
			Detail("%d type parameters but %d arguments", len(tt.TemplateParameters), len(args)).
			Build()
	}
	if slices.Equal(args, tt.TemplateParameters) {
		return template, nil
	}
	if module == nil {
		module = tt.Module
	}
	if module == nil {
		return ir.NoType, errors.InvalidInput(errors.PhaseSpecialize, "no module to hold the instance")
	}

	key := ir.InstanceKey(template, args)
	if id, ok := module.Instance(key); ok {
		return id, nil
	}

	inst := &ir.TypeNode{
		Kind:               tt.Kind,
		Name:               tt.Name,
		Namespace:          tt.Namespace,
		Module:             module,
		Attributes:         tt.Attributes,
		SecurityAttributes: tt.SecurityAttributes,
		Interfaces:         slices.Clone(tt.Interfaces),
		TemplateArguments:  slices.Clone(args),
		DeclaringType:      tt.DeclaringType,
		BaseType:           tt.BaseType,
		Template:           template,
		Flags:              tt.Flags,
	}
	id := g.AddType(inst)
	// Stored before the header is visited so self-referential
	// bases and interfaces resolve to this node. A failed pass
	// removes it again.
	module.StoreInstance(key, id)

	s, err := New(g, module, tt.TemplateParameters, args, append(opts, WithDefinition(template))...)
	if err != nil {
		module.DeleteInstance(key)
		return ir.NoType, err
	}
	s.log.Debug("instantiate",
		zap.String("template", g.FullName(template)),
		zap.String("instance", g.FullName(id)))

	s.visitTypeHeader(inst)
	// args are already in terms of the caller's scope
	inst.TemplateArguments = slices.Clone(args)
	s.copyMembersInto(template, id)
	if s.err != nil {
		module.DeleteInstance(key)
		return ir.NoType, s.err
	}
	return id, nil
}

// copyMembersInto gives dst a specialized copy of src's member list, now if
// src is materialized and on first use otherwise.
func (s *Specializer) copyMembersInto(src, dst ir.TypeID) {
	if !s.g.Materialized(src) {
		s.g.SetMemberProvider(dst, func(g *ir.Graph, decl ir.TypeID) ([]ir.MemberID, error) {
			members := s.copyMembers(src, decl)
			if err := s.err; err != nil {
				s.err = nil
				return nil, err
			}
			return members, nil
		})
		return
	}
	s.g.SetMembers(dst, s.copyMembers(src, dst))
}

func (s *Specializer) copyMembers(src, dst ir.TypeID) []ir.MemberID {
	members, err := s.g.MembersOf(src)
	if err != nil {
		s.fail(err)
		return nil
	}
	out := make([]ir.MemberID, len(members))
	// Published up front so nested types can be found while the rest of
	// the list is copied.
	s.g.SetMembers(dst, out)
	s.building[dst] = true
	defer delete(s.building, dst)

	for pass := 0; pass < 2; pass++ {
		for i, mid := range members {
			m := s.g.Member(mid)
			if m == nil || (m.Kind == ir.MemberNestedType) != (pass == 0) {
				continue
			}
			s.copyMember(m, dst, &out[i])
		}
	}
	for _, id := range out {
		c := s.g.Member(id)
		if c == nil {
			continue
		}
		if g, ok := s.copies[c.Getter]; ok {
			c.Getter = g
		}
		if st, ok := s.copies[c.Setter]; ok {
			c.Setter = st
		}
	}
	return out
}

// copyMember stores the copy's ID in slot before visiting it, so references
// back into the list being built can find it.
func (s *Specializer) copyMember(m *ir.Member, decl ir.TypeID, slot *ir.MemberID) {
	c := &ir.Member{
		Kind:               m.Kind,
		Name:               m.Name,
		Attributes:         m.Attributes,
		SecurityAttributes: m.SecurityAttributes,
		TemplateParameters: slices.Clone(m.TemplateParameters),
		TemplateArguments:  slices.Clone(m.TemplateArguments),
		DeclaringType:      decl,
		Type:               m.Type,
		ReturnType:         m.ReturnType,
		Template:           m.ID,
		Getter:             m.Getter,
		Setter:             m.Setter,
		Flags:              m.Flags,
	}
	for _, p := range m.Parameters {
		cp := *p
		c.Parameters = append(c.Parameters, &cp)
	}
	if m.ThisParameter != nil {
		tp := *m.ThisParameter
		c.ThisParameter = &tp
	}

	id := s.g.AddMember(c)
	*slot = id
	s.copies[m.ID] = id
	if m.Kind == ir.MemberNestedType {
		s.copyNestedType(c, decl)
	}
	s.visitMemberSignature(c)
}

// copyNestedType points member at decl's copy of the nested type it names.
func (s *Specializer) copyNestedType(member *ir.Member, decl ir.TypeID) {
	nested := member.Type
	nt := s.g.Type(nested)
	if nt == nil {
		return
	}
	c := &ir.TypeNode{
		Kind:               nt.Kind,
		Name:               nt.Name,
		Namespace:          nt.Namespace,
		Attributes:         nt.Attributes,
		SecurityAttributes: nt.SecurityAttributes,
		Interfaces:         slices.Clone(nt.Interfaces),
		TemplateParameters: slices.Clone(nt.TemplateParameters),
		DeclaringType:      decl,
		BaseType:           nt.BaseType,
		Flags:              nt.Flags,
	}
	id := s.g.AddType(c)
	// Set after AddType so the copy is not listed as a module definition.
	c.Module = s.g.Type(decl).Module
	member.Type = id
	s.visitTypeHeader(c)
	s.copyMembersInto(nested, id)
}

// VisitType specializes a type's header and members in place. Pending
// member lists are wrapped so members are specialized as they materialize.
func (s *Specializer) VisitType(id ir.TypeID) error {
	t := s.g.Type(id)
	if t == nil {
		return errors.InvalidInput(errors.PhaseSpecialize, "type not in graph")
	}
	s.visitTypeHeader(t)

	if p := s.g.MemberProvider(id); p != nil {
		s.g.SetMemberProvider(id, func(g *ir.Graph, decl ir.TypeID) ([]ir.MemberID, error) {
			members, err := p(g, decl)
			if err != nil {
				return nil, err
			}
			for _, mid := range members {
				s.VisitMember(mid)
			}
			if err := s.err; err != nil {
				s.err = nil
				return nil, err
			}
			return members, nil
		})
		return s.err
	}

	members, err := s.g.MembersOf(id)
	if err != nil {
		return err
	}
	for _, mid := range members {
		s.VisitMember(mid)
	}
	return s.err
}

// VisitMember specializes a member's signature, attributes and body in place.
func (s *Specializer) VisitMember(id ir.MemberID) {
	m := s.g.Member(id)
	if m == nil {
		return
	}
	s.visitMemberSignature(m)
	if m.Kind == ir.MemberNestedType {
		if err := s.VisitType(m.Type); err != nil {
			s.fail(err)
		}
	}
	if m.Body != nil {
		s.VisitBody(m.Body)
	}
}

func (s *Specializer) visitTypeHeader(t *ir.TypeNode) {
	t.Attributes = s.visitAttributes(t.Attributes)
	t.SecurityAttributes = s.visitSecurityAttributes(t.SecurityAttributes)
	if t.IsTemplateInstance() {
		t.DeclaringType = s.SpecializeTypeReference(t.DeclaringType)
	}
	t.BaseType = s.SpecializeTypeReference(t.BaseType)
	t.Interfaces, _ = s.specializeList(t.Interfaces)
	t.TemplateParameters = s.parameterList(t.TemplateParameters)
	if s.genericsTarget && t.TemplateArguments != nil {
		t.TemplateArguments, _ = s.specializeList(t.TemplateArguments)
	}
}

func (s *Specializer) visitMemberSignature(m *ir.Member) {
	m.Attributes = s.visitAttributes(m.Attributes)
	m.SecurityAttributes = s.visitSecurityAttributes(m.SecurityAttributes)
	if m.Kind != ir.MemberNestedType {
		m.Type = s.SpecializeTypeReference(m.Type)
	}
	m.ReturnType = s.SpecializeTypeReference(m.ReturnType)
	for _, p := range m.Parameters {
		p.Type = s.SpecializeTypeReference(p.Type)
		p.Attributes = s.visitAttributes(p.Attributes)
	}
	if m.ThisParameter != nil {
		m.ThisParameter.Type = s.SpecializeTypeReference(m.ThisParameter.Type)
	}
	m.Getter = s.SpecializeMember(m.Getter)
	m.Setter = s.SpecializeMember(m.Setter)
	m.TemplateParameters = s.parameterList(m.TemplateParameters)
	if s.genericsTarget && m.TemplateArguments != nil {
		m.TemplateArguments, _ = s.specializeList(m.TemplateArguments)
	}
}

// visitAttributes returns a specialized copy; attribute lists may be shared
// with the template.
func (s *Specializer) visitAttributes(attrs []ir.Attribute) []ir.Attribute {
	if attrs == nil {
		return nil
	}
	out := make([]ir.Attribute, len(attrs))
	for i, a := range attrs {
		out[i] = ir.Attribute{
			Type:        s.SpecializeTypeReference(a.Type),
			Constructor: s.SpecializeMember(a.Constructor),
		}
		if a.Arguments != nil {
			out[i].Arguments = make([]ir.Expression, len(a.Arguments))
			for j, arg := range a.Arguments {
				out[i].Arguments[j] = s.attributeArgument(arg)
			}
		}
	}
	return out
}

// attributeArgument copies constant arguments with their type specialized.
func (s *Specializer) attributeArgument(e ir.Expression) ir.Expression {
	if lit, ok := e.(*ir.Literal); ok {
		return &ir.Literal{Value: lit.Value, Typ: s.SpecializeTypeReference(lit.Typ)}
	}
	return e
}

func (s *Specializer) visitSecurityAttributes(attrs []ir.SecurityAttribute) []ir.SecurityAttribute {
	if attrs == nil {
		return nil
	}
	out := make([]ir.SecurityAttribute, len(attrs))
	for i, sa := range attrs {
		out[i] = ir.SecurityAttribute{Action: sa.Action, Attributes: s.visitAttributes(sa.Attributes)}
	}
	return out
}
