package specialize

import (
	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

// Option configures a Specializer.
type Option func(*Specializer)

// WithGenericsTarget selects whether the target keeps generic parameter
// lists (the default). For a non-generic target, type parameters whose first
// constraint is a class are lowered to class-constrained parameters.
func WithGenericsTarget(on bool) Option {
	return func(s *Specializer) { s.genericsTarget = on }
}

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Specializer) { s.log = l }
}

// WithDefinition names the generic definition whose own body is being
// specialized. References to that definition are instantiated with the
// arguments matched to its parameters.
func WithDefinition(t ir.TypeID) Option {
	return func(s *Specializer) { s.definition = t }
}

// Specializer rewrites references, substituting args[i] for pars[i].
//
// Errors raised while materializing member lists are sticky: the failing
// reference is returned unchanged and Err reports the first failure.
type Specializer struct {
	g              *ir.Graph
	module         *ir.Module
	log            *zap.Logger
	misses         map[ir.TypeID]int
	lowered        map[ir.TypeID]ir.TypeID
	copies         map[ir.MemberID]ir.MemberID
	building       map[ir.TypeID]bool
	err            error
	pars           []ir.TypeID
	args           []ir.TypeID
	opts           []Option
	definition     ir.TypeID
	genericsTarget bool
}

// New creates a Specializer. Instantiations it creates are memoized in
// module, or in each template's own module when module is nil.
func New(g *ir.Graph, module *ir.Module, pars, args []ir.TypeID, opts ...Option) (*Specializer, error) {
	if len(pars) == 0 {
		return nil, errors.InvalidInput(errors.PhaseSpecialize, "empty parameter list")
	}
	if len(pars) != len(args) {
		return nil, errors.New(errors.PhaseSpecialize, errors.KindInvalidInput).
			Detail("%d parameters but %d arguments", len(pars), len(args)).
			Build()
	}
	s := &Specializer{
		g:              g,
		module:         module,
		log:            Logger(),
		misses:         make(map[ir.TypeID]int),
		lowered:        make(map[ir.TypeID]ir.TypeID),
		copies:         make(map[ir.MemberID]ir.MemberID),
		building:       make(map[ir.TypeID]bool),
		pars:           pars,
		args:           args,
		opts:           opts,
		genericsTarget: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Err returns the first error met while resolving member lists.
func (s *Specializer) Err() error {
	return s.err
}

func (s *Specializer) fail(err error) {
	if s.err == nil {
		s.err = err
		s.log.Debug("specialization error", zap.Error(err))
	}
}

// inherited returns the options nested instantiations run with.
func (s *Specializer) inherited() []Option {
	return append([]Option{WithGenericsTarget(s.genericsTarget), WithLogger(s.log)}, s.opts...)
}

// SpecializeTypeReference returns the specialized form of t, or t itself
// when nothing in it depends on the parameters.
func (s *Specializer) SpecializeTypeReference(id ir.TypeID) ir.TypeID {
	t := s.g.Type(id)
	if t == nil {
		return id
	}

	switch t.Kind {
	case ir.KindArray:
		elem := s.SpecializeTypeReference(t.ElementType)
		if elem == t.ElementType {
			return id
		}
		return s.g.ArrayOf(elem, t.Rank)
	case ir.KindPointer:
		elem := s.SpecializeTypeReference(t.ElementType)
		if elem == t.ElementType {
			return id
		}
		return s.g.PointerTo(elem)
	case ir.KindReference:
		elem := s.SpecializeTypeReference(t.ElementType)
		if elem == t.ElementType {
			return id
		}
		return s.g.ReferenceTo(elem)
	case ir.KindOptionalModifier, ir.KindRequiredModifier:
		mod := s.SpecializeTypeReference(t.Modifier)
		elem := s.SpecializeTypeReference(t.ElementType)
		if mod == t.Modifier && elem == t.ElementType {
			return id
		}
		return s.g.Modified(t.Kind, mod, elem)
	case ir.KindFunctionPointer:
		ret := s.SpecializeTypeReference(t.ReturnType)
		params, changed := s.specializeList(t.ParameterTypes)
		if ret == t.ReturnType && !changed {
			return id
		}
		return s.g.FunctionPointer(ret, params)
	case ir.KindTypeParameter, ir.KindClassParameter:
		if i := s.parameterIndex(id); i >= 0 {
			return s.args[i]
		}
		s.miss(id)
		return id
	}

	if t.IsTemplateInstance() {
		return s.specializeInstance(t)
	}
	if t.DeclaringType.IsValid() {
		if moved, ok := s.relocateNested(t); ok {
			return moved
		}
	}
	if id == s.definition && t.IsGenericDefinition() {
		return s.InstantiateDefinition(id)
	}
	return id
}

func (s *Specializer) specializeList(ids []ir.TypeID) ([]ir.TypeID, bool) {
	out := make([]ir.TypeID, len(ids))
	changed := false
	for i, id := range ids {
		out[i] = s.SpecializeTypeReference(id)
		if out[i] != id {
			changed = true
		}
	}
	return out, changed
}

// parameterIndex finds id in pars by identity, then by name when one side
// is a class-constrained parameter and the other a plain type parameter.
func (s *Specializer) parameterIndex(id ir.TypeID) int {
	for i, p := range s.pars {
		if p == id {
			return i
		}
	}
	t := s.g.Type(id)
	if t == nil || !t.Kind.IsParameter() {
		return -1
	}
	for i, p := range s.pars {
		pt := s.g.Type(p)
		if pt == nil || !pt.Name.Equal(t.Name) {
			continue
		}
		if (pt.Kind == ir.KindClassParameter && t.Kind == ir.KindTypeParameter) ||
			(pt.Kind == ir.KindTypeParameter && t.Kind == ir.KindClassParameter) {
			return i
		}
	}
	return -1
}

// parameterIndexByName matches a definition's own parameter against pars.
func (s *Specializer) parameterIndexByName(id ir.TypeID) int {
	if i := s.parameterIndex(id); i >= 0 {
		return i
	}
	t := s.g.Type(id)
	if t == nil {
		return -1
	}
	for i, p := range s.pars {
		if pt := s.g.Type(p); pt != nil && pt.Name.Equal(t.Name) {
			return i
		}
	}
	return -1
}

func (s *Specializer) miss(id ir.TypeID) {
	s.misses[id]++
	name := s.g.FullName(id)
	if s.misses[id] == 2 {
		s.log.Warn("template slot unresolved repeatedly",
			zap.String("parameter", name),
			zap.Error(errors.UnresolvedSlot(name)))
		return
	}
	s.log.Debug("no substitution for parameter", zap.String("parameter", name))
}

// Misses returns how many references to id found no substitution.
func (s *Specializer) Misses(id ir.TypeID) int {
	return s.misses[id]
}

// specializeInstance handles a template instance whose arguments, or whose
// template's declaring type, may mention the parameters.
func (s *Specializer) specializeInstance(t *ir.TypeNode) ir.TypeID {
	args := make([]ir.TypeID, len(t.TemplateArguments))
	changed := false
	for i, a := range t.TemplateArguments {
		if j := s.parameterIndex(a); j >= 0 {
			args[i] = s.args[j]
		} else {
			args[i] = s.SpecializeTypeReference(a)
		}
		if args[i] != a {
			changed = true
		}
	}

	template := t.Template
	if tt := s.g.Type(template); tt != nil && tt.DeclaringType.IsValid() {
		decl := s.SpecializeTypeReference(tt.DeclaringType)
		if decl != tt.DeclaringType {
			nested, err := s.g.NestedType(decl, tt.Name)
			if err != nil {
				s.fail(err)
				return t.ID
			}
			if nested.IsValid() && nested != template {
				template = nested
				changed = true
			}
		}
	}

	if !changed {
		return t.ID
	}
	inst, err := Instantiate(s.g, template, args, s.module, s.inherited()...)
	if err != nil {
		s.fail(err)
		return t.ID
	}
	return inst
}

// relocateNested moves a nested type into its specialized declaring type.
func (s *Specializer) relocateNested(t *ir.TypeNode) (ir.TypeID, bool) {
	decl := s.SpecializeTypeReference(t.DeclaringType)
	if decl == t.DeclaringType {
		return ir.NoType, false
	}
	nested, err := s.g.NestedType(decl, t.Name)
	if err != nil {
		s.fail(err)
		return ir.NoType, false
	}
	if !nested.IsValid() {
		return ir.NoType, false
	}
	return nested, true
}

// InstantiateDefinition instantiates a generic definition with the
// arguments whose parameters match its own, by identity or by name.
// The definition is returned unchanged when any parameter has no match.
func (s *Specializer) InstantiateDefinition(id ir.TypeID) ir.TypeID {
	t := s.g.Type(id)
	if t == nil || !t.IsGenericDefinition() {
		return id
	}
	args := make([]ir.TypeID, len(t.TemplateParameters))
	for i, p := range t.TemplateParameters {
		j := s.parameterIndexByName(p)
		if j < 0 {
			return id
		}
		args[i] = s.args[j]
	}
	inst, err := Instantiate(s.g, id, args, s.module, s.inherited()...)
	if err != nil {
		s.fail(err)
		return id
	}
	return inst
}

// SpecializeMember routes a member reference through its specialized
// declaring type. The counterpart is found by walking both member lists in
// lockstep, skipping empty slots on either side.
func (s *Specializer) SpecializeMember(id ir.MemberID) ir.MemberID {
	m := s.g.Member(id)
	if m == nil {
		return id
	}
	decl := s.SpecializeTypeReference(m.DeclaringType)
	if decl == m.DeclaringType {
		return id
	}
	if c, ok := s.copies[id]; ok {
		if cm := s.g.Member(c); cm != nil && cm.DeclaringType == decl {
			return c
		}
	}
	if s.building[decl] {
		// positions are not final until the copy completes
		return id
	}

	src, err := s.g.MembersOf(m.DeclaringType)
	if err != nil {
		s.fail(err)
		return id
	}
	dst, err := s.g.MembersOf(decl)
	if err != nil {
		s.fail(err)
		return id
	}

	i, j := 0, 0
	for {
		for i < len(src) && src[i] == ir.NoMember {
			i++
		}
		for j < len(dst) && dst[j] == ir.NoMember {
			j++
		}
		if i >= len(src) || j >= len(dst) {
			break
		}
		if src[i] == id {
			return dst[j]
		}
		i++
		j++
	}

	s.log.Debug("member has no counterpart in specialized type",
		zap.String("member", m.Name.String()),
		zap.String("type", s.g.FullName(decl)))
	return id
}

// LowerTypeParameter converts a type parameter whose first constraint is not
// an interface into a class-constrained parameter with that constraint as its
// base class. Other types are returned unchanged.
func (s *Specializer) LowerTypeParameter(id ir.TypeID) ir.TypeID {
	t := s.g.Type(id)
	if t == nil || t.Kind != ir.KindTypeParameter || len(t.Interfaces) == 0 {
		return id
	}
	first := s.g.Type(t.Interfaces[0])
	if first == nil || first.Kind == ir.KindInterface {
		return id
	}
	if lowered, ok := s.lowered[id]; ok {
		return lowered
	}
	lowered := s.g.AddType(&ir.TypeNode{
		Kind:            ir.KindClassParameter,
		Name:            t.Name,
		Namespace:       t.Namespace,
		Attributes:      t.Attributes,
		DeclaringType:   t.DeclaringType,
		DeclaringMember: t.DeclaringMember,
		BaseType:        t.Interfaces[0],
		Interfaces:      append([]ir.TypeID(nil), t.Interfaces[1:]...),
		Flags:           t.Flags,
		ParamFlags:      t.ParamFlags,
		ParameterIndex:  t.ParameterIndex,
	})
	s.lowered[id] = lowered
	return lowered
}

// parameterList specializes a template parameter or argument list for a
// generics target, or lowers it otherwise.
func (s *Specializer) parameterList(ids []ir.TypeID) []ir.TypeID {
	if ids == nil {
		return nil
	}
	out := make([]ir.TypeID, len(ids))
	for i, id := range ids {
		if s.genericsTarget {
			// a declaration's own parameters are not unresolved slots
			if t := s.g.Type(id); t != nil && t.Kind.IsParameter() && s.parameterIndex(id) < 0 {
				out[i] = id
				continue
			}
			out[i] = s.SpecializeTypeReference(id)
		} else {
			out[i] = s.LowerTypeParameter(id)
		}
	}
	return out
}
