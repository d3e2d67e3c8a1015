package metadata

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
	"github.com/EWSoftware/SHFB-sub006/ir"
	"github.com/EWSoftware/SHFB-sub006/specialize"
)

// Option configures Load.
type Option func(*loader)

// WithLogger overrides the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(ld *loader) { ld.log = l }
}

// WithSpecializeOptions passes options to every instantiation the loader
// creates while decoding signatures.
func WithSpecializeOptions(opts ...specialize.Option) Option {
	return func(ld *loader) { ld.specOpts = append(ld.specOpts, opts...) }
}

// Method semantics flags.
const (
	semanticsSetter uint16 = 0x0001
	semanticsGetter uint16 = 0x0002
)

// Header construction states.
const (
	headerPending uint8 = iota
	headerBusy
	headerDone
)

type loader struct {
	md       *Metadata
	g        *ir.Graph
	sys      *ir.SystemTypes
	module   *ir.Module
	log      *zap.Logger
	specOpts []specialize.Option

	typeDefs   []ir.TypeID // by TypeDef row - 1
	rowOf      map[ir.TypeID]uint32
	headers    []uint8
	topLevel   map[string]uint32
	nested     map[uint32][]uint32
	interfaces map[uint32][]uint32

	typeRefs      []ir.TypeID // by TypeRef row - 1, NoType until resolved
	external      map[string]ir.TypeID
	externalIDs   map[ir.TypeID]bool
	genericParams []ir.TypeID // by GenericParam row - 1
	methodParams  map[uint32][]ir.TypeID
	methodOwner   []uint32 // by MethodDef row - 1

	properties map[uint32][2]uint32 // TypeDef row -> PropertyList run
	events     map[uint32][2]uint32
	accessors  map[uint32][2]uint32 // Property row -> getter, setter MethodDef rows
}

// Load builds an ir.Module from md. The module is registered with g only
// when every type header decoded; members are decoded on first use.
func Load(md *Metadata, g *ir.Graph, sys *ir.SystemTypes, opts ...Option) (*ir.Module, error) {
	l := newLoader(md, g, sys)
	for _, o := range opts {
		o(l)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"module", l.loadModule},
		{"type definitions", l.loadTypeDefs},
		{"nesting", l.loadNesting},
		{"generic parameters", l.loadGenericParams},
		{"method owners", l.loadMethodOwners},
		{"member maps", l.loadMemberMaps},
		{"type headers", l.loadHeaders},
		{"constraints", l.loadConstraints},
		{"custom attributes", l.loadAttributes},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			return nil, errors.Load(s.name, err)
		}
	}

	g.AddModule(l.module)
	l.log.Info("loaded module",
		zap.String("module", l.module.Name.String()),
		zap.String("mvid", l.module.MVID.String()),
		zap.Int("types", len(l.module.Types)),
		zap.Int("external", len(l.external)))
	return l.module, nil
}

func newLoader(md *Metadata, g *ir.Graph, sys *ir.SystemTypes) *loader {
	return &loader{
		md:           md,
		g:            g,
		sys:          sys,
		log:          Logger(),
		rowOf:        make(map[ir.TypeID]uint32),
		topLevel:     make(map[string]uint32),
		nested:       make(map[uint32][]uint32),
		interfaces:   make(map[uint32][]uint32),
		external:     make(map[string]ir.TypeID),
		externalIDs:  make(map[ir.TypeID]bool),
		methodParams: make(map[uint32][]ir.TypeID),
		properties:   make(map[uint32][2]uint32),
		events:       make(map[uint32][2]uint32),
		accessors:    make(map[uint32][2]uint32),
	}
}

func (l *loader) name(i uint32) (ident.Identifier, error) {
	return l.md.Identifier(i, l.g.Names)
}

func (l *loader) loadModule() error {
	r, err := l.md.Row(TableModule, 1)
	if err != nil {
		return err
	}
	name, err := l.name(r[1])
	if err != nil {
		return err
	}
	mvid, err := l.md.GUID(r[2])
	if err != nil {
		return err
	}
	l.module = &ir.Module{Name: name, MVID: mvid}
	return nil
}

func (l *loader) loadTypeDefs() error {
	n := l.md.Rows(TableTypeDef)
	l.typeDefs = make([]ir.TypeID, n)
	l.headers = make([]uint8, n)
	for row := uint32(1); row <= n; row++ {
		r, err := l.md.Row(TableTypeDef, row)
		if err != nil {
			return err
		}
		name, err := l.name(r[1])
		if err != nil {
			return err
		}
		ns, err := l.name(r[2])
		if err != nil {
			return err
		}
		flags := ir.TypeFlags(r[0])
		kind := ir.KindClass
		if flags&ir.TypeFlagInterface != 0 {
			kind = ir.KindInterface
		}
		id := l.g.AddType(&ir.TypeNode{
			Kind:      kind,
			Name:      name,
			Namespace: ns,
			Module:    l.module,
			Flags:     flags,
		})
		l.typeDefs[row-1] = id
		l.rowOf[id] = row
	}
	return nil
}

func (l *loader) loadNesting() error {
	for i := uint32(1); i <= l.md.Rows(TableNestedClass); i++ {
		r, err := l.md.Row(TableNestedClass, i)
		if err != nil {
			return err
		}
		inner, err := l.typeDefID(r[0])
		if err != nil {
			return err
		}
		outer, err := l.typeDefID(r[1])
		if err != nil {
			return err
		}
		l.g.Type(inner).DeclaringType = outer
		l.nested[r[1]] = append(l.nested[r[1]], r[0])
	}
	for row, id := range l.typeDefs {
		if t := l.g.Type(id); !t.DeclaringType.IsValid() {
			l.topLevel[joinName(t.Namespace.String(), t.Name.String())] = uint32(row + 1)
		}
	}
	return nil
}

func (l *loader) loadGenericParams() error {
	n := l.md.Rows(TableGenericParam)
	l.genericParams = make([]ir.TypeID, n)
	for i := uint32(1); i <= n; i++ {
		r, err := l.md.Row(TableGenericParam, i)
		if err != nil {
			return err
		}
		table, owner, err := CodedTypeOrMethodDef.Decode(r[2])
		if err != nil {
			return err
		}
		name, err := l.name(r[3])
		if err != nil {
			return err
		}
		p := &ir.TypeNode{
			Kind:           ir.KindTypeParameter,
			Name:           name,
			Module:         l.module,
			ParameterIndex: int(r[0]),
			ParamFlags:     ir.GenericParamFlags(r[1]),
		}
		var list *[]ir.TypeID
		switch table {
		case TableTypeDef:
			decl, err := l.typeDefID(owner)
			if err != nil {
				return err
			}
			p.DeclaringType = decl
			list = &l.g.Type(decl).TemplateParameters
		default:
			if owner == 0 || owner > l.md.Rows(TableMethodDef) {
				return errors.OutOfBounds(errors.PhaseLoad, []string{"GenericParam", "Owner"}, int(owner), int(l.md.Rows(TableMethodDef)))
			}
			mp := l.methodParams[owner]
			list = &mp
		}
		if int(r[0]) != len(*list) {
			return errors.New(errors.PhaseLoad, errors.KindMalformedMetadata).
				Path("GenericParam").
				Value(r[0]).
				Detail("parameter %s numbered %d after %d parameters", name, r[0], len(*list)).
				Build()
		}
		id := l.g.AddType(p)
		*list = append(*list, id)
		if table == TableMethodDef {
			l.methodParams[owner] = *list
		}
		l.genericParams[i-1] = id
	}
	return nil
}

func (l *loader) loadMethodOwners() error {
	l.methodOwner = make([]uint32, l.md.Rows(TableMethodDef))
	for row := uint32(1); row <= l.md.Rows(TableTypeDef); row++ {
		start, end, err := l.md.rowRange(TableTypeDef, row, 5, TableMethodDef)
		if err != nil {
			return err
		}
		for m := start; m < end; m++ {
			phys, err := l.md.indirect(TableMethodPtr, m)
			if err != nil {
				return err
			}
			if phys == 0 || int(phys) > len(l.methodOwner) {
				return errors.OutOfBounds(errors.PhaseLoad, []string{"MethodPtr"}, int(phys), len(l.methodOwner))
			}
			l.methodOwner[phys-1] = row
		}
	}
	return nil
}

// loadMemberMaps records property and event runs and accessor methods, then
// installs the lazy member providers.
func (l *loader) loadMemberMaps() error {
	for _, m := range []struct {
		table, child Table
		dst          map[uint32][2]uint32
	}{
		{TablePropertyMap, TableProperty, l.properties},
		{TableEventMap, TableEvent, l.events},
	} {
		for i := uint32(1); i <= l.md.Rows(m.table); i++ {
			r, err := l.md.Row(m.table, i)
			if err != nil {
				return err
			}
			start, end, err := l.md.rowRange(m.table, i, 1, m.child)
			if err != nil {
				return err
			}
			m.dst[r[0]] = [2]uint32{start, end}
		}
	}
	for i := uint32(1); i <= l.md.Rows(TableMethodSemantics); i++ {
		r, err := l.md.Row(TableMethodSemantics, i)
		if err != nil {
			return err
		}
		table, assoc, err := CodedHasSemantics.Decode(r[2])
		if err != nil {
			return err
		}
		if table != TableProperty {
			continue
		}
		acc := l.accessors[assoc]
		switch {
		case uint16(r[0])&semanticsGetter != 0:
			acc[0] = r[1]
		case uint16(r[0])&semanticsSetter != 0:
			acc[1] = r[1]
		}
		l.accessors[assoc] = acc
	}

	for row := uint32(1); row <= l.md.Rows(TableTypeDef); row++ {
		l.g.SetMemberProvider(l.typeDefs[row-1], l.memberProvider(row))
	}
	return nil
}

func (l *loader) loadHeaders() error {
	for i := uint32(1); i <= l.md.Rows(TableInterfaceImpl); i++ {
		r, err := l.md.Row(TableInterfaceImpl, i)
		if err != nil {
			return err
		}
		l.interfaces[r[0]] = append(l.interfaces[r[0]], i)
	}
	for row := uint32(1); row <= l.md.Rows(TableTypeDef); row++ {
		if err := l.header(row); err != nil {
			return err
		}
	}
	return nil
}

// header decodes the base type and interfaces of a TypeDef row and settles
// its kind. Headers are built on demand so a generic instance never copies
// a template whose header is still empty; a cycle through an instance of a
// type whose header is in progress sees that header as it stands.
func (l *loader) header(row uint32) error {
	if l.headers[row-1] != headerPending {
		return nil
	}
	l.headers[row-1] = headerBusy
	defer func() { l.headers[row-1] = headerDone }()

	id := l.typeDefs[row-1]
	t := l.g.Type(id)
	ctx := l.typeContext(id)
	r, err := l.md.Row(TableTypeDef, row)
	if err != nil {
		return err
	}
	if r[3] != 0 {
		if t.BaseType, err = l.typeDefOrRef(r[3], ctx); err != nil {
			return err
		}
	}
	for _, i := range l.interfaces[row] {
		impl, err := l.md.Row(TableInterfaceImpl, i)
		if err != nil {
			return err
		}
		iface, err := l.typeDefOrRef(impl[1], ctx)
		if err != nil {
			return err
		}
		t.Interfaces = append(t.Interfaces, iface)
	}
	if t.Kind != ir.KindInterface {
		t.Kind = l.kindOf(t)
	}
	return nil
}

// kindOf derives a class kind from the base type's full name.
func (l *loader) kindOf(t *ir.TypeNode) ir.TypeKind {
	self := joinName(t.Namespace.String(), t.Name.String())
	switch l.g.FullName(t.BaseType) {
	case "System.Enum":
		return ir.KindEnum
	case "System.ValueType":
		if self != "System.Enum" {
			return ir.KindStruct
		}
	case "System.MulticastDelegate":
		return ir.KindDelegate
	case "System.Delegate":
		if self != "System.MulticastDelegate" {
			return ir.KindDelegate
		}
	}
	return ir.KindClass
}

func (l *loader) loadConstraints() error {
	for i := uint32(1); i <= l.md.Rows(TableGenericParamConstraint); i++ {
		r, err := l.md.Row(TableGenericParamConstraint, i)
		if err != nil {
			return err
		}
		if r[0] == 0 || int(r[0]) > len(l.genericParams) {
			return errors.OutOfBounds(errors.PhaseLoad, []string{"GenericParamConstraint", "Owner"}, int(r[0]), len(l.genericParams))
		}
		p := l.g.Type(l.genericParams[r[0]-1])
		ctx, err := l.paramContext(p)
		if err != nil {
			return err
		}
		c, err := l.typeDefOrRef(r[1], ctx)
		if err != nil {
			return err
		}
		p.Interfaces = append(p.Interfaces, c)
	}
	return nil
}

// paramContext returns the signature context a parameter's constraints
// are written in.
func (l *loader) paramContext(p *ir.TypeNode) (*sigContext, error) {
	if p.DeclaringType.IsValid() {
		return l.typeContext(p.DeclaringType), nil
	}
	for method, params := range l.methodParams {
		for _, id := range params {
			if id == p.ID {
				return l.methodContext(method), nil
			}
		}
	}
	return nil, errors.Consistency(errors.PhaseLoad, "generic parameter %s has no owner", p.Name)
}

// loadAttributes records the attribute types applied to type definitions.
// Attribute arguments are not decoded.
func (l *loader) loadAttributes() error {
	for i := uint32(1); i <= l.md.Rows(TableCustomAttribute); i++ {
		r, err := l.md.Row(TableCustomAttribute, i)
		if err != nil {
			return err
		}
		parent, prow, err := CodedHasCustomAttribute.Decode(r[0])
		if err != nil {
			return err
		}
		if parent != TableTypeDef {
			continue
		}
		decl, err := l.typeDefID(prow)
		if err != nil {
			return err
		}
		typ, err := l.attributeType(r[1])
		if err != nil {
			return err
		}
		t := l.g.Type(decl)
		t.Attributes = append(t.Attributes, ir.Attribute{Type: typ})
	}
	return nil
}

func (l *loader) attributeType(v uint32) (ir.TypeID, error) {
	table, row, err := CodedCustomAttributeType.Decode(v)
	if err != nil {
		return ir.NoType, err
	}
	if table == TableMethodDef {
		if row == 0 || int(row) > len(l.methodOwner) {
			return ir.NoType, errors.OutOfBounds(errors.PhaseLoad, []string{"CustomAttribute", "Type"}, int(row), len(l.methodOwner))
		}
		return l.typeDefID(l.methodOwner[row-1])
	}
	r, err := l.md.Row(TableMemberRef, row)
	if err != nil {
		return ir.NoType, err
	}
	ptable, prow, err := CodedMemberRefParent.Decode(r[0])
	if err != nil {
		return ir.NoType, err
	}
	switch ptable {
	case TableTypeDef:
		return l.typeDefID(prow)
	case TableTypeRef:
		return l.typeRef(prow)
	case TableTypeSpec:
		return l.typeSpec(prow, &sigContext{})
	}
	return ir.NoType, errors.Unsupported(errors.PhaseLoad, "attribute constructor on "+ptable.String())
}

func (l *loader) typeDefID(row uint32) (ir.TypeID, error) {
	if row == 0 || int(row) > len(l.typeDefs) {
		return ir.NoType, errors.OutOfBounds(errors.PhaseLoad, []string{"TypeDef"}, int(row), len(l.typeDefs))
	}
	return l.typeDefs[row-1], nil
}

func (l *loader) localRow(id ir.TypeID) (uint32, bool) {
	row, ok := l.rowOf[id]
	return row, ok
}

func (l *loader) typeContext(id ir.TypeID) *sigContext {
	return &sigContext{typeParams: l.g.Type(id).TemplateParameters}
}

func (l *loader) methodContext(method uint32) *sigContext {
	ctx := &sigContext{methodParams: l.methodParams[method]}
	if owner := l.methodOwner[method-1]; owner != 0 {
		ctx.typeParams = l.g.Type(l.typeDefs[owner-1]).TemplateParameters
	}
	return ctx
}

// typeDefOrRef resolves a TypeDefOrRef coded index.
func (l *loader) typeDefOrRef(v uint32, ctx *sigContext) (ir.TypeID, error) {
	table, row, err := CodedTypeDefOrRef.Decode(v)
	if err != nil {
		return ir.NoType, err
	}
	switch table {
	case TableTypeDef:
		return l.typeDefID(row)
	case TableTypeRef:
		return l.typeRef(row)
	default:
		return l.typeSpec(row, ctx)
	}
}

// typeRef resolves a TypeRef row: to a type of this module, a system type
// by full name, or an external placeholder.
func (l *loader) typeRef(row uint32) (ir.TypeID, error) {
	if l.typeRefs == nil {
		l.typeRefs = make([]ir.TypeID, l.md.Rows(TableTypeRef))
	}
	if row == 0 || int(row) > len(l.typeRefs) {
		return ir.NoType, errors.OutOfBounds(errors.PhaseLoad, []string{"TypeRef"}, int(row), len(l.typeRefs))
	}
	if id := l.typeRefs[row-1]; id.IsValid() {
		return id, nil
	}
	r, err := l.md.Row(TableTypeRef, row)
	if err != nil {
		return ir.NoType, err
	}
	name, err := l.md.String(r[1])
	if err != nil {
		return ir.NoType, err
	}
	ns, err := l.md.String(r[2])
	if err != nil {
		return ir.NoType, err
	}
	scope, srow, err := CodedResolutionScope.Decode(r[0])
	if err != nil {
		return ir.NoType, err
	}

	var id ir.TypeID
	full := joinName(ns, name)
	switch {
	case scope == TableTypeRef:
		parent, err := l.typeRef(srow)
		if err != nil {
			return ir.NoType, err
		}
		id = l.nestedRef(parent, name)
	case scope == TableModule && srow != 0:
		if local, ok := l.topLevel[full]; ok {
			id = l.typeDefs[local-1]
		}
	default:
		if sysID, ok := l.sys.Lookup(full); ok {
			id = sysID
		}
	}
	if !id.IsValid() {
		id = l.placeholder(full, ns, name, ir.NoType)
	}
	l.typeRefs[row-1] = id
	return id, nil
}

func (l *loader) nestedRef(parent ir.TypeID, name string) ir.TypeID {
	if prow, ok := l.rowOf[parent]; ok {
		for _, n := range l.nested[prow] {
			if l.g.Type(l.typeDefs[n-1]).Name.String() == name {
				return l.typeDefs[n-1]
			}
		}
	}
	key := strconv.FormatUint(uint64(parent), 10) + "/" + name
	return l.placeholder(key, "", name, parent)
}

// placeholder returns the external class node standing for a referenced
// type this module does not define. A name with an arity suffix gets that
// many type parameters so it can be instantiated.
func (l *loader) placeholder(key, ns, name string, decl ir.TypeID) ir.TypeID {
	if id, ok := l.external[key]; ok {
		return id
	}
	id := l.g.AddType(&ir.TypeNode{
		Kind:          ir.KindClass,
		Name:          l.g.Intern(name),
		Namespace:     l.g.Intern(ns),
		DeclaringType: decl,
		BaseType:      l.sys.Object,
	})
	t := l.g.Type(id)
	for i := range arity(name) {
		p := l.g.AddType(&ir.TypeNode{
			Kind:           ir.KindTypeParameter,
			Name:           l.g.Intern("T" + strconv.Itoa(i)),
			DeclaringType:  id,
			ParameterIndex: i,
		})
		t.TemplateParameters = append(t.TemplateParameters, p)
	}
	l.external[key] = id
	l.externalIDs[id] = true
	l.log.Debug("external type", zap.String("name", l.g.FullName(id)))
	return id
}

// markValueType turns an external placeholder into a struct once a
// signature shows it is a value type.
func (l *loader) markValueType(id ir.TypeID) {
	if !l.externalIDs[id] {
		return
	}
	if t := l.g.Type(id); t.Kind == ir.KindClass {
		t.Kind = ir.KindStruct
		t.BaseType = l.sys.ValueType
	}
}

// arity parses the generic arity suffix of a metadata name ("List`1").
func arity(name string) int {
	i := strings.LastIndexByte(name, '`')
	if i < 0 {
		return 0
	}
	n, err := strconv.Atoi(name[i+1:])
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func joinName(ns, name string) string {
	if ns == "" {
		return name
	}
	return ns + "." + name
}
