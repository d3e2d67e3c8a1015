package metadata

import (
	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ir"
	"github.com/EWSoftware/SHFB-sub006/metadata/internal/cursor"
)

// memberProvider decodes the members of a TypeDef row in declaration order:
// nested types, fields, methods, properties, then events.
func (l *loader) memberProvider(row uint32) ir.MemberProvider {
	return func(g *ir.Graph, decl ir.TypeID) ([]ir.MemberID, error) {
		b := &memberBuilder{loader: l, decl: decl, ctx: l.typeContext(decl), methodIDs: make(map[uint32]ir.MemberID)}
		for _, step := range []func(uint32) error{b.nestedTypes, b.fields, b.methods, b.properties, b.events} {
			if err := step(row); err != nil {
				return nil, errors.New(errors.PhaseLoad, errors.KindMalformedMetadata).
					TypeName(g.FullName(decl)).
					Cause(err).
					Detail("members").
					Build()
			}
		}
		l.log.Debug("materialized members",
			zap.String("type", g.FullName(decl)),
			zap.Int("count", len(b.out)))
		return b.out, nil
	}
}

type memberBuilder struct {
	*loader
	ctx       *sigContext
	methodIDs map[uint32]ir.MemberID // by MethodDef row
	out       []ir.MemberID
	decl      ir.TypeID
}

func (b *memberBuilder) add(m *ir.Member) ir.MemberID {
	m.DeclaringType = b.decl
	id := b.g.AddMember(m)
	b.out = append(b.out, id)
	return id
}

func (b *memberBuilder) nestedTypes(row uint32) error {
	for _, n := range b.nested[row] {
		t := b.g.Type(b.typeDefs[n-1])
		b.add(&ir.Member{Kind: ir.MemberNestedType, Name: t.Name, Type: t.ID})
	}
	return nil
}

func (b *memberBuilder) fields(row uint32) error {
	start, end, err := b.md.rowRange(TableTypeDef, row, 4, TableField)
	if err != nil {
		return err
	}
	for i := start; i < end; i++ {
		phys, err := b.md.indirect(TableFieldPtr, i)
		if err != nil {
			return err
		}
		r, err := b.md.Row(TableField, phys)
		if err != nil {
			return err
		}
		name, err := b.name(r[1])
		if err != nil {
			return err
		}
		blob, err := b.md.Blob(r[2])
		if err != nil {
			return err
		}
		typ, err := b.fieldSig(blob, b.ctx)
		if err != nil {
			return err
		}
		b.add(&ir.Member{Kind: ir.MemberField, Name: name, Type: typ, Flags: uint16(r[0])})
	}
	return nil
}

func (b *memberBuilder) methods(row uint32) error {
	start, end, err := b.md.rowRange(TableTypeDef, row, 5, TableMethodDef)
	if err != nil {
		return err
	}
	for i := start; i < end; i++ {
		phys, err := b.md.indirect(TableMethodPtr, i)
		if err != nil {
			return err
		}
		if err := b.method(phys); err != nil {
			return err
		}
	}
	return nil
}

func (b *memberBuilder) method(row uint32) error {
	r, err := b.md.Row(TableMethodDef, row)
	if err != nil {
		return err
	}
	name, err := b.name(r[3])
	if err != nil {
		return err
	}
	blob, err := b.md.Blob(r[4])
	if err != nil {
		return err
	}
	ctx := b.methodContext(row)
	sig, err := b.methodSig(cursor.New(blob), ctx, 0)
	if err != nil {
		return err
	}
	if sig.generic != len(ctx.methodParams) {
		return errors.Malformed(0, "method %s declares %d generic parameters, signature has %d",
			name, len(ctx.methodParams), sig.generic)
	}

	m := &ir.Member{
		Kind:               ir.MemberMethod,
		Name:               name,
		ReturnType:         sig.ret,
		TemplateParameters: ctx.methodParams,
		Flags:              uint16(r[2]),
	}
	m.Parameters = make([]*ir.Parameter, len(sig.params))
	for i, p := range sig.params {
		m.Parameters[i] = &ir.Parameter{Index: i, Type: p}
	}
	if err := b.paramNames(r[5], row, m.Parameters); err != nil {
		return err
	}
	if sig.hasThis {
		this := b.decl
		if k := b.g.Type(b.decl).Kind; k == ir.KindStruct || k == ir.KindEnum {
			this = b.g.ReferenceTo(this)
		}
		m.ThisParameter = &ir.Parameter{Name: b.g.Intern("this"), Type: this, Index: -1}
	}

	id := b.add(m)
	b.methodIDs[row] = id
	for _, p := range ctx.methodParams {
		b.g.Type(p).DeclaringMember = id
	}
	return nil
}

// paramNames names parameters from the Param run of a method. Sequence 0
// describes the return value and is skipped.
func (b *memberBuilder) paramNames(start, method uint32, params []*ir.Parameter) error {
	end := b.md.Rows(TableParam) + 1
	if method < b.md.Rows(TableMethodDef) {
		next, err := b.md.Row(TableMethodDef, method+1)
		if err != nil {
			return err
		}
		end = next[5]
	}
	for i := start; i < end && i <= b.md.Rows(TableParam); i++ {
		phys, err := b.md.indirect(TableParamPtr, i)
		if err != nil {
			return err
		}
		r, err := b.md.Row(TableParam, phys)
		if err != nil {
			return err
		}
		seq := int(r[1])
		if seq == 0 {
			continue
		}
		if seq > len(params) {
			return errors.OutOfBounds(errors.PhaseLoad, []string{"Param", "Sequence"}, seq, len(params))
		}
		name, err := b.name(r[2])
		if err != nil {
			return err
		}
		params[seq-1].Name = name
		params[seq-1].Flags = uint16(r[0])
	}
	return nil
}

func (b *memberBuilder) properties(row uint32) error {
	run, ok := b.loader.properties[row]
	if !ok {
		return nil
	}
	for i := run[0]; i < run[1]; i++ {
		phys, err := b.md.indirect(TablePropertyPtr, i)
		if err != nil {
			return err
		}
		r, err := b.md.Row(TableProperty, phys)
		if err != nil {
			return err
		}
		name, err := b.name(r[1])
		if err != nil {
			return err
		}
		blob, err := b.md.Blob(r[2])
		if err != nil {
			return err
		}
		sig, err := b.propertySig(blob, b.ctx)
		if err != nil {
			return err
		}
		m := &ir.Member{Kind: ir.MemberProperty, Name: name, Type: sig.ret, Flags: uint16(r[0])}
		for k, p := range sig.params {
			m.Parameters = append(m.Parameters, &ir.Parameter{Index: k, Type: p})
		}
		acc := b.accessors[phys]
		m.Getter = b.methodIDs[acc[0]]
		m.Setter = b.methodIDs[acc[1]]
		b.add(m)
	}
	return nil
}

func (b *memberBuilder) events(row uint32) error {
	run, ok := b.loader.events[row]
	if !ok {
		return nil
	}
	for i := run[0]; i < run[1]; i++ {
		phys, err := b.md.indirect(TableEventPtr, i)
		if err != nil {
			return err
		}
		r, err := b.md.Row(TableEvent, phys)
		if err != nil {
			return err
		}
		name, err := b.name(r[1])
		if err != nil {
			return err
		}
		typ := ir.NoType
		if r[2] != 0 {
			if typ, err = b.typeDefOrRef(r[2], b.ctx); err != nil {
				return err
			}
		}
		b.add(&ir.Member{Kind: ir.MemberEvent, Name: name, Type: typ, Flags: uint16(r[0])})
	}
	return nil
}
