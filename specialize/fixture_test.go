package specialize

import (
	stderrors "errors"
	"testing"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

type fixture struct {
	t   *testing.T
	g   *ir.Graph
	sys *ir.SystemTypes
	mod *ir.Module
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	g := ir.NewGraph(ident.NewTable())
	return &fixture{t: t, g: g, sys: ir.NewSystemTypes(g, ""), mod: g.NewModule("Demo.dll")}
}

func (f *fixture) class(ns, name string) ir.TypeID {
	return f.g.AddType(&ir.TypeNode{
		Kind:      ir.KindClass,
		Name:      f.g.Intern(name),
		Namespace: f.g.Intern(ns),
		Module:    f.mod,
		BaseType:  f.sys.Object,
	})
}

// generic declares a class with one type parameter per name.
func (f *fixture) generic(ns, name string, params ...string) (ir.TypeID, []ir.TypeID) {
	id := f.class(ns, name)
	pars := make([]ir.TypeID, len(params))
	for i, p := range params {
		pars[i] = f.g.AddType(&ir.TypeNode{
			Kind:           ir.KindTypeParameter,
			Name:           f.g.Intern(p),
			DeclaringType:  id,
			ParameterIndex: i,
		})
	}
	f.g.Type(id).TemplateParameters = pars
	return id, pars
}

// nested declares a class nested in decl.
func (f *fixture) nested(decl ir.TypeID, name string, params ...string) (ir.TypeID, []ir.TypeID) {
	id, pars := f.generic("", name, params...)
	f.g.AppendMember(decl, &ir.Member{Kind: ir.MemberNestedType, Name: f.g.Intern(name), Type: id})
	return id, pars
}

func (f *fixture) field(decl ir.TypeID, name string, typ ir.TypeID) ir.MemberID {
	return f.g.AppendMember(decl, &ir.Member{Kind: ir.MemberField, Name: f.g.Intern(name), Type: typ})
}

func (f *fixture) param(name string, typ ir.TypeID) *ir.Parameter {
	return &ir.Parameter{Name: f.g.Intern(name), Type: typ}
}

func (f *fixture) method(decl ir.TypeID, name string, ret ir.TypeID, params ...*ir.Parameter) ir.MemberID {
	for i, p := range params {
		p.Index = i
	}
	return f.g.AppendMember(decl, &ir.Member{
		Kind:       ir.MemberMethod,
		Name:       f.g.Intern(name),
		ReturnType: ret,
		Parameters: params,
	})
}

func (f *fixture) instantiate(template ir.TypeID, args ...ir.TypeID) ir.TypeID {
	f.t.Helper()
	id, err := Instantiate(f.g, template, args, f.mod)
	if err != nil {
		f.t.Fatalf("Instantiate(%s): %v", f.g.FullName(template), err)
	}
	return id
}

func (f *fixture) members(id ir.TypeID) []*ir.Member {
	f.t.Helper()
	ids, err := f.g.MembersOf(id)
	if err != nil {
		f.t.Fatalf("MembersOf(%s): %v", f.g.FullName(id), err)
	}
	out := make([]*ir.Member, 0, len(ids))
	for _, mid := range ids {
		if m := f.g.Member(mid); m != nil {
			out = append(out, m)
		}
	}
	return out
}

func (f *fixture) name(id ir.TypeID) string {
	return f.g.FullName(id)
}

func hasKind(err error, kind errors.Kind) bool {
	var e *errors.Error
	return stderrors.As(err, &e) && e.Kind == kind
}
