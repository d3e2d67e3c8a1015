package specialize

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/EWSoftware/SHFB-sub006/ir"
)

func TestVisitBody(t *testing.T) {
	f := newFixture(t)
	list, pars := f.generic("Demo", "List`1", "T")
	T := pars[0]
	items := f.field(list, "items", f.g.ArrayOf(T, 1))
	add := f.method(list, "Add", f.sys.Void, f.param("item", T))

	declared := &ir.Local{Name: f.g.Intern("tmp"), Type: T}
	hidden := &ir.Local{Name: f.g.Intern("spill"), Type: f.g.ArrayOf(T, 1), Index: 1}
	lit := &ir.Literal{Value: nil, Typ: T}
	call := &ir.Call{Method: add, Target: &ir.LocalRef{Local: declared}, Args: []ir.Expression{lit}, Typ: f.sys.Void}
	field := &ir.FieldRef{Field: items, Typ: f.g.ArrayOf(T, 1)}
	conv := &ir.Conversion{Operand: &ir.LocalRef{Local: hidden}, Typ: T}
	caught := &ir.CaughtException{Typ: T}
	fragment := &ir.Block{Index: -1, Statements: []ir.Statement{
		&ir.ExpressionStatement{Expr: &ir.Pop{Operand: conv, Typ: f.sys.Void}},
	}}
	handler := &ir.Block{Index: 1, Statements: []ir.Statement{
		&ir.AssignmentStatement{Target: &ir.LocalRef{Local: declared}, Source: caught},
		&ir.Throw{},
	}}
	body := &ir.Body{
		Locals: []*ir.Local{declared},
		Blocks: []*ir.Block{
			{Index: 0, Statements: []ir.Statement{
				&ir.ExpressionStatement{Expr: call},
				fragment,
				&ir.Return{Value: &ir.ArrayElement{Array: field, Index: &ir.Literal{Value: int32(0), Typ: f.sys.Int32}, Typ: T}},
			}},
			handler,
		},
		Handlers: []*ir.Handler{{Kind: ir.HandlerCatch, FilterType: T, HandlerStart: handler, HandlerEnd: handler}},
	}

	s, err := New(f.g, f.mod, pars, []ir.TypeID{f.sys.String}, WithDefinition(list))
	if err != nil {
		t.Fatal(err)
	}
	s.VisitBody(body)
	if err := s.Err(); err != nil {
		t.Fatal(err)
	}

	inst := f.instantiate(list, f.sys.String)
	ids, err := f.g.MembersOf(inst)
	if err != nil {
		t.Fatal(err)
	}
	strings := f.g.ArrayOf(f.sys.String, 1)

	tests := []struct {
		name      string
		got, want ir.TypeID
	}{
		{"declared local", declared.Type, f.sys.String},
		{"referenced local", hidden.Type, strings},
		{"literal", lit.Typ, f.sys.String},
		{"field type", field.Typ, strings},
		{"conversion", conv.Typ, f.sys.String},
		{"caught exception", caught.Typ, f.sys.String},
		{"handler filter", body.Handlers[0].FilterType, f.sys.String},
		{"call result", call.Typ, f.sys.Void},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: %s, want %s", tt.name, f.name(tt.got), f.name(tt.want))
		}
	}
	if call.Method != ids[1] {
		t.Errorf("call target = %d, want the instance's Add %d", call.Method, ids[1])
	}
	if field.Field != ids[0] {
		t.Errorf("field = %d, want the instance's items %d", field.Field, ids[0])
	}
}

func TestVisitBodyVisitsSharedLocalOnce(t *testing.T) {
	f := newFixture(t)
	_, pars := f.generic("Demo", "Wrap`1", "T")
	T := pars[0]
	// T becomes T[] so a second visit would produce T[][].
	s, err := New(f.g, f.mod, pars, []ir.TypeID{f.g.ArrayOf(T, 1)})
	if err != nil {
		t.Fatal(err)
	}

	l := &ir.Local{Name: f.g.Intern("x"), Type: T}
	body := &ir.Body{
		Locals: []*ir.Local{l},
		Blocks: []*ir.Block{{Statements: []ir.Statement{
			&ir.ExpressionStatement{Expr: &ir.LocalRef{Local: l}},
			&ir.Return{Value: &ir.LocalRef{Local: l}},
		}}},
	}
	s.VisitBody(body)
	if l.Type != f.g.ArrayOf(T, 1) {
		t.Errorf("local type = %s", f.name(l.Type))
	}
}

func TestDumpInstancesGolden(t *testing.T) {
	f := newFixture(t)

	idict, ipars := f.generic("Demo", "IDictionary`2", "TKey", "TValue")
	f.g.Type(idict).Kind = ir.KindInterface
	f.g.Type(idict).BaseType = ir.NoType
	f.method(idict, "Add", f.sys.Void, f.param("key", ipars[0]), f.param("value", ipars[1]))

	dict, dpars := f.generic("Demo", "Dictionary`2", "TKey", "TValue")
	K, V := dpars[0], dpars[1]
	kvp, _ := f.generic("Demo", "KeyValuePair`2", "TKey", "TValue")
	f.g.Type(dict).Interfaces = []ir.TypeID{f.instantiate(idict, K, V)}
	f.field(dict, "entries", f.g.ArrayOf(f.instantiate(kvp, K, V), 1))
	f.field(dict, "count", f.sys.Int32)
	f.method(dict, "Add", f.sys.Void, f.param("key", K), f.param("value", V))
	f.method(dict, "get_Item", V, f.param("key", K))

	outer, opars := f.generic("Demo", "Outer`1", "T")
	inner, _ := f.nested(outer, "Inner")
	f.field(inner, "value", opars[0])
	f.field(outer, "first", inner)
	f.field(outer, "all", f.g.ArrayOf(opars[0], 2))

	tests := []struct {
		name string
		id   ir.TypeID
	}{
		{"dictionary_instance", f.instantiate(dict, f.sys.String, f.sys.Int32)},
		{"interface_instance", f.instantiate(idict, f.sys.String, f.sys.Int32)},
		{"outer_instance", f.instantiate(outer, f.sys.Double)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := ir.Dump(&buf, f.g, tt.id); err != nil {
				t.Fatal(err)
			}
			g := goldie.New(t,
				goldie.WithFixtureDir("testdata/golden"),
				goldie.WithNameSuffix(".golden"),
			)
			g.Assert(t, tt.name, buf.Bytes())
		})
	}
}
