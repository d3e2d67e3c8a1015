package metadata

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
	"github.com/EWSoftware/SHFB-sub006/ir"
)

var demoMVID = uuid.MustParse("6f1c3a2e-8d4b-4e7a-9c15-2b7d0e4f8a91")

// demoAssembly describes:
//
//	namespace Demo {
//	    [Serializable] struct Point : IShape { int x, y; Box<int> box; Guid id; }
//	    class Box<T> : IEnumerable<T> {
//	        class Node {}
//	        T value; List<T> items;
//	        Box(); T Get(int index); U Map<U>(U u) where U : IShape;
//	        T Value { get; }
//	    }
//	    interface IShape {}
//	}
func demoAssembly(t *testing.T) *mdBuilder {
	t.Helper()
	b := newBuilder()
	b.add(TableModule, 0, b.str("Demo.dll"), b.guid(demoMVID), 0, 0)
	b.add(TableAssemblyRef, 4, 0, 0, 0, 0, 0, b.str("mscorlib"), 0, 0)

	asm := enc(t, CodedResolutionScope, TableAssemblyRef, 1)
	b.add(TableTypeRef, asm, b.str("Object"), b.str("System"))
	b.add(TableTypeRef, asm, b.str("List`1"), b.str("System.Collections.Generic"))
	b.add(TableTypeRef, asm, b.str("ValueType"), b.str("System"))
	b.add(TableTypeRef, asm, b.str("IEnumerable`1"), b.str("System.Collections.Generic"))
	b.add(TableTypeRef, asm, b.str("SerializableAttribute"), b.str("System"))
	b.add(TableTypeRef, asm, b.str("Guid"), b.str("System"))

	object := enc(t, CodedTypeDefOrRef, TableTypeRef, 1)
	valueType := enc(t, CodedTypeDefOrRef, TableTypeRef, 3)
	b.add(TableTypeDef, 0, b.str("<Module>"), 0, 0, 1, 1)
	b.add(TableTypeDef, 0x100001, b.str("Box`1"), b.str("Demo"), object, 1, 1)
	b.add(TableTypeDef, 0x109, b.str("Point"), b.str("Demo"), valueType, 3, 4)
	b.add(TableTypeDef, 0x2, b.str("Node"), 0, object, 7, 4)
	b.add(TableTypeDef, 0xA1, b.str("IShape"), b.str("Demo"), 0, 7, 4)

	b.add(TableField, 0x1, b.str("value"), b.blob(SigField, ElemVar, 0))
	b.add(TableField, 0x1, b.str("items"), b.blob(SigField, ElemGenericInst, ElemClass, 2<<2|1, 1, ElemVar, 0))
	b.add(TableField, 0x6, b.str("x"), b.blob(SigField, ElemI4))
	b.add(TableField, 0x6, b.str("y"), b.blob(SigField, ElemI4))
	b.add(TableField, 0x6, b.str("box"), b.blob(SigField, ElemGenericInst, ElemClass, 2<<2, 1, ElemI4))
	b.add(TableField, 0x6, b.str("id"), b.blob(SigField, ElemValueType, 6<<2|1))

	b.add(TableMethodDef, 0, 0, 0x1886, b.str(".ctor"), b.blob(SigHasThis, 0, ElemVoid), 1)
	b.add(TableMethodDef, 0, 0, 0x0886, b.str("Get"), b.blob(SigHasThis, 1, ElemVar, 0, ElemI4), 1)
	b.add(TableMethodDef, 0, 0, 0x0086, b.str("Map"), b.blob(SigHasThis|SigGeneric, 1, 1, ElemMVar, 0, ElemMVar, 0), 2)
	b.add(TableParam, 0, 1, b.str("index"))
	b.add(TableParam, 0, 1, b.str("u"))

	b.add(TableInterfaceImpl, 2, enc(t, CodedTypeDefOrRef, TableTypeSpec, 1))
	b.add(TableInterfaceImpl, 3, enc(t, CodedTypeDefOrRef, TableTypeDef, 5))
	b.add(TableTypeSpec, b.blob(ElemGenericInst, ElemClass, 4<<2|1, 1, ElemVar, 0))

	b.add(TableMemberRef, enc(t, CodedMemberRefParent, TableTypeRef, 5), b.str(".ctor"), b.blob(SigHasThis, 0, ElemVoid))
	b.add(TableCustomAttribute,
		enc(t, CodedHasCustomAttribute, TableTypeDef, 3),
		enc(t, CodedCustomAttributeType, TableMemberRef, 1),
		b.blob(1, 0, 0, 0))

	b.add(TablePropertyMap, 2, 1)
	b.add(TableProperty, 0, b.str("Value"), b.blob(SigProperty|SigHasThis, 0, ElemVar, 0))
	b.add(TableMethodSemantics, uint32(semanticsGetter), 2, enc(t, CodedHasSemantics, TableProperty, 1))

	b.add(TableNestedClass, 4, 2)
	b.add(TableGenericParam, 0, 0, enc(t, CodedTypeOrMethodDef, TableTypeDef, 2), b.str("T"))
	b.add(TableGenericParam, 0, 0, enc(t, CodedTypeOrMethodDef, TableMethodDef, 3), b.str("U"))
	b.add(TableGenericParamConstraint, 2, enc(t, CodedTypeDefOrRef, TableTypeDef, 5))
	return b
}

type loaded struct {
	g   *ir.Graph
	sys *ir.SystemTypes
	mod *ir.Module
}

func load(t *testing.T, b *mdBuilder) *loaded {
	t.Helper()
	g := ir.NewGraph(ident.NewTable())
	sys := ir.NewSystemTypes(g, "")
	mod, err := Load(b.parse(t), g, sys)
	if err != nil {
		t.Fatal(err)
	}
	return &loaded{g, sys, mod}
}

func (l *loaded) find(t *testing.T, fullName string) *ir.TypeNode {
	t.Helper()
	for _, id := range l.mod.Types {
		if l.g.FullName(id) == fullName {
			return l.g.Type(id)
		}
	}
	t.Fatalf("type %s not loaded", fullName)
	return nil
}

func (l *loaded) members(t *testing.T, id ir.TypeID) map[string]*ir.Member {
	t.Helper()
	ids, err := l.g.MembersOf(id)
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]*ir.Member)
	for _, mid := range ids {
		m := l.g.Member(mid)
		out[m.Name.String()] = m
	}
	return out
}

func TestLoadModule(t *testing.T) {
	l := load(t, demoAssembly(t))
	if l.mod.Name.String() != "Demo.dll" || l.mod.MVID != demoMVID {
		t.Errorf("module %s %s", l.mod.Name, l.mod.MVID)
	}
	mods := l.g.Modules()
	if mods[len(mods)-1] != l.mod {
		t.Error("module not registered")
	}
	if len(l.mod.Types) != 5 {
		t.Errorf("got %d type definitions, want 5", len(l.mod.Types))
	}
}

func TestLoadTypeHeaders(t *testing.T) {
	l := load(t, demoAssembly(t))

	tests := []struct {
		name       string
		kind       ir.TypeKind
		base       string
		interfaces []string
	}{
		{"Demo.Box`1", ir.KindClass, "System.Object", []string{"System.Collections.Generic.IEnumerable`1<T>"}},
		{"Demo.Point", ir.KindStruct, "System.ValueType", []string{"Demo.IShape"}},
		{"Demo.Box`1+Node", ir.KindClass, "System.Object", nil},
		{"Demo.IShape", ir.KindInterface, "<none>", nil},
		{"<Module>", ir.KindClass, "<none>", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ := l.find(t, tt.name)
			if typ.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", typ.Kind, tt.kind)
			}
			if got := l.g.FullName(typ.BaseType); got != tt.base {
				t.Errorf("base = %s, want %s", got, tt.base)
			}
			if len(typ.Interfaces) != len(tt.interfaces) {
				t.Fatalf("got %d interfaces, want %d", len(typ.Interfaces), len(tt.interfaces))
			}
			for i, iface := range typ.Interfaces {
				if got := l.g.FullName(iface); got != tt.interfaces[i] {
					t.Errorf("interface %d = %s, want %s", i, got, tt.interfaces[i])
				}
			}
			if l.g.Materialized(typ.ID) {
				t.Error("members decoded eagerly")
			}
		})
	}

	box := l.find(t, "Demo.Box`1")
	if len(box.TemplateParameters) != 1 || l.g.Type(box.TemplateParameters[0]).Name.String() != "T" {
		t.Errorf("Box parameters %v", box.TemplateParameters)
	}
	if box.BaseType != l.sys.Object {
		t.Error("System.Object did not resolve to the system type")
	}
	point := l.find(t, "Demo.Point")
	if len(point.Attributes) != 1 || l.g.FullName(point.Attributes[0].Type) != "System.SerializableAttribute" {
		t.Errorf("Point attributes %v", point.Attributes)
	}
}

func TestLoadMembers(t *testing.T) {
	l := load(t, demoAssembly(t))
	box := l.find(t, "Demo.Box`1")

	var out strings.Builder
	if err := ir.Dump(&out, l.g, box.ID); err != nil {
		t.Fatal(err)
	}
	want := "class Demo.Box`1 : System.Object, System.Collections.Generic.IEnumerable`1<T>\n" +
		"  nested Demo.Box`1+Node\n" +
		"  field value : T\n" +
		"  field items : System.Collections.Generic.List`1<T>\n" +
		"  method .ctor() : System.Void\n" +
		"  method Get(index : System.Int32) : T\n" +
		"  method Map(u : U) : U\n" +
		"  property Value : T\n"
	if out.String() != want {
		t.Errorf("Dump:\n%s\nwant:\n%s", out.String(), want)
	}

	ms := l.members(t, box.ID)
	get, mapm, value := ms["Get"], ms["Map"], ms["Value"]
	if get.ThisParameter == nil || get.ThisParameter.Type != box.ID {
		t.Error("Get has no this parameter of the declaring type")
	}
	if ms[".ctor"].IsStatic() || ms[".ctor"].ThisParameter == nil {
		t.Error("constructor is an instance method")
	}
	if value.Getter != get.ID || value.Setter.IsValid() {
		t.Errorf("accessors %d %d", value.Getter, value.Setter)
	}
	if len(mapm.TemplateParameters) != 1 {
		t.Fatalf("Map parameters %v", mapm.TemplateParameters)
	}
	u := l.g.Type(mapm.TemplateParameters[0])
	if u.DeclaringMember != mapm.ID {
		t.Error("method parameter not tied to its method")
	}
	if len(u.Interfaces) != 1 || l.g.FullName(u.Interfaces[0]) != "Demo.IShape" {
		t.Errorf("U constraints %v", u.Interfaces)
	}
	if ms["items"].DeclaringType != box.ID {
		t.Error("field declaring type")
	}
}

func TestLoadInstantiatesGenericFields(t *testing.T) {
	l := load(t, demoAssembly(t))
	point := l.find(t, "Demo.Point")
	ms := l.members(t, point.ID)

	if got := l.g.FullName(ms["box"].Type); got != "Demo.Box`1<System.Int32>" {
		t.Fatalf("box : %s", got)
	}
	guid := l.g.Type(ms["id"].Type)
	if l.g.FullName(guid.ID) != "System.Guid" || guid.Kind != ir.KindStruct {
		t.Errorf("id : %s %s", l.g.FullName(guid.ID), guid.Kind)
	}

	inst := l.g.Type(ms["box"].Type)
	if len(inst.Interfaces) != 1 || l.g.FullName(inst.Interfaces[0]) != "System.Collections.Generic.IEnumerable`1<System.Int32>" {
		t.Errorf("instance interfaces %v", inst.Interfaces)
	}
	im := l.members(t, inst.ID)
	if got := l.g.FullName(im["value"].Type); got != "System.Int32" {
		t.Errorf("value : %s", got)
	}
	if got := l.g.FullName(im["Get"].ReturnType); got != "System.Int32" {
		t.Errorf("Get returns %s", got)
	}
	if im["Get"].ThisParameter.Type != inst.ID {
		t.Error("instance this parameter not specialized")
	}
}

func TestLoadExternalPlaceholdersShared(t *testing.T) {
	b := demoAssembly(t)
	asm := enc(t, CodedResolutionScope, TableAssemblyRef, 1)
	b.add(TableTypeRef, asm, b.str("List`1"), b.str("System.Collections.Generic"))
	g := ir.NewGraph(ident.NewTable())
	ld := newLoader(b.parse(t), g, ir.NewSystemTypes(g, ""))

	first, err := ld.typeRef(2)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ld.typeRef(7)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Error("same external type resolved to two nodes")
	}
	if n := len(g.Type(first).TemplateParameters); n != 1 {
		t.Errorf("placeholder has %d parameters", n)
	}
	if obj, _ := ld.typeRef(1); obj != ld.sys.Object {
		t.Error("System.Object became a placeholder")
	}
}

func TestLoadFailureRegistersNothing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(b *mdBuilder)
	}{
		{
			name: "generic parameter numbering",
			mutate: func(b *mdBuilder) {
				b.rows[TableGenericParam][0][0] = 1
			},
		},
		{
			name: "bad base type tag",
			mutate: func(b *mdBuilder) {
				b.rows[TableTypeDef][1][3] = 3
			},
		},
		{
			name: "unknown element type in base",
			mutate: func(b *mdBuilder) {
				b.rows[TableTypeSpec][0][0] = b.blob(0x7F)
			},
		},
		{
			name: "var outside generic context",
			mutate: func(b *mdBuilder) {
				b.rows[TableTypeSpec][0][0] = b.blob(ElemVar, 3)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := demoAssembly(t)
			tt.mutate(b)
			g := ir.NewGraph(ident.NewTable())
			sys := ir.NewSystemTypes(g, "")
			before := len(g.Modules())
			_, err := Load(b.parse(t), g, sys)
			if !hasKind(err, errors.KindMalformedMetadata) {
				t.Errorf("Load: %v", err)
			}
			if len(g.Modules()) != before {
				t.Error("failed load registered a module")
			}
		})
	}
}

func TestLazyMemberFailure(t *testing.T) {
	b := demoAssembly(t)
	b.rows[TableField][2][2] = b.blob(0x07, ElemI4)
	l := load(t, b)
	point := l.find(t, "Demo.Point")
	if _, err := l.g.MembersOf(point.ID); !hasKind(err, errors.KindMalformedMetadata) {
		t.Errorf("MembersOf: %v", err)
	}
	if l.g.Materialized(point.ID) {
		t.Error("failed provider was dropped")
	}
}

func TestArity(t *testing.T) {
	tests := []struct {
		name string
		want int
	}{
		{"List`1", 1},
		{"Dictionary`2", 2},
		{"Object", 0},
		{"Odd`x", 0},
	}
	for _, tt := range tests {
		if got := arity(tt.name); got != tt.want {
			t.Errorf("arity(%q) = %d, want %d", tt.name, got, tt.want)
		}
	}
}
