package metadata

import (
	stderrors "errors"
	"testing"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
	"github.com/EWSoftware/SHFB-sub006/ir"
	"github.com/EWSoftware/SHFB-sub006/metadata/internal/cursor"
)

// sigLoader is a loader over the demo assembly with its headers built, for
// decoding hand-written signatures.
func sigLoader(t *testing.T) *loader {
	t.Helper()
	g := ir.NewGraph(ident.NewTable())
	l := newLoader(demoAssembly(t).parse(t), g, ir.NewSystemTypes(g, ""))
	for _, step := range []func() error{l.loadModule, l.loadTypeDefs, l.loadNesting, l.loadGenericParams, l.loadMethodOwners, l.loadMemberMaps, l.loadHeaders} {
		if err := step(); err != nil {
			t.Fatal(err)
		}
	}
	return l
}

func TestTypeSignatures(t *testing.T) {
	l := sigLoader(t)
	box := l.typeDefs[1]
	ctx := l.typeContext(box)

	tests := []struct {
		name string
		sig  []byte
		want string
	}{
		{"primitive", []byte{ElemR8}, "System.Double"},
		{"object", []byte{ElemObject}, "System.Object"},
		{"pointer", []byte{ElemPtr, ElemU1}, "System.Byte*"},
		{"byref", []byte{ElemByRef, ElemVar, 0}, "T&"},
		{"vector", []byte{ElemSZArray, ElemString}, "System.String[]"},
		{"array rank 2", []byte{ElemArray, ElemI4, 2, 1, 3, 1, 0}, "System.Int32[,]"},
		{"modreq", []byte{ElemCModReqd, 6<<2 | 1, ElemI4}, "System.Int32 modreq(System.Guid)"},
		{"modopt", []byte{ElemCModOpt, 5 << 2, ElemI4}, "System.Int32 modopt(Demo.IShape)"},
		{"function pointer", []byte{ElemFnPtr, 0, 2, ElemVoid, ElemI4, ElemString}, "method System.Void(System.Int32,System.String)"},
		{"typedef", []byte{ElemClass, 3 << 2}, "Demo.Point"},
		{"typespec", []byte{ElemClass, 1<<2 | 2}, "System.Collections.Generic.IEnumerable`1<T>"},
		{"generic instance", []byte{ElemGenericInst, ElemClass, 2 << 2, 1, ElemString}, "Demo.Box`1<System.String>"},
		{"own parameters", []byte{ElemGenericInst, ElemClass, 2 << 2, 1, ElemVar, 0}, "Demo.Box`1"},
		{"pinned", []byte{ElemPinned, ElemI4}, "System.Int32"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := l.typeSig(cursor.New(tt.sig), ctx, 0)
			if err != nil {
				t.Fatal(err)
			}
			if got := l.g.FullName(id); got != tt.want {
				t.Errorf("decoded %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTypeSignatureErrors(t *testing.T) {
	l := sigLoader(t)
	ctx := &sigContext{}

	deep := make([]byte, 0, maxSignatureDepth+2)
	for range maxSignatureDepth + 1 {
		deep = append(deep, ElemSZArray)
	}
	deep = append(deep, ElemI4)

	tests := []struct {
		name string
		sig  []byte
	}{
		{"empty", nil},
		{"unknown element", []byte{0x3F}},
		{"var without context", []byte{ElemVar, 0}},
		{"zero rank", []byte{ElemArray, ElemI4, 0, 0, 0}},
		{"truncated", []byte{ElemPtr}},
		{"instance of primitive kind", []byte{ElemGenericInst, ElemI4, 2 << 2, 1, ElemI4}},
		{"instance arity mismatch", []byte{ElemGenericInst, ElemClass, 2 << 2, 2, ElemI4, ElemI4}},
		{"too deep", deep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.typeSig(cursor.New(tt.sig), ctx, 0); !hasKind(err, errors.KindMalformedMetadata) {
				t.Errorf("typeSig: %v", err)
			}
		})
	}
}

// Counts larger than the rest of the blob are rejected before anything is
// sized from them.
func TestTypeSignatureCountsBounded(t *testing.T) {
	l := sigLoader(t)
	ctx := &sigContext{}
	tests := []struct {
		name   string
		sig    []byte
		detail string
	}{
		{"instance arguments", []byte{ElemGenericInst, ElemClass, 2 << 2, 0xDE, 0xFF, 0xFF, 0xFF}, "generic instance with 520093695 arguments"},
		{"instance arguments past end", []byte{ElemGenericInst, ElemClass, 2 << 2, 2, ElemI4}, "generic instance with 2 arguments"},
		{"array sizes", []byte{ElemArray, ElemI4, 1, 0xDF, 0xFF, 0xFF, 0xFF}, "array shape with 536870911 bounds"},
		{"array lower bounds", []byte{ElemArray, ElemI4, 1, 0, 3, 0}, "array shape with 3 bounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e *errors.Error
			_, err := l.typeSig(cursor.New(tt.sig), ctx, 0)
			if !stderrors.As(err, &e) || e.Kind != errors.KindMalformedMetadata || e.Detail != tt.detail {
				t.Errorf("typeSig: %v, want %q", err, tt.detail)
			}
		})
	}
}

func TestMethodSignature(t *testing.T) {
	l := sigLoader(t)
	sig, err := l.methodSig(cursor.New([]byte{0x05, 2, ElemI4, ElemString, ElemSentinel, ElemI8}), &sigContext{}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if sig.hasThis || sig.generic != 0 {
		t.Errorf("flags: this %v generic %d", sig.hasThis, sig.generic)
	}
	if sig.ret != l.sys.Int32 || len(sig.params) != 2 || sig.params[0] != l.sys.String || sig.params[1] != l.sys.Int64 {
		t.Errorf("sig = %+v", sig)
	}

	if _, err := l.methodSig(cursor.New([]byte{0, 100, ElemVoid}), &sigContext{}, 0); !hasKind(err, errors.KindMalformedMetadata) {
		t.Errorf("parameter count past blob: %v", err)
	}
	if _, err := l.fieldSig([]byte{SigProperty, ElemI4}, &sigContext{}); !hasKind(err, errors.KindMalformedMetadata) {
		t.Errorf("field signature kind: %v", err)
	}
}
