package metadata

import (
	"go.uber.org/zap"

	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ir"
	"github.com/EWSoftware/SHFB-sub006/metadata/internal/cursor"
	"github.com/EWSoftware/SHFB-sub006/specialize"
)

// Element types of signature blobs (ECMA-335 II.23.1.16).
const (
	ElemVoid        byte = 0x01
	ElemBoolean     byte = 0x02
	ElemChar        byte = 0x03
	ElemI1          byte = 0x04
	ElemU1          byte = 0x05
	ElemI2          byte = 0x06
	ElemU2          byte = 0x07
	ElemI4          byte = 0x08
	ElemU4          byte = 0x09
	ElemI8          byte = 0x0A
	ElemU8          byte = 0x0B
	ElemR4          byte = 0x0C
	ElemR8          byte = 0x0D
	ElemString      byte = 0x0E
	ElemPtr         byte = 0x0F
	ElemByRef       byte = 0x10
	ElemValueType   byte = 0x11
	ElemClass       byte = 0x12
	ElemVar         byte = 0x13
	ElemArray       byte = 0x14
	ElemGenericInst byte = 0x15
	ElemTypedByRef  byte = 0x16
	ElemI           byte = 0x18
	ElemU           byte = 0x19
	ElemFnPtr       byte = 0x1B
	ElemObject      byte = 0x1C
	ElemSZArray     byte = 0x1D
	ElemMVar        byte = 0x1E
	ElemCModReqd    byte = 0x1F
	ElemCModOpt     byte = 0x20
	ElemSentinel    byte = 0x41
	ElemPinned      byte = 0x45
)

// Calling convention bits of method and property signatures.
const (
	SigField        byte = 0x06
	SigProperty     byte = 0x08
	SigGeneric      byte = 0x10
	SigHasThis      byte = 0x20
	SigExplicitThis byte = 0x40
	sigKindMask     byte = 0x0F
)

// maxSignatureDepth bounds nesting of element types in one blob.
const maxSignatureDepth = 64

// sigContext supplies the type and method parameters that VAR and MVAR
// index into.
type sigContext struct {
	typeParams   []ir.TypeID
	methodParams []ir.TypeID
}

type methodSig struct {
	ret     ir.TypeID
	params  []ir.TypeID
	generic int
	hasThis bool
}

func (l *loader) primitive(et byte) (ir.TypeID, bool) {
	s := l.sys
	switch et {
	case ElemVoid:
		return s.Void, true
	case ElemBoolean:
		return s.Boolean, true
	case ElemChar:
		return s.Char, true
	case ElemI1:
		return s.SByte, true
	case ElemU1:
		return s.Byte, true
	case ElemI2:
		return s.Int16, true
	case ElemU2:
		return s.UInt16, true
	case ElemI4:
		return s.Int32, true
	case ElemU4:
		return s.UInt32, true
	case ElemI8:
		return s.Int64, true
	case ElemU8:
		return s.UInt64, true
	case ElemR4:
		return s.Single, true
	case ElemR8:
		return s.Double, true
	case ElemString:
		return s.String, true
	case ElemTypedByRef:
		return s.TypedReference, true
	case ElemI:
		return s.IntPtr, true
	case ElemU:
		return s.UIntPtr, true
	case ElemObject:
		return s.Object, true
	}
	return ir.NoType, false
}

// typeSig decodes one Type production.
func (l *loader) typeSig(c *cursor.Cursor, ctx *sigContext, depth int) (ir.TypeID, error) {
	at := c.Position()
	if depth > maxSignatureDepth {
		return ir.NoType, errors.Malformed(at, "signature nested deeper than %d", maxSignatureDepth)
	}
	et, err := c.ReadByte()
	if err != nil {
		return ir.NoType, err
	}
	if id, ok := l.primitive(et); ok {
		return id, nil
	}

	switch et {
	case ElemPtr, ElemByRef, ElemSZArray, ElemPinned:
		elem, err := l.typeSig(c, ctx, depth+1)
		if err != nil {
			return ir.NoType, err
		}
		switch et {
		case ElemPtr:
			return l.g.PointerTo(elem), nil
		case ElemByRef:
			return l.g.ReferenceTo(elem), nil
		case ElemSZArray:
			return l.g.ArrayOf(elem, 1), nil
		}
		return elem, nil

	case ElemArray:
		elem, err := l.typeSig(c, ctx, depth+1)
		if err != nil {
			return ir.NoType, err
		}
		rank, err := c.ReadCompressedInt()
		if err != nil {
			return ir.NoType, err
		}
		if rank < 1 {
			return ir.NoType, errors.Malformed(at, "array rank %d", rank)
		}
		// sizes, then lower bounds
		for range 2 {
			n, err := c.ReadCompressedInt()
			if err != nil {
				return ir.NoType, err
			}
			if n < 0 || int(n) > c.Remaining() {
				return ir.NoType, errors.Malformed(at, "array shape with %d bounds", n)
			}
			for range n {
				if _, err := c.ReadCompressedInt(); err != nil {
					return ir.NoType, err
				}
			}
		}
		return l.g.ArrayOf(elem, int(rank)), nil

	case ElemCModReqd, ElemCModOpt:
		mod, err := l.typeDefOrRefSig(c, ctx)
		if err != nil {
			return ir.NoType, err
		}
		elem, err := l.typeSig(c, ctx, depth+1)
		if err != nil {
			return ir.NoType, err
		}
		kind := ir.KindOptionalModifier
		if et == ElemCModReqd {
			kind = ir.KindRequiredModifier
		}
		return l.g.Modified(kind, mod, elem), nil

	case ElemFnPtr:
		sig, err := l.methodSig(c, ctx, depth+1)
		if err != nil {
			return ir.NoType, err
		}
		return l.g.FunctionPointer(sig.ret, sig.params), nil

	case ElemVar, ElemMVar:
		n, err := c.ReadCompressedInt()
		if err != nil {
			return ir.NoType, err
		}
		params := ctx.typeParams
		if et == ElemMVar {
			params = ctx.methodParams
		}
		if n < 0 || int(n) >= len(params) {
			return ir.NoType, errors.Malformed(at, "generic parameter %d of %d", n, len(params))
		}
		return params[n], nil

	case ElemValueType, ElemClass:
		id, err := l.typeDefOrRefSig(c, ctx)
		if err != nil {
			return ir.NoType, err
		}
		if et == ElemValueType {
			l.markValueType(id)
		}
		return id, nil

	case ElemGenericInst:
		return l.genericInst(c, ctx, depth)
	}
	return ir.NoType, errors.New(errors.PhaseDecode, errors.KindMalformedMetadata).
		Offset(at).
		Value(et).
		Detail("unknown element type 0x%02x", et).
		Build()
}

func (l *loader) genericInst(c *cursor.Cursor, ctx *sigContext, depth int) (ir.TypeID, error) {
	at := c.Position()
	kind, err := c.ReadByte()
	if err != nil {
		return ir.NoType, err
	}
	if kind != ElemClass && kind != ElemValueType {
		return ir.NoType, errors.Malformed(at, "generic instance of element type 0x%02x", kind)
	}
	template, err := l.typeDefOrRefSig(c, ctx)
	if err != nil {
		return ir.NoType, err
	}
	if kind == ElemValueType {
		l.markValueType(template)
	}
	n, err := c.ReadCompressedInt()
	if err != nil {
		return ir.NoType, err
	}
	if n < 1 || int(n) > c.Remaining() {
		return ir.NoType, errors.Malformed(at, "generic instance with %d arguments", n)
	}
	args := make([]ir.TypeID, n)
	for i := range args {
		if args[i], err = l.typeSig(c, ctx, depth+1); err != nil {
			return ir.NoType, err
		}
	}
	if row, ok := l.localRow(template); ok {
		if err := l.header(row); err != nil {
			return ir.NoType, err
		}
	}
	id, err := specialize.Instantiate(l.g, template, args, l.module, l.specOpts...)
	if err != nil {
		return ir.NoType, errors.New(errors.PhaseLoad, errors.KindMalformedMetadata).
			Offset(at).
			TypeName(l.g.FullName(template)).
			Cause(err).
			Detail("generic instance").
			Build()
	}
	return id, nil
}

// typeDefOrRefSig reads a TypeDefOrRef index in its compressed signature form.
func (l *loader) typeDefOrRefSig(c *cursor.Cursor, ctx *sigContext) (ir.TypeID, error) {
	at := c.Position()
	v, err := c.ReadCompressedInt()
	if err != nil {
		return ir.NoType, err
	}
	if v < 0 {
		return ir.NoType, errors.Malformed(at, "negative type reference")
	}
	return l.typeDefOrRef(uint32(v), ctx)
}

// methodSig decodes a MethodDefSig, MethodRefSig or the signature after FNPTR.
func (l *loader) methodSig(c *cursor.Cursor, ctx *sigContext, depth int) (methodSig, error) {
	var sig methodSig
	conv, err := c.ReadByte()
	if err != nil {
		return sig, err
	}
	sig.hasThis = conv&SigHasThis != 0
	if conv&SigGeneric != 0 {
		n, err := c.ReadCompressedInt()
		if err != nil {
			return sig, err
		}
		sig.generic = int(n)
	}
	n, err := c.ReadCompressedInt()
	if err != nil {
		return sig, err
	}
	if n < 0 || int(n) > c.Remaining() {
		return sig, errors.Malformed(c.Position(), "method signature with %d parameters", n)
	}
	if sig.ret, err = l.typeSig(c, ctx, depth); err != nil {
		return sig, err
	}
	sig.params = make([]ir.TypeID, 0, n)
	for len(sig.params) < int(n) {
		if c.Remaining() > 0 {
			at := c.Position()
			b, _ := c.ReadByte()
			if b != ElemSentinel {
				_ = c.Seek(at)
			}
		}
		p, err := l.typeSig(c, ctx, depth)
		if err != nil {
			return sig, err
		}
		sig.params = append(sig.params, p)
	}
	return sig, nil
}

func (l *loader) fieldSig(blob []byte, ctx *sigContext) (ir.TypeID, error) {
	c := cursor.New(blob)
	b, err := c.ReadByte()
	if err != nil {
		return ir.NoType, err
	}
	if b&sigKindMask != SigField {
		return ir.NoType, errors.Malformed(0, "field signature starts with 0x%02x", b)
	}
	return l.typeSig(c, ctx, 0)
}

// propertySig returns the property type and its index parameter types.
func (l *loader) propertySig(blob []byte, ctx *sigContext) (methodSig, error) {
	c := cursor.New(blob)
	b, err := c.ReadByte()
	if err != nil {
		return methodSig{}, err
	}
	if b&sigKindMask != SigProperty {
		return methodSig{}, errors.Malformed(0, "property signature starts with 0x%02x", b)
	}
	// same shape as a method signature once the kind is checked
	_ = c.Seek(0)
	return l.methodSig(c, ctx, 0)
}

// typeSpec decodes the TypeSpec blob of row within ctx.
func (l *loader) typeSpec(row uint32, ctx *sigContext) (ir.TypeID, error) {
	r, err := l.md.Row(TableTypeSpec, row)
	if err != nil {
		return ir.NoType, err
	}
	blob, err := l.md.Blob(r[0])
	if err != nil {
		return ir.NoType, err
	}
	id, err := l.typeSig(cursor.New(blob), ctx, 0)
	if err != nil {
		return ir.NoType, err
	}
	l.log.Debug("type spec", zap.Uint32("row", row), zap.String("type", l.g.FullName(id)))
	return id, nil
}
