package ir

import (
	"fmt"
	"io"
	"strings"
)

// FullName renders a type the way listings show it.
func (g *Graph) FullName(id TypeID) string {
	var b strings.Builder
	g.writeName(&b, id)
	return b.String()
}

func (g *Graph) writeName(b *strings.Builder, id TypeID) {
	t := g.Type(id)
	if t == nil {
		b.WriteString("<none>")
		return
	}
	switch t.Kind {
	case KindArray:
		g.writeName(b, t.ElementType)
		b.WriteByte('[')
		b.WriteString(strings.Repeat(",", t.Rank-1))
		b.WriteByte(']')
	case KindPointer:
		g.writeName(b, t.ElementType)
		b.WriteByte('*')
	case KindReference:
		g.writeName(b, t.ElementType)
		b.WriteByte('&')
	case KindOptionalModifier, KindRequiredModifier:
		g.writeName(b, t.ElementType)
		b.WriteByte(' ')
		b.WriteString(t.Kind.String())
		b.WriteByte('(')
		g.writeName(b, t.Modifier)
		b.WriteByte(')')
	case KindFunctionPointer:
		b.WriteString("method ")
		g.writeName(b, t.ReturnType)
		b.WriteByte('(')
		for i, p := range t.ParameterTypes {
			if i > 0 {
				b.WriteByte(',')
			}
			g.writeName(b, p)
		}
		b.WriteByte(')')
	case KindTypeParameter, KindClassParameter:
		b.WriteString(t.Name.String())
	default:
		if t.IsTemplateInstance() {
			g.writeName(b, t.Template)
			b.WriteByte('<')
			for i, a := range t.TemplateArguments {
				if i > 0 {
					b.WriteByte(',')
				}
				g.writeName(b, a)
			}
			b.WriteByte('>')
			return
		}
		if t.DeclaringType.IsValid() {
			g.writeName(b, t.DeclaringType)
			b.WriteByte('+')
		} else if !t.Namespace.IsEmpty() {
			b.WriteString(t.Namespace.String())
			b.WriteByte('.')
		}
		b.WriteString(t.Name.String())
	}
}

// Dump writes a type header line followed by one line per member.
func Dump(w io.Writer, g *Graph, id TypeID) error {
	t := g.Type(id)
	if t == nil {
		return fmt.Errorf("type %d not in graph", id)
	}

	var b strings.Builder
	b.WriteString(t.Kind.String())
	b.WriteByte(' ')
	b.WriteString(g.FullName(id))
	if t.BaseType.IsValid() {
		b.WriteString(" : ")
		b.WriteString(g.FullName(t.BaseType))
	}
	for i, iface := range t.Interfaces {
		if i == 0 && !t.BaseType.IsValid() {
			b.WriteString(" : ")
		} else {
			b.WriteString(", ")
		}
		b.WriteString(g.FullName(iface))
	}
	b.WriteByte('\n')

	members, err := g.MembersOf(id)
	if err != nil {
		return err
	}
	for _, mid := range members {
		m := g.Member(mid)
		if m == nil {
			continue
		}
		b.WriteString("  ")
		b.WriteString(m.Kind.String())
		b.WriteByte(' ')
		switch m.Kind {
		case MemberMethod:
			b.WriteString(m.Name.String())
			b.WriteByte('(')
			for i, p := range m.Parameters {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(p.Name.String())
				b.WriteString(" : ")
				b.WriteString(g.FullName(p.Type))
			}
			b.WriteString(") : ")
			b.WriteString(g.FullName(m.ReturnType))
		case MemberNestedType:
			b.WriteString(g.FullName(m.Type))
		default:
			b.WriteString(m.Name.String())
			b.WriteString(" : ")
			b.WriteString(g.FullName(m.Type))
		}
		b.WriteByte('\n')
	}

	_, err = io.WriteString(w, b.String())
	return err
}
