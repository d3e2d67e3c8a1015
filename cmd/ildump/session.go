package main

import (
	"github.com/EWSoftware/SHFB-sub006/errors"
	"github.com/EWSoftware/SHFB-sub006/ident"
	"github.com/EWSoftware/SHFB-sub006/ir"
	"github.com/EWSoftware/SHFB-sub006/metadata"
	"github.com/EWSoftware/SHFB-sub006/specialize"
)

// session is one loaded assembly and the graph it lives in.
type session struct {
	path     string
	md       *metadata.Metadata
	g        *ir.Graph
	sys      *ir.SystemTypes
	mod      *ir.Module
	specOpts []specialize.Option
}

func openSession(path string, generics bool) (*session, error) {
	md, err := metadata.Open(path)
	if err != nil {
		return nil, err
	}
	g := ir.NewGraph(ident.NewTable())
	sys := ir.NewSystemTypes(g, "")
	specOpts := []specialize.Option{specialize.WithGenericsTarget(generics)}
	mod, err := metadata.Load(md, g, sys, metadata.WithSpecializeOptions(specOpts...))
	if err != nil {
		return nil, err
	}
	return &session{path: path, md: md, g: g, sys: sys, mod: mod, specOpts: specOpts}, nil
}

// lookup finds a type by full name among the module's definitions, then
// the system types.
func (s *session) lookup(name string) (ir.TypeID, error) {
	for _, id := range s.mod.Types {
		if s.g.FullName(id) == name {
			return id, nil
		}
	}
	if id, ok := s.sys.Lookup(name); ok {
		return id, nil
	}
	return ir.NoType, errors.NotFound(errors.PhaseResolve, "type", name)
}

func (s *session) instantiate(template string, args []string) (ir.TypeID, error) {
	tid, err := s.lookup(template)
	if err != nil {
		return ir.NoType, err
	}
	ids := make([]ir.TypeID, len(args))
	for i, a := range args {
		if ids[i], err = s.lookup(a); err != nil {
			return ir.NoType, err
		}
	}
	return specialize.Instantiate(s.g, tid, ids, s.mod, s.specOpts...)
}

type typeEntry struct {
	id   ir.TypeID
	kind string
	name string
}

func (s *session) entries() []typeEntry {
	out := make([]typeEntry, 0, len(s.mod.Types))
	for _, id := range s.mod.Types {
		out = append(out, typeEntry{id: id, kind: s.g.Type(id).Kind.String(), name: s.g.FullName(id)})
	}
	return out
}
