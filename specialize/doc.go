// Package specialize substitutes template arguments for template parameters
// throughout an IR subgraph.
//
// A Specializer is built from an ordered parameter list and an equal-length
// argument list. SpecializeTypeReference and SpecializeMember rewrite
// references; structural types are rebuilt only when a component changed,
// so specializing with args equal to pars returns every node unchanged.
//
// Instantiate creates (or returns the memoized) instantiation of a generic
// definition. Member lists of instances are copied from the template with
// their signatures specialized; templates whose members have not been
// materialized yet get a deferred provider so unvisited members never load.
//
//	inst, err := specialize.Instantiate(g, listDef, []ir.TypeID{sys.Int32}, module)
//
// Instance members carry signatures only; bodies stay with the definition and
// can be rewritten on demand with VisitBody.
package specialize
