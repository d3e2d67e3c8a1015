// Package clireader reads ECMA-335 (CLI) metadata from .NET assemblies into
// an in-memory type graph and normalizes it for documentation tooling.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	clireader/
//	├── errors/            Structured error types (phase, kind, offset, path)
//	├── ident/             Identifier intern table
//	├── ir/                Type/member graph, method bodies, system types
//	├── metadata/          Metadata root, heaps, tables, signatures, loader, PE location
//	│   └── internal/cursor/  Little-endian binary cursor and compressed integers
//	├── specialize/        Generic template instantiation and type substitution
//	├── unstack/           Block sorting and evaluation stack elimination
//	├── gac/               Assembly references and directory probing
//	└── cmd/ildump/        Command line reader with an interactive browser
//
// # Quick Start
//
// Load an assembly and print one of its types:
//
//	md, err := metadata.Open("Demo.dll")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	g := ir.NewGraph(nil)
//	sys := ir.NewSystemTypes(g, "")
//	mod, err := metadata.Load(md, g, sys)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, id := range mod.Types {
//	    ir.Dump(os.Stdout, g, id)
//	}
//
// Members are decoded the first time they are asked for. Generic types used
// in signatures are instantiated through specialize.Instantiate and memoized
// per module.
//
// # Thread Safety
//
// A Graph and everything loaded into it belong to one goroutine. Loading
// separate assemblies into separate graphs in parallel is safe. The
// identifier table and gac.DirResolver are safe for concurrent use.
//
// # Errors
//
// Every failure is an *errors.Error carrying the phase that failed and a
// kind. Decoding never panics on malformed input: bounds failures of the
// cursor surface as malformed_metadata errors.
package clireader
