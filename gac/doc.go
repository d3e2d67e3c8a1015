// Package gac locates referenced assemblies.
//
// A Reference is the identity recorded in an AssemblyRef row. A Resolver
// maps it to a file; DirResolver probes a list of search directories for
// <name>.dll and then <name>.exe. The platform's installed-assembly
// registry is not consulted.
package gac
