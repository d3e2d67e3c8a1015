// Package metadata reads CLI metadata: the metadata root and its heaps, the
// table stream, and the signature blobs that describe types and members.
//
// Parse takes the raw metadata root; OpenFile and ReadImage first locate it
// inside a PE image through the CLI header.
//
//	md, err := metadata.Open("Demo.dll")
//	if err != nil {
//		return err
//	}
//	mod, err := metadata.Load(md, g, sys)
//
// Load turns the tables into an ir.Module. Type headers (base type,
// interfaces, generic parameters, nesting) are built eagerly; fields,
// methods, properties, events and nested type members are decoded the
// first time the graph asks for a type's member list.
//
// Heap and table reads borrow the buffer given to Parse. The caller must
// keep it unmodified while the Metadata or a loaded module is in use.
package metadata
