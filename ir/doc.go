// Package ir is the intermediate representation produced from module metadata.
//
// Types and members live in a Graph arena and refer to each other through
// TypeID and MemberID handles, so the type/member back-references never form
// ownership cycles. Method bodies are trees of Statement and Expression
// values; each is a closed set of concrete node types that passes switch
// over exhaustively.
//
// A Graph is built once per analysis session. Passes mutate it in place and
// may add nodes; nothing is removed. A Graph is not safe for concurrent
// mutation: callers serialize writers, and concurrent readers must not race
// with lazy member materialization (see MemberProvider).
package ir
