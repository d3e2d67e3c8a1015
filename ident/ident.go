// Package ident interns names so that equal text always maps to one key.
package ident

import "sync"

// Identifier is an interned name. Two identifiers are equal when their keys
// are equal; a table never hands out two keys for the same text.
type Identifier struct {
	text string
	key  uint32
}

// Empty is the zero identifier, used for unnamed nodes.
var Empty Identifier

// Key returns the stable integer key.
func (id Identifier) Key() uint32 { return id.key }

// String returns the interned text.
func (id Identifier) String() string { return id.text }

// IsEmpty reports whether id is the zero identifier.
func (id Identifier) IsEmpty() bool { return id.key == 0 }

// Equal compares by key.
func (id Identifier) Equal(other Identifier) bool { return id.key == other.key }

// Table is a concurrency-safe intern table. Key 0 is reserved for Empty.
type Table struct {
	byText map[string]uint32
	texts  []string
	mu     sync.RWMutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		byText: map[string]uint32{"": 0},
		texts:  []string{""},
	}
}

// Intern returns the identifier for s, allocating a key on first use.
func (t *Table) Intern(s string) Identifier {
	t.mu.RLock()
	key, ok := t.byText[s]
	var text string
	if ok {
		text = t.texts[key]
	}
	t.mu.RUnlock()
	if ok {
		return Identifier{text: text, key: key}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if key, ok := t.byText[s]; ok {
		return Identifier{text: t.texts[key], key: key}
	}
	key = uint32(len(t.texts))
	t.texts = append(t.texts, s)
	t.byText[s] = key
	return Identifier{text: s, key: key}
}

// Lookup returns the identifier for s without interning it.
func (t *Table) Lookup(s string) (Identifier, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	key, ok := t.byText[s]
	if !ok {
		return Empty, false
	}
	return Identifier{text: t.texts[key], key: key}, true
}

// Len returns the number of interned names, excluding Empty.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.texts) - 1
}

// Default is the process-wide table used when no table is supplied.
var Default = NewTable()

// Intern interns s in Default.
func Intern(s string) Identifier {
	return Default.Intern(s)
}
