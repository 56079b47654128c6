package store

import "strings"

// Scope is the per-invocation view returned by Open. It mirrors the registry
// subtree it was opened on: a leaf scope carries a Db, an inner scope carries
// child scopes.
type Scope struct {
	path     []string
	db       *Db
	children map[string]*Scope
}

func newScope(n *node) *Scope {
	s := &Scope{path: append([]string(nil), n.path...)}
	if n.leaf != nil {
		s.db = newDb(n.leaf)
		return s
	}
	s.children = make(map[string]*Scope, len(n.children))
	for name, child := range n.children {
		s.children[name] = newScope(child)
	}
	return s
}

func (s *Scope) Path() []string {
	return append([]string(nil), s.path...)
}

func (s *Scope) Name() string {
	return strings.Join(s.path, ".")
}

func (s *Scope) IsLeaf() bool {
	return s.db != nil
}

// DB is the handle of a leaf scope, nil for inner scopes.
func (s *Scope) DB() *Db {
	return s.db
}

// Child returns the named child of an inner scope, or nil.
func (s *Scope) Child(name string) *Scope {
	if s == nil || s.children == nil {
		return nil
	}
	return s.children[name]
}

// Lookup walks names below s and returns the leaf handle found there, or nil.
func (s *Scope) Lookup(names ...string) *Db {
	cur := s
	for _, name := range names {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	if cur == nil {
		return nil
	}
	return cur.db
}

func (s *Scope) Names() []string {
	return sortedKeys(s.children)
}

func (s *Scope) each(fn func(*Db)) {
	if s.db != nil {
		fn(s.db)
		return
	}
	for _, name := range sortedKeys(s.children) {
		s.children[name].each(fn)
	}
}
