package store

import (
	"fmt"
	"strings"
	"sync"
)

// Registry is the namespace declaration tree shared by every plugin. The
// tree only grows: Register inserts new top-level subtrees.
type Registry struct {
	mu   sync.RWMutex
	root *node
}

type node struct {
	name     string
	path     []string
	children map[string]*node
	leaf     *leaf
}

func NewRegistry() *Registry {
	return &Registry{root: &node{children: map[string]*node{}}}
}

// Register merges tree into the registry at the top level. The tree must be
// inner and its top-level names must not already exist.
func (r *Registry) Register(tree Tree) error {
	inner, ok := tree.(innerTree)
	if !ok {
		return fmt.Errorf("%w: registry root must be an inner node", ErrInvalidScope)
	}
	built := make(map[string]*node, len(inner))
	for _, name := range sortedKeys(inner) {
		n, err := buildNode(inner[name], name, []string{name})
		if err != nil {
			return err
		}
		built[name] = n
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range built {
		if _, exists := r.root.children[name]; exists {
			return fmt.Errorf("%w: %s already registered", ErrInvalidScope, name)
		}
	}
	for name, n := range built {
		r.root.children[name] = n
	}
	return nil
}

func buildNode(t Tree, name string, path []string) (*node, error) {
	if err := validateSegment(name); err != nil {
		return nil, err
	}
	switch v := t.(type) {
	case leafTree:
		if err := v.decl.validate(); err != nil {
			return nil, err
		}
		return &node{name: name, path: path, leaf: newLeaf(v.decl, path)}, nil
	case innerTree:
		n := &node{name: name, path: path, children: make(map[string]*node, len(v))}
		for _, childName := range sortedKeys(v) {
			childPath := append(append([]string(nil), path...), childName)
			child, err := buildNode(v[childName], childName, childPath)
			if err != nil {
				return nil, err
			}
			n.children[childName] = child
		}
		return n, nil
	case nil:
		return nil, fmt.Errorf("%w: nil tree at %s", ErrInvalidScope, strings.Join(path, "."))
	default:
		return nil, fmt.Errorf("%w: unknown tree node %T", ErrInvalidScope, t)
	}
}

// Entry describes one resolved registry node.
type Entry struct {
	Path     []string
	Leaf     bool
	Decl     Decl
	Children []string
}

// Resolve walks path from the root. A leaf may only be the last component.
func (r *Registry) Resolve(path ...string) (Entry, error) {
	n, err := r.lookup(path...)
	if err != nil {
		return Entry{}, err
	}
	e := Entry{Path: append([]string(nil), n.path...), Leaf: n.leaf != nil}
	if n.leaf != nil {
		e.Decl = n.leaf.decl
	} else {
		e.Children = sortedKeys(n.children)
	}
	return e, nil
}

func (r *Registry) lookup(path ...string) (*node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur := r.root
	for i, seg := range path {
		if cur.leaf != nil {
			return nil, fmt.Errorf("%w: %s is a leaf", ErrInvalidScope, strings.Join(path[:i], "."))
		}
		next, ok := cur.children[seg]
		if !ok {
			return nil, fmt.Errorf("%w: %s not registered", ErrInvalidScope, strings.Join(path[:i+1], "."))
		}
		cur = next
	}
	return cur, nil
}

// Has reports whether path resolves.
func (r *Registry) Has(path ...string) bool {
	_, err := r.lookup(path...)
	return err == nil
}

// Namespaces lists the dotted paths of every declared leaf, sorted.
func (r *Registry) Namespaces() []string {
	var out []string
	for _, lf := range r.leaves() {
		out = append(out, strings.Join(lf.path, "."))
	}
	return out
}

func (r *Registry) leaves() []*leaf {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*leaf
	var walk func(n *node)
	walk = func(n *node) {
		if n.leaf != nil {
			out = append(out, n.leaf)
			return
		}
		for _, name := range sortedKeys(n.children) {
			walk(n.children[name])
		}
	}
	walk(r.root)
	return out
}

func (n *node) leaves() []*leaf {
	if n.leaf != nil {
		return []*leaf{n.leaf}
	}
	var out []*leaf
	for _, name := range sortedKeys(n.children) {
		out = append(out, n.children[name].leaves()...)
	}
	return out
}

// leaf is the runtime state of one declared namespace. mu guards everything
// below it.
type leaf struct {
	decl  Decl
	arity int
	path  []string
	name  string

	mu       sync.Mutex
	loaded   bool
	loadErr  error
	cache    any
	hasValue bool
	pending  int
}

func newLeaf(d Decl, path []string) *leaf {
	return &leaf{
		decl:  d,
		arity: d.Arity(),
		path:  path,
		name:  strings.Join(path, "."),
	}
}
