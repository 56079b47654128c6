package store

import (
	"fmt"
	"sort"
)

// Db is a handle on one namespace for one invocation. Reads go to the
// working set first and pull from the shared cache on a miss, one requested
// path at a time. Writes only touch the working set until Commit.
//
// A Db is not safe for concurrent use.
type Db struct {
	lf     *leaf
	prefix []string
	ws     *workset
}

type workset struct {
	root      map[string]any
	scalar    any
	scalarSet bool
}

func (w *workset) reset() {
	w.root = map[string]any{}
	w.scalar = nil
	w.scalarSet = false
}

func newDb(lf *leaf) *Db {
	ws := &workset{}
	ws.reset()
	return &Db{lf: lf, ws: ws}
}

// Namespace is the dotted path of the namespace.
func (d *Db) Namespace() string {
	return d.lf.name
}

// Arity is the number of keys still needed to address a value.
func (d *Db) Arity() int {
	return d.lf.arity - len(d.prefix)
}

func (d *Db) full(keys []string) []string {
	if len(d.prefix) == 0 {
		return keys
	}
	out := make([]string, 0, len(d.prefix)+len(keys))
	out = append(out, d.prefix...)
	return append(out, keys...)
}

func (d *Db) checkArity(keys []string, exact bool) error {
	want := d.Arity()
	if exact && len(keys) != want {
		return fmt.Errorf("%w: %s wants %d keys, got %d", ErrArity, d.lf.name, want, len(keys))
	}
	if !exact && len(keys) > want {
		return fmt.Errorf("%w: %s wants at most %d keys, got %d", ErrArity, d.lf.name, want, len(keys))
	}
	return nil
}

// Sub returns a view below keys sharing this handle's working set.
func (d *Db) Sub(keys ...string) (*Db, error) {
	if len(keys) >= d.Arity() {
		return nil, fmt.Errorf("%w: %s: sub view needs fewer than %d keys", ErrArity, d.lf.name, d.Arity())
	}
	return &Db{lf: d.lf, prefix: d.full(keys), ws: d.ws}, nil
}

// Get returns the value addressed by keys.
func (d *Db) Get(keys ...string) (any, bool, error) {
	if err := d.checkArity(keys, true); err != nil {
		return nil, false, err
	}
	return d.get(d.full(keys))
}

func (d *Db) get(full []string) (any, bool, error) {
	if len(full) == 0 {
		if d.ws.scalarSet {
			return d.ws.scalar, true, nil
		}
		d.lf.mu.Lock()
		defer d.lf.mu.Unlock()
		if !d.lf.hasValue {
			return nil, false, nil
		}
		v, err := d.lf.decl.clone(d.lf.cache)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s: %v", ErrCorruptStore, d.lf.name, err)
		}
		d.ws.scalar, d.ws.scalarSet = v, true
		return v, true, nil
	}

	if node := walk(d.ws.root, full[:len(full)-1]); node != nil {
		if v, ok := node[full[len(full)-1]]; ok {
			return v, true, nil
		}
	}

	d.lf.mu.Lock()
	defer d.lf.mu.Unlock()
	cache, _ := d.lf.cache.(map[string]any)
	node := walk(cache, full[:len(full)-1])
	if node == nil {
		return nil, false, nil
	}
	cv, ok := node[full[len(full)-1]]
	if !ok {
		return nil, false, nil
	}
	v, err := d.lf.decl.clone(cv)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrCorruptStore, d.lf.name, err)
	}
	d.put(full, v)
	return v, true, nil
}

// GetOrInsert returns the value at keys, creating it with factory when absent.
// A nil factory falls back to the namespace default.
func (d *Db) GetOrInsert(factory func() any, keys ...string) (any, error) {
	if err := d.checkArity(keys, true); err != nil {
		return nil, err
	}
	full := d.full(keys)
	v, ok, err := d.get(full)
	if err != nil || ok {
		return v, err
	}
	if factory == nil {
		factory = d.lf.decl.Default
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: %s has no default", ErrInvalidScope, d.lf.name)
	}
	v = factory()
	d.put(full, v)
	return v, nil
}

// Set stores value at keys in the working set.
func (d *Db) Set(value any, keys ...string) error {
	if err := d.checkArity(keys, true); err != nil {
		return err
	}
	d.put(d.full(keys), value)
	return nil
}

func (d *Db) put(full []string, value any) {
	if len(full) == 0 {
		d.ws.scalar, d.ws.scalarSet = value, true
		return
	}
	node := d.ws.root
	for _, k := range full[:len(full)-1] {
		child, ok := node[k].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[k] = child
		}
		node = child
	}
	node[full[len(full)-1]] = value
}

// Has reports whether a value or subtree exists at keys.
func (d *Db) Has(keys ...string) (bool, error) {
	if err := d.checkArity(keys, false); err != nil {
		return false, err
	}
	full := d.full(keys)
	if len(full) == 0 && d.lf.arity == 0 {
		if d.ws.scalarSet {
			return true, nil
		}
		d.lf.mu.Lock()
		defer d.lf.mu.Unlock()
		return d.lf.hasValue, nil
	}
	if exists(d.ws.root, full) {
		return true, nil
	}
	d.lf.mu.Lock()
	defer d.lf.mu.Unlock()
	cache, _ := d.lf.cache.(map[string]any)
	return exists(cache, full), nil
}

// Keys lists the child keys below prefix, sorted.
func (d *Db) Keys(prefix ...string) ([]string, error) {
	if len(prefix) >= d.Arity() {
		return nil, fmt.Errorf("%w: %s: keys needs fewer than %d keys", ErrArity, d.lf.name, d.Arity())
	}
	full := d.full(prefix)
	seen := map[string]struct{}{}
	for k := range walk(d.ws.root, full) {
		seen[k] = struct{}{}
	}
	d.lf.mu.Lock()
	cache, _ := d.lf.cache.(map[string]any)
	for k := range walk(cache, full) {
		seen[k] = struct{}{}
	}
	d.lf.mu.Unlock()
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func walk(node map[string]any, keys []string) map[string]any {
	for _, k := range keys {
		if node == nil {
			return nil
		}
		node, _ = node[k].(map[string]any)
	}
	return node
}

func exists(node map[string]any, keys []string) bool {
	if len(keys) == 0 {
		return node != nil
	}
	parent := walk(node, keys[:len(keys)-1])
	if parent == nil {
		return false
	}
	_, ok := parent[keys[len(keys)-1]]
	return ok
}
