package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Decl declares one namespace: a named, independently persisted key/value
// scope addressed by a fixed number of keys.
type Decl struct {
	Name string
	// KeyNames names the key levels; when set its length is the arity.
	KeyNames []string
	// Keys is the arity when KeyNames is empty.
	Keys int
	// Default materializes a missing value for GetOrInsert without a factory.
	Default func() any
	// Decode maps one raw on-disk leaf to its in-memory value.
	Decode func(raw json.RawMessage) (any, error)
	// Encode maps an in-memory value to a JSON-marshalable one.
	Encode func(v any) (any, error)
}

func (d Decl) Arity() int {
	if len(d.KeyNames) > 0 {
		return len(d.KeyNames)
	}
	return d.Keys
}

func (d Decl) validate() error {
	name := strings.TrimSpace(d.Name)
	if name == "" || name != d.Name {
		return fmt.Errorf("%w: namespace name %q", ErrInvalidScope, d.Name)
	}
	if err := validateSegment(name); err != nil {
		return err
	}
	if d.Keys < 0 {
		return fmt.Errorf("%w: namespace %s: negative arity %d", ErrInvalidScope, name, d.Keys)
	}
	return nil
}

func (d Decl) decode(raw json.RawMessage) (any, error) {
	if d.Decode != nil {
		return d.Decode(raw)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func (d Decl) encode(v any) (any, error) {
	if d.Encode != nil {
		return d.Encode(v)
	}
	return v, nil
}

// clone copies a value through the codec so the copy shares no memory with
// the original.
func (d Decl) clone(v any) (any, error) {
	enc, err := d.encode(v)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(enc)
	if err != nil {
		return nil, err
	}
	return d.decode(raw)
}

// Declare builds a namespace whose values decode into T. keyNames gives the
// arity; def may be nil.
func Declare[T any](name string, def func() T, keyNames ...string) Decl {
	d := Decl{
		Name:     name,
		KeyNames: append([]string(nil), keyNames...),
		Decode: func(raw json.RawMessage) (any, error) {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
	if def != nil {
		d.Default = func() any { return def() }
	}
	return d
}

// Tree is a namespace declaration tree: inner nodes map names to subtrees,
// leaves hold one Decl.
type Tree interface {
	isTree()
}

type innerTree map[string]Tree

type leafTree struct {
	decl Decl
}

func (innerTree) isTree() {}
func (leafTree) isTree()  {}

func Inner(children map[string]Tree) Tree {
	out := make(innerTree, len(children))
	for k, v := range children {
		out[k] = v
	}
	return out
}

func Leaf(d Decl) Tree {
	return leafTree{decl: d}
}

// Namespaces groups declarations under their own names, the shape one plugin
// contributes below its plugin name.
func Namespaces(decls ...Decl) Tree {
	out := make(innerTree, len(decls))
	for _, d := range decls {
		out[d.Name] = leafTree{decl: d}
	}
	return out
}

// ParsePath splits a dotted scope path such as "pick.members".
func ParsePath(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

func validateSegment(seg string) error {
	if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, "./\\ \t\n") {
		return fmt.Errorf("%w: bad path segment %q", ErrInvalidScope, seg)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
