package store

import "fmt"

// Table is a typed view over a Db whose values are all T.
type Table[T any] struct {
	db *Db
}

func TableOf[T any](db *Db) Table[T] {
	return Table[T]{db: db}
}

func (t Table[T]) DB() *Db {
	return t.db
}

func (t Table[T]) Get(keys ...string) (T, bool, error) {
	var zero T
	v, ok, err := t.db.Get(keys...)
	if err != nil || !ok {
		return zero, ok, err
	}
	tv, err := t.cast(v)
	return tv, err == nil, err
}

func (t Table[T]) GetOrInsert(factory func() T, keys ...string) (T, error) {
	var f func() any
	if factory != nil {
		f = func() any { return factory() }
	}
	v, err := t.db.GetOrInsert(f, keys...)
	if err != nil {
		var zero T
		return zero, err
	}
	return t.cast(v)
}

func (t Table[T]) Set(v T, keys ...string) error {
	return t.db.Set(v, keys...)
}

func (t Table[T]) Keys(prefix ...string) ([]string, error) {
	return t.db.Keys(prefix...)
}

func (t Table[T]) cast(v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	tv, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s holds %T", ErrTypeMismatch, t.db.Namespace(), v)
	}
	return tv, nil
}
