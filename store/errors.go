package store

import "errors"

var (
	// ErrInvalidScope reports a malformed declaration or a path that does not
	// resolve in the registry. It is a programmer error and fatal at startup.
	ErrInvalidScope = errors.New("store: invalid scope")
	// ErrCorruptStore reports on-disk data that cannot be decoded. The leaf
	// stays unusable for the life of the process.
	ErrCorruptStore = errors.New("store: corrupt store")
	// ErrArity reports a key count that does not match the namespace arity.
	ErrArity = errors.New("store: wrong number of keys")
	// ErrTypeMismatch reports a stored value that is not of the requested type.
	ErrTypeMismatch = errors.New("store: type mismatch")
	// ErrWriteFailed wraps background persistence failures. Those writes are
	// logged and dropped.
	ErrWriteFailed = errors.New("store: write failed")
)
