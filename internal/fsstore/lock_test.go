package fsstore

import (
	"context"
	"errors"
	"testing"
)

func TestWithLockRunsCriticalSection(t *testing.T) {
	t.Parallel()

	lockPath, err := DirLockPath(t.TempDir())
	if err != nil {
		t.Fatalf("DirLockPath() error = %v", err)
	}

	called := false
	err = WithLock(context.Background(), lockPath, func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithLock() error = %v", err)
	}
	if !called {
		t.Fatalf("WithLock() did not run critical section")
	}
}

func TestTryWithLockFailsWhileHeld(t *testing.T) {
	t.Parallel()

	lockPath, err := DirLockPath(t.TempDir())
	if err != nil {
		t.Fatalf("DirLockPath() error = %v", err)
	}

	err = WithLock(context.Background(), lockPath, func() error {
		return TryWithLock(context.Background(), lockPath, func() error {
			t.Fatalf("nested TryWithLock() ran critical section")
			return nil
		})
	})
	if !errors.Is(err, ErrLockHeld) {
		t.Fatalf("TryWithLock() error = %v, want ErrLockHeld", err)
	}
}
