package fsstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	dirLockName   = ".plugbot.lck"
	lockRetryWait = 25 * time.Millisecond
)

// DirLockPath returns the lock file guarding a state directory.
func DirLockPath(dir string) (string, error) {
	dir, err := normalizePath(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirLockName), nil
}

// WithLock runs fn while holding an exclusive OS lock on lockPath, waiting
// until the lock is free or ctx is done.
func WithLock(ctx context.Context, lockPath string, fn func() error) error {
	return withLock(ctx, lockPath, true, fn)
}

// TryWithLock is WithLock without waiting: it fails with ErrLockHeld when
// another process owns the lock.
func TryWithLock(ctx context.Context, lockPath string, fn func() error) error {
	return withLock(ctx, lockPath, false, fn)
}

func withLock(ctx context.Context, lockPath string, wait bool, fn func() error) error {
	normalizedPath, err := normalizePath(lockPath)
	if err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := EnsureDir(filepath.Dir(normalizedPath), defaultDirPerm); err != nil {
		return err
	}
	return withLockFile(ctx, normalizedPath, wait, fn)
}

func writeLockDebugMetadata(file *os.File, lockPath string) {
	if file == nil {
		return
	}
	host, _ := os.Hostname()
	payload := map[string]any{
		"lock_path":   lockPath,
		"pid":         os.Getpid(),
		"hostname":    host,
		"acquired_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_ = file.Truncate(0)
	_, _ = file.Seek(0, 0)
	_, _ = file.Write(data)
	_ = file.Sync()
}

func waitForLockRetry(ctx context.Context, lockPath string) error {
	timer := time.NewTimer(lockRetryWait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %v", ErrLockTimeout, lockPath, ctx.Err())
	case <-timer.C:
		return nil
	}
}
