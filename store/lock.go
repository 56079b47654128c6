package store

import (
	"context"
	"sync"
)

// lockTable hands out per-path FIFO locks. Waiters are served strictly in
// arrival order; a path entry disappears once nobody holds or waits for it.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*fifoLock
}

type fifoLock struct {
	held  bool
	queue []*ticket
}

type ticket struct {
	table   *lockTable
	path    string
	ready   chan struct{}
	release sync.Once
}

func newLockTable() *lockTable {
	return &lockTable{locks: map[string]*fifoLock{}}
}

// Acquire waits for the lock on path. The returned func releases it.
func (t *lockTable) Acquire(ctx context.Context, path string) (func(), error) {
	tk := t.enqueue(path)
	if err := tk.wait(ctx); err != nil {
		return nil, err
	}
	return tk.Release, nil
}

// enqueue takes a place in line without blocking. Callers that must keep
// ordering with other state enqueue while holding that state's mutex.
func (t *lockTable) enqueue(path string) *ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := t.locks[path]
	if l == nil {
		l = &fifoLock{}
		t.locks[path] = l
	}
	tk := &ticket{table: t, path: path, ready: make(chan struct{})}
	if !l.held {
		l.held = true
		close(tk.ready)
	} else {
		l.queue = append(l.queue, tk)
	}
	return tk
}

func (tk *ticket) wait(ctx context.Context) error {
	select {
	case <-tk.ready:
		return nil
	case <-ctx.Done():
	}
	t := tk.table
	t.mu.Lock()
	select {
	case <-tk.ready:
		// Granted while cancelling; pass it on.
		t.mu.Unlock()
		tk.Release()
		return ctx.Err()
	default:
	}
	if l := t.locks[tk.path]; l != nil {
		for i, q := range l.queue {
			if q == tk {
				l.queue = append(l.queue[:i], l.queue[i+1:]...)
				break
			}
		}
	}
	t.mu.Unlock()
	return ctx.Err()
}

// Release hands the lock to the oldest waiter. Extra calls are ignored.
func (tk *ticket) Release() {
	tk.release.Do(func() {
		t := tk.table
		t.mu.Lock()
		defer t.mu.Unlock()
		l := t.locks[tk.path]
		if l == nil {
			return
		}
		if len(l.queue) > 0 {
			next := l.queue[0]
			l.queue = l.queue[1:]
			close(next.ready)
			return
		}
		delete(t.locks, tk.path)
	})
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
