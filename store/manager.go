package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/plugbot/internal/fsstore"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// Dir is the data directory; namespace files live at <Dir>/<path>.json.
	Dir string
	// WriteBatchSize is how many commits a namespace accumulates before it is
	// written. Values below 1 mean 1.
	WriteBatchSize int
	Logger         *slog.Logger
	FileOptions    fsstore.FileOptions
}

// Manager owns the namespace caches and coordinates their persistence.
type Manager struct {
	reg      *Registry
	dir      string
	batch    int
	logger   *slog.Logger
	fileOpts fsstore.FileOptions
	locks    *lockTable

	txMu   sync.Mutex
	txN    int
	txIdle chan struct{}
}

func NewManager(reg *Registry, opts Options) *Manager {
	if reg == nil {
		reg = NewRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := opts.WriteBatchSize
	if batch < 1 {
		batch = 1
	}
	return &Manager{
		reg:      reg,
		dir:      fsstore.ExpandHome(strings.TrimSpace(opts.Dir)),
		batch:    batch,
		logger:   logger,
		fileOpts: opts.FileOptions,
		locks:    newLockTable(),
	}
}

func (m *Manager) Registry() *Registry {
	return m.reg
}

func (m *Manager) Register(tree Tree) error {
	return m.reg.Register(tree)
}

func (m *Manager) Dir() string {
	return m.dir
}

// FilePath is the file a namespace persists to.
func (m *Manager) FilePath(path ...string) (string, error) {
	return fsstore.JoinSegments(m.dir, path, ".json")
}

// Open resolves path and returns a fresh working set over it. Every leaf
// below path is loaded before Open returns.
func (m *Manager) Open(ctx context.Context, path ...string) (*Scope, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	n, err := m.reg.lookup(path...)
	if err != nil {
		return nil, err
	}
	if n == m.reg.root {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidScope)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, lf := range n.leaves() {
		lf := lf
		g.Go(func() error {
			return m.load(gctx, lf)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return newScope(n), nil
}

func (m *Manager) load(ctx context.Context, lf *leaf) error {
	lf.mu.Lock()
	if lf.loaded {
		err := lf.loadErr
		lf.mu.Unlock()
		return err
	}
	lf.mu.Unlock()

	file, err := m.FilePath(lf.path...)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	release, err := m.locks.Acquire(ctx, file)
	if err != nil {
		return err
	}
	defer release()

	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.loaded {
		return lf.loadErr
	}
	raw, ok, err := fsstore.ReadRaw(file)
	if err != nil {
		return fmt.Errorf("store: load %s: %w", lf.name, err)
	}
	lf.loaded = true
	if !ok {
		if lf.arity > 0 {
			lf.cache = map[string]any{}
		}
		return nil
	}
	v, err := decodeTree(lf.decl, lf.arity, raw)
	if err != nil {
		lf.loadErr = fmt.Errorf("%w: %s: %v", ErrCorruptStore, file, err)
		lf.cache = nil
		m.logger.Error("store_load_corrupt", "namespace", lf.name, "path", file, "error", err.Error())
		return lf.loadErr
	}
	lf.cache = v
	lf.hasValue = v != nil
	return nil
}

func decodeTree(d Decl, depth int, raw json.RawMessage) (any, error) {
	if depth == 0 {
		if isNull(raw) {
			return nil, nil
		}
		return d.decode(raw)
	}
	var level map[string]json.RawMessage
	if err := json.Unmarshal(raw, &level); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(level))
	for k, child := range level {
		if depth == 1 && isNull(child) {
			continue
		}
		v, err := decodeTree(d, depth-1, child)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = v
	}
	return out, nil
}

func encodeTree(d Decl, depth int, v any) (any, error) {
	if depth == 0 {
		return d.encode(v)
	}
	level, ok := v.(map[string]any)
	if !ok {
		if v == nil {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("expected object level, got %T", v)
	}
	out := make(map[string]any, len(level))
	for k, child := range level {
		enc, err := encodeTree(d, depth-1, child)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// Commit merges every working set in scope into its cache and schedules the
// writes that are due. The scope's working sets are emptied; the scope stays
// usable.
func (m *Manager) Commit(s *Scope) {
	if s == nil {
		return
	}
	s.each(m.commitLeaf)
}

func (m *Manager) commitLeaf(d *Db) {
	lf := d.lf
	lf.mu.Lock()
	defer lf.mu.Unlock()
	if lf.loadErr != nil || !lf.loaded {
		return
	}
	ws := d.ws
	if lf.arity == 0 {
		if !ws.scalarSet {
			return
		}
		lf.cache = ws.scalar
		lf.hasValue = true
	} else {
		if len(ws.root) == 0 {
			return
		}
		base, _ := lf.cache.(map[string]any)
		lf.cache = mergeDepth(lf.arity, base, ws.root)
	}
	ws.reset()
	commitsTotal.WithLabelValues(lf.name).Inc()
	lf.pending++
	if lf.pending >= m.batch {
		m.scheduleWriteLocked(lf)
	}
}

// scheduleWriteLocked snapshots the cache and queues its write. lf.mu must be
// held so queue order matches snapshot order.
func (m *Manager) scheduleWriteLocked(lf *leaf) {
	lf.pending = 0
	snapshot := lf.cache
	file, err := m.FilePath(lf.path...)
	if err != nil {
		m.logger.Warn("store_write_failed", "namespace", lf.name, "error", err.Error())
		writesTotal.WithLabelValues("error").Inc()
		return
	}
	tk := m.locks.enqueue(file)
	m.track(func() {
		defer tk.Release()
		_ = tk.wait(context.Background())
		m.write(lf, file, snapshot)
	})
}

func (m *Manager) write(lf *leaf, file string, snapshot any) {
	start := time.Now()
	err := func() error {
		enc, err := encodeTree(lf.decl, lf.arity, snapshot)
		if err != nil {
			return fmt.Errorf("%w: encode %s: %v", ErrWriteFailed, lf.name, err)
		}
		if err := fsstore.WriteJSONAtomic(file, enc, m.fileOpts); err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, err)
		}
		return nil
	}()
	writeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		writesTotal.WithLabelValues("error").Inc()
		m.logger.Warn("store_write_failed", "namespace", lf.name, "path", file, "error", err.Error())
		return
	}
	writesTotal.WithLabelValues("ok").Inc()
	m.logger.Debug("store_write_done", "namespace", lf.name, "path", file, "took", time.Since(start))
}

func (m *Manager) track(fn func()) {
	m.txMu.Lock()
	if m.txN == 0 {
		m.txIdle = make(chan struct{})
	}
	m.txN++
	m.txMu.Unlock()
	pendingWrites.Inc()
	go func() {
		defer m.untrack()
		fn()
	}()
}

func (m *Manager) untrack() {
	pendingWrites.Dec()
	m.txMu.Lock()
	defer m.txMu.Unlock()
	m.txN--
	if m.txN == 0 {
		close(m.txIdle)
	}
}

// Pending is the number of writes still in flight.
func (m *Manager) Pending() int {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return m.txN
}

// Drain waits until no write is in flight.
func (m *Manager) Drain(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		m.txMu.Lock()
		if m.txN == 0 {
			m.txMu.Unlock()
			return nil
		}
		idle := m.txIdle
		m.txMu.Unlock()
		select {
		case <-idle:
		case <-ctx.Done():
			return fmt.Errorf("store: drain: %w", ctx.Err())
		}
	}
}

// Flush writes namespaces holding commits that batching has not written
// yet, then drains.
func (m *Manager) Flush(ctx context.Context) error {
	for _, lf := range m.reg.leaves() {
		lf.mu.Lock()
		if lf.loaded && lf.loadErr == nil && lf.pending > 0 {
			m.scheduleWriteLocked(lf)
		}
		lf.mu.Unlock()
	}
	return m.Drain(ctx)
}
