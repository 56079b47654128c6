package i18n

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/quailyquaily/plugbot/internal/fsstore"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownLocale = errors.New("i18n: unknown locale")
	ErrBadLocaleFile = errors.New("i18n: bad locale file")
)

var localeExts = []string{".json", ".yaml", ".yml"}

// Catalog caches one Engine per locale, loading <dir>/<locale>.{json,yaml,yml}
// on first use.
type Catalog struct {
	dir      string
	recorder MissingRecorder
	logger   *slog.Logger

	mu      sync.RWMutex
	engines map[string]*Engine
	flight  singleflight.Group
}

func NewCatalog(dir string, rec MissingRecorder, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{
		dir:      fsstore.ExpandHome(strings.TrimSpace(dir)),
		recorder: rec,
		logger:   logger,
		engines:  map[string]*Engine{RawLocale: Raw(rec)},
	}
}

func (c *Catalog) Dir() string {
	return c.dir
}

// Engine returns the cached engine for locale, loading it if needed.
// Concurrent first loads of one locale share a single read.
func (c *Catalog) Engine(locale string) (*Engine, error) {
	locale = strings.TrimSpace(locale)
	if err := validLocale(locale); err != nil {
		return nil, err
	}
	c.mu.RLock()
	e, ok := c.engines[locale]
	c.mu.RUnlock()
	if ok {
		return e, nil
	}

	v, err, _ := c.flight.Do(locale, func() (any, error) {
		c.mu.RLock()
		e, ok := c.engines[locale]
		c.mu.RUnlock()
		if ok {
			return e, nil
		}
		table, err := LoadTable(c.dir, locale)
		if err != nil {
			return nil, err
		}
		e = NewEngine(locale, table, c.recorder)
		c.mu.Lock()
		c.engines[locale] = e
		c.mu.Unlock()
		c.logger.Debug("i18n_locale_loaded", "locale", locale, "keys", len(table))
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Engine), nil
}

// Invalidate drops a cached locale so the next Engine call rereads it.
func (c *Catalog) Invalidate(locale string) {
	if locale == RawLocale {
		return
	}
	c.mu.Lock()
	delete(c.engines, locale)
	c.mu.Unlock()
	c.flight.Forget(locale)
}

// Available lists raw plus every locale file in the catalog directory.
func (c *Catalog) Available() ([]string, error) {
	seen := map[string]struct{}{RawLocale: {}}
	entries, err := os.ReadDir(c.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if locale, ok := localeOf(entry.Name()); ok {
			seen[locale] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for locale := range seen {
		out = append(out, locale)
	}
	sort.Strings(out)
	return out, nil
}

// Watch invalidates cached locales whose files change. It blocks until ctx
// is done.
func (c *Catalog) Watch(ctx context.Context) error {
	if err := fsstore.EnsureDir(c.dir, 0o700); err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(c.dir); err != nil {
		return fmt.Errorf("i18n: watch %s: %w", c.dir, err)
	}
	c.logger.Debug("i18n_watch_started", "dir", c.dir)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			c.handleEvent(event)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			c.logger.Warn("i18n_watch_error", "error", err.Error())
		case <-ctx.Done():
			return nil
		}
	}
}

func (c *Catalog) handleEvent(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) &&
		!event.Op.Has(fsnotify.Remove) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	locale, ok := localeOf(filepath.Base(event.Name))
	if !ok || locale == RawLocale {
		return
	}
	c.Invalidate(locale)
	c.logger.Info("i18n_locale_invalidated", "locale", locale, "op", event.Op.String())
}

// LoadTable reads the translation table of locale from dir.
func LoadTable(dir, locale string) (map[string]string, error) {
	if err := validLocale(locale); err != nil {
		return nil, err
	}
	if locale == RawLocale {
		return map[string]string{}, nil
	}
	for _, ext := range localeExts {
		path := filepath.Join(dir, locale+ext)
		raw, ok, err := fsstore.ReadRaw(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		table := map[string]string{}
		if ext == ".json" {
			err = json.Unmarshal(raw, &table)
		} else {
			err = yaml.Unmarshal(raw, &table)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadLocaleFile, path, err)
		}
		return table, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownLocale, locale)
}

func localeOf(name string) (string, bool) {
	for _, ext := range localeExts {
		if strings.HasSuffix(name, ext) {
			locale := strings.TrimSuffix(name, ext)
			return locale, validLocale(locale) == nil
		}
	}
	return "", false
}

func validLocale(locale string) error {
	if locale == "" || locale == "." || locale == ".." || strings.ContainsAny(locale, `/\ `) {
		return fmt.Errorf("%w: %q", ErrUnknownLocale, locale)
	}
	return nil
}
