package i18n

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/quailyquaily/plugbot/internal/fsstore"
	"gopkg.in/yaml.v3"
)

// YAMLRecorder appends every missing key once to a YAML file shaped like a
// locale file, ready to be filled in by a translator.
type YAMLRecorder struct {
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewYAMLRecorder(path string, logger *slog.Logger) *YAMLRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &YAMLRecorder{path: path, logger: logger, seen: map[string]struct{}{}}
	if raw, ok, err := fsstore.ReadRaw(path); err == nil && ok {
		var existing map[string]any
		if err := yaml.Unmarshal(raw, &existing); err != nil {
			logger.Warn("i18n_missing_file_unreadable", "path", path, "error", err.Error())
		}
		for k := range existing {
			r.seen[k] = struct{}{}
		}
	}
	return r
}

// RawFile is the default missing-key file of a locales directory.
func RawFile(dir string) string {
	return filepath.Join(dir, RawLocale+".yaml")
}

func (r *YAMLRecorder) RecordMissing(locale, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	if err := r.appendKey(key); err != nil {
		r.logger.Warn("i18n_missing_record_failed", "locale", locale, "key", key, "error", err.Error())
	}
}

func (r *YAMLRecorder) appendKey(key string) error {
	line, err := yaml.Marshal(map[string]*string{key: nil})
	if err != nil {
		return err
	}
	if err := fsstore.EnsureDir(filepath.Dir(r.path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open %s: %w", r.path, err)
	}
	defer f.Close()
	_, err = f.Write(line)
	return err
}

// Keys returns the keys recorded by this process.
func (r *YAMLRecorder) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.seen))
	for k := range r.seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
