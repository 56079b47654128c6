package logutil

import (
	"log/slog"
	"time"
)

// Region logs the start of a named block and returns a logger tagged with
// the region plus a func that logs its end. Use it with defer:
//
//	logger, end := logutil.Region(logger, "load_plugins")
//	defer end()
func Region(logger *slog.Logger, name string) (*slog.Logger, func()) {
	if logger == nil {
		logger = slog.Default()
	}
	scoped := logger.With("region", name)
	start := time.Now()
	scoped.Debug("region_begin")
	return scoped, func() {
		scoped.Debug("region_end", "took", time.Since(start))
	}
}
