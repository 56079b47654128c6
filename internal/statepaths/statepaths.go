package statepaths

import (
	"path/filepath"
	"strings"

	"github.com/quailyquaily/plugbot/internal/fsstore"
	"github.com/spf13/viper"
)

const (
	defaultDataDir    = "~/.plugbot/data"
	localesDirName    = "locales"
	defaultConfigName = "config.yaml"
)

// DataDir is where the store keeps one JSON file per namespace.
func DataDir() string {
	return resolveDir(viper.GetString("data_dir"), defaultDataDir)
}

// LocalesDir falls back to a "locales" directory next to the data dir.
func LocalesDir() string {
	fallback := filepath.Join(filepath.Dir(DataDir()), localesDirName)
	return resolveDir(viper.GetString("locales_dir"), fallback)
}

// ConfigPath is where `plugbot init` writes the example config when no
// --config flag is given.
func ConfigPath() string {
	if used := strings.TrimSpace(viper.ConfigFileUsed()); used != "" {
		return used
	}
	return filepath.Join(filepath.Dir(DataDir()), defaultConfigName)
}

func resolveDir(raw string, fallback string) string {
	dir := strings.TrimSpace(raw)
	if dir == "" {
		dir = fallback
	}
	return filepath.Clean(fsstore.ExpandHome(dir))
}
