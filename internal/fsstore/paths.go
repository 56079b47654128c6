package fsstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func normalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}

// ExpandHome resolves a leading "~" against the current user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

// JoinSegments builds a file path below root from registry path segments.
// Segments must be non-empty and must not escape root.
func JoinSegments(root string, segments []string, ext string) (string, error) {
	root, err := normalizePath(root)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: no path segments", ErrInvalidPath)
	}
	parts := make([]string, 0, len(segments)+1)
	parts = append(parts, root)
	for i, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" || seg == "." || seg == ".." || strings.ContainsAny(seg, `/\`) {
			return "", fmt.Errorf("%w: bad segment %q", ErrInvalidPath, segments[i])
		}
		if i == len(segments)-1 {
			seg += ext
		}
		parts = append(parts, seg)
	}
	return filepath.Join(parts...), nil
}
