package autoprint

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// WatchTarget selects the directory to watch and the files in it to print.
// It is immutable once built.
type WatchTarget struct {
	// Dir is the absolute path of the watched directory.
	Dir string

	// NamePattern must match the whole base name of a file.
	NamePattern *regexp.Regexp

	// MimeType, when not empty, must equal the file's content type.
	MimeType string
}

// NewWatchTarget compiles pattern so that it matches entire file names only.
func NewWatchTarget(dir, pattern, mimeType string) (WatchTarget, error) {
	if dir == "" {
		return WatchTarget{}, fmt.Errorf("watch directory is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return WatchTarget{}, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	if pattern == "" {
		return WatchTarget{}, fmt.Errorf("file name pattern is required")
	}
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return WatchTarget{}, fmt.Errorf("invalid file name pattern %q: %w", pattern, err)
	}

	return WatchTarget{
		Dir:         abs,
		NamePattern: re,
		MimeType:    strings.ToLower(strings.TrimSpace(mimeType)),
	}, nil
}

// MatchesName reports whether the base name of path matches the pattern.
func (t WatchTarget) MatchesName(path string) bool {
	return t.NamePattern.MatchString(filepath.Base(path))
}

// MatchesType reports whether contentType satisfies the MIME filter.
// Every type matches when no filter is configured.
func (t WatchTarget) MatchesType(contentType string) bool {
	return t.MimeType == "" || strings.EqualFold(t.MimeType, contentType)
}
