// Package scanner enumerates candidate audio files under a directory tree.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions are the file types scanned when none are configured.
func DefaultExtensions() []string {
	return []string{".wav", ".mp3", ".flac", ".aif", ".m4a"}
}

type Logger interface {
	Debugf(format string, args ...any)
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Warnf(string, ...any)  {}

type Scanner struct {
	exts    map[string]struct{}
	log     Logger
	confine bool
}

type Option func(*Scanner)

// ConfineLinks skips file symlinks whose target lies outside the scan root.
func ConfineLinks() Option {
	return func(s *Scanner) {
		s.confine = true
	}
}

// New builds a scanner for the given extensions, matched case-insensitively.
// A leading dot is optional. An empty list means DefaultExtensions.
func New(exts []string, log Logger, opts ...Option) *Scanner {
	if len(exts) == 0 {
		exts = DefaultExtensions()
	}
	if log == nil {
		log = nopLogger{}
	}

	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		if ext = normalizeExt(ext); ext != "" {
			set[ext] = struct{}{}
		}
	}
	s := &Scanner{exts: set, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Extensions returns the configured extensions in sorted order.
func (s *Scanner) Extensions() []string {
	out := make([]string, 0, len(s.exts))
	for ext := range s.exts {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Match reports whether path has one of the scanned extensions.
func (s *Scanner) Match(path string) bool {
	_, ok := s.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan walks root recursively in lexical order and returns every matching
// regular file. A missing or unreadable root yields an empty result and
// unreadable subdirectories are skipped. Cancellation stops the walk and
// returns what was found so far.
func (s *Scanner) Scan(ctx context.Context, root string) []string {
	out := []string{}

	var realRoot string
	if s.confine {
		realRoot = resolveRoot(root)
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if d == nil || path == root {
				s.log.Warnf("Cannot read directory %s: %v", path, err)
				return filepath.SkipDir
			}
			s.log.Warnf("Skipping %s: %v", path, err)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		link := d.Type()&fs.ModeSymlink != 0
		if !d.Type().IsRegular() && !link {
			return nil
		}
		if !s.Match(path) {
			return nil
		}
		if link && s.confine && !within(realRoot, path) {
			s.log.Warnf("Skipping %s: link target is outside %s", path, root)
			return nil
		}
		out = append(out, path)
		return nil
	})
	if err != nil {
		s.log.Debugf("Scan of %s stopped early: %v", root, err)
	}

	s.log.Debugf("Found %d audio files in %s", len(out), root)
	return out
}

func resolveRoot(root string) string {
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		return resolved
	}
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return root
}

// within reports whether the link at path resolves into realRoot. Dangling
// links count as outside.
func within(realRoot, path string) bool {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(realRoot, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
