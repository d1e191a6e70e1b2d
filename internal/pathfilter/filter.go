// Package pathfilter decides which repository paths are noise (build
// artifacts, dependency directories, VCS internals) and should be excluded
// from tree and diff results.
package pathfilter

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultPatterns is the stock deny list. Plain tokens match an exact path
// segment, dot-prefixed tokens additionally match as a lowercased path
// suffix, and tokens containing wildcards are glob-matched against the path
// and its base name.
var DefaultPatterns = []string{
	// dependency and build output directories
	"node_modules", "vendor/bundle", "bower_components",
	"dist", "build", "bin", "obj", "out", "target",
	// VCS internals
	".git", ".svn", ".hg",
	// caches and virtual envs
	"__pycache__", ".pytest_cache", ".mypy_cache", ".ruff_cache",
	".cache", ".tox", ".gradle",
	"venv", ".venv", "virtualenv",
	// IDE and OS metadata
	".idea", ".vscode", ".ds_store", "thumbs.db", "desktop.ini",
	// compiled and archive extensions
	".pyc", ".pyo", ".so", ".dll", ".exe", ".dylib", ".class",
	".jar", ".war", ".zip", ".tar", ".gz", ".rar", ".7z",
	// packaging metadata
	"*.egg-info",
}

// Filter holds a compiled deny-pattern set. The zero value ignores nothing;
// use New.
type Filter struct {
	segments map[string]struct{}
	suffixes []string
	globs    []string
}

// New builds a Filter from the given deny patterns. Matching is
// case-insensitive. Passing nil uses DefaultPatterns.
func New(patterns []string) *Filter {
	if patterns == nil {
		patterns = DefaultPatterns
	}
	f := &Filter{segments: make(map[string]struct{}, len(patterns))}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if strings.ContainsAny(p, "*?[") {
			f.globs = append(f.globs, p)
			continue
		}
		f.segments[p] = struct{}{}
		// Only extension-style tokens double as suffixes; a plain "bin"
		// must not swallow paths like "src/robin".
		if strings.HasPrefix(p, ".") {
			f.suffixes = append(f.suffixes, p)
		}
	}
	return f
}

// ShouldIgnore reports whether the given repository path matches the deny
// list. A path is ignored when any path segment exactly equals a token, the
// lowercased path ends with a dot-prefixed token, or a wildcard token
// glob-matches the path or its base name.
func (f *Filter) ShouldIgnore(p string) bool {
	lower := strings.ToLower(strings.Trim(p, "/"))
	if lower == "" {
		return false
	}
	for _, seg := range strings.Split(lower, "/") {
		if _, ok := f.segments[seg]; ok {
			return true
		}
	}
	for _, suffix := range f.suffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	base := path.Base(lower)
	for _, glob := range f.globs {
		if ok, _ := doublestar.Match(glob, lower); ok {
			return true
		}
		if ok, _ := doublestar.Match(glob, base); ok {
			return true
		}
	}
	return false
}
