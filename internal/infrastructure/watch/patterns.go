package watch

import "path/filepath"

// PatternFilter accepts paths by glob. Patterns are matched against both
// the base name and the full path; excludes win over includes.
type PatternFilter struct {
	Include []string
	Exclude []string
}

// NewPatternFilter creates a filter. An empty include list accepts everything
// not excluded.
func NewPatternFilter(include, exclude []string) *PatternFilter {
	return &PatternFilter{Include: include, Exclude: exclude}
}

// TodoFilter accepts the per-task JSON files of a todo session and ignores
// temporary files left by atomic writes.
func TodoFilter() *PatternFilter {
	return NewPatternFilter([]string{"*.json"}, []string{".*", "*.tmp"})
}

// Matches reports whether path passes the filter.
func (f *PatternFilter) Matches(path string) bool {
	base := filepath.Base(path)
	for _, p := range f.Exclude {
		if match(p, base, path) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, p := range f.Include {
		if match(p, base, path) {
			return true
		}
	}
	return false
}

func match(pattern, base, path string) bool {
	if ok, _ := filepath.Match(pattern, base); ok {
		return true
	}
	ok, _ := filepath.Match(pattern, filepath.ToSlash(path))
	return ok
}
