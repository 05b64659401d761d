package source

import "github.com/bmatcuk/doublestar/v4"

// IdentityFilter decides which item identities a source tracks.
// Patterns use doublestar globs matched against the raw identity, so a
// source limited to e.g. "https://example.org/docs/**" ignores the rest
// of the site even when the origin lists it.
type IdentityFilter struct {
	include []string
	exclude []string
}

// NewIdentityFilter builds a filter from include/exclude patterns. An
// empty include list admits everything not excluded.
func NewIdentityFilter(include, exclude []string) *IdentityFilter {
	return &IdentityFilter{include: include, exclude: exclude}
}

// Match reports whether an identity should be tracked.
func (f *IdentityFilter) Match(identity string) bool {
	for _, pat := range f.exclude {
		if ok, err := doublestar.Match(pat, identity); err == nil && ok {
			return false
		}
	}
	if len(f.include) == 0 {
		return true
	}
	for _, pat := range f.include {
		if ok, err := doublestar.Match(pat, identity); err == nil && ok {
			return true
		}
	}
	return false
}
