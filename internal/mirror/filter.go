package mirror

import (
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// Filter decides per-file upload eligibility: exclusion patterns for
// temporary/partial files, and a minimum-age guard so files still being
// written by the producer are left for a later tick.
type Filter struct {
	patterns *ignore.GitIgnore
	minAge   time.Duration

	// now is injectable for age-filter tests.
	now func() time.Time
}

// NewFilter compiles the gitignore-style exclusion patterns.
func NewFilter(patterns []string, minAge time.Duration) *Filter {
	return &Filter{
		patterns: ignore.CompileIgnoreLines(patterns...),
		minAge:   minAge,
		now:      time.Now,
	}
}

// SkipReason explains why a file was skipped this tick.
type SkipReason string

const (
	// SkipNone means the file is upload-eligible.
	SkipNone SkipReason = ""
	// SkipExcluded means the file matched an exclusion pattern. Permanent:
	// the file will never upload while it matches.
	SkipExcluded SkipReason = "excluded"
	// SkipTooYoung means the file is below the minimum age. Transient: a
	// later tick will pick it up once it settles.
	SkipTooYoung SkipReason = "too_young"
)

// Check evaluates one file. relPath is relative to the mapping's local root.
func (f *Filter) Check(relPath string, modTime time.Time) SkipReason {
	if f.patterns.MatchesPath(relPath) {
		return SkipExcluded
	}

	if f.now().Sub(modTime) < f.minAge {
		return SkipTooYoung
	}

	return SkipNone
}
