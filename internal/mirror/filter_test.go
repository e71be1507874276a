package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testExcludes = []string{"*.tmp", "*.partial", "~*", ".DS_Store"}

func newTestFilter(t *testing.T, minAge time.Duration) *Filter {
	t.Helper()

	return NewFilter(testExcludes, minAge)
}

func TestFilter_ExcludesPartialAndTempFiles(t *testing.T) {
	f := newTestFilter(t, 0)
	old := time.Now().Add(-time.Hour)

	assert.Equal(t, SkipExcluded, f.Check("img2.png.partial", old))
	assert.Equal(t, SkipExcluded, f.Check("render.tmp", old))
	assert.Equal(t, SkipExcluded, f.Check("~lockfile", old))
	assert.Equal(t, SkipExcluded, f.Check(".DS_Store", old))
	assert.Equal(t, SkipNone, f.Check("img1.png", old))
}

func TestFilter_ExcludesInSubdirectories(t *testing.T) {
	f := newTestFilter(t, 0)
	old := time.Now().Add(-time.Hour)

	assert.Equal(t, SkipExcluded, f.Check("batch7/frame.tmp", old))
	assert.Equal(t, SkipNone, f.Check("batch7/frame.png", old))
}

func TestFilter_AgeThreshold(t *testing.T) {
	f := newTestFilter(t, 30*time.Second)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.now = func() time.Time { return now }

	// A file written just now is not upload-eligible.
	assert.Equal(t, SkipTooYoung, f.Check("img.png", now))

	// Aged 45s, threshold 30s: eligible.
	assert.Equal(t, SkipNone, f.Check("img.png", now.Add(-45*time.Second)))

	// Exactly at the threshold: eligible.
	assert.Equal(t, SkipNone, f.Check("img.png", now.Add(-30*time.Second)))
}

func TestFilter_SameFileBecomesEligibleAsClockAdvances(t *testing.T) {
	f := newTestFilter(t, 30*time.Second)

	written := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := written

	f.now = func() time.Time { return now }
	assert.Equal(t, SkipTooYoung, f.Check("img.png", written))

	now = written.Add(31 * time.Second)
	assert.Equal(t, SkipNone, f.Check("img.png", written))
}

func TestFilter_ExclusionBeatsAge(t *testing.T) {
	f := newTestFilter(t, 30*time.Second)

	// A partial file is excluded regardless of age.
	assert.Equal(t, SkipExcluded, f.Check("old.partial", time.Now().Add(-time.Hour)))
}
