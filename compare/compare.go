// Package compare checks that two count distributions agree.
package compare

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/oqtopus-team/bitorder/result"
	"github.com/stretchr/testify/assert"
)

func unionKeys(a, b result.Counts) []string {
	keys := make([]string, 0, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// DictAlmostEqual reports whether every key differs by at most delta.
// Keys missing on one side count as 0. The message lists the offending keys
// in sorted order and is empty when the counts agree.
func DictAlmostEqual(a, b result.Counts, delta float64) (string, bool) {
	var diffs []string
	for _, k := range unionKeys(a, b) {
		if math.Abs(float64(a[k]-b[k])) > delta {
			diffs = append(diffs, fmt.Sprintf("('%s': %d != %d)", k, a[k], b[k]))
		}
	}
	if len(diffs) == 0 {
		return "", true
	}
	return fmt.Sprintf("%s within %s delta", strings.Join(diffs, ", "), formatDelta(delta)), false
}

func formatDelta(d float64) string {
	if d == math.Trunc(d) {
		return fmt.Sprintf("%d", int64(d))
	}
	return fmt.Sprintf("%g", d)
}

// AssertCountsAlmostEqual fails t when DictAlmostEqual does not hold.
func AssertCountsAlmostEqual(t assert.TestingT, a, b result.Counts, delta float64, msgAndArgs ...interface{}) bool {
	if h, ok := t.(interface{ Helper() }); ok {
		h.Helper()
	}
	msg, ok := DictAlmostEqual(a, b, delta)
	if ok {
		return true
	}
	return assert.Fail(t, msg, msgAndArgs...)
}

// TotalVariationDistance is half the L1 distance of the normalized counts.
// Two empty distributions are at distance 0.
func TotalVariationDistance(a, b result.Counts) float64 {
	na, nb := float64(a.Shots()), float64(b.Shots())
	if na == 0 && nb == 0 {
		return 0
	}
	if na == 0 || nb == 0 {
		return 1
	}
	sum := 0.0
	for _, k := range unionKeys(a, b) {
		sum += math.Abs(float64(a[k])/na - float64(b[k])/nb)
	}
	return sum / 2
}
