// Package verify holds the post-migration consistency check. It is exposed
// standalone so counts can be spot-checked outside a full run.
package verify

import "fmt"

// Result compares an expected record count against an actual one.
type Result struct {
	Expected int64
	Actual   int64
}

// Compare returns the result of checking actual against expected.
func Compare(expected, actual int64) Result {
	return Result{Expected: expected, Actual: actual}
}

// Match reports whether the counts agree.
func (r Result) Match() bool {
	return r.Expected == r.Actual
}

// Delta is actual minus expected; zero on a match.
func (r Result) Delta() int64 {
	return r.Actual - r.Expected
}

func (r Result) String() string {
	if r.Match() {
		return fmt.Sprintf("match (%d records)", r.Actual)
	}
	return fmt.Sprintf("mismatch: expected %d, got %d (delta %+d)", r.Expected, r.Actual, r.Delta())
}
