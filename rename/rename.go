// Package rename implements the attribute rename transform applied to
// records as they are replayed from a snapshot into the new tables.
package rename

import (
	"github.com/lockbox-app/lockbox-migrate/resources"
)

// Transform applies the rules to a record and returns the transformed copy.
// It is a pure function: the input record is never mutated.
//
// For each rule, in order: if the record contains the legacy attribute, the
// value is moved to the canonical attribute and the legacy attribute is
// removed. A record that already contains the canonical attribute is never
// regressed; if both names are somehow present, the canonical value wins and
// the legacy one is dropped. Transform is idempotent, and with an empty rule
// set it is the identity.
func Transform(rules []resources.RenameRule, rec resources.Record) resources.Record {
	if len(rules) == 0 {
		return rec
	}
	out := rec.Copy()
	for _, rule := range rules {
		legacy, ok := out[rule.Legacy]
		if !ok {
			continue
		}
		if _, exists := out[rule.Canonical]; !exists {
			out[rule.Canonical] = legacy
		}
		delete(out, rule.Legacy)
	}
	return out
}

// NeedsTransform reports whether any rule's legacy attribute is present in
// the record. Used for progress accounting; Transform itself is safe to call
// unconditionally.
func NeedsTransform(rules []resources.RenameRule, rec resources.Record) bool {
	for _, rule := range rules {
		if _, ok := rec[rule.Legacy]; ok {
			return true
		}
	}
	return false
}
