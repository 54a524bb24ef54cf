// Package affinity computes shared affinity between two members. Pure
// functions only; the coordinator decides when results are persisted.
package affinity

import (
	pstrings "linknet/pkg/platform/strings"
)

// SharedIndustries returns the intersection of the two industry-tag sets.
// Both inputs are normalized (trimmed, lowercased, deduplicated) before
// comparison; the result preserves the first set's order. Empty input yields
// an empty, non-nil slice so the wire payload serializes as [] rather than
// null.
func SharedIndustries(tagsA, tagsB []string) []string {
	a := pstrings.DedupeAndTrimLower(tagsA)
	b := pstrings.DedupeAndTrimLower(tagsB)

	shared := make([]string, 0, min(len(a), len(b)))
	if len(a) == 0 || len(b) == 0 {
		return shared
	}

	inB := make(map[string]struct{}, len(b))
	for _, tag := range b {
		inB[tag] = struct{}{}
	}
	for _, tag := range a {
		if _, ok := inB[tag]; ok {
			shared = append(shared, tag)
		}
	}
	return shared
}
