// internal/summary/plan.go
package summary

import (
	"encoding/json"
	"slices"
	"time"
)

// DefaultStaleness is how long a chain head may be extended instead of regenerated.
const DefaultStaleness = 7 * 24 * time.Hour

// Mode is the action taken to advance a chain.
type Mode string

const (
	ModeReuse      Mode = "reuse"
	ModeExtend     Mode = "extend"
	ModeRegenerate Mode = "full"
)

// Head is the decoded latest record of a (ticket, repo) chain.
type Head struct {
	ID         int64
	Text       string
	CommitSHAs []string
	CreatedAt  time.Time
}

// Decision is the outcome of Plan.
type Decision struct {
	Mode Mode
	// NewSHAs are the current commits the head has not seen, in input order. Empty for ModeRegenerate.
	NewSHAs []string
	// CommitSHAs is the sorted sha set the new head will reference.
	CommitSHAs []string
}

// Plan decides how to advance a chain whose head is prev (nil when the chain is empty)
// given the commit shas currently bundled for the ticket.
func Plan(prev *Head, current []string, now time.Time, staleness time.Duration) Decision {
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	if prev == nil || now.Sub(prev.CreatedAt) > staleness {
		return Decision{Mode: ModeRegenerate, CommitSHAs: sortedUnique(current)}
	}

	known := make(map[string]struct{}, len(prev.CommitSHAs))
	for _, sha := range prev.CommitSHAs {
		known[sha] = struct{}{}
	}
	var fresh []string
	for _, sha := range current {
		if _, ok := known[sha]; ok {
			continue
		}
		known[sha] = struct{}{}
		fresh = append(fresh, sha)
	}

	all := sortedUnique(append(slices.Clone(prev.CommitSHAs), fresh...))
	if len(fresh) == 0 {
		return Decision{Mode: ModeReuse, CommitSHAs: all}
	}
	return Decision{Mode: ModeExtend, NewSHAs: fresh, CommitSHAs: all}
}

// DecodeSHAs parses a stored sha list. Corrupt or empty input yields an empty set.
func DecodeSHAs(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var shas []string
	if err := json.Unmarshal([]byte(raw), &shas); err != nil {
		return []string{}
	}
	return shas
}

// EncodeSHAs is the inverse of DecodeSHAs.
func EncodeSHAs(shas []string) string {
	if shas == nil {
		shas = []string{}
	}
	b, _ := json.Marshal(shas)
	return string(b)
}

func sortedUnique(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return slices.Compact(out)
}
