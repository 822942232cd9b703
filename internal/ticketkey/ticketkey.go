// internal/ticketkey/ticketkey.go
package ticketkey

import (
	"regexp"
	"strings"
)

// OrphanPrefix marks the pseudo ticket key used for commits that reference no ticket.
const OrphanPrefix = "branch:"

var (
	branchPattern  = regexp.MustCompile(`[A-Za-z][A-Za-z0-9]*-([0-9]+)`)
	messagePattern = regexp.MustCompile(`\b[A-Z][A-Z0-9]*-([0-9]+)\b`)
)

// FromBranch returns the first ticket key embedded in a branch name, upper-cased.
// Keys whose numeric part is all zeros (X-0, X-00) are skipped.
func FromBranch(branch string) (string, bool) {
	for _, m := range branchPattern.FindAllStringSubmatch(branch, -1) {
		if allZero(m[1]) {
			continue
		}
		return strings.ToUpper(m[0]), true
	}
	return "", false
}

// FromMessage returns every distinct ticket key referenced in a commit message, in order of appearance.
func FromMessage(message string) []string {
	var keys []string
	seen := make(map[string]struct{})
	for _, m := range messagePattern.FindAllStringSubmatch(message, -1) {
		if allZero(m[1]) {
			continue
		}
		if _, ok := seen[m[0]]; ok {
			continue
		}
		seen[m[0]] = struct{}{}
		keys = append(keys, m[0])
	}
	return keys
}

// Orphan builds the pseudo key for a branch without any ticket reference.
func Orphan(branch string) string {
	return OrphanPrefix + branch
}

// IsOrphan reports whether key is an orphan pseudo key rather than a real ticket.
func IsOrphan(key string) bool {
	return strings.HasPrefix(key, OrphanPrefix)
}

func allZero(digits string) bool {
	return strings.Trim(digits, "0") == ""
}
