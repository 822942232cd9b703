// internal/correlate/correlate.go
package correlate

import (
	"slices"
	"sort"

	"delivery-insights/internal/model"
	"delivery-insights/internal/ticketkey"
)

// BranchRef identifies a branch across repositories.
type BranchRef struct {
	Repo string
	Name string
}

// Bundle is the work done under one ticket key in one repository during a run.
// It is rebuilt on every run and never persisted.
type Bundle struct {
	TicketKey string
	Repo      string

	commits  []model.CommitRecord
	shas     map[string]struct{}
	branches map[string]struct{}
	authors  map[string]struct{}
}

func newBundle(key, repo string) *Bundle {
	return &Bundle{
		TicketKey: key,
		Repo:      repo,
		shas:      make(map[string]struct{}),
		branches:  make(map[string]struct{}),
		authors:   make(map[string]struct{}),
	}
}

func (b *Bundle) add(c model.CommitRecord) {
	b.branches[c.Branch] = struct{}{}
	b.authors[authorIdentity(c)] = struct{}{}
	if _, ok := b.shas[c.SHA]; ok {
		return
	}
	b.shas[c.SHA] = struct{}{}
	b.commits = append(b.commits, c)
}

// Commits returns the bundle's commits, unique by sha, oldest first.
func (b *Bundle) Commits() []model.CommitRecord {
	out := slices.Clone(b.commits)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// CommitSHAs returns the sorted sha set of the bundle.
func (b *Bundle) CommitSHAs() []string {
	return sortedKeys(b.shas)
}

// Branches returns every branch the bundle's commits were observed on.
func (b *Bundle) Branches() []string {
	return sortedKeys(b.branches)
}

// Authors returns every author identity that contributed to the bundle.
func (b *Bundle) Authors() []string {
	return sortedKeys(b.authors)
}

// IsOrphan reports whether the bundle is keyed by a branch rather than a real ticket.
func (b *Bundle) IsOrphan() bool {
	return ticketkey.IsOrphan(b.TicketKey)
}

// Groups maps ticket key to repository to bundle.
type Groups map[string]map[string]*Bundle

// Keys returns the ticket keys in deterministic order.
func (g Groups) Keys() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// GroupCommitsByTicket files every scanned commit under each ticket key it resolves to.
// The resolution is the union of the key bound to the commit's branch and every key parsed
// from its message. Commits that resolve to nothing are filed under the branch's orphan key.
// A commit can therefore land in several bundles, but appears at most once per bundle.
func GroupCommitsByTicket(scans []model.ScanResult, branchTickets map[BranchRef]string) Groups {
	groups := make(Groups)
	for _, scan := range scans {
		for _, c := range scan.Commits {
			repo := c.Repo
			if repo == "" {
				repo = scan.Repo
			}
			for _, key := range resolveKeys(repo, c, branchTickets) {
				byRepo, ok := groups[key]
				if !ok {
					byRepo = make(map[string]*Bundle)
					groups[key] = byRepo
				}
				bundle, ok := byRepo[repo]
				if !ok {
					bundle = newBundle(key, repo)
					byRepo[repo] = bundle
				}
				bundle.add(c)
			}
		}
	}
	return groups
}

func resolveKeys(repo string, c model.CommitRecord, branchTickets map[BranchRef]string) []string {
	var keys []string
	seen := make(map[string]struct{})
	addKey := func(k string) {
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}

	addKey(branchTickets[BranchRef{Repo: repo, Name: c.Branch}])
	for _, k := range c.TicketKeys {
		addKey(k)
	}
	if len(keys) == 0 {
		keys = append(keys, ticketkey.Orphan(c.Branch))
	}
	return keys
}

func authorIdentity(c model.CommitRecord) string {
	if c.AuthorEmail != "" {
		return c.AuthorEmail
	}
	return c.AuthorName
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
