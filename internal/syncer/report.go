// internal/syncer/report.go
package syncer

import (
	"github.com/google/uuid"

	"delivery-insights/internal/summary"
)

// Failure is a ticket whose summary could not be advanced in this run.
type Failure struct {
	TicketKey string
	Repo      string
	Err       error
}

// RepoReport is the outcome of one repository pass.
type RepoReport struct {
	Repo         string
	RunID        uuid.UUID
	NewCommits   int
	NewBranches  []string
	GoneBranches []string
	PullRequests int
	Failures     []Failure
	Err          error
}

func (r *RepoReport) failureCount() int {
	n := len(r.Failures)
	if r.Err != nil {
		n++
	}
	return n
}

// Report is the outcome of one cycle.
type Report struct {
	Repos     []*RepoReport
	Summaries map[summary.Mode]int
	Orphans   int
	Failures  []Failure
}

func newReport() *Report {
	return &Report{Summaries: make(map[summary.Mode]int)}
}

func (r *Report) repo(name string) *RepoReport {
	for _, rr := range r.Repos {
		if rr.Repo == name {
			return rr
		}
	}
	return nil
}

func (r *Report) fail(f Failure) {
	r.Failures = append(r.Failures, f)
	if rr := r.repo(f.Repo); rr != nil {
		rr.Failures = append(rr.Failures, f)
	}
}
