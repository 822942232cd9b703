// internal/model/models.go
package model

import (
	"time"
)

// CommitRecord is one commit observed by a scan. It is immutable once stored.
type CommitRecord struct {
	SHA          string
	ShortSHA     string
	Repo         string
	Branch       string
	AuthorName   string
	AuthorEmail  string
	Message      string
	Timestamp    time.Time
	FilesChanged int
	Insertions   int
	Deletions    int
	DiffSummary  *string
	TicketKeys   []string
}

// BranchRecord is a branch as reported by the scan source.
type BranchRecord struct {
	Name                  string
	Remote                string
	LastCommitSHA         string
	LastCommitDate        time.Time
	LastCommitAuthorEmail string
	LastCommitMessage     string
}

// ScanResult is the raw output of one repository scan.
type ScanResult struct {
	Repo     string
	Branches []BranchRecord
	Commits  []CommitRecord
}

// PullRequestSnapshot is the subset of a pull request attached to the branch it was opened from.
type PullRequestSnapshot struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	State        string `json:"state"`
	URL          string `json:"url"`
	TargetBranch string `json:"target_branch"`
}

// Pull request states, following the code-review provider vocabulary.
const (
	PRStateOpen     = "OPEN"
	PRStateMerged   = "MERGED"
	PRStateDeclined = "DECLINED"
)

// PullRequest is a pull request as reported by the code-review provider.
type PullRequest struct {
	ExternalID   int64
	Repo         string
	Title        string
	State        string
	Author       string
	URL          string
	SourceBranch string
	TargetBranch string
	Reviewers    []string
	Approvals    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// ClosedAt is set for merged and declined pull requests.
	ClosedAt *time.Time
}

// Snapshot returns the subset attached to the pull request's source branch.
func (p PullRequest) Snapshot() PullRequestSnapshot {
	return PullRequestSnapshot{
		ID:           p.ExternalID,
		Title:        p.Title,
		State:        p.State,
		URL:          p.URL,
		TargetBranch: p.TargetBranch,
	}
}

// IsTerminal reports whether the pull request can no longer change state.
func (p PullRequest) IsTerminal() bool {
	return IsTerminalPRState(p.State)
}

// IsTerminalPRState reports whether state is merged or declined.
func IsTerminalPRState(state string) bool {
	return state == PRStateMerged || state == PRStateDeclined
}

// StatusChange is one transition in a ticket's status history.
type StatusChange struct {
	TicketKey  string
	ChangedAt  time.Time
	FromStatus string
	ToStatus   string
	Actor      string
}

// TicketComment is a comment on an issue-tracker ticket.
type TicketComment struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// Ticket is an issue-tracker ticket with its recent comments and status history.
type Ticket struct {
	Key           string
	Summary       string
	Description   string
	Status        string
	Assignee      string
	Priority      string
	Type          string
	ParentKey     string
	Subtasks      []string
	Labels        []string
	Comments      []TicketComment
	StatusChanges []StatusChange
}

// Sprint is a fixed set of tickets worked on between two dates.
type Sprint struct {
	ID         string
	Name       string
	StartDate  time.Time
	EndDate    time.Time
	TicketKeys []string
}
