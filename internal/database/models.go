// internal/database/models.go
package database

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

type ScanRun struct {
	ID           pgtype.UUID        `db:"id" json:"id"`
	Repo         string             `db:"repo" json:"repo"`
	StartedAt    time.Time          `db:"started_at" json:"started_at"`
	FinishedAt   pgtype.Timestamptz `db:"finished_at" json:"finished_at"`
	NewCommits   int32              `db:"new_commits" json:"new_commits"`
	GoneBranches int32              `db:"gone_branches" json:"gone_branches"`
	Failures     int32              `db:"failures" json:"failures"`
}

type Commit struct {
	Sha          string      `db:"sha" json:"sha"`
	ShortSha     string      `db:"short_sha" json:"short_sha"`
	Repo         string      `db:"repo" json:"repo"`
	Branch       string      `db:"branch" json:"branch"`
	AuthorName   string      `db:"author_name" json:"author_name"`
	AuthorEmail  string      `db:"author_email" json:"author_email"`
	Message      string      `db:"message" json:"message"`
	CommittedAt  time.Time   `db:"committed_at" json:"committed_at"`
	FilesChanged int32       `db:"files_changed" json:"files_changed"`
	Insertions   int32       `db:"insertions" json:"insertions"`
	Deletions    int32       `db:"deletions" json:"deletions"`
	DiffSummary  pgtype.Text `db:"diff_summary" json:"diff_summary"`
	TicketKeys   []string    `db:"ticket_keys" json:"ticket_keys"`
	RunID        pgtype.UUID `db:"run_id" json:"run_id"`
	DBCreatedAt  time.Time   `db:"db_created_at" json:"db_created_at"`
}

type Branch struct {
	Repo                  string      `db:"repo" json:"repo"`
	Name                  string      `db:"name" json:"name"`
	Remote                string      `db:"remote" json:"remote"`
	IsActive              bool        `db:"is_active" json:"is_active"`
	FirstSeen             time.Time   `db:"first_seen" json:"first_seen"`
	LastSeen              time.Time   `db:"last_seen" json:"last_seen"`
	LastCommitSha         string      `db:"last_commit_sha" json:"last_commit_sha"`
	LastCommitDate        time.Time   `db:"last_commit_date" json:"last_commit_date"`
	LastCommitAuthorEmail string      `db:"last_commit_author_email" json:"last_commit_author_email"`
	LastCommitMessage     string      `db:"last_commit_message" json:"last_commit_message"`
	TicketKey             pgtype.Text `db:"ticket_key" json:"ticket_key"`
	PullRequest           []byte      `db:"pull_request" json:"pull_request,omitempty"`
}

type Ticket struct {
	JiraKey     string    `db:"jira_key" json:"jira_key"`
	Summary     string    `db:"summary" json:"summary"`
	Description string    `db:"description" json:"description"`
	Status      string    `db:"status" json:"status"`
	Assignee    string    `db:"assignee" json:"assignee"`
	Priority    string    `db:"priority" json:"priority"`
	IssueType   string    `db:"issue_type" json:"issue_type"`
	ParentKey   string    `db:"parent_key" json:"parent_key"`
	Subtasks    []string  `db:"subtasks" json:"subtasks"`
	Labels      []string  `db:"labels" json:"labels"`
	Comments    string    `db:"comments" json:"comments"`
	FetchedAt   time.Time `db:"fetched_at" json:"fetched_at"`
}

type TicketStatusChange struct {
	ID         int64     `db:"id" json:"id"`
	JiraKey    string    `db:"jira_key" json:"jira_key"`
	ChangedAt  time.Time `db:"changed_at" json:"changed_at"`
	FromStatus string    `db:"from_status" json:"from_status"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	Actor      string    `db:"actor" json:"actor"`
}

type TicketSummary struct {
	ID          int64       `db:"id" json:"id"`
	JiraKey     string      `db:"jira_key" json:"jira_key"`
	Repo        string      `db:"repo" json:"repo"`
	SummaryText string      `db:"summary_text" json:"summary_text"`
	CommitShas  string      `db:"commit_shas" json:"commit_shas"`
	PreviousID  pgtype.Int8 `db:"previous_id" json:"previous_id"`
	RunID       pgtype.UUID `db:"run_id" json:"run_id"`
	Generation  string      `db:"generation" json:"generation"`
	SessionID   pgtype.Text `db:"session_id" json:"session_id"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

type PullRequest struct {
	ID                int64              `db:"id" json:"id"`
	Repo              string             `db:"repo" json:"repo"`
	ExternalID        int64              `db:"external_id" json:"external_id"`
	Title             string             `db:"title" json:"title"`
	State             string             `db:"state" json:"state"`
	Author            string             `db:"author" json:"author"`
	Url               string             `db:"url" json:"url"`
	SourceBranch      string             `db:"source_branch" json:"source_branch"`
	TargetBranch      string             `db:"target_branch" json:"target_branch"`
	Reviewers         []string           `db:"reviewers" json:"reviewers"`
	Approvals         int32              `db:"approvals" json:"approvals"`
	PrCreatedAt       time.Time          `db:"pr_created_at" json:"pr_created_at"`
	PrUpdatedAt       time.Time          `db:"pr_updated_at" json:"pr_updated_at"`
	PrClosedAt        pgtype.Timestamptz `db:"pr_closed_at" json:"pr_closed_at"`
	TimeToFirstReview pgtype.Int4        `db:"time_to_first_review" json:"time_to_first_review"`
	TimeToMerge       pgtype.Int4        `db:"time_to_merge" json:"time_to_merge"`
	ReviewRounds      int32              `db:"review_rounds" json:"review_rounds"`
	MetricsComputedAt pgtype.Timestamptz `db:"metrics_computed_at" json:"metrics_computed_at"`
}

type PrActivity struct {
	ID            int64       `db:"id" json:"id"`
	PullRequestID int64       `db:"pull_request_id" json:"pull_request_id"`
	EventType     string      `db:"event_type" json:"event_type"`
	Actor         string      `db:"actor" json:"actor"`
	OccurredAt    time.Time   `db:"occurred_at" json:"occurred_at"`
	NewState      pgtype.Text `db:"new_state" json:"new_state"`
	CommentText   pgtype.Text `db:"comment_text" json:"comment_text"`
	CommitHash    pgtype.Text `db:"commit_hash" json:"commit_hash"`
}

type Sprint struct {
	ID         string    `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	StartDate  time.Time `db:"start_date" json:"start_date"`
	EndDate    time.Time `db:"end_date" json:"end_date"`
	TicketKeys []string  `db:"ticket_keys" json:"ticket_keys"`
}
