// internal/review/metrics.go
package review

import (
	"math"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"delivery-insights/internal/database"
	"delivery-insights/internal/model"
)

// DefaultStaleness is how long cached metrics of an open pull request stay valid.
const DefaultStaleness = 30 * time.Minute

// Metrics are derived from the full activity log of one pull request. Durations are whole minutes.
type Metrics struct {
	TimeToFirstReview *int
	TimeToMerge       *int
	ReviewRounds      int
	Approvals         int
}

type roundState int

const (
	neutral roundState = iota
	awaitingFix
)

// Compute replays events in chronological order and derives the pull request's review metrics.
func Compute(pr model.PullRequest, events []Event) Metrics {
	ordered := slices.Clone(events)
	slices.SortStableFunc(ordered, func(a, b Event) int {
		return a.Meta().Timestamp.Compare(b.Meta().Timestamp)
	})

	var m Metrics
	state := neutral
	var mergedAt *time.Time
	for _, e := range ordered {
		meta := e.Meta()
		switch ev := e.(type) {
		case Approval, Comment:
			m.firstReview(pr, meta)
		case RequestChanges:
			m.firstReview(pr, meta)
			if state == neutral {
				state = awaitingFix
			}
		case Update:
			if state == awaitingFix {
				m.ReviewRounds++
				state = neutral
			}
			if ev.NewState == model.PRStateMerged && mergedAt == nil {
				ts := meta.Timestamp
				mergedAt = &ts
			}
		}
	}

	m.Approvals = len(Approvers(ordered))
	if pr.State == model.PRStateMerged {
		end := pr.UpdatedAt
		if mergedAt != nil {
			end = *mergedAt
		}
		m.TimeToMerge = minutes(pr.CreatedAt, end)
	}
	return m
}

func (m *Metrics) firstReview(pr model.PullRequest, meta EventMeta) {
	if m.TimeToFirstReview != nil || meta.Actor == pr.Author {
		return
	}
	m.TimeToFirstReview = minutes(pr.CreatedAt, meta.Timestamp)
}

func minutes(from, to time.Time) *int {
	n := int(math.Round(to.Sub(from).Minutes()))
	return &n
}

// NeedsRefresh reports whether cached metrics must be recomputed.
// Open pull requests are recomputed once the cache is older than staleness. Terminal ones are
// recomputed exactly once after closing; activity arriving later is not picked up.
func NeedsRefresh(state string, computedAt, closedAt pgtype.Timestamptz, now time.Time, staleness time.Duration) bool {
	if !computedAt.Valid {
		return true
	}
	if model.IsTerminalPRState(state) {
		return closedAt.Valid && computedAt.Time.Before(closedAt.Time)
	}
	if staleness <= 0 {
		staleness = DefaultStaleness
	}
	return now.Sub(computedAt.Time) > staleness
}

// ToParams encodes m as a metrics update for the stored pull request id.
func (m Metrics) ToParams(id int64, computedAt time.Time) database.UpdatePullRequestMetricsParams {
	return database.UpdatePullRequestMetricsParams{
		ID:                id,
		TimeToFirstReview: int4(m.TimeToFirstReview),
		TimeToMerge:       int4(m.TimeToMerge),
		ReviewRounds:      int32(m.ReviewRounds),
		Approvals:         int32(m.Approvals),
		MetricsComputedAt: computedAt,
	}
}

// FromRecord converts a stored pull request back to the provider model.
func FromRecord(r database.PullRequest) model.PullRequest {
	var closedAt *time.Time
	if r.PrClosedAt.Valid {
		t := r.PrClosedAt.Time
		closedAt = &t
	}
	return model.PullRequest{
		ExternalID:   r.ExternalID,
		Repo:         r.Repo,
		Title:        r.Title,
		State:        r.State,
		Author:       r.Author,
		URL:          r.Url,
		SourceBranch: r.SourceBranch,
		TargetBranch: r.TargetBranch,
		Reviewers:    r.Reviewers,
		Approvals:    int(r.Approvals),
		CreatedAt:    r.PrCreatedAt,
		UpdatedAt:    r.PrUpdatedAt,
		ClosedAt:     closedAt,
	}
}

func int4(v *int) pgtype.Int4 {
	if v == nil {
		return pgtype.Int4{}
	}
	return pgtype.Int4{Int32: int32(*v), Valid: true}
}
