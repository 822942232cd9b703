// internal/syncer/pulls.go
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"delivery-insights/internal/database"
	custom_errors "delivery-insights/internal/errors"
	"delivery-insights/internal/model"
	"delivery-insights/internal/review"
)

// syncPullRequests upserts the pull requests updated since the given time, links each to its source
// branch and recomputes review metrics where the cache is stale. Provider failures skip the affected
// listing or pull request; storage failures abort the pass.
func (s *Syncer) syncPullRequests(ctx context.Context, q database.Querier, id RepoIdentifier, since time.Time) (int, error) {
	logger := s.logger.With("repo", id.String())

	prs, err := s.scm.ListPullRequests(ctx, id.Owner, id.Name, since)
	if err != nil {
		if isUpstream(err) {
			logger.Warn("Skipping pull requests", "error", err)
			return 0, nil
		}
		return 0, err
	}

	linked := make(map[string]struct{})
	for _, pr := range prs {
		row, err := q.UpsertPullRequest(ctx, toUpsertPullRequest(id.String(), pr))
		if err != nil {
			return 0, fmt.Errorf("upsert pull request %d: %w", pr.ExternalID, err)
		}

		// Most recently updated first, so the newest pull request of a branch wins.
		if _, done := linked[pr.SourceBranch]; !done && pr.SourceBranch != "" {
			linked[pr.SourceBranch] = struct{}{}
			if err := s.linkBranch(ctx, q, id.String(), pr); err != nil {
				return 0, err
			}
		}

		if !review.NeedsRefresh(row.State, row.MetricsComputedAt, row.PrClosedAt, s.now(), s.settings.PRStaleness) {
			continue
		}
		if err := s.refreshMetrics(ctx, q, id, row, pr); err != nil {
			if isUpstream(err) {
				logger.Warn("Skipping pull request metrics", "pull_request", pr.ExternalID, "error", err)
				continue
			}
			return 0, err
		}
	}
	logger.Info("Synced pull requests", "count", len(prs))
	return len(prs), nil
}

func (s *Syncer) linkBranch(ctx context.Context, q database.Querier, repo string, pr model.PullRequest) error {
	snapshot, err := json.Marshal(pr.Snapshot())
	if err != nil {
		return err
	}
	n, err := q.SetBranchPullRequest(ctx, database.SetBranchPullRequestParams{Repo: repo, Name: pr.SourceBranch, PullRequest: snapshot})
	if err != nil {
		return fmt.Errorf("link pull request %d to branch: %w", pr.ExternalID, err)
	}
	if n == 0 {
		s.logger.Debug("Source branch not tracked", "repo", repo, "branch", pr.SourceBranch, "pull_request", pr.ExternalID)
	}
	return nil
}

// refreshMetrics appends the provider's activity to the stored log and recomputes the metrics
// from the full stored log, not only what was fetched now.
func (s *Syncer) refreshMetrics(ctx context.Context, q database.Querier, id RepoIdentifier, row database.PullRequest, pr model.PullRequest) error {
	events, err := s.scm.PullRequestActivity(ctx, id.Owner, id.Name, pr)
	if err != nil {
		return err
	}

	params := make([]database.CreatePRActivityParams, 0, len(events))
	for _, e := range events {
		params = append(params, review.ToParams(row.ID, e))
	}
	if _, err := q.CreatePRActivities(ctx, params); err != nil {
		return fmt.Errorf("store activity of pull request %d: %w", pr.ExternalID, err)
	}

	stored, err := q.GetPRActivities(ctx, row.ID)
	if err != nil {
		return fmt.Errorf("load activity of pull request %d: %w", pr.ExternalID, err)
	}
	replay := make([]review.Event, 0, len(stored))
	for _, a := range stored {
		e, err := review.FromRow(a)
		if err != nil {
			s.logger.Warn("Ignoring stored activity", "pull_request", pr.ExternalID, "id", a.ID, "error", err)
			continue
		}
		replay = append(replay, e)
	}

	m := review.Compute(review.FromRecord(row), replay)
	return q.UpdatePullRequestMetrics(ctx, m.ToParams(row.ID, s.now()))
}

func toUpsertPullRequest(repo string, pr model.PullRequest) database.UpsertPullRequestParams {
	var closedAt pgtype.Timestamptz
	if pr.ClosedAt != nil {
		closedAt = pgtype.Timestamptz{Time: *pr.ClosedAt, Valid: true}
	}
	return database.UpsertPullRequestParams{
		Repo:         repo,
		ExternalID:   pr.ExternalID,
		Title:        pr.Title,
		State:        pr.State,
		Author:       pr.Author,
		Url:          pr.URL,
		SourceBranch: pr.SourceBranch,
		TargetBranch: pr.TargetBranch,
		Reviewers:    pr.Reviewers,
		Approvals:    int32(pr.Approvals),
		PrCreatedAt:  pr.CreatedAt,
		PrUpdatedAt:  pr.UpdatedAt,
		PrClosedAt:   closedAt,
	}
}

func isUpstream(err error) bool {
	var upstream *custom_errors.ErrUpstream
	return errors.As(err, &upstream)
}
