// internal/api/report.go
package api

import (
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"delivery-insights/internal/database"
	"delivery-insights/internal/model"
)

type reviewSummary struct {
	PullRequests         int      `json:"pull_requests"`
	Merged               int      `json:"merged"`
	Open                 int      `json:"open"`
	AvgTimeToFirstReview *float64 `json:"avg_time_to_first_review_minutes"`
	AvgTimeToMerge       *float64 `json:"avg_time_to_merge_minutes"`
	AvgReviewRounds      float64  `json:"avg_review_rounds"`
}

type reportResponse struct {
	Repo          string                               `json:"repo"`
	Since         time.Time                            `json:"since"`
	TopCommitters []database.GetTopNCommitAuthorsRow   `json:"top_committers"`
	Reviewers     []database.GetReviewerLeaderboardRow `json:"reviewers"`
	Review        reviewSummary                        `json:"review"`
}

// getReport bundles the per-repository aggregates of the last N days. The three reads run concurrently.
// GET /v1/repos/{owner}/{name}/report?days=N
func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	repo, ok := h.repoParam(w, r)
	if !ok {
		return
	}
	days, ok := queryInt(w, r, "days", 30, 365)
	if !ok {
		return
	}
	since := h.now().AddDate(0, 0, -days)

	resp := reportResponse{Repo: repo, Since: since}
	var prs []database.PullRequest

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		rows, err := h.db.GetTopNCommitAuthors(ctx, database.GetTopNCommitAuthorsParams{Repo: repo, Limit: 10})
		resp.TopCommitters = rows
		return err
	})
	g.Go(func() error {
		rows, err := h.db.GetReviewerLeaderboard(ctx, database.GetReviewerLeaderboardParams{Repo: repo, Since: since, Limit: 10})
		resp.Reviewers = rows
		return err
	})
	g.Go(func() error {
		rows, err := h.db.GetPullRequestsByRepo(ctx, repo)
		prs = rows
		return err
	})
	if err := g.Wait(); err != nil {
		h.internalError(w, "Failed to build report", err)
		return
	}

	resp.Review = summarizeReviews(prs, since)
	respondWithJSON(w, http.StatusOK, resp)
}

// summarizeReviews averages the cached metrics of pull requests updated since the given time.
// Pull requests whose metrics were never computed are counted but not averaged.
func summarizeReviews(prs []database.PullRequest, since time.Time) reviewSummary {
	var s reviewSummary
	var firstSum, mergeSum, roundsSum float64
	var firstN, mergeN, roundsN int
	for _, pr := range prs {
		if pr.PrUpdatedAt.Before(since) {
			continue
		}
		s.PullRequests++
		switch pr.State {
		case model.PRStateMerged:
			s.Merged++
		case model.PRStateOpen:
			s.Open++
		}
		if !pr.MetricsComputedAt.Valid {
			continue
		}
		roundsSum += float64(pr.ReviewRounds)
		roundsN++
		if pr.TimeToFirstReview.Valid {
			firstSum += float64(pr.TimeToFirstReview.Int32)
			firstN++
		}
		if pr.TimeToMerge.Valid {
			mergeSum += float64(pr.TimeToMerge.Int32)
			mergeN++
		}
	}
	s.AvgTimeToFirstReview = average(firstSum, firstN)
	s.AvgTimeToMerge = average(mergeSum, mergeN)
	if avg := average(roundsSum, roundsN); avg != nil {
		s.AvgReviewRounds = *avg
	}
	return s
}

func average(sum float64, n int) *float64 {
	if n == 0 {
		return nil
	}
	v := sum / float64(n)
	return &v
}
