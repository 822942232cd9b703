// internal/syncer/tickets.go
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"delivery-insights/internal/correlate"
	"delivery-insights/internal/database"
	custom_errors "delivery-insights/internal/errors"
	"delivery-insights/internal/model"
	"delivery-insights/internal/summary"
)

// branchContext is what the stored branches contribute to correlation and summaries.
type branchContext struct {
	tickets map[correlate.BranchRef]string
	pulls   map[correlate.BranchRef]model.PullRequestSnapshot
}

// summarizeTickets correlates the commits of every scanned repository and advances one summary
// chain per (ticket, repository). A failing bundle is recorded and the rest continue.
func (s *Syncer) summarizeTickets(ctx context.Context, q database.Querier, scans []model.ScanResult, report *Report) {
	if len(scans) == 0 {
		return
	}
	bc, err := s.loadBranchContext(ctx, q, scans)
	if err != nil {
		s.logger.Error("Failed to load branch context, skipping summaries", "error", err)
		for _, scan := range scans {
			report.fail(Failure{Repo: scan.Repo, Err: err})
		}
		return
	}

	groups := correlate.GroupCommitsByTicket(scans, bc.tickets)
	for _, key := range groups.Keys() {
		if ctx.Err() != nil {
			return
		}
		byRepo := groups[key]

		repos := make([]string, 0, len(byRepo))
		for repo := range byRepo {
			repos = append(repos, repo)
		}
		slices.Sort(repos)

		var ticket *model.Ticket
		var ticketLoaded bool
		for _, repo := range repos {
			bundle := byRepo[repo]
			if bundle.IsOrphan() {
				report.Orphans++
				s.logger.Debug("Commits without ticket key", "key", key, "repo", repo, "commits", len(bundle.CommitSHAs()))
				continue
			}
			if !ticketLoaded {
				ticket, err = s.ticketContext(ctx, q, key)
				if err != nil {
					s.logger.Warn("Summarizing without ticket context", "ticket", key, "error", err)
				}
				ticketLoaded = true
			}

			rr := report.repo(repo)
			if rr == nil {
				continue
			}
			outcome, err := s.advanceSummary(ctx, bundle, ticket, bc, rr)
			if err != nil {
				s.logger.Error("Failed to advance summary", "ticket", key, "repo", repo, "error", err)
				report.fail(Failure{TicketKey: key, Repo: repo, Err: err})
				continue
			}
			report.Summaries[outcome.Mode]++
		}
	}
}

func (s *Syncer) loadBranchContext(ctx context.Context, q database.Querier, scans []model.ScanResult) (branchContext, error) {
	bc := branchContext{
		tickets: make(map[correlate.BranchRef]string),
		pulls:   make(map[correlate.BranchRef]model.PullRequestSnapshot),
	}
	for _, scan := range scans {
		branches, err := q.GetBranchesByRepo(ctx, scan.Repo)
		if err != nil {
			return bc, fmt.Errorf("load branches of %s: %w", scan.Repo, err)
		}
		for _, b := range branches {
			ref := correlate.BranchRef{Repo: b.Repo, Name: b.Name}
			if b.TicketKey.Valid {
				bc.tickets[ref] = b.TicketKey.String
			}
			if len(b.PullRequest) == 0 {
				continue
			}
			var snap model.PullRequestSnapshot
			if err := json.Unmarshal(b.PullRequest, &snap); err != nil {
				s.logger.Warn("Ignoring corrupt pull request snapshot", "repo", b.Repo, "branch", b.Name, "error", err)
				continue
			}
			bc.pulls[ref] = snap
		}
	}
	return bc, nil
}

// ticketContext returns the ticket behind key, refreshing the stored copy from the tracker when it
// is older than the ticket staleness window. A ticket the tracker does not know yields nil.
func (s *Syncer) ticketContext(ctx context.Context, q database.Querier, key string) (*model.Ticket, error) {
	cached, err := q.GetTicket(ctx, key)
	hasCached := err == nil
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("load ticket: %w", err)
	}

	if hasCached && (s.tracker == nil || s.now().Sub(cached.FetchedAt) < s.settings.TicketStaleness) {
		return s.fromTicketRow(cached), nil
	}
	if s.tracker == nil {
		return nil, nil
	}

	fresh, err := s.tracker.GetTicket(ctx, key)
	if errors.Is(err, custom_errors.ErrTicketNotFound) {
		s.logger.Info("Ticket not found in tracker", "ticket", key)
		return nil, nil
	}
	if err != nil {
		if hasCached {
			s.logger.Warn("Using cached ticket, tracker request failed", "ticket", key, "error", err)
			return s.fromTicketRow(cached), nil
		}
		return nil, err
	}

	if err := s.storeTicket(ctx, q, fresh); err != nil {
		return nil, err
	}
	return fresh, nil
}

func (s *Syncer) storeTicket(ctx context.Context, q database.Querier, t *model.Ticket) error {
	comments, err := json.Marshal(t.Comments)
	if err != nil {
		return err
	}
	if err := q.UpsertTicket(ctx, database.UpsertTicketParams{
		JiraKey:     t.Key,
		Summary:     t.Summary,
		Description: t.Description,
		Status:      t.Status,
		Assignee:    t.Assignee,
		Priority:    t.Priority,
		IssueType:   t.Type,
		ParentKey:   t.ParentKey,
		Subtasks:    t.Subtasks,
		Labels:      t.Labels,
		Comments:    string(comments),
		FetchedAt:   s.now(),
	}); err != nil {
		return fmt.Errorf("store ticket %s: %w", t.Key, err)
	}

	changes := make([]database.CreateStatusChangeParams, 0, len(t.StatusChanges))
	for _, c := range t.StatusChanges {
		changes = append(changes, database.CreateStatusChangeParams{
			JiraKey:    t.Key,
			ChangedAt:  c.ChangedAt,
			FromStatus: c.FromStatus,
			ToStatus:   c.ToStatus,
			Actor:      c.Actor,
		})
	}
	if _, err := q.CreateStatusChanges(ctx, changes); err != nil {
		return fmt.Errorf("store status history of %s: %w", t.Key, err)
	}
	return nil
}

func (s *Syncer) fromTicketRow(r database.Ticket) *model.Ticket {
	var comments []model.TicketComment
	if r.Comments != "" {
		if err := json.Unmarshal([]byte(r.Comments), &comments); err != nil {
			s.logger.Warn("Ignoring corrupt ticket comments", "ticket", r.JiraKey, "error", err)
			comments = nil
		}
	}
	return &model.Ticket{
		Key:         r.JiraKey,
		Summary:     r.Summary,
		Description: r.Description,
		Status:      r.Status,
		Assignee:    r.Assignee,
		Priority:    r.Priority,
		Type:        r.IssueType,
		ParentKey:   r.ParentKey,
		Subtasks:    r.Subtasks,
		Labels:      r.Labels,
		Comments:    comments,
	}
}

// advanceSummary appends the next head of bundle's chain. The branch diff is included when a
// local working copy is configured; failing to produce it only drops the diff.
func (s *Syncer) advanceSummary(ctx context.Context, bundle *correlate.Bundle, ticket *model.Ticket, bc branchContext, rr *RepoReport) (summary.Outcome, error) {
	branches := bundle.Branches()
	var pulls []model.PullRequestSnapshot
	for _, b := range branches {
		if snap, ok := bc.pulls[correlate.BranchRef{Repo: bundle.Repo, Name: b}]; ok {
			pulls = append(pulls, snap)
		}
	}

	in := summary.Input{
		TicketKey: bundle.TicketKey,
		Repo:      bundle.Repo,
		Ticket:    ticket,
		Branches:  branches,
		Authors:   bundle.Authors(),
		Pulls:     pulls,
		Commits:   bundle.Commits(),
		Diff:      s.branchDiff(ctx, bundle.Repo, branches),
	}
	return s.chain.Advance(ctx, in, rr.RunID)
}

func (s *Syncer) branchDiff(ctx context.Context, repo string, branches []string) string {
	wc := s.checkout(repo)
	if wc == nil {
		return ""
	}
	idx := slices.IndexFunc(branches, func(b string) bool { return b != s.settings.BaseBranch })
	if idx < 0 {
		return ""
	}
	branch := branches[idx]

	var diff string
	err := wc.WithBranch(ctx, branch, func() error {
		var err error
		diff, err = wc.Diff(ctx, s.settings.BaseBranch)
		return err
	})
	if err != nil {
		s.logger.Warn("Summarizing without diff", "repo", repo, "branch", branch, "error", err)
		return ""
	}
	return diff
}
