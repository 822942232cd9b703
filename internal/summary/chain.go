// internal/summary/chain.go
package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"golang.org/x/sync/semaphore"

	"delivery-insights/internal/database"
	"delivery-insights/internal/model"
)

// Store is the subset of database.Querier the chain reads and appends to.
type Store interface {
	GetLatestTicketSummary(ctx context.Context, arg database.GetLatestTicketSummaryParams) (database.TicketSummary, error)
	CreateTicketSummary(ctx context.Context, arg database.CreateTicketSummaryParams) (database.TicketSummary, error)
}

// Request is everything the summarization collaborator is given for one ticket.
type Request struct {
	TicketKey string
	Repo      string
	Ticket    *model.Ticket
	Branches  []string
	Authors   []string
	Pulls     []model.PullRequestSnapshot
	// Commits holds only the commits the previous summary has not seen when PreviousSummary is set.
	Commits         []model.CommitRecord
	PreviousSummary string
	Diff            string
}

// Result is the collaborator's answer.
type Result struct {
	Text      string
	SessionID string
}

// Summarizer produces narrative text for a ticket's work.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (Result, error)
}

// Input describes the current state of one work bundle.
type Input struct {
	TicketKey string
	Repo      string
	Ticket    *model.Ticket
	Branches  []string
	Authors   []string
	Pulls     []model.PullRequestSnapshot
	Commits   []model.CommitRecord
	Diff      string
}

// Outcome reports what Advance appended.
type Outcome struct {
	Mode   Mode
	Record database.TicketSummary
}

// Chain advances per-(ticket, repo) summary chains. Records are only ever appended;
// the most recently inserted one is the head.
type Chain struct {
	store      Store
	summarizer Summarizer
	logger     *slog.Logger
	staleness  time.Duration
	gate       *semaphore.Weighted
	now        func() time.Time
}

// NewChain creates a Chain that allows one summarizer call in flight at a time.
func NewChain(store Store, summarizer Summarizer, logger *slog.Logger, staleness time.Duration) *Chain {
	return &Chain{
		store:      store,
		summarizer: summarizer,
		logger:     logger,
		staleness:  staleness,
		gate:       semaphore.NewWeighted(1),
		now:        time.Now,
	}
}

// Advance appends a new head for in's (ticket, repo) chain, reusing, extending or regenerating the summary.
func (c *Chain) Advance(ctx context.Context, in Input, runID uuid.UUID) (Outcome, error) {
	log := c.logger.With("ticket", in.TicketKey, "repo", in.Repo)

	prev, err := c.head(ctx, in.TicketKey, in.Repo)
	if err != nil {
		return Outcome{}, err
	}

	shas := make([]string, len(in.Commits))
	for i, cm := range in.Commits {
		shas[i] = cm.SHA
	}
	decision := Plan(prev, shas, c.now(), c.staleness)

	params := database.CreateTicketSummaryParams{
		JiraKey:    in.TicketKey,
		Repo:       in.Repo,
		CommitShas: EncodeSHAs(decision.CommitSHAs),
		RunID:      pgtype.UUID{Bytes: runID, Valid: true},
		Generation: string(decision.Mode),
	}
	if prev != nil {
		params.PreviousID = pgtype.Int8{Int64: prev.ID, Valid: true}
	}

	switch decision.Mode {
	case ModeReuse:
		params.SummaryText = prev.Text
	case ModeExtend:
		res, err := c.summarize(ctx, requestFor(in, onlyCommits(in.Commits, decision.NewSHAs), prev.Text))
		if err != nil {
			return Outcome{}, err
		}
		params.SummaryText = res.Text
		params.SessionID = optionalText(res.SessionID)
	case ModeRegenerate:
		res, err := c.summarize(ctx, requestFor(in, in.Commits, ""))
		if err != nil {
			return Outcome{}, err
		}
		params.SummaryText = res.Text
		params.SessionID = optionalText(res.SessionID)
	}

	rec, err := c.store.CreateTicketSummary(ctx, params)
	if err != nil {
		return Outcome{}, fmt.Errorf("append summary: %w", err)
	}
	log.Info("Advanced summary chain", "mode", decision.Mode, "new_commits", len(decision.NewSHAs), "id", rec.ID)
	return Outcome{Mode: decision.Mode, Record: rec}, nil
}

func (c *Chain) head(ctx context.Context, ticketKey, repo string) (*Head, error) {
	rec, err := c.store.GetLatestTicketSummary(ctx, database.GetLatestTicketSummaryParams{JiraKey: ticketKey, Repo: repo})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load summary head: %w", err)
	}
	return &Head{
		ID:         rec.ID,
		Text:       rec.SummaryText,
		CommitSHAs: DecodeSHAs(rec.CommitShas),
		CreatedAt:  rec.CreatedAt,
	}, nil
}

func (c *Chain) summarize(ctx context.Context, req Request) (Result, error) {
	if err := c.gate.Acquire(ctx, 1); err != nil {
		return Result{}, err
	}
	defer c.gate.Release(1)

	res, err := c.summarizer.Summarize(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("summarize %s: %w", req.TicketKey, err)
	}
	return res, nil
}

func requestFor(in Input, commits []model.CommitRecord, previous string) Request {
	return Request{
		TicketKey:       in.TicketKey,
		Repo:            in.Repo,
		Ticket:          in.Ticket,
		Branches:        in.Branches,
		Authors:         in.Authors,
		Pulls:           in.Pulls,
		Commits:         commits,
		PreviousSummary: previous,
		Diff:            in.Diff,
	}
}

func onlyCommits(commits []model.CommitRecord, shas []string) []model.CommitRecord {
	want := make(map[string]struct{}, len(shas))
	for _, s := range shas {
		want[s] = struct{}{}
	}
	var out []model.CommitRecord
	for _, cm := range commits {
		if _, ok := want[cm.SHA]; ok {
			out = append(out, cm)
			delete(want, cm.SHA)
		}
	}
	return out
}

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
