// internal/github/pulls.go
package github

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v62/github"

	"delivery-insights/internal/model"
	"delivery-insights/internal/review"
)

// ListPullRequests returns the pull requests of owner/name updated at or after since, most recently updated first.
func (c *Client) ListPullRequests(ctx context.Context, owner, name string, since time.Time) ([]model.PullRequest, error) {
	repo := owner + "/" + name
	opts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var all []model.PullRequest
	for {
		var page []*github.PullRequest
		var resp *github.Response
		err := c.call(ctx, "list pull requests", func() (*github.Response, error) {
			var err error
			page, resp, err = c.gh.PullRequests.List(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("list pull requests of %s: %w", repo, err)
		}
		for _, pr := range page {
			if pr.GetUpdatedAt().Time.Before(since) {
				return all, nil
			}
			all = append(all, toInternalPullRequest(repo, pr))
		}
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// PullRequestActivity collects reviews, comments and pushes of a pull request as activity events.
// A merged or declined pull request also gets an update event carrying its terminal state.
// The events are returned unordered.
func (c *Client) PullRequestActivity(ctx context.Context, owner, name string, pr model.PullRequest) ([]review.Event, error) {
	number := int(pr.ExternalID)
	var events []review.Event

	reviews, err := collect(ctx, c, "list reviews", func(o *github.ListOptions) ([]*github.PullRequestReview, *github.Response, error) {
		return c.gh.PullRequests.ListReviews(ctx, owner, name, number, o)
	})
	if err != nil {
		return nil, err
	}
	for _, r := range reviews {
		meta := review.EventMeta{Actor: r.GetUser().GetLogin(), Timestamp: r.GetSubmittedAt().Time}
		switch r.GetState() {
		case "APPROVED":
			events = append(events, review.Approval{EventMeta: meta})
		case "CHANGES_REQUESTED":
			events = append(events, review.RequestChanges{EventMeta: meta})
		case "COMMENTED":
			events = append(events, review.Comment{EventMeta: meta, Text: r.GetBody()})
		}
	}

	issueComments, err := collect(ctx, c, "list issue comments", func(o *github.ListOptions) ([]*github.IssueComment, *github.Response, error) {
		return c.gh.Issues.ListComments(ctx, owner, name, number, &github.IssueListCommentsOptions{ListOptions: *o})
	})
	if err != nil {
		return nil, err
	}
	for _, ic := range issueComments {
		events = append(events, review.Comment{
			EventMeta: review.EventMeta{Actor: ic.GetUser().GetLogin(), Timestamp: ic.GetCreatedAt().Time},
			Text:      ic.GetBody(),
		})
	}

	reviewComments, err := collect(ctx, c, "list review comments", func(o *github.ListOptions) ([]*github.PullRequestComment, *github.Response, error) {
		return c.gh.PullRequests.ListComments(ctx, owner, name, number, &github.PullRequestListCommentsOptions{ListOptions: *o})
	})
	if err != nil {
		return nil, err
	}
	for _, rc := range reviewComments {
		events = append(events, review.Comment{
			EventMeta: review.EventMeta{Actor: rc.GetUser().GetLogin(), Timestamp: rc.GetCreatedAt().Time},
			Text:      rc.GetBody(),
		})
	}

	commits, err := collect(ctx, c, "list pull request commits", func(o *github.ListOptions) ([]*github.RepositoryCommit, *github.Response, error) {
		return c.gh.PullRequests.ListCommits(ctx, owner, name, number, o)
	})
	if err != nil {
		return nil, err
	}
	for _, rc := range commits {
		actor := rc.GetAuthor().GetLogin()
		if actor == "" {
			actor = rc.GetCommit().GetAuthor().GetName()
		}
		events = append(events, review.Update{
			EventMeta:  review.EventMeta{Actor: actor, Timestamp: commitTime(rc)},
			CommitHash: rc.GetSHA(),
		})
	}

	if pr.IsTerminal() && pr.ClosedAt != nil {
		events = append(events, review.Update{
			EventMeta: review.EventMeta{Actor: pr.Author, Timestamp: *pr.ClosedAt},
			NewState:  pr.State,
		})
	}
	return events, nil
}

// collect walks every page of a list endpoint through the client's pacing and retry policy.
func collect[T any](ctx context.Context, c *Client, op string, list func(*github.ListOptions) ([]T, *github.Response, error)) ([]T, error) {
	opts := &github.ListOptions{PerPage: perPage}
	var all []T
	for {
		var page []T
		var resp *github.Response
		err := c.call(ctx, op, func() (*github.Response, error) {
			var err error
			page, resp, err = list(opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// toInternalPullRequest translates a github.PullRequest object to our internal model.PullRequest.
func toInternalPullRequest(repo string, pr *github.PullRequest) model.PullRequest {
	state := model.PRStateOpen
	var closedAt *time.Time
	switch {
	case pr.MergedAt != nil:
		state = model.PRStateMerged
		t := pr.GetMergedAt().Time
		closedAt = &t
	case pr.GetState() == "closed":
		state = model.PRStateDeclined
		t := pr.GetClosedAt().Time
		closedAt = &t
	}

	reviewers := make([]string, 0, len(pr.RequestedReviewers))
	for _, u := range pr.RequestedReviewers {
		reviewers = append(reviewers, u.GetLogin())
	}

	return model.PullRequest{
		ExternalID:   int64(pr.GetNumber()),
		Repo:         repo,
		Title:        pr.GetTitle(),
		State:        state,
		Author:       pr.GetUser().GetLogin(),
		URL:          pr.GetHTMLURL(),
		SourceBranch: pr.GetHead().GetRef(),
		TargetBranch: pr.GetBase().GetRef(),
		Reviewers:    reviewers,
		CreatedAt:    pr.GetCreatedAt().Time,
		UpdatedAt:    pr.GetUpdatedAt().Time,
		ClosedAt:     closedAt,
	}
}
