// internal/jira/client.go
package jira

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"

	gojira "github.com/andygrunwald/go-jira"
	"golang.org/x/time/rate"

	custom_errors "delivery-insights/internal/errors"
	"delivery-insights/internal/model"
)

const (
	maxRetries = 1
	// DefaultMaxComments is how many of the most recent comments are kept per ticket.
	DefaultMaxComments = 5
)

// jiraTime is the timestamp layout of the Jira REST API.
const jiraTime = "2006-01-02T15:04:05.000-0700"

const issueFields = "summary,description,status,assignee,priority,issuetype,parent,subtasks,labels,comment"

// Options tunes pacing and retries.
type Options struct {
	RequestDelay time.Duration
	RetryDelay   time.Duration
	MaxComments  int
	HTTPClient   *http.Client
}

// Client reads tickets and their status history from the Jira REST API.
type Client struct {
	api         *gojira.Client
	logger      *slog.Logger
	pacer       *rate.Limiter
	retryDelay  time.Duration
	maxComments int
}

// NewClient creates a Client authenticating with an account email and API token.
func NewClient(baseURL, email, token string, logger *slog.Logger, opts Options) (*Client, error) {
	limit := rate.Inf
	if opts.RequestDelay > 0 {
		limit = rate.Every(opts.RequestDelay)
	}
	auth := gojira.BasicAuthTransport{Username: email, Password: token}
	if opts.HTTPClient != nil {
		auth.Transport = opts.HTTPClient.Transport
	}
	httpClient := auth.Client()
	httpClient.Timeout = 30 * time.Second

	jc, err := gojira.NewClient(httpClient, baseURL)
	if err != nil {
		return nil, fmt.Errorf("create jira client: %w", err)
	}
	maxComments := opts.MaxComments
	if maxComments <= 0 {
		maxComments = DefaultMaxComments
	}
	return &Client{
		api:         jc,
		logger:      logger,
		pacer:       rate.NewLimiter(limit, 1),
		retryDelay:  opts.RetryDelay,
		maxComments: maxComments,
	}, nil
}

// GetTicket fetches a ticket with its last comments and full status history.
// It returns custom_errors.ErrTicketNotFound when the key is unknown or not accessible.
func (c *Client) GetTicket(ctx context.Context, key string) (*model.Ticket, error) {
	opts := &gojira.GetQueryOptions{Fields: issueFields, Expand: "changelog"}

	for attempt := 0; ; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		issue, resp, err := c.api.Issue.GetWithContext(ctx, key, opts)
		if err == nil {
			return c.toInternalTicket(issue), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		status := statusOf(resp)
		switch {
		case status == http.StatusNotFound:
			return nil, custom_errors.ErrTicketNotFound
		case custom_errors.IsTransientStatus(status) && attempt < maxRetries:
			c.logger.Warn("Transient Jira error, retrying", "ticket", key, "status", status, "delay", c.retryDelay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelay):
			}
		default:
			return nil, &custom_errors.ErrUpstream{Service: "jira", StatusCode: status, Err: err}
		}
	}
}

func statusOf(resp *gojira.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}

// toInternalTicket translates the REST payload to our internal model.Ticket.
// Unparseable timestamps drop the affected comment or status change.
func (c *Client) toInternalTicket(issue *gojira.Issue) *model.Ticket {
	t := &model.Ticket{Key: issue.Key}
	if f := issue.Fields; f != nil {
		t.Summary = f.Summary
		t.Description = f.Description
		t.Type = f.Type.Name
		t.Labels = f.Labels
		if f.Status != nil {
			t.Status = f.Status.Name
		}
		if f.Assignee != nil {
			t.Assignee = f.Assignee.DisplayName
		}
		if f.Priority != nil {
			t.Priority = f.Priority.Name
		}
		if f.Parent != nil {
			t.ParentKey = f.Parent.Key
		}
		for _, s := range f.Subtasks {
			if s != nil {
				t.Subtasks = append(t.Subtasks, s.Key)
			}
		}
		if f.Comments != nil {
			for _, cm := range f.Comments.Comments {
				if cm == nil {
					continue
				}
				created, err := time.Parse(jiraTime, cm.Created)
				if err != nil {
					c.logger.Debug("Dropping comment with bad timestamp", "ticket", issue.Key, "created", cm.Created)
					continue
				}
				t.Comments = append(t.Comments, model.TicketComment{Author: cm.Author.DisplayName, Body: cm.Body, CreatedAt: created})
			}
		}
	}
	sort.SliceStable(t.Comments, func(i, j int) bool { return t.Comments[i].CreatedAt.Before(t.Comments[j].CreatedAt) })
	if n := len(t.Comments); n > c.maxComments {
		t.Comments = t.Comments[n-c.maxComments:]
	}

	if issue.Changelog != nil {
		for _, h := range issue.Changelog.Histories {
			changedAt, err := time.Parse(jiraTime, h.Created)
			if err != nil {
				c.logger.Debug("Dropping history with bad timestamp", "ticket", issue.Key, "created", h.Created)
				continue
			}
			for _, item := range h.Items {
				if item.Field != "status" {
					continue
				}
				t.StatusChanges = append(t.StatusChanges, model.StatusChange{
					TicketKey:  issue.Key,
					ChangedAt:  changedAt,
					FromStatus: item.FromString,
					ToStatus:   item.ToString,
					Actor:      h.Author.DisplayName,
				})
			}
		}
	}
	sort.SliceStable(t.StatusChanges, func(i, j int) bool {
		return t.StatusChanges[i].ChangedAt.Before(t.StatusChanges[j].ChangedAt)
	})
	return t
}
