// internal/github/client.go
package github

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	custom_errors "delivery-insights/internal/errors"
)

// maxRetries is the number of extra attempts made after a 429 or 5xx answer.
const maxRetries = 1

const perPage = 100

// Options tunes request pacing and scan depth.
type Options struct {
	// PageDelay is the minimum gap between two requests.
	PageDelay time.Duration
	// RetryDelay is waited once before retrying a transient failure.
	RetryDelay time.Duration
	// CommitStats fetches per-commit change statistics, one extra request per commit.
	CommitStats bool
	// BaseURL overrides the REST endpoint, e.g. for GitHub Enterprise ("https://ghe.example.com/api/v3/").
	BaseURL string
}

// Client is a wrapper around the go-github client.
// Every request goes through a single pacer, so calls are issued one at a time.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
	pacer  *rate.Limiter
	opts   Options
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger, opts Options) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	limit := rate.Inf
	if opts.PageDelay > 0 {
		limit = rate.Every(opts.PageDelay)
	}

	gh := github.NewClient(tc)
	if opts.BaseURL != "" {
		u, err := url.Parse(strings.TrimSuffix(opts.BaseURL, "/") + "/")
		if err != nil {
			logger.Error("Ignoring invalid GitHub base URL", "url", opts.BaseURL, "error", err)
		} else {
			gh.BaseURL = u
		}
	}

	return &Client{
		gh:     gh,
		logger: logger,
		pacer:  rate.NewLimiter(limit, 1),
		opts:   opts,
	}
}

// SplitRepo parses an "owner/name" repository string.
func SplitRepo(full string) (owner, name string, err error) {
	parts := strings.Split(full, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &custom_errors.ErrInvalidRepoFormat{Repo: full}
	}
	return parts[0], parts[1], nil
}

// call paces fn and retries it once when the provider answers 429, 5xx or a rate-limit error.
// The final failure is returned as *custom_errors.ErrUpstream.
func (c *Client) call(ctx context.Context, op string, fn func() (*github.Response, error)) error {
	for attempt := 0; ; attempt++ {
		if err := c.pacer.Wait(ctx); err != nil {
			return err
		}
		resp, err := fn()
		if err == nil {
			return nil
		}
		status := statusOf(resp, err)
		if attempt >= maxRetries || !isTransient(status, err) {
			return &custom_errors.ErrUpstream{Service: "github " + op, StatusCode: status, Err: err}
		}

		c.logger.Warn("Transient GitHub error, retrying", "op", op, "status", status, "delay", c.opts.RetryDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.opts.RetryDelay):
		}
	}
}

func statusOf(resp *github.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode
	}
	return 0
}

func isTransient(status int, err error) bool {
	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return true
	}
	return custom_errors.IsTransientStatus(status)
}
