// internal/github/scan.go
package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"

	"delivery-insights/internal/model"
	"delivery-insights/internal/ticketkey"
)

const defaultRemote = "origin"

// ScanRepository lists every branch of owner/name and the commits made on each since the given time.
// A branch whose commit pages keep failing is logged and skipped; its branch record is still reported.
func (c *Client) ScanRepository(ctx context.Context, owner, name string, since time.Time) (model.ScanResult, error) {
	repo := owner + "/" + name
	logger := c.logger.With("repo", repo)
	result := model.ScanResult{Repo: repo}

	branches, err := c.listBranches(ctx, owner, name)
	if err != nil {
		return model.ScanResult{}, fmt.Errorf("list branches of %s: %w", repo, err)
	}

	defaultBranch, err := c.defaultBranch(ctx, owner, name)
	if err != nil {
		logger.Warn("Could not resolve default branch, branch commits include base history", "error", err)
	}
	branches = defaultFirst(branches, defaultBranch)

	// Commits of the default branch are attributed to it alone, like "git log base..branch".
	base := make(map[string]struct{})
	stats := make(map[string]commitStats)
	for _, b := range branches {
		branchName := b.GetName()
		headSHA := b.GetCommit().GetSHA()

		commits, err := c.listBranchCommits(ctx, owner, name, branchName, since)
		if err != nil {
			logger.Error("Skipping commits of branch", "branch", branchName, "error", err)
		}

		record := model.BranchRecord{Name: branchName, Remote: defaultRemote, LastCommitSHA: headSHA}
		head := findCommit(commits, headSHA)
		if head == nil {
			head, err = c.getCommit(ctx, owner, name, headSHA)
			if err != nil {
				logger.Warn("Could not load branch head", "branch", branchName, "sha", headSHA, "error", err)
			}
		}
		if head != nil {
			record.LastCommitDate = commitTime(head)
			record.LastCommitAuthorEmail = head.GetCommit().GetAuthor().GetEmail()
			record.LastCommitMessage = head.GetCommit().GetMessage()
		}
		result.Branches = append(result.Branches, record)

		for _, rc := range commits {
			if branchName == defaultBranch {
				base[rc.GetSHA()] = struct{}{}
			} else if _, onBase := base[rc.GetSHA()]; onBase {
				continue
			}
			cm := toInternalCommit(repo, branchName, rc)
			if c.opts.CommitStats {
				c.attachStats(ctx, owner, name, &cm, stats)
			}
			result.Commits = append(result.Commits, cm)
		}
	}

	logger.Info("Scanned repository", "branches", len(result.Branches), "commits", len(result.Commits), "since", since)
	return result, nil
}

func (c *Client) listBranches(ctx context.Context, owner, name string) ([]*github.Branch, error) {
	var all []*github.Branch
	opts := &github.BranchListOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	for {
		var page []*github.Branch
		var resp *github.Response
		err := c.call(ctx, "list branches", func() (*github.Response, error) {
			var err error
			page, resp, err = c.gh.Repositories.ListBranches(ctx, owner, name, opts)
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

func (c *Client) defaultBranch(ctx context.Context, owner, name string) (string, error) {
	var r *github.Repository
	err := c.call(ctx, "get repository", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		r, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return r.GetDefaultBranch(), nil
}

// defaultFirst moves the default branch to the front, keeping the order of the rest.
func defaultFirst(branches []*github.Branch, defaultBranch string) []*github.Branch {
	out := make([]*github.Branch, 0, len(branches))
	for _, b := range branches {
		if b.GetName() == defaultBranch {
			out = append(out, b)
		}
	}
	for _, b := range branches {
		if b.GetName() != defaultBranch {
			out = append(out, b)
		}
	}
	return out
}

// listBranchCommits returns what it collected before a page failed together with the error.
func (c *Client) listBranchCommits(ctx context.Context, owner, name, branch string, since time.Time) ([]*github.RepositoryCommit, error) {
	var all []*github.RepositoryCommit
	opts := &github.CommitsListOptions{
		SHA:         branch,
		Since:       since,
		ListOptions: github.ListOptions{PerPage: perPage},
	}
	for {
		c.logger.Debug("Fetching commits page", "owner", owner, "repo", name, "branch", branch, "page", opts.Page)

		var page []*github.RepositoryCommit
		var resp *github.Response
		err := c.call(ctx, "list commits", func() (*github.Response, error) {
			var err error
			page, resp, err = c.gh.Repositories.ListCommits(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return all, err
		}
		all = append(all, page...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) getCommit(ctx context.Context, owner, name, sha string) (*github.RepositoryCommit, error) {
	var rc *github.RepositoryCommit
	err := c.call(ctx, "get commit", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		rc, resp, err = c.gh.Repositories.GetCommit(ctx, owner, name, sha, nil)
		return resp, err
	})
	return rc, err
}

type commitStats struct {
	files, additions, deletions int
}

func (c *Client) attachStats(ctx context.Context, owner, name string, cm *model.CommitRecord, cache map[string]commitStats) {
	st, ok := cache[cm.SHA]
	if !ok {
		rc, err := c.getCommit(ctx, owner, name, cm.SHA)
		if err != nil {
			c.logger.Warn("Skipping commit stats", "sha", cm.SHA, "error", err)
			return
		}
		st = commitStats{
			files:     len(rc.Files),
			additions: rc.GetStats().GetAdditions(),
			deletions: rc.GetStats().GetDeletions(),
		}
		cache[cm.SHA] = st
	}
	cm.FilesChanged = st.files
	cm.Insertions = st.additions
	cm.Deletions = st.deletions
}

func findCommit(commits []*github.RepositoryCommit, sha string) *github.RepositoryCommit {
	for _, rc := range commits {
		if rc.GetSHA() == sha {
			return rc
		}
	}
	return nil
}

func commitTime(rc *github.RepositoryCommit) time.Time {
	if d := rc.GetCommit().GetCommitter().GetDate(); !d.IsZero() {
		return d.Time
	}
	return rc.GetCommit().GetAuthor().GetDate().Time
}

// toInternalCommit translates a github.RepositoryCommit seen on branch to our internal model.CommitRecord.
func toInternalCommit(repo, branch string, rc *github.RepositoryCommit) model.CommitRecord {
	sha := rc.GetSHA()
	short := sha
	if len(short) > 7 {
		short = short[:7]
	}
	msg := strings.TrimSpace(rc.GetCommit().GetMessage())
	return model.CommitRecord{
		SHA:         sha,
		ShortSHA:    short,
		Repo:        repo,
		Branch:      branch,
		AuthorName:  rc.GetCommit().GetAuthor().GetName(),
		AuthorEmail: rc.GetCommit().GetAuthor().GetEmail(),
		Message:     msg,
		Timestamp:   commitTime(rc),
		TicketKeys:  ticketkey.FromMessage(msg),
	}
}
