// internal/gitrepo/gitrepo.go
package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes git with args inside dir and returns its standard output.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

// ExecRunner runs the git binary found on PATH.
func ExecRunner(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return string(out), nil
}

// Repo is a local working copy. Its checkout is shared state: WithBranch holds a lock for
// the whole callback so only one caller changes it at a time.
type Repo struct {
	dir    string
	run    Runner
	logger *slog.Logger
	mu     sync.Mutex
}

// Open returns a Repo for the working copy at dir. A nil run uses ExecRunner.
func Open(dir string, run Runner, logger *slog.Logger) *Repo {
	if run == nil {
		run = ExecRunner
	}
	return &Repo{dir: dir, run: run, logger: logger}
}

// CurrentRef returns the checked out branch name, or the commit sha when HEAD is detached.
func (r *Repo) CurrentRef(ctx context.Context) (string, error) {
	if out, err := r.run(ctx, r.dir, "symbolic-ref", "--quiet", "--short", "HEAD"); err == nil {
		return strings.TrimSpace(out), nil
	}
	out, err := r.run(ctx, r.dir, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// WithBranch checks out branch, runs fn and restores the previously checked out ref on every
// exit path, including a failing or panicking fn. A failed restore is joined to fn's error.
func (r *Repo) WithBranch(ctx context.Context, branch string, fn func() error) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	original, err := r.CurrentRef(ctx)
	if err != nil {
		return err
	}
	if _, err := r.run(ctx, r.dir, "checkout", "--quiet", branch); err != nil {
		return fmt.Errorf("checkout %s: %w", branch, err)
	}

	defer func() {
		// The caller's context may already be cancelled; restoring must still happen.
		if _, rerr := r.run(context.WithoutCancel(ctx), r.dir, "checkout", "--quiet", original); rerr != nil {
			r.logger.Error("Failed to restore working copy", "dir", r.dir, "ref", original, "error", rerr)
			err = errors.Join(err, fmt.Errorf("restore %s: %w", original, rerr))
		}
	}()

	return fn()
}

// Diff returns the changes of HEAD since it diverged from base.
func (r *Repo) Diff(ctx context.Context, base string) (string, error) {
	out, err := r.run(ctx, r.dir, "diff", "--no-color", base+"...HEAD")
	if err != nil {
		return "", fmt.Errorf("diff against %s: %w", base, err)
	}
	return out, nil
}
