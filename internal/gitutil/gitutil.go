// Package gitutil shells out to the git binary for commit mining and for
// mirroring snapshot versions as tags and branches. Every call is bounded by
// a context deadline; callers decide whether a git failure is fatal.
package gitutil

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Commit is one entry of a repository's history.
type Commit struct {
	Hash      string    `json:"hash"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Client runs git commands rooted at a repository directory.
type Client struct {
	repoRoot string
	timeout  time.Duration
}

// NewClient creates a git client for the given repository root.
func NewClient(repoRoot string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{repoRoot: repoRoot, timeout: timeout}
}

// Available reports whether the git binary is on PATH.
func Available() bool {
	_, err := exec.LookPath("git")
	return err == nil
}

// IsRepository reports whether the client's root lies inside a git work tree.
func (c *Client) IsRepository(ctx context.Context) bool {
	_, err := c.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}

// Head returns the current HEAD commit hash.
func (c *Client) Head(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Log returns up to maxCommits of recent history, newest first.
// The pipe-delimited format keeps parsing trivial; commit subjects containing
// pipes only affect the message field, which is joined back together.
func (c *Client) Log(ctx context.Context, maxCommits int) ([]Commit, error) {
	out, err := c.run(ctx,
		"log",
		fmt.Sprintf("--max-count=%d", maxCommits),
		"--format=%H|%an|%aI|%s",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read git log: %w", err)
	}

	var commits []Commit
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "|", 4)
		if len(parts) != 4 {
			continue
		}
		ts, err := time.Parse(time.RFC3339, parts[2])
		if err != nil {
			ts = time.Time{}
		}
		commits = append(commits, Commit{
			Hash:      parts[0],
			Author:    parts[1],
			Timestamp: ts,
			Message:   parts[3],
		})
	}
	return commits, nil
}

// ChangedFiles returns the files touched by a commit.
func (c *Client) ChangedFiles(ctx context.Context, hash string) ([]string, error) {
	out, err := c.run(ctx, "show", "--name-only", "--format=", hash)
	if err != nil {
		return nil, fmt.Errorf("failed to list changed files for %s: %w", hash, err)
	}

	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

// CommitAll stages everything and commits with the given message, returning
// the new commit hash. An empty work tree commits with --allow-empty so a
// snapshot always has a commit to point at.
func (c *Client) CommitAll(ctx context.Context, message string) (string, error) {
	if _, err := c.run(ctx, "add", "-A"); err != nil {
		return "", fmt.Errorf("failed to stage changes: %w", err)
	}
	if _, err := c.run(ctx, "commit", "--allow-empty", "-m", message); err != nil {
		return "", fmt.Errorf("failed to commit: %w", err)
	}
	return c.Head(ctx)
}

// Tag creates or moves a tag at HEAD.
func (c *Client) Tag(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "tag", "-f", name); err != nil {
		return fmt.Errorf("failed to tag %s: %w", name, err)
	}
	return nil
}

// Branch creates or resets a branch at HEAD without switching to it.
func (c *Client) Branch(ctx context.Context, name string) error {
	if _, err := c.run(ctx, "branch", "-f", name); err != nil {
		return fmt.Errorf("failed to create branch %s: %w", name, err)
	}
	return nil
}

// CurrentBranch returns the checked-out branch name, or "HEAD" when detached.
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("failed to resolve current branch: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.repoRoot

	output, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("git %s: %s", args[0], strings.TrimSpace(string(ee.Stderr)))
		}
		return "", err
	}
	return string(output), nil
}
