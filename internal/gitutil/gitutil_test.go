package gitutil

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func setupTestRepo(t *testing.T) *Client {
	if !Available() {
		t.Skip("git binary not available")
	}

	tmpDir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = tmpDir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("one\n"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	run("add", "-A")
	run("commit", "-m", "first commit")

	if err := os.WriteFile(filepath.Join(tmpDir, "b.txt"), []byte("two\n"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	run("add", "-A")
	run("commit", "-m", "second commit")

	return NewClient(tmpDir, 5*time.Second)
}

func TestLogParsing(t *testing.T) {
	client := setupTestRepo(t)
	ctx := context.Background()

	commits, err := client.Log(ctx, 10)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(commits) != 2 {
		t.Fatalf("Expected 2 commits, got %d", len(commits))
	}
	if commits[0].Message != "second commit" {
		t.Errorf("Expected newest first, got %q", commits[0].Message)
	}
	if len(commits[0].Hash) != 40 {
		t.Errorf("Expected full hash, got %q", commits[0].Hash)
	}
	if commits[0].Author != "Test User" {
		t.Errorf("Unexpected author %q", commits[0].Author)
	}
	if commits[0].Timestamp.IsZero() {
		t.Error("Timestamp should parse")
	}

	limited, err := client.Log(ctx, 1)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected max-count to cap at 1, got %d", len(limited))
	}
}

func TestChangedFiles(t *testing.T) {
	client := setupTestRepo(t)
	ctx := context.Background()

	commits, err := client.Log(ctx, 1)
	if err != nil || len(commits) == 0 {
		t.Fatalf("Log failed: %v", err)
	}

	files, err := client.ChangedFiles(ctx, commits[0].Hash)
	if err != nil {
		t.Fatalf("ChangedFiles failed: %v", err)
	}
	if len(files) != 1 || files[0] != "b.txt" {
		t.Errorf("Expected [b.txt], got %v", files)
	}
}

func TestCommitTagBranch(t *testing.T) {
	client := setupTestRepo(t)
	ctx := context.Background()

	hash, err := client.CommitAll(ctx, "User intent: mirror test")
	if err != nil {
		t.Fatalf("CommitAll failed: %v", err)
	}
	if len(hash) != 40 {
		t.Errorf("Expected commit hash, got %q", hash)
	}

	if err := client.Tag(ctx, "V1"); err != nil {
		t.Fatalf("Tag failed: %v", err)
	}
	// Retagging must not fail; snapshots may be recreated after a rewind.
	if err := client.Tag(ctx, "V1"); err != nil {
		t.Fatalf("Re-tag failed: %v", err)
	}

	if err := client.Branch(ctx, "agent/v1.1"); err != nil {
		t.Fatalf("Branch failed: %v", err)
	}

	if !client.IsRepository(ctx) {
		t.Error("IsRepository should be true inside a work tree")
	}
	outside := NewClient(t.TempDir(), time.Second)
	if outside.IsRepository(ctx) {
		t.Error("IsRepository should be false outside a work tree")
	}
}
