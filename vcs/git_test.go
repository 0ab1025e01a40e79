package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// newUpstream builds a bare repo seeded with one commit and returns its
// path plus the seed revision.
func newUpstream(t *testing.T) (string, string) {
	t.Helper()

	bare := filepath.Join(t.TempDir(), "upstream.git")
	if _, err := git.PlainInit(bare, true); err != nil {
		t.Fatalf("init bare repo: %v", err)
	}

	seed := filepath.Join(t.TempDir(), "seed")
	repo, err := git.PlainInit(seed, false)
	if err != nil {
		t.Fatalf("init seed repo: %v", err)
	}
	if err := os.WriteFile(filepath.Join(seed, "app.po"), []byte("msgid \"Hello\"\nmsgstr \"\"\n"), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	if _, err := wt.Add("app.po"); err != nil {
		t.Fatalf("add: %v", err)
	}
	sig := &object.Signature{Name: "seed", Email: "seed@example.com", When: time.Now()}
	hash, err := wt.Commit("seed", &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{bare}}); err != nil {
		t.Fatalf("add remote: %v", err)
	}
	if err := repo.Push(&git.PushOptions{RemoteName: "origin"}); err != nil {
		t.Fatalf("push seed: %v", err)
	}
	return bare, hash.String()
}

func TestGitClientUpdateClonesAndPulls(t *testing.T) {
	t.Parallel()

	upstream, seedRev := newUpstream(t)
	checkout := filepath.Join(t.TempDir(), "checkout")
	client := &GitClient{}
	ctx := context.Background()

	if err := client.Update(ctx, upstream, checkout); err != nil {
		t.Fatalf("initial update: %v", err)
	}
	rev, err := client.Revision(ctx, checkout)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if rev != seedRev {
		t.Fatalf("revision %s, want %s", rev, seedRev)
	}

	// A second update on an existing checkout is a pull, and a no-op
	// pull is not an error.
	if err := client.Update(ctx, upstream, checkout); err != nil {
		t.Fatalf("repeat update: %v", err)
	}
}

func TestGitClientCommitPushesChanges(t *testing.T) {
	t.Parallel()

	upstream, seedRev := newUpstream(t)
	checkout := filepath.Join(t.TempDir(), "checkout")
	client := &GitClient{}
	ctx := context.Background()

	if err := client.Update(ctx, upstream, checkout); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := os.WriteFile(filepath.Join(checkout, "app.po"), []byte("msgid \"Hello\"\nmsgstr \"Bonjour\"\n"), 0o644); err != nil {
		t.Fatalf("edit file: %v", err)
	}

	author := Author{Name: "Translator", Email: "translator@example.com"}
	if err := client.Commit(ctx, checkout, "Update French localization", author, upstream); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rev, err := client.Revision(ctx, checkout)
	if err != nil {
		t.Fatalf("revision: %v", err)
	}
	if rev == seedRev {
		t.Fatalf("expected a new revision after commit")
	}

	// A fresh clone sees the pushed commit.
	verify := filepath.Join(t.TempDir(), "verify")
	if err := client.Update(ctx, upstream, verify); err != nil {
		t.Fatalf("verify clone: %v", err)
	}
	verifyRev, err := client.Revision(ctx, verify)
	if err != nil {
		t.Fatalf("verify revision: %v", err)
	}
	if verifyRev != rev {
		t.Fatalf("upstream revision %s, want %s", verifyRev, rev)
	}
}

func TestGitClientCommitNothingToCommit(t *testing.T) {
	t.Parallel()

	upstream, _ := newUpstream(t)
	checkout := filepath.Join(t.TempDir(), "checkout")
	client := &GitClient{}
	ctx := context.Background()

	if err := client.Update(ctx, upstream, checkout); err != nil {
		t.Fatalf("update: %v", err)
	}
	author := Author{Name: "Translator", Email: "translator@example.com"}
	if err := client.Commit(ctx, checkout, "No changes", author, upstream); err != nil {
		t.Fatalf("clean commit must be a no-op, got %v", err)
	}
}

func TestClientForUnknownType(t *testing.T) {
	t.Parallel()

	if _, err := ClientFor("cvs", Credentials{}); err == nil {
		t.Fatalf("expected unsupported type to fail")
	}
}
