package vcs

import (
	"context"
	"errors"
	"os"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"

	"github.com/crowdlate/crowdlate/faults"
)

// GitClient drives git checkouts through go-git.
type GitClient struct {
	Credentials Credentials
}

func (c *GitClient) Update(ctx context.Context, url, checkoutPath string) error {
	auth, err := c.auth()
	if err != nil {
		return err
	}

	repo, err := git.PlainOpen(checkoutPath)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		_, cloneErr := git.PlainCloneContext(ctx, checkoutPath, false, &git.CloneOptions{
			URL:  url,
			Auth: auth,
		})
		if cloneErr != nil {
			return faults.Transient("clone "+url, cloneErr)
		}
		return nil
	}
	if err != nil {
		return faults.Transient("open checkout "+checkoutPath, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return faults.Transient("worktree "+checkoutPath, err)
	}
	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteURL: url,
		Auth:      auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return faults.Transient("pull "+url, err)
	}
	return nil
}

func (c *GitClient) Revision(ctx context.Context, checkoutPath string) (string, error) {
	repo, err := git.PlainOpen(checkoutPath)
	if err != nil {
		return "", faults.Transient("open checkout "+checkoutPath, err)
	}
	head, err := repo.Head()
	if err != nil {
		return "", faults.Transient("resolve head in "+checkoutPath, err)
	}
	return head.Hash().String(), nil
}

func (c *GitClient) Commit(ctx context.Context, path, message string, author Author, url string) error {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return faults.Transient("open checkout "+path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return faults.Transient("worktree "+path, err)
	}

	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return faults.Transient("stage changes in "+path, err)
	}

	status, err := wt.Status()
	if err != nil {
		return faults.Transient("status "+path, err)
	}
	if status.IsClean() {
		// Nothing new on disk; the translations already match.
		return nil
	}

	signature := object.Signature{
		Name:  author.Name,
		Email: author.Email,
		When:  time.Now(),
	}
	if _, err := wt.Commit(message, &git.CommitOptions{
		Author:    &signature,
		Committer: &signature,
	}); err != nil {
		return faults.Transient("commit in "+path, err)
	}

	auth, err := c.auth()
	if err != nil {
		return err
	}
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteURL: url,
		Auth:      auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return faults.Transient("push "+url, err)
	}
	return nil
}

func (c *GitClient) auth() (transport.AuthMethod, error) {
	creds := c.Credentials
	if creds.SSHKeyPath != "" {
		key, err := os.ReadFile(creds.SSHKeyPath)
		if err != nil {
			return nil, faults.Configuration("read ssh key " + creds.SSHKeyPath + ": " + err.Error())
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, faults.Configuration("parse ssh key " + creds.SSHKeyPath + ": " + err.Error())
		}
		user := creds.Username
		if user == "" {
			user = "git"
		}
		return &gitssh.PublicKeys{User: user, Signer: signer}, nil
	}
	if creds.Username != "" {
		return &githttp.BasicAuth{Username: creds.Username, Password: creds.Password}, nil
	}
	return nil, nil
}
