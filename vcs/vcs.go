// Package vcs wraps the version-control systems resource files live in.
// All operations are synchronous, blocking I/O; failures surface as
// transient faults the next sync cycle retries.
package vcs

import (
	"context"

	"github.com/crowdlate/crowdlate/faults"
	"github.com/crowdlate/crowdlate/model"
)

type Author struct {
	Name  string
	Email string
}

func (a Author) String() string {
	return a.Name + " <" + a.Email + ">"
}

type Client interface {
	// Update clones the repository at url into checkoutPath, or pulls
	// if a checkout already exists there.
	Update(ctx context.Context, url, checkoutPath string) error

	// Revision returns the opaque identifier of the current on-disk
	// revision.
	Revision(ctx context.Context, checkoutPath string) (string, error)

	// Commit records every pending change under path and propagates the
	// commit to url.
	Commit(ctx context.Context, path, message string, author Author, url string) error
}

// Credentials configure authentication for remotes that need it. The
// zero value means anonymous access.
type Credentials struct {
	Username   string
	Password   string
	SSHKeyPath string
}

// ClientFor returns the client implementation for a repository type.
func ClientFor(t model.VCSType, creds Credentials) (Client, error) {
	switch t {
	case model.Git:
		return &GitClient{Credentials: creds}, nil
	case model.Hg:
		return newHgClient(), nil
	case model.Svn:
		return newSvnClient(creds), nil
	}
	return nil, faults.Configuration("unsupported repository type " + string(t))
}
