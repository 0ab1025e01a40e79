package vcs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/crowdlate/crowdlate/faults"
)

// execClient shells out to a VCS binary. Used for mercurial and
// subversion, which have no usable native Go implementation.
type execClient struct {
	binary       string
	cloneArgs    func(url, path string) []string
	updateArgs   func(url string) []string
	revisionArgs []string
	commitArgs   func(message string, author Author, url string) [][]string
	checkoutDir  string
}

func newHgClient() *execClient {
	return &execClient{
		binary:       "hg",
		checkoutDir:  ".hg",
		cloneArgs:    func(url, path string) []string { return []string{"clone", url, path} },
		updateArgs:   func(url string) []string { return []string{"pull", "-u", url} },
		revisionArgs: []string{"id", "-i", "--debug"},
		commitArgs: func(message string, author Author, url string) [][]string {
			return [][]string{
				{"addremove"},
				{"commit", "-m", message, "-u", author.String()},
				{"push", url},
			}
		},
	}
}

func newSvnClient(creds Credentials) *execClient {
	authArgs := func(args []string) []string {
		if creds.Username != "" {
			args = append(args, "--username", creds.Username, "--password", creds.Password)
		}
		return append(args, "--non-interactive")
	}
	return &execClient{
		binary:      "svn",
		checkoutDir: ".svn",
		cloneArgs: func(url, path string) []string {
			return authArgs([]string{"checkout", url, path})
		},
		updateArgs: func(url string) []string {
			return authArgs([]string{"update"})
		},
		revisionArgs: authArgs([]string{"info", "--show-item", "revision"}),
		commitArgs: func(message string, author Author, url string) [][]string {
			return [][]string{
				authArgs([]string{"commit", "-m", message, "--with-revprop", "author=" + author.String()}),
			}
		},
	}
}

func (c *execClient) Update(ctx context.Context, url, checkoutPath string) error {
	if _, err := os.Stat(filepath.Join(checkoutPath, c.checkoutDir)); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(checkoutPath), 0o755); err != nil {
			return faults.Transient("create checkout parent for "+checkoutPath, err)
		}
		return c.run(ctx, "", c.cloneArgs(url, checkoutPath))
	}
	return c.run(ctx, checkoutPath, c.updateArgs(url))
}

func (c *execClient) Revision(ctx context.Context, checkoutPath string) (string, error) {
	out, err := c.output(ctx, checkoutPath, c.revisionArgs)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (c *execClient) Commit(ctx context.Context, path, message string, author Author, url string) error {
	for _, args := range c.commitArgs(message, author, url) {
		if err := c.run(ctx, path, args); err != nil {
			return err
		}
	}
	return nil
}

func (c *execClient) run(ctx context.Context, dir string, args []string) error {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return faults.Transient(c.binary+" "+strings.Join(args, " ")+": "+strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (c *execClient) output(ctx context.Context, dir string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return "", faults.Transient(c.binary+" "+strings.Join(args, " "), err)
	}
	return string(out), nil
}
