package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crowdlate/crowdlate/faults"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Concurrency != 4 || cfg.Workdir == "" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
workdir: /srv/l10n
databasePath: /srv/l10n/db.sqlite
concurrency: 8
commit:
  name: L10n Bot
  email: bot@example.org
credentials:
  sshKeyPath: /etc/keys/id_ed25519
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Workdir != "/srv/l10n" || cfg.Concurrency != 8 {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Commit.Name != "L10n Bot" || cfg.Credentials.SSHKeyPath != "/etc/keys/id_ed25519" {
		t.Errorf("nested config = %+v", cfg)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("concurrency: 0\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(path)
	if !faults.IsCategory(err, faults.ConfigurationError) {
		t.Errorf("error = %v, want ConfigurationError", err)
	}
}
