package cmd

import (
	stdlog "log"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"

	"github.com/crowdlate/crowdlate/checks"
	"github.com/crowdlate/crowdlate/config"
	"github.com/crowdlate/crowdlate/formats"
	"github.com/crowdlate/crowdlate/formats/builtin"
	"github.com/crowdlate/crowdlate/metrics"
	"github.com/crowdlate/crowdlate/repository"
	"github.com/crowdlate/crowdlate/storage"
	"github.com/crowdlate/crowdlate/sync"
	"github.com/crowdlate/crowdlate/vcs"
)

// runtime is the wired-up service a command runs against. Commands
// build it lazily in RunE so help and completion never touch the
// database.
type runtime struct {
	cfg    *config.Config
	store  *storage.Store
	syncer *sync.Syncer
	log    logr.Logger
}

func newRuntime(configPath string, verbosity int, syncMetrics *metrics.SyncMetrics) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbosity > cfg.Verbosity {
		cfg.Verbosity = verbosity
	}
	stdr.SetVerbosity(cfg.Verbosity)
	log := stdr.New(stdlog.New(os.Stderr, "", stdlog.LstdFlags))

	store, err := storage.Open(cfg.DatabasePath, log.WithName("storage"))
	if err != nil {
		return nil, err
	}

	registry := formats.NewRegistry()
	builtin.Register(registry)

	manager := repository.NewDefaultManager(cfg.Workdir, vcs.Credentials{
		Username:   cfg.Credentials.Username,
		Password:   cfg.Credentials.Password,
		SSHKeyPath: cfg.Credentials.SSHKeyPath,
	}, log.WithName("repository"))

	syncer := sync.NewSyncer(sync.Options{
		Store:    store,
		Repos:    manager,
		Registry: registry,
		Checker:  checks.NewDefaultChecker(),
		Metrics:  syncMetrics,
		Log:      log.WithName("sync"),
		CommitAuthor: vcs.Author{
			Name:  cfg.Commit.Name,
			Email: cfg.Commit.Email,
		},
	})

	return &runtime{cfg: cfg, store: store, syncer: syncer, log: log}, nil
}

func (r *runtime) Close() {
	if r.store != nil {
		_ = r.store.Close()
	}
}
