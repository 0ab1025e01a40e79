// Package config loads the service configuration from a YAML file and
// fills in defaults.
package config

import (
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/crowdlate/crowdlate/faults"
)

type Commit struct {
	// Name and Email sign sync commits when no translator authored the
	// change being pushed.
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type Credentials struct {
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	SSHKeyPath string `yaml:"sshKeyPath"`
}

type Config struct {
	// Workdir is the root for project checkouts.
	Workdir string `yaml:"workdir"`

	// DatabasePath is the SQLite database file.
	DatabasePath string `yaml:"databasePath"`

	// Concurrency bounds how many projects sync at once.
	Concurrency int `yaml:"concurrency"`

	// MetricsAddr, when set, serves Prometheus metrics on that address.
	MetricsAddr string `yaml:"metricsAddr"`

	// Verbosity is the log verbosity threshold.
	Verbosity int `yaml:"verbosity"`

	Commit      Commit      `yaml:"commit"`
	Credentials Credentials `yaml:"credentials"`
}

func Default() *Config {
	return &Config{
		Workdir:      "/var/lib/crowdlate",
		DatabasePath: "/var/lib/crowdlate/crowdlate.db",
		Concurrency:  4,
		Commit: Commit{
			Name:  "Crowdlate",
			Email: "sync@crowdlate.example",
		},
	}
}

// Load reads the YAML file at path on top of the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, faults.NewTypedError(faults.ConfigurationError, "read config "+path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, faults.NewTypedError(faults.ConfigurationError, "parse config "+path, err)
	}
	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.Workdir == "" {
		return faults.Configuration("workdir must not be empty")
	}
	if c.DatabasePath == "" {
		return faults.Configuration("databasePath must not be empty")
	}
	if c.Concurrency < 1 {
		return faults.Configuration("concurrency must be at least 1")
	}
	return nil
}
