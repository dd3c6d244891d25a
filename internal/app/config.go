package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ActionsPath string // hcl action file
	DataPath    string // blueprint dataset file; empty means synthesize

	ExampleDomains int
	ExamplePoints  int

	LogFormat string
	LogLevel  string
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ActionsPath == "" {
		return nil, errors.New("ActionsPath is a required configuration field and cannot be empty")
	}
	if cfg.DataPath == "" {
		if cfg.ExampleDomains < 1 {
			return nil, errors.New("ExampleDomains must be at least 1 when no dataset file is given")
		}
		if cfg.ExamplePoints < 2 {
			return nil, errors.New("ExamplePoints must be at least 2 when no dataset file is given")
		}
	}
	return &cfg, nil
}
