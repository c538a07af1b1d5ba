package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/savefile/client/throttle"
)

// config is the optional YAML file passed with --config.
type config struct {
	Dir       string            `yaml:"dir"`
	UserAgent string            `yaml:"user_agent"`
	Timeout   time.Duration     `yaml:"timeout"`
	Throttle  *throttle.Config  `yaml:"throttle"`
	Headers   map[string]string `yaml:"headers"`
	Token     string            `yaml:"token"`
}

func loadConfig(path string) (config, error) {
	cfg := config{Dir: "."}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Throttle != nil {
		if err := cfg.Throttle.Validate(); err != nil {
			return cfg, fmt.Errorf("throttle: %w", err)
		}
	}

	return cfg, nil
}

func (c config) headers() map[string][]string {
	h := make(map[string][]string, len(c.Headers))
	for k, v := range c.Headers {
		h[k] = []string{v}
	}

	return h
}
