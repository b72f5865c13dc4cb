// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process-wide configuration, read once at startup.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`

	MongoURI string `yaml:"mongo_uri"`
	MongoDB  string `yaml:"mongo_db"`

	// PeripheryPasskey authenticates the core to agents; a server's own
	// passkey takes precedence.
	PeripheryPasskey string `yaml:"periphery_passkey"`

	// GithubAccounts and DockerAccounts map account names to tokens. Only
	// the names ever leave the process.
	GithubAccounts map[string]string `yaml:"github_accounts"`
	DockerAccounts map[string]string `yaml:"docker_accounts"`

	StatsIntervalSeconds int `yaml:"stats_interval_seconds"`
	ProbeLimit           int `yaml:"probe_limit"`

	LongCallTimeoutSeconds int `yaml:"long_call_timeout_seconds"`
	ProbeTimeoutSeconds    int `yaml:"probe_timeout_seconds"`

	// Updates still in_progress with no progress after this long are
	// swept to complete-failed.
	UpdateStaleAfterSeconds int `yaml:"update_stale_after_seconds"`
}

// DefaultConfig returns the config a fresh install runs with.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:              ":9120",
		MongoURI:                "mongodb://127.0.0.1:27017",
		MongoDB:                 "monitor",
		StatsIntervalSeconds:    30,
		ProbeLimit:              8,
		LongCallTimeoutSeconds:  60,
		ProbeTimeoutSeconds:     10,
		UpdateStaleAfterSeconds: 2 * 60 * 60,
	}
}

// LoadConfig reads a yaml config file over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSeconds) * time.Second
}

func (c *Config) LongCallTimeout() time.Duration {
	return time.Duration(c.LongCallTimeoutSeconds) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

func (c *Config) UpdateStaleAfter() time.Duration {
	return time.Duration(c.UpdateStaleAfterSeconds) * time.Second
}
