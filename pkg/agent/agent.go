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

// Package agent is the periphery service that runs on target servers. It
// executes docker and git on behalf of the core and streams per-stage
// logs back. A single build runs at a time; a second request gets the
// busy signal instead of queueing.
package agent

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sort"
	"sync/atomic"

	"github.com/docker/docker/client"
	"gopkg.in/yaml.v3"

	"github.com/hectolitro/monitor/pkg/periphery"
	"github.com/hectolitro/monitor/pkg/types"
)

// Config is the agent's startup configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	Passkey    string `yaml:"passkey"`
	// RootDir holds the repo working copies, one directory per resource
	// name.
	RootDir string `yaml:"root_dir"`

	// Account tokens available on this host. Only the names are reported
	// to the core.
	GithubAccounts map[string]string `yaml:"github_accounts"`
	DockerAccounts map[string]string `yaml:"docker_accounts"`
}

// DefaultConfig returns the config a fresh agent runs with.
func DefaultConfig() Config {
	return Config{
		ListenAddr: ":9121",
		RootDir:    "/var/lib/monitor-periphery",
	}
}

// LoadConfig reads a yaml config file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Server handles the periphery endpoints.
type Server struct {
	cfg    Config
	docker *client.Client

	building atomic.Bool
}

// New builds an agent server. The docker API client is used for container
// enumeration; all mutating docker operations go through the CLI so their
// output lands in stage logs.
func New(cfg Config) (*Server, error) {
	dc, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if err := os.MkdirAll(cfg.RootDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create root dir: %w", err)
	}
	return &Server{cfg: cfg, docker: dc}, nil
}

// response is the reply envelope shared with the core's client.
type response struct {
	Logs  []types.Log `json:"logs,omitempty"`
	Log   *types.Log  `json:"log,omitempty"`
	Busy  bool        `json:"busy,omitempty"`
	Error string      `json:"error,omitempty"`

	Containers []types.ContainerSummary `json:"containers,omitempty"`
	Stats      *types.SystemStats       `json:"stats,omitempty"`
	Accounts   *types.AvailableAccounts `json:"accounts,omitempty"`
}

// Handler returns the passkey-gated request mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, response{})
	})
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/containers", s.handleContainers)
	mux.HandleFunc("/accounts", s.handleAccounts)
	mux.HandleFunc("/repo/clone", s.handleCloneRepo)
	mux.HandleFunc("/repo/pull", s.handlePullRepo)
	mux.HandleFunc("/repo/delete", s.handleDeleteRepo)
	mux.HandleFunc("/build", s.handleBuild)
	mux.HandleFunc("/deploy", s.handleDeploy)
	mux.HandleFunc("/container/start", s.handleContainerStart)
	mux.HandleFunc("/container/stop", s.handleContainerStop)
	mux.HandleFunc("/container/remove", s.handleContainerRemove)
	mux.HandleFunc("/prune/images", s.handlePruneImages)
	mux.HandleFunc("/prune/containers", s.handlePruneContainers)
	mux.HandleFunc("/prune/networks", s.handlePruneNetworks)
	return s.checkPasskey(mux)
}

func (s *Server) checkPasskey(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Passkey != "" && r.Header.Get(periphery.PasskeyHeader) != s.cfg.Passkey {
			w.WriteHeader(http.StatusUnauthorized)
			writeJSON(w, response{Error: "bad passkey"})
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func readJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, response{Error: fmt.Sprintf("bad request body: %v", err)})
		return v, false
	}
	return v, true
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, response{Accounts: &types.AvailableAccounts{
		Github: sortedKeys(s.cfg.GithubAccounts),
		Docker: sortedKeys(s.cfg.DockerAccounts),
	}})
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := systemStats(r.Context())
	if err != nil {
		writeJSON(w, response{Error: err.Error()})
		return
	}
	writeJSON(w, response{Stats: &stats})
}

func (s *Server) handleContainers(w http.ResponseWriter, r *http.Request) {
	containers, err := s.listContainers(r.Context())
	if err != nil {
		writeJSON(w, response{Error: err.Error()})
		return
	}
	writeJSON(w, response{Containers: containers})
}

func (s *Server) handleCloneRepo(w http.ResponseWriter, r *http.Request) {
	args, ok := readJSON[types.CloneArgs](w, r)
	if !ok {
		return
	}
	writeJSON(w, response{Logs: s.cloneRepo(r.Context(), args)})
}

func (s *Server) handlePullRepo(w http.ResponseWriter, r *http.Request) {
	args, ok := readJSON[types.CloneArgs](w, r)
	if !ok {
		return
	}
	writeJSON(w, response{Logs: s.pullRepo(r.Context(), args)})
}

func (s *Server) handleDeleteRepo(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[struct {
		Name string `json:"name"`
	}](w, r)
	if !ok {
		return
	}
	l := s.deleteRepo(req.Name)
	writeJSON(w, response{Log: &l})
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	build, ok := readJSON[types.Build](w, r)
	if !ok {
		return
	}
	logs, busy := s.build(r.Context(), &build)
	if busy {
		writeJSON(w, response{Busy: true})
		return
	}
	writeJSON(w, response{Logs: logs})
}

type deployRequest struct {
	Deployment *types.Deployment `json:"deployment"`
	Image      string            `json:"image,omitempty"`
	StopSignal string            `json:"stop_signal,omitempty"`
	StopTime   int               `json:"stop_time,omitempty"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[deployRequest](w, r)
	if !ok {
		return
	}
	if req.Deployment == nil {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, response{Error: "missing deployment"})
		return
	}
	writeJSON(w, response{Logs: s.deploy(r.Context(), req)})
}

type containerRequest struct {
	Name   string `json:"name"`
	Signal string `json:"signal,omitempty"`
	Time   int    `json:"time,omitempty"`
}

func (s *Server) handleContainerStart(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[containerRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, response{Logs: []types.Log{s.startContainer(r.Context(), req.Name)}})
}

func (s *Server) handleContainerStop(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[containerRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, response{Logs: []types.Log{s.stopContainer(r.Context(), req.Name, req.Signal, req.Time)}})
}

func (s *Server) handleContainerRemove(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[containerRequest](w, r)
	if !ok {
		return
	}
	writeJSON(w, response{Logs: s.removeContainer(r.Context(), req.Name)})
}

func (s *Server) handlePruneImages(w http.ResponseWriter, r *http.Request) {
	l := s.pruneImages(r.Context())
	writeJSON(w, response{Log: &l})
}

func (s *Server) handlePruneContainers(w http.ResponseWriter, r *http.Request) {
	l := s.pruneContainers(r.Context())
	writeJSON(w, response{Log: &l})
}

func (s *Server) handlePruneNetworks(w http.ResponseWriter, r *http.Request) {
	l := s.pruneNetworks(r.Context())
	writeJSON(w, response{Log: &l})
}
