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

// Package periphery is the RPC client for the agents running on target
// servers. Calls are request-response JSON over HTTP with a shared
// passkey; transport failures surface as periphery_unreachable, agent-side
// command failures come back as logs with success=false.
package periphery

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hectolitro/monitor/pkg/types"
)

// PasskeyHeader carries the shared secret on every agent request.
const PasskeyHeader = "X-Monitor-Passkey"

const (
	DefaultLongCallTimeout = 60 * time.Second
	DefaultProbeTimeout    = 10 * time.Second
)

// Client is a stateless wrapper over the HTTP transport; it is safe for
// concurrent use. One logical connection per server is provided by the
// shared http.Client's pooling.
type Client struct {
	hc *http.Client
	// Passkey is the core-wide secret, overridden per server by
	// ServerConfig.Passkey.
	passkey string

	longCallTimeout time.Duration
	probeTimeout    time.Duration
}

// Opts tune the client; zero values take defaults.
type Opts struct {
	Passkey         string
	LongCallTimeout time.Duration
	ProbeTimeout    time.Duration
}

func NewClient(opts Opts) *Client {
	if opts.LongCallTimeout == 0 {
		opts.LongCallTimeout = DefaultLongCallTimeout
	}
	if opts.ProbeTimeout == 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	return &Client{
		hc:              &http.Client{},
		passkey:         opts.Passkey,
		longCallTimeout: opts.LongCallTimeout,
		probeTimeout:    opts.ProbeTimeout,
	}
}

// response is the agent reply envelope.
type response struct {
	Logs  []types.Log `json:"logs,omitempty"`
	Log   *types.Log  `json:"log,omitempty"`
	Busy  bool        `json:"busy,omitempty"`
	Error string      `json:"error,omitempty"`

	Containers []types.ContainerSummary `json:"containers,omitempty"`
	Stats      *types.SystemStats       `json:"stats,omitempty"`
	Accounts   *types.AvailableAccounts `json:"accounts,omitempty"`
}

func (c *Client) call(ctx context.Context, server *types.Server, timeout time.Duration, path string, body any) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, types.Errorf(types.ErrInternal, "failed to encode periphery request: %w", err)
		}
		rd = bytes.NewReader(b)
	}
	url := strings.TrimSuffix(server.Config.Host, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, rd)
	if err != nil {
		return nil, types.Errorf(types.ErrInternal, "failed to build periphery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	passkey := server.Config.Passkey
	if passkey == "" {
		passkey = c.passkey
	}
	req.Header.Set(PasskeyHeader, passkey)

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, types.Errorf(types.ErrPeripheryUnreachable, "failed to reach periphery on %s: %w", server.Name, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, types.Errorf(types.ErrPeripheryUnreachable, "failed to read periphery response from %s: %w", server.Name, err)
	}
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, types.Errorf(types.ErrPeripheryUnreachable, "bad periphery response from %s: %w", server.Name, err)
	}
	if r.Error != "" {
		return nil, types.Errorf(types.ErrPeripheryUnreachable, "periphery %s: %s", server.Name, r.Error)
	}
	if res.StatusCode != http.StatusOK {
		return nil, types.Errorf(types.ErrPeripheryUnreachable, "periphery %s: unexpected status %d", server.Name, res.StatusCode)
	}
	return &r, nil
}

// CloneRepo clones (or re-clones) a repo working copy on the server and
// runs its on_clone command, returning per-stage logs.
func (c *Client) CloneRepo(ctx context.Context, server *types.Server, args types.CloneArgs) ([]types.Log, error) {
	r, err := c.call(ctx, server, c.longCallTimeout, "/repo/clone", args)
	if err != nil {
		return nil, err
	}
	return r.Logs, nil
}

// PullRepo pulls an existing working copy and runs its on_pull command.
func (c *Client) PullRepo(ctx context.Context, server *types.Server, args types.CloneArgs) ([]types.Log, error) {
	r, err := c.call(ctx, server, c.longCallTimeout, "/repo/pull", args)
	if err != nil {
		return nil, err
	}
	return r.Logs, nil
}

// DeleteRepo removes the working copy with the given name.
func (c *Client) DeleteRepo(ctx context.Context, server *types.Server, name string) (types.Log, error) {
	r, err := c.call(ctx, server, c.longCallTimeout, "/repo/delete", map[string]string{"name": name})
	if err != nil {
		return types.Log{}, err
	}
	if r.Log == nil {
		return types.Log{}, types.Errorf(types.ErrPeripheryUnreachable, "periphery %s: missing log in delete response", server.Name)
	}
	return *r.Log, nil
}

// Build runs the image build for the given build. busy=true means the
// builder refused to start because another build is running; this is a
// control signal, not an error.
func (c *Client) Build(ctx context.Context, server *types.Server, build *types.Build) (logs []types.Log, busy bool, err error) {
	r, err := c.call(ctx, server, c.longCallTimeout, "/build", build)
	if err != nil {
		return nil, false, err
	}
	if r.Busy {
		return nil, true, nil
	}
	return r.Logs, false, nil
}

// deployRequest is the /deploy body.
type deployRequest struct {
	Deployment *types.Deployment `json:"deployment"`
	// Image overrides the configured image, used when the deployment is
	// linked to a build.
	Image      string `json:"image,omitempty"`
	StopSignal string `json:"stop_signal,omitempty"`
	StopTime   int    `json:"stop_time,omitempty"`
}

// Deploy replaces the deployment's container with a fresh one.
func (c *Client) Deploy(ctx context.Context, server *types.Server, deployment *types.Deployment, image string) ([]types.Log, error) {
	r, err := c.call(ctx, server, c.longCallTimeout, "/deploy", deployRequest{Deployment: deployment, Image: image})
	if err != nil {
		return nil, err
	}
	return r.Logs, nil
}

type containerRequest struct {
	Name   string `json:"name"`
	Signal string `json:"signal,omitempty"`
	Time   int    `json:"time,omitempty"`
}

// StartContainer starts the named container.
func (c *Client) StartContainer(ctx context.Context, server *types.Server, name string) ([]types.Log, error) {
	r, err := c.call(ctx, server, c.longCallTimeout, "/container/start", containerRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return r.Logs, nil
}

// StopContainer stops the named container. signal and stopTime are passed
// through to docker when non-zero.
func (c *Client) StopContainer(ctx context.Context, server *types.Server, name, signal string, stopTime int) ([]types.Log, error) {
	r, err := c.call(ctx, server, c.longCallTimeout, "/container/stop", containerRequest{Name: name, Signal: signal, Time: stopTime})
	if err != nil {
		return nil, err
	}
	return r.Logs, nil
}

// RemoveContainer stops and removes the named container.
func (c *Client) RemoveContainer(ctx context.Context, server *types.Server, name string) ([]types.Log, error) {
	r, err := c.call(ctx, server, c.longCallTimeout, "/container/remove", containerRequest{Name: name})
	if err != nil {
		return nil, err
	}
	return r.Logs, nil
}

func (c *Client) pruneCall(ctx context.Context, server *types.Server, path string) (types.Log, error) {
	r, err := c.call(ctx, server, c.longCallTimeout, path, nil)
	if err != nil {
		return types.Log{}, err
	}
	if r.Log == nil {
		return types.Log{}, types.Errorf(types.ErrPeripheryUnreachable, "periphery %s: missing log in prune response", server.Name)
	}
	return *r.Log, nil
}

func (c *Client) PruneImages(ctx context.Context, server *types.Server) (types.Log, error) {
	return c.pruneCall(ctx, server, "/prune/images")
}

func (c *Client) PruneContainers(ctx context.Context, server *types.Server) (types.Log, error) {
	return c.pruneCall(ctx, server, "/prune/containers")
}

func (c *Client) PruneNetworks(ctx context.Context, server *types.Server) (types.Log, error) {
	return c.pruneCall(ctx, server, "/prune/networks")
}

// GetContainerList enumerates the containers on the server.
func (c *Client) GetContainerList(ctx context.Context, server *types.Server) ([]types.ContainerSummary, error) {
	r, err := c.call(ctx, server, c.probeTimeout, "/containers", nil)
	if err != nil {
		return nil, err
	}
	return r.Containers, nil
}

// GetSystemStats fetches the host stats snapshot.
func (c *Client) GetSystemStats(ctx context.Context, server *types.Server) (types.SystemStats, error) {
	r, err := c.call(ctx, server, c.probeTimeout, "/stats", nil)
	if err != nil {
		return types.SystemStats{}, err
	}
	if r.Stats == nil {
		return types.SystemStats{}, types.Errorf(types.ErrPeripheryUnreachable, "periphery %s: missing stats in response", server.Name)
	}
	return *r.Stats, nil
}

// GetAccounts lists the credential account names configured on the agent.
func (c *Client) GetAccounts(ctx context.Context, server *types.Server) (types.AvailableAccounts, error) {
	r, err := c.call(ctx, server, c.probeTimeout, "/accounts", nil)
	if err != nil {
		return types.AvailableAccounts{}, err
	}
	if r.Accounts == nil {
		return types.AvailableAccounts{}, types.Errorf(types.ErrPeripheryUnreachable, "periphery %s: missing accounts in response", server.Name)
	}
	return *r.Accounts, nil
}

// Health probes the agent, returning nil when it is reachable.
func (c *Client) Health(ctx context.Context, server *types.Server) error {
	_, err := c.call(ctx, server, c.probeTimeout, "/health", nil)
	return err
}
