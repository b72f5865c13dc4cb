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

// Package core is the orchestration engine: permission-gated resource
// mutations, diff-driven reconciliation, the Update ledger, and the
// dispatch of long-running actions to periphery agents.
package core

import (
	"context"
	"sync"
	"time"

	"tailscale.com/syncs"
	"tailscale.com/util/set"

	"github.com/hectolitro/monitor/pkg/db"
	"github.com/hectolitro/monitor/pkg/statuscache"
	"github.com/hectolitro/monitor/pkg/types"
)

// Periphery is the slice of the agent client the core dispatches through.
// Build returns busy=true when the agent refused to start a build; that is
// a control signal, not an error.
type Periphery interface {
	CloneRepo(ctx context.Context, server *types.Server, args types.CloneArgs) ([]types.Log, error)
	PullRepo(ctx context.Context, server *types.Server, args types.CloneArgs) ([]types.Log, error)
	DeleteRepo(ctx context.Context, server *types.Server, name string) (types.Log, error)
	Build(ctx context.Context, server *types.Server, build *types.Build) (logs []types.Log, busy bool, err error)
	Deploy(ctx context.Context, server *types.Server, deployment *types.Deployment, image string) ([]types.Log, error)
	StartContainer(ctx context.Context, server *types.Server, name string) ([]types.Log, error)
	StopContainer(ctx context.Context, server *types.Server, name, signal string, stopTime int) ([]types.Log, error)
	RemoveContainer(ctx context.Context, server *types.Server, name string) ([]types.Log, error)
	PruneImages(ctx context.Context, server *types.Server) (types.Log, error)
	PruneContainers(ctx context.Context, server *types.Server) (types.Log, error)
	PruneNetworks(ctx context.Context, server *types.Server) (types.Log, error)
	GetContainerList(ctx context.Context, server *types.Server) ([]types.ContainerSummary, error)
	GetSystemStats(ctx context.Context, server *types.Server) (types.SystemStats, error)
	GetAccounts(ctx context.Context, server *types.Server) (types.AvailableAccounts, error)
}

// ProvisionFunc provisions an ephemeral build host for an Aws builder. The
// default core has none configured and fails Aws builds with a validation
// error.
type ProvisionFunc func(ctx context.Context, builder *types.Builder) (*types.Server, error)

// Core is the control-plane engine. All request handlers go through it.
type Core struct {
	cfg       *Config
	store     *db.Store
	periphery Periphery
	status    *statuscache.Cache
	refresher *statuscache.Refresher
	provision ProvisionFunc

	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup syncs.WaitGroup

	updateListeners struct {
		mu sync.Mutex
		s  set.HandleSet[*updateListener]
	}
}

// New assembles a core over its collaborators. Call Start to launch the
// background tasks.
func New(cfg *Config, store *db.Store, periphery Periphery) *Core {
	c := &Core{
		cfg:       cfg,
		store:     store,
		periphery: periphery,
		status:    &statuscache.Cache{},
	}
	c.refresher = statuscache.NewRefresher(c.status, store, peripheryProber{periphery}, cfg.StatsInterval(), cfg.ProbeLimit)
	return c
}

// peripheryProber narrows Periphery to what the status refresher needs.
type peripheryProber struct{ p Periphery }

func (p peripheryProber) GetContainerList(ctx context.Context, s *types.Server) ([]types.ContainerSummary, error) {
	return p.p.GetContainerList(ctx, s)
}

func (p peripheryProber) GetSystemStats(ctx context.Context, s *types.Server) (types.SystemStats, error) {
	return p.p.GetSystemStats(ctx, s)
}

// SetProvisioner installs the ephemeral host provisioner used for Aws
// builders.
func (c *Core) SetProvisioner(f ProvisionFunc) { c.provision = f }

// StatusCache exposes the live snapshot cache for read paths.
func (c *Core) StatusCache() *statuscache.Cache { return c.status }

// Start launches the status refresher and the stale-update sweeper. It
// panics if the core is already started.
func (c *Core) Start() {
	if c.cancel != nil {
		panic("core already started")
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.refresher.Start()
	c.waitGroup.Go(c.sweepUpdates)
}

func (c *Core) Shutdown() {
	c.cancel()
	c.refresher.Shutdown()
	c.waitGroup.Wait()
}

// now returns the unix timestamp in milliseconds used across documents.
func now() int64 { return time.Now().UnixMilli() }
