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

// Package statuscache tracks live server and deployment state in memory.
// A background refresher probes every enabled server on an interval and
// swaps whole snapshot entries; readers never block.
package statuscache

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"
	"tailscale.com/syncs"

	"github.com/hectolitro/monitor/pkg/db"
	"github.com/hectolitro/monitor/pkg/types"
)

// ServerEntry is the cached snapshot for one server.
type ServerEntry struct {
	Status types.ServerStatus
	Stats  types.SystemStats
}

// DeploymentEntry is the cached snapshot for one deployment; Container is
// nil when the container was not observed.
type DeploymentEntry struct {
	State     types.DeploymentState
	Container *types.ContainerSummary
}

// Cache holds the two snapshot maps. The zero value is ready to use.
type Cache struct {
	servers     syncs.Map[string, ServerEntry]
	deployments syncs.Map[string, DeploymentEntry]
}

// Server returns the cached entry for a server id; missing entries read as
// Unknown.
func (c *Cache) Server(id string) ServerEntry {
	e, ok := c.servers.Load(id)
	if !ok {
		return ServerEntry{Status: types.ServerStatusUnknown}
	}
	return e
}

// Deployment returns the cached entry for a deployment id; missing entries
// read as Unknown.
func (c *Cache) Deployment(id string) DeploymentEntry {
	e, ok := c.deployments.Load(id)
	if !ok {
		return DeploymentEntry{State: types.DeploymentStateUnknown}
	}
	return e
}

// SetServer replaces a server entry.
func (c *Cache) SetServer(id string, e ServerEntry) { c.servers.Store(id, e) }

// SetDeployment replaces a deployment entry.
func (c *Cache) SetDeployment(id string, e DeploymentEntry) { c.deployments.Store(id, e) }

// DropDeployment removes a deployment entry so reads fall back to Unknown.
func (c *Cache) DropDeployment(id string) { c.deployments.Delete(id) }

// Prober is the slice of the periphery client the refresher needs.
type Prober interface {
	GetContainerList(ctx context.Context, server *types.Server) ([]types.ContainerSummary, error)
	GetSystemStats(ctx context.Context, server *types.Server) (types.SystemStats, error)
}

const (
	DefaultInterval   = 30 * time.Second
	DefaultProbeLimit = 8
)

// Refresher periodically refreshes the cache from the fleet.
type Refresher struct {
	cache  *Cache
	store  *db.Store
	prober Prober

	interval   time.Duration
	probeLimit int

	ctx       context.Context
	cancel    context.CancelFunc
	waitGroup syncs.WaitGroup
}

func NewRefresher(cache *Cache, store *db.Store, prober Prober, interval time.Duration, probeLimit int) *Refresher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if probeLimit <= 0 {
		probeLimit = DefaultProbeLimit
	}
	return &Refresher{
		cache:      cache,
		store:      store,
		prober:     prober,
		interval:   interval,
		probeLimit: probeLimit,
	}
}

// Start launches the refresh loop. It panics if already started.
func (r *Refresher) Start() {
	if r.cancel != nil {
		panic("refresher already started")
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.waitGroup.Go(r.run)
}

func (r *Refresher) Shutdown() {
	r.cancel()
	r.waitGroup.Wait()
}

func (r *Refresher) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	if err := r.RefreshNow(r.ctx); err != nil {
		log.Printf("status refresh failed: %v", err)
	}
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			if err := r.RefreshNow(r.ctx); err != nil {
				log.Printf("status refresh failed: %v", err)
			}
		}
	}
}

// RefreshNow probes every enabled server once, with a bounded worker pool,
// and swaps the cache entries. Disabled servers are marked without being
// probed.
func (r *Refresher) RefreshNow(ctx context.Context) error {
	servers, err := r.store.Servers.GetSome(ctx, nil)
	if err != nil {
		return err
	}
	deployments, err := r.store.Deployments.GetSome(ctx, nil)
	if err != nil {
		return err
	}
	byServer := make(map[string][]types.Deployment)
	for _, d := range deployments {
		byServer[d.Config.ServerID] = append(byServer[d.Config.ServerID], d)
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.probeLimit)
	for i := range servers {
		server := &servers[i]
		if !server.Config.Enabled {
			r.cache.SetServer(server.ID, ServerEntry{Status: types.ServerStatusDisabled})
			continue
		}
		eg.Go(func() error {
			r.refreshServer(ctx, server, byServer[server.ID])
			return nil
		})
	}
	return eg.Wait()
}

func (r *Refresher) refreshServer(ctx context.Context, server *types.Server, deployments []types.Deployment) {
	stats, err := r.prober.GetSystemStats(ctx, server)
	if err != nil {
		r.cache.SetServer(server.ID, ServerEntry{Status: types.ServerStatusNotOk})
		for _, d := range deployments {
			r.cache.DropDeployment(d.ID)
		}
		return
	}
	r.cache.SetServer(server.ID, ServerEntry{Status: types.ServerStatusOk, Stats: stats})
	// Connectivity bookkeeping is best effort.
	if err := r.store.Servers.Patch(ctx, server.ID, bson.M{"info.last_seen_at": time.Now().UnixMilli()}); err != nil {
		log.Printf("failed to record last_seen_at for %s: %v", server.Name, err)
	}

	containers, err := r.prober.GetContainerList(ctx, server)
	if err != nil {
		log.Printf("failed to list containers on %s: %v", server.Name, err)
		return
	}
	byName := make(map[string]types.ContainerSummary, len(containers))
	for _, c := range containers {
		byName[c.Name] = c
	}
	// Container name on the host equals the deployment name.
	for _, d := range deployments {
		if c, ok := byName[d.Name]; ok {
			c := c
			r.cache.SetDeployment(d.ID, DeploymentEntry{State: c.State, Container: &c})
		} else {
			r.cache.DropDeployment(d.ID)
		}
	}
}
