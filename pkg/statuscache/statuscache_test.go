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

package statuscache

import (
	"context"
	"testing"

	"github.com/hectolitro/monitor/pkg/db"
	"github.com/hectolitro/monitor/pkg/types"
)

type fakeProber struct {
	statsErr   error
	containers map[string][]types.ContainerSummary // server id -> containers
}

func (f *fakeProber) GetSystemStats(_ context.Context, server *types.Server) (types.SystemStats, error) {
	if f.statsErr != nil {
		return types.SystemStats{}, f.statsErr
	}
	return types.SystemStats{CPUPerc: 12.5}, nil
}

func (f *fakeProber) GetContainerList(_ context.Context, server *types.Server) ([]types.ContainerSummary, error) {
	return f.containers[server.ID], nil
}

func seedServer(t *testing.T, store *db.Store, name string, enabled bool) string {
	t.Helper()
	cfg := types.DefaultServerConfig()
	cfg.Host = "http://" + name
	cfg.Enabled = enabled
	id, err := store.Servers.CreateOne(context.Background(), types.Server{Name: name, Config: cfg})
	if err != nil {
		t.Fatalf("seed server %s: %v", name, err)
	}
	return id
}

func seedDeployment(t *testing.T, store *db.Store, name, serverID string) string {
	t.Helper()
	id, err := store.Deployments.CreateOne(context.Background(), types.Deployment{
		Name:   name,
		Config: types.DeploymentConfig{ServerID: serverID, DockerRunArgs: types.DefaultDockerRunArgs()},
	})
	if err != nil {
		t.Fatalf("seed deployment %s: %v", name, err)
	}
	return id
}

func TestRefreshFansContainerStateIntoDeployments(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	srvID := seedServer(t, store, "srv", true)
	dRunning := seedDeployment(t, store, "web", srvID)
	dMissing := seedDeployment(t, store, "worker", srvID)

	prober := &fakeProber{containers: map[string][]types.ContainerSummary{
		srvID: {
			{Name: "web", State: types.DeploymentStateRunning, Status: "Up 5 minutes"},
			{Name: "unrelated", State: types.DeploymentStateExited},
		},
	}}
	cache := &Cache{}
	r := NewRefresher(cache, store, prober, 0, 0)
	if err := r.RefreshNow(ctx); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}

	if got := cache.Server(srvID); got.Status != types.ServerStatusOk || got.Stats.CPUPerc != 12.5 {
		t.Errorf("server entry = %+v, want ok with stats", got)
	}
	if got := cache.Deployment(dRunning); got.State != types.DeploymentStateRunning || got.Container == nil {
		t.Errorf("running deployment entry = %+v", got)
	}
	if got := cache.Deployment(dMissing); got.State != types.DeploymentStateUnknown {
		t.Errorf("deployment without container = %+v, want unknown", got)
	}

	// Connectivity is recorded on the server document.
	srv, err := store.Servers.GetOne(ctx, srvID)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if srv.Info.LastSeenAt == 0 {
		t.Error("last_seen_at not recorded after a successful probe")
	}
}

func TestRefreshDisabledServer(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	srvID := seedServer(t, store, "srv", false)

	cache := &Cache{}
	r := NewRefresher(cache, store, &fakeProber{}, 0, 0)
	if err := r.RefreshNow(ctx); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	if got := cache.Server(srvID); got.Status != types.ServerStatusDisabled {
		t.Errorf("disabled server status = %v, want disabled", got.Status)
	}
}

func TestRefreshUnreachableServer(t *testing.T) {
	ctx := context.Background()
	store := db.NewMemoryStore()
	srvID := seedServer(t, store, "srv", true)
	dID := seedDeployment(t, store, "web", srvID)

	cache := &Cache{}
	// Seed a previous entry to verify it is invalidated.
	cache.SetDeployment(dID, DeploymentEntry{State: types.DeploymentStateRunning})

	prober := &fakeProber{statsErr: types.Errorf(types.ErrPeripheryUnreachable, "down")}
	r := NewRefresher(cache, store, prober, 0, 0)
	if err := r.RefreshNow(ctx); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	if got := cache.Server(srvID); got.Status != types.ServerStatusNotOk {
		t.Errorf("unreachable server status = %v, want not ok", got.Status)
	}
	if got := cache.Deployment(dID); got.State != types.DeploymentStateUnknown {
		t.Errorf("deployment on unreachable server = %v, want unknown", got.State)
	}
}

func TestMissingEntriesReadUnknown(t *testing.T) {
	cache := &Cache{}
	if got := cache.Server("nope"); got.Status != types.ServerStatusUnknown {
		t.Errorf("missing server entry = %v, want unknown", got.Status)
	}
	if got := cache.Deployment("nope"); got.State != types.DeploymentStateUnknown {
		t.Errorf("missing deployment entry = %v, want unknown", got.State)
	}
}
