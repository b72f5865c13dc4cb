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
	"context"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hectolitro/monitor/pkg/db"
	"github.com/hectolitro/monitor/pkg/statuscache"
	"github.com/hectolitro/monitor/pkg/types"
)

// cacheEntryRunning is a running-container cache entry for tests.
func cacheEntryRunning(name string) statuscache.DeploymentEntry {
	return statuscache.DeploymentEntry{
		State: types.DeploymentStateRunning,
		Container: &types.ContainerSummary{
			Name:   name,
			State:  types.DeploymentStateRunning,
			Status: "Up 2 minutes",
		},
	}
}

// fakePeriphery implements Periphery with per-call hooks. Unset hooks
// succeed with empty results.
type fakePeriphery struct {
	cloneRepo func(server *types.Server, args types.CloneArgs) ([]types.Log, error)
	pullRepo  func(server *types.Server, args types.CloneArgs) ([]types.Log, error)
	deleteRep func(server *types.Server, name string) (types.Log, error)
	build     func(server *types.Server, build *types.Build) ([]types.Log, bool, error)
	deploy    func(server *types.Server, deployment *types.Deployment, image string) ([]types.Log, error)
	accounts  func(server *types.Server) (types.AvailableAccounts, error)

	stopped []string
	removed []string
}

func (f *fakePeriphery) CloneRepo(_ context.Context, server *types.Server, args types.CloneArgs) ([]types.Log, error) {
	if f.cloneRepo != nil {
		return f.cloneRepo(server, args)
	}
	return []types.Log{types.SimpleLog("clone repo", "cloned")}, nil
}

func (f *fakePeriphery) PullRepo(_ context.Context, server *types.Server, args types.CloneArgs) ([]types.Log, error) {
	if f.pullRepo != nil {
		return f.pullRepo(server, args)
	}
	return []types.Log{types.SimpleLog("pull repo", "pulled")}, nil
}

func (f *fakePeriphery) DeleteRepo(_ context.Context, server *types.Server, name string) (types.Log, error) {
	if f.deleteRep != nil {
		return f.deleteRep(server, name)
	}
	return types.SimpleLog("delete repo", "deleted"), nil
}

func (f *fakePeriphery) Build(_ context.Context, server *types.Server, build *types.Build) ([]types.Log, bool, error) {
	if f.build != nil {
		return f.build(server, build)
	}
	return []types.Log{types.SimpleLog("build", "built")}, false, nil
}

func (f *fakePeriphery) Deploy(_ context.Context, server *types.Server, deployment *types.Deployment, image string) ([]types.Log, error) {
	if f.deploy != nil {
		return f.deploy(server, deployment, image)
	}
	return []types.Log{types.SimpleLog("deploy", "deployed")}, nil
}

func (f *fakePeriphery) StartContainer(_ context.Context, _ *types.Server, name string) ([]types.Log, error) {
	return []types.Log{types.SimpleLog("start container", name)}, nil
}

func (f *fakePeriphery) StopContainer(_ context.Context, _ *types.Server, name, _ string, _ int) ([]types.Log, error) {
	f.stopped = append(f.stopped, name)
	return []types.Log{types.SimpleLog("stop container", name)}, nil
}

func (f *fakePeriphery) RemoveContainer(_ context.Context, _ *types.Server, name string) ([]types.Log, error) {
	f.removed = append(f.removed, name)
	return []types.Log{types.SimpleLog("remove container", name)}, nil
}

func (f *fakePeriphery) PruneImages(_ context.Context, _ *types.Server) (types.Log, error) {
	return types.SimpleLog("prune images", "pruned"), nil
}

func (f *fakePeriphery) PruneContainers(_ context.Context, _ *types.Server) (types.Log, error) {
	return types.SimpleLog("prune containers", "pruned"), nil
}

func (f *fakePeriphery) PruneNetworks(_ context.Context, _ *types.Server) (types.Log, error) {
	return types.SimpleLog("prune networks", "pruned"), nil
}

func (f *fakePeriphery) GetContainerList(_ context.Context, _ *types.Server) ([]types.ContainerSummary, error) {
	return nil, nil
}

func (f *fakePeriphery) GetSystemStats(_ context.Context, _ *types.Server) (types.SystemStats, error) {
	return types.SystemStats{}, nil
}

func (f *fakePeriphery) GetAccounts(_ context.Context, server *types.Server) (types.AvailableAccounts, error) {
	if f.accounts != nil {
		return f.accounts(server)
	}
	return types.AvailableAccounts{}, nil
}

type testEnv struct {
	core      *Core
	store     *db.Store
	periphery *fakePeriphery
	admin     *types.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := db.NewMemoryStore()
	fake := &fakePeriphery{}
	cfg := DefaultConfig()
	c := New(cfg, store, fake)

	admin := &types.User{ID: "admin", Username: "admin", Enabled: true, Admin: true}
	if _, err := store.Users.CreateOne(ctx, *admin); err != nil {
		t.Fatalf("failed to seed admin user: %v", err)
	}
	return &testEnv{core: c, store: store, periphery: fake, admin: admin}
}

func (e *testEnv) addUser(t *testing.T, id string) *types.User {
	t.Helper()
	u := &types.User{ID: id, Username: id, Enabled: true}
	if _, err := e.store.Users.CreateOne(context.Background(), *u); err != nil {
		t.Fatalf("failed to seed user %s: %v", id, err)
	}
	return u
}

// mustServer registers a server through the public op.
func (e *testEnv) mustServer(t *testing.T, name string) *types.Server {
	t.Helper()
	cfg := types.DefaultServerConfig()
	cfg.Host = "http://" + name
	server, err := e.core.CreateServer(context.Background(), name, cfg, e.admin)
	if err != nil {
		t.Fatalf("CreateServer(%s): %v", name, err)
	}
	return server
}

// mustServerBuilder registers a Server-type builder on the given server.
func (e *testEnv) mustServerBuilder(t *testing.T, name, serverID string) *types.Builder {
	t.Helper()
	builder, err := e.core.CreateBuilder(context.Background(), name, types.BuilderConfig{
		Type:   types.BuilderTypeServer,
		Params: types.BuilderParams{ServerID: serverID},
	}, e.admin)
	if err != nil {
		t.Fatalf("CreateBuilder(%s): %v", name, err)
	}
	return builder
}

func (e *testEnv) mustBuild(t *testing.T, name, builderID string) *types.Build {
	t.Helper()
	build, err := e.core.CreateBuild(context.Background(), name, builderID, e.admin)
	if err != nil {
		t.Fatalf("CreateBuild(%s): %v", name, err)
	}
	return build
}

func (e *testEnv) mustDeployment(t *testing.T, name, serverID string) *types.Deployment {
	t.Helper()
	d, err := e.core.CreateDeployment(context.Background(), name, serverID, e.admin)
	if err != nil {
		t.Fatalf("CreateDeployment(%s): %v", name, err)
	}
	return d
}

func (e *testEnv) mustRepo(t *testing.T, name, serverID string) *types.Repo {
	t.Helper()
	r, err := e.core.CreateRepo(context.Background(), name, serverID, e.admin)
	if err != nil {
		t.Fatalf("CreateRepo(%s): %v", name, err)
	}
	return r
}

// setTags overwrites a stored resource's tag list directly.
func setTags[T any](t *testing.T, coll db.Collection[T], id string, tags []string) {
	t.Helper()
	if err := coll.Patch(context.Background(), id, bson.M{"tags": tags}); err != nil {
		t.Fatalf("failed to tag %s: %v", id, err)
	}
}

// grant sets a user's permission level on a stored resource directly.
func grant[T any](t *testing.T, coll db.Collection[T], id, userID string, level types.PermissionLevel) {
	t.Helper()
	if err := coll.Patch(context.Background(), id, bson.M{"permissions." + userID: int(level)}); err != nil {
		t.Fatalf("failed to grant %v on %s: %v", level, id, err)
	}
}
