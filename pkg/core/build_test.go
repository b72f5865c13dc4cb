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
	"strings"
	"testing"

	"github.com/hectolitro/monitor/pkg/types"
)

func TestCreateBuildSeedsDefaults(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)

	build, err := e.core.CreateBuild(ctx, "My App", builder.ID, e.admin)
	if err != nil {
		t.Fatalf("CreateBuild: %v", err)
	}
	if build.Name != "my-app" {
		t.Errorf("name = %q, want normalized my-app", build.Name)
	}
	if got := build.Permissions[e.admin.ID]; got != types.PermissionWrite {
		t.Errorf("creator permission = %v, want write", got)
	}
	if build.Config.Branch != "main" || build.Config.BuildPath != "." || build.Config.DockerfilePath != "Dockerfile" {
		t.Errorf("defaults not applied: %+v", build.Config)
	}
	if build.CreatedAt == 0 || build.CreatedAt != build.UpdatedAt {
		t.Errorf("timestamps not seeded: created=%d updated=%d", build.CreatedAt, build.UpdatedAt)
	}

	// A second build with the same name must be rejected.
	if _, err := e.core.CreateBuild(ctx, "my app", builder.ID, e.admin); types.KindOf(err) != types.ErrDuplicateName {
		t.Errorf("duplicate create error = %v, want duplicate_name", err)
	}
}

func TestBuildBuildSuccess(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	var builtOn string
	var sentVersion types.Version
	e.periphery.build = func(server *types.Server, b *types.Build) ([]types.Log, bool, error) {
		builtOn = server.ID
		sentVersion = b.Config.Version
		return []types.Log{types.SimpleLog("build", "ok")}, false, nil
	}

	update, err := e.core.BuildBuild(ctx, build.ID, e.admin)
	if err != nil {
		t.Fatalf("BuildBuild: %v", err)
	}
	if builtOn != srv.ID {
		t.Errorf("build dispatched to server %q, want %q", builtOn, srv.ID)
	}
	if want := (types.Version{Major: 0, Minor: 0, Patch: 1}); sentVersion != want {
		t.Errorf("agent saw version %v, want %v", sentVersion, want)
	}
	if !update.Success || update.Status != types.UpdateStatusComplete {
		t.Errorf("update = success:%v status:%v, want complete success", update.Success, update.Status)
	}
	if update.EndTS == 0 || update.StartTS > update.EndTS {
		t.Errorf("update timestamps invalid: start=%d end=%d", update.StartTS, update.EndTS)
	}
	if update.Version == nil || *update.Version != (types.Version{Major: 0, Minor: 0, Patch: 1}) {
		t.Errorf("update version = %v, want 0.0.1", update.Version)
	}

	stored, err := e.store.Builds.GetOne(ctx, build.ID)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if stored.Config.Version != (types.Version{Major: 0, Minor: 0, Patch: 1}) {
		t.Errorf("stored version = %v, want 0.0.1", stored.Config.Version)
	}
	if stored.Info.LastBuiltAt == 0 {
		t.Error("last_built_at not persisted on success")
	}
}

func TestBuildBuildRepeatedIncrements(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	for i := 0; i < 3; i++ {
		if _, err := e.core.BuildBuild(ctx, build.ID, e.admin); err != nil {
			t.Fatalf("BuildBuild #%d: %v", i, err)
		}
	}
	stored, err := e.store.Builds.GetOne(ctx, build.ID)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if want := (types.Version{Major: 0, Minor: 0, Patch: 3}); stored.Config.Version != want {
		t.Errorf("after 3 builds version = %v, want %v", stored.Config.Version, want)
	}
}

func TestBuildBuildBusy(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	e.periphery.build = func(*types.Server, *types.Build) ([]types.Log, bool, error) {
		return nil, true, nil
	}
	update, err := e.core.BuildBuild(ctx, build.ID, e.admin)
	if err != nil {
		t.Fatalf("BuildBuild: %v", err)
	}
	if update.Success {
		t.Error("busy build should fail the update")
	}
	found := false
	for _, l := range update.Logs {
		if strings.Contains(l.Stderr, "builder busy") {
			found = true
		}
	}
	if !found {
		t.Errorf("logs missing builder busy message: %+v", update.Logs)
	}

	// The in-memory increment is discarded; the store keeps the old
	// version.
	stored, err := e.store.Builds.GetOne(ctx, build.ID)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if !stored.Config.Version.IsZero() {
		t.Errorf("stored version = %v, want zero after busy", stored.Config.Version)
	}
}

func TestBuildBuildTransportError(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	e.periphery.build = func(*types.Server, *types.Build) ([]types.Log, bool, error) {
		return nil, false, types.Errorf(types.ErrPeripheryUnreachable, "no route to host")
	}
	update, err := e.core.BuildBuild(ctx, build.ID, e.admin)
	if err != nil {
		t.Fatalf("BuildBuild should convert transport errors into logs, got %v", err)
	}
	if update.Success || update.Status != types.UpdateStatusComplete {
		t.Errorf("update = success:%v status:%v, want failed complete", update.Success, update.Status)
	}
}

func TestUpdateBuildTriggersReclone(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	var clonedRepo string
	e.periphery.cloneRepo = func(_ *types.Server, args types.CloneArgs) ([]types.Log, error) {
		clonedRepo = args.Repo
		return []types.Log{types.SimpleLog("clone repo", "cloned")}, nil
	}

	proposed := *build
	proposed.Config.Repo = "octo/app2"
	if _, err := e.core.UpdateBuild(ctx, &proposed, e.admin); err != nil {
		t.Fatalf("UpdateBuild: %v", err)
	}
	if clonedRepo != "octo/app2" {
		t.Errorf("reclone not dispatched with new repo, got %q", clonedRepo)
	}

	updates, err := e.core.ListUpdates(ctx, types.UpdateTarget{Type: types.TargetBuild, ID: build.ID}, e.admin)
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	latest := updates[0]
	if latest.Operation != types.OperationUpdateBuild {
		t.Fatalf("latest update op = %v, want update_build", latest.Operation)
	}
	if len(latest.Logs) < 2 || latest.Logs[0].Stage != "diff" {
		t.Errorf("update logs should start with the diff: %+v", latest.Logs)
	}
	if !strings.Contains(latest.Logs[0].Stdout, "octo/app2") {
		t.Errorf("diff log missing new repo: %s", latest.Logs[0].Stdout)
	}
}

func TestUpdateBuildNoRecloneWithoutSourceChange(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	cloned := false
	e.periphery.cloneRepo = func(*types.Server, types.CloneArgs) ([]types.Log, error) {
		cloned = true
		return nil, nil
	}
	proposed := *build
	proposed.Config.DockerAccount = "hub"
	if _, err := e.core.UpdateBuild(ctx, &proposed, e.admin); err != nil {
		t.Fatalf("UpdateBuild: %v", err)
	}
	if cloned {
		t.Error("non-source change must not trigger a clone")
	}
}

func TestUpdateBuildCloneFailureStillPersists(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	e.periphery.cloneRepo = func(*types.Server, types.CloneArgs) ([]types.Log, error) {
		return nil, types.Errorf(types.ErrPeripheryUnreachable, "agent down")
	}
	proposed := *build
	proposed.Config.Repo = "octo/app2"
	if _, err := e.core.UpdateBuild(ctx, &proposed, e.admin); err != nil {
		t.Fatalf("UpdateBuild: %v", err)
	}

	stored, err := e.store.Builds.GetOne(ctx, build.ID)
	if err != nil {
		t.Fatalf("GetOne: %v", err)
	}
	if stored.Config.Repo != "octo/app2" {
		t.Errorf("document not updated despite clone failure, repo = %q", stored.Config.Repo)
	}
	updates, err := e.core.ListUpdates(ctx, types.UpdateTarget{Type: types.TargetBuild, ID: build.ID}, e.admin)
	if err != nil {
		t.Fatalf("ListUpdates: %v", err)
	}
	if updates[0].Success {
		t.Error("update should be failed when the clone failed")
	}
}

func TestUpdateBuildPreservesIdentityFields(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	proposed := *build
	proposed.Name = "sneaky-rename"
	proposed.Permissions = types.PermissionsMap{"mallory": types.PermissionWrite}
	proposed.CreatedAt = 1
	proposed.Config.DockerAccount = "hub"

	got, err := e.core.UpdateBuild(ctx, &proposed, e.admin)
	if err != nil {
		t.Fatalf("UpdateBuild: %v", err)
	}
	if got.Name != build.Name {
		t.Errorf("name changed to %q", got.Name)
	}
	if _, ok := got.Permissions["mallory"]; ok {
		t.Error("permissions were not preserved from the stored document")
	}
	if got.CreatedAt != build.CreatedAt {
		t.Errorf("created_at changed to %d", got.CreatedAt)
	}
	if got.UpdatedAt < build.UpdatedAt {
		t.Errorf("updated_at went backwards: %d < %d", got.UpdatedAt, build.UpdatedAt)
	}
}

func TestDeleteBuildRemovesWorkingCopy(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	var deleted string
	e.periphery.deleteRep = func(_ *types.Server, name string) (types.Log, error) {
		deleted = name
		return types.SimpleLog("delete repo", "gone"), nil
	}
	if _, err := e.core.DeleteBuild(ctx, build.ID, e.admin); err != nil {
		t.Fatalf("DeleteBuild: %v", err)
	}
	if deleted != build.Name {
		t.Errorf("working copy delete targeted %q, want %q", deleted, build.Name)
	}
	if _, err := e.store.Builds.GetOne(ctx, build.ID); types.KindOf(err) != types.ErrNotFound {
		t.Errorf("build still present after delete: %v", err)
	}
}

func TestDeleteBuildUnreachableHostStillDeletes(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	build := e.mustBuild(t, "b", builder.ID)

	e.periphery.deleteRep = func(*types.Server, string) (types.Log, error) {
		return types.Log{}, types.Errorf(types.ErrPeripheryUnreachable, "agent down")
	}
	if _, err := e.core.DeleteBuild(ctx, build.ID, e.admin); err != nil {
		t.Fatalf("DeleteBuild should tolerate an unreachable host: %v", err)
	}
	if _, err := e.store.Builds.GetOne(ctx, build.ID); types.KindOf(err) != types.ErrNotFound {
		t.Errorf("build still present after delete: %v", err)
	}
}
