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

	"github.com/hectolitro/monitor/pkg/types"
)

func TestNonAdminScoping(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	b1 := e.mustBuild(t, "b1", builder.ID)
	b2 := e.mustBuild(t, "b2", builder.ID)

	u := e.addUser(t, "u")
	grant(t, e.store.Builds, b1.ID, u.ID, types.PermissionRead)

	// list returns only the permitted build.
	items, err := e.core.ListBuilds(ctx, BuildQuery{}, u)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	if len(items) != 1 || items[0].ID != b1.ID {
		t.Errorf("ListBuilds = %+v, want only b1", items)
	}

	// summary counts only the permitted build.
	total, err := e.core.GetBuildsSummary(ctx, u)
	if err != nil {
		t.Fatalf("GetBuildsSummary: %v", err)
	}
	if total != 1 {
		t.Errorf("summary total = %d, want 1", total)
	}

	// direct get of the unpermitted build is forbidden.
	if _, err := e.core.GetBuild(ctx, b2.ID, u); types.KindOf(err) != types.ErrForbidden {
		t.Errorf("GetBuild(b2) error = %v, want forbidden", err)
	}

	// reads of the permitted build work, writes do not.
	if _, err := e.core.GetBuild(ctx, b1.ID, u); err != nil {
		t.Errorf("GetBuild(b1): %v", err)
	}
	proposed := *b1
	proposed.Config.DockerAccount = "hub"
	if _, err := e.core.UpdateBuild(ctx, &proposed, u); types.KindOf(err) != types.ErrForbidden {
		t.Errorf("UpdateBuild with read-only grant error = %v, want forbidden", err)
	}
	if _, err := e.core.BuildBuild(ctx, b1.ID, u); types.KindOf(err) != types.ErrForbidden {
		t.Errorf("BuildBuild with read-only grant error = %v, want forbidden", err)
	}
}

func TestNonAdminEmptyPermittedSetSkipsQuery(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	e.mustBuild(t, "b1", builder.ID)

	u := e.addUser(t, "nobody")
	items, err := e.core.ListBuilds(ctx, BuildQuery{}, u)
	if err != nil {
		t.Fatalf("ListBuilds: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("ListBuilds for unpermitted user = %+v, want empty", items)
	}
	total, err := e.core.GetBuildsSummary(ctx, u)
	if err != nil {
		t.Fatalf("GetBuildsSummary: %v", err)
	}
	if total != 0 {
		t.Errorf("summary total = %d, want 0", total)
	}
}

func TestAdminBypass(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	b := e.mustBuild(t, "b", builder.ID)

	// A second admin with no permission map entry still has full access.
	admin2 := &types.User{ID: "admin2", Username: "admin2", Enabled: true, Admin: true}
	if _, err := e.store.Users.CreateOne(ctx, *admin2); err != nil {
		t.Fatalf("seed admin2: %v", err)
	}
	if _, err := e.core.GetBuild(ctx, b.ID, admin2); err != nil {
		t.Errorf("admin GetBuild: %v", err)
	}
	if _, err := e.core.BuildBuild(ctx, b.ID, admin2); err != nil {
		t.Errorf("admin BuildBuild: %v", err)
	}
}

func TestCreateRequiresWriteOnParent(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")

	u := e.addUser(t, "u")
	if _, err := e.core.CreateDeployment(ctx, "d", srv.ID, u); types.KindOf(err) != types.ErrForbidden {
		t.Errorf("CreateDeployment without server write error = %v, want forbidden", err)
	}
	grant(t, e.store.Servers, srv.ID, u.ID, types.PermissionWrite)
	if _, err := e.core.CreateDeployment(ctx, "d", srv.ID, u); err != nil {
		t.Errorf("CreateDeployment with server write: %v", err)
	}
}

func TestPermissionLevelGateOrdering(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	b := e.mustBuild(t, "b", builder.ID)

	tests := []struct {
		level     types.PermissionLevel
		canRead   bool
		canAction bool
	}{
		{types.PermissionNone, false, false},
		{types.PermissionRead, true, false},
		{types.PermissionExecute, true, false},
		{types.PermissionWrite, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			u := e.addUser(t, "user-"+tt.level.String())
			grant(t, e.store.Builds, b.ID, u.ID, tt.level)
			_, err := e.core.GetBuild(ctx, b.ID, u)
			if (err == nil) != tt.canRead {
				t.Errorf("read with %v: err=%v, want readable=%v", tt.level, err, tt.canRead)
			}
			_, err = e.core.BuildBuild(ctx, b.ID, u)
			if (err == nil) != tt.canAction {
				t.Errorf("build with %v: err=%v, want allowed=%v", tt.level, err, tt.canAction)
			}
		})
	}
}
