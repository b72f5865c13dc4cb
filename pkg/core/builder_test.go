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

	"github.com/google/go-cmp/cmp"

	"github.com/hectolitro/monitor/pkg/types"
)

func TestBuilderAvailableAccountsServerBuilder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.core.cfg.GithubAccounts = map[string]string{"g1": "token"}
	e.core.cfg.DockerAccounts = map[string]string{"d1": "token"}

	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)

	e.periphery.accounts = func(server *types.Server) (types.AvailableAccounts, error) {
		if server.ID != srv.ID {
			t.Errorf("accounts requested from %q, want %q", server.ID, srv.ID)
		}
		return types.AvailableAccounts{
			Github: []string{"g2", "g1"},
			Docker: []string{"d1"},
		}, nil
	}

	got, err := e.core.GetBuilderAvailableAccounts(ctx, builder.ID, e.admin)
	if err != nil {
		t.Fatalf("GetBuilderAvailableAccounts: %v", err)
	}
	want := types.AvailableAccounts{
		Github: []string{"g1", "g2"},
		Docker: []string{"d1"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("accounts mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderAvailableAccountsAwsBuilder(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.core.cfg.GithubAccounts = map[string]string{"global": "token"}

	builder, err := e.core.CreateBuilder(ctx, "aws", types.BuilderConfig{
		Type: types.BuilderTypeAws,
		Params: types.BuilderParams{
			Region:         "us-east-1",
			GithubAccounts: []string{"scoped", "global"},
			DockerAccounts: []string{"hub"},
		},
	}, e.admin)
	if err != nil {
		t.Fatalf("CreateBuilder: %v", err)
	}

	got, err := e.core.GetBuilderAvailableAccounts(ctx, builder.ID, e.admin)
	if err != nil {
		t.Fatalf("GetBuilderAvailableAccounts: %v", err)
	}
	want := types.AvailableAccounts{
		Github: []string{"global", "scoped"},
		Docker: []string{"hub"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("accounts mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderAvailableAccountsRequiresRead(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)

	u := e.addUser(t, "u")
	if _, err := e.core.GetBuilderAvailableAccounts(ctx, builder.ID, u); types.KindOf(err) != types.ErrForbidden {
		t.Errorf("accounts without read error = %v, want forbidden", err)
	}
}

func TestCreateBuilderValidation(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.core.CreateBuilder(ctx, "bad", types.BuilderConfig{Type: types.BuilderTypeServer}, e.admin)
	if types.KindOf(err) != types.ErrValidation {
		t.Errorf("server builder without server_id error = %v, want validation", err)
	}
	_, err = e.core.CreateBuilder(ctx, "bad2", types.BuilderConfig{Type: "Gcp"}, e.admin)
	if types.KindOf(err) != types.ErrValidation {
		t.Errorf("unknown builder type error = %v, want validation", err)
	}
	_, err = e.core.CreateBuilder(ctx, "bad3", types.BuilderConfig{
		Type:   types.BuilderTypeServer,
		Params: types.BuilderParams{ServerID: "missing"},
	}, e.admin)
	if types.KindOf(err) != types.ErrNotFound {
		t.Errorf("server builder with unknown server error = %v, want not_found", err)
	}
}

func TestAwsBuildWithoutProvisionerFails(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	builder, err := e.core.CreateBuilder(ctx, "aws", types.BuilderConfig{Type: types.BuilderTypeAws}, e.admin)
	if err != nil {
		t.Fatalf("CreateBuilder: %v", err)
	}
	build := e.mustBuild(t, "b", builder.ID)
	if _, err := e.core.BuildBuild(ctx, build.ID, e.admin); types.KindOf(err) != types.ErrValidation {
		t.Errorf("aws build without provisioner error = %v, want validation", err)
	}
}

func TestAwsBuildWithProvisioner(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	builder, err := e.core.CreateBuilder(ctx, "aws", types.BuilderConfig{Type: types.BuilderTypeAws}, e.admin)
	if err != nil {
		t.Fatalf("CreateBuilder: %v", err)
	}
	build := e.mustBuild(t, "b", builder.ID)

	ephemeral := &types.Server{Name: "ephemeral"}
	ephemeral.Config.Host = "http://ephemeral"
	e.core.SetProvisioner(func(ctx context.Context, b *types.Builder) (*types.Server, error) {
		return ephemeral, nil
	})
	var builtOn string
	e.periphery.build = func(server *types.Server, _ *types.Build) ([]types.Log, bool, error) {
		builtOn = server.Name
		return []types.Log{types.SimpleLog("build", "ok")}, false, nil
	}
	update, err := e.core.BuildBuild(ctx, build.ID, e.admin)
	if err != nil {
		t.Fatalf("BuildBuild: %v", err)
	}
	if builtOn != "ephemeral" {
		t.Errorf("build ran on %q, want the provisioned host", builtOn)
	}
	if !update.Success {
		t.Error("update should succeed")
	}
}
