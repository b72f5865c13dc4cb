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

func TestFindResourcesEmptyTagsReturnsUnion(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	e.mustBuild(t, "b", builder.ID)
	e.mustDeployment(t, "d", srv.ID)
	e.mustRepo(t, "r", srv.ID)

	resp, err := e.core.FindResources(ctx, nil, e.admin)
	if err != nil {
		t.Fatalf("FindResources: %v", err)
	}
	if len(resp.Servers) != 1 || len(resp.Builds) != 1 || len(resp.Deployments) != 1 || len(resp.Repos) != 1 {
		t.Errorf("union missing resources: %+v", resp)
	}
}

func TestFindResourcesCustomTagAndServerScope(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	other := e.mustServer(t, "other")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	otherBuilder := e.mustServerBuilder(t, "bldr2", other.ID)

	// Tag the interesting resources with "prod" and park lookalikes
	// elsewhere.
	tagged := e.mustBuild(t, "tagged", builder.ID)
	setTags(t, e.store.Builds, tagged.ID, []string{"prod"})
	e.mustBuild(t, "untagged", builder.ID)
	elsewhere := e.mustBuild(t, "elsewhere", otherBuilder.ID)
	setTags(t, e.store.Builds, elsewhere.ID, []string{"prod"})

	d := e.mustDeployment(t, "d", srv.ID)
	setTags(t, e.store.Deployments, d.ID, []string{"prod"})
	dOther := e.mustDeployment(t, "d-other", other.ID)
	setTags(t, e.store.Deployments, dOther.ID, []string{"prod"})

	tags := []types.Tag{
		{Type: types.TagTypeCustom, TagID: "prod"},
		{Type: types.TagTypeServer, ServerID: srv.ID},
	}
	resp, err := e.core.FindResources(ctx, tags, e.admin)
	if err != nil {
		t.Fatalf("FindResources: %v", err)
	}
	if len(resp.Builds) != 1 || resp.Builds[0].Name != "tagged" {
		t.Errorf("builds = %+v, want only the tagged build on srv", resp.Builds)
	}
	if len(resp.Deployments) != 1 || resp.Deployments[0].Name != "d" {
		t.Errorf("deployments = %+v, want only d on srv", resp.Deployments)
	}
	// The server itself is untagged, so the custom tag filters it out.
	if len(resp.Servers) != 0 {
		t.Errorf("servers = %+v, want none (srv is untagged)", resp.Servers)
	}
}

func TestFindResourcesResourceTypeScope(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	e.mustBuild(t, "b", builder.ID)

	resp, err := e.core.FindResources(ctx, []types.Tag{
		{Type: types.TagTypeResourceType, Resource: types.TargetBuild},
	}, e.admin)
	if err != nil {
		t.Fatalf("FindResources: %v", err)
	}
	if len(resp.Builds) != 1 || len(resp.Servers) != 0 || len(resp.Deployments) != 0 || len(resp.Repos) != 0 {
		t.Errorf("type-scoped search leaked other types: %+v", resp)
	}

	// Builder and System type predicates are ignored, falling back to the
	// full union.
	resp, err = e.core.FindResources(ctx, []types.Tag{
		{Type: types.TagTypeResourceType, Resource: types.TargetBuilder},
	}, e.admin)
	if err != nil {
		t.Fatalf("FindResources: %v", err)
	}
	if len(resp.Servers) != 1 || len(resp.Builds) != 1 {
		t.Errorf("builder predicate should fall back to the union: %+v", resp)
	}
}

// TestFindResourcesPermissionAsymmetry pins the differing thresholds: a
// read grant surfaces servers but not builds/deployments/repos.
func TestFindResourcesPermissionAsymmetry(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	srv := e.mustServer(t, "srv")
	builder := e.mustServerBuilder(t, "bldr", srv.ID)
	b := e.mustBuild(t, "b", builder.ID)
	d := e.mustDeployment(t, "d", srv.ID)

	u := e.addUser(t, "u")
	grant(t, e.store.Servers, srv.ID, u.ID, types.PermissionRead)
	grant(t, e.store.Builds, b.ID, u.ID, types.PermissionRead)
	grant(t, e.store.Deployments, d.ID, u.ID, types.PermissionRead)

	resp, err := e.core.FindResources(ctx, nil, u)
	if err != nil {
		t.Fatalf("FindResources: %v", err)
	}
	if len(resp.Servers) != 1 {
		t.Errorf("read grant should surface the server, got %+v", resp.Servers)
	}
	if len(resp.Builds) != 0 || len(resp.Deployments) != 0 {
		t.Errorf("read grant must not surface builds/deployments, got %+v / %+v", resp.Builds, resp.Deployments)
	}

	// Execute passes the > read threshold.
	grant(t, e.store.Deployments, d.ID, u.ID, types.PermissionExecute)
	resp, err = e.core.FindResources(ctx, nil, u)
	if err != nil {
		t.Fatalf("FindResources: %v", err)
	}
	if len(resp.Deployments) != 1 {
		t.Errorf("execute grant should surface the deployment, got %+v", resp.Deployments)
	}
}
