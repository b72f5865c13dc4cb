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
	"fmt"
	"log"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hectolitro/monitor/pkg/types"
)

// BuildQuery filters build lists.
type BuildQuery struct {
	Tags       []string `json:"tags,omitempty"`
	BuilderIDs []string `json:"builder_ids,omitempty"`
	Repos      []string `json:"repos,omitempty"`
	// BuiltSince restricts to builds last built at or after this unix ms
	// timestamp; zero is a no-op.
	BuiltSince int64 `json:"built_since,omitempty"`
}

func (q BuildQuery) filter() bson.M {
	filter := bson.M{}
	if len(q.Tags) > 0 {
		filter["tags"] = bson.M{"$all": q.Tags}
	}
	if len(q.BuilderIDs) > 0 {
		filter["config.builder_id"] = bson.M{"$in": q.BuilderIDs}
	}
	if len(q.Repos) > 0 {
		filter["config.repo"] = bson.M{"$in": q.Repos}
	}
	if q.BuiltSince > 0 {
		filter["info.last_built_at"] = bson.M{"$gte": q.BuiltSince}
	}
	return filter
}

// builderCreateParentCheck returns an error unless the user holds Write on
// the builder's permission parent: the builder's server for Server
// builders, the builder itself for Aws builders.
func (c *Core) builderCreateParentCheck(ctx context.Context, builder *types.Builder, user *types.User) error {
	if builder.Config.Type == types.BuilderTypeServer {
		_, err := c.getServerCheckPermissions(ctx, builder.Config.Params.ServerID, user, types.PermissionWrite)
		return err
	}
	return checkPermission(user, builder, types.PermissionWrite)
}

// CreateBuild creates a build bound to a builder. Requires Write on the
// builder's server (or on the builder itself for Aws builders).
func (c *Core) CreateBuild(ctx context.Context, name, builderID string, user *types.User) (*types.Build, error) {
	name = types.NormalizeName(name)
	if name == "" {
		return nil, types.Errorf(types.ErrValidation, "build name is required")
	}
	builder, err := c.store.Builders.GetOne(ctx, builderID)
	if err != nil {
		return nil, err
	}
	if err := c.builderCreateParentCheck(ctx, &builder, user); err != nil {
		return nil, err
	}
	ts := now()
	config := types.DefaultBuildConfig()
	config.BuilderID = builderID
	build := types.Build{
		Name:        name,
		Permissions: types.PermissionsMap{user.ID: types.PermissionWrite},
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Config:      config,
	}
	id, err := c.store.Builds.CreateOne(ctx, build)
	if err != nil {
		return nil, err
	}
	build.ID = id
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationCreateBuild,
		Target:    types.UpdateTarget{Type: types.TargetBuild, ID: id},
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
	}); err != nil {
		return nil, err
	}
	return &build, nil
}

// GetBuild returns a build the user can read.
func (c *Core) GetBuild(ctx context.Context, id string, user *types.User) (*types.Build, error) {
	return c.getBuildCheckPermissions(ctx, id, user, types.PermissionRead)
}

// ListBuilds lists builds visible to the user.
func (c *Core) ListBuilds(ctx context.Context, query BuildQuery, user *types.User) ([]types.BuildListItem, error) {
	filter, ok, err := c.scopeFilter(ctx, user, types.TargetBuild, query.filter())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	builds, err := c.store.Builds.GetSome(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]types.BuildListItem, 0, len(builds))
	for _, b := range builds {
		items = append(items, types.BuildListItem{
			ID:          b.ID,
			Name:        b.Name,
			Tags:        b.Tags,
			LastBuiltAt: b.Info.LastBuiltAt,
			Version:     b.Config.Version,
			Repo:        b.Config.Repo,
			Branch:      b.Config.Branch,
		})
	}
	return items, nil
}

// GetBuildsSummary counts the builds visible to the user.
func (c *Core) GetBuildsSummary(ctx context.Context, user *types.User) (uint32, error) {
	return c.countSummary(ctx, user, types.TargetBuild)
}

// UpdateBuild applies a config edit. When the change touches the source
// repo, the working copy is re-cloned as part of the same update.
func (c *Core) UpdateBuild(ctx context.Context, proposed *types.Build, user *types.User) (*types.Build, error) {
	current, err := c.getBuildCheckPermissions(ctx, proposed.ID, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	proposed.Name = current.Name
	proposed.Permissions = current.Permissions
	proposed.CreatedAt = current.CreatedAt
	proposed.UpdatedAt = ts
	proposed.Info = current.Info
	// The version is system-managed; edits cannot move it.
	proposed.Config.Version = current.Config.Version
	if err := c.store.Builds.UpdateOne(ctx, proposed.ID, *proposed); err != nil {
		return nil, err
	}

	diff := types.DiffBuildConfig(current.Config, proposed.Config)
	update, err := c.beginUpdate(ctx, types.Update{
		Operation: types.OperationUpdateBuild,
		Target:    types.UpdateTarget{Type: types.TargetBuild, ID: proposed.ID},
		StartTS:   ts,
		Operator:  user.ID,
		Logs:      []types.Log{types.SimpleLog("diff", diff.Render())},
	})
	if err != nil {
		return nil, err
	}

	if diff.NeedsReclone() {
		server, err := c.resolveBuildServer(ctx, proposed)
		if err != nil {
			update.Logs = append(update.Logs, types.ErrorLog("resolve server", err))
		} else if cloneLogs, err := c.periphery.CloneRepo(ctx, server, types.CloneArgsFromBuild(proposed)); err != nil {
			update.Logs = append(update.Logs, types.ErrorLog("clone repo", err))
		} else {
			update.Logs = append(update.Logs, cloneLogs...)
		}
	}

	c.finalizeUpdate(ctx, update)
	return proposed, nil
}

// DeleteBuild removes the build, first deleting its working copy on the
// build host. An unreachable host is logged and does not block deletion.
func (c *Core) DeleteBuild(ctx context.Context, id string, user *types.User) (*types.Build, error) {
	build, err := c.getBuildCheckPermissions(ctx, id, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	var logs []types.Log
	if server, err := c.resolveBuildServer(ctx, build); err != nil {
		logs = append(logs, types.ErrorLog("resolve server", err))
	} else if l, err := c.periphery.DeleteRepo(ctx, server, build.Name); err != nil {
		log.Printf("failed to delete repo for build %s: %v", build.Name, err)
		logs = append(logs, types.ErrorLog("delete repo", err))
	} else {
		logs = append(logs, l)
	}
	if err := c.store.Builds.DeleteOne(ctx, id); err != nil {
		return nil, err
	}
	logs = append(logs, types.SimpleLog("delete build", fmt.Sprintf("deleted build %s", build.Name)))
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationDeleteBuild,
		Target:    types.SystemTarget(),
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
		Logs:      logs,
	}); err != nil {
		return nil, err
	}
	return build, nil
}

// resolveBuildServer finds the host a build runs on: the builder's server,
// or an ephemeral provisioned host for Aws builders.
func (c *Core) resolveBuildServer(ctx context.Context, build *types.Build) (*types.Server, error) {
	builder, err := c.store.Builders.GetOne(ctx, build.Config.BuilderID)
	if err != nil {
		return nil, err
	}
	switch builder.Config.Type {
	case types.BuilderTypeServer:
		server, err := c.store.Servers.GetOne(ctx, builder.Config.Params.ServerID)
		if err != nil {
			return nil, err
		}
		return &server, nil
	case types.BuilderTypeAws:
		if c.provision == nil {
			return nil, types.Errorf(types.ErrValidation, "no provisioner configured for aws builder %s", builder.Name)
		}
		return c.provision(ctx, &builder)
	default:
		return nil, types.Errorf(types.ErrInternal, "unknown builder type %q", builder.Config.Type)
	}
}

// BuildBuild runs the build: bump the version, dispatch to the builder's
// host, and persist the new version only when every stage succeeded. A
// busy builder fails the action immediately; callers retry if they want.
func (c *Core) BuildBuild(ctx context.Context, buildID string, user *types.User) (types.Update, error) {
	build, err := c.getBuildCheckPermissions(ctx, buildID, user, types.PermissionWrite)
	if err != nil {
		return types.Update{}, err
	}
	server, err := c.resolveBuildServer(ctx, build)
	if err != nil {
		return types.Update{}, err
	}

	build.Config.Version.Increment()
	version := build.Config.Version

	update, err := c.beginUpdate(ctx, types.Update{
		Operation: types.OperationBuildBuild,
		Target:    types.UpdateTarget{Type: types.TargetBuild, ID: buildID},
		Operator:  user.ID,
		Version:   &version,
	})
	if err != nil {
		return types.Update{}, err
	}

	logs, busy, err := c.periphery.Build(ctx, server, build)
	switch {
	case err != nil:
		update.Logs = append(update.Logs, types.ErrorLog("build", err))
	case busy:
		update.Logs = append(update.Logs, types.ErrorLog("build", types.Errorf(types.ErrPeripheryBusy, "builder busy")))
	default:
		update.Logs = append(update.Logs, logs...)
		if types.AllLogsSuccess(update.Logs) {
			// The incremented version only sticks on success; a failed
			// build discards it.
			if err := c.store.Builds.Patch(ctx, buildID, bson.M{
				"config.version":     version,
				"info.last_built_at": now(),
			}); err != nil {
				update.Logs = append(update.Logs, types.ErrorLog("persist version", err))
			}
		}
	}

	return c.finalizeUpdate(ctx, update), nil
}

// RecloneBuild re-clones the build's source repo on its host.
func (c *Core) RecloneBuild(ctx context.Context, buildID string, user *types.User) (types.Update, error) {
	build, err := c.getBuildCheckPermissions(ctx, buildID, user, types.PermissionWrite)
	if err != nil {
		return types.Update{}, err
	}
	server, err := c.resolveBuildServer(ctx, build)
	if err != nil {
		return types.Update{}, err
	}
	update, err := c.beginUpdate(ctx, types.Update{
		Operation: types.OperationRecloneBuild,
		Target:    types.UpdateTarget{Type: types.TargetBuild, ID: buildID},
		Operator:  user.ID,
	})
	if err != nil {
		return types.Update{}, err
	}
	if logs, err := c.periphery.CloneRepo(ctx, server, types.CloneArgsFromBuild(build)); err != nil {
		update.Logs = append(update.Logs, types.ErrorLog("clone repo", err))
	} else {
		update.Logs = append(update.Logs, logs...)
	}
	return c.finalizeUpdate(ctx, update), nil
}
