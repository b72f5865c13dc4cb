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
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hectolitro/monitor/pkg/types"
)

// BuilderQuery filters builder lists.
type BuilderQuery struct {
	Tags []string `json:"tags,omitempty"`
}

// CreateBuilder registers a builder. The creator is seeded with Write.
func (c *Core) CreateBuilder(ctx context.Context, name string, config types.BuilderConfig, user *types.User) (*types.Builder, error) {
	name = types.NormalizeName(name)
	if name == "" {
		return nil, types.Errorf(types.ErrValidation, "builder name is required")
	}
	switch config.Type {
	case types.BuilderTypeServer:
		if config.Params.ServerID == "" {
			return nil, types.Errorf(types.ErrValidation, "server builder requires a server_id")
		}
		if _, err := c.store.Servers.GetOne(ctx, config.Params.ServerID); err != nil {
			return nil, err
		}
	case types.BuilderTypeAws:
	default:
		return nil, types.Errorf(types.ErrValidation, "unknown builder type %q", config.Type)
	}
	ts := now()
	builder := types.Builder{
		Name:        name,
		Permissions: types.PermissionsMap{user.ID: types.PermissionWrite},
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Config:      config,
	}
	id, err := c.store.Builders.CreateOne(ctx, builder)
	if err != nil {
		return nil, err
	}
	builder.ID = id
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationCreateBuilder,
		Target:    types.UpdateTarget{Type: types.TargetBuilder, ID: id},
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
	}); err != nil {
		return nil, err
	}
	return &builder, nil
}

// GetBuilder returns a builder the user can read.
func (c *Core) GetBuilder(ctx context.Context, id string, user *types.User) (*types.Builder, error) {
	return c.getBuilderCheckPermissions(ctx, id, user, types.PermissionRead)
}

// ListBuilders lists builders visible to the user.
func (c *Core) ListBuilders(ctx context.Context, query BuilderQuery, user *types.User) ([]types.BuilderListItem, error) {
	filter := bson.M{}
	if len(query.Tags) > 0 {
		filter["tags"] = bson.M{"$all": query.Tags}
	}
	filter, ok, err := c.scopeFilter(ctx, user, types.TargetBuilder, filter)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	builders, err := c.store.Builders.GetSome(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]types.BuilderListItem, 0, len(builders))
	for _, b := range builders {
		items = append(items, types.BuilderListItem{
			ID:   b.ID,
			Name: b.Name,
			Tags: b.Tags,
			Type: b.Config.Type,
		})
	}
	return items, nil
}

// GetBuildersSummary counts the builders visible to the user.
func (c *Core) GetBuildersSummary(ctx context.Context, user *types.User) (uint32, error) {
	return c.countSummary(ctx, user, types.TargetBuilder)
}

// UpdateBuilder applies a config edit.
func (c *Core) UpdateBuilder(ctx context.Context, proposed *types.Builder, user *types.User) (*types.Builder, error) {
	current, err := c.getBuilderCheckPermissions(ctx, proposed.ID, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	proposed.Name = current.Name
	proposed.Permissions = current.Permissions
	proposed.CreatedAt = current.CreatedAt
	proposed.UpdatedAt = ts
	proposed.Info = current.Info
	if err := c.store.Builders.UpdateOne(ctx, proposed.ID, *proposed); err != nil {
		return nil, err
	}
	diff := types.DiffBuilderConfig(current.Config, proposed.Config)
	update, err := c.beginUpdate(ctx, types.Update{
		Operation: types.OperationUpdateBuilder,
		Target:    types.UpdateTarget{Type: types.TargetBuilder, ID: proposed.ID},
		StartTS:   ts,
		Operator:  user.ID,
		Logs:      []types.Log{types.SimpleLog("diff", diff.Render())},
	})
	if err != nil {
		return nil, err
	}
	c.finalizeUpdate(ctx, update)
	return proposed, nil
}

// DeleteBuilder removes a builder. Builds referencing it fail to resolve
// until repointed.
func (c *Core) DeleteBuilder(ctx context.Context, id string, user *types.User) (*types.Builder, error) {
	builder, err := c.getBuilderCheckPermissions(ctx, id, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	if err := c.store.Builders.DeleteOne(ctx, id); err != nil {
		return nil, err
	}
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationDeleteBuilder,
		Target:    types.SystemTarget(),
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
	}); err != nil {
		return nil, err
	}
	return builder, nil
}

// GetBuilderAvailableAccounts merges the builder-scoped credential account
// names with the globally configured ones: Aws builders carry their own,
// Server builders report what their agent has. The result is deduped and
// sorted.
func (c *Core) GetBuilderAvailableAccounts(ctx context.Context, builderID string, user *types.User) (types.AvailableAccounts, error) {
	builder, err := c.getBuilderCheckPermissions(ctx, builderID, user, types.PermissionRead)
	if err != nil {
		return types.AvailableAccounts{}, err
	}

	var github, docker []string
	switch builder.Config.Type {
	case types.BuilderTypeAws:
		github = builder.Config.Params.GithubAccounts
		docker = builder.Config.Params.DockerAccounts
	case types.BuilderTypeServer:
		accounts, err := c.GetAvailableAccounts(ctx, builder.Config.Params.ServerID, user)
		if err != nil {
			return types.AvailableAccounts{}, err
		}
		github = accounts.Github
		docker = accounts.Docker
	default:
		return types.AvailableAccounts{}, types.Errorf(types.ErrInternal, "unknown builder type %q", builder.Config.Type)
	}

	return types.AvailableAccounts{
		Github: mergeAccountNames(github, c.cfg.GithubAccounts),
		Docker: mergeAccountNames(docker, c.cfg.DockerAccounts),
	}, nil
}

// mergeAccountNames unions scoped names with global config keys, deduped
// and sorted ascending.
func mergeAccountNames(scoped []string, global map[string]string) []string {
	seen := make(map[string]bool, len(scoped)+len(global))
	for _, name := range scoped {
		seen[name] = true
	}
	for name := range global {
		seen[name] = true
	}
	merged := make([]string, 0, len(seen))
	for name := range seen {
		merged = append(merged, name)
	}
	sort.Strings(merged)
	return merged
}
