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

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hectolitro/monitor/pkg/types"
)

// ServerQuery filters server lists.
type ServerQuery struct {
	Tags []string `json:"tags,omitempty"`
}

// CreateServer registers a new server. The creator is seeded with Write.
func (c *Core) CreateServer(ctx context.Context, name string, config types.ServerConfig, user *types.User) (*types.Server, error) {
	name = types.NormalizeName(name)
	if name == "" {
		return nil, types.Errorf(types.ErrValidation, "server name is required")
	}
	if config.Host == "" {
		return nil, types.Errorf(types.ErrValidation, "server host is required")
	}
	ts := now()
	server := types.Server{
		Name:        name,
		Permissions: types.PermissionsMap{user.ID: types.PermissionWrite},
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Config:      config,
	}
	id, err := c.store.Servers.CreateOne(ctx, server)
	if err != nil {
		return nil, err
	}
	server.ID = id
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationCreateServer,
		Target:    types.UpdateTarget{Type: types.TargetServer, ID: id},
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
	}); err != nil {
		return nil, err
	}
	return &server, nil
}

// GetServer returns a server the user can read.
func (c *Core) GetServer(ctx context.Context, id string, user *types.User) (*types.Server, error) {
	return c.getServerCheckPermissions(ctx, id, user, types.PermissionRead)
}

// ListServers lists servers visible to the user, decorated with cached
// status.
func (c *Core) ListServers(ctx context.Context, query ServerQuery, user *types.User) ([]types.ServerListItem, error) {
	filter := bson.M{}
	if len(query.Tags) > 0 {
		filter["tags"] = bson.M{"$all": query.Tags}
	}
	filter, ok, err := c.scopeFilter(ctx, user, types.TargetServer, filter)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	servers, err := c.store.Servers.GetSome(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]types.ServerListItem, 0, len(servers))
	for _, s := range servers {
		items = append(items, types.ServerListItem{
			ID:     s.ID,
			Name:   s.Name,
			Tags:   s.Tags,
			Status: c.status.Server(s.ID).Status,
			Region: s.Config.Region,
		})
	}
	return items, nil
}

// GetServersSummary counts the servers visible to the user.
func (c *Core) GetServersSummary(ctx context.Context, user *types.User) (uint32, error) {
	return c.countSummary(ctx, user, types.TargetServer)
}

func (c *Core) countSummary(ctx context.Context, user *types.User, t types.ResourceTargetVariant) (uint32, error) {
	filter, ok, err := c.scopeFilter(ctx, user, t, nil)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	var n int64
	switch t {
	case types.TargetServer:
		n, err = c.store.Servers.Count(ctx, filter)
	case types.TargetBuild:
		n, err = c.store.Builds.Count(ctx, filter)
	case types.TargetDeployment:
		n, err = c.store.Deployments.Count(ctx, filter)
	case types.TargetRepo:
		n, err = c.store.Repos.Count(ctx, filter)
	case types.TargetBuilder:
		n, err = c.store.Builders.Count(ctx, filter)
	default:
		return 0, types.Errorf(types.ErrInternal, "unexpected resource type %s", t)
	}
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// UpdateServer applies a config edit, preserving permissions and
// created_at from the stored document.
func (c *Core) UpdateServer(ctx context.Context, proposed *types.Server, user *types.User) (*types.Server, error) {
	current, err := c.getServerCheckPermissions(ctx, proposed.ID, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	proposed.Name = current.Name
	proposed.Permissions = current.Permissions
	proposed.CreatedAt = current.CreatedAt
	proposed.UpdatedAt = ts
	proposed.Info = current.Info
	if err := c.store.Servers.UpdateOne(ctx, proposed.ID, *proposed); err != nil {
		return nil, err
	}
	diff := types.DiffServerConfig(current.Config, proposed.Config)
	update := types.Update{
		Operation: types.OperationUpdateServer,
		Target:    types.UpdateTarget{Type: types.TargetServer, ID: proposed.ID},
		StartTS:   ts,
		Operator:  user.ID,
		Logs:      []types.Log{types.SimpleLog("diff", diff.Render())},
	}
	update, err = c.beginUpdate(ctx, update)
	if err != nil {
		return nil, err
	}
	c.finalizeUpdate(ctx, update)
	return proposed, nil
}

// DeleteServer removes a server document. Resources referencing it keep
// their ids; their operations fail with not_found until repointed.
func (c *Core) DeleteServer(ctx context.Context, id string, user *types.User) (*types.Server, error) {
	server, err := c.getServerCheckPermissions(ctx, id, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	if err := c.store.Servers.DeleteOne(ctx, id); err != nil {
		return nil, err
	}
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationDeleteServer,
		Target:    types.SystemTarget(),
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
		Logs:      []types.Log{types.SimpleLog("delete server", fmt.Sprintf("deleted server %s", server.Name))},
	}); err != nil {
		return nil, err
	}
	return server, nil
}

// GetAvailableAccounts reads the account names configured on the server's
// agent. Requires Read on the server.
func (c *Core) GetAvailableAccounts(ctx context.Context, serverID string, user *types.User) (types.AvailableAccounts, error) {
	server, err := c.getServerCheckPermissions(ctx, serverID, user, types.PermissionRead)
	if err != nil {
		return types.AvailableAccounts{}, err
	}
	return c.periphery.GetAccounts(ctx, server)
}

// pruneAction runs one prune call as a tracked update. Requires Write on
// the server.
func (c *Core) pruneAction(ctx context.Context, serverID string, user *types.User, op types.Operation,
	call func(context.Context, *types.Server) (types.Log, error)) (types.Update, error) {
	server, err := c.getServerCheckPermissions(ctx, serverID, user, types.PermissionWrite)
	if err != nil {
		return types.Update{}, err
	}
	update, err := c.beginUpdate(ctx, types.Update{
		Operation: op,
		Target:    types.UpdateTarget{Type: types.TargetServer, ID: serverID},
		Operator:  user.ID,
	})
	if err != nil {
		return types.Update{}, err
	}
	if l, err := call(ctx, server); err != nil {
		update.Logs = append(update.Logs, types.ErrorLog("prune", err))
	} else {
		update.Logs = append(update.Logs, l)
	}
	return c.finalizeUpdate(ctx, update), nil
}

func (c *Core) PruneImages(ctx context.Context, serverID string, user *types.User) (types.Update, error) {
	return c.pruneAction(ctx, serverID, user, types.OperationPruneImagesServer, c.periphery.PruneImages)
}

func (c *Core) PruneContainers(ctx context.Context, serverID string, user *types.User) (types.Update, error) {
	return c.pruneAction(ctx, serverID, user, types.OperationPruneContainersServer, c.periphery.PruneContainers)
}

func (c *Core) PruneNetworks(ctx context.Context, serverID string, user *types.User) (types.Update, error) {
	return c.pruneAction(ctx, serverID, user, types.OperationPruneNetworksServer, c.periphery.PruneNetworks)
}
