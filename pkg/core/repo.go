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

// RepoQuery filters repo lists.
type RepoQuery struct {
	Tags      []string `json:"tags,omitempty"`
	ServerIDs []string `json:"server_ids,omitempty"`
}

func (q RepoQuery) filter() bson.M {
	filter := bson.M{}
	if len(q.Tags) > 0 {
		filter["tags"] = bson.M{"$all": q.Tags}
	}
	if len(q.ServerIDs) > 0 {
		filter["config.server_id"] = bson.M{"$in": q.ServerIDs}
	}
	return filter
}

// CreateRepo creates a repo on a server. Requires Write on the server.
func (c *Core) CreateRepo(ctx context.Context, name, serverID string, user *types.User) (*types.Repo, error) {
	name = types.NormalizeName(name)
	if name == "" {
		return nil, types.Errorf(types.ErrValidation, "repo name is required")
	}
	if _, err := c.getServerCheckPermissions(ctx, serverID, user, types.PermissionWrite); err != nil {
		return nil, err
	}
	ts := now()
	config := types.DefaultRepoConfig()
	config.ServerID = serverID
	repo := types.Repo{
		Name:        name,
		Permissions: types.PermissionsMap{user.ID: types.PermissionWrite},
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Config:      config,
	}
	id, err := c.store.Repos.CreateOne(ctx, repo)
	if err != nil {
		return nil, err
	}
	repo.ID = id
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationCreateRepo,
		Target:    types.UpdateTarget{Type: types.TargetRepo, ID: id},
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
	}); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetRepo returns a repo the user can read.
func (c *Core) GetRepo(ctx context.Context, id string, user *types.User) (*types.Repo, error) {
	return c.getRepoCheckPermissions(ctx, id, user, types.PermissionRead)
}

// ListRepos lists repos visible to the user.
func (c *Core) ListRepos(ctx context.Context, query RepoQuery, user *types.User) ([]types.RepoListItem, error) {
	filter, ok, err := c.scopeFilter(ctx, user, types.TargetRepo, query.filter())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	repos, err := c.store.Repos.GetSome(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]types.RepoListItem, 0, len(repos))
	for _, r := range repos {
		items = append(items, types.RepoListItem{
			ID:           r.ID,
			Name:         r.Name,
			Tags:         r.Tags,
			LastPulledAt: r.Info.LastPulledAt,
		})
	}
	return items, nil
}

// GetReposSummary counts the repos visible to the user.
func (c *Core) GetReposSummary(ctx context.Context, user *types.User) (uint32, error) {
	return c.countSummary(ctx, user, types.TargetRepo)
}

// UpdateRepo applies a config edit, re-cloning the working copy when the
// change touches the source.
func (c *Core) UpdateRepo(ctx context.Context, proposed *types.Repo, user *types.User) (*types.Repo, error) {
	current, err := c.getRepoCheckPermissions(ctx, proposed.ID, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	proposed.Name = current.Name
	proposed.Permissions = current.Permissions
	proposed.CreatedAt = current.CreatedAt
	proposed.UpdatedAt = ts
	proposed.Info = current.Info
	if err := c.store.Repos.UpdateOne(ctx, proposed.ID, *proposed); err != nil {
		return nil, err
	}
	diff := types.DiffRepoConfig(current.Config, proposed.Config)
	update, err := c.beginUpdate(ctx, types.Update{
		Operation: types.OperationUpdateRepo,
		Target:    types.UpdateTarget{Type: types.TargetRepo, ID: proposed.ID},
		StartTS:   ts,
		Operator:  user.ID,
		Logs:      []types.Log{types.SimpleLog("diff", diff.Render())},
	})
	if err != nil {
		return nil, err
	}
	if diff.NeedsReclone() {
		if server, err := c.store.Servers.GetOne(ctx, proposed.Config.ServerID); err != nil {
			update.Logs = append(update.Logs, types.ErrorLog("resolve server", err))
		} else if cloneLogs, err := c.periphery.CloneRepo(ctx, &server, types.CloneArgsFromRepo(proposed)); err != nil {
			update.Logs = append(update.Logs, types.ErrorLog("clone repo", err))
		} else {
			update.Logs = append(update.Logs, cloneLogs...)
		}
	}
	c.finalizeUpdate(ctx, update)
	return proposed, nil
}

// DeleteRepo removes the repo, deleting its working copy first. An
// unreachable host is logged and does not block deletion.
func (c *Core) DeleteRepo(ctx context.Context, id string, user *types.User) (*types.Repo, error) {
	repo, err := c.getRepoCheckPermissions(ctx, id, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	var logs []types.Log
	if server, err := c.store.Servers.GetOne(ctx, repo.Config.ServerID); err != nil {
		logs = append(logs, types.ErrorLog("resolve server", err))
	} else if l, err := c.periphery.DeleteRepo(ctx, &server, repo.Name); err != nil {
		log.Printf("failed to delete working copy for repo %s: %v", repo.Name, err)
		logs = append(logs, types.ErrorLog("delete working copy", err))
	} else {
		logs = append(logs, l)
	}
	if err := c.store.Repos.DeleteOne(ctx, id); err != nil {
		return nil, err
	}
	logs = append(logs, types.SimpleLog("delete repo", fmt.Sprintf("deleted repo %s", repo.Name)))
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationDeleteRepo,
		Target:    types.SystemTarget(),
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
		Logs:      logs,
	}); err != nil {
		return nil, err
	}
	return repo, nil
}

// repoAction runs one periphery call against the repo's server as a
// tracked update, persisting last_pulled_at when it succeeds.
func (c *Core) repoAction(ctx context.Context, repoID string, user *types.User, op types.Operation,
	call func(ctx context.Context, server *types.Server, args types.CloneArgs) ([]types.Log, error)) (types.Update, error) {
	repo, err := c.getRepoCheckPermissions(ctx, repoID, user, types.PermissionWrite)
	if err != nil {
		return types.Update{}, err
	}
	server, err := c.store.Servers.GetOne(ctx, repo.Config.ServerID)
	if err != nil {
		return types.Update{}, err
	}
	update, err := c.beginUpdate(ctx, types.Update{
		Operation: op,
		Target:    types.UpdateTarget{Type: types.TargetRepo, ID: repoID},
		Operator:  user.ID,
	})
	if err != nil {
		return types.Update{}, err
	}
	if logs, err := call(ctx, &server, types.CloneArgsFromRepo(repo)); err != nil {
		update.Logs = append(update.Logs, types.ErrorLog(string(op), err))
	} else {
		update.Logs = append(update.Logs, logs...)
	}
	if types.AllLogsSuccess(update.Logs) {
		if err := c.store.Repos.Patch(ctx, repoID, bson.M{"info.last_pulled_at": now()}); err != nil {
			update.Logs = append(update.Logs, types.ErrorLog("persist last_pulled_at", err))
		}
	}
	return c.finalizeUpdate(ctx, update), nil
}

// RecloneRepo deletes and re-clones the working copy.
func (c *Core) RecloneRepo(ctx context.Context, repoID string, user *types.User) (types.Update, error) {
	return c.repoAction(ctx, repoID, user, types.OperationRecloneRepo, c.periphery.CloneRepo)
}

// PullRepo pulls the working copy and runs its on_pull command.
func (c *Core) PullRepo(ctx context.Context, repoID string, user *types.User) (types.Update, error) {
	return c.repoAction(ctx, repoID, user, types.OperationPullRepo, c.periphery.PullRepo)
}
