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

// DeploymentQuery filters deployment lists.
type DeploymentQuery struct {
	Tags      []string `json:"tags,omitempty"`
	ServerIDs []string `json:"server_ids,omitempty"`
	BuildIDs  []string `json:"build_ids,omitempty"`
}

func (q DeploymentQuery) filter() bson.M {
	filter := bson.M{}
	if len(q.Tags) > 0 {
		filter["tags"] = bson.M{"$all": q.Tags}
	}
	if len(q.ServerIDs) > 0 {
		filter["config.server_id"] = bson.M{"$in": q.ServerIDs}
	}
	if len(q.BuildIDs) > 0 {
		filter["config.build_id"] = bson.M{"$in": q.BuildIDs}
	}
	return filter
}

// CreateDeployment creates a deployment on a server. Requires Write on the
// server.
func (c *Core) CreateDeployment(ctx context.Context, name, serverID string, user *types.User) (*types.Deployment, error) {
	name = types.NormalizeName(name)
	if name == "" {
		return nil, types.Errorf(types.ErrValidation, "deployment name is required")
	}
	if _, err := c.getServerCheckPermissions(ctx, serverID, user, types.PermissionWrite); err != nil {
		return nil, err
	}
	ts := now()
	deployment := types.Deployment{
		Name:        name,
		Permissions: types.PermissionsMap{user.ID: types.PermissionWrite},
		CreatedAt:   ts,
		UpdatedAt:   ts,
		Config: types.DeploymentConfig{
			ServerID:      serverID,
			DockerRunArgs: types.DefaultDockerRunArgs(),
		},
	}
	id, err := c.store.Deployments.CreateOne(ctx, deployment)
	if err != nil {
		return nil, err
	}
	deployment.ID = id
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationCreateDeployment,
		Target:    types.UpdateTarget{Type: types.TargetDeployment, ID: id},
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
	}); err != nil {
		return nil, err
	}
	return &deployment, nil
}

// GetDeployment returns a deployment the user can read.
func (c *Core) GetDeployment(ctx context.Context, id string, user *types.User) (*types.Deployment, error) {
	return c.getDeploymentCheckPermissions(ctx, id, user, types.PermissionRead)
}

// ListDeployments lists deployments visible to the user, decorated with
// cached container state.
func (c *Core) ListDeployments(ctx context.Context, query DeploymentQuery, user *types.User) ([]types.DeploymentListItem, error) {
	filter, ok, err := c.scopeFilter(ctx, user, types.TargetDeployment, query.filter())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	deployments, err := c.store.Deployments.GetSome(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]types.DeploymentListItem, 0, len(deployments))
	for _, d := range deployments {
		items = append(items, c.deploymentListItem(&d))
	}
	return items, nil
}

func (c *Core) deploymentListItem(d *types.Deployment) types.DeploymentListItem {
	entry := c.status.Deployment(d.ID)
	item := types.DeploymentListItem{
		ID:       d.ID,
		Name:     d.Name,
		Tags:     d.Tags,
		ServerID: d.Config.ServerID,
		State:    entry.State,
		Image:    d.Config.DockerRunArgs.Image,
	}
	if entry.Container != nil {
		item.Status = entry.Container.Status
		item.Image = entry.Container.Image
	}
	return item
}

// GetDeploymentsSummary counts the deployments visible to the user.
func (c *Core) GetDeploymentsSummary(ctx context.Context, user *types.User) (uint32, error) {
	return c.countSummary(ctx, user, types.TargetDeployment)
}

// UpdateDeployment applies a config edit. Changes that only take effect on
// redeploy are flagged in the diff log; the container is not touched.
func (c *Core) UpdateDeployment(ctx context.Context, proposed *types.Deployment, user *types.User) (*types.Deployment, error) {
	current, err := c.getDeploymentCheckPermissions(ctx, proposed.ID, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	if proposed.Config.ServerID != current.Config.ServerID {
		// Moving servers requires the target to exist.
		if _, err := c.store.Servers.GetOne(ctx, proposed.Config.ServerID); err != nil {
			return nil, err
		}
	}
	ts := now()
	proposed.Name = current.Name
	proposed.Permissions = current.Permissions
	proposed.CreatedAt = current.CreatedAt
	proposed.UpdatedAt = ts
	proposed.Info = current.Info
	if err := c.store.Deployments.UpdateOne(ctx, proposed.ID, *proposed); err != nil {
		return nil, err
	}
	diff := types.DiffDeploymentConfig(current.Config, proposed.Config)
	logs := []types.Log{types.SimpleLog("diff", diff.Render())}
	if diff.NeedsRedeploy() {
		logs = append(logs, types.SimpleLog("redeploy", "config change takes effect on next deploy"))
	}
	update, err := c.beginUpdate(ctx, types.Update{
		Operation: types.OperationUpdateDeployment,
		Target:    types.UpdateTarget{Type: types.TargetDeployment, ID: proposed.ID},
		StartTS:   ts,
		Operator:  user.ID,
		Logs:      logs,
	})
	if err != nil {
		return nil, err
	}
	c.finalizeUpdate(ctx, update)
	return proposed, nil
}

// DeleteDeployment stops and removes the container before removing the
// document. Host failures are logged and do not block deletion.
func (c *Core) DeleteDeployment(ctx context.Context, id string, user *types.User) (*types.Deployment, error) {
	deployment, err := c.getDeploymentCheckPermissions(ctx, id, user, types.PermissionWrite)
	if err != nil {
		return nil, err
	}
	ts := now()
	var logs []types.Log
	if server, err := c.store.Servers.GetOne(ctx, deployment.Config.ServerID); err != nil {
		logs = append(logs, types.ErrorLog("resolve server", err))
	} else if removeLogs, err := c.periphery.RemoveContainer(ctx, &server, deployment.Name); err != nil {
		logs = append(logs, types.ErrorLog("remove container", err))
	} else {
		logs = append(logs, removeLogs...)
	}
	if err := c.store.Deployments.DeleteOne(ctx, id); err != nil {
		return nil, err
	}
	c.status.DropDeployment(id)
	logs = append(logs, types.SimpleLog("delete deployment", fmt.Sprintf("deleted deployment %s", deployment.Name)))
	if _, err := c.addUpdate(ctx, types.Update{
		Operation: types.OperationDeleteDeployment,
		Target:    types.SystemTarget(),
		StartTS:   ts,
		EndTS:     now(),
		Operator:  user.ID,
		Success:   true,
		Logs:      logs,
	}); err != nil {
		return nil, err
	}
	return deployment, nil
}

// deploymentImage resolves the image to run: the linked build's image at
// its current version, or the configured image.
func (c *Core) deploymentImage(ctx context.Context, deployment *types.Deployment) (string, error) {
	if deployment.Config.BuildID == "" {
		if deployment.Config.DockerRunArgs.Image == "" {
			return "", types.Errorf(types.ErrValidation, "deployment %s has no image and no linked build", deployment.Name)
		}
		return deployment.Config.DockerRunArgs.Image, nil
	}
	build, err := c.store.Builds.GetOne(ctx, deployment.Config.BuildID)
	if err != nil {
		return "", err
	}
	version := build.Config.Version
	if version.IsZero() {
		return "", types.Errorf(types.ErrValidation, "build %s has never been built", build.Name)
	}
	return fmt.Sprintf("%s:%s", types.BuildImageName(&build), version), nil
}

// deploymentAction is the shared shape of the thin container actions.
func (c *Core) deploymentAction(ctx context.Context, deploymentID string, user *types.User, op types.Operation,
	call func(ctx context.Context, server *types.Server, deployment *types.Deployment) ([]types.Log, error)) (types.Update, error) {
	deployment, err := c.getDeploymentCheckPermissions(ctx, deploymentID, user, types.PermissionWrite)
	if err != nil {
		return types.Update{}, err
	}
	server, err := c.store.Servers.GetOne(ctx, deployment.Config.ServerID)
	if err != nil {
		return types.Update{}, err
	}
	update, err := c.beginUpdate(ctx, types.Update{
		Operation: op,
		Target:    types.UpdateTarget{Type: types.TargetDeployment, ID: deploymentID},
		Operator:  user.ID,
	})
	if err != nil {
		return types.Update{}, err
	}
	if logs, err := call(ctx, &server, deployment); err != nil {
		update.Logs = append(update.Logs, types.ErrorLog(string(op), err))
	} else {
		update.Logs = append(update.Logs, logs...)
	}
	return c.finalizeUpdate(ctx, update), nil
}

// DeployDeployment replaces the deployment's container with a fresh one
// running the resolved image. The status cache catches up on its next
// refresh cycle.
func (c *Core) DeployDeployment(ctx context.Context, deploymentID string, user *types.User) (types.Update, error) {
	return c.deploymentAction(ctx, deploymentID, user, types.OperationDeployDeployment,
		func(ctx context.Context, server *types.Server, deployment *types.Deployment) ([]types.Log, error) {
			image, err := c.deploymentImage(ctx, deployment)
			if err != nil {
				return nil, err
			}
			return c.periphery.Deploy(ctx, server, deployment, image)
		})
}

// StartDeployment starts the deployment's container.
func (c *Core) StartDeployment(ctx context.Context, deploymentID string, user *types.User) (types.Update, error) {
	return c.deploymentAction(ctx, deploymentID, user, types.OperationStartDeployment,
		func(ctx context.Context, server *types.Server, deployment *types.Deployment) ([]types.Log, error) {
			return c.periphery.StartContainer(ctx, server, deployment.Name)
		})
}

// StopDeployment stops the deployment's container.
func (c *Core) StopDeployment(ctx context.Context, deploymentID string, user *types.User) (types.Update, error) {
	return c.deploymentAction(ctx, deploymentID, user, types.OperationStopDeployment,
		func(ctx context.Context, server *types.Server, deployment *types.Deployment) ([]types.Log, error) {
			return c.periphery.StopContainer(ctx, server, deployment.Name, "", 0)
		})
}

// RemoveDeploymentContainer stops and removes the deployment's container,
// leaving the document in place.
func (c *Core) RemoveDeploymentContainer(ctx context.Context, deploymentID string, user *types.User) (types.Update, error) {
	return c.deploymentAction(ctx, deploymentID, user, types.OperationRemoveDeployment,
		func(ctx context.Context, server *types.Server, deployment *types.Deployment) ([]types.Log, error) {
			return c.periphery.RemoveContainer(ctx, server, deployment.Name)
		})
}
