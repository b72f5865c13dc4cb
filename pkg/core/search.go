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
	"slices"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hectolitro/monitor/pkg/types"
)

// allSearchTypes is what an unscoped search covers. Builder and System are
// not searchable.
var allSearchTypes = []types.ResourceTargetVariant{
	types.TargetServer, types.TargetBuild, types.TargetDeployment, types.TargetRepo,
}

// FindResourcesResponse groups search hits by resource type.
type FindResourcesResponse struct {
	Servers     []types.ServerListItem     `json:"servers,omitempty"`
	Builds      []types.BuildListItem      `json:"builds,omitempty"`
	Deployments []types.DeploymentListItem `json:"deployments,omitempty"`
	Repos       []types.RepoListItem       `json:"repos,omitempty"`
}

type separatedTags struct {
	resourceTypes []types.ResourceTargetVariant
	serverIDs     []string
	customTagIDs  []string
}

func separateTags(tags []types.Tag) separatedTags {
	var sep separatedTags
	for _, tag := range tags {
		switch tag.Type {
		case types.TagTypeCustom:
			sep.customTagIDs = append(sep.customTagIDs, tag.TagID)
		case types.TagTypeServer:
			sep.serverIDs = append(sep.serverIDs, tag.ServerID)
		case types.TagTypeResourceType:
			if tag.Resource == types.TargetBuilder || tag.Resource == types.TargetSystem {
				continue
			}
			if !slices.Contains(sep.resourceTypes, tag.Resource) {
				sep.resourceTypes = append(sep.resourceTypes, tag.Resource)
			}
		}
	}
	if len(sep.resourceTypes) == 0 {
		sep.resourceTypes = allSearchTypes
	}
	return sep
}

// FindResources resolves a tag-filter query across resource types,
// post-filtered by the user's permissions and decorated with cached
// status.
//
// The permission thresholds differ on purpose: servers show at > none,
// everything else at > read, matching the historical behavior.
func (c *Core) FindResources(ctx context.Context, tags []types.Tag, user *types.User) (FindResourcesResponse, error) {
	sep := separateTags(tags)

	base := bson.M{}
	if len(sep.customTagIDs) > 0 {
		base["tags"] = bson.M{"$all": sep.customTagIDs}
	}

	var resp FindResourcesResponse
	for _, t := range sep.resourceTypes {
		switch t {
		case types.TargetServer:
			filter := cloneFilter(base)
			if len(sep.serverIDs) > 0 {
				filter["_id"] = bson.M{"$in": sep.serverIDs}
			}
			servers, err := c.store.Servers.GetSome(ctx, filter)
			if err != nil {
				return resp, err
			}
			for i := range servers {
				s := &servers[i]
				if effectivePermission(user, s) <= types.PermissionNone {
					continue
				}
				resp.Servers = append(resp.Servers, types.ServerListItem{
					ID:     s.ID,
					Name:   s.Name,
					Tags:   s.Tags,
					Status: c.status.Server(s.ID).Status,
					Region: s.Config.Region,
				})
			}
		case types.TargetDeployment:
			filter := cloneFilter(base)
			if len(sep.serverIDs) > 0 {
				filter["config.server_id"] = bson.M{"$in": sep.serverIDs}
			}
			deployments, err := c.store.Deployments.GetSome(ctx, filter)
			if err != nil {
				return resp, err
			}
			for i := range deployments {
				d := &deployments[i]
				if effectivePermission(user, d) <= types.PermissionRead {
					continue
				}
				resp.Deployments = append(resp.Deployments, c.deploymentListItem(d))
			}
		case types.TargetBuild:
			filter := cloneFilter(base)
			if len(sep.serverIDs) > 0 {
				builderIDs, err := c.builderIDsForServers(ctx, sep.serverIDs)
				if err != nil {
					return resp, err
				}
				if len(builderIDs) == 0 {
					continue
				}
				filter["config.builder_id"] = bson.M{"$in": builderIDs}
			}
			builds, err := c.store.Builds.GetSome(ctx, filter)
			if err != nil {
				return resp, err
			}
			for i := range builds {
				b := &builds[i]
				if effectivePermission(user, b) <= types.PermissionRead {
					continue
				}
				resp.Builds = append(resp.Builds, types.BuildListItem{
					ID:          b.ID,
					Name:        b.Name,
					Tags:        b.Tags,
					LastBuiltAt: b.Info.LastBuiltAt,
					Version:     b.Config.Version,
					Repo:        b.Config.Repo,
					Branch:      b.Config.Branch,
				})
			}
		case types.TargetRepo:
			filter := cloneFilter(base)
			if len(sep.serverIDs) > 0 {
				filter["config.server_id"] = bson.M{"$in": sep.serverIDs}
			}
			repos, err := c.store.Repos.GetSome(ctx, filter)
			if err != nil {
				return resp, err
			}
			for i := range repos {
				r := &repos[i]
				if effectivePermission(user, r) <= types.PermissionRead {
					continue
				}
				resp.Repos = append(resp.Repos, types.RepoListItem{
					ID:           r.ID,
					Name:         r.Name,
					Tags:         r.Tags,
					LastPulledAt: r.Info.LastPulledAt,
				})
			}
		}
	}
	return resp, nil
}

// builderIDsForServers maps a server scope onto the builders running on
// those servers, which is how builds are scoped to servers.
func (c *Core) builderIDsForServers(ctx context.Context, serverIDs []string) ([]string, error) {
	builders, err := c.store.Builders.GetSome(ctx, bson.M{
		"config.params.server_id": bson.M{"$in": serverIDs},
	})
	if err != nil {
		return nil, err
	}
	return idsOf(builders), nil
}

func cloneFilter(f bson.M) bson.M {
	out := make(bson.M, len(f)+1)
	for k, v := range f {
		out[k] = v
	}
	return out
}
