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

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hectolitro/monitor/pkg/types"
)

// checkPermission returns nil when the user holds at least the required
// level on the resource. Admins bypass the map.
func checkPermission[C, I any](user *types.User, r *types.Resource[C, I], required types.PermissionLevel) error {
	if user.Admin || r.UserPermissions(user.ID) >= required {
		return nil
	}
	return types.Errorf(types.ErrForbidden, "user does not have %s permission on %s", required, r.Name)
}

// effectivePermission is the level the user effectively holds: Write for
// admins, else the map value (or None).
func effectivePermission[C, I any](user *types.User, r *types.Resource[C, I]) types.PermissionLevel {
	if user.Admin {
		return types.PermissionWrite
	}
	return r.UserPermissions(user.ID)
}

// permittedFilter matches documents on which the user holds at least the
// given level.
func permittedFilter(userID string, level types.PermissionLevel) bson.M {
	return bson.M{"permissions." + userID: bson.M{"$gte": int(level)}}
}

func idsOf[C, I any](docs []types.Resource[C, I]) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

// resourceIDsForNonAdmin returns all ids of the given type on which the
// user holds at least Read, used to scope list and count queries.
func (c *Core) resourceIDsForNonAdmin(ctx context.Context, userID string, t types.ResourceTargetVariant) ([]string, error) {
	filter := permittedFilter(userID, types.PermissionRead)
	switch t {
	case types.TargetServer:
		docs, err := c.store.Servers.GetSome(ctx, filter)
		if err != nil {
			return nil, err
		}
		return idsOf(docs), nil
	case types.TargetBuild:
		docs, err := c.store.Builds.GetSome(ctx, filter)
		if err != nil {
			return nil, err
		}
		return idsOf(docs), nil
	case types.TargetDeployment:
		docs, err := c.store.Deployments.GetSome(ctx, filter)
		if err != nil {
			return nil, err
		}
		return idsOf(docs), nil
	case types.TargetRepo:
		docs, err := c.store.Repos.GetSome(ctx, filter)
		if err != nil {
			return nil, err
		}
		return idsOf(docs), nil
	case types.TargetBuilder:
		docs, err := c.store.Builders.GetSome(ctx, filter)
		if err != nil {
			return nil, err
		}
		return idsOf(docs), nil
	default:
		return nil, types.Errorf(types.ErrInternal, "unexpected resource type %s", t)
	}
}

// scopeFilter restricts a list query to the permitted ids for non-admins.
// It returns ok=false when the permitted set is empty, meaning the result
// is empty without querying.
func (c *Core) scopeFilter(ctx context.Context, user *types.User, t types.ResourceTargetVariant, filter bson.M) (_ bson.M, ok bool, _ error) {
	if user.Admin {
		return filter, true, nil
	}
	ids, err := c.resourceIDsForNonAdmin(ctx, user.ID, t)
	if err != nil {
		return nil, false, err
	}
	if len(ids) == 0 {
		return nil, false, nil
	}
	if filter == nil {
		filter = bson.M{}
	}
	filter["_id"] = bson.M{"$in": ids}
	return filter, true, nil
}

// getServerCheckPermissions loads a server and checks the user's level.
func (c *Core) getServerCheckPermissions(ctx context.Context, id string, user *types.User, required types.PermissionLevel) (*types.Server, error) {
	server, err := c.store.Servers.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPermission(user, &server, required); err != nil {
		return nil, err
	}
	return &server, nil
}

func (c *Core) getBuildCheckPermissions(ctx context.Context, id string, user *types.User, required types.PermissionLevel) (*types.Build, error) {
	build, err := c.store.Builds.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPermission(user, &build, required); err != nil {
		return nil, err
	}
	return &build, nil
}

func (c *Core) getDeploymentCheckPermissions(ctx context.Context, id string, user *types.User, required types.PermissionLevel) (*types.Deployment, error) {
	deployment, err := c.store.Deployments.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPermission(user, &deployment, required); err != nil {
		return nil, err
	}
	return &deployment, nil
}

func (c *Core) getRepoCheckPermissions(ctx context.Context, id string, user *types.User, required types.PermissionLevel) (*types.Repo, error) {
	repo, err := c.store.Repos.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPermission(user, &repo, required); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (c *Core) getBuilderCheckPermissions(ctx context.Context, id string, user *types.User, required types.PermissionLevel) (*types.Builder, error) {
	builder, err := c.store.Builders.GetOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkPermission(user, &builder, required); err != nil {
		return nil, err
	}
	return &builder, nil
}
