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
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/hectolitro/monitor/pkg/types"
)

// HandlerFunc resolves one named request for an authenticated user.
type HandlerFunc func(ctx context.Context, user *types.User, params json.RawMessage) (any, error)

// handle adapts a typed handler into the registry shape.
func handle[Req any](f func(ctx context.Context, user *types.User, req Req) (any, error)) HandlerFunc {
	return func(ctx context.Context, user *types.User, params json.RawMessage) (any, error) {
		var req Req
		if len(params) > 0 {
			if err := json.Unmarshal(params, &req); err != nil {
				return nil, types.Errorf(types.ErrValidation, "bad request params: %v", err)
			}
		}
		return f(ctx, user, req)
	}
}

type idRequest struct {
	ID string `json:"id"`
}

type createRequest struct {
	Name string `json:"name"`
	// ServerID scopes Deployment and Repo creation; BuilderID scopes Build
	// creation.
	ServerID  string `json:"server_id,omitempty"`
	BuilderID string `json:"builder_id,omitempty"`

	ServerConfig  *types.ServerConfig  `json:"server_config,omitempty"`
	BuilderConfig *types.BuilderConfig `json:"builder_config,omitempty"`
}

type summaryResponse struct {
	Total uint32 `json:"total"`
}

type findResourcesRequest struct {
	Tags []types.Tag `json:"tags,omitempty"`
}

type listUpdatesRequest struct {
	Target types.UpdateTarget `json:"target"`
}

// Registry returns the flat message-name to handler table the request
// surface dispatches through.
func (c *Core) Registry() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		// server
		"CreateServer": handle(func(ctx context.Context, user *types.User, req createRequest) (any, error) {
			cfg := types.DefaultServerConfig()
			if req.ServerConfig != nil {
				cfg = *req.ServerConfig
			}
			return c.CreateServer(ctx, req.Name, cfg, user)
		}),
		"GetServer": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.GetServer(ctx, req.ID, user)
		}),
		"ListServers": handle(func(ctx context.Context, user *types.User, req ServerQuery) (any, error) {
			return c.ListServers(ctx, req, user)
		}),
		"GetServersSummary": handle(func(ctx context.Context, user *types.User, _ struct{}) (any, error) {
			total, err := c.GetServersSummary(ctx, user)
			return summaryResponse{Total: total}, err
		}),
		"UpdateServer": handle(func(ctx context.Context, user *types.User, req types.Server) (any, error) {
			return c.UpdateServer(ctx, &req, user)
		}),
		"DeleteServer": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.DeleteServer(ctx, req.ID, user)
		}),
		"GetAvailableAccounts": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.GetAvailableAccounts(ctx, req.ID, user)
		}),
		"PruneImagesServer": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.PruneImages(ctx, req.ID, user)
		}),
		"PruneContainersServer": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.PruneContainers(ctx, req.ID, user)
		}),
		"PruneNetworksServer": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.PruneNetworks(ctx, req.ID, user)
		}),

		// build
		"CreateBuild": handle(func(ctx context.Context, user *types.User, req createRequest) (any, error) {
			return c.CreateBuild(ctx, req.Name, req.BuilderID, user)
		}),
		"GetBuild": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.GetBuild(ctx, req.ID, user)
		}),
		"ListBuilds": handle(func(ctx context.Context, user *types.User, req BuildQuery) (any, error) {
			return c.ListBuilds(ctx, req, user)
		}),
		"GetBuildsSummary": handle(func(ctx context.Context, user *types.User, _ struct{}) (any, error) {
			total, err := c.GetBuildsSummary(ctx, user)
			return summaryResponse{Total: total}, err
		}),
		"UpdateBuild": handle(func(ctx context.Context, user *types.User, req types.Build) (any, error) {
			return c.UpdateBuild(ctx, &req, user)
		}),
		"DeleteBuild": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.DeleteBuild(ctx, req.ID, user)
		}),
		"BuildBuild": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.BuildBuild(ctx, req.ID, user)
		}),
		"RecloneBuild": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.RecloneBuild(ctx, req.ID, user)
		}),

		// deployment
		"CreateDeployment": handle(func(ctx context.Context, user *types.User, req createRequest) (any, error) {
			return c.CreateDeployment(ctx, req.Name, req.ServerID, user)
		}),
		"GetDeployment": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.GetDeployment(ctx, req.ID, user)
		}),
		"ListDeployments": handle(func(ctx context.Context, user *types.User, req DeploymentQuery) (any, error) {
			return c.ListDeployments(ctx, req, user)
		}),
		"GetDeploymentsSummary": handle(func(ctx context.Context, user *types.User, _ struct{}) (any, error) {
			total, err := c.GetDeploymentsSummary(ctx, user)
			return summaryResponse{Total: total}, err
		}),
		"UpdateDeployment": handle(func(ctx context.Context, user *types.User, req types.Deployment) (any, error) {
			return c.UpdateDeployment(ctx, &req, user)
		}),
		"DeleteDeployment": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.DeleteDeployment(ctx, req.ID, user)
		}),
		"DeployDeployment": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.DeployDeployment(ctx, req.ID, user)
		}),
		"StartDeployment": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.StartDeployment(ctx, req.ID, user)
		}),
		"StopDeployment": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.StopDeployment(ctx, req.ID, user)
		}),
		"RemoveDeploymentContainer": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.RemoveDeploymentContainer(ctx, req.ID, user)
		}),

		// repo
		"CreateRepo": handle(func(ctx context.Context, user *types.User, req createRequest) (any, error) {
			return c.CreateRepo(ctx, req.Name, req.ServerID, user)
		}),
		"GetRepo": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.GetRepo(ctx, req.ID, user)
		}),
		"ListRepos": handle(func(ctx context.Context, user *types.User, req RepoQuery) (any, error) {
			return c.ListRepos(ctx, req, user)
		}),
		"GetReposSummary": handle(func(ctx context.Context, user *types.User, _ struct{}) (any, error) {
			total, err := c.GetReposSummary(ctx, user)
			return summaryResponse{Total: total}, err
		}),
		"UpdateRepo": handle(func(ctx context.Context, user *types.User, req types.Repo) (any, error) {
			return c.UpdateRepo(ctx, &req, user)
		}),
		"DeleteRepo": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.DeleteRepo(ctx, req.ID, user)
		}),
		"RecloneRepo": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.RecloneRepo(ctx, req.ID, user)
		}),
		"PullRepo": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.PullRepo(ctx, req.ID, user)
		}),

		// builder
		"CreateBuilder": handle(func(ctx context.Context, user *types.User, req createRequest) (any, error) {
			if req.BuilderConfig == nil {
				return nil, types.Errorf(types.ErrValidation, "builder_config is required")
			}
			return c.CreateBuilder(ctx, req.Name, *req.BuilderConfig, user)
		}),
		"GetBuilder": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.GetBuilder(ctx, req.ID, user)
		}),
		"ListBuilders": handle(func(ctx context.Context, user *types.User, req BuilderQuery) (any, error) {
			return c.ListBuilders(ctx, req, user)
		}),
		"GetBuildersSummary": handle(func(ctx context.Context, user *types.User, _ struct{}) (any, error) {
			total, err := c.GetBuildersSummary(ctx, user)
			return summaryResponse{Total: total}, err
		}),
		"UpdateBuilder": handle(func(ctx context.Context, user *types.User, req types.Builder) (any, error) {
			return c.UpdateBuilder(ctx, &req, user)
		}),
		"DeleteBuilder": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.DeleteBuilder(ctx, req.ID, user)
		}),
		"GetBuilderAvailableAccounts": handle(func(ctx context.Context, user *types.User, req idRequest) (any, error) {
			return c.GetBuilderAvailableAccounts(ctx, req.ID, user)
		}),

		// search + updates
		"FindResources": handle(func(ctx context.Context, user *types.User, req findResourcesRequest) (any, error) {
			return c.FindResources(ctx, req.Tags, user)
		}),
		"ListUpdates": handle(func(ctx context.Context, user *types.User, req listUpdatesRequest) (any, error) {
			return c.ListUpdates(ctx, req.Target, user)
		}),
	}
}

// requestEnvelope is the POST /api body: a message name plus its params.
type requestEnvelope struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

type errorResponse struct {
	Kind  types.ErrorKind `json:"kind"`
	Error string          `json:"error"`
}

// UserHeader names the authenticated user on each request. Authentication
// itself happens upstream; the core only resolves and gates the user.
const UserHeader = "X-Monitor-User"

// APIHandler serves the request registry plus the update event feed.
func (c *Core) APIHandler() http.Handler {
	registry := c.Registry()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("POST /api", func(w http.ResponseWriter, r *http.Request) {
		user, err := c.authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		var env requestEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			writeError(w, types.Errorf(types.ErrValidation, "bad request envelope: %v", err))
			return
		}
		h, ok := registry[env.Type]
		if !ok {
			writeError(w, types.Errorf(types.ErrValidation, "unknown request type %q", env.Type))
			return
		}
		res, err := h(r.Context(), user, env.Params)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			log.Printf("failed to encode %s response: %v", env.Type, err)
		}
	})
	mux.HandleFunc("GET /ws/updates", func(w http.ResponseWriter, r *http.Request) {
		user, err := c.authenticate(r)
		if err != nil {
			writeError(w, err)
			return
		}
		c.handleUpdatesWS(user)(w, r)
	})
	return mux
}

func (c *Core) authenticate(r *http.Request) (*types.User, error) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		return nil, types.Errorf(types.ErrForbidden, "missing user")
	}
	user, err := c.store.Users.GetOne(r.Context(), userID)
	if err != nil {
		return nil, types.Errorf(types.ErrForbidden, "unknown user")
	}
	if !user.Enabled {
		return nil, types.Errorf(types.ErrForbidden, "user is disabled")
	}
	return &user, nil
}

func writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	msg := err.Error()
	if kind == types.ErrInternal {
		// Internal details stay in the server log.
		log.Printf("internal error: %v", err)
		msg = "internal error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus(kind))
	json.NewEncoder(w).Encode(errorResponse{Kind: kind, Error: msg})
}

func httpStatus(kind types.ErrorKind) int {
	switch kind {
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrForbidden:
		return http.StatusForbidden
	case types.ErrDuplicateName, types.ErrValidation:
		return http.StatusBadRequest
	case types.ErrPeripheryUnreachable, types.ErrPeripheryBusy:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
