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
	"net/http"

	"github.com/gorilla/websocket"
	"tailscale.com/util/set"

	"github.com/hectolitro/monitor/pkg/types"
)

// UpdateEvent is pushed to subscribers whenever an update is created or
// finalized.
type UpdateEvent struct {
	// Time is the time the event was published in milliseconds since the
	// epoch.
	Time   int64        `json:"time"`
	Update types.Update `json:"update"`
}

type updateListener struct {
	ch     chan<- UpdateEvent
	filter func(UpdateEvent) bool
}

func (c *Core) publishUpdate(u types.Update) {
	ev := UpdateEvent{Time: now(), Update: u}
	uls := &c.updateListeners
	uls.mu.Lock()
	defer uls.mu.Unlock()
	for _, ul := range uls.s {
		if ul.filter != nil && !ul.filter(ev) {
			continue
		}
		select {
		case ul.ch <- ev:
		default:
			// Slow subscribers drop events rather than stall operations.
		}
	}
}

// AddUpdateListener subscribes ch to update events matching filter (nil
// matches everything). The returned handle removes the subscription.
func (c *Core) AddUpdateListener(ch chan<- UpdateEvent, filter func(UpdateEvent) bool) set.Handle {
	uls := &c.updateListeners
	uls.mu.Lock()
	defer uls.mu.Unlock()
	return uls.s.Add(&updateListener{ch: ch, filter: filter})
}

func (c *Core) RemoveUpdateListener(h set.Handle) {
	uls := &c.updateListeners
	uls.mu.Lock()
	defer uls.mu.Unlock()
	delete(uls.s, h)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleUpdatesWS streams update events to a websocket client. The user
// only receives events for resources they can read.
func (c *Core) handleUpdatesWS(user *types.User) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer conn.Close()

		ch := make(chan UpdateEvent, 16)
		h := c.AddUpdateListener(ch, func(ev UpdateEvent) bool {
			return c.canReadUpdateTarget(r.Context(), user, ev.Update.Target)
		})
		defer c.RemoveUpdateListener(h)

		for {
			select {
			case ev := <-ch:
				if err := conn.WriteJSON(ev); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

func (c *Core) canReadUpdateTarget(ctx context.Context, user *types.User, target types.UpdateTarget) bool {
	if user.Admin {
		return true
	}
	switch target.Type {
	case types.TargetServer:
		_, err := c.getServerCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		return err == nil
	case types.TargetBuild:
		_, err := c.getBuildCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		return err == nil
	case types.TargetDeployment:
		_, err := c.getDeploymentCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		return err == nil
	case types.TargetRepo:
		_, err := c.getRepoCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		return err == nil
	case types.TargetBuilder:
		_, err := c.getBuilderCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		return err == nil
	default:
		return false
	}
}
