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
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hectolitro/monitor/pkg/types"
)

// addUpdate persists an already-complete update (create/delete style
// operations that finish inline).
func (c *Core) addUpdate(ctx context.Context, u types.Update) (types.Update, error) {
	if u.Status == "" {
		u.Status = types.UpdateStatusComplete
	}
	id, err := c.store.Updates.CreateOne(ctx, u)
	if err != nil {
		return u, err
	}
	u.ID = id
	c.publishUpdate(u)
	return u, nil
}

// beginUpdate opens an in-progress update at the start of a long-running
// operation. The returned copy carries the assigned id.
func (c *Core) beginUpdate(ctx context.Context, u types.Update) (types.Update, error) {
	if u.StartTS == 0 {
		u.StartTS = now()
	}
	u.Status = types.UpdateStatusInProgress
	id, err := c.store.Updates.CreateOne(ctx, u)
	if err != nil {
		return u, err
	}
	u.ID = id
	c.publishUpdate(u)
	return u, nil
}

// finalizeUpdate closes an update: end timestamp, success derived from the
// logs, status complete. Persistence is best effort; a failed write leaves
// the update in_progress for the sweeper to reconcile.
func (c *Core) finalizeUpdate(ctx context.Context, u types.Update) types.Update {
	u.EndTS = now()
	u.Success = types.AllLogsSuccess(u.Logs)
	u.Status = types.UpdateStatusComplete
	if err := c.store.Updates.UpdateOne(ctx, u.ID, u); err != nil {
		log.Printf("failed to finalize update %s: %v", u.ID, err)
	}
	c.publishUpdate(u)
	return u
}

// ListUpdates returns the updates for a target, newest first. Non-admins
// need Read on the targeted resource; system updates are admin only.
func (c *Core) ListUpdates(ctx context.Context, target types.UpdateTarget, user *types.User) ([]types.Update, error) {
	if !user.Admin {
		var err error
		switch target.Type {
		case types.TargetServer:
			_, err = c.getServerCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		case types.TargetBuild:
			_, err = c.getBuildCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		case types.TargetDeployment:
			_, err = c.getDeploymentCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		case types.TargetRepo:
			_, err = c.getRepoCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		case types.TargetBuilder:
			_, err = c.getBuilderCheckPermissions(ctx, target.ID, user, types.PermissionRead)
		default:
			err = types.Errorf(types.ErrForbidden, "system updates require admin")
		}
		if err != nil {
			return nil, err
		}
	}
	filter := bson.M{"target.type": string(target.Type)}
	if target.ID != "" {
		filter["target.id"] = target.ID
	}
	updates, err := c.store.Updates.GetSome(ctx, filter)
	if err != nil {
		return nil, err
	}
	// Newest first.
	for i, j := 0, len(updates)-1; i < j; i, j = i+1, j-1 {
		updates[i], updates[j] = updates[j], updates[i]
	}
	return updates, nil
}

const sweepInterval = time.Minute

// sweepUpdates reconciles updates left in_progress by a crashed or
// cancelled finalization: anything older than the stale cutoff is closed
// as failed.
func (c *Core) sweepUpdates() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.sweepOnce(c.ctx)
		}
	}
}

func (c *Core) sweepOnce(ctx context.Context) {
	cutoff := now() - c.cfg.UpdateStaleAfter().Milliseconds()
	stale, err := c.store.Updates.GetSome(ctx, bson.M{
		"status":   string(types.UpdateStatusInProgress),
		"start_ts": bson.M{"$lt": cutoff},
	})
	if err != nil {
		log.Printf("failed to sweep stale updates: %v", err)
		return
	}
	for _, u := range stale {
		u.Logs = append(u.Logs, types.ErrorLog("sweep", types.Errorf(types.ErrInternal, "operation made no progress; marked failed")))
		u.Status = types.UpdateStatusComplete
		u.Success = false
		u.EndTS = now()
		if err := c.store.Updates.UpdateOne(ctx, u.ID, u); err != nil {
			log.Printf("failed to close stale update %s: %v", u.ID, err)
			continue
		}
		c.publishUpdate(u)
	}
}
