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

// Package db is the typed persistence layer. It is the only package that
// speaks to the document backend; everything above it sees Collection
// handles keyed by bson filters.
package db

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/hectolitro/monitor/pkg/types"
)

// Collection is a typed handle on one document collection. Filters are
// structured bson predicates over field paths, e.g.
// bson.M{"config.server_id": bson.M{"$in": ids}}.
type Collection[T any] interface {
	// CreateOne inserts doc, assigning an id if it has none, and returns
	// the id.
	CreateOne(ctx context.Context, doc T) (string, error)
	// GetOne returns the document with the given id.
	GetOne(ctx context.Context, id string) (T, error)
	// UpdateOne replaces the document with the given id.
	UpdateOne(ctx context.Context, id string, doc T) error
	// Patch applies a $set of dotted field paths to the document.
	Patch(ctx context.Context, id string, set bson.M) error
	// DeleteOne removes the document with the given id.
	DeleteOne(ctx context.Context, id string) error
	// GetSome returns every document matching the filter. A nil filter
	// matches everything.
	GetSome(ctx context.Context, filter bson.M) ([]T, error)
	// Count counts documents matching the filter.
	Count(ctx context.Context, filter bson.M) (int64, error)
}

// Store bundles the collections the core operates on.
type Store struct {
	Servers     Collection[types.Server]
	Builds      Collection[types.Build]
	Deployments Collection[types.Deployment]
	Repos       Collection[types.Repo]
	Builders    Collection[types.Builder]
	Updates     Collection[types.Update]
	Users       Collection[types.User]
	Tags        Collection[types.CustomTag]
}

func notFoundErr(coll, id string) error {
	return types.Errorf(types.ErrNotFound, "no document %q in %s", id, coll)
}

func duplicateNameErr(coll, name string) error {
	return types.Errorf(types.ErrDuplicateName, "name %q already exists in %s", name, coll)
}
