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

package db

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hectolitro/monitor/pkg/types"
)

// NewMongoStore connects to the document backend and returns a Store over
// it, creating the indexes the query paths rely on.
func NewMongoStore(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, types.Errorf(types.ErrBackend, "failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, types.Errorf(types.ErrBackend, "failed to ping mongo: %w", err)
	}
	mdb := client.Database(dbName)
	s := &Store{
		Servers:     &mongoColl[types.Server]{c: mdb.Collection("servers")},
		Builds:      &mongoColl[types.Build]{c: mdb.Collection("builds")},
		Deployments: &mongoColl[types.Deployment]{c: mdb.Collection("deployments")},
		Repos:       &mongoColl[types.Repo]{c: mdb.Collection("repos")},
		Builders:    &mongoColl[types.Builder]{c: mdb.Collection("builders")},
		Updates:     &mongoColl[types.Update]{c: mdb.Collection("updates")},
		Users:       &mongoColl[types.User]{c: mdb.Collection("users")},
		Tags:        &mongoColl[types.CustomTag]{c: mdb.Collection("tags")},
	}
	if err := ensureIndexes(ctx, mdb); err != nil {
		return nil, err
	}
	return s, nil
}

func ensureIndexes(ctx context.Context, mdb *mongo.Database) error {
	unique := options.Index().SetUnique(true)
	type idx struct {
		coll string
		keys bson.D
		opts *options.IndexOptions
	}
	indexes := []idx{
		{"servers", bson.D{{Key: "name", Value: 1}}, unique},
		{"builds", bson.D{{Key: "name", Value: 1}}, unique},
		{"deployments", bson.D{{Key: "name", Value: 1}}, unique},
		{"repos", bson.D{{Key: "name", Value: 1}}, unique},
		{"builders", bson.D{{Key: "name", Value: 1}}, unique},
		{"tags", bson.D{{Key: "name", Value: 1}}, unique},
		{"deployments", bson.D{{Key: "config.server_id", Value: 1}}, nil},
		{"repos", bson.D{{Key: "config.server_id", Value: 1}}, nil},
		{"builds", bson.D{{Key: "config.builder_id", Value: 1}}, nil},
		{"builds", bson.D{{Key: "info.last_built_at", Value: 1}}, nil},
		{"updates", bson.D{{Key: "target", Value: 1}, {Key: "start_ts", Value: -1}}, nil},
	}
	for _, ix := range indexes {
		model := mongo.IndexModel{Keys: ix.keys, Options: ix.opts}
		if _, err := mdb.Collection(ix.coll).Indexes().CreateOne(ctx, model); err != nil {
			return types.Errorf(types.ErrBackend, "failed to create index on %s: %w", ix.coll, err)
		}
	}
	return nil
}

type mongoColl[T any] struct {
	c *mongo.Collection
}

func (m *mongoColl[T]) CreateOne(ctx context.Context, doc T) (string, error) {
	d, err := toDoc(doc)
	if err != nil {
		return "", err
	}
	id, _ := d["_id"].(string)
	if id == "" {
		id = primitive.NewObjectID().Hex()
		d["_id"] = id
	}
	if _, err := m.c.InsertOne(ctx, d); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			name, _ := d["name"].(string)
			return "", duplicateNameErr(m.c.Name(), name)
		}
		return "", types.Errorf(types.ErrBackend, "failed to insert into %s: %w", m.c.Name(), err)
	}
	return id, nil
}

func (m *mongoColl[T]) GetOne(ctx context.Context, id string) (T, error) {
	var doc T
	err := m.c.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return doc, notFoundErr(m.c.Name(), id)
	}
	if err != nil {
		return doc, types.Errorf(types.ErrBackend, "failed to get from %s: %w", m.c.Name(), err)
	}
	return doc, nil
}

func (m *mongoColl[T]) UpdateOne(ctx context.Context, id string, doc T) error {
	d, err := toDoc(doc)
	if err != nil {
		return err
	}
	d["_id"] = id
	res, err := m.c.ReplaceOne(ctx, bson.M{"_id": id}, d)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			name, _ := d["name"].(string)
			return duplicateNameErr(m.c.Name(), name)
		}
		return types.Errorf(types.ErrBackend, "failed to replace in %s: %w", m.c.Name(), err)
	}
	if res.MatchedCount == 0 {
		return notFoundErr(m.c.Name(), id)
	}
	return nil
}

func (m *mongoColl[T]) Patch(ctx context.Context, id string, set bson.M) error {
	res, err := m.c.UpdateByID(ctx, id, bson.M{"$set": set})
	if err != nil {
		return types.Errorf(types.ErrBackend, "failed to patch in %s: %w", m.c.Name(), err)
	}
	if res.MatchedCount == 0 {
		return notFoundErr(m.c.Name(), id)
	}
	return nil
}

func (m *mongoColl[T]) DeleteOne(ctx context.Context, id string) error {
	res, err := m.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return types.Errorf(types.ErrBackend, "failed to delete from %s: %w", m.c.Name(), err)
	}
	if res.DeletedCount == 0 {
		return notFoundErr(m.c.Name(), id)
	}
	return nil
}

func (m *mongoColl[T]) GetSome(ctx context.Context, filter bson.M) ([]T, error) {
	if filter == nil {
		filter = bson.M{}
	}
	cur, err := m.c.Find(ctx, filter)
	if err != nil {
		return nil, types.Errorf(types.ErrBackend, "failed to query %s: %w", m.c.Name(), err)
	}
	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		return nil, types.Errorf(types.ErrBackend, "failed to decode %s results: %w", m.c.Name(), err)
	}
	return docs, nil
}

func (m *mongoColl[T]) Count(ctx context.Context, filter bson.M) (int64, error) {
	if filter == nil {
		filter = bson.M{}
	}
	n, err := m.c.CountDocuments(ctx, filter)
	if err != nil {
		return 0, types.Errorf(types.ErrBackend, "failed to count %s: %w", m.c.Name(), err)
	}
	return n, nil
}

// toDoc round-trips a typed document into a bson map so ids can be
// inspected and assigned uniformly.
func toDoc(v any) (bson.M, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	var d bson.M
	if err := bson.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return d, nil
}
