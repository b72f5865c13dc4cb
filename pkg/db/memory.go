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
	"sort"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/hectolitro/monitor/pkg/types"
)

// NewMemoryStore returns a Store backed by process memory. It evaluates
// the same bson filters the mongo store does and enforces the same unique
// name indexes. Used by tests and by --db-memory dev mode.
func NewMemoryStore() *Store {
	return &Store{
		Servers:     newMemColl[types.Server]("servers", true),
		Builds:      newMemColl[types.Build]("builds", true),
		Deployments: newMemColl[types.Deployment]("deployments", true),
		Repos:       newMemColl[types.Repo]("repos", true),
		Builders:    newMemColl[types.Builder]("builders", true),
		Updates:     newMemColl[types.Update]("updates", false),
		Users:       newMemColl[types.User]("users", false),
		Tags:        newMemColl[types.CustomTag]("tags", true),
	}
}

type memColl[T any] struct {
	name       string
	uniqueName bool

	mu   sync.Mutex
	docs map[string]bson.M
}

func newMemColl[T any](name string, uniqueName bool) *memColl[T] {
	return &memColl[T]{name: name, uniqueName: uniqueName, docs: make(map[string]bson.M)}
}

func (m *memColl[T]) nameTakenLocked(name string, excludeID string) bool {
	if !m.uniqueName || name == "" {
		return false
	}
	for id, d := range m.docs {
		if id == excludeID {
			continue
		}
		if n, _ := d["name"].(string); n == name {
			return true
		}
	}
	return false
}

func (m *memColl[T]) CreateOne(_ context.Context, doc T) (string, error) {
	d, err := toDoc(doc)
	if err != nil {
		return "", err
	}
	id, _ := d["_id"].(string)
	if id == "" {
		id = primitive.NewObjectID().Hex()
		d["_id"] = id
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; ok {
		return "", types.Errorf(types.ErrBackend, "duplicate id %q in %s", id, m.name)
	}
	if name, _ := d["name"].(string); m.nameTakenLocked(name, id) {
		return "", duplicateNameErr(m.name, name)
	}
	m.docs[id] = d
	return id, nil
}

func (m *memColl[T]) GetOne(_ context.Context, id string) (T, error) {
	var doc T
	m.mu.Lock()
	d, ok := m.docs[id]
	m.mu.Unlock()
	if !ok {
		return doc, notFoundErr(m.name, id)
	}
	if err := fromDoc(d, &doc); err != nil {
		return doc, err
	}
	return doc, nil
}

func (m *memColl[T]) UpdateOne(_ context.Context, id string, doc T) error {
	d, err := toDoc(doc)
	if err != nil {
		return err
	}
	d["_id"] = id
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return notFoundErr(m.name, id)
	}
	if name, _ := d["name"].(string); m.nameTakenLocked(name, id) {
		return duplicateNameErr(m.name, name)
	}
	m.docs[id] = d
	return nil
}

func (m *memColl[T]) Patch(_ context.Context, id string, set bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return notFoundErr(m.name, id)
	}
	for path, v := range set {
		setPath(d, path, v)
	}
	return nil
}

func (m *memColl[T]) DeleteOne(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[id]; !ok {
		return notFoundErr(m.name, id)
	}
	delete(m.docs, id)
	return nil
}

func (m *memColl[T]) GetSome(_ context.Context, filter bson.M) ([]T, error) {
	m.mu.Lock()
	var matched []bson.M
	for _, d := range m.docs {
		if matchFilter(d, filter) {
			matched = append(matched, d)
		}
	}
	m.mu.Unlock()
	// Deterministic order for tests and list output.
	sort.Slice(matched, func(i, j int) bool {
		a, _ := matched[i]["_id"].(string)
		b, _ := matched[j]["_id"].(string)
		return a < b
	})
	docs := make([]T, 0, len(matched))
	for _, d := range matched {
		var doc T
		if err := fromDoc(d, &doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (m *memColl[T]) Count(_ context.Context, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range m.docs {
		if matchFilter(d, filter) {
			n++
		}
	}
	return n, nil
}

func fromDoc[T any](d bson.M, out *T) error {
	raw, err := bson.Marshal(d)
	if err != nil {
		return types.Errorf(types.ErrBackend, "failed to marshal stored document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return types.Errorf(types.ErrBackend, "failed to decode stored document: %w", err)
	}
	return nil
}
