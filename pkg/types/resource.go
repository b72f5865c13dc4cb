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

// Package types holds the domain documents shared by the core server, the
// store, and the periphery agents: resources (Server, Build, Deployment,
// Repo, Builder), the Update audit record, users, tags, and the wire
// payloads exchanged with agents.
package types

import "strings"

// Resource is the common shape of every persisted resource document. The
// type parameters carry the per-resource config (user intent) and info
// (system-written state, e.g. last_built_at).
type Resource[C, I any] struct {
	ID          string         `json:"_id,omitempty" bson:"_id,omitempty"`
	Name        string         `json:"name" bson:"name"`
	Permissions PermissionsMap `json:"permissions,omitempty" bson:"permissions,omitempty"`
	Tags        []string       `json:"tags,omitempty" bson:"tags,omitempty"`
	// CreatedAt and UpdatedAt are unix timestamps in milliseconds.
	CreatedAt int64 `json:"created_at" bson:"created_at"`
	UpdatedAt int64 `json:"updated_at" bson:"updated_at"`
	Config    C     `json:"config" bson:"config"`
	Info      I     `json:"info" bson:"info"`
}

// UserPermissions returns the permission level the given user holds on the
// resource. Missing entries are PermissionNone. Admin bypass is handled by
// the caller, not here.
func (r *Resource[C, I]) UserPermissions(userID string) PermissionLevel {
	return r.Permissions[userID]
}

// NormalizeName converts a user-supplied resource name into its stored
// form: lowercased, spaces to hyphens, everything outside [a-z0-9-_]
// dropped. Applied exactly once, at create.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r == ' ':
			b.WriteByte('-')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SystemCommand is a shell command run in a given working directory,
// relative to the resource's repo root.
type SystemCommand struct {
	Path    string `json:"path,omitempty" bson:"path,omitempty"`
	Command string `json:"command,omitempty" bson:"command,omitempty"`
}

// IsNone reports whether no command is configured.
func (c SystemCommand) IsNone() bool { return c.Command == "" }

// EnvironmentVar is a single variable=value pair used for build args,
// docker labels, and container environments.
type EnvironmentVar struct {
	Variable string `json:"variable" bson:"variable"`
	Value    string `json:"value" bson:"value"`
}

// Conversion maps a host-side value to a container-side value, used for
// both port and volume bindings.
type Conversion struct {
	Local     string `json:"local" bson:"local"`
	Container string `json:"container" bson:"container"`
}
