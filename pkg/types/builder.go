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

package types

// Builder decides where Build actions run: on a registered Server, or on
// an ephemeral cloud instance provisioned per build.
type Builder = Resource[BuilderConfig, BuilderInfo]

// BuilderType tags the builder config variant.
type BuilderType string

const (
	BuilderTypeServer BuilderType = "Server"
	BuilderTypeAws    BuilderType = "Aws"
)

// BuilderConfig is a tagged variant; Params fields are meaningful per Type.
type BuilderConfig struct {
	Type   BuilderType   `json:"type" bson:"type"`
	Params BuilderParams `json:"params" bson:"params"`
}

type BuilderParams struct {
	// Server builder: the registered server builds run on.
	ServerID string `json:"server_id,omitempty" bson:"server_id,omitempty"`

	// Aws builder: ephemeral instance parameters plus the accounts
	// available on the produced host.
	Region         string   `json:"region,omitempty" bson:"region,omitempty"`
	InstanceType   string   `json:"instance_type,omitempty" bson:"instance_type,omitempty"`
	AMI            string   `json:"ami,omitempty" bson:"ami,omitempty"`
	VolumeGB       int      `json:"volume_gb,omitempty" bson:"volume_gb,omitempty"`
	GithubAccounts []string `json:"github_accounts,omitempty" bson:"github_accounts,omitempty"`
	DockerAccounts []string `json:"docker_accounts,omitempty" bson:"docker_accounts,omitempty"`
}

type BuilderInfo struct{}

// AvailableAccounts is the deduped, sorted set of credential account names
// usable for a job.
type AvailableAccounts struct {
	Github []string `json:"github"`
	Docker []string `json:"docker"`
}

type BuilderListItem struct {
	ID   string      `json:"_id"`
	Name string      `json:"name"`
	Tags []string    `json:"tags,omitempty"`
	Type BuilderType `json:"type"`
}
