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

// Build describes how to produce a docker image from a git repo.
type Build = Resource[BuildConfig, BuildInfo]

type BuildConfig struct {
	// BuilderID references the Builder that decides where builds run.
	BuilderID string `json:"builder_id" bson:"builder_id"`

	Version Version `json:"version" bson:"version"`

	// git
	Repo          string        `json:"repo" bson:"repo"`
	Branch        string        `json:"branch" bson:"branch"`
	GithubAccount string        `json:"github_account,omitempty" bson:"github_account,omitempty"`
	OnClone       SystemCommand `json:"on_clone,omitempty" bson:"on_clone,omitempty"`

	// docker
	DockerAccount      string           `json:"docker_account,omitempty" bson:"docker_account,omitempty"`
	DockerOrganization string           `json:"docker_organization,omitempty" bson:"docker_organization,omitempty"`
	PreBuild           SystemCommand    `json:"pre_build,omitempty" bson:"pre_build,omitempty"`
	BuildPath          string           `json:"build_path" bson:"build_path"`
	DockerfilePath     string           `json:"dockerfile_path" bson:"dockerfile_path"`
	BuildArgs          []EnvironmentVar `json:"build_args,omitempty" bson:"build_args,omitempty"`
	Labels             []EnvironmentVar `json:"labels,omitempty" bson:"labels,omitempty"`
	ExtraArgs          []string         `json:"extra_args,omitempty" bson:"extra_args,omitempty"`
	UseBuildx          bool             `json:"use_buildx,omitempty" bson:"use_buildx,omitempty"`
	SkipSecretInterp   bool             `json:"skip_secret_interp,omitempty" bson:"skip_secret_interp,omitempty"`
}

type BuildInfo struct {
	// LastBuiltAt is the unix ms timestamp of the last successful build.
	LastBuiltAt int64 `json:"last_built_at,omitempty" bson:"last_built_at,omitempty"`
}

// DefaultBuildConfig fills the defaults a fresh build gets.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		Branch:         "main",
		BuildPath:      ".",
		DockerfilePath: "Dockerfile",
	}
}

// BuildImageName is the repository the build's images are tagged under:
// "org/name" when a docker organization is set, else "account/name", else
// the bare name.
func BuildImageName(b *Build) string {
	switch {
	case b.Config.DockerOrganization != "":
		return b.Config.DockerOrganization + "/" + b.Name
	case b.Config.DockerAccount != "":
		return b.Config.DockerAccount + "/" + b.Name
	default:
		return b.Name
	}
}

type BuildListItem struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	Tags        []string `json:"tags,omitempty"`
	LastBuiltAt int64    `json:"last_built_at,omitempty"`
	Version     Version  `json:"version"`
	Repo        string   `json:"repo,omitempty"`
	Branch      string   `json:"branch,omitempty"`
}
