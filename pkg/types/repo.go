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

// Repo is a git working copy kept cloned on a Server.
type Repo = Resource[RepoConfig, RepoInfo]

type RepoConfig struct {
	ServerID      string        `json:"server_id" bson:"server_id"`
	Repo          string        `json:"repo" bson:"repo"`
	Branch        string        `json:"branch" bson:"branch"`
	GithubAccount string        `json:"github_account,omitempty" bson:"github_account,omitempty"`
	OnClone       SystemCommand `json:"on_clone,omitempty" bson:"on_clone,omitempty"`
	OnPull        SystemCommand `json:"on_pull,omitempty" bson:"on_pull,omitempty"`
}

type RepoInfo struct {
	// LastPulledAt is the unix ms timestamp of the last successful clone or
	// pull.
	LastPulledAt int64 `json:"last_pulled_at,omitempty" bson:"last_pulled_at,omitempty"`
}

// DefaultRepoConfig fills the defaults a fresh repo gets.
func DefaultRepoConfig() RepoConfig {
	return RepoConfig{Branch: "main"}
}

// CloneArgs is the payload of a clone_repo call, built from either a Build
// or a Repo.
type CloneArgs struct {
	Name          string        `json:"name"`
	Repo          string        `json:"repo"`
	Branch        string        `json:"branch"`
	GithubAccount string        `json:"github_account,omitempty"`
	OnClone       SystemCommand `json:"on_clone,omitempty"`
	OnPull        SystemCommand `json:"on_pull,omitempty"`
}

// CloneArgsFromBuild derives the clone payload for a build's source repo.
func CloneArgsFromBuild(b *Build) CloneArgs {
	return CloneArgs{
		Name:          b.Name,
		Repo:          b.Config.Repo,
		Branch:        b.Config.Branch,
		GithubAccount: b.Config.GithubAccount,
		OnClone:       b.Config.OnClone,
	}
}

// CloneArgsFromRepo derives the clone payload for a repo resource.
func CloneArgsFromRepo(r *Repo) CloneArgs {
	return CloneArgs{
		Name:          r.Name,
		Repo:          r.Config.Repo,
		Branch:        r.Config.Branch,
		GithubAccount: r.Config.GithubAccount,
		OnClone:       r.Config.OnClone,
		OnPull:        r.Config.OnPull,
	}
}

type RepoListItem struct {
	ID           string   `json:"_id"`
	Name         string   `json:"name"`
	Tags         []string `json:"tags,omitempty"`
	LastPulledAt int64    `json:"last_pulled_at,omitempty"`
}
