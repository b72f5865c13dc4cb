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

import (
	"strings"
	"testing"
)

func TestBuildDiffNeedsReclone(t *testing.T) {
	base := DefaultBuildConfig()
	base.Repo = "octo/app"

	tests := []struct {
		name   string
		mutate func(*BuildConfig)
		want   bool
	}{
		{"no change", func(c *BuildConfig) {}, false},
		{"repo change", func(c *BuildConfig) { c.Repo = "octo/other" }, true},
		{"branch change", func(c *BuildConfig) { c.Branch = "dev" }, true},
		{"github account change", func(c *BuildConfig) { c.GithubAccount = "bot" }, true},
		{"on_clone change", func(c *BuildConfig) { c.OnClone = SystemCommand{Command: "make gen"} }, true},
		{"docker account change", func(c *BuildConfig) { c.DockerAccount = "hub" }, false},
		{"build args change", func(c *BuildConfig) { c.BuildArgs = []EnvironmentVar{{Variable: "A", Value: "1"}} }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proposed := base
			tt.mutate(&proposed)
			if got := DiffBuildConfig(base, proposed).NeedsReclone(); got != tt.want {
				t.Errorf("NeedsReclone() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDeploymentDiffNeedsRedeploy(t *testing.T) {
	base := DeploymentConfig{ServerID: "s1", DockerRunArgs: DefaultDockerRunArgs()}

	tests := []struct {
		name   string
		mutate func(*DeploymentConfig)
		want   bool
	}{
		{"no change", func(c *DeploymentConfig) {}, false},
		{"image change", func(c *DeploymentConfig) { c.DockerRunArgs.Image = "nginx" }, true},
		{"ports change", func(c *DeploymentConfig) {
			c.DockerRunArgs.Ports = []Conversion{{Local: "80", Container: "80"}}
		}, true},
		{"network change", func(c *DeploymentConfig) { c.DockerRunArgs.Network = "host" }, true},
		{"restart change", func(c *DeploymentConfig) { c.DockerRunArgs.Restart = "always" }, true},
		{"build link change only", func(c *DeploymentConfig) { c.BuildID = "b1" }, false},
		{"docker account change only", func(c *DeploymentConfig) { c.DockerRunArgs.DockerAccount = "hub" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proposed := base
			tt.mutate(&proposed)
			if got := DiffDeploymentConfig(base, proposed).NeedsRedeploy(); got != tt.want {
				t.Errorf("NeedsRedeploy() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRepoDiffNeedsReclone(t *testing.T) {
	base := DefaultRepoConfig()
	base.ServerID = "s1"
	base.Repo = "octo/app"

	proposed := base
	proposed.OnPull = SystemCommand{Command: "systemctl restart app"}
	if DiffRepoConfig(base, proposed).NeedsReclone() {
		t.Error("on_pull change should not require a reclone")
	}
	proposed = base
	proposed.Branch = "release"
	if !DiffRepoConfig(base, proposed).NeedsReclone() {
		t.Error("branch change should require a reclone")
	}
}

func TestBuildDiffRenderOnlyChangedFields(t *testing.T) {
	base := DefaultBuildConfig()
	base.Repo = "octo/app"
	proposed := base
	proposed.Repo = "octo/other"

	out := DiffBuildConfig(base, proposed).Render()
	if !strings.Contains(out, `"repo"`) {
		t.Errorf("rendered diff should mention repo, got %s", out)
	}
	if strings.Contains(out, `"branch"`) {
		t.Errorf("rendered diff should omit unchanged branch, got %s", out)
	}
}

func TestServerDiffRenderRedactsPasskey(t *testing.T) {
	base := DefaultServerConfig()
	proposed := base
	proposed.Passkey = "super-secret"
	out := DiffServerConfig(base, proposed).Render()
	if strings.Contains(out, "super-secret") {
		t.Errorf("rendered diff leaked passkey: %s", out)
	}
	if !strings.Contains(out, `"passkey"`) {
		t.Errorf("rendered diff should record that the passkey changed: %s", out)
	}
}
