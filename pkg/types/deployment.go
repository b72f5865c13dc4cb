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

// Deployment is a single container managed on a Server. The container name
// on the host equals the deployment name.
type Deployment = Resource[DeploymentConfig, DeploymentInfo]

type DeploymentConfig struct {
	ServerID string `json:"server_id" bson:"server_id"`
	// BuildID optionally links the deployment to a Build; when set, the
	// deployed image is the build's image at its current version.
	BuildID       string        `json:"build_id,omitempty" bson:"build_id,omitempty"`
	DockerRunArgs DockerRunArgs `json:"docker_run_args" bson:"docker_run_args"`
}

type DeploymentInfo struct{}

// DockerRunArgs carries everything the agent needs to run the container.
type DockerRunArgs struct {
	Image         string           `json:"image,omitempty" bson:"image,omitempty"`
	Ports         []Conversion     `json:"ports,omitempty" bson:"ports,omitempty"`
	Volumes       []Conversion     `json:"volumes,omitempty" bson:"volumes,omitempty"`
	Environment   []EnvironmentVar `json:"environment,omitempty" bson:"environment,omitempty"`
	Network       string           `json:"network" bson:"network"`
	Restart       string           `json:"restart" bson:"restart"`
	PostImage     string           `json:"post_image,omitempty" bson:"post_image,omitempty"`
	ContainerUser string           `json:"container_user,omitempty" bson:"container_user,omitempty"`
	DockerAccount string           `json:"docker_account,omitempty" bson:"docker_account,omitempty"`
}

// DefaultDockerRunArgs fills the docker defaults a fresh deployment gets.
func DefaultDockerRunArgs() DockerRunArgs {
	return DockerRunArgs{
		Network: "bridge",
		Restart: "no",
	}
}

// DeploymentState is the docker container state of a deployment, as
// observed by the status cache.
type DeploymentState string

const (
	DeploymentStateRunning    DeploymentState = "running"
	DeploymentStatePaused     DeploymentState = "paused"
	DeploymentStateExited     DeploymentState = "exited"
	DeploymentStateRestarting DeploymentState = "restarting"
	DeploymentStateRemoving   DeploymentState = "removing"
	DeploymentStateDead       DeploymentState = "dead"
	DeploymentStateCreated    DeploymentState = "created"
	DeploymentStateUnknown    DeploymentState = "unknown"
)

// ContainerSummary is one container as enumerated by an agent.
type ContainerSummary struct {
	Name   string          `json:"name"`
	ID     string          `json:"id,omitempty"`
	Image  string          `json:"image,omitempty"`
	State  DeploymentState `json:"state"`
	Status string          `json:"status,omitempty"`
}

type DeploymentListItem struct {
	ID       string          `json:"_id"`
	Name     string          `json:"name"`
	Tags     []string        `json:"tags,omitempty"`
	ServerID string          `json:"server_id"`
	State    DeploymentState `json:"state"`
	Status   string          `json:"status,omitempty"`
	Image    string          `json:"image,omitempty"`
}
