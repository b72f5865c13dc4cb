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

import "time"

// Operation names the action an Update records.
type Operation string

const (
	OperationNone Operation = "none"

	// server
	OperationCreateServer          Operation = "create_server"
	OperationUpdateServer          Operation = "update_server"
	OperationDeleteServer          Operation = "delete_server"
	OperationPruneImagesServer     Operation = "prune_images_server"
	OperationPruneContainersServer Operation = "prune_containers_server"
	OperationPruneNetworksServer   Operation = "prune_networks_server"

	// build
	OperationCreateBuild  Operation = "create_build"
	OperationUpdateBuild  Operation = "update_build"
	OperationDeleteBuild  Operation = "delete_build"
	OperationBuildBuild   Operation = "build_build"
	OperationRecloneBuild Operation = "reclone_build"

	// deployment
	OperationCreateDeployment  Operation = "create_deployment"
	OperationUpdateDeployment  Operation = "update_deployment"
	OperationDeleteDeployment  Operation = "delete_deployment"
	OperationDeployDeployment  Operation = "deploy_deployment"
	OperationStopDeployment    Operation = "stop_deployment"
	OperationStartDeployment   Operation = "start_deployment"
	OperationRemoveDeployment  Operation = "remove_deployment"
	OperationPullDeployment    Operation = "pull_deployment"
	OperationRecloneDeployment Operation = "reclone_deployment"

	// repo
	OperationCreateRepo  Operation = "create_repo"
	OperationUpdateRepo  Operation = "update_repo"
	OperationDeleteRepo  Operation = "delete_repo"
	OperationCloneRepo   Operation = "clone_repo"
	OperationPullRepo    Operation = "pull_repo"
	OperationRecloneRepo Operation = "reclone_repo"

	// builder
	OperationCreateBuilder Operation = "create_builder"
	OperationUpdateBuilder Operation = "update_builder"
	OperationDeleteBuilder Operation = "delete_builder"
)

// UpdateStatus tracks an Update through its lifetime.
type UpdateStatus string

const (
	UpdateStatusQueued     UpdateStatus = "queued"
	UpdateStatusInProgress UpdateStatus = "in_progress"
	UpdateStatusComplete   UpdateStatus = "complete"
)

// ResourceTargetVariant names a resource type, used in update targets and
// tag predicates.
type ResourceTargetVariant string

const (
	TargetSystem     ResourceTargetVariant = "System"
	TargetServer     ResourceTargetVariant = "Server"
	TargetBuild      ResourceTargetVariant = "Build"
	TargetDeployment ResourceTargetVariant = "Deployment"
	TargetRepo       ResourceTargetVariant = "Repo"
	TargetBuilder    ResourceTargetVariant = "Builder"
)

// UpdateTarget identifies what an Update acted on. The id is empty for
// TargetSystem.
type UpdateTarget struct {
	Type ResourceTargetVariant `json:"type" bson:"type"`
	ID   string                `json:"id,omitempty" bson:"id,omitempty"`
}

// SystemTarget is the target for updates not tied to a single resource.
func SystemTarget() UpdateTarget { return UpdateTarget{Type: TargetSystem} }

// Log is one stage of an operation as reported by a periphery agent or
// synthesized by the core.
type Log struct {
	Stage   string `json:"stage" bson:"stage"`
	Command string `json:"command,omitempty" bson:"command,omitempty"`
	Stdout  string `json:"stdout,omitempty" bson:"stdout,omitempty"`
	Stderr  string `json:"stderr,omitempty" bson:"stderr,omitempty"`
	Success bool   `json:"success" bson:"success"`
	StartTS int64  `json:"start_ts" bson:"start_ts"`
	EndTS   int64  `json:"end_ts" bson:"end_ts"`
}

// SimpleLog returns a successful single-stage log with the given stdout.
func SimpleLog(stage, stdout string) Log {
	now := time.Now().UnixMilli()
	return Log{Stage: stage, Stdout: stdout, Success: true, StartTS: now, EndTS: now}
}

// ErrorLog returns a failed log for the given stage.
func ErrorLog(stage string, err error) Log {
	now := time.Now().UnixMilli()
	return Log{Stage: stage, Stderr: err.Error(), Success: false, StartTS: now, EndTS: now}
}

// AllLogsSuccess reports whether every log stage succeeded. An empty log
// list counts as success.
func AllLogsSuccess(logs []Log) bool {
	for _, l := range logs {
		if !l.Success {
			return false
		}
	}
	return true
}

// Update is the audit record of a single operation, assembled from the
// per-stage logs streamed back by agents.
type Update struct {
	ID        string       `json:"_id,omitempty" bson:"_id,omitempty"`
	Operation Operation    `json:"operation" bson:"operation"`
	Target    UpdateTarget `json:"target" bson:"target"`
	StartTS   int64        `json:"start_ts" bson:"start_ts"`
	EndTS     int64        `json:"end_ts,omitempty" bson:"end_ts,omitempty"`
	Status    UpdateStatus `json:"status" bson:"status"`
	Success   bool         `json:"success" bson:"success"`
	Operator  string       `json:"operator" bson:"operator"`
	Logs      []Log        `json:"logs,omitempty" bson:"logs,omitempty"`
	Version   *Version     `json:"version,omitempty" bson:"version,omitempty"`
}
