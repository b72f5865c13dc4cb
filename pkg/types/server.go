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

// Server is a registered host running a periphery agent.
type Server = Resource[ServerConfig, ServerInfo]

type ServerConfig struct {
	// Host is the base URL of the periphery agent, e.g. "http://10.0.0.3:9001".
	Host    string `json:"host" bson:"host"`
	Enabled bool   `json:"enabled" bson:"enabled"`
	// Passkey overrides the core-wide periphery passkey for this host.
	Passkey string `json:"passkey,omitempty" bson:"passkey,omitempty"`

	// Alert thresholds in percent.
	CPUAlert  float64 `json:"cpu_alert" bson:"cpu_alert"`
	MemAlert  float64 `json:"mem_alert" bson:"mem_alert"`
	DiskAlert float64 `json:"disk_alert" bson:"disk_alert"`

	Region     string `json:"region,omitempty" bson:"region,omitempty"`
	InstanceID string `json:"instance_id,omitempty" bson:"instance_id,omitempty"`
	// IsCore marks the server the core itself runs on.
	IsCore bool `json:"is_core,omitempty" bson:"is_core,omitempty"`
}

type ServerInfo struct {
	// LastSeenAt is the unix ms timestamp of the last successful probe.
	LastSeenAt int64 `json:"last_seen_at,omitempty" bson:"last_seen_at,omitempty"`
}

// DefaultServerConfig mirrors the alert thresholds a fresh server gets.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:   true,
		CPUAlert:  50,
		MemAlert:  75,
		DiskAlert: 75,
	}
}

// ServerStatus is the cached liveness classification of a server.
type ServerStatus string

const (
	ServerStatusOk       ServerStatus = "Ok"
	ServerStatusNotOk    ServerStatus = "NotOk"
	ServerStatusDisabled ServerStatus = "Disabled"
	ServerStatusUnknown  ServerStatus = "Unknown"
)

// SystemStats is the point-in-time host snapshot reported by an agent.
type SystemStats struct {
	CPUPerc     float64 `json:"cpu_perc"`
	MemUsedGB   float64 `json:"mem_used_gb"`
	MemTotalGB  float64 `json:"mem_total_gb"`
	MemPerc     float64 `json:"mem_perc"`
	DiskUsedGB  float64 `json:"disk_used_gb"`
	DiskTotalGB float64 `json:"disk_total_gb"`
	DiskPerc    float64 `json:"disk_perc"`
	RefreshTS   int64   `json:"refresh_ts"`
}

type ServerListItem struct {
	ID     string       `json:"_id"`
	Name   string       `json:"name"`
	Tags   []string     `json:"tags,omitempty"`
	Status ServerStatus `json:"status"`
	Region string       `json:"region,omitempty"`
}
