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
	"encoding/json"
	"slices"
)

// FieldDiff records one config field as either unchanged or changed from
// Old to New.
type FieldDiff[T any] struct {
	Changed bool `json:"changed"`
	Old     T    `json:"old,omitempty"`
	New     T    `json:"new,omitempty"`
}

func diffField[T comparable](old, new T) FieldDiff[T] {
	return FieldDiff[T]{Changed: old != new, Old: old, New: new}
}

func diffSlice[T comparable](old, new []T) FieldDiff[[]T] {
	return FieldDiff[[]T]{Changed: !slices.Equal(old, new), Old: old, New: new}
}

// change is one entry of the rendered diff.
type change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type changeSet map[string]change

func (cs changeSet) add(name string, changed bool, old, new any) {
	if changed {
		cs[name] = change{Old: old, New: new}
	}
}

// render pretty-prints only the changed fields, for the leading log of an
// update operation.
func (cs changeSet) render() string {
	b, err := json.MarshalIndent(cs, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// BuildDiff is the field-by-field diff of two build configs.
type BuildDiff struct {
	BuilderID          FieldDiff[string]
	Repo               FieldDiff[string]
	Branch             FieldDiff[string]
	GithubAccount      FieldDiff[string]
	OnClone            FieldDiff[SystemCommand]
	DockerAccount      FieldDiff[string]
	DockerOrganization FieldDiff[string]
	PreBuild           FieldDiff[SystemCommand]
	BuildPath          FieldDiff[string]
	DockerfilePath     FieldDiff[string]
	BuildArgs          FieldDiff[[]EnvironmentVar]
	Labels             FieldDiff[[]EnvironmentVar]
	ExtraArgs          FieldDiff[[]string]
	UseBuildx          FieldDiff[bool]
	SkipSecretInterp   FieldDiff[bool]
}

// DiffBuildConfig compares two build configs field by field. The version is
// excluded; it is system-managed, not part of user intent.
func DiffBuildConfig(old, new BuildConfig) BuildDiff {
	return BuildDiff{
		BuilderID:          diffField(old.BuilderID, new.BuilderID),
		Repo:               diffField(old.Repo, new.Repo),
		Branch:             diffField(old.Branch, new.Branch),
		GithubAccount:      diffField(old.GithubAccount, new.GithubAccount),
		OnClone:            diffField(old.OnClone, new.OnClone),
		DockerAccount:      diffField(old.DockerAccount, new.DockerAccount),
		DockerOrganization: diffField(old.DockerOrganization, new.DockerOrganization),
		PreBuild:           diffField(old.PreBuild, new.PreBuild),
		BuildPath:          diffField(old.BuildPath, new.BuildPath),
		DockerfilePath:     diffField(old.DockerfilePath, new.DockerfilePath),
		BuildArgs:          diffSlice(old.BuildArgs, new.BuildArgs),
		Labels:             diffSlice(old.Labels, new.Labels),
		ExtraArgs:          diffSlice(old.ExtraArgs, new.ExtraArgs),
		UseBuildx:          diffField(old.UseBuildx, new.UseBuildx),
		SkipSecretInterp:   diffField(old.SkipSecretInterp, new.SkipSecretInterp),
	}
}

// NeedsReclone reports whether the change requires re-cloning the build's
// source repo on its host.
func (d BuildDiff) NeedsReclone() bool {
	return d.Repo.Changed || d.Branch.Changed || d.GithubAccount.Changed || d.OnClone.Changed
}

// Render pretty-prints the changed fields as JSON.
func (d BuildDiff) Render() string {
	cs := changeSet{}
	cs.add("builder_id", d.BuilderID.Changed, d.BuilderID.Old, d.BuilderID.New)
	cs.add("repo", d.Repo.Changed, d.Repo.Old, d.Repo.New)
	cs.add("branch", d.Branch.Changed, d.Branch.Old, d.Branch.New)
	cs.add("github_account", d.GithubAccount.Changed, d.GithubAccount.Old, d.GithubAccount.New)
	cs.add("on_clone", d.OnClone.Changed, d.OnClone.Old, d.OnClone.New)
	cs.add("docker_account", d.DockerAccount.Changed, d.DockerAccount.Old, d.DockerAccount.New)
	cs.add("docker_organization", d.DockerOrganization.Changed, d.DockerOrganization.Old, d.DockerOrganization.New)
	cs.add("pre_build", d.PreBuild.Changed, d.PreBuild.Old, d.PreBuild.New)
	cs.add("build_path", d.BuildPath.Changed, d.BuildPath.Old, d.BuildPath.New)
	cs.add("dockerfile_path", d.DockerfilePath.Changed, d.DockerfilePath.Old, d.DockerfilePath.New)
	cs.add("build_args", d.BuildArgs.Changed, d.BuildArgs.Old, d.BuildArgs.New)
	cs.add("labels", d.Labels.Changed, d.Labels.Old, d.Labels.New)
	cs.add("extra_args", d.ExtraArgs.Changed, d.ExtraArgs.Old, d.ExtraArgs.New)
	cs.add("use_buildx", d.UseBuildx.Changed, d.UseBuildx.Old, d.UseBuildx.New)
	cs.add("skip_secret_interp", d.SkipSecretInterp.Changed, d.SkipSecretInterp.Old, d.SkipSecretInterp.New)
	return cs.render()
}

// DeploymentDiff is the field-by-field diff of two deployment configs.
type DeploymentDiff struct {
	ServerID      FieldDiff[string]
	BuildID       FieldDiff[string]
	Image         FieldDiff[string]
	Ports         FieldDiff[[]Conversion]
	Volumes       FieldDiff[[]Conversion]
	Environment   FieldDiff[[]EnvironmentVar]
	Network       FieldDiff[string]
	Restart       FieldDiff[string]
	PostImage     FieldDiff[string]
	ContainerUser FieldDiff[string]
	DockerAccount FieldDiff[string]
}

func DiffDeploymentConfig(old, new DeploymentConfig) DeploymentDiff {
	return DeploymentDiff{
		ServerID:      diffField(old.ServerID, new.ServerID),
		BuildID:       diffField(old.BuildID, new.BuildID),
		Image:         diffField(old.DockerRunArgs.Image, new.DockerRunArgs.Image),
		Ports:         diffSlice(old.DockerRunArgs.Ports, new.DockerRunArgs.Ports),
		Volumes:       diffSlice(old.DockerRunArgs.Volumes, new.DockerRunArgs.Volumes),
		Environment:   diffSlice(old.DockerRunArgs.Environment, new.DockerRunArgs.Environment),
		Network:       diffField(old.DockerRunArgs.Network, new.DockerRunArgs.Network),
		Restart:       diffField(old.DockerRunArgs.Restart, new.DockerRunArgs.Restart),
		PostImage:     diffField(old.DockerRunArgs.PostImage, new.DockerRunArgs.PostImage),
		ContainerUser: diffField(old.DockerRunArgs.ContainerUser, new.DockerRunArgs.ContainerUser),
		DockerAccount: diffField(old.DockerRunArgs.DockerAccount, new.DockerRunArgs.DockerAccount),
	}
}

// NeedsRedeploy reports whether the change only takes effect after the
// container is re-created.
func (d DeploymentDiff) NeedsRedeploy() bool {
	return d.Image.Changed || d.Ports.Changed || d.Volumes.Changed ||
		d.Environment.Changed || d.Network.Changed || d.Restart.Changed ||
		d.PostImage.Changed || d.ContainerUser.Changed
}

func (d DeploymentDiff) Render() string {
	cs := changeSet{}
	cs.add("server_id", d.ServerID.Changed, d.ServerID.Old, d.ServerID.New)
	cs.add("build_id", d.BuildID.Changed, d.BuildID.Old, d.BuildID.New)
	cs.add("image", d.Image.Changed, d.Image.Old, d.Image.New)
	cs.add("ports", d.Ports.Changed, d.Ports.Old, d.Ports.New)
	cs.add("volumes", d.Volumes.Changed, d.Volumes.Old, d.Volumes.New)
	cs.add("environment", d.Environment.Changed, d.Environment.Old, d.Environment.New)
	cs.add("network", d.Network.Changed, d.Network.Old, d.Network.New)
	cs.add("restart", d.Restart.Changed, d.Restart.Old, d.Restart.New)
	cs.add("post_image", d.PostImage.Changed, d.PostImage.Old, d.PostImage.New)
	cs.add("container_user", d.ContainerUser.Changed, d.ContainerUser.Old, d.ContainerUser.New)
	cs.add("docker_account", d.DockerAccount.Changed, d.DockerAccount.Old, d.DockerAccount.New)
	return cs.render()
}

// RepoDiff is the field-by-field diff of two repo configs.
type RepoDiff struct {
	ServerID      FieldDiff[string]
	Repo          FieldDiff[string]
	Branch        FieldDiff[string]
	GithubAccount FieldDiff[string]
	OnClone       FieldDiff[SystemCommand]
	OnPull        FieldDiff[SystemCommand]
}

func DiffRepoConfig(old, new RepoConfig) RepoDiff {
	return RepoDiff{
		ServerID:      diffField(old.ServerID, new.ServerID),
		Repo:          diffField(old.Repo, new.Repo),
		Branch:        diffField(old.Branch, new.Branch),
		GithubAccount: diffField(old.GithubAccount, new.GithubAccount),
		OnClone:       diffField(old.OnClone, new.OnClone),
		OnPull:        diffField(old.OnPull, new.OnPull),
	}
}

// NeedsReclone reports whether the change requires re-cloning the working
// copy on its host.
func (d RepoDiff) NeedsReclone() bool {
	return d.Repo.Changed || d.Branch.Changed || d.GithubAccount.Changed || d.OnClone.Changed
}

func (d RepoDiff) Render() string {
	cs := changeSet{}
	cs.add("server_id", d.ServerID.Changed, d.ServerID.Old, d.ServerID.New)
	cs.add("repo", d.Repo.Changed, d.Repo.Old, d.Repo.New)
	cs.add("branch", d.Branch.Changed, d.Branch.Old, d.Branch.New)
	cs.add("github_account", d.GithubAccount.Changed, d.GithubAccount.Old, d.GithubAccount.New)
	cs.add("on_clone", d.OnClone.Changed, d.OnClone.Old, d.OnClone.New)
	cs.add("on_pull", d.OnPull.Changed, d.OnPull.Old, d.OnPull.New)
	return cs.render()
}

// ServerDiff is the field-by-field diff of two server configs.
type ServerDiff struct {
	Host       FieldDiff[string]
	Enabled    FieldDiff[bool]
	Passkey    FieldDiff[string]
	CPUAlert   FieldDiff[float64]
	MemAlert   FieldDiff[float64]
	DiskAlert  FieldDiff[float64]
	Region     FieldDiff[string]
	InstanceID FieldDiff[string]
	IsCore     FieldDiff[bool]
}

func DiffServerConfig(old, new ServerConfig) ServerDiff {
	return ServerDiff{
		Host:       diffField(old.Host, new.Host),
		Enabled:    diffField(old.Enabled, new.Enabled),
		Passkey:    diffField(old.Passkey, new.Passkey),
		CPUAlert:   diffField(old.CPUAlert, new.CPUAlert),
		MemAlert:   diffField(old.MemAlert, new.MemAlert),
		DiskAlert:  diffField(old.DiskAlert, new.DiskAlert),
		Region:     diffField(old.Region, new.Region),
		InstanceID: diffField(old.InstanceID, new.InstanceID),
		IsCore:     diffField(old.IsCore, new.IsCore),
	}
}

func (d ServerDiff) Render() string {
	cs := changeSet{}
	cs.add("host", d.Host.Changed, d.Host.Old, d.Host.New)
	cs.add("enabled", d.Enabled.Changed, d.Enabled.Old, d.Enabled.New)
	// The passkey value never goes into logs.
	cs.add("passkey", d.Passkey.Changed, "<redacted>", "<redacted>")
	cs.add("cpu_alert", d.CPUAlert.Changed, d.CPUAlert.Old, d.CPUAlert.New)
	cs.add("mem_alert", d.MemAlert.Changed, d.MemAlert.Old, d.MemAlert.New)
	cs.add("disk_alert", d.DiskAlert.Changed, d.DiskAlert.Old, d.DiskAlert.New)
	cs.add("region", d.Region.Changed, d.Region.Old, d.Region.New)
	cs.add("instance_id", d.InstanceID.Changed, d.InstanceID.Old, d.InstanceID.New)
	cs.add("is_core", d.IsCore.Changed, d.IsCore.Old, d.IsCore.New)
	return cs.render()
}

// BuilderDiff is the field-by-field diff of two builder configs.
type BuilderDiff struct {
	Type           FieldDiff[BuilderType]
	ServerID       FieldDiff[string]
	Region         FieldDiff[string]
	InstanceType   FieldDiff[string]
	AMI            FieldDiff[string]
	VolumeGB       FieldDiff[int]
	GithubAccounts FieldDiff[[]string]
	DockerAccounts FieldDiff[[]string]
}

func DiffBuilderConfig(old, new BuilderConfig) BuilderDiff {
	return BuilderDiff{
		Type:           diffField(old.Type, new.Type),
		ServerID:       diffField(old.Params.ServerID, new.Params.ServerID),
		Region:         diffField(old.Params.Region, new.Params.Region),
		InstanceType:   diffField(old.Params.InstanceType, new.Params.InstanceType),
		AMI:            diffField(old.Params.AMI, new.Params.AMI),
		VolumeGB:       diffField(old.Params.VolumeGB, new.Params.VolumeGB),
		GithubAccounts: diffSlice(old.Params.GithubAccounts, new.Params.GithubAccounts),
		DockerAccounts: diffSlice(old.Params.DockerAccounts, new.Params.DockerAccounts),
	}
}

func (d BuilderDiff) Render() string {
	cs := changeSet{}
	cs.add("type", d.Type.Changed, d.Type.Old, d.Type.New)
	cs.add("server_id", d.ServerID.Changed, d.ServerID.Old, d.ServerID.New)
	cs.add("region", d.Region.Changed, d.Region.Old, d.Region.New)
	cs.add("instance_type", d.InstanceType.Changed, d.InstanceType.Old, d.InstanceType.New)
	cs.add("ami", d.AMI.Changed, d.AMI.Old, d.AMI.New)
	cs.add("volume_gb", d.VolumeGB.Changed, d.VolumeGB.Old, d.VolumeGB.New)
	cs.add("github_accounts", d.GithubAccounts.Changed, d.GithubAccounts.Old, d.GithubAccounts.New)
	cs.add("docker_accounts", d.DockerAccounts.Changed, d.DockerAccounts.Old, d.DockerAccounts.New)
	return cs.render()
}
