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

package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	cliconfig "github.com/docker/cli/cli/config"
	"github.com/docker/docker/api/types/container"

	"github.com/hectolitro/monitor/pkg/types"
)

const dockerIndexServer = "https://index.docker.io/v1/"

// build runs the docker build for the given build document. busy=true
// means another build holds the slot; the request is refused, not queued.
func (s *Server) build(ctx context.Context, b *types.Build) (logs []types.Log, busy bool) {
	if !s.building.CompareAndSwap(false, true) {
		return nil, true
	}
	defer s.building.Store(false)

	repoDir := s.repoDir(b.Name)
	buildDir := repoDir
	if b.Config.BuildPath != "" && b.Config.BuildPath != "." {
		buildDir = repoDir + "/" + b.Config.BuildPath
	}

	if !b.Config.PreBuild.IsNone() {
		l := runShellStage(ctx, "pre build", repoDir, b.Config.PreBuild)
		logs = append(logs, l)
		if !l.Success {
			return logs, false
		}
	}

	if b.Config.DockerAccount != "" {
		l := s.dockerLogin(ctx, b.Config.DockerAccount)
		logs = append(logs, l)
		if !l.Success {
			return logs, false
		}
	}

	args := buildCommandArgs(b)
	l := runStage(ctx, "build", buildDir, "docker", args...)
	logs = append(logs, l)
	if !l.Success {
		return logs, false
	}

	if b.Config.DockerAccount != "" {
		image := types.BuildImageName(b)
		for _, tag := range []string{b.Config.Version.String(), "latest"} {
			l := runStage(ctx, "push", buildDir, "docker", "push", fmt.Sprintf("%s:%s", image, tag))
			logs = append(logs, l)
			if !l.Success {
				return logs, false
			}
		}
	}
	return logs, false
}

// buildCommandArgs assembles the docker CLI arguments for a build, tagging
// both the version and latest.
func buildCommandArgs(b *types.Build) []string {
	var args []string
	if b.Config.UseBuildx {
		args = append(args, "buildx")
	}
	args = append(args, "build")
	for _, ba := range b.Config.BuildArgs {
		args = append(args, "--build-arg", fmt.Sprintf("%s=%s", ba.Variable, ba.Value))
	}
	for _, l := range b.Config.Labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", l.Variable, l.Value))
	}
	args = append(args, b.Config.ExtraArgs...)
	dockerfile := b.Config.DockerfilePath
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	image := types.BuildImageName(b)
	args = append(args,
		"-f", dockerfile,
		"-t", fmt.Sprintf("%s:%s", image, b.Config.Version),
		"-t", fmt.Sprintf("%s:latest", image),
		".",
	)
	return args
}

// dockerLogin authenticates the docker CLI for the given account, skipping
// the call when the CLI config already carries that login.
func (s *Server) dockerLogin(ctx context.Context, account string) types.Log {
	token, ok := s.cfg.DockerAccounts[account]
	if !ok {
		return types.ErrorLog("docker login", fmt.Errorf("docker account %q is not configured on this host", account))
	}
	cfg := cliconfig.LoadDefaultConfigFile(io.Discard)
	if auth, err := cfg.GetAuthConfig(dockerIndexServer); err == nil && auth.Username == account {
		return types.SimpleLog("docker login", fmt.Sprintf("already logged in as %s", account))
	}
	return runStageRedacted(ctx, "docker login", s.cfg.RootDir,
		fmt.Sprintf("docker login -u %s -p <redacted>", account),
		"docker", "login", "-u", account, "-p", token)
}

// deploy replaces the deployment's container: pull, tear down the old
// container, run the new one.
func (s *Server) deploy(ctx context.Context, req deployRequest) []types.Log {
	d := req.Deployment
	image := req.Image
	if image == "" {
		image = d.Config.DockerRunArgs.Image
	}
	if image == "" {
		return []types.Log{types.ErrorLog("deploy", fmt.Errorf("no image to deploy"))}
	}

	var logs []types.Log
	if d.Config.DockerRunArgs.DockerAccount != "" {
		l := s.dockerLogin(ctx, d.Config.DockerRunArgs.DockerAccount)
		logs = append(logs, l)
		if !l.Success {
			return logs
		}
	}

	l := runStage(ctx, "pull image", s.cfg.RootDir, "docker", "pull", image)
	logs = append(logs, l)
	if !l.Success {
		return logs
	}

	logs = append(logs, s.destroyContainer(ctx, d.Name, req.StopSignal, req.StopTime))

	args := runCommandArgs(d, image)
	logs = append(logs, runStage(ctx, "run container", s.cfg.RootDir, "docker", args...))
	return logs
}

// destroyContainer tears down the named container if it exists. A missing
// container is not a failure; the stage succeeds either way.
func (s *Server) destroyContainer(ctx context.Context, name, signal string, stopTime int) types.Log {
	start := time.Now().UnixMilli()
	stopArgs := []string{"stop"}
	if signal != "" {
		stopArgs = append(stopArgs, "--signal", signal)
	}
	if stopTime > 0 {
		stopArgs = append(stopArgs, "--time", fmt.Sprint(stopTime))
	}
	stopArgs = append(stopArgs, name)
	stop := runStage(ctx, "stop", s.cfg.RootDir, "docker", stopArgs...)
	rm := runStage(ctx, "rm", s.cfg.RootDir, "docker", "rm", name)
	return types.Log{
		Stage:   "remove old container",
		Command: fmt.Sprintf("docker %s && docker rm %s", strings.Join(stopArgs, " "), name),
		Stdout:  strings.TrimSpace(stop.Stdout + "\n" + rm.Stdout),
		Stderr:  strings.TrimSpace(stop.Stderr + "\n" + rm.Stderr),
		Success: true,
		StartTS: start,
		EndTS:   time.Now().UnixMilli(),
	}
}

// runCommandArgs assembles the docker run arguments for a deployment.
func runCommandArgs(d *types.Deployment, image string) []string {
	ra := d.Config.DockerRunArgs
	args := []string{"run", "-d", "--name", d.Name}
	if ra.Network != "" {
		args = append(args, "--network", ra.Network)
	}
	if ra.Restart != "" {
		args = append(args, "--restart", ra.Restart)
	}
	for _, p := range ra.Ports {
		args = append(args, "-p", fmt.Sprintf("%s:%s", p.Local, p.Container))
	}
	for _, v := range ra.Volumes {
		args = append(args, "-v", fmt.Sprintf("%s:%s", v.Local, v.Container))
	}
	for _, e := range ra.Environment {
		args = append(args, "-e", fmt.Sprintf("%s=%s", e.Variable, e.Value))
	}
	if ra.ContainerUser != "" {
		args = append(args, "--user", ra.ContainerUser)
	}
	args = append(args, image)
	if ra.PostImage != "" {
		args = append(args, strings.Fields(ra.PostImage)...)
	}
	return args
}

func (s *Server) startContainer(ctx context.Context, name string) types.Log {
	l := runStage(ctx, "start container", s.cfg.RootDir, "docker", "start", name)
	return l
}

func (s *Server) stopContainer(ctx context.Context, name, signal string, stopTime int) types.Log {
	args := []string{"stop"}
	if signal != "" {
		args = append(args, "--signal", signal)
	}
	if stopTime > 0 {
		args = append(args, "--time", fmt.Sprint(stopTime))
	}
	args = append(args, name)
	return runStage(ctx, "stop container", s.cfg.RootDir, "docker", args...)
}

func (s *Server) removeContainer(ctx context.Context, name string) []types.Log {
	return []types.Log{s.destroyContainer(ctx, name, "", 0)}
}

func (s *Server) pruneImages(ctx context.Context) types.Log {
	return runStage(ctx, "prune images", s.cfg.RootDir, "docker", "image", "prune", "-a", "-f")
}

func (s *Server) pruneContainers(ctx context.Context) types.Log {
	return runStage(ctx, "prune containers", s.cfg.RootDir, "docker", "container", "prune", "-f")
}

func (s *Server) pruneNetworks(ctx context.Context) types.Log {
	return runStage(ctx, "prune networks", s.cfg.RootDir, "docker", "network", "prune", "-f")
}

// listContainers enumerates all containers through the docker API.
func (s *Server) listContainers(ctx context.Context) ([]types.ContainerSummary, error) {
	list, err := s.docker.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	out := make([]types.ContainerSummary, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, types.ContainerSummary{
			Name:   name,
			ID:     c.ID,
			Image:  c.Image,
			State:  parseContainerState(c.State),
			Status: c.Status,
		})
	}
	return out, nil
}

// parseContainerState maps docker's state strings onto the deployment
// state enum.
func parseContainerState(state string) types.DeploymentState {
	switch state {
	case "running":
		return types.DeploymentStateRunning
	case "paused":
		return types.DeploymentStatePaused
	case "exited":
		return types.DeploymentStateExited
	case "restarting":
		return types.DeploymentStateRestarting
	case "removing":
		return types.DeploymentStateRemoving
	case "dead":
		return types.DeploymentStateDead
	case "created":
		return types.DeploymentStateCreated
	default:
		return types.DeploymentStateUnknown
	}
}
