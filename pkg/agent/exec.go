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
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/hectolitro/monitor/pkg/types"
)

// runStage executes one command and captures it as a stage log.
func runStage(ctx context.Context, stage, dir, name string, args ...string) types.Log {
	return runStageRedacted(ctx, stage, dir, name+" "+strings.Join(args, " "), name, args...)
}

// runStageRedacted is runStage with a display command that may differ from
// the executed one, so secrets never land in logs.
func runStageRedacted(ctx context.Context, stage, dir, display, name string, args ...string) types.Log {
	start := time.Now().UnixMilli()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	l := types.Log{
		Stage:   stage,
		Command: display,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
		Success: err == nil,
		StartTS: start,
		EndTS:   time.Now().UnixMilli(),
	}
	if err != nil && l.Stderr == "" {
		l.Stderr = err.Error()
	}
	return l
}

// runShellStage executes a configured command through the shell, in dir
// joined with the command's path.
func runShellStage(ctx context.Context, stage, dir string, command types.SystemCommand) types.Log {
	wd := dir
	if command.Path != "" {
		wd = dir + "/" + command.Path
	}
	return runStageRedacted(ctx, stage, wd, command.Command, "sh", "-c", command.Command)
}
