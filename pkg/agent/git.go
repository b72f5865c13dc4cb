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
	"os"
	"path/filepath"
	"time"

	"github.com/hectolitro/monitor/pkg/types"
)

func (s *Server) repoDir(name string) string {
	return filepath.Join(s.cfg.RootDir, name)
}

// cloneURL builds the https clone URL, injecting the account token for
// private repos. repo is "owner/name". The returned display form is safe
// to log.
func (s *Server) cloneURL(repo, account string) (url, display string, err error) {
	display = fmt.Sprintf("https://github.com/%s.git", repo)
	if account == "" {
		return display, display, nil
	}
	token, ok := s.cfg.GithubAccounts[account]
	if !ok {
		return "", "", fmt.Errorf("github account %q is not configured on this host", account)
	}
	return fmt.Sprintf("https://%s@github.com/%s.git", token, repo), display, nil
}

// cloneRepo wipes the working copy and clones fresh, then runs the
// on_clone command.
func (s *Server) cloneRepo(ctx context.Context, args types.CloneArgs) []types.Log {
	dir := s.repoDir(args.Name)
	if err := os.RemoveAll(dir); err != nil {
		return []types.Log{types.ErrorLog("clean working copy", err)}
	}
	url, display, err := s.cloneURL(args.Repo, args.GithubAccount)
	if err != nil {
		return []types.Log{types.ErrorLog("clone repo", err)}
	}
	branch := args.Branch
	if branch == "" {
		branch = "main"
	}
	logs := []types.Log{runStageRedacted(ctx, "clone repo", s.cfg.RootDir,
		fmt.Sprintf("git clone -b %s --single-branch %s %s", branch, display, dir),
		"git", "clone", "-b", branch, "--single-branch", url, dir)}
	if !logs[0].Success {
		return logs
	}
	if !args.OnClone.IsNone() {
		logs = append(logs, runShellStage(ctx, "on clone", dir, args.OnClone))
	}
	return logs
}

// pullRepo pulls the existing working copy and runs the on_pull command.
// A missing working copy falls back to a full clone.
func (s *Server) pullRepo(ctx context.Context, args types.CloneArgs) []types.Log {
	dir := s.repoDir(args.Name)
	if _, err := os.Stat(dir); err != nil {
		return s.cloneRepo(ctx, args)
	}
	logs := []types.Log{runStage(ctx, "pull repo", dir, "git", "pull")}
	if !logs[0].Success {
		return logs
	}
	if !args.OnPull.IsNone() {
		logs = append(logs, runShellStage(ctx, "on pull", dir, args.OnPull))
	}
	return logs
}

// deleteRepo removes the working copy.
func (s *Server) deleteRepo(name string) types.Log {
	start := time.Now().UnixMilli()
	dir := s.repoDir(name)
	err := os.RemoveAll(dir)
	l := types.Log{
		Stage:   "delete repo",
		Command: fmt.Sprintf("rm -rf %s", dir),
		Success: err == nil,
		StartTS: start,
		EndTS:   time.Now().UnixMilli(),
	}
	if err != nil {
		l.Stderr = err.Error()
	} else {
		l.Stdout = fmt.Sprintf("deleted %s", dir)
	}
	return l
}
