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

// Command core runs the monitor control plane.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/fatih/color"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/hectolitro/monitor/pkg/core"
	"github.com/hectolitro/monitor/pkg/db"
	"github.com/hectolitro/monitor/pkg/periphery"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := homedir.Dir()
	if err != nil {
		return "core.config.yaml"
	}
	return filepath.Join(home, ".monitor", "core.config.yaml")
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "core",
		Short: "The monitor build-and-deploy control plane",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.AddCommand(serveCmd(), versionCmd())
	return cmd
}

func serveCmd() *cobra.Command {
	var (
		configPath string
		memoryDB   bool
	)
	c := &cobra.Command{
		Use:   "serve",
		Short: "Run the core server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig(configPath)
			if err != nil {
				return err
			}

			var store *db.Store
			if memoryDB {
				store = db.NewMemoryStore()
				log.Printf("using in-memory store; state is not persisted")
			} else {
				ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
				defer cancel()
				store, err = db.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDB)
				if err != nil {
					return err
				}
			}

			client := periphery.NewClient(periphery.Opts{
				Passkey:         cfg.PeripheryPasskey,
				LongCallTimeout: cfg.LongCallTimeout(),
				ProbeTimeout:    cfg.ProbeTimeout(),
			})

			srv := core.New(cfg, store, client)
			srv.Start()
			defer srv.Shutdown()

			color.New(color.FgGreen).Fprintf(os.Stderr, "core listening on %s\n", cfg.ListenAddr)
			return http.ListenAndServe(cfg.ListenAddr, srv.APIHandler())
		},
	}
	c.Flags().StringVar(&configPath, "config", defaultConfigPath(), "path to the core config file")
	c.Flags().BoolVar(&memoryDB, "db-memory", false, "use the in-memory store instead of mongo (dev only)")
	return c
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build commit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(versionCommit())
		},
	}
}

// versionCommit returns the commit hash of the current build.
func versionCommit() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	var dirty bool
	var commit string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if commit == "" {
		return "unknown"
	}
	if dirty {
		return commit + "-dirty"
	}
	return commit
}
