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

// Command periphery runs the agent on a target server.
package main

import (
	"errors"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/hectolitro/monitor/pkg/agent"
)

var (
	configPath = flag.String("config", "/etc/monitor/periphery.config.yaml", "path to the agent config file")
	listenAddr = flag.String("listen", "", "listen address override")
)

func main() {
	flag.Parse()

	cfg, err := agent.LoadConfig(*configPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("no config at %v, using defaults", *configPath)
		cfg = agent.DefaultConfig()
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if cfg.Passkey == "" {
		log.Printf("warning: no passkey configured; any core can drive this agent")
	}

	s, err := agent.New(cfg)
	if err != nil {
		log.Fatalf("failed to start agent: %v", err)
	}
	log.Printf("periphery listening on %v", cfg.ListenAddr)
	log.Fatal(http.ListenAndServe(cfg.ListenAddr, s.Handler()))
}
