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
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/hectolitro/monitor/pkg/types"
)

const bytesPerGB = 1024 * 1024 * 1024

// systemStats samples the host: cpu percent over a short window, virtual
// memory, and root filesystem usage.
func systemStats(ctx context.Context) (types.SystemStats, error) {
	cpuPercs, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil {
		return types.SystemStats{}, fmt.Errorf("failed to sample cpu: %w", err)
	}
	var cpuPerc float64
	if len(cpuPercs) > 0 {
		cpuPerc = cpuPercs[0]
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return types.SystemStats{}, fmt.Errorf("failed to read memory: %w", err)
	}
	du, err := disk.UsageWithContext(ctx, "/")
	if err != nil {
		return types.SystemStats{}, fmt.Errorf("failed to read disk usage: %w", err)
	}
	return types.SystemStats{
		CPUPerc:     cpuPerc,
		MemUsedGB:   float64(vm.Used) / bytesPerGB,
		MemTotalGB:  float64(vm.Total) / bytesPerGB,
		MemPerc:     vm.UsedPercent,
		DiskUsedGB:  float64(du.Used) / bytesPerGB,
		DiskTotalGB: float64(du.Total) / bytesPerGB,
		DiskPerc:    du.UsedPercent,
		RefreshTS:   time.Now().UnixMilli(),
	}, nil
}
