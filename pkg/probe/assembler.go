package probe

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/haasonsaas/stethoscope/pkg/snapshot"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Collector runs every probe against a host and assembles the snapshot.
type Collector struct {
	host *Host

	mu       sync.Mutex
	degraded map[string]string
}

func NewCollector(h *Host) *Collector {
	return &Collector{host: h, degraded: make(map[string]string)}
}

// Pass is the outcome of one collection pass. Degraded maps probe name to
// the failure that forced its sentinel.
type Pass struct {
	Snapshot *snapshot.Snapshot
	Degraded map[string]string
}

// DegradedProbes returns the failed probe names in sorted order.
func (p *Pass) DegradedProbes() []string {
	names := make([]string, 0, len(p.Degraded))
	for name := range p.Degraded {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collect runs all probes in parallel and waits for every one. A probe that
// errors, panics, or outlives the host's probe timeout contributes its
// sentinel instead.
func (c *Collector) Collect(ctx context.Context) *Pass {
	c.mu.Lock()
	c.degraded = make(map[string]string)
	c.mu.Unlock()

	var (
		osInfo   snapshot.Result[snapshot.OSInfo]
		hardware snapshot.Result[snapshot.Hardware]
		perf     snapshot.Result[snapshot.Performance]
		memory   snapshot.Result[snapshot.Memory]
		disks    snapshot.Result[[]snapshot.DiskEntry]
		security snapshot.Result[snapshot.Security]
		updates  snapshot.Result[string]
		procs    snapshot.Result[[]snapshot.ProcessEntry]
	)

	// Probes never cancel each other: the group has no shared context, and
	// an error only reports that a sentinel was used.
	var g errgroup.Group
	g.Go(func() error {
		osInfo = runProbe(ctx, c, "os_info", snapshot.UnknownOSInfo(), CollectOSInfo)
		return osInfo.Err
	})
	g.Go(func() error {
		hardware = runProbe(ctx, c, "hardware", snapshot.UnknownHardware(), CollectHardware)
		return hardware.Err
	})
	g.Go(func() error {
		perf = runProbe(ctx, c, "performance", snapshot.UnknownPerformance(), CollectPerformance)
		return perf.Err
	})
	g.Go(func() error {
		memory = runProbe(ctx, c, "memory", snapshot.Memory{}, CollectMemory)
		return memory.Err
	})
	g.Go(func() error {
		disks = runProbe(ctx, c, "disk_usage", []snapshot.DiskEntry{}, CollectDiskUsage)
		return disks.Err
	})
	g.Go(func() error {
		security = runProbe(ctx, c, "security", snapshot.UnknownSecurity(), CollectSecurity)
		return security.Err
	})
	g.Go(func() error {
		updates = runProbe(ctx, c, "package_updates", "", CollectPackageUpdates)
		return updates.Err
	})
	g.Go(func() error {
		procs = runProbe(ctx, c, "top_processes", []snapshot.ProcessEntry{}, CollectTopProcesses)
		return procs.Err
	})
	if err := g.Wait(); err != nil {
		log.Debug().Err(err).Msg("Collection pass used sentinels")
	}

	snap := Assemble(osInfo, hardware, perf, memory, disks, security, updates, procs)

	c.mu.Lock()
	defer c.mu.Unlock()
	degraded := make(map[string]string, len(c.degraded))
	for k, v := range c.degraded {
		degraded[k] = v
	}
	return &Pass{Snapshot: snap, Degraded: degraded}
}

// Assemble builds the canonical document from per-field results. A
// degraded result still contributes its value, which is the probe's best
// partial answer or the field sentinel.
func Assemble(
	osInfo snapshot.Result[snapshot.OSInfo],
	hardware snapshot.Result[snapshot.Hardware],
	perf snapshot.Result[snapshot.Performance],
	memory snapshot.Result[snapshot.Memory],
	disks snapshot.Result[[]snapshot.DiskEntry],
	security snapshot.Result[snapshot.Security],
	updates snapshot.Result[string],
	procs snapshot.Result[[]snapshot.ProcessEntry],
) *snapshot.Snapshot {
	snap := &snapshot.Snapshot{
		OSInfo:         osInfo.Value,
		Hardware:       hardware.Value,
		Performance:    perf.Value,
		Memory:         memory.Value,
		DiskUsage:      disks.Value,
		Security:       security.Value,
		PackageUpdates: updates.Value,
		TopProcesses:   procs.Value,
	}
	snap.Complete()
	return snap
}

func (c *Collector) recordDegraded(probe, err string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.degraded[probe] = err
}

// runProbe applies the per-probe deadline. The probe runs in its own
// goroutine so one that ignores its context cannot hold up the pass.
func runProbe[T any](ctx context.Context, c *Collector, name string, sentinel T, fn func(context.Context, *Host) (T, error)) snapshot.Result[T] {
	ctx, cancel := context.WithTimeout(ctx, c.host.ProbeTimeout)
	defer cancel()

	done := make(chan snapshot.Result[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- snapshot.Degrade(sentinel, fmt.Errorf("panic: %v", r))
			}
		}()
		v, err := fn(ctx, c.host)
		if err != nil {
			done <- snapshot.Degrade(v, err)
			return
		}
		done <- snapshot.Ok(v)
	}()

	var res snapshot.Result[T]
	select {
	case res = <-done:
	case <-ctx.Done():
		res = snapshot.Degrade(sentinel, fmt.Errorf("deadline exceeded after %s: %w", c.host.ProbeTimeout, ctx.Err()))
	}
	if res.Degraded {
		c.recordDegraded(name, res.Err.Error())
		res.Err = fmt.Errorf("%s: %w", name, res.Err)
	}
	return res
}
