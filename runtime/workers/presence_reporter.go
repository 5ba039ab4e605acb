package workers

import (
	"context"
	"dm-lab/contract"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// PresenceReporter periodically logs how many identities are online,
// along with the memory and cpu used by the process. At debug level it
// also lists every live connection.
type PresenceReporter struct {
	log      *slog.Logger
	registry contract.IRegistry
	interval time.Duration
}

func NewPresenceReporter(log *slog.Logger, registry contract.IRegistry, interval time.Duration) *PresenceReporter {
	return &PresenceReporter{log: log, registry: registry, interval: interval}
}

func (w *PresenceReporter) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process stats unavailable", "error", err)
		p = nil
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.report(p)
		}
	}
}

func (w *PresenceReporter) report(p *process.Process) {
	attrs := []any{"online", w.registry.Online()}
	if p != nil {
		if rss, cpu, err := selfStats(p); err == nil {
			attrs = append(attrs, "rss_mb", rss/1024/1024, "cpu_percent", cpu)
		} else {
			w.log.Debug("Failed to collect self stats", "error", err)
		}
	}
	w.log.Info("Presence report", attrs...)

	if !w.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	now := time.Now()
	for _, presence := range w.registry.Presences() {
		w.log.Debug("Online",
			"identity", presence.Identity,
			"connection", presence.ConnectionID,
			"connected_for", now.Sub(presence.ConnectedAt).Round(time.Second))
	}
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
