package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// StatusPublisher receives the outcome of every health round, per dependency name.
// The empty name carries the overall status.
type StatusPublisher interface {
	Publish(service string, healthy bool)
}

// HealthMonitoringWorker probes the relay dependencies at a fixed interval,
// publishes their status and samples the CPU and RAM usage of the process.
type HealthMonitoringWorker struct {
	log       *slog.Logger
	probes    map[string]observability.Probe
	publisher StatusPublisher
	interval  time.Duration
	timeout   time.Duration
}

func NewHealthMonitoringWorker(
	log *slog.Logger,
	probes map[string]observability.Probe,
	publisher StatusPublisher,
	interval time.Duration,
) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:       log,
		probes:    probes,
		publisher: publisher,
		interval:  interval,
		timeout:   interval / 2,
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	self, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		w.log.Warn("Process metrics unavailable", "error", err)
		self = nil
	}

	w.round(ctx, self)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case <-ticker.C:
			w.round(ctx, self)
		}
	}
}

func (w *HealthMonitoringWorker) round(ctx context.Context, self *process.Process) {
	probeCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	report := observability.Evaluate(probeCtx, w.probes)
	for name, check := range report.Checks {
		healthy := check.Status == "pass"
		if !healthy {
			w.log.Warn("Dependency unhealthy", "name", name, "message", check.Message)
		}
		w.publisher.Publish(name, healthy)
	}
	w.publisher.Publish("", report.Healthy())

	if self == nil {
		return
	}
	if cpu, err := self.CPUPercent(); err == nil {
		observability.ProcessCPUPercent.Set(cpu)
	} else {
		w.log.Debug("Error while finding process cpu usage", "err", err)
	}
	if ram, err := self.MemoryPercent(); err == nil {
		observability.ProcessMemoryPercent.Set(float64(ram))
	} else {
		w.log.Debug("Error while finding process ram usage", "err", err)
	}
}
