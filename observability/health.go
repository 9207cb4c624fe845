package observability

import (
	"context"
	"time"
)

// Probe checks one dependency, nil means healthy.
type Probe func(ctx context.Context) error

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"` // "pass" or "fail"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

type Report struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

func (r Report) Healthy() bool { return r.Status == "healthy" }

// Evaluate runs every probe sequentially under ctx.
func Evaluate(ctx context.Context, probes map[string]Probe) Report {
	checks := make(map[string]Check, len(probes))
	healthy := true
	for name, probe := range probes {
		start := time.Now()
		if err := probe(ctx); err != nil {
			checks[name] = Check{Status: "fail", Message: err.Error()}
			healthy = false
			continue
		}
		checks[name] = Check{Status: "pass", Latency: time.Since(start).String()}
	}
	status := "healthy"
	if !healthy {
		status = "degraded"
	}
	return Report{Status: status, Checks: checks, Timestamp: time.Now().UTC().Format(time.RFC3339)}
}
