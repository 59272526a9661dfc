package guard

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Thresholds for the health reports.
const (
	// minInvocationsForReport is the minimum sample size before a command
	// shows up in the problematic/slow reports.
	minInvocationsForReport = 5

	// problematicErrorRate marks a command as problematic above this rate.
	problematicErrorRate = 0.25

	// slowLatencySeconds marks a command as slow above this average.
	slowLatencySeconds = 1.0

	// maxSlowCommands caps the slow-command report.
	maxSlowCommands = 10
)

// CommandMetric is the per-command rolling record. Process-local and
// advisory: lost on restart, reset only by explicit operator action.
type CommandMetric struct {
	Name        string
	Invocations int
	Errors      int
	AvgLatency  float64 // seconds, incremental mean over successful completions
	LastError   string

	successes int
}

// ErrorRate returns Errors/Invocations, zero for an unused command.
func (m CommandMetric) ErrorRate() float64 {
	if m.Invocations == 0 {
		return 0
	}
	return float64(m.Errors) / float64(m.Invocations)
}

// MetricsRegistry owns the per-command metrics. It is injected into each
// Guard rather than living in package state so tests and multi-tenant hosts
// get isolated registries.
type MetricsRegistry struct {
	mu      sync.Mutex
	metrics map[string]*CommandMetric
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{metrics: make(map[string]*CommandMetric)}
}

// RecordSuccess counts a successful invocation and folds its latency into
// the incremental mean.
func (r *MetricsRegistry) RecordSuccess(name string, latencySeconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.get(name)
	m.Invocations++
	m.successes++
	m.AvgLatency += (latencySeconds - m.AvgLatency) / float64(m.successes)
}

// RecordError counts a failed invocation and remembers the error text.
func (r *MetricsRegistry) RecordError(name, errText string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.get(name)
	m.Invocations++
	m.Errors++
	m.LastError = errText
}

func (r *MetricsRegistry) get(name string) *CommandMetric {
	m, ok := r.metrics[name]
	if !ok {
		m = &CommandMetric{Name: name}
		r.metrics[name] = m
	}
	return m
}

// Snapshot returns a copy of the metric for one command.
func (r *MetricsRegistry) Snapshot(name string) (CommandMetric, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.metrics[name]
	if !ok {
		return CommandMetric{}, false
	}
	return *m, true
}

// All returns a copy of every metric.
func (r *MetricsRegistry) All() []CommandMetric {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CommandMetric, 0, len(r.metrics))
	for _, m := range r.metrics {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Problematic returns commands with at least minInvocationsForReport samples
// whose error rate exceeds problematicErrorRate, worst first.
func (r *MetricsRegistry) Problematic() []CommandMetric {
	var out []CommandMetric
	for _, m := range r.All() {
		if m.Invocations < minInvocationsForReport {
			continue
		}
		if m.ErrorRate() > problematicErrorRate {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ErrorRate() > out[j].ErrorRate() })
	return out
}

// Slow returns up to maxSlowCommands commands with at least
// minInvocationsForReport samples whose average latency exceeds
// slowLatencySeconds, slowest first.
func (r *MetricsRegistry) Slow() []CommandMetric {
	var out []CommandMetric
	for _, m := range r.All() {
		if m.Invocations < minInvocationsForReport {
			continue
		}
		if m.AvgLatency > slowLatencySeconds {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AvgLatency > out[j].AvgLatency })
	if len(out) > maxSlowCommands {
		out = out[:maxSlowCommands]
	}
	return out
}

// Report renders a human-readable summary of all command metrics.
func (r *MetricsRegistry) Report() string {
	all := r.All()
	if len(all) == 0 {
		return "No command metrics collected yet."
	}

	totalInvocations := 0
	totalErrors := 0
	for _, m := range all {
		totalInvocations += m.Invocations
		totalErrors += m.Errors
	}

	var b strings.Builder
	b.WriteString("Command Metrics Report\n")
	fmt.Fprintf(&b, "Commands tracked: %d\n", len(all))
	fmt.Fprintf(&b, "Total invocations: %d\n", totalInvocations)
	fmt.Fprintf(&b, "Total errors: %d\n", totalErrors)

	top := make([]CommandMetric, len(all))
	copy(top, all)
	sort.Slice(top, func(i, j int) bool { return top[i].Invocations > top[j].Invocations })
	if len(top) > 5 {
		top = top[:5]
	}
	b.WriteString("\nTop commands by usage:\n")
	for i, m := range top {
		fmt.Fprintf(&b, "%d. %s: %d invocations\n", i+1, m.Name, m.Invocations)
	}

	if problematic := r.Problematic(); len(problematic) > 0 {
		b.WriteString("\nProblematic commands:\n")
		for i, m := range problematic {
			fmt.Fprintf(&b, "%d. %s: %.1f%% error rate (%d/%d)\n", i+1, m.Name, m.ErrorRate()*100, m.Errors, m.Invocations)
			if m.LastError != "" {
				fmt.Fprintf(&b, "   last error: %s\n", m.LastError)
			}
		}
	}

	if slow := r.Slow(); len(slow) > 0 {
		b.WriteString("\nSlow commands:\n")
		for i, m := range slow {
			fmt.Fprintf(&b, "%d. %s: %.2fs avg latency (%d invocations)\n", i+1, m.Name, m.AvgLatency, m.Invocations)
		}
	}
	return b.String()
}

// Reset clears all metrics. Operator-only.
func (r *MetricsRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = make(map[string]*CommandMetric)
}
