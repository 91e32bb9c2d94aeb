package obs

import (
	"sort"
	"strings"
	"sync"
)

// Label is a key/value pair attached to measurements.
type Label struct {
	Key   string
	Value string
}

// Meter is a very small interface for emitting counters/histograms.
// Implementations may no-op or bridge to a metrics system.
type Meter interface {
	Counter(name string, value float64, labels ...Label)
	Histogram(name string, value float64, labels ...Label)
}

// NopMeter is a Meter that discards all measurements.
type NopMeter struct{}

func (NopMeter) Counter(name string, value float64, labels ...Label)   {}
func (NopMeter) Histogram(name string, value float64, labels ...Label) {}

// MemMeter keeps counter totals in memory, keyed by name and labels
// (e.g. `requests_total{method="GET"}`). Histogram samples are counted
// and summed under name+"_count" and name+"_sum".
type MemMeter struct {
	mu     sync.Mutex
	values map[string]float64
}

func (m *MemMeter) Counter(name string, value float64, labels ...Label) {
	m.add(series(name, labels), value)
}

func (m *MemMeter) Histogram(name string, value float64, labels ...Label) {
	m.add(series(name+"_count", labels), 1)
	m.add(series(name+"_sum", labels), value)
}

func (m *MemMeter) add(key string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]float64)
	}
	m.values[key] += v
}

// Value returns the current total of a series.
func (m *MemMeter) Value(name string, labels ...Label) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[series(name, labels)]
}

// Snapshot returns a copy of every series.
func (m *MemMeter) Snapshot() map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64, len(m.values))
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

func series(name string, labels []Label) string {
	if len(labels) == 0 {
		return name
	}
	ls := make([]string, len(labels))
	for i, l := range labels {
		ls[i] = l.Key + `="` + l.Value + `"`
	}
	sort.Strings(ls)
	return name + "{" + strings.Join(ls, ",") + "}"
}
