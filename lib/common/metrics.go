package common

import (
	"fmt"
	"io"
	"strings"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// --------------------------------------------------------------------------
// Counters (VictoriaMetrics, Prometheus exposition)
// --------------------------------------------------------------------------

// Counter returns the counter with the given name and labels, creating it on
// first use. labels are key/value pairs, e.g. Counter("ibs_tx_total", "db", "shop").
func Counter(name string, labels ...string) *vm.Counter {
	return vm.GetOrCreateCounter(metricName(name, labels))
}

// WritePrometheus writes all counters in Prometheus text format.
func WritePrometheus(w io.Writer) {
	vm.WritePrometheus(w, false)
}

func metricName(name string, labels []string) string {
	if len(labels) < 2 {
		return name
	}
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i := 0; i+1 < len(labels); i += 2 {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%s=%q", labels[i], labels[i+1])
	}
	sb.WriteByte('}')
	return sb.String()
}

// --------------------------------------------------------------------------
// Distributions (go-metrics)
// --------------------------------------------------------------------------

// Registry holds histograms and timers of one component
type Registry struct {
	r gometrics.Registry
}

// NewRegistry creates an empty Registry
func NewRegistry() *Registry {
	return &Registry{r: gometrics.NewRegistry()}
}

// Histogram returns the named histogram (exponentially decaying sample)
func (r *Registry) Histogram(name string) gometrics.Histogram {
	return gometrics.GetOrRegisterHistogram(name, r.r, gometrics.NewExpDecaySample(1028, 0.015))
}

// Timer returns the named timer
func (r *Registry) Timer(name string) gometrics.Timer {
	return gometrics.GetOrRegisterTimer(name, r.r)
}

// Summary describes a histogram or timer
type Summary struct {
	Count int64   `json:"count" yaml:"count"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Max   int64   `json:"max" yaml:"max"`
	P95   float64 `json:"p95" yaml:"p95"`
}

// Summaries returns a snapshot of all histograms and timers by name.
// Timer values are in microseconds.
func (r *Registry) Summaries() map[string]Summary {
	out := make(map[string]Summary)
	r.r.Each(func(name string, m interface{}) {
		switch v := m.(type) {
		case gometrics.Histogram:
			s := v.Snapshot()
			out[name] = Summary{Count: s.Count(), Mean: s.Mean(), Max: s.Max(), P95: s.Percentile(0.95)}
		case gometrics.Timer:
			s := v.Snapshot()
			us := float64(time.Microsecond)
			out[name] = Summary{
				Count: s.Count(),
				Mean:  s.Mean() / us,
				Max:   s.Max() / int64(time.Microsecond),
				P95:   s.Percentile(0.95) / us,
			}
		}
	})
	return out
}
