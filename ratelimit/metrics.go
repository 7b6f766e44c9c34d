package ratelimit

// Recorder receives counters and observations from the Governor.
type Recorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NoOpRecorder is a placeholder that does nothing.
// It ensures we never have to check 'if g.recorder != nil' in our hot path.
type NoOpRecorder struct{}

func (n *NoOpRecorder) Add(name string, value float64, tags map[string]string)     {}
func (n *NoOpRecorder) Observe(name string, value float64, tags map[string]string) {}

// Metric names.
const (
	// MetricWait observes the seconds a Check call spent blocked.
	MetricWait = "ratelimit.wait"

	// MetricLimited counts recorded limits (429 responses).
	MetricLimited = "ratelimit.limited"

	// MetricEvicted counts buckets removed by Sweep.
	MetricEvicted = "ratelimit.evicted"
)
