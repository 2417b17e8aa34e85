package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxLatencySamples = 1000

type Metrics struct {
	mutex       sync.RWMutex
	submissions int64
	attempts    map[string]int64
	failures    map[string]int64
	latencies   map[string][]time.Duration
	outcomes    map[string]int64
	healthFail  map[string]bool
	startTime   time.Time
}

type Snapshot struct {
	TotalSubmissions int64                       `json:"total_submissions"`
	Uptime           time.Duration               `json:"uptime"`
	Processors       map[string]ProcessorMetrics `json:"processors"`
	Outcomes         map[string]int64            `json:"outcomes"`
}

type ProcessorMetrics struct {
	Attempts   int64         `json:"attempts"`
	Failures   int64         `json:"failures"`
	Failing    bool          `json:"failing"`
	AvgLatency time.Duration `json:"avg_latency"`
	P50Latency time.Duration `json:"p50_latency"`
	P95Latency time.Duration `json:"p95_latency"`
	P99Latency time.Duration `json:"p99_latency"`
}

func (m *Metrics) IncrementSubmissions() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.submissions++
}

func (m *Metrics) RecordAttempt(processor string, duration time.Duration, success bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.attempts[processor]++
	if !success {
		m.failures[processor]++
	}

	m.latencies[processor] = append(m.latencies[processor], duration)
	if len(m.latencies[processor]) > maxLatencySamples {
		m.latencies[processor] = m.latencies[processor][1:]
	}
}

func (m *Metrics) RecordOutcome(outcome string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.outcomes[outcome]++
}

func (m *Metrics) UpdateHealthStatus(processor string, failing bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthFail[processor] = failing
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalSubmissions: m.submissions,
		Uptime:           time.Since(m.startTime),
		Processors:       make(map[string]ProcessorMetrics),
		Outcomes:         make(map[string]int64, len(m.outcomes)),
	}

	for outcome, n := range m.outcomes {
		snap.Outcomes[outcome] = n
	}

	// Collect every processor seen by any map
	all := make(map[string]bool)
	for p := range m.attempts {
		all[p] = true
	}
	for p := range m.healthFail {
		all[p] = true
	}

	for p := range all {
		pm := ProcessorMetrics{
			Attempts: m.attempts[p],
			Failures: m.failures[p],
			Failing:  m.healthFail[p],
		}

		durations := m.latencies[p]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			pm.AvgLatency = average(sorted)
			pm.P50Latency = percentile(sorted, 0.50)
			pm.P95Latency = percentile(sorted, 0.95)
			pm.P99Latency = percentile(sorted, 0.99)
		}

		snap.Processors[p] = pm
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		attempts:   make(map[string]int64),
		failures:   make(map[string]int64),
		latencies:  make(map[string][]time.Duration),
		outcomes:   make(map[string]int64),
		healthFail: make(map[string]bool),
		startTime:  time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
