package stats

import (
	"sort"
	"sync"
	"time"
)

// Outcome is the terminal state of one credential check.
type Outcome string

const (
	OutcomeAuthentic     Outcome = "authentic"
	OutcomeRejected      Outcome = "rejected"
	OutcomeMalformed     Outcome = "malformed"
	OutcomeExpired       Outcome = "expired"
	OutcomeMisconfigured Outcome = "misconfigured"
)

// Stats tracks auth outcomes and request latency with thread-safe access.
type Stats struct {
	mu sync.RWMutex

	outcomes      map[string]map[Outcome]int64 // protocol -> outcome -> count
	totalRequests int64

	// Ring buffer of request durations for percentiles
	requestTimes []time.Duration
	maxSamples   int

	startTime time.Time
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Outcomes      map[string]map[Outcome]int64 `json:"outcomes"`
	TotalRequests int64                        `json:"total_requests"`

	P50 time.Duration `json:"p50_ns"`
	P90 time.Duration `json:"p90_ns"`

	Uptime time.Duration `json:"uptime_ns"`
}

// New creates a tracker keeping the last 100 request durations.
func New() *Stats {
	return NewWithOptions(100)
}

// NewWithOptions creates a tracker keeping maxSamples request durations.
func NewWithOptions(maxSamples int) *Stats {
	if maxSamples <= 0 {
		maxSamples = 100
	}
	return &Stats{
		outcomes:     make(map[string]map[Outcome]int64),
		requestTimes: make([]time.Duration, 0, maxSamples),
		maxSamples:   maxSamples,
		startTime:    time.Now(),
	}
}

// RecordAuth counts one verification outcome for protocol.
func (s *Stats) RecordAuth(protocol string, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byOutcome, ok := s.outcomes[protocol]
	if !ok {
		byOutcome = make(map[Outcome]int64)
		s.outcomes[protocol] = byOutcome
	}
	byOutcome[outcome]++
}

// RecordRequest records one handled HTTP request.
func (s *Stats) RecordRequest(duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalRequests++
	if len(s.requestTimes) >= s.maxSamples {
		copy(s.requestTimes, s.requestTimes[1:])
		s.requestTimes = s.requestTimes[:len(s.requestTimes)-1]
	}
	s.requestTimes = append(s.requestTimes, duration)
}

// Snapshot returns a copy of all counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Outcomes:      make(map[string]map[Outcome]int64, len(s.outcomes)),
		TotalRequests: s.totalRequests,
		Uptime:        time.Since(s.startTime),
	}
	for protocol, byOutcome := range s.outcomes {
		cp := make(map[Outcome]int64, len(byOutcome))
		for k, v := range byOutcome {
			cp[k] = v
		}
		snap.Outcomes[protocol] = cp
	}

	n := len(s.requestTimes)
	if n == 0 {
		return snap
	}
	sorted := make([]time.Duration, n)
	copy(sorted, s.requestTimes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	snap.P50 = sorted[n/2]
	p90 := int(float64(n) * 0.9)
	if p90 >= n {
		p90 = n - 1
	}
	snap.P90 = sorted[p90]
	return snap
}

// Reset clears all counters.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.outcomes = make(map[string]map[Outcome]int64)
	s.totalRequests = 0
	s.requestTimes = s.requestTimes[:0]
	s.startTime = time.Now()
}
