package monitor

import (
	"sync"
	"time"
)

// rateWindow is the sliding window used for the messages-per-second
// figure.
const rateWindow = time.Second

// Stats is a snapshot of the client's accumulated counters. Counters are
// monotone for the lifetime of the client; only discarding the client
// resets them.
type Stats struct {
	TotalConnections   int           `json:"total_connections"`
	TotalReconnections int           `json:"total_reconnections"`
	TotalMessages      int           `json:"total_messages"`
	ParseErrors        int           `json:"parse_errors"`
	DroppedMessages    int           `json:"dropped_messages"`
	MessagesPerSecond  int           `json:"messages_per_second"`
	AverageLatency     time.Duration `json:"average_latency_ns"`
	LastError          string        `json:"last_error,omitempty"`
	ConnectedAt        *time.Time    `json:"connected_at,omitempty"`
}

// statsCollector accumulates counters behind its own lock so readers
// never contend with the client's connection lock.
type statsCollector struct {
	mu sync.Mutex

	totalConnections   int
	totalReconnections int
	totalMessages      int
	parseErrors        int
	droppedMessages    int
	lastError          string
	connectedAt        *time.Time

	// recent holds arrival timestamps inside the rate window.
	recent []time.Time

	// Latency is kept as a running total so the average never loses
	// precision to incremental rounding.
	latencyTotal time.Duration
	latencyCount int
}

func newStatsCollector() *statsCollector {
	return &statsCollector{}
}

func (s *statsCollector) recordConnected(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalConnections++
	t := now
	s.connectedAt = &t
}

func (s *statsCollector) recordDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectedAt = nil
}

func (s *statsCollector) recordReconnection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalReconnections++
}

func (s *statsCollector) recordMessage(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalMessages++
	s.recent = append(s.recent, now)
	s.pruneLocked(now)
}

func (s *statsCollector) recordParseError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parseErrors++
}

func (s *statsCollector) recordDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.droppedMessages++
}

func (s *statsCollector) recordLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latencyTotal += d
	s.latencyCount++
}

func (s *statsCollector) setLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastError = msg
}

// pruneLocked drops timestamps that left the rate window. Caller holds mu.
func (s *statsCollector) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	i := 0
	for i < len(s.recent) && s.recent[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		s.recent = append(s.recent[:0], s.recent[i:]...)
	}
}

func (s *statsCollector) averageLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latencyCount == 0 {
		return 0
	}
	return s.latencyTotal / time.Duration(s.latencyCount)
}

// snapshot returns a copy of the counters as of now.
func (s *statsCollector) snapshot(now time.Time) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)

	stats := Stats{
		TotalConnections:   s.totalConnections,
		TotalReconnections: s.totalReconnections,
		TotalMessages:      s.totalMessages,
		ParseErrors:        s.parseErrors,
		DroppedMessages:    s.droppedMessages,
		MessagesPerSecond:  len(s.recent),
		LastError:          s.lastError,
	}
	if s.latencyCount > 0 {
		stats.AverageLatency = s.latencyTotal / time.Duration(s.latencyCount)
	}
	if s.connectedAt != nil {
		t := *s.connectedAt
		stats.ConnectedAt = &t
	}
	return stats
}
