// Package metrics tracks gate decisions and upstream outcomes for the
// /metrics endpoint. Counters are process-local and reset on restart.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/wrenchgate/gate"
)

// Metrics accumulates admission and upstream statistics.
type Metrics struct {
	totalRequests  atomic.Int64
	allowed        atomic.Int64
	rateLimited    atomic.Int64
	rejectedQuery  atomic.Int64
	circuitOpen    atomic.Int64
	upstreamErrors atomic.Int64

	mu          sync.RWMutex
	clientStats map[string]*ClientStats
	startTime   time.Time
}

// ClientStats tracks per-client decision counts.
type ClientStats struct {
	ClientKey      string    `json:"client_key"`
	TotalRequests  int64     `json:"total_requests"`
	Allowed        int64     `json:"allowed"`
	Rejected       int64     `json:"rejected"`
	FirstRequestAt time.Time `json:"first_request_at"`
	LastRequestAt  time.Time `json:"last_request_at"`
}

// New creates a metrics tracker.
func New() *Metrics {
	return &Metrics{
		clientStats: make(map[string]*ClientStats),
		startTime:   time.Now(),
	}
}

// RecordDecision records one gate decision for a client.
func (m *Metrics) RecordDecision(clientKey string, outcome gate.Outcome) {
	m.totalRequests.Add(1)

	switch outcome {
	case gate.OutcomeAllowed:
		m.allowed.Add(1)
	case gate.OutcomeRateLimited:
		m.rateLimited.Add(1)
	case gate.OutcomeRejectedQuery:
		m.rejectedQuery.Add(1)
	case gate.OutcomeCircuitOpen:
		m.circuitOpen.Add(1)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stats, exists := m.clientStats[clientKey]
	if !exists {
		stats = &ClientStats{
			ClientKey:      clientKey,
			FirstRequestAt: time.Now(),
		}
		m.clientStats[clientKey] = stats
	}

	stats.TotalRequests++
	if outcome == gate.OutcomeAllowed {
		stats.Allowed++
	} else {
		stats.Rejected++
	}
	stats.LastRequestAt = time.Now()
}

// RecordUpstreamError records a failed provider call for an admitted request.
func (m *Metrics) RecordUpstreamError() {
	m.upstreamErrors.Add(1)
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TotalRequests  int64          `json:"total_requests"`
	Allowed        int64          `json:"allowed"`
	RateLimited    int64          `json:"rate_limited"`
	RejectedQuery  int64          `json:"rejected_query"`
	CircuitOpen    int64          `json:"circuit_open"`
	UpstreamErrors int64          `json:"upstream_errors"`
	UniqueClients  int64          `json:"unique_clients"`
	TopClients     []*ClientStats `json:"top_clients"`
	UptimeSeconds  int64          `json:"uptime_seconds"`
	StartTime      time.Time      `json:"start_time"`
}

// GetSnapshot returns a copy of the current metrics, with the ten busiest
// clients by total requests.
func (m *Metrics) GetSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	topClients := make([]*ClientStats, 0, len(m.clientStats))
	for _, stats := range m.clientStats {
		cp := *stats
		topClients = append(topClients, &cp)
	}

	sortByTotalRequests(topClients)
	if len(topClients) > 10 {
		topClients = topClients[:10]
	}

	uptime := time.Since(m.startTime)

	return &Snapshot{
		TotalRequests:  m.totalRequests.Load(),
		Allowed:        m.allowed.Load(),
		RateLimited:    m.rateLimited.Load(),
		RejectedQuery:  m.rejectedQuery.Load(),
		CircuitOpen:    m.circuitOpen.Load(),
		UpstreamErrors: m.upstreamErrors.Load(),
		UniqueClients:  int64(len(m.clientStats)),
		TopClients:     topClients,
		UptimeSeconds:  int64(uptime.Seconds()),
		StartTime:      m.startTime,
	}
}

func sortByTotalRequests(clients []*ClientStats) {
	for i := 0; i < len(clients)-1; i++ {
		for j := i + 1; j < len(clients); j++ {
			if clients[j].TotalRequests > clients[i].TotalRequests {
				clients[i], clients[j] = clients[j], clients[i]
			}
		}
	}
}
