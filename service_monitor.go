package roleadmin

import (
	"sync"
	"sync/atomic"
	"time"
)

// MutationMetrics summarizes role mutations since the last reset.
type MutationMetrics struct {
	Total           int64         `json:"total"`
	Succeeded       int64         `json:"succeeded"`
	Rejected        int64         `json:"rejected"`
	Failed          int64         `json:"failed"`
	AuditGaps       int64         `json:"audit_gaps"`
	AverageDuration time.Duration `json:"average_duration"`
	MaxDuration     time.Duration `json:"max_duration"`
	MinDuration     time.Duration `json:"min_duration"`
	LastReset       time.Time     `json:"last_reset"`
}

// mutationMonitor keeps in-process counters for SaveRole, CreateRole and DeleteRole.
type mutationMonitor struct {
	total         atomic.Int64
	succeeded     atomic.Int64
	rejected      atomic.Int64
	failed        atomic.Int64
	auditGaps     atomic.Int64
	totalDuration atomic.Int64 // nanoseconds
	maxDuration   atomic.Int64 // nanoseconds
	minDuration   atomic.Int64 // nanoseconds, 0 until the first sample

	mu        sync.RWMutex
	lastReset time.Time
}

func newMutationMonitor() *mutationMonitor {
	return &mutationMonitor{lastReset: time.Now()}
}

func (m *mutationMonitor) record(d time.Duration, err error) {
	m.total.Add(1)
	m.totalDuration.Add(int64(d))

	switch outcome(err) {
	case "success":
		m.succeeded.Add(1)
	case "rejected":
		m.rejected.Add(1)
	default:
		m.failed.Add(1)
	}
	if IsAuditIncomplete(err) {
		m.auditGaps.Add(1)
	}

	ns := int64(d)
	for {
		cur := m.maxDuration.Load()
		if ns <= cur || m.maxDuration.CompareAndSwap(cur, ns) {
			break
		}
	}
	for {
		cur := m.minDuration.Load()
		if (cur != 0 && ns >= cur) || m.minDuration.CompareAndSwap(cur, ns) {
			break
		}
	}
}

func (m *mutationMonitor) snapshot() MutationMetrics {
	m.mu.RLock()
	lastReset := m.lastReset
	m.mu.RUnlock()

	total := m.total.Load()
	var avg time.Duration
	if total > 0 {
		avg = time.Duration(m.totalDuration.Load() / total)
	}
	return MutationMetrics{
		Total:           total,
		Succeeded:       m.succeeded.Load(),
		Rejected:        m.rejected.Load(),
		Failed:          m.failed.Load(),
		AuditGaps:       m.auditGaps.Load(),
		AverageDuration: avg,
		MaxDuration:     time.Duration(m.maxDuration.Load()),
		MinDuration:     time.Duration(m.minDuration.Load()),
		LastReset:       lastReset,
	}
}

func (m *mutationMonitor) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total.Store(0)
	m.succeeded.Store(0)
	m.rejected.Store(0)
	m.failed.Store(0)
	m.auditGaps.Store(0)
	m.totalDuration.Store(0)
	m.maxDuration.Store(0)
	m.minDuration.Store(0)
	m.lastReset = time.Now()
}

// MutationMetrics returns counters for role mutations since the last reset.
func (s *Service) MutationMetrics() MutationMetrics {
	return s.monitor.snapshot()
}

// ResetMutationMetrics clears the mutation counters.
func (s *Service) ResetMutationMetrics() {
	s.monitor.reset()
}

// IsMutationHealthy reports whether mutations are failing or slow.
// Fewer than ten mutations are always healthy. Rejections do not count as failures.
func (s *Service) IsMutationHealthy() bool {
	m := s.monitor.snapshot()
	if m.Total < 10 {
		return true
	}
	if float64(m.Failed)/float64(m.Total) > 0.05 {
		return false
	}
	if m.AuditGaps > 0 {
		return false
	}
	return m.AverageDuration <= time.Second
}
