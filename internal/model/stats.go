package model

import (
	"sync"
	"time"
)

// ScanStats holds thread-safe monotonic counters for one scan; every
// update takes the mutex. The Scan Engine's coordinator updates all
// counters except RetriedRequests, which worker goroutines increment
// through the resolver's retry hook. Readers use Snapshot for a
// consistent copy.
type ScanStats struct {
	mu sync.Mutex

	Discovered      int
	FromCache       int
	FreshScans      int
	Succeeded       int
	Failed          int
	NotFound        int
	RetriedRequests int
	StartedAt       time.Time
	EndedAt         time.Time
}

// NewScanStats returns a zeroed ScanStats with StartedAt set to now.
func NewScanStats(now time.Time) *ScanStats {
	return &ScanStats{StartedAt: now}
}

// Snapshot is a point-in-time, lock-free copy of ScanStats' counters.
type Snapshot struct {
	Discovered      int
	FromCache       int
	FreshScans      int
	Succeeded       int
	Failed          int
	NotFound        int
	RetriedRequests int
	StartedAt       time.Time
	EndedAt         time.Time
}

func (s *ScanStats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Discovered:      s.Discovered,
		FromCache:       s.FromCache,
		FreshScans:      s.FreshScans,
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		NotFound:        s.NotFound,
		RetriedRequests: s.RetriedRequests,
		StartedAt:       s.StartedAt,
		EndedAt:         s.EndedAt,
	}
}

func (s *ScanStats) AddDiscovered(n int) {
	s.mu.Lock()
	s.Discovered += n
	s.mu.Unlock()
}

func (s *ScanStats) IncFromCache() {
	s.mu.Lock()
	s.FromCache++
	s.mu.Unlock()
}

func (s *ScanStats) IncFreshScan() {
	s.mu.Lock()
	s.FreshScans++
	s.mu.Unlock()
}

func (s *ScanStats) IncSucceeded() {
	s.mu.Lock()
	s.Succeeded++
	s.mu.Unlock()
}

func (s *ScanStats) IncFailed() {
	s.mu.Lock()
	s.Failed++
	s.mu.Unlock()
}

func (s *ScanStats) IncNotFound() {
	s.mu.Lock()
	s.NotFound++
	s.mu.Unlock()
}

func (s *ScanStats) IncRetriedRequests() {
	s.mu.Lock()
	s.RetriedRequests++
	s.mu.Unlock()
}

func (s *ScanStats) SetEnded(now time.Time) {
	s.mu.Lock()
	s.EndedAt = now
	s.mu.Unlock()
}

// RecordedTotal returns FromCache + FreshScans, which must equal
// Succeeded + Failed + NotFound for any completed scan.
func (s Snapshot) RecordedTotal() int {
	return s.FromCache + s.FreshScans
}

// OutcomeTotal returns succeeded + failed + not_found, the right-hand side
// of the same invariant.
func (s Snapshot) OutcomeTotal() int {
	return s.Succeeded + s.Failed + s.NotFound
}
