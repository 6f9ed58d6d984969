package cache

import "time"

// Stats is a point-in-time snapshot of store contents, taken after an
// implicit cleanup pass so expired entries never skew the numbers.
type Stats struct {
	Size               int
	TotalAccessCount   uint64
	AverageAccessCount float64
	OldestEntry        time.Time
	NewestEntry        time.Time
}

func (s *Store[V]) Stats() Stats {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupLocked(now)

	stats := Stats{Size: len(s.entries)}
	for _, ent := range s.entries {
		stats.TotalAccessCount += ent.accessCount

		if stats.OldestEntry.IsZero() || ent.createdAt.Before(stats.OldestEntry) {
			stats.OldestEntry = ent.createdAt
		}
		if ent.createdAt.After(stats.NewestEntry) {
			stats.NewestEntry = ent.createdAt
		}
	}

	if stats.Size > 0 {
		stats.AverageAccessCount = float64(stats.TotalAccessCount) / float64(stats.Size)
	}
	return stats
}
