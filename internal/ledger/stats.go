package ledger

import (
	"sort"
	"time"
)

// Statistics aggregates the ledger for the status command and the monitor's
// periodic summary log.
type Statistics struct {
	Total             int
	ByStatus          map[string]int
	ByAuthor          map[string]int
	Recent24h         int
	AvgProcessingSecs float64
	FailedAttempts    int
}

// Statistics computes aggregate counts over all records.
func (l *Ledger) Statistics() Statistics {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Statistics{
		Total:    len(l.commits),
		ByStatus: make(map[string]int),
		ByAuthor: make(map[string]int),
	}
	for _, s := range AllStatuses() {
		stats.ByStatus[s.String()] = 0
	}

	recentCutoff := l.now().Add(-24 * time.Hour)
	var processingTotal float64
	var processingCount int

	for _, rec := range l.commits {
		stats.ByStatus[rec.Status.String()]++
		stats.ByAuthor[rec.Author]++
		if rec.DetectedAt.After(recentCutoff) {
			stats.Recent24h++
		}
		if rec.ProcessingSecs > 0 {
			processingTotal += rec.ProcessingSecs
			processingCount++
		}
		if rec.ReviewAttempts > 1 {
			stats.FailedAttempts += rec.ReviewAttempts - 1
		}
	}

	if processingCount > 0 {
		stats.AvgProcessingSecs = processingTotal / float64(processingCount)
	}
	return stats
}

// Recent returns up to limit records, newest detection first.
func (l *Ledger) Recent(limit int) []CommitRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]CommitRecord, 0, len(l.commits))
	for _, rec := range l.commits {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
