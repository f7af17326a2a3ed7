// Package observability tracks per-source query statistics and predicate
// column usage.
package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// QueryStats aggregates outcomes per object type and counts which
// columns queries filter on.
type QueryStats struct {
	mu            sync.RWMutex
	sources       map[string]*SourceStats
	predicateFreq map[string]*ColumnStats
	window        time.Duration
	now           func() time.Time
}

// SourceStats holds counters for one object type.
type SourceStats struct {
	ObjectType   string        `json:"object_type"`
	Queries      int64         `json:"queries"`
	Errors       int64         `json:"errors"`
	Rows         int64         `json:"rows"`
	TotalLatency time.Duration `json:"total_latency"`
	MaxLatency   time.Duration `json:"max_latency"`
	LastSeen     time.Time     `json:"last_seen"`
}

// AvgLatency returns the mean latency across recorded queries.
func (s SourceStats) AvgLatency() time.Duration {
	if s.Queries == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Queries)
}

// ColumnStats holds statistics for a predicate column.
type ColumnStats struct {
	Column    string         `json:"column"`
	Frequency int64          `json:"frequency"`
	LastSeen  time.Time      `json:"last_seen"`
	Operators map[string]int `json:"operators"` // operator → count (e.g., "=" → 5, "IN" → 2)
}

// NewQueryStats creates a tracker whose Prune drops entries idle for
// longer than window.
func NewQueryStats(window time.Duration) *QueryStats {
	return &QueryStats{
		sources:       make(map[string]*SourceStats),
		predicateFreq: make(map[string]*ColumnStats),
		window:        window,
		now:           time.Now,
	}
}

// RecordQuery records one finished query against objectType. A non-nil
// err counts as a failure and contributes no rows.
func (q *QueryStats) RecordQuery(objectType string, rows int, latency time.Duration, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, ok := q.sources[objectType]
	if !ok {
		s = &SourceStats{ObjectType: objectType}
		q.sources[objectType] = s
	}
	s.Queries++
	if err != nil {
		s.Errors++
	} else {
		s.Rows += int64(rows)
	}
	s.TotalLatency += latency
	if latency > s.MaxLatency {
		s.MaxLatency = latency
	}
	s.LastSeen = q.now()
}

// RecordPredicate records a predicate on column with operator. Columns
// are keyed as given, so callers qualify them ("users.age") when the
// source matters.
func (q *QueryStats) RecordPredicate(column, operator string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats, exists := q.predicateFreq[column]
	if !exists {
		stats = &ColumnStats{
			Column:    column,
			Operators: make(map[string]int),
		}
		q.predicateFreq[column] = stats
	}

	stats.Frequency++
	stats.LastSeen = q.now()
	stats.Operators[operator]++
}

// Source returns a copy of the counters for objectType.
func (q *QueryStats) Source(objectType string) (SourceStats, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	s, ok := q.sources[objectType]
	if !ok {
		return SourceStats{}, false
	}
	return *s, true
}

// Sources returns copies of all per-source counters ordered by object type.
func (q *QueryStats) Sources() []SourceStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]SourceStats, 0, len(q.sources))
	for _, s := range q.sources {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObjectType < out[j].ObjectType })
	return out
}

// GetTopPredicates returns the top n predicate columns by frequency,
// ties broken by name.
func (q *QueryStats) GetTopPredicates(n int) []ColumnStats {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if n <= 0 || len(q.predicateFreq) == 0 {
		return []ColumnStats{}
	}

	stats := make([]ColumnStats, 0, len(q.predicateFreq))
	for _, s := range q.predicateFreq {
		statsCopy := ColumnStats{
			Column:    s.Column,
			Frequency: s.Frequency,
			LastSeen:  s.LastSeen,
			Operators: make(map[string]int, len(s.Operators)),
		}
		for op, count := range s.Operators {
			statsCopy.Operators[op] = count
		}
		stats = append(stats, statsCopy)
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Frequency != stats[j].Frequency {
			return stats[i].Frequency > stats[j].Frequency
		}
		return stats[i].Column < stats[j].Column
	})

	if n > len(stats) {
		n = len(stats)
	}
	return stats[:n]
}

// Prune removes entries not seen within the window.
func (q *QueryStats) Prune() {
	q.mu.Lock()
	defer q.mu.Unlock()

	threshold := q.now().Add(-q.window)

	for col, stats := range q.predicateFreq {
		if stats.LastSeen.Before(threshold) {
			delete(q.predicateFreq, col)
		}
	}
	for objectType, stats := range q.sources {
		if stats.LastSeen.Before(threshold) {
			delete(q.sources, objectType)
		}
	}
}

// Forget drops the counters for objectType along with predicate columns
// qualified by it.
func (q *QueryStats) Forget(objectType string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.sources, objectType)
	prefix := objectType + "."
	for col := range q.predicateFreq {
		if strings.HasPrefix(col, prefix) {
			delete(q.predicateFreq, col)
		}
	}
}

// Reset clears all statistics.
func (q *QueryStats) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sources = make(map[string]*SourceStats)
	q.predicateFreq = make(map[string]*ColumnStats)
}
