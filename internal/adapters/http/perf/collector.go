// Package perf keeps a bounded in-memory record of request, query and provider
// fetch timings and aggregates it for the admin perf endpoint.
package perf

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes what was timed.
type EntryKind uint8

const (
	KindRequest EntryKind = iota // admin HTTP request, Path is "METHOD /path"
	KindQuery                    // SQL statement, Path is "VERB table"
	KindFetch                    // provider fetch, Path is the brand id
)

// Entry is a single timing record stored in the ring buffer.
type Entry struct {
	Kind       EntryKind
	Path       string
	StatusCode int  // HTTP status for requests and fetches; 0 for queries
	Failed     bool // fetch or query returned an error
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring buffer for timing entries.
// Writes overwrite the oldest entry once full; aggregation happens on read.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int64
}

// NewCollector creates a collector with the given ring buffer capacity.
// PRE: size > 0, otherwise DefaultRingSize is used
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Record appends an entry to the ring buffer. Safe on a nil Collector.
// POST: Entry stored; if buffer full, oldest entry overwritten
func (c *Collector) Record(e Entry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % c.size
	c.mu.Unlock()
	atomic.AddInt64(&c.count, 1)
}

// TotalRecorded returns the total number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	return atomic.LoadInt64(&c.count)
}

// Latency summarises one kind of entry.
type Latency struct {
	Count  int     `json:"count"`
	Failed int     `json:"failed"`
	P50Ms  float64 `json:"p50_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// PathStat aggregates timing for a single path, statement or brand.
type PathStat struct {
	Path    string  `json:"path"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	Count   int     `json:"count"`
	TotalMs float64 `json:"total_ms"`
}

// Snapshot holds aggregated performance data computed on read.
type Snapshot struct {
	TotalRecorded  int64      `json:"total_recorded"`
	Requests       Latency    `json:"requests"`
	Queries        Latency    `json:"queries"`
	Fetches        Latency    `json:"fetches"`
	SlowestPaths   []PathStat `json:"slowest_paths"`
	SlowestQueries []PathStat `json:"slowest_queries"`
	SlowestFetches []PathStat `json:"slowest_fetches"`
}

// kindStats accumulates entries of one kind.
type kindStats struct {
	durations []float64
	failed    int
	byPath    map[string]*PathStat
}

func (k *kindStats) add(e Entry) {
	k.durations = append(k.durations, e.DurationMs)
	if e.Failed {
		k.failed++
	}
	s, ok := k.byPath[e.Path]
	if !ok {
		s = &PathStat{Path: e.Path}
		k.byPath[e.Path] = s
	}
	s.Count++
	s.TotalMs += e.DurationMs
	if e.DurationMs > s.MaxMs {
		s.MaxMs = e.DurationMs
	}
}

func (k *kindStats) latency() Latency {
	l := Latency{Count: len(k.durations), Failed: k.failed}
	if len(k.durations) == 0 {
		return l
	}
	sort.Float64s(k.durations)
	l.P50Ms = percentile(k.durations, 50)
	l.P95Ms = percentile(k.durations, 95)
	l.P99Ms = percentile(k.durations, 99)
	return l
}

// Snapshot aggregates entries recorded at or after since.
// It copies and sorts the whole buffer, so call it per admin request, not per event.
// POST: Returns per-kind percentiles and the topN slowest paths of each kind
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := make([]Entry, c.size)
	copy(buf, c.entries)
	c.mu.Unlock()

	kinds := map[EntryKind]*kindStats{}
	for _, k := range []EntryKind{KindRequest, KindQuery, KindFetch} {
		kinds[k] = &kindStats{byPath: map[string]*PathStat{}}
	}
	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		if k, ok := kinds[e.Kind]; ok {
			k.add(e)
		}
	}

	return Snapshot{
		TotalRecorded:  c.TotalRecorded(),
		Requests:       kinds[KindRequest].latency(),
		Queries:        kinds[KindQuery].latency(),
		Fetches:        kinds[KindFetch].latency(),
		SlowestPaths:   topByAvg(kinds[KindRequest].byPath, topN),
		SlowestQueries: topByAvg(kinds[KindQuery].byPath, topN),
		SlowestFetches: topByAvg(kinds[KindFetch].byPath, topN),
	}
}

// percentile returns the p-th percentile from a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// topByAvg returns the top N paths by average duration, slowest first.
func topByAvg(stats map[string]*PathStat, n int) []PathStat {
	list := make([]PathStat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AvgMs == list[j].AvgMs {
			return list[i].Path < list[j].Path
		}
		return list[i].AvgMs > list[j].AvgMs
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}
