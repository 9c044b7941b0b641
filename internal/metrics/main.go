package metrics

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/exp/maps"

	"github.com/klinok066/robots/internal/notes"
)

type TimeBuckets map[time.Time]int

// A Bucket is the total recorded for one key during one second.
type Bucket struct {
	Second time.Time
	Count  int
}

// Count keeps per-second totals for a set of keys over a rolling retention window.
//
// Measurements for a second are collected until the second is over. Then they are appended
// to the key's history. Each history is a notes.Notes buffer sized to the retention window, so
// old seconds are evicted as new ones arrive.
type Count struct {
	startTime          time.Time
	retentionSeconds   int
	measurements       chan measurement
	retentionThreshold time.Time
	indexedThrough     time.Time
	ingestionMap       map[time.Time]keyBuckets
	history            map[string]*notes.Notes[Bucket]
	closed             chan struct{}
	mu                 sync.Mutex
	now                func() time.Time
	logger             *slog.Logger
}

func NewCount(retentionSeconds int, logger *slog.Logger) *Count {
	c := newCount(retentionSeconds, time.Now, logger)
	go c.run()
	return c
}

func newCount(retentionSeconds int, now func() time.Time, logger *slog.Logger) *Count {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Count{
		startTime:        now().Round(time.Second),
		retentionSeconds: retentionSeconds,
		// Large buffer to absorb writes while reading. This could still block if we record metrics
		// faster than we can ingest them.
		measurements: make(chan measurement, 100000),
		ingestionMap: map[time.Time]keyBuckets{},
		history:      map[string]*notes.Notes[Bucket]{},
		closed:       make(chan struct{}),
		now:          now,
		logger:       logger,
	}
	c.updateRetentionThreshold()
	return c
}

func (c *Count) Record(key string, value int) {
	m := measurement{
		key:   key,
		value: value,
		// NOTE: The Round() function rounds to the nearest increment so the actual value of second
		// may be in the future. This shouldn't matter, it just means we're clustering measurements
		// around the second to whose start they're the closest instead of in the second within
		// which they occurred.
		second: c.now().Round(time.Second),
	}

	start := time.Now()

	select {
	case c.measurements <- m:
		return
	default:
	}

	c.measurements <- m
	c.logger.Warn("metrics: Count.Record blocked", "blocked_for", time.Since(start))
}

// Data returns the retained totals per key. Seconds within the retention window for which a key
// has no data are reported as zero.
func (c *Count) Data() map[string]TimeBuckets {
	c.mu.Lock()
	threshold := c.retentionThreshold
	horizon := c.indexedThrough
	data := make(map[string]TimeBuckets, len(c.history))
	for key, buckets := range c.history {
		tb := make(TimeBuckets, buckets.Len())
		for b := range buckets.All() {
			if b.Second.After(threshold) {
				tb[b.Second] = b.Count
			}
		}
		data[key] = tb
	}
	c.mu.Unlock()

	earliest := threshold
	if c.startTime.After(earliest) {
		earliest = c.startTime
	}
	for t := earliest.Round(time.Second); t.Before(horizon); t = t.Add(time.Second) {
		if !t.After(threshold) {
			continue
		}
		for key := range data {
			if _, ok := data[key][t]; !ok {
				data[key][t] = 0
			}
		}
	}

	return data
}

func (c *Count) Close() {
	defer close(c.measurements)
	defer close(c.closed)
	c.closed <- struct{}{}
}

func (c *Count) updateRetentionThreshold() {
	c.retentionThreshold = c.now().Add(-time.Duration(c.retentionSeconds) * time.Second)
}

func (c *Count) onTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updateRetentionThreshold()
	c.indexMeasurements()
	c.expireOldData()
}

func (c *Count) run() {

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		// Ingestion, indexing, and expiration all touch the same maps, so they run on this one
		// goroutine. The first select blocks until any signal is available. The second select
		// makes sure a burst of buffered measurements never delays a tick or a close by more than
		// a single ingest.

		select {
		case m := <-c.measurements:
			c.ingestMeasurement(m)
		case <-ticker.C:
			c.onTick()
		case <-c.closed:
			return
		}

		select {
		case <-ticker.C:
			c.onTick()
		case <-c.closed:
			return
		default:
		}
	}
}

func (c *Count) ingestMeasurement(m measurement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Seconds that are already indexed are immutable, and anything older than the retention
	// period would be dropped anyway.
	if m.second.Before(c.retentionThreshold) || m.second.Before(c.indexedThrough) {
		return
	}

	countsByKey, ok := c.ingestionMap[m.second]
	if !ok {
		countsByKey = keyBuckets{}
		c.ingestionMap[m.second] = countsByKey
	}
	countsByKey[m.key] += m.value
}

// indexMeasurements moves every finished second from the ingestion map into the histories.
// A second is finished once it is more than a second behind the rounded current time, since
// Record rounds to the nearest second.
func (c *Count) indexMeasurements() {
	horizon := c.now().Round(time.Second).Add(-time.Second)

	finished := maps.Keys(c.ingestionMap)
	finished = slices.DeleteFunc(finished, func(second time.Time) bool {
		return !second.Before(horizon)
	})
	slices.SortFunc(finished, func(a, b time.Time) int {
		return a.Compare(b)
	})

	for _, second := range finished {
		for key, count := range c.ingestionMap[second] {
			buckets, ok := c.history[key]
			if !ok {
				buckets = notes.New[Bucket](c.retentionSeconds)
				c.history[key] = buckets
			}
			buckets.Add(Bucket{Second: second, Count: count})
		}
		delete(c.ingestionMap, second)
	}

	if horizon.After(c.indexedThrough) {
		c.indexedThrough = horizon
	}
}

func (c *Count) expireOldData() {
	for key, buckets := range c.history {
		newest, ok := buckets.Peek()
		if ok && newest.Second.After(c.retentionThreshold) {
			continue
		}
		delete(c.history, key)
	}
	for second := range c.ingestionMap {
		if second.After(c.retentionThreshold) {
			continue
		}
		delete(c.ingestionMap, second)
	}
}

type keyBuckets map[string]int

type measurement struct {
	key    string
	value  int
	second time.Time
}
