package correlate

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"sentinel/internal/model"
)

// maxEventsPerKey caps each station/customer buffer independent of the
// time-based pruning done by Cleanup.
const maxEventsPerKey = 100

// Correlator indexes every ingested event by station and customer so
// related-event queries stay proportional to the window, not total history.
type Correlator struct {
	mu         sync.Mutex
	window     time.Duration
	byStation  map[string][]*entry
	byCustomer map[string][]*entry
	logger     *slog.Logger
}

type entry struct {
	ev model.Event
}

// ActivitySummary counts recent events at one station by stream kind.
type ActivitySummary struct {
	StationID string                   `json:"station_id"`
	Events    int                      `json:"events"`
	ByKind    map[model.StreamKind]int `json:"by_kind"`
}

func New(window time.Duration, logger *slog.Logger) *Correlator {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &Correlator{
		window:     window,
		byStation:  make(map[string][]*entry),
		byCustomer: make(map[string][]*entry),
		logger:     logger,
	}
}

// AddEvent indexes ev under its station and customer keys. Events without
// a usable timestamp are dropped with a warning, never an error.
func (c *Correlator) AddEvent(ev model.Event) {
	if ev.Timestamp.IsZero() {
		if c.logger != nil {
			c.logger.Warn("event missing timestamp, skipping correlation", "kind", ev.Kind, "station_id", ev.StationID)
		}
		return
	}
	e := &entry{ev: ev}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ev.StationID != "" {
		c.byStation[ev.StationID] = appendCapped(c.byStation[ev.StationID], e)
	}
	if ev.CustomerID != "" {
		c.byCustomer[ev.CustomerID] = appendCapped(c.byCustomer[ev.CustomerID], e)
	}
}

func appendCapped(buf []*entry, e *entry) []*entry {
	buf = append(buf, e)
	if len(buf) > maxEventsPerKey {
		copy(buf, buf[len(buf)-maxEventsPerKey:])
		buf = buf[:maxEventsPerKey]
	}
	return buf
}

// FindRelated returns all indexed events within the correlation window of
// ref, matched on station or customer, deduplicated, excluding ref itself,
// sorted ascending by timestamp. An optional kind filter narrows results.
func (c *Correlator) FindRelated(ref model.Event, kinds ...model.StreamKind) []model.Event {
	if ref.Timestamp.IsZero() {
		return nil
	}
	start := ref.Timestamp.Add(-c.window)
	end := ref.Timestamp.Add(c.window)

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[*entry]struct{})
	var out []model.Event
	collect := func(buf []*entry) {
		for _, e := range buf {
			if _, dup := seen[e]; dup {
				continue
			}
			if isSameEvent(e.ev, ref) {
				continue
			}
			if e.ev.Timestamp.Before(start) || e.ev.Timestamp.After(end) {
				continue
			}
			if len(kinds) > 0 && !kindMatches(e.ev.Kind, kinds) {
				continue
			}
			seen[e] = struct{}{}
			out = append(out, e.ev)
		}
	}
	if ref.StationID != "" {
		collect(c.byStation[ref.StationID])
	}
	if ref.CustomerID != "" {
		collect(c.byCustomer[ref.CustomerID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func isSameEvent(a, b model.Event) bool {
	return a.Kind == b.Kind && a.StationID == b.StationID && a.CustomerID == b.CustomerID && a.Timestamp.Equal(b.Timestamp)
}

func kindMatches(k model.StreamKind, kinds []model.StreamKind) bool {
	for _, want := range kinds {
		if k == want {
			return true
		}
	}
	return false
}

// StationActivity summarizes recent traffic at a station.
func (c *Correlator) StationActivity(stationID string, horizon time.Duration, now time.Time) ActivitySummary {
	cutoff := now.Add(-horizon)
	summary := ActivitySummary{StationID: stationID, ByKind: make(map[model.StreamKind]int)}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.byStation[stationID] {
		if e.ev.Timestamp.Before(cutoff) {
			continue
		}
		summary.Events++
		summary.ByKind[e.ev.Kind]++
	}
	return summary
}

// Cleanup drops entries older than the retention horizon and removes keys
// whose buffers end up empty. Safe to call concurrently with AddEvent.
func (c *Correlator) Cleanup(retention time.Duration, now time.Time) {
	cutoff := now.Add(-retention)
	c.mu.Lock()
	defer c.mu.Unlock()
	pruneIndex(c.byStation, cutoff)
	pruneIndex(c.byCustomer, cutoff)
}

func pruneIndex(index map[string][]*entry, cutoff time.Time) {
	for key, buf := range index {
		kept := buf[:0]
		for _, e := range buf {
			if !e.ev.Timestamp.Before(cutoff) {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(index, key)
			continue
		}
		index[key] = kept
	}
}
