package correlate

import (
	"fmt"
	"testing"
	"time"

	"sentinel/internal/model"
)

func stationEvent(kind model.StreamKind, station string, at time.Time) model.Event {
	return model.Event{Kind: kind, StationID: station, Timestamp: at}
}

func TestFindRelatedByStation(t *testing.T) {
	c := New(30*time.Second, nil)
	base := time.Now()

	c.AddEvent(stationEvent(model.KindRFID, "SCC1", base.Add(-10*time.Second)))
	c.AddEvent(stationEvent(model.KindPOS, "SCC1", base))
	c.AddEvent(stationEvent(model.KindRFID, "SCC1", base.Add(-2*time.Minute))) // outside window
	c.AddEvent(stationEvent(model.KindRFID, "SCC2", base))                     // other station

	ref := stationEvent(model.KindPOS, "SCC1", base)
	related := c.FindRelated(ref)
	if len(related) != 1 {
		t.Fatalf("expected 1 related event, got %d", len(related))
	}
	if related[0].Kind != model.KindRFID {
		t.Fatalf("expected the rfid event, got %v", related[0].Kind)
	}
}

func TestFindRelatedKindFilter(t *testing.T) {
	c := New(30*time.Second, nil)
	base := time.Now()
	c.AddEvent(stationEvent(model.KindRFID, "SCC1", base.Add(-5*time.Second)))
	c.AddEvent(stationEvent(model.KindQueue, "SCC1", base.Add(-5*time.Second)))

	ref := stationEvent(model.KindPOS, "SCC1", base)
	related := c.FindRelated(ref, model.KindQueue)
	if len(related) != 1 || related[0].Kind != model.KindQueue {
		t.Fatalf("kind filter failed: %v", related)
	}
}

func TestFindRelatedByCustomerDeduplicated(t *testing.T) {
	c := New(30*time.Second, nil)
	base := time.Now()
	// Indexed under both station and customer; must come back once.
	both := model.Event{Kind: model.KindPOS, StationID: "SCC1", CustomerID: "C001", Timestamp: base.Add(-5 * time.Second)}
	c.AddEvent(both)

	ref := model.Event{Kind: model.KindRFID, StationID: "SCC1", CustomerID: "C001", Timestamp: base}
	related := c.FindRelated(ref)
	if len(related) != 1 {
		t.Fatalf("expected deduplicated result, got %d", len(related))
	}
}

func TestFindRelatedSorted(t *testing.T) {
	c := New(30*time.Second, nil)
	base := time.Now()
	c.AddEvent(stationEvent(model.KindRFID, "SCC1", base.Add(-5*time.Second)))
	c.AddEvent(stationEvent(model.KindRFID, "SCC1", base.Add(-20*time.Second)))
	c.AddEvent(stationEvent(model.KindRFID, "SCC1", base.Add(-1*time.Second)))

	ref := stationEvent(model.KindPOS, "SCC1", base)
	related := c.FindRelated(ref)
	if len(related) != 3 {
		t.Fatalf("expected 3 events, got %d", len(related))
	}
	for i := 1; i < len(related); i++ {
		if related[i].Timestamp.Before(related[i-1].Timestamp) {
			t.Fatalf("results not sorted ascending")
		}
	}
}

func TestZeroTimestampDropped(t *testing.T) {
	c := New(30*time.Second, nil)
	c.AddEvent(model.Event{Kind: model.KindRFID, StationID: "SCC1"})
	ref := stationEvent(model.KindPOS, "SCC1", time.Now())
	if related := c.FindRelated(ref); len(related) != 0 {
		t.Fatalf("zero-timestamp event must not be indexed")
	}
}

func TestPerKeyCap(t *testing.T) {
	c := New(30*time.Second, nil)
	base := time.Now()
	for i := 0; i < maxEventsPerKey+50; i++ {
		c.AddEvent(stationEvent(model.KindRFID, "SCC1", base.Add(time.Duration(i)*time.Millisecond)))
	}
	if n := len(c.byStation["SCC1"]); n != maxEventsPerKey {
		t.Fatalf("expected buffer capped at %d, got %d", maxEventsPerKey, n)
	}
	// Oldest entries are the ones evicted.
	first := c.byStation["SCC1"][0].ev.Timestamp
	if !first.Equal(base.Add(50 * time.Millisecond)) {
		t.Fatalf("expected oldest surviving entry at +50ms, got %v", first.Sub(base))
	}
}

func TestCleanupRemovesEmptyKeys(t *testing.T) {
	c := New(30*time.Second, nil)
	now := time.Now()
	for i := 0; i < 3; i++ {
		c.AddEvent(stationEvent(model.KindRFID, fmt.Sprintf("SCC%d", i), now.Add(-3*time.Hour)))
	}
	c.AddEvent(stationEvent(model.KindRFID, "SCC9", now))

	c.Cleanup(2*time.Hour, now)
	if len(c.byStation) != 1 {
		t.Fatalf("expected stale keys deleted, got %d keys", len(c.byStation))
	}
	if _, ok := c.byStation["SCC9"]; !ok {
		t.Fatalf("fresh key must survive cleanup")
	}
}

func TestStationActivity(t *testing.T) {
	c := New(30*time.Second, nil)
	now := time.Now()
	c.AddEvent(stationEvent(model.KindRFID, "SCC1", now.Add(-time.Minute)))
	c.AddEvent(stationEvent(model.KindPOS, "SCC1", now.Add(-30*time.Second)))
	c.AddEvent(stationEvent(model.KindRFID, "SCC1", now.Add(-2*time.Hour)))

	summary := c.StationActivity("SCC1", time.Hour, now)
	if summary.Events != 2 || summary.ByKind[model.KindRFID] != 1 || summary.ByKind[model.KindPOS] != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
