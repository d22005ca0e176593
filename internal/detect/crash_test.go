package detect

import (
	"testing"
	"time"

	"sentinel/internal/model"
)

func statusEvent(station, status string, at time.Time) model.Event {
	return model.Event{
		Kind:      model.KindPOS,
		StationID: station,
		Status:    status,
		Timestamp: at,
	}
}

func TestCrashErrorRecoveryAlert(t *testing.T) {
	d := NewSystemCrash(30*time.Second, 5*time.Minute, nil)
	base := time.Now().Add(-10 * time.Minute)

	if alerts := d.ProcessEvent(statusEvent("SCC3", model.StatusError, base)); len(alerts) != 0 {
		t.Fatalf("opening a crash period must not alert yet")
	}
	alerts := d.ProcessEvent(statusEvent("SCC3", model.StatusActive, base.Add(180*time.Second)))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert on recovery, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Name != model.EventSystemCrash {
		t.Fatalf("wrong event name %q", a.Name)
	}
	if a.Severity != model.SeverityMedium {
		t.Fatalf("180s outage should be MEDIUM, got %s", a.Severity)
	}
	if a.Details["crash_type"] != "ERROR" || a.Details["error_type"] != model.StatusError {
		t.Fatalf("wrong details: %v", a.Details)
	}
	if a.Details["duration_seconds"].(float64) != 180 {
		t.Fatalf("wrong duration: %v", a.Details["duration_seconds"])
	}
}

func TestCrashLongOutageHigh(t *testing.T) {
	d := NewSystemCrash(30*time.Second, 5*time.Minute, nil)
	base := time.Now().Add(-20 * time.Minute)
	d.ProcessEvent(statusEvent("SCC3", model.StatusOffline, base))
	alerts := d.ProcessEvent(statusEvent("SCC3", model.StatusActive, base.Add(10*time.Minute)))
	if len(alerts) != 1 || alerts[0].Severity != model.SeverityHigh {
		t.Fatalf("10 minute outage should be HIGH, got %v", alerts)
	}
}

func TestCrashShortBlipDiscarded(t *testing.T) {
	d := NewSystemCrash(30*time.Second, 5*time.Minute, nil)
	base := time.Now().Add(-time.Minute)
	d.ProcessEvent(statusEvent("SCC3", model.StatusError, base))
	if alerts := d.ProcessEvent(statusEvent("SCC3", model.StatusActive, base.Add(10*time.Second))); len(alerts) != 0 {
		t.Fatalf("10s blip must be discarded, got %v", alerts)
	}
}

func TestCrashSingleOpenPeriod(t *testing.T) {
	d := NewSystemCrash(30*time.Second, 5*time.Minute, nil)
	base := time.Now().Add(-10 * time.Minute)
	d.ProcessEvent(statusEvent("SCC3", model.StatusError, base))
	// More error statuses while down must not open a second period; the
	// eventual recovery measures from the first one.
	d.ProcessEvent(statusEvent("SCC3", model.StatusOffline, base.Add(time.Minute)))
	d.ProcessEvent(statusEvent("SCC3", model.StatusError, base.Add(2*time.Minute)))
	alerts := d.ProcessEvent(statusEvent("SCC3", model.StatusActive, base.Add(3*time.Minute)))
	if len(alerts) != 1 {
		t.Fatalf("expected exactly 1 alert, got %d", len(alerts))
	}
	if alerts[0].Details["duration_seconds"].(float64) != 180 {
		t.Fatalf("duration must be measured from first error, got %v", alerts[0].Details["duration_seconds"])
	}
}

func TestCrashInactivitySweep(t *testing.T) {
	d := NewSystemCrash(30*time.Second, 5*time.Minute, nil)
	base := time.Now().Add(-time.Hour)
	d.ProcessEvent(statusEvent("SCC4", model.StatusActive, base))

	alerts := d.CheckStationTimeouts(base.Add(10 * time.Minute))
	if len(alerts) != 1 {
		t.Fatalf("expected inactivity alert, got %d", len(alerts))
	}
	if alerts[0].Details["crash_type"] != "INACTIVITY" {
		t.Fatalf("expected INACTIVITY, got %v", alerts[0].Details["crash_type"])
	}
	// The synthetic open period suppresses repeats.
	if again := d.CheckStationTimeouts(base.Add(15 * time.Minute)); len(again) != 0 {
		t.Fatalf("repeated sweep must not re-alert, got %d", len(again))
	}
	// Fresh activity clears the period without a recovery alert.
	if rec := d.ProcessEvent(statusEvent("SCC4", model.StatusActive, base.Add(20*time.Minute))); len(rec) != 0 {
		t.Fatalf("recovery from inactivity must be silent, got %v", rec)
	}
	// And the sweep stays quiet while the station is fresh.
	if after := d.CheckStationTimeouts(base.Add(21 * time.Minute)); len(after) != 0 {
		t.Fatalf("active station must not be flagged, got %d", len(after))
	}
}

func TestCrashSweepBeforeTimeoutQuiet(t *testing.T) {
	d := NewSystemCrash(30*time.Second, 5*time.Minute, nil)
	base := time.Now().Add(-time.Hour)
	d.ProcessEvent(statusEvent("SCC4", model.StatusActive, base))
	if alerts := d.CheckStationTimeouts(base.Add(2 * time.Minute)); len(alerts) != 0 {
		t.Fatalf("station within the inactivity window must not alert")
	}
}

func TestCrashHealthOverview(t *testing.T) {
	d := NewSystemCrash(30*time.Second, 5*time.Minute, nil)
	base := time.Now().Add(-time.Hour)
	d.ProcessEvent(statusEvent("SCC1", model.StatusActive, base))
	d.ProcessEvent(statusEvent("SCC2", model.StatusError, base))

	overview := d.HealthOverview(base.Add(time.Minute))
	if len(overview) != 2 {
		t.Fatalf("expected 2 stations, got %d", len(overview))
	}
	if overview[0]["station_id"] != "SCC1" || overview[0]["health"] != "healthy" {
		t.Fatalf("unexpected first entry: %v", overview[0])
	}
	if overview[1]["station_id"] != "SCC2" || overview[1]["health"] != "down" {
		t.Fatalf("unexpected second entry: %v", overview[1])
	}
}
