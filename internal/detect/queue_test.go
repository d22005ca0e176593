package detect

import (
	"testing"
	"time"

	"sentinel/internal/model"
)

func queueEvent(station string, count int, dwell *float64, at time.Time) model.Event {
	return model.Event{
		Kind:      model.KindQueue,
		StationID: station,
		Timestamp: at,
		Queue:     &model.QueuePayload{CustomerCount: count, AvgDwellTime: dwell},
	}
}

func f(v float64) *float64 { return &v }

func hasAlert(alerts []model.Alert, name string) bool {
	for _, a := range alerts {
		if a.Name == name {
			return true
		}
	}
	return false
}

func TestQueueBelowThresholdQuiet(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	if alerts := d.ProcessQueue(queueEvent("SCC1", 3, f(60), time.Now())); len(alerts) != 0 {
		t.Fatalf("short queue should be quiet, got %v", alerts)
	}
}

func TestQueueLongQueueSeverity(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	alerts := d.ProcessQueue(queueEvent("SCC1", 6, nil, time.Now()))
	if !hasAlert(alerts, model.EventLongQueue) {
		t.Fatalf("expected long queue alert, got %v", alerts)
	}
	if alerts[0].Severity != model.SeverityMedium {
		t.Fatalf("6 customers should be MEDIUM, got %s", alerts[0].Severity)
	}
	if alerts[0].Details["num_of_customers"] != 6 {
		t.Fatalf("wrong customer count: %v", alerts[0].Details)
	}

	d2 := NewQueueMonitor(5, 300*time.Second, nil)
	alerts = d2.ProcessQueue(queueEvent("SCC1", 10, nil, time.Now()))
	if alerts[0].Severity != model.SeverityHigh {
		t.Fatalf("double the threshold should be HIGH, got %s", alerts[0].Severity)
	}
}

func TestQueueLongQueueWithWaitJustUnder(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	alerts := d.ProcessQueue(queueEvent("SCC1", 6, f(250), time.Now()))

	longQueues := 0
	for _, a := range alerts {
		if a.Name == model.EventLongQueue {
			longQueues++
			if a.Severity != model.SeverityMedium {
				t.Fatalf("6 customers should be MEDIUM, got %s", a.Severity)
			}
		}
	}
	if longQueues != 1 {
		t.Fatalf("expected exactly 1 long queue alert, got %d: %v", longQueues, alerts)
	}
	if hasAlert(alerts, model.EventLongWait) {
		t.Fatalf("250s dwell is under the wait threshold, got %v", alerts)
	}
	// 6 customers at 250s dwell also trips the staffing check; the four
	// snapshot checks fire independently.
	if !hasAlert(alerts, model.EventStaffingNeeds) {
		t.Fatalf("expected staffing alert alongside, got %v", alerts)
	}
}

func TestQueueLongWaitFromSnapshot(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	alerts := d.ProcessQueue(queueEvent("SCC1", 2, f(420), time.Now()))
	if !hasAlert(alerts, model.EventLongWait) {
		t.Fatalf("expected long wait alert, got %v", alerts)
	}
	a := alerts[0]
	if a.Severity != model.SeverityMedium {
		t.Fatalf("420s should be MEDIUM, got %s", a.Severity)
	}
	if a.Details["wait_time_seconds"] != 420.0 || a.Details["num_customers_waiting"] != 2 {
		t.Fatalf("wrong details: %v", a.Details)
	}

	alerts = d.ProcessQueue(queueEvent("SCC1", 2, f(700), time.Now()))
	if alerts[0].Severity != model.SeverityHigh {
		t.Fatalf("700s should be HIGH, got %s", alerts[0].Severity)
	}
}

func TestQueueStaffingNeeds(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	alerts := d.ProcessQueue(queueEvent("SCC1", 4, f(200), time.Now()))
	if !hasAlert(alerts, model.EventStaffingNeeds) {
		t.Fatalf("expected staffing alert, got %v", alerts)
	}
	for _, a := range alerts {
		if a.Name == model.EventStaffingNeeds {
			if a.Details["Staff_type"] != "Cashier" {
				t.Fatalf("wrong staff type: %v", a.Details)
			}
		}
	}
}

func TestQueueStationActionTrend(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	base := time.Now().Add(-time.Minute)

	// Two samples are not enough history for the trend check.
	d.ProcessQueue(queueEvent("SCC1", 7, nil, base))
	alerts := d.ProcessQueue(queueEvent("SCC1", 8, nil, base.Add(10*time.Second)))
	if hasAlert(alerts, model.EventStationAction) {
		t.Fatalf("trend check needs 3 samples")
	}

	alerts = d.ProcessQueue(queueEvent("SCC1", 9, nil, base.Add(20*time.Second)))
	if !hasAlert(alerts, model.EventStationAction) {
		t.Fatalf("expected station action alert, got %v", alerts)
	}
	for _, a := range alerts {
		if a.Name == model.EventStationAction && a.Details["Action"] != "Open" {
			t.Fatalf("wrong action: %v", a.Details)
		}
	}
}

func TestQueueMultipleAlertsOneSnapshot(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	alerts := d.ProcessQueue(queueEvent("SCC1", 8, f(360), time.Now()))
	if !hasAlert(alerts, model.EventLongQueue) || !hasAlert(alerts, model.EventLongWait) || !hasAlert(alerts, model.EventStaffingNeeds) {
		t.Fatalf("expected three independent alerts, got %v", alerts)
	}
}

func TestQueueCustomerSession(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	base := time.Now().Add(-20 * time.Minute)

	d.CustomerEntry("C056", "SCC1", base)
	d.ServiceStart("C056", base.Add(6*time.Minute))
	alerts := d.CustomerExit("C056", base.Add(11*time.Minute))
	if len(alerts) != 1 || alerts[0].Name != model.EventLongWait {
		t.Fatalf("expected long wait on exit, got %v", alerts)
	}
	if alerts[0].Severity != model.SeverityHigh {
		t.Fatalf("11 minutes should be HIGH, got %s", alerts[0].Severity)
	}
	if alerts[0].CustomerID != "C056" {
		t.Fatalf("alert should carry the customer id")
	}

	// Quick visit stays quiet.
	d.CustomerEntry("C057", "SCC1", base)
	if alerts := d.CustomerExit("C057", base.Add(time.Minute)); len(alerts) != 0 {
		t.Fatalf("short session must not alert, got %v", alerts)
	}
}

func TestQueueAnalytics(t *testing.T) {
	d := NewQueueMonitor(5, 300*time.Second, nil)
	now := time.Now()
	d.ProcessQueue(queueEvent("SCC1", 2, f(60), now.Add(-2*time.Minute)))
	d.ProcessQueue(queueEvent("SCC1", 6, f(120), now.Add(-time.Minute)))
	report := d.Analytics("SCC1", time.Hour, now)
	if report["observations"] != 2 || report["max_customer_count"] != 6 || report["long_queue_incidents"] != 1 {
		t.Fatalf("unexpected analytics: %v", report)
	}
}
