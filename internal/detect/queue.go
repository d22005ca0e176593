package detect

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentinel/internal/model"
)

// QueueMonitor watches queue-camera snapshots for long queues, long waits
// and staffing pressure, plus per-customer session wait tracking.
type QueueMonitor struct {
	mu        sync.Mutex
	longQueue int
	longWait  time.Duration
	history   map[string][]queueSample // station -> samples, pruned to 2h
	sessions  map[string]*customerSession
	logger    *slog.Logger
}

type queueSample struct {
	At            time.Time
	CustomerCount int
	AvgDwellTime  *float64
}

type customerSession struct {
	StationID    string
	EnteredAt    time.Time
	ServiceStart time.Time
}

const queueHistoryRetention = 2 * time.Hour

func NewQueueMonitor(longQueueThreshold int, longWaitThreshold time.Duration, logger *slog.Logger) *QueueMonitor {
	if longQueueThreshold <= 0 {
		longQueueThreshold = 5
	}
	if longWaitThreshold <= 0 {
		longWaitThreshold = 300 * time.Second
	}
	return &QueueMonitor{
		longQueue: longQueueThreshold,
		longWait:  longWaitThreshold,
		history:   make(map[string][]queueSample),
		sessions:  make(map[string]*customerSession),
		logger:    logger,
	}
}

// ProcessQueue runs all four independent checks on one snapshot; several
// may fire at once.
func (d *QueueMonitor) ProcessQueue(ev model.Event) []model.Alert {
	if ev.Queue == nil || ev.StationID == "" || ev.Timestamp.IsZero() {
		return nil
	}
	station := ev.StationID
	count := ev.Queue.CustomerCount
	dwell := ev.Queue.AvgDwellTime

	d.mu.Lock()
	defer d.mu.Unlock()

	sample := queueSample{At: ev.Timestamp, CustomerCount: count, AvgDwellTime: dwell}
	samples := append(d.history[station], sample)
	d.history[station] = pruneSamples(samples, ev.Timestamp.Add(-queueHistoryRetention))

	var alerts []model.Alert

	if count >= d.longQueue {
		severity := model.SeverityMedium
		if count >= 2*d.longQueue {
			severity = model.SeverityHigh
		}
		alerts = append(alerts, model.Alert{
			Timestamp: ev.Timestamp,
			EventID:   fmt.Sprintf("LQ_%s_%d", station, ev.Timestamp.Unix()),
			Name:      model.EventLongQueue,
			StationID: station,
			Severity:  severity,
			Details:   map[string]any{"num_of_customers": count},
		})
	}

	if dwell != nil && *dwell >= d.longWait.Seconds() {
		severity := model.SeverityMedium
		if *dwell > 600 {
			severity = model.SeverityHigh
		}
		alerts = append(alerts, model.Alert{
			Timestamp: ev.Timestamp,
			EventID:   fmt.Sprintf("LWT_%s_%d", station, ev.Timestamp.Unix()),
			Name:      model.EventLongWait,
			StationID: station,
			Severity:  severity,
			Details: map[string]any{
				"wait_time_seconds":     round1(*dwell),
				"num_customers_waiting": count,
			},
		})
	}

	if count >= 4 && dwell != nil && *dwell >= 180 {
		alerts = append(alerts, model.Alert{
			Timestamp: ev.Timestamp,
			EventID:   fmt.Sprintf("SN_%s_%d", station, ev.Timestamp.Unix()),
			Name:      model.EventStaffingNeeds,
			StationID: station,
			Details: map[string]any{
				"Staff_type":     "Cashier",
				"reason":         "High queue length with slow service",
				"customer_count": count,
				"avg_dwell_time": *dwell,
			},
		})
	}

	if alert, ok := d.stationActionNeeded(station, ev.Timestamp); ok {
		alerts = append(alerts, alert)
	}
	return alerts
}

// stationActionNeeded applies the trend heuristic over the last 5 samples.
// Caller holds the lock.
func (d *QueueMonitor) stationActionNeeded(station string, at time.Time) (model.Alert, bool) {
	samples := d.history[station]
	if len(samples) > 5 {
		samples = samples[len(samples)-5:]
	}
	if len(samples) < 3 {
		return model.Alert{}, false
	}
	sum := 0
	for _, s := range samples {
		sum += s.CustomerCount
	}
	mean := float64(sum) / float64(len(samples))
	if mean < float64(d.longQueue) {
		return model.Alert{}, false
	}
	return model.Alert{
		Timestamp: at,
		EventID:   fmt.Sprintf("CSA_%s_%d", station, at.Unix()),
		Name:      model.EventStationAction,
		StationID: station,
		Details: map[string]any{
			"Action":             "Open",
			"reason":             "Consistently high queue volume",
			"avg_customer_count": round1(mean),
		},
	}, true
}

// CustomerEntry starts a session for customer-level wait tracking.
func (d *QueueMonitor) CustomerEntry(customerID, stationID string, at time.Time) {
	if customerID == "" {
		return
	}
	d.mu.Lock()
	d.sessions[customerID] = &customerSession{StationID: stationID, EnteredAt: at}
	d.mu.Unlock()
}

// ServiceStart marks the queue-to-service transition.
func (d *QueueMonitor) ServiceStart(customerID string, at time.Time) {
	d.mu.Lock()
	if s, ok := d.sessions[customerID]; ok {
		s.ServiceStart = at
	}
	d.mu.Unlock()
}

// CustomerExit ends the session and alerts when the total time in queue
// exceeded the wait threshold. This is a second path to the Long Wait Time
// alert, deliberately not deduplicated against the snapshot path.
func (d *QueueMonitor) CustomerExit(customerID string, at time.Time) []model.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[customerID]
	if !ok {
		return nil
	}
	delete(d.sessions, customerID)

	total := at.Sub(s.EnteredAt)
	if total < d.longWait {
		return nil
	}
	severity := model.SeverityMedium
	if total > 600*time.Second {
		severity = model.SeverityHigh
	}
	return []model.Alert{{
		Timestamp:  at,
		EventID:    fmt.Sprintf("LW_%s_%s_%d", s.StationID, customerID, at.Unix()),
		Name:       model.EventLongWait,
		StationID:  s.StationID,
		CustomerID: customerID,
		Severity:   severity,
		Details:    map[string]any{"wait_time_seconds": round1(total.Seconds())},
	}}
}

// Analytics summarizes recent queue behavior at one station.
func (d *QueueMonitor) Analytics(stationID string, horizon time.Duration, now time.Time) map[string]any {
	cutoff := now.Add(-horizon)
	d.mu.Lock()
	defer d.mu.Unlock()

	var counts []int
	var dwells []float64
	for _, s := range d.history[stationID] {
		if s.At.Before(cutoff) {
			continue
		}
		counts = append(counts, s.CustomerCount)
		if s.AvgDwellTime != nil {
			dwells = append(dwells, *s.AvgDwellTime)
		}
	}
	if len(counts) == 0 {
		return map[string]any{"station_id": stationID, "observations": 0}
	}
	sum, maxCount, longIncidents := 0, 0, 0
	for _, c := range counts {
		sum += c
		if c > maxCount {
			maxCount = c
		}
		if c >= d.longQueue {
			longIncidents++
		}
	}
	avgDwell := 0.0
	for _, v := range dwells {
		avgDwell += v
	}
	if len(dwells) > 0 {
		avgDwell /= float64(len(dwells))
	}
	return map[string]any{
		"station_id":             stationID,
		"observations":           len(counts),
		"avg_customer_count":     round1(float64(sum) / float64(len(counts))),
		"max_customer_count":     maxCount,
		"avg_dwell_time_seconds": round1(avgDwell),
		"long_queue_incidents":   longIncidents,
	}
}

// CurrentStatus reports the latest sample per station.
func (d *QueueMonitor) CurrentStatus(now time.Time) map[string]map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string]map[string]any, len(d.history))
	for station, samples := range d.history {
		if len(samples) == 0 {
			continue
		}
		latest := samples[len(samples)-1]
		status := "NORMAL"
		if latest.CustomerCount >= d.longQueue {
			status = "LONG"
		}
		entry := map[string]any{
			"customer_count":          latest.CustomerCount,
			"last_update_seconds_ago": round1(now.Sub(latest.At).Seconds()),
			"queue_status":            status,
		}
		if latest.AvgDwellTime != nil {
			entry["average_dwell_time"] = *latest.AvgDwellTime
		}
		out[station] = entry
	}
	return out
}

// Cleanup drops stale history and abandoned sessions.
func (d *QueueMonitor) Cleanup(now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)
	d.mu.Lock()
	defer d.mu.Unlock()
	for station, samples := range d.history {
		kept := pruneSamples(samples, cutoff)
		if len(kept) == 0 {
			delete(d.history, station)
			continue
		}
		d.history[station] = kept
	}
	for id, s := range d.sessions {
		if s.EnteredAt.Before(cutoff) {
			delete(d.sessions, id)
		}
	}
}

func pruneSamples(samples []queueSample, cutoff time.Time) []queueSample {
	kept := samples[:0]
	for _, s := range samples {
		if !s.At.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	return kept
}
