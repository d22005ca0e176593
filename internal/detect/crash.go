package detect

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"sentinel/internal/model"
)

// SystemCrash tracks per-station health from event status fields and from
// activity gaps. At most one crash period is open per station at any time.
type SystemCrash struct {
	mu                sync.Mutex
	minCrashDuration  time.Duration
	inactivityTimeout time.Duration
	stations          map[string]*stationHealth
	logger            *slog.Logger
}

type stationHealth struct {
	LastActivity time.Time
	LastStatus   string
	Open         *crashPeriod  // nil when healthy
	Closed       []crashPeriod // pruned by Cleanup
}

type crashPeriod struct {
	Start     time.Time
	End       time.Time
	CrashType string // ERROR, OFFLINE, MAINTENANCE, INACTIVITY
	Status    string // raw status that opened the period
}

const crashHistoryRetention = 48 * time.Hour

func NewSystemCrash(minCrashDuration, inactivityTimeout time.Duration, logger *slog.Logger) *SystemCrash {
	if minCrashDuration <= 0 {
		minCrashDuration = 30 * time.Second
	}
	if inactivityTimeout <= 0 {
		inactivityTimeout = 5 * time.Minute
	}
	return &SystemCrash{
		minCrashDuration:  minCrashDuration,
		inactivityTimeout: inactivityTimeout,
		stations:          make(map[string]*stationHealth),
		logger:            logger,
	}
}

// ProcessEvent updates the health state for the event's station. Every event
// refreshes last-activity regardless of its status. Error-class statuses
// open a crash period; a return to active status closes it and alerts when
// the outage lasted long enough.
func (d *SystemCrash) ProcessEvent(ev model.Event) []model.Alert {
	if ev.StationID == "" || ev.Timestamp.IsZero() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	st := d.stations[ev.StationID]
	if st == nil {
		st = &stationHealth{}
		d.stations[ev.StationID] = st
	}
	if ev.Timestamp.After(st.LastActivity) {
		st.LastActivity = ev.Timestamp
	}
	status := ev.Status
	if status != "" {
		st.LastStatus = status
	}

	switch {
	case isCrashStatus(status):
		if st.Open == nil {
			st.Open = &crashPeriod{
				Start:     ev.Timestamp,
				CrashType: crashTypeFor(status),
				Status:    status,
			}
		}
		return nil
	case status == model.StatusActive && st.Open != nil:
		period := *st.Open
		period.End = ev.Timestamp
		st.Open = nil
		duration := period.End.Sub(period.Start)
		if duration < 0 {
			duration = 0
		}
		st.Closed = append(st.Closed, period)
		// An inactivity period already alerted when the sweep opened it.
		if period.CrashType == "INACTIVITY" || duration < d.minCrashDuration {
			return nil
		}
		return []model.Alert{d.buildAlert(ev.StationID, period, duration)}
	}
	return nil
}

// CheckStationTimeouts flags stations whose last activity is older than the
// inactivity timeout. The synthetic period it opens suppresses repeat
// alerts until the station produces an event again.
func (d *SystemCrash) CheckStationTimeouts(now time.Time) []model.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	var alerts []model.Alert
	for stationID, st := range d.stations {
		if st.Open != nil || st.LastActivity.IsZero() {
			continue
		}
		gap := now.Sub(st.LastActivity)
		if gap < d.inactivityTimeout {
			continue
		}
		period := &crashPeriod{
			Start:     st.LastActivity,
			CrashType: "INACTIVITY",
			Status:    "Inactive",
		}
		st.Open = period
		if d.logger != nil {
			d.logger.Warn("station inactive",
				"station_id", stationID,
				"last_activity", st.LastActivity.Format(time.RFC3339),
				"gap_seconds", int(gap.Seconds()))
		}
		alerts = append(alerts, d.buildAlert(stationID, *period, gap))
	}
	return alerts
}

func (d *SystemCrash) buildAlert(stationID string, period crashPeriod, duration time.Duration) model.Alert {
	severity := model.SeverityMedium
	if duration > 300*time.Second {
		severity = model.SeverityHigh
	}
	at := period.End
	if at.IsZero() {
		at = period.Start
	}
	details := map[string]any{
		"error_type":      period.Status,
		"crash_type":      period.CrashType,
		"crash_timestamp": period.Start.Format(time.RFC3339),
	}
	if duration > 0 {
		details["duration_seconds"] = round1(duration.Seconds())
	}
	return model.Alert{
		Timestamp: at,
		EventID:   fmt.Sprintf("SC_%s_%s_%d", stationID, period.CrashType, period.Start.Unix()),
		Name:      model.EventSystemCrash,
		StationID: stationID,
		Severity:  severity,
		Details:   details,
	}
}

// ReliabilityReport aggregates closed crash periods per station.
func (d *SystemCrash) ReliabilityReport(now time.Time) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	perStation := make(map[string]any, len(d.stations))
	totalCrashes := 0
	for stationID, st := range d.stations {
		var downtime time.Duration
		byType := make(map[string]int)
		for _, p := range st.Closed {
			downtime += p.End.Sub(p.Start)
			byType[p.CrashType]++
		}
		totalCrashes += len(st.Closed)
		entry := map[string]any{
			"crash_count":      len(st.Closed),
			"downtime_seconds": round1(downtime.Seconds()),
			"crashes_by_type":  byType,
			"currently_down":   st.Open != nil,
		}
		if !st.LastActivity.IsZero() {
			entry["last_activity"] = st.LastActivity.Format(time.RFC3339)
		}
		perStation[stationID] = entry
	}
	return map[string]any{
		"report_timestamp": now.Format(time.RFC3339),
		"total_crashes":    totalCrashes,
		"stations":         perStation,
	}
}

// HealthOverview returns the current status of every known station sorted
// by id, for the API.
func (d *SystemCrash) HealthOverview(now time.Time) []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.stations))
	for id := range d.stations {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]map[string]any, 0, len(ids))
	for _, id := range ids {
		st := d.stations[id]
		health := "healthy"
		switch {
		case st.Open != nil:
			health = "down"
		case !st.LastActivity.IsZero() && now.Sub(st.LastActivity) >= d.inactivityTimeout:
			health = "stale"
		}
		entry := map[string]any{
			"station_id": id,
			"health":     health,
		}
		if st.LastStatus != "" {
			entry["last_status"] = st.LastStatus
		}
		if !st.LastActivity.IsZero() {
			entry["last_activity"] = st.LastActivity.Format(time.RFC3339)
		}
		out = append(out, entry)
	}
	return out
}

// Cleanup drops closed crash periods older than the retention window.
func (d *SystemCrash) Cleanup(now time.Time) {
	cutoff := now.Add(-crashHistoryRetention)
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, st := range d.stations {
		kept := st.Closed[:0]
		for _, p := range st.Closed {
			if !p.End.Before(cutoff) {
				kept = append(kept, p)
			}
		}
		st.Closed = kept
	}
}

func isCrashStatus(status string) bool {
	switch status {
	case model.StatusError, model.StatusOffline, model.StatusMaintenance:
		return true
	}
	return false
}

func crashTypeFor(status string) string {
	return strings.ToUpper(status)
}
