package metrics

import (
	"sync"
	"time"

	"sentinel/internal/model"
)

// StationActivity is a rolling per-station snapshot updated on every
// dispatched event.
type StationActivity struct {
	StationID     string                     `json:"station_id"`
	EventsByKind  map[model.StreamKind]int64 `json:"events_by_kind"`
	AlertsByName  map[string]int64           `json:"alerts_by_name"`
	TotalEvents   int64                      `json:"total_events"`
	TotalAlerts   int64                      `json:"total_alerts"`
	LastEventTime time.Time                  `json:"last_event_time"`
	LastAlertTime time.Time                  `json:"last_alert_time,omitempty"`
}

type Store struct {
	mu        sync.RWMutex
	byStation map[string]*StationActivity
	updatedAt map[string]time.Time
	limit     int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byStation: make(map[string]*StationActivity),
		updatedAt: make(map[string]time.Time),
		limit:     limit,
	}
}

// RecordEvent counts one dispatched event for the station.
func (s *Store) RecordEvent(stationID string, kind model.StreamKind, at time.Time) {
	if stationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	act := s.activity(stationID)
	act.EventsByKind[kind]++
	act.TotalEvents++
	if at.After(act.LastEventTime) {
		act.LastEventTime = at
	}
	s.touch(stationID)
}

// RecordAlert counts one generated alert against the station it names.
func (s *Store) RecordAlert(alert model.Alert) {
	if alert.StationID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	act := s.activity(alert.StationID)
	act.AlertsByName[alert.Name]++
	act.TotalAlerts++
	if alert.Timestamp.After(act.LastAlertTime) {
		act.LastAlertTime = alert.Timestamp
	}
	s.touch(alert.StationID)
}

func (s *Store) activity(stationID string) *StationActivity {
	act, ok := s.byStation[stationID]
	if !ok {
		act = &StationActivity{
			StationID:    stationID,
			EventsByKind: make(map[model.StreamKind]int64),
			AlertsByName: make(map[string]int64),
		}
		s.byStation[stationID] = act
	}
	return act
}

func (s *Store) touch(stationID string) {
	s.updatedAt[stationID] = time.Now().UTC()
	if len(s.byStation) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(stationID string) (StationActivity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	act, ok := s.byStation[stationID]
	if !ok {
		return StationActivity{}, false
	}
	return cloneActivity(act), true
}

func (s *Store) GetAll() map[string]StationActivity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]StationActivity, len(s.byStation))
	for stationID, act := range s.byStation {
		out[stationID] = cloneActivity(act)
	}
	return out
}

func cloneActivity(act *StationActivity) StationActivity {
	out := *act
	out.EventsByKind = make(map[model.StreamKind]int64, len(act.EventsByKind))
	for k, v := range act.EventsByKind {
		out.EventsByKind[k] = v
	}
	out.AlertsByName = make(map[string]int64, len(act.AlertsByName))
	for k, v := range act.AlertsByName {
		out.AlertsByName[k] = v
	}
	return out
}

func (s *Store) evictOldest() {
	var oldestStation string
	var oldest time.Time
	for station, ts := range s.updatedAt {
		if oldestStation == "" || ts.Before(oldest) {
			oldestStation = station
			oldest = ts
		}
	}
	if oldestStation != "" {
		delete(s.byStation, oldestStation)
		delete(s.updatedAt, oldestStation)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStation = make(map[string]*StationActivity)
	s.updatedAt = make(map[string]time.Time)
}
