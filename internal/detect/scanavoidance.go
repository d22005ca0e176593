package detect

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"sentinel/internal/model"
)

// ScanAvoidance tracks items seen by RFID inside the scan area and flags
// the ones that leave without a matching POS scan.
type ScanAvoidance struct {
	mu          sync.Mutex
	scanTimeout time.Duration
	inArea      map[string]map[string]presenceRecord // station -> sku -> record
	recentScans map[string][]scanRecord              // station -> scans, pruned to 1h
	dedupe      *dedupeCache
	logger      *slog.Logger
}

type presenceRecord struct {
	SKU       string
	EnteredAt time.Time
}

type scanRecord struct {
	SKU string
	At  time.Time
}

// UnscannedItem describes one item currently inside a scan area without a
// POS scan, for the station-summary report.
type UnscannedItem struct {
	SKU           string  `json:"sku"`
	EntryTime     string  `json:"entry_time"`
	TimeInAreaSec float64 `json:"time_in_area_seconds"`
}

const scanRetention = time.Hour

func NewScanAvoidance(scanTimeout time.Duration, dedupeSize int, logger *slog.Logger) *ScanAvoidance {
	if scanTimeout <= 0 {
		scanTimeout = 60 * time.Second
	}
	return &ScanAvoidance{
		scanTimeout: scanTimeout,
		inArea:      make(map[string]map[string]presenceRecord),
		recentScans: make(map[string][]scanRecord),
		dedupe:      newDedupeCache(dedupeSize),
		logger:      logger,
	}
}

// ProcessRFID advances the per-(station,sku) presence state machine and
// returns an alert on an unscanned exit.
func (d *ScanAvoidance) ProcessRFID(ev model.Event) []model.Alert {
	if ev.RFID == nil || ev.StationID == "" || ev.RFID.SKU == "" || ev.Timestamp.IsZero() {
		return nil
	}
	station, sku := ev.StationID, ev.RFID.SKU

	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.RFID.Location {
	case model.LocationInScanArea:
		items := d.inArea[station]
		if items == nil {
			items = make(map[string]presenceRecord)
			d.inArea[station] = items
		}
		if _, open := items[sku]; !open {
			items[sku] = presenceRecord{SKU: sku, EnteredAt: ev.Timestamp}
		}
	case model.LocationOutOfArea, model.LocationOutScanArea:
		items := d.inArea[station]
		rec, open := items[sku]
		if !open {
			return nil
		}
		delete(items, sku)
		if d.wasScanned(station, sku, rec.EnteredAt, ev.Timestamp) {
			return nil
		}
		key := fmt.Sprintf("%s|%s|%s", station, sku, ev.Timestamp.Format(time.RFC3339))
		if d.dedupe.Seen(key) {
			return nil
		}
		dwell := ev.Timestamp.Sub(rec.EnteredAt)
		return []model.Alert{d.buildAlert(station, sku, rec.EnteredAt, dwell, "")}
	}
	return nil
}

// ProcessPOS records a scan and pre-emptively closes any open presence
// record for that sku, so a later exit read raises no false alert.
func (d *ScanAvoidance) ProcessPOS(ev model.Event) {
	if ev.POS == nil || ev.StationID == "" || ev.POS.SKU == "" || ev.Timestamp.IsZero() {
		return
	}
	station, sku := ev.StationID, ev.POS.SKU

	d.mu.Lock()
	defer d.mu.Unlock()

	scans := append(d.recentScans[station], scanRecord{SKU: sku, At: ev.Timestamp})
	cutoff := ev.Timestamp.Add(-scanRetention)
	kept := scans[:0]
	for _, s := range scans {
		if !s.At.Before(cutoff) {
			kept = append(kept, s)
		}
	}
	d.recentScans[station] = kept

	if items := d.inArea[station]; items != nil {
		delete(items, sku)
	}
}

func (d *ScanAvoidance) wasScanned(station, sku string, from, to time.Time) bool {
	for _, s := range d.recentScans[station] {
		if s.SKU == sku && !s.At.Before(from) && !s.At.After(to) {
			return true
		}
	}
	return false
}

// CheckTimeouts force-expires presence records older than the scan timeout
// and alerts on each, so theft-by-abandonment is caught even with no
// further RFID traffic.
func (d *ScanAvoidance) CheckTimeouts(now time.Time) []model.Alert {
	d.mu.Lock()
	defer d.mu.Unlock()

	var alerts []model.Alert
	for station, items := range d.inArea {
		for sku, rec := range items {
			age := now.Sub(rec.EnteredAt)
			if age <= d.scanTimeout {
				continue
			}
			delete(items, sku)
			key := fmt.Sprintf("%s|%s|timeout|%s", station, sku, now.Format(time.RFC3339))
			if d.dedupe.Seen(key) {
				continue
			}
			alerts = append(alerts, d.buildAlert(station, sku, rec.EnteredAt, age, "TIMEOUT"))
		}
	}
	return alerts
}

func (d *ScanAvoidance) buildAlert(station, sku string, entered time.Time, dwell time.Duration, alertType string) model.Alert {
	severity := model.SeverityMedium
	if dwell > 30*time.Second {
		severity = model.SeverityHigh
	}
	details := map[string]any{
		"product_sku":        sku,
		"entry_time":         entered.Format(time.RFC3339),
		"dwell_time_seconds": round1(dwell.Seconds()),
	}
	if alertType != "" {
		details["alert_type"] = alertType
	}
	return model.Alert{
		Timestamp: time.Now().UTC(),
		EventID:   fmt.Sprintf("SA_%s_%s_%d", station, sku, entered.Unix()),
		Name:      model.EventScannerAvoidance,
		StationID: station,
		Severity:  severity,
		Details:   details,
	}
}

// UnscannedItems reports everything currently inside a scan area without a
// matching scan, keyed by station.
func (d *ScanAvoidance) UnscannedItems(now time.Time) map[string][]UnscannedItem {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[string][]UnscannedItem)
	for station, items := range d.inArea {
		for _, rec := range items {
			out[station] = append(out[station], UnscannedItem{
				SKU:           rec.SKU,
				EntryTime:     rec.EnteredAt.Format(time.RFC3339),
				TimeInAreaSec: round1(now.Sub(rec.EnteredAt).Seconds()),
			})
		}
	}
	return out
}

// Cleanup drops stale presence records and scan history.
func (d *ScanAvoidance) Cleanup(now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)
	d.mu.Lock()
	defer d.mu.Unlock()

	for station, items := range d.inArea {
		for sku, rec := range items {
			if rec.EnteredAt.Before(cutoff) {
				delete(items, sku)
			}
		}
		if len(items) == 0 {
			delete(d.inArea, station)
		}
	}
	for station, scans := range d.recentScans {
		kept := scans[:0]
		for _, s := range scans {
			if !s.At.Before(cutoff) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			delete(d.recentScans, station)
			continue
		}
		d.recentScans[station] = kept
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
