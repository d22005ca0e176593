package detect

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentinel/internal/catalog"
	"sentinel/internal/model"
)

// BarcodeSwitching correlates high-confidence product recognition with the
// next POS scan at the same station and flags under-ringing: a scanned SKU
// significantly cheaper than the recognized one.
type BarcodeSwitching struct {
	mu           sync.Mutex
	timeWindow   time.Duration
	minPriceDiff float64
	minAccuracy  float64
	products     map[string]catalog.Product
	recognitions map[string][]recognitionRecord // station -> records, pruned to 1h
	scans        map[string][]posScanRecord     // station -> records, pruned to 1h
	dedupe       *dedupeCache
	logger       *slog.Logger
}

type recognitionRecord struct {
	SKU      string
	Accuracy float64
	At       time.Time
}

type posScanRecord struct {
	SKU string
	At  time.Time
}

const (
	recognitionRetention = time.Hour
	// A recognition may land slightly after the scan it belongs to.
	scanLagAllowance = 30 * time.Second
)

func NewBarcodeSwitching(timeWindow time.Duration, minPriceDiff, minAccuracy float64, dedupeSize int, logger *slog.Logger) *BarcodeSwitching {
	if timeWindow <= 0 {
		timeWindow = 60 * time.Second
	}
	if minPriceDiff <= 0 {
		minPriceDiff = 50
	}
	if minAccuracy <= 0 {
		minAccuracy = 0.6
	}
	return &BarcodeSwitching{
		timeWindow:   timeWindow,
		minPriceDiff: minPriceDiff,
		minAccuracy:  minAccuracy,
		recognitions: make(map[string][]recognitionRecord),
		scans:        make(map[string][]posScanRecord),
		dedupe:       newDedupeCache(dedupeSize),
		logger:       logger,
	}
}

func (d *BarcodeSwitching) LoadCatalog(products map[string]catalog.Product) {
	d.mu.Lock()
	d.products = products
	d.mu.Unlock()
}

// ProcessRecognition stores a prediction if it clears the confidence bar.
func (d *BarcodeSwitching) ProcessRecognition(ev model.Event) {
	if ev.Recognition == nil || ev.StationID == "" || ev.Recognition.PredictedSKU == "" || ev.Timestamp.IsZero() {
		return
	}
	if ev.Recognition.Accuracy < d.minAccuracy {
		if d.logger != nil {
			d.logger.Debug("low confidence prediction, skipping",
				"accuracy", ev.Recognition.Accuracy, "predicted", ev.Recognition.PredictedSKU)
		}
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	records := append(d.recognitions[ev.StationID], recognitionRecord{
		SKU:      ev.Recognition.PredictedSKU,
		Accuracy: ev.Recognition.Accuracy,
		At:       ev.Timestamp,
	})
	d.recognitions[ev.StationID] = pruneRecognitions(records, ev.Timestamp.Add(-recognitionRetention))
}

// ProcessPOS checks one scan against the most recent qualifying recognition.
func (d *BarcodeSwitching) ProcessPOS(ev model.Event) []model.Alert {
	if ev.POS == nil || ev.StationID == "" || ev.POS.SKU == "" || ev.Timestamp.IsZero() {
		return nil
	}
	station, scanned := ev.StationID, ev.POS.SKU

	d.mu.Lock()
	defer d.mu.Unlock()

	scans := append(d.scans[station], posScanRecord{SKU: scanned, At: ev.Timestamp})
	d.scans[station] = pruneScans(scans, ev.Timestamp.Add(-recognitionRetention))

	start := ev.Timestamp.Add(-d.timeWindow)
	end := ev.Timestamp.Add(scanLagAllowance)
	var latest *recognitionRecord
	for i := range d.recognitions[station] {
		r := &d.recognitions[station][i]
		if r.At.Before(start) || r.At.After(end) {
			continue
		}
		if latest == nil || r.At.After(latest.At) {
			latest = r
		}
	}
	if latest == nil || latest.SKU == scanned {
		return nil
	}

	predicted, okPred := d.products[latest.SKU]
	scannedProduct, okScan := d.products[scanned]
	if !okPred || !okScan {
		if d.logger != nil {
			d.logger.Debug("missing catalog data for switch check", "predicted", latest.SKU, "scanned", scanned)
		}
		return nil
	}

	priceDiff := predicted.Price - scannedProduct.Price
	if priceDiff < d.minPriceDiff {
		return nil
	}
	key := fmt.Sprintf("%s|%s|%s|%s", station, latest.SKU, scanned, ev.Timestamp.Format(time.RFC3339))
	if d.dedupe.Seen(key) {
		return nil
	}

	severity := model.SeverityMedium
	if priceDiff > 200 {
		severity = model.SeverityHigh
	}
	alert := model.Alert{
		Timestamp:  ev.Timestamp,
		EventID:    fmt.Sprintf("BS_%s_%s_%s_%d", station, latest.SKU, scanned, ev.Timestamp.Unix()),
		Name:       model.EventBarcodeSwitching,
		StationID:  station,
		CustomerID: ev.POS.CustomerID,
		Severity:   severity,
		Details: map[string]any{
			"actual_sku":             latest.SKU,
			"scanned_sku":            scanned,
			"expected_price":         predicted.Price,
			"scanned_price":          scannedProduct.Price,
			"price_difference":       round1(priceDiff),
			"percentage_savings":     round1(priceDiff / predicted.Price * 100),
			"recognition_confidence": latest.Accuracy,
		},
	}
	return []model.Alert{alert}
}

// SwitchingPatterns reports the recognition/scan match rate for a station.
func (d *BarcodeSwitching) SwitchingPatterns(stationID string) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	matches, switches := 0, 0
	for _, scan := range d.scans[stationID] {
		var latest *recognitionRecord
		for i := range d.recognitions[stationID] {
			r := &d.recognitions[stationID][i]
			diff := r.At.Sub(scan.At)
			if diff < 0 {
				diff = -diff
			}
			if diff > d.timeWindow {
				continue
			}
			if latest == nil || r.At.After(latest.At) {
				latest = r
			}
		}
		if latest == nil {
			continue
		}
		if latest.SKU == scan.SKU {
			matches++
		} else {
			switches++
		}
	}
	total := matches + switches
	matchRate := 0.0
	if total > 0 {
		matchRate = float64(matches) / float64(total) * 100
	}
	return map[string]any{
		"station_id":            stationID,
		"total_recognitions":    len(d.recognitions[stationID]),
		"total_pos_scans":       len(d.scans[stationID]),
		"correlated_events":     total,
		"matches":               matches,
		"potential_switches":    switches,
		"match_rate_percentage": round1(matchRate),
	}
}

// Cleanup drops stale recognition and scan history.
func (d *BarcodeSwitching) Cleanup(now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)
	d.mu.Lock()
	defer d.mu.Unlock()
	for station, records := range d.recognitions {
		kept := pruneRecognitions(records, cutoff)
		if len(kept) == 0 {
			delete(d.recognitions, station)
			continue
		}
		d.recognitions[station] = kept
	}
	for station, scans := range d.scans {
		kept := pruneScans(scans, cutoff)
		if len(kept) == 0 {
			delete(d.scans, station)
			continue
		}
		d.scans[station] = kept
	}
}

func pruneRecognitions(records []recognitionRecord, cutoff time.Time) []recognitionRecord {
	kept := records[:0]
	for _, r := range records {
		if !r.At.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}

func pruneScans(records []posScanRecord, cutoff time.Time) []posScanRecord {
	kept := records[:0]
	for _, r := range records {
		if !r.At.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	return kept
}
