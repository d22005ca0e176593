package detect

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sentinel/internal/model"
)

// InventoryDiscrepancy compares an RFID-derived presence tally against the
// recorded inventory counts from periodic snapshots.
type InventoryDiscrepancy struct {
	mu            sync.Mutex
	thresholdPct  float64
	minRFIDEvents int
	recorded      map[string]int // sku -> last recorded count
	tally         map[string]int // sku -> items currently in scan areas
	rfidEvents    int
	baselineReady bool
	lastSnapshot  time.Time
	transactions  []inventoryTx // pruned to 24h
	dedupe        *dedupeCache
	logger        *slog.Logger
}

type inventoryTx struct {
	SKU string
	At  time.Time
}

const transactionRetention = 24 * time.Hour

func NewInventoryDiscrepancy(thresholdPct float64, minRFIDEvents, dedupeSize int, logger *slog.Logger) *InventoryDiscrepancy {
	if thresholdPct <= 0 {
		thresholdPct = 50
	}
	if minRFIDEvents <= 0 {
		minRFIDEvents = 20
	}
	return &InventoryDiscrepancy{
		thresholdPct:  thresholdPct,
		minRFIDEvents: minRFIDEvents,
		recorded:      make(map[string]int),
		tally:         make(map[string]int),
		dedupe:        newDedupeCache(dedupeSize),
		logger:        logger,
	}
}

// ProcessRFID maintains the presence tally: entries increment it, scan-area
// exits decrement it floored at zero.
func (d *InventoryDiscrepancy) ProcessRFID(ev model.Event) {
	if ev.RFID == nil || ev.RFID.SKU == "" || ev.Timestamp.IsZero() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rfidEvents++
	switch ev.RFID.Location {
	case model.LocationInScanArea:
		d.tally[ev.RFID.SKU]++
	case model.LocationOutScanArea:
		if d.tally[ev.RFID.SKU] > 0 {
			d.tally[ev.RFID.SKU]--
		}
	}
}

// ProcessSnapshot replaces the recorded counts wholesale, then flags SKUs
// whose RFID tally exceeds the recorded count. Shortage without RFID
// activity is out of scope for this path. Comparison is suppressed until
// the warm-up count is reached; once reached it never re-triggers.
func (d *InventoryDiscrepancy) ProcessSnapshot(ev model.Event) []model.Alert {
	if len(ev.Inventory) == 0 || ev.Timestamp.IsZero() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.recorded = make(map[string]int, len(ev.Inventory))
	for sku, count := range ev.Inventory {
		d.recorded[sku] = count
	}
	d.lastSnapshot = ev.Timestamp

	if !d.baselineReady {
		if d.rfidEvents < d.minRFIDEvents {
			if d.logger != nil {
				d.logger.Debug("insufficient rfid data for inventory comparison", "rfid_events", d.rfidEvents)
			}
			return nil
		}
		d.baselineReady = true
	}

	var alerts []model.Alert
	for sku, recordedCount := range d.recorded {
		rfidCount := d.tally[sku]
		if rfidCount <= recordedCount {
			continue
		}
		if alert, ok := d.compare(sku, recordedCount, rfidCount, ev.Timestamp); ok {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// ProcessPOS decrements the recorded count for the sold SKU and immediately
// re-compares. Unlike the snapshot path this flags both overage and
// shortage.
func (d *InventoryDiscrepancy) ProcessPOS(ev model.Event) []model.Alert {
	if ev.POS == nil || ev.POS.SKU == "" || ev.Timestamp.IsZero() {
		return nil
	}
	sku := ev.POS.SKU

	d.mu.Lock()
	defer d.mu.Unlock()

	d.transactions = append(d.transactions, inventoryTx{SKU: sku, At: ev.Timestamp})
	cutoff := ev.Timestamp.Add(-transactionRetention)
	kept := d.transactions[:0]
	for _, t := range d.transactions {
		if !t.At.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	d.transactions = kept

	recordedCount, known := d.recorded[sku]
	if !known {
		return nil
	}
	if recordedCount > 0 {
		recordedCount--
	}
	d.recorded[sku] = recordedCount

	if alert, ok := d.compare(sku, recordedCount, d.tally[sku], ev.Timestamp); ok {
		return []model.Alert{alert}
	}
	return nil
}

// compare applies the threshold rule. Caller holds the lock. The dedupe key
// includes both counts, so an identical repeat snapshot cannot double-alert
// while any real movement re-arms the check.
func (d *InventoryDiscrepancy) compare(sku string, recorded, rfid int, at time.Time) (model.Alert, bool) {
	if recorded == 0 && rfid == 0 {
		return model.Alert{}, false
	}
	difference := rfid - recorded
	denominator := recorded
	if denominator < 1 {
		denominator = 1
	}
	percentage := float64(difference) / float64(denominator) * 100
	if abs(percentage) < d.thresholdPct {
		return model.Alert{}, false
	}
	key := fmt.Sprintf("inv|%s|%d|%d", sku, recorded, rfid)
	if d.dedupe.Seen(key) {
		return model.Alert{}, false
	}

	discrepancyType := "OVERAGE"
	if difference < 0 {
		discrepancyType = "SHORTAGE"
	}
	severity := model.SeverityMedium
	if abs(percentage) > 25 {
		severity = model.SeverityHigh
	}
	return model.Alert{
		Timestamp: at,
		EventID:   fmt.Sprintf("ID_%s_%d", sku, at.Unix()),
		Name:      model.EventInventoryDiscrepancy,
		Severity:  severity,
		Details: map[string]any{
			"SKU":                   sku,
			"Expected_Inventory":    recorded,
			"Actual_Inventory":      rfid,
			"difference":            difference,
			"percentage_difference": round1(percentage),
			"discrepancy_type":      discrepancyType,
		},
	}, true
}

// AccuracyReport summarizes how well recorded inventory matches the tally.
func (d *InventoryDiscrepancy) AccuracyReport(now time.Time) map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.recorded) == 0 {
		return map[string]any{"error": "no inventory data available"}
	}
	totalSKUs := len(d.recorded)
	discrepant := 0
	totalRecorded, totalRFID := 0, 0
	for sku, recordedCount := range d.recorded {
		rfidCount := d.tally[sku]
		totalRecorded += recordedCount
		totalRFID += rfidCount
		if recordedCount == 0 && rfidCount == 0 {
			continue
		}
		denominator := recordedCount
		if denominator < 1 {
			denominator = 1
		}
		pct := float64(rfidCount-recordedCount) / float64(denominator) * 100
		if abs(pct) >= d.thresholdPct {
			discrepant++
		}
	}
	report := map[string]any{
		"report_timestamp":    now.Format(time.RFC3339),
		"total_skus":          totalSKUs,
		"discrepant_skus":     discrepant,
		"accuracy_percentage": round1(float64(totalSKUs-discrepant) / float64(totalSKUs) * 100),
		"total_recorded":      totalRecorded,
		"total_rfid":          totalRFID,
		"overall_difference":  totalRFID - totalRecorded,
	}
	if !d.lastSnapshot.IsZero() {
		report["last_inventory_snapshot"] = d.lastSnapshot.Format(time.RFC3339)
	}
	return report
}

// Cleanup drops stale transaction history.
func (d *InventoryDiscrepancy) Cleanup(now time.Time) {
	cutoff := now.Add(-transactionRetention)
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.transactions[:0]
	for _, t := range d.transactions {
		if !t.At.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	d.transactions = kept
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
