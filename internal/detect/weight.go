package detect

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"sentinel/internal/catalog"
	"sentinel/internal/model"
)

// WeightDiscrepancy compares the weight on each POS transaction against
// the catalog weight for the scanned SKU.
type WeightDiscrepancy struct {
	mu            sync.Mutex
	tolerancePct  float64
	products      map[string]catalog.Product
	scaleReadings map[string][]scaleReading // station -> readings, pruned to 5m
	logger        *slog.Logger
}

type scaleReading struct {
	WeightG float64
	At      time.Time
}

const (
	scaleRetention  = 5 * time.Minute
	scaleMatchReach = 30 * time.Second
)

func NewWeightDiscrepancy(tolerancePct float64, logger *slog.Logger) *WeightDiscrepancy {
	if tolerancePct <= 0 {
		tolerancePct = 10
	}
	return &WeightDiscrepancy{
		tolerancePct:  tolerancePct,
		scaleReadings: make(map[string][]scaleReading),
		logger:        logger,
	}
}

func (d *WeightDiscrepancy) LoadCatalog(products map[string]catalog.Product) {
	d.mu.Lock()
	d.products = products
	d.mu.Unlock()
}

// ProcessPOS checks one transaction. A catalog miss or unresolvable weight
// means "cannot evaluate": no alert, no error.
func (d *WeightDiscrepancy) ProcessPOS(ev model.Event) []model.Alert {
	if ev.POS == nil || ev.StationID == "" || ev.POS.SKU == "" || ev.Timestamp.IsZero() {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	product, ok := d.products[ev.POS.SKU]
	if !ok {
		if d.logger != nil {
			d.logger.Debug("sku not in product catalog", "sku", ev.POS.SKU)
		}
		return nil
	}
	expected := product.Weight
	if expected <= 0 {
		return nil
	}

	var actual float64
	if ev.POS.WeightG != nil {
		actual = *ev.POS.WeightG
	} else {
		reading, ok := d.closestReading(ev.StationID, ev.Timestamp)
		if !ok {
			return nil
		}
		actual = reading
	}

	pctDiff := math.Abs(actual-expected) / expected * 100
	if pctDiff <= d.tolerancePct {
		return nil
	}

	severity := model.SeverityMedium
	if pctDiff > 50 {
		severity = model.SeverityHigh
	}
	alert := model.Alert{
		Timestamp:  ev.Timestamp,
		EventID:    fmt.Sprintf("WD_%s_%s_%d", ev.StationID, ev.POS.SKU, ev.Timestamp.Unix()),
		Name:       model.EventWeightDiscrepancy,
		StationID:  ev.StationID,
		CustomerID: ev.POS.CustomerID,
		Severity:   severity,
		Details: map[string]any{
			"product_sku":           ev.POS.SKU,
			"expected_weight":       expected,
			"actual_weight":         actual,
			"weight_difference_g":   round1(math.Abs(actual - expected)),
			"percentage_difference": round1(pctDiff),
		},
	}
	return []model.Alert{alert}
}

// RecordScale stores a scale observation used as fallback when a later
// transaction arrives without its own weight.
func (d *WeightDiscrepancy) RecordScale(stationID string, weightG float64, at time.Time) {
	if stationID == "" || at.IsZero() {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	readings := append(d.scaleReadings[stationID], scaleReading{WeightG: weightG, At: at})
	cutoff := at.Add(-scaleRetention)
	kept := readings[:0]
	for _, r := range readings {
		if !r.At.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	d.scaleReadings[stationID] = kept
}

// closestReading finds the scale reading nearest the transaction time,
// within the 30s reach. Caller holds the lock.
func (d *WeightDiscrepancy) closestReading(stationID string, at time.Time) (float64, bool) {
	best := scaleMatchReach
	var weight float64
	var found bool
	for _, r := range d.scaleReadings[stationID] {
		diff := r.At.Sub(at)
		if diff < 0 {
			diff = -diff
		}
		if diff < best {
			best = diff
			weight = r.WeightG
			found = true
		}
	}
	return weight, found
}

// ExpectedRange reports the tolerated weight band for one SKU.
func (d *WeightDiscrepancy) ExpectedRange(sku string) (min, max float64, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	product, found := d.products[sku]
	if !found || product.Weight <= 0 {
		return 0, 0, false
	}
	return product.Weight * (1 - d.tolerancePct/100), product.Weight * (1 + d.tolerancePct/100), true
}

// Cleanup drops stale scale readings.
func (d *WeightDiscrepancy) Cleanup(now time.Time, retention time.Duration) {
	cutoff := now.Add(-retention)
	d.mu.Lock()
	defer d.mu.Unlock()
	for station, readings := range d.scaleReadings {
		kept := readings[:0]
		for _, r := range readings {
			if !r.At.Before(cutoff) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(d.scaleReadings, station)
			continue
		}
		d.scaleReadings[station] = kept
	}
}
