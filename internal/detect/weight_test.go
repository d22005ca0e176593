package detect

import (
	"testing"
	"time"

	"sentinel/internal/catalog"
	"sentinel/internal/model"
)

func testProducts() map[string]catalog.Product {
	return map[string]catalog.Product{
		"PRD_S_04": {SKU: "PRD_S_04", Name: "Olive Oil 1L", Weight: 1000, Price: 480},
		"PRD_A_01": {SKU: "PRD_A_01", Name: "Instant Noodles", Weight: 120, Price: 35},
		"PRD_T_02": {SKU: "PRD_T_02", Name: "Green Tea Box", Weight: 250, Price: 350},
	}
}

func weighedPOS(station, sku string, weight float64, at time.Time) model.Event {
	return model.Event{
		Kind:      model.KindPOS,
		StationID: station,
		Timestamp: at,
		POS:       &model.POSPayload{SKU: sku, WeightG: &weight},
	}
}

func TestWeightWithinToleranceNoAlert(t *testing.T) {
	d := NewWeightDiscrepancy(10, nil)
	d.LoadCatalog(testProducts())
	if alerts := d.ProcessPOS(weighedPOS("SCC1", "PRD_S_04", 1050, time.Now())); len(alerts) != 0 {
		t.Fatalf("5%% off should pass, got %d alerts", len(alerts))
	}
	// Exactly at tolerance is still fine: the threshold is exclusive.
	if alerts := d.ProcessPOS(weighedPOS("SCC1", "PRD_S_04", 1100, time.Now())); len(alerts) != 0 {
		t.Fatalf("exactly 10%% off should pass, got %d alerts", len(alerts))
	}
}

func TestWeightDiscrepancyMedium(t *testing.T) {
	d := NewWeightDiscrepancy(10, nil)
	d.LoadCatalog(testProducts())
	alerts := d.ProcessPOS(weighedPOS("SCC1", "PRD_S_04", 1200, time.Now()))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Name != model.EventWeightDiscrepancy || a.Severity != model.SeverityMedium {
		t.Fatalf("unexpected alert %+v", a)
	}
	if a.Details["expected_weight"] != 1000.0 || a.Details["actual_weight"] != 1200.0 {
		t.Fatalf("wrong weights in details: %v", a.Details)
	}
	if a.Details["percentage_difference"].(float64) != 20 {
		t.Fatalf("wrong percentage: %v", a.Details["percentage_difference"])
	}
}

func TestWeightDiscrepancyHigh(t *testing.T) {
	d := NewWeightDiscrepancy(10, nil)
	d.LoadCatalog(testProducts())
	alerts := d.ProcessPOS(weighedPOS("SCC1", "PRD_S_04", 400, time.Now()))
	if len(alerts) != 1 || alerts[0].Severity != model.SeverityHigh {
		t.Fatalf("60%% off should be HIGH, got %v", alerts)
	}
}

func TestWeightCatalogMissSkipped(t *testing.T) {
	d := NewWeightDiscrepancy(10, nil)
	d.LoadCatalog(testProducts())
	if alerts := d.ProcessPOS(weighedPOS("SCC1", "PRD_UNKNOWN", 9999, time.Now())); len(alerts) != 0 {
		t.Fatalf("unknown sku must not alert, got %d", len(alerts))
	}
}

func TestWeightScaleFallback(t *testing.T) {
	d := NewWeightDiscrepancy(10, nil)
	d.LoadCatalog(testProducts())
	now := time.Now()
	d.RecordScale("SCC1", 500, now.Add(-10*time.Second))

	ev := model.Event{
		Kind:      model.KindPOS,
		StationID: "SCC1",
		Timestamp: now,
		POS:       &model.POSPayload{SKU: "PRD_S_04"},
	}
	alerts := d.ProcessPOS(ev)
	if len(alerts) != 1 {
		t.Fatalf("expected fallback reading to trigger alert, got %d", len(alerts))
	}
	if alerts[0].Details["actual_weight"] != 500.0 {
		t.Fatalf("expected scale reading as actual weight, got %v", alerts[0].Details["actual_weight"])
	}
}

func TestWeightNoReadingNoAlert(t *testing.T) {
	d := NewWeightDiscrepancy(10, nil)
	d.LoadCatalog(testProducts())
	now := time.Now()
	// Reading exists but outside the 30s matching reach.
	d.RecordScale("SCC1", 500, now.Add(-2*time.Minute))
	ev := model.Event{
		Kind:      model.KindPOS,
		StationID: "SCC1",
		Timestamp: now,
		POS:       &model.POSPayload{SKU: "PRD_S_04"},
	}
	if alerts := d.ProcessPOS(ev); len(alerts) != 0 {
		t.Fatalf("no usable weight must mean no alert, got %d", len(alerts))
	}
}

func TestWeightExpectedRange(t *testing.T) {
	d := NewWeightDiscrepancy(10, nil)
	d.LoadCatalog(testProducts())
	min, max, ok := d.ExpectedRange("PRD_S_04")
	if !ok || min != 900 || max != 1100 {
		t.Fatalf("expected [900,1100], got [%v,%v] ok=%v", min, max, ok)
	}
	if _, _, ok := d.ExpectedRange("PRD_UNKNOWN"); ok {
		t.Fatalf("unknown sku should have no range")
	}
}
