package detect

import (
	"testing"
	"time"

	"sentinel/internal/model"
)

func recognitionEvent(station, sku string, accuracy float64, at time.Time) model.Event {
	return model.Event{
		Kind:        model.KindRecognition,
		StationID:   station,
		Timestamp:   at,
		Recognition: &model.RecognitionPayload{PredictedSKU: sku, Accuracy: accuracy},
	}
}

func newBarcodeForTest() *BarcodeSwitching {
	d := NewBarcodeSwitching(60*time.Second, 50, 0.6, 0, nil)
	d.LoadCatalog(testProducts())
	return d
}

func TestBarcodeSwitchDetected(t *testing.T) {
	d := newBarcodeForTest()
	base := time.Now().Add(-time.Minute)

	// Vision saw olive oil (480), customer rang up noodles (35).
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_S_04", 0.92, base))
	alerts := d.ProcessPOS(posEvent("SCC1", "PRD_A_01", base.Add(5*time.Second)))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	a := alerts[0]
	if a.Name != model.EventBarcodeSwitching {
		t.Fatalf("wrong event name %q", a.Name)
	}
	if a.Severity != model.SeverityHigh {
		t.Fatalf("price diff 445 should be HIGH, got %s", a.Severity)
	}
	if a.Details["actual_sku"] != "PRD_S_04" || a.Details["scanned_sku"] != "PRD_A_01" {
		t.Fatalf("wrong skus in details: %v", a.Details)
	}
	if a.Details["recognition_confidence"] != 0.92 {
		t.Fatalf("wrong confidence: %v", a.Details["recognition_confidence"])
	}
}

func TestBarcodeMatchingScanNoAlert(t *testing.T) {
	d := newBarcodeForTest()
	base := time.Now().Add(-time.Minute)
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_S_04", 0.9, base))
	if alerts := d.ProcessPOS(posEvent("SCC1", "PRD_S_04", base.Add(5*time.Second))); len(alerts) != 0 {
		t.Fatalf("matching sku must not alert, got %d", len(alerts))
	}
}

func TestBarcodeLowConfidenceIgnored(t *testing.T) {
	d := newBarcodeForTest()
	base := time.Now().Add(-time.Minute)
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_S_04", 0.4, base))
	if alerts := d.ProcessPOS(posEvent("SCC1", "PRD_A_01", base.Add(5*time.Second))); len(alerts) != 0 {
		t.Fatalf("low-confidence prediction must be ignored, got %d alerts", len(alerts))
	}
}

func TestBarcodeSmallPriceDiffNoAlert(t *testing.T) {
	d := newBarcodeForTest()
	base := time.Now().Add(-time.Minute)
	// Tea (350) rung as olive oil (480): scanned is the pricier one, diff
	// is negative, so no under-ringing.
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_T_02", 0.9, base))
	if alerts := d.ProcessPOS(posEvent("SCC1", "PRD_S_04", base.Add(5*time.Second))); len(alerts) != 0 {
		t.Fatalf("over-ringing must not alert, got %d", len(alerts))
	}
}

func TestBarcodeMediumSeverity(t *testing.T) {
	d := newBarcodeForTest()
	base := time.Now().Add(-time.Minute)
	// Olive oil (480) rung as tea (350): diff 130.
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_S_04", 0.9, base))
	alerts := d.ProcessPOS(posEvent("SCC1", "PRD_T_02", base.Add(5*time.Second)))
	if len(alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts))
	}
	if alerts[0].Severity != model.SeverityMedium {
		t.Fatalf("price diff 130 should be MEDIUM, got %s", alerts[0].Severity)
	}
}

func TestBarcodeRecognitionOutsideWindow(t *testing.T) {
	d := newBarcodeForTest()
	base := time.Now().Add(-10 * time.Minute)
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_S_04", 0.9, base))
	if alerts := d.ProcessPOS(posEvent("SCC1", "PRD_A_01", base.Add(5*time.Minute))); len(alerts) != 0 {
		t.Fatalf("recognition outside window must not correlate, got %d", len(alerts))
	}
}

func TestBarcodeLatestRecognitionWins(t *testing.T) {
	d := newBarcodeForTest()
	base := time.Now().Add(-time.Minute)
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_S_04", 0.9, base))
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_A_01", 0.9, base.Add(2*time.Second)))
	// Latest prediction matches the scan, so the earlier one is moot.
	if alerts := d.ProcessPOS(posEvent("SCC1", "PRD_A_01", base.Add(5*time.Second))); len(alerts) != 0 {
		t.Fatalf("latest matching recognition must win, got %d alerts", len(alerts))
	}
}

func TestBarcodeSwitchingPatterns(t *testing.T) {
	d := newBarcodeForTest()
	base := time.Now().Add(-time.Minute)
	d.ProcessRecognition(recognitionEvent("SCC1", "PRD_S_04", 0.9, base))
	d.ProcessPOS(posEvent("SCC1", "PRD_A_01", base.Add(5*time.Second)))
	report := d.SwitchingPatterns("SCC1")
	if report["potential_switches"] != 1 {
		t.Fatalf("expected 1 switch in report, got %v", report)
	}
}
