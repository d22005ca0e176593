package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"sentinel/internal/model"
)

// The producer emits two wire shapes for the same logical event: the wrapped
// form {dataset, event: {timestamp, station_id, data}} and a flat form with
// the same fields inlined. Both are accepted here so the detectors only ever
// see the canonical model.Event.
type wireEvent struct {
	Dataset   string          `json:"dataset"`
	Event     *wireBody       `json:"event"`
	Timestamp string          `json:"timestamp"`
	StationID string          `json:"station_id"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
}

type wireBody struct {
	Timestamp string          `json:"timestamp"`
	StationID string          `json:"station_id"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
}

type rfidData struct {
	SKU      string `json:"sku"`
	EPC      string `json:"epc"`
	Location string `json:"location"`
}

type posData struct {
	SKU        string   `json:"sku"`
	CustomerID string   `json:"customer_id"`
	Price      float64  `json:"price"`
	WeightG    *float64 `json:"weight_g"`
	Status     string   `json:"status"`
}

type queueData struct {
	CustomerCount int      `json:"customer_count"`
	AvgDwellTime  *float64 `json:"average_dwell_time"`
}

type recognitionData struct {
	PredictedProduct string  `json:"predicted_product"`
	Accuracy         float64 `json:"accuracy"`
}

// Decode parses one line of producer output into a canonical event.
// A missing or unparseable timestamp is an error: callers drop the event
// with a logged warning, never crash.
func Decode(line []byte) (model.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(line, &w); err != nil {
		return model.Event{}, fmt.Errorf("decode event: %w", err)
	}

	kind, ok := KindForDataset(w.Dataset)
	if !ok {
		return model.Event{}, fmt.Errorf("unknown dataset %q", w.Dataset)
	}

	ts, station, status, data := w.Timestamp, w.StationID, w.Status, w.Data
	if w.Event != nil {
		ts, station, status, data = w.Event.Timestamp, w.Event.StationID, w.Event.Status, w.Event.Data
	}

	parsed, err := ParseTimestamp(ts)
	if err != nil {
		return model.Event{}, fmt.Errorf("event timestamp: %w", err)
	}

	ev := model.Event{
		Kind:      kind,
		StationID: station,
		Status:    status,
		Timestamp: parsed,
	}

	switch kind {
	case model.KindRFID:
		var d rfidData
		if err := json.Unmarshal(data, &d); err != nil {
			return model.Event{}, fmt.Errorf("rfid payload: %w", err)
		}
		ev.RFID = &model.RFIDPayload{SKU: d.SKU, EPC: d.EPC, Location: d.Location}
	case model.KindPOS:
		var d posData
		if err := json.Unmarshal(data, &d); err != nil {
			return model.Event{}, fmt.Errorf("pos payload: %w", err)
		}
		ev.POS = &model.POSPayload{SKU: d.SKU, CustomerID: d.CustomerID, Price: d.Price, WeightG: d.WeightG}
		ev.CustomerID = d.CustomerID
		if ev.Status == "" {
			ev.Status = d.Status
		}
	case model.KindQueue:
		var d queueData
		if err := json.Unmarshal(data, &d); err != nil {
			return model.Event{}, fmt.Errorf("queue payload: %w", err)
		}
		ev.Queue = &model.QueuePayload{CustomerCount: d.CustomerCount, AvgDwellTime: d.AvgDwellTime}
	case model.KindRecognition:
		var d recognitionData
		if err := json.Unmarshal(data, &d); err != nil {
			return model.Event{}, fmt.Errorf("recognition payload: %w", err)
		}
		ev.Recognition = &model.RecognitionPayload{PredictedSKU: d.PredictedProduct, Accuracy: d.Accuracy}
	case model.KindInventory:
		var d map[string]int
		if err := json.Unmarshal(data, &d); err != nil {
			return model.Event{}, fmt.Errorf("inventory payload: %w", err)
		}
		ev.Inventory = d
	}
	return ev, nil
}

// KindForDataset maps the producer's dataset tags (and a few tolerated
// short names) onto stream kinds.
func KindForDataset(dataset string) (model.StreamKind, bool) {
	switch strings.ToLower(strings.TrimSpace(dataset)) {
	case "rfid_data", "rfid":
		return model.KindRFID, true
	case "pos_transactions", "pos":
		return model.KindPOS, true
	case "queue_monitor", "queue":
		return model.KindQueue, true
	case "product_recognism", "product_recognition", "recognition":
		return model.KindRecognition, true
	case "current_inventory_data", "inventory":
		return model.KindInventory, true
	}
	return "", false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
}

// ParseTimestamp accepts the producer's ISO-8601 variants plus unix
// seconds/milliseconds. Naive timestamps are taken as UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
