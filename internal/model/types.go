package model

import "time"

// StreamKind identifies which telemetry feed an event came from.
type StreamKind string

const (
	KindRFID        StreamKind = "rfid"
	KindPOS         StreamKind = "pos"
	KindQueue       StreamKind = "queue"
	KindRecognition StreamKind = "recognition"
	KindInventory   StreamKind = "inventory"
)

// RFID location states reported by the readers.
const (
	LocationInScanArea  = "IN_SCAN_AREA"
	LocationOutScanArea = "OUT_SCAN_AREA"
	LocationOutOfArea   = "OUT_OF_AREA"
)

// Station status values carried on POS and telemetry events.
const (
	StatusActive      = "Active"
	StatusError       = "Error"
	StatusOffline     = "Offline"
	StatusMaintenance = "Maintenance"
)

type Severity string

const (
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Alert event names. Downstream consumers key on these exact strings.
const (
	EventScannerAvoidance     = "Scanner Avoidance"
	EventWeightDiscrepancy    = "Weight Discrepancies"
	EventBarcodeSwitching     = "Barcode Switching"
	EventLongQueue            = "Long Queue Length"
	EventLongWait             = "Long Wait Time"
	EventStaffingNeeds        = "Staffing Needs"
	EventStationAction        = "Checkout Station Action"
	EventInventoryDiscrepancy = "Inventory Discrepancy"
	EventSystemCrash          = "Unexpected Systems Crash"
	EventSuccessOperation     = "Success Operation"
)

type RFIDPayload struct {
	SKU      string `json:"sku"`
	EPC      string `json:"epc,omitempty"`
	Location string `json:"location"`
}

type POSPayload struct {
	SKU        string   `json:"sku"`
	CustomerID string   `json:"customer_id,omitempty"`
	Price      float64  `json:"price,omitempty"`
	WeightG    *float64 `json:"weight_g,omitempty"`
}

type QueuePayload struct {
	CustomerCount int      `json:"customer_count"`
	AvgDwellTime  *float64 `json:"average_dwell_time,omitempty"`
}

type RecognitionPayload struct {
	PredictedSKU string  `json:"predicted_product"`
	Accuracy     float64 `json:"accuracy"`
}

// Event is the canonical normalized form every detector consumes. The two
// inbound wire shapes are folded into this at the ingest boundary; exactly
// one payload pointer is set, matching Kind.
type Event struct {
	Kind        StreamKind          `json:"kind"`
	StationID   string              `json:"station_id,omitempty"`
	CustomerID  string              `json:"customer_id,omitempty"`
	Status      string              `json:"status,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Source      string              `json:"source,omitempty"`
	RFID        *RFIDPayload        `json:"rfid,omitempty"`
	POS         *POSPayload         `json:"pos,omitempty"`
	Queue       *QueuePayload       `json:"queue,omitempty"`
	Recognition *RecognitionPayload `json:"recognition,omitempty"`
	Inventory   map[string]int      `json:"inventory,omitempty"`
}

// Alert is immutable once produced; ownership passes to the engine's sink
// the moment a detector returns it.
type Alert struct {
	Timestamp  time.Time      `json:"timestamp"`
	EventID    string         `json:"event_id"`
	Name       string         `json:"event_name"`
	StationID  string         `json:"station_id,omitempty"`
	CustomerID string         `json:"customer_id,omitempty"`
	Severity   Severity       `json:"severity,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}
