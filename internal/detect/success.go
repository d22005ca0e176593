package detect

import (
	"fmt"
	"sync"
	"time"

	"sentinel/internal/catalog"
	"sentinel/internal/model"
)

// SuccessOperation records completed checkout transactions. Its alerts carry
// no severity and exist so the output stream reflects normal activity
// alongside anomalies.
type SuccessOperation struct {
	mu        sync.Mutex
	ledger    []successEntry
	customers map[string]catalog.Customer
}

type successEntry struct {
	StationID  string
	CustomerID string
	SKU        string
	At         time.Time
}

const successRetention = time.Hour

func NewSuccessOperation() *SuccessOperation {
	return &SuccessOperation{}
}

// LoadCustomers attaches the customer catalog so success records can carry
// the customer's name.
func (d *SuccessOperation) LoadCustomers(customers map[string]catalog.Customer) {
	d.mu.Lock()
	d.customers = customers
	d.mu.Unlock()
}

// ProcessPOS emits a success record for an active transaction that names
// both a customer and a product.
func (d *SuccessOperation) ProcessPOS(ev model.Event) []model.Alert {
	if ev.POS == nil || ev.Timestamp.IsZero() {
		return nil
	}
	if ev.Status != model.StatusActive || ev.CustomerID == "" || ev.POS.SKU == "" {
		return nil
	}

	d.mu.Lock()
	d.ledger = append(d.ledger, successEntry{
		StationID:  ev.StationID,
		CustomerID: ev.CustomerID,
		SKU:        ev.POS.SKU,
		At:         ev.Timestamp,
	})
	customer, known := d.customers[ev.CustomerID]
	d.mu.Unlock()

	details := map[string]any{
		"product_sku": ev.POS.SKU,
		"customer_id": ev.CustomerID,
	}
	if known && customer.Name != "" {
		details["customer_name"] = customer.Name
	}
	return []model.Alert{{
		Timestamp:  ev.Timestamp,
		EventID:    fmt.Sprintf("SO_%s_%s_%d", ev.StationID, ev.CustomerID, ev.Timestamp.Unix()),
		Name:       model.EventSuccessOperation,
		StationID:  ev.StationID,
		CustomerID: ev.CustomerID,
		Details:    details,
	}}
}

// SuccessRate reports successes in the retained window for one station, or
// for all stations when id is empty.
func (d *SuccessOperation) SuccessRate(stationID string, now time.Time) map[string]any {
	cutoff := now.Add(-successRetention)
	d.mu.Lock()
	defer d.mu.Unlock()

	total := 0
	customers := make(map[string]struct{})
	for _, e := range d.ledger {
		if e.At.Before(cutoff) {
			continue
		}
		if stationID != "" && e.StationID != stationID {
			continue
		}
		total++
		customers[e.CustomerID] = struct{}{}
	}
	out := map[string]any{
		"window_seconds":   int(successRetention.Seconds()),
		"transactions":     total,
		"unique_customers": len(customers),
	}
	if stationID != "" {
		out["station_id"] = stationID
	}
	return out
}

// Cleanup drops ledger entries outside the retained window.
func (d *SuccessOperation) Cleanup(now time.Time) {
	cutoff := now.Add(-successRetention)
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.ledger[:0]
	for _, e := range d.ledger {
		if !e.At.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	d.ledger = kept
}
