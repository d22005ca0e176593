package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Product describes one SKU from the products CSV.
type Product struct {
	SKU      string
	Name     string
	Quantity int
	Barcode  string
	Weight   float64
	Price    float64
	EPCRange string
}

// Customer describes one loyalty profile from the customers CSV.
type Customer struct {
	ID      string
	Name    string
	Age     int
	Address string
	Phone   string
}

// LoadProducts reads the product catalog CSV. The file itself being
// unreadable is fatal to startup; individual malformed rows are skipped
// with a warning.
func LoadProducts(path string, logger *slog.Logger) (map[string]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open product catalog: %w", err)
	}
	defer f.Close()

	rows, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read product catalog: %w", err)
	}

	out := make(map[string]Product, len(rows))
	for i, row := range rows {
		sku := row["sku"]
		if sku == "" {
			continue
		}
		weight, werr := strconv.ParseFloat(row["weight"], 64)
		price, perr := strconv.ParseFloat(row["price"], 64)
		if werr != nil || perr != nil {
			if logger != nil {
				logger.Warn("skipping product row with bad numeric field", "row", i+2, "sku", sku)
			}
			continue
		}
		qty, _ := strconv.Atoi(row["quantity"])
		out[sku] = Product{
			SKU:      sku,
			Name:     row["product_name"],
			Quantity: qty,
			Barcode:  row["barcode"],
			Weight:   weight,
			Price:    price,
			EPCRange: row["epc_range"],
		}
	}
	return out, nil
}

// LoadCustomers reads the customer profile CSV.
func LoadCustomers(path string, logger *slog.Logger) (map[string]Customer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open customer data: %w", err)
	}
	defer f.Close()

	rows, err := readCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read customer data: %w", err)
	}

	out := make(map[string]Customer, len(rows))
	for i, row := range rows {
		id := row["customer_id"]
		if id == "" {
			continue
		}
		age, err := strconv.Atoi(row["age"])
		if err != nil {
			if logger != nil {
				logger.Warn("skipping customer row with bad age", "row", i+2, "customer_id", id)
			}
			continue
		}
		out[id] = Customer{
			ID:      id,
			Name:    row["name"],
			Age:     age,
			Address: row["address"],
			Phone:   row["tp"],
		}
	}
	return out, nil
}

// readCSV returns every data row as a map keyed by lowercased header name.
func readCSV(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv")
	}
	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(name))
	}
	rows := make([]map[string]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(rec) {
				row[name] = strings.TrimSpace(rec[i])
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
