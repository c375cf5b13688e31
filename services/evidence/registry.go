// Package evidence provides the shipment-evidence lookup collaborator. It
// answers one question for the dispute controller: given a transaction, order,
// or tracking identifier, is there proof-of-delivery on file, and what does
// it say. Lookup failures are never fatal to a dispute turn.
package evidence

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Order is one shipment record in the evidence database.
type Order struct {
	OrderID          string `json:"order_id"`
	TransactionID    string `json:"transaction_id"`
	CustomerID       string `json:"customer_id"`
	CustomerName     string `json:"customer_name"`
	Carrier          string `json:"carrier"`
	TrackingNumber   string `json:"tracking_number"`
	ShippingDate     string `json:"shipping_date"`
	DeliveryDate     string `json:"delivery_date"`
	DeliveryStatus   string `json:"delivery_status"`
	ShippingAddress  string `json:"shipping_address"`
	Signature        string `json:"signature"`
	DeliveryPhotoURL string `json:"delivery_photo_url"`
	Notes            string `json:"notes"`
}

type database struct {
	Orders []Order `json:"orders"`
}

// LookupResult is the outcome of one evidence lookup.
type LookupResult struct {
	Found   bool
	Summary string
}

// Registry is a read-only, in-memory index over the shipment evidence file.
type Registry struct {
	orders []Order
}

// NewRegistryFromFile loads the evidence database from a JSON file.
func NewRegistryFromFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open evidence data file %q: %w", path, err)
	}
	defer f.Close()
	return NewRegistry(f)
}

// NewRegistry loads the evidence database from a reader.
func NewRegistry(r io.Reader) (*Registry, error) {
	var db database
	if err := json.NewDecoder(r).Decode(&db); err != nil {
		return nil, fmt.Errorf("failed to parse evidence data: %w", err)
	}
	slog.Info("Loaded shipment evidence database", "orders", len(db.Orders))
	return &Registry{orders: db.Orders}, nil
}

// ByOrderID returns the record for an order id, or nil.
func (r *Registry) ByOrderID(orderID string) *Order {
	for i := range r.orders {
		if r.orders[i].OrderID == orderID {
			return &r.orders[i]
		}
	}
	return nil
}

// ByTransactionID returns the record for a transaction id, or nil.
func (r *Registry) ByTransactionID(transactionID string) *Order {
	for i := range r.orders {
		if r.orders[i].TransactionID == transactionID {
			return &r.orders[i]
		}
	}
	return nil
}

// ByTrackingNumber returns the record for a tracking number, or nil.
func (r *Registry) ByTrackingNumber(trackingNumber string) *Order {
	for i := range r.orders {
		if r.orders[i].TrackingNumber == trackingNumber {
			return &r.orders[i]
		}
	}
	return nil
}

// CheckDeliveryStatus resolves any identifier kind (transaction id first,
// then order id, then tracking number) to a delivery-status summary. This is
// the entry point the conversation controller uses.
func (r *Registry) CheckDeliveryStatus(identifier string) LookupResult {
	if identifier == "" {
		return LookupResult{Found: false, Summary: "No identifier provided."}
	}

	order := r.ByTransactionID(identifier)
	if order == nil {
		order = r.ByOrderID(identifier)
	}
	if order == nil {
		order = r.ByTrackingNumber(identifier)
	}
	if order == nil {
		return LookupResult{
			Found:   false,
			Summary: fmt.Sprintf("No shipment evidence found for identifier %q.", identifier),
		}
	}
	return LookupResult{Found: true, Summary: formatSummary(order)}
}

// formatSummary renders one order as the human-readable block fed to the
// analysis agent and shown to operators.
func formatSummary(o *Order) string {
	delivered := "No"
	if o.DeliveryDate != "" {
		delivered = "Yes"
	}
	photo := "Not available"
	if o.DeliveryPhotoURL != "" {
		photo = "Available"
	}

	var b strings.Builder
	b.WriteString("Shipment Evidence Summary\n")
	fmt.Fprintf(&b, "Order ID: %s\n", orNA(o.OrderID))
	fmt.Fprintf(&b, "Transaction ID: %s\n", orNA(o.TransactionID))
	fmt.Fprintf(&b, "Customer: %s\n", orNA(o.CustomerName))
	fmt.Fprintf(&b, "Carrier: %s\n", orNA(o.Carrier))
	fmt.Fprintf(&b, "Tracking Number: %s\n", orNA(o.TrackingNumber))
	fmt.Fprintf(&b, "Shipping Date: %s\n", orNA(o.ShippingDate))
	fmt.Fprintf(&b, "Delivery Date: %s\n", orDefault(o.DeliveryDate, "Not yet delivered"))
	fmt.Fprintf(&b, "Status: %s\n", orDefault(o.DeliveryStatus, "Unknown"))
	fmt.Fprintf(&b, "Shipping Address: %s\n", orNA(o.ShippingAddress))
	fmt.Fprintf(&b, "Delivered: %s\n", delivered)
	fmt.Fprintf(&b, "Signature: %s\n", orDefault(o.Signature, "No signature"))
	fmt.Fprintf(&b, "Delivery Photo: %s\n", photo)
	fmt.Fprintf(&b, "Notes: %s", orNA(o.Notes))
	return b.String()
}

func orNA(s string) string {
	return orDefault(s, "N/A")
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
