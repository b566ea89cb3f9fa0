package messaging

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types
const (
	// Inventory lifecycle events
	EventInventoryReceived      = "inventory.received"
	EventInventoryAllocated     = "inventory.allocated"
	EventInventoryShipped       = "inventory.shipped"
	EventInventoryTransferred   = "inventory.transferred"
	EventInventoryStatusChanged = "inventory.status.changed"

	// Order events
	EventOrderShipped = "order.shipped"

	// Scan validation events
	EventScanRecorded     = "scan.recorded"
	EventSessionCompleted = "scan.session.completed"
	EventFileAssociated   = "epcis.file.associated"

	// EPCIS ingestion events (consumed; published by the external parser)
	EventEpcisFileProcessed = "epcis.file.processed"
)

// Exchange names
const (
	ExchangeTrackingEvents = "tracking.events"
	ExchangeEpcisEvents    = "epcis.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// Inventory events

// InventoryTransitionEvent is published for every inventory status transition.
// One event corresponds to exactly one ledger row.
type InventoryTransitionEvent struct {
	InventoryID     string `json:"inventory_id"`
	GTIN            string `json:"gtin"`
	SerialNumber    string `json:"serial_number"`
	LotNumber       string `json:"lot_number,omitempty"`
	TransactionType string `json:"transaction_type"`
	FromStatus      string `json:"from_status,omitempty"`
	ToStatus        string `json:"to_status"`
	FromLocationID  string `json:"from_location_id,omitempty"`
	ToLocationID    string `json:"to_location_id,omitempty"`
	ReferenceID     string `json:"reference_id,omitempty"`
	ReferenceType   string `json:"reference_type,omitempty"`
	PerformedBy     string `json:"performed_by"`
}

// OrderShippedEvent is published when a sales order completes shipment.
type OrderShippedEvent struct {
	SalesOrderID string `json:"sales_order_id"`
	ItemCount    int    `json:"item_count"`
	UnitCount    int    `json:"unit_count"`
	PerformedBy  string `json:"performed_by"`
}

// Scan validation events

// ScanRecordedEvent is published for each reconciled scan.
type ScanRecordedEvent struct {
	ScanID       string `json:"scan_id"`
	SessionID    string `json:"session_id"`
	GTIN         string `json:"gtin"`
	SerialNumber string `json:"serial_number"`
	MatchStatus  string `json:"match_status"`
	ScannedBy    string `json:"scanned_by"`
}

// SessionCompletedEvent is published when a validation session is closed.
type SessionCompletedEvent struct {
	SessionID       string `json:"session_id"`
	PurchaseOrderID string `json:"purchase_order_id"`
	TotalScanned    int    `json:"total_scanned"`
	TotalMatched    int    `json:"total_matched"`
	TotalMismatched int    `json:"total_mismatched"`
	TotalUnknown    int    `json:"total_unknown"`
}

// Association events

// FileAssociatedEvent is published when an EPCIS file is linked to a purchase order.
type FileAssociatedEvent struct {
	FileID            string  `json:"file_id"`
	PurchaseOrderID   string  `json:"purchase_order_id"`
	AssociationMethod string  `json:"association_method"`
	Confidence        float64 `json:"confidence,omitempty"`
}

// EPCIS ingestion events (consumed)

// EpcisProductItem is one serialized unit as declared by an EPCIS file.
// The external parser has already validated and deduplicated these within a file.
type EpcisProductItem struct {
	GTIN                string    `json:"gtin"`
	SerialNumber        string    `json:"serial_number"`
	LotNumber           string    `json:"lot_number"`
	ExpirationDate      string    `json:"expiration_date"` // YYYY-MM-DD
	EventTime           time.Time `json:"event_time"`
	SourceLocation      string    `json:"source_location,omitempty"`
	DestinationLocation string    `json:"destination_location,omitempty"`
	BizTransactions     []string  `json:"biz_transactions,omitempty"`
}

// EpcisFileProcessedEvent carries a batch of product items for one EPCIS file.
type EpcisFileProcessedEvent struct {
	FileID   string             `json:"file_id"`
	FileName string             `json:"file_name,omitempty"`
	Items    []EpcisProductItem `json:"items"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), time.Now().Nanosecond()%10000)
}
