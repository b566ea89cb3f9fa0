package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Valid GTIN-14 values for test data (mod-10 check digits verified).
const (
	TestGTIN    = "00300143095704"
	TestGTINAlt = "00350000123453"
)

// PurchaseOrderFixture represents test purchase order data
type PurchaseOrderFixture struct {
	ID        string
	PONumber  string
	Status    string
	OrderDate time.Time
}

// PurchaseOrderItemFixture represents a line item on a test purchase order
type PurchaseOrderItemFixture struct {
	ID              string
	PurchaseOrderID string
	GTIN            string
	Description     string
	Quantity        int
}

// SalesOrderFixture represents test sales order data
type SalesOrderFixture struct {
	ID        string
	SONumber  string
	Status    string
	OrderDate time.Time
}

// SalesOrderItemFixture represents a line item on a test sales order
type SalesOrderItemFixture struct {
	ID           string
	SalesOrderID string
	GTIN         string
	Quantity     int
	Status       string
}

// InvoiceFixture represents test invoice data
type InvoiceFixture struct {
	ID              string
	InvoiceNumber   string
	PurchaseOrderID *string
}

// ProductItemFixture represents a serialized unit from an EPCIS file
type ProductItemFixture struct {
	ID           string
	FileID       string
	GTIN         string
	SerialNumber string
	LotNumber    string
	EventTime    time.Time
}

// InventoryUnitFixture represents a test inventory unit
type InventoryUnitFixture struct {
	ID             string
	GTIN           string
	SerialNumber   string
	LotNumber      string
	ExpirationDate *time.Time
	Status         string
	Quantity       int
}

// FixtureFactory creates test fixtures with sensible defaults
type FixtureFactory struct {
	sequence int
}

// NewFixtureFactory creates a new fixture factory
func NewFixtureFactory() *FixtureFactory {
	return &FixtureFactory{sequence: 0}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.sequence++
	return f.sequence
}

// PurchaseOrder creates a purchase order fixture with defaults
func (f *FixtureFactory) PurchaseOrder(opts ...func(*PurchaseOrderFixture)) PurchaseOrderFixture {
	seq := f.nextSeq()

	po := PurchaseOrderFixture{
		ID:        uuid.New().String(),
		PONumber:  fmt.Sprintf("PO-%05d", seq),
		Status:    "open",
		OrderDate: time.Now().AddDate(0, 0, -7),
	}

	for _, opt := range opts {
		opt(&po)
	}

	return po
}

// WithPONumber sets the purchase order number
func WithPONumber(number string) func(*PurchaseOrderFixture) {
	return func(po *PurchaseOrderFixture) {
		po.PONumber = number
	}
}

// POItem creates a purchase order item fixture for the given order
func (f *FixtureFactory) POItem(poID string, opts ...func(*PurchaseOrderItemFixture)) PurchaseOrderItemFixture {
	item := PurchaseOrderItemFixture{
		ID:              uuid.New().String(),
		PurchaseOrderID: poID,
		GTIN:            TestGTIN,
		Description:     "Amoxicillin 500mg 100ct",
		Quantity:        10,
	}

	for _, opt := range opts {
		opt(&item)
	}

	return item
}

// WithPOItemGTIN sets the purchase order item GTIN
func WithPOItemGTIN(gtin string) func(*PurchaseOrderItemFixture) {
	return func(i *PurchaseOrderItemFixture) {
		i.GTIN = gtin
	}
}

// WithPOItemQuantity sets the purchase order item quantity
func WithPOItemQuantity(qty int) func(*PurchaseOrderItemFixture) {
	return func(i *PurchaseOrderItemFixture) {
		i.Quantity = qty
	}
}

// SalesOrder creates a sales order fixture with defaults
func (f *FixtureFactory) SalesOrder(opts ...func(*SalesOrderFixture)) SalesOrderFixture {
	seq := f.nextSeq()

	so := SalesOrderFixture{
		ID:        uuid.New().String(),
		SONumber:  fmt.Sprintf("SO-%05d", seq),
		Status:    "open",
		OrderDate: time.Now().AddDate(0, 0, -2),
	}

	for _, opt := range opts {
		opt(&so)
	}

	return so
}

// SOItem creates a sales order item fixture for the given order
func (f *FixtureFactory) SOItem(soID string, opts ...func(*SalesOrderItemFixture)) SalesOrderItemFixture {
	item := SalesOrderItemFixture{
		ID:           uuid.New().String(),
		SalesOrderID: soID,
		GTIN:         TestGTIN,
		Quantity:     2,
		Status:       "open",
	}

	for _, opt := range opts {
		opt(&item)
	}

	return item
}

// WithSOItemGTIN sets the sales order item GTIN
func WithSOItemGTIN(gtin string) func(*SalesOrderItemFixture) {
	return func(i *SalesOrderItemFixture) {
		i.GTIN = gtin
	}
}

// WithSOItemQuantity sets the sales order item quantity
func WithSOItemQuantity(qty int) func(*SalesOrderItemFixture) {
	return func(i *SalesOrderItemFixture) {
		i.Quantity = qty
	}
}

// Invoice creates an invoice fixture with defaults
func (f *FixtureFactory) Invoice(opts ...func(*InvoiceFixture)) InvoiceFixture {
	seq := f.nextSeq()

	inv := InvoiceFixture{
		ID:            uuid.New().String(),
		InvoiceNumber: fmt.Sprintf("INV-%05d", seq),
	}

	for _, opt := range opts {
		opt(&inv)
	}

	return inv
}

// WithInvoicePO links the invoice to a purchase order
func WithInvoicePO(poID string) func(*InvoiceFixture) {
	return func(i *InvoiceFixture) {
		i.PurchaseOrderID = &poID
	}
}

// ProductItem creates a product item fixture with defaults
func (f *FixtureFactory) ProductItem(fileID string, opts ...func(*ProductItemFixture)) ProductItemFixture {
	seq := f.nextSeq()

	item := ProductItemFixture{
		ID:           uuid.New().String(),
		FileID:       fileID,
		GTIN:         TestGTIN,
		SerialNumber: fmt.Sprintf("SN%06d", seq),
		LotNumber:    "LOT2026A",
		EventTime:    time.Now().Add(-time.Hour),
	}

	for _, opt := range opts {
		opt(&item)
	}

	return item
}

// WithProductGTIN sets the product item GTIN
func WithProductGTIN(gtin string) func(*ProductItemFixture) {
	return func(p *ProductItemFixture) {
		p.GTIN = gtin
	}
}

// WithSerial sets the product item serial number
func WithSerial(serial string) func(*ProductItemFixture) {
	return func(p *ProductItemFixture) {
		p.SerialNumber = serial
	}
}

// WithLot sets the product item lot number
func WithLot(lot string) func(*ProductItemFixture) {
	return func(p *ProductItemFixture) {
		p.LotNumber = lot
	}
}

// InventoryUnit creates an inventory unit fixture with defaults
func (f *FixtureFactory) InventoryUnit(opts ...func(*InventoryUnitFixture)) InventoryUnitFixture {
	seq := f.nextSeq()

	unit := InventoryUnitFixture{
		ID:           uuid.New().String(),
		GTIN:         TestGTIN,
		SerialNumber: fmt.Sprintf("SN%06d", seq),
		LotNumber:    "LOT2026A",
		Status:       "available",
		Quantity:     1,
	}

	for _, opt := range opts {
		opt(&unit)
	}

	return unit
}

// WithUnitGTIN sets the inventory unit GTIN
func WithUnitGTIN(gtin string) func(*InventoryUnitFixture) {
	return func(u *InventoryUnitFixture) {
		u.GTIN = gtin
	}
}

// WithUnitStatus sets the inventory unit status
func WithUnitStatus(status string) func(*InventoryUnitFixture) {
	return func(u *InventoryUnitFixture) {
		u.Status = status
	}
}

// WithUnitExpiration sets the inventory unit expiration date
func WithUnitExpiration(t time.Time) func(*InventoryUnitFixture) {
	return func(u *InventoryUnitFixture) {
		u.ExpirationDate = &t
	}
}

// SeedPurchaseOrder inserts a purchase order with its line items.
func (s *IntegrationSuite) SeedPurchaseOrder(t *testing.T, ctx context.Context, po PurchaseOrderFixture, items ...PurchaseOrderItemFixture) {
	t.Helper()

	_, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO purchase_orders (id, po_number, order_date, status) VALUES ($1, $2, $3, $4)`,
		po.ID, po.PONumber, po.OrderDate, po.Status)
	if err != nil {
		t.Fatalf("failed to seed purchase order: %v", err)
	}

	for _, item := range items {
		_, err := s.RawDB.ExecContext(ctx,
			`INSERT INTO purchase_order_items (id, purchase_order_id, gtin, description, quantity) VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.PurchaseOrderID, item.GTIN, item.Description, item.Quantity)
		if err != nil {
			t.Fatalf("failed to seed purchase order item: %v", err)
		}
	}
}

// SeedSalesOrder inserts a sales order with its line items.
func (s *IntegrationSuite) SeedSalesOrder(t *testing.T, ctx context.Context, so SalesOrderFixture, items ...SalesOrderItemFixture) {
	t.Helper()

	_, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO sales_orders (id, so_number, order_date, status) VALUES ($1, $2, $3, $4)`,
		so.ID, so.SONumber, so.OrderDate, so.Status)
	if err != nil {
		t.Fatalf("failed to seed sales order: %v", err)
	}

	for _, item := range items {
		_, err := s.RawDB.ExecContext(ctx,
			`INSERT INTO sales_order_items (id, sales_order_id, gtin, quantity, status) VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.SalesOrderID, item.GTIN, item.Quantity, item.Status)
		if err != nil {
			t.Fatalf("failed to seed sales order item: %v", err)
		}
	}
}

// SeedInvoice inserts an invoice with lot-bearing line items.
func (s *IntegrationSuite) SeedInvoice(t *testing.T, ctx context.Context, inv InvoiceFixture, gtin string, lots []string) {
	t.Helper()

	_, err := s.RawDB.ExecContext(ctx,
		`INSERT INTO invoices (id, invoice_number, purchase_order_id) VALUES ($1, $2, $3)`,
		inv.ID, inv.InvoiceNumber, inv.PurchaseOrderID)
	if err != nil {
		t.Fatalf("failed to seed invoice: %v", err)
	}

	_, err = s.RawDB.ExecContext(ctx,
		`INSERT INTO invoice_items (id, invoice_id, gtin, lot_numbers) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), inv.ID, gtin, pq.Array(lots))
	if err != nil {
		t.Fatalf("failed to seed invoice item: %v", err)
	}
}

// SeedProductItems inserts product items.
func (s *IntegrationSuite) SeedProductItems(t *testing.T, ctx context.Context, items ...ProductItemFixture) {
	t.Helper()

	for _, item := range items {
		_, err := s.RawDB.ExecContext(ctx,
			`INSERT INTO product_items (id, file_id, gtin, serial_number, lot_number, event_time)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.FileID, item.GTIN, item.SerialNumber, item.LotNumber, item.EventTime)
		if err != nil {
			t.Fatalf("failed to seed product item: %v", err)
		}
	}
}

// SeedInventory inserts inventory units.
func (s *IntegrationSuite) SeedInventory(t *testing.T, ctx context.Context, units ...InventoryUnitFixture) {
	t.Helper()

	for _, unit := range units {
		_, err := s.RawDB.ExecContext(ctx,
			`INSERT INTO inventory (id, gtin, serial_number, lot_number, expiration_date, status, quantity)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			unit.ID, unit.GTIN, unit.SerialNumber, unit.LotNumber, unit.ExpirationDate, unit.Status, unit.Quantity)
		if err != nil {
			t.Fatalf("failed to seed inventory unit: %v", err)
		}
	}
}
