package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pharmtrace/pharmtrace-backend/pkg/database"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
)

// Sales order and line item status values
const (
	OrderStatusOpen               = "open"
	OrderStatusAllocated          = "allocated"
	OrderStatusPartiallyAllocated = "partially_allocated"
	OrderStatusShipped            = "shipped"
)

// PurchaseOrder is an inbound order against which received product is verified.
type PurchaseOrder struct {
	ID         string     `db:"id" json:"id"`
	PONumber   string     `db:"po_number" json:"po_number"`
	SupplierID *string    `db:"supplier_id" json:"supplier_id,omitempty"`
	OrderDate  *time.Time `db:"order_date" json:"order_date,omitempty"`
	Status     string     `db:"status" json:"status"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}

// PurchaseOrderItem is one line of a purchase order.
type PurchaseOrderItem struct {
	ID              string  `db:"id" json:"id"`
	PurchaseOrderID string  `db:"purchase_order_id" json:"purchase_order_id"`
	GTIN            *string `db:"gtin" json:"gtin,omitempty"`
	NDC             *string `db:"ndc" json:"ndc,omitempty"`
	Description     *string `db:"description" json:"description,omitempty"`
	Quantity        int     `db:"quantity" json:"quantity"`
}

// SalesOrder is an outbound order fulfilled from inventory.
type SalesOrder struct {
	ID          string     `db:"id" json:"id"`
	SONumber    string     `db:"so_number" json:"so_number"`
	CustomerID  *string    `db:"customer_id" json:"customer_id,omitempty"`
	OrderDate   *time.Time `db:"order_date" json:"order_date,omitempty"`
	Status      string     `db:"status" json:"status"`
	ShippedDate *time.Time `db:"shipped_date" json:"shipped_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// SalesOrderItem is one line of a sales order. QuantityAllocated tracks how
// many physical units are currently reserved for it; SerialNumbersShipped
// records which serials left the warehouse against it.
type SalesOrderItem struct {
	ID                   string         `db:"id" json:"id"`
	SalesOrderID         string         `db:"sales_order_id" json:"sales_order_id"`
	GTIN                 string         `db:"gtin" json:"gtin"`
	Description          *string        `db:"description" json:"description,omitempty"`
	Quantity             int            `db:"quantity" json:"quantity"`
	QuantityAllocated    int            `db:"quantity_allocated" json:"quantity_allocated"`
	QuantityShipped      int            `db:"quantity_shipped" json:"quantity_shipped"`
	SerialNumbersShipped pq.StringArray `db:"serial_numbers_shipped" json:"serial_numbers_shipped,omitempty"`
	Status               string         `db:"status" json:"status"`
}

// Invoice links supplier paperwork to a purchase order.
type Invoice struct {
	ID              string     `db:"id" json:"id"`
	InvoiceNumber   string     `db:"invoice_number" json:"invoice_number"`
	PurchaseOrderID *string    `db:"purchase_order_id" json:"purchase_order_id,omitempty"`
	InvoiceDate     *time.Time `db:"invoice_date" json:"invoice_date,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// InvoiceItem is one line of an invoice, carrying the lot numbers it covers.
type InvoiceItem struct {
	ID         string         `db:"id" json:"id"`
	InvoiceID  string         `db:"invoice_id" json:"invoice_id"`
	GTIN       *string        `db:"gtin" json:"gtin,omitempty"`
	NDC        *string        `db:"ndc" json:"ndc,omitempty"`
	LotNumbers pq.StringArray `db:"lot_numbers" json:"lot_numbers"`
	Quantity   int            `db:"quantity" json:"quantity"`
}

// OrderRepository handles purchase orders, sales orders and invoices
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// GetPOByID gets a purchase order by id
func (r *OrderRepository) GetPOByID(ctx context.Context, id string) (*PurchaseOrder, error) {
	var po PurchaseOrder

	err := r.db.GetContext(ctx, &po, `
		SELECT id, po_number, supplier_id, order_date, status, created_at, updated_at
		FROM purchase_orders WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("purchase order")
	}
	if err != nil {
		return nil, err
	}

	return &po, nil
}

// GetPOByNumber gets a purchase order by its external number
func (r *OrderRepository) GetPOByNumber(ctx context.Context, poNumber string) (*PurchaseOrder, error) {
	var po PurchaseOrder

	err := r.db.GetContext(ctx, &po, `
		SELECT id, po_number, supplier_id, order_date, status, created_at, updated_at
		FROM purchase_orders WHERE po_number = $1
	`, poNumber)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("purchase order")
	}
	if err != nil {
		return nil, err
	}

	return &po, nil
}

// ListPOItems returns the line items of a purchase order.
func (r *OrderRepository) ListPOItems(ctx context.Context, poID string) ([]*PurchaseOrderItem, error) {
	items := []*PurchaseOrderItem{}

	err := r.db.SelectContext(ctx, &items, `
		SELECT id, purchase_order_id, gtin, ndc, description, quantity
		FROM purchase_order_items
		WHERE purchase_order_id = $1
		ORDER BY id
	`, poID)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// ListPOItemGTINs returns the distinct GTINs on a purchase order's line items.
func (r *OrderRepository) ListPOItemGTINs(ctx context.Context, poID string) ([]string, error) {
	gtins := []string{}

	err := r.db.SelectContext(ctx, &gtins, `
		SELECT DISTINCT gtin FROM purchase_order_items
		WHERE purchase_order_id = $1 AND gtin IS NOT NULL
	`, poID)
	if err != nil {
		return nil, err
	}

	return gtins, nil
}

// FindPOsByItemGTINs returns ids of purchase orders whose line items include
// any of the given GTINs, most recent first.
func (r *OrderRepository) FindPOsByItemGTINs(ctx context.Context, gtins []string) ([]string, error) {
	if len(gtins) == 0 {
		return nil, nil
	}

	ids := []string{}

	err := r.db.SelectContext(ctx, &ids, `
		SELECT DISTINCT po.id
		FROM purchase_orders po
		JOIN purchase_order_items poi ON poi.purchase_order_id = po.id
		WHERE poi.gtin = ANY($1)
		ORDER BY po.id
	`, pq.Array(gtins))
	if err != nil {
		return nil, err
	}

	return ids, nil
}

// GetInvoiceByNumber gets an invoice by its external number
func (r *OrderRepository) GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*Invoice, error) {
	var inv Invoice

	err := r.db.GetContext(ctx, &inv, `
		SELECT id, invoice_number, purchase_order_id, invoice_date, created_at
		FROM invoices WHERE invoice_number = $1
	`, invoiceNumber)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("invoice")
	}
	if err != nil {
		return nil, err
	}

	return &inv, nil
}

// ListInvoiceItems returns the line items of an invoice.
func (r *OrderRepository) ListInvoiceItems(ctx context.Context, invoiceID string) ([]*InvoiceItem, error) {
	items := []*InvoiceItem{}

	err := r.db.SelectContext(ctx, &items, `
		SELECT id, invoice_id, gtin, ndc, lot_numbers, quantity
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// FindInvoiceLotsByPO collects the lot numbers named on all invoices tied to a
// purchase order.
func (r *OrderRepository) FindInvoiceLotsByPO(ctx context.Context, poID string) ([]string, error) {
	var arrays []pq.StringArray

	err := r.db.SelectContext(ctx, &arrays, `
		SELECT ii.lot_numbers
		FROM invoice_items ii
		JOIN invoices i ON i.id = ii.invoice_id
		WHERE i.purchase_order_id = $1 AND ii.lot_numbers IS NOT NULL
	`, poID)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	lots := []string{}
	for _, arr := range arrays {
		for _, lot := range arr {
			if lot != "" && !seen[lot] {
				seen[lot] = true
				lots = append(lots, lot)
			}
		}
	}

	return lots, nil
}

// GetSOByID gets a sales order by id
func (r *OrderRepository) GetSOByID(ctx context.Context, id string) (*SalesOrder, error) {
	var so SalesOrder

	err := r.db.GetContext(ctx, &so, `
		SELECT id, so_number, customer_id, order_date, status, shipped_date, created_at, updated_at
		FROM sales_orders WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("sales order")
	}
	if err != nil {
		return nil, err
	}

	return &so, nil
}

// GetSOForUpdate locks a sales order row inside a transaction.
func (r *OrderRepository) GetSOForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*SalesOrder, error) {
	var so SalesOrder

	err := tx.GetContext(ctx, &so, `
		SELECT id, so_number, customer_id, order_date, status, shipped_date, created_at, updated_at
		FROM sales_orders WHERE id = $1 FOR UPDATE
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("sales order")
	}
	if err != nil {
		return nil, err
	}

	return &so, nil
}

// GetSOItemByID gets a sales order line item by id
func (r *OrderRepository) GetSOItemByID(ctx context.Context, id string) (*SalesOrderItem, error) {
	var item SalesOrderItem

	err := r.db.GetContext(ctx, &item, `
		SELECT id, sales_order_id, gtin, description, quantity, quantity_allocated,
		       quantity_shipped, serial_numbers_shipped, status
		FROM sales_order_items WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, errors.NotFound("sales order item")
	}
	if err != nil {
		return nil, err
	}

	return &item, nil
}

// ListSOItems returns the line items of a sales order.
func (r *OrderRepository) ListSOItems(ctx context.Context, soID string) ([]*SalesOrderItem, error) {
	items := []*SalesOrderItem{}

	err := r.db.SelectContext(ctx, &items, `
		SELECT id, sales_order_id, gtin, description, quantity, quantity_allocated,
		       quantity_shipped, serial_numbers_shipped, status
		FROM sales_order_items
		WHERE sales_order_id = $1
		ORDER BY id
	`, soID)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// ListSOItemsForUpdate locks all line items of a sales order.
func (r *OrderRepository) ListSOItemsForUpdate(ctx context.Context, tx *sqlx.Tx, soID string) ([]*SalesOrderItem, error) {
	items := []*SalesOrderItem{}

	err := tx.SelectContext(ctx, &items, `
		SELECT id, sales_order_id, gtin, description, quantity, quantity_allocated,
		       quantity_shipped, serial_numbers_shipped, status
		FROM sales_order_items
		WHERE sales_order_id = $1
		ORDER BY id
		FOR UPDATE
	`, soID)
	if err != nil {
		return nil, err
	}

	return items, nil
}

// UpdateSOItemAllocationTx records the new allocated quantity and status of a
// line item.
func (r *OrderRepository) UpdateSOItemAllocationTx(ctx context.Context, tx *sqlx.Tx, itemID string, quantityAllocated int, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sales_order_items
		SET quantity_allocated = $1, status = $2
		WHERE id = $3
	`, quantityAllocated, status, itemID)
	return err
}

// MarkSOItemShippedTx records the shipped serials of one line item and moves
// it to shipped.
func (r *OrderRepository) MarkSOItemShippedTx(ctx context.Context, tx *sqlx.Tx, itemID string, serials []string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sales_order_items
		SET status = 'shipped', quantity_shipped = $1, serial_numbers_shipped = $2
		WHERE id = $3
	`, len(serials), pq.Array(serials), itemID)
	return err
}

// MarkSOShippedTx stamps the order shipped inside the transaction and
// returns the shipped timestamp.
func (r *OrderRepository) MarkSOShippedTx(ctx context.Context, tx *sqlx.Tx, soID string) (time.Time, error) {
	var shippedAt time.Time
	err := tx.QueryRowxContext(ctx, `
		UPDATE sales_orders
		SET status = 'shipped', shipped_date = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING shipped_date
	`, soID).Scan(&shippedAt)
	return shippedAt, err
}

// UpdateSOStatusTx updates the sales order status from allocation results.
func (r *OrderRepository) UpdateSOStatusTx(ctx context.Context, tx *sqlx.Tx, soID, status string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE sales_orders SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, soID)
	return err
}
