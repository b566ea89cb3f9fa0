package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
)

// Transactor runs a function inside a database transaction. database.DB
// satisfies it in production; test doubles invoke the function with a nil tx.
type Transactor interface {
	Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error
}

// InventoryStore is the inventory persistence needed by the services.
type InventoryStore interface {
	CreateTx(ctx context.Context, tx *sqlx.Tx, inv *repository.Inventory) error
	GetByID(ctx context.Context, id string) (*repository.Inventory, error)
	GetBySGTIN(ctx context.Context, gtin, serial string) (*repository.Inventory, error)
	GetByIDForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*repository.Inventory, error)
	SelectAvailableForUpdate(ctx context.Context, tx *sqlx.Tx, gtin string, limit int) ([]*repository.Inventory, error)
	SelectAllocatedBySOItemForUpdate(ctx context.Context, tx *sqlx.Tx, soItemID string) ([]*repository.Inventory, error)
	SelectExpiredForUpdate(ctx context.Context, tx *sqlx.Tx, asOf time.Time, limit int) ([]*repository.Inventory, error)
	CountAvailable(ctx context.Context, gtin string) (int, error)
	UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, u repository.StatusUpdate) (int64, error)
	UpdateLocationTx(ctx context.Context, tx *sqlx.Tx, id, currentStatus string, locationID *string) (int64, error)
	ListByStatus(ctx context.Context, status string, page, perPage int) ([]*repository.Inventory, int64, error)
	StatusCounts(ctx context.Context) (map[string]int64, error)
	CountExpiringWithin(ctx context.Context, deadline time.Time) (int64, error)
}

// TransactionStore is the ledger persistence needed by the services.
type TransactionStore interface {
	InsertTx(ctx context.Context, tx *sqlx.Tx, t *repository.InventoryTransaction) error
	ListByInventory(ctx context.Context, inventoryID string) ([]*repository.InventoryTransaction, error)
	ListByReference(ctx context.Context, refType, refID string) ([]*repository.InventoryTransaction, error)
	CountSince(ctx context.Context, txType string, since time.Time) (int64, error)
}

// OrderStore is the order reference data needed by the services.
type OrderStore interface {
	GetPOByID(ctx context.Context, id string) (*repository.PurchaseOrder, error)
	GetPOByNumber(ctx context.Context, poNumber string) (*repository.PurchaseOrder, error)
	ListPOItems(ctx context.Context, poID string) ([]*repository.PurchaseOrderItem, error)
	ListPOItemGTINs(ctx context.Context, poID string) ([]string, error)
	FindPOsByItemGTINs(ctx context.Context, gtins []string) ([]string, error)
	GetInvoiceByNumber(ctx context.Context, invoiceNumber string) (*repository.Invoice, error)
	ListInvoiceItems(ctx context.Context, invoiceID string) ([]*repository.InvoiceItem, error)
	GetSOByID(ctx context.Context, id string) (*repository.SalesOrder, error)
	GetSOForUpdate(ctx context.Context, tx *sqlx.Tx, id string) (*repository.SalesOrder, error)
	GetSOItemByID(ctx context.Context, id string) (*repository.SalesOrderItem, error)
	ListSOItems(ctx context.Context, soID string) ([]*repository.SalesOrderItem, error)
	ListSOItemsForUpdate(ctx context.Context, tx *sqlx.Tx, soID string) ([]*repository.SalesOrderItem, error)
	UpdateSOItemAllocationTx(ctx context.Context, tx *sqlx.Tx, itemID string, quantityAllocated int, status string) error
	MarkSOItemShippedTx(ctx context.Context, tx *sqlx.Tx, itemID string, serials []string) error
	MarkSOShippedTx(ctx context.Context, tx *sqlx.Tx, soID string) (time.Time, error)
	UpdateSOStatusTx(ctx context.Context, tx *sqlx.Tx, soID, status string) error
}

// ProductItemStore is the EPCIS product item persistence needed by the services.
type ProductItemStore interface {
	CreateBatch(ctx context.Context, fileID string, items []*repository.ProductItem) (int, error)
	FindBySGTIN(ctx context.Context, gtin, serial string) (*repository.ProductItem, error)
	FindByLot(ctx context.Context, gtin, lot string) ([]*repository.ProductItem, error)
	ListByFile(ctx context.Context, fileID string) ([]*repository.ProductItem, error)
	FileIDsByLots(ctx context.Context, lots []string) ([]string, error)
	FileIDsByGTINs(ctx context.Context, gtins []string) ([]string, error)
	DistinctGTINsByFile(ctx context.Context, fileID string) ([]string, error)
	BackfillPO(ctx context.Context, fileID, poID string) (int64, error)
}

// ScanStore is the validation session persistence needed by the services.
type ScanStore interface {
	CreateSession(ctx context.Context, s *repository.ValidationSession) error
	GetSession(ctx context.Context, id string) (*repository.ValidationSession, error)
	InsertScanAndCount(ctx context.Context, item *repository.ScannedItem) error
	CompleteSession(ctx context.Context, id string) (*repository.ValidationSession, error)
	ListScans(ctx context.Context, sessionID string) ([]*repository.ScannedItem, error)
	ListSessionsByPO(ctx context.Context, poID string) ([]*repository.ValidationSession, error)
}

// AssociationStore is the EPCIS association persistence needed by the services.
type AssociationStore interface {
	Upsert(ctx context.Context, a *repository.EpcisPoAssociation) error
	ListByFile(ctx context.Context, fileID string) ([]*repository.EpcisPoAssociation, error)
	ListByPO(ctx context.Context, poID string) ([]*repository.EpcisPoAssociation, error)
	FileIDsByPOs(ctx context.Context, poIDs []string) ([]string, error)
}
