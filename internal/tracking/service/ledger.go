package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmtrace/pharmtrace-backend/internal/identity/codec"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/events"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/actor"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// allowedTransitions is the inventory state machine. shipped, expired and
// damaged are terminal.
var allowedTransitions = map[string]map[string]bool{
	repository.StatusAvailable: {
		repository.StatusAllocated: true,
		repository.StatusExpired:   true,
		repository.StatusDamaged:   true,
	},
	repository.StatusAllocated: {
		repository.StatusShipped: true,
		repository.StatusExpired: true,
		repository.StatusDamaged: true,
	},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to string) bool {
	return allowedTransitions[from][to]
}

// IsTerminalStatus reports whether a status admits no further transitions.
func IsTerminalStatus(status string) bool {
	return len(allowedTransitions[status]) == 0
}

// ReceiveCommand creates a new inventory unit.
type ReceiveCommand struct {
	GTIN           string     `json:"gtin" validate:"required"`
	SerialNumber   string     `json:"serial_number" validate:"required"`
	LotNumber      *string    `json:"lot_number,omitempty"`
	ExpirationDate *time.Time `json:"expiration_date,omitempty"`
	Quantity       int        `json:"quantity" validate:"omitempty,min=1"`
	LocationID     *string    `json:"location_id,omitempty"`
	POItemID       *string    `json:"po_item_id,omitempty"`
}

// StatusChangeCommand forces a unit to damaged or expired.
type StatusChangeCommand struct {
	InventoryID string `json:"inventory_id" validate:"required,uuid"`
	FromStatus  string `json:"from_status" validate:"required,oneof=available allocated"`
	ToStatus    string `json:"to_status" validate:"required,oneof=damaged expired"`
	Notes       string `json:"notes" validate:"required"`
}

// TransferCommand moves a unit to a new location without changing status.
type TransferCommand struct {
	InventoryID string  `json:"inventory_id" validate:"required,uuid"`
	LocationID  *string `json:"location_id" validate:"required"`
	Notes       string  `json:"notes,omitempty"`
}

// LedgerService performs inventory status transitions. Every transition is
// paired with exactly one ledger entry, written in the same database
// transaction as the status update.
type LedgerService struct {
	invStore  InventoryStore
	txStore   TransactionStore
	db        Transactor
	publisher *events.TrackingEventPublisher
	logger    *logger.Logger
}

// NewLedgerService creates a new ledger service
func NewLedgerService(
	invStore InventoryStore,
	txStore TransactionStore,
	db Transactor,
	publisher *events.TrackingEventPublisher,
	log *logger.Logger,
) *LedgerService {
	return &LedgerService{
		invStore:  invStore,
		txStore:   txStore,
		db:        db,
		publisher: publisher,
		logger:    log,
	}
}

// Receive creates an inventory row in available status with its receive
// ledger entry. A unit already known by (gtin, serial) is rejected.
func (s *LedgerService) Receive(ctx context.Context, cmd ReceiveCommand) (*repository.Inventory, error) {
	if !codec.IsGTIN14(cmd.GTIN) {
		gtin, err := codec.NDCToGTIN(cmd.GTIN)
		if err != nil {
			return nil, errors.InvalidFormat("gtin must be 14 digits or a valid NDC")
		}
		cmd.GTIN = gtin
	}
	if cmd.SerialNumber == "" {
		return nil, errors.InvalidFormat("serial number must not be empty")
	}
	if cmd.Quantity == 0 {
		cmd.Quantity = 1
	}

	inv := &repository.Inventory{
		GTIN:           cmd.GTIN,
		SerialNumber:   cmd.SerialNumber,
		LotNumber:      cmd.LotNumber,
		ExpirationDate: cmd.ExpirationDate,
		Status:         repository.StatusAvailable,
		Quantity:       cmd.Quantity,
		LocationID:     cmd.LocationID,
		POItemID:       cmd.POItemID,
	}

	ledgerEntry := &repository.InventoryTransaction{
		TransactionType: repository.TxTypeReceive,
		ToStatus:        repository.StatusAvailable,
		Quantity:        cmd.Quantity,
		LocationID:      cmd.LocationID,
		PerformedBy:     actor.ID(ctx),
	}
	if cmd.POItemID != nil {
		refType := "purchase_order_item"
		ledgerEntry.ReferenceType = &refType
		ledgerEntry.ReferenceID = cmd.POItemID
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		if err := s.invStore.CreateTx(ctx, tx, inv); err != nil {
			return err
		}
		ledgerEntry.InventoryID = inv.ID
		return s.txStore.InsertTx(ctx, tx, ledgerEntry)
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishInventoryTransition(ctx, inv, ledgerEntry)

	s.logger.Info().
		Str("inventory_id", inv.ID).
		Str("gtin", inv.GTIN).
		Str("serial_number", inv.SerialNumber).
		Msg("inventory received")

	return inv, nil
}

// ChangeStatus forces a unit to damaged or expired with an optimistic
// concurrency guard on the declared from status.
func (s *LedgerService) ChangeStatus(ctx context.Context, cmd StatusChangeCommand) (*repository.Inventory, error) {
	if !CanTransition(cmd.FromStatus, cmd.ToStatus) {
		return nil, errors.InvalidTransition(cmd.InventoryID, cmd.FromStatus, cmd.ToStatus)
	}

	var inv *repository.Inventory
	fromStatus := cmd.FromStatus
	notes := cmd.Notes
	ledgerEntry := &repository.InventoryTransaction{
		InventoryID:     cmd.InventoryID,
		TransactionType: repository.TxTypeStatusChange,
		FromStatus:      &fromStatus,
		ToStatus:        cmd.ToStatus,
		Notes:           &notes,
		PerformedBy:     actor.ID(ctx),
	}

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.invStore.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
			InventoryID: cmd.InventoryID,
			FromStatus:  cmd.FromStatus,
			ToStatus:    cmd.ToStatus,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return s.transitionConflict(ctx, cmd.InventoryID, cmd.FromStatus)
		}

		if err := s.txStore.InsertTx(ctx, tx, ledgerEntry); err != nil {
			return err
		}

		inv, err = s.invStore.GetByIDForUpdate(ctx, tx, cmd.InventoryID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishInventoryTransition(ctx, inv, ledgerEntry)

	s.logger.Info().
		Str("inventory_id", inv.ID).
		Str("from_status", cmd.FromStatus).
		Str("to_status", cmd.ToStatus).
		Msg("inventory status changed")

	return inv, nil
}

// Transfer moves a unit between locations. Terminal units cannot move.
func (s *LedgerService) Transfer(ctx context.Context, cmd TransferCommand) (*repository.Inventory, error) {
	var inv *repository.Inventory
	var ledgerEntry *repository.InventoryTransaction

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		current, err := s.invStore.GetByIDForUpdate(ctx, tx, cmd.InventoryID)
		if err != nil {
			return err
		}
		if IsTerminalStatus(current.Status) {
			return errors.InvalidTransition(cmd.InventoryID, current.Status, current.Status)
		}

		affected, err := s.invStore.UpdateLocationTx(ctx, tx, cmd.InventoryID, current.Status, cmd.LocationID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.ConcurrentModification(cmd.InventoryID, current.Status)
		}

		status := current.Status
		ledgerEntry = &repository.InventoryTransaction{
			InventoryID:     cmd.InventoryID,
			TransactionType: repository.TxTypeTransfer,
			FromStatus:      &status,
			ToStatus:        status,
			FromLocationID:  current.LocationID,
			LocationID:      cmd.LocationID,
			PerformedBy:     actor.ID(ctx),
		}
		if cmd.Notes != "" {
			notes := cmd.Notes
			ledgerEntry.Notes = &notes
		}
		if err := s.txStore.InsertTx(ctx, tx, ledgerEntry); err != nil {
			return err
		}

		inv, err = s.invStore.GetByIDForUpdate(ctx, tx, cmd.InventoryID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publisher.PublishInventoryTransition(ctx, inv, ledgerEntry)

	return inv, nil
}

// Get returns one inventory row.
func (s *LedgerService) Get(ctx context.Context, id string) (*repository.Inventory, error) {
	return s.invStore.GetByID(ctx, id)
}

// GetBySGTIN returns the inventory row for a serialized GTIN.
func (s *LedgerService) GetBySGTIN(ctx context.Context, gtin, serial string) (*repository.Inventory, error) {
	return s.invStore.GetBySGTIN(ctx, gtin, serial)
}

// ListByStatus lists inventory rows by status with paging.
func (s *LedgerService) ListByStatus(ctx context.Context, status string, page, perPage int) ([]*repository.Inventory, int64, error) {
	if _, known := allowedTransitions[status]; !known &&
		status != repository.StatusShipped &&
		status != repository.StatusExpired &&
		status != repository.StatusDamaged {
		return nil, 0, errors.BadRequest("unknown inventory status: " + status)
	}
	return s.invStore.ListByStatus(ctx, status, page, perPage)
}

// History returns the ledger of one inventory row, oldest first.
func (s *LedgerService) History(ctx context.Context, inventoryID string) ([]*repository.InventoryTransaction, error) {
	if _, err := s.invStore.GetByID(ctx, inventoryID); err != nil {
		return nil, err
	}
	return s.txStore.ListByInventory(ctx, inventoryID)
}

// transitionConflict classifies a guarded update that touched no rows.
func (s *LedgerService) transitionConflict(ctx context.Context, inventoryID, expected string) error {
	if _, err := s.invStore.GetByID(ctx, inventoryID); err != nil {
		return err
	}
	return errors.ConcurrentModification(inventoryID, expected)
}
