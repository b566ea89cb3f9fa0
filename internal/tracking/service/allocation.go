package service

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/events"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/actor"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

const refTypeSalesOrderItem = "sales_order_item"
const refTypeSalesOrder = "sales_order"

// AllocationResult reports the outcome of one allocation request.
type AllocationResult struct {
	SOItem       *repository.SalesOrderItem `json:"so_item"`
	AllocatedNow int                        `json:"allocated_now"`
	Units        []*repository.Inventory    `json:"units"`
}

// ShipmentResult reports a completed order shipment.
type ShipmentResult struct {
	SalesOrder *repository.SalesOrder  `json:"sales_order"`
	UnitCount  int                     `json:"unit_count"`
	Units      []*repository.Inventory `json:"units"`
}

// AllocationService reserves available inventory against sales order demand
// and ships reserved inventory when an order closes. All multi-row work runs
// in a single database transaction so two racing allocations can never
// reserve the same unit.
type AllocationService struct {
	invStore   InventoryStore
	txStore    TransactionStore
	orderStore OrderStore
	db         Transactor
	publisher  *events.TrackingEventPublisher
	logger     *logger.Logger
}

// NewAllocationService creates a new allocation service
func NewAllocationService(
	invStore InventoryStore,
	txStore TransactionStore,
	orderStore OrderStore,
	db Transactor,
	publisher *events.TrackingEventPublisher,
	log *logger.Logger,
) *AllocationService {
	return &AllocationService{
		invStore:   invStore,
		txStore:    txStore,
		orderStore: orderStore,
		db:         db,
		publisher:  publisher,
		logger:     log,
	}
}

// Allocate reserves available units for a sales order item, oldest-received
// first. With no units available it fails with InsufficientInventory; with
// some but not all it reserves what exists and leaves the item partially
// allocated.
func (s *AllocationService) Allocate(ctx context.Context, soItemID string) (*AllocationResult, error) {
	performedBy := actor.ID(ctx)

	// Resolve the order id first so the transaction can lock all of the
	// order's line items in one pass, in a stable order.
	preread, err := s.orderStore.GetSOItemByID(ctx, soItemID)
	if err != nil {
		return nil, err
	}

	var result *AllocationResult
	var ledgerEntries []*repository.InventoryTransaction

	err = s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		items, err := s.orderStore.ListSOItemsForUpdate(ctx, tx, preread.SalesOrderID)
		if err != nil {
			return err
		}

		var item *repository.SalesOrderItem
		for _, candidate := range items {
			if candidate.ID == soItemID {
				item = candidate
				break
			}
		}
		if item == nil {
			return errors.NotFound("sales order item")
		}
		if item.Status == repository.OrderStatusShipped {
			return errors.InvalidTransition(item.ID, item.Status, repository.OrderStatusAllocated)
		}

		remaining := item.Quantity - item.QuantityAllocated
		if remaining <= 0 {
			return errors.Conflict("sales order item is already fully allocated")
		}

		units, err := s.invStore.SelectAvailableForUpdate(ctx, tx, item.GTIN, remaining)
		if err != nil {
			return err
		}
		if len(units) == 0 {
			return errors.InsufficientInventory(item.GTIN, remaining, 0)
		}

		for _, unit := range units {
			affected, err := s.invStore.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
				InventoryID: unit.ID,
				FromStatus:  repository.StatusAvailable,
				ToStatus:    repository.StatusAllocated,
				SetSOItem:   &item.ID,
			})
			if err != nil {
				return err
			}
			if affected == 0 {
				return errors.ConcurrentModification(unit.ID, repository.StatusAvailable)
			}

			fromStatus := repository.StatusAvailable
			refType := refTypeSalesOrderItem
			entry := &repository.InventoryTransaction{
				InventoryID:     unit.ID,
				TransactionType: repository.TxTypeAllocation,
				FromStatus:      &fromStatus,
				ToStatus:        repository.StatusAllocated,
				Quantity:        unit.Quantity,
				ReferenceType:   &refType,
				ReferenceID:     &item.ID,
				PerformedBy:     performedBy,
			}
			if err := s.txStore.InsertTx(ctx, tx, entry); err != nil {
				return err
			}
			ledgerEntries = append(ledgerEntries, entry)

			unit.Status = repository.StatusAllocated
			unit.SOItemID = &item.ID
		}

		item.QuantityAllocated += len(units)
		itemStatus := repository.OrderStatusPartiallyAllocated
		if item.QuantityAllocated >= item.Quantity {
			itemStatus = repository.OrderStatusAllocated
		}
		if err := s.orderStore.UpdateSOItemAllocationTx(ctx, tx, item.ID, item.QuantityAllocated, itemStatus); err != nil {
			return err
		}
		item.Status = itemStatus

		if err := s.rollUpOrderStatusTx(ctx, tx, item.SalesOrderID, items); err != nil {
			return err
		}

		result = &AllocationResult{
			SOItem:       item,
			AllocatedNow: len(units),
			Units:        units,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, unit := range result.Units {
		s.publisher.PublishInventoryTransition(ctx, unit, ledgerEntries[i])
	}

	s.logger.Info().
		Str("so_item_id", soItemID).
		Int("allocated_now", result.AllocatedNow).
		Str("item_status", result.SOItem.Status).
		Msg("inventory allocated")

	return result, nil
}

// Ship transitions every allocated unit of the order to shipped and closes
// the order. The order ships all-or-nothing: a line item without full
// allocation aborts the whole shipment.
func (s *AllocationService) Ship(ctx context.Context, soID string) (*ShipmentResult, error) {
	performedBy := actor.ID(ctx)

	var result *ShipmentResult
	var ledgerEntries []*repository.InventoryTransaction

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		so, err := s.orderStore.GetSOForUpdate(ctx, tx, soID)
		if err != nil {
			return err
		}
		if so.Status == repository.OrderStatusShipped {
			return errors.Conflict("sales order is already shipped")
		}

		items, err := s.orderStore.ListSOItemsForUpdate(ctx, tx, soID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return errors.BadRequest("sales order has no items")
		}

		var shipped []*repository.Inventory

		for _, item := range items {
			units, err := s.invStore.SelectAllocatedBySOItemForUpdate(ctx, tx, item.ID)
			if err != nil {
				return err
			}
			if len(units) < item.Quantity {
				return errors.InsufficientInventory(item.GTIN, item.Quantity, len(units))
			}

			serials := make([]string, 0, len(units))
			for _, unit := range units {
				affected, err := s.invStore.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
					InventoryID:   unit.ID,
					FromStatus:    repository.StatusAllocated,
					ToStatus:      repository.StatusShipped,
					ClearLocation: true,
				})
				if err != nil {
					return err
				}
				if affected == 0 {
					return errors.ConcurrentModification(unit.ID, repository.StatusAllocated)
				}

				fromStatus := repository.StatusAllocated
				refType := refTypeSalesOrder
				entry := &repository.InventoryTransaction{
					InventoryID:     unit.ID,
					TransactionType: repository.TxTypeShipment,
					FromStatus:      &fromStatus,
					ToStatus:        repository.StatusShipped,
					Quantity:        unit.Quantity,
					ReferenceType:   &refType,
					ReferenceID:     &so.ID,
					PerformedBy:     performedBy,
				}
				if err := s.txStore.InsertTx(ctx, tx, entry); err != nil {
					return err
				}
				ledgerEntries = append(ledgerEntries, entry)

				unit.Status = repository.StatusShipped
				unit.LocationID = nil
				serials = append(serials, unit.SerialNumber)
				shipped = append(shipped, unit)
			}

			if err := s.orderStore.MarkSOItemShippedTx(ctx, tx, item.ID, serials); err != nil {
				return err
			}
		}

		shippedAt, err := s.orderStore.MarkSOShippedTx(ctx, tx, so.ID)
		if err != nil {
			return err
		}
		so.Status = repository.OrderStatusShipped
		so.ShippedDate = &shippedAt

		result = &ShipmentResult{
			SalesOrder: so,
			UnitCount:  len(shipped),
			Units:      shipped,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, unit := range result.Units {
		s.publisher.PublishInventoryTransition(ctx, unit, ledgerEntries[i])
	}
	s.publisher.PublishOrderShipped(ctx, soID, len(result.Units), result.UnitCount, performedBy)

	s.logger.Info().
		Str("sales_order_id", soID).
		Int("unit_count", result.UnitCount).
		Msg("sales order shipped")

	return result, nil
}

// Availability reports how many units can currently satisfy a GTIN.
func (s *AllocationService) Availability(ctx context.Context, gtin string) (int, error) {
	return s.invStore.CountAvailable(ctx, gtin)
}

// rollUpOrderStatusTx derives the order status from its line items.
func (s *AllocationService) rollUpOrderStatusTx(ctx context.Context, tx *sqlx.Tx, soID string, items []*repository.SalesOrderItem) error {
	allAllocated := true
	anyAllocated := false
	for _, item := range items {
		if item.QuantityAllocated > 0 {
			anyAllocated = true
		}
		if item.QuantityAllocated < item.Quantity {
			allAllocated = false
		}
	}

	status := repository.OrderStatusOpen
	switch {
	case allAllocated:
		status = repository.OrderStatusAllocated
	case anyAllocated:
		status = repository.OrderStatusPartiallyAllocated
	}

	return s.orderStore.UpdateSOStatusTx(ctx, tx, soID, status)
}
