package events

import (
	"context"

	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
	"github.com/pharmtrace/pharmtrace-backend/pkg/messaging"
)

// TrackingEventPublisher publishes tracking events. A nil publisher is valid
// and drops all events, so services can run without a broker connection.
type TrackingEventPublisher struct {
	publisher *messaging.Publisher
	logger    *logger.Logger
}

// NewTrackingEventPublisher creates a new tracking event publisher
func NewTrackingEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*TrackingEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeTrackingEvents, "tracking-service", log)
	if err != nil {
		return nil, err
	}

	return &TrackingEventPublisher{
		publisher: publisher,
		logger:    log,
	}, nil
}

// PublishInventoryTransition publishes the event matching one ledger entry.
func (p *TrackingEventPublisher) PublishInventoryTransition(ctx context.Context, inv *repository.Inventory, tx *repository.InventoryTransaction) {
	if p == nil {
		return
	}

	eventType := eventTypeForTransaction(tx.TransactionType)

	fromStatus := ""
	if tx.FromStatus != nil {
		fromStatus = *tx.FromStatus
	}

	lotNumber := ""
	if inv.LotNumber != nil {
		lotNumber = *inv.LotNumber
	}

	referenceID := ""
	if tx.ReferenceID != nil {
		referenceID = *tx.ReferenceID
	}

	referenceType := ""
	if tx.ReferenceType != nil {
		referenceType = *tx.ReferenceType
	}

	toLocation := ""
	if inv.LocationID != nil {
		toLocation = *inv.LocationID
	}

	fromLocation := ""
	if tx.FromLocationID != nil {
		fromLocation = *tx.FromLocationID
	}

	data := messaging.InventoryTransitionEvent{
		InventoryID:     inv.ID,
		GTIN:            inv.GTIN,
		SerialNumber:    inv.SerialNumber,
		LotNumber:       lotNumber,
		TransactionType: tx.TransactionType,
		FromStatus:      fromStatus,
		ToStatus:        tx.ToStatus,
		FromLocationID:  fromLocation,
		ToLocationID:    toLocation,
		ReferenceID:     referenceID,
		ReferenceType:   referenceType,
		PerformedBy:     tx.PerformedBy,
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("inventory_id", inv.ID).Msg("failed to publish inventory transition event")
	}
}

// PublishOrderShipped publishes an order shipped event
func (p *TrackingEventPublisher) PublishOrderShipped(ctx context.Context, soID string, itemCount, unitCount int, performedBy string) {
	if p == nil {
		return
	}

	data := messaging.OrderShippedEvent{
		SalesOrderID: soID,
		ItemCount:    itemCount,
		UnitCount:    unitCount,
		PerformedBy:  performedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventOrderShipped, data); err != nil {
		p.logger.Error().Err(err).Str("sales_order_id", soID).Msg("failed to publish order shipped event")
	}
}

// PublishScanRecorded publishes a scan recorded event
func (p *TrackingEventPublisher) PublishScanRecorded(ctx context.Context, item *repository.ScannedItem) {
	if p == nil {
		return
	}

	gtin := ""
	if item.GTIN != nil {
		gtin = *item.GTIN
	}

	serial := ""
	if item.SerialNumber != nil {
		serial = *item.SerialNumber
	}

	data := messaging.ScanRecordedEvent{
		ScanID:       item.ID,
		SessionID:    item.SessionID,
		GTIN:         gtin,
		SerialNumber: serial,
		MatchStatus:  item.MatchStatus,
		ScannedBy:    item.ScannedBy,
	}

	if err := p.publisher.Publish(ctx, messaging.EventScanRecorded, data); err != nil {
		p.logger.Error().Err(err).Str("scan_id", item.ID).Msg("failed to publish scan recorded event")
	}
}

// PublishSessionCompleted publishes a session completed event
func (p *TrackingEventPublisher) PublishSessionCompleted(ctx context.Context, s *repository.ValidationSession) {
	if p == nil {
		return
	}

	data := messaging.SessionCompletedEvent{
		SessionID:       s.ID,
		PurchaseOrderID: s.PurchaseOrderID,
		TotalScanned:    s.TotalScanned,
		TotalMatched:    s.TotalMatched,
		TotalMismatched: s.TotalMismatched,
		TotalUnknown:    s.TotalUnknown,
	}

	if err := p.publisher.Publish(ctx, messaging.EventSessionCompleted, data); err != nil {
		p.logger.Error().Err(err).Str("session_id", s.ID).Msg("failed to publish session completed event")
	}
}

// PublishFileAssociated publishes a file associated event
func (p *TrackingEventPublisher) PublishFileAssociated(ctx context.Context, a *repository.EpcisPoAssociation) {
	if p == nil {
		return
	}

	data := messaging.FileAssociatedEvent{
		FileID:            a.FileID,
		PurchaseOrderID:   a.PurchaseOrderID,
		AssociationMethod: a.Method,
		Confidence:        a.Confidence,
	}

	if err := p.publisher.Publish(ctx, messaging.EventFileAssociated, data); err != nil {
		p.logger.Error().Err(err).Str("file_id", a.FileID).Msg("failed to publish file associated event")
	}
}

func eventTypeForTransaction(txType string) string {
	switch txType {
	case repository.TxTypeReceive:
		return messaging.EventInventoryReceived
	case repository.TxTypeAllocation:
		return messaging.EventInventoryAllocated
	case repository.TxTypeShipment:
		return messaging.EventInventoryShipped
	case repository.TxTypeTransfer:
		return messaging.EventInventoryTransferred
	default:
		return messaging.EventInventoryStatusChanged
	}
}
