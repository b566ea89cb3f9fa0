package consumers

import (
	"context"

	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/service"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
	"github.com/pharmtrace/pharmtrace-backend/pkg/messaging"
)

// EpcisEventConsumer consumes EPCIS ingestion events from the external parser
type EpcisEventConsumer struct {
	consumer  *messaging.Consumer
	ingestion *service.IngestionService
	logger    *logger.Logger
}

// NewEpcisEventConsumer creates a new EPCIS event consumer
func NewEpcisEventConsumer(rmq *messaging.RabbitMQ, ingestion *service.IngestionService, log *logger.Logger) (*EpcisEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, "tracking-service.epcis-events", log)
	if err != nil {
		return nil, err
	}

	// Subscribe to EPCIS events
	if err := consumer.Subscribe(messaging.ExchangeEpcisEvents, "epcis.#"); err != nil {
		return nil, err
	}

	c := &EpcisEventConsumer{
		consumer:  consumer,
		ingestion: ingestion,
		logger:    log,
	}

	// Register handlers
	consumer.RegisterHandler(messaging.EventEpcisFileProcessed, c.handleFileProcessed)

	return c, nil
}

// Start starts consuming messages
func (c *EpcisEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}

func (c *EpcisEventConsumer) handleFileProcessed(ctx context.Context, event *messaging.Event) error {
	var data messaging.EpcisFileProcessedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	c.logger.Info().
		Str("file_id", data.FileID).
		Int("item_count", len(data.Items)).
		Msg("received epcis file processed event")

	_, err := c.ingestion.IngestFile(ctx, &data)
	return err
}
