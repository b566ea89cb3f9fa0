package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/events"
	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/actor"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// sweepBatchSize bounds how many rows one sweep cycle transitions, keeping
// lock hold time short.
const sweepBatchSize = 500

// ExpirySweeper periodically moves available and allocated units past their
// expiration date to expired, through the ledger like any other transition.
type ExpirySweeper struct {
	invStore  InventoryStore
	txStore   TransactionStore
	db        Transactor
	publisher *events.TrackingEventPublisher
	interval  time.Duration
	logger    *logger.Logger
	cancel    context.CancelFunc
}

// NewExpirySweeper creates a new expiry sweeper
func NewExpirySweeper(
	invStore InventoryStore,
	txStore TransactionStore,
	db Transactor,
	publisher *events.TrackingEventPublisher,
	interval time.Duration,
	log *logger.Logger,
) *ExpirySweeper {
	return &ExpirySweeper{
		invStore:  invStore,
		txStore:   txStore,
		db:        db,
		publisher: publisher,
		interval:  interval,
		logger:    log,
	}
}

// Start starts the sweeper in a background goroutine.
func (s *ExpirySweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.logger.Info().Dur("interval", s.interval).Msg("expiry sweeper started")

		// Run an initial sweep immediately
		s.runSweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info().Msg("expiry sweeper stopped")
				return
			case <-ticker.C:
				s.runSweep(ctx)
			}
		}
	}()
}

// Stop stops the sweeper goroutine
func (s *ExpirySweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *ExpirySweeper) runSweep(ctx context.Context) {
	start := time.Now()

	total := 0
	for {
		n, err := s.SweepOnce(ctx, time.Now().UTC())
		if err != nil {
			s.logger.Error().Err(err).Msg("expiry sweep failed")
			return
		}
		total += n
		if n < sweepBatchSize {
			break
		}
	}

	if total > 0 {
		s.logger.Info().
			Int("expired", total).
			Dur("duration", time.Since(start)).
			Msg("expiry sweep completed")
	}
}

// SweepOnce expires one batch of units and returns how many it transitioned.
// Runs as the system actor.
func (s *ExpirySweeper) SweepOnce(ctx context.Context, asOf time.Time) (int, error) {
	var expired []*repository.Inventory
	var entries []*repository.InventoryTransaction

	err := s.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		units, err := s.invStore.SelectExpiredForUpdate(ctx, tx, asOf, sweepBatchSize)
		if err != nil {
			return err
		}

		for _, unit := range units {
			affected, err := s.invStore.UpdateStatusTx(ctx, tx, repository.StatusUpdate{
				InventoryID: unit.ID,
				FromStatus:  unit.Status,
				ToStatus:    repository.StatusExpired,
			})
			if err != nil {
				return err
			}
			if affected == 0 {
				// Row changed between select and update despite the lock,
				// leave it to the next cycle.
				continue
			}

			fromStatus := unit.Status
			notes := "expiration date passed"
			entry := &repository.InventoryTransaction{
				InventoryID:     unit.ID,
				TransactionType: repository.TxTypeStatusChange,
				FromStatus:      &fromStatus,
				ToStatus:        repository.StatusExpired,
				Quantity:        unit.Quantity,
				Notes:           &notes,
				PerformedBy:     actor.SystemID,
			}
			if err := s.txStore.InsertTx(ctx, tx, entry); err != nil {
				return err
			}

			unit.Status = repository.StatusExpired
			expired = append(expired, unit)
			entries = append(entries, entry)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	for i, unit := range expired {
		s.publisher.PublishInventoryTransition(ctx, unit, entries[i])
	}

	return len(expired), nil
}
