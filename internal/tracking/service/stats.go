package service

import (
	"context"
	"time"

	"github.com/pharmtrace/pharmtrace-backend/internal/tracking/repository"
	"github.com/pharmtrace/pharmtrace-backend/pkg/logger"
)

// DashboardStats is the warehouse overview.
type DashboardStats struct {
	StatusCounts   map[string]int64 `json:"status_counts"`
	ExpiringSoon   int64            `json:"expiring_soon"`
	ReceivedToday  int64            `json:"received_today"`
	ShippedToday   int64            `json:"shipped_today"`
	AllocatedToday int64            `json:"allocated_today"`
}

// StatsService aggregates inventory and ledger counts for the dashboard.
type StatsService struct {
	invStore       InventoryStore
	txStore        TransactionStore
	expiringWithin time.Duration
	logger         *logger.Logger
}

// NewStatsService creates a new stats service
func NewStatsService(invStore InventoryStore, txStore TransactionStore, expiringWithin time.Duration, log *logger.Logger) *StatsService {
	return &StatsService{
		invStore:       invStore,
		txStore:        txStore,
		expiringWithin: expiringWithin,
		logger:         log,
	}
}

// Dashboard returns the current overview counts.
func (s *StatsService) Dashboard(ctx context.Context) (*DashboardStats, error) {
	counts, err := s.invStore.StatusCounts(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	expiring, err := s.invStore.CountExpiringWithin(ctx, now.Add(s.expiringWithin))
	if err != nil {
		return nil, err
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	received, err := s.txStore.CountSince(ctx, repository.TxTypeReceive, midnight)
	if err != nil {
		return nil, err
	}
	shipped, err := s.txStore.CountSince(ctx, repository.TxTypeShipment, midnight)
	if err != nil {
		return nil, err
	}
	allocated, err := s.txStore.CountSince(ctx, repository.TxTypeAllocation, midnight)
	if err != nil {
		return nil, err
	}

	return &DashboardStats{
		StatusCounts:   counts,
		ExpiringSoon:   expiring,
		ReceivedToday:  received,
		ShippedToday:   shipped,
		AllocatedToday: allocated,
	}, nil
}
