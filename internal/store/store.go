package store

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/ibflow/ingestd/internal/models"
	"github.com/ibflow/ingestd/pkg/config"
)

// Store composes the primary MySQL store with the secondary sinks: the
// primary upsert is the at-least-once idempotency boundary spec.md §8
// requires, and the sinks mirror alongside it without affecting that
// guarantee. Implements persistence.Store and backfill.Store.
type Store struct {
	*MySQLStore
	sinks *Sinks
}

// New opens the primary store and connects whichever secondary sinks
// are configured.
func New(cfg *config.Config, logger *logrus.Logger) (*Store, error) {
	primary, err := NewMySQLStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Store{MySQLStore: primary, sinks: NewSinks(&cfg.Sinks, logger)}, nil
}

// Close tears down the primary store and every connected sink.
func (s *Store) Close() error {
	s.sinks.Close()
	return s.MySQLStore.Close()
}

// UpsertRealtimeBar upserts to MySQL first (the idempotency boundary),
// then mirrors to the secondary sinks regardless of mirror outcome.
func (s *Store) UpsertRealtimeBar(ctx context.Context, bar *models.CombinedBar) error {
	if err := s.MySQLStore.UpsertRealtimeBar(ctx, bar); err != nil {
		return err
	}
	s.sinks.MirrorRealtimeBar(ctx, bar)
	return nil
}

// UpsertDailyBar upserts to MySQL first, then mirrors to InfluxDB.
func (s *Store) UpsertDailyBar(ctx context.Context, bar *models.DailyBar) error {
	if err := s.MySQLStore.UpsertDailyBar(ctx, bar); err != nil {
		return err
	}
	s.sinks.MirrorDailyBar(ctx, bar)
	return nil
}
