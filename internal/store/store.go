package store

import (
	"context"
	"time"

	"alphascreen/pkg/model"
)

// Store persists raw archive days and the symbol universe between runs.
// Scores are never stored.
type Store interface {
	LoadDay(ctx context.Context, date time.Time) (*model.DayTable, error)
	SaveDay(ctx context.Context, table *model.DayTable) error
	LoadUniverse(ctx context.Context) ([]string, time.Time, error)
	SaveUniverse(ctx context.Context, symbols []string) error
	Close() error
}

// NoopStore is used when no database path is configured
type NoopStore struct{}

func NewNoopStore() *NoopStore { return &NoopStore{} }

func (n *NoopStore) LoadDay(context.Context, time.Time) (*model.DayTable, error) { return nil, nil }
func (n *NoopStore) SaveDay(context.Context, *model.DayTable) error              { return nil }
func (n *NoopStore) LoadUniverse(context.Context) ([]string, time.Time, error) {
	return nil, time.Time{}, nil
}
func (n *NoopStore) SaveUniverse(context.Context, []string) error { return nil }
func (n *NoopStore) Close() error                                  { return nil }
