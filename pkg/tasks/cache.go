package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/posbridge/posbridge/pkg/engine"
	"github.com/posbridge/posbridge/pkg/erp"
	"github.com/posbridge/posbridge/pkg/stores"
)

// CacheRefreshTask recomputes a location's cached aggregate.
type CacheRefreshTask struct {
	Store CacheStore
}

// Name returns the task name.
func (t *CacheRefreshTask) Name() string { return string(engine.PhaseCacheRefresh) }

// Run refreshes one location's cache.
func (t *CacheRefreshTask) Run(ctx context.Context, loc engine.LocationConfig, _ engine.Window) (engine.Counts, error) {
	if _, err := t.Store.RefreshLocationCache(ctx, loc.LocationID); err != nil {
		return engine.Counts{}, err
	}
	return engine.Counts{Processed: 1, Updated: 1}, nil
}

// ERPPushTask pushes the cached aggregate of a location to the ERP.
type ERPPushTask struct {
	Store  CacheStore
	Pusher Pusher
	Clock  func() time.Time
}

// Name returns the task name.
func (t *ERPPushTask) Name() string { return string(engine.PhaseExternalPush) }

// Run pushes one location's aggregate.
func (t *ERPPushTask) Run(ctx context.Context, loc engine.LocationConfig, _ engine.Window) (engine.Counts, error) {
	if loc.ExternalStoreID == "" {
		return engine.Counts{}, fmt.Errorf("location %s has no external store id", loc.LocationID)
	}

	agg, err := t.Store.GetLocationAggregate(ctx, loc.LocationID)
	if errors.Is(err, stores.ErrNotFound) {
		return engine.Counts{}, fmt.Errorf("location %s has no cached aggregate to push: %w", loc.LocationID, err)
	}
	if err != nil {
		return engine.Counts{}, err
	}

	if err := t.Pusher.Push(ctx, erp.NewAggregate(loc.ExternalStoreID, agg)); err != nil {
		return engine.Counts{}, err
	}

	now := time.Now
	if t.Clock != nil {
		now = t.Clock
	}
	if err := t.Store.MarkPushed(ctx, loc.LocationID, now()); err != nil {
		return engine.Counts{}, err
	}
	return engine.Counts{Processed: 1, Updated: 1}, nil
}
