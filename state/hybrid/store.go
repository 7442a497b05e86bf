// Package hybrid layers a cache store over a durable one. Writes go to
// the durable store first; cache failures are logged and absorbed so a
// redis outage never loses a run.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/opsmind/opsmind/internal/logging"
	"github.com/opsmind/opsmind/state"
)

type Store struct {
	durable state.Store
	cache   state.Store
}

func New(durable state.Store, cache state.Store) (*Store, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	return &Store{
		durable: durable,
		cache:   cache,
	}, nil
}

func (h *Store) SaveRun(ctx context.Context, run state.RunRecord) error {
	if err := h.durable.SaveRun(ctx, run); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.SaveRun(ctx, run); err != nil {
			logging.GetLogger("state.hybrid").Warn("cache SaveRun failed", "run_id", run.RunID, "error", err)
		}
	}
	return nil
}

func (h *Store) LoadRun(ctx context.Context, runID string) (state.RunRecord, error) {
	if h.cache != nil {
		run, err := h.cache.LoadRun(ctx, runID)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			logging.GetLogger("state.hybrid").Warn("cache LoadRun failed", "run_id", runID, "error", err)
		}
	}

	run, err := h.durable.LoadRun(ctx, runID)
	if err != nil {
		return state.RunRecord{}, err
	}
	if h.cache != nil {
		if err := h.cache.SaveRun(ctx, run); err != nil {
			logging.GetLogger("state.hybrid").Warn("cache backfill SaveRun failed", "run_id", runID, "error", err)
		}
	}
	return run, nil
}

func (h *Store) ListRuns(ctx context.Context, query state.ListRunsQuery) ([]state.RunRecord, error) {
	return h.durable.ListRuns(ctx, query)
}

func (h *Store) SaveCheckpoint(ctx context.Context, checkpoint state.CheckpointRecord) error {
	if err := h.durable.SaveCheckpoint(ctx, checkpoint); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.SaveCheckpoint(ctx, checkpoint); err != nil {
			logging.GetLogger("state.hybrid").Warn("cache SaveCheckpoint failed", "run_id", checkpoint.RunID, "error", err)
		}
	}
	return nil
}

func (h *Store) LoadLatestCheckpoint(ctx context.Context, runID string) (state.CheckpointRecord, error) {
	if h.cache != nil {
		checkpoint, err := h.cache.LoadLatestCheckpoint(ctx, runID)
		if err == nil {
			return checkpoint, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			logging.GetLogger("state.hybrid").Warn("cache LoadLatestCheckpoint failed", "run_id", runID, "error", err)
		}
	}

	checkpoint, err := h.durable.LoadLatestCheckpoint(ctx, runID)
	if err != nil {
		return state.CheckpointRecord{}, err
	}
	if h.cache != nil {
		if err := h.cache.SaveCheckpoint(ctx, checkpoint); err != nil {
			logging.GetLogger("state.hybrid").Warn("cache backfill SaveCheckpoint failed", "run_id", runID, "error", err)
		}
	}
	return checkpoint, nil
}

func (h *Store) ListCheckpoints(ctx context.Context, runID string, limit int) ([]state.CheckpointRecord, error) {
	return h.durable.ListCheckpoints(ctx, runID, limit)
}

// AcquireRunLock delegates to whichever layer holds the lease,
// preferring the cache since that is where the redis SETNX lock lives.
func (h *Store) AcquireRunLock(ctx context.Context, runID, owner string, ttl time.Duration) (bool, error) {
	if locker := h.runLocker(); locker != nil {
		return locker.AcquireRunLock(ctx, runID, owner, ttl)
	}
	return true, nil
}

func (h *Store) ReleaseRunLock(ctx context.Context, runID, owner string) error {
	if locker := h.runLocker(); locker != nil {
		return locker.ReleaseRunLock(ctx, runID, owner)
	}
	return nil
}

func (h *Store) runLocker() state.RunLocker {
	if locker, ok := h.cache.(state.RunLocker); ok {
		return locker
	}
	if locker, ok := h.durable.(state.RunLocker); ok {
		return locker
	}
	return nil
}

func (h *Store) Close() error {
	var firstErr error
	if h.cache != nil {
		if err := h.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.durable != nil {
		if err := h.durable.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
