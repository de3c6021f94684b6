// Package sync implements the edge proxy's offline-first contract: when the
// central server cannot be reached, a mutation lands in the local store, a
// durable queue records what still needs to reach the central server, and a
// background tick drains that queue whenever the upstream is reachable.
package sync

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"retlister/internal/models"
	"retlister/internal/restostore"
	"retlister/internal/upstream"
)

// TickInterval is how often the engine attempts to drain the pending queue
// and warm the local cache.
const TickInterval = 30 * time.Second

// pendingBatchSize bounds how many queue entries one tick dispatches.
const pendingBatchSize = 50

// pruneKeep bounds how many synced entries the queue retains for audit.
const pruneKeep = 1000

// Engine owns the background reconciliation loop between the local store
// and the central server.
type Engine struct {
	store    *restostore.Store
	upstream *upstream.Client
	logger   *slog.Logger
}

// New builds an Engine over an already-initialized local store and upstream
// client.
func New(store *restostore.Store, client *upstream.Client, logger *slog.Logger) *Engine {
	return &Engine{store: store, upstream: client, logger: logger}
}

// Run blocks, ticking every TickInterval until ctx is cancelled. Intended to
// be launched as a goroutine from cmd/proxy's main.
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("sync engine stopping")
			return
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil {
				e.logger.Error("sync tick failed", "error", err)
			}
		}
	}
}

// Tick performs one reconciliation pass: probe, drain the pending queue,
// warm the cache, and record housekeeping metadata. A probe failure is not
// an error at this layer — it means the proxy stays in offline mode for one
// more interval.
func (e *Engine) Tick(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, upstream.ProbeTimeout)
	defer cancel()

	if err := e.upstream.Ping(probeCtx); err != nil {
		e.logger.Warn("upstream unreachable, staying offline", "error", err)
		return nil
	}

	if err := e.drainQueue(ctx); err != nil {
		e.logger.Error("failed to drain sync queue", "error", err)
	}

	if err := e.warmCache(ctx); err != nil {
		e.logger.Error("failed to warm cache", "error", err)
	}

	if err := e.store.SetMetadata(models.MetaLastSyncTime, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return err
	}

	return e.store.PruneSyncedEntries(pruneKeep)
}

func (e *Engine) drainQueue(ctx context.Context) error {
	entries, err := e.store.ListPendingSyncEntries(pendingBatchSize)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := e.dispatch(ctx, entry); err != nil {
			e.logger.Warn("sync entry failed", "id", entry.ID, "operation", entry.Operation, "error", err)
			if markErr := e.store.MarkSyncEntryFailed(entry.ID, err.Error()); markErr != nil {
				return markErr
			}
			continue
		}
		if err := e.store.MarkSyncEntrySucceeded(entry.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, entry models.SyncQueueEntry) error {
	switch entry.Operation {
	case models.SyncOpInsert:
		return e.dispatchInsert(ctx, entry)
	case models.SyncOpDelete:
		return e.upstream.DeletePlank(ctx, entry.RestoID)
	default:
		e.logger.Warn("skipping sync entry with unknown operation", "id", entry.ID, "operation", entry.Operation)
		return nil
	}
}

func (e *Engine) dispatchInsert(ctx context.Context, entry models.SyncQueueEntry) error {
	local, err := e.store.GetPlank(entry.RestoID)
	if err != nil {
		if models.IsNotFoundError(err) {
			e.logger.Warn("insert queued for a plank no longer present locally, skipping", "id", entry.ID)
			return nil
		}
		return err
	}

	created, err := e.upstream.CreatePlank(ctx, *local)
	if err != nil {
		return err
	}

	if created.ID != local.ID {
		if err := e.store.RewriteLocalPlankID(local.ID, created.ID); err != nil {
			return err
		}
		e.logger.Info("remapped local plank id after upstream insert", "local_id", local.ID, "upstream_id", created.ID)
	}
	return nil
}

func (e *Engine) warmCache(ctx context.Context) error {
	planks, err := e.upstream.ListPlanks(ctx)
	if err != nil {
		return err
	}
	return e.store.CacheWarm(planks)
}

// Gateway is the local-store path the proxy's HTTP handlers fall back to
// when their upstream attempt fails. It reads and writes only the local
// store, enqueuing sync entries so the Engine can reconcile with upstream on
// its own schedule.
type Gateway struct {
	store  *restostore.Store
	logger *slog.Logger
}

// NewGateway builds a Gateway over the local store.
func NewGateway(store *restostore.Store, logger *slog.Logger) *Gateway {
	return &Gateway{store: store, logger: logger}
}

// List returns the local mirror of the inventory.
func (g *Gateway) List() ([]models.Plank, error) {
	return g.store.ListPlanks()
}

// Search filters the local mirror by dimension/material, best-match first.
func (g *Gateway) Search(q models.SearchQuery) ([]models.Plank, error) {
	return g.store.SearchPlanks(q)
}

// Add writes a plank to the local store immediately and enqueues an INSERT
// for the engine to reconcile upstream.
func (g *Gateway) Add(p *models.Plank) error {
	if err := g.store.CreatePlank(p); err != nil {
		return err
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return models.NewInternalError("failed to encode plank for sync queue", err)
	}
	if _, err := g.store.EnqueueSyncEntry(models.SyncOpInsert, p.ID, string(payload)); err != nil {
		return err
	}
	return nil
}

// Remove deletes a plank locally immediately and enqueues a DELETE for the
// engine to reconcile upstream.
func (g *Gateway) Remove(id int64) error {
	if err := g.store.DeletePlank(id); err != nil {
		return err
	}
	if _, err := g.store.EnqueueSyncEntry(models.SyncOpDelete, id, ""); err != nil {
		return err
	}
	return nil
}

// RemoveBatch deletes multiple planks locally and enqueues one DELETE per id.
func (g *Gateway) RemoveBatch(ids []int64) error {
	if err := g.store.DeleteBatch(ids); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := g.store.EnqueueSyncEntry(models.SyncOpDelete, id, ""); err != nil {
			return err
		}
	}
	return nil
}
