package jobs

import (
	"context"
	"time"

	"github.com/qavanin/ingest-backend/internal/logger"
	"github.com/qavanin/ingest-backend/internal/services"
)

// SyncWorker drives the sync engine on fixed cadences: push new embeddings,
// re-push changed metadata, verify, clean up orphans, and snapshot stats.
// Every pass recovers from panics so one bad batch cannot kill the loop.
type SyncWorker struct {
	engine services.SyncEngine
	cfg    services.SyncConfig
	log    *logger.Logger
}

func NewSyncWorker(engine services.SyncEngine, cfg services.SyncConfig, baseLog *logger.Logger) *SyncWorker {
	return &SyncWorker{
		engine: engine,
		cfg:    cfg,
		log:    baseLog.With("component", "SyncWorker"),
	}
}

func (w *SyncWorker) Start(ctx context.Context) {
	go w.loop(ctx, "sync", w.cfg.SyncInterval, func(ctx context.Context) error {
		if out, err := w.engine.SyncNew(ctx); err != nil {
			return err
		} else if out.Attempted > 0 {
			w.log.Info("Sync pass", "attempted", out.Attempted, "synced", out.Synced, "failed", out.Failed, "skipped", out.Skipped)
		}
		out, err := w.engine.SyncChangedMetadata(ctx)
		if err != nil {
			return err
		}
		if out.Attempted > 0 {
			w.log.Info("Metadata pass", "attempted", out.Attempted, "pushed", out.Synced, "skipped", out.Skipped, "failed", out.Failed)
		}
		return nil
	})

	go w.loop(ctx, "verify", w.cfg.VerifyInterval, func(ctx context.Context) error {
		out, err := w.engine.VerifyBatch(ctx)
		if err != nil {
			return err
		}
		if out.Checked > 0 {
			w.log.Info("Verify pass", "checked", out.Checked, "verified", out.Verified, "retried", out.Retried, "failed", out.Failed)
		}
		return nil
	})

	go w.loop(ctx, "cleanup", w.cfg.CleanupInterval, func(ctx context.Context) error {
		out, err := w.engine.CleanupOrphans(ctx)
		if err != nil {
			return err
		}
		if out.Found > 0 {
			w.log.Info("Cleanup pass", "found", out.Found, "remote_deleted", out.RemoteDeleted, "remote_failed", out.RemoteFailed)
		}
		return nil
	})

	go w.loop(ctx, "stats", w.cfg.StatsInterval, func(ctx context.Context) error {
		_, err := w.engine.SnapshotStats(ctx)
		return err
	})
}

func (w *SyncWorker) loop(ctx context.Context, name string, interval time.Duration, pass func(context.Context) error) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						w.log.Error("Worker pass panic", "pass", name, "panic", r)
					}
				}()
				if err := pass(ctx); err != nil {
					w.log.Warn("Worker pass failed", "pass", name, "error", err)
				}
			}()
		}
	}
}
