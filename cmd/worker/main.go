package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes session lifecycle events and re-runs absence
// reconciliation for closed sessions. Reconciliation is idempotent, so
// this is a safety net for an API instance that crashed between the
// close transition and the backfill; a session that was already fully
// reconciled yields zero writes.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("shutdown signal received")
		cancel()
	}()

	if cfg.StoreBackend == "memory" {
		logrus.Fatal("worker requires a shared store, set STORE_BACKEND=postgres")
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logrus.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)
	q := queue.NewRedisQueue(redisClient.Client, cfg.EventQueueKey)

	repo := attendance.NewRepository(db.Client)
	reconciler := attendance.NewReconciler(repo, repo, attendance.SystemClock{})

	events, err := q.Consume(ctx)
	if err != nil {
		logrus.WithError(err).Fatal("queue consume init failed")
	}

	logrus.Info("worker started, waiting for events")
	for evt := range events {
		if evt.Type != queue.EventSessionClosed {
			continue
		}

		written, err := reconciler.ReconcileAbsences(ctx, evt.SessionID)
		if err != nil {
			logrus.WithError(err).WithField("session_id", evt.SessionID).Error("reconcile failed")
			continue
		}
		logrus.WithFields(logrus.Fields{
			"session_id": evt.SessionID,
			"absent":     written,
		}).Info("session reconciled")
	}

	logrus.Info("worker stopped")
}
