package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/draftline/draftline/internal/config"
)

// Worker polls the queue and drives each claimed item through the generation
// pipeline. Claiming is implicit: the orchestrator's queued -> generating
// transition is conditional, so two workers racing on the same item leaves
// exactly one winner.
type Worker struct {
	config       *config.WorkerConfig
	logger       *zap.Logger
	queue        *QueueService
	orchestrator *Orchestrator
	ticker       *time.Ticker
	stopCh       chan struct{}
}

func NewWorker(cfg *config.WorkerConfig, logger *zap.Logger, queue *QueueService, orchestrator *Orchestrator) *Worker {
	return &Worker{
		config:       cfg,
		logger:       logger,
		queue:        queue,
		orchestrator: orchestrator,
		stopCh:       make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) error {
	if w.config.Disabled {
		w.logger.Info("Worker is disabled")
		return nil
	}

	interval, err := time.ParseDuration(w.config.Interval)
	if err != nil {
		w.logger.Error("Invalid worker interval", zap.String("interval", w.config.Interval), zap.Error(err))
		return err
	}

	w.logger.Info("Starting worker",
		zap.String("interval", w.config.Interval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("concurrency", w.config.Concurrency))

	w.ticker = time.NewTicker(interval)

	// Drain anything already waiting before the first tick
	go func() {
		if err := w.runBatch(ctx); err != nil {
			w.logger.Error("Initial batch failed", zap.Error(err))
		}
	}()

	go func() {
		for {
			select {
			case <-w.ticker.C:
				if err := w.runBatch(ctx); err != nil {
					w.logger.Error("Worker batch failed", zap.Error(err))
				}
			case <-w.stopCh:
				w.logger.Info("Worker stopped")
				return
			case <-ctx.Done():
				w.logger.Info("Worker context cancelled")
				return
			}
		}
	}()

	return nil
}

func (w *Worker) Stop() {
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopCh)
	w.logger.Info("Worker shutdown completed")
}

func (w *Worker) runBatch(ctx context.Context) error {
	items, err := w.queue.NextQueued(ctx, w.config.BatchSize)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	w.logger.Info("Processing queue batch", zap.Int("count", len(items)))

	g := new(errgroup.Group)
	g.SetLimit(w.config.Concurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			start := time.Now()
			if err := w.orchestrator.Run(ctx, item.ID); err != nil {
				w.logger.Error("Workflow failed",
					zap.String("queue_id", item.ID),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err))
				return nil
			}
			w.logger.Info("Workflow completed",
				zap.String("queue_id", item.ID),
				zap.Duration("duration", time.Since(start)))
			return nil
		})
	}
	return g.Wait()
}
