package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// MaxRunDuration bounds a scheduled run.
const MaxRunDuration = 30 * time.Minute

// Poller runs the pipeline on a fixed interval.
type Poller struct {
	pipeline *Pipeline
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewPoller creates a background poller.
func NewPoller(p *Pipeline, interval time.Duration, logger *slog.Logger) *Poller {
	return &Poller{
		pipeline: p,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the polling loop. The first run starts immediately.
func (p *Poller) Start() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			ctx, cancel := context.WithTimeout(context.Background(), MaxRunDuration)
			go func() {
				select {
				case <-p.stopChan:
					cancel()
				case <-ctx.Done():
				}
			}()
			report, err := p.pipeline.Run(ctx, RunOptions{})
			cancel()

			switch {
			case errors.Is(err, ErrRunInProgress):
				p.logger.Info("poller: run already in progress, skipping tick")
			case err != nil:
				p.logger.Error("poller: run failed", "error", err)
			default:
				p.logger.Info("poller: run done", "run_id", report.RunID, "status", report.Status, "summary", report.Message)
			}

			select {
			case <-p.stopChan:
				return
			case <-time.After(p.interval):
			}
		}
	}()
}

// Stop cancels an active run and waits for the loop to exit.
func (p *Poller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}
