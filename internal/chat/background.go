// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the client-side conversation state.
package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// BACKGROUND TASKS
// =============================================================================

// taskGroup runs best-effort work off the caller's goroutine. Failures are
// logged and never propagate.
type taskGroup struct {
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopped   atomic.Bool
	semaphore chan struct{}
	timeout   time.Duration
	logger    *zap.Logger
}

func newTaskGroup(maxConcurrent int, timeout time.Duration, logger *zap.Logger) *taskGroup {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &taskGroup{
		ctx:       ctx,
		cancel:    cancel,
		semaphore: make(chan struct{}, maxConcurrent),
		timeout:   timeout,
		logger:    logger,
	}
}

// Go starts fn unless the group is stopped.
func (g *taskGroup) Go(name string, fn func(ctx context.Context) error) {
	if g.stopped.Load() {
		return
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		select {
		case g.semaphore <- struct{}{}:
		case <-g.ctx.Done():
			return
		}
		defer func() { <-g.semaphore }()

		ctx, cancel := g.ctx, context.CancelFunc(func() {})
		if g.timeout > 0 {
			ctx, cancel = context.WithTimeout(g.ctx, g.timeout)
		}
		defer cancel()

		start := time.Now()
		err := fn(ctx)
		switch {
		case err == nil:
			g.logger.Debug("background task complete", zap.String("task", name), zap.Duration("duration", time.Since(start)))
		case errors.Is(err, context.Canceled) && g.stopped.Load():
			// Shutdown
		default:
			g.logger.Warn("background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
}

// Wait blocks until every started task has returned.
func (g *taskGroup) Wait() {
	g.wg.Wait()
}

// Stop cancels running tasks and waits for them.
func (g *taskGroup) Stop() {
	g.stopped.Store(true)
	g.cancel()
	g.wg.Wait()
}
