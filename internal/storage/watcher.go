// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the client-side key/value tiers for parley.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// =============================================================================
// WATCHER INTERFACE
// =============================================================================

// ChangeWatcher follows the durable tier's change log and reports writes
// made by other processes.
type ChangeWatcher interface {
	// Watch starts watching for changes
	Watch() error

	// Close stops watching and releases resources
	Close() error
}

// WatchConfig tunes change detection.
type WatchConfig struct {
	// Debounce coalesces bursts of file events before the log is read.
	Debounce time.Duration

	// PollInterval is used by the polling fallback.
	PollInterval time.Duration

	// ForcePolling skips fsnotify entirely.
	ForcePolling bool
}

// Default watch timings.
const (
	DefaultDebounce     = 100 * time.Millisecond
	DefaultPollInterval = time.Second
)

func (c WatchConfig) withDefaults() WatchConfig {
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}

// StartWatcher starts the best available watcher for tier. fsnotify is tried
// first; polling is the fallback.
func StartWatcher(tier *SQLiteTier, cfg WatchConfig, handler func(Event), logger *zap.Logger) (ChangeWatcher, error) {
	if tier == nil {
		return nil, errors.New("watcher requires a durable tier")
	}
	if handler == nil {
		return nil, errors.New("watcher requires a handler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	if !cfg.ForcePolling {
		fw, err := NewFsnotifyWatcher(tier, cfg.Debounce, handler, logger)
		if err == nil {
			if err = fw.Watch(); err == nil {
				return fw, nil
			}
			fw.Close()
		}
		logger.Warn("fsnotify unavailable, falling back to polling", zap.Error(err))
	}

	pw := NewPollingWatcher(tier, cfg.PollInterval, handler, logger)
	if err := pw.Watch(); err != nil {
		return nil, err
	}
	return pw, nil
}

// =============================================================================
// CHANGE FEED
// =============================================================================

// feed tracks the last change log position a watcher has delivered.
type feed struct {
	tier    *SQLiteTier
	handler func(Event)
	logger  *zap.Logger

	mu      sync.Mutex // serializes drains
	lastSeq int64
}

func newFeed(tier *SQLiteTier, handler func(Event), logger *zap.Logger) *feed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &feed{tier: tier, handler: handler, logger: logger}
}

// prime skips everything already in the log so only new writes are reported.
func (f *feed) prime(ctx context.Context) error {
	seq, err := f.tier.LatestSeq(ctx)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.lastSeq = seq
	f.mu.Unlock()
	return nil
}

// drain delivers every foreign change newer than the last delivered one and
// returns how many were delivered.
func (f *feed) drain(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	events, err := f.tier.ChangesSince(ctx, f.lastSeq, f.tier.Origin())
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		f.lastSeq = ev.Seq
		f.deliver(ev)
	}
	return len(events), nil
}

func (f *feed) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("change handler panicked", zap.String("key", ev.Key), zap.Any("panic", r))
		}
	}()
	f.handler(ev)
}

// =============================================================================
// FSNOTIFY WATCHER
// =============================================================================

// FsnotifyWatcher implements ChangeWatcher using fsnotify on the database
// directory. Any write to the database, its WAL or shared-memory file
// schedules a debounced read of the change log.
type FsnotifyWatcher struct {
	*feed
	watcher  *fsnotify.Watcher
	debounce time.Duration
	prefix   string

	mu      sync.Mutex
	pending map[string]time.Time // File name -> last change time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewFsnotifyWatcher creates a new fsnotify-based watcher
func NewFsnotifyWatcher(tier *SQLiteTier, debounce time.Duration, handler func(Event), logger *zap.Logger) (*FsnotifyWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FsnotifyWatcher{
		feed:     newFeed(tier, handler, logger),
		watcher:  watcher,
		debounce: debounce,
		prefix:   filepath.Base(tier.Path()),
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching for changes
func (fw *FsnotifyWatcher) Watch() error {
	if err := fw.prime(fw.ctx); err != nil {
		return err
	}
	if err := fw.watcher.Add(filepath.Dir(fw.tier.Path())); err != nil {
		return fmt.Errorf("failed to watch database directory: %w", err)
	}

	go fw.processEvents()
	go fw.processPending()

	return nil
}

// processEvents records file system events touching the database files
func (fw *FsnotifyWatcher) processEvents() {
	defer func() {
		if r := recover(); r != nil {
			fw.logger.Error("fsnotify event loop panicked", zap.Any("panic", r))
		}
	}()

	for {
		select {
		case <-fw.ctx.Done():
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), fw.prefix) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				fw.mu.Lock()
				fw.pending[event.Name] = time.Now()
				fw.mu.Unlock()
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("fsnotify error", zap.Error(err))
		}
	}
}

// processPending reads the change log once writes have settled
func (fw *FsnotifyWatcher) processPending() {
	tick := fw.debounce / 2
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-fw.ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			ready := false

			fw.mu.Lock()
			for name, changeTime := range fw.pending {
				if now.Sub(changeTime) >= fw.debounce {
					ready = true
					delete(fw.pending, name)
				}
			}
			fw.mu.Unlock()

			if !ready {
				continue
			}
			if _, err := fw.drain(fw.ctx); err != nil && fw.ctx.Err() == nil {
				fw.logger.Warn("failed to read change log", zap.Error(err))
			}
		}
	}
}

// Close stops watching and releases resources
func (fw *FsnotifyWatcher) Close() error {
	fw.cancel()
	if fw.watcher != nil {
		return fw.watcher.Close()
	}
	return nil
}

// =============================================================================
// POLLING WATCHER (FALLBACK)
// =============================================================================

// PollingWatcher implements ChangeWatcher by reading the change log on a
// fixed interval.
type PollingWatcher struct {
	*feed
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewPollingWatcher creates a new polling-based watcher
func NewPollingWatcher(tier *SQLiteTier, interval time.Duration, handler func(Event), logger *zap.Logger) *PollingWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &PollingWatcher{
		feed:     newFeed(tier, handler, logger),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Watch starts watching for changes
func (pw *PollingWatcher) Watch() error {
	if err := pw.prime(pw.ctx); err != nil {
		return err
	}
	go pw.poll()
	return nil
}

// poll periodically checks for changes
func (pw *PollingWatcher) poll() {
	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-pw.ctx.Done():
			return
		case <-ticker.C:
			if _, err := pw.drain(pw.ctx); err != nil && pw.ctx.Err() == nil {
				pw.logger.Warn("failed to read change log", zap.Error(err))
			}
		}
	}
}

// Close stops watching
func (pw *PollingWatcher) Close() error {
	pw.cancel()
	return nil
}
