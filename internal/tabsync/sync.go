// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tabsync keeps parley instances on one machine in agreement.
package tabsync

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/parley/internal/storage"
)

// DefaultRefreshRate is how many list reloads per second other instances'
// changes may trigger.
const DefaultRefreshRate = 2.0

// Target is the conversation state the synchronizer keeps current.
// *chat.Store satisfies it.
type Target interface {
	Refresh(ctx context.Context) error
	EndSession()
}

// Session is the local credential holder. *auth.TokenStore satisfies it.
type Session interface {
	Token() (string, bool)
	DropSession() error
}

// =============================================================================
// SYNCHRONIZER
// =============================================================================

// Synchronizer turns durable-tier changes made by other instances into Bus
// notifications and applies them to a Target.
type Synchronizer struct {
	bus     *Bus
	logger  *zap.Logger
	limiter *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	watcher storage.ChangeWatcher
	unsubs  []func()
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRefreshRate limits reloads to perSecond. Zero or less means no limit.
func WithRefreshRate(perSecond float64) Option {
	return func(s *Synchronizer) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// New creates a Synchronizer publishing to bus.
func New(bus *Bus, opts ...Option) *Synchronizer {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Synchronizer{
		bus:     bus,
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(rate.Limit(DefaultRefreshRate), 1),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bus returns the bus notifications are published on.
func (s *Synchronizer) Bus() *Bus {
	return s.bus
}

// HandleEvent publishes the notification for ev, if any. It is the handler
// given to the storage watcher.
func (s *Synchronizer) HandleEvent(ev storage.Event) {
	kind, ok := Classify(ev)
	if !ok {
		return
	}
	n := s.bus.Publish(Notification{Kind: kind, Key: ev.Key, Origin: ev.Origin, At: ev.ChangedAt})
	s.logger.Debug("cross-instance notification",
		zap.Stringer("kind", kind),
		zap.String("origin", ev.Origin),
		zap.Int("subscribers", n))
}

// Watch starts following tier's change log.
func (s *Synchronizer) Watch(tier *storage.SQLiteTier, cfg storage.WatchConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher != nil {
		return errors.New("synchronizer is already watching")
	}
	w, err := storage.StartWatcher(tier, cfg, s.HandleEvent, s.logger)
	if err != nil {
		return err
	}
	s.watcher = w
	return nil
}

// Attach applies notifications to target until Close:
// SessionCleared drops session tokens and ends the target's session;
// ConversationsChanged reloads the list, paced by the refresh limiter, and
// only while a token is held.
func (s *Synchronizer) Attach(target Target, session Session) {
	cleared, unsubCleared := s.bus.Subscribe(SessionCleared)
	changed, unsubChanged := s.bus.Subscribe(ConversationsChanged)

	s.mu.Lock()
	s.unsubs = append(s.unsubs, unsubCleared, unsubChanged)
	s.mu.Unlock()

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		for range cleared {
			if err := session.DropSession(); err != nil {
				s.logger.Warn("failed to drop session tokens", zap.Error(err))
			}
			target.EndSession()
			s.logger.Info("logged out by another instance")
		}
	}()
	go func() {
		defer s.wg.Done()
		s.refreshLoop(changed, target, session)
	}()
}

func (s *Synchronizer) refreshLoop(changed <-chan Notification, target Target, session Session) {
	for range changed {
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		// Everything queued while waiting collapses into this reload
		drain(changed)

		if _, ok := session.Token(); !ok {
			continue
		}
		if err := target.Refresh(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("refresh after remote change failed", zap.Error(err))
		}
	}
}

func drain(ch <-chan Notification) {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

// Close stops the watcher and the notification handlers.
func (s *Synchronizer) Close() error {
	s.cancel()

	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	var err error
	if w != nil {
		err = w.Close()
	}
	for _, unsub := range unsubs {
		unsub()
	}
	s.wg.Wait()
	return err
}
