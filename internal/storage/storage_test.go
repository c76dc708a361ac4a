// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the client-side key/value tiers for parley.
package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// MEMORY TIER TESTS
// =============================================================================

func TestMemoryTier_SetGetRemove(t *testing.T) {
	m := NewMemoryTier()

	if _, ok, _ := m.Get("k"); ok {
		t.Fatal("expected missing key")
	}
	if err := m.Set("k", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, err := m.Get("k")
	if err != nil || !ok || v != "v" {
		t.Errorf("Get = (%q, %v, %v), want (v, true, nil)", v, ok, err)
	}
	if err := m.Remove("k"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if err := m.Remove("k"); err != nil {
		t.Errorf("Remove of missing key should not fail: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want 0", m.Len())
	}
}

func TestMemoryTier_EmptyKey(t *testing.T) {
	m := NewMemoryTier()
	if err := m.Set("", "v"); !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Set(\"\") error = %v, want ErrEmptyKey", err)
	}
}

// =============================================================================
// SQLITE TIER TESTS
// =============================================================================

func openTier(t *testing.T, path, origin string) *SQLiteTier {
	t.Helper()
	tier, err := OpenSQLite(path, WithOrigin(origin))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { tier.Close() })
	return tier
}

func TestSQLiteTier_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")

	first, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	if err := first.Set(KeyAccessToken, "tok"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	first.Close()

	second := openTier(t, path, "")
	v, ok, err := second.Get(KeyAccessToken)
	if err != nil || !ok || v != "tok" {
		t.Errorf("Get after reopen = (%q, %v, %v), want (tok, true, nil)", v, ok, err)
	}
	if first.Origin() == second.Origin() {
		t.Error("each open should get a fresh origin id")
	}
}

func TestSQLiteTier_ClosedTier(t *testing.T) {
	tier, err := OpenSQLite(filepath.Join(t.TempDir(), "parley.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	tier.Close()

	if err := tier.Set("k", "v"); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close error = %v, want ErrClosed", err)
	}
	if err := tier.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestSQLiteTier_ChangeLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")
	a := openTier(t, path, "tab-a")
	b := openTier(t, path, "tab-b")
	ctx := context.Background()

	mustSet(t, a, KeyChatsUpdatedAt, "1")
	mustSet(t, a, KeyChatsUpdatedAt, "1") // unchanged, not logged
	mustSet(t, b, KeyAuthClearedAt, "2")
	if err := b.Remove("never-set"); err != nil { // missing, not logged
		t.Fatalf("Remove failed: %v", err)
	}
	if err := a.Remove(KeyChatsUpdatedAt); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	seenByB, err := b.ChangesSince(ctx, 0, b.Origin())
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(seenByB) != 2 {
		t.Fatalf("b saw %d changes, want 2: %+v", len(seenByB), seenByB)
	}
	if seenByB[0].Key != KeyChatsUpdatedAt || seenByB[0].NewValue != "1" || seenByB[0].Removed {
		t.Errorf("first change = %+v", seenByB[0])
	}
	if !seenByB[1].Removed || seenByB[1].OldValue != "1" {
		t.Errorf("second change should be a removal of 1, got %+v", seenByB[1])
	}

	seenByA, err := a.ChangesSince(ctx, 0, a.Origin())
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(seenByA) != 1 || seenByA[0].Key != KeyAuthClearedAt || seenByA[0].Origin != "tab-b" {
		t.Errorf("a saw %+v, want only b's auth_cleared_at", seenByA)
	}
}

func TestSQLiteTier_ChangeLogPruned(t *testing.T) {
	tier := openTier(t, filepath.Join(t.TempDir(), "parley.db"), "writer")
	for i := 0; i < changeRetention+20; i++ {
		mustSet(t, tier, "k", time.Duration(i).String())
	}

	events, err := tier.ChangesSince(context.Background(), 0, "someone-else")
	if err != nil {
		t.Fatalf("ChangesSince failed: %v", err)
	}
	if len(events) > changeRetention {
		t.Errorf("change log holds %d rows, want at most %d", len(events), changeRetention)
	}
}

func mustSet(t *testing.T, tier Tier, key, value string) {
	t.Helper()
	if err := tier.Set(key, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

type recorder struct {
	mu     sync.Mutex
	events []Event
	signal chan struct{}
}

func newRecorder() *recorder {
	return &recorder{signal: make(chan struct{}, 64)}
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.signal <- struct{}{}
}

func (r *recorder) snapshot() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *recorder) wait(t *testing.T, n int) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for len(r.snapshot()) < n {
		select {
		case <-r.signal:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %d", n, len(r.snapshot()))
		}
	}
}

func TestFeed_SkipsHistoryAndOwnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")
	self := openTier(t, path, "self")
	other := openTier(t, path, "other")
	ctx := context.Background()

	mustSet(t, other, "before", "x") // predates prime

	rec := newRecorder()
	f := newFeed(self, rec.handle, zap.NewNop())
	if err := f.prime(ctx); err != nil {
		t.Fatalf("prime failed: %v", err)
	}

	mustSet(t, self, "mine", "1")
	mustSet(t, other, "theirs", "1")
	mustSet(t, other, "theirs", "2")

	n, err := f.drain(ctx)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("drain delivered %d events, want 2", n)
	}
	got := rec.snapshot()
	if got[0].NewValue != "1" || got[1].NewValue != "2" || got[1].OldValue != "1" {
		t.Errorf("events out of order or wrong: %+v", got)
	}

	if n, _ := f.drain(ctx); n != 0 {
		t.Errorf("second drain delivered %d events, want 0", n)
	}
}

func TestPollingWatcher_DeliversForeignWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")
	self := openTier(t, path, "self")
	other := openTier(t, path, "other")

	rec := newRecorder()
	w, err := StartWatcher(self, WatchConfig{ForcePolling: true, PollInterval: 10 * time.Millisecond}, rec.handle, nil)
	if err != nil {
		t.Fatalf("StartWatcher failed: %v", err)
	}
	defer w.Close()

	if _, ok := w.(*PollingWatcher); !ok {
		t.Fatalf("ForcePolling should yield a PollingWatcher, got %T", w)
	}

	mustSet(t, self, KeyChatsUpdatedAt, "1")
	mustSet(t, other, KeyAuthClearedAt, "2")
	rec.wait(t, 1)

	for _, ev := range rec.snapshot() {
		if ev.Origin == "self" {
			t.Errorf("watcher delivered own write: %+v", ev)
		}
	}
}

func TestStartWatcher_Fsnotify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.db")
	self := openTier(t, path, "self")
	other := openTier(t, path, "other")

	rec := newRecorder()
	w, err := StartWatcher(self, WatchConfig{Debounce: 20 * time.Millisecond, PollInterval: 20 * time.Millisecond}, rec.handle, zap.NewNop())
	if err != nil {
		t.Fatalf("StartWatcher failed: %v", err)
	}
	defer w.Close()

	mustSet(t, other, KeyChatsUpdatedAt, "42")
	rec.wait(t, 1)

	got := rec.snapshot()[0]
	if got.Key != KeyChatsUpdatedAt || got.NewValue != "42" {
		t.Errorf("event = %+v", got)
	}
}

func TestStartWatcher_RequiresHandler(t *testing.T) {
	tier := openTier(t, filepath.Join(t.TempDir(), "parley.db"), "")
	if _, err := StartWatcher(tier, WatchConfig{}, nil, nil); err == nil {
		t.Error("expected error for nil handler")
	}
}
