// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	appchat "github.com/jeranaias/parley/internal/chat"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Source is satisfied by *chat.Store.
type Source interface {
	Subscribe(fn func(appchat.Event)) (cancel func())
}

// Forward delivers store events to p until stop is called.
//
// Store subscribers run synchronously, and the model itself calls into the
// store from Update, so events are handed to a separate goroutine. Only the
// newest snapshot is delivered, and a logout is always delivered before the
// snapshot that follows it.
func Forward(p Sender, src Source) (stop func()) {
	f := &forwarder{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	unsubscribe := src.Subscribe(f.observe)
	go f.run(p)

	var once sync.Once
	return func() {
		once.Do(func() {
			unsubscribe()
			close(f.done)
		})
	}
}

type forwarder struct {
	mu        sync.Mutex
	latest    *appchat.Snapshot
	loggedOut bool

	wake chan struct{}
	done chan struct{}
}

func (f *forwarder) observe(ev appchat.Event) {
	f.mu.Lock()
	snap := ev.Snapshot
	f.latest = &snap
	if ev.Kind == appchat.EventLoggedOut {
		f.loggedOut = true
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *forwarder) run(p Sender) {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		f.mu.Lock()
		latest, loggedOut := f.latest, f.loggedOut
		f.latest, f.loggedOut = nil, false
		f.mu.Unlock()

		if loggedOut {
			p.Send(LoggedOutMsg{})
		}
		if latest != nil {
			p.Send(SnapshotMsg{Snapshot: *latest})
		}
	}
}
