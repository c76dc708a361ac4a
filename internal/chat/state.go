// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the client-side conversation state.
package chat

import (
	"github.com/jeranaias/parley/internal/model"
)

// =============================================================================
// PHASE
// =============================================================================

// Phase is where a conversation is in the send cycle.
type Phase int

const (
	// PhaseIdle means no send is in flight.
	PhaseIdle Phase = iota

	// PhaseSending means the user message is on its way to the backend.
	PhaseSending

	// PhaseStreaming means the reply is arriving.
	PhaseStreaming

	// PhaseFailed means the stream failed; the log reload is pending.
	PhaseFailed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	case PhaseStreaming:
		return "streaming"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Busy reports whether a send is in flight.
func (p Phase) Busy() bool {
	return p != PhaseIdle
}

// =============================================================================
// EVENTS
// =============================================================================

// EventKind distinguishes ordinary state changes from a forced logout.
type EventKind int

const (
	// EventChanged carries a new snapshot.
	EventChanged EventKind = iota

	// EventLoggedOut means the session ended. Views should return to the
	// login screen.
	EventLoggedOut
)

// String returns the event kind name.
func (k EventKind) String() string {
	if k == EventLoggedOut {
		return "logged_out"
	}
	return "changed"
}

// Event is delivered to subscribers after every state change.
type Event struct {
	Kind     EventKind
	Snapshot Snapshot
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is an immutable copy of the store state.
type Snapshot struct {
	// Conversations in display order: new ones first, otherwise server order.
	Conversations []model.Conversation

	// ActiveID is "" when no conversation is selected.
	ActiveID string

	Loading bool

	// Error is the last user-facing error, or "".
	Error string

	SearchQuery string

	// Phase of the active conversation. With no active conversation it is
	// the phase of a send that is still creating one.
	Phase Phase

	phases map[string]Phase
}

// Active returns the active conversation.
func (s Snapshot) Active() (model.Conversation, bool) {
	if s.ActiveID == "" {
		return model.Conversation{}, false
	}
	return s.Find(s.ActiveID)
}

// Find returns the conversation with id.
func (s Snapshot) Find(id string) (model.Conversation, bool) {
	for _, c := range s.Conversations {
		if c.ID == id {
			return c, true
		}
	}
	return model.Conversation{}, false
}

// Filtered returns the conversations whose titles match SearchQuery.
func (s Snapshot) Filtered() []model.Conversation {
	return model.Filter(s.Conversations, s.SearchQuery)
}

// PhaseOf returns the send phase of conversation id.
func (s Snapshot) PhaseOf(id string) Phase {
	return s.phases[id]
}

// =============================================================================
// INTERNAL STATE
// =============================================================================

// state is the mutable form of Snapshot. It is only touched with Store.mu
// held.
type state struct {
	convs       []model.Conversation
	activeID    string
	loading     bool
	err         string
	searchQuery string
	phases      map[string]Phase

	// epoch increments on every reset so work started before a logout can
	// recognize that its results are stale.
	epoch uint64
}

func newState() state {
	return state{phases: make(map[string]Phase)}
}

func (st *state) find(id string) *model.Conversation {
	if id == "" {
		return nil
	}
	for i := range st.convs {
		if st.convs[i].ID == id {
			return &st.convs[i]
		}
	}
	return nil
}

func (st *state) setPhase(id string, p Phase) {
	if p == PhaseIdle {
		delete(st.phases, id)
		return
	}
	st.phases[id] = p
}

func (st *state) snapshot() Snapshot {
	snap := Snapshot{
		Conversations: make([]model.Conversation, len(st.convs)),
		ActiveID:      st.activeID,
		Loading:       st.loading,
		Error:         st.err,
		SearchQuery:   st.searchQuery,
		Phase:         st.phases[st.activeID],
		phases:        make(map[string]Phase, len(st.phases)),
	}
	for i := range st.convs {
		snap.Conversations[i] = st.convs[i].Clone()
	}
	for id, p := range st.phases {
		snap.phases[id] = p
	}
	return snap
}
