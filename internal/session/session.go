// Package session is the per-user state machine that decides what an
// incoming message means.
//
// State is stored under an opaque key chosen by the caller, one per user
// within a conversation. Each key has a [State] whose [Kind] selects a
// [Session] variant. The variant decides whether it handles an event and
// delegates the actual work to [Actions]. Unknown kinds and EDITING states
// without a payload resolve to the default variant.
package session

import (
	"context"
	"log/slog"
	"slices"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
)

// Session handles the events of one key in its current mode.
// Each method reports whether the event was handled; false tells the caller
// to show its fallback reply.
type Session interface {
	Kind() Kind
	HandleText(ctx context.Context, ev chat.TextEvent) bool
	HandlePhoto(ctx context.Context, ev chat.PhotoEvent) bool
	HandleVoice(ctx context.Context, ev chat.VoiceEvent) bool
}

// Actions performs the work sessions decide on.
type Actions interface {
	// LogFood records the food described by ev.
	LogFood(ctx context.Context, ev chat.TextEvent) bool
	// LogVoice transcribes ev and records the food it describes.
	LogVoice(ctx context.Context, ev chat.VoiceEvent) bool
	// ApplyEdit revises the batch described by ed using ev as instruction.
	ApplyEdit(ctx context.Context, ev chat.TextEvent, ed Editing) bool
}

// Manager loads, stores and clears session state by key and builds the
// matching Session variant. Callers serialise access per key.
type Manager struct {
	store   Store
	actions Actions
}

func NewManager(store Store, actions Actions) *Manager {
	return &Manager{store: store, actions: actions}
}

// Get returns the session variant for the key's current state.
func (m *Manager) Get(key string) Session {
	st := m.Current(key)
	switch st.Kind {
	case KindEditing:
		return &editingSession{actions: m.actions, editing: *st.Editing}
	case KindOnboarding, KindKBJUSetup, KindTimezoneSetup:
		return placeholderSession{kind: st.Kind}
	default:
		return defaultSession{actions: m.actions}
	}
}

// Current returns the normalised state of a key. An EDITING state
// without ids or day is cleared and reported as DEFAULT.
func (m *Manager) Current(key string) State {
	conv := m.store.Load(key)
	st := conv.State
	st.Kind = ParseKind(string(st.Kind))
	if st.Kind == KindEditing && !st.Editing.valid() {
		slog.Warn("session: editing state without payload, resetting", "session_key", key)
		m.Clear(key)
		return State{Kind: KindDefault}
	}
	return st
}

// Set replaces the key's state.
func (m *Manager) Set(key string, st State) {
	conv := m.store.Load(key)
	conv.State = st
	m.store.Save(key, conv)
}

// BeginEditing switches key to EDITING the given batch. The
// prompt handle starts empty.
func (m *Manager) BeginEditing(key string, ids []int64, msg chat.MessageHandle, dayID int64) {
	m.Set(key, State{
		Kind: KindEditing,
		Editing: &Editing{
			EntryIDs: slices.Clone(ids),
			Message:  msg,
			DayID:    dayID,
		},
	})
}

// SetPromptHandle records the edit prompt. It reports false when the
// key is not editing.
func (m *Manager) SetPromptHandle(key string, prompt chat.MessageHandle) bool {
	conv := m.store.Load(key)
	if ParseKind(string(conv.State.Kind)) != KindEditing || conv.State.Editing == nil {
		return false
	}
	conv.State.Editing.Prompt = prompt
	m.store.Save(key, conv)
	return true
}

// Clear resets key to DEFAULT and drops every kind-specific field.
// Tracked summaries are kept.
func (m *Manager) Clear(key string) {
	conv := m.store.Load(key)
	conv.State = State{Kind: KindDefault}
	m.store.Save(key, conv)
}

// TrackSummary remembers a day-summary message for later retraction.
func (m *Manager) TrackSummary(key string, msg chat.MessageHandle) {
	conv := m.store.Load(key)
	conv.Summaries = append(conv.Summaries, msg)
	m.store.Save(key, conv)
}

// TakeSummaries returns and forgets every tracked summary message.
func (m *Manager) TakeSummaries(key string) []chat.MessageHandle {
	conv := m.store.Load(key)
	out := conv.Summaries
	conv.Summaries = nil
	m.store.Save(key, conv)
	return out
}

type defaultSession struct {
	actions Actions
}

func (defaultSession) Kind() Kind { return KindDefault }

func (s defaultSession) HandleText(ctx context.Context, ev chat.TextEvent) bool {
	return s.actions.LogFood(ctx, ev)
}

// HandlePhoto declines: photos are not analysed yet.
func (defaultSession) HandlePhoto(context.Context, chat.PhotoEvent) bool { return false }

func (s defaultSession) HandleVoice(ctx context.Context, ev chat.VoiceEvent) bool {
	return s.actions.LogVoice(ctx, ev)
}

type editingSession struct {
	actions Actions
	editing Editing
}

func (*editingSession) Kind() Kind { return KindEditing }

func (s *editingSession) HandleText(ctx context.Context, ev chat.TextEvent) bool {
	return s.actions.ApplyEdit(ctx, ev, s.editing)
}

func (*editingSession) HandlePhoto(context.Context, chat.PhotoEvent) bool { return false }

func (*editingSession) HandleVoice(context.Context, chat.VoiceEvent) bool { return false }

// placeholderSession is a recognised kind that declines every event.
type placeholderSession struct {
	kind Kind
}

func (p placeholderSession) Kind() Kind { return p.kind }

func (placeholderSession) HandleText(context.Context, chat.TextEvent) bool { return false }

func (placeholderSession) HandlePhoto(context.Context, chat.PhotoEvent) bool { return false }

func (placeholderSession) HandleVoice(context.Context, chat.VoiceEvent) bool { return false }
