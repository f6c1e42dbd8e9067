package session

import (
	"slices"
	"sync"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
)

// Kind selects how the next message of a conversation is interpreted.
type Kind string

const (
	KindDefault       Kind = "default"
	KindEditing       Kind = "editing"
	KindOnboarding    Kind = "onboarding"
	KindKBJUSetup     Kind = "kbju_setup"
	KindTimezoneSetup Kind = "timezone_setup"
)

// Kinds lists every recognised kind.
var Kinds = []Kind{KindDefault, KindEditing, KindOnboarding, KindKBJUSetup, KindTimezoneSetup}

// ParseKind maps s to a Kind. Unknown values map to KindDefault.
func ParseKind(s string) Kind {
	k := Kind(s)
	if slices.Contains(Kinds, k) {
		return k
	}
	return KindDefault
}

// Editing is the payload of an EDITING session.
type Editing struct {
	EntryIDs []int64
	// Message is the batch message shown with the edit and delete controls.
	Message chat.MessageHandle
	DayID   int64
	// Prompt is the instruction message with the cancel control. Empty until
	// the prompt has been sent.
	Prompt chat.MessageHandle
}

func (e *Editing) valid() bool {
	return e != nil && len(e.EntryIDs) > 0 && e.DayID > 0
}

func (e *Editing) clone() *Editing {
	if e == nil {
		return nil
	}
	c := *e
	c.EntryIDs = slices.Clone(e.EntryIDs)
	return &c
}

// State is the typed session record of one conversation. Only the payload
// matching Kind is meaningful.
type State struct {
	Kind    Kind
	Editing *Editing

	OnboardingStep    int
	KBJUSetupStep     int
	TimezoneSetupStep int
}

func (s State) clone() State {
	s.Editing = s.Editing.clone()
	return s
}

// Conversation is everything kept per session key.
type Conversation struct {
	State State
	// Summaries are handles of day-summary messages that become stale when
	// the day's entries change.
	Summaries []chat.MessageHandle
}

// Store keeps one Conversation per session key.
type Store interface {
	Load(key string) Conversation
	Save(key string, c Conversation)
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string]Conversation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{convs: make(map[string]Conversation)}
}

// Load returns a copy of the stored conversation, or a zero value.
func (m *MemoryStore) Load(key string) Conversation {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.convs[key]
	return Conversation{State: c.State.clone(), Summaries: slices.Clone(c.Summaries)}
}

func (m *MemoryStore) Save(key string, c Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[key] = Conversation{State: c.State.clone(), Summaries: slices.Clone(c.Summaries)}
}

// Len returns the number of stored conversations.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.convs)
}
