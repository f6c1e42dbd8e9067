// Package assistant orchestrates the food-logging conversation: it resolves
// the conversation's session, logs food into the current day, and runs the
// edit, delete and cancel flows behind the batch message controls.
//
// Sessions are kept per user within a conversation. Every entry point holds
// that session's lock for its whole read-decide-mutate sequence, so events of
// one user in one conversation are handled one at a time while everything
// else proceeds independently.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/dayclock"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/entrygroup"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/observe"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/session"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/storage"
)

var (
	// ErrEntryNotFound means a referenced entry is missing or owned by
	// someone else.
	ErrEntryNotFound = errors.New("assistant: entry not found")
	// ErrCountMismatch means a revision did not return one dish per entry.
	ErrCountMismatch = errors.New("assistant: revised dish count does not match batch")
	// ErrPartialDelete means the store removed fewer entries than requested.
	ErrPartialDelete = errors.New("assistant: partial delete")
	// ErrNoDishes means the understanding service found nothing to log.
	ErrNoDishes = errors.New("assistant: no dishes recognised")
)

// RecordStore is the persistent store of users, days and entries.
type RecordStore interface {
	SaveUser(ctx context.Context, user models.User) error
	UserTimezone(ctx context.Context, userID string) (string, error)
	SetUserTimezone(ctx context.Context, userID, tz string) error
	DayByID(ctx context.Context, userID string, dayID int64) (models.Day, error)
	InsertEntries(ctx context.Context, userID string, dayID int64, dishes []models.Dish) ([]int64, error)
	FindEntry(ctx context.Context, id int64, userID string) (models.FoodEntry, error)
	UpdateEntries(ctx context.Context, userID string, ids []int64, dishes []models.Dish) error
	DeleteEntries(ctx context.Context, ids []int64, userID string) (int64, error)
	CountEntriesForDay(ctx context.Context, userID string, dayID int64) (int, error)
	EntriesForDay(ctx context.Context, userID string, dayID int64) ([]models.FoodEntry, error)
}

// Days resolves and advances logical days.
type Days interface {
	GetOrCreateCurrentDay(ctx context.Context, userID string) (models.Day, error)
	CreateNextDay(ctx context.Context, userID string) (models.Day, error)
}

// Understanding extracts and revises dishes.
type Understanding interface {
	Analyze(ctx context.Context, text string) ([]models.Dish, error)
	ReviseGroup(ctx context.Context, originals []models.FoodEntry, instruction string) ([]models.Dish, error)
}

// Transcriber turns a voice recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio chat.AudioRef) (string, error)
}

// Config holds the collaborators of a Service. Transcriber, Sessions and
// Metrics are optional.
type Config struct {
	Store         RecordStore
	Days          Days
	Understanding Understanding
	Transcriber   Transcriber
	Transport     chat.Transport
	Sessions      session.Store
	Metrics       *observe.Metrics
	// DefaultTimezone is reported to users without a zone of their own.
	DefaultTimezone string
}

// Service implements the conversation. It also implements session.Actions
// for the session variants it creates.
type Service struct {
	store       RecordStore
	days        Days
	ai          Understanding
	speech      Transcriber
	transport   chat.Transport
	sessions    *session.Manager
	locks       *conversationLocks
	metrics     *observe.Metrics
	defaultZone string
}

var _ session.Actions = (*Service)(nil)

// New builds a Service from cfg.
func New(cfg Config) *Service {
	s := &Service{
		store:       cfg.Store,
		days:        cfg.Days,
		ai:          cfg.Understanding,
		speech:      cfg.Transcriber,
		transport:   cfg.Transport,
		locks:       newConversationLocks(),
		metrics:     cfg.Metrics,
		defaultZone: cfg.DefaultTimezone,
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.defaultZone == "" {
		s.defaultZone = dayclock.DefaultTimezone
	}
	store := cfg.Sessions
	if store == nil {
		store = session.NewMemoryStore()
	}
	s.sessions = session.NewManager(store, s)
	return s
}

// Sessions exposes the session manager.
func (s *Service) Sessions() *session.Manager {
	return s.sessions
}

// HandleText routes a text message through the conversation's session.
func (s *Service) HandleText(ctx context.Context, ev chat.TextEvent) {
	defer s.locks.lock(sessionKey(ev.Source))()

	if !s.sessions.Get(sessionKey(ev.Source)).HandleText(ctx, ev) {
		s.reply(ctx, ev.ConversationID, textNotHandled)
	}
}

// HandleVoice routes a voice message through the conversation's session.
func (s *Service) HandleVoice(ctx context.Context, ev chat.VoiceEvent) {
	defer s.locks.lock(sessionKey(ev.Source))()

	if !s.sessions.Get(sessionKey(ev.Source)).HandleVoice(ctx, ev) {
		s.reply(ctx, ev.ConversationID, textVoiceNotHandled)
	}
}

// HandlePhoto routes a photo through the conversation's session.
func (s *Service) HandlePhoto(ctx context.Context, ev chat.PhotoEvent) {
	defer s.locks.lock(sessionKey(ev.Source))()

	if !s.sessions.Get(sessionKey(ev.Source)).HandlePhoto(ctx, ev) {
		s.reply(ctx, ev.ConversationID, textPhotoNotHandled)
	}
}

// HandleButton runs the edit, delete or cancel flow named by the token.
func (s *Service) HandleButton(ctx context.Context, ev chat.ButtonEvent) {
	defer s.locks.lock(sessionKey(ev.Source))()

	if entrygroup.IsCancel(ev.Token) {
		s.cancelEdit(ctx, ev)
		return
	}

	tok, err := entrygroup.Decode(ev.Token)
	if err != nil {
		slog.Warn("assistant: undecodable action token", "conversation_id", ev.ConversationID, "token", ev.Token)
		s.reply(ctx, ev.ConversationID, textInvalidAction)
		return
	}

	switch tok.Action {
	case entrygroup.ActionEdit:
		s.beginEdit(ctx, ev, tok)
	case entrygroup.ActionDelete:
		s.deleteBatch(ctx, ev, tok)
	}
}

// LogFood analyses ev's text, stores the dishes in the current day and sends
// the batch message with its edit and delete controls.
func (s *Service) LogFood(ctx context.Context, ev chat.TextEvent) bool {
	conv, userID := ev.ConversationID, ev.UserID

	if err := s.store.SaveUser(ctx, models.User{ID: userID, Username: ev.Username}); err != nil {
		slog.Warn("assistant: failed to save user", "user_id", userID, "err", err)
	}

	day, err := s.days.GetOrCreateCurrentDay(ctx, userID)
	if err != nil {
		slog.Error("assistant: failed to resolve current day", "user_id", userID, "err", err)
		s.reply(ctx, conv, textDatabaseError)
		return true
	}

	dishes, err := s.analyze(ctx, ev.Text)
	if err != nil {
		slog.Warn("assistant: analysis failed", "user_id", userID, "err", err)
		s.reply(ctx, conv, textAIError)
		return true
	}

	existing, err := s.store.CountEntriesForDay(ctx, userID, day.ID)
	if err != nil {
		slog.Warn("assistant: failed to count entries", "user_id", userID, "err", err)
		existing = 0
	}

	ids, err := s.store.InsertEntries(ctx, userID, day.ID, dishes)
	if err != nil {
		slog.Error("assistant: failed to store entries", "user_id", userID, "err", err)
		s.reply(ctx, conv, textDatabaseError)
		return true
	}
	s.metrics.RecordEntries(ctx, len(ids))

	controls, err := batchControls(ids, day.ID)
	if err != nil {
		slog.Error("assistant: failed to encode batch", "user_id", userID, "err", err)
	}
	if _, err := s.transport.SendText(ctx, conv, batchText(day.Number, dishes, existing), controls...); err != nil {
		slog.Warn("assistant: failed to send batch message", "conversation_id", conv, "err", err)
	}
	return true
}

// LogVoice transcribes ev and logs the recognised text. It declines when no
// transcriber is configured.
func (s *Service) LogVoice(ctx context.Context, ev chat.VoiceEvent) bool {
	if s.speech == nil {
		return false
	}

	text, err := s.speech.Transcribe(ctx, ev.Audio)
	if err != nil {
		slog.Warn("assistant: transcription failed", "user_id", ev.UserID, "err", err)
		s.reply(ctx, ev.ConversationID, textVoiceError)
		return true
	}

	s.reply(ctx, ev.ConversationID, voiceRecognisedText(text))
	return s.LogFood(ctx, chat.TextEvent{Source: ev.Source, Text: text})
}

func (s *Service) analyze(ctx context.Context, text string) ([]models.Dish, error) {
	dishes, err := s.ai.Analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(dishes) == 0 {
		return nil, ErrNoDishes
	}
	return dishes, nil
}

// batchControls builds the edit and delete controls of a batch message.
func batchControls(ids []int64, dayID int64) ([]chat.Control, error) {
	b, err := entrygroup.EncodeBatch(ids, dayID)
	if err != nil {
		return nil, err
	}
	if b.Truncated {
		slog.Warn("assistant: batch token over budget, controls target the first entry only",
			"entries", len(ids), "day_id", dayID)
	}
	return []chat.Control{
		{Label: labelEdit, Token: b.Edit, Style: chat.StylePrimary},
		{Label: labelDelete, Token: b.Delete, Style: chat.StyleDanger},
	}, nil
}

// loadBatch returns the entries of ids in order, or ErrEntryNotFound when
// any of them is missing or owned by someone else.
func (s *Service) loadBatch(ctx context.Context, userID string, ids []int64) ([]models.FoodEntry, error) {
	entries := make([]models.FoodEntry, 0, len(ids))
	for _, id := range ids {
		e, err := s.store.FindEntry(ctx, id, userID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("entry %d: %w", id, ErrEntryNotFound)
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// reply sends a plain message. Failures are logged.
func (s *Service) reply(ctx context.Context, conversationID, text string) {
	if _, err := s.transport.SendText(ctx, conversationID, text); err != nil {
		slog.Warn("assistant: failed to send reply", "conversation_id", conversationID, "err", err)
	}
}

// retract deletes a message. Failures are logged and otherwise ignored since
// the message may already be gone.
func (s *Service) retract(ctx context.Context, conversationID string, msg chat.MessageHandle) {
	if msg == "" {
		return
	}
	if err := s.transport.DeleteMessage(ctx, conversationID, msg); err != nil {
		slog.Warn("assistant: failed to delete message", "conversation_id", conversationID, "message", string(msg), "err", err)
	}
}

// retractSummaries deletes every day summary tracked for src.
func (s *Service) retractSummaries(ctx context.Context, src chat.Source) {
	for _, msg := range s.sessions.TakeSummaries(sessionKey(src)) {
		s.retract(ctx, src.ConversationID, msg)
	}
}

// sessionKey identifies one user's session within a conversation. Users
// sharing a channel never see each other's state, and the conversation id
// stays the send target.
func sessionKey(src chat.Source) string {
	return src.ConversationID + "/" + src.UserID
}

func elapsed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
