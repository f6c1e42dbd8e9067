package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/entrygroup"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/observe"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/session"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/storage"
)

// beginEdit validates the batch and switches the conversation to EDITING.
// A batch with missing entries leaves the session untouched.
func (s *Service) beginEdit(ctx context.Context, ev chat.ButtonEvent, tok entrygroup.Token) {
	conv, key := ev.ConversationID, sessionKey(ev.Source)

	entries, err := s.loadBatch(ctx, ev.UserID, tok.EntryIDs)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			s.metrics.RecordEdit(ctx, observe.StatusNotFound)
			s.reply(ctx, conv, textEditNotFound)
			return
		}
		slog.Error("assistant: failed to load batch", "user_id", ev.UserID, "err", err)
		s.reply(ctx, conv, textDatabaseError)
		return
	}

	// The stored entries decide the day; the token's day may be stale.
	dayID := entries[0].DayID
	if dayID != tok.DayID {
		slog.Warn("assistant: token day does not match entries", "user_id", ev.UserID, "token_day_id", tok.DayID, "day_id", dayID)
	}

	// A prompt left over from a previous edit would keep a live cancel control.
	if prev := s.sessions.Current(key); prev.Kind == session.KindEditing {
		s.retract(ctx, conv, prev.Editing.Prompt)
	}

	s.sessions.BeginEditing(key, tok.EntryIDs, ev.Message, dayID)

	prompt, err := s.transport.SendText(ctx, conv, textEditPrompt,
		chat.Control{Label: labelCancel, Token: entrygroup.CancelToken, Style: chat.StyleSecondary})
	if err != nil {
		slog.Warn("assistant: failed to send edit prompt", "conversation_id", conv, "err", err)
		return
	}
	s.sessions.SetPromptHandle(key, prompt)
}

// ApplyEdit revises the whole batch using ev as instruction. The batch is
// updated only when the revision returns exactly one dish per entry; on a
// count mismatch the conversation stays in EDITING so the user can retry.
func (s *Service) ApplyEdit(ctx context.Context, ev chat.TextEvent, ed session.Editing) bool {
	conv, userID, key := ev.ConversationID, ev.UserID, sessionKey(ev.Source)
	start := time.Now()

	revised, err := s.reviseBatch(ctx, userID, ed.EntryIDs, ev.Text)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		s.metrics.RecordEdit(ctx, observe.StatusNotFound)
		s.reply(ctx, conv, textEditNotFound)
		s.retract(ctx, conv, ed.Prompt)
		s.sessions.Clear(key)
		return true
	case errors.Is(err, ErrCountMismatch):
		slog.Info("assistant: edit rejected", "user_id", userID, "err", err)
		s.metrics.RecordEdit(ctx, observe.StatusMismatch)
		s.reply(ctx, conv, textEditMismatch)
		return true
	case err != nil:
		slog.Warn("assistant: edit failed", "user_id", userID, "err", err)
		s.metrics.RecordEdit(ctx, observe.StatusError)
		s.reply(ctx, conv, textEditError)
		return true
	}

	s.retract(ctx, conv, ed.Prompt)
	s.reply(ctx, conv, textEditSuccess)

	dayNumber := 0
	if day, err := s.store.DayByID(ctx, userID, ed.DayID); err == nil {
		dayNumber = day.Number
	} else {
		slog.Warn("assistant: failed to load day of edited batch", "day_id", ed.DayID, "err", err)
	}

	controls, err := batchControls(ed.EntryIDs, ed.DayID)
	if err != nil {
		slog.Error("assistant: failed to encode batch", "user_id", userID, "err", err)
	}
	text := batchText(dayNumber, revised, s.batchOffset(ctx, userID, ed.DayID, ed.EntryIDs[0])) + textEditedSuffix
	if err := s.transport.EditText(ctx, conv, ed.Message, text, controls...); err != nil {
		slog.Warn("assistant: failed to update batch message", "conversation_id", conv, "message", string(ed.Message), "err", err)
	}

	s.retractSummaries(ctx, ev.Source)
	s.sessions.Clear(key)
	s.metrics.RecordEdit(ctx, observe.StatusOK)
	slog.Debug("assistant: batch edited", "user_id", userID, "entries", len(ed.EntryIDs), elapsed(start))
	return true
}

// reviseBatch asks for the revised batch and persists it in one transaction.
func (s *Service) reviseBatch(ctx context.Context, userID string, ids []int64, instruction string) ([]models.Dish, error) {
	originals, err := s.loadBatch(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	revised, err := s.ai.ReviseGroup(ctx, originals, instruction)
	if err != nil {
		return nil, err
	}
	if len(revised) != len(ids) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrCountMismatch, len(ids), len(revised))
	}

	if err := s.store.UpdateEntries(ctx, userID, ids, revised); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("update batch: %w", ErrEntryNotFound)
		}
		return nil, err
	}
	return revised, nil
}

// batchOffset returns how many entries of the day precede firstID.
func (s *Service) batchOffset(ctx context.Context, userID string, dayID, firstID int64) int {
	entries, err := s.store.EntriesForDay(ctx, userID, dayID)
	if err != nil {
		slog.Warn("assistant: failed to list day entries", "day_id", dayID, "err", err)
		return 0
	}
	i := slices.IndexFunc(entries, func(e models.FoodEntry) bool { return e.ID == firstID })
	if i < 0 {
		return 0
	}
	return i
}

// deleteBatch removes the whole batch or nothing.
func (s *Service) deleteBatch(ctx context.Context, ev chat.ButtonEvent, tok entrygroup.Token) {
	conv, userID, key := ev.ConversationID, ev.UserID, sessionKey(ev.Source)

	n, err := s.deleteEntries(ctx, userID, tok.EntryIDs)
	switch {
	case errors.Is(err, ErrEntryNotFound):
		s.metrics.RecordDelete(ctx, observe.StatusNotFound)
		s.reply(ctx, conv, textDeleteNotFound)
		return
	case errors.Is(err, ErrPartialDelete):
		slog.Error("assistant: delete rejected", "user_id", userID, "err", err)
		s.metrics.RecordDelete(ctx, observe.StatusPartial)
		s.reply(ctx, conv, textDeleteError)
		return
	case err != nil:
		slog.Error("assistant: delete failed", "user_id", userID, "err", err)
		s.metrics.RecordDelete(ctx, observe.StatusError)
		s.reply(ctx, conv, textDeleteError)
		return
	}

	s.retract(ctx, conv, ev.Message)
	s.retractSummaries(ctx, ev.Source)

	// The batch may be the one being edited; its prompt is now meaningless.
	if cur := s.sessions.Current(key); cur.Kind == session.KindEditing && sameBatch(cur.Editing, ev.Message, tok.EntryIDs) {
		s.retract(ctx, conv, cur.Editing.Prompt)
		s.sessions.Clear(key)
	}

	s.reply(ctx, conv, textDeleteSuccess)
	s.metrics.RecordDelete(ctx, observe.StatusOK)
	slog.Debug("assistant: batch deleted", "user_id", userID, "entries", n)
}

func (s *Service) deleteEntries(ctx context.Context, userID string, ids []int64) (int64, error) {
	if _, err := s.loadBatch(ctx, userID, ids); err != nil {
		return 0, err
	}
	n, err := s.store.DeleteEntries(ctx, ids, userID)
	if err != nil {
		return 0, err
	}
	if n != int64(len(ids)) {
		return n, fmt.Errorf("%w: %d of %d entries", ErrPartialDelete, n, len(ids))
	}
	return n, nil
}

func sameBatch(ed *session.Editing, msg chat.MessageHandle, ids []int64) bool {
	if ed == nil {
		return false
	}
	if msg != "" && ed.Message == msg {
		return true
	}
	for _, id := range ids {
		if slices.Contains(ed.EntryIDs, id) {
			return true
		}
	}
	return false
}

// cancelEdit returns the presser's session to DEFAULT. The edit prompt is
// retracted only when the presser is the one editing: the session's prompt
// handle when known, otherwise the message carrying the control.
func (s *Service) cancelEdit(ctx context.Context, ev chat.ButtonEvent) {
	conv, key := ev.ConversationID, sessionKey(ev.Source)

	if cur := s.sessions.Current(key); cur.Kind == session.KindEditing {
		prompt := ev.Message
		if cur.Editing.Prompt != "" {
			prompt = cur.Editing.Prompt
		}
		s.retract(ctx, conv, prompt)
	}
	s.sessions.Clear(key)
	s.reply(ctx, conv, textEditCancelled)
}
