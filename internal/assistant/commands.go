package assistant

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/models"
)

// Command names understood by HandleCommand.
const (
	CommandStart     = "start"
	CommandHelp      = "help"
	CommandNextDay   = "nextday"
	CommandDayResult = "dayresult"
	CommandTimezone  = "timezone"
)

// Commands lists every command with a short description for transports that
// register them up front.
var Commands = []struct {
	Name        string
	Description string
}{
	{CommandStart, "Начать диалог"},
	{CommandHelp, "Получить справку"},
	{CommandNextDay, "Создать следующий день"},
	{CommandDayResult, "Показать записи за текущий день"},
	{CommandTimezone, "Установить часовой пояс"},
}

// HandleCommand runs an explicit user command.
func (s *Service) HandleCommand(ctx context.Context, cmd chat.Command) {
	defer s.locks.lock(sessionKey(cmd.Source))()

	switch strings.ToLower(strings.TrimPrefix(cmd.Name, "/")) {
	case CommandStart:
		s.start(ctx, cmd)
	case CommandHelp:
		s.reply(ctx, cmd.ConversationID, textHelp)
	case CommandNextDay:
		s.nextDay(ctx, cmd)
	case CommandDayResult:
		s.dayResult(ctx, cmd)
	case CommandTimezone:
		s.timezone(ctx, cmd)
	default:
		s.reply(ctx, cmd.ConversationID, textUnknownCommand)
	}
}

func (s *Service) start(ctx context.Context, cmd chat.Command) {
	if err := s.store.SaveUser(ctx, models.User{ID: cmd.UserID, Username: cmd.Username}); err != nil {
		slog.Warn("assistant: failed to save user", "user_id", cmd.UserID, "err", err)
	}
	day, err := s.days.GetOrCreateCurrentDay(ctx, cmd.UserID)
	if err != nil {
		slog.Error("assistant: failed to resolve current day", "user_id", cmd.UserID, "err", err)
		s.reply(ctx, cmd.ConversationID, textDatabaseError)
		return
	}
	s.reply(ctx, cmd.ConversationID, startText(cmd.Username, day.Number))
}

func (s *Service) nextDay(ctx context.Context, cmd chat.Command) {
	day, err := s.days.CreateNextDay(ctx, cmd.UserID)
	if err != nil {
		slog.Error("assistant: failed to create next day", "user_id", cmd.UserID, "err", err)
		s.reply(ctx, cmd.ConversationID, textDatabaseError)
		return
	}
	s.reply(ctx, cmd.ConversationID, nextDayText(day.Number))
}

// dayResult sends the current day's summary and tracks it so a later edit
// or delete can retract it.
func (s *Service) dayResult(ctx context.Context, cmd chat.Command) {
	conv := cmd.ConversationID

	day, err := s.days.GetOrCreateCurrentDay(ctx, cmd.UserID)
	if err != nil {
		slog.Error("assistant: failed to resolve current day", "user_id", cmd.UserID, "err", err)
		s.reply(ctx, conv, textDatabaseError)
		return
	}
	entries, err := s.store.EntriesForDay(ctx, cmd.UserID, day.ID)
	if err != nil {
		slog.Error("assistant: failed to list day entries", "user_id", cmd.UserID, "err", err)
		s.reply(ctx, conv, textDatabaseError)
		return
	}

	text := dayResultEmptyText(day.Number)
	if len(entries) > 0 {
		text = dayResultText(day.Number, entries)
	}
	msg, err := s.transport.SendText(ctx, conv, text)
	if err != nil {
		slog.Warn("assistant: failed to send day summary", "conversation_id", conv, "err", err)
		return
	}
	s.sessions.TrackSummary(sessionKey(cmd.Source), msg)
}

func (s *Service) timezone(ctx context.Context, cmd chat.Command) {
	conv := cmd.ConversationID
	name := strings.TrimSpace(cmd.Args)

	if name == "" {
		current, err := s.store.UserTimezone(ctx, cmd.UserID)
		if err != nil || current == "" {
			current = s.defaultZone
		}
		s.reply(ctx, conv, timezoneUsageText(current))
		return
	}

	if _, err := time.LoadLocation(name); err != nil || strings.EqualFold(name, "local") {
		s.reply(ctx, conv, timezoneInvalidText(name))
		return
	}
	if err := s.store.SetUserTimezone(ctx, cmd.UserID, name); err != nil {
		slog.Error("assistant: failed to store timezone", "user_id", cmd.UserID, "err", err)
		s.reply(ctx, conv, textDatabaseError)
		return
	}
	s.reply(ctx, conv, timezoneSetText(name))
}
