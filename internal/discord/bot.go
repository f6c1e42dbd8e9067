// Package discord carries the food-logging conversation over Discord. It owns
// the discordgo.Session lifecycle, turns channel messages, button presses and
// slash commands into chat events, and implements chat.Transport.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
	"github.com/EugeneArbatsky/kbju-2026-bot/internal/entrygroup"
)

// eventTimeout bounds the handling of a single incoming event.
const eventTimeout = 2 * time.Minute

// Config holds Discord bot configuration.
type Config struct {
	Token string
	// GuildID scopes slash commands to one guild. Empty registers them
	// globally.
	GuildID string
}

// Handler reacts to incoming chat events.
type Handler interface {
	HandleText(ctx context.Context, ev chat.TextEvent)
	HandleVoice(ctx context.Context, ev chat.VoiceEvent)
	HandlePhoto(ctx context.Context, ev chat.PhotoEvent)
	HandleButton(ctx context.Context, ev chat.ButtonEvent)
	HandleCommand(ctx context.Context, cmd chat.Command)
}

// CommandSpec describes a slash command. Option, when set, names a single
// optional string argument.
type CommandSpec struct {
	Name        string
	Description string
	Option      string
}

// Bot owns the Discord gateway connection.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	handler   Handler
	guildID   string
	baseCtx   context.Context
	commands  []*discordgo.ApplicationCommand
	closeOnce sync.Once
}

var _ chat.Transport = (*Bot)(nil)

// New creates a Bot and registers its gateway handlers. The connection is
// opened by Run, after Bind.
func New(ctx context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		guildID: cfg.GuildID,
		baseCtx: context.WithoutCancel(ctx),
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		b.onMessage(m)
	})

	return b, nil
}

// Bind routes events to h and registers the slash commands and the batch
// controls.
func (b *Bot) Bind(h Handler, commands []CommandSpec) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()

	for _, spec := range commands {
		b.router.RegisterCommand(spec.Name, applicationCommand(spec), b.onCommand)
	}
	b.router.RegisterComponent(entrygroup.CancelToken, b.onButton)
	b.router.RegisterComponentPrefix(string(entrygroup.ActionEdit)+"_", b.onButton)
	b.router.RegisterComponentPrefix(string(entrygroup.ActionDelete)+"_", b.onButton)
}

// Router returns the interaction router.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Run opens the gateway, registers slash commands and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}

	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}

// SendText posts text with optional controls to a channel.
func (b *Bot) SendText(ctx context.Context, channelID, text string, controls ...chat.Control) (chat.MessageHandle, error) {
	msg, err := b.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    text,
		Components: components(controls),
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("discord: send message: %w", err)
	}
	return chat.MessageHandle(msg.ID), nil
}

// EditText replaces the text and controls of a message.
func (b *Bot) EditText(ctx context.Context, channelID string, msg chat.MessageHandle, text string, controls ...chat.Control) error {
	edit := discordgo.NewMessageEdit(channelID, string(msg)).SetContent(text)
	comps := components(controls)
	if comps == nil {
		comps = []discordgo.MessageComponent{}
	}
	edit.Components = &comps

	if _, err := b.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: edit message %s: %w", msg, err)
	}
	return nil
}

// DeleteMessage removes a message.
func (b *Bot) DeleteMessage(ctx context.Context, channelID string, msg chat.MessageHandle) error {
	if err := b.session.ChannelMessageDelete(channelID, string(msg), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord: delete message %s: %w", msg, err)
	}
	return nil
}

func (b *Bot) currentHandler() Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handler
}

func (b *Bot) eventContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(b.baseCtx, eventTimeout)
}

func (b *Bot) onMessage(m *discordgo.MessageCreate) {
	h := b.currentHandler()
	if h == nil || m.Author == nil || m.Author.Bot {
		return
	}

	ctx, cancel := b.eventContext()
	defer cancel()

	src := chat.Source{ConversationID: m.ChannelID, UserID: m.Author.ID, Username: m.Author.Username}
	switch kind, att := classify(m.Message); kind {
	case kindVoice:
		h.HandleVoice(ctx, chat.VoiceEvent{Source: src, Audio: chat.AudioRef{
			URL:         att.URL,
			Filename:    att.Filename,
			ContentType: att.ContentType,
			Size:        att.Size,
		}})
	case kindPhoto:
		h.HandlePhoto(ctx, chat.PhotoEvent{Source: src, Caption: m.Content})
	case kindText:
		h.HandleText(ctx, chat.TextEvent{Source: src, Text: m.Content})
	}
}

func (b *Bot) onButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h := b.currentHandler()
	if h == nil {
		return
	}
	DeferUpdate(s, i)

	ctx, cancel := b.eventContext()
	defer cancel()

	ev := chat.ButtonEvent{
		Source: interactionSource(i),
		Token:  i.MessageComponentData().CustomID,
	}
	if i.Message != nil {
		ev.Message = chat.MessageHandle(i.Message.ID)
	}
	h.HandleButton(ctx, ev)
}

func (b *Bot) onCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	h := b.currentHandler()
	if h == nil {
		return
	}
	DeferReply(s, i)

	ctx, cancel := b.eventContext()
	defer cancel()

	data := i.ApplicationCommandData()
	h.HandleCommand(ctx, chat.Command{
		Source: interactionSource(i),
		Name:   data.Name,
		Args:   commandArgs(data),
	})
	DeleteReply(s, i)
}

type messageKind int

const (
	kindIgnore messageKind = iota
	kindText
	kindVoice
	kindPhoto
)

var (
	audioExts = []string{".ogg", ".oga", ".opus", ".mp3", ".m4a", ".wav", ".webm"}
	imageExts = []string{".png", ".jpg", ".jpeg", ".webp", ".gif", ".heic"}
)

// classify decides how a message is handled. The first audio attachment wins
// over images; a message without attachments or text is ignored.
func classify(m *discordgo.Message) (messageKind, *discordgo.MessageAttachment) {
	var photo *discordgo.MessageAttachment
	for _, a := range m.Attachments {
		if a == nil {
			continue
		}
		switch attachmentKind(a) {
		case kindVoice:
			return kindVoice, a
		case kindPhoto:
			if photo == nil {
				photo = a
			}
		}
	}
	if photo != nil {
		return kindPhoto, photo
	}
	if strings.TrimSpace(m.Content) == "" {
		return kindIgnore, nil
	}
	return kindText, nil
}

func attachmentKind(a *discordgo.MessageAttachment) messageKind {
	ct := strings.ToLower(a.ContentType)
	switch {
	case strings.HasPrefix(ct, "audio/"):
		return kindVoice
	case strings.HasPrefix(ct, "image/"):
		return kindPhoto
	}
	ext := strings.ToLower(path.Ext(a.Filename))
	for _, e := range audioExts {
		if ext == e {
			return kindVoice
		}
	}
	for _, e := range imageExts {
		if ext == e {
			return kindPhoto
		}
	}
	return kindIgnore
}

func interactionSource(i *discordgo.InteractionCreate) chat.Source {
	src := chat.Source{ConversationID: i.ChannelID}
	switch {
	case i.Member != nil && i.Member.User != nil:
		src.UserID, src.Username = i.Member.User.ID, i.Member.User.Username
	case i.User != nil:
		src.UserID, src.Username = i.User.ID, i.User.Username
	}
	return src
}

func commandArgs(data discordgo.ApplicationCommandInteractionData) string {
	args := make([]string, 0, len(data.Options))
	for _, opt := range data.Options {
		if opt.Type == discordgo.ApplicationCommandOptionString {
			args = append(args, opt.StringValue())
		}
	}
	return strings.Join(args, " ")
}

func applicationCommand(spec CommandSpec) *discordgo.ApplicationCommand {
	cmd := &discordgo.ApplicationCommand{
		Name:        spec.Name,
		Description: spec.Description,
	}
	if spec.Option != "" {
		cmd.Options = []*discordgo.ApplicationCommandOption{{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        spec.Option,
			Description: spec.Description,
		}}
	}
	return cmd
}

func buttonStyle(s chat.ControlStyle) discordgo.ButtonStyle {
	switch s {
	case chat.StyleDanger:
		return discordgo.DangerButton
	case chat.StyleSecondary:
		return discordgo.SecondaryButton
	default:
		return discordgo.PrimaryButton
	}
}

// components renders controls as a single action row.
func components(controls []chat.Control) []discordgo.MessageComponent {
	if len(controls) == 0 {
		return nil
	}
	buttons := make([]discordgo.MessageComponent, 0, len(controls))
	for _, c := range controls {
		buttons = append(buttons, discordgo.Button{
			Label:    c.Label,
			Style:    buttonStyle(c.Style),
			CustomID: c.Token,
		})
	}
	return []discordgo.MessageComponent{discordgo.ActionsRow{Components: buttons}}
}
