package discord

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// HandlerFunc is the signature for interaction handlers.
type HandlerFunc func(s *discordgo.Session, i *discordgo.InteractionCreate)

type commandEntry struct {
	command *discordgo.ApplicationCommand
	handler HandlerFunc
}

// CommandRouter dispatches slash commands and button presses to handlers.
type CommandRouter struct {
	mu              sync.RWMutex
	commands        map[string]commandEntry // command name → entry
	components      map[string]HandlerFunc  // custom_id → handler
	componentPrefix map[string]HandlerFunc  // prefix → handler
}

// NewCommandRouter creates an empty router.
func NewCommandRouter() *CommandRouter {
	return &CommandRouter{
		commands:        make(map[string]commandEntry),
		components:      make(map[string]HandlerFunc),
		componentPrefix: make(map[string]HandlerFunc),
	}
}

// RegisterCommand registers a handler for a slash command. cmd is used when
// registering commands with Discord.
func (r *CommandRouter) RegisterCommand(name string, cmd *discordgo.ApplicationCommand, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[name] = commandEntry{command: cmd, handler: handler}
}

// RegisterComponent registers a handler for a button with an exact custom id.
func (r *CommandRouter) RegisterComponent(customID string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[customID] = handler
}

// RegisterComponentPrefix registers a handler for every button whose custom
// id starts with prefix.
func (r *CommandRouter) RegisterComponentPrefix(prefix string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.componentPrefix[prefix] = handler
}

// ApplicationCommands returns the command definitions for registration.
func (r *CommandRouter) ApplicationCommands() []*discordgo.ApplicationCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]*discordgo.ApplicationCommand, 0, len(r.commands))
	for _, entry := range r.commands {
		if entry.command != nil {
			cmds = append(cmds, entry.command)
		}
	}
	return cmds
}

// Handle dispatches an interaction to the appropriate handler.
func (r *CommandRouter) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		r.handleApplicationCommand(s, i)
	case discordgo.InteractionMessageComponent:
		r.handleComponent(s, i)
	default:
		slog.Debug("discord: unhandled interaction type", "type", i.Type)
	}
}

func (r *CommandRouter) handleApplicationCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name

	r.mu.RLock()
	entry, ok := r.commands[name]
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown command", "name", name)
		RespondEphemeral(s, i, "Неизвестная команда.")
		return
	}
	entry.handler(s, i)
}

// lookupComponent finds the handler of customID, preferring exact matches.
func (r *CommandRouter) lookupComponent(customID string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if h, ok := r.components[customID]; ok {
		return h, true
	}
	for prefix, h := range r.componentPrefix {
		if strings.HasPrefix(customID, prefix) {
			return h, true
		}
	}
	return nil, false
}

func (r *CommandRouter) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	handler, ok := r.lookupComponent(customID)
	if !ok {
		slog.Warn("discord: unknown component", "custom_id", customID)
		RespondEphemeral(s, i, "Эта кнопка больше не работает.")
		return
	}
	handler(s, i)
}
