package discord

import (
	"context"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	voice := &discordgo.MessageAttachment{URL: "https://cdn/voice.ogg", Filename: "voice-message.ogg", ContentType: "audio/ogg", Size: 1024}
	photo := &discordgo.MessageAttachment{Filename: "lunch.jpg", ContentType: "image/jpeg"}

	tests := []struct {
		name string
		msg  *discordgo.Message
		want messageKind
		att  *discordgo.MessageAttachment
	}{
		{"text", &discordgo.Message{Content: "борщ"}, kindText, nil},
		{"blank", &discordgo.Message{Content: "  "}, kindIgnore, nil},
		{"voice", &discordgo.Message{Attachments: []*discordgo.MessageAttachment{voice}}, kindVoice, voice},
		{"photo with caption", &discordgo.Message{Content: "обед", Attachments: []*discordgo.MessageAttachment{photo}}, kindPhoto, photo},
		{"voice wins over photo", &discordgo.Message{Attachments: []*discordgo.MessageAttachment{photo, voice}}, kindVoice, voice},
		{"by extension", &discordgo.Message{Attachments: []*discordgo.MessageAttachment{{Filename: "note.M4A"}}}, kindVoice, nil},
		{"unknown attachment falls back to text", &discordgo.Message{Content: "суп", Attachments: []*discordgo.MessageAttachment{{Filename: "menu.pdf", ContentType: "application/pdf"}}}, kindText, nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			kind, att := classify(tt.msg)
			assert.Equal(t, tt.want, kind)
			if tt.att != nil {
				assert.Same(t, tt.att, att)
			}
		})
	}
}

func TestComponents(t *testing.T) {
	t.Parallel()

	assert.Nil(t, components(nil))

	got := components([]chat.Control{
		{Label: "Редактировать", Token: "edit_1,2_1", Style: chat.StylePrimary},
		{Label: "Удалить", Token: "delete_1,2_1", Style: chat.StyleDanger},
		{Label: "Отменить", Token: "cancel_edit", Style: chat.StyleSecondary},
	})
	require.Len(t, got, 1)
	row, ok := got[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 3)

	want := []discordgo.Button{
		{Label: "Редактировать", Style: discordgo.PrimaryButton, CustomID: "edit_1,2_1"},
		{Label: "Удалить", Style: discordgo.DangerButton, CustomID: "delete_1,2_1"},
		{Label: "Отменить", Style: discordgo.SecondaryButton, CustomID: "cancel_edit"},
	}
	for i, w := range want {
		assert.Equal(t, w, row.Components[i])
	}
}

func TestInteractionSource(t *testing.T) {
	t.Parallel()

	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ChannelID: "c1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1", Username: "anna"}},
	}}
	assert.Equal(t, chat.Source{ConversationID: "c1", UserID: "u1", Username: "anna"}, interactionSource(guild))

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		ChannelID: "c2",
		User:      &discordgo.User{ID: "u2", Username: "boris"},
	}}
	assert.Equal(t, chat.Source{ConversationID: "c2", UserID: "u2", Username: "boris"}, interactionSource(dm))
}

func TestCommandArgs(t *testing.T) {
	t.Parallel()

	data := discordgo.ApplicationCommandInteractionData{
		Name: "timezone",
		Options: []*discordgo.ApplicationCommandInteractionDataOption{
			{Name: "zone", Type: discordgo.ApplicationCommandOptionString, Value: "Asia/Tokyo"},
		},
	}
	assert.Equal(t, "Asia/Tokyo", commandArgs(data))
	assert.Empty(t, commandArgs(discordgo.ApplicationCommandInteractionData{Name: "help"}))
}

func TestApplicationCommand(t *testing.T) {
	t.Parallel()

	plain := applicationCommand(CommandSpec{Name: "help", Description: "Справка"})
	assert.Equal(t, "help", plain.Name)
	assert.Empty(t, plain.Options)

	withOpt := applicationCommand(CommandSpec{Name: "timezone", Description: "Часовой пояс", Option: "zone"})
	require.Len(t, withOpt.Options, 1)
	assert.Equal(t, "zone", withOpt.Options[0].Name)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, withOpt.Options[0].Type)
	assert.False(t, withOpt.Options[0].Required)
}

func TestRouter(t *testing.T) {
	t.Parallel()
	r := NewCommandRouter()

	var hit string
	r.RegisterComponent("cancel_edit", func(*discordgo.Session, *discordgo.InteractionCreate) { hit = "exact" })
	r.RegisterComponentPrefix("cancel", func(*discordgo.Session, *discordgo.InteractionCreate) { hit = "prefix" })
	r.RegisterComponentPrefix("edit_", func(*discordgo.Session, *discordgo.InteractionCreate) { hit = "edit" })
	r.RegisterCommand("help", &discordgo.ApplicationCommand{Name: "help"}, func(*discordgo.Session, *discordgo.InteractionCreate) {})

	h, ok := r.lookupComponent("cancel_edit")
	require.True(t, ok)
	h(nil, nil)
	assert.Equal(t, "exact", hit)

	h, ok = r.lookupComponent("edit_1,2_3")
	require.True(t, ok)
	h(nil, nil)
	assert.Equal(t, "edit", hit)

	_, ok = r.lookupComponent("vote_1")
	assert.False(t, ok)

	cmds := r.ApplicationCommands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "help", cmds[0].Name)
}

type recordingHandler struct {
	mu     sync.Mutex
	texts  []chat.TextEvent
	voices []chat.VoiceEvent
	photos []chat.PhotoEvent
}

func (h *recordingHandler) HandleText(_ context.Context, ev chat.TextEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.texts = append(h.texts, ev)
}

func (h *recordingHandler) HandleVoice(_ context.Context, ev chat.VoiceEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.voices = append(h.voices, ev)
}

func (h *recordingHandler) HandlePhoto(_ context.Context, ev chat.PhotoEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.photos = append(h.photos, ev)
}

func (*recordingHandler) HandleButton(context.Context, chat.ButtonEvent) {}

func (*recordingHandler) HandleCommand(context.Context, chat.Command) {}

func TestBindAndMessages(t *testing.T) {
	t.Parallel()

	b, err := New(context.Background(), Config{Token: "test-token"})
	require.NoError(t, err)

	h := &recordingHandler{}
	b.Bind(h, []CommandSpec{{Name: "help", Description: "Справка"}, {Name: "timezone", Description: "Пояс", Option: "zone"}})

	assert.Len(t, b.Router().ApplicationCommands(), 2)
	for _, id := range []string{"cancel_edit", "edit_1_1", "delete_4,5_2"} {
		_, ok := b.Router().lookupComponent(id)
		assert.True(t, ok, id)
	}

	author := &discordgo.User{ID: "u1", Username: "anna"}
	b.onMessage(&discordgo.MessageCreate{Message: &discordgo.Message{ChannelID: "c1", Author: author, Content: "борщ"}})
	b.onMessage(&discordgo.MessageCreate{Message: &discordgo.Message{ChannelID: "c1", Author: &discordgo.User{ID: "bot", Bot: true}, Content: "эхо"}})
	b.onMessage(&discordgo.MessageCreate{Message: &discordgo.Message{ChannelID: "c1", Author: author, Attachments: []*discordgo.MessageAttachment{
		{URL: "https://cdn/v.ogg", Filename: "v.ogg", ContentType: "audio/ogg", Size: 10},
	}}})
	b.onMessage(&discordgo.MessageCreate{Message: &discordgo.Message{ChannelID: "c1", Author: author, Content: "ужин", Attachments: []*discordgo.MessageAttachment{
		{Filename: "dinner.png", ContentType: "image/png"},
	}}})

	src := chat.Source{ConversationID: "c1", UserID: "u1", Username: "anna"}
	assert.Equal(t, []chat.TextEvent{{Source: src, Text: "борщ"}}, h.texts)
	assert.Equal(t, []chat.VoiceEvent{{Source: src, Audio: chat.AudioRef{URL: "https://cdn/v.ogg", Filename: "v.ogg", ContentType: "audio/ogg", Size: 10}}}, h.voices)
	assert.Equal(t, []chat.PhotoEvent{{Source: src, Caption: "ужин"}}, h.photos)
}
