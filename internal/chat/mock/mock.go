// Package mock provides a recording test double for chat.Transport.
//
// Sent messages receive sequential handles "m1", "m2", ... Set the Err fields
// to inject failures.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/EugeneArbatsky/kbju-2026-bot/internal/chat"
)

// SendCall records a single invocation of SendText.
type SendCall struct {
	ConversationID string
	Text           string
	Controls       []chat.Control
	Handle         chat.MessageHandle
}

// EditCall records a single invocation of EditText.
type EditCall struct {
	ConversationID string
	Message        chat.MessageHandle
	Text           string
	Controls       []chat.Control
}

// DeleteCall records a single invocation of DeleteMessage.
type DeleteCall struct {
	ConversationID string
	Message        chat.MessageHandle
}

// Transport is a mock implementation of chat.Transport.
type Transport struct {
	mu   sync.Mutex
	next int

	// SendErr, if non-nil, is returned by SendText.
	SendErr error
	// EditErr, if non-nil, is returned by EditText.
	EditErr error
	// DeleteErr, if non-nil, is returned by DeleteMessage.
	DeleteErr error

	Sends   []SendCall
	Edits   []EditCall
	Deletes []DeleteCall
}

func (t *Transport) SendText(_ context.Context, conversationID, text string, controls ...chat.Control) (chat.MessageHandle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.SendErr != nil {
		return "", t.SendErr
	}
	t.next++
	h := chat.MessageHandle(fmt.Sprintf("m%d", t.next))
	t.Sends = append(t.Sends, SendCall{ConversationID: conversationID, Text: text, Controls: controls, Handle: h})
	return h, nil
}

func (t *Transport) EditText(_ context.Context, conversationID string, msg chat.MessageHandle, text string, controls ...chat.Control) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Edits = append(t.Edits, EditCall{ConversationID: conversationID, Message: msg, Text: text, Controls: controls})
	return t.EditErr
}

func (t *Transport) DeleteMessage(_ context.Context, conversationID string, msg chat.MessageHandle) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Deletes = append(t.Deletes, DeleteCall{ConversationID: conversationID, Message: msg})
	return t.DeleteErr
}

// LastSend returns the most recent SendText call.
func (t *Transport) LastSend() SendCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Sends) == 0 {
		return SendCall{}
	}
	return t.Sends[len(t.Sends)-1]
}

// Deleted reports whether msg was passed to DeleteMessage.
func (t *Transport) Deleted(msg chat.MessageHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, d := range t.Deletes {
		if d.Message == msg {
			return true
		}
	}
	return false
}

// Reset clears all recorded calls. Handle numbering continues.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sends = nil
	t.Edits = nil
	t.Deletes = nil
}
