// Package entrygroup encodes a batch of food entries and their day into the
// compact action tokens carried by interactive message controls, and decodes
// them back when a control is pressed.
//
// A token has the form "<action>_<id>,<id>,..._<dayID>". Transports limit the
// size of control data, so a token never exceeds [MaxTokenBytes]; a batch whose
// full token would be larger is encoded with its first id only.
package entrygroup

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// MaxTokenBytes is the control-data budget of a single token.
const MaxTokenBytes = 64

// CancelToken is carried by the cancel control of an edit prompt.
const CancelToken = "cancel_edit"

const (
	partSep = "_"
	idSep   = ","
)

// ErrInvalidToken is returned by [Decode] for anything that is not a
// well-formed edit or delete token.
var ErrInvalidToken = errors.New("entrygroup: invalid token")

// Action is the operation a token requests.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// IsValid reports whether a is a known action.
func (a Action) IsValid() bool {
	return a == ActionEdit || a == ActionDelete
}

// Token is the decoded form of an action token.
type Token struct {
	Action   Action
	EntryIDs []int64
	DayID    int64
}

// Batch holds the two tokens attached to a batch message.
type Batch struct {
	Edit   string
	Delete string

	// Truncated is set when the batch did not fit and both tokens reference
	// only the first entry.
	Truncated bool
}

// Encode builds the token for action over ids. When the full token exceeds
// MaxTokenBytes it is rebuilt with ids[0] only.
func Encode(action Action, ids []int64, dayID int64) (string, error) {
	tok, _, err := encode(action, ids, dayID)
	return tok, err
}

func encode(action Action, ids []int64, dayID int64) (string, bool, error) {
	if !action.IsValid() {
		return "", false, fmt.Errorf("entrygroup: unknown action %q", action)
	}
	if len(ids) == 0 {
		return "", false, errors.New("entrygroup: no entry ids")
	}

	tok := format(action, ids, dayID)
	if len(tok) <= MaxTokenBytes {
		return tok, false, nil
	}
	return format(action, ids[:1], dayID), true, nil
}

// EncodeBatch builds the edit and delete tokens for one batch message. If
// either token overflows, both fall back to the first id so the two controls
// always address the same entries.
func EncodeBatch(ids []int64, dayID int64) (Batch, error) {
	edit, editCut, err := encode(ActionEdit, ids, dayID)
	if err != nil {
		return Batch{}, err
	}
	del, delCut, err := encode(ActionDelete, ids, dayID)
	if err != nil {
		return Batch{}, err
	}
	if editCut != delCut {
		edit = format(ActionEdit, ids[:1], dayID)
		del = format(ActionDelete, ids[:1], dayID)
	}
	return Batch{Edit: edit, Delete: del, Truncated: editCut || delCut}, nil
}

func format(action Action, ids []int64, dayID int64) string {
	var b strings.Builder
	b.WriteString(string(action))
	b.WriteString(partSep)
	for i, id := range ids {
		if i > 0 {
			b.WriteString(idSep)
		}
		b.WriteString(strconv.FormatInt(id, 10))
	}
	b.WriteString(partSep)
	b.WriteString(strconv.FormatInt(dayID, 10))
	return b.String()
}

// Decode parses an edit or delete token. The cancel token and any malformed
// input yield ErrInvalidToken.
func Decode(token string) (Token, error) {
	parts := strings.Split(token, partSep)
	if len(parts) != 3 {
		return Token{}, ErrInvalidToken
	}

	action := Action(parts[0])
	if !action.IsValid() {
		return Token{}, ErrInvalidToken
	}

	rawIDs := strings.Split(parts[1], idSep)
	ids := make([]int64, 0, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := parsePositive(raw)
		if err != nil {
			return Token{}, ErrInvalidToken
		}
		ids = append(ids, id)
	}

	dayID, err := parsePositive(parts[2])
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	return Token{Action: action, EntryIDs: ids, DayID: dayID}, nil
}

// IsCancel reports whether token is the cancel token.
func IsCancel(token string) bool {
	return token == CancelToken
}

func parsePositive(s string) (int64, error) {
	if s == "" || s[0] == '+' || s[0] == '-' {
		return 0, ErrInvalidToken
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, ErrInvalidToken
	}
	return n, nil
}
