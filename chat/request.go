package chat

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/imkonsowa/restaurant-chatbot/models"
)

const (
	DefaultTemperature = 0.7
	DefaultTopP        = 0.9
	DefaultTopK        = 50

	ReplyFormatJSON = "json"
)

// Request is one inbound chat turn.
type Request struct {
	Prompts             string          `json:"prompts"`
	ConversationHistory json.RawMessage `json:"conversation_history"`
	SessionID           string          `json:"sessionid"`
	Project             string          `json:"project"`
	Temperature         *float64        `json:"temperature,omitempty"`
	TopP                *float64        `json:"top_p,omitempty"`
	TopK                *int            `json:"top_k,omitempty"`
	ReplyFormat         string          `json:"replyformat"`
}

// HasHistory reports whether conversation_history was sent with a non-null
// value.
func (r *Request) HasHistory() bool {
	raw := bytes.TrimSpace(r.ConversationHistory)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// History normalises conversation_history to a message list. A list is kept
// in order. A map keyed by turn index is ordered by descending key: numeric
// keys first, highest first, then the remaining keys in descending
// lexicographic order. Entries that are not objects are dropped, and any
// other shape yields an empty history.
func (r *Request) History() []models.Message {
	raw := bytes.TrimSpace(r.ConversationHistory)
	if len(raw) == 0 {
		return nil
	}

	var entries []json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil
		}
	case '{':
		var byKey map[string]json.RawMessage
		if err := json.Unmarshal(raw, &byKey); err != nil {
			return nil
		}
		for _, k := range historyKeys(byKey) {
			entries = append(entries, byKey[k])
		}
	default:
		return nil
	}

	out := make([]models.Message, 0, len(entries))
	for _, e := range entries {
		e = bytes.TrimSpace(e)
		if len(e) == 0 || e[0] != '{' {
			continue
		}
		var m models.Message
		if err := json.Unmarshal(e, &m); err != nil {
			continue
		}
		out = append(out, m)
	}

	return out
}

func historyKeys(byKey map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}

	sort.Slice(keys, func(i, j int) bool {
		a, aNum := numericKey(keys[i])
		b, bNum := numericKey(keys[j])
		switch {
		case aNum && bNum:
			return a > b
		case aNum:
			return true
		case bNum:
			return false
		}
		return keys[i] > keys[j]
	})

	return keys
}

func numericKey(k string) (int, bool) {
	if k == "" {
		return 0, false
	}
	for _, r := range k {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(k)
	return n, err == nil
}

// LastUserMessage is the content of the newest user message, or "".
func LastUserMessage(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

func (r *Request) temperature() float64 {
	if r.Temperature == nil {
		return DefaultTemperature
	}
	return *r.Temperature
}

func (r *Request) topP() float64 {
	if r.TopP == nil {
		return DefaultTopP
	}
	return *r.TopP
}

func (r *Request) topK() int {
	if r.TopK == nil {
		return DefaultTopK
	}
	return *r.TopK
}

func (r *Request) jsonReply() bool {
	return strings.EqualFold(strings.TrimSpace(r.ReplyFormat), ReplyFormatJSON)
}
