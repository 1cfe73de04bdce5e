package conversation

import (
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/alexjbarnes/relaydeck/upstream"
)

// Raw message field aliases, in order of preference.
var (
	messageIDPaths   = []string{"id", "messageId", "entityUrn"}
	messageTextPaths = []string{"text", "body", "message"}
	senderNamePaths  = []string{"sender.name", "senderName", "from.name", "sender", "author.name"}
	timestampPaths   = []string{"createdAt", "created_at", "timestamp", "sentAt", "deliveredAt"}
)

// Message is one entry of the active conversation. Timestamp is zero
// when the upstream value was missing or unparseable.
type Message struct {
	ID        string    `json:"id" yaml:"id"`
	Text      string    `json:"text" yaml:"text"`
	Sender    string    `json:"sender,omitempty" yaml:"sender,omitempty"`
	Origin    Origin    `json:"origin" yaml:"origin"`
	Timestamp time.Time `json:"timestamp,omitzero" yaml:"timestamp,omitempty"`
	Pending   bool      `json:"pending,omitempty" yaml:"pending,omitempty"`
}

// Conversation is one entry of the contact list.
type Conversation struct {
	ID           string                 `json:"id" yaml:"id"`
	Name         string                 `json:"name" yaml:"name"`
	LastMessage  string                 `json:"last_message,omitempty" yaml:"last_message,omitempty"`
	LastActivity time.Time              `json:"last_activity,omitzero" yaml:"last_activity,omitempty"`
	Unread       int                    `json:"unread" yaml:"unread"`
	Important    bool                   `json:"important,omitempty" yaml:"important,omitempty"`
	Counterparty upstream.Participant   `json:"counterparty" yaml:"counterparty"`
	Participants []upstream.Participant `json:"participants" yaml:"participants"`
}

// parseMessage decodes one raw message. Missing fields become empty
// values; it never fails.
func parseMessage(raw upstream.RawMessage, counterparty string) Message {
	doc := gjson.ParseBytes(raw)

	msg := Message{
		ID:     firstString(doc, messageIDPaths),
		Text:   firstString(doc, messageTextPaths),
		Sender: firstString(doc, senderNamePaths),
	}
	msg.Origin = Classify(msg.Sender, counterparty)

	if ts, ok := upstream.FirstTimestamp(doc, timestampPaths...); ok {
		msg.Timestamp = ts
	}

	return msg
}

func firstString(doc gjson.Result, paths []string) string {
	for _, p := range paths {
		v := doc.Get(p)
		switch v.Type {
		case gjson.String:
			if v.Str != "" {
				return v.Str
			}
		case gjson.Number:
			return v.Raw
		}
	}
	return ""
}

// fromSummary builds a Conversation. The counterparty is the first
// participant that is not selfID, falling back to the first participant.
func fromSummary(sum upstream.ConversationSummary, selfID string) Conversation {
	conv := Conversation{
		ID:           sum.ID,
		Name:         strings.TrimSpace(sum.Title),
		LastMessage:  sum.LastMessage,
		LastActivity: sum.LastActivityAt.Time,
		Unread:       sum.UnreadCount,
		Important:    sum.Important,
		Participants: sum.Participants,
	}

	for _, p := range sum.Participants {
		if selfID != "" && p.ID == selfID {
			continue
		}
		conv.Counterparty = p
		break
	}
	if conv.Counterparty.ID == "" && conv.Counterparty.Name == "" && len(sum.Participants) > 0 {
		conv.Counterparty = sum.Participants[0]
	}

	if conv.Name == "" {
		conv.Name = conv.Counterparty.Name
	}

	return conv
}
