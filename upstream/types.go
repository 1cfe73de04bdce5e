package upstream

import "encoding/json"

// JobStatus is the lifecycle status of an automation.
type JobStatus string

const (
	JobActive    JobStatus = "active"
	JobRunning   JobStatus = "running"
	JobPending   JobStatus = "pending"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Automation is a job record as returned by GET /automations.
type Automation struct {
	ID          string    `json:"id" yaml:"id"`
	ExecutionID string    `json:"executionId,omitempty" yaml:"execution_id,omitempty"`
	Name        string    `json:"name,omitempty" yaml:"name,omitempty"`
	Status      JobStatus `json:"status" yaml:"status"`
	Progress    *float64  `json:"progress,omitempty" yaml:"progress,omitempty"`
	Message     string    `json:"message,omitempty" yaml:"message,omitempty"`
	Current     *int      `json:"current,omitempty" yaml:"current,omitempty"`
	Total       *int      `json:"total,omitempty" yaml:"total,omitempty"`
	Interval    string    `json:"interval,omitempty" yaml:"interval,omitempty"`
	CreatedAt   Timestamp `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
	LastRunAt   Timestamp `json:"lastRunAt,omitempty" yaml:"last_run_at,omitempty"`
	NextRunAt   Timestamp `json:"nextRunAt,omitempty" yaml:"next_run_at,omitempty"`
}

// Session carries the messaging surface credentials sent with every
// messaging API call. Credentials are opaque to this package.
type Session struct {
	Credentials string `json:"credentials"`
	SelfID      string `json:"selfId"`
	MailboxID   string `json:"mailboxId"`
}

// ListConversationsRequest is the payload for POST /messages.
type ListConversationsRequest struct {
	SessionCredentials string `json:"sessionCredentials"`
	PageSize           int    `json:"pageSize"`
	AsOf               int64  `json:"asOf"`
	MailboxID          string `json:"mailboxId"`
}

// Participant is one member of a conversation.
type Participant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Headline   string `json:"headline,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// ConversationSummary is one entry of the conversation listing.
type ConversationSummary struct {
	ID             string        `json:"id"`
	Title          string        `json:"title,omitempty"`
	LastMessage    string        `json:"lastMessage,omitempty"`
	LastActivityAt Timestamp     `json:"lastActivityAt,omitempty"`
	UnreadCount    int           `json:"unreadCount"`
	Important      bool          `json:"important,omitempty"`
	Participants   []Participant `json:"participants"`
}

// FetchMessagesRequest is the payload for POST /messages/conversation.
type FetchMessagesRequest struct {
	ConversationID     string `json:"conversationId"`
	SessionCredentials string `json:"sessionCredentials"`
	SelfID             string `json:"selfId"`
}

// SendMessageRequest is the payload for POST /messages/send.
type SendMessageRequest struct {
	SessionCredentials string `json:"sessionCredentials"`
	Text               string `json:"text"`
	TargetID           string `json:"targetId"`
	SelfID             string `json:"selfId"`
}

// SentMessage is the confirmed message returned by POST /messages/send.
type SentMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text,omitempty"`
	CreatedAt Timestamp `json:"createdAt,omitempty"`
}

// RawMessage is a message exactly as the conversation API returned it.
// Field names vary between upstream versions, so decoding is left to the
// consumer.
type RawMessage = json.RawMessage

// Push channel wire types.

// Frame is the envelope for every push channel message.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinPayload is the data of the room-join command.
type JoinPayload struct {
	UserID string `json:"userId"`
}
