package errors

import "errors"

// Transport errors. The push channel degrades to polling-only when these occur.
var (
	ErrTransport          = errors.New("push channel transport failure")
	ErrNotConnected       = errors.New("push channel not connected")
	ErrReconnectExhausted = errors.New("push channel reconnect attempts exhausted")
)

// REST errors.
var (
	ErrAuthRequired = errors.New("reauthentication required")
	ErrRequest      = errors.New("API request failed")
	ErrParse        = errors.New("unparseable API payload")
)

// Conversation errors.
var (
	ErrSendFailure          = errors.New("message send failed")
	ErrEmptyMessage         = errors.New("message text is empty")
	ErrNoActiveConversation = errors.New("no active conversation")
)
