// Package notice holds the transient, dismissible notices shown to the
// operator when a request or send fails.
package notice

import (
	"sync"
	"time"
)

// Level is the severity of a notice.
type Level int

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Default lifetimes per level.
const (
	InfoTTL  = 5 * time.Second
	WarnTTL  = 8 * time.Second
	ErrorTTL = 10 * time.Second
)

// Notice is one notification with a level and expiry.
type Notice struct {
	Text    string    `json:"text"`
	Level   Level     `json:"-"`
	Expires time.Time `json:"expires"`
}

// Board holds the most recent notice. A newer notice replaces the older
// one; expired or dismissed notices read as absent.
type Board struct {
	mu      sync.RWMutex
	current Notice
	watchCh chan Notice
}

// NewBoard creates an empty board.
func NewBoard() *Board {
	return &Board{
		watchCh: make(chan Notice, 8),
	}
}

// Info posts an info-level notice.
func (b *Board) Info(msg string) {
	b.Post(Info, msg)
}

// Warn posts a warn-level notice.
func (b *Board) Warn(msg string) {
	b.Post(Warn, msg)
}

// Post sets the current notice with the default lifetime for level.
func (b *Board) Post(level Level, msg string) {
	ttl := InfoTTL
	switch level {
	case Warn:
		ttl = WarnTTL
	case Error:
		ttl = ErrorTTL
	}

	n := Notice{
		Text:    msg,
		Level:   level,
		Expires: time.Now().Add(ttl),
	}

	b.mu.Lock()
	b.current = n
	b.mu.Unlock()

	select {
	case b.watchCh <- n:
	default:
	}
}

// Current returns the live notice, or nil if none is showing.
func (b *Board) Current() *Notice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current.Text == "" || !time.Now().Before(b.current.Expires) {
		return nil
	}
	n := b.current
	return &n
}

// Dismiss clears the current notice and returns it, or nil when nothing
// was on display.
func (b *Board) Dismiss() *Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := b.current
	b.current = Notice{}
	if n.Text == "" || !time.Now().Before(n.Expires) {
		return nil
	}
	return &n
}

// Watch returns a channel that receives every posted notice. Posts are
// dropped when the channel is full.
func (b *Board) Watch() <-chan Notice {
	return b.watchCh
}
