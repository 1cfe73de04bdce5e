package progress

import (
	"context"

	"github.com/alexjbarnes/relaydeck/upstream"
)

// Channel is the part of the push channel Attach uses.
type Channel interface {
	Subscribe(ctx context.Context, room string)
	OnEvent(event string, handler upstream.Handler) func()
}

// Attach joins room and folds every event named event into rec. The
// returned function unregisters the handler; the room stays joined for
// other subscribers.
func Attach(ctx context.Context, ch Channel, rec *Reconciler, event, room string) func() {
	detach := ch.OnEvent(event, func(data []byte) {
		rec.ApplyEvent(ParseEvent(data))
	})
	ch.Subscribe(ctx, room)
	return detach
}
