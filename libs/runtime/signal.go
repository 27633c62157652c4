package runtime

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext derives a context from parent that is cancelled on SIGINT,
// SIGTERM or any of extra. Cancellation starts graceful shutdown of servers
// and background workers; a nil parent means context.Background.
func SignalContext(parent context.Context, extra ...os.Signal) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	sigs := append([]os.Signal{syscall.SIGINT, syscall.SIGTERM}, extra...)
	return signal.NotifyContext(parent, sigs...)
}
