package ports

import "context"

// Notifier delivers operator messages. Delivery failures must not stop the caller.
type Notifier interface {
	Notify(ctx context.Context, msg string) error
}
