package notify

import (
	"context"
	"errors"

	"github.com/alejandrodnm/smartmoney/internal/ports"
)

// Multi reparte cada mensaje a todos los notificadores y junta los errores.
type Multi []ports.Notifier

func (m Multi) Notify(ctx context.Context, msg string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
