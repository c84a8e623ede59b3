package notifier

import (
	"context"
	"errors"
	"fmt"

	"study_delivery_bot/internal/domain/content"
)

// Button is an acknowledgment affordance attached to a message.
// Action names the handler, Payload is handed back to it verbatim.
type Button struct {
	Text    string
	Action  string
	Payload string
}

// Notifier delivers messages to a recipient over the messaging channel.
// item may be nil for a text-only message. Implementations return the
// channel's message id.
type Notifier interface {
	Send(ctx context.Context, recipient int64, item *content.Item, caption string) (string, error)
	SendWithButtons(ctx context.Context, recipient int64, item *content.Item, caption string, buttons [][]Button) (string, error)
}

// DeliveryError is returned by a Notifier when the channel refused or failed
// a send. Permanent errors (blocked bot, unknown chat) are not worth retrying.
type DeliveryError struct {
	Recipient int64
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %d failed: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsPermanent reports whether err carries a permanent DeliveryError.
func IsPermanent(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}
