package telegram

import (
	"fmt"
	"strconv"
	"strings"

	"study_delivery_bot/internal/app"
	"study_delivery_bot/internal/domain/delivery"
)

const callbackSeparator = ":"

func callbackData(action, payload string) string {
	return action + callbackSeparator + payload
}

// parseAckData decodes "ack_done:5" into the acknowledgment and day number.
func parseAckData(data string) (delivery.Ack, int, error) {
	action, payload, ok := strings.Cut(strings.TrimSpace(data), callbackSeparator)
	if !ok {
		return "", 0, fmt.Errorf("invalid callback data format: %q", data)
	}

	var ack delivery.Ack
	switch action {
	case app.ActionAckDone:
		ack = delivery.AckDone
	case app.ActionAckNotDone:
		ack = delivery.AckNotDone
	default:
		return "", 0, fmt.Errorf("unknown callback action %q", action)
	}

	day, err := strconv.Atoi(payload)
	if err != nil || day < 1 {
		return "", 0, fmt.Errorf("invalid day %q in callback", payload)
	}
	return ack, day, nil
}
