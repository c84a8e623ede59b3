package delivery

import (
	"fmt"
	"strings"
	"time"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/schedule"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusNotDone Status = "not_done"
	StatusFailed  Status = "failed"
)

// IsAcknowledged is true for the two terminal values a subscriber can set.
func (s Status) IsAcknowledged() bool {
	return s == StatusDone || s == StatusNotDone
}

// Ack is the value a subscriber sends back for a delivered day.
type Ack string

const (
	AckDone    Ack = "done"
	AckNotDone Ack = "not_done"
)

func ParseAck(s string) (Ack, error) {
	switch Ack(strings.ToLower(strings.TrimSpace(s))) {
	case AckDone:
		return AckDone, nil
	case AckNotDone:
		return AckNotDone, nil
	}
	return "", fmt.Errorf("unknown acknowledgment %q", s)
}

func (a Ack) Status() Status {
	if a == AckDone {
		return StatusDone
	}
	return StatusNotDone
}

// ContentRef identifies what was delivered for a day.
type ContentRef struct {
	SourceID int64        `json:"source_id"`
	ItemID   int64        `json:"item_id"`
	Kind     content.Kind `json:"kind"`
	Ref      string       `json:"ref"`
	Title    string       `json:"title,omitempty"`
}

// Record is the single fact of one delivery attempt for a subscriber day.
// Corresponds to the 'delivery_records' table.
type Record struct {
	ID             int64
	SubscriberID   int64
	ScheduleID     int64
	DayNumber      int
	DeliveryDate   schedule.Date
	Contents       []ContentRef
	Status         Status
	LastError      string
	Attempts       int
	SentAt         *time.Time
	AcknowledgedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
