package app

import "fmt"

// Custom application-level errors
var ErrAdminNotAuthorized = fmt.Errorf("performing user is not authorized as an admin")
var ErrInvalidSchedule = fmt.Errorf("invalid schedule definition")
var ErrScheduleAlreadyFired = fmt.Errorf("schedule has already delivered and can no longer be edited")
var ErrInvalidTransition = fmt.Errorf("schedule status transition not allowed")
var ErrScheduleCompleted = fmt.Errorf("schedule is completed")
var ErrSourceInUse = fmt.Errorf("content source is referenced by a schedule")
var ErrEmptySource = fmt.Errorf("content source has no items")
var ErrInvalidItem = fmt.Errorf("invalid content item")
var ErrSubscriberInactive = fmt.Errorf("subscriber is inactive")
var ErrEngineBusy = fmt.Errorf("delivery engine is busy with another run")

// ErrNoPendingDelivery is returned when an acknowledgment names a day that
// has no delivered record (never sent, or failed).
var ErrNoPendingDelivery = fmt.Errorf("no pending delivery for this day")

// ErrConflictingAcknowledgment is returned when a day was already
// acknowledged with a different value.
var ErrConflictingAcknowledgment = fmt.Errorf("day was already acknowledged with a different value")

// ErrNothingToDeliver means every source of a schedule resolved to no items.
var ErrNothingToDeliver = fmt.Errorf("schedule has no content to deliver")

// ErrScheduleNotActive is returned when a manual trigger names a schedule
// that is upcoming or paused.
var ErrScheduleNotActive = fmt.Errorf("schedule is not active")

// ErrDayConflict means the reserved day number is already taken by a record
// for another date. The delivery was sent but could not be recorded.
var ErrDayConflict = fmt.Errorf("day number is already recorded for another delivery")
