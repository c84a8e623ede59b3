package database

import "fmt"

// Custom errors returned by the SQL repositories
var ErrSourceNotFound = fmt.Errorf("content source not found")
var ErrItemNotFound = fmt.Errorf("content item not found")
var ErrDuplicateSourceName = fmt.Errorf("content source with this name already exists")
var ErrScheduleNotFound = fmt.Errorf("schedule not found")
var ErrSubscriberNotFound = fmt.Errorf("subscriber not found")
var ErrDuplicateChatID = fmt.Errorf("subscriber with this chat ID already exists")
var ErrRecordNotFound = fmt.Errorf("delivery record not found")

// ErrDuplicateRecord means a record for the same subscriber day (or the same
// subscriber, schedule and date) already exists.
var ErrDuplicateRecord = fmt.Errorf("delivery record already exists")

// ErrRecordChanged means a conditional update found the record in another state.
var ErrRecordChanged = fmt.Errorf("delivery record was changed concurrently")
