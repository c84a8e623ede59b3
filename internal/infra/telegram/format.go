package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"study_delivery_bot/internal/app"
	"study_delivery_bot/internal/domain/schedule"
	"study_delivery_bot/internal/domain/subscriber"
)

const timeLayout = "2006-01-02 15:04 MST"

// splitArgs splits a command payload on whitespace, keeping double quoted
// runs together: `name="Daily plan" time=07:30` -> [name=Daily plan, time=07:30].
func splitArgs(payload string) ([]string, error) {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range payload {
		switch {
		case r == '"':
			quoted = !quoted
			started = true
		case !quoted && (r == ' ' || r == '\t' || r == '\n'):
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if quoted {
		return nil, fmt.Errorf("unterminated quote in %q", payload)
	}
	if started {
		args = append(args, current.String())
	}
	return args, nil
}

// parseScheduleArgs reads key=value arguments of /schedule_add.
func parseScheduleArgs(payload string) (app.ScheduleSpec, error) {
	var spec app.ScheduleSpec
	args, err := splitArgs(payload)
	if err != nil {
		return spec, err
	}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			return spec, fmt.Errorf("expected key=value, got %q", arg)
		}
		switch strings.ToLower(key) {
		case "name":
			spec.Name = value
		case "sources":
			spec.Sources = splitList(value)
		case "cycle":
			spec.Cycle = splitList(value)
		case "frequency", "freq":
			spec.Frequency = value
		case "days":
			spec.Days = value
		case "time":
			spec.Time = value
		case "start":
			spec.Start = value
		case "end":
			spec.End = value
		case "tz", "timezone":
			spec.Timezone = value
		case "mode":
			spec.Mode = value
		default:
			return spec, fmt.Errorf("unknown argument %q", key)
		}
	}
	return spec, nil
}

// parseScheduleEdit reads `<id> key=value...` of /schedule_edit.
func parseScheduleEdit(payload string) (int64, app.ScheduleSpec, error) {
	idText, rest, _ := strings.Cut(strings.TrimSpace(payload), " ")
	id, err := strconv.ParseInt(idText, 10, 64)
	if err != nil || id <= 0 {
		return 0, app.ScheduleSpec{}, fmt.Errorf("expected a schedule id, got %q", idText)
	}
	spec, err := parseScheduleArgs(rest)
	if err != nil {
		return 0, app.ScheduleSpec{}, err
	}
	return id, spec, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func formatSources(sources []*app.SourceOverview) string {
	var b strings.Builder
	b.WriteString("--- Content sources ---\n")
	for _, s := range sources {
		fmt.Fprintf(&b, "ID: %d, Name: %s, Title: %s, Items: %d\n", s.Source.ID, s.Source.Name, s.Source.DisplayName(), s.Items)
	}
	return b.String()
}

func formatSchedule(def *schedule.Definition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s [%s]\n", def.ID, def.Name, def.Status)
	fmt.Fprintf(&b, "  %s", def.Frequency)
	if def.Frequency != schedule.FrequencyEvery {
		fmt.Fprintf(&b, " (%s)", def.SelectedDays)
	}
	fmt.Fprintf(&b, " at %s %s, mode %s\n", def.DeliveryTime, def.Timezone, def.Mode)
	fmt.Fprintf(&b, "  from %s", def.StartDate)
	if def.EndDate != nil {
		fmt.Fprintf(&b, " to %s", def.EndDate)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "  sources: %d fixed, %d in cycle\n", len(def.SourceIDs), len(def.CycleSourceIDs))
	fmt.Fprintf(&b, "  next: %s, last: %s\n", formatTime(def.NextExecution, def), formatTime(def.LastExecution, def))
	return b.String()
}

func formatSchedules(defs []*schedule.Definition) string {
	var b strings.Builder
	b.WriteString("--- Schedules ---\n")
	for _, def := range defs {
		b.WriteString(formatSchedule(def))
	}
	return b.String()
}

func formatTime(t *time.Time, def *schedule.Definition) string {
	if t == nil {
		return "-"
	}
	loc, err := def.Location()
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format(timeLayout)
}

func formatSubscribers(subs []*subscriber.Subscriber) string {
	var b strings.Builder
	b.WriteString("--- Subscribers ---\n")
	for _, s := range subs {
		status := "active"
		switch {
		case s.IsBlocked:
			status = "blocked"
		case !s.IsActive:
			status = "stopped"
		}
		name := s.FirstName
		if s.Username != "" {
			name += " @" + s.Username
		}
		fmt.Fprintf(&b, "Chat ID: %d, Name: %s, Status: %s\n", s.ChatID, strings.TrimSpace(name), status)
	}
	return b.String()
}

func formatHistory(h *app.ScheduleHistory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "--- History of #%d %s ---\n", h.Schedule.ID, h.Schedule.Name)
	if len(h.Records) == 0 {
		b.WriteString("No deliveries yet.\n")
	}
	for _, r := range h.Records {
		fmt.Fprintf(&b, "%s day %d, subscriber %d: %s, attempts %d", r.DeliveryDate, r.DayNumber, r.SubscriberID, r.Status, r.Attempts)
		if r.LastError != "" {
			fmt.Fprintf(&b, ", error: %s", r.LastError)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatFireSummary(scheduleID int64, s *app.FireSummary) string {
	return fmt.Sprintf("Schedule #%d triggered: %d recipients, %d sent, %d failed, %d already delivered today, %d errors.",
		scheduleID, s.Recipients, s.Sent, s.Failed, s.AlreadyDelivered, s.Errors)
}
