package app

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"study_delivery_bot/internal/domain/content"
	"study_delivery_bot/internal/domain/delivery"
)

// plannedItem is one item resolved for a firing, with the cursor value to
// persist once it has been delivered.
type plannedItem struct {
	Source    *content.Source
	Item      *content.Item
	NextIndex int64
	Advance   bool
}

// subjectTitle renders a source for subscribers: its title, or its name
// title-cased ("current_affairs" -> "Current Affairs").
func subjectTitle(src *content.Source) string {
	if src.Title != "" {
		return src.Title
	}
	name := strings.ReplaceAll(src.Name, "_", " ")
	return cases.Title(language.English).String(name)
}

func itemLabel(it *content.Item) string {
	if it.Title != "" {
		return it.Title
	}
	return fmt.Sprintf("Part %d", it.Position+1)
}

// renderDigest builds the daily message that carries the acknowledgment
// buttons. Links are inlined, files are only listed because they are sent
// as separate documents.
func renderDigest(day int, items []plannedItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 Day %d\n", day)
	for _, p := range items {
		b.WriteString("\n")
		switch p.Item.Kind {
		case content.KindFile:
			fmt.Fprintf(&b, "📎 %s: %s (sent above)\n", subjectTitle(p.Source), itemLabel(p.Item))
		case content.KindText:
			fmt.Fprintf(&b, "📝 %s: %s\n", subjectTitle(p.Source), p.Item.Ref)
		default:
			fmt.Fprintf(&b, "🎬 %s: %s\n%s\n", subjectTitle(p.Source), itemLabel(p.Item), p.Item.Ref)
		}
	}
	b.WriteString("\nMark your progress below 👇")
	return b.String()
}

func renderFileCaption(day int, p plannedItem) string {
	return fmt.Sprintf("Day %d · %s: %s", day, subjectTitle(p.Source), itemLabel(p.Item))
}

// RenderAckConfirmation is sent back after a subscriber presses a button.
func RenderAckConfirmation(day int, ack delivery.Ack, streak int) string {
	mark := "Done ✅"
	if ack == delivery.AckNotDone {
		mark = "Not done ❌"
	}
	return fmt.Sprintf("Day %d marked as %s\n🔥 Current streak: %s", day, mark, pluralDays(streak))
}

// RenderMetrics formats progress for the /progress and /metrics commands.
// Percentages are rounded to one decimal place.
func RenderMetrics(m *delivery.Metrics) string {
	var b strings.Builder
	b.WriteString("📊 Progress\n")
	fmt.Fprintf(&b, "Current day: %d\n", m.CurrentDay)
	fmt.Fprintf(&b, "🔥 Streak: %s\n", pluralDays(m.Streak))
	fmt.Fprintf(&b, "Completed: %d of %d\n", m.Done, m.Total)
	fmt.Fprintf(&b, "Overall completion: %.1f%%\n", m.OverallCompletion)
	fmt.Fprintf(&b, "Last %d days: %.1f%%", m.Window, m.WindowedCompletion)
	return b.String()
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
