package delivery

import "sort"

// DefaultWindow is the number of most recent days used for windowed completion.
const DefaultWindow = 7

// Metrics is a point-in-time summary derived from delivery history.
type Metrics struct {
	CurrentDay         int
	Streak             int
	Total              int
	Done               int
	OverallCompletion  float64
	WindowedCompletion float64
	Window             int
}

// CalculateStreak counts consecutive done days starting from the most recent
// day. Any other status (including pending) ends the streak.
func CalculateStreak(history []*Record) int {
	streak := 0
	for _, r := range newestFirst(history) {
		if r.Status != StatusDone {
			break
		}
		streak++
	}
	return streak
}

// CalculateOverallCompletion returns 100 * done / total, or 0 for no history.
func CalculateOverallCompletion(history []*Record) float64 {
	return completion(history)
}

// CalculateWindowedCompletion applies the completion formula to the most
// recent window entries.
func CalculateWindowedCompletion(history []*Record, window int) float64 {
	if window <= 0 {
		return 0
	}
	recent := newestFirst(history)
	if len(recent) > window {
		recent = recent[:window]
	}
	return completion(recent)
}

// Calculate builds Metrics from history and the subscriber's day counter.
func Calculate(currentDay int, history []*Record, window int) *Metrics {
	return &Metrics{
		CurrentDay:         currentDay,
		Streak:             CalculateStreak(history),
		Total:              len(history),
		Done:               countDone(history),
		OverallCompletion:  CalculateOverallCompletion(history),
		WindowedCompletion: CalculateWindowedCompletion(history, window),
		Window:             window,
	}
}

func completion(history []*Record) float64 {
	if len(history) == 0 {
		return 0
	}
	return 100 * float64(countDone(history)) / float64(len(history))
}

func countDone(history []*Record) int {
	n := 0
	for _, r := range history {
		if r.Status == StatusDone {
			n++
		}
	}
	return n
}

func newestFirst(history []*Record) []*Record {
	sorted := make([]*Record, len(history))
	copy(sorted, history)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].DayNumber > sorted[j].DayNumber
	})
	return sorted
}
