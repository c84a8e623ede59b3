package delivery

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func history(statuses ...Status) []*Record {
	out := make([]*Record, len(statuses))
	for i, s := range statuses {
		out[i] = &Record{DayNumber: i + 1, Status: s}
	}
	return out
}

func TestCalculateStreak(t *testing.T) {
	tests := []struct {
		name string
		in   []*Record
		want int
	}{
		{"empty", nil, 0},
		{"all done", history(StatusDone, StatusDone, StatusDone), 3},
		{"broken by not done", history(StatusDone, StatusDone, StatusNotDone, StatusDone), 1},
		{"latest pending", history(StatusDone, StatusDone, StatusPending), 0},
		{"latest failed", history(StatusDone, StatusFailed), 0},
		{"failed in the middle", history(StatusDone, StatusFailed, StatusDone, StatusDone), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalculateStreak(tt.in))
		})
	}
}

func TestCalculateStreak_IgnoresInputOrder(t *testing.T) {
	h := history(StatusNotDone, StatusDone, StatusDone)
	shuffled := []*Record{h[1], h[2], h[0]}

	assert.Equal(t, 2, CalculateStreak(shuffled))
	assert.Equal(t, 2, shuffled[0].DayNumber, "input slice must not be reordered")
}

func TestCalculateStreak_MatchesTrailingDoneCount(t *testing.T) {
	statuses := []Status{StatusPending, StatusDone, StatusNotDone, StatusFailed}
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		n := rng.Intn(15)
		in := make([]Status, n)
		for j := range in {
			in[j] = statuses[rng.Intn(len(statuses))]
		}
		want := 0
		for j := n - 1; j >= 0 && in[j] == StatusDone; j-- {
			want++
		}
		assert.Equal(t, want, CalculateStreak(history(in...)))
	}
}

func TestCompletion(t *testing.T) {
	h := history(StatusDone, StatusDone, StatusNotDone, StatusDone)

	assert.Equal(t, 1, CalculateStreak(h))
	assert.Equal(t, 75.0, CalculateOverallCompletion(h))
	assert.Equal(t, 0.0, CalculateOverallCompletion(nil))
	assert.Equal(t, 100.0, CalculateOverallCompletion(history(StatusDone)))
}

func TestCalculateWindowedCompletion(t *testing.T) {
	h := history(
		StatusNotDone, StatusNotDone, StatusNotDone, // outside the window
		StatusDone, StatusDone, StatusDone, StatusDone, StatusDone, StatusNotDone, StatusDone,
	)

	assert.InDelta(t, 600.0/7, CalculateWindowedCompletion(h, DefaultWindow), 1e-9)
	assert.Equal(t, 50.0, CalculateWindowedCompletion(history(StatusDone, StatusNotDone), DefaultWindow))
	assert.Equal(t, 0.0, CalculateWindowedCompletion(h, 0))
	assert.Equal(t, 0.0, CalculateWindowedCompletion(nil, DefaultWindow))
}

func TestCompletionBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		n := rng.Intn(20)
		in := make([]Status, n)
		done := 0
		for j := range in {
			if rng.Intn(2) == 0 {
				in[j] = StatusDone
				done++
			} else {
				in[j] = StatusPending
			}
		}
		got := CalculateOverallCompletion(history(in...))
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 100.0)
		if n > 0 {
			assert.Equal(t, 100*float64(done)/float64(n), got)
		}
	}
}

func TestCalculate(t *testing.T) {
	m := Calculate(4, history(StatusDone, StatusDone, StatusNotDone, StatusDone), DefaultWindow)

	assert.Equal(t, &Metrics{
		CurrentDay:         4,
		Streak:             1,
		Total:              4,
		Done:               3,
		OverallCompletion:  75,
		WindowedCompletion: 75,
		Window:             DefaultWindow,
	}, m)
}

func TestParseAck(t *testing.T) {
	a, err := ParseAck("Done")
	assert.NoError(t, err)
	assert.Equal(t, AckDone, a)
	assert.Equal(t, StatusDone, a.Status())
	assert.Equal(t, StatusNotDone, AckNotDone.Status())

	_, err = ParseAck("maybe")
	assert.Error(t, err)
}
