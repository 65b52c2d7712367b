package booking

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDateGroupDeduplicatesInOrder(t *testing.T) {
	slots := []Slot{
		{VisitDate: "2024-01-11", WindowStart: "09:00", WindowEnd: "11:00"},
		{VisitDate: "2024-01-10", WindowStart: "09:00", WindowEnd: "11:00"},
		{VisitDate: "2024-01-11", WindowStart: "13:00", WindowEnd: "15:00"},
	}
	assert.Equal(t, []string{"2024-01-11", "2024-01-10"}, DateGroup(slots))
	assert.Empty(t, DateGroup(nil))
}

func TestTimeGroupMatchesSelectedDate(t *testing.T) {
	slots := []Slot{
		{VisitDate: "2024-01-10", WindowStart: "09:00", WindowEnd: "11:00"},
		{VisitDate: "2024-01-10", WindowStart: "09:00", WindowEnd: "11:00"},
		{VisitDate: "2024-01-10", WindowStart: "13:00", WindowEnd: "15:00"},
		{VisitDate: "2024-01-11", WindowStart: "08:00", WindowEnd: "10:00"},
	}
	assert.Equal(t, []string{"09:00–11:00", "13:00–15:00"}, TimeGroup(slots, "2024-01-10"))
	assert.Equal(t, []string{"08:00–10:00"}, TimeGroup(slots, "2024-01-11"))
	assert.Empty(t, TimeGroup(slots, "2024-01-12"))
	assert.Empty(t, TimeGroup(slots, ""))
}

func TestTimeGroupPropertyOverRandomSlots(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	dates := []string{"2024-01-10", "2024-01-11", "2024-01-12"}
	hours := []string{"08:00", "09:00", "11:00", "13:00"}

	for i := 0; i < 500; i++ {
		slots := make([]Slot, rng.Intn(10))
		for j := range slots {
			slots[j] = Slot{
				VisitDate:   dates[rng.Intn(len(dates))],
				WindowStart: hours[rng.Intn(len(hours))],
				WindowEnd:   hours[rng.Intn(len(hours))],
			}
		}
		date := dates[rng.Intn(len(dates))]

		want := map[string]bool{}
		for _, s := range slots {
			if s.VisitDate == date {
				want[s.WindowStart+"–"+s.WindowEnd] = true
			}
		}
		got := map[string]bool{}
		for _, w := range TimeGroup(slots, date) {
			assert.False(t, got[w], "duplicate window %q", w)
			got[w] = true
		}
		assert.Equal(t, want, got)
	}
}

func TestSplitWindow(t *testing.T) {
	start, end, ok := SplitWindow(FormatWindow("09:00", "11:00"))
	assert.True(t, ok)
	assert.Equal(t, "09:00", start)
	assert.Equal(t, "11:00", end)

	_, _, ok = SplitWindow("09:00-11:00")
	assert.False(t, ok)
	_, _, ok = SplitWindow("09:00–")
	assert.False(t, ok)
}
