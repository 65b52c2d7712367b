package booking

import "strings"

// WindowSeparator joins a window's start and end in the time selector.
const WindowSeparator = "–"

// Slot is one bookable visit window returned by the scheduling service.
type Slot struct {
	VisitDate    string `json:"visitDate"`
	WindowStart  string `json:"windowStart"`
	WindowEnd    string `json:"windowEnd"`
	Availability string `json:"availability,omitempty"`
	Engineers    int    `json:"engineers,omitempty"`
}

// Window renders the slot's time window as shown in the time selector.
func (s Slot) Window() string {
	return FormatWindow(s.WindowStart, s.WindowEnd)
}

// FormatWindow joins start and end with WindowSeparator.
func FormatWindow(start, end string) string {
	return start + WindowSeparator + end
}

// SplitWindow splits a window produced by FormatWindow back into its bounds.
func SplitWindow(window string) (start, end string, ok bool) {
	start, end, ok = strings.Cut(window, WindowSeparator)
	if !ok || start == "" || end == "" {
		return "", "", false
	}
	return start, end, true
}

// DateGroup returns the distinct visit dates of slots in first-seen order.
func DateGroup(slots []Slot) []string {
	seen := make(map[string]struct{}, len(slots))
	dates := make([]string, 0, len(slots))
	for _, s := range slots {
		if _, ok := seen[s.VisitDate]; ok {
			continue
		}
		seen[s.VisitDate] = struct{}{}
		dates = append(dates, s.VisitDate)
	}
	return dates
}

// TimeGroup returns the distinct windows of slots on date in first-seen order.
func TimeGroup(slots []Slot, date string) []string {
	if date == "" {
		return nil
	}
	seen := map[string]struct{}{}
	var times []string
	for _, s := range slots {
		if s.VisitDate != date {
			continue
		}
		w := s.Window()
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		times = append(times, w)
	}
	return times
}
