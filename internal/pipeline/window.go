package pipeline

import "time"

// Window is the local hour range [StartHour, EndHour) in which runs may start.
// The zero Window is always open.
type Window struct {
	StartHour int
	EndHour   int
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	if w.StartHour == 0 && w.EndHour == 0 {
		return true
	}
	h := t.Hour()
	return h >= w.StartHour && h < w.EndHour
}
