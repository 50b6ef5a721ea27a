// Package timing records how long each phase of a snapshot run takes.
package timing

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"k8s.io/utils/clock"
)

// Timer tracks durations of named phases.
type Timer struct {
	clock  clock.PassiveClock
	start  time.Time
	last   time.Time
	phases []Phase
}

// Phase represents a timed phase with name and duration.
type Phase struct {
	Name     string
	Duration time.Duration
}

// NewWithClock creates a Timer that reads time from c.
func NewWithClock(c clock.PassiveClock) *Timer {
	now := c.Now()
	return &Timer{clock: c, start: now, last: now}
}

// Mark records a named phase ending now.
// Duration is time since last mark (or since start if first mark).
func (t *Timer) Mark(name string) {
	now := t.clock.Now()
	t.phases = append(t.phases, Phase{Name: name, Duration: now.Sub(t.last)})
	t.last = now
}

// Total returns the total elapsed time since timer creation.
func (t *Timer) Total() time.Duration {
	return t.clock.Since(t.start)
}

// Phases returns all recorded phases.
func (t *Timer) Phases() []Phase {
	return append([]Phase(nil), t.phases...)
}

// Span returns the summed duration of the named phases. Names that were
// never marked contribute nothing.
func (t *Timer) Span(names ...string) time.Duration {
	var total time.Duration
	for _, p := range t.phases {
		for _, n := range names {
			if p.Name == n {
				total += p.Duration
				break
			}
		}
	}
	return total
}

// MarshalZerologObject lets a Timer be logged with Event.Object.
func (t *Timer) MarshalZerologObject(e *zerolog.Event) {
	for _, p := range t.phases {
		e.Dur(p.Name, p.Duration)
	}
	e.Dur("total", t.Total())
}

// WriteReport prints a timing table of phases and their total.
func WriteReport(w io.Writer, phases []Phase, total time.Duration) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "=== Snapshot Timing ===")
	for _, p := range phases {
		fmt.Fprintf(w, "  %-20s %s\n", p.Name+":", formatDuration(p.Duration))
	}
	fmt.Fprintf(w, "  %-20s %s\n", "TOTAL:", formatDuration(total))
	fmt.Fprintln(w, "=======================")
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}
