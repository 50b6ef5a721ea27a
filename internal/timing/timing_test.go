package timing

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/utils/clock"
	clocktesting "k8s.io/utils/clock/testing"
)

func TestTimerMark(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(1000, 0))
	timer := NewWithClock(clk)

	clk.SetTime(clk.Now().Add(10 * time.Millisecond))
	timer.Mark("freeze")

	clk.SetTime(clk.Now().Add(3 * time.Second))
	timer.Mark("snapshot")

	phases := timer.Phases()
	require.Len(t, phases, 2)
	assert.Equal(t, Phase{Name: "freeze", Duration: 10 * time.Millisecond}, phases[0])
	assert.Equal(t, Phase{Name: "snapshot", Duration: 3 * time.Second}, phases[1])
	assert.Equal(t, 3010*time.Millisecond, timer.Total())
}

func TestTimerSpan(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(0, 0))
	timer := NewWithClock(clk)

	for _, step := range []struct {
		name string
		d    time.Duration
	}{
		{"connect", time.Millisecond},
		{"freeze", 20 * time.Millisecond},
		{"snapshot", 2 * time.Second},
		{"thaw", 30 * time.Millisecond},
	} {
		clk.SetTime(clk.Now().Add(step.d))
		timer.Mark(step.name)
	}

	assert.Equal(t, 2030*time.Millisecond, timer.Span("snapshot", "thaw"))
	assert.Equal(t, time.Duration(0), timer.Span("shutdown"))
}

func TestWriteReport(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(0, 0))
	timer := NewWithClock(clk)
	clk.SetTime(clk.Now().Add(15 * time.Millisecond))
	timer.Mark("freeze")

	var buf bytes.Buffer
	WriteReport(&buf, timer.Phases(), timer.Total())

	output := buf.String()
	assert.Contains(t, output, "Snapshot Timing")
	assert.Contains(t, output, "freeze:")
	assert.Contains(t, output, "15ms")
	assert.Contains(t, output, "TOTAL:")
}

func TestTimerEmpty(t *testing.T) {
	timer := NewWithClock(clock.RealClock{})

	assert.Empty(t, timer.Phases())
	assert.GreaterOrEqual(t, timer.Total(), time.Duration(0))

	var buf bytes.Buffer
	WriteReport(&buf, timer.Phases(), timer.Total())
	assert.Contains(t, buf.String(), "TOTAL:")
}

func TestTimerLogObject(t *testing.T) {
	clk := clocktesting.NewFakePassiveClock(time.Unix(0, 0))
	timer := NewWithClock(clk)
	clk.SetTime(clk.Now().Add(250 * time.Millisecond))
	timer.Mark("thaw")

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Info().Object("phases", timer).Msg("done")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	phases, ok := entry["phases"].(map[string]any)
	require.True(t, ok)
	// zerolog encodes durations in milliseconds by default
	assert.Equal(t, 250.0, phases["thaw"])
	assert.Equal(t, 250.0, phases["total"])
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d        time.Duration
		expected string
	}{
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{2 * time.Second, "2.00s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatDuration(tt.d), "formatDuration(%v)", tt.d)
	}
}
