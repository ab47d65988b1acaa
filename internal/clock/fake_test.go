package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)
	c := Fake(start)

	assert.Equal(t, start, c.Now())

	var hooked []time.Duration
	c.OnAfter = func(d time.Duration) { hooked = append(hooked, d) }

	got := <-c.After(30 * time.Second)
	assert.Equal(t, start.Add(30*time.Second), got)
	assert.Equal(t, start.Add(30*time.Second), c.Now())

	<-c.After(0)
	c.Advance(time.Minute)

	assert.Equal(t, start.Add(90*time.Second), c.Now())
	assert.Equal(t, []time.Duration{30 * time.Second, 0}, c.Waits())
	assert.Equal(t, []time.Duration{30 * time.Second, 0}, hooked)
}

func TestRealClock(t *testing.T) {
	c := Real()
	before := time.Now()
	<-c.After(time.Millisecond)
	assert.False(t, c.Now().Before(before))
}
