package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)
	var order []string
	c.AfterFunc(300*time.Millisecond, func() { order = append(order, "b") })
	c.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	c.AfterFunc(time.Second, func() { order = append(order, "late") })

	c.Advance(500 * time.Millisecond)

	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("fired %v", order)
	}
	if got := c.Now(); !got.Equal(epoch.Add(500 * time.Millisecond)) {
		t.Fatalf("now = %v", got)
	}
	if c.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", c.Pending())
	}
}

func TestFake_StopPreventsFiring(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("first Stop should report true")
	}
	if timer.Stop() {
		t.Fatal("second Stop should report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
}

func TestFake_CallbackSeesDeadlineTime(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)
	var at time.Time
	c.AfterFunc(250*time.Millisecond, func() { at = c.Now() })
	c.Advance(time.Second)
	if !at.Equal(epoch.Add(250 * time.Millisecond)) {
		t.Fatalf("callback saw %v", at)
	}
}

func TestFake_NestedScheduleWithinWindow(t *testing.T) {
	t.Parallel()
	c := NewFake(epoch)
	count := 0
	c.AfterFunc(100*time.Millisecond, func() {
		count++
		c.AfterFunc(100*time.Millisecond, func() { count++ })
	})
	c.Advance(250 * time.Millisecond)
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}
}
