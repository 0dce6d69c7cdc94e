package voxelmarch

import (
	"testing"
	"time"
)

func TestInputReloadIsEdgeTriggered(t *testing.T) {
	var in Input
	held := map[int]bool{}
	sample := func(key int) bool { return held[key] }

	in.Update(sample)
	if in.ReloadRequested() {
		t.Fatal("reload requested with no key down")
	}

	held[KeyF5] = true
	in.Update(sample)
	if !in.ReloadRequested() {
		t.Fatal("expected reload on the frame F5 goes down")
	}

	in.Update(sample)
	if in.ReloadRequested() {
		t.Error("holding F5 must not retrigger reload")
	}

	held[KeyF5] = false
	in.Update(sample)
	if !in.JustReleased[KeyF5] {
		t.Error("expected release edge")
	}
	held[KeyF5] = true
	in.Update(sample)
	if !in.ReloadRequested() {
		t.Error("expected reload after release and press")
	}
}

func TestInputMouseDeltaOnlyWhenCaptured(t *testing.T) {
	var in Input
	in.UpdateMouse(10, 10)
	in.UpdateMouse(20, 5)
	if in.MouseDeltaX != 0 || in.MouseDeltaY != 0 {
		t.Errorf("expected no delta while released, got %v,%v", in.MouseDeltaX, in.MouseDeltaY)
	}
	in.MouseCaptured = true
	in.UpdateMouse(25, 7)
	if in.MouseDeltaX != 5 || in.MouseDeltaY != 2 {
		t.Errorf("expected delta 5,2 got %v,%v", in.MouseDeltaX, in.MouseDeltaY)
	}
	in.UpdateMouse(30, 4)
	if in.MouseDeltaX != 10 || in.MouseDeltaY != -1 {
		t.Errorf("expected accumulated delta 10,-1 got %v,%v", in.MouseDeltaX, in.MouseDeltaY)
	}
	in.ResetMouseDelta()
	if in.MouseDeltaX != 0 || in.MouseDeltaY != 0 {
		t.Errorf("expected reset delta, got %v,%v", in.MouseDeltaX, in.MouseDeltaY)
	}
}

func TestClockElapsed(t *testing.T) {
	base := time.Unix(1000, 0)
	now := base
	c := newClockWith(func() time.Time { return now })

	now = base.Add(250 * time.Millisecond)
	c.Tick()
	now = base.Add(1500 * time.Millisecond)
	c.Tick()

	if c.Dt != 1250*time.Millisecond {
		t.Errorf("expected dt 1.25s, got %v", c.Dt)
	}
	if got := c.Elapsed(); got != 1.5 {
		t.Errorf("expected elapsed 1.5, got %v", got)
	}
}
