package voxelmarch

const (
	KeyW int = iota
	KeyA
	KeyS
	KeyD
	KeySpace
	KeyShift
	KeyControl
	KeyEscape
	KeyTab
	KeyF5
	keyCount
)

// Input keeps per-key pressed state and the edges of the last update.
type Input struct {
	Pressed      [keyCount]bool
	JustPressed  [keyCount]bool
	JustReleased [keyCount]bool

	MouseX, MouseY           float64
	MouseDeltaX, MouseDeltaY float64
	MouseCaptured            bool
}

// Update samples every key through down and recomputes the edges.
func (in *Input) Update(down func(key int) bool) {
	for key := 0; key < keyCount; key++ {
		pressed := down(key)
		in.JustPressed[key] = pressed && !in.Pressed[key]
		in.JustReleased[key] = !pressed && in.Pressed[key]
		in.Pressed[key] = pressed
	}
}

// UpdateMouse records the cursor position. While captured, movement
// accumulates into the deltas until ResetMouseDelta.
func (in *Input) UpdateMouse(x, y float64) {
	if in.MouseCaptured {
		in.MouseDeltaX += x - in.MouseX
		in.MouseDeltaY += y - in.MouseY
	}
	in.MouseX = x
	in.MouseY = y
}

// ResetMouseDelta starts a new frame of mouse movement.
func (in *Input) ResetMouseDelta() {
	in.MouseDeltaX = 0
	in.MouseDeltaY = 0
}

// ReloadRequested is the edge-triggered shader reload signal (F5).
func (in *Input) ReloadRequested() bool {
	return in.JustPressed[KeyF5]
}
