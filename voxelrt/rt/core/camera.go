package core

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/pipeline"
)

const (
	DefaultEyeHeight   = 0.2
	DefaultSpeed       = 0.2
	DefaultSensitivity = 0.003
	FastMultiplier     = 5

	DefaultFov  = 1.0
	DefaultNear = 0.001
	DefaultFar  = 50.0

	pitchLimit = math.Pi/2 - 0.01
)

// CameraState is a Y-up first-person camera. Position is the feet; the eye
// sits EyeHeight above it. The volume spans the unit cube in world space.
type CameraState struct {
	Position    mgl32.Vec3
	Yaw         float32
	Pitch       float32
	Speed       float32
	Sensitivity float32
	EyeHeight   float32

	Fov, Near, Far float32
}

func NewCameraState() *CameraState {
	return &CameraState{
		Speed:       DefaultSpeed,
		Sensitivity: DefaultSensitivity,
		EyeHeight:   DefaultEyeHeight,
		Fov:         DefaultFov,
		Near:        DefaultNear,
		Far:         DefaultFar,
	}
}

// GetForward is +Z at zero yaw and pitch. Positive pitch looks down, as
// mouse y grows downwards.
func (c *CameraState) GetForward() mgl32.Vec3 {
	cp, sp := math.Cos(float64(c.Pitch)), math.Sin(float64(c.Pitch))
	cy, sy := math.Cos(float64(c.Yaw)), math.Sin(float64(c.Yaw))
	return mgl32.Vec3{
		float32(-cp * sy),
		float32(-sp),
		float32(cp * cy),
	}
}

// flatForward is the forward direction projected on the ground plane.
func (c *CameraState) flatForward() mgl32.Vec3 {
	f := c.GetForward()
	flat := mgl32.Vec3{f.X(), 0, f.Z()}
	if flat.Len() < 1e-6 {
		return mgl32.Vec3{0, 0, 1}
	}
	return flat.Normalize()
}

// GetRight is horizontal and perpendicular to the forward direction.
func (c *CameraState) GetRight() mgl32.Vec3 {
	f := c.flatForward()
	return mgl32.Vec3{-f.Z(), 0, f.X()}
}

func (c *CameraState) Eye() mgl32.Vec3 {
	return c.Position.Add(mgl32.Vec3{0, c.EyeHeight, 0})
}

func (c *CameraState) GetViewMatrix() mgl32.Mat4 {
	eye := c.Eye()
	return mgl32.LookAtV(eye, eye.Add(c.GetForward()), mgl32.Vec3{0, 1, 0})
}

func (c *CameraState) Projection(aspect float32) mgl32.Mat4 {
	return mgl32.Perspective(c.Fov, aspect, c.Near, c.Far)
}

// ViewProjection is the full world-to-clip transform.
func (c *CameraState) ViewProjection(aspect float32) mgl32.Mat4 {
	return c.Projection(aspect).Mul4(c.GetViewMatrix())
}

// InverseOrientation inverts the projection times the rotation-only view,
// mapping NDC back to view directions relative to the eye.
func (c *CameraState) InverseOrientation(aspect float32) mgl32.Mat4 {
	view := mgl32.LookAtV(mgl32.Vec3{}, c.GetForward(), mgl32.Vec3{0, 1, 0})
	return c.Projection(aspect).Mul4(view).Inv()
}

// Rotate applies a mouse delta in pixels.
func (c *CameraState) Rotate(dx, dy float32) {
	c.Yaw += dx * c.Sensitivity
	c.Pitch += dy * c.Sensitivity
	c.Pitch = max(-pitchLimit, min(pitchLimit, c.Pitch))
}

// Movement is the set of movement keys held this frame.
type Movement struct {
	Forward, Backward bool
	Left, Right       bool
	Up, Down          bool
	Fast              bool
}

// Move advances the camera by dt seconds of held movement.
func (c *CameraState) Move(m Movement, dt float32) {
	step := c.Speed * dt
	if m.Fast {
		step *= FastMultiplier
	}
	forward := c.flatForward()
	right := c.GetRight()
	var delta mgl32.Vec3
	if m.Forward {
		delta = delta.Add(forward)
	}
	if m.Backward {
		delta = delta.Sub(forward)
	}
	if m.Right {
		delta = delta.Add(right)
	}
	if m.Left {
		delta = delta.Sub(right)
	}
	if m.Up {
		delta = delta.Add(mgl32.Vec3{0, 1, 0})
	}
	if m.Down {
		delta = delta.Sub(mgl32.Vec3{0, 1, 0})
	}
	c.Position = c.Position.Add(delta.Mul(step))
}

// FrameCamera turns camera states into per-frame pipeline inputs, keeping
// the view-projection of the previous frame for reprojection.
type FrameCamera struct {
	prev    mgl32.Mat4
	started bool
}

// Next returns the inputs of a new frame. On the first frame the previous
// view-projection equals the current one.
func (f *FrameCamera) Next(c *CameraState, aspect, time float32) pipeline.FrameInputs {
	vp := c.ViewProjection(aspect)
	if !f.started {
		f.prev = vp
		f.started = true
	}
	in := pipeline.FrameInputs{
		InvViewProj:  c.InverseOrientation(aspect),
		PrevViewProj: f.prev,
		Eye:          c.Eye(),
		Time:         time,
	}
	f.prev = vp
	return in
}

// Reset drops the previous frame, e.g. after a teleport or resize.
func (f *FrameCamera) Reset() {
	f.started = false
}
