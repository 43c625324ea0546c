// Package camera provides the viewpoint used for render requests.
package camera

import (
	"github.com/cespare/xxhash/v2"
	"github.com/chewxy/math32"

	dmath "github.com/Faultbox/dergo/pkg/math"

	"github.com/Faultbox/dergo/internal/config"
	"github.com/Faultbox/dergo/internal/network/packets"
)

// sensorWidth is the film width in millimeters used to express the field of
// view as a focal length.
const sensorWidth = 32

// OrbitCamera orbits around a center point. Y is up.
type OrbitCamera struct {
	// Name identifies the view. Requests with the same name share a view id.
	Name string

	Center dmath.Vec3

	// Spherical coordinates
	Distance float32
	Pitch    float32 // Radians
	Yaw      float32 // Radians

	// Constraints
	MinDistance float32
	MaxDistance float32
	MinPitch    float32
	MaxPitch    float32

	// Projection
	FOV          float32 // Vertical, radians
	Near         float32
	Far          float32
	Orthographic bool
	Width        int
	Height       int
}

// New creates an orbit camera from configuration.
func New(cfg config.CameraConfig) *OrbitCamera {
	return &OrbitCamera{
		Name:         "default",
		Distance:     cfg.Distance,
		Pitch:        radians(cfg.Pitch),
		Yaw:          radians(cfg.Yaw),
		MinDistance:  0.01,
		MaxDistance:  1e6,
		MinPitch:     -math32.Pi/2 + 0.01,
		MaxPitch:     math32.Pi/2 - 0.01,
		FOV:          radians(cfg.FOV),
		Near:         cfg.Near,
		Far:          cfg.Far,
		Orthographic: cfg.Orthographic,
		Width:        cfg.Width,
		Height:       cfg.Height,
	}
}

func radians(deg float32) float32 { return deg * math32.Pi / 180 }

// orbit places the camera frame: yaw about Y, then pitch about X, around
// Center. Positive pitch looks down from above.
func (c *OrbitCamera) orbit() dmath.Mat4 {
	yaw := dmath.QuatFromAxisAngle(dmath.Vec3{Y: 1}, c.Yaw).ToMat4()
	pitch := dmath.QuatFromAxisAngle(dmath.Vec3{X: 1}, -c.Pitch).ToMat4()
	return dmath.Translate(c.Center.X, c.Center.Y, c.Center.Z).Mul(yaw).Mul(pitch)
}

// Position returns the camera position in world space.
func (c *OrbitCamera) Position() dmath.Vec3 {
	return dmath.Vec3From(c.orbit().TransformPoint([3]float32{0, 0, c.Distance}))
}

// ViewMatrix returns the view matrix for this camera.
func (c *OrbitCamera) ViewMatrix() dmath.Mat4 {
	return dmath.LookAt(c.Position(), c.Center, dmath.Vec3{Y: 1})
}

// Aspect returns width over height, 1 for an empty viewport.
func (c *OrbitCamera) Aspect() float32 {
	if c.Width <= 0 || c.Height <= 0 {
		return 1
	}
	return float32(c.Width) / float32(c.Height)
}

// ProjectionMatrix returns the perspective or orthographic projection. The
// orthographic volume frames what the perspective one shows at Distance.
func (c *OrbitCamera) ProjectionMatrix() dmath.Mat4 {
	aspect := c.Aspect()
	if !c.Orthographic {
		return dmath.Perspective(c.FOV, aspect, c.Near, c.Far)
	}
	h := c.Distance * math32.Tan(c.FOV/2)
	w := h * aspect
	return dmath.Ortho(-w, w, -h, h, c.Near, c.Far)
}

// Lens returns the field of view as a focal length in millimeters.
func (c *OrbitCamera) Lens() float32 {
	return sensorWidth / 2 / math32.Tan(c.FOV/2)
}

// Orbit rotates the camera by the given angles in radians.
func (c *OrbitCamera) Orbit(yaw, pitch float32) {
	c.Yaw += yaw
	c.Pitch = clamp(c.Pitch+pitch, c.MinPitch, c.MaxPitch)
}

// Zoom scales the distance by 1-delta.
func (c *OrbitCamera) Zoom(delta float32) {
	c.Distance = clamp(c.Distance-delta*c.Distance, c.MinDistance, c.MaxDistance)
}

// FitToBounds centers the camera on a bounding box and backs off until the
// bounding sphere fits the vertical field of view.
func (c *OrbitCamera) FitToBounds(lo, hi dmath.Vec3) {
	c.Center = lo.Add(hi).Scale(0.5)
	radius := hi.Sub(lo).Length() / 2
	if radius == 0 {
		return
	}
	c.Distance = clamp(radius/math32.Sin(c.FOV/2), c.MinDistance, c.MaxDistance)
	if c.Far < c.Distance+radius {
		c.Far = c.Distance + radius
	}
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ViewID returns the 64-bit identity of the view.
func (c *OrbitCamera) ViewID() uint64 {
	return xxhash.Sum64String(c.Name)
}

// RenderRequest builds the render message for the current viewpoint.
func (c *OrbitCamera) RenderRequest(askForResult bool) *packets.Render {
	vp := c.ProjectionMatrix().Mul(c.ViewMatrix())
	pos, up, right, forward := Basis(vp.Inverse())
	return &packets.Render{
		AskForResult: askForResult,
		ViewID:       c.ViewID(),
		Width:        uint16(c.Width),
		Height:       uint16(c.Height),
		Lens:         c.Lens(),
		ClipNear:     c.Near,
		ClipFar:      c.Far,
		Position:     pos.Array(),
		Up:           up.Array(),
		Right:        right.Array(),
		Forward:      forward.Array(),
		Perspective:  !c.Orthographic,
	}
}

// Basis transforms the canonical clip-space points through the inverse
// view-projection matrix. Position is the image of the origin; up, right and
// forward are the images of +Y, +X and -Z relative to it, not normalized.
func Basis(invViewProj dmath.Mat4) (pos, up, right, forward dmath.Vec3) {
	at := func(x, y, z float32) dmath.Vec3 {
		return invViewProj.MulVec4(dmath.Vec4{x, y, z, 1}).Dehomogenize()
	}
	pos = at(0, 0, 0)
	up = at(0, 1, 0).Sub(pos)
	right = at(1, 0, 0).Sub(pos)
	forward = at(0, 0, -1).Sub(pos)
	return pos, up, right, forward
}
