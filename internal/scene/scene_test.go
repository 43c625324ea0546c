package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dmath "github.com/Faultbox/dergo/pkg/math"
	"github.com/Faultbox/dergo/pkg/mesh"
)

func TestBounds(t *testing.T) {
	geo := &mesh.Mesh{Vertices: []mesh.Vertex{
		{Position: [3]float32{-1, 0, 0}},
		{Position: [3]float32{1, 2, 0}},
	}}
	data := &Mesh{Ref: "mesh", Geometry: geo}

	t.Run("empty", func(t *testing.T) {
		_, _, ok := (&Snapshot{}).Bounds()
		assert.False(t, ok)
	})

	t.Run("visible objects in world space", func(t *testing.T) {
		snap := &Snapshot{Objects: []*Object{
			{Ref: "a", Kind: KindMesh, Visible: true, World: dmath.Identity(), Mesh: data},
			{Ref: "b", Kind: KindMesh, Visible: true, World: dmath.Translate(0, 0, 5), Mesh: data},
			{Ref: "hidden", Kind: KindMesh, Visible: false, World: dmath.Translate(100, 0, 0), Mesh: data},
			{Ref: "lamp", Kind: KindLight, Visible: true, World: dmath.Translate(-50, 0, 0), Light: &Light{}},
		}}
		lo, hi, ok := snap.Bounds()
		assert.True(t, ok)
		assert.Equal(t, dmath.Vec3{X: -1, Y: 0, Z: 0}, lo)
		assert.Equal(t, dmath.Vec3{X: 1, Y: 2, Z: 5}, hi)
	})
}

func TestSnapshotImage(t *testing.T) {
	snap := &Snapshot{Images: []*Image{{Ref: "a", Name: "A"}, {Ref: "b", Name: "B"}}}
	assert.Equal(t, "B", snap.Image("b").Name)
	assert.Nil(t, snap.Image("c"))
}
