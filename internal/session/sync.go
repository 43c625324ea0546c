package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Faultbox/dergo/internal/identity"
	"github.com/Faultbox/dergo/internal/network/packets"
	"github.com/Faultbox/dergo/internal/scene"
)

// proceduralPrefix names the private mesh of an object with modifiers.
const proceduralPrefix = "##internal##_"

// errCollision aborts a frame that must restart after a full reset.
var errCollision = errors.New("material identity collision")

// frameState is the bookkeeping of one Sync call.
type frameState struct {
	snap      *scene.Snapshot
	objects   map[scene.Ref]*scene.Object
	materials map[uint64]bool // Material ids sent this frame
	items     map[activeItem]struct{}
	lights    map[uint64]struct{}
}

// Sync sends whatever changed in snap since the previous call. It is a no-op
// unless the session is connected. A send error ends the session and is
// returned wrapped in ErrSessionFailed.
func (s *Session) Sync(ctx context.Context, snap *scene.Snapshot) error {
	if s.Status() != StatusConnected {
		return nil
	}

	_, span := s.tracer.Start(ctx, "session.Sync",
		trace.WithAttributes(
			attribute.Int("dergo.frame", int(s.frame)),
			attribute.Int("dergo.objects", len(snap.Objects)),
		))
	defer span.End()
	start := time.Now()

	err := s.syncOnce(snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.advanceFrame()
	s.metrics.SyncDone(time.Since(start), s.frame)
	s.metrics.SetTracked("object", s.ids.Objects.Len())
	s.metrics.SetTracked("mesh", s.ids.Meshes.Len())
	s.metrics.SetTracked("material", s.ids.Materials.Len())
	s.metrics.SetTracked("image", s.ids.Images.Len())
	return nil
}

// syncOnce runs a frame, restarting it once after a collision reset.
func (s *Session) syncOnce(snap *scene.Snapshot) error {
	if s.needsReset {
		if err := s.reset("resync"); err != nil {
			return err
		}
	}

	err := s.syncFrame(snap)
	if !errors.Is(err, errCollision) {
		return err
	}
	if err := s.reset("collision"); err != nil {
		return err
	}
	return s.syncFrame(snap)
}

func (s *Session) syncFrame(snap *scene.Snapshot) error {
	f := &frameState{
		snap:      snap,
		objects:   make(map[scene.Ref]*scene.Object, len(snap.Objects)),
		materials: make(map[uint64]bool),
		items:     make(map[activeItem]struct{}),
		lights:    make(map[uint64]struct{}),
	}
	for _, obj := range snap.Objects {
		f.objects[obj.Ref] = obj
	}

	steps := []func(*frameState) error{
		s.syncWorld,
		s.syncMaterials,
		s.syncTextures,
		s.syncMeshObjects,
		s.syncLights,
		s.syncRemovals,
	}
	for _, step := range steps {
		if err := step(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) syncWorld(f *frameState) error {
	w := f.snap.World
	if w == nil || (s.worldInSync && !w.Dirty) {
		return nil
	}
	params := w.Params
	if err := s.send(&params); err != nil {
		return err
	}
	if w.InstantRadiosity != nil {
		ir := *w.InstantRadiosity
		if err := s.send(&ir); err != nil {
			return err
		}
	}
	s.worldInSync = true
	return nil
}

func (s *Session) syncMaterials(f *frameState) error {
	for _, mat := range f.snap.Materials {
		if _, renamed := s.ids.Materials.DetectRename(mat.Ref, mat.Name); renamed {
			s.log.Debug("material renamed or duplicated", zap.String("material", mat.Name))
			s.metrics.Rename("material")
			return errCollision
		}
	}

	for _, mat := range f.snap.Materials {
		rec := s.ids.Materials.EnsureID(mat.Ref, mat.Name)
		if rec.InSync && !mat.Dirty {
			continue
		}
		m := mat.Params
		m.ID = uint32(rec.ID)
		m.Name = mat.Name
		if err := s.send(&m); err != nil {
			return err
		}
		rec.InSync = true
		f.materials[rec.ID] = true
	}
	return nil
}

func (s *Session) syncTextures(f *frameState) error {
	for _, mat := range f.snap.Materials {
		mrec, _ := s.ids.Materials.Lookup(mat.Ref)
		for _, b := range mat.Textures {
			img := f.snap.Image(b.Image)
			if img == nil {
				s.log.Debug("missing image", zap.String("material", mat.Name), zap.String("image", string(b.Image)))
				continue
			}
			mapType := packets.MapTypeForSlot(b.Slot)

			s.ids.Images.DetectRename(img.Ref, img.Name)
			irec := s.ids.Images.EnsureID(img.Ref, img.Name)
			sent := false
			if !irec.InSync || img.Dirty {
				if err := s.send(&packets.Texture{ID: irec.ID, MapType: mapType, Path: img.Path}); err != nil {
					return err
				}
				irec.InSync = true
				sent = true
			}

			if !sent && !f.materials[mrec.ID] {
				continue
			}
			if err := s.send(&packets.MaterialTexture{
				MaterialID: uint32(mrec.ID),
				Slot:       b.Slot,
				TextureID:  irec.ID,
				MapType:    mapType,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// objectRecord returns the identity of obj, adopting a persisted id on first
// sight and handling renames and duplicates.
func (s *Session) objectRecord(f *frameState, obj *scene.Object) (*identity.Record, error) {
	tr := s.ids.Objects
	if _, ok := tr.Lookup(obj.Ref); !ok && obj.PersistedID != 0 {
		name := obj.PersistedName
		if name == "" {
			name = obj.Name
		}
		tr.Seed(obj.Ref, obj.PersistedID, name)
	}
	tr.EnsureID(obj.Ref, obj.Name)

	stale, renamed := tr.DetectRename(obj.Ref, obj.Name)
	if renamed {
		s.log.Debug("object renamed or duplicated", zap.String("object", obj.Name), zap.Int("sharers", len(stale)))
		s.metrics.Rename("object")
	}
	for _, st := range stale {
		if err := s.removeStale(f, st); err != nil {
			return nil, err
		}
	}

	rec, _ := tr.Lookup(obj.Ref)
	return rec, nil
}

// removeStale tells the renderer to drop an entity whose id was taken away.
func (s *Session) removeStale(f *frameState, st identity.Stale) error {
	id := st.Record.ID
	if st.Record.LinkedMeshID != 0 {
		item := activeItem{ObjectID: id, MeshID: st.Record.LinkedMeshID}
		if err := s.send(&packets.ItemRemove{MeshID: item.MeshID, ObjectID: id}); err != nil {
			return err
		}
		delete(s.activeObjects, item)
		delete(f.items, item)
	} else if _, ok := s.activeLights[id]; ok {
		if err := s.send(&packets.LightRemove{LightID: id}); err != nil {
			return err
		}
		delete(s.activeLights, id)
		delete(f.lights, id)
	}

	// The mesh of a sharer is sent again under a fresh id.
	if obj := f.objects[st.Ref]; obj != nil && obj.Mesh != nil {
		s.ids.Meshes.Forget(obj.Mesh.Ref)
	}
	return nil
}

func (s *Session) syncMeshObjects(f *frameState) error {
	for _, obj := range f.snap.Objects {
		if obj.Kind != scene.KindMesh || obj.Mesh == nil {
			continue
		}
		if !obj.Visible {
			if rec, ok := s.ids.Objects.Lookup(obj.Ref); ok {
				rec.InSync = false
			}
			continue
		}

		rec, err := s.objectRecord(f, obj)
		if err != nil {
			return err
		}
		if err := s.syncMeshObject(f, obj, rec); err != nil {
			return err
		}
		if rec.LinkedMeshID != 0 {
			f.items[activeItem{ObjectID: rec.ID, MeshID: rec.LinkedMeshID}] = struct{}{}
		}
	}
	return nil
}

// syncMeshObject runs for every visible mesh object. The mesh it instances
// is resolved each frame so a reassignment is seen even without dirty flags.
func (s *Session) syncMeshObject(f *frameState, obj *scene.Object, rec *identity.Record) error {
	data := obj.Mesh
	mrec := s.ids.Meshes.EnsureID(data.Ref, data.Name)
	if mrec.Name != data.Name {
		mrec.Name = data.Name
		mrec.InSync = false
	}

	name, linked := data.Name, mrec.ID
	var resend bool
	if obj.HasModifiers {
		name, linked = proceduralPrefix+obj.Name, identity.ProceduralMeshID(rec.ID)
		resend = !rec.InSync || obj.DataDirty
	} else {
		resend = !mrec.InSync || (data.Dirty && mrec.FrameLastSynced != s.frame)
	}

	if resend {
		if err := data.Geometry.Validate(); err != nil {
			s.log.Warn("skipping invalid mesh", zap.String("mesh", name), zap.Error(err))
			return nil
		}
		if err := s.send(s.meshMessage(linked, name, data)); err != nil {
			return err
		}
		if !obj.HasModifiers {
			mrec.InSync = true
			mrec.FrameLastSynced = s.frame
		}
	}

	// The object now instances a different mesh.
	if rec.LinkedMeshID != 0 && rec.LinkedMeshID != linked {
		old := activeItem{ObjectID: rec.ID, MeshID: rec.LinkedMeshID}
		if err := s.send(&packets.ItemRemove{MeshID: old.MeshID, ObjectID: old.ObjectID}); err != nil {
			return err
		}
		delete(s.activeObjects, old)
		rec.InSync = false
	}
	rec.LinkedMeshID = linked

	if !rec.InSync || obj.TransformDirty {
		pos, rot, scale := obj.World.Decompose()
		item := &packets.Item{
			MeshID:   linked,
			ObjectID: rec.ID,
			Name:     data.Name,
			Transform: packets.Transform{
				Position: pos.Array(),
				Rotation: rot.Array(),
				Scale:    scale.Array(),
			},
		}
		if err := s.send(item); err != nil {
			return err
		}
	}
	rec.InSync = true
	return nil
}

func (s *Session) meshMessage(id uint64, name string, data *scene.Mesh) packets.Message {
	if s.version == packets.V1 {
		return packets.NewMeshFlat(id, name, data.Geometry)
	}

	materials := make([]int32, len(data.Materials))
	for i, ref := range data.Materials {
		if rec, ok := s.ids.Materials.Lookup(ref); ok && ref != "" {
			materials[i] = int32(rec.ID)
		}
	}
	tangent := uint8(packets.NoTangentUV)
	if data.TangentUV >= 0 && data.TangentUV < len(data.Geometry.UVs) {
		tangent = uint8(data.TangentUV)
	}
	return packets.NewMesh(id, name, data.Geometry, materials, tangent)
}

func (s *Session) syncLights(f *frameState) error {
	for _, obj := range f.snap.Objects {
		if obj.Kind != scene.KindLight || obj.Light == nil {
			continue
		}
		if !obj.Visible {
			if rec, ok := s.ids.Objects.Lookup(obj.Ref); ok {
				rec.InSync = false
			}
			continue
		}

		rec, err := s.objectRecord(f, obj)
		if err != nil {
			return err
		}
		if !rec.InSync || obj.TransformDirty || obj.DataDirty {
			l := obj.Light
			pos, rot, _ := obj.World.Decompose()
			m := &packets.Light{
				ID:              rec.ID,
				Name:            obj.Name,
				LightType:       l.Type,
				CastShadows:     l.CastShadows,
				UseNegative:     l.UseNegative,
				Color:           l.Color,
				Energy:          l.Energy,
				Position:        pos.Array(),
				Rotation:        rot.Array(),
				Radius:          l.Radius,
				RadiusThreshold: l.RadiusThreshold,
				Spot:            l.Spot,
			}
			if err := s.send(m); err != nil {
				return err
			}
			rec.InSync = true
		}
		f.lights[rec.ID] = struct{}{}
	}
	return nil
}

// syncRemovals drops what the renderer holds but the frame no longer shows,
// then forgets objects that left the scene.
func (s *Session) syncRemovals(f *frameState) error {
	gone := make([]activeItem, 0)
	for item := range s.activeObjects {
		if _, ok := f.items[item]; !ok {
			gone = append(gone, item)
		}
	}
	sort.Slice(gone, func(i, j int) bool {
		if gone[i].ObjectID != gone[j].ObjectID {
			return gone[i].ObjectID < gone[j].ObjectID
		}
		return gone[i].MeshID < gone[j].MeshID
	})
	for _, item := range gone {
		s.log.Debug("removing item", zap.Uint64("object", item.ObjectID), zap.Uint64("mesh", item.MeshID))
		if err := s.send(&packets.ItemRemove{MeshID: item.MeshID, ObjectID: item.ObjectID}); err != nil {
			return err
		}
	}

	goneLights := make([]uint64, 0)
	for id := range s.activeLights {
		if _, ok := f.lights[id]; !ok {
			goneLights = append(goneLights, id)
		}
	}
	sort.Slice(goneLights, func(i, j int) bool { return goneLights[i] < goneLights[j] })
	for _, id := range goneLights {
		s.log.Debug("removing light", zap.Uint64("light", id))
		if err := s.send(&packets.LightRemove{LightID: id}); err != nil {
			return err
		}
	}

	s.activeObjects = f.items
	s.activeLights = f.lights

	for _, ref := range s.ids.Objects.Refs() {
		if _, ok := f.objects[ref]; !ok {
			s.ids.Objects.Forget(ref)
		}
	}
	return nil
}
