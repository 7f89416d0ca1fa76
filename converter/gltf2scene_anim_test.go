package converter

import (
	"math"
	"testing"

	"github.com/openscenetools/sceneconv/geom"
	"github.com/openscenetools/sceneconv/scene"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

// two joints under one root, each with its own translation channel on
// a different time axis
func skinnedDoc() *gltf.Document {
	doc := newTestDoc()
	doc.Nodes[0].Children = []uint32{1, 2}
	doc.Nodes = append(doc.Nodes,
		&gltf.Node{Name: "jointA", Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}},
		&gltf.Node{Name: "jointB", Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}})
	doc.Skins = append(doc.Skins, &gltf.Skin{Name: "skin", Joints: []uint32{1, 2}})

	timesA := modeler.WriteAccessor(doc, gltf.TargetArrayBuffer, []float32{0, 1, 2})
	valuesA := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {2, 0, 0}, {4, 0, 0}})
	timesB := modeler.WriteAccessor(doc, gltf.TargetArrayBuffer, []float32{0, 0.5, 1.5, 2})
	valuesB := modeler.WritePosition(doc, [][3]float32{{0, 0, 0}, {0, 1, 0}, {0, 3, 0}, {0, 4, 0}})
	doc.Animations = append(doc.Animations, &gltf.Animation{
		Name: "walk",
		Samplers: []*gltf.AnimationSampler{
			{Input: gltf.Index(timesA), Output: gltf.Index(valuesA), Interpolation: gltf.InterpolationLinear},
			{Input: gltf.Index(timesB), Output: gltf.Index(valuesB), Interpolation: gltf.InterpolationLinear},
		},
		Channels: []*gltf.Channel{
			{Sampler: gltf.Index(0), Target: gltf.ChannelTarget{Node: gltf.Index(1), Path: gltf.TRSTranslation}},
			{Sampler: gltf.Index(1), Target: gltf.ChannelTarget{Node: gltf.Index(2), Path: gltf.TRSTranslation}},
		},
	})
	return doc
}

func TestSkeletonResample(t *testing.T) {
	const eps = 1e-5
	s := convertForTest(t, skinnedDoc())
	if len(s.Skeletons) != 1 {
		t.Fatal("skeletons: ", len(s.Skeletons))
	}
	sk := s.Skeletons[0]
	if len(sk.Animations) != 1 || sk.Animations[0] == nil {
		t.Fatal("skeleton animations: ", sk.Animations)
	}
	sa := sk.Animations[0]
	wantTimes := []float32{0, 0.5, 1, 1.5, 2}
	if len(sa.Times) != len(wantTimes) {
		t.Fatal("time axis: ", sa.Times)
	}
	for i, w := range wantTimes {
		if sa.Times[i] != w {
			t.Fatal("time axis: ", sa.Times)
		}
	}
	if len(sa.AnimatedJoints) != 2 || sa.AnimatedJoints[0] != 0 || sa.AnimatedJoints[1] != 1 {
		t.Fatal("animated joints: ", sa.AnimatedJoints)
	}
	// both channels interpolate to 0,1,2,3,4 on their own axis
	for i, want := range []float32{0, 1, 2, 3, 4} {
		if math.Abs(float64(sa.Translations[0][i].X-want)) > eps {
			t.Error("joint a: ", i, sa.Translations[0][i])
		}
		if math.Abs(float64(sa.Translations[1][i].Y-want)) > eps {
			t.Error("joint b: ", i, sa.Translations[1][i])
		}
	}
	// unanimated components broadcast the rest pose
	for i := range sa.Times {
		q := sa.Rotations[0][i]
		if q.X != 0 || q.Y != 0 || q.Z != 0 || q.W != 1 {
			t.Error("rest rotation: ", q)
		}
		if sa.Scales[0][i].X != 1 {
			t.Error("rest scale: ", sa.Scales[0][i])
		}
	}
}

func TestNodeAnimation(t *testing.T) {
	doc := skinnedDoc()
	s := convertForTest(t, doc)
	if len(s.AnimationTracks) != 1 {
		t.Fatal("tracks: ", len(s.AnimationTracks))
	}
	track := s.AnimationTracks[0]
	if track.Name != "walk" || !track.HasTimepoints {
		t.Error("track: ", track)
	}
	if track.MinTime != 0 || track.MaxTime != 2 {
		t.Error("time range: ", track.MinTime, track.MaxTime)
	}
	if !s.HasAnimations {
		t.Error("HasAnimations not set")
	}
	anim := s.Nodes[1].Animations[0]
	if anim == nil || anim.Translations.Len() != 3 {
		t.Fatal("node animation: ", anim)
	}
	if anim.Translations.Values[1].X != 2 {
		t.Error("samples: ", anim.Translations.Values)
	}
}

func TestSkeletonJoints(t *testing.T) {
	s := convertForTest(t, skinnedDoc())
	sk := s.Skeletons[0]
	if len(sk.Joints) != 2 || len(sk.JointNames) != 2 {
		t.Fatal("joints: ", sk.Joints)
	}
	if sk.Joints[0] != "n0/n1" || sk.Joints[1] != "n0/n2" {
		t.Error("paths: ", sk.Joints)
	}
	if sk.JointNames[0] != "jointA" || sk.JointNames[1] != "jointB" {
		t.Error("names: ", sk.JointNames)
	}
	if !s.Nodes[1].IsJoint || !s.Nodes[2].IsJoint {
		t.Error("joint flags not set")
	}
	if len(sk.RestTransforms) != 2 || len(sk.BindTransforms) != 2 {
		t.Error("transform arrays: ", len(sk.RestTransforms), len(sk.BindTransforms))
	}
}

func TestSkeletonBadJointIndex(t *testing.T) {
	doc := newTestDoc()
	doc.Skins = append(doc.Skins, &gltf.Skin{Name: "skin", Joints: []uint32{0, 9999}})
	s := convertForTest(t, doc)
	sk := s.Skeletons[0]
	if len(sk.Joints) != 2 {
		t.Fatal("joints: ", sk.Joints)
	}
	if sk.Joints[1] != "bad_index_node_9999" {
		t.Error("placeholder path: ", sk.Joints[1])
	}
	if sk.JointNames[1] != "Bad Index Node 9999" {
		t.Error("placeholder name: ", sk.JointNames[1])
	}
	// placeholder keeps an identity transform
	id := geom.NewMatrix4()
	if *sk.RestTransforms[1] != *id || *sk.BindTransforms[1] != *id {
		t.Error("placeholder transforms not identity")
	}
}

func TestResampleBroadcast(t *testing.T) {
	tv := &scene.TimeValues[geom.Vector3]{
		Times:  []float32{1},
		Values: []geom.Vector3{{X: 5}},
	}
	rest := geom.Vector3{X: 7}
	out := resample(tv, []float32{0, 1, 2}, rest, lerpVec3)
	for _, v := range out {
		if v.X != 7 {
			t.Error("single sample must broadcast rest: ", out)
		}
	}
}

func TestResampleClamp(t *testing.T) {
	tv := &scene.TimeValues[geom.Vector3]{
		Times:  []float32{1, 2},
		Values: []geom.Vector3{{X: 1}, {X: 3}},
	}
	out := resample(tv, []float32{0, 1.5, 3}, geom.Vector3{}, lerpVec3)
	if out[0].X != 1 || out[2].X != 3 {
		t.Error("ends not clamped: ", out)
	}
	if math.Abs(float64(out[1].X)-2) > 1e-5 {
		t.Error("midpoint: ", out[1])
	}
}

func TestSkinningTargetDedup(t *testing.T) {
	doc := newTestDoc()
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: "shared", Primitives: []*gltf.Primitive{{}}})
	doc.Skins = append(doc.Skins, &gltf.Skin{Name: "skin", Joints: []uint32{0}})
	doc.Nodes[0].Children = []uint32{1, 2}
	doc.Nodes = append(doc.Nodes,
		&gltf.Node{Name: "a", Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}, Mesh: gltf.Index(0), Skin: gltf.Index(0)},
		&gltf.Node{Name: "b", Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}, Mesh: gltf.Index(0), Skin: gltf.Index(0)})
	s := convertForTest(t, doc)
	sk := s.Skeletons[0]
	if len(sk.MeshSkinningTargets) != 1 {
		t.Error("skinning targets: ", sk.MeshSkinningTargets)
	}
}

func TestSkeletonRootAtSceneRoot(t *testing.T) {
	doc := newTestDoc()
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: "skinned", Primitives: []*gltf.Primitive{{}}})
	doc.Skins = append(doc.Skins, &gltf.Skin{Name: "skin", Joints: []uint32{0}, Skeleton: gltf.Index(0)})
	doc.Nodes[0].Children = []uint32{1}
	doc.Nodes = append(doc.Nodes, &gltf.Node{
		Name:     "body",
		Rotation: [4]float32{0, 0, 0, 1},
		Scale:    [3]float32{1, 1, 1},
		Mesh:     gltf.Index(0),
		Skin:     gltf.Index(0),
	})
	s := convertForTest(t, doc)
	// the skeleton node is a scene root, so the skinned node anchors it
	if s.Skeletons[0].Parent != 1 {
		t.Error("skeleton parent: ", s.Skeletons[0].Parent)
	}
}
