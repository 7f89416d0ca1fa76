package converter

import (
	"testing"

	"github.com/openscenetools/sceneconv/geom"
	"github.com/openscenetools/sceneconv/scene"
)

func testScene() *scene.Scene {
	s := scene.NewScene("test")
	node := scene.NewNode("root")
	node.Translation = geom.NewVector3(1, 2, 3)
	node.Rotation = geom.NewIdentityQuaternion()
	node.Scale = geom.NewVector3(1, 1, 1)
	s.Nodes = append(s.Nodes, node)
	s.RootNodes = append(s.RootNodes, 0)
	return s
}

func TestExportNodes(t *testing.T) {
	s := testScene()
	doc, err := NewSceneToGLTFConverter(nil).Convert(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Nodes) != 1 {
		t.Fatal("nodes: ", len(doc.Nodes))
	}
	n := doc.Nodes[0]
	if n.Name != "root" {
		t.Error("name: ", n.Name)
	}
	if n.Translation != ([3]float32{1, 2, 3}) {
		t.Error("translation: ", n.Translation)
	}
	if n.Rotation != ([4]float32{0, 0, 0, 1}) || n.Scale != ([3]float32{1, 1, 1}) {
		t.Error("rotation/scale: ", n.Rotation, n.Scale)
	}
	if len(doc.Scenes[0].Nodes) != 1 || doc.Scenes[0].Nodes[0] != 0 {
		t.Error("scene roots: ", doc.Scenes[0].Nodes)
	}
}

func TestExportMeshRoundtrip(t *testing.T) {
	s := testScene()
	_, mesh := s.AddMesh("quad")
	mesh.Points = []geom.Vector3{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	mesh.Normals = []geom.Vector3{{Z: 1}, {Z: 1}, {Z: 1}, {Z: 1}}
	mesh.UVSets = [][]geom.Vector2{{{X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}}
	mesh.Indices = []int{0, 1, 2, 0, 2, 3}
	mesh.Faces = []int{3, 3}
	s.Nodes[0].Meshes = []int{0}

	doc, err := NewSceneToGLTFConverter(nil).Convert(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Meshes) != 1 || len(doc.Meshes[0].Primitives) != 1 {
		t.Fatal("meshes: ", doc.Meshes)
	}
	back, err := NewGLTFToSceneConverter(nil).Convert(doc, "roundtrip.glb")
	if err != nil {
		t.Fatal(err)
	}
	got := back.Meshes[0]
	if len(got.Points) != 4 || len(got.Indices) != 6 {
		t.Fatal("roundtrip geometry: ", len(got.Points), len(got.Indices))
	}
	for i, p := range mesh.Points {
		if got.Points[i] != p {
			t.Error("point: ", i, got.Points[i])
		}
	}
	// the v flip applied on export is undone on import
	for i, uv := range mesh.UVSets[0] {
		if got.UVSets[0][i] != uv {
			t.Error("uv: ", i, got.UVSets[0][i])
		}
	}
	for i, idx := range mesh.Indices {
		if got.Indices[i] != idx {
			t.Error("index: ", i, got.Indices[i])
		}
	}
}

func TestExportMaterialTransmissionTint(t *testing.T) {
	s := testScene()
	_, mat := s.AddMaterial("glass")
	mat.DiffuseColor.SetValue(geom.NewVector3(0.5, 0.25, 0.125))
	mat.Clearcoat.SetValue(float32(1))
	mat.ClearcoatModelsTransmissionTint = true

	doc, err := NewSceneToGLTFConverter(nil).Convert(s)
	if err != nil {
		t.Fatal(err)
	}
	mm := doc.Materials[0]
	ext, ok := mm.Extensions["KHR_materials_transmission"].(map[string]interface{})
	if !ok {
		t.Fatal("transmission extension missing")
	}
	if f, ok := ext["transmissionFactor"].(float32); !ok || f != 1 {
		t.Error("factor: ", ext["transmissionFactor"])
	}
	found := false
	for _, e := range doc.ExtensionsUsed {
		if e == "KHR_materials_transmission" {
			found = true
		}
	}
	if !found {
		t.Error("extension not declared")
	}
	if mm.PBRMetallicRoughness.BaseColorFactor == nil {
		t.Fatal("base color missing")
	}
	if (*mm.PBRMetallicRoughness.BaseColorFactor)[0] != 0.5 {
		t.Error("base color: ", mm.PBRMetallicRoughness.BaseColorFactor)
	}
}

func TestExportMaterialUnlit(t *testing.T) {
	s := testScene()
	_, mat := s.AddMaterial("flat")
	mat.IsUnlit = true
	mat.EmissiveColor.SetValue(geom.NewVector3(0.5, 0.5, 0.5))

	doc, err := NewSceneToGLTFConverter(nil).Convert(s)
	if err != nil {
		t.Fatal(err)
	}
	mm := doc.Materials[0]
	if _, ok := mm.Extensions["KHR_materials_unlit"]; !ok {
		t.Fatal("unlit extension missing")
	}
	// the unlit color travels in the base color factor
	if mm.PBRMetallicRoughness.BaseColorFactor == nil {
		t.Fatal("base color missing")
	}
	if (*mm.PBRMetallicRoughness.BaseColorFactor)[0] != 0.5 {
		t.Error("base color: ", mm.PBRMetallicRoughness.BaseColorFactor)
	}
	if mm.EmissiveFactor != ([3]float32{}) {
		t.Error("emissive should stay empty: ", mm.EmissiveFactor)
	}
}

func TestExportSharedAnimationKeys(t *testing.T) {
	s := testScene()
	child := scene.NewNode("child")
	child.Parent = 0
	s.Nodes = append(s.Nodes, child)
	s.Nodes[0].Children = append(s.Nodes[0].Children, 1)
	s.AddAnimationTrack("walk")
	times := []float32{0, 1, 2}
	values := []geom.Vector3{{X: 0}, {X: 1}, {X: 2}}
	for _, n := range s.Nodes {
		n.Animations = []*scene.NodeAnimation{{
			Translations: scene.TimeValues[geom.Vector3]{Times: times, Values: values},
		}}
	}

	doc, err := NewSceneToGLTFConverter(nil).Convert(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Animations) != 1 {
		t.Fatal("animations: ", len(doc.Animations))
	}
	a := doc.Animations[0]
	if a.Name != "walk" || len(a.Channels) != 2 || len(a.Samplers) != 2 {
		t.Fatal("channels: ", a)
	}
	if *a.Samplers[0].Input != *a.Samplers[1].Input {
		t.Error("key accessor not shared: ", *a.Samplers[0].Input, *a.Samplers[1].Input)
	}
	if *a.Samplers[0].Output == *a.Samplers[1].Output {
		t.Error("sample accessors must differ")
	}
}

func TestExportSkeleton(t *testing.T) {
	s := testScene()
	_, mesh := s.AddMesh("skinned")
	mesh.Points = []geom.Vector3{{}, {X: 1}, {X: 2}}
	mesh.Indices = []int{0, 1, 2}
	mesh.Faces = []int{3}
	mesh.InfluenceCount = 4
	mesh.Joints = make([]int, 12)
	mesh.Weights = make([]float32, 12)
	for v := 0; v < 3; v++ {
		mesh.Weights[v*4] = 1
	}
	_, sk := s.AddSkeleton("skel")
	sk.Joints = []string{"n0", "n0/n1"}
	sk.JointNames = []string{"hip", "knee"}
	sk.RestTransforms = []*geom.Matrix4{geom.NewMatrix4(), geom.NewTranslateMatrix4(0, 1, 0)}
	sk.BindTransforms = []*geom.Matrix4{geom.NewMatrix4(), geom.NewTranslateMatrix4(0, 1, 0)}
	sk.MeshSkinningTargets = []int{0}

	doc, err := NewSceneToGLTFConverter(nil).Convert(s)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Skins) != 1 {
		t.Fatal("skins: ", len(doc.Skins))
	}
	skin := doc.Skins[0]
	if len(skin.Joints) != 2 {
		t.Fatal("joints: ", skin.Joints)
	}
	hip := doc.Nodes[skin.Joints[0]]
	knee := doc.Nodes[skin.Joints[1]]
	if hip.Name != "hip" || knee.Name != "knee" {
		t.Error("joint names: ", hip.Name, knee.Name)
	}
	if len(hip.Children) != 1 || hip.Children[0] != skin.Joints[1] {
		t.Error("joint hierarchy: ", hip.Children)
	}
	if knee.Translation != ([3]float32{0, 1, 0}) {
		t.Error("joint rest: ", knee.Translation)
	}
	if skin.InverseBindMatrices == nil {
		t.Fatal("inverse bind matrices missing")
	}
	acc := doc.Accessors[*skin.InverseBindMatrices]
	if int(acc.Count) != 2 {
		t.Error("ibm count: ", acc.Count)
	}
	// a node carrying mesh and skin is appended for the target
	var skinned bool
	for _, n := range doc.Nodes {
		if n.Skin != nil && n.Mesh != nil {
			skinned = true
		}
	}
	if !skinned {
		t.Error("no skinned node")
	}
}

func TestExportJointsSingleCopy(t *testing.T) {
	s := testScene()
	joint := scene.NewNode("hip")
	joint.Parent = 0
	joint.IsJoint = true
	s.Nodes = append(s.Nodes, joint)
	s.Nodes[0].Children = append(s.Nodes[0].Children, 1)
	s.AddAnimationTrack("walk")
	joint.Animations = []*scene.NodeAnimation{{
		Translations: scene.TimeValues[geom.Vector3]{
			Times:  []float32{0, 1},
			Values: []geom.Vector3{{}, {Y: 1}},
		},
	}}
	_, sk := s.AddSkeleton("skel")
	sk.Joints = []string{"n1"}
	sk.JointNames = []string{"hip"}
	sk.RestTransforms = []*geom.Matrix4{geom.NewMatrix4()}
	sk.BindTransforms = []*geom.Matrix4{geom.NewMatrix4()}
	sk.Animations = []*scene.SkeletonAnimation{{
		Times:          []float32{0, 1},
		AnimatedJoints: []int{0},
		Rotations:      [][]geom.Quaternion{{{W: 1}, {W: 1}}},
		Translations:   [][]geom.Vector3{{{}, {Y: 1}}},
		Scales:         [][]geom.Vector3{{{X: 1, Y: 1, Z: 1}, {X: 1, Y: 1, Z: 1}}},
	}}

	doc, err := NewSceneToGLTFConverter(nil).Convert(s)
	if err != nil {
		t.Fatal(err)
	}
	count := 0
	var jointNode uint32
	for gi, n := range doc.Nodes {
		if n.Name == "hip" {
			count++
			jointNode = uint32(gi)
		}
	}
	if count != 1 {
		t.Fatal("joint node copies: ", count)
	}
	if len(doc.Skins) != 1 || doc.Skins[0].Joints[0] != jointNode {
		t.Fatal("skin joints: ", doc.Skins)
	}
	if len(doc.Animations) != 1 {
		t.Fatal("animations: ", len(doc.Animations))
	}
	a := doc.Animations[0]
	if len(a.Channels) != 3 {
		t.Fatal("channels: ", len(a.Channels))
	}
	// every channel targets the single skin joint
	for _, ch := range a.Channels {
		if *ch.Target.Node != jointNode {
			t.Error("channel target: ", *ch.Target.Node)
		}
	}
}
