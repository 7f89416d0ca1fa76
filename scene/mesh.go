package scene

import "github.com/openscenetools/sceneconv/geom"

// Mesh is one renderable primitive. Joints and Weights are flattened
// per-vertex influence arrays of length len(Points)*InfluenceCount.
type Mesh struct {
	Name string

	Points     []geom.Vector3
	Normals    []geom.Vector3
	Tangents   []geom.Vector4
	Bitangents []geom.Vector3
	UVSets     [][]geom.Vector2

	Joints         []int
	Weights        []float32
	InfluenceCount int

	Indices []int
	Faces   []int

	Colors    []*ColorSet
	Opacities []*OpacitySet

	Material    int
	DoubleSided bool

	// referenced by more than one node
	Instanceable bool
}

type ColorSet struct {
	Values []geom.Vector3
}

type OpacitySet struct {
	Values []float32
}

func (m *Mesh) AddColorSet() (int, *ColorSet) {
	c := &ColorSet{}
	m.Colors = append(m.Colors, c)
	return len(m.Colors) - 1, c
}

func (m *Mesh) AddOpacitySet() (int, *OpacitySet) {
	o := &OpacitySet{}
	m.Opacities = append(m.Opacities, o)
	return len(m.Opacities) - 1, o
}

// Skeleton is one skin: a joint hierarchy with bind information.
// Joints holds hierarchical slash-separated path names, JointNames the
// display names. All per-joint slices have equal length.
type Skeleton struct {
	Name string

	Joints         []string
	JointNames     []string
	RestTransforms []*geom.Matrix4
	BindTransforms []*geom.Matrix4

	Parent              int
	MeshSkinningTargets []int

	// per animation track, nil when nothing animates this skeleton
	Animations []*SkeletonAnimation
}

// SkeletonAnimation holds joint transforms resampled onto one shared
// time axis. Rotations[j][t] is joint AnimatedJoints[j] at Times[t].
type SkeletonAnimation struct {
	Times          []float32
	AnimatedJoints []int

	Rotations    [][]geom.Quaternion
	Translations [][]geom.Vector3
	Scales       [][]geom.Vector3
}
