// Package scene is a generic in-memory scene representation used as the
// destination of format importers. All entities live in flat tables on
// Scene and reference each other by index. Tables are append-only: the
// Add* factories return a stable index plus the new record, and nothing
// removes or reorders entries afterwards.
package scene

import (
	"math"

	"github.com/openscenetools/sceneconv/geom"
)

type Metadata struct {
	Generator  string
	Copyright  string
	Version    string
	Filenames  []string
	UpAxis     string
	MetersPerUnit float64
}

type Scene struct {
	Name     string
	Metadata Metadata

	Nodes           []*Node
	RootNodes       []int
	Meshes          []*Mesh
	Materials       []*Material
	Images          []*Image
	Lights          []*Light
	Cameras         []*Camera
	Skeletons       []*Skeleton
	AnimationTracks []*AnimationTrack

	HasAnimations bool
}

func NewScene(name string) *Scene {
	return &Scene{Name: name}
}

func (s *Scene) AddMesh(name string) (int, *Mesh) {
	m := &Mesh{Name: name, Material: -1}
	s.Meshes = append(s.Meshes, m)
	return len(s.Meshes) - 1, m
}

func (s *Scene) AddMaterial(name string) (int, *Material) {
	m := NewMaterial(name)
	s.Materials = append(s.Materials, m)
	return len(s.Materials) - 1, m
}

func (s *Scene) AddImage(name string) (int, *Image) {
	img := &Image{Name: name}
	s.Images = append(s.Images, img)
	return len(s.Images) - 1, img
}

func (s *Scene) AddLight(name string) (int, *Light) {
	l := &Light{Name: name}
	s.Lights = append(s.Lights, l)
	return len(s.Lights) - 1, l
}

func (s *Scene) AddCamera(name string) (int, *Camera) {
	c := &Camera{Name: name}
	s.Cameras = append(s.Cameras, c)
	return len(s.Cameras) - 1, c
}

func (s *Scene) AddSkeleton(name string) (int, *Skeleton) {
	sk := &Skeleton{Name: name, Parent: -1}
	s.Skeletons = append(s.Skeletons, sk)
	return len(s.Skeletons) - 1, sk
}

func (s *Scene) AddAnimationTrack(name string) (int, *AnimationTrack) {
	t := &AnimationTrack{
		Name:    name,
		MinTime: float32(math.Inf(1)),
		MaxTime: float32(math.Inf(-1)),
	}
	s.AnimationTracks = append(s.AnimationTracks, t)
	return len(s.AnimationTracks) - 1, t
}

// Node is a scene-graph node. Parent is -1 for roots. The local
// transform is either Matrix or the TRS triple, never both.
type Node struct {
	Name     string
	Parent   int
	Children []int

	Translation *geom.Vector3
	Rotation    *geom.Quaternion
	Scale       *geom.Vector3
	Matrix      *geom.Matrix4

	Camera int
	Light  int
	Meshes []int

	// per animation track, nil when the node is not animated on a track
	Animations []*NodeAnimation

	IsJoint bool
}

func NewNode(name string) *Node {
	return &Node{Name: name, Parent: -1, Camera: -1, Light: -1}
}

type AnimationTrack struct {
	Name    string
	MinTime float32
	MaxTime float32

	HasTimepoints bool
}

func (t *AnimationTrack) ExtendTime(min, max float32) {
	if min < t.MinTime {
		t.MinTime = min
	}
	if max > t.MaxTime {
		t.MaxTime = max
	}
	t.HasTimepoints = true
}

type TimeValues[T any] struct {
	Times  []float32
	Values []T
}

func (tv *TimeValues[T]) Len() int {
	return len(tv.Times)
}

type NodeAnimation struct {
	Translations TimeValues[geom.Vector3]
	Rotations    TimeValues[geom.Quaternion]
	Scales       TimeValues[geom.Vector3]
}

type LightType string

const (
	LightSun    LightType = "sun"
	LightSphere LightType = "sphere"
	LightDisk   LightType = "disk"
)

type Light struct {
	Name      string
	Type      LightType
	Color     geom.Vector3
	Intensity float32
	Radius    float32

	// spot cone, disk lights only
	ConeAngle   float32
	ConeFalloff float32
}

type Camera struct {
	Name       string
	Projection string // "perspective" or "orthographic"

	FocalLength        float32
	HorizontalAperture float32
	VerticalAperture   float32
	FStop              float32
	NearClip           float32
	FarClip            float32
}
