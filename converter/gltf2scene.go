package converter

import (
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chewxy/math32"
	"github.com/openscenetools/sceneconv/geom"
	"github.com/openscenetools/sceneconv/scene"
	"github.com/qmuntal/gltf"
)

type GLTFToSceneOption struct {
	ImportMaterials   bool
	ImportGeometry    bool
	ComputeBitangents bool

	// directory for resolving external image uris
	SrcDir string
}

type gltfToScene struct {
	options *GLTFToSceneOption

	doc *gltf.Document
	s   *scene.Scene

	// per-import caches, reset on every Convert call
	meshes            [][]int // glTF mesh index -> scene mesh indices, one per primitive
	meshUseCount      []int
	nodeMap           map[int]int // source node index -> scene node index
	parentMap         map[int]int // source node index -> source parent index
	skeletonNodeNames map[int]string
	imageMap          map[int]int // texture index -> scene image index
	imageNames        map[string]int
	skinnedNodes      []int // source nodes with mesh+skin, resolved after traversal
	nextNodeIndex     int
}

func NewGLTFToSceneConverter(options *GLTFToSceneOption) *gltfToScene {
	if options == nil {
		options = &GLTFToSceneOption{ImportMaterials: true, ImportGeometry: true}
	}
	return &gltfToScene{options: options}
}

var supportedExtensions = map[string]bool{
	"KHR_materials_pbrSpecularGlossiness": true,
	"KHR_materials_clearcoat":             true,
	"KHR_materials_emissive_strength":     true,
	"KHR_materials_ior":                   true,
	"KHR_materials_sheen":                 true,
	"KHR_materials_specular":              true,
	"KHR_materials_transmission":          true,
	"KHR_materials_diffuse_transmission":  true,
	"KHR_materials_volume":                true,
	"KHR_materials_volume_scatter":        true,
	"KHR_materials_subsurface":            true,
	"KHR_materials_sss":                   true,
	"KHR_materials_unlit":                 true,
	"KHR_materials_anisotropy":            true,
	"KHR_lights_punctual":                 true,
	"KHR_texture_transform":               true,
	"EXT_texture_webp":                    true,
	"ADOBE_materials_clearcoat_specular":  true,
	"ADOBE_materials_clearcoat_tint":      true,
	"EXT_materials_clearcoat_color":       true,
}

// KHR_lights_punctual intensities are photometric. 683 lm/W converts
// them to the radiometric units the destination lights use.
const luminousEfficacy = 683.0

// punctual lights are ideal points; give them a small emitter radius
const punctualLightRadius = 0.01

// default film back width in mm for perspective cameras
const defaultApertureMM = 36.0

func (c *gltfToScene) Convert(doc *gltf.Document, filename string) (*scene.Scene, error) {
	c.doc = doc
	name := filepath.Base(filename)
	c.s = scene.NewScene(strings.TrimSuffix(name, filepath.Ext(name)))
	c.meshes = make([][]int, len(doc.Meshes))
	c.meshUseCount = make([]int, len(doc.Meshes))
	c.nodeMap = map[int]int{}
	c.parentMap = map[int]int{}
	c.skeletonNodeNames = map[int]string{}
	c.imageMap = map[int]int{}
	c.imageNames = map[string]int{}
	c.skinnedNodes = nil
	c.nextNodeIndex = 0

	c.checkExtensions()
	if err := c.importMetadata(filename); err != nil {
		return nil, err
	}
	c.importCameras()
	if c.options.ImportMaterials {
		c.importMaterials()
	}
	c.importLights()
	if c.options.ImportGeometry {
		c.importMeshes()
		// skeletons must exist before traversal: node traversal wires
		// skin-to-mesh bindings into them
		c.presizeSkeletons()
		if err := c.importNodes(); err != nil {
			return nil, err
		}
		c.buildSkeletonNodeNames()
		c.importSkeletons()
		c.importAnimationTracks()
		c.importNodeAnimations()
		c.importSkeletonAnimations()
		c.checkMeshInstancing()
	}
	return c.s, nil
}

func (c *gltfToScene) checkExtensions() {
	for _, ext := range c.doc.ExtensionsUsed {
		if !supportedExtensions[ext] {
			log.Println("WARNING: unsupported extension used:", ext)
		}
	}
	for _, ext := range c.doc.ExtensionsRequired {
		if !supportedExtensions[ext] {
			log.Println("WARNING: unsupported extension required:", ext)
		}
	}
}

func (c *gltfToScene) importMetadata(filename string) error {
	version, err := strconv.ParseFloat(c.doc.Asset.Version, 32)
	if err != nil || version < 2 {
		return fmt.Errorf("unsupported glTF version: %q", c.doc.Asset.Version)
	}
	meta := &c.s.Metadata
	meta.Version = c.doc.Asset.Version
	meta.Generator = c.doc.Asset.Generator
	meta.Copyright = c.doc.Asset.Copyright
	meta.UpAxis = "Y"
	meta.MetersPerUnit = 1
	meta.Filenames = append(meta.Filenames, filepath.Base(filename))
	for _, b := range c.doc.Buffers {
		if b.URI != "" && !strings.HasPrefix(b.URI, "data:") {
			meta.Filenames = append(meta.Filenames, b.URI)
		}
	}
	for _, img := range c.doc.Images {
		if img.URI != "" && !strings.HasPrefix(img.URI, "data:") {
			meta.Filenames = append(meta.Filenames, img.URI)
		}
	}
	return nil
}

func (c *gltfToScene) importCameras() {
	for i, cam := range c.doc.Cameras {
		name := cam.Name
		if name == "" {
			name = fmt.Sprintf("camera_%d", i)
		}
		_, dst := c.s.AddCamera(name)
		if cam.Orthographic != nil {
			dst.Projection = "orthographic"
			dst.HorizontalAperture = float32(cam.Orthographic.Xmag)
			dst.VerticalAperture = float32(cam.Orthographic.Ymag)
			dst.NearClip = float32(cam.Orthographic.Znear)
			dst.FarClip = float32(cam.Orthographic.Zfar)
			continue
		}
		if cam.Perspective == nil {
			log.Println("WARNING: camera has no projection:", name)
			continue
		}
		dst.Projection = "perspective"
		aspect := 1.0
		if cam.Perspective.AspectRatio != nil && *cam.Perspective.AspectRatio > 0 {
			aspect = float64(*cam.Perspective.AspectRatio)
		}
		dst.HorizontalAperture = defaultApertureMM
		dst.VerticalAperture = float32(defaultApertureMM / aspect)
		dst.FocalLength = dst.VerticalAperture / 2 / math32.Tan(float32(cam.Perspective.Yfov)/2)
		dst.NearClip = float32(cam.Perspective.Znear)
		if cam.Perspective.Zfar != nil {
			dst.FarClip = float32(*cam.Perspective.Zfar)
		} else {
			dst.FarClip = 1e6
		}
	}
}

func (c *gltfToScene) importLights() {
	m, ok := extMap(c.doc.Extensions, "KHR_lights_punctual")
	if !ok {
		return
	}
	arr, ok := m["lights"].([]interface{})
	if !ok {
		return
	}
	for i, e := range arr {
		lm, ok := e.(map[string]interface{})
		name := ""
		if ok {
			name, _ = lm["name"].(string)
		}
		if name == "" {
			name = fmt.Sprintf("light_%d", i)
		}
		// always append so node light references stay index-aligned
		_, dst := c.s.AddLight(name)
		if !ok {
			log.Printf("WARNING: malformed light: %d", i)
			continue
		}
		color := [3]float64{1, 1, 1}
		readFloat3(lm, "color", &color)
		dst.Color = geom.Vector3{X: float32(color[0]), Y: float32(color[1]), Z: float32(color[2])}
		intensity := 1.0
		readFloat(lm, "intensity", &intensity)
		lightType, _ := lm["type"].(string)
		switch lightType {
		case "directional":
			dst.Type = scene.LightSun
			dst.Intensity = float32(intensity)
		case "point":
			dst.Type = scene.LightSphere
			dst.Radius = punctualLightRadius
			dst.Intensity = float32(intensity / luminousEfficacy)
		case "spot":
			dst.Type = scene.LightDisk
			dst.Radius = punctualLightRadius
			dst.Intensity = float32(intensity / luminousEfficacy)
			inner, outer := 0.0, math.Pi/4
			if sm, ok := lm["spot"].(map[string]interface{}); ok {
				readFloat(sm, "innerConeAngle", &inner)
				readFloat(sm, "outerConeAngle", &outer)
			}
			dst.ConeAngle = float32(outer * 180 / math.Pi)
			if outer > 0 {
				dst.ConeFalloff = float32((outer - inner) / outer)
			}
		default:
			dst.Type = scene.LightSphere
			log.Printf("WARNING: unsupported light type: %q (light: %d)", lightType, i)
		}
	}
}

func (c *gltfToScene) presizeSkeletons() {
	for i, skin := range c.doc.Skins {
		name := skin.Name
		if name == "" {
			name = fmt.Sprintf("skeleton_%d", i)
		}
		c.s.AddSkeleton(name)
	}
}

func (c *gltfToScene) nodeName(i int) string {
	if i >= 0 && i < len(c.doc.Nodes) && c.doc.Nodes[i].Name != "" {
		return c.doc.Nodes[i].Name
	}
	return fmt.Sprintf("n%d", i)
}

var identityMatrix = [16]float32{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

func (c *gltfToScene) importNodes() error {
	if len(c.doc.Nodes) == 0 {
		return fmt.Errorf("no nodes in document")
	}
	c.s.Nodes = make([]*scene.Node, len(c.doc.Nodes))
	for i := range c.s.Nodes {
		c.s.Nodes[i] = scene.NewNode("")
	}
	for _, sc := range c.doc.Scenes {
		for _, root := range sc.Nodes {
			c.s.RootNodes = append(c.s.RootNodes, c.traverseNodes(int(root), -1))
		}
	}
	c.resolveSkinnedNodes()
	return nil
}

// traverseNodes maps one source node to a destination slot and
// recurses into its children. Destination indices are assigned in
// visit order; revisits return the existing slot without descending.
func (c *gltfToScene) traverseNodes(nodeIndex, parentIndex int) int {
	if dst, ok := c.nodeMap[nodeIndex]; ok {
		return dst
	}
	dstIndex := c.nextNodeIndex
	c.nextNodeIndex++
	if dstIndex >= len(c.s.Nodes) {
		c.s.Nodes = append(c.s.Nodes, scene.NewNode(""))
	}
	c.nodeMap[nodeIndex] = dstIndex
	dst := c.s.Nodes[dstIndex]
	dst.Parent = parentIndex
	if nodeIndex < 0 || nodeIndex >= len(c.doc.Nodes) {
		log.Printf("WARNING: node index out of range: %d (nodes: %d)", nodeIndex, len(c.doc.Nodes))
		dst.Name = fmt.Sprintf("bad_index_node_%d", dstIndex)
		return dstIndex
	}
	src := c.doc.Nodes[nodeIndex]
	dst.Name = c.nodeName(nodeIndex)
	c.importNodeTransform(src, dst, nodeIndex)
	if src.Camera != nil {
		if int(*src.Camera) < len(c.doc.Cameras) {
			dst.Camera = int(*src.Camera)
		} else {
			log.Printf("WARNING: camera index out of range: %d (node: %d)", *src.Camera, nodeIndex)
		}
	}
	if m, ok := extMap(src.Extensions, "KHR_lights_punctual"); ok {
		if v, ok := m["light"].(float64); ok {
			if int(v) < len(c.s.Lights) {
				dst.Light = int(v)
			} else {
				log.Printf("WARNING: light index out of range: %d (node: %d)", int(v), nodeIndex)
			}
		}
	}
	if src.Mesh != nil {
		meshIndex := int(*src.Mesh)
		if meshIndex < len(c.doc.Meshes) {
			c.meshUseCount[meshIndex]++
			if src.Skin != nil {
				// the skinning root depends on the full node map
				c.skinnedNodes = append(c.skinnedNodes, nodeIndex)
			} else {
				dst.Meshes = append(dst.Meshes, c.meshes[meshIndex]...)
			}
		} else {
			log.Printf("WARNING: mesh index out of range: %d (node: %d)", meshIndex, nodeIndex)
		}
	}
	for _, ci := range src.Children {
		child := int(ci)
		if child >= len(c.doc.Nodes) {
			log.Printf("WARNING: child index out of range: %d (node: %d)", child, nodeIndex)
			continue
		}
		if _, visited := c.nodeMap[child]; visited {
			log.Printf("WARNING: node %d already visited (cyclic or shared child of node %d)", child, nodeIndex)
			continue
		}
		c.parentMap[child] = nodeIndex
		dst.Children = append(dst.Children, c.traverseNodes(child, dstIndex))
	}
	return dstIndex
}

func (c *gltfToScene) importNodeTransform(src *gltf.Node, dst *scene.Node, nodeIndex int) {
	matrix := src.Matrix
	if matrix != ([16]float32{}) && matrix != identityMatrix {
		dst.Matrix = geom.NewMatrix4FromArray(matrix)
		return
	}
	dst.Translation = geom.NewVector3FromArray(src.Translation)
	rotation := src.Rotation
	scale := src.Scale
	if rotation == ([4]float32{}) && scale == ([3]float32{}) {
		// zero-value node built in memory; the JSON layer always fills defaults
		log.Printf("WARNING: zero-value transform on node %d, using identity", nodeIndex)
		rotation = [4]float32{0, 0, 0, 1}
		scale = [3]float32{1, 1, 1}
	} else if rotation == ([4]float32{}) {
		log.Printf("WARNING: degenerate rotation on node %d, using identity", nodeIndex)
		rotation = [4]float32{0, 0, 0, 1}
	}
	dst.Rotation = geom.NewQuaternionFromArray(rotation)
	dst.Scale = geom.NewVector3FromArray(scale)
}

func (c *gltfToScene) resolveSkinnedNodes() {
	for _, nodeIndex := range c.skinnedNodes {
		src := c.doc.Nodes[nodeIndex]
		meshIndex := int(*src.Mesh)
		skinIndex := int(*src.Skin)
		if skinIndex >= len(c.doc.Skins) {
			log.Printf("WARNING: skin index out of range: %d (node: %d)", skinIndex, nodeIndex)
			c.s.Nodes[c.nodeMap[nodeIndex]].Meshes = append(c.s.Nodes[c.nodeMap[nodeIndex]].Meshes, c.meshes[meshIndex]...)
			continue
		}
		skin := c.doc.Skins[skinIndex]
		rootSrc := nodeIndex
		if skin.Skeleton != nil {
			// skeleton at a scene root keeps the skinned node itself
			if p, ok := c.parentMap[int(*skin.Skeleton)]; ok {
				rootSrc = p
			}
		} else if p, ok := c.parentMap[nodeIndex]; ok {
			rootSrc = p
		}
		sk := c.s.Skeletons[skinIndex]
		if dst, ok := c.nodeMap[rootSrc]; ok {
			sk.Parent = dst
		}
		for _, mi := range c.meshes[meshIndex] {
			bound := false
			for _, t := range sk.MeshSkinningTargets {
				if t == mi {
					bound = true
					break
				}
			}
			if !bound {
				sk.MeshSkinningTargets = append(sk.MeshSkinningTargets, mi)
			}
		}
	}
}

func (c *gltfToScene) checkMeshInstancing() {
	for meshIndex, count := range c.meshUseCount {
		if count == 0 {
			log.Printf("WARNING: unused mesh: %d", meshIndex)
			continue
		}
		if count > 1 {
			for _, si := range c.meshes[meshIndex] {
				c.s.Meshes[si].Instanceable = true
			}
		}
	}
}
