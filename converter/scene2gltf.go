package converter

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"strings"

	_ "image/gif"

	"github.com/blezek/tga"
	_ "github.com/oov/psd"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/openscenetools/sceneconv/geom"
	"github.com/openscenetools/sceneconv/scene"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

type SceneToGLTFOption struct {
	TextureReCompress      bool
	TextureBytesThreshold  int64 // 0: unlimited
	TextureResolutionLimit int   // 0: unlimited
	TextureScale           float32

	// export every animation track instead of the first one
	ExportAllTracks bool
}

type sceneToGltf struct {
	*SceneToGLTFOption
	*gltf.Document
	src *scene.Scene

	textureIDs        map[int]*uint32
	nodeMap           map[int]uint32
	skeletonJointNode [][]uint32
}

func NewSceneToGLTFConverter(options *SceneToGLTFOption) *sceneToGltf {
	if options == nil {
		options = &SceneToGLTFOption{}
	}
	if options.TextureScale == 0 {
		options.TextureScale = 1.0
	}
	return &sceneToGltf{
		SceneToGLTFOption: options,
		Document:          gltf.NewDocument(),
	}
}

func (c *sceneToGltf) Convert(src *scene.Scene) (*gltf.Document, error) {
	c.src = src
	c.textureIDs = map[int]*uint32{}
	c.nodeMap = map[int]uint32{}
	c.skeletonJointNode = make([][]uint32, len(src.Skeletons))
	c.Document.Asset.Generator = "sceneconv"
	c.Document.Samplers = []*gltf.Sampler{
		{
			MagFilter: gltf.MagLinear,
			MinFilter: gltf.MinLinear,
			WrapS:     gltf.WrapRepeat,
			WrapT:     gltf.WrapRepeat,
		},
	}
	for _, mat := range src.Materials {
		c.Materials = append(c.Materials, c.convertMaterial(mat))
	}
	for _, ri := range src.RootNodes {
		// joints are re-created from skeleton joint paths in exportSkeleton
		if src.Nodes[ri].IsJoint {
			continue
		}
		c.Scenes[0].Nodes = append(c.Scenes[0].Nodes, c.exportNode(ri))
	}
	for si, sk := range src.Skeletons {
		c.exportSkeleton(si, sk)
	}
	c.exportAnimations()
	return c.Document, nil
}

func (c *sceneToGltf) useExtension(name string) {
	for _, e := range c.ExtensionsUsed {
		if e == name {
			return
		}
	}
	c.ExtensionsUsed = append(c.ExtensionsUsed, name)
}

func decodeImage(img *scene.Image) (image.Image, error) {
	m, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil && strings.ToLower(img.Format) == "tga" {
		// tga has no magic bytes, image.Decode cannot detect it
		m, err = tga.Decode(bytes.NewReader(img.Data))
	}
	return m, err
}

func scaleImage(m image.Image, mime string, scale float32, limit int) (io.Reader, error) {
	rect := m.Bounds()
	if limit > 0 {
		sz := int(float32(rect.Dx()) * scale)
		if sz > limit {
			scale *= float32(limit) / float32(sz)
		}
	}
	if scale != 1.0 {
		dst := image.NewRGBA(image.Rect(0, 0, int(float32(rect.Dx())*scale), int(float32(rect.Dy())*scale)))
		draw.CatmullRom.Scale(dst, dst.Bounds(), m, rect, draw.Over, nil)
		m = dst
	}
	w := new(bytes.Buffer)
	var err error
	if mime == "image/png" {
		err = png.Encode(w, m)
	} else {
		err = jpeg.Encode(w, m, nil)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (c *sceneToGltf) addTexture(imageIndex int) (*uint32, error) {
	if id, ok := c.textureIDs[imageIndex]; ok {
		if id == nil {
			return nil, fmt.Errorf("image unavailable: %d", imageIndex)
		}
		return id, nil
	}
	c.textureIDs[imageIndex] = nil
	img := c.src.Images[imageIndex]
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("no payload for image: %s", img.Name)
	}
	encode := c.TextureReCompress
	if c.TextureBytesThreshold > 0 && int64(len(img.Data)) > c.TextureBytesThreshold {
		encode = true
	}
	var mimeType string
	switch strings.ToLower(img.Format) {
	case "jpg", "jpeg":
		mimeType = "image/jpeg"
	case "png":
		mimeType = "image/png"
	default:
		mimeType = "image/png"
		encode = true
	}
	var r io.Reader
	if encode {
		m, err := decodeImage(img)
		if err != nil {
			return nil, err
		}
		r, err = scaleImage(m, mimeType, c.TextureScale, c.TextureResolutionLimit)
		if err != nil {
			return nil, err
		}
	} else {
		r = bytes.NewReader(img.Data)
	}
	gi, err := modeler.WriteImage(c.Document, img.FileName(), mimeType, r)
	if err != nil {
		return nil, err
	}
	c.Buffers[0].ByteLength = uint32(len(c.Buffers[0].Data)) // avoid AddImage bug
	c.Textures = append(c.Textures,
		&gltf.Texture{Sampler: gltf.Index(0), Source: gltf.Index(gi)})
	id := gltf.Index(uint32(len(c.Textures)) - 1)
	c.textureIDs[imageIndex] = id
	return id, nil
}

func (c *sceneToGltf) textureInfo(in *scene.Input) *gltf.TextureInfo {
	if in.Image < 0 || in.Image >= len(c.src.Images) {
		return nil
	}
	id, err := c.addTexture(in.Image)
	if err != nil {
		log.Print("texture write error:", err)
		return nil
	}
	return &gltf.TextureInfo{Index: *id, TexCoord: uint32(in.UVIndex)}
}

func inputScalar(in *scene.Input, def float32) float32 {
	if v, ok := in.Value.(float32); ok {
		return v
	}
	if in.Image >= 0 && in.Scale != nil {
		return in.Scale.X
	}
	return def
}

func (c *sceneToGltf) convertMaterial(mat *scene.Material) *gltf.Material {
	mm := &gltf.Material{
		Name:                 mat.Name,
		DoubleSided:          mat.DoubleSided,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{},
	}
	pbr := mm.PBRMetallicRoughness
	diffuse := &mat.DiffuseColor
	if mat.IsUnlit {
		c.useExtension("KHR_materials_unlit")
		if mm.Extensions == nil {
			mm.Extensions = gltf.Extensions{}
		}
		mm.Extensions["KHR_materials_unlit"] = map[string]interface{}{}
		if !diffuse.Used() && mat.EmissiveColor.Used() {
			// unlit color round-trips through the emissive channel
			diffuse = &mat.EmissiveColor
		}
	}
	baseColor := [4]float32{1, 1, 1, 1}
	if v, ok := diffuse.Value.(*geom.Vector3); ok {
		baseColor = [4]float32{v.X, v.Y, v.Z, 1}
	}
	if ti := c.textureInfo(diffuse); ti != nil {
		pbr.BaseColorTexture = ti
		if diffuse.Scale != nil {
			baseColor = [4]float32{diffuse.Scale.X, diffuse.Scale.Y, diffuse.Scale.Z, 1}
		}
	}
	if mat.Opacity.Used() {
		mm.AlphaMode = gltf.AlphaBlend
		if v, ok := mat.Opacity.Value.(float32); ok {
			baseColor[3] = v
		}
	}
	if v, ok := mat.OpacityThreshold.Value.(float32); ok {
		mm.AlphaMode = gltf.AlphaMask
		mm.AlphaCutoff = &v
	}
	if baseColor != ([4]float32{1, 1, 1, 1}) {
		col := baseColor
		pbr.BaseColorFactor = &col
	}

	roughness := inputScalar(&mat.Roughness, 1)
	metallic := inputScalar(&mat.Metallic, 1)
	pbr.RoughnessFactor = &roughness
	pbr.MetallicFactor = &metallic
	if ti := c.textureInfo(&mat.Roughness); ti != nil {
		pbr.MetallicRoughnessTexture = ti
	}

	if v, ok := mat.EmissiveColor.Value.(*geom.Vector3); ok && !mat.IsUnlit {
		mm.EmissiveFactor = [3]float32{v.X, v.Y, v.Z}
	}
	if !mat.IsUnlit {
		if ti := c.textureInfo(&mat.EmissiveColor); ti != nil {
			mm.EmissiveTexture = ti
			mm.EmissiveFactor = [3]float32{1, 1, 1}
			if s := mat.EmissiveColor.Scale; s != nil {
				mm.EmissiveFactor = [3]float32{s.X, s.Y, s.Z}
			}
		}
	}
	if ti := c.textureInfo(&mat.Normal); ti != nil {
		nt := &gltf.NormalTexture{Index: gltf.Index(ti.Index), TexCoord: ti.TexCoord}
		if s := mat.Normal.Scale; s != nil && s.X != 2 {
			scale := s.X / 2
			nt.Scale = &scale
		}
		mm.NormalTexture = nt
	}
	if ti := c.textureInfo(&mat.Occlusion); ti != nil {
		ot := &gltf.OcclusionTexture{Index: gltf.Index(ti.Index), TexCoord: ti.TexCoord}
		if s := mat.Occlusion.Scale; s != nil && s.X != 1 {
			strength := s.X
			ot.Strength = &strength
		}
		mm.OcclusionTexture = ot
	}

	// a clearcoat lobe that stands in for transmission tinting goes
	// back out as plain transmission
	transmission := &mat.Transmission
	if mat.ClearcoatModelsTransmissionTint {
		transmission = &mat.Clearcoat
	}
	if transmission.Used() {
		factor := inputScalar(transmission, 1)
		c.useExtension("KHR_materials_transmission")
		if mm.Extensions == nil {
			mm.Extensions = gltf.Extensions{}
		}
		mm.Extensions["KHR_materials_transmission"] = map[string]interface{}{
			"transmissionFactor": factor,
		}
	}
	return mm
}

func (c *sceneToGltf) exportNode(idx int) uint32 {
	if gi, ok := c.nodeMap[idx]; ok {
		return gi
	}
	node := c.src.Nodes[idx]
	gi := uint32(len(c.Nodes))
	gn := &gltf.Node{Name: node.Name}
	c.Nodes = append(c.Nodes, gn)
	c.nodeMap[idx] = gi
	if node.Matrix != nil {
		gn.Matrix = [16]float32(*node.Matrix)
	} else {
		gn.Rotation = [4]float32{0, 0, 0, 1}
		gn.Scale = [3]float32{1, 1, 1}
		if node.Translation != nil {
			gn.Translation = [3]float32{node.Translation.X, node.Translation.Y, node.Translation.Z}
		}
		if node.Rotation != nil {
			gn.Rotation = [4]float32{node.Rotation.X, node.Rotation.Y, node.Rotation.Z, node.Rotation.W}
		}
		if node.Scale != nil {
			gn.Scale = [3]float32{node.Scale.X, node.Scale.Y, node.Scale.Z}
		}
	}
	if len(node.Meshes) > 0 {
		gn.Mesh = gltf.Index(c.exportMesh(node.Name, node.Meshes))
	}
	for _, ci := range node.Children {
		if c.src.Nodes[ci].IsJoint {
			continue
		}
		gn.Children = append(gn.Children, c.exportNode(ci))
	}
	return gi
}

func (c *sceneToGltf) exportMesh(name string, meshes []int) uint32 {
	gm := &gltf.Mesh{Name: name}
	for _, mi := range meshes {
		mesh := c.src.Meshes[mi]
		if len(mesh.Points) == 0 {
			continue
		}
		attributes := map[string]uint32{}
		positions := make([][3]float32, len(mesh.Points))
		for i, p := range mesh.Points {
			positions[i] = [3]float32{p.X, p.Y, p.Z}
		}
		attributes["POSITION"] = modeler.WritePosition(c.Document, positions)
		if len(mesh.Normals) == len(mesh.Points) {
			normals := make([][3]float32, len(mesh.Normals))
			for i, n := range mesh.Normals {
				normals[i] = [3]float32{n.X, n.Y, n.Z}
			}
			attributes["NORMAL"] = modeler.WriteNormal(c.Document, normals)
		}
		for ui, set := range mesh.UVSets {
			if len(set) != len(mesh.Points) {
				continue
			}
			uvs := make([][2]float32, len(set))
			for i, uv := range set {
				uvs[i] = [2]float32{uv.X, 1 - uv.Y}
			}
			attributes[fmt.Sprintf("TEXCOORD_%d", ui)] = modeler.WriteTextureCoord(c.Document, uvs)
		}
		if mesh.InfluenceCount >= 4 && len(mesh.Joints) == len(mesh.Points)*mesh.InfluenceCount {
			for set := 0; set < mesh.InfluenceCount/4; set++ {
				joints := make([][4]uint16, len(mesh.Points))
				weights := make([][4]float32, len(mesh.Points))
				for v := range mesh.Points {
					for k := 0; k < 4; k++ {
						joints[v][k] = uint16(mesh.Joints[v*mesh.InfluenceCount+set*4+k])
						weights[v][k] = mesh.Weights[v*mesh.InfluenceCount+set*4+k]
					}
				}
				attributes[fmt.Sprintf("JOINTS_%d", set)] = modeler.WriteJoints(c.Document, joints)
				attributes[fmt.Sprintf("WEIGHTS_%d", set)] = modeler.WriteWeights(c.Document, weights)
			}
		}
		indices := make([]uint32, len(mesh.Indices))
		for i, idx := range mesh.Indices {
			indices[i] = uint32(idx)
		}
		prim := &gltf.Primitive{
			Indices:    gltf.Index(modeler.WriteIndices(c.Document, indices)),
			Attributes: attributes,
		}
		if mesh.Material >= 0 && mesh.Material < len(c.Materials) {
			prim.Material = gltf.Index(uint32(mesh.Material))
		}
		gm.Primitives = append(gm.Primitives, prim)
	}
	c.Meshes = append(c.Meshes, gm)
	return uint32(len(c.Meshes) - 1)
}

func (c *sceneToGltf) addMatrices(mats []*geom.Matrix4) uint32 {
	a := make([][4]float32, len(mats)*4)
	for i, m := range mats {
		for row := 0; row < 4; row++ {
			a[i*4+row] = [4]float32{m[row*4], m[row*4+1], m[row*4+2], m[row*4+3]}
		}
	}
	acc := modeler.WriteTangent(c.Document, a)
	c.Accessors[acc].Type = gltf.AccessorMat4
	c.Accessors[acc].Count /= 4
	c.BufferViews[*c.Accessors[acc].BufferView].ByteStride *= 4
	return acc
}

// exportSkeleton synthesizes joint nodes from the skeleton's joint
// paths and builds the glTF skin.
func (c *sceneToGltf) exportSkeleton(si int, sk *scene.Skeleton) {
	if len(sk.Joints) == 0 {
		return
	}
	rootParent := -1
	if sk.Parent >= 0 {
		rootParent = sk.Parent
	}
	jointNodes := make([]uint32, len(sk.Joints))
	pathToNode := map[string]uint32{}
	for ji, path := range sk.Joints {
		gi := uint32(len(c.Nodes))
		gn := &gltf.Node{Name: sk.JointNames[ji], Rotation: [4]float32{0, 0, 0, 1}, Scale: [3]float32{1, 1, 1}}
		if ji < len(sk.RestTransforms) && sk.RestTransforms[ji] != nil {
			t, r, _ := sk.RestTransforms[ji].Decompose()
			gn.Translation = [3]float32{t.X, t.Y, t.Z}
			gn.Rotation = [4]float32{r.X, r.Y, r.Z, r.W}
		}
		c.Nodes = append(c.Nodes, gn)
		jointNodes[ji] = gi
		pathToNode[path] = gi
		if p := strings.LastIndex(path, "/"); p >= 0 {
			if parent, ok := pathToNode[path[:p]]; ok {
				c.Nodes[parent].Children = append(c.Nodes[parent].Children, gi)
				continue
			}
		}
		if rootParent >= 0 {
			if pgi, ok := c.nodeMap[rootParent]; ok {
				c.Nodes[pgi].Children = append(c.Nodes[pgi].Children, gi)
				continue
			}
		}
		c.Scenes[0].Nodes = append(c.Scenes[0].Nodes, gi)
	}
	c.skeletonJointNode[si] = jointNodes

	invmats := make([]*geom.Matrix4, len(sk.Joints))
	for ji := range sk.Joints {
		if ji < len(sk.BindTransforms) && sk.BindTransforms[ji] != nil {
			invmats[ji] = sk.BindTransforms[ji].Inverse()
		} else {
			invmats[ji] = geom.NewMatrix4()
		}
	}
	c.Skins = append(c.Skins, &gltf.Skin{
		Name:                sk.Name,
		Joints:              jointNodes,
		InverseBindMatrices: gltf.Index(c.addMatrices(invmats)),
	})
	skinIndex := uint32(len(c.Skins) - 1)

	for _, mi := range sk.MeshSkinningTargets {
		if mi < 0 || mi >= len(c.src.Meshes) {
			continue
		}
		gi := uint32(len(c.Nodes))
		gn := &gltf.Node{
			Name: c.src.Meshes[mi].Name,
			Mesh: gltf.Index(c.exportMesh(c.src.Meshes[mi].Name, []int{mi})),
			Skin: gltf.Index(skinIndex),
		}
		c.Nodes = append(c.Nodes, gn)
		c.Scenes[0].Nodes = append(c.Scenes[0].Nodes, gi)
	}
}

func keysEqualsF(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *sceneToGltf) exportAnimations() {
	trackCount := len(c.src.AnimationTracks)
	if trackCount == 0 {
		return
	}
	if !c.ExportAllTracks && trackCount > 1 {
		trackCount = 1
	}
	for ti := 0; ti < trackCount; ti++ {
		a := &gltf.Animation{Name: c.src.AnimationTracks[ti].Name}
		var prevKeys []float32
		var prevKeysAcc uint32
		writeKeys := func(times []float32) uint32 {
			if prevKeys != nil && keysEqualsF(times, prevKeys) {
				return prevKeysAcc
			}
			prevKeys = times
			prevKeysAcc = modeler.WriteAccessor(c.Document, gltf.TargetArrayBuffer, times)
			return prevKeysAcc
		}
		addChannel := func(node uint32, path gltf.TRSProperty, keysAcc, samplesAcc uint32) {
			a.Samplers = append(a.Samplers, &gltf.AnimationSampler{
				Input:         gltf.Index(keysAcc),
				Output:        gltf.Index(samplesAcc),
				Interpolation: gltf.InterpolationLinear,
			})
			a.Channels = append(a.Channels, &gltf.Channel{
				Sampler: gltf.Index(uint32(len(a.Samplers) - 1)),
				Target: gltf.ChannelTarget{
					Node: gltf.Index(node),
					Path: path,
				},
			})
		}

		for si, node := range c.src.Nodes {
			// joint channels are emitted against the skin joints below
			if node.IsJoint {
				continue
			}
			if ti >= len(node.Animations) || node.Animations[ti] == nil {
				continue
			}
			gi, ok := c.nodeMap[si]
			if !ok {
				continue
			}
			anim := node.Animations[ti]
			if anim.Rotations.Len() > 0 {
				samples := make([][4]float32, anim.Rotations.Len())
				for i, q := range anim.Rotations.Values {
					samples[i] = [4]float32{q.X, q.Y, q.Z, q.W}
				}
				addChannel(gi, gltf.TRSRotation,
					writeKeys(anim.Rotations.Times), modeler.WriteTangent(c.Document, samples))
			}
			if anim.Translations.Len() > 0 {
				samples := make([][3]float32, anim.Translations.Len())
				for i, v := range anim.Translations.Values {
					samples[i] = [3]float32{v.X, v.Y, v.Z}
				}
				addChannel(gi, gltf.TRSTranslation,
					writeKeys(anim.Translations.Times), modeler.WritePosition(c.Document, samples))
			}
			if anim.Scales.Len() > 0 {
				samples := make([][3]float32, anim.Scales.Len())
				for i, v := range anim.Scales.Values {
					samples[i] = [3]float32{v.X, v.Y, v.Z}
				}
				addChannel(gi, gltf.TRSScale,
					writeKeys(anim.Scales.Times), modeler.WritePosition(c.Document, samples))
			}
		}

		for si, sk := range c.src.Skeletons {
			if ti >= len(sk.Animations) || sk.Animations[ti] == nil {
				continue
			}
			sa := sk.Animations[ti]
			keysAcc := writeKeys(sa.Times)
			for k, ji := range sa.AnimatedJoints {
				node := c.skeletonJointNode[si][ji]
				rotations := make([][4]float32, len(sa.Times))
				for i, q := range sa.Rotations[k] {
					rotations[i] = [4]float32{q.X, q.Y, q.Z, q.W}
				}
				addChannel(node, gltf.TRSRotation, keysAcc, modeler.WriteTangent(c.Document, rotations))
				translations := make([][3]float32, len(sa.Times))
				for i, v := range sa.Translations[k] {
					translations[i] = [3]float32{v.X, v.Y, v.Z}
				}
				addChannel(node, gltf.TRSTranslation, keysAcc, modeler.WritePosition(c.Document, translations))
				scales := make([][3]float32, len(sa.Times))
				for i, v := range sa.Scales[k] {
					scales[i] = [3]float32{v.X, v.Y, v.Z}
				}
				addChannel(node, gltf.TRSScale, keysAcc, modeler.WritePosition(c.Document, scales))
			}
		}
		if len(a.Channels) > 0 {
			c.Animations = append(c.Animations, a)
		}
	}
}
