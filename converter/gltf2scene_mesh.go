package converter

import (
	"fmt"
	"log"

	"github.com/chewxy/math32"
	"github.com/openscenetools/sceneconv/geom"
	"github.com/openscenetools/sceneconv/gltfutil"
	"github.com/openscenetools/sceneconv/scene"
	"github.com/qmuntal/gltf"
)

func (c *gltfToScene) accessor(idx uint32) *gltf.Accessor {
	if int(idx) >= len(c.doc.Accessors) {
		log.Printf("WARNING: accessor index out of range: %d (accessors: %d)", idx, len(c.doc.Accessors))
		return nil
	}
	return c.doc.Accessors[idx]
}

func (c *gltfToScene) importMeshes() {
	for mi, gm := range c.doc.Meshes {
		baseName := gm.Name
		if baseName == "" {
			baseName = fmt.Sprintf("mesh_%d", mi)
		}
		for pi, prim := range gm.Primitives {
			name := baseName
			if len(gm.Primitives) > 1 {
				name = fmt.Sprintf("%s_primitive%d", baseName, pi)
			}
			// the slot is created even when the primitive turns out to be
			// broken, so sibling primitive indices stay aligned
			si, mesh := c.s.AddMesh(name)
			c.meshes[mi] = append(c.meshes[mi], si)
			c.importPrimitive(prim, mesh, baseName, pi)
		}
	}
}

func expandTriangleStrip(indices []uint32) []uint32 {
	if len(indices) < 3 {
		return nil
	}
	out := make([]uint32, 0, 3*(len(indices)-2))
	for i := 0; i+2 < len(indices); i++ {
		out = append(out, indices[i], indices[i+1+i%2], indices[i+2-i%2])
	}
	return out
}

func expandTriangleFan(indices []uint32) []uint32 {
	if len(indices) < 3 {
		return nil
	}
	out := make([]uint32, 0, 3*(len(indices)-2))
	for i := 0; i+2 < len(indices); i++ {
		out = append(out, indices[i+1], indices[i+2], indices[0])
	}
	return out
}

func (c *gltfToScene) importPrimitive(prim *gltf.Primitive, mesh *scene.Mesh, meshName string, pi int) {
	posIdx, ok := prim.Attributes["POSITION"]
	if !ok {
		log.Printf("WARNING: primitive without POSITION (mesh: %s, primitive: %d)", meshName, pi)
		return
	}
	posAcc := c.accessor(posIdx)
	if posAcc == nil || posAcc.Type != gltf.AccessorVec3 {
		log.Printf("WARNING: bad POSITION accessor (mesh: %s, primitive: %d)", meshName, pi)
		return
	}
	vertexCount := int(posAcc.Count)

	var indices []uint32
	if prim.Indices != nil {
		acc := c.accessor(*prim.Indices)
		if acc == nil {
			return
		}
		var err error
		indices, err = gltfutil.ReadIndices(c.doc, acc)
		if err != nil {
			log.Printf("WARNING: cannot read indices (mesh: %s, primitive: %d): %v", meshName, pi, err)
			return
		}
	} else {
		indices = make([]uint32, vertexCount)
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	// bounds gate before any storage is allocated
	for _, idx := range indices {
		if int(idx) >= vertexCount {
			log.Printf("WARNING: index out of range: %d >= %d (mesh: %s, primitive: %d)", idx, vertexCount, meshName, pi)
			return
		}
	}

	positions, err := gltfutil.ReadVec3(c.doc, posAcc)
	if err != nil {
		log.Printf("WARNING: cannot read positions (mesh: %s, primitive: %d): %v", meshName, pi, err)
		return
	}
	mesh.Points = make([]geom.Vector3, len(positions))
	for i, p := range positions {
		mesh.Points[i] = geom.Vector3{X: p[0], Y: p[1], Z: p[2]}
	}

	switch prim.Mode {
	case gltf.PrimitiveTriangles:
	case gltf.PrimitiveTriangleStrip:
		indices = expandTriangleStrip(indices)
	case gltf.PrimitiveTriangleFan:
		indices = expandTriangleFan(indices)
	default:
		log.Printf("WARNING: unsupported primitive mode: %v (mesh: %s, primitive: %d)", prim.Mode, meshName, pi)
	}
	mesh.Indices = make([]int, len(indices))
	for i, idx := range indices {
		mesh.Indices[i] = int(idx)
	}
	mesh.Faces = make([]int, len(indices)/3)
	for i := range mesh.Faces {
		mesh.Faces[i] = 3
	}

	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if acc := c.accessor(idx); acc != nil && acc.Type == gltf.AccessorVec3 && int(acc.Count) == vertexCount {
			if normals, err := gltfutil.ReadVec3(c.doc, acc); err == nil {
				mesh.Normals = make([]geom.Vector3, len(normals))
				for i, n := range normals {
					mesh.Normals[i] = geom.Vector3{X: n[0], Y: n[1], Z: n[2]}
				}
			}
		} else {
			log.Printf("WARNING: bad NORMAL accessor (mesh: %s, primitive: %d)", meshName, pi)
		}
	}
	if idx, ok := prim.Attributes["TANGENT"]; ok {
		if acc := c.accessor(idx); acc != nil && acc.Type == gltf.AccessorVec4 && int(acc.Count) == vertexCount {
			if tangents, err := gltfutil.ReadVec4(c.doc, acc); err == nil {
				mesh.Tangents = make([]geom.Vector4, len(tangents))
				for i, t := range tangents {
					mesh.Tangents[i] = geom.Vector4{X: t[0], Y: t[1], Z: t[2], W: t[3]}
				}
			}
		} else {
			log.Printf("WARNING: bad TANGENT accessor (mesh: %s, primitive: %d)", meshName, pi)
		}
	}
	if c.options.ComputeBitangents &&
		len(mesh.Tangents) == len(mesh.Points) && len(mesh.Normals) == len(mesh.Points) {
		c.computeBitangents(mesh, meshName)
	}

	for ti := 0; ; ti++ {
		idx, ok := prim.Attributes[fmt.Sprintf("TEXCOORD_%d", ti)]
		if !ok {
			break
		}
		acc := c.accessor(idx)
		if acc == nil || acc.Type != gltf.AccessorVec2 || int(acc.Count) != vertexCount {
			log.Printf("WARNING: bad TEXCOORD_%d accessor (mesh: %s, primitive: %d)", ti, meshName, pi)
			break
		}
		uvs, err := gltfutil.ReadVec2(c.doc, acc)
		if err != nil {
			log.Printf("WARNING: cannot read TEXCOORD_%d (mesh: %s, primitive: %d): %v", ti, meshName, pi, err)
			break
		}
		set := make([]geom.Vector2, len(uvs))
		for i, uv := range uvs {
			// destination uv origin is bottom-left
			set[i] = geom.Vector2{X: uv[0], Y: 1 - uv[1]}
		}
		mesh.UVSets = append(mesh.UVSets, set)
	}

	for ci := 0; ; ci++ {
		idx, ok := prim.Attributes[fmt.Sprintf("COLOR_%d", ci)]
		if !ok {
			break
		}
		acc := c.accessor(idx)
		if acc == nil || int(acc.Count) != vertexCount {
			log.Printf("WARNING: bad COLOR_%d accessor (mesh: %s, primitive: %d)", ci, meshName, pi)
			break
		}
		switch acc.Type {
		case gltf.AccessorVec3:
			values, err := gltfutil.ReadVec3(c.doc, acc)
			if err != nil {
				break
			}
			_, set := mesh.AddColorSet()
			set.Values = make([]geom.Vector3, len(values))
			for i, v := range values {
				set.Values[i] = geom.Vector3{X: v[0], Y: v[1], Z: v[2]}
			}
		case gltf.AccessorVec4:
			values, err := gltfutil.ReadVec4(c.doc, acc)
			if err != nil {
				break
			}
			_, set := mesh.AddColorSet()
			_, opa := mesh.AddOpacitySet()
			set.Values = make([]geom.Vector3, len(values))
			opa.Values = make([]float32, len(values))
			for i, v := range values {
				set.Values[i] = geom.Vector3{X: v[0], Y: v[1], Z: v[2]}
				opa.Values[i] = v[3]
			}
		default:
			log.Printf("WARNING: unsupported COLOR_%d type (mesh: %s, primitive: %d)", ci, meshName, pi)
		}
	}

	c.importSkinning(prim, mesh, vertexCount, meshName, pi)

	if prim.Material != nil {
		matIndex := int(*prim.Material)
		if matIndex < len(c.doc.Materials) {
			mesh.DoubleSided = c.doc.Materials[matIndex].DoubleSided
			if matIndex < len(c.s.Materials) {
				mesh.Material = matIndex
			}
		} else {
			log.Printf("WARNING: material index out of range: %d (mesh: %s, primitive: %d)", matIndex, meshName, pi)
		}
	}
}

func (c *gltfToScene) importSkinning(prim *gltf.Primitive, mesh *scene.Mesh, vertexCount int, meshName string, pi int) {
	var jointSets, weightSets [][][4]float32
	for set := 0; ; set++ {
		ja, jok := prim.Attributes[fmt.Sprintf("JOINTS_%d", set)]
		wa, wok := prim.Attributes[fmt.Sprintf("WEIGHTS_%d", set)]
		if !jok || !wok {
			if jok != wok {
				log.Printf("WARNING: unpaired joint/weight set %d (mesh: %s, primitive: %d)", set, meshName, pi)
			}
			break
		}
		jacc, wacc := c.accessor(ja), c.accessor(wa)
		if jacc == nil || wacc == nil ||
			jacc.Type != gltf.AccessorVec4 || wacc.Type != gltf.AccessorVec4 {
			log.Printf("WARNING: joint/weight set %d is not VEC4, dropping skinning (mesh: %s, primitive: %d)", set, meshName, pi)
			return
		}
		if int(jacc.Count) != vertexCount || int(wacc.Count) != vertexCount {
			log.Printf("WARNING: joint/weight set %d count mismatch, dropping skinning (mesh: %s, primitive: %d)", set, meshName, pi)
			return
		}
		joints, err := gltfutil.ReadVec4(c.doc, jacc)
		if err != nil {
			log.Printf("WARNING: cannot read joint set %d (mesh: %s, primitive: %d): %v", set, meshName, pi, err)
			return
		}
		weights, err := gltfutil.ReadVec4(c.doc, wacc)
		if err != nil {
			log.Printf("WARNING: cannot read weight set %d (mesh: %s, primitive: %d): %v", set, meshName, pi, err)
			return
		}
		jointSets = append(jointSets, joints)
		weightSets = append(weightSets, weights)
	}
	if len(jointSets) == 0 {
		return
	}
	influence := len(jointSets) * 4
	mesh.InfluenceCount = influence
	mesh.Joints = make([]int, vertexCount*influence)
	mesh.Weights = make([]float32, vertexCount*influence)
	for v := 0; v < vertexCount; v++ {
		for s := range jointSets {
			for k := 0; k < 4; k++ {
				mesh.Joints[v*influence+s*4+k] = int(jointSets[s][v][k])
				mesh.Weights[v*influence+s*4+k] = weightSets[s][v][k]
			}
		}
	}
}

func (c *gltfToScene) computeBitangents(mesh *scene.Mesh, meshName string) {
	mesh.Bitangents = make([]geom.Vector3, len(mesh.Points))
	warned := false
	for i := range mesh.Points {
		t := mesh.Tangents[i]
		sign := t.W
		if math32.Abs(sign) < 0.5 {
			if !warned {
				log.Printf("WARNING: malformed tangent handedness, assuming +1 (mesh: %s)", meshName)
				warned = true
			}
			sign = 1
		}
		mesh.Bitangents[i] = *mesh.Normals[i].Cross(t.Vec3()).Scale(sign)
	}
}
