package converter

import (
	"fmt"
	"log"
	"math"
	"path/filepath"
	"strings"

	"github.com/openscenetools/sceneconv/geom"
	"github.com/openscenetools/sceneconv/gltfutil"
	"github.com/openscenetools/sceneconv/scene"
	"github.com/qmuntal/gltf"
)

func importValue1(input *scene.Input, v, def float64) {
	if v != def {
		input.SetValue(float32(v))
	}
}

func importValue3(input *scene.Input, v, def [3]float64) {
	if v != def {
		input.SetValue(geom.NewVector3(float32(v[0]), float32(v[1]), float32(v[2])))
	}
}

func importScale1(input *scene.Input, v float64) {
	if v != 1 {
		input.Scale = geom.NewVector4(float32(v), float32(v), float32(v), float32(v))
	}
}

func importScale3(input *scene.Input, v [3]float64) {
	if v != ([3]float64{1, 1, 1}) {
		input.Scale = geom.NewVector4(float32(v[0]), float32(v[1]), float32(v[2]), 1)
	}
}

// copyTextureSettings reuses src's texture binding (image, uv set,
// wrap, filters, uv transform) for another channel of the same texture.
func copyTextureSettings(src, dst *scene.Input, channel string, colorspace scene.Colorspace) {
	*dst = *src
	dst.Channel = channel
	dst.Colorspace = colorspace
	dst.Value = nil
	dst.Scale = nil
	dst.Bias = nil
}

func textureInfoOf(ti *gltf.TextureInfo) extTextureInfo {
	e := newExtTextureInfo()
	e.Index = int(ti.Index)
	e.TexCoord = int(ti.TexCoord)
	e.Extensions = ti.Extensions
	return e
}

func (c *gltfToScene) importImage(textureIndex int) (int, bool) {
	if idx, ok := c.imageMap[textureIndex]; ok {
		return idx, idx >= 0
	}
	c.imageMap[textureIndex] = -1
	tex := c.doc.Textures[textureIndex]
	sourceIndex := -1
	if tex.Source != nil {
		sourceIndex = int(*tex.Source)
	}
	importWebPTextureSource(tex.Extensions, &sourceIndex)
	if sourceIndex < 0 || sourceIndex >= len(c.doc.Images) {
		log.Printf("WARNING: image index out of range: %d (texture: %d)", sourceIndex, textureIndex)
		return -1, false
	}
	img := c.doc.Images[sourceIndex]
	name := img.Name
	if name == "" && img.URI != "" && !strings.HasPrefix(img.URI, "data:") {
		base := filepath.Base(img.URI)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if name == "" {
		name = fmt.Sprintf("image_%d", sourceIndex)
	}
	if n, exists := c.imageNames[name]; exists {
		c.imageNames[name] = n + 1
		name = fmt.Sprintf("%s_%d", name, n)
	} else {
		c.imageNames[name] = 1
	}
	idx, dst := c.s.AddImage(name)
	data, err := gltfutil.ImageData(c.doc, img, c.options.SrcDir)
	if err != nil {
		log.Printf("WARNING: cannot read image %s: %v", name, err)
	} else {
		dst.Data = data
	}
	if img.URI != "" && !strings.HasPrefix(img.URI, "data:") {
		dst.URI = img.URI
	}
	dst.Format = gltfutil.DetectImageFormat(dst.Data, img.MimeType)
	c.imageMap[textureIndex] = idx
	return idx, true
}

func convertWrap(w gltf.WrappingMode) scene.Wrap {
	switch w {
	case gltf.WrapClampToEdge:
		return scene.WrapClamp
	case gltf.WrapMirroredRepeat:
		return scene.WrapMirror
	}
	return scene.WrapRepeat
}

func convertMagFilter(f gltf.MagFilter) string {
	switch f {
	case gltf.MagNearest:
		return "nearest"
	case gltf.MagLinear:
		return "linear"
	}
	return ""
}

func convertMinFilter(f gltf.MinFilter) string {
	switch f {
	case gltf.MinNearest, gltf.MinNearestMipMapNearest, gltf.MinNearestMipMapLinear:
		return "nearest"
	case gltf.MinLinear, gltf.MinLinearMipMapNearest, gltf.MinLinearMipMapLinear:
		return "linear"
	}
	return ""
}

func (c *gltfToScene) importTexture(input *scene.Input, ti extTextureInfo, channel string, colorspace scene.Colorspace) bool {
	if ti.Index < 0 {
		return false
	}
	if ti.Index >= len(c.doc.Textures) {
		log.Printf("WARNING: texture index out of range: %d (textures: %d)", ti.Index, len(c.doc.Textures))
		return false
	}
	imageIndex, ok := c.importImage(ti.Index)
	if !ok {
		return false
	}
	input.Image = imageIndex
	input.Value = nil
	input.UVIndex = ti.TexCoord
	input.Channel = channel
	input.Colorspace = colorspace
	// explicit repeat: the destination default wrap differs from glTF's
	input.WrapS = scene.WrapRepeat
	input.WrapT = scene.WrapRepeat
	tex := c.doc.Textures[ti.Index]
	if tex.Sampler != nil && int(*tex.Sampler) < len(c.doc.Samplers) {
		sampler := c.doc.Samplers[*tex.Sampler]
		input.WrapS = convertWrap(sampler.WrapS)
		input.WrapT = convertWrap(sampler.WrapT)
		input.MagFilter = convertMagFilter(sampler.MagFilter)
		input.MinFilter = convertMinFilter(sampler.MinFilter)
	}
	if ti.Extensions != nil {
		c.importTextureTransform(ti.Extensions, input)
	}
	return true
}

func (c *gltfToScene) importTextureTransform(ext gltf.Extensions, input *scene.Input) {
	m, ok := extMap(ext, "KHR_texture_transform")
	if !ok {
		return
	}
	if v, ok := m["texCoord"].(float64); ok {
		input.UVIndex = int(v)
	}
	rotation := 0.0
	if readFloat(m, "rotation", &rotation) && rotation != 0 {
		input.UVRotation = float32(rotation * 180 / math.Pi)
	}
	scale := [2]float64{1, 1}
	if readFloat2(m, "scale", &scale) && scale != ([2]float64{1, 1}) {
		input.UVScale = geom.NewVector2(float32(scale[0]), float32(scale[1]))
	}
	offset := [2]float64{}
	if readFloat2(m, "offset", &offset) && offset != ([2]float64{}) {
		input.UVTranslation = geom.NewVector2(float32(offset[0]), float32(offset[1]))
	}
}

// importNormalInput binds a tangent-space normal map with an explicit
// scale/bias so consumers always see the [-1,1] remapping; the normal
// strength folds into both.
func (c *gltfToScene) importNormalInput(input *scene.Input, ti extTextureInfo) {
	if !c.importTexture(input, ti, "rgb", scene.ColorspaceRaw) {
		return
	}
	s := float32(ti.Scale)
	input.Scale = geom.NewVector4(2*s, 2*s, 2*s, 1)
	input.Bias = geom.NewVector4(-s, -s, -s, 0)
}

func (c *gltfToScene) importMaterials() {
	for i, m := range c.doc.Materials {
		name := m.Name
		if name == "" {
			name = fmt.Sprintf("material_%d", i)
		}
		_, mat := c.s.AddMaterial(name)
		mat.DoubleSided = m.DoubleSided
		if sg, ok := importSpecularGlossiness(m.Extensions); ok {
			c.importSpecularGlossinessMaterial(m, sg, mat)
		} else {
			c.importMetallicRoughnessMaterial(m, mat)
		}
		c.importCommonMaterial(m, mat)
	}
}

func (c *gltfToScene) importMetallicRoughnessMaterial(m *gltf.Material, mat *scene.Material) {
	baseColor := [4]float32{1, 1, 1, 1}
	metallic, roughness := float32(1), float32(1)
	var baseColorTexture, mrTexture *gltf.TextureInfo
	if pbr := m.PBRMetallicRoughness; pbr != nil {
		baseColor = pbr.BaseColorFactorOrDefault()
		metallic = pbr.MetallicFactorOrDefault()
		roughness = pbr.RoughnessFactorOrDefault()
		baseColorTexture = pbr.BaseColorTexture
		mrTexture = pbr.MetallicRoughnessTexture
	}
	translucent := m.AlphaMode == gltf.AlphaBlend || m.AlphaMode == gltf.AlphaMask
	baseRGB := [3]float64{float64(baseColor[0]), float64(baseColor[1]), float64(baseColor[2])}
	if baseColorTexture != nil && c.importTexture(&mat.DiffuseColor, textureInfoOf(baseColorTexture), "rgb", scene.ColorspaceSRGB) {
		importScale3(&mat.DiffuseColor, baseRGB)
		if translucent {
			copyTextureSettings(&mat.DiffuseColor, &mat.Opacity, "a", scene.ColorspaceRaw)
			importScale1(&mat.Opacity, float64(baseColor[3]))
		}
	} else {
		importValue3(&mat.DiffuseColor, baseRGB, [3]float64{1, 1, 1})
		if translucent {
			importValue1(&mat.Opacity, float64(baseColor[3]), 1)
		}
	}
	if mrTexture != nil && c.importTexture(&mat.Roughness, textureInfoOf(mrTexture), "g", scene.ColorspaceRaw) {
		importScale1(&mat.Roughness, float64(roughness))
		copyTextureSettings(&mat.Roughness, &mat.Metallic, "b", scene.ColorspaceRaw)
		importScale1(&mat.Metallic, float64(metallic))
	} else {
		importValue1(&mat.Roughness, float64(roughness), 1)
		importValue1(&mat.Metallic, float64(metallic), 1)
	}

	ior := 1.5
	if importIor(m.Extensions, &ior) {
		importValue1(&mat.Ior, ior, 1.5)
	}

	sp := specularExt{Factor: 1, ColorFactor: [3]float64{1, 1, 1},
		Texture: newExtTextureInfo(), ColorTexture: newExtTextureInfo()}
	if importSpecular(m.Extensions, &sp) {
		if c.importTexture(&mat.SpecularLevel, sp.Texture, "a", scene.ColorspaceRaw) {
			importScale1(&mat.SpecularLevel, sp.Factor)
		} else {
			importValue1(&mat.SpecularLevel, sp.Factor, 1)
		}
		if c.importTexture(&mat.SpecularColor, sp.ColorTexture, "rgb", scene.ColorspaceSRGB) {
			importScale3(&mat.SpecularColor, sp.ColorFactor)
		} else {
			importValue3(&mat.SpecularColor, sp.ColorFactor, [3]float64{1, 1, 1})
		}
	}

	an := anisotropyExt{Texture: newExtTextureInfo()}
	if importAnisotropy(m.Extensions, &an) {
		// the anisotropy texture encodes per-pixel direction; only the
		// constant factors translate to this shading model
		importValue1(&mat.AnisotropyLevel, an.Strength, 0)
		importValue1(&mat.AnisotropyAngle, an.Rotation/(2*math.Pi), 0)
		if an.Texture.Index >= 0 {
			log.Println("WARNING: anisotropy texture not supported:", mat.Name)
		}
	}

	cc := clearcoatExt{Texture: newExtTextureInfo(),
		RoughnessTexture: newExtTextureInfo(), NormalTexture: newExtTextureInfo()}
	if importClearcoat(m.Extensions, &cc) {
		if c.importTexture(&mat.Clearcoat, cc.Texture, "r", scene.ColorspaceRaw) {
			importScale1(&mat.Clearcoat, cc.Factor)
		} else {
			importValue1(&mat.Clearcoat, cc.Factor, 0)
		}
		if c.importTexture(&mat.ClearcoatRoughness, cc.RoughnessTexture, "g", scene.ColorspaceRaw) {
			importScale1(&mat.ClearcoatRoughness, cc.RoughnessFactor)
		} else {
			importValue1(&mat.ClearcoatRoughness, cc.RoughnessFactor, 0)
		}
		c.importNormalInput(&mat.ClearcoatNormal, cc.NormalTexture)

		adobe := adobeClearcoatSpecularExt{Ior: 1.5, Factor: 1, Texture: newExtTextureInfo()}
		if importAdobeClearcoatSpecular(m.Extensions, &adobe) {
			importValue1(&mat.ClearcoatIor, adobe.Ior, 1.5)
			if c.importTexture(&mat.ClearcoatSpecular, adobe.Texture, "b", scene.ColorspaceRaw) {
				importScale1(&mat.ClearcoatSpecular, adobe.Factor)
			} else {
				importValue1(&mat.ClearcoatSpecular, adobe.Factor, 1)
			}
		}
		ccc := clearcoatColorExt{Factor: [3]float64{1, 1, 1}, Texture: newExtTextureInfo()}
		if importClearcoatColor(m.Extensions, &ccc) {
			if c.importTexture(&mat.ClearcoatColor, ccc.Texture, "rgb", scene.ColorspaceSRGB) {
				importScale3(&mat.ClearcoatColor, ccc.Factor)
			} else {
				importValue3(&mat.ClearcoatColor, ccc.Factor, [3]float64{1, 1, 1})
			}
		}
	}

	sh := sheenExt{ColorTexture: newExtTextureInfo(), RoughnessTexture: newExtTextureInfo()}
	if importSheen(m.Extensions, &sh) {
		if c.importTexture(&mat.SheenColor, sh.ColorTexture, "rgb", scene.ColorspaceSRGB) {
			importScale3(&mat.SheenColor, sh.ColorFactor)
		} else {
			importValue3(&mat.SheenColor, sh.ColorFactor, [3]float64{0, 0, 0})
		}
		if c.importTexture(&mat.SheenRoughness, sh.RoughnessTexture, "a", scene.ColorspaceRaw) {
			importScale1(&mat.SheenRoughness, sh.RoughnessFactor)
		} else {
			importValue1(&mat.SheenRoughness, sh.RoughnessFactor, 0)
		}
	}

	tr := transmissionExt{Texture: newExtTextureInfo()}
	if importTransmission(m.Extensions, &tr) {
		if c.importTexture(&mat.Transmission, tr.Texture, "r", scene.ColorspaceRaw) {
			importScale1(&mat.Transmission, tr.Factor)
		} else {
			importValue1(&mat.Transmission, tr.Factor, 0)
		}
		// transmission tinting: this shading model tints transmitted
		// light through the clearcoat lobe, so repurpose it when free
		if mat.Transmission.Used() && mat.DiffuseColor.Used() {
			if !mat.Clearcoat.Used() {
				mat.Clearcoat = mat.Transmission
				mat.ClearcoatRoughness = mat.Roughness
				mat.ClearcoatNormal = mat.Normal
				mat.ClearcoatSpecular = mat.SpecularLevel
				mat.ClearcoatIor = mat.Ior
				if !mat.ClearcoatColor.Used() {
					mat.ClearcoatColor = mat.DiffuseColor
				}
				mat.ClearcoatModelsTransmissionTint = true
			} else {
				log.Println("WARNING: clearcoat in use, cannot emulate transmission tint:", mat.Name)
			}
		}
	}

	dt := diffuseTransmissionExt{ColorFactor: [3]float64{1, 1, 1},
		Texture: newExtTextureInfo(), ColorTexture: newExtTextureInfo()}
	if importDiffuseTransmission(m.Extensions, &dt) {
		if mat.Transmission.Used() {
			log.Println("WARNING: transmission already set, ignoring diffuse transmission:", mat.Name)
		} else if c.importTexture(&mat.Transmission, dt.Texture, "a", scene.ColorspaceRaw) {
			importScale1(&mat.Transmission, dt.Factor)
		} else {
			importValue1(&mat.Transmission, dt.Factor, 0)
		}
	}

	vol := volumeExt{AttenuationColor: [3]float64{1, 1, 1}, ThicknessTexture: newExtTextureInfo()}
	if importVolume(m.Extensions, &vol) && vol.ThicknessFactor > 0 {
		if c.importTexture(&mat.VolumeThickness, vol.ThicknessTexture, "g", scene.ColorspaceRaw) {
			importScale1(&mat.VolumeThickness, vol.ThicknessFactor)
		} else {
			importValue1(&mat.VolumeThickness, vol.ThicknessFactor, 0)
		}
		importValue1(&mat.AbsorptionDistance, vol.AttenuationDistance, 0)
		importValue3(&mat.AbsorptionColor, vol.AttenuationColor, [3]float64{1, 1, 1})
	}

	vs := volumeScatterExt{}
	if importVolumeScatter(m.Extensions, &vs) {
		mat.ScatteringColor.SetValue(geom.NewVector3(
			float32(vs.MultiscatterColor[0]), float32(vs.MultiscatterColor[1]), float32(vs.MultiscatterColor[2])))
		mat.ScatteringDistance.SetValue(vs.ScatteringDistance)
		mat.ScatteringDistanceScale.SetValue(geom.NewVector3(
			vs.ScatteringDistanceScale[0], vs.ScatteringDistanceScale[1], vs.ScatteringDistanceScale[2]))
		// scattering supersedes plain absorption
		mat.AbsorptionColor.SetValue(geom.NewVector3(1, 1, 1))
		mat.AbsorptionDistance.SetValue(float32(0))
	} else {
		ss := subsurfaceExt{ScatterDistance: math.Inf(1), ScatterColor: [3]float64{1, 1, 1}}
		if importSubsurface(m.Extensions, &ss) {
			mat.SubsurfaceWeight.SetValue(float32(1))
			mat.SubsurfaceColor.SetValue(geom.NewVector3(
				float32(ss.ScatterColor[0]), float32(ss.ScatterColor[1]), float32(ss.ScatterColor[2])))
			if !math.IsInf(ss.ScatterDistance, 1) {
				mat.ScatteringDistance.SetValue(float32(ss.ScatterDistance))
			}
		}
	}
}

func (c *gltfToScene) importCommonMaterial(m *gltf.Material, mat *scene.Material) {
	if m.NormalTexture != nil && m.NormalTexture.Index != nil {
		ti := newExtTextureInfo()
		ti.Index = int(*m.NormalTexture.Index)
		ti.TexCoord = int(m.NormalTexture.TexCoord)
		if m.NormalTexture.Scale != nil {
			ti.Scale = float64(*m.NormalTexture.Scale)
		}
		ti.Extensions = m.NormalTexture.Extensions
		c.importNormalInput(&mat.Normal, ti)
	}
	if m.OcclusionTexture != nil && m.OcclusionTexture.Index != nil {
		ti := newExtTextureInfo()
		ti.Index = int(*m.OcclusionTexture.Index)
		ti.TexCoord = int(m.OcclusionTexture.TexCoord)
		ti.Extensions = m.OcclusionTexture.Extensions
		strength := 1.0
		if m.OcclusionTexture.Strength != nil {
			strength = float64(*m.OcclusionTexture.Strength)
		}
		if c.importTexture(&mat.Occlusion, ti, "r", scene.ColorspaceRaw) {
			importScale1(&mat.Occlusion, strength)
		} else {
			importValue1(&mat.Occlusion, strength, 1)
		}
	}

	strength := 1.0
	importEmissiveStrength(m.Extensions, &strength)
	scaled := [3]float64{
		float64(m.EmissiveFactor[0]) * strength,
		float64(m.EmissiveFactor[1]) * strength,
		float64(m.EmissiveFactor[2]) * strength,
	}
	if m.EmissiveTexture != nil && c.importTexture(&mat.EmissiveColor, textureInfoOf(m.EmissiveTexture), "rgb", scene.ColorspaceSRGB) {
		importScale3(&mat.EmissiveColor, scaled)
	} else {
		importValue3(&mat.EmissiveColor, scaled, [3]float64{0, 0, 0})
	}

	if importUnlit(m.Extensions) {
		mat.IsUnlit = true
		if !mat.EmissiveColor.Used() {
			mat.EmissiveColor = mat.DiffuseColor
		}
		mat.DiffuseColor = scene.NewInput()
	}
	if m.AlphaMode == gltf.AlphaMask {
		mat.OpacityThreshold.SetValue(m.AlphaCutoffOrDefault())
	}
}
