package converter

import (
	"encoding/json"
	"math"

	"github.com/chewxy/math32"
	"github.com/qmuntal/gltf"
)

// Extension payloads that qmuntal/gltf has no registered decoder for
// arrive as raw JSON. extMap exposes them as a generic map so each
// decoder below can cherry-pick its fields; malformed fields are
// skipped, never rejected as a whole.
func extMap(ext gltf.Extensions, name string) (map[string]interface{}, bool) {
	v, ok := ext[name]
	if !ok {
		return nil, false
	}
	switch e := v.(type) {
	case map[string]interface{}:
		return e, true
	case json.RawMessage:
		var m map[string]interface{}
		if err := json.Unmarshal(e, &m); err != nil {
			return nil, false
		}
		return m, true
	case []byte:
		var m map[string]interface{}
		if err := json.Unmarshal(e, &m); err != nil {
			return nil, false
		}
		return m, true
	}
	return nil, false
}

func readFloat(m map[string]interface{}, key string, dst *float64) bool {
	if v, ok := m[key].(float64); ok {
		*dst = v
		return true
	}
	return false
}

func readFloat2(m map[string]interface{}, key string, dst *[2]float64) bool {
	arr, ok := m[key].([]interface{})
	if !ok || len(arr) != 2 {
		return false
	}
	for i, e := range arr {
		if v, ok := e.(float64); ok {
			dst[i] = v
		}
	}
	return true
}

func readFloat3(m map[string]interface{}, key string, dst *[3]float64) bool {
	arr, ok := m[key].([]interface{})
	if !ok || len(arr) != 3 {
		return false
	}
	for i, e := range arr {
		if v, ok := e.(float64); ok {
			dst[i] = v
		}
	}
	return true
}

func readFloat4(m map[string]interface{}, key string, dst *[4]float64) bool {
	arr, ok := m[key].([]interface{})
	if !ok || len(arr) != 4 {
		return false
	}
	for i, e := range arr {
		if v, ok := e.(float64); ok {
			dst[i] = v
		}
	}
	return true
}

// extTextureInfo is the loosely-typed equivalent of gltf.TextureInfo
// for textures referenced inside extension maps.
type extTextureInfo struct {
	Index      int
	TexCoord   int
	Scale      float64 // normal textures only
	Extensions gltf.Extensions
}

func newExtTextureInfo() extTextureInfo {
	return extTextureInfo{Index: -1, Scale: 1}
}

func readTextureInfo(m map[string]interface{}, key string, dst *extTextureInfo) bool {
	obj, ok := m[key].(map[string]interface{})
	if !ok {
		return false
	}
	idx, ok := obj["index"].(float64)
	if !ok {
		return false
	}
	dst.Index = int(idx)
	if tc, ok := obj["texCoord"].(float64); ok {
		dst.TexCoord = int(tc)
	}
	if s, ok := obj["scale"].(float64); ok {
		dst.Scale = s
	}
	if ext, ok := obj["extensions"].(map[string]interface{}); ok {
		dst.Extensions = gltf.Extensions{}
		for k, v := range ext {
			dst.Extensions[k] = v
		}
	}
	return true
}

type clearcoatExt struct {
	Factor           float64
	Texture          extTextureInfo // r channel
	RoughnessFactor  float64
	RoughnessTexture extTextureInfo // g channel
	NormalTexture    extTextureInfo // rgb channels
}

func importClearcoat(ext gltf.Extensions, c *clearcoatExt) bool {
	m, ok := extMap(ext, "KHR_materials_clearcoat")
	if !ok {
		return false
	}
	readFloat(m, "clearcoatFactor", &c.Factor)
	readTextureInfo(m, "clearcoatTexture", &c.Texture)
	readFloat(m, "clearcoatRoughnessFactor", &c.RoughnessFactor)
	readTextureInfo(m, "clearcoatRoughnessTexture", &c.RoughnessTexture)
	readTextureInfo(m, "clearcoatNormalTexture", &c.NormalTexture)
	return true
}

func importEmissiveStrength(ext gltf.Extensions, strength *float64) bool {
	m, ok := extMap(ext, "KHR_materials_emissive_strength")
	if !ok {
		return false
	}
	readFloat(m, "emissiveStrength", strength)
	return true
}

func importIor(ext gltf.Extensions, ior *float64) bool {
	m, ok := extMap(ext, "KHR_materials_ior")
	if !ok {
		return false
	}
	readFloat(m, "ior", ior)
	return true
}

type sheenExt struct {
	ColorFactor      [3]float64
	ColorTexture     extTextureInfo // rgb channels
	RoughnessFactor  float64
	RoughnessTexture extTextureInfo // a channel
}

func importSheen(ext gltf.Extensions, s *sheenExt) bool {
	m, ok := extMap(ext, "KHR_materials_sheen")
	if !ok {
		return false
	}
	readFloat3(m, "sheenColorFactor", &s.ColorFactor)
	readTextureInfo(m, "sheenColorTexture", &s.ColorTexture)
	readFloat(m, "sheenRoughnessFactor", &s.RoughnessFactor)
	readTextureInfo(m, "sheenRoughnessTexture", &s.RoughnessTexture)
	return true
}

type specularExt struct {
	Factor       float64
	Texture      extTextureInfo // a channel
	ColorFactor  [3]float64
	ColorTexture extTextureInfo // rgb channels
}

func importSpecular(ext gltf.Extensions, s *specularExt) bool {
	m, ok := extMap(ext, "KHR_materials_specular")
	if !ok {
		return false
	}
	readFloat(m, "specularFactor", &s.Factor)
	readTextureInfo(m, "specularTexture", &s.Texture)
	readFloat3(m, "specularColorFactor", &s.ColorFactor)
	readTextureInfo(m, "specularColorTexture", &s.ColorTexture)
	return true
}

type transmissionExt struct {
	Factor  float64
	Texture extTextureInfo // r channel
}

func importTransmission(ext gltf.Extensions, t *transmissionExt) bool {
	m, ok := extMap(ext, "KHR_materials_transmission")
	if !ok {
		return false
	}
	readFloat(m, "transmissionFactor", &t.Factor)
	readTextureInfo(m, "transmissionTexture", &t.Texture)
	return true
}

type volumeExt struct {
	ThicknessFactor  float64
	ThicknessTexture extTextureInfo // g channel
	// glTF defaults attenuationDistance to infinity, but the shading
	// model downstream works better with 0
	AttenuationDistance float64
	AttenuationColor    [3]float64
}

func importVolume(ext gltf.Extensions, v *volumeExt) bool {
	m, ok := extMap(ext, "KHR_materials_volume")
	if !ok {
		return false
	}
	readFloat(m, "thicknessFactor", &v.ThicknessFactor)
	readTextureInfo(m, "thicknessTexture", &v.ThicknessTexture)
	readFloat(m, "attenuationDistance", &v.AttenuationDistance)
	readFloat3(m, "attenuationColor", &v.AttenuationColor)
	return true
}

type adobeClearcoatSpecularExt struct {
	Ior     float64
	Factor  float64
	Texture extTextureInfo // b channel
}

func importAdobeClearcoatSpecular(ext gltf.Extensions, c *adobeClearcoatSpecularExt) bool {
	m, ok := extMap(ext, "ADOBE_materials_clearcoat_specular")
	if !ok {
		return false
	}
	readFloat(m, "clearcoatIor", &c.Ior)
	readFloat(m, "clearcoatSpecularFactor", &c.Factor)
	readTextureInfo(m, "clearcoatSpecularTexture", &c.Texture)
	return true
}

type clearcoatColorExt struct {
	Factor  [3]float64
	Texture extTextureInfo // rgb channels
}

// The multi-vendor clearcoat color extension takes priority over the
// older Adobe-specific tint.
func importClearcoatColor(ext gltf.Extensions, c *clearcoatColorExt) bool {
	if m, ok := extMap(ext, "EXT_materials_clearcoat_color"); ok {
		readFloat3(m, "clearcoatColorFactor", &c.Factor)
		readTextureInfo(m, "clearcoatColorTexture", &c.Texture)
		return true
	}
	if m, ok := extMap(ext, "ADOBE_materials_clearcoat_tint"); ok {
		readFloat3(m, "clearcoatTintFactor", &c.Factor)
		readTextureInfo(m, "clearcoatTintTexture", &c.Texture)
		return true
	}
	return false
}

type diffuseTransmissionExt struct {
	Factor       float64
	Texture      extTextureInfo // a channel
	ColorTexture extTextureInfo // rgb channels
	ColorFactor  [3]float64
}

func importDiffuseTransmission(ext gltf.Extensions, d *diffuseTransmissionExt) bool {
	m, ok := extMap(ext, "KHR_materials_diffuse_transmission")
	if !ok {
		return false
	}
	readFloat(m, "diffuseTransmissionFactor", &d.Factor)
	readTextureInfo(m, "diffuseTransmissionTexture", &d.Texture)
	readTextureInfo(m, "diffuseTransmissionColorTexture", &d.ColorTexture)
	readFloat3(m, "diffuseTransmissionColorFactor", &d.ColorFactor)
	return true
}

type subsurfaceExt struct {
	ScatterDistance float64
	ScatterColor    [3]float64
}

func importSubsurface(ext gltf.Extensions, s *subsurfaceExt) bool {
	m, ok := extMap(ext, "KHR_materials_subsurface")
	if !ok {
		// KHR_materials_subsurface was known as KHR_materials_sss during
		// development and a few assets still use the old name
		m, ok = extMap(ext, "KHR_materials_sss")
	}
	if !ok {
		return false
	}
	readFloat(m, "scatterDistance", &s.ScatterDistance)
	readFloat3(m, "scatterColor", &s.ScatterColor)
	return true
}

type anisotropyExt struct {
	Strength float64
	Rotation float64 // radians
	Texture  extTextureInfo
}

func importAnisotropy(ext gltf.Extensions, a *anisotropyExt) bool {
	m, ok := extMap(ext, "KHR_materials_anisotropy")
	if !ok {
		return false
	}
	readFloat(m, "anisotropyStrength", &a.Strength)
	readFloat(m, "anisotropyRotation", &a.Rotation)
	readTextureInfo(m, "anisotropyTexture", &a.Texture)
	return true
}

type volumeScatterExt struct {
	MultiscatterColor       [3]float64
	ScatteringDistanceScale [3]float32
	ScatteringDistance      float32
}

// importVolumeScatter decodes KHR_materials_volume_scatter and
// converts the multiscatter albedo plus the volume extension's
// attenuation into a scattering distance and per-channel distance
// scale. The polynomial single-scattering-albedo fit and the clamping
// constants come from the reference renderer implementation.
func importVolumeScatter(ext gltf.Extensions, vs *volumeScatterExt) bool {
	m, ok := extMap(ext, "KHR_materials_volume_scatter")
	if !ok {
		return false
	}
	readFloat3(m, "multiscatterColor", &vs.MultiscatterColor)

	attenuationDistance := 0.0
	attenuationColor := [3]float64{1, 1, 1}
	if vm, ok := extMap(ext, "KHR_materials_volume"); ok {
		readFloat(vm, "attenuationDistance", &attenuationDistance)
		readFloat3(vm, "attenuationColor", &attenuationColor)
	}

	var singleScatteringAlbedo [3]float32
	for i := 0; i < 3; i++ {
		c := float32(vs.MultiscatterColor[i])
		s := 4.09712 + 4.20863*c - math32.Sqrt(9.59217+41.6808*c+17.7126*c*c)
		singleScatteringAlbedo[i] = 1 - s*s
	}

	// real extinction coefficient implied by the volume attenuation
	var extinction [3]float32
	for i := 0; i < 3; i++ {
		extinction[i] = float32(-math.Log(attenuationColor[i]) / attenuationDistance)
	}

	// synthesize a scattering-only extinction coefficient, clamping the
	// per-channel ratio to 1000x of the minimum
	scatterDistance := math32.Max(1e-3, float32(attenuationDistance))
	minExtinction := 1 / scatterDistance
	extinctionFromScattering := [3]float32{minExtinction, minExtinction, minExtinction}
	maxAlbedo := math32.Max(singleScatteringAlbedo[0],
		math32.Max(singleScatteringAlbedo[1], singleScatteringAlbedo[2]))
	if maxAlbedo > 0 {
		const maxMultiplier = 1e3
		for i := 0; i < 3; i++ {
			m2 := math32.Max(singleScatteringAlbedo[i], maxAlbedo/maxMultiplier)
			extinctionFromScattering[i] *= maxAlbedo / m2
		}
	}

	var scatterDistanceScale [3]float32
	for i := 0; i < 3; i++ {
		scatterDistanceScale[i] = extinctionFromScattering[i] / extinction[i]
	}

	// a scale above 1 is folded into the distance instead
	maxScale := math32.Max(scatterDistanceScale[0],
		math32.Max(scatterDistanceScale[1], scatterDistanceScale[2]))
	if maxScale > 1 {
		scatterDistance *= maxScale
		for i := 0; i < 3; i++ {
			scatterDistanceScale[i] /= maxScale
		}
	}
	vs.ScatteringDistance = scatterDistance
	vs.ScatteringDistanceScale = scatterDistanceScale
	return true
}

func importUnlit(ext gltf.Extensions) bool {
	_, ok := ext["KHR_materials_unlit"]
	return ok
}

// EXT_texture_webp moves the image source off the texture entity.
func importWebPTextureSource(ext gltf.Extensions, imageIndex *int) bool {
	m, ok := extMap(ext, "EXT_texture_webp")
	if !ok {
		return false
	}
	if v, ok := m["source"].(float64); ok {
		*imageIndex = int(v)
		return true
	}
	return false
}
