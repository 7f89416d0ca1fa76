package converter

import (
	"github.com/chewxy/math32"
	"github.com/openscenetools/sceneconv/geom"
	"github.com/openscenetools/sceneconv/scene"
	"github.com/qmuntal/gltf"
)

type specGlossExt struct {
	DiffuseFactor             [4]float64
	DiffuseTexture            extTextureInfo
	SpecularFactor            [3]float64
	GlossinessFactor          float64
	SpecularGlossinessTexture extTextureInfo
}

func importSpecularGlossiness(ext gltf.Extensions) (*specGlossExt, bool) {
	m, ok := extMap(ext, "KHR_materials_pbrSpecularGlossiness")
	if !ok {
		return nil, false
	}
	sg := &specGlossExt{
		DiffuseFactor:             [4]float64{1, 1, 1, 1},
		DiffuseTexture:            newExtTextureInfo(),
		SpecularFactor:            [3]float64{1, 1, 1},
		GlossinessFactor:          1,
		SpecularGlossinessTexture: newExtTextureInfo(),
	}
	readFloat4(m, "diffuseFactor", &sg.DiffuseFactor)
	readTextureInfo(m, "diffuseTexture", &sg.DiffuseTexture)
	readFloat3(m, "specularFactor", &sg.SpecularFactor)
	readFloat(m, "glossinessFactor", &sg.GlossinessFactor)
	readTextureInfo(m, "specularGlossinessTexture", &sg.SpecularGlossinessTexture)
	return sg, true
}

const dielectricSpecular = 0.04

func perceivedBrightness(r, g, b float32) float32 {
	return math32.Sqrt(0.299*r*r + 0.587*g*g + 0.114*b*b)
}

func solveMetallic(diffuseBrightness, specularBrightness, oneMinusSpecularStrength float32) float32 {
	if specularBrightness < dielectricSpecular {
		return 0
	}
	const a = float32(dielectricSpecular)
	b := diffuseBrightness*oneMinusSpecularStrength/(1-a) + specularBrightness - 2*a
	cc := a - specularBrightness
	d := math32.Max(b*b-4*a*cc, 0)
	return clamp01((-b + math32.Sqrt(d)) / (2 * a))
}

func clamp01(v float32) float32 {
	return math32.Max(0, math32.Min(1, v))
}

// specGlossToMetallicRoughness converts constant specular-glossiness
// factors to the metallic-roughness parameterization (Khronos
// reference conversion).
func specGlossToMetallicRoughness(diffuse [4]float64, specular [3]float64, glossiness float64) (baseColor [3]float32, metallic, roughness float32) {
	d := [3]float32{float32(diffuse[0]), float32(diffuse[1]), float32(diffuse[2])}
	s := [3]float32{float32(specular[0]), float32(specular[1]), float32(specular[2])}
	oneMinusSpecularStrength := 1 - math32.Max(s[0], math32.Max(s[1], s[2]))
	metallic = solveMetallic(
		perceivedBrightness(d[0], d[1], d[2]),
		perceivedBrightness(s[0], s[1], s[2]),
		oneMinusSpecularStrength)

	const epsilon = 1e-6
	for i := 0; i < 3; i++ {
		fromDiffuse := d[i] * oneMinusSpecularStrength / (1 - dielectricSpecular) / math32.Max(1-metallic, epsilon)
		fromSpecular := (s[i] - dielectricSpecular*(1-metallic)) / math32.Max(metallic, epsilon)
		baseColor[i] = clamp01(fromDiffuse + metallic*metallic*(fromSpecular-fromDiffuse))
	}
	roughness = 1 - float32(glossiness)
	return baseColor, metallic, roughness
}

func (c *gltfToScene) importSpecularGlossinessMaterial(m *gltf.Material, sg *specGlossExt, mat *scene.Material) {
	translucent := m.AlphaMode == gltf.AlphaBlend || m.AlphaMode == gltf.AlphaMask
	diffuseRGB := [3]float64{sg.DiffuseFactor[0], sg.DiffuseFactor[1], sg.DiffuseFactor[2]}
	hasDiffuseTexture := c.importTexture(&mat.DiffuseColor, sg.DiffuseTexture, "rgb", scene.ColorspaceSRGB)
	if hasDiffuseTexture {
		importScale3(&mat.DiffuseColor, diffuseRGB)
		if translucent {
			copyTextureSettings(&mat.DiffuseColor, &mat.Opacity, "a", scene.ColorspaceRaw)
			importScale1(&mat.Opacity, sg.DiffuseFactor[3])
		}
	} else if translucent {
		importValue1(&mat.Opacity, sg.DiffuseFactor[3], 1)
	}
	if c.importTexture(&mat.SpecularColor, sg.SpecularGlossinessTexture, "rgb", scene.ColorspaceSRGB) {
		importScale3(&mat.SpecularColor, sg.SpecularFactor)
		// roughness = 1 - a * glossiness, expressed through scale/bias
		copyTextureSettings(&mat.SpecularColor, &mat.Roughness, "a", scene.ColorspaceRaw)
		g := float32(sg.GlossinessFactor)
		mat.Roughness.Scale = geom.NewVector4(-g, -g, -g, -g)
		mat.Roughness.Bias = geom.NewVector4(1, 1, 1, 1)
		if hasDiffuseTexture {
			return
		}
		importValue3(&mat.DiffuseColor, diffuseRGB, [3]float64{1, 1, 1})
		return
	}
	// constants only: convert to metallic-roughness
	baseColor, metallic, roughness := specGlossToMetallicRoughness(sg.DiffuseFactor, sg.SpecularFactor, sg.GlossinessFactor)
	if !hasDiffuseTexture {
		mat.DiffuseColor.SetValue(geom.NewVector3(baseColor[0], baseColor[1], baseColor[2]))
	}
	mat.Metallic.SetValue(metallic)
	mat.Roughness.SetValue(roughness)
}
