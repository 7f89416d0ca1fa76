package converter

import (
	"math"
	"testing"

	"github.com/openscenetools/sceneconv/geom"
	"github.com/qmuntal/gltf"
)

func materialDoc(m *gltf.Material) *gltf.Document {
	doc := newTestDoc()
	doc.Materials = append(doc.Materials, m)
	return doc
}

func TestMaterialDefaults(t *testing.T) {
	s := convertForTest(t, materialDoc(&gltf.Material{Name: "default"}))
	if len(s.Materials) != 1 {
		t.Fatal("materials: ", len(s.Materials))
	}
	mat := s.Materials[0]
	if mat.Name != "default" {
		t.Error("name: ", mat.Name)
	}
	// factors equal to their defaults leave the inputs unbound
	if mat.DiffuseColor.Used() {
		t.Error("diffuse bound: ", mat.DiffuseColor.Value)
	}
	if mat.Metallic.Used() || mat.Roughness.Used() {
		t.Error("metallic/roughness bound")
	}
	if mat.Opacity.Used() || mat.OpacityThreshold.Used() {
		t.Error("opacity bound")
	}
}

func TestMaterialFactors(t *testing.T) {
	factor := [4]float32{0.5, 0.25, 0.125, 1}
	metallic := float32(0.5)
	roughness := float32(0.25)
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name: "factors",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &factor,
			MetallicFactor:  &metallic,
			RoughnessFactor: &roughness,
		},
	}))
	mat := s.Materials[0]
	v, ok := mat.DiffuseColor.Value.(*geom.Vector3)
	if !ok || v.X != 0.5 || v.Y != 0.25 || v.Z != 0.125 {
		t.Error("diffuse: ", mat.DiffuseColor.Value)
	}
	if m, ok := mat.Metallic.Value.(float32); !ok || m != 0.5 {
		t.Error("metallic: ", mat.Metallic.Value)
	}
	if r, ok := mat.Roughness.Value.(float32); !ok || r != 0.25 {
		t.Error("roughness: ", mat.Roughness.Value)
	}
}

func TestMaterialAlpha(t *testing.T) {
	cutoff := float32(0.25)
	factor := [4]float32{1, 1, 1, 0.5}
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name:        "masked",
		AlphaMode:   gltf.AlphaMask,
		AlphaCutoff: &cutoff,
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &factor,
		},
	}))
	mat := s.Materials[0]
	if v, ok := mat.Opacity.Value.(float32); !ok || v != 0.5 {
		t.Error("opacity: ", mat.Opacity.Value)
	}
	if v, ok := mat.OpacityThreshold.Value.(float32); !ok || v != 0.25 {
		t.Error("threshold: ", mat.OpacityThreshold.Value)
	}
}

func TestMaterialUnlit(t *testing.T) {
	factor := [4]float32{0.5, 0.5, 0.5, 1}
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name: "unlit",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &factor,
		},
		Extensions: gltf.Extensions{
			"KHR_materials_unlit": map[string]interface{}{},
		},
	}))
	mat := s.Materials[0]
	if !mat.IsUnlit {
		t.Fatal("not unlit")
	}
	if mat.DiffuseColor.Used() {
		t.Error("diffuse still bound")
	}
	v, ok := mat.EmissiveColor.Value.(*geom.Vector3)
	if !ok || v.X != 0.5 {
		t.Error("emissive: ", mat.EmissiveColor.Value)
	}
}

func TestMaterialEmissiveStrength(t *testing.T) {
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name:           "hot",
		EmissiveFactor: [3]float32{1, 0.5, 0},
		Extensions: gltf.Extensions{
			"KHR_materials_emissive_strength": map[string]interface{}{
				"emissiveStrength": 4.0,
			},
		},
	}))
	mat := s.Materials[0]
	v, ok := mat.EmissiveColor.Value.(*geom.Vector3)
	if !ok || v.X != 4 || v.Y != 2 || v.Z != 0 {
		t.Error("emissive: ", mat.EmissiveColor.Value)
	}
}

func TestTransmissionTint(t *testing.T) {
	factor := [4]float32{0.5, 0.25, 0.125, 1}
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name: "glass",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &factor,
		},
		Extensions: gltf.Extensions{
			"KHR_materials_transmission": map[string]interface{}{
				"transmissionFactor": 1.0,
			},
		},
	}))
	mat := s.Materials[0]
	if !mat.ClearcoatModelsTransmissionTint {
		t.Fatal("tint not modeled through clearcoat")
	}
	if v, ok := mat.Clearcoat.Value.(float32); !ok || v != 1 {
		t.Error("clearcoat: ", mat.Clearcoat.Value)
	}
	v, ok := mat.ClearcoatColor.Value.(*geom.Vector3)
	if !ok || v.X != 0.5 || v.Y != 0.25 {
		t.Error("clearcoat color: ", mat.ClearcoatColor.Value)
	}
}

func TestTransmissionTintClearcoatInUse(t *testing.T) {
	factor := [4]float32{0.5, 0.5, 0.5, 1}
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name: "coated_glass",
		PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
			BaseColorFactor: &factor,
		},
		Extensions: gltf.Extensions{
			"KHR_materials_transmission": map[string]interface{}{
				"transmissionFactor": 1.0,
			},
			"KHR_materials_clearcoat": map[string]interface{}{
				"clearcoatFactor": 0.5,
			},
		},
	}))
	mat := s.Materials[0]
	if mat.ClearcoatModelsTransmissionTint {
		t.Fatal("clearcoat overwritten")
	}
	if v, ok := mat.Clearcoat.Value.(float32); !ok || v != 0.5 {
		t.Error("clearcoat: ", mat.Clearcoat.Value)
	}
	if v, ok := mat.Transmission.Value.(float32); !ok || v != 1 {
		t.Error("transmission: ", mat.Transmission.Value)
	}
}

func TestSolveMetallic(t *testing.T) {
	if m := solveMetallic(0, 1, 0); math.Abs(float64(m)-1) > 1e-5 {
		t.Error("pure specular: ", m)
	}
	if m := solveMetallic(0.5, 0.02, 0.96); m != 0 {
		t.Error("dielectric: ", m)
	}
}

func TestSpecGlossConversion(t *testing.T) {
	const eps = 1e-5
	baseColor, metallic, roughness := specGlossToMetallicRoughness(
		[4]float64{0.5, 0.5, 0.5, 1}, [3]float64{0.04, 0.04, 0.04}, 0.6)
	if math.Abs(float64(metallic)) > eps {
		t.Error("metallic: ", metallic)
	}
	if math.Abs(float64(roughness)-0.4) > eps {
		t.Error("roughness: ", roughness)
	}
	for i := 0; i < 3; i++ {
		if math.Abs(float64(baseColor[i])-0.5) > 1e-4 {
			t.Error("base color: ", baseColor)
		}
	}
}

func TestSpecGlossMaterial(t *testing.T) {
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name: "legacy",
		Extensions: gltf.Extensions{
			"KHR_materials_pbrSpecularGlossiness": map[string]interface{}{
				"diffuseFactor":    []interface{}{0.5, 0.5, 0.5, 1.0},
				"specularFactor":   []interface{}{0.04, 0.04, 0.04},
				"glossinessFactor": 0.6,
			},
		},
	}))
	mat := s.Materials[0]
	if r, ok := mat.Roughness.Value.(float32); !ok || math.Abs(float64(r)-0.4) > 1e-5 {
		t.Error("roughness: ", mat.Roughness.Value)
	}
	if m, ok := mat.Metallic.Value.(float32); !ok || m != 0 {
		t.Error("metallic: ", mat.Metallic.Value)
	}
	if v, ok := mat.DiffuseColor.Value.(*geom.Vector3); !ok || math.Abs(float64(v.X)-0.5) > 1e-4 {
		t.Error("diffuse: ", mat.DiffuseColor.Value)
	}
}

func TestVolumeScatter(t *testing.T) {
	const eps = 1e-3
	ext := gltf.Extensions{
		"KHR_materials_volume_scatter": map[string]interface{}{
			"multiscatterColor": []interface{}{1.0, 1.0, 1.0},
		},
		"KHR_materials_volume": map[string]interface{}{
			"attenuationDistance": 2.0,
			"attenuationColor":    []interface{}{0.5, 0.5, 0.5},
		},
	}
	var vs volumeScatterExt
	if !importVolumeScatter(ext, &vs) {
		t.Fatal("extension not decoded")
	}
	// extinction -ln(0.5)/2 vs a scattering-only extinction of 1/2;
	// the >1 ratio folds into the distance
	expected := 2 * (0.5 / (math.Ln2 / 2))
	if math.Abs(float64(vs.ScatteringDistance)-expected) > eps {
		t.Error("distance: ", vs.ScatteringDistance, expected)
	}
	for i := 0; i < 3; i++ {
		if math.Abs(float64(vs.ScatteringDistanceScale[i])-1) > eps {
			t.Error("scale: ", vs.ScatteringDistanceScale)
		}
	}
}

func TestVolumeAbsorption(t *testing.T) {
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name: "volume",
		Extensions: gltf.Extensions{
			"KHR_materials_volume": map[string]interface{}{
				"thicknessFactor":     0.5,
				"attenuationDistance": 2.0,
				"attenuationColor":    []interface{}{0.5, 0.25, 0.125},
			},
		},
	}))
	mat := s.Materials[0]
	if v, ok := mat.VolumeThickness.Value.(float32); !ok || v != 0.5 {
		t.Error("thickness: ", mat.VolumeThickness.Value)
	}
	if v, ok := mat.AbsorptionDistance.Value.(float32); !ok || v != 2 {
		t.Error("distance: ", mat.AbsorptionDistance.Value)
	}
	if v, ok := mat.AbsorptionColor.Value.(*geom.Vector3); !ok || v.Y != 0.25 {
		t.Error("color: ", mat.AbsorptionColor.Value)
	}
}

func TestMaterialSheen(t *testing.T) {
	s := convertForTest(t, materialDoc(&gltf.Material{
		Name: "velvet",
		Extensions: gltf.Extensions{
			"KHR_materials_sheen": map[string]interface{}{
				"sheenColorFactor":     []interface{}{0.5, 0.25, 0.125},
				"sheenRoughnessFactor": 0.5,
			},
		},
	}))
	mat := s.Materials[0]
	v, ok := mat.SheenColor.Value.(*geom.Vector3)
	if !ok || v.X != 0.5 || v.Y != 0.25 || v.Z != 0.125 {
		t.Error("sheen color: ", mat.SheenColor.Value)
	}
	if r, ok := mat.SheenRoughness.Value.(float32); !ok || r != 0.5 {
		t.Error("sheen roughness: ", mat.SheenRoughness.Value)
	}
}
