package scene

import "github.com/openscenetools/sceneconv/geom"

type Wrap string

const (
	WrapRepeat Wrap = "repeat"
	WrapClamp  Wrap = "clamp"
	WrapMirror Wrap = "mirror"
)

type Colorspace string

const (
	ColorspaceRaw  Colorspace = "raw"
	ColorspaceSRGB Colorspace = "sRGB"
)

// Input is one material channel: either a constant value or a texture
// reference, never both. Value holds float32, *geom.Vector3 or
// *geom.Vector4 depending on the channel arity.
type Input struct {
	Image int
	Value interface{}

	UVIndex    int
	WrapS      Wrap
	WrapT      Wrap
	MinFilter  string
	MagFilter  string
	Channel    string // "r", "g", "b", "a" or "rgb"
	Colorspace Colorspace
	Scale      *geom.Vector4
	Bias       *geom.Vector4

	UVRotation    float32 // degrees, counter-clockwise
	UVScale       *geom.Vector2
	UVTranslation *geom.Vector2
}

func NewInput() Input {
	return Input{Image: -1}
}

func (in *Input) Used() bool {
	return in.Image >= 0 || in.Value != nil
}

func (in *Input) SetValue(v interface{}) {
	in.Image = -1
	in.Value = v
}

// Material is a flat record of shading inputs. Importers translate
// their source shading model into these channels; unused channels stay
// empty (Used() == false).
type Material struct {
	Name string

	DiffuseColor     Input
	Opacity          Input
	OpacityThreshold Input
	Roughness        Input
	Metallic         Input
	Normal           Input
	NormalScale      Input
	Occlusion        Input
	EmissiveColor    Input

	SpecularLevel Input
	SpecularColor Input
	Ior           Input

	AnisotropyLevel Input
	AnisotropyAngle Input

	Clearcoat          Input
	ClearcoatRoughness Input
	ClearcoatIor       Input
	ClearcoatSpecular  Input
	ClearcoatNormal    Input
	ClearcoatColor     Input

	SheenColor     Input
	SheenRoughness Input

	Transmission Input

	VolumeThickness    Input
	AbsorptionDistance Input
	AbsorptionColor    Input

	ScatteringDistance      Input
	ScatteringColor         Input
	ScatteringDistanceScale Input

	SubsurfaceWeight Input
	SubsurfaceColor  Input

	// set when the clearcoat lobe was repurposed to carry transmission
	// tinting, so exporters can reverse the substitution
	ClearcoatModelsTransmissionTint bool

	IsUnlit     bool
	DoubleSided bool
}

func NewMaterial(name string) *Material {
	m := &Material{Name: name}
	m.DiffuseColor = NewInput()
	m.Opacity = NewInput()
	m.OpacityThreshold = NewInput()
	m.Roughness = NewInput()
	m.Metallic = NewInput()
	m.Normal = NewInput()
	m.NormalScale = NewInput()
	m.Occlusion = NewInput()
	m.EmissiveColor = NewInput()
	m.SpecularLevel = NewInput()
	m.SpecularColor = NewInput()
	m.Ior = NewInput()
	m.AnisotropyLevel = NewInput()
	m.AnisotropyAngle = NewInput()
	m.Clearcoat = NewInput()
	m.ClearcoatRoughness = NewInput()
	m.ClearcoatIor = NewInput()
	m.ClearcoatSpecular = NewInput()
	m.ClearcoatNormal = NewInput()
	m.ClearcoatColor = NewInput()
	m.SheenColor = NewInput()
	m.SheenRoughness = NewInput()
	m.Transmission = NewInput()
	m.VolumeThickness = NewInput()
	m.AbsorptionDistance = NewInput()
	m.AbsorptionColor = NewInput()
	m.ScatteringDistance = NewInput()
	m.ScatteringColor = NewInput()
	m.ScatteringDistanceScale = NewInput()
	m.SubsurfaceWeight = NewInput()
	m.SubsurfaceColor = NewInput()
	return m
}
