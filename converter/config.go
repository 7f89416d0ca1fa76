package converter

import (
	"io/ioutil"

	"gopkg.in/yaml.v2"
)

// Config is an optional conversion preset loaded from a yaml file.
type Config struct {
	Import struct {
		Materials  *bool `yaml:"materials"`
		Geometry   *bool `yaml:"geometry"`
		Bitangents bool  `yaml:"bitangents"`
	} `yaml:"import"`
	Export struct {
		TextureReCompress      bool    `yaml:"textureReCompress"`
		TextureBytesThreshold  int64   `yaml:"textureBytesThreshold"`
		TextureResolutionLimit int     `yaml:"textureResolutionLimit"`
		TextureScale           float32 `yaml:"textureScale"`
		AllTracks              bool    `yaml:"allTracks"`
	} `yaml:"export"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var conf Config
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return nil, err
	}
	return &conf, nil
}

func (conf *Config) ApplyImport(options *GLTFToSceneOption) {
	if conf.Import.Materials != nil {
		options.ImportMaterials = *conf.Import.Materials
	}
	if conf.Import.Geometry != nil {
		options.ImportGeometry = *conf.Import.Geometry
	}
	if conf.Import.Bitangents {
		options.ComputeBitangents = true
	}
}

func (conf *Config) ApplyExport(options *SceneToGLTFOption) {
	options.TextureReCompress = conf.Export.TextureReCompress
	if conf.Export.TextureBytesThreshold > 0 {
		options.TextureBytesThreshold = conf.Export.TextureBytesThreshold
	}
	if conf.Export.TextureResolutionLimit > 0 {
		options.TextureResolutionLimit = conf.Export.TextureResolutionLimit
	}
	if conf.Export.TextureScale > 0 {
		options.TextureScale = conf.Export.TextureScale
	}
	if conf.Export.AllTracks {
		options.ExportAllTracks = true
	}
}
