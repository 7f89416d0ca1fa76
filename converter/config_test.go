package converter

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	conf := `
import:
  materials: false
  bitangents: true
export:
  textureScale: 0.5
  textureResolutionLimit: 1024
  allTracks: true
`
	path := filepath.Join(t.TempDir(), "conf.yaml")
	if err := os.WriteFile(path, []byte(conf), 0644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	importOpt := &GLTFToSceneOption{ImportMaterials: true, ImportGeometry: true}
	c.ApplyImport(importOpt)
	if importOpt.ImportMaterials {
		t.Error("materials not disabled")
	}
	if !importOpt.ImportGeometry {
		t.Error("geometry default changed")
	}
	if !importOpt.ComputeBitangents {
		t.Error("bitangents not enabled")
	}
	exportOpt := &SceneToGLTFOption{TextureScale: 1}
	c.ApplyExport(exportOpt)
	if exportOpt.TextureScale != 0.5 || exportOpt.TextureResolutionLimit != 1024 {
		t.Error("export options: ", exportOpt)
	}
	if !exportOpt.ExportAllTracks {
		t.Error("all tracks not enabled")
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/conf.yaml"); err == nil {
		t.Error("missing file accepted")
	}
}
