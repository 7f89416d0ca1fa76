package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/openscenetools/sceneconv/converter"
	"github.com/openscenetools/sceneconv/gltfutil"
	"github.com/openscenetools/sceneconv/scene"
	"github.com/qmuntal/gltf"
)

func defaultOutputFile(input string) string {
	ext := strings.ToLower(filepath.Ext(input))
	base := input[0 : len(input)-len(ext)]
	return base + ".glb"
}

func printInfo(s *scene.Scene) {
	fmt.Println("scene:", s.Name)
	if s.Metadata.Generator != "" {
		fmt.Println("generator:", s.Metadata.Generator)
	}
	if s.Metadata.Copyright != "" {
		fmt.Println("copyright:", s.Metadata.Copyright)
	}
	fmt.Println("nodes:", len(s.Nodes))
	fmt.Println("meshes:", len(s.Meshes))
	fmt.Println("materials:", len(s.Materials))
	fmt.Println("images:", len(s.Images))
	fmt.Println("lights:", len(s.Lights))
	fmt.Println("cameras:", len(s.Cameras))
	fmt.Println("skeletons:", len(s.Skeletons))
	fmt.Println("animation tracks:", len(s.AnimationTracks))
	for _, t := range s.AnimationTracks {
		if t.HasTimepoints {
			fmt.Printf("  %s: %v .. %v\n", t.Name, t.MinTime, t.MaxTime)
		} else {
			fmt.Printf("  %s: (empty)\n", t.Name)
		}
	}
}

func loadScene(input string, importOpt *converter.GLTFToSceneOption) (*scene.Scene, error) {
	doc, err := gltfutil.Load(input)
	if err != nil {
		return nil, err
	}
	return converter.NewGLTFToSceneConverter(importOpt).Convert(doc, input)
}

func saveScene(s *scene.Scene, output string, exportOpt *converter.SceneToGLTFOption) error {
	ext := strings.ToLower(filepath.Ext(output))
	if ext != ".glb" {
		return fmt.Errorf("unsupported output type: %v", ext)
	}
	doc, err := converter.NewSceneToGLTFConverter(exportOpt).Convert(s)
	if err != nil {
		return err
	}
	return gltf.SaveBinary(doc, output)
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s input.gltf [output.glb]\n", os.Args[0])
		flag.PrintDefaults()
	}
	info := flag.Bool("info", false, "print scene summary and exit")
	assets := flag.String("assets", "", "write texture payloads into dir")
	confFile := flag.String("config", "", "conversion preset (.yaml)")
	noMaterials := flag.Bool("nomaterials", false, "skip materials")
	noGeometry := flag.Bool("nogeometry", false, "skip meshes, skins and animations")
	bitangents := flag.Bool("bitangents", false, "compute bitangents from normals and tangents")
	allTracks := flag.Bool("alltracks", false, "export every animation track")
	recompress := flag.Bool("recompress", false, "re-encode textures")
	texScale := flag.Float64("texscale", 1, "texture scale")
	texLimit := flag.Int("texlimit", 0, "texture resolution limit (0: unlimited)")
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		return
	}
	input := flag.Arg(0)
	output := ""
	if flag.NArg() >= 2 {
		output = flag.Arg(1)
	} else {
		output = defaultOutputFile(input)
	}

	importOpt := &converter.GLTFToSceneOption{
		ImportMaterials:   !*noMaterials,
		ImportGeometry:    !*noGeometry,
		ComputeBitangents: *bitangents,
		SrcDir:            filepath.Dir(input),
	}
	exportOpt := &converter.SceneToGLTFOption{
		TextureReCompress:      *recompress,
		TextureResolutionLimit: *texLimit,
		TextureScale:           float32(*texScale),
		ExportAllTracks:        *allTracks,
	}
	if *confFile != "" {
		conf, err := converter.LoadConfig(*confFile)
		if err != nil {
			log.Fatal(err)
		}
		conf.ApplyImport(importOpt)
		conf.ApplyExport(exportOpt)
	}

	inputExt := strings.ToLower(filepath.Ext(input))
	if inputExt != ".gltf" && inputExt != ".glb" {
		log.Fatal("unsupported input type: ", inputExt)
	}
	s, err := loadScene(input, importOpt)
	if err != nil {
		log.Fatal(err)
	}
	if *assets != "" {
		if err := s.WriteImages(*assets); err != nil {
			log.Fatal(err)
		}
	}
	if *info {
		printInfo(s)
		return
	}
	if err := saveScene(s, output, exportOpt); err != nil {
		log.Fatal(err)
	}
	log.Print("done: ", output)
}
