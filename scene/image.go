package scene

import (
	"log"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
)

// Image is a texture payload. Data stays in memory; nothing is written
// to disk unless the caller asks for an assets directory.
type Image struct {
	Name   string
	URI    string
	Format string // file extension without the dot, e.g. "png"
	Data   []byte
}

// FileName returns the name the image would be written under.
func (img *Image) FileName() string {
	if img.URI != "" {
		return filepath.Base(img.URI)
	}
	ext := img.Format
	if ext == "" {
		if t, err := filetype.Match(img.Data); err == nil && t.Extension != "" {
			ext = t.Extension
		} else {
			ext = "bin"
		}
	}
	return img.Name + "." + ext
}

// WriteImages writes all image payloads into dir, creating it if
// needed. Images without payload bytes are skipped with a log message.
func (s *Scene) WriteImages(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, img := range s.Images {
		if len(img.Data) == 0 {
			log.Println("no payload for image:", img.Name)
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, img.FileName()), img.Data, 0644); err != nil {
			return err
		}
	}
	return nil
}
