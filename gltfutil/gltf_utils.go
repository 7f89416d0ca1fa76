// Package gltfutil wraps qmuntal/gltf with typed accessor reads and
// payload helpers shared by the converters.
package gltfutil

import (
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"
)

func Load(path string) (*gltf.Document, error) {
	return gltf.Open(path)
}

// ElementCount returns the declared element count of an accessor. The
// caller validates the index; this is just the count query.
func ElementCount(doc *gltf.Document, accessor uint32) int {
	return int(doc.Accessors[accessor].Count)
}

func normInt8(v int8) float32 {
	f := float32(v) / 127
	if f < -1 {
		f = -1
	}
	return f
}

func normInt16(v int16) float32 {
	f := float32(v) / 32767
	if f < -1 {
		f = -1
	}
	return f
}

// ReadFloats reads a SCALAR accessor as float32, converting integer
// component types with the accessor's normalization.
func ReadFloats(doc *gltf.Document, acc *gltf.Accessor) ([]float32, error) {
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, err
	}
	switch v := data.(type) {
	case []float32:
		return v, nil
	case []int8:
		dst := make([]float32, len(v))
		for i, c := range v {
			if acc.Normalized {
				dst[i] = normInt8(c)
			} else {
				dst[i] = float32(c)
			}
		}
		return dst, nil
	case []uint8:
		dst := make([]float32, len(v))
		for i, c := range v {
			if acc.Normalized {
				dst[i] = float32(c) / 255
			} else {
				dst[i] = float32(c)
			}
		}
		return dst, nil
	case []int16:
		dst := make([]float32, len(v))
		for i, c := range v {
			if acc.Normalized {
				dst[i] = normInt16(c)
			} else {
				dst[i] = float32(c)
			}
		}
		return dst, nil
	case []uint16:
		dst := make([]float32, len(v))
		for i, c := range v {
			if acc.Normalized {
				dst[i] = float32(c) / 65535
			} else {
				dst[i] = float32(c)
			}
		}
		return dst, nil
	case []uint32:
		dst := make([]float32, len(v))
		for i, c := range v {
			dst[i] = float32(c)
		}
		return dst, nil
	}
	return nil, fmt.Errorf("unexpected scalar accessor data: %T", data)
}

// ReadVec2 reads a VEC2 accessor as float32 pairs.
func ReadVec2(doc *gltf.Document, acc *gltf.Accessor) ([][2]float32, error) {
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, err
	}
	switch v := data.(type) {
	case [][2]float32:
		return v, nil
	case [][2]uint8:
		dst := make([][2]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = float32(c[j]) / 255
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][2]uint16:
		dst := make([][2]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = float32(c[j]) / 65535
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][2]int8:
		dst := make([][2]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = normInt8(c[j])
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][2]int16:
		dst := make([][2]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = normInt16(c[j])
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("unexpected vec2 accessor data: %T", data)
}

// ReadIndices reads a SCALAR index accessor.
func ReadIndices(doc *gltf.Document, acc *gltf.Accessor) ([]uint32, error) {
	return modeler.ReadIndices(doc, acc, nil)
}

// ReadVec3 reads a VEC3 accessor as float32 triplets.
func ReadVec3(doc *gltf.Document, acc *gltf.Accessor) ([][3]float32, error) {
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, err
	}
	switch v := data.(type) {
	case [][3]float32:
		return v, nil
	case [][3]uint8:
		dst := make([][3]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = float32(c[j]) / 255
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][3]uint16:
		dst := make([][3]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = float32(c[j]) / 65535
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][3]int8:
		dst := make([][3]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = normInt8(c[j])
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][3]int16:
		dst := make([][3]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = normInt16(c[j])
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("unexpected vec3 accessor data: %T", data)
}

// ReadVec4 reads a VEC4 accessor as float32 quadruplets.
func ReadVec4(doc *gltf.Document, acc *gltf.Accessor) ([][4]float32, error) {
	data, err := modeler.ReadAccessor(doc, acc, nil)
	if err != nil {
		return nil, err
	}
	switch v := data.(type) {
	case [][4]float32:
		return v, nil
	case [][4]uint8:
		dst := make([][4]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = float32(c[j]) / 255
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][4]uint16:
		dst := make([][4]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = float32(c[j]) / 65535
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][4]int8:
		dst := make([][4]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = normInt8(c[j])
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	case [][4]int16:
		dst := make([][4]float32, len(v))
		for i, c := range v {
			for j := range c {
				if acc.Normalized {
					dst[i][j] = normInt16(c[j])
				} else {
					dst[i][j] = float32(c[j])
				}
			}
		}
		return dst, nil
	}
	return nil, fmt.Errorf("unexpected vec4 accessor data: %T", data)
}

// ReadMat4 reads a MAT4 float accessor from the raw buffer bytes.
// Sparse matrix accessors are not supported.
func ReadMat4(doc *gltf.Document, acc *gltf.Accessor) ([][16]float32, error) {
	if acc.ComponentType != gltf.ComponentFloat {
		return nil, fmt.Errorf("unexpected mat4 component type: %v", acc.ComponentType)
	}
	if acc.BufferView == nil {
		return make([][16]float32, acc.Count), nil
	}
	bufferView := doc.BufferViews[*acc.BufferView]
	data := doc.Buffers[bufferView.Buffer].Data
	stride := int(bufferView.ByteStride)
	if stride == 0 {
		stride = 64
	}
	offset := int(bufferView.ByteOffset + acc.ByteOffset)
	dst := make([][16]float32, acc.Count)
	for i := range dst {
		p := offset + i*stride
		if p+64 > len(data) {
			return nil, fmt.Errorf("mat4 accessor out of buffer range: %d", i)
		}
		for j := 0; j < 16; j++ {
			dst[i][j] = math.Float32frombits(binary.LittleEndian.Uint32(data[p+j*4:]))
		}
	}
	return dst, nil
}

// ImageData returns the raw payload of an image from its buffer view,
// embedded data uri, or a file next to the document.
func ImageData(doc *gltf.Document, img *gltf.Image, srcDir string) ([]byte, error) {
	if img.BufferView != nil {
		bufferView := doc.BufferViews[*img.BufferView]
		data := doc.Buffers[bufferView.Buffer].Data
		if int(bufferView.ByteOffset+bufferView.ByteLength) > len(data) {
			return nil, fmt.Errorf("image buffer view out of range: %v", img.Name)
		}
		return data[bufferView.ByteOffset : bufferView.ByteOffset+bufferView.ByteLength], nil
	}
	if strings.HasPrefix(img.URI, "data:") {
		return img.MarshalData()
	}
	if img.URI != "" {
		return os.ReadFile(filepath.Join(srcDir, img.URI))
	}
	return nil, fmt.Errorf("image has no payload: %v", img.Name)
}

// DetectImageFormat sniffs the payload, falling back to the mime type.
func DetectImageFormat(data []byte, mimeType string) string {
	if t, err := filetype.Match(data); err == nil && t.Extension != "" && t.Extension != "unknown" {
		return t.Extension
	}
	if ext := strings.TrimPrefix(mimeType, "image/"); ext != mimeType && ext != "" {
		return ext
	}
	return ""
}

// ToSingleFile embeds external buffers and file-uri images so the
// document can be saved as a self-contained glb.
func ToSingleFile(doc *gltf.Document, srcDir string) error {
	for _, b := range doc.Buffers {
		b.URI = ""
	}
	for _, m := range doc.Images {
		if m.BufferView == nil && m.URI != "" && !strings.HasPrefix(m.URI, "data:") {
			buf, err := os.ReadFile(filepath.Join(srcDir, m.URI))
			if err != nil {
				log.Print(err)
				continue
			}
			if m.MimeType == "" {
				if t, err := filetype.Match(buf); err == nil && t.MIME.Value != "" {
					m.MimeType = t.MIME.Value
				} else {
					m.MimeType = "image/png"
				}
			}
			m.BufferView = gltf.Index(modeler.WriteBufferView(doc, gltf.TargetNone, buf))
			m.URI = ""
		}
	}
	return nil
}
