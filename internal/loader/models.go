package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/surge-downloader/localcopy/internal/core"
)

// Model formats recognised by DecodeModel.
const (
	FormatGLB  = "glb"
	FormatGLTF = "gltf"
	FormatOBJ  = "obj"
)

const (
	glbMagic     = 0x46546C67 // "glTF"
	glbChunkJSON = 0x4E4F534A // "JSON"
	glbHeaderLen = 12
)

var errNotModel = errors.New("unrecognised model format")

// Model summarises a parsed 3D model file.
type Model struct {
	Path     string
	Format   string
	Version  string // glTF asset version
	Meshes   int
	Vertices int // OBJ only
	Faces    int // OBJ only
}

// Models loads remote 3D models. Parse failures are reported as
// core.KindDecodeFailed; the downloaded file stays completed.
type Models struct {
	resolver Resolver
}

func NewModels(r Resolver) *Models {
	return &Models{resolver: r}
}

func (l *Models) Load(ctx context.Context, locator string) (*Model, error) {
	path, err := l.resolver.Resolve(ctx, locator)
	if err != nil {
		return nil, err
	}
	m, err := DecodeModel(path)
	if err != nil {
		return nil, core.NewError(core.KindDecodeFailed, locator, err)
	}
	return m, nil
}

// DecodeModel parses the binary glTF, glTF JSON or Wavefront OBJ file at
// path.
func DecodeModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m *Model
	switch {
	case len(data) >= 4 && binary.LittleEndian.Uint32(data) == glbMagic:
		m, err = parseGLB(data)
	case bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n\uFEFF"), []byte("{")):
		m, err = parseGLTF(data)
	default:
		m, err = parseOBJ(bytes.NewReader(data))
	}
	if err != nil {
		return nil, err
	}
	m.Path = path
	return m, nil
}

type gltfDocument struct {
	Asset *struct {
		Version string `json:"version"`
	} `json:"asset"`
	Meshes []json.RawMessage `json:"meshes"`
}

func parseGLTF(data []byte) (*Model, error) {
	var doc gltfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gltf: %w", err)
	}
	if doc.Asset == nil || doc.Asset.Version == "" {
		return nil, errors.New("gltf: missing asset.version")
	}
	return &Model{Format: FormatGLTF, Version: doc.Asset.Version, Meshes: len(doc.Meshes)}, nil
}

func parseGLB(data []byte) (*Model, error) {
	if len(data) < glbHeaderLen+8 {
		return nil, errors.New("glb: truncated header")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	length := binary.LittleEndian.Uint32(data[8:12])
	if version != 2 {
		return nil, fmt.Errorf("glb: unsupported container version %d", version)
	}
	if int(length) != len(data) {
		return nil, fmt.Errorf("glb: header declares %d bytes, file has %d", length, len(data))
	}

	chunkLen := binary.LittleEndian.Uint32(data[12:16])
	chunkType := binary.LittleEndian.Uint32(data[16:20])
	if chunkType != glbChunkJSON {
		return nil, errors.New("glb: first chunk is not JSON")
	}
	end := glbHeaderLen + 8 + int(chunkLen)
	if end > len(data) {
		return nil, errors.New("glb: JSON chunk overruns file")
	}

	m, err := parseGLTF(data[glbHeaderLen+8 : end])
	if err != nil {
		return nil, err
	}
	m.Format = FormatGLB
	return m, nil
}

func parseOBJ(r io.Reader) (*Model, error) {
	m := &Model{Format: FormatOBJ}
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj line %d: vertex needs 3 coordinates", line)
			}
			m.Vertices++
		case "f":
			if len(fields) < 4 {
				return nil, fmt.Errorf("obj line %d: face needs 3 vertices", line)
			}
			m.Faces++
		case "o", "g":
			m.Meshes++
		case "vt", "vn", "vp", "l", "s", "mtllib", "usemtl":
		default:
			return nil, fmt.Errorf("obj line %d: %w", line, errNotModel)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if m.Vertices == 0 {
		return nil, errNotModel
	}
	if m.Meshes == 0 {
		m.Meshes = 1
	}
	return m, nil
}
