package export

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/markrec/pkg/persist"
)

// artifactInfix distinguishes the annotation document from the session output.
const artifactInfix = ".markers"

// Event is one annotation in the primary artifact.
type Event struct {
	Description string  `yaml:"description"`
	Source      string  `yaml:"source"`
	Onset       float64 `yaml:"onset"`
	Duration    float64 `yaml:"duration"`
}

// Artifact is the logical content handed to an ArtifactWriter.
type Artifact struct {
	Start       time.Time `yaml:"start"`
	Sources     []string  `yaml:"sources"`
	Events      []Event   `yaml:"events"`
	DeviceStart float64   `yaml:"device_start"`
	Duration    float64   `yaml:"duration"`
}

// ArtifactWriter persists the primary artifact for outputPath and returns the written file.
type ArtifactWriter interface {
	Path(outputPath string) string
	WriteArtifact(outputPath string, artifact Artifact) (string, error)
}

// YAMLWriter writes the artifact as a YAML annotation document next to the
// output path, optionally LZ4-framed.
type YAMLWriter struct {
	codec persist.Codec
}

// NewYAMLWriter returns the default artifact writer.
func NewYAMLWriter(compress bool) *YAMLWriter {
	var codec persist.Codec = persist.NewYAMLCodec()
	if compress {
		codec = persist.NewLZ4Codec(codec)
	}

	return &YAMLWriter{codec: codec}
}

// Path returns where the artifact for outputPath is written.
func (w *YAMLWriter) Path(outputPath string) string {
	return persist.Path(filepath.Dir(outputPath), stem(outputPath)+artifactInfix, w.codec)
}

// WriteArtifact implements ArtifactWriter.
func (w *YAMLWriter) WriteArtifact(outputPath string, artifact Artifact) (string, error) {
	err := persist.SaveState(filepath.Dir(outputPath), stem(outputPath)+artifactInfix, w.codec, artifact)
	if err != nil {
		return "", err
	}

	return w.Path(outputPath), nil
}

// Load reads an artifact written by WriteArtifact.
func (w *YAMLWriter) Load(outputPath string) (Artifact, error) {
	var artifact Artifact

	err := persist.LoadFile(w.Path(outputPath), w.codec, &artifact)

	return artifact, err
}

func stem(path string) string {
	base := filepath.Base(path)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
