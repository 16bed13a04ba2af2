package genome

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/cellsim/internal/geom"
)

// Decode parses a genome document. JSON is a subset of YAML, so one decoder
// serves both encodings.
func Decode(data []byte) (RawGenome, error) {
	var raw RawGenome
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RawGenome{}, fmt.Errorf("decode genome: %w", err)
	}
	return raw, nil
}

// ReadFile decodes and validates the genome stored at path.
func ReadFile(path string) (*Genome, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Load(raw)
}

// WriteFile stores raw as YAML for .yaml/.yml paths and as indented JSON
// otherwise.
func WriteFile(path string, raw RawGenome) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(raw)
	default:
		data, err = json.MarshalIndent(raw, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Default returns the single self-splitting mode genome new sessions start
// with.
func Default() *Genome {
	return MustLoad(RawGenome{
		Name:        "Default Genome",
		InitialMode: 0,
		Modes: []RawMode{{
			Name:          "Mode 0",
			Color:         geom.V(0.5, 0.7, 1.0),
			SplitMass:     2.0,
			SplitInterval: 10.0,
			GrowthRate:    0.1,
			MaxAdhesions:  10,
		}},
	})
}
