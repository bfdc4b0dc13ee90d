package targets

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/solarcharge/core/model"
)

// File is the on-disk layout of a target definition file.
type File struct {
	Targets []model.ChargingTarget `json:"targets" yaml:"targets"`
}

// LoadFile reads targets from a JSON or YAML file.
func LoadFile(path string) ([]model.ChargingTarget, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	return Decode(f, ext)
}

// Decode reads targets from r in the given format and validates them.
func Decode(r io.Reader, format string) ([]model.ChargingTarget, error) {
	var doc File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
			return nil, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	seen := make(map[string]struct{}, len(doc.Targets))
	for _, t := range doc.Targets {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidTarget, t.ID)
		}
		seen[t.ID] = struct{}{}
	}
	return doc.Targets, nil
}
