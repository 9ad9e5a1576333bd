package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/induction/core/model"
)

// LoadSnapshot reads a JSON or YAML snapshot file, chosen by extension, and
// validates it.
func LoadSnapshot(path string) (model.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var format string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	case ".json", "":
		format = "json"
	default:
		return model.Snapshot{}, fmt.Errorf("unsupported snapshot format %q", filepath.Ext(path))
	}
	return DecodeSnapshot(data, format)
}

// DecodeSnapshot parses a snapshot in the given format ("json" or "yaml") and
// validates it.
func DecodeSnapshot(data []byte, format string) (model.Snapshot, error) {
	var s model.Snapshot
	switch format {
	case "yaml":
		if err := yaml.Unmarshal(data, &s); err != nil {
			return model.Snapshot{}, &model.ValidationError{Reason: fmt.Sprintf("decode yaml: %v", err)}
		}
	case "json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&s); err != nil {
			return model.Snapshot{}, &model.ValidationError{Reason: fmt.Sprintf("decode json: %v", err)}
		}
	default:
		return model.Snapshot{}, fmt.Errorf("unsupported snapshot format %q", format)
	}
	if err := s.Validate(); err != nil {
		return model.Snapshot{}, err
	}
	return s, nil
}
