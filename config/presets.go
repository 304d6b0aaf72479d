// Presets are named reusable "additional context" snippets kept in a
// presets.yaml next to the config store. Selecting one with --preset
// replaces the configured context for that run without touching the store.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// PresetsFileName is the default presets file name.
const PresetsFileName = "presets.yaml"

// Preset is a single named context snippet.
type Preset struct {
	// Name is the identifier passed to --preset.
	Name string `yaml:"name"`
	// Context is the additional info sent with every block.
	Context string `yaml:"context"`
}

// presetsFile is the top-level presets.yaml structure.
type presetsFile struct {
	Presets []Preset `yaml:"presets"`
}

// PresetsPath returns the presets file location next to the config store.
func PresetsPath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), PresetsFileName)
}

// LoadPresets loads and validates the presets file. Returns nil if no file
// exists.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var pf presetsFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	seen := make(map[string]bool)
	for i := range pf.Presets {
		p := &pf.Presets[i]
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("%s: preset #%d has no name", path, i+1)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("%s: duplicate preset %q", path, p.Name)
		}
		seen[p.Name] = true
	}

	return pf.Presets, nil
}

// FindPreset returns the preset with the given name.
func FindPreset(presets []Preset, name string) (Preset, bool) {
	for _, p := range presets {
		if p.Name == name {
			return p, true
		}
	}
	return Preset{}, false
}
