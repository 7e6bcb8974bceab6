package gas

import (
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Preset names.
const (
	PresetSimple   = "simple"
	PresetStandard = "standard"
	PresetComplex  = "complex"
	PresetSelfCall = "selfCall"
)

// Preset bounds the gas limit of one class of call.
type Preset struct {
	Name string
	// BufferPercent is added on top of a successful simulation.
	BufferPercent uint64
	Min           uint64
	Max           uint64
	// Default is used whenever simulation is skipped or fails.
	Default uint64
}

// Apply buffers a simulated cost and clamps it into [Min, Max].
func (p Preset) Apply(estimate uint64) uint64 {
	buffered := estimate
	if p.BufferPercent > 0 {
		extra := estimate / 100 * p.BufferPercent
		extra += (estimate % 100) * p.BufferPercent / 100
		if buffered > math.MaxUint64-extra {
			buffered = math.MaxUint64
		} else {
			buffered += extra
		}
	}
	if buffered < p.Min {
		return p.Min
	}
	if p.Max > 0 && buffered > p.Max {
		return p.Max
	}
	return buffered
}

// Validate checks the preset bounds are coherent.
func (p Preset) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("gas: preset name required")
	}
	if p.Max == 0 {
		return fmt.Errorf("gas: preset %s max must be positive", p.Name)
	}
	if p.Min > p.Max {
		return fmt.Errorf("gas: preset %s min %d exceeds max %d", p.Name, p.Min, p.Max)
	}
	if p.Default < p.Min || p.Default > p.Max {
		return fmt.Errorf("gas: preset %s default %d outside [%d, %d]", p.Name, p.Default, p.Min, p.Max)
	}
	return nil
}

// DefaultPresets returns the built-in preset table.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		PresetSimple:   {Name: PresetSimple, BufferPercent: 50, Min: 100_000, Max: 500_000, Default: 150_000},
		PresetStandard: {Name: PresetStandard, BufferPercent: 50, Min: 200_000, Max: 1_000_000, Default: 300_000},
		PresetComplex:  {Name: PresetComplex, BufferPercent: 100, Min: 400_000, Max: 2_000_000, Default: 500_000},
		PresetSelfCall: {Name: PresetSelfCall, BufferPercent: 100, Min: 200_000, Max: 500_000, Default: 200_000},
	}
}

// presetFile mirrors the YAML representation of a preset override.
type presetFile struct {
	Name          string  `yaml:"name"`
	BufferPercent *uint64 `yaml:"buffer_percent"`
	Min           *uint64 `yaml:"min"`
	Max           *uint64 `yaml:"max"`
	Default       *uint64 `yaml:"default"`
}

// LoadPresets reads preset overrides from a YAML list and merges them over
// the built-in table. Fields omitted in the file keep their built-in value;
// unknown names define new presets and must set every bound.
func LoadPresets(path string) (map[string]Preset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gas presets: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	dec.KnownFields(true)
	var entries []presetFile
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode gas presets: %w", err)
	}
	presets := DefaultPresets()
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("gas preset name required")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate gas preset %s", name)
		}
		seen[name] = struct{}{}
		preset, known := presets[name]
		if !known {
			if entry.Min == nil || entry.Max == nil || entry.Default == nil {
				return nil, fmt.Errorf("gas preset %s: min, max and default are required", name)
			}
			preset = Preset{Name: name}
		}
		if entry.BufferPercent != nil {
			preset.BufferPercent = *entry.BufferPercent
		}
		if entry.Min != nil {
			preset.Min = *entry.Min
		}
		if entry.Max != nil {
			preset.Max = *entry.Max
		}
		if entry.Default != nil {
			preset.Default = *entry.Default
		}
		if err := preset.Validate(); err != nil {
			return nil, err
		}
		presets[name] = preset
	}
	return presets, nil
}
