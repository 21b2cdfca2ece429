package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Settings holds the tunables of one interpreter instance.
type Settings struct {
	GC      GCSettings     `yaml:"gc" toml:"gc"`
	Modules ModuleSettings `yaml:"modules" toml:"modules"`
	Lexer   LexerSettings  `yaml:"lexer" toml:"lexer"`
	VM      VMSettings     `yaml:"vm" toml:"vm"`
	Log     LogSettings    `yaml:"log" toml:"log"`
}

type GCSettings struct {
	// InitialThreshold is the number of tracked bytes before the first collection.
	InitialThreshold int `yaml:"initial_threshold" toml:"initial_threshold"`
	// GrowthFactor scales the threshold after each collection.
	GrowthFactor float64 `yaml:"growth_factor" toml:"growth_factor"`
	// Stress collects on every growing allocation.
	Stress bool `yaml:"stress" toml:"stress"`
	// Disabled turns the collector off entirely.
	Disabled bool `yaml:"disabled" toml:"disabled"`
}

type ModuleSettings struct {
	SearchPaths []string `yaml:"search_paths" toml:"search_paths"`
}

type LexerSettings struct {
	Extended bool `yaml:"extended" toml:"extended"`
}

type VMSettings struct {
	MaxFrames int `yaml:"max_frames" toml:"max_frames"`
}

type LogSettings struct {
	Verbosity int    `yaml:"verbosity" toml:"verbosity"`
	File      string `yaml:"file" toml:"file"`
}

// Default returns the built-in settings.
func Default() *Settings {
	return &Settings{
		GC: GCSettings{
			InitialThreshold: DefaultGCThreshold,
			GrowthFactor:     DefaultGCGrowthFactor,
		},
		VM: VMSettings{MaxFrames: MaxFrames},
	}
}

// Load reads settings from a YAML (.yaml, .yml) or TOML (.toml) file.
// Missing fields keep their defaults.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	s := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	s.normalize()
	return s, nil
}

// ApplyEnv appends search paths from KILN_PATH.
func (s *Settings) ApplyEnv() {
	if v := os.Getenv(PathEnvVar); v != "" {
		for _, p := range filepath.SplitList(v) {
			if p != "" {
				s.Modules.SearchPaths = append(s.Modules.SearchPaths, p)
			}
		}
	}
}

func (s *Settings) normalize() {
	if s.GC.InitialThreshold <= 0 {
		s.GC.InitialThreshold = DefaultGCThreshold
	}
	if s.GC.GrowthFactor < 1 {
		s.GC.GrowthFactor = DefaultGCGrowthFactor
	}
	if s.VM.MaxFrames <= 0 {
		s.VM.MaxFrames = MaxFrames
	}
}
