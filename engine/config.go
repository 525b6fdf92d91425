package engine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the subset of Engine tunables a caller might want to keep in
// a file instead of code. It mirrors the teacher's functional-option
// defaults one-for-one; a zero-value field means "use the Engine default."
type Config struct {
	Dir            string `yaml:"dir"`
	FlushThreshold int64  `yaml:"flush_threshold"`
	MergeEnabled   *bool  `yaml:"merge_enabled"`
	MergeThreshold int    `yaml:"merge_threshold"`
}

// LoadConfig reads a YAML file into a Config. Missing or zero-value fields
// are left for Engine's own defaults to fill in once ToOptions is applied.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read config %q: %v", ErrIoError, path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return &cfg, nil
}

// ToOptions converts the config into Engine options, skipping any field left
// at its zero value so Engine's own defaults apply there instead.
func (c *Config) ToOptions() []Option {
	var opts []Option
	if c.Dir != "" {
		opts = append(opts, WithDir(c.Dir))
	}
	if c.FlushThreshold > 0 {
		opts = append(opts, WithFlushThreshold(c.FlushThreshold))
	}
	if c.MergeEnabled != nil {
		opts = append(opts, WithMergeEnabled(*c.MergeEnabled))
	}
	if c.MergeThreshold > 0 {
		opts = append(opts, WithMergeThreshold(c.MergeThreshold))
	}
	return opts
}
