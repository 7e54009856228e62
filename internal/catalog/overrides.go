package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Override adjusts one category. Zero values keep the defaults.
type Override struct {
	Name                string `json:"name" yaml:"name"`
	Enabled             *bool  `json:"enabled" yaml:"enabled"`
	Mode                string `json:"mode" yaml:"mode"`
	BatchSize           int    `json:"batch_size" yaml:"batch_size"`
	ProgressLogInterval int    `json:"progress_log_interval" yaml:"progress_log_interval"`
	TimeoutMinutes      int    `json:"timeout_minutes" yaml:"timeout_minutes"`
	MaxRetries          *int   `json:"max_retries" yaml:"max_retries"`
}

// Overrides is the parsed categories file.
type Overrides struct {
	Categories []Override `json:"categories" yaml:"categories"`
	idx        map[string]Override
}

// Lookup returns the override for a category name.
func (o Overrides) Lookup(name string) (Override, bool) {
	ov, ok := o.idx[name]
	return ov, ok
}

// LoadOverrides reads a YAML or JSON categories file.
func LoadOverrides(path string) (Overrides, error) {
	if strings.TrimSpace(path) == "" {
		return Overrides{}, errors.New("categories file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("open categories file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return Overrides{}, fmt.Errorf("read categories file: %w", err)
	}

	ov, err := parseOverrides(raw, filepath.Ext(path))
	if err != nil {
		return Overrides{}, err
	}

	known := make(map[string]struct{})
	for _, c := range Categories() {
		known[c.Name] = struct{}{}
	}

	ov.idx = make(map[string]Override, len(ov.Categories))
	for i := range ov.Categories {
		c := sanitizeOverride(ov.Categories[i])
		if err := validateOverride(c, known); err != nil {
			return Overrides{}, fmt.Errorf("categories[%d]: %w", i, err)
		}
		if _, exists := ov.idx[c.Name]; exists {
			return Overrides{}, fmt.Errorf("duplicate category %q", c.Name)
		}
		ov.Categories[i] = c
		ov.idx[c.Name] = c
	}
	return ov, nil
}

func parseOverrides(data []byte, ext string) (Overrides, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if ov, err := unmarshalOverrides(d.name, data, d.fn); err == nil {
			return ov, nil
		}
	}

	return Overrides{}, errors.New("categories file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalOverrides(name string, data []byte, fn unmarshalFn) (Overrides, error) {
	var ov Overrides
	if err := fn(data, &ov); err != nil {
		return Overrides{}, fmt.Errorf("decode %s categories: %w", name, err)
	}
	return ov, nil
}

func sanitizeOverride(o Override) Override {
	o.Name = strings.TrimSpace(o.Name)
	o.Mode = strings.ToLower(strings.TrimSpace(o.Mode))
	return o
}

func validateOverride(o Override, known map[string]struct{}) error {
	if o.Name == "" {
		return errors.New("name is required")
	}
	if _, ok := known[o.Name]; !ok {
		return fmt.Errorf("unknown category %q", o.Name)
	}
	if o.BatchSize < 0 || o.ProgressLogInterval < 0 || o.TimeoutMinutes < 0 {
		return fmt.Errorf("negative value for category %q", o.Name)
	}
	if o.MaxRetries != nil && *o.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative for category %q", o.Name)
	}
	return nil
}
