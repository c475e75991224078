package prober

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Target is one encoder to poll.
type Target struct {
	Name      string `yaml:"name"`
	Address   string `yaml:"address"`
	Community string `yaml:"community"`
}

type targetsFile struct {
	Targets []Target `yaml:"targets"`
}

// LoadTargets reads the probe target list. Names are optional; a target
// without one gets resolved or falls back to its address at startup.
func LoadTargets(path string) ([]Target, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read targets file: %w", err)
	}

	var doc targetsFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse targets file %s: %w", path, err)
	}

	out := make([]Target, 0, len(doc.Targets))
	for i, t := range doc.Targets {
		t.Name = strings.TrimSpace(t.Name)
		t.Address = strings.TrimSpace(t.Address)
		t.Community = strings.TrimSpace(t.Community)
		if t.Address == "" {
			return nil, fmt.Errorf("target %d in %s has no address", i, path)
		}
		out = append(out, t)
	}
	return out, nil
}
