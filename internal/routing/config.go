package routing

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RulesFile is the on-disk shape of a routing rules override.
type RulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads an ordered rule table from a YAML file. A missing path
// returns the built-in defaults; a present but unparsable file is an error
// so a bad deploy fails loudly instead of silently degrading routing.
func LoadRules(path string) ([]Rule, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultRules(), nil
		}
		return nil, fmt.Errorf("read routing rules: %w", err)
	}
	var f RulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse routing rules: %w", err)
	}
	if len(f.Rules) == 0 {
		return DefaultRules(), nil
	}
	for i, r := range f.Rules {
		if r.Persona == "" {
			return nil, fmt.Errorf("routing rule %d: persona required", i)
		}
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("routing rule %d: keywords required", i)
		}
	}
	return f.Rules, nil
}
