package authz

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/reqpipe/reqpipe/internal/config"
)

// Source supplies the rule table at startup and on reload.
type Source interface {
	// Load returns the current rule set.
	Load() ([]Rule, error)
}

// policyFile is the on-disk shape of a rule table.
type policyFile struct {
	Rules []config.RuleConfig `yaml:"rules"`
}

// FileSource loads rules from a YAML policy file.
type FileSource struct {
	path string
}

// NewFileSource creates a source reading from path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load implements Source.
func (s *FileSource) Load() ([]Rule, error) {
	data, err := os.ReadFile(s.path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", s.path, err)
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", s.path, err)
	}

	return FromConfig(file.Rules)
}

// StaticSource serves a fixed rule set, used for inline configuration.
type StaticSource struct {
	rules []Rule
}

// NewStaticSource creates a source over fixed rules.
func NewStaticSource(rules []Rule) *StaticSource {
	return &StaticSource{rules: rules}
}

// Load implements Source.
func (s *StaticSource) Load() ([]Rule, error) {
	return s.rules, nil
}

// FromConfig converts configured rules, rejecting incomplete entries.
func FromConfig(configs []config.RuleConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(configs))
	for i, rc := range configs {
		if rc.Role == "" || rc.Resource == "" || rc.Action == "" {
			return nil, fmt.Errorf("rules[%d]: role, resource, and action are required", i)
		}
		rules = append(rules, Rule{
			Role:     rc.Role,
			Resource: rc.Resource,
			Action:   rc.Action,
		})
	}
	return rules, nil
}
