package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ChainProfile is a per-chain tuning profile. A deployment serving
// several chain namespaces can give each its own cadence and grid.
type ChainProfile struct {
	Name  string `yaml:"name" json:"name"`
	Chain string `yaml:"chain" json:"chain"`

	GridPrecision          float64 `yaml:"grid_precision,omitempty" json:"grid_precision,omitempty"`
	DedupWindowSecs        int     `yaml:"dedup_window_secs,omitempty" json:"dedup_window_secs,omitempty"`
	CheckpointIntervalSecs int     `yaml:"checkpoint_interval_secs,omitempty" json:"checkpoint_interval_secs,omitempty"`

	MaxRules         int      `yaml:"max_rules,omitempty" json:"max_rules,omitempty"`
	AllowedRuleTypes []string `yaml:"allowed_rule_types,omitempty" json:"allowed_rule_types,omitempty"`
}

// DedupWindow returns the profile's dedup window, or def when unset.
func (p *ChainProfile) DedupWindow(def time.Duration) time.Duration {
	if p.DedupWindowSecs <= 0 {
		return def
	}
	return time.Duration(p.DedupWindowSecs) * time.Second
}

// CheckpointInterval returns the profile's heartbeat cadence, or def
// when unset.
func (p *ChainProfile) CheckpointInterval(def time.Duration) time.Duration {
	if p.CheckpointIntervalSecs <= 0 {
		return def
	}
	return time.Duration(p.CheckpointIntervalSecs) * time.Second
}

// AllowsRuleType reports whether a rule type is allowed. An empty list
// allows every type.
func (p *ChainProfile) AllowsRuleType(ruleType string) bool {
	if len(p.AllowedRuleTypes) == 0 {
		return true
	}
	for _, t := range p.AllowedRuleTypes {
		if t == ruleType {
			return true
		}
	}
	return false
}

// LoadProfile loads one chain profile YAML by chain code. It looks for
// profile_<chain>.yaml in the profiles directory.
func LoadProfile(profilesDir, chain string) (*ChainProfile, error) {
	chain = strings.ToLower(chain)
	path := filepath.Join(profilesDir, fmt.Sprintf("profile_%s.yaml", chain))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile %q: %w", chain, err)
	}

	var profile ChainProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", chain, err)
	}
	if profile.Chain == "" {
		profile.Chain = chain
	}
	return &profile, nil
}

// LoadAllProfiles loads every profile_*.yaml from the profiles
// directory, keyed by chain code.
func LoadAllProfiles(profilesDir string) (map[string]*ChainProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "profile_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*ChainProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var profile ChainProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if profile.Chain == "" {
			base := filepath.Base(path)
			profile.Chain = strings.TrimSuffix(strings.TrimPrefix(base, "profile_"), ".yaml")
		}
		profiles[profile.Chain] = &profile
	}
	return profiles, nil
}
