package strategy

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the swappable part of the generator: the strategy rotation, the
// permissive fallback and the client identity pool.
type Policy struct {
	Strategies []Strategy       `yaml:"strategies"`
	Fallback   Strategy         `yaml:"fallback"`
	Identities []ClientIdentity `yaml:"identities"`
}

// DefaultPolicy returns the built-in rotation.
func DefaultPolicy() *Policy {
	return &Policy{
		Strategies: []Strategy{
			{
				Name:     "m4a-desktop",
				Formats:  FormatPreference{{Container: "m4a", AudioOnly: true}, {AudioOnly: true}, {}},
				Platform: "windows",
				Headers:  HeadersFull,
			},
			{
				Name:     "webm-mac",
				Formats:  FormatPreference{{Container: "webm", AudioOnly: true}, {AudioOnly: true}, {}},
				Platform: "macos",
				Headers:  HeadersFull,
			},
			{
				Name:     "any-audio-firefox",
				Formats:  FormatPreference{{AudioOnly: true}, {}},
				Platform: "linux",
				Headers:  HeadersReduced,
			},
		},
		Fallback: Strategy{
			Name:     "permissive",
			Formats:  FormatPreference{{AudioOnly: true}, {MaxHeight: 360}, {}, {Lowest: true}},
			Platform: "",
			Headers:  HeadersMinimal,
		},
		Identities: []ClientIdentity{
			{Platform: "windows", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
			{Platform: "windows", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"},
			{Platform: "macos", UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
			{Platform: "macos", UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15"},
			{Platform: "linux", UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/120.0"},
			{Platform: "windows", UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/120.0"},
		},
	}
}

// LoadPolicy reads a policy from a YAML file. Sections missing from the file
// keep their built-in values.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read strategies file: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses YAML policy data on top of DefaultPolicy.
func ParsePolicy(data []byte) (*Policy, error) {
	var parsed Policy
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse strategies: %w", err)
	}

	policy := DefaultPolicy()
	if len(parsed.Strategies) > 0 {
		policy.Strategies = parsed.Strategies
	}
	if parsed.Fallback.Name != "" {
		policy.Fallback = parsed.Fallback
	}
	if len(parsed.Identities) > 0 {
		policy.Identities = parsed.Identities
	}

	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// Validate checks the policy is usable.
func (p *Policy) Validate() error {
	if len(p.Identities) == 0 {
		return errors.New("strategy policy has no client identities")
	}
	if len(p.Fallback.Formats) == 0 {
		return errors.New("fallback strategy has no formats")
	}
	for _, s := range p.Strategies {
		if s.Name == "" {
			return errors.New("strategy without name")
		}
		if len(s.Formats) == 0 {
			return fmt.Errorf("strategy %s has no formats", s.Name)
		}
	}
	return nil
}
