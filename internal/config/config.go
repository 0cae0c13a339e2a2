// Package config loads compiler settings from YAML.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"qlower/internal/caps"
)

const (
	defaultProfile = "minimal"
	defaultEntry   = "Main"
)

type Config struct {
	// Target profile the entry point is compiled for.
	Profile string `yaml:"profile"`
	// Name of the entry callable.
	Entry string `yaml:"entry"`
	// Optional permitted-set overrides keyed by profile name. Profiles left
	// out keep their default capabilities.
	Profiles  map[string][]string `yaml:"profiles"`
	Evaluator EvaluatorConfig     `yaml:"evaluator"`
	Analysis  AnalysisConfig      `yaml:"analysis"`
	Logger    LogConfig           `yaml:"logger"`
}

// WithDefaults returns a copy of the Config with any missing fields set to
// their default values.
func (c Config) WithDefaults() Config {
	cpy := c
	if cpy.Profile == "" {
		cpy.Profile = defaultProfile
	}
	if cpy.Entry == "" {
		cpy.Entry = defaultEntry
	}
	cpy.Evaluator = cpy.Evaluator.WithDefaults()
	cpy.Analysis = cpy.Analysis.WithDefaults()
	return cpy
}

// Load reads a YAML file. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		c := Config{}.WithDefaults()
		return &c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	c, err := Parse(data)
	return c, errors.Wrapf(err, "load config %s", path)
}

func Parse(data []byte) (*Config, error) {
	c := Config{}
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	c = c.WithDefaults()
	if _, err := c.TargetProfile(); err != nil {
		return nil, err
	}
	if _, err := c.Lattice(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) TargetProfile() (caps.Profile, error) {
	return caps.ParseProfile(c.Profile)
}

// Lattice builds the profile lattice with the configured overrides applied.
func (c *Config) Lattice() (caps.Lattice, error) {
	if len(c.Profiles) == 0 {
		return caps.DefaultLattice(), nil
	}
	overrides := make(map[caps.Profile]caps.Set, len(c.Profiles))
	for name, flags := range c.Profiles {
		p, err := caps.ParseProfile(name)
		if err != nil {
			return caps.Lattice{}, errors.Wrap(err, "profiles")
		}
		set := caps.Empty
		for _, f := range flags {
			flag, ok := caps.ParseFlag(f)
			if !ok {
				return caps.Lattice{}, errors.Errorf("profiles: %s: unknown capability %q", name, f)
			}
			set = set.With(flag)
		}
		overrides[p] = set
	}
	l, err := caps.NewLattice(overrides)
	return l, errors.Wrap(err, "profiles")
}

// Marshal renders c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	return data, errors.Wrap(err, "marshal config")
}
