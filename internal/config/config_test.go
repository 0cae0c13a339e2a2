package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qlower/internal/caps"
)

func TestEvaluatorConfigWithDefaults(t *testing.T) {
	tests := []struct {
		name     string
		input    EvaluatorConfig
		expected EvaluatorConfig
	}{
		{
			name:  "Empty config",
			input: EvaluatorConfig{},
			expected: EvaluatorConfig{
				MaxLoopIterations: 1000,
				MaxCallDepth:      256,
				MaxQubits:         65536,
				MaxResults:        65536,
				FunctionCacheSize: 512,
			},
		},
		{
			name: "Config with explicit budgets",
			input: EvaluatorConfig{
				MaxLoopIterations: 10,
				MaxQubits:         8,
			},
			expected: EvaluatorConfig{
				MaxLoopIterations: 10,
				MaxCallDepth:      256,
				MaxQubits:         8,
				MaxResults:        65536,
				FunctionCacheSize: 512,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.input.WithDefaults())
		})
	}
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
profile: partial
entry: Run
evaluator:
  maxLoopIterations: 50
analysis:
  workers: 2
logger:
  debug: true
`))
	require.NoError(t, err)
	assert.Equal(t, "partial", c.Profile)
	assert.Equal(t, "Run", c.Entry)
	assert.Equal(t, 50, c.Evaluator.MaxLoopIterations)
	assert.Equal(t, 256, c.Evaluator.MaxCallDepth)
	assert.Equal(t, 2, c.Analysis.Workers)
	assert.True(t, c.Logger.Debug)

	p, err := c.TargetProfile()
	require.NoError(t, err)
	assert.Equal(t, caps.Partial, p)
}

func TestParseRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown profile", "profile: quantum\n"},
		{"unknown field", "profil: minimal\n"},
		{"unknown capability", "profiles:\n  partial: [Teleport]\n"},
		{"non-linear lattice", "profiles:\n  minimal: [BackwardBranching]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLatticeOverrides(t *testing.T) {
	c, err := Parse([]byte(`
profiles:
  partial: [BranchOnMeasurement, DynamicBool, QubitReuse, DynamicInt]
`))
	require.NoError(t, err)
	l, err := c.Lattice()
	require.NoError(t, err)
	assert.True(t, l.Permitted(caps.Partial).Has(caps.DynamicInt))
	assert.Equal(t, caps.DefaultLattice().Permitted(caps.Extended), l.Permitted(caps.Extended))
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "minimal", c.Profile)
	assert.Equal(t, "Main", c.Entry)

	path := filepath.Join(t.TempDir(), "qlower.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profile: extended\n"), 0o644))
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, "extended", c.Profile)
	assert.Equal(t, 4, c.Analysis.Workers)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMarshalRoundTrip(t *testing.T) {
	c := Config{Profile: "partial"}.WithDefaults()
	data, err := c.Marshal()
	require.NoError(t, err)
	back, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, c.Evaluator, back.Evaluator)
	assert.Equal(t, c.Profile, back.Profile)
}
