package config

const (
	defaultMaxLoopIterations = 1000
	defaultMaxCallDepth      = 256
	defaultMaxQubits         = 1 << 16
	defaultMaxResults        = 1 << 16
	defaultFunctionCacheSize = 512
	defaultAnalysisWorkers   = 4
)

type EvaluatorConfig struct {
	// Iterations a single loop may unroll before lowering fails.
	MaxLoopIterations int `yaml:"maxLoopIterations"`
	// Depth of nested inlined calls.
	MaxCallDepth int `yaml:"maxCallDepth"`
	MaxQubits    int `yaml:"maxQubits"`
	MaxResults   int `yaml:"maxResults"`
	// Entries kept by the memo of pure function calls.
	FunctionCacheSize int `yaml:"functionCacheSize"`
}

// WithDefaults returns a copy of the EvaluatorConfig with any missing fields
// set to their default values.
func (c EvaluatorConfig) WithDefaults() EvaluatorConfig {
	cpy := c
	if cpy.MaxLoopIterations == 0 {
		cpy.MaxLoopIterations = defaultMaxLoopIterations
	}
	if cpy.MaxCallDepth == 0 {
		cpy.MaxCallDepth = defaultMaxCallDepth
	}
	if cpy.MaxQubits == 0 {
		cpy.MaxQubits = defaultMaxQubits
	}
	if cpy.MaxResults == 0 {
		cpy.MaxResults = defaultMaxResults
	}
	if cpy.FunctionCacheSize == 0 {
		cpy.FunctionCacheSize = defaultFunctionCacheSize
	}
	return cpy
}

type AnalysisConfig struct {
	// Components analyzed in parallel.
	Workers int `yaml:"workers"`
}

func (c AnalysisConfig) WithDefaults() AnalysisConfig {
	cpy := c
	if cpy.Workers <= 0 {
		cpy.Workers = defaultAnalysisWorkers
	}
	return cpy
}
