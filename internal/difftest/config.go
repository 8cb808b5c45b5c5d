package difftest

import (
	"fmt"
	"math"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"permde/domain/core"
)

// Config enumerates every recognised option of a differential-mean test.
type Config struct {
	// Permutations is R, the number of label shuffles.
	Permutations int `toml:"permutations" yaml:"permutations" json:"permutations"`
	// Log2FCThreshold keeps features with |log2FC| >= the threshold.
	Log2FCThreshold float64 `toml:"log2fc_th" yaml:"log2fc_th" json:"log2fc_th"`
	// MeanThreshold keeps features with max(mean1, mean2) >= the threshold.
	MeanThreshold float64 `toml:"mean_th" yaml:"mean_th" json:"mean_th"`
	// MinNonZero is the minimum non-zero observations in the higher-mean group.
	MinNonZero int `toml:"min_nonzero" yaml:"min_nonzero" json:"min_nonzero"`
	// OnlyPositive restricts testing to features with mean1 > mean2.
	OnlyPositive bool `toml:"only_pos" yaml:"only_pos" json:"only_pos"`
	// OnlyTopN keeps the N candidates with the largest |log2FC|; 0 disables it.
	OnlyTopN int `toml:"only_top_n" yaml:"only_top_n" json:"only_top_n"`
	// Pseudocount is eps in the geometric mean.
	Pseudocount float64 `toml:"eps" yaml:"eps" json:"eps"`
	Seed        int64   `toml:"seed" yaml:"seed" json:"seed"`
	// Workers bounds concurrent permutation iterations; 0 means GOMAXPROCS.
	Workers int `toml:"workers" yaml:"workers" json:"workers"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Permutations:    99,
		Log2FCThreshold: math.Log2(1.2),
		MeanThreshold:   0.05,
		MinNonZero:      5,
		OnlyPositive:    false,
		OnlyTopN:        0,
		Pseudocount:     1,
		Seed:            0,
		Workers:         0,
	}
}

// Validate rejects option values outside their domain.
func (c Config) Validate() error {
	if c.Permutations < 1 {
		return core.NewConfigurationError("permutations", fmt.Sprintf("must be >= 1, got %d", c.Permutations))
	}
	if !(c.Pseudocount > 0) || math.IsInf(c.Pseudocount, 0) {
		return core.NewConfigurationError("eps", fmt.Sprintf("must be a finite value > 0, got %g", c.Pseudocount))
	}
	if c.Log2FCThreshold < 0 || math.IsNaN(c.Log2FCThreshold) {
		return core.NewConfigurationError("log2fc_th", fmt.Sprintf("must be >= 0, got %g", c.Log2FCThreshold))
	}
	if c.MeanThreshold < 0 || math.IsNaN(c.MeanThreshold) {
		return core.NewConfigurationError("mean_th", fmt.Sprintf("must be >= 0, got %g", c.MeanThreshold))
	}
	if c.MinNonZero < 0 {
		return core.NewConfigurationError("min_nonzero", fmt.Sprintf("must be >= 0, got %d", c.MinNonZero))
	}
	if c.OnlyTopN < 0 {
		return core.NewConfigurationError("only_top_n", fmt.Sprintf("must be >= 0, got %d", c.OnlyTopN))
	}
	if c.Workers < 0 {
		return core.NewConfigurationError("workers", fmt.Sprintf("must be >= 0, got %d", c.Workers))
	}
	return nil
}

// WorkerCount resolves Workers against GOMAXPROCS and R.
func (c Config) WorkerCount() int {
	w := c.Workers
	if w == 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > c.Permutations {
		w = c.Permutations
	}
	if w < 1 {
		w = 1
	}
	return w
}

var optionSetters = map[string]func(c *Config, v string) error{
	"permutations": func(c *Config, v string) (err error) { c.Permutations, err = strconv.Atoi(v); return },
	"log2fc_th":    func(c *Config, v string) (err error) { c.Log2FCThreshold, err = strconv.ParseFloat(v, 64); return },
	"mean_th":      func(c *Config, v string) (err error) { c.MeanThreshold, err = strconv.ParseFloat(v, 64); return },
	"min_nonzero":  func(c *Config, v string) (err error) { c.MinNonZero, err = strconv.Atoi(v); return },
	"only_pos":     func(c *Config, v string) (err error) { c.OnlyPositive, err = strconv.ParseBool(v); return },
	"only_top_n":   func(c *Config, v string) (err error) { c.OnlyTopN, err = strconv.Atoi(v); return },
	"eps":          func(c *Config, v string) (err error) { c.Pseudocount, err = strconv.ParseFloat(v, 64); return },
	"seed":         func(c *Config, v string) (err error) { c.Seed, err = strconv.ParseInt(v, 10, 64); return },
	"workers":      func(c *Config, v string) (err error) { c.Workers, err = strconv.Atoi(v); return },
}

// OptionNames lists the recognised option keys.
func OptionNames() []string {
	names := make([]string, 0, len(optionSetters))
	for name := range optionSetters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set overrides one option by key. Unknown keys are configuration errors.
func (c *Config) Set(key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	setter, ok := optionSetters[key]
	if !ok {
		return fmt.Errorf("%w: %q (known: %s)", core.ErrUnknownOption, key, strings.Join(OptionNames(), ", "))
	}
	if err := setter(c, strings.TrimSpace(value)); err != nil {
		return core.NewConfigurationError(key, fmt.Sprintf("cannot parse %q: %v", value, err))
	}
	return nil
}

// SetPairs applies key=value overrides in order.
func (c *Config) SetPairs(pairs []string) error {
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return core.NewConfigurationError("option", fmt.Sprintf("expected key=value, got %q", pair))
		}
		if err := c.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}
