package match

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// TierWeights are the static confidence multipliers per name kind. A
// primary/official name match scores highest, a credited name mid-tier,
// any other alias lowest.
type TierWeights struct {
	Primary  float64 `yaml:"primary" mapstructure:"primary"`
	Credited float64 `yaml:"credited" mapstructure:"credited"`
	Other    float64 `yaml:"other" mapstructure:"other"`
}

// Config holds matching policy. Thresholds and weights are deployment
// parameters, never hard-coded at call sites.
type Config struct {
	// MinConfidence is the floor below which a best candidate is
	// reported as unresolved instead of a match.
	MinConfidence float64 `yaml:"min_confidence" mapstructure:"min_confidence"`

	// Weights maps alias kinds to confidence multipliers.
	Weights TierWeights `yaml:"tier_weights" mapstructure:"tier_weights"`

	// MaxSuggestions bounds the below-threshold suggestions attached to
	// an unresolved outcome.
	MaxSuggestions int `yaml:"max_suggestions" mapstructure:"max_suggestions"`
}

// DefaultConfig returns the default matching policy.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.65,
		Weights: TierWeights{
			Primary:  1.0,
			Credited: 0.85,
			Other:    0.6,
		},
		MaxSuggestions: 3,
	}
}

// LoadConfig reads matching policy from a YAML file, filling omitted
// values from defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "match: read config %s", path)
	}

	var wrapper struct {
		Match Config `yaml:"match"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return cfg, eris.Wrap(err, "match: parse config")
	}

	loaded := wrapper.Match
	if loaded.MinConfidence > 0 {
		cfg.MinConfidence = loaded.MinConfidence
	}
	if loaded.Weights.Primary > 0 {
		cfg.Weights.Primary = loaded.Weights.Primary
	}
	if loaded.Weights.Credited > 0 {
		cfg.Weights.Credited = loaded.Weights.Credited
	}
	if loaded.Weights.Other > 0 {
		cfg.Weights.Other = loaded.Weights.Other
	}
	if loaded.MaxSuggestions > 0 {
		cfg.MaxSuggestions = loaded.MaxSuggestions
	}

	return cfg, nil
}

func (w TierWeights) forKind(kind string) float64 {
	switch kind {
	case "primary":
		return w.Primary
	case "credited":
		return w.Credited
	default:
		return w.Other
	}
}
