package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigKind is the only kind of config document FromYaml accepts.
const ConfigKind = "TrainingConfig"

// Hyperparameter keys recognized in a TrainingConfig.
const (
	LearningRateKey     = "learningRate"
	DiscountFactorKey   = "discountFactor"
	ExplorationRateKey  = "explorationRate"
	ExplorationDecayKey = "explorationDecay"
	LifePenaltyKey      = "lifePenalty"
	TerminalRewardKey   = "terminalReward"
	LivesKey            = "lives"
	MaxStepsKey         = "maxSteps"
	RenderAboveKey      = "renderAbove"
)

var (
	// ErrUnknownKind is returned for config documents of another kind.
	ErrUnknownKind = errors.New("unknown config kind")
	// ErrInvalidConfig is returned by Validate.
	ErrInvalidConfig = errors.New("invalid training config")
)

// OuterConfig is the envelope of a config document: a kind and its definition.
// Viper folds all keys to lower case, hence the lowercase tags throughout.
type OuterConfig struct {
	Kind string      `mapstructure:"kind"`
	Def  interface{} `mapstructure:"def"`
}

// TrainingConfig holds the parameters of a training run outside of code.
type TrainingConfig struct {
	// Episodes is the number of episodes to train.
	Episodes int `yaml:"episodes"`
	// Seed seeds the run's generators; 0 means seed from the clock.
	Seed int64 `yaml:"seed"`
	// Track selects the race track: "debug" or "full".
	Track string `yaml:"track"`
	// TablePath is where the learned table is loaded from and saved to; empty disables persistence.
	TablePath string `yaml:"tablepath"`
	// Reduction is the target reduced-state shape.
	Reduction ReductionConfig `yaml:"reduction"`
	// HyperParams is a key-val list of param names and their value.
	HyperParams []HyperParameter `yaml:"hyperparams"`
	// TrainingDeadline is a duration after which training stops.
	TrainingDeadline map[string]string `yaml:"trainingdeadline"`
}

// ReductionConfig is the target shape of reduced observations.
type ReductionConfig struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

// HyperParameter is one named value of the hyperparams list.
type HyperParameter struct {
	Key string  `yaml:"key"`
	Val float64 `yaml:"val"`
}

// GetHyperParamOrDefault returns the first listed value for param, or defaultVal if it is not listed.
func (cfg *TrainingConfig) GetHyperParamOrDefault(param string, defaultVal float64) float64 {
	for _, kvp := range cfg.HyperParams {
		if kvp.Key == param {
			return kvp.Val
		}
	}
	return defaultVal
}

// AgentConfig returns the agent hyperparameters, defaulting any that are not listed.
func (cfg *TrainingConfig) AgentConfig() AgentConfig {
	def := DefaultAgentConfig()
	return AgentConfig{
		LearningRate:     cfg.GetHyperParamOrDefault(LearningRateKey, def.LearningRate),
		DiscountFactor:   cfg.GetHyperParamOrDefault(DiscountFactorKey, def.DiscountFactor),
		ExplorationRate:  cfg.GetHyperParamOrDefault(ExplorationRateKey, def.ExplorationRate),
		ExplorationDecay: cfg.GetHyperParamOrDefault(ExplorationDecayKey, def.ExplorationDecay),
	}
}

// Validate checks ranges the learning update depends upon.
func (cfg *TrainingConfig) Validate() error {
	agentCfg := cfg.AgentConfig()
	switch {
	case cfg.Episodes <= 0:
		return fmt.Errorf("%w: episodes must be positive, got %d", ErrInvalidConfig, cfg.Episodes)
	case agentCfg.LearningRate <= 0 || agentCfg.LearningRate >= 1:
		return fmt.Errorf("%w: %s must be in (0,1), got %v", ErrInvalidConfig, LearningRateKey, agentCfg.LearningRate)
	case agentCfg.DiscountFactor < 0 || agentCfg.DiscountFactor > 1:
		return fmt.Errorf("%w: %s must be in [0,1], got %v", ErrInvalidConfig, DiscountFactorKey, agentCfg.DiscountFactor)
	case cfg.Reduction.Rows <= 0 || cfg.Reduction.Cols <= 0:
		return fmt.Errorf("%w: reduction rows and cols must be positive, got (%d,%d)",
			ErrInvalidConfig, cfg.Reduction.Rows, cfg.Reduction.Cols)
	}
	return nil
}

// WithTrainingDeadline returns a context extended by the training deadline, if one is specified.
func (cfg *TrainingConfig) WithTrainingDeadline(
	ctx context.Context,
) (context.Context, context.CancelFunc, error) {
	if val, ok := cfg.TrainingDeadline["duration"]; ok {
		duration, err := time.ParseDuration(val)
		if err != nil {
			return nil, nil, fmt.Errorf("training deadline: %w", err)
		}
		innerCtx, cancel := context.WithTimeout(ctx, duration)
		return innerCtx, cancel, nil
	}
	defaultCtx, cancel := context.WithCancel(ctx)
	return defaultCtx, cancel, nil
}

// FromYaml reads a TrainingConfig document. Viper reads the envelope; the definition
// is round-tripped through yaml to decode it with the config's own tags.
func FromYaml(path string) (*TrainingConfig, error) {
	vp := viper.New()
	vp.SetConfigFile(path)
	vp.SetConfigType("yaml")
	var err error
	if err = vp.ReadInConfig(); err != nil {
		return nil, err
	}

	outerConfig := &OuterConfig{}
	if err = vp.Unmarshal(outerConfig); err != nil {
		return nil, err
	}
	if outerConfig.Kind != ConfigKind {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, outerConfig.Kind)
	}

	var spec []byte
	if spec, err = yaml.Marshal(outerConfig.Def); err != nil {
		return nil, err
	}

	innerConfig := &TrainingConfig{}
	if err = yaml.Unmarshal(spec, innerConfig); err != nil {
		return nil, err
	}

	return innerConfig, nil
}
