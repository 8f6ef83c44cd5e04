package reinforcement

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"qspace/environment"
)

// Fingerprinter maps observations to value-table keys.
type Fingerprinter interface {
	Fingerprint(environment.Observation) (uint64, error)
}

// AgentConfig holds the agent's hyperparameters. They belong to one agent instance;
// independent agents never share them.
type AgentConfig struct {
	// LearningRate (alpha) scales each temporal-difference correction.
	LearningRate float64
	// DiscountFactor (gamma) weights the best successor estimate.
	DiscountFactor float64
	// ExplorationRate is compared against a uniform draw on every decision: a draw
	// exceeding it explores, otherwise the agent exploits.
	ExplorationRate float64
	// ExplorationDecay multiplies ExplorationRate before every decision.
	ExplorationDecay float64
}

// DefaultAgentConfig returns the classic hyperparameters for the space-invaders run.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		LearningRate:     0.1,
		DiscountFactor:   0.9,
		ExplorationRate:  0.4,
		ExplorationDecay: 1.00005,
	}
}

// Agent is a tabular Q-learner keyed by observation fingerprints.
// It is not safe for concurrent use; parallel runs each construct their own Agent.
type Agent struct {
	cfg     AgentConfig
	table   *QTable
	reducer Fingerprinter
	actions environment.ActionSpace
	rng     *rand.Rand

	// exploitation statistics, reporting only
	hits  int
	total int
}

// AgentOption configures optional Agent collaborators.
type AgentOption func(*Agent)

// WithRand sets the generator used for exploration draws.
func WithRand(rng *rand.Rand) AgentOption {
	return func(agent *Agent) {
		agent.rng = rng
	}
}

// WithTable resumes learning from an existing table, e.g. one loaded from disk.
func WithTable(table *QTable) AgentOption {
	return func(agent *Agent) {
		agent.table = table
	}
}

// NewAgent returns an agent with an empty table, unless WithTable is passed.
// Without WithRand the agent seeds its own generator from the clock.
func NewAgent(
	cfg AgentConfig,
	reducer Fingerprinter,
	actions environment.ActionSpace,
	opts ...AgentOption,
) *Agent {
	agent := &Agent{
		cfg:     cfg,
		reducer: reducer,
		actions: actions,
		// The denominator starts at 1 so HitRatio never divides by zero; the ratio is biased low by one decision.
		total: 1,
	}
	for _, opt := range opts {
		opt(agent)
	}
	if agent.table == nil {
		agent.table = NewQTable()
	}
	if agent.rng == nil {
		agent.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return agent
}

// Learn applies the one-step Q-learning update for the transition (old, action, reward, next):
//
//	Q(s,a) <- Q(s,a) + alpha * (r + gamma * max_a' Q(s',a') - Q(s,a))
//
// The max ranges over recorded actions of s' only and is 0 when s' has none.
// Exactly one table entry is written; statistics are untouched.
func (agent *Agent) Learn(
	old environment.Observation,
	action int,
	reward float64,
	next environment.Observation,
) error {
	oldFp, err := agent.reducer.Fingerprint(old)
	if err != nil {
		return fmt.Errorf("learn: old state: %w", err)
	}
	nextFp, err := agent.reducer.Fingerprint(next)
	if err != nil {
		return fmt.Errorf("learn: new state: %w", err)
	}

	qOld := agent.table.Get(oldFp, action)
	qNextMax := agent.table.Max(nextFp)
	agent.table.Set(
		oldFp,
		action,
		qOld+agent.cfg.LearningRate*(reward+agent.cfg.DiscountFactor*qNextMax-qOld))
	return nil
}

// Decide chooses an action for obs. The exploration rate is first multiplied by the decay
// factor; then a uniform draw above the rate samples a random action, while a draw at or
// below it exploits the best recorded action, falling back to a random one if none is recorded.
//
// NOTE: a decay factor above 1 grows the rate, so draws exceed it less often over time
// and the agent drifts toward pure exploitation, while ExplorationFactor falls toward 0%.
func (agent *Agent) Decide(obs environment.Observation) (int, error) {
	agent.cfg.ExplorationRate *= agent.cfg.ExplorationDecay

	if agent.rng.Float64() > agent.cfg.ExplorationRate {
		return agent.actions.Sample(), nil
	}

	fp, err := agent.reducer.Fingerprint(obs)
	if err != nil {
		return 0, fmt.Errorf("decide: %w", err)
	}
	if len(agent.table.Actions(fp)) > 0 {
		agent.hits++
	}
	agent.total++

	if action, ok := agent.table.Best(fp); ok {
		return action, nil
	}
	return agent.actions.Sample(), nil
}

// Size returns the number of distinct states in the table.
func (agent *Agent) Size() int {
	return agent.table.Len()
}

// HitRatio is the fraction of exploitative decisions that found a recorded state.
// It lies in [0,1] and is 0 for a new agent, since the denominator starts at 1.
func (agent *Agent) HitRatio() float64 {
	return float64(agent.hits) / float64(agent.total)
}

// ExplorationFactor is a display percentage, min((1-rate)*100, 100), floored at 0
// once the rate grows past 1. It plays no part in decisions.
func (agent *Agent) ExplorationFactor() float64 {
	return math.Max(math.Min((1-agent.cfg.ExplorationRate)*100, 100), 0)
}

// ExplorationRate returns the current, decayed exploration rate.
func (agent *Agent) ExplorationRate() float64 {
	return agent.cfg.ExplorationRate
}

// Table returns the agent's value table, e.g. for persistence.
func (agent *Agent) Table() *QTable {
	return agent.table
}
