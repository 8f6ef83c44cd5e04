package reinforcement

import (
	"context"
	"fmt"
	"io"
	"math"

	"qspace/environment"
)

// Progress describes the agent after a completed episode.
type Progress struct {
	Episode           int
	Steps             int
	Score             float64
	AllTimeMax        float64
	States            int
	ExplorationFactor float64
	HitRatio          float64
}

// Summary is the outcome of a training run.
type Summary struct {
	Episodes   int
	AllTimeMax float64
	States     int
	History    []Progress
}

// ProgressFunc is a callback by which the training loop lends progress details after each episode.
// ProgressFunc is synchronous/blocking and should complete quickly; the context allows it to
// abandon blocking sends when training is cancelled.
type ProgressFunc func(context.Context, Progress)

// Renderer is implemented by environments that can draw their current frame.
type Renderer interface {
	Render(io.Writer) error
}

type trainOptions struct {
	renderTo io.Writer
}

// TrainOption configures optional training behavior.
type TrainOption func(*trainOptions)

// WithRenderer renders every step to w while the agent's exploration rate exceeds
// the renderAbove hyperparameter, if the environment is a Renderer.
func WithRenderer(w io.Writer) TrainOption {
	return func(opts *trainOptions) {
		opts.renderTo = w
	}
}

// Train runs the episode loop: for each step the agent decides, the environment steps,
// the reward is shaped and the agent learns from the transition. Training is synchronous
// and stops after cfg.Episodes episodes or when ctx is done; cancellation is a normal stop
// and returns the summary of completed episodes without error. Errors are contract violations
// surfaced by the agent or environment and abort training.
//
// Shaping: the final step of an episode is rewarded terminalReward instead of its own reward,
// and any step that loses a life is penalized by lifePenalty. Scores sum the unshaped rewards.
func Train(
	ctx context.Context,
	env environment.Environment,
	agent *Agent,
	cfg *TrainingConfig,
	progressFn ProgressFunc,
	opts ...TrainOption,
) (*Summary, error) {
	options := &trainOptions{}
	for _, opt := range opts {
		opt(options)
	}
	renderer, canRender := env.(Renderer)
	canRender = canRender && options.renderTo != nil

	lifePenalty := cfg.GetHyperParamOrDefault(LifePenaltyKey, 10)
	terminalReward := cfg.GetHyperParamOrDefault(TerminalRewardKey, -1)
	initialLives := cfg.GetHyperParamOrDefault(LivesKey, 3)
	maxSteps := int(cfg.GetHyperParamOrDefault(MaxStepsKey, 0))
	renderAbove := cfg.GetHyperParamOrDefault(RenderAboveKey, 0.5)

	summary := &Summary{
		AllTimeMax: math.Inf(-1),
	}
	defer func() {
		summary.States = agent.Size()
		if summary.Episodes == 0 {
			summary.AllTimeMax = 0
		}
	}()

	for episode := 1; episode <= cfg.Episodes; episode++ {
		if ctx.Err() != nil {
			return summary, nil
		}

		state, err := env.Reset()
		if err != nil {
			return summary, fmt.Errorf("episode %d: reset: %w", episode, err)
		}

		lives := initialLives
		score := 0.0
		steps := 0
		for {
			if ctx.Err() != nil {
				return summary, nil
			}

			action, err := agent.Decide(state)
			if err != nil {
				return summary, fmt.Errorf("episode %d step %d: %w", episode, steps, err)
			}

			ts, err := env.Step(action)
			if err != nil {
				return summary, fmt.Errorf("episode %d step %d: %w", episode, steps, err)
			}

			penalty := 0.0
			if newLives, ok := ts.Info.Lives(); ok && newLives < lives {
				lives = newLives
				penalty = lifePenalty
			}
			shaped := ts.Reward
			if ts.Done {
				shaped = terminalReward
			}
			shaped -= penalty

			if err = agent.Learn(state, action, shaped, ts.Observation); err != nil {
				return summary, fmt.Errorf("episode %d step %d: %w", episode, steps, err)
			}

			score += ts.Reward
			steps++
			state = ts.Observation
			if ts.Done || (maxSteps > 0 && steps >= maxSteps) {
				break
			}

			if canRender && agent.ExplorationRate() > renderAbove {
				if err = renderer.Render(options.renderTo); err != nil {
					return summary, fmt.Errorf("render: %w", err)
				}
			}
		}

		summary.Episodes = episode
		summary.AllTimeMax = math.Max(summary.AllTimeMax, score)
		progress := Progress{
			Episode:           episode,
			Steps:             steps,
			Score:             score,
			AllTimeMax:        summary.AllTimeMax,
			States:            agent.Size(),
			ExplorationFactor: agent.ExplorationFactor(),
			HitRatio:          agent.HitRatio(),
		}
		summary.History = append(summary.History, progress)
		if progressFn != nil {
			progressFn(ctx, progress)
		}
	}

	return summary, nil
}
