package reinforcement

import (
	"context"
	"fmt"
	"math"
	"sort"

	"qspace/atomic_float"
	"qspace/environment"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

// RunSpec describes one independent training run of a sweep.
type RunSpec struct {
	Name   string
	Seed   int64
	Config *TrainingConfig
}

// RunResult is the outcome of one run.
type RunResult struct {
	Index   int
	Spec    RunSpec
	Agent   *Agent
	Summary *Summary
}

// RunBuilder constructs a fresh environment and agent for a run. Every call must return
// new instances: runs share nothing, which is what allows them to proceed without locks.
type RunBuilder func(spec RunSpec) (environment.Environment, *Agent, error)

// SweepResult aggregates the runs of a sweep, ordered as the specs were passed.
type SweepResult struct {
	Runs      []RunResult
	BestScore float64
	BestRun   int
}

// Sweep trains the runs on nworkers concurrent workers. Each worker emits results on its
// own channel; the channels are fanned in, and the best score is tracked lock-free as
// results are produced. The first failing run cancels the others and its error is returned.
// Cancelling ctx is a normal stop: every started run is returned with the episodes it
// completed, and runs not yet started are omitted.
func Sweep(
	ctx context.Context,
	runs []RunSpec,
	nworkers int,
	build RunBuilder,
	progressFn ProgressFunc,
) (*SweepResult, error) {
	if len(runs) == 0 {
		return &SweepResult{BestRun: -1}, nil
	}
	if nworkers <= 0 {
		nworkers = 1
	}
	if nworkers > len(runs) {
		nworkers = len(runs)
	}

	group, groupCtx := errgroup.WithContext(ctx)
	best := atomic_float.NewAtomicFloat64(math.Inf(-1))

	jobs := make(chan int)
	group.Go(func() error {
		defer close(jobs)
		for i := range runs {
			select {
			case jobs <- i:
			case <-groupCtx.Done():
				return nil
			}
		}
		return nil
	})

	worker := func() <-chan RunResult {
		results := make(chan RunResult)
		group.Go(func() error {
			defer close(results)
			for i := range jobs {
				spec := runs[i]
				env, agent, err := build(spec)
				if err != nil {
					return fmt.Errorf("run %q: %w", spec.Name, err)
				}

				summary, err := Train(groupCtx, env, agent, spec.Config, progressFn)
				if err != nil {
					return fmt.Errorf("run %q: %w", spec.Name, err)
				}
				// Sent regardless of cancellation: a cancelled run still reports what it completed.
				results <- RunResult{Index: i, Spec: spec, Agent: agent, Summary: summary}
				best.AtomicMax(summary.AllTimeMax)
			}
			return nil
		})
		return results
	}

	workers := []<-chan RunResult{}
	for i := 0; i < nworkers; i++ {
		workers = append(workers, worker())
	}

	sweep := &SweepResult{BestRun: -1}
	// Workers close their own chans once jobs stop, so the fan-in drains until every worker is done.
	for result := range channerics.Merge(nil, workers...) {
		sweep.Runs = append(sweep.Runs, result)
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(sweep.Runs, func(i, j int) bool {
		return sweep.Runs[i].Index < sweep.Runs[j].Index
	})
	if len(sweep.Runs) == 0 {
		return sweep, nil
	}
	sweep.BestScore = best.AtomicRead()
	for i, run := range sweep.Runs {
		if run.Summary.AllTimeMax == sweep.BestScore {
			sweep.BestRun = i
			break
		}
	}
	return sweep, nil
}
