package reinforcement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
	"testing"

	"qspace/environment"
	"qspace/grid_world"
	"qspace/state_reducer"

	. "github.com/smartystreets/goconvey/convey"
)

// raceTrackBuilder builds an independent debug-track run, reduced to one block per cell.
func raceTrackBuilder(spec RunSpec) (environment.Environment, *Agent, error) {
	rng := rand.New(rand.NewSource(spec.Seed))
	env, err := grid_world.NewRaceTrack(grid_world.DebugTrack, 3, rng)
	if err != nil {
		return nil, nil, err
	}
	h, w, c := env.Shape()
	rows, cols := env.GridDims()
	reducer, err := state_reducer.New(state_reducer.Geometry{Height: h, Width: w, Channels: c, Rows: rows, Cols: cols})
	if err != nil {
		return nil, nil, err
	}
	agent := NewAgent(spec.Config.AgentConfig(), reducer, env.ActionSpace(), WithRand(rand.New(rand.NewSource(spec.Seed+1))))
	return env, agent, nil
}

func TestSweep(t *testing.T) {
	cfg := trainConfig(3, HyperParameter{Key: MaxStepsKey, Val: 50})

	Convey("Given several independent runs", t, func() {
		runs := []RunSpec{}
		for i := 0; i < 5; i++ {
			runs = append(runs, RunSpec{Name: fmt.Sprintf("seed-%d", i), Seed: int64(i + 1), Config: cfg})
		}

		Convey("When swept across fewer workers than runs", func() {
			result, err := Sweep(context.Background(), runs, 2, raceTrackBuilder, nil)
			So(err, ShouldBeNil)

			Convey("Every run completes in order with its own agent", func() {
				So(len(result.Runs), ShouldEqual, 5)
				agents := map[*Agent]bool{}
				for i, run := range result.Runs {
					So(run.Index, ShouldEqual, i)
					So(run.Spec.Name, ShouldEqual, runs[i].Name)
					So(run.Summary.Episodes, ShouldEqual, 3)
					So(run.Agent.Size(), ShouldBeGreaterThan, 0)
					agents[run.Agent] = true
				}
				So(len(agents), ShouldEqual, 5)
			})

			Convey("The best score is the maximum over the runs", func() {
				best := result.Runs[0].Summary.AllTimeMax
				for _, run := range result.Runs {
					if run.Summary.AllTimeMax > best {
						best = run.Summary.AllTimeMax
					}
				}
				So(result.BestScore, ShouldEqual, best)
				So(result.Runs[result.BestRun].Summary.AllTimeMax, ShouldEqual, best)
			})
		})

		Convey("When a run is swept alone it matches a sequential run with the same seed", func() {
			result, err := Sweep(context.Background(), runs[:1], 4, raceTrackBuilder, nil)
			So(err, ShouldBeNil)

			env, agent, err := raceTrackBuilder(runs[0])
			So(err, ShouldBeNil)
			summary, err := Train(context.Background(), env, agent, cfg, nil)
			So(err, ShouldBeNil)
			So(result.Runs[0].Summary.History, ShouldResemble, summary.History)
		})

		Convey("When one run cannot be built the sweep fails", func() {
			buildErr := errors.New("no emulator")
			_, err := Sweep(context.Background(), runs, 3, func(spec RunSpec) (environment.Environment, *Agent, error) {
				if spec.Name == "seed-3" {
					return nil, nil, buildErr
				}
				return raceTrackBuilder(spec)
			}, nil)
			So(errors.Is(err, buildErr), ShouldBeTrue)
		})

		Convey("When the sweep is cancelled mid-run every started run is returned", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			long := trainConfig(1000, HyperParameter{Key: MaxStepsKey, Val: 50})
			pair := []RunSpec{
				{Name: "a", Seed: 11, Config: long},
				{Name: "b", Seed: 12, Config: long},
			}

			var episodes atomic.Int64
			result, err := Sweep(ctx, pair, 2, raceTrackBuilder, func(_ context.Context, _ Progress) {
				if episodes.Add(1) == 5 {
					cancel()
				}
			})
			So(err, ShouldBeNil)
			So(result.Runs, ShouldNotBeEmpty)

			best := math.Inf(-1)
			for i, run := range result.Runs {
				So(run.Summary, ShouldNotBeNil)
				So(run.Summary.Episodes, ShouldBeLessThan, 1000)
				So(len(run.Summary.History), ShouldEqual, run.Summary.Episodes)
				if i > 0 {
					So(run.Index, ShouldBeGreaterThan, result.Runs[i-1].Index)
				}
				best = math.Max(best, run.Summary.AllTimeMax)
			}
			So(result.BestScore, ShouldEqual, best)
			So(result.BestRun, ShouldBeBetweenOrEqual, 0, len(result.Runs)-1)
			So(result.Runs[result.BestRun].Summary.AllTimeMax, ShouldEqual, best)
		})

		Convey("When the context is already cancelled the sweep is empty and consistent", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			result, err := Sweep(ctx, runs, 2, raceTrackBuilder, nil)
			So(err, ShouldBeNil)
			for _, run := range result.Runs {
				So(run.Summary.Episodes, ShouldEqual, 0)
			}
			if len(result.Runs) == 0 {
				So(result.BestRun, ShouldEqual, -1)
				So(result.BestScore, ShouldEqual, 0)
			} else {
				So(result.Runs[result.BestRun].Summary.AllTimeMax, ShouldEqual, result.BestScore)
			}
		})

		Convey("When there are no runs the sweep is empty", func() {
			result, err := Sweep(context.Background(), nil, 4, raceTrackBuilder, nil)
			So(err, ShouldBeNil)
			So(result.Runs, ShouldBeEmpty)
			So(result.BestRun, ShouldEqual, -1)
		})
	})
}
