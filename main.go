/*
qspace trains a tabular Q-learning agent on pixel observations of a race track.
Frames are block-summed into a small reduced state whose fingerprint keys the
Q-table, so the agent never sees the track's grid coordinates directly.

Training runs either as a single run, whose table is loaded from and saved to the
configured path, or as a sweep of independently seeded runs across workers. Progress
is printed per episode and optionally streamed to a browser page and charted as html.
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"time"

	"qspace/environment"
	"qspace/grid_world"
	"qspace/reinforcement"
	"qspace/report"
	"qspace/server"
	"qspace/state_reducer"

	"golang.org/x/sync/errgroup"
)

var (
	configPath = flag.String("config", "./config.yaml", "path to the training config")
	dbg        = flag.Bool("debug", false, "debug mode: small track, one reduced cell per track cell")
	nworkers   = flag.Int("nworkers", runtime.NumCPU(), "number of worker training routines")
	host       = flag.String("host", "", "The host ip")
	port       = flag.String("port", "8080", "The host port")
	serve      = flag.Bool("serve", false, "serve the progress page while training, and after until interrupted")
	sweep      = flag.Bool("sweep", false, "train nworkers independently seeded runs instead of one")
	chartPath  = flag.String("chart", "", "write an html chart of the (best) run to this path")
	render     = flag.Bool("render", false, "render the track to stdout while the agent mostly explores")
)

func main() {
	flag.Parse()
	if err := runApp(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func loadConfig() (*reinforcement.TrainingConfig, error) {
	cfg, err := reinforcement.FromYaml(*configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if *dbg {
		cfg.Track = "debug"
		rows := len(grid_world.DebugTrack)
		cols := len(grid_world.DebugTrack[0])
		cfg.Reduction = reinforcement.ReductionConfig{Rows: rows, Cols: cols}
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildRun constructs a fresh race track and agent for spec. Extra agent options,
// such as a loaded table, apply to single runs only.
func buildRun(spec reinforcement.RunSpec, agentOpts ...reinforcement.AgentOption) (environment.Environment, *reinforcement.Agent, error) {
	cfg := spec.Config
	rng := rand.New(rand.NewSource(spec.Seed))
	lives := int(cfg.GetHyperParamOrDefault(reinforcement.LivesKey, grid_world.DEFAULT_LIVES))

	env, err := grid_world.NewRaceTrack(grid_world.Select(cfg.Track), lives, rng)
	if err != nil {
		return nil, nil, err
	}

	height, width, channels := env.Shape()
	reducer, err := state_reducer.New(state_reducer.Geometry{
		Height:   height,
		Width:    width,
		Channels: channels,
		Rows:     cfg.Reduction.Rows,
		Cols:     cfg.Reduction.Cols,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("reducer: %w", err)
	}

	opts := append([]reinforcement.AgentOption{
		reinforcement.WithRand(rand.New(rand.NewSource(rng.Int63()))),
	}, agentOpts...)
	agent := reinforcement.NewAgent(cfg.AgentConfig(), reducer, env.ActionSpace(), opts...)
	return env, agent, nil
}

// loadTable returns the persisted table, or nil if there is none yet.
func loadTable(path string) (*reinforcement.QTable, error) {
	if path == "" {
		return nil, nil
	}
	table, err := reinforcement.LoadTableFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return table, err
}

func runApp() (err error) {
	var cfg *reinforcement.TrainingConfig
	if cfg, err = loadConfig(); err != nil {
		return
	}

	appCtx, appCancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer appCancel()

	group, groupCtx := errgroup.WithContext(appCtx)

	progress := make(chan reinforcement.Progress)
	if *serve {
		addr := *host + ":" + *port
		var srv *server.Server
		if srv, err = server.NewServer(groupCtx, addr, progress); err != nil {
			return
		}
		group.Go(func() error {
			return srv.Serve(groupCtx)
		})
		log.Println("serving progress on", addr)
	}

	// Called synchronously by training, concurrently during a sweep.
	exportProgress := func(ctx context.Context, p reinforcement.Progress) {
		if err := report.PrintProgress(os.Stdout, p); err != nil {
			log.Println(err)
		}
		if !*serve {
			return
		}
		select {
		case progress <- p:
		case <-ctx.Done():
		}
	}

	group.Go(func() error {
		trainingCtx, cancel, err := cfg.WithTrainingDeadline(groupCtx)
		if err != nil {
			return err
		}
		defer cancel()

		var history []reinforcement.Progress
		if *sweep {
			history, err = runSweep(trainingCtx, cfg, exportProgress)
		} else {
			history, err = runSingle(trainingCtx, cfg, exportProgress)
		}
		if err != nil {
			return err
		}

		if *chartPath != "" {
			if err = writeChart(*chartPath, cfg, history); err != nil {
				return err
			}
		}
		if *serve {
			log.Println("training complete; serving until interrupted")
		}
		return nil
	})

	err = group.Wait()
	return
}

func runSingle(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	progressFn reinforcement.ProgressFunc,
) ([]reinforcement.Progress, error) {
	table, err := loadTable(cfg.TablePath)
	if err != nil {
		return nil, err
	}
	var agentOpts []reinforcement.AgentOption
	if table != nil {
		log.Printf("resuming from %s with %d states", cfg.TablePath, table.Len())
		agentOpts = append(agentOpts, reinforcement.WithTable(table))
	}

	spec := reinforcement.RunSpec{Name: cfg.Track, Seed: cfg.Seed, Config: cfg}
	env, agent, err := buildRun(spec, agentOpts...)
	if err != nil {
		return nil, err
	}

	var trainOpts []reinforcement.TrainOption
	if *render {
		trainOpts = append(trainOpts, reinforcement.WithRenderer(os.Stdout))
	}
	summary, err := reinforcement.Train(ctx, env, agent, cfg, progressFn, trainOpts...)
	if err != nil {
		return nil, err
	}
	log.Printf("trained %d episodes, max score %.1f, %d states", summary.Episodes, summary.AllTimeMax, summary.States)

	if cfg.TablePath != "" {
		if err = agent.Table().SaveFile(cfg.TablePath); err != nil {
			return nil, err
		}
	}
	return summary.History, nil
}

func runSweep(
	ctx context.Context,
	cfg *reinforcement.TrainingConfig,
	progressFn reinforcement.ProgressFunc,
) ([]reinforcement.Progress, error) {
	runs := make([]reinforcement.RunSpec, *nworkers)
	for i := range runs {
		seed := cfg.Seed + int64(i)
		runs[i] = reinforcement.RunSpec{
			Name:   fmt.Sprintf("seed-%d", seed),
			Seed:   seed,
			Config: cfg,
		}
	}

	result, err := reinforcement.Sweep(ctx, runs, *nworkers, func(spec reinforcement.RunSpec) (environment.Environment, *reinforcement.Agent, error) {
		return buildRun(spec)
	}, progressFn)
	if err != nil {
		return nil, err
	}
	if err = report.PrintSweep(os.Stdout, result); err != nil {
		return nil, err
	}
	if result.BestRun < 0 {
		return nil, nil
	}

	best := result.Runs[result.BestRun]
	if cfg.TablePath != "" {
		if err = best.Agent.Table().SaveFile(cfg.TablePath); err != nil {
			return nil, err
		}
	}
	return best.Summary.History, nil
}

func writeChart(path string, cfg *reinforcement.TrainingConfig, history []reinforcement.Progress) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	title := fmt.Sprintf("%s track, seed %d", cfg.Track, cfg.Seed)
	return report.WriteScoreChart(f, title, history)
}
