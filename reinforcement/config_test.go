package reinforcement

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

const trainingDoc = `kind: TrainingConfig
def:
  episodes: 25
  seed: 7
  track: debug
  tablepath: q.yaml
  reduction:
    rows: 8
    cols: 6
  hyperparams:
    - key: learningRate
      val: 0.2
    - key: explorationDecay
      val: 1
    - key: maxSteps
      val: 300
  trainingdeadline:
    duration: 90s
`

func writeDoc(t *testing.T, doc string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromYaml(t *testing.T) {
	Convey("Given a training config document", t, func() {
		cfg, err := FromYaml(writeDoc(t, trainingDoc))
		So(err, ShouldBeNil)

		Convey("The definition is decoded", func() {
			So(cfg.Episodes, ShouldEqual, 25)
			So(cfg.Seed, ShouldEqual, 7)
			So(cfg.Track, ShouldEqual, "debug")
			So(cfg.TablePath, ShouldEqual, "q.yaml")
			So(cfg.Reduction, ShouldResemble, ReductionConfig{Rows: 8, Cols: 6})
			So(cfg.GetHyperParamOrDefault(MaxStepsKey, 0), ShouldEqual, 300)
			So(cfg.Validate(), ShouldBeNil)
		})

		Convey("Listed hyperparameters override the agent defaults and the rest are defaulted", func() {
			agentCfg := cfg.AgentConfig()
			def := DefaultAgentConfig()
			So(agentCfg.LearningRate, ShouldEqual, 0.2)
			So(agentCfg.ExplorationDecay, ShouldEqual, 1)
			So(agentCfg.DiscountFactor, ShouldEqual, def.DiscountFactor)
			So(agentCfg.ExplorationRate, ShouldEqual, def.ExplorationRate)
		})

		Convey("The training deadline bounds the context", func() {
			ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
			So(err, ShouldBeNil)
			defer cancel()
			deadline, ok := ctx.Deadline()
			So(ok, ShouldBeTrue)
			So(time.Until(deadline).Seconds(), ShouldBeBetween, 80.0, 91.0)
		})
	})

	Convey("When the document is of another kind it is rejected", t, func() {
		_, err := FromYaml(writeDoc(t, "kind: SomethingElse\ndef:\n  episodes: 3\n"))
		So(errors.Is(err, ErrUnknownKind), ShouldBeTrue)
	})

	Convey("When the file does not exist an error is returned", t, func() {
		_, err := FromYaml(filepath.Join(t.TempDir(), "absent.yaml"))
		So(err, ShouldNotBeNil)
	})
}

func TestValidate(t *testing.T) {
	valid := func() *TrainingConfig {
		return &TrainingConfig{Episodes: 1, Reduction: ReductionConfig{Rows: 1, Cols: 1}}
	}

	Convey("Defaults are valid", t, func() {
		So(valid().Validate(), ShouldBeNil)
	})

	Convey("Out of range values are invalid", t, func() {
		cases := []func(*TrainingConfig){
			func(cfg *TrainingConfig) { cfg.Episodes = 0 },
			func(cfg *TrainingConfig) { cfg.Reduction.Cols = 0 },
			func(cfg *TrainingConfig) {
				cfg.HyperParams = []HyperParameter{{Key: LearningRateKey, Val: 1}}
			},
			func(cfg *TrainingConfig) {
				cfg.HyperParams = []HyperParameter{{Key: DiscountFactorKey, Val: 1.5}}
			},
		}
		for _, mutate := range cases {
			cfg := valid()
			mutate(cfg)
			So(errors.Is(cfg.Validate(), ErrInvalidConfig), ShouldBeTrue)
		}
	})

	Convey("A malformed deadline is an error and no deadline means none", t, func() {
		cfg := valid()
		cfg.TrainingDeadline = map[string]string{"duration": "soon"}
		_, _, err := cfg.WithTrainingDeadline(context.Background())
		So(err, ShouldNotBeNil)

		cfg.TrainingDeadline = nil
		ctx, cancel, err := cfg.WithTrainingDeadline(context.Background())
		So(err, ShouldBeNil)
		defer cancel()
		_, ok := ctx.Deadline()
		So(ok, ShouldBeFalse)
	})
}
