package report

import (
	"bytes"
	"strings"
	"testing"

	"qspace/reinforcement"

	. "github.com/smartystreets/goconvey/convey"
)

func TestPrintProgress(t *testing.T) {
	Convey("When printing an episode banner", t, func() {
		buf := &bytes.Buffer{}
		err := PrintProgress(buf, reinforcement.Progress{
			Episode:           7,
			Score:             30,
			AllTimeMax:        40,
			States:            1234,
			ExplorationFactor: 59.5,
			HitRatio:          0.25,
		})
		So(err, ShouldBeNil)
		out := buf.String()
		So(out, ShouldStartWith, strings.Repeat("#", 50))
		So(out, ShouldContainSubstring, "Game number #7")
		So(out, ShouldContainSubstring, "1234")
		So(out, ShouldContainSubstring, "Exploration probability 59.5%")
		So(out, ShouldContainSubstring, "Qs memory hit 0.2500")
	})
}

func TestPrintSweep(t *testing.T) {
	Convey("When printing a sweep every run gets a line", t, func() {
		buf := &bytes.Buffer{}
		result := &reinforcement.SweepResult{
			BestRun: 1,
			Runs: []reinforcement.RunResult{
				{Spec: reinforcement.RunSpec{Name: "a", Seed: 1}, Summary: &reinforcement.Summary{Episodes: 2, AllTimeMax: 10}},
				{Spec: reinforcement.RunSpec{Name: "b", Seed: 2}, Summary: &reinforcement.Summary{Episodes: 2, AllTimeMax: 20}},
			},
		}
		So(PrintSweep(buf, result), ShouldBeNil)
		So(strings.Count(buf.String(), "\n"), ShouldEqual, 2)
		So(buf.String(), ShouldContainSubstring, "max=20.0")
	})
}

func TestWriteScoreChart(t *testing.T) {
	Convey("When charting a run the page contains the series", t, func() {
		buf := &bytes.Buffer{}
		history := []reinforcement.Progress{
			{Episode: 1, Score: 0, AllTimeMax: 0, States: 10, ExplorationFactor: 60},
			{Episode: 2, Score: 10, AllTimeMax: 10, States: 25, ExplorationFactor: 58},
		}
		So(WriteScoreChart(buf, "debug track", history), ShouldBeNil)
		page := buf.String()
		So(page, ShouldContainSubstring, "<html")
		So(page, ShouldContainSubstring, "debug track")
		So(page, ShouldContainSubstring, "max score")
		So(page, ShouldContainSubstring, "observed states")
	})
}
