// report presents training progress: a console banner per episode and an html chart of a run.
package report

import (
	"fmt"
	"io"
	"strings"

	"qspace/reinforcement"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/logrusorgru/aurora"
)

// PrintProgress prints the per-episode banner.
func PrintProgress(w io.Writer, p reinforcement.Progress) error {
	lines := []string{
		strings.Repeat("#", 50),
		fmt.Sprint("Current score ", aurora.Green(p.Score)),
		fmt.Sprint("Max score ", aurora.Yellow(p.AllTimeMax)),
		fmt.Sprint("Game number #", p.Episode),
		fmt.Sprint("Observed states ", aurora.Cyan(p.States)),
		fmt.Sprintf("Exploration probability %.1f%%", p.ExplorationFactor),
		fmt.Sprintf("Qs memory hit %.4f", p.HitRatio),
	}
	_, err := fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}

// PrintSweep prints one line per run of a sweep, highlighting the best.
func PrintSweep(w io.Writer, result *reinforcement.SweepResult) error {
	for i, run := range result.Runs {
		line := fmt.Sprintf("%-12s seed=%-6d episodes=%-6d states=%-8d max=%.1f",
			run.Spec.Name, run.Spec.Seed, run.Summary.Episodes, run.Summary.States, run.Summary.AllTimeMax)
		var err error
		if i == result.BestRun {
			_, err = fmt.Fprintln(w, aurora.Green(line).Bold())
		} else {
			_, err = fmt.Fprintln(w, line)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteScoreChart renders an html page charting, per episode, the score, the all-time max,
// the number of observed states and the exploration factor.
func WriteScoreChart(w io.Writer, title string, history []reinforcement.Progress) error {
	episodes := make([]string, 0, len(history))
	scores := make([]opts.LineData, 0, len(history))
	maxes := make([]opts.LineData, 0, len(history))
	states := make([]opts.LineData, 0, len(history))
	exploration := make([]opts.LineData, 0, len(history))
	for _, p := range history {
		episodes = append(episodes, fmt.Sprintf("%d", p.Episode))
		scores = append(scores, opts.LineData{Value: p.Score})
		maxes = append(maxes, opts.LineData{Value: p.AllTimeMax})
		states = append(states, opts.LineData{Value: p.States})
		exploration = append(exploration, opts.LineData{Value: p.ExplorationFactor})
	}

	scoreLine := charts.NewLine()
	scoreLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "score per episode"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
	)
	scoreLine.SetXAxis(episodes).
		AddSeries("score", scores).
		AddSeries("max score", maxes)

	stateLine := charts.NewLine()
	stateLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "observed states"}),
	)
	stateLine.SetXAxis(episodes).
		AddSeries("states", states)

	explorationLine := charts.NewLine()
	explorationLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "exploration probability (%)"}),
	)
	explorationLine.SetXAxis(episodes).
		AddSeries("exploration", exploration)

	page := components.NewPage()
	page.AddCharts(scoreLine, stateLine, explorationLine)
	return page.Render(w)
}
