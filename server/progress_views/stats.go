package progress_views

import (
	"fmt"
	"math"

	"qspace/reinforcement"
)

// Stats is the view-model of training progress: display strings plus the
// fractions the gauges are drawn from.
type Stats struct {
	Episode     string
	Score       string
	MaxScore    string
	States      string
	Exploration string
	HitRatio    string
	// Fractions in [0,1]
	ExplorationFrac float64
	HitFrac         float64
}

// Convert maps training progress to its view-model.
func Convert(p reinforcement.Progress) Stats {
	return Stats{
		Episode:         fmt.Sprintf("%d", p.Episode),
		Score:           fmt.Sprintf("%.1f", p.Score),
		MaxScore:        fmt.Sprintf("%.1f", p.AllTimeMax),
		States:          fmt.Sprintf("%d", p.States),
		Exploration:     fmt.Sprintf("%.1f%%", p.ExplorationFactor),
		HitRatio:        fmt.Sprintf("%.4f", p.HitRatio),
		ExplorationFrac: unit(p.ExplorationFactor / 100),
		HitFrac:         unit(p.HitRatio),
	}
}

func unit(f float64) float64 {
	if math.IsNaN(f) {
		return 0
	}
	return math.Max(math.Min(f, 1), 0)
}
