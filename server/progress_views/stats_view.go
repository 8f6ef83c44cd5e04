package progress_views

import (
	"html/template"

	"qspace/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

// Element ids of the stats table. Ids must not contain hyphens, which
// interfere with html/template's `template` directive.
const (
	EpisodeId     = "episode"
	ScoreId       = "score"
	MaxScoreId    = "maxscore"
	StatesId      = "states"
	ExplorationId = "exploration"
	HitRatioId    = "hitratio"
)

// StatsView is a table of the latest episode's numbers.
type StatsView struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewStatsView(
	done <-chan struct{},
	stats <-chan Stats,
) *StatsView {
	sv := &StatsView{id: "statsview"}
	sv.updates = channerics.Convert(done, stats, sv.onUpdate)
	return sv
}

func (sv *StatsView) Updates() <-chan []fastview.EleUpdate {
	return sv.updates
}

func (sv *StatsView) onUpdate(s Stats) []fastview.EleUpdate {
	return []fastview.EleUpdate{
		fastview.SetText(EpisodeId, s.Episode),
		fastview.SetText(ScoreId, s.Score),
		fastview.SetText(MaxScoreId, s.MaxScore),
		fastview.SetText(StatesId, s.States),
		fastview.SetText(ExplorationId, s.Exploration),
		fastview.SetText(HitRatioId, s.HitRatio),
	}
}

// Parse defines the stats table; it executes against a Stats.
func (sv *StatsView) Parse(t *template.Template) (string, error) {
	_, err := t.Parse(`{{ define "` + sv.id + `" }}
	<table>
		<tr><td>Game number</td><td id="` + EpisodeId + `">{{ .Episode }}</td></tr>
		<tr><td>Current score</td><td id="` + ScoreId + `">{{ .Score }}</td></tr>
		<tr><td>Max score</td><td id="` + MaxScoreId + `">{{ .MaxScore }}</td></tr>
		<tr><td>Observed states</td><td id="` + StatesId + `">{{ .States }}</td></tr>
		<tr><td>Exploration probability</td><td id="` + ExplorationId + `">{{ .Exploration }}</td></tr>
		<tr><td>Qs memory hit</td><td id="` + HitRatioId + `">{{ .HitRatio }}</td></tr>
	</table>
	{{ end }}`)
	return sv.id, err
}
