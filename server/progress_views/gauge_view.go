package progress_views

import (
	"fmt"
	"html/template"

	"qspace/server/fastview"

	channerics "github.com/niceyeti/channerics/channels"
)

const (
	ExplorationBarId = "explorationbar"
	HitBarId         = "hitbar"
	gaugeWidth       = 300.0
	gaugeHeight      = 20.0
)

// GaugeView draws the exploration probability and memory hit ratio as svg bars.
type GaugeView struct {
	id      string
	updates <-chan []fastview.EleUpdate
}

func NewGaugeView(
	done <-chan struct{},
	stats <-chan Stats,
) *GaugeView {
	gv := &GaugeView{id: "gaugeview"}
	gv.updates = channerics.Convert(done, stats, gv.onUpdate)
	return gv
}

func (gv *GaugeView) Updates() <-chan []fastview.EleUpdate {
	return gv.updates
}

func barWidth(frac float64) string {
	return fmt.Sprintf("%.1f", frac*gaugeWidth)
}

func (gv *GaugeView) onUpdate(s Stats) []fastview.EleUpdate {
	return []fastview.EleUpdate{
		{
			EleId: ExplorationBarId,
			Ops:   []fastview.Op{{Key: "width", Value: barWidth(s.ExplorationFrac)}},
		},
		{
			EleId: HitBarId,
			Ops:   []fastview.Op{{Key: "width", Value: barWidth(s.HitFrac)}},
		},
	}
}

// Parse defines the gauges; it executes against a Stats.
func (gv *GaugeView) Parse(t *template.Template) (string, error) {
	t.Funcs(template.FuncMap{
		"barwidth": barWidth,
	})

	bar := func(id, label string, y int, frac string) string {
		return fmt.Sprintf(`
		<text x="0" y="%d">%s</text>
		<rect x="120" y="%d" width="%.0f" height="%.0f" fill="lightgrey"></rect>
		<rect id="%s" x="120" y="%d" width="{{ barwidth %s }}" height="%.0f" fill="steelblue"></rect>`,
			y+15, label, y, gaugeWidth, gaugeHeight, id, y, frac, gaugeHeight)
	}

	_, err := t.Parse(`{{ define "` + gv.id + `" }}
	<svg width="440" height="70">` +
		bar(ExplorationBarId, "exploration", 5, ".ExplorationFrac") +
		bar(HitBarId, "memory hit", 40, ".HitFrac") + `
	</svg>
	{{ end }}`)
	return gv.id, err
}
