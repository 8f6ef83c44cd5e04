package root_view

import (
	"context"
	"html/template"
	"time"

	"qspace/reinforcement"
	"qspace/server/fastview"
	"qspace/server/progress_views"
)

const batchRate = time.Millisecond * 20

// RootView is the main page's index.html, the container for all the
// view components and the wiring of their channels.
type RootView struct {
	views   []fastview.ViewComponent
	updates <-chan []fastview.EleUpdate
}

// NewRootView creates the main page and the views it contains, all fed from progress.
func NewRootView(
	ctx context.Context,
	progress <-chan reinforcement.Progress,
) (*RootView, error) {
	views, err := fastview.NewViewBuilder[reinforcement.Progress, progress_views.Stats]().
		WithContext(ctx).
		WithModel(progress, progress_views.Convert).
		WithView(func(
			done <-chan struct{},
			stats <-chan progress_views.Stats) fastview.ViewComponent {
			return progress_views.NewStatsView(done, stats)
		}).
		WithView(func(
			done <-chan struct{},
			stats <-chan progress_views.Stats) fastview.ViewComponent {
			return progress_views.NewGaugeView(done, stats)
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &RootView{
		views:   views,
		updates: fastview.FanIn(ctx.Done(), views, batchRate),
	}, nil
}

// Updates returns the main ele-update channel for all the views.
func (rv *RootView) Updates() <-chan []fastview.EleUpdate {
	return rv.updates
}

// Parse builds the main page's template, with websocket bootstrap code, and returns its name.
// The page executes against a progress_views.Stats.
func (rv *RootView) Parse(
	parent *template.Template,
) (name string, err error) {
	var bodySpec string
	for _, vc := range rv.views {
		tname, parseErr := vc.Parse(parent)
		if parseErr != nil {
			return "", parseErr
		}
		bodySpec += `{{ template "` + tname + `" . }}`
	}

	// The page (re)connects its websocket and applies each batch of updates by element id.
	name = "mainpage"
	indexTemplate := `
	{{ define "` + name + `" }}
	<!DOCTYPE html>
	<html>
		<head>
			<link rel="icon" href="data:,">
			<title>qspace training</title>
			<script>
				function applyUpdates(updates) {
					for (const update of updates) {
						const ele = document.getElementById(update.EleId);
						if (ele === null) {
							continue;
						}
						for (const op of update.Ops) {
							if (op.Key === "textContent") {
								ele.textContent = op.Value;
							} else {
								ele.setAttribute(op.Key, op.Value);
							}
						}
					}
				}

				function connect() {
					const status = document.getElementById("connection");
					const sock = new WebSocket("ws://" + location.host + "/ws");
					sock.onopen = () => { status.textContent = "live"; };
					sock.onmessage = (event) => applyUpdates(JSON.parse(event.data));
					sock.onclose = () => {
						status.textContent = "disconnected";
						setTimeout(connect, 2000);
					};
				}

				window.addEventListener("load", connect);
			</script>
		</head>
		<body>
			<p>stream: <span id="connection">connecting</span></p>
		` + bodySpec + `
		</body></html>
	{{ end }}
	`

	_, err = parent.Parse(indexTemplate)
	return
}
