package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"math"
	"net/http"
	"sync/atomic"
	"time"

	"qspace/atomic_float"
	"qspace/reinforcement"
	"qspace/server/fastview"
	"qspace/server/progress_views"
	"qspace/server/root_view"

	"github.com/gorilla/mux"
	channerics "github.com/niceyeti/channerics/channels"
)

const shutdownGracePeriod = 2 * time.Second

// Server serves a single progress page. The page's websocket streams the views'
// ele-updates; the views share one update chan, so concurrent pages split the updates.
type Server struct {
	addr     string
	rootView *root_view.RootView
	router   *mux.Router
	latest   atomic.Pointer[reinforcement.Progress]
	best     *atomic_float.AtomicFloat64
	received atomic.Int64
}

// Snapshot is the /stats payload. Best and Latest are absent until progress arrives.
type Snapshot struct {
	Received int64                   `json:"received"`
	Best     *float64                `json:"best,omitempty"`
	Latest   *reinforcement.Progress `json:"latest,omitempty"`
}

// NewServer builds the views and starts tracking progress until ctx is done.
// The progress chan is always drained: updates are forwarded to the views only
// when they are ready, so a slow or absent page never stalls training.
func NewServer(
	ctx context.Context,
	addr string,
	progress <-chan reinforcement.Progress,
) (*Server, error) {
	viewSource := make(chan reinforcement.Progress)
	rootView, err := root_view.NewRootView(ctx, viewSource)
	if err != nil {
		return nil, fmt.Errorf("root view: %w", err)
	}

	server := &Server{
		addr:     addr,
		rootView: rootView,
		best:     atomic_float.NewAtomicFloat64(math.Inf(-1)),
	}
	server.router = server.routes()

	go server.track(ctx.Done(), progress, viewSource)
	return server, nil
}

func (server *Server) track(
	done <-chan struct{},
	progress <-chan reinforcement.Progress,
	viewSource chan<- reinforcement.Progress,
) {
	for p := range channerics.OrDone(done, progress) {
		p := p
		// received is published last, so a nonzero count implies best and latest are set.
		server.best.AtomicMax(p.AllTimeMax)
		server.latest.Store(&p)
		server.received.Add(1)

		select {
		case viewSource <- p:
		default:
		}
	}
}

func (server *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", server.serveIndex).Methods(http.MethodGet)
	router.HandleFunc("/ws", server.serveWebsocket).Methods(http.MethodGet)
	router.HandleFunc("/stats", server.serveStats).Methods(http.MethodGet)
	return router
}

// Handler exposes the routes, e.g. for httptest.
func (server *Server) Handler() http.Handler {
	return server.router
}

// Snapshot returns the current tracking state.
func (server *Server) Snapshot() Snapshot {
	snapshot := Snapshot{Received: server.received.Load()}
	if snapshot.Received > 0 {
		best := server.best.AtomicRead()
		snapshot.Best = &best
		snapshot.Latest = server.latest.Load()
	}
	return snapshot
}

// Serve listens until ctx is done, then shuts down. A shutdown is not an error.
func (server *Server) Serve(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              server.addr,
		Handler:           server.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// serveWebsocket publishes view updates to the client until it disconnects.
func (server *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	cli, err := fastview.NewClient(server.rootView.Updates(), w, r)
	if err != nil {
		log.Println(err)
		return
	}

	if err := cli.Sync(); err != nil {
		log.Println("sync:", err)
	}
}

func (server *Server) serveStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(server.Snapshot()); err != nil {
		log.Println("stats:", err)
	}
}

// Serve the index.html main page, populated with the latest progress.
func (server *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	var stats progress_views.Stats
	if latest := server.latest.Load(); latest != nil {
		stats = progress_views.Convert(*latest)
	} else {
		stats = progress_views.Convert(reinforcement.Progress{})
	}

	w.Header().Set("Content-Type", "text/html")
	if err := renderTemplate(w, server.rootView, stats); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func renderTemplate(
	w io.Writer,
	vc fastview.ViewComponent,
	data interface{},
) (err error) {
	t := template.New("index.html")
	var tname string
	if tname, err = vc.Parse(t); err != nil {
		return
	}
	if _, err = t.Parse(`{{ template "` + tname + `" . }}`); err != nil {
		return
	}

	err = t.Execute(w, data)
	return
}
