package fastview

import (
	"context"
	"errors"
	"time"

	channerics "github.com/niceyeti/channerics/channels"
)

// ViewBuilder constructs one or more views sharing a common view-model.
// Build wires the chans: source -> view-model -> broadcast to each view.
type ViewBuilder[DataModel any, ViewModel any] struct {
	source      <-chan DataModel          // The source type of data, e.g. training progress
	viewModelFn func(DataModel) ViewModel // Converts input data models to view models.
	builderFns  []ViewBuilderFunc[ViewModel]
	done        <-chan struct{} // Okay if nil
}

// NewViewBuilder returns a builder for a given data-model and view-model.
func NewViewBuilder[DataModel any, ViewModel any]() *ViewBuilder[DataModel, ViewModel] {
	return &ViewBuilder[DataModel, ViewModel]{}
}

// WithModel sets the source chan and the function converting its items to the view-model.
func (vb *ViewBuilder[DataModel, ViewModel]) WithModel(
	input <-chan DataModel,
	convert func(DataModel) ViewModel,
) *ViewBuilder[DataModel, ViewModel] {
	vb.source = input
	vb.viewModelFn = convert
	return vb
}

// ViewBuilderFunc builds a view from an input view-model channel and a 'done' channel for cleanup.
type ViewBuilderFunc[ViewModel any] func(<-chan struct{}, <-chan ViewModel) ViewComponent

// WithView adds a view to the list of views to build.
// They are returned in the same order as added when Build() is called.
func (vb *ViewBuilder[DataModel, ViewModel]) WithView(
	builderFn ViewBuilderFunc[ViewModel],
) *ViewBuilder[DataModel, ViewModel] {
	vb.builderFns = append(vb.builderFns, builderFn)
	return vb
}

// WithContext closes all downstream channels when ctx is cancelled.
func (vb *ViewBuilder[DataModel, ViewModel]) WithContext(
	ctx context.Context,
) *ViewBuilder[DataModel, ViewModel] {
	vb.done = ctx.Done()
	return vb
}

// ErrNoViews is returned when Build() is called before the caller has added any views.
var ErrNoViews error = errors.New("no views to build: WithView must be called")

// ErrNoModel is returned when Build() is called before WithModel() has been called.
var ErrNoModel error = errors.New("no model specified: WithModel must be called")

// Build executes the stored builders and returns the views in the order they were added.
// Every view must drain its Updates chan (directly or via FanIn), since the broadcast
// blocks until each view has received the current view-model.
func (vb *ViewBuilder[DataModel, ViewModel]) Build() (views []ViewComponent, err error) {
	if len(vb.builderFns) == 0 {
		return nil, ErrNoViews
	}
	if vb.viewModelFn == nil || vb.source == nil {
		return nil, ErrNoModel
	}

	vmChan := channerics.Convert(vb.done, vb.source, vb.viewModelFn)
	vmChans := channerics.Broadcast(vb.done, vmChan, len(vb.builderFns))
	for i, build := range vb.builderFns {
		views = append(views, build(vb.done, vmChans[i]))
	}
	return
}

// FanIn merges the views' ele-update chans into one, batched per rate.
func FanIn(
	done <-chan struct{},
	views []ViewComponent,
	rate time.Duration,
) <-chan []EleUpdate {
	inputs := make([]<-chan []EleUpdate, len(views))
	for i, view := range views {
		inputs[i] = view.Updates()
	}
	return batchify(
		done,
		channerics.Merge(done, inputs...),
		rate)
}

// batchify collects updates over the rate period before sending, overwriting earlier
// updates for the same ele-id so that only the latest value of each element is sent.
func batchify(
	done <-chan struct{},
	source <-chan []EleUpdate,
	rate time.Duration,
) <-chan []EleUpdate {
	output := make(chan []EleUpdate)

	go func() {
		defer close(output)

		data := map[string]EleUpdate{}
		last := time.Now()
		for updates := range channerics.OrDone(done, source) {
			for _, update := range updates {
				data[update.EleId] = update
			}

			if time.Since(last) < rate {
				continue
			}

			batch := make([]EleUpdate, 0, len(data))
			for _, update := range data {
				batch = append(batch, update)
			}

			select {
			case output <- batch:
				data = map[string]EleUpdate{}
				last = time.Now()
			case <-done:
				return
			}
		}
	}()

	return output
}
