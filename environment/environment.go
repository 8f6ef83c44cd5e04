// environment describes the collaborators the agent talks to: an episodic environment
// producing image-like frames, and the discrete action space it accepts.
package environment

import (
	"errors"
	"fmt"
	"math/rand"
)

// LivesKey is the Info key by which environments report remaining lives.
const LivesKey = "lives"

var (
	// ErrInvalidAction is returned by Step for actions outside the action space.
	ErrInvalidAction = errors.New("invalid action")
	// ErrMalformedObservation indicates an observation whose pixels do not fill its shape.
	ErrMalformedObservation = errors.New("malformed observation")
)

// Observation is one frame of the environment: a Height x Width x Channels array
// of samples stored row-major, such that Pix[(y*Width+x)*Channels+c] is channel c
// of pixel (x,y). Observations are treated as immutable once returned by Reset or Step.
type Observation struct {
	Height, Width, Channels int
	Pix                     []float64
}

// NewObservation allocates a zeroed frame of the given shape.
func NewObservation(height, width, channels int) Observation {
	return Observation{
		Height:   height,
		Width:    width,
		Channels: channels,
		Pix:      make([]float64, height*width*channels),
	}
}

// Shape returns the frame dimensions.
func (obs Observation) Shape() (height, width, channels int) {
	return obs.Height, obs.Width, obs.Channels
}

func (obs Observation) offset(y, x, c int) int {
	return (y*obs.Width+x)*obs.Channels + c
}

// At returns channel c of the pixel at row y, column x.
func (obs Observation) At(y, x, c int) float64 {
	return obs.Pix[obs.offset(y, x, c)]
}

// Set writes channel c of the pixel at row y, column x.
func (obs Observation) Set(y, x, c int, val float64) {
	obs.Pix[obs.offset(y, x, c)] = val
}

// Validate checks that the pixel data exactly fills the declared shape.
func (obs Observation) Validate() error {
	if obs.Height <= 0 || obs.Width <= 0 || obs.Channels <= 0 {
		return fmt.Errorf("%w: non-positive shape (%d,%d,%d)",
			ErrMalformedObservation, obs.Height, obs.Width, obs.Channels)
	}
	if want := obs.Height * obs.Width * obs.Channels; len(obs.Pix) != want {
		return fmt.Errorf("%w: shape (%d,%d,%d) needs %d samples, got %d",
			ErrMalformedObservation, obs.Height, obs.Width, obs.Channels, want, len(obs.Pix))
	}
	return nil
}

// Info is auxiliary, environment-specific step information.
type Info map[string]float64

// Lives returns the remaining lives, if the environment reports them.
func (info Info) Lives() (lives float64, ok bool) {
	lives, ok = info[LivesKey]
	return
}

// TimeStep is the outcome of a single environment step.
type TimeStep struct {
	Observation Observation
	Reward      float64
	Done        bool
	Info        Info
}

// Environment is an episodic simulator whose dynamics are opaque to the agent.
type Environment interface {
	// Reset begins a new episode and returns its initial observation.
	Reset() (Observation, error)
	// Step applies the action and returns the successor observation, reward, termination flag and info.
	Step(action int) (TimeStep, error)
	ActionSpace() ActionSpace
}

// ActionSpace is an enumerable set of legal actions, 0 through N()-1.
type ActionSpace interface {
	// Sample returns a uniformly random legal action.
	Sample() int
	N() int
}

// Discrete is an ActionSpace of n contiguous integer actions.
// It draws from its own generator so that independent runs never share random state.
type Discrete struct {
	n   int
	rng *rand.Rand
}

// NewDiscrete returns a discrete action space of n actions sampled with rng.
func NewDiscrete(n int, rng *rand.Rand) *Discrete {
	if n <= 0 {
		panic(fmt.Sprintf("discrete action space requires n > 0, got %d", n))
	}
	return &Discrete{n: n, rng: rng}
}

func (d *Discrete) Sample() int {
	return d.rng.Intn(d.n)
}

func (d *Discrete) N() int {
	return d.n
}

// Contains reports whether action is legal in this space.
func (d *Discrete) Contains(action int) bool {
	return action >= 0 && action < d.n
}
