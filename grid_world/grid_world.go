// grid_world implements the race track problem as a frame-producing environment:
// a car accelerates around a track, and the agent only ever sees rendered frames of it.
package grid_world

import (
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"

	"qspace/environment"

	"github.com/logrusorgru/aurora"
)

const (
	// Track cell types
	WALL   = 'W'
	TRACK  = 'o'
	START  = '-'
	FINISH = '+'

	// Kinematic actions in the x and y direction. A velocity of 1 means traveling one grid cell per time step.
	MAX_VELOCITY      = 4
	MIN_VELOCITY      = -MAX_VELOCITY
	MAX_ACCELERATION  = 1
	MIN_ACCELERATION  = -1
	NUM_ACCELERATIONS = MAX_ACCELERATION - MIN_ACCELERATION + 1
	NUM_ACTIONS       = NUM_ACCELERATIONS * NUM_ACCELERATIONS

	// Rewards. Crashing is not rewarded directly; it costs a life.
	STEP_REWARD   = 0
	FINISH_REWARD = 10

	// Rendering: each track cell is CELL_PIXELS square, in RGB.
	CELL_PIXELS = 4
	CHANNELS    = 3

	DEFAULT_LIVES = 3
)

// The classical track and a smaller debug track for development.
var (
	DebugTrack []string = []string{
		"WWWWWW",
		"Woooo+",
		"Woooo+",
		"WooWWW",
		"WooWWW",
		"WooWWW",
		"WooWWW",
		"W--WWW",
	}

	FullTrack []string = []string{
		"WWWWWWWWWWWWWWWWWW",
		"WWWWooooooooooooo+",
		"WWWoooooooooooooo+",
		"WWWoooooooooooooo+",
		"WWooooooooooooooo+",
		"Woooooooooooooooo+",
		"Woooooooooooooooo+",
		"WooooooooooWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WoooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWooooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWoooooooWWWWWWWW",
		"WWWWooooooWWWWWWWW",
		"WWWWooooooWWWWWWWW",
		"WWWW------WWWWWWWW",
	}
)

var (
	// ErrBadTrack is returned for empty, ragged or start-less tracks.
	ErrBadTrack = errors.New("bad track")
	// ErrEpisodeOver is returned by Step once all lives are spent; call Reset.
	ErrEpisodeOver = errors.New("episode over")
)

// Select returns the named track: "debug" or "full" (the default).
func Select(name string) []string {
	if name == "debug" {
		return DebugTrack
	}
	return FullTrack
}

// Action consists of a velocity increment/decrement in the horizontal and vertical direction.
// In this problem, three actions (+1, -1, 0) yields 9 actions per step, e.g. |(+1, -1, 0)|**2.
type Action struct {
	Dvx, Dvy int
}

// ActionOf decodes a discrete action index in [0, NUM_ACTIONS).
func ActionOf(action int) Action {
	return Action{
		Dvx: action/NUM_ACCELERATIONS + MIN_ACCELERATION,
		Dvy: action%NUM_ACCELERATIONS + MIN_ACCELERATION,
	}
}

// IndexOf encodes an acceleration as its discrete action index.
func IndexOf(act Action) int {
	return (act.Dvx-MIN_ACCELERATION)*NUM_ACCELERATIONS + (act.Dvy - MIN_ACCELERATION)
}

// Car is the car's position and velocity. The orientation is such that the bottom/left
// most position of the track (when printed in a console) is (0,0), so +1 velocity yields +1 position.
type Car struct {
	X, Y, VX, VY int
}

type position struct {
	x, y int
}

// RaceTrack is an Environment: each episode the car starts on a random start cell, with
// DEFAULT_LIVES lives by default. Crashing into a wall or off the grid costs a life and respawns the car;
// crossing the finish line scores FINISH_REWARD and respawns it. The episode ends when no lives remain.
type RaceTrack struct {
	track        []string
	width        int
	height       int
	starts       []position
	initialLives int
	rng          *rand.Rand
	actions      *environment.Discrete

	car   Car
	prev  position
	lives int
}

// NewRaceTrack validates the track and returns an environment drawing randomness from rng.
func NewRaceTrack(track []string, lives int, rng *rand.Rand) (*RaceTrack, error) {
	if len(track) == 0 || len(track[0]) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrBadTrack)
	}
	if lives <= 0 {
		lives = DEFAULT_LIVES
	}

	rt := &RaceTrack{
		track:        track,
		width:        len(track[0]),
		height:       len(track),
		initialLives: lives,
		rng:          rng,
		actions:      environment.NewDiscrete(NUM_ACTIONS, rand.New(rand.NewSource(rng.Int63()))),
	}
	for row, line := range track {
		if len(line) != rt.width {
			return nil, fmt.Errorf("%w: row %d has width %d, expected %d", ErrBadTrack, row, len(line), rt.width)
		}
	}
	for x := 0; x < rt.width; x++ {
		for y := 0; y < rt.height; y++ {
			if rt.cellAt(x, y) == START {
				rt.starts = append(rt.starts, position{x, y})
			}
		}
	}
	if len(rt.starts) == 0 {
		return nil, fmt.Errorf("%w: no start cells", ErrBadTrack)
	}
	return rt, nil
}

// Shape returns the dimensions of observation frames.
func (rt *RaceTrack) Shape() (height, width, channels int) {
	return rt.height * CELL_PIXELS, rt.width * CELL_PIXELS, CHANNELS
}

// GridDims returns the track's dimensions in cells.
func (rt *RaceTrack) GridDims() (rows, cols int) {
	return rt.height, rt.width
}

// Car returns the car's current position and velocity.
func (rt *RaceTrack) Car() Car {
	return rt.car
}

// Lives returns the remaining lives.
func (rt *RaceTrack) Lives() int {
	return rt.lives
}

func (rt *RaceTrack) ActionSpace() environment.ActionSpace {
	return rt.actions
}

// cellAt returns the cell type at grid position (x,y), with y=0 the bottom row.
func (rt *RaceTrack) cellAt(x, y int) rune {
	return rune(rt.track[rt.height-y-1][x])
}

func (rt *RaceTrack) inBounds(x, y int) bool {
	return x >= 0 && x < rt.width && y >= 0 && y < rt.height
}

func (rt *RaceTrack) respawn() {
	start := rt.starts[rt.rng.Intn(len(rt.starts))]
	rt.car = Car{X: start.x, Y: start.y}
	rt.prev = start
}

// Reset restores all lives, places the car on a random start cell at rest, and returns its frame.
func (rt *RaceTrack) Reset() (environment.Observation, error) {
	rt.lives = rt.initialLives
	rt.respawn()
	return rt.frame(), nil
}

// Step applies the acceleration, clamps the velocity, and moves the car along its path.
func (rt *RaceTrack) Step(action int) (environment.TimeStep, error) {
	if !rt.actions.Contains(action) {
		return environment.TimeStep{}, fmt.Errorf("%w: %d not in [0,%d)", environment.ErrInvalidAction, action, NUM_ACTIONS)
	}
	if rt.lives <= 0 {
		return environment.TimeStep{}, ErrEpisodeOver
	}

	acc := ActionOf(action)
	vx := clamp(rt.car.VX+acc.Dvx, MIN_VELOCITY, MAX_VELOCITY)
	vy := clamp(rt.car.VY+acc.Dvy, MIN_VELOCITY, MAX_VELOCITY)

	reward := float64(STEP_REWARD)
	switch stop, cell := rt.traverse(vx, vy); cell {
	case WALL:
		rt.lives--
		rt.respawn()
	case FINISH:
		reward = FINISH_REWARD
		rt.respawn()
	default:
		rt.prev = position{rt.car.X, rt.car.Y}
		rt.car = Car{X: stop.x, Y: stop.y, VX: vx, VY: vy}
	}

	return environment.TimeStep{
		Observation: rt.frame(),
		Reward:      reward,
		Done:        rt.lives <= 0,
		Info:        environment.Info{environment.LivesKey: float64(rt.lives)},
	}, nil
}

// traverse walks the straight line from the car along <vx,vy> one cell-step at a time, a simple
// line-of-sight check in place of the true kinematic path. It returns the first wall or finish
// cell encountered, where leaving the grid counts as a wall, or else the destination cell.
func (rt *RaceTrack) traverse(vx, vy int) (stop position, cell rune) {
	x, y := rt.car.X, rt.car.Y
	numIter := max(abs(vx), abs(vy))
	stop = position{x, y}
	cell = rt.cellAt(x, y)
	for i := 1; i <= numIter; i++ {
		frac := float64(i) / float64(numIter)
		px := x + int(math.Round(float64(vx)*frac))
		py := y + int(math.Round(float64(vy)*frac))
		if !rt.inBounds(px, py) {
			return position{px, py}, WALL
		}
		stop = position{px, py}
		cell = rt.cellAt(px, py)
		if cell == WALL || cell == FINISH {
			return
		}
	}
	return
}

var (
	carColor   = [CHANNELS]float64{255, 0, 0}
	trailColor = [CHANNELS]float64{120, 0, 0}
)

func cellColor(cell rune) [CHANNELS]float64 {
	switch cell {
	case WALL:
		return [CHANNELS]float64{0, 100, 0}
	case START:
		return [CHANNELS]float64{0, 0, 200}
	case FINISH:
		return [CHANNELS]float64{200, 200, 0}
	default:
		return [CHANNELS]float64{128, 128, 128}
	}
}

// frame renders the track top row first. The car's previous position is drawn as a trail,
// so a single frame carries the car's direction of travel as well as its position.
func (rt *RaceTrack) frame() environment.Observation {
	h, w, c := rt.Shape()
	obs := environment.NewObservation(h, w, c)
	for x := 0; x < rt.width; x++ {
		for y := 0; y < rt.height; y++ {
			rt.paint(obs, x, y, cellColor(rt.cellAt(x, y)))
		}
	}
	if rt.prev.x != rt.car.X || rt.prev.y != rt.car.Y {
		rt.paint(obs, rt.prev.x, rt.prev.y, trailColor)
	}
	rt.paint(obs, rt.car.X, rt.car.Y, carColor)
	return obs
}

func (rt *RaceTrack) paint(obs environment.Observation, x, y int, color [CHANNELS]float64) {
	top := (rt.height - y - 1) * CELL_PIXELS
	left := x * CELL_PIXELS
	for py := top; py < top+CELL_PIXELS; py++ {
		for px := left; px < left+CELL_PIXELS; px++ {
			for ch, val := range color {
				obs.Set(py, px, ch, val)
			}
		}
	}
}

// Render prints the track with the car, for visual reference.
func (rt *RaceTrack) Render(w io.Writer) error {
	for _, y := range Rev(rt.height) {
		for x := 0; x < rt.width; x++ {
			var cell interface{}
			switch cellType := rt.cellAt(x, y); {
			case x == rt.car.X && y == rt.car.Y:
				cell = aurora.Red("X").Bold()
			case cellType == WALL:
				cell = aurora.Green(string(cellType))
			case cellType == START:
				cell = aurora.Blue(string(cellType))
			case cellType == FINISH:
				cell = aurora.Yellow(string(cellType))
			default:
				cell = aurora.White(string(cellType))
			}
			if _, err := fmt.Fprint(w, cell, " "); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "lives: %d  velocity: (%d,%d)\n", rt.lives, rt.car.VX, rt.car.VY)
	return err
}

// Returns reversed indices of a slice, e.g. for ranging over.
func Rev(length int) []int {
	indices := make([]int, length)
	for i := 0; i < length; i++ {
		indices[i] = length - i - 1
	}
	return indices
}

func clamp(val, lo, hi int) int {
	return int(math.Max(math.Min(float64(val), float64(hi)), float64(lo)))
}

func abs(val int) int {
	if val < 0 {
		return -val
	}
	return val
}
