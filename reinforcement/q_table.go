package reinforcement

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// QTable maps state fingerprints to per-action value estimates.
// Absence is meaningful: a missing fingerprint or action has never been updated,
// and reads treat it as 0 without inserting anything. The table only grows.
type QTable struct {
	values map[uint64]map[int]float64
}

// NewQTable returns an empty table.
func NewQTable() *QTable {
	return &QTable{
		values: map[uint64]map[int]float64{},
	}
}

// Get returns the estimate for (fp, action), or 0 if it was never set.
func (q *QTable) Get(fp uint64, action int) float64 {
	return q.values[fp][action]
}

// Actions returns the recorded estimates for fp, nil if there are none.
// The returned map must not be modified.
func (q *QTable) Actions(fp uint64) map[int]float64 {
	return q.values[fp]
}

// Max returns the greatest recorded estimate for fp, or 0 if fp has none.
// Only recorded actions participate, so a state whose every estimate is negative has a negative max.
func (q *QTable) Max(fp uint64) float64 {
	actions := q.values[fp]
	if len(actions) == 0 {
		return 0
	}
	max := math.Inf(-1)
	for _, val := range actions {
		if val > max {
			max = val
		}
	}
	return max
}

// Best returns the highest-valued recorded action for fp. Ties go to the lowest
// action index, so the choice depends only on table contents and not on map order.
// ok is false when nothing is recorded for fp.
func (q *QTable) Best(fp uint64) (action int, ok bool) {
	maxVal := math.Inf(-1)
	for a, val := range q.values[fp] {
		if !ok || val > maxVal || (val == maxVal && a < action) {
			action, maxVal, ok = a, val, true
		}
	}
	return
}

// Set writes the estimate for (fp, action), creating fp's entry if needed.
func (q *QTable) Set(fp uint64, action int, value float64) {
	actions, exists := q.values[fp]
	if !exists {
		actions = map[int]float64{}
		q.values[fp] = actions
	}
	actions[action] = value
}

// Len returns the number of distinct fingerprints in the table.
func (q *QTable) Len() int {
	return len(q.values)
}

// Save writes the table as yaml: fingerprint -> action -> value.
// Floats are written in shortest round-trip form, so reloading is exact.
func (q *QTable) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	if err := enc.Encode(q.values); err != nil {
		return fmt.Errorf("encode q-table: %w", err)
	}
	return enc.Close()
}

// LoadTable reads a table written by Save. An empty input yields an empty table.
func LoadTable(r io.Reader) (*QTable, error) {
	values := map[uint64]map[int]float64{}
	if err := yaml.NewDecoder(r).Decode(&values); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode q-table: %w", err)
	}
	// Drop empty inner mappings; absent and empty are the same state, and Len counts only visited states.
	for fp, actions := range values {
		if len(actions) == 0 {
			delete(values, fp)
		}
	}
	return &QTable{values: values}, nil
}

// SaveFile writes the table to path, replacing any existing file.
func (q *QTable) SaveFile(path string) (err error) {
	var f *os.File
	if f, err = os.Create(path); err != nil {
		return
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()
	err = q.Save(f)
	return
}

// LoadTableFile reads a table from path.
func LoadTableFile(path string) (*QTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load q-table: %w", err)
	}
	defer f.Close()
	return LoadTable(f)
}
