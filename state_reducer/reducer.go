// state_reducer compresses image-like observations into small block-summed matrices
// and derives the hashable fingerprints used as value-table keys.
package state_reducer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"

	"qspace/environment"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrShapeMismatch is returned when an observation does not have the agreed shape.
	// This is a contract violation between environment and reducer, not a transient condition.
	ErrShapeMismatch = errors.New("observation shape mismatch")
	// ErrBadGeometry is returned by New for reductions that cannot be computed.
	ErrBadGeometry = errors.New("bad reduction geometry")
)

// Geometry is the agreed observation shape (Height x Width x Channels) and the
// target reduced shape (Rows x Cols). Observations are viewed as (Height, Width*Channels)
// matrices, so Cols partitions interleaved pixel channels.
type Geometry struct {
	Height, Width, Channels int
	Rows, Cols              int
}

// Reducer performs a strided block-sum downsampling of observations.
// Summing the rb row-phases data[i::rb] for i in [0,rb) is the same as summing
// each contiguous block of rb rows, so both passes are expressed as products
// with 0/1 selector matrices: reduced = L * X * R.
type Reducer struct {
	geom  Geometry
	left  *mat.Dense // reducedRows x Height
	right *mat.Dense // Width*Channels x reducedCols
}

// New validates the geometry and builds the selector matrices.
func New(geom Geometry) (*Reducer, error) {
	if geom.Height <= 0 || geom.Width <= 0 || geom.Channels <= 0 {
		return nil, fmt.Errorf("%w: observation shape (%d,%d,%d)",
			ErrBadGeometry, geom.Height, geom.Width, geom.Channels)
	}
	srcRows := geom.Height
	srcCols := geom.Width * geom.Channels
	if geom.Rows <= 0 || geom.Cols <= 0 || geom.Rows > srcRows || geom.Cols > srcCols {
		return nil, fmt.Errorf("%w: cannot reduce (%d,%d) to (%d,%d)",
			ErrBadGeometry, srcRows, srcCols, geom.Rows, geom.Cols)
	}

	rowBlock := srcRows / geom.Rows
	colBlock := srcCols / geom.Cols
	// Every strided phase must select the same number of rows (cols) for the phases to be summable.
	if srcRows%rowBlock != 0 || srcCols%colBlock != 0 {
		return nil, fmt.Errorf("%w: (%d,%d) is not divisible into blocks of (%d,%d)",
			ErrBadGeometry, srcRows, srcCols, rowBlock, colBlock)
	}

	outRows := srcRows / rowBlock
	outCols := srcCols / colBlock

	left := mat.NewDense(outRows, srcRows, nil)
	for k := 0; k < outRows; k++ {
		for i := 0; i < rowBlock; i++ {
			left.Set(k, k*rowBlock+i, 1)
		}
	}

	right := mat.NewDense(srcCols, outCols, nil)
	for m := 0; m < outCols; m++ {
		for j := 0; j < colBlock; j++ {
			right.Set(m*colBlock+j, m, 1)
		}
	}

	return &Reducer{
		geom:  geom,
		left:  left,
		right: right,
	}, nil
}

// Geometry returns the configured geometry.
func (r *Reducer) Geometry() Geometry {
	return r.geom
}

// ReducedShape returns the dimensions of reduced matrices. These may exceed the
// configured Rows/Cols when the source does not divide evenly, since block sizes are floored.
func (r *Reducer) ReducedShape() (rows, cols int) {
	rows, _ = r.left.Dims()
	_, cols = r.right.Dims()
	return
}

func (r *Reducer) checkShape(obs environment.Observation) error {
	if obs.Height != r.geom.Height || obs.Width != r.geom.Width || obs.Channels != r.geom.Channels {
		return fmt.Errorf("%w: expected (%d,%d,%d), got (%d,%d,%d)",
			ErrShapeMismatch,
			r.geom.Height, r.geom.Width, r.geom.Channels,
			obs.Height, obs.Width, obs.Channels)
	}
	if len(obs.Pix) != obs.Height*obs.Width*obs.Channels {
		return fmt.Errorf("%w: %d samples for shape (%d,%d,%d)",
			ErrShapeMismatch, len(obs.Pix), obs.Height, obs.Width, obs.Channels)
	}
	return nil
}

// Reduce returns the block-summed matrix for obs. The observation is reinterpreted
// as a (Height, Width*Channels) matrix over its own backing slice and is not modified.
func (r *Reducer) Reduce(obs environment.Observation) (*mat.Dense, error) {
	if err := r.checkShape(obs); err != nil {
		return nil, err
	}

	frame := mat.NewDense(obs.Height, obs.Width*obs.Channels, obs.Pix)
	reduced := &mat.Dense{}
	reduced.Product(r.left, frame, r.right)
	return reduced, nil
}

// Fingerprint reduces obs and hashes the reduced values, flattened row-major, with FNV-1a.
// FNV is unseeded, so fingerprints are stable across processes and persisted tables remain valid.
func (r *Reducer) Fingerprint(obs environment.Observation) (uint64, error) {
	reduced, err := r.Reduce(obs)
	if err != nil {
		return 0, err
	}
	return Hash(reduced), nil
}

// Hash returns the FNV-1a hash of the matrix values in row-major order.
func Hash(m mat.Matrix) uint64 {
	hasher := fnv.New64a()
	var buf [8]byte
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			val := m.At(i, j)
			// Fold -0 into +0 so equal values always hash equally.
			if val == 0 {
				val = 0
			}
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(val))
			_, _ = hasher.Write(buf[:])
		}
	}
	return hasher.Sum64()
}
