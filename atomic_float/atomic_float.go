package atomic_float

import (
	"math"
	"sync/atomic"
)

// AtomicFloat64 encapsulates a float64 for non-locking atomic operations.
// The value is stored as its IEEE-754 bits, so every operation reduces to a load
// or compare-and-swap on a uint64. Independent training runs publish scores and
// gauges through these without sharing a lock.
type AtomicFloat64 struct {
	bits atomic.Uint64
}

// NewAtomicFloat64 encapsulates a float64 for atomic operations.
func NewAtomicFloat64(val float64) *AtomicFloat64 {
	af := &AtomicFloat64{}
	af.bits.Store(math.Float64bits(val))
	return af
}

// Atomically read the float64.
func (af *AtomicFloat64) AtomicRead() float64 {
	return math.Float64frombits(af.bits.Load())
}

// Atomically add to the float64.
// A single attempt is made: if another writer changed the value between the read and the swap,
// succeeded is false and the caller decides whether to retry, drop, or recompute the update.
func (af *AtomicFloat64) AtomicAdd(addend float64) (newVal float64, succeeded bool) {
	old := af.bits.Load()
	newVal = math.Float64frombits(old) + addend
	succeeded = af.bits.CompareAndSwap(old, math.Float64bits(newVal))
	return
}

// AtomicSet unconditionally stores the float64.
func (af *AtomicFloat64) AtomicSet(newVal float64) {
	af.bits.Store(math.Float64bits(newVal))
}

// AtomicMax raises the value to candidate if candidate is greater, retrying until
// either the swap lands or a concurrent writer has already stored something at least as large.
// Returns the value held after the call.
func (af *AtomicFloat64) AtomicMax(candidate float64) float64 {
	for {
		old := af.bits.Load()
		cur := math.Float64frombits(old)
		if candidate <= cur {
			return cur
		}
		if af.bits.CompareAndSwap(old, math.Float64bits(candidate)) {
			return candidate
		}
	}
}
