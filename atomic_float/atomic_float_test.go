package atomic_float

import (
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestAtomicAdd(t *testing.T) {
	Convey("When AtomicAdd is called", t, func() {
		Convey("When multiple writers increment and decrement the float value concurrently", func() {
			af := NewAtomicFloat64(0)
			num_ops := 2000
			num_writers := 50

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(num_writers * 2)
			adder := func(addend float64) {
				<-start
				for i := 0; i < num_ops; i++ {
					for succeeded := false; !succeeded; _, succeeded = af.AtomicAdd(addend) {
					}
				}
				wg.Done()
			}

			for i := 0; i < num_writers; i++ {
				go adder(1.0)
				go adder(-1.0)
			}

			// Wait for goroutines to begin
			time.Sleep(time.Millisecond * 10)
			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, 0.0)
		})

		Convey("When uncontended, a single attempt succeeds", func() {
			af := NewAtomicFloat64(1.5)
			newVal, ok := af.AtomicAdd(2)
			So(ok, ShouldBeTrue)
			So(newVal, ShouldEqual, 3.5)
			So(af.AtomicRead(), ShouldEqual, 3.5)
		})
	})
}

func TestAtomicMax(t *testing.T) {
	Convey("When AtomicMax is called", t, func() {
		Convey("Smaller candidates leave the value unchanged", func() {
			af := NewAtomicFloat64(10)
			So(af.AtomicMax(3), ShouldEqual, 10.0)
			So(af.AtomicRead(), ShouldEqual, 10.0)
		})

		Convey("When many writers race, the largest candidate wins", func() {
			af := NewAtomicFloat64(-1)
			num_writers := 100

			start := make(chan struct{})
			wg := sync.WaitGroup{}
			wg.Add(num_writers)
			for i := 0; i < num_writers; i++ {
				go func(candidate float64) {
					defer wg.Done()
					<-start
					af.AtomicMax(candidate)
				}(float64(i))
			}

			close(start)
			wg.Wait()
			So(af.AtomicRead(), ShouldEqual, float64(num_writers-1))
		})

		Convey("AtomicSet overwrites regardless of magnitude", func() {
			af := NewAtomicFloat64(10)
			af.AtomicSet(-2)
			So(af.AtomicRead(), ShouldEqual, -2.0)
		})
	})
}
