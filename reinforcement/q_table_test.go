package reinforcement

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestQTable(t *testing.T) {
	Convey("Given an empty table", t, func() {
		table := NewQTable()

		Convey("Reads of absent entries default to zero without inserting", func() {
			So(table.Get(42, 3), ShouldEqual, 0.0)
			So(table.Max(42), ShouldEqual, 0.0)
			So(table.Actions(42), ShouldBeNil)
			_, ok := table.Best(42)
			So(ok, ShouldBeFalse)
			So(table.Len(), ShouldEqual, 0)
		})

		Convey("Set inserts the state on first write only", func() {
			table.Set(7, 1, 0.25)
			So(table.Len(), ShouldEqual, 1)
			table.Set(7, 4, -1)
			So(table.Len(), ShouldEqual, 1)
			So(table.Get(7, 1), ShouldEqual, 0.25)
			So(table.Get(7, 2), ShouldEqual, 0.0)
		})

		Convey("Max considers only recorded actions", func() {
			table.Set(9, 0, -3)
			table.Set(9, 5, -1.5)
			So(table.Max(9), ShouldEqual, -1.5)
		})

		Convey("Best breaks ties toward the lowest action", func() {
			table.Set(1, 8, 2)
			table.Set(1, 6, 2)
			table.Set(1, 0, 1)
			for i := 0; i < 20; i++ {
				action, ok := table.Best(1)
				So(ok, ShouldBeTrue)
				So(action, ShouldEqual, 6)
			}
		})
	})
}

func TestQTablePersistence(t *testing.T) {
	Convey("Given a table with awkward values", t, func() {
		table := NewQTable()
		table.Set(math.MaxUint64, 0, 0.1+0.2)
		table.Set(math.MaxUint64, 3, -1e-300)
		table.Set(12345, 1, 1.0/3.0)
		table.Set(0, 2, 1e21)

		Convey("When saved and reloaded the values are bit-exact and absences preserved", func() {
			buf := &bytes.Buffer{}
			So(table.Save(buf), ShouldBeNil)

			loaded, err := LoadTable(buf)
			So(err, ShouldBeNil)
			So(loaded.Len(), ShouldEqual, 3)
			So(loaded.Get(math.MaxUint64, 0), ShouldEqual, 0.1+0.2)
			So(loaded.Get(math.MaxUint64, 3), ShouldEqual, -1e-300)
			So(loaded.Get(12345, 1), ShouldEqual, 1.0/3.0)
			So(loaded.Get(0, 2), ShouldEqual, 1e21)
			So(len(loaded.Actions(12345)), ShouldEqual, 1)
			So(loaded.Actions(777), ShouldBeNil)
		})

		Convey("When saved to a file it loads back from that file", func() {
			path := filepath.Join(t.TempDir(), "qtable.yaml")
			So(table.SaveFile(path), ShouldBeNil)
			loaded, err := LoadTableFile(path)
			So(err, ShouldBeNil)
			So(loaded.Len(), ShouldEqual, table.Len())
		})
	})

	Convey("Loading an empty document yields an empty table", t, func() {
		loaded, err := LoadTable(strings.NewReader(""))
		So(err, ShouldBeNil)
		So(loaded.Len(), ShouldEqual, 0)
	})

	Convey("Loading a state with no actions does not count it as visited", t, func() {
		loaded, err := LoadTable(strings.NewReader("5: {}\n6:\n  1: 2.5\n"))
		So(err, ShouldBeNil)
		So(loaded.Len(), ShouldEqual, 1)
		So(loaded.Get(6, 1), ShouldEqual, 2.5)
	})

	Convey("Loading garbage fails", t, func() {
		_, err := LoadTable(strings.NewReader("not: [a, table"))
		So(err, ShouldNotBeNil)
	})

	Convey("Loading a missing file reports it as missing", t, func() {
		_, err := LoadTableFile(filepath.Join(t.TempDir(), "nope.yaml"))
		So(errors.Is(err, os.ErrNotExist), ShouldBeTrue)
	})
}
