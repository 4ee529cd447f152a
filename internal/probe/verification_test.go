package probe

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/panzoom"
	"github.com/okian/lakeline/internal/domain/reconcile"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/internal/domain/timeline"
)

func jan(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

func validFrame() timeline.Frame {
	w := scale.DateWindow{First: jan(2), Last: scale.EndOfDay(jan(4))}
	return timeline.Frame{
		Value:  panzoom.Value{X: -32, Zoom: 1},
		Extent: panzoom.Extent{MinX: -1000, MaxX: 0, MinZoom: 1, MaxZoom: 1},
		Window: &w,
		Days:   w.Days(),
		Records: []reconcile.DayViewRecord{
			{Date: jan(2), Status: cache.StatusSuccess},
			{Date: jan(3), Status: cache.StatusError, Error: "boom"},
			{Date: jan(9), Status: cache.StatusLoading},
		},
	}
}

func TestVerifyFrame(t *testing.T) {
	Convey("Given a consistent frame", t, func() {
		f := validFrame()

		Convey("Then it has no violations", func() {
			So(verifyFrame(f), ShouldBeEmpty)
		})

		Convey("When the value leaves the extent", func() {
			f.Value.X = 10
			So(verifyFrame(f), ShouldHaveLength, 1)
		})

		Convey("When the window is missing", func() {
			f.Window = nil
			So(verifyFrame(f), ShouldResemble, []string{"frame has no visible window"})
		})

		Convey("When the rendered days do not start at the window", func() {
			f.Days = f.Days[1:]
			So(verifyFrame(f)[0], ShouldContainSubstring, "is not the window start")
		})

		Convey("When the rendered days skip one", func() {
			f.Days = append([]time.Time{f.Days[0]}, f.Days[2:]...)
			So(verifyFrame(f)[0], ShouldContainSubstring, "skip")
		})

		Convey("When records are out of order", func() {
			f.Records[0], f.Records[1] = f.Records[1], f.Records[0]
			So(verifyFrame(f), ShouldResemble, []string{"records are not sorted by date"})
		})
	})
}

func TestSettled(t *testing.T) {
	Convey("Given a frame with a loading day outside its window", t, func() {
		f := validFrame()

		Convey("Then the window counts as settled", func() {
			So(settled(f), ShouldBeTrue)
		})

		Convey("When a day inside the window is loading", func() {
			f.Records[1].Status = cache.StatusLoading
			So(settled(f), ShouldBeFalse)
		})

		Convey("When the trailing day is loading", func() {
			f.Records = append(f.Records[:2], reconcile.DayViewRecord{Date: jan(5), Status: cache.StatusLoading})
			So(settled(f), ShouldBeFalse)
		})

		Convey("When there is no window", func() {
			f.Window = nil
			So(settled(f), ShouldBeFalse)
		})
	})
}

func TestJumpLanded(t *testing.T) {
	Convey("Given a frame showing Jan 2 to Jan 4", t, func() {
		f := validFrame()

		Convey("Then days of the window are landed on", func() {
			So(jumpLanded(f, jan(2)), ShouldBeNil)
			So(jumpLanded(f, jan(4).Add(6*time.Hour)), ShouldBeNil)
		})

		Convey("Then days outside it are not", func() {
			So(jumpLanded(f, jan(1)), ShouldNotBeNil)
			So(jumpLanded(f, jan(5)), ShouldNotBeNil)
		})
	})
}

func TestSummarize(t *testing.T) {
	Convey("Given a frame with mixed records", t, func() {
		c := summarize(validFrame())
		So(c, ShouldResemble, reconcile.Counts{Loading: 1, Success: 0, Empty: 1, Error: 1})
	})
}
