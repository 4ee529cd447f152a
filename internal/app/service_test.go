package service_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lakeline/internal/adapters/stac"
	service "github.com/okian/lakeline/internal/app"
	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/model"
	"github.com/okian/lakeline/internal/domain/orchestrator"
	"github.com/okian/lakeline/internal/domain/reconcile"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func day(s string) time.Time {
	d, err := scale.ParseISODate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

const sceneJan05 = `{
	"id": "lake-1_20240105",
	"properties": {"datetime": "2024-01-05T11:00:00Z", "percent_valid_in_water_body": 0.9},
	"assets": {"chlorophyll": {"href": "s3://x.tif", "raster:bands": [{"statistics": {"minimum": 1, "maximum": 4, "mean": 2}}]}}
}`

// fakeUpstream serves one lake whose series runs through the first
// quarter of 2024 and one stored scene.
type fakeUpstream struct {
	mu   sync.Mutex
	urls []string
}

func (f *fakeUpstream) GetJSON(_ context.Context, url string, _ http.Header, out any) error {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	if url != "scene/lake-1/2024-01-05" {
		return cache.ErrNotFound
	}
	return json.Unmarshal([]byte(sceneJan05), out)
}

func (f *fakeUpstream) fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

func (f *fakeUpstream) Lakes(context.Context) ([]model.Lake, error) {
	return []model.Lake{{ID: "lake-1", Name: "Alqueva"}}, nil
}

func (f *fakeUpstream) Lake(_ context.Context, id string) (model.Lake, error) {
	if id != "lake-1" {
		return model.Lake{}, cache.ErrNotFound
	}
	return model.Lake{ID: "lake-1", Name: "Alqueva", SeriesURL: "series/lake-1"}, nil
}

func (f *fakeUpstream) Series(context.Context, model.Lake) ([]model.SeriesPoint, error) {
	point := func(s string, chl float64) model.SeriesPoint {
		return model.SeriesPoint{Date: day(s), SeriesValue: model.SeriesValue{
			PercentValid: 0.9,
			Chlorophyll:  model.IndicatorStats{Maximum: chl},
			TSM:          model.IndicatorStats{Maximum: 3.2},
		}}
	}
	return []model.SeriesPoint{
		point("2024-01-01", 2),
		point("2024-01-05", 4),
		point("2024-01-10", 6.4),
		point("2024-03-31", 5),
	}, nil
}

func (f *fakeUpstream) SceneLocator(lakeID string) orchestrator.Locator {
	return orchestrator.LocatorFunc(func(d time.Time) (cache.Key, string) {
		return stac.SceneKey(lakeID, d), "scene/" + lakeID + "/" + scale.FormatISO(d)
	})
}

func (f *fakeUpstream) PointValue(_ context.Context, _, _ string, d time.Time, _, _ float64) (*float64, error) {
	if d.Equal(day("2024-01-05")) {
		v := 3.5
		return &v, nil
	}
	return nil, nil
}

func (f *fakeUpstream) PreviousMeasurement(context.Context, string, string, time.Time, float64, float64) *stac.Measurement {
	return &stac.Measurement{Date: day("2024-01-01"), Value: 1.5}
}

func (f *fakeUpstream) TileURL(itemID, indicator string, vd scale.ValueDomain, _ string) string {
	return "tiles/" + itemID + "/" + indicator
}

func newService(up *fakeUpstream, opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithWorkerCount(2),
		service.WithQueueSize(256),
		service.WithSettleDelay(10 * time.Millisecond),
		service.WithDebounce(20 * time.Millisecond),
	}, opts...)
	return service.New(up, opts...)
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New(&fakeUpstream{})

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["maxSessions"], ShouldEqual, 256)
		})
	})

	Convey("Given a new service with custom options", t, func() {
		svc := service.New(&fakeUpstream{},
			service.WithWorkerCount(8),
			service.WithQueueSize(50_000),
			service.WithMaxSessions(4),
			service.WithLakeCacheSize(8),
			service.WithDayFiltering(false),
		)

		Convey("Then the options are applied", func() {
			stats := svc.GetStats()
			So(stats["workerCount"], ShouldEqual, 8)
			So(stats["queueSize"], ShouldEqual, 50_000)
			So(stats["maxSessions"], ShouldEqual, 4)
		})
	})
}

func TestService_StartStop(t *testing.T) {
	Convey("Given a new service", t, func() {
		svc := newService(&fakeUpstream{})
		ctx := context.Background()

		Convey("When it is used before starting", func() {
			_, err := svc.Session("missing")

			Convey("Then it reports that it is not started", func() {
				So(err, ShouldEqual, service.ErrNotStarted)
			})
		})

		Convey("When starting the service twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			Convey("Then it is running with an empty registry", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["sessions"], ShouldEqual, 0)
				So(stats["cacheEntries"], ShouldEqual, 0)
			})
		})

		Convey("When stopping a started service", func() {
			So(svc.Start(ctx), ShouldBeNil)
			svc.Stop()
			svc.Stop()

			Convey("Then it should be marked as stopped", func() {
				So(svc.GetStats()["started"], ShouldEqual, false)
			})
		})
	})
}

func TestService_Lakes(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newService(&fakeUpstream{})
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When listing lakes", func() {
			lakes, err := svc.Lakes(ctx)

			Convey("Then the catalogue is returned", func() {
				So(err, ShouldBeNil)
				So(lakes, ShouldHaveLength, 1)
				So(lakes[0].Name, ShouldEqual, "Alqueva")
			})
		})

		Convey("When reading a lake", func() {
			detail, err := svc.Lake(ctx, "lake-1")

			Convey("Then its indicators span the series", func() {
				So(err, ShouldBeNil)
				So(detail.Indicators, ShouldHaveLength, 2)
				chl := detail.Indicators[0]
				So(chl.ID, ShouldEqual, model.Chlorophyll)
				So(chl.DateDomain.Start, ShouldEqual, day("2024-01-01"))
				So(chl.DateDomain.End, ShouldEqual, day("2024-03-31"))
				So(chl.ValueDomain.Max, ShouldEqual, 7)
				So(svc.GetStats()["cachedLakes"], ShouldEqual, 1)
			})
		})

		Convey("When reading an unknown lake", func() {
			_, err := svc.Lake(ctx, "nope")

			Convey("Then it is not found", func() {
				So(err, ShouldWrap, service.ErrLakeNotFound)
			})
		})
	})
}

func TestService_OpenTimeline(t *testing.T) {
	Convey("Given a started service with day filtering", t, func() {
		up := &fakeUpstream{}
		svc := newService(up)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a timeline is opened on the first day", func() {
			sess, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Width: 800, Height: 200, Day: day("2024-01-01")})
			So(err, ShouldBeNil)

			Convey("Then only the series days of the first window are fetched", func() {
				So(sess.Indicator.ID, ShouldEqual, model.Chlorophyll)
				So(eventually(func() bool { return len(up.fetched()) == 3 }), ShouldBeTrue)
				So(up.fetched(), ShouldContain, "scene/lake-1/2024-01-05")
				So(up.fetched(), ShouldNotContain, "scene/lake-1/2024-01-02")
			})

			Convey("Then the view projects the stored scene", func() {
				So(eventually(func() bool {
					return reconcile.Count(sess.Timeline().Records()).Terminal() == 3
				}), ShouldBeTrue)
				view := sess.View()
				So(view.ID, ShouldEqual, sess.ID)
				So(view.Frame.Window, ShouldNotBeNil)
				So(view.Frame.Window.First, ShouldEqual, day("2024-01-01"))
				So(view.Months, ShouldNotBeEmpty)
				So(view.Ticks, ShouldNotBeEmpty)
				counts := reconcile.Count(view.Frame.Records)
				So(counts.Success, ShouldEqual, 1)
				So(counts.Empty, ShouldEqual, 2)
			})

			Convey("Then the session can be looked up and closed", func() {
				got, err := svc.Session(sess.ID)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, sess)

				So(svc.CloseTimeline(sess.ID), ShouldBeNil)
				_, err = svc.Session(sess.ID)
				So(err, ShouldWrap, service.ErrSessionNotFound)
				So(svc.CloseTimeline(sess.ID), ShouldWrap, service.ErrSessionNotFound)
			})
		})

		Convey("When a timeline is opened without a day", func() {
			sess, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Width: 800, Height: 200})
			So(err, ShouldBeNil)

			Convey("Then it opens on the last observed day", func() {
				So(sess.Timeline().Value().X, ShouldAlmostEqual, -2174, 1)
				w, err := sess.Timeline().Window()
				So(err, ShouldBeNil)
				So(scale.StartOfDay(w.Last), ShouldEqual, sess.Indicator.DateDomain.End)
				So(w.First, ShouldEqual, day("2024-03-08"))
				So(eventually(func() bool { return len(up.fetched()) == 1 }), ShouldBeTrue)
				So(up.fetched(), ShouldResemble, []string{"scene/lake-1/2024-03-31"})
			})
		})

		Convey("When a timeline is opened on a day", func() {
			sess, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Width: 800, Height: 200, Day: day("2024-03-01")})
			So(err, ShouldBeNil)

			Convey("Then the day is centred", func() {
				So(sess.Timeline().Value().X, ShouldAlmostEqual, -1563, 1)
			})
		})

		Convey("When an unknown indicator is requested", func() {
			_, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Indicator: "ph", Width: 800, Height: 200})

			Convey("Then the request is refused", func() {
				So(err, ShouldWrap, service.ErrIndicatorNotFound)
			})
		})

		Convey("When an unknown lake is requested", func() {
			_, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "nope", Width: 800, Height: 200})

			Convey("Then the request is refused", func() {
				So(err, ShouldWrap, service.ErrLakeNotFound)
			})
		})
	})

	Convey("Given a started service without day filtering", t, func() {
		up := &fakeUpstream{}
		svc := newService(up, service.WithDayFiltering(false))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When a timeline is opened on the first day", func() {
			_, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Width: 800, Height: 200, Day: day("2024-01-01")})
			So(err, ShouldBeNil)

			Convey("Then every day of the window is fetched", func() {
				So(eventually(func() bool { return len(up.fetched()) == 24 }), ShouldBeTrue)
			})
		})
	})
}

func TestService_Gestures(t *testing.T) {
	Convey("Given an open timeline with a subscriber", t, func() {
		up := &fakeUpstream{}
		svc := newService(up, service.WithDayFiltering(false))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		sess, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Width: 800, Height: 200, Day: day("2024-01-01")})
		So(err, ShouldBeNil)
		So(eventually(func() bool { return len(up.fetched()) == 24 }), ShouldBeTrue)

		frames, cancel, err := svc.Subscribe(sess.ID)
		So(err, ShouldBeNil)
		defer cancel()

		Convey("When the user drags ten days to the left", func() {
			So(svc.Gesture(sess.ID, service.Gesture{Kind: service.GestureDown, X: 400, Y: 100}), ShouldBeNil)
			So(svc.Gesture(sess.ID, service.Gesture{Kind: service.GestureMove, X: 80, Y: 100}), ShouldBeNil)
			So(svc.Gesture(sess.ID, service.Gesture{Kind: service.GestureUp}), ShouldBeNil)

			Convey("Then frames stream and the revealed days are fetched", func() {
				So(eventually(func() bool {
					select {
					case f := <-frames:
						return f.Value.X < 0
					default:
						return false
					}
				}), ShouldBeTrue)
				So(eventually(func() bool { return len(up.fetched()) == 34 }), ShouldBeTrue)
			})
		})

		Convey("When an unknown gesture arrives", func() {
			err := svc.Gesture(sess.ID, service.Gesture{Kind: "pinch"})

			Convey("Then it is refused", func() {
				So(err, ShouldWrap, service.ErrInvalidGesture)
			})
		})

		Convey("When jumping to a visible day", func() {
			moved, err := svc.Jump(sess.ID, day("2024-01-05"))

			Convey("Then nothing moves", func() {
				So(err, ShouldBeNil)
				So(moved, ShouldBeFalse)
			})
		})

		Convey("When jumping to the first of March", func() {
			moved, err := svc.Jump(sess.ID, day("2024-03-01"))

			Convey("Then the view moves", func() {
				So(err, ShouldBeNil)
				So(moved, ShouldBeTrue)
				So(sess.Timeline().Value().X, ShouldAlmostEqual, -1563, 1)
			})
		})

		Convey("When the canvas is resized", func() {
			So(svc.Resize(sess.ID, 1600, 300), ShouldBeNil)

			Convey("Then the new area is used", func() {
				So(sess.Timeline().Area().Height, ShouldEqual, 244)
			})
		})

		Convey("When the session is closed", func() {
			So(svc.CloseTimeline(sess.ID), ShouldBeNil)

			Convey("Then the subscription ends", func() {
				So(eventually(func() bool {
					select {
					case _, ok := <-frames:
						return !ok
					default:
						return false
					}
				}), ShouldBeTrue)
			})
		})
	})
}

func TestService_Eviction(t *testing.T) {
	Convey("Given a service that keeps a single session", t, func() {
		svc := newService(&fakeUpstream{}, service.WithMaxSessions(1))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		first, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Width: 800, Height: 200})
		So(err, ShouldBeNil)
		frames, _, err := first.Subscribe()
		So(err, ShouldBeNil)

		Convey("When a second session opens", func() {
			second, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Indicator: model.TSM, Width: 800, Height: 200})
			So(err, ShouldBeNil)

			Convey("Then the first is closed and forgotten", func() {
				_, err := svc.Session(first.ID)
				So(err, ShouldWrap, service.ErrSessionNotFound)
				_, err = svc.Session(second.ID)
				So(err, ShouldBeNil)
				So(eventually(func() bool {
					select {
					case _, ok := <-frames:
						return !ok
					default:
						return false
					}
				}), ShouldBeTrue)
				_, _, err = first.Subscribe()
				So(err, ShouldEqual, service.ErrSessionNotFound)
			})
		})
	})
}

func TestService_AllowedDaysAndTiles(t *testing.T) {
	Convey("Given an open timeline", t, func() {
		svc := newService(&fakeUpstream{})
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		sess, err := svc.OpenTimeline(ctx, service.OpenRequest{LakeID: "lake-1", Width: 800, Height: 200, Day: day("2024-01-01")})
		So(err, ShouldBeNil)

		Convey("When asking for the allowed days", func() {
			w, allowed, err := svc.AllowedDays(ctx, sess.ID)

			Convey("Then the series days of the window are listed", func() {
				So(err, ShouldBeNil)
				So(w.First, ShouldEqual, day("2024-01-01"))
				So(allowed.All, ShouldBeFalse)
				So(allowed.Days, ShouldResemble, []time.Time{day("2024-01-01"), day("2024-01-05"), day("2024-01-10")})
			})
		})

		Convey("When asking for a tile layer", func() {
			u, err := svc.TileURL(sess.ID, day("2024-01-05"), "viridis")

			Convey("Then it names the day's scene", func() {
				So(err, ShouldBeNil)
				So(u, ShouldEqual, "tiles/lake-1_20240105/chlorophyll")
			})
		})

		Convey("When asking for an unknown session", func() {
			_, err := svc.TileURL("nope", day("2024-01-05"), "")

			Convey("Then it is not found", func() {
				So(err, ShouldWrap, service.ErrSessionNotFound)
			})
		})
	})
}

func TestService_PointStats(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc := newService(&fakeUpstream{})
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When sampling a point in the middle of a day", func() {
			stats, err := svc.PointStats(ctx, "lake-1", "", day("2024-01-05").Add(13*time.Hour), -7.4, 38.2)

			Convey("Then the value and the previous measurement are returned", func() {
				So(err, ShouldBeNil)
				So(stats.Date, ShouldEqual, day("2024-01-05"))
				So(*stats.Value, ShouldEqual, 3.5)
				So(stats.Previous.Value, ShouldEqual, 1.5)
			})
		})

		Convey("When sampling a day without data", func() {
			stats, err := svc.PointStats(ctx, "lake-1", model.TSM, day("2024-01-06"), -7.4, 38.2)

			Convey("Then the value is empty", func() {
				So(err, ShouldBeNil)
				So(stats.Value, ShouldBeNil)
				So(stats.Date, ShouldEqual, day("2024-01-06"))
			})
		})
	})
}
