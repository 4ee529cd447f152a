package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/lakeline/internal/adapters/stac"
	service "github.com/okian/lakeline/internal/app"
	"github.com/okian/lakeline/internal/domain/reconcile"
)

// catalogue is a minimal STAC API plus tiler for one lake.
type catalogue struct {
	mu     sync.Mutex
	scenes []string
}

func (c *catalogue) requested() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scenes)
}

func (c *catalogue) server() *httptest.Server {
	var srv *httptest.Server
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	feature := func() map[string]any {
		return map[string]any{
			"id":   "feat-1",
			"bbox": []float64{-7.6, 38.1, -7.2, 38.4},
			"properties": map[string]any{
				"idhidro":               "L1",
				"nome":                  "Alqueva",
				"area_ha":               25000,
				"stats_time_series_url": srv.URL + "/series/L1.json",
			},
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/whis-lakes-labelec-features-c2rcc/items", func(w http.ResponseWriter, _ *http.Request) {
		write(w, map[string]any{"features": []any{feature()}})
	})
	mux.HandleFunc("GET /collections/whis-lakes-labelec-features-c2rcc/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "L1" {
			http.NotFound(w, r)
			return
		}
		write(w, feature())
	})
	mux.HandleFunc("GET /series/L1.json", func(w http.ResponseWriter, _ *http.Request) {
		stats := func(v float64) map[string]any {
			return map[string]any{"percent_valid_in_water_body": 0.8,
				"chlorophyll": map[string]float64{"maximum": v}, "tsm": map[string]float64{"maximum": v / 2}}
		}
		write(w, map[string]any{
			"20240101": stats(1.2),
			"20240103": stats(2.6),
			"20240331": stats(4.1),
		})
	})
	mux.HandleFunc("GET /collections/whis-lakes-labelec-scenes-c2rcc/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		c.mu.Lock()
		c.scenes = append(c.scenes, id)
		c.mu.Unlock()
		if id != "L1_20240103" {
			http.NotFound(w, r)
			return
		}
		write(w, map[string]any{
			"id":         id,
			"properties": map[string]any{"datetime": "2024-01-03T11:00:00Z", "percent_valid_in_water_body": 0.8},
			"assets": map[string]any{"chlorophyll": map[string]any{
				"href":         "s3://whis/L1_20240103/chl.tif",
				"raster:bands": []any{map[string]any{"statistics": map[string]float64{"minimum": 0.4, "maximum": 2.6, "mean": 1.1}}},
			}},
		})
	})
	srv = httptest.NewServer(mux)
	return srv
}

func TestServiceIntegration(t *testing.T) {
	Convey("Given a service backed by a STAC catalogue", t, func() {
		cat := &catalogue{}
		srv := cat.server()
		defer srv.Close()

		client, err := stac.New(srv.URL, srv.URL+"/tiler")
		So(err, ShouldBeNil)

		svc := service.New(client,
			service.WithWorkerCount(2),
			service.WithQueueSize(1000),
			service.WithSettleDelay(10*time.Millisecond),
			service.WithDebounce(20*time.Millisecond),
		)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		Convey("When the lake is listed and read", func() {
			lakes, err := svc.Lakes(ctx)
			So(err, ShouldBeNil)
			detail, derr := svc.Lake(ctx, "L1")

			Convey("Then the catalogue metadata flows through", func() {
				So(lakes, ShouldHaveLength, 1)
				So(lakes[0].ID, ShouldEqual, "L1")
				So(derr, ShouldBeNil)
				So(detail.Lake.Name, ShouldEqual, "Alqueva")
				So(detail.Indicators[0].ValueDomain.Max, ShouldEqual, 5)
				So(detail.Indicators[0].DateDomain.NumDays(), ShouldEqual, 90)
			})
		})

		Convey("When a missing lake is read", func() {
			_, err := svc.Lake(ctx, "L9")

			Convey("Then it is not found", func() {
				So(err, ShouldWrap, service.ErrLakeNotFound)
			})
		})

		Convey("When a timeline is opened end-to-end on the first day", func() {
			sess, err := svc.OpenTimeline(ctx, service.OpenRequest{
				LakeID: "L1", Width: 800, Height: 200,
				Day: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			})
			So(err, ShouldBeNil)

			Convey("Then only series days are requested and the stored scene resolves", func() {
				So(eventually(func() bool {
					return reconcile.Count(sess.Timeline().Records()).Terminal() == 2
				}), ShouldBeTrue)
				So(cat.requested(), ShouldEqual, 2)

				counts := reconcile.Count(sess.View().Frame.Records)
				So(counts.Success, ShouldEqual, 1)
				So(counts.Empty, ShouldEqual, 1)
				So(counts.Error, ShouldEqual, 0)
				So(svc.GetStats()["breaker"], ShouldEqual, "closed")
			})

			Convey("Then the tile layer targets the tiler", func() {
				u, err := svc.TileURL(sess.ID, sess.Timeline().Domain().Start.AddDate(0, 0, 2), "")
				So(err, ShouldBeNil)
				So(u, ShouldStartWith, srv.URL+"/tiler/collections/whis-lakes-labelec-scenes-c2rcc/items/L1_20240103/tiles/")
				So(u, ShouldContainSubstring, "rescale=0%2C5")
			})
		})
	})
}
