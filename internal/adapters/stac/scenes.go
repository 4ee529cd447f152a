package stac

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/samber/lo"

	"github.com/okian/lakeline/internal/domain/cache"
	"github.com/okian/lakeline/internal/domain/model"
	"github.com/okian/lakeline/internal/domain/orchestrator"
	"github.com/okian/lakeline/internal/domain/reconcile"
	"github.com/okian/lakeline/internal/domain/scale"
)

// LakesKey is the first segment of every scene cache key.
const LakesKey = "lakes"

// SceneItem is the part of a daily scene item the timeline reads.
type SceneItem struct {
	ID         string                `json:"id"`
	Properties SceneProperties       `json:"properties"`
	Assets     map[string]SceneAsset `json:"assets"`
}

// SceneProperties carries the scene date and water coverage.
type SceneProperties struct {
	Datetime     string  `json:"datetime"`
	PercentValid float64 `json:"percent_valid_in_water_body"`
}

// SceneAsset is one indicator raster of a scene.
type SceneAsset struct {
	Href  string       `json:"href"`
	Bands []RasterBand `json:"raster:bands"`
}

// RasterBand holds the band statistics computed at ingest.
type RasterBand struct {
	Statistics *BandStatistics `json:"statistics"`
}

// BandStatistics are lake-wide aggregates of one band.
type BandStatistics struct {
	Minimum float64 `json:"minimum"`
	Maximum float64 `json:"maximum"`
	Mean    float64 `json:"mean"`
}

// IndicatorExtractor reads indicator's first band statistics from a scene.
// Scenes without that band render as days without data.
func IndicatorExtractor(indicator string) reconcile.Extractor[SceneItem] {
	return func(item SceneItem) (reconcile.Stats, bool) {
		asset, ok := item.Assets[indicator]
		if !ok || len(asset.Bands) == 0 || asset.Bands[0].Statistics == nil {
			return reconcile.Stats{}, false
		}
		s := asset.Bands[0].Statistics
		return reconcile.Stats{
			Min:          s.Minimum,
			Max:          s.Maximum,
			Mean:         s.Mean,
			ValidPercent: item.Properties.PercentValid,
		}, true
	}
}

// SceneID names a lake's scene of one day.
func SceneID(lakeID string, day time.Time) string {
	return lakeID + "_" + scale.FormatCompact(day)
}

// SceneKey is the cache key of a lake's scene of one day.
func SceneKey(lakeID string, day time.Time) cache.Key {
	return cache.Key{LakesKey, lakeID, scale.FormatISO(day)}
}

// LakeKey is the key prefix of every scene of a lake.
func LakeKey(lakeID string) cache.Key {
	return cache.Key{LakesKey, lakeID}
}

// SceneURL is the catalogue URL of a lake's scene of one day.
func (c *Client) SceneURL(lakeID string, day time.Time) string {
	return fmt.Sprintf("%s/collections/%s/items/%s",
		c.stacAPI, url.PathEscape(c.scenes), url.PathEscape(SceneID(lakeID, day)))
}

// SceneLocator names the keys and URLs of lakeID's daily scenes.
func (c *Client) SceneLocator(lakeID string) orchestrator.Locator {
	return orchestrator.LocatorFunc(func(day time.Time) (cache.Key, string) {
		return SceneKey(lakeID, day), c.SceneURL(lakeID, day)
	})
}

// SeriesDayFilter only selects days present in the lake's statistics
// series. An empty series leaves the window unconstrained.
func SeriesDayFilter(points []model.SeriesPoint) orchestrator.DayFilter {
	return orchestrator.DayFilterFunc(func(_ context.Context, w scale.DateWindow) (orchestrator.Allowed, error) {
		if len(points) == 0 {
			return orchestrator.AllDays(), nil
		}
		last := scale.StartOfDay(w.Last).Add(scale.Day)
		in := lo.Filter(points, func(p model.SeriesPoint, _ int) bool {
			return !p.Date.Before(w.First) && !p.Date.After(last)
		})
		return orchestrator.Allowed{
			Days: lo.Map(in, func(p model.SeriesPoint, _ int) time.Time { return p.Date }),
		}, nil
	})
}

// TileURL is the XYZ template of a scene's indicator layer, rescaled to
// the value domain.
func (c *Client) TileURL(itemID, indicator string, vd scale.ValueDomain, colormap string) string {
	q := url.Values{}
	q.Set("assets", indicator)
	q.Set("rescale", strconv.FormatFloat(vd.Min, 'f', -1, 64)+","+strconv.FormatFloat(vd.Max, 'f', -1, 64))
	if colormap != "" {
		q.Set("colormap_name", colormap)
	}
	return fmt.Sprintf("%s/collections/%s/items/%s/tiles/{z}/{x}/{y}?%s",
		c.tilerAPI, url.PathEscape(c.scenes), url.PathEscape(itemID), q.Encode())
}
