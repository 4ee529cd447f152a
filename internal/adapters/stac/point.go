package stac

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/pkg/logger"
)

// previousCandidates bounds the catalogue search for earlier scenes.
const previousCandidates = 10

// minValidCoverage is the water coverage a scene needs to be a candidate.
const minValidCoverage = 0.01

// Measurement is an indicator value at a point on a given day.
type Measurement struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

type pointResponse struct {
	Values []*float64 `json:"values"`
}

// CogURL is the object-store location of a lake's indicator raster.
func (c *Client) CogURL(lakeID, indicator string, day time.Time) string {
	return fmt.Sprintf("%s/%s/c2rcc/indicators/%s/%s.tif", c.bucket, lakeID, scale.FormatCompact(day), indicator)
}

// PointValue samples indicator at lng, lat on day. A nil value means the
// raster has no data there.
func (c *Client) PointValue(ctx context.Context, lakeID, indicator string, day time.Time, lng, lat float64) (*float64, error) {
	u := fmt.Sprintf("%s/cog/point/%s,%s?%s", c.tilerAPI,
		strconv.FormatFloat(lng, 'f', -1, 64),
		strconv.FormatFloat(lat, 'f', -1, 64),
		url.Values{"url": {c.CogURL(lakeID, indicator, day)}}.Encode(),
	)
	var resp pointResponse
	if err := c.GetJSON(ctx, u, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}
	return resp.Values[0], nil
}

type searchResponse struct {
	Features []struct {
		Properties struct {
			Datetime string `json:"datetime"`
		} `json:"properties"`
	} `json:"features"`
}

func (c *Client) previousQuery(lakeID string, before time.Time) map[string]any {
	return map[string]any{
		"filter-lang": "cql2-json",
		"limit":       previousCandidates,
		"sortby":      []map[string]string{{"field": "datetime", "direction": "desc"}},
		"filter": map[string]any{
			"op": "and",
			"args": []any{
				map[string]any{"op": "=", "args": []any{map[string]string{"property": "collection"}, c.scenes}},
				map[string]any{"op": "like", "args": []any{map[string]string{"property": "id"}, lakeID + "%"}},
				map[string]any{"op": ">", "args": []any{
					map[string]string{"property": "properties.percent_valid_in_water_body"}, minValidCoverage,
				}},
				map[string]any{"op": "t_before", "args": []any{
					map[string]string{"property": "datetime"}, before.UTC().Format(time.RFC3339Nano),
				}},
			},
		},
		"fields": map[string]any{
			"include": []string{"properties", "type"},
			"exclude": []string{"bbox", "links"},
		},
	}
}

// PreviousMeasurement finds the latest earlier scene with a value at
// lng, lat. Candidates are sampled in parallel and the most recent
// non-null value wins. Every failure yields nil.
func (c *Client) PreviousMeasurement(ctx context.Context, lakeID, indicator string, day time.Time, lng, lat float64) *Measurement {
	var found searchResponse
	if err := c.PostJSON(ctx, c.stacAPI+"/search", c.previousQuery(lakeID, day), &found); err != nil {
		c.log.Debug(ctx, "previous measurement search failed", logger.String("lake", lakeID), logger.Error(err))
		return nil
	}

	dates := make([]time.Time, 0, len(found.Features))
	for _, f := range found.Features {
		d, err := time.Parse(time.RFC3339, f.Properties.Datetime)
		if err != nil {
			continue
		}
		dates = append(dates, d.UTC())
	}

	values := make([]*float64, len(dates))
	var g errgroup.Group
	g.SetLimit(c.pointConcurrency)
	for i, d := range dates {
		g.Go(func() error {
			v, err := c.PointValue(ctx, lakeID, indicator, d, lng, lat)
			if err != nil {
				c.log.Debug(ctx, "previous measurement sample failed",
					logger.String("lake", lakeID), logger.String("date", scale.FormatISO(d)), logger.Error(err))
				return nil
			}
			values[i] = v
			return nil
		})
	}
	_ = g.Wait()

	for i, v := range values {
		if v != nil {
			return &Measurement{Date: dates[i], Value: *v}
		}
	}
	return nil
}
