package stac

import (
	"context"
	"fmt"
	"net/url"

	"github.com/samber/lo"

	"github.com/okian/lakeline/internal/domain/model"
)

// lakeListLimit is the page size of the features collection listing.
const lakeListLimit = 100

type lakeProperties struct {
	IDHidro    string  `json:"idhidro"`
	Name       string  `json:"nome"`
	AreaHa     float64 `json:"area_ha"`
	Classifica string  `json:"classifica"`
	RiverBasin string  `json:"eu_cd_rb"`
	SeriesURL  string  `json:"stats_time_series_url"`
}

type lakeFeature struct {
	ID         string         `json:"id"`
	BBox       []float64      `json:"bbox"`
	Properties lakeProperties `json:"properties"`
}

type lakeCollection struct {
	Features []lakeFeature `json:"features"`
}

func (f lakeFeature) lake() model.Lake {
	id := f.Properties.IDHidro
	if id == "" {
		id = f.ID
	}
	return model.Lake{
		ID:             id,
		Name:           f.Properties.Name,
		AreaHa:         f.Properties.AreaHa,
		Classification: f.Properties.Classifica,
		RiverBasin:     f.Properties.RiverBasin,
		SeriesURL:      f.Properties.SeriesURL,
		BBox:           f.BBox,
	}
}

// Lakes lists the lakes of the features collection.
func (c *Client) Lakes(ctx context.Context) ([]model.Lake, error) {
	u := fmt.Sprintf("%s/collections/%s/items?limit=%d", c.stacAPI, url.PathEscape(c.features), lakeListLimit)
	var fc lakeCollection
	if err := c.GetJSON(ctx, u, nil, &fc); err != nil {
		return nil, fmt.Errorf("list lakes: %w", err)
	}
	return lo.Map(fc.Features, func(f lakeFeature, _ int) model.Lake { return f.lake() }), nil
}

// Lake fetches one lake. A missing lake yields an error wrapping
// cache.ErrNotFound.
func (c *Client) Lake(ctx context.Context, id string) (model.Lake, error) {
	u := fmt.Sprintf("%s/collections/%s/items/%s", c.stacAPI, url.PathEscape(c.features), url.PathEscape(id))
	var f lakeFeature
	if err := c.GetJSON(ctx, u, nil, &f); err != nil {
		return model.Lake{}, fmt.Errorf("lake %s: %w", id, err)
	}
	return f.lake(), nil
}

// Series fetches and parses the lake's daily statistics document.
func (c *Client) Series(ctx context.Context, lake model.Lake) ([]model.SeriesPoint, error) {
	if lake.SeriesURL == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoSeries, lake.ID)
	}
	var doc map[string]model.SeriesValue
	if err := c.GetJSON(ctx, lake.SeriesURL, nil, &doc); err != nil {
		return nil, fmt.Errorf("series of %s: %w", lake.ID, err)
	}
	points, err := model.ParseSeries(doc)
	if err != nil {
		return nil, fmt.Errorf("series of %s: %w", lake.ID, err)
	}
	return points, nil
}
