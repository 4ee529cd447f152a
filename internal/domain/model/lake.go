// Package model contains domain models passed between layers.
package model

// Lake is one water body of the features collection.
type Lake struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	AreaHa         float64   `json:"area_ha"`
	Classification string    `json:"classification,omitempty"`
	RiverBasin     string    `json:"river_basin,omitempty"`
	SeriesURL      string    `json:"stats_time_series_url,omitempty"`
	BBox           []float64 `json:"bbox,omitempty"`
}

// Centroid returns the centre of the lake's bounding box as lng, lat.
// ok is false when the feature carries no usable bbox.
func (l Lake) Centroid() (lng, lat float64, ok bool) {
	if len(l.BBox) < 4 {
		return 0, 0, false
	}
	return (l.BBox[0] + l.BBox[2]) / 2, (l.BBox[1] + l.BBox[3]) / 2, true
}
