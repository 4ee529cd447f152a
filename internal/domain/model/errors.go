package model

import "errors"

var (
	ErrEmptySeries = errors.New("empty statistics series")
	ErrSeriesDate  = errors.New("malformed series date")
)
