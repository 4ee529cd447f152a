package panzoom

import (
	"time"

	"github.com/okian/lakeline/pkg/logger"
)

// DefaultSettleDelay is how long after the last movement a gesture settles.
const DefaultSettleDelay = 150 * time.Millisecond

// Option configures a Controller.
type Option func(*Controller)

// WithOnChange receives every accepted proposal.
func WithOnChange(fn func(ChangeEvent)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.onChange = fn
		}
	}
}

// WithOnPanEnd receives the committed value once per settled gesture or jump.
func WithOnPanEnd(fn func(Value)) Option {
	return func(c *Controller) {
		if fn != nil {
			c.onPanEnd = fn
		}
	}
}

// WithSettleDelay sets the delay between the last movement and the settle.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.delay = d
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}
