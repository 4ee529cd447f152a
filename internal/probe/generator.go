package probe

import (
	"math/rand/v2"
	"time"

	"github.com/okian/lakeline/internal/domain/scale"
)

// maxDragFraction bounds a drag to this share of the canvas width.
const maxDragFraction = 0.9

// Plan is the scripted interaction of one session.
type Plan struct {
	Drags []float64 // Horizontal drag distances, negative moves forward in time
	Jump  time.Time // Day to jump to after the drags
}

// newRand returns the generator of session i. Equal seeds replay runs.
func newRand(seed uint64, i int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(i)))
}

// generatePlan scripts drags of up to most of the canvas width and a jump
// to a random day of domain.
func generatePlan(r *rand.Rand, domain scale.DateDomain, drags int, width float64) Plan {
	p := Plan{Drags: make([]float64, drags)}
	for i := range p.Drags {
		// Mostly forward, like someone scrolling through a season.
		d := r.Float64() * width * maxDragFraction
		if r.IntN(4) == 0 {
			d = -d
		}
		p.Drags[i] = -d
	}
	if n := domain.NumDays(); n > 0 {
		p.Jump = domain.Start.AddDate(0, 0, r.IntN(n+1))
	} else {
		p.Jump = domain.Start
	}
	return p
}
