package service

import (
	"sync"
	"time"

	"github.com/okian/lakeline/internal/adapters/stac"
	"github.com/okian/lakeline/internal/domain/model"
	"github.com/okian/lakeline/internal/domain/timeline"
)

const (
	subscriberBuffer = 8
	maxSubscribers   = 16
)

// Session is one open timeline of a lake indicator.
type Session struct {
	ID        string
	Lake      model.Lake
	Indicator model.Indicator
	Opened    time.Time

	tl     *timeline.Timeline[stac.SceneItem]
	series []model.SeriesPoint

	mu      sync.Mutex
	subs    map[int]chan timeline.Frame
	nextSub int
	closed  bool
}

// View is the serialisable state of a session.
type View struct {
	ID        string          `json:"id"`
	Lake      model.Lake      `json:"lake"`
	Indicator model.Indicator `json:"indicator"`
	Opened    time.Time       `json:"opened"`
	Ticks     []float64       `json:"ticks"`
	Months    []time.Time     `json:"months"`
	Frame     timeline.Frame  `json:"frame"`
}

func newSession(id string, info *lakeInfo, ind model.Indicator) *Session {
	return &Session{
		ID:        id,
		Lake:      info.Lake,
		Indicator: ind,
		Opened:    time.Now().UTC(),
		series:    info.Series,
		subs:      make(map[int]chan timeline.Frame),
	}
}

// Timeline returns the session's timeline.
func (s *Session) Timeline() *timeline.Timeline[stac.SceneItem] { return s.tl }

// View snapshots the session.
func (s *Session) View() View {
	_, ticks := s.tl.ValueScale(s.Indicator.ValueDomain)
	return View{
		ID:        s.ID,
		Lake:      s.Lake,
		Indicator: s.Indicator,
		Opened:    s.Opened,
		Ticks:     ticks,
		Months:    s.tl.MonthsToRender(),
		Frame:     s.tl.Frame(),
	}
}

// Subscribe returns a channel of rendered frames and a cancel func. A slow
// subscriber loses its oldest frames, never blocks rendering.
func (s *Session) Subscribe() (<-chan timeline.Frame, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, nil, ErrSessionNotFound
	}
	if len(s.subs) >= maxSubscribers {
		return nil, nil, ErrSubscriberCapacity
	}
	id := s.nextSub
	s.nextSub++
	ch := make(chan timeline.Frame, subscriberBuffer)
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}, nil
}

func (s *Session) broadcast(f timeline.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- f:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}

// close detaches the timeline and ends every subscription. It reports
// whether this call closed the session.
func (s *Session) close() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
	s.mu.Unlock()

	if s.tl != nil {
		s.tl.Close()
	}
	return true
}
