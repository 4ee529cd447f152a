package probe

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/okian/lakeline/internal/domain/model"
	"github.com/okian/lakeline/internal/domain/scale"
	"github.com/okian/lakeline/internal/domain/timeline"
	"github.com/okian/lakeline/pkg/logger"
)

const (
	directoryPermission = 0750
	reportPermission    = 0600
	pollInterval        = 25 * time.Millisecond
	maxFailures         = 100
)

// ErrViolations is returned when any frame broke a render invariant.
var ErrViolations = errors.New("probe: invariant violations")

type lakeDetail struct {
	Lake       model.Lake        `json:"lake"`
	Indicators []model.Indicator `json:"indicators"`
}

type sessionView struct {
	ID    string         `json:"id"`
	Frame timeline.Frame `json:"frame"`
}

type gesture struct {
	Kind string  `json:"kind"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
}

type jumpResult struct {
	Moved bool           `json:"moved"`
	Frame timeline.Frame `json:"frame"`
}

// runner carries the state shared by the sessions of one run.
type runner struct {
	cfg    *Config
	client *HTTPClient
	stats  *Stats
	log    logger.Logger

	mu       sync.Mutex
	failures []string
}

// Run opens timelines against a running service, drives them with
// scripted gestures and checks every frame it gets back.
func Run(ctx context.Context, cfg *Config) (*Report, error) {
	r := &runner{
		cfg:    cfg,
		client: newHTTPClient(cfg.BaseURL, cfg.Timeout),
		stats:  &Stats{StartTime: time.Now()},
		log:    logger.Named("probe"),
	}

	r.log.Info(ctx, "starting timeline probe",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("sessions", cfg.Sessions),
		logger.Int("drags", cfg.Drags),
		logger.Int("workers", cfg.Workers),
		logger.Any("seed", cfg.Seed),
		logger.Time("started", r.stats.StartTime))

	if err := r.client.Get(ctx, "/healthz", nil); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	detail, err := r.pickLake(ctx)
	if err != nil {
		return nil, fmt.Errorf("lake lookup failed: %w", err)
	}
	if len(detail.Indicators) == 0 {
		return nil, fmt.Errorf("lake %s has no indicators", detail.Lake.ID)
	}
	domain := detail.Indicators[0].DateDomain
	r.log.Info(ctx, "probing lake",
		logger.String("lake", detail.Lake.ID),
		logger.String("from", scale.FormatISO(domain.Start)),
		logger.String("to", scale.FormatISO(domain.End)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i := range cfg.Sessions {
		plan := generatePlan(newRand(cfg.Seed, i), domain, cfg.Drags, cfg.Width)
		g.Go(func() error {
			if err := r.session(gctx, detail.Lake.ID, plan); err != nil {
				r.stats.SessionsFailed.Add(1)
				r.fail(fmt.Sprintf("session %d: %v", i, err))
				if gctx.Err() != nil {
					return gctx.Err()
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	r.stats.EndTime = time.Now()
	r.stats.Duration = r.stats.EndTime.Sub(r.stats.StartTime)
	report := r.report(detail.Lake.ID)
	r.display(ctx, report)

	if cfg.ReportFile != "" {
		if err := saveReport(cfg.ReportFile, report); err != nil {
			r.log.Warn(ctx, "failed to save report", logger.Error(err))
		}
	}
	if report.Violations > 0 {
		return report, fmt.Errorf("%w: %d", ErrViolations, report.Violations)
	}
	return report, nil
}

func (r *runner) pickLake(ctx context.Context) (lakeDetail, error) {
	id := r.cfg.LakeID
	if id == "" {
		var lakes []model.Lake
		if err := r.client.Get(ctx, "/lakes", &lakes); err != nil {
			return lakeDetail{}, err
		}
		if len(lakes) == 0 {
			return lakeDetail{}, errors.New("catalogue lists no lakes")
		}
		id = lakes[0].ID
	}
	var d lakeDetail
	err := r.client.Get(ctx, "/lakes/"+url.PathEscape(id), &d)
	return d, err
}

// session runs one plan: open, drag, wait for the window, jump, close.
func (r *runner) session(ctx context.Context, lakeID string, plan Plan) error {
	var view sessionView
	open := map[string]any{"lake_id": lakeID, "width": r.cfg.Width, "height": r.cfg.Height}
	if err := r.client.Post(ctx, "/timelines", open, &view); err != nil {
		return fmt.Errorf("open: %w", err)
	}
	r.stats.SessionsOpened.Add(1)
	path := "/timelines/" + url.PathEscape(view.ID)
	defer func() {
		if err := r.client.Delete(context.WithoutCancel(ctx), path); err != nil {
			r.log.Warn(ctx, "failed to close timeline", logger.String("session", view.ID), logger.Error(err))
		}
	}()
	r.check(view.ID, "open", view.Frame)

	y := r.cfg.Height / 2
	for i, dx := range plan.Drags {
		start := r.cfg.Width / 2
		batch := []gesture{
			{Kind: "down", X: start, Y: y},
			{Kind: "move", X: start + dx/2, Y: y},
			{Kind: "move", X: start + dx, Y: y},
			{Kind: "up"},
		}
		var f timeline.Frame
		if err := r.client.Post(ctx, path+"/gestures", map[string]any{"gestures": batch}, &f); err != nil {
			return fmt.Errorf("drag %d: %w", i, err)
		}
		r.stats.GesturesSent.Add(int64(len(batch)))
		r.check(view.ID, fmt.Sprintf("drag %d", i), f)
	}

	f, err := r.awaitSettled(ctx, path)
	if err != nil {
		return err
	}
	r.stats.WindowsSettled.Add(1)
	if r.cfg.Verbose {
		c := summarize(f)
		r.log.Debug(ctx, "window settled",
			logger.String("session", view.ID),
			logger.Int("success", c.Success),
			logger.Int("empty", c.Empty),
			logger.Int("error", c.Error))
	}

	var jr jumpResult
	if err := r.client.Post(ctx, path+"/jump", map[string]string{"date": scale.FormatISO(plan.Jump)}, &jr); err != nil {
		return fmt.Errorf("jump: %w", err)
	}
	r.stats.Jumps.Add(1)
	r.check(view.ID, "jump", jr.Frame)
	if err := jumpLanded(jr.Frame, plan.Jump); err != nil {
		r.violation(view.ID, "jump", err.Error())
	}
	return nil
}

// awaitSettled polls the session until its window has no loading days.
func (r *runner) awaitSettled(ctx context.Context, path string) (timeline.Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.SettleWait)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var view sessionView
		if err := r.client.Get(ctx, path, &view); err != nil {
			return timeline.Frame{}, fmt.Errorf("poll: %w", err)
		}
		if settled(view.Frame) {
			return view.Frame, nil
		}
		select {
		case <-ctx.Done():
			return timeline.Frame{}, fmt.Errorf("window did not settle: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *runner) check(session, step string, f timeline.Frame) {
	r.stats.FramesChecked.Add(1)
	for _, v := range verifyFrame(f) {
		r.violation(session, step, v)
	}
}

func (r *runner) violation(session, step, msg string) {
	r.stats.Violations.Add(1)
	r.fail(fmt.Sprintf("%s %s: %s", session, step, msg))
	r.log.Warn(context.Background(), "invariant violated",
		logger.String("session", session),
		logger.String("step", step),
		logger.String("violation", msg))
}

func (r *runner) fail(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.failures) < maxFailures {
		r.failures = append(r.failures, msg)
	}
}

func (r *runner) report(lakeID string) *Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Report{
		BaseURL:        r.cfg.BaseURL,
		LakeID:         lakeID,
		Seed:           r.cfg.Seed,
		SessionsOpened: r.stats.SessionsOpened.Load(),
		SessionsFailed: r.stats.SessionsFailed.Load(),
		GesturesSent:   r.stats.GesturesSent.Load(),
		Jumps:          r.stats.Jumps.Load(),
		FramesChecked:  r.stats.FramesChecked.Load(),
		WindowsSettled: r.stats.WindowsSettled.Load(),
		Violations:     r.stats.Violations.Load(),
		Failures:       append([]string(nil), r.failures...),
		Duration:       r.stats.Duration,
	}
}

func (r *runner) display(ctx context.Context, rep *Report) {
	var framesPerSecond float64
	if rep.Duration > 0 {
		framesPerSecond = float64(rep.FramesChecked) / rep.Duration.Seconds()
	}
	r.log.Info(ctx, "final statistics",
		logger.Any("sessionsOpened", rep.SessionsOpened),
		logger.Any("sessionsFailed", rep.SessionsFailed),
		logger.Any("gesturesSent", rep.GesturesSent),
		logger.Any("jumps", rep.Jumps),
		logger.Any("framesChecked", rep.FramesChecked),
		logger.Any("windowsSettled", rep.WindowsSettled),
		logger.Any("violations", rep.Violations),
		logger.Duration("duration", rep.Duration),
		logger.Float64("framesPerSecond", framesPerSecond))
}

// saveReport writes the report as indented JSON, creating its directory.
func saveReport(filename string, rep *Report) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(filename, append(data, '\n'), reportPermission); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
