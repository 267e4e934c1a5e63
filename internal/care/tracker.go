package care

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/coloring-care/internal/config"
	"github.com/ironsheep/coloring-care/internal/metrics"
	"github.com/ironsheep/coloring-care/internal/nudge"
	"github.com/ironsheep/coloring-care/internal/report"
	"github.com/ironsheep/coloring-care/internal/store"
)

// Reporter writes the texts attached to sessions. *report.Client
// implements it.
type Reporter interface {
	Analyze(ctx context.Context, in report.AnalysisInput) (string, error)
	Encourage(ctx context.Context) (string, error)
}

// Store persists finalized sessions. *store.Store implements it.
type Store interface {
	SaveGalleryImage(ctx context.Context, png []byte, userID *string) (*store.GalleryImage, error)
	RecordSession(ctx context.Context, rec *store.SessionRecord) error
}

// Settings are the tunables a tracker applies to new sessions.
type Settings struct {
	NudgeInterval        time.Duration
	EncouragementTimeout time.Duration
	Metrics              metrics.Options
}

// DefaultSettings returns the built-in tunables.
func DefaultSettings() Settings {
	return Settings{
		NudgeInterval:        nudge.DefaultInterval,
		EncouragementTimeout: 10 * time.Second,
		Metrics:              metrics.DefaultOptions(),
	}
}

// SettingsFromConfig extracts tracker settings from cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		NudgeInterval:        cfg.Nudge.Interval,
		EncouragementTimeout: cfg.Nudge.EncouragementTimeout,
		Metrics:              metrics.Options{TremorThreshold: cfg.Metrics.TremorThreshold},
	}
}

// Deps are the collaborators shared by every tracker. Only Log is required.
type Deps struct {
	Clock    nudge.Clock
	Reporter Reporter
	Store    Store
	// Notify receives nudge notices. It is called from its own goroutine.
	Notify func(NudgeNotice)
	Log    *zap.Logger
}

// Tracker follows one client: its mode and at most one live care session.
//
// Lock order is Tracker.mu before the session scheduler's lock. Nudge
// callbacks run under the scheduler lock and therefore never take
// Tracker.mu; they append to the session log and hand the rest to a
// goroutine.
type Tracker struct {
	id   string
	deps Deps
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	settings Settings
	mode     Mode
	session  *session
	closed   bool
}

// NewTracker creates a tracker in fun mode.
func NewTracker(id string, settings Settings, deps Deps) *Tracker {
	if deps.Clock == nil {
		deps.Clock = nudge.SystemClock{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		id:       id,
		deps:     deps,
		log:      deps.Log.With(zap.String("tracker", id)),
		ctx:      ctx,
		cancel:   cancel,
		settings: settings,
		mode:     ModeFun,
	}
}

// ID returns the tracker id.
func (t *Tracker) ID() string {
	return t.id
}

// Mode returns the current mode.
func (t *Tracker) Mode() Mode {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mode
}

// UpdateSettings replaces the tunables. A live session keeps the interval it
// started with; metric options apply from the next computation.
func (t *Tracker) UpdateSettings(s Settings) {
	t.mu.Lock()
	t.settings = s
	t.mu.Unlock()
}

// SetMode switches modes. Leaving care mode discards the live session.
// Entering care mode waits for a template before starting a session.
func (t *Tracker) SetMode(m Mode) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mode == m {
		return
	}
	t.mode = m
	if m != ModeCare {
		t.teardownLocked("mode switch")
	}
	t.log.Info("Mode changed", zap.String("mode", string(m)))
}

// LoadTemplate starts a new care session on a canvas of the given size,
// discarding any previous one.
func (t *Tracker) LoadTemplate(canvas metrics.Canvas) (SessionInfo, error) {
	if canvas.Width <= 0 || canvas.Height <= 0 {
		return SessionInfo{}, ErrInvalidCanvas
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return SessionInfo{}, ErrTrackerNotFound
	}
	if t.mode != ModeCare {
		return SessionInfo{}, ErrNotCareMode
	}
	t.teardownLocked("new template")

	s := &session{
		id:        uuid.NewString(),
		startedAt: t.deps.Clock.Now(),
		canvas:    canvas,
	}
	s.scheduler = nudge.NewScheduler(t.settings.NudgeInterval, t.deps.Clock, t.nudgeFunc(s))
	t.session = s
	s.scheduler.Arm()

	t.log.Info("Care session started",
		zap.String("session", s.id),
		zap.Int("width", canvas.Width),
		zap.Int("height", canvas.Height),
	)
	return t.infoLocked(), nil
}

// Record appends an event to the live session. Committed events restart the
// idle countdown; moves do not.
func (t *Tracker) Record(in EventInput) (metrics.Event, error) {
	kind, err := metrics.ParseEventKind(in.Kind)
	if err != nil {
		return metrics.Event{}, &EventError{Kind: in.Kind, Err: err}
	}
	if kind == metrics.KindNudge {
		return metrics.Event{}, &EventError{Kind: in.Kind, Err: ErrNudgeInjected}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.session
	if s == nil {
		return metrics.Event{}, ErrNoActiveSession
	}

	ev := metrics.Event{Kind: kind, Position: in.Position}
	if in.Timestamp != nil {
		ev.Timestamp = *in.Timestamp
	} else {
		ev.Timestamp = s.offset(t.deps.Clock.Now())
	}
	if err := ev.Validate(); err != nil {
		return metrics.Event{}, &EventError{Kind: in.Kind, Err: err}
	}

	s.log.Append(ev)
	if kind.Committed() {
		s.scheduler.Arm()
	}
	return ev, nil
}

// Metrics recomputes the metrics of the live session from its full log.
func (t *Tracker) Metrics() (metrics.SessionMetrics, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return metrics.SessionMetrics{}, ErrNoActiveSession
	}
	return t.session.compute(t.deps.Clock.Now(), t.settings.Metrics), nil
}

// Session describes the live session, if any.
func (t *Tracker) Session() (SessionInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.session == nil {
		return SessionInfo{TrackerID: t.id, Mode: t.mode}, false
	}
	return t.infoLocked(), true
}

// Close discards the live session and waits for in-flight nudge deliveries.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.teardownLocked("tracker closed")
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	t.wg.Wait()
}

func (t *Tracker) infoLocked() SessionInfo {
	s := t.session
	return SessionInfo{
		TrackerID:  t.id,
		SessionID:  s.id,
		Mode:       t.mode,
		StartedAt:  s.startedAt,
		Canvas:     s.canvas,
		EventCount: s.log.Len(),
		NudgeCount: s.scheduler.Fired(),
		NudgeState: s.scheduler.State().String(),
	}
}

func (t *Tracker) teardownLocked(reason string) {
	if t.session == nil {
		return
	}
	t.session.scheduler.Cancel()
	t.log.Info("Care session discarded",
		zap.String("session", t.session.id),
		zap.String("reason", reason),
		zap.Int("events", t.session.log.Len()),
	)
	t.session = nil
}

// nudgeFunc returns the scheduler callback for s. It runs under the
// scheduler lock.
func (t *Tracker) nudgeFunc(s *session) nudge.FireFunc {
	var count int
	return func(at time.Time) {
		s.log.Append(metrics.Event{Kind: metrics.KindNudge, Timestamp: s.offset(at)})
		count++
		notice := NudgeNotice{TrackerID: t.id, SessionID: s.id, At: at, NudgeCount: count}

		t.wg.Add(1)
		go t.deliverNudge(s, notice)
	}
}

// deliverNudge fetches an encouragement message and hands the notice to
// Notify, unless the session ended in the meantime.
func (t *Tracker) deliverNudge(s *session, notice NudgeNotice) {
	defer t.wg.Done()

	t.mu.Lock()
	timeout := t.settings.EncouragementTimeout
	t.mu.Unlock()

	if t.deps.Reporter != nil {
		ctx := t.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		msg, err := t.deps.Reporter.Encourage(ctx)
		if err != nil {
			t.log.Warn("Could not generate encouragement", zap.String("session", s.id), zap.Error(err))
		}
		notice.Message = msg
	}

	t.mu.Lock()
	live := t.session == s
	t.mu.Unlock()
	if !live {
		return
	}

	t.log.Info("Nudge delivered", zap.String("session", s.id), zap.Int("nudges", notice.NudgeCount))
	if t.deps.Notify != nil {
		t.deps.Notify(notice)
	}
}
