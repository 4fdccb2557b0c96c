// Package app wires the check-in session to the attendance server, the
// journal, the presence indicator and local observers. At most one check-in
// runs at a time.
package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ayusman/facecheck/internal/attendance"
	"github.com/ayusman/facecheck/internal/capture"
	"github.com/ayusman/facecheck/internal/checkin"
	"github.com/ayusman/facecheck/internal/detector"
	"github.com/ayusman/facecheck/internal/geo"
	"github.com/ayusman/facecheck/internal/observe"
	"github.com/ayusman/facecheck/internal/presence"
	"github.com/ayusman/facecheck/internal/store"
)

var (
	// ErrSessionActive is returned when a check-in is already running.
	ErrSessionActive = errors.New("a check-in is already running")
	// ErrNoSession is returned when there is no check-in to act on.
	ErrNoSession = errors.New("no check-in")
	// ErrNoPresence is returned when no presence indicator is configured.
	ErrNoPresence = errors.New("presence indicator not configured")
)

// submitTimeout bounds the attendance submission after a match.
const submitTimeout = 15 * time.Second

// Attendance is the attendance server as seen by the app.
type Attendance interface {
	checkin.ProfileSource
	SubmitAttendance(ctx context.Context, s attendance.Submission) error
}

// Config holds the application's collaborators. Camera, Detector and
// Profiles (or Attendance) are required.
type Config struct {
	Session   checkin.Config
	CompanyID int

	Camera     capture.Camera
	Detector   detector.Detector
	Attendance Attendance
	// Profiles overrides Attendance as the reference photo source.
	Profiles checkin.ProfileSource
	Locator  geo.Locator

	Store    *store.Store
	Presence *presence.Indicator
	Notifier Notifier
	Events   Publisher
	Preview  *capture.FrameSlot

	Logger  *slog.Logger
	Metrics *observe.Metrics
}

// Status describes the current or last check-in.
type Status struct {
	SessionID string          `json:"session_id"`
	State     checkin.State   `json:"state"`
	Active    bool            `json:"active"`
	StartedAt time.Time       `json:"started_at"`
	Result    *checkin.Result `json:"result,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// run is one session plus its post-processing.
type run struct {
	session *checkin.Session
	started time.Time
	handled chan struct{}
	result  checkin.Result
}

// App is the check-in agent.
type App struct {
	config  Config
	logger  *slog.Logger
	metrics *observe.Metrics

	mu      sync.Mutex
	ctx     context.Context
	current *run
	wg      sync.WaitGroup
}

// New creates a new App.
func New(config Config) (*App, error) {
	if config.Camera == nil || config.Detector == nil {
		return nil, errors.New("app: camera and detector are required")
	}
	if config.Profiles == nil {
		if config.Attendance == nil {
			return nil, errors.New("app: no reference photo source configured")
		}
		config.Profiles = config.Attendance
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := config.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &App{
		config:  config,
		logger:  logger,
		metrics: metrics,
		ctx:     context.Background(),
	}, nil
}

// Run shows the cached presence color, refreshes it once and then blocks
// until ctx is done. A running check-in is cancelled on the way out.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	a.ctx = ctx
	a.mu.Unlock()

	if a.config.Presence != nil {
		a.config.Presence.Restore()
		if _, err := a.RefreshPresence(ctx); err != nil {
			a.logger.Warn("initial presence refresh failed", "error", err)
		}
	}

	<-ctx.Done()

	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()
	if cur != nil {
		cur.session.Cancel()
	}
	a.wg.Wait()
	return nil
}

// Start begins a check-in in the background and returns its session id.
func (a *App) Start(ctx context.Context) (string, error) {
	r, err := a.start()
	if err != nil {
		return "", err
	}
	return r.session.ID(), nil
}

// CheckIn runs a check-in and waits for its result, including attendance
// submission. Cancelling ctx cancels the check-in.
func (a *App) CheckIn(ctx context.Context) (checkin.Result, error) {
	r, err := a.start()
	if err != nil {
		return checkin.Result{}, err
	}

	select {
	case <-r.handled:
	case <-ctx.Done():
		r.session.Cancel()
		<-r.handled
	}
	return r.result, nil
}

func (a *App) start() (*run, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil && !isClosed(a.current.handled) {
		return nil, ErrSessionActive
	}

	r := &run{started: time.Now(), handled: make(chan struct{})}
	r.session = checkin.New(a.config.Session, checkin.Deps{
		Profiles:      a.config.Profiles,
		Camera:        a.config.Camera,
		Detector:      a.config.Detector,
		Locator:       a.config.Locator,
		Logger:        a.logger,
		Metrics:       a.metrics,
		Preview:       a.config.Preview,
		OnStateChange: a.onStateChange,
	})
	a.current = r

	ctx := a.ctx
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		res := r.session.Run(ctx)
		a.handle(context.WithoutCancel(ctx), r, res)
	}()

	a.logger.Info("check-in started", "session_id", r.session.ID())
	return r, nil
}

func (a *App) onStateChange(id string, s checkin.State) {
	a.publish(Event{Type: EventState, SessionID: id, State: s})
}

// handle persists res, submits attendance on a match, refreshes presence
// and tells the user.
func (a *App) handle(ctx context.Context, r *run, res checkin.Result) {
	defer close(r.handled)
	r.result = res

	a.persist(res)

	if res.Matched && a.config.Attendance != nil {
		err := a.submit(ctx, res)
		a.metrics.RecordSubmission(ctx, err)
		if a.config.Store != nil {
			if serr := a.config.Store.CheckIns().MarkSubmitted(res.SessionID, err); serr != nil {
				a.logger.Warn("recording submission failed", "session_id", res.SessionID, "error", serr)
			}
		}
		ev := Event{Type: EventSubmission, SessionID: res.SessionID}
		if err != nil {
			a.logger.Error("attendance submission failed", "session_id", res.SessionID, "error", err)
			ev.Error = err.Error()
		}
		a.publish(ev)

		if a.config.Presence != nil {
			if _, err := a.RefreshPresence(ctx); err != nil {
				a.logger.Warn("presence refresh failed", "error", err)
			}
		}
	}

	msg, level := notification(res)
	if a.config.Notifier != nil {
		if err := a.config.Notifier.Notify(ctx, res.Outcome(), notifyTitle, msg, level); err != nil {
			a.logger.Warn("notification failed", "error", err)
		}
	}
	a.publish(Event{Type: EventResult, SessionID: res.SessionID, State: checkin.StateClosed, Result: &res, Message: msg})
}

func (a *App) submit(ctx context.Context, res checkin.Result) error {
	ctx, cancel := context.WithTimeout(ctx, submitTimeout)
	defer cancel()
	return a.config.Attendance.SubmitAttendance(ctx, attendance.Submission{
		Company: a.config.CompanyID,
		User:    res.Identity,
		Selfie:  res.Selfie,
		Coords:  res.Coords,
	})
}

func (a *App) persist(res checkin.Result) {
	if a.config.Store == nil {
		return
	}
	c := &store.CheckIn{
		ID:             res.SessionID,
		Identity:       res.Identity,
		Matched:        res.Matched,
		Reason:         string(res.Reason),
		Detail:         res.Detail,
		Distance:       res.Distance,
		LocationReason: string(res.LocationReason),
		StartedAt:      res.StartedAt,
		EndedAt:        res.EndedAt,
	}
	if res.Coords != nil {
		lat, lon := res.Coords.Latitude, res.Coords.Longitude
		c.Latitude, c.Longitude = &lat, &lon
	}
	if err := a.config.Store.CheckIns().Create(c); err != nil {
		a.logger.Error("saving check-in failed", "session_id", res.SessionID, "error", err)
	}
}

// Cancel cancels the running check-in.
func (a *App) Cancel() error {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()

	if cur == nil || isClosed(cur.handled) {
		return ErrNoSession
	}
	cur.session.Cancel()
	return nil
}

// Current returns the running check-in, or the last one if none is running.
func (a *App) Current() (Status, error) {
	a.mu.Lock()
	cur := a.current
	a.mu.Unlock()

	if cur == nil {
		return Status{}, ErrNoSession
	}
	st := Status{
		SessionID: cur.session.ID(),
		State:     cur.session.State(),
		Active:    !isClosed(cur.handled),
		StartedAt: cur.started,
	}
	if !st.Active {
		res := cur.result
		st.Result = &res
		st.Message, _ = notification(res)
	}
	return st, nil
}

// Get returns a journaled check-in.
func (a *App) Get(id string) (*store.CheckIn, error) {
	if a.config.Store == nil {
		return nil, store.ErrNotFound
	}
	return a.config.Store.CheckIns().GetByID(id)
}

// History returns the most recent journaled check-ins.
func (a *App) History(limit int) ([]*store.CheckIn, error) {
	if a.config.Store == nil {
		return nil, nil
	}
	return a.config.Store.CheckIns().List(limit)
}

// RefreshPresence updates the presence indicator from the server.
func (a *App) RefreshPresence(ctx context.Context) (attendance.Color, error) {
	if a.config.Presence == nil {
		return "", ErrNoPresence
	}
	c, err := a.config.Presence.Refresh(ctx)
	if err != nil {
		return "", err
	}
	a.publish(Event{Type: EventPresence, Color: string(c)})
	return c, nil
}

// Close releases the detector.
func (a *App) Close() error {
	return a.config.Detector.Close()
}

func (a *App) publish(e Event) {
	if a.config.Events == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	a.config.Events.Publish(e)
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
