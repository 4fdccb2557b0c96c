// Package checkin runs one face check-in session: it loads the reference
// descriptor, opens the camera, polls frames through the detector and
// reports exactly one Result, closing the camera on every path.
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/facecheck/internal/capture"
	"github.com/ayusman/facecheck/internal/detector"
	"github.com/ayusman/facecheck/internal/geo"
	"github.com/ayusman/facecheck/internal/match"
	"github.com/ayusman/facecheck/internal/observe"
)

// releaseWarnAfter is how long teardown waits on a pending camera open
// before logging that the Result is held back until the open returns.
var releaseWarnAfter = 2 * time.Second

var errCameraTimeout = errors.New("camera did not become ready in time")

// Config controls one session.
type Config struct {
	Identity string
	// Label is the expected reference label; empty means Identity.
	Label string

	Threshold     float64
	TickInterval  time.Duration
	MaxTickErrors int // consecutive; 0 means unlimited

	ReferenceTimeout time.Duration
	CameraTimeout    time.Duration
	LocateTimeout    time.Duration

	Constraints capture.Constraints
}

// Deps are the session's collaborators. Profiles, Camera and Detector are
// required; the rest are optional.
type Deps struct {
	Profiles ProfileSource
	Camera   capture.Camera
	Detector detector.Detector
	Locator  geo.Locator

	Logger  *slog.Logger
	Metrics *observe.Metrics
	// Preview receives a JPEG of every frame the loop reads.
	Preview *capture.FrameSlot
	// OnStateChange is called after every transition, outside any lock.
	OnStateChange func(id string, s State)
}

// Session is a single-use check-in state machine.
type Session struct {
	id      string
	cfg     Config
	deps    Deps
	logger  *slog.Logger
	metrics *observe.Metrics

	mu         sync.Mutex
	state      State
	proposed   *outcome
	accepted   chan struct{}
	openCalled bool
	openDone   chan struct{}
	tickErrors int
	reference  match.Reference
	matcher    *match.Matcher

	runOnce sync.Once
	done    chan struct{}
	result  Result
}

// New creates a session in state Initializing. Nothing happens until Run.
func New(cfg Config, deps Deps) *Session {
	if cfg.Label == "" {
		cfg.Label = cfg.Identity
	}
	if cfg.Constraints == (capture.Constraints{}) {
		cfg.Constraints = capture.DefaultConstraints()
	}
	id := uuid.NewString()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Session{
		id:       id,
		cfg:      cfg,
		deps:     deps,
		logger:   logger.With("session_id", id, "identity", cfg.Identity),
		metrics:  metrics,
		accepted: make(chan struct{}),
		openDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the Result is available.
func (s *Session) Done() <-chan struct{} { return s.done }

// Result returns the result and true once the session is closed.
func (s *Session) Result() (Result, bool) {
	select {
	case <-s.done:
		return s.result, true
	default:
		return Result{}, false
	}
}

// Cancel forces the session towards Closed with user_cancelled. It is safe
// to call from any goroutine, in any state, any number of times.
func (s *Session) Cancel() {
	s.propose(failed(ReasonUserCancelled, nil))
}

// Run drives the session to completion and returns its Result. Cancelling
// ctx has the same effect as Cancel. Only the first call runs the session;
// later calls wait for and return the same Result.
func (s *Session) Run(ctx context.Context) Result {
	s.runOnce.Do(func() { s.run(ctx) })
	<-s.done
	return s.result
}

func (s *Session) run(ctx context.Context) {
	started := time.Now()
	mctx := context.WithoutCancel(ctx)
	s.metrics.ActiveSessions.Add(mctx, 1)
	defer s.metrics.ActiveSessions.Add(mctx, -1)

	// work is cancelled as soon as a terminal outcome is accepted, which
	// aborts in-flight fetches and embeddings.
	work, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		select {
		case <-ctx.Done():
			s.propose(failed(ReasonUserCancelled, ctx.Err()))
		case <-s.accepted:
		}
		stop()
	}()

	if s.advance(StateLoadingReference) {
		s.loadReference(work)
	}
	if s.advance(StateAwaitingCamera) {
		s.openCamera()
	}
	if s.advance(StateDetecting) {
		s.detect(work)
	}

	<-s.accepted
	stop()
	s.finish(mctx, started)
}

// advance moves to next unless a terminal outcome was already accepted.
func (s *Session) advance(next State) bool {
	s.mu.Lock()
	if s.state >= StateTerminating || next <= s.state {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()

	s.logger.Debug("session state changed", "state", next)
	s.notify(next)
	return true
}

// propose records o as the terminal outcome if none was accepted yet.
func (s *Session) propose(o outcome) bool {
	s.mu.Lock()
	if s.proposed != nil || s.state >= StateTerminating {
		s.mu.Unlock()
		return false
	}
	s.proposed = &o
	s.state = StateTerminating
	close(s.accepted)
	s.mu.Unlock()

	s.logger.Debug("session terminating", "reason", o.reason, "matched", o.matched)
	s.notify(StateTerminating)
	return true
}

func (s *Session) terminating() bool {
	select {
	case <-s.accepted:
		return true
	default:
		return false
	}
}

func (s *Session) notify(st State) {
	if s.deps.OnStateChange != nil {
		s.deps.OnStateChange(s.id, st)
	}
}

func (s *Session) loadReference(ctx context.Context) {
	if s.cfg.ReferenceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReferenceTimeout)
		defer cancel()
	}

	loader := &Loader{Profiles: s.deps.Profiles, Detector: s.deps.Detector, Label: s.cfg.Label}
	ref, err := loader.Load(ctx, s.cfg.Identity)
	if err != nil {
		if s.terminating() {
			return
		}
		s.logger.Warn("reference load failed", "error", err)
		s.propose(failed(ReasonOf(err, ReasonReferenceFetchFailed), err))
		return
	}

	s.mu.Lock()
	s.reference = ref
	s.matcher = match.NewMatcher(s.cfg.Threshold, s.deps.Detector.Distance, ref)
	s.mu.Unlock()
}

func (s *Session) openCamera() {
	if s.deps.Camera == nil {
		s.propose(failed(ReasonDetectionSetupIncomplete, errors.New("no camera configured")))
		return
	}

	s.mu.Lock()
	if s.state >= StateTerminating {
		s.mu.Unlock()
		return
	}
	s.openCalled = true
	s.mu.Unlock()

	result := make(chan error, 1)
	go func() {
		defer close(s.openDone)
		result <- s.deps.Camera.Open(s.cfg.Constraints)
	}()

	var timeout <-chan time.Time
	if s.cfg.CameraTimeout > 0 {
		t := time.NewTimer(s.cfg.CameraTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case err := <-result:
		if err != nil {
			s.logger.Warn("camera open failed", "error", err)
			s.propose(cameraFailure(err))
			return
		}
		w, h := s.deps.Camera.Resolution()
		s.logger.Debug("camera opened", "width", w, "height", h)
	case <-timeout:
		s.propose(failed(ReasonDeviceError, errCameraTimeout))
	case <-s.accepted:
	}
}

func cameraFailure(err error) outcome {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return failed(ReasonPermissionDenied, err)
	case errors.Is(err, capture.ErrNoDevice):
		return failed(ReasonNoDeviceFound, err)
	}
	o := failed(ReasonDeviceError, err)
	var de *capture.DeviceError
	if errors.As(err, &de) && de.Detail != "" {
		o.detail = de.Detail
	}
	return o
}

func (s *Session) detect(ctx context.Context) {
	s.mu.Lock()
	ready := s.matcher != nil && len(s.reference.Descriptor) > 0
	s.mu.Unlock()
	if !ready || !s.deps.Camera.IsOpen() {
		s.propose(failed(ReasonDetectionSetupIncomplete, nil))
		return
	}

	sched := NewScheduler(s.cfg.TickInterval)
	sched.OnDrop = func() { s.metrics.TicksDropped.Add(context.WithoutCancel(ctx), 1) }

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		sched.Run(ctx, s.tick)
	}()

	<-s.accepted
	// ctx is derived from the work context, which run cancels on accept.
	<-loopDone
	sched.Wait()
	s.logger.Debug("detection loop stopped", "dropped_ticks", sched.Dropped())
}

func (s *Session) tick(ctx context.Context) {
	if s.terminating() {
		return
	}

	frame, err := s.deps.Camera.ReadFrame()
	if errors.Is(err, capture.ErrCameraNotOpen) {
		// Closed underneath us; no later tick can recover.
		s.logger.Warn("camera closed during detection")
		s.propose(failed(ReasonDeviceError, err))
		return
	}
	if err != nil {
		s.logger.Debug("frame not ready", "error", err)
		return
	}
	defer frame.Close()

	if s.deps.Preview != nil {
		if jpg, err := capture.EncodeJPEG(frame); err == nil {
			s.deps.Preview.Publish(jpg)
		}
	}

	start := time.Now()
	desc, err := s.deps.Detector.Embed(ctx, frame)
	s.metrics.RecordTick(context.WithoutCancel(ctx), time.Since(start), err)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.tickFailed(err)
		return
	}
	if len(desc) == 0 {
		s.resetTickErrors()
		s.logger.Debug("no face in frame")
		return
	}

	// Discard the result if the session ended while embedding.
	if s.terminating() {
		return
	}

	s.mu.Lock()
	matcher, label := s.matcher, s.reference.Label
	s.mu.Unlock()

	decision, best := matcher.Decide(desc, label)
	if decision != match.Matched {
		s.resetTickErrors()
		s.propose(outcome{reason: ReasonNoMatch, distance: best.Distance})
		return
	}

	selfie, err := capture.EncodePNG(frame)
	if err != nil {
		s.tickFailed(fmt.Errorf("encoding selfie: %w", err))
		return
	}
	s.propose(outcome{matched: true, descriptor: desc, distance: best.Distance, selfie: selfie})
}

func (s *Session) tickFailed(err error) {
	s.mu.Lock()
	s.tickErrors++
	n := s.tickErrors
	s.mu.Unlock()

	s.logger.Warn("detection tick failed", "error", err, "consecutive", n)
	if s.cfg.MaxTickErrors > 0 && n >= s.cfg.MaxTickErrors {
		s.propose(failed(ReasonDetectionFailed, err))
	}
}

func (s *Session) resetTickErrors() {
	s.mu.Lock()
	s.tickErrors = 0
	s.mu.Unlock()
}

// finish closes the camera, locates a match and publishes the Result.
func (s *Session) finish(ctx context.Context, started time.Time) {
	s.releaseCamera()

	s.mu.Lock()
	o := *s.proposed
	s.mu.Unlock()

	res := Result{
		SessionID:  s.id,
		Identity:   s.cfg.Identity,
		Matched:    o.matched,
		Reason:     o.reason,
		Detail:     o.detail,
		Descriptor: o.descriptor,
		Selfie:     o.selfie,
		StartedAt:  started,
	}
	if !math.IsInf(o.distance, 0) && !math.IsNaN(o.distance) {
		res.Distance = o.distance
	}

	if res.Matched {
		coords, err := s.locate(ctx)
		if err != nil {
			s.logger.Warn("geolocation unavailable", "error", err)
			res.LocationReason = ReasonGeolocationUnavailable
		} else {
			res.Coords = &coords
		}
	}
	res.EndedAt = time.Now()

	s.mu.Lock()
	s.state = StateClosed
	s.result = res
	s.mu.Unlock()
	s.notify(StateClosed)

	s.metrics.RecordSession(ctx, res.Outcome(), res.EndedAt.Sub(started))
	s.logger.Info("check-in finished",
		"outcome", res.Outcome(),
		"distance", res.Distance,
		"located", res.Coords != nil,
		"duration", res.EndedAt.Sub(started))
	close(s.done)
}

func (s *Session) locate(ctx context.Context) (geo.Coords, error) {
	if s.deps.Locator == nil {
		return geo.Coords{}, geo.ErrUnavailable
	}
	if s.cfg.LocateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.LocateTimeout)
		defer cancel()
	}
	return s.deps.Locator.Locate(ctx)
}

// releaseCamera closes the camera if an open was attempted. A pending open
// is always waited for, so the camera is closed before the Result exists and
// a late open cannot leak into the next session.
func (s *Session) releaseCamera() {
	s.mu.Lock()
	called := s.openCalled
	s.mu.Unlock()
	if !called {
		return
	}

	warn := time.NewTimer(releaseWarnAfter)
	defer warn.Stop()
	select {
	case <-s.openDone:
	case <-warn.C:
		s.logger.Warn("camera open still pending, waiting for it before closing")
		<-s.openDone
	}
	s.closeCamera()
}

func (s *Session) closeCamera() {
	if err := s.deps.Camera.Close(); err != nil {
		s.logger.Warn("camera close failed", "error", err)
	}
}
