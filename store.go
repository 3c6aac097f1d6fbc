package goConsole

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goConsole/credential"
	internalevents "github.com/MrEthical07/goConsole/internal/events"
	"github.com/MrEthical07/goConsole/internal/logging"
	"github.com/MrEthical07/goConsole/jwt"
	"github.com/google/uuid"
)

// Store owns the operator session. Build one with [New] and share the
// pointer; every method is safe for concurrent use.
//
// Every Start, Login and Logout call opens a new operation epoch. An
// operation only commits its result while its epoch is still the latest, so
// a slow login that finishes after a logout cannot resurrect the session.
type Store struct {
	config  Config
	api     APIClient
	creds   CredentialStore
	logger  *slog.Logger
	metrics *Metrics
	events  *internalevents.Dispatcher
	now     func() time.Time

	mu      sync.RWMutex
	state   sessionState
	epoch   uint64
	updated time.Time

	// persistMu orders credential Save and Clear calls so the backend always
	// ends up holding the token of the latest operation.
	persistMu sync.Mutex

	subMu   sync.Mutex
	subs    map[uint64]chan Snapshot
	nextSub uint64

	startOnce sync.Once
	ready     chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

// sessionState is replaced as a whole on every transition. user is only
// ever set together with StatusAuthenticated.
type sessionState struct {
	status Status
	user   *Profile
	token  string
	errMsg string
}

func newStore(cfg Config, api APIClient, creds CredentialStore, logger *slog.Logger, metrics *Metrics, events *internalevents.Dispatcher) *Store {
	now := time.Now
	return &Store{
		config:  cfg,
		api:     api,
		creds:   creds,
		logger:  logger,
		metrics: metrics,
		events:  events,
		now:     now,
		state:   sessionState{status: StatusInitializing},
		updated: now(),
		subs:    make(map[uint64]chan Snapshot),
		ready:   make(chan struct{}),
	}
}

// Config returns the configuration the Store was built with.
func (s *Store) Config() Config {
	return s.config
}

/*
====================================
LIFECYCLE
====================================
*/

// Start runs the initial credential check: it loads the persisted token
// and, if one exists, fetches the operator profile with it. Only the first
// call does anything. Start blocks until the check resolves; [Store.Ready]
// is closed when it returns.
//
// If Login or Logout ran before Start, the check is skipped.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		defer close(s.ready)
		s.start(ctx)
	})
}

// Ready is closed once Start has returned.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

func (s *Store) start(ctx context.Context) {
	ctx = ensureRequestID(ctx)
	reqID := RequestIDFromContext(ctx)

	s.mu.Lock()
	if s.state.status != StatusInitializing {
		s.mu.Unlock()
		return
	}
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	token, err := s.creds.Load(ctx)
	if err == nil && token == "" {
		err = credential.ErrNotFound
	}
	switch {
	case errors.Is(err, credential.ErrNotFound):
		s.metricInc(MetricStartNoCredential)
		s.commit(ctx, epoch, EventStartNoCredential, sessionState{status: StatusUnauthenticated}, nil)
		return
	case err != nil:
		s.metricInc(MetricStartStorageFailure)
		s.logger.Warn("credential load failed", logging.Error(err), logging.RequestID(reqID))
		s.commit(ctx, epoch, EventStartStorageFailure, sessionState{
			status: StatusError,
			errMsg: messageFor(ErrCredentialStorage),
		}, err)
		return
	}

	if s.config.Credential.SkipExpired && jwt.Expired(token, s.now()) {
		s.metricInc(MetricStartRejected)
		s.logger.Info("stored credential expired", logging.RequestID(reqID))
		s.clearIfCurrent(ctx, epoch)
		s.commit(ctx, epoch, EventStartRejected, sessionState{
			status: StatusUnauthenticated,
			errMsg: messageFor(ErrCredentialRejected),
		}, ErrCredentialRejected)
		return
	}

	if !s.commit(ctx, epoch, "", sessionState{status: StatusAuthenticating, token: token}, nil) {
		return
	}

	profile, err := s.api.FetchProfile(ctx, token)
	if err != nil {
		kind := classify(err, ErrCredentialRejected)
		interrupted := ctx.Err() != nil ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded)
		if interrupted {
			kind = ErrNetworkUnavailable
		}
		if kind != ErrNetworkUnavailable {
			kind = ErrCredentialRejected
		}
		s.metricInc(MetricStartRejected)
		s.metricInc(MetricProfileFetchFailure)
		s.logger.Warn("stored credential could not be used",
			slog.String("kind", kind.Error()),
			logging.Error(err),
			logging.RequestID(reqID),
		)
		// a cancelled or timed out caller says nothing about the token
		if !interrupted {
			s.clearIfCurrent(ctx, epoch)
		}
		s.commit(ctx, epoch, EventStartRejected, sessionState{
			status: StatusUnauthenticated,
			errMsg: messageFor(kind),
		}, err)
		return
	}

	user := profile.clone()
	if s.commit(ctx, epoch, EventStartRestored, sessionState{
		status: StatusAuthenticated,
		user:   &user,
		token:  token,
	}, nil) {
		s.metricInc(MetricStartRestored)
	}
}

// Close stops event delivery and closes every subscription channel. The
// session itself stays readable; Login returns [ErrStoreClosed] afterwards.
func (s *Store) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.subMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subMu.Unlock()

		s.events.Close()
	})
}

/*
====================================
OPERATIONS
====================================
*/

// Login exchanges creds for a credential token, persists it, fetches the
// operator profile and moves the session to [StatusAuthenticated].
//
// On failure the session ends in [StatusUnauthenticated] with no credential
// retained and Snapshot().Error set, and the returned error is an
// [*AuthError] whose Kind is [ErrLoginRejected] or [ErrNetworkUnavailable].
// If a newer Login or Logout started before this call finished, its result
// is discarded and the error wraps [ErrSuperseded].
func (s *Store) Login(ctx context.Context, creds Credentials) (Profile, error) {
	if s.closed.Load() {
		return Profile{}, newAuthError("login", ErrStoreClosed, nil)
	}
	ctx = ensureRequestID(ctx)
	reqID := RequestIDFromContext(ctx)

	started := s.now()
	defer func() {
		s.metrics.Observe(MetricLoginLatency, s.now().Sub(started))
	}()

	epoch, _ := s.begin(ctx, sessionState{status: StatusAuthenticating})

	if strings.TrimSpace(creds.Identifier) == "" || creds.Secret == "" {
		return s.failLogin(ctx, epoch, ErrLoginRejected, errors.New("identifier and secret are required"))
	}

	token, err := s.api.Login(ctx, creds)
	if err != nil {
		kind := classify(err, ErrLoginRejected)
		if kind != ErrNetworkUnavailable {
			kind = ErrLoginRejected
		}
		return s.failLogin(ctx, epoch, kind, err)
	}
	if token == "" {
		return s.failLogin(ctx, epoch, ErrLoginRejected, errors.New("login response carried no token"))
	}

	current, err := s.saveIfCurrent(ctx, epoch, token)
	if !current {
		s.discardStale(ctx, epoch, StatusAuthenticating)
		return s.superseded(ctx, epoch)
	}
	if err != nil {
		// The session still works in this process; it just will not survive a restart.
		s.metricInc(MetricCredentialStoreFailure)
		s.logger.Warn("credential save failed", logging.Error(err), logging.RequestID(reqID))
	}

	if !s.commit(ctx, epoch, "", sessionState{status: StatusAuthenticating, token: token}, nil) {
		return s.superseded(ctx, epoch)
	}

	profile, err := s.api.FetchProfile(ctx, token)
	if err != nil {
		s.metricInc(MetricProfileFetchFailure)
		kind := classify(err, ErrLoginRejected)
		if kind != ErrNetworkUnavailable {
			kind = ErrLoginRejected
		}
		return s.failLogin(ctx, epoch, kind, err)
	}

	user := profile.clone()
	if !s.commit(ctx, epoch, EventLoginSuccess, sessionState{
		status: StatusAuthenticated,
		user:   &user,
		token:  token,
	}, nil) {
		return s.superseded(ctx, epoch)
	}

	s.metricInc(MetricLoginSuccess)
	s.logger.Info("operator signed in", slog.String("user_id", user.ID), logging.RequestID(reqID))
	return user.clone(), nil
}

// Logout clears the session and the persisted credential. It never fails
// and may be called any number of times. Any Start or Login still in flight
// is superseded.
func (s *Store) Logout(ctx context.Context) {
	ctx = ensureRequestID(ctx)
	s.metricInc(MetricLogout)

	epoch, snap := s.begin(ctx, sessionState{status: StatusUnauthenticated})
	s.clearIfCurrent(ctx, epoch)
	s.emit(ctx, EventLogout, snap, true, "")
}

// Snapshot returns the current session. It never blocks on I/O.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Guard returns the current snapshot together with [Decide]'s answer for
// it, and counts the decision.
func (s *Store) Guard() (Snapshot, Decision) {
	snap := s.Snapshot()
	d := Decide(snap)
	switch d {
	case DecisionAllow:
		s.metricInc(MetricGuardAllow)
	case DecisionRedirectToLogin:
		s.metricInc(MetricGuardRedirect)
	default:
		s.metricInc(MetricGuardLoading)
	}
	return snap, d
}

// Subscribe returns a channel that receives the current snapshot
// immediately and then every later one. Delivery never blocks the Store:
// when the channel is full the oldest pending snapshot is replaced, so a
// slow reader always sees the latest state. cancel is idempotent. The
// channel is closed by cancel or by [Store.Close].
func (s *Store) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	s.mu.RLock()
	snap := s.snapshotLocked()
	s.subMu.Lock()
	if s.closed.Load() {
		s.subMu.Unlock()
		s.mu.RUnlock()
		close(ch)
		return ch, func() {}
	}
	s.nextSub++
	id := s.nextSub
	s.subs[id] = ch
	ch <- snap
	s.subMu.Unlock()
	s.mu.RUnlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.subMu.Lock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
			s.subMu.Unlock()
		})
	}
	return ch, cancel
}

// MetricsSnapshot returns a copy of the in-process counters.
func (s *Store) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

// EventsDropped reports how many events the dispatcher discarded because its buffer was full.
func (s *Store) EventsDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.events.Dropped()
}

// EventsDroppedByType breaks EventsDropped down by event type. Logout and
// login failure events wait for buffer space instead of being dropped.
func (s *Store) EventsDroppedByType() map[string]uint64 {
	if s == nil {
		return map[string]uint64{}
	}
	return s.events.DroppedByType()
}

/*
====================================
TRANSITIONS
====================================
*/

// begin opens a new epoch and installs next unconditionally.
func (s *Store) begin(ctx context.Context, next sessionState) (uint64, Snapshot) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	prev := s.state.status
	s.install(next)
	snap := s.snapshotLocked()
	s.publishLocked(snap)
	s.mu.Unlock()

	s.logTransition(ctx, prev, snap)
	return epoch, snap
}

// commit installs next only if epoch is still current. A non-empty
// eventType is emitted on success.
func (s *Store) commit(ctx context.Context, epoch uint64, eventType string, next sessionState, cause error) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		s.discardStale(ctx, epoch, next.status)
		return false
	}
	prev := s.state.status
	s.install(next)
	snap := s.snapshotLocked()
	s.publishLocked(snap)
	s.mu.Unlock()

	s.logTransition(ctx, prev, snap)
	if eventType != "" {
		errText := ""
		if cause != nil {
			errText = cause.Error()
		}
		s.emitWithPrev(ctx, eventType, prev, snap, cause == nil, errText)
	}
	return true
}

func (s *Store) discardStale(ctx context.Context, epoch uint64, status Status) {
	s.metricInc(MetricStaleResultDiscarded)
	s.logger.Debug("stale session result discarded",
		slog.Uint64("epoch", epoch),
		slog.String("status", status.String()),
		logging.RequestID(RequestIDFromContext(ctx)),
	)
	s.emit(ctx, EventStaleResultDiscarded, Snapshot{Status: status, Epoch: epoch}, false, "")
}

func (s *Store) install(next sessionState) {
	if next.status != StatusAuthenticated {
		next.user = nil
	}
	s.state = next
	s.updated = s.now()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:    s.state.status,
		Error:     s.state.errMsg,
		Epoch:     s.epoch,
		UpdatedAt: s.updated,
	}
	if s.state.status == StatusAuthenticated && s.state.user != nil {
		user := s.state.user.clone()
		snap.User = &user
	}
	return snap
}

// publishLocked runs with s.mu held so subscribers observe snapshots in
// epoch order.
func (s *Store) publishLocked(snap Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
		s.metricInc(MetricSubscriberDropped)
	}
}

func (s *Store) failLogin(ctx context.Context, epoch uint64, kind, cause error) (Profile, error) {
	switch kind {
	case ErrNetworkUnavailable:
		s.metricInc(MetricLoginNetworkFailure)
	default:
		s.metricInc(MetricLoginRejected)
	}
	s.logger.Warn("login failed",
		slog.String("kind", kind.Error()),
		logging.Error(cause),
		logging.RequestID(RequestIDFromContext(ctx)),
	)

	s.clearIfCurrent(ctx, epoch)
	s.commit(ctx, epoch, EventLoginFailure, sessionState{
		status: StatusUnauthenticated,
		errMsg: messageFor(kind),
	}, cause)

	return Profile{}, newAuthError("login", kind, cause)
}

// superseded reports a Login whose result discardStale already dropped.
func (s *Store) superseded(ctx context.Context, epoch uint64) (Profile, error) {
	s.logger.Debug("login superseded",
		slog.Uint64("epoch", epoch),
		logging.RequestID(RequestIDFromContext(ctx)),
	)
	return Profile{}, newAuthError("login", ErrSuperseded, nil)
}

func (s *Store) isCurrent(epoch uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch == epoch
}

// saveIfCurrent persists token unless epoch has been superseded. current
// is false when nothing was written for that reason.
func (s *Store) saveIfCurrent(ctx context.Context, epoch uint64, token string) (current bool, err error) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if !s.isCurrent(epoch) {
		return false, nil
	}
	return true, s.creds.Save(ctx, token)
}

func (s *Store) clearIfCurrent(ctx context.Context, epoch uint64) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if !s.isCurrent(epoch) {
		return
	}
	if err := s.creds.Clear(ctx); err != nil {
		s.metricInc(MetricCredentialStoreFailure)
		s.logger.Warn("credential clear failed",
			logging.Error(err),
			logging.RequestID(RequestIDFromContext(ctx)),
		)
	}
}

func (s *Store) logTransition(ctx context.Context, prev Status, snap Snapshot) {
	if prev == snap.Status {
		return
	}
	s.logger.Debug("session transition",
		slog.String("from", prev.String()),
		slog.String("to", snap.Status.String()),
		slog.Uint64("epoch", snap.Epoch),
		logging.RequestID(RequestIDFromContext(ctx)),
	)
}

func (s *Store) metricInc(id MetricID) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Inc(id)
}

func ensureRequestID(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if RequestIDFromContext(ctx) != "" {
		return ctx
	}
	return WithRequestID(ctx, uuid.NewString())
}
