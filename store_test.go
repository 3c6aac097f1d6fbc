package goConsole

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goConsole/credential"
	gjwt "github.com/golang-jwt/jwt/v5"
)

func TestStartWithoutCredential(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, nil)

	if got := s.Snapshot().Status; got != StatusInitializing {
		t.Fatalf("expected initializing before Start, got %s", got)
	}
	s.Start(context.Background())

	select {
	case <-s.Ready():
	default:
		t.Fatal("Ready not closed after Start")
	}

	snap := s.Snapshot()
	if snap.Status != StatusUnauthenticated || snap.User != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if snap.Error != "" {
		t.Fatalf("expected no error message, got %q", snap.Error)
	}
	if _, profile := api.calls(); profile != 0 {
		t.Fatalf("expected no profile fetch, got %d", profile)
	}
	if got := s.MetricsSnapshot().Counters[MetricStartNoCredential]; got != 1 {
		t.Fatalf("expected MetricStartNoCredential=1, got %d", got)
	}
}

func TestStartWithRejectedCredential(t *testing.T) {
	creds := credential.NewMemoryStoreWith("stale")
	api := &fakeAPI{profileFn: acceptToken("fresh", Profile{Name: "A"})}
	s := newTestStore(t, api, creds)

	s.Start(context.Background())

	snap := s.Snapshot()
	assertInvariant(t, snap)
	if snap.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", snap.Status)
	}
	if snap.Error == "" {
		t.Fatal("expected error message")
	}
	if creds.Token() != "" {
		t.Fatalf("expected persisted credential to be cleared, got %q", creds.Token())
	}
	if got := s.MetricsSnapshot().Counters[MetricStartRejected]; got != 1 {
		t.Fatalf("expected MetricStartRejected=1, got %d", got)
	}
}

func TestStartRestoresSession(t *testing.T) {
	creds := credential.NewMemoryStoreWith("T")
	api := &fakeAPI{profileFn: acceptToken("T", Profile{ID: "u-1", Name: "A"})}
	s := newTestStore(t, api, creds)

	s.Start(context.Background())

	snap := s.Snapshot()
	assertInvariant(t, snap)
	if snap.Status != StatusAuthenticated || snap.User.Name != "A" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if creds.Token() != "T" {
		t.Fatalf("credential should stay persisted, got %q", creds.Token())
	}
	if got := s.MetricsSnapshot().Counters[MetricStartRestored]; got != 1 {
		t.Fatalf("expected MetricStartRestored=1, got %d", got)
	}
}

func TestStartNetworkFailureClearsCredential(t *testing.T) {
	creds := credential.NewMemoryStoreWith("T")
	api := &fakeAPI{profileFn: func(context.Context, string) (Profile, error) {
		return Profile{}, fmt.Errorf("%w: dial tcp: refused", ErrNetworkUnavailable)
	}}
	s := newTestStore(t, api, creds)

	s.Start(context.Background())

	snap := s.Snapshot()
	if snap.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", snap.Status)
	}
	if snap.Error != messageFor(ErrNetworkUnavailable) {
		t.Fatalf("unexpected message %q", snap.Error)
	}
	if creds.Token() != "" {
		t.Fatal("expected credential to be cleared")
	}
}

func TestStartCancelledDuringProfileFetchKeepsCredential(t *testing.T) {
	creds := credential.NewMemoryStoreWith("T")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	api := &fakeAPI{profileFn: func(ctx context.Context, _ string) (Profile, error) {
		cancel()
		return Profile{}, ctx.Err()
	}}
	s := newTestStore(t, api, creds)

	s.Start(ctx)

	snap := s.Snapshot()
	if snap.Status != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", snap.Status)
	}
	if snap.Error != messageFor(ErrNetworkUnavailable) {
		t.Fatalf("expected network message, got %q", snap.Error)
	}
	if creds.Token() != "T" {
		t.Fatalf("expected credential to survive cancellation, got %q", creds.Token())
	}
}

func TestStartDeadlineDuringProfileFetchKeepsCredential(t *testing.T) {
	creds := credential.NewMemoryStoreWith("T")
	api := &fakeAPI{profileFn: func(context.Context, string) (Profile, error) {
		return Profile{}, fmt.Errorf("get profile: %w", context.DeadlineExceeded)
	}}
	s := newTestStore(t, api, creds)

	s.Start(context.Background())

	if got := s.Snapshot().Error; got != messageFor(ErrNetworkUnavailable) {
		t.Fatalf("expected network message, got %q", got)
	}
	if creds.Token() != "T" {
		t.Fatalf("expected credential to survive timeout, got %q", creds.Token())
	}
}

func TestStartStorageFailureEntersErrorStatus(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "T", nil },
		profileFn: acceptToken("T", Profile{Name: "A"}),
	}
	s := newTestStore(t, api, failingStore{loadErr: errBackendDown, saveErr: errBackendDown})

	s.Start(context.Background())

	snap := s.Snapshot()
	assertInvariant(t, snap)
	if snap.Status != StatusError || snap.Error == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if Decide(snap) != DecisionRedirectToLogin {
		t.Fatalf("expected redirect from error status, got %s", Decide(snap))
	}

	// login is allowed from the error state; a failing Save does not abort it
	if _, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if got := s.Snapshot().Status; got != StatusAuthenticated {
		t.Fatalf("expected authenticated, got %s", got)
	}
}

func expiredJWT(t *testing.T) string {
	t.Helper()
	claims := gjwt.RegisteredClaims{
		Subject:   "u-1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}
	tok, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString([]byte(strings.Repeat("k", 32)))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestStartSkipsExpiredJWT(t *testing.T) {
	tok := expiredJWT(t)
	creds := credential.NewMemoryStoreWith(tok)
	api := &fakeAPI{profileFn: acceptToken(tok, Profile{Name: "A"})}
	s := newTestStore(t, api, creds)

	s.Start(context.Background())

	snap := s.Snapshot()
	if snap.Status != StatusUnauthenticated || snap.Error != messageFor(ErrCredentialRejected) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, profile := api.calls(); profile != 0 {
		t.Fatalf("expected expired token to skip the profile fetch, got %d calls", profile)
	}
	if creds.Token() != "" {
		t.Fatal("expected expired credential to be cleared")
	}
}

func TestStartFetchesExpiredJWTWhenShortcutDisabled(t *testing.T) {
	tok := expiredJWT(t)
	api := &fakeAPI{profileFn: acceptToken(tok, Profile{Name: "A"})}
	cfg := testConfig()
	cfg.Credential.SkipExpired = false
	s, err := New().WithConfig(cfg).WithAPIClient(api).WithCredentialStore(credential.NewMemoryStoreWith(tok)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()

	s.Start(context.Background())

	if got := s.Snapshot().Status; got != StatusAuthenticated {
		t.Fatalf("expected the server to decide, got %s", got)
	}
}

func TestStartRunsOnce(t *testing.T) {
	api := &fakeAPI{profileFn: acceptToken("T", Profile{Name: "A"})}
	s := newTestStore(t, api, credential.NewMemoryStoreWith("T"))

	s.Start(context.Background())
	s.Start(context.Background())

	if _, profile := api.calls(); profile != 1 {
		t.Fatalf("expected one profile fetch, got %d", profile)
	}
}

func TestLoginBeforeStartSkipsInitialCheck(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "T", nil },
		profileFn: acceptToken("T", Profile{Name: "A"}),
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)

	if _, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	s.Start(context.Background())

	<-s.Ready()
	if got := s.Snapshot().Status; got != StatusAuthenticated {
		t.Fatalf("Start must not undo an earlier login, got %s", got)
	}
	if _, profile := api.calls(); profile != 1 {
		t.Fatalf("expected only the login's profile fetch, got %d", profile)
	}
}

func TestLoginSuccess(t *testing.T) {
	var seen Credentials
	api := &fakeAPI{
		loginFn: func(_ context.Context, c Credentials) (string, error) {
			seen = c
			return "T", nil
		},
		profileFn: acceptToken("T", Profile{Name: "A"}),
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)
	s.Start(context.Background())

	p, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if p.Name != "A" {
		t.Fatalf("unexpected profile %+v", p)
	}
	if seen.Identifier != "a@b.com" || seen.Secret != "x" {
		t.Fatalf("credentials not forwarded: %+v", seen)
	}

	snap := s.Snapshot()
	assertInvariant(t, snap)
	if snap.Status != StatusAuthenticated || snap.User.Name != "A" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if creds.Token() != "T" {
		t.Fatalf("expected persisted credential T, got %q", creds.Token())
	}

	m := s.MetricsSnapshot()
	if m.Counters[MetricLoginSuccess] != 1 {
		t.Fatalf("expected MetricLoginSuccess=1, got %d", m.Counters[MetricLoginSuccess])
	}
	var observed uint64
	for _, n := range m.Histograms[MetricLoginLatency] {
		observed += n
	}
	if observed != 1 {
		t.Fatalf("expected one latency observation, got %d", observed)
	}
}

func TestLoginWithoutTokenIsRejected(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "", nil },
		profileFn: acceptToken("T", Profile{Name: "A"}),
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)
	s.Start(context.Background())

	_, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
	if !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected ErrLoginRejected, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusUnauthenticated || snap.User != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if _, profile := api.calls(); profile != 0 {
		t.Fatalf("expected no profile fetch, got %d", profile)
	}
	if creds.Saves() != 0 {
		t.Fatal("nothing should be persisted")
	}
}

func TestLoginRejectedReturnsAuthError(t *testing.T) {
	cause := fmt.Errorf("%w: status 401", ErrLoginRejected)
	api := &fakeAPI{loginFn: func(context.Context, Credentials) (string, error) { return "", cause }}
	s := newTestStore(t, api, nil)

	_, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "wrong"})

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *AuthError, got %T", err)
	}
	if authErr.Kind != ErrLoginRejected || !errors.Is(err, cause) {
		t.Fatalf("unexpected error %v", err)
	}
	if got := s.Snapshot().Error; got != "Invalid email or password." {
		t.Fatalf("unexpected message %q", got)
	}
	if got := s.MetricsSnapshot().Counters[MetricLoginRejected]; got != 1 {
		t.Fatalf("expected MetricLoginRejected=1, got %d", got)
	}
}

func TestLoginNetworkFailure(t *testing.T) {
	api := &fakeAPI{loginFn: func(context.Context, Credentials) (string, error) {
		return "", errors.New("connection reset")
	}}
	s := newTestStore(t, api, nil)

	_, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
	if !errors.Is(err, ErrNetworkUnavailable) {
		t.Fatalf("unclassified errors are transport failures, got %v", err)
	}
	if got := s.Snapshot().Status; got != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated, got %s", got)
	}
	if got := s.MetricsSnapshot().Counters[MetricLoginNetworkFailure]; got != 1 {
		t.Fatalf("expected MetricLoginNetworkFailure=1, got %d", got)
	}
}

func TestLoginProfileFailureClearsCredential(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "T", nil },
		profileFn: acceptToken("other", Profile{}),
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)

	_, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
	if !errors.Is(err, ErrLoginRejected) {
		t.Fatalf("expected ErrLoginRejected, got %v", err)
	}
	if creds.Saves() != 1 || creds.Token() != "" {
		t.Fatalf("expected token saved then cleared, saves=%d token=%q", creds.Saves(), creds.Token())
	}
	snap := s.Snapshot()
	assertInvariant(t, snap)
	if snap.Status != StatusUnauthenticated || snap.Error == "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestLoginEmptyCredentialsSkipsNetwork(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, nil)

	for _, c := range []Credentials{{}, {Identifier: "a@b.com"}, {Identifier: "  ", Secret: "x"}} {
		if _, err := s.Login(context.Background(), c); !errors.Is(err, ErrLoginRejected) {
			t.Fatalf("%+v: expected ErrLoginRejected, got %v", c, err)
		}
	}
	if login, _ := api.calls(); login != 0 {
		t.Fatalf("expected no login call, got %d", login)
	}
}

func TestLoginClearsPriorError(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	api := &fakeAPI{loginFn: func(_ context.Context, c Credentials) (string, error) {
		if c.Secret == "wrong" {
			return "", ErrLoginRejected
		}
		entered <- struct{}{}
		<-release
		return "T", nil
	}, profileFn: acceptToken("T", Profile{Name: "A"})}
	s := newTestStore(t, api, nil)

	_, _ = s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "wrong"})
	if s.Snapshot().Error == "" {
		t.Fatal("expected error after rejected login")
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
		done <- err
	}()
	<-entered

	snap := s.Snapshot()
	if snap.Status != StatusAuthenticating || snap.Error != "" {
		t.Fatalf("expected authenticating with no error, got %+v", snap)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "T", nil },
		profileFn: acceptToken("T", Profile{Name: "A"}),
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)
	s.Start(context.Background())
	if _, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	s.Logout(context.Background())
	first := s.Snapshot()
	s.Logout(context.Background())
	second := s.Snapshot()

	for _, snap := range []Snapshot{first, second} {
		if snap.Status != StatusUnauthenticated || snap.User != nil || snap.Error != "" {
			t.Fatalf("unexpected snapshot %+v", snap)
		}
	}
	if creds.Token() != "" {
		t.Fatal("expected credential cleared")
	}
	if got := s.MetricsSnapshot().Counters[MetricLogout]; got != 2 {
		t.Fatalf("expected MetricLogout=2, got %d", got)
	}
}

// clearHookStore runs onClear before clearing the wrapped memory store.
type clearHookStore struct {
	*credential.MemoryStore
	onClear func()
}

func (c *clearHookStore) Clear(ctx context.Context) error {
	if c.onClear != nil {
		c.onClear()
	}
	return c.MemoryStore.Clear(ctx)
}

func TestLogoutEventDescribesLogoutNotNewerLogin(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		loginFn: func(context.Context, Credentials) (string, error) {
			<-release
			return "T2", nil
		},
		profileFn: acceptToken("T2", Profile{ID: "u-2", Name: "B"}),
	}
	creds := &clearHookStore{MemoryStore: credential.NewMemoryStoreWith("T1")}
	sink := NewChannelSink(16)
	cfg := testConfig()
	cfg.Events.Enabled = true
	s, err := New().WithConfig(cfg).WithAPIClient(api).WithCredentialStore(creds).WithEventSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()

	loginDone := make(chan struct{})
	creds.onClear = func() {
		creds.onClear = nil
		go func() {
			defer close(loginDone)
			_, _ = s.Login(context.Background(), Credentials{Identifier: "b@c.com", Secret: "y"})
		}()
		waitFor(t, func() bool { return s.Snapshot().Status == StatusAuthenticating })
	}

	s.Logout(context.Background())
	loginEpoch := s.Snapshot().Epoch

	select {
	case ev := <-sink.Events():
		if ev.Type != EventLogout {
			t.Fatalf("expected logout event first, got %+v", ev)
		}
		if ev.Status != "unauthenticated" {
			t.Fatalf("expected logout event status unauthenticated, got %q", ev.Status)
		}
		if ev.Epoch >= loginEpoch {
			t.Fatalf("logout event carries epoch %d of the newer login (%d)", ev.Epoch, loginEpoch)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no logout event delivered")
	}

	close(release)
	<-loginDone
	waitFor(t, func() bool { return s.Snapshot().Status == StatusAuthenticated })
}

func TestLoginLogoutRoundTrip(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "T", nil },
		profileFn: acceptToken("T", Profile{Name: "A"}),
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)
	s.Start(context.Background())
	before := s.Snapshot()

	if _, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	s.Logout(context.Background())
	after := s.Snapshot()

	if before.Status != after.Status || before.User != after.User || before.Error != after.Error {
		t.Fatalf("round trip changed state: before=%+v after=%+v", before, after)
	}
	if after.Epoch <= before.Epoch {
		t.Fatalf("epoch must advance, before=%d after=%d", before.Epoch, after.Epoch)
	}
	if creds.Token() != "" {
		t.Fatal("expected no persisted credential after round trip")
	}
}

func TestLogoutSupersedesInFlightLogin(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		loginFn: func(context.Context, Credentials) (string, error) {
			close(entered)
			<-release
			return "T", nil
		},
		profileFn: acceptToken("T", Profile{Name: "A"}),
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)
	s.Start(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
		done <- err
	}()
	<-entered
	s.Logout(context.Background())
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusUnauthenticated || snap.User != nil {
		t.Fatalf("stale login resurrected the session: %+v", snap)
	}
	if creds.Token() != "" || creds.Saves() != 0 {
		t.Fatalf("stale login persisted a credential: saves=%d token=%q", creds.Saves(), creds.Token())
	}
	if got := s.MetricsSnapshot().Counters[MetricStaleResultDiscarded]; got == 0 {
		t.Fatal("expected MetricStaleResultDiscarded to be counted")
	}
}

func TestNewerLoginWinsOverSlowProfileFetch(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{
		loginFn: func(_ context.Context, c Credentials) (string, error) {
			return c.Identifier + "-tok", nil
		},
		profileFn: func(_ context.Context, token string) (Profile, error) {
			if token == "slow-tok" {
				close(entered)
				<-release
			}
			return Profile{ID: strings.TrimSuffix(token, "-tok")}, nil
		},
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)

	done := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), Credentials{Identifier: "slow", Secret: "x"})
		done <- err
	}()
	<-entered

	if _, err := s.Login(context.Background(), Credentials{Identifier: "fast", Secret: "x"}); err != nil {
		t.Fatalf("fast Login: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected slow login to be superseded, got %v", err)
	}
	snap := s.Snapshot()
	if snap.Status != StatusAuthenticated || snap.User.ID != "fast" {
		t.Fatalf("expected fast operator, got %+v", snap)
	}
	if creds.Token() != "fast-tok" {
		t.Fatalf("expected fast token persisted, got %q", creds.Token())
	}
}

func TestLogoutDuringStartDiscardsRestore(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	api := &fakeAPI{profileFn: func(context.Context, string) (Profile, error) {
		close(entered)
		<-release
		return Profile{Name: "A"}, nil
	}}
	creds := credential.NewMemoryStoreWith("T")
	s := newTestStore(t, api, creds)

	go s.Start(context.Background())
	<-entered
	s.Logout(context.Background())
	close(release)
	<-s.Ready()

	snap := s.Snapshot()
	if snap.Status != StatusUnauthenticated || snap.User != nil {
		t.Fatalf("stale restore applied: %+v", snap)
	}
	if creds.Token() != "" {
		t.Fatal("expected logout to clear credential")
	}
}

func TestLoginAfterCloseFails(t *testing.T) {
	s := newTestStore(t, &fakeAPI{}, nil)
	s.Close()
	s.Close()

	if _, err := s.Login(context.Background(), Credentials{Identifier: "a", Secret: "b"}); !errors.Is(err, ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
	s.Logout(context.Background())
}

func TestSnapshotUserIsACopy(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "T", nil },
		profileFn: acceptToken("T", Profile{Name: "A", Attributes: map[string]any{"team": "ops"}}),
	}
	s := newTestStore(t, api, nil)
	p, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	p.Attributes["team"] = "mutated"
	snap := s.Snapshot()
	snap.User.Name = "mutated"
	snap.User.Attributes["team"] = "mutated"

	again := s.Snapshot()
	if again.User.Name != "A" || again.User.Attributes["team"] != "ops" {
		t.Fatalf("store state leaked through a snapshot: %+v", again.User)
	}
}

func TestGuardCountsDecisions(t *testing.T) {
	api := &fakeAPI{}
	s := newTestStore(t, api, nil)

	if _, d := s.Guard(); d != DecisionShowLoading {
		t.Fatalf("expected loading before start, got %s", d)
	}
	s.Start(context.Background())
	if _, d := s.Guard(); d != DecisionRedirectToLogin {
		t.Fatalf("expected redirect, got %s", d)
	}

	m := s.MetricsSnapshot()
	if m.Counters[MetricGuardLoading] != 1 || m.Counters[MetricGuardRedirect] != 1 {
		t.Fatalf("unexpected guard counters %+v", m.Counters)
	}
}

func TestSubscribeDeliversTransitions(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "T", nil },
		profileFn: acceptToken("T", Profile{Name: "A"}),
	}
	s := newTestStore(t, api, nil)

	ch, cancel := s.Subscribe(16)
	defer cancel()

	if first := <-ch; first.Status != StatusInitializing {
		t.Fatalf("expected current snapshot first, got %s", first.Status)
	}

	s.Start(context.Background())
	if _, err := s.Login(context.Background(), Credentials{Identifier: "a@b.com", Secret: "x"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	var statuses []Status
	var lastEpoch uint64
	for len(statuses) == 0 || statuses[len(statuses)-1] != StatusAuthenticated {
		select {
		case snap := <-ch:
			assertInvariant(t, snap)
			if snap.Epoch < lastEpoch {
				t.Fatalf("epochs out of order: %d after %d", snap.Epoch, lastEpoch)
			}
			lastEpoch = snap.Epoch
			statuses = append(statuses, snap.Status)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, saw %v", statuses)
		}
	}
	if statuses[0] != StatusUnauthenticated {
		t.Fatalf("expected unauthenticated after start, got %v", statuses)
	}

	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after cancel")
	}
}

func TestSubscribeSlowReaderSeesLatest(t *testing.T) {
	s := newTestStore(t, &fakeAPI{}, nil)
	ch, cancel := s.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		s.Logout(context.Background())
	}

	got := <-ch
	if got.Epoch != s.Snapshot().Epoch {
		t.Fatalf("expected latest epoch %d, got %d", s.Snapshot().Epoch, got.Epoch)
	}
	if s.MetricsSnapshot().Counters[MetricSubscriberDropped] == 0 {
		t.Fatal("expected dropped snapshots to be counted")
	}
}

func TestSubscribeClosedByClose(t *testing.T) {
	s := newTestStore(t, &fakeAPI{}, nil)
	ch, cancel := s.Subscribe(4)
	<-ch

	s.Close()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed by Close")
	}
	cancel()

	late, _ := s.Subscribe(1)
	if _, ok := <-late; ok {
		t.Fatal("expected subscription after Close to be closed")
	}
}

func TestEventsAreEmitted(t *testing.T) {
	api := &fakeAPI{
		loginFn:   func(context.Context, Credentials) (string, error) { return "T", nil },
		profileFn: acceptToken("T", Profile{ID: "u-1", Name: "A"}),
	}
	sink := NewChannelSink(16)
	cfg := testConfig()
	cfg.Events.Enabled = true
	s, err := New().WithConfig(cfg).WithAPIClient(api).WithCredentialStore(credential.NewMemoryStore()).WithEventSink(sink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()

	ctx := WithRequestID(context.Background(), "req-1")
	if _, err := s.Login(ctx, Credentials{Identifier: "a@b.com", Secret: "x"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	select {
	case ev := <-sink.Events():
		if ev.Type != EventLoginSuccess || ev.UserID != "u-1" || !ev.Success {
			t.Fatalf("unexpected event %+v", ev)
		}
		if ev.Status != "authenticated" || ev.PrevStatus != "authenticating" {
			t.Fatalf("unexpected statuses %+v", ev)
		}
		if ev.Metadata["request_id"] != "req-1" || ev.ID == "" {
			t.Fatalf("unexpected metadata %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	if s.EventsDropped() != 0 {
		t.Fatalf("unexpected drops %d", s.EventsDropped())
	}
	if byType := s.EventsDroppedByType(); len(byType) != 0 {
		t.Fatalf("unexpected per-type drops %v", byType)
	}
}

func TestConcurrentOperationsKeepInvariant(t *testing.T) {
	api := &fakeAPI{
		loginFn: func(_ context.Context, c Credentials) (string, error) {
			return c.Identifier + "-tok", nil
		},
		profileFn: func(_ context.Context, token string) (Profile, error) {
			return Profile{ID: token}, nil
		},
	}
	creds := credential.NewMemoryStore()
	s := newTestStore(t, api, creds)

	ch, cancel := s.Subscribe(64)
	var watch sync.WaitGroup
	watch.Add(1)
	go func() {
		defer watch.Done()
		for snap := range ch {
			if (snap.User != nil) != (snap.Status == StatusAuthenticated) {
				t.Errorf("user present=%v with status %s", snap.User != nil, snap.Status)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if (i+j)%3 == 0 {
					s.Logout(context.Background())
					continue
				}
				_, _ = s.Login(context.Background(), Credentials{Identifier: fmt.Sprintf("op%d", i), Secret: "x"})
			}
		}(i)
	}
	wg.Wait()
	cancel()
	watch.Wait()

	snap := s.Snapshot()
	assertInvariant(t, snap)
	switch snap.Status {
	case StatusAuthenticated:
		if creds.Token() != snap.User.ID {
			t.Fatalf("persisted %q but signed in as %q", creds.Token(), snap.User.ID)
		}
	case StatusUnauthenticated:
		if creds.Token() != "" {
			t.Fatalf("signed out but %q still persisted", creds.Token())
		}
	default:
		t.Fatalf("unexpected quiescent status %s", snap.Status)
	}
}
