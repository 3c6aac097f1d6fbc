package goConsole

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goConsole/credential"
)

type fakeAPI struct {
	mu           sync.Mutex
	loginFn      func(ctx context.Context, creds Credentials) (string, error)
	profileFn    func(ctx context.Context, token string) (Profile, error)
	loginCalls   int
	profileCalls int
}

func (f *fakeAPI) Login(ctx context.Context, creds Credentials) (string, error) {
	f.mu.Lock()
	f.loginCalls++
	fn := f.loginFn
	f.mu.Unlock()
	if fn == nil {
		return "", ErrLoginRejected
	}
	return fn(ctx, creds)
}

func (f *fakeAPI) FetchProfile(ctx context.Context, token string) (Profile, error) {
	f.mu.Lock()
	f.profileCalls++
	fn := f.profileFn
	f.mu.Unlock()
	if fn == nil {
		return Profile{}, ErrCredentialRejected
	}
	return fn(ctx, token)
}

func (f *fakeAPI) calls() (login, profile int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.profileCalls
}

// acceptToken returns a profile fetcher that only accepts want.
func acceptToken(want string, p Profile) func(context.Context, string) (Profile, error) {
	return func(_ context.Context, token string) (Profile, error) {
		if token != want {
			return Profile{}, ErrCredentialRejected
		}
		return p, nil
	}
}

// failingStore is a CredentialStore whose calls fail.
type failingStore struct {
	loadErr  error
	saveErr  error
	clearErr error
}

func (f failingStore) Load(context.Context) (string, error) { return "", f.loadErr }
func (f failingStore) Save(context.Context, string) error   { return f.saveErr }
func (f failingStore) Clear(context.Context) error          { return f.clearErr }

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Credential.Backend = CredentialMemory
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	return cfg
}

func newTestStore(t *testing.T, api APIClient, creds CredentialStore) *Store {
	t.Helper()
	if creds == nil {
		creds = credential.NewMemoryStore()
	}
	s, err := New().
		WithConfig(testConfig()).
		WithAPIClient(api).
		WithCredentialStore(creds).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func assertInvariant(t *testing.T, snap Snapshot) {
	t.Helper()
	if (snap.User != nil) != (snap.Status == StatusAuthenticated) {
		t.Fatalf("user present=%v with status %s", snap.User != nil, snap.Status)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

var errBackendDown = errors.New("backend down")
