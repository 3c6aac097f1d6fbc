package goConsole

import (
	"path/filepath"
	"testing"

	"github.com/MrEthical07/goConsole/credential"
)

func TestBuildRequiresAPIClient(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without api client")
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.API.Timeout = 0
	if _, err := New().WithConfig(cfg).WithAPIClient(&fakeAPI{}).Build(); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithAPIClient(&fakeAPI{})
	s, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestBuildDerivesCredentialStore(t *testing.T) {
	cfg := testConfig()
	s, err := New().WithConfig(cfg).WithAPIClient(&fakeAPI{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()
	if _, ok := s.creds.(*credential.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", s.creds)
	}

	cfg.Credential.Backend = CredentialFile
	cfg.Credential.FilePath = filepath.Join(t.TempDir(), "token")
	s2, err := New().WithConfig(cfg).WithAPIClient(&fakeAPI{}).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s2.Close()
	fs, ok := s2.creds.(*credential.FileStore)
	if !ok || fs.Path() != cfg.Credential.FilePath {
		t.Fatalf("expected file store at %s, got %T", cfg.Credential.FilePath, s2.creds)
	}

	cfg.Credential.Backend = CredentialRedis
	cfg.Credential.RedisAddr = "127.0.0.1:6379"
	if _, err := New().WithConfig(cfg).WithAPIClient(&fakeAPI{}).Build(); err == nil {
		t.Fatal("expected redis backend without an explicit store to fail")
	}
}

func TestBuildWithMultipleSinks(t *testing.T) {
	cfg := testConfig()
	cfg.Events.Enabled = true
	a, b := NewChannelSink(4), NewChannelSink(4)
	s, err := New().WithConfig(cfg).WithAPIClient(&fakeAPI{}).WithEventSink(a).WithEventSink(b).WithEventSink(nil).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()

	s.Logout(t.Context())
	s.Close()

	for i, sink := range []*ChannelSink{a, b} {
		select {
		case ev := <-sink.Events():
			if ev.Type != EventLogout {
				t.Fatalf("sink %d: unexpected event %+v", i, ev)
			}
		default:
			t.Fatalf("sink %d: no event", i)
		}
	}
}
