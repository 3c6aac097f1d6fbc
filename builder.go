package goConsole

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/goConsole/credential"
	internalevents "github.com/MrEthical07/goConsole/internal/events"
	"github.com/MrEthical07/goConsole/internal/logging"
)

// Builder assembles a [Store]. A Builder is single-use.
type Builder struct {
	config Config
	api    APIClient
	creds  CredentialStore
	logger *slog.Logger
	sinks  []EventSink

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithAPIClient sets the remote admin API. Required.
func (b *Builder) WithAPIClient(api APIClient) *Builder {
	b.api = api
	return b
}

// WithCredentialStore sets where the credential token is persisted. When
// unset, Build derives a memory or file backend from Config.Credential;
// the redis backend must always be passed explicitly.
func (b *Builder) WithCredentialStore(store CredentialStore) *Builder {
	b.creds = store
	return b
}

// WithLogger sets the logger. Nil discards logs.
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithEventSink adds a sink for session events. Sinks only receive events
// when Config.Events.Enabled is true. May be called more than once.
func (b *Builder) WithEventSink(sink EventSink) *Builder {
	if sink != nil {
		b.sinks = append(b.sinks, sink)
	}
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the login latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a Store in
// [StatusInitializing]. Call [Store.Start] to run the initial credential check.
func (b *Builder) Build() (*Store, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.api == nil {
		return nil, errors.New("api client required")
	}

	creds := b.creds
	if creds == nil {
		var err error
		creds, err = credentialStoreFromConfig(cfg.Credential)
		if err != nil {
			return nil, err
		}
	}

	logger := b.logger
	if logger == nil {
		logger = logging.Discard()
	}

	var sink EventSink
	switch len(b.sinks) {
	case 0:
		sink = NoOpSink{}
	case 1:
		sink = b.sinks[0]
	default:
		sink = internalevents.MultiSink(append([]EventSink(nil), b.sinks...))
	}

	dispatcher := internalevents.NewDispatcher(internalevents.Config{
		Enabled:    cfg.Events.Enabled,
		BufferSize: cfg.Events.BufferSize,
		DropIfFull: cfg.Events.DropIfFull,
		Critical:   []string{EventLogout, EventLoginFailure},
	}, sink)

	b.built = true

	return newStore(cfg, b.api, creds, logger, NewMetrics(cfg.Metrics), dispatcher), nil
}

func credentialStoreFromConfig(cfg CredentialConfig) (CredentialStore, error) {
	switch cfg.Backend {
	case CredentialMemory:
		return credential.NewMemoryStore(), nil
	case CredentialFile:
		fs, err := credential.NewFileStore(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case CredentialRedis:
		return nil, errors.New("redis credential backend requires WithCredentialStore")
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Backend)
	}
}
