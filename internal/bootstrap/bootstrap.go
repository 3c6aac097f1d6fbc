package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	goConsole "github.com/MrEthical07/goConsole"
	"github.com/MrEthical07/goConsole/api"
	"github.com/MrEthical07/goConsole/credential"
	"github.com/MrEthical07/goConsole/internal/logging"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

// LoadConfig reads the given .env files (".env" when none are named) and
// then overlays GOCONSOLE_* variables on the defaults. Missing .env files
// are not an error.
func LoadConfig(files ...string) (goConsole.Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return goConsole.Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return goConsole.LoadConfig()
}

// Runtime is a built Store plus the resources it owns.
type Runtime struct {
	Config goConsole.Config
	Logger *slog.Logger
	Store  *goConsole.Store

	redis redis.UniversalClient
}

// Option adjusts how Open builds the Store.
type Option func(*options)

type options struct {
	api   goConsole.APIClient
	sinks []goConsole.EventSink
	redis redis.UniversalClient
}

// WithAPIClient replaces the HTTP API client.
func WithAPIClient(c goConsole.APIClient) Option {
	return func(o *options) { o.api = c }
}

// WithEventSink adds a session event sink.
func WithEventSink(s goConsole.EventSink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithRedisClient supplies the client used by the redis credential
// backend. Runtime.Close does not close a supplied client.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) { o.redis = c }
}

// Open builds the logger, credential backend, API client and Store
// described by cfg. Logs go to logOut.
func Open(cfg goConsole.Config, logOut io.Writer, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format, logOut)
	rt := &Runtime{Config: cfg, Logger: logger}

	var creds goConsole.CredentialStore
	switch cfg.Credential.Backend {
	case goConsole.CredentialRedis:
		client := o.redis
		if client == nil {
			client = redis.NewUniversalClient(&redis.UniversalOptions{
				Addrs: []string{cfg.Credential.RedisAddr},
			})
			rt.redis = client
		}
		creds = credential.NewRedisStore(client, cfg.Credential.RedisPrefix, cfg.Credential.Key, cfg.Credential.TTL)
	case goConsole.CredentialFile:
		fs, err := credential.NewFileStore(cfg.Credential.FilePath)
		if err != nil {
			return nil, fmt.Errorf("credential file: %w", err)
		}
		creds = fs
	default:
		creds = credential.NewMemoryStore()
	}

	client := o.api
	if client == nil {
		client = api.NewHTTPClient(cfg.API)
	}

	b := goConsole.New().
		WithConfig(cfg).
		WithAPIClient(client).
		WithCredentialStore(creds).
		WithLogger(logger)
	for _, s := range o.sinks {
		b.WithEventSink(s)
	}

	store, err := b.Build()
	if err != nil {
		rt.closeRedis()
		return nil, fmt.Errorf("build store: %w", err)
	}
	rt.Store = store
	return rt, nil
}

// Close closes the Store and any redis client Open created.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	if r.Store != nil {
		r.Store.Close()
	}
	return r.closeRedis()
}

func (r *Runtime) closeRedis() error {
	if r.redis == nil {
		return nil
	}
	err := r.redis.Close()
	r.redis = nil
	return err
}
