package goConsole

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalevents "github.com/MrEthical07/goConsole/internal/events"
)

// Status represents the lifecycle state of the operator session.
type Status uint8

const (
	// StatusInitializing is the state of a Store that has not finished its initial credential check.
	StatusInitializing Status = iota
	// StatusAuthenticating is the state while a profile fetch or login call is in flight.
	StatusAuthenticating
	// StatusAuthenticated is the only state in which a profile is present.
	StatusAuthenticated
	// StatusUnauthenticated is the signed-out state.
	StatusUnauthenticated
	// StatusError is entered when the persisted credential could not be read at start.
	StatusError
)

// String returns the lower-case name of the status.
func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusAuthenticating:
		return "authenticating"
	case StatusAuthenticated:
		return "authenticated"
	case StatusUnauthenticated:
		return "unauthenticated"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name so snapshots serialize readably.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Profile is the signed-in operator's identity record returned by the
// profile endpoint. Attributes carries any field the API returns beyond the
// well-known ones.
type Profile struct {
	ID         string         `json:"id,omitempty"`
	Name       string         `json:"name,omitempty"`
	Email      string         `json:"email,omitempty"`
	Role       string         `json:"role,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (p Profile) clone() Profile {
	out := p
	if len(p.Attributes) > 0 {
		out.Attributes = make(map[string]any, len(p.Attributes))
		for k, v := range p.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}

// Credentials is the login request body.
type Credentials struct {
	Identifier string `json:"identifier"`
	Secret     string `json:"secret"`
}

// Snapshot is an immutable read of the Store's session at a point in time.
// User is non-nil if and only if Status is StatusAuthenticated.
type Snapshot struct {
	Status    Status    `json:"status"`
	User      *Profile  `json:"user,omitempty"`
	Error     string    `json:"error,omitempty"`
	Epoch     uint64    `json:"epoch"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Authenticated reports whether the snapshot carries a signed-in operator.
func (s Snapshot) Authenticated() bool {
	return s.Status == StatusAuthenticated && s.User != nil
}

// Pending reports whether the session is still resolving.
func (s Snapshot) Pending() bool {
	return s.Status == StatusInitializing || s.Status == StatusAuthenticating
}

// APIClient is the remote admin API used by the Store. The api package
// provides the HTTP implementation.
//
// Login returns the credential token on success. It returns an error
// wrapping [ErrLoginRejected] when the API rejects the credentials or
// answers without a token, and one wrapping [ErrNetworkUnavailable] on
// transport failure. FetchProfile returns an error wrapping
// [ErrCredentialRejected] for any non-success answer.
type APIClient interface {
	Login(ctx context.Context, creds Credentials) (string, error)
	FetchProfile(ctx context.Context, token string) (Profile, error)
}

// CredentialStore persists the single credential token across process
// restarts. Load returns credential.ErrNotFound when nothing is stored.
// Clear on an empty store succeeds.
type CredentialStore interface {
	Load(ctx context.Context) (string, error)
	Save(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Event is a structured session event emitted by the Store.
type Event = internalevents.Event

// EventSink receives [Event] values from the Store's event dispatcher.
type EventSink = internalevents.Sink

// NoOpSink is an [EventSink] that discards all events.
type NoOpSink = internalevents.NoOpSink

// ChannelSink is a buffered channel-based [EventSink].
type ChannelSink = internalevents.ChannelSink

// JSONWriterSink writes one JSON event per line.
type JSONWriterSink = internalevents.JSONWriterSink

// SlogSink logs each event through a *slog.Logger.
type SlogSink = internalevents.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer.
func NewChannelSink(buffer int) *ChannelSink {
	return internalevents.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalevents.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink] logging at info level through logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalevents.NewSlogSink(logger)
}
