package goConsole

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoCredential reports that no credential token is persisted.
	ErrNoCredential = errors.New("no stored credential")
	// ErrCredentialRejected reports that the profile endpoint refused the credential token.
	ErrCredentialRejected = errors.New("credential rejected")
	// ErrLoginRejected reports that the login endpoint refused the credentials or answered without a token.
	ErrLoginRejected = errors.New("login rejected")
	// ErrNetworkUnavailable reports a transport failure talking to the admin API.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrSuperseded reports that a newer session operation started before this one finished.
	ErrSuperseded = errors.New("superseded by a newer session operation")
	// ErrCredentialStorage reports that the credential backend could not be read or written.
	ErrCredentialStorage = errors.New("credential storage unavailable")
	// ErrStoreClosed is returned by Login after Close.
	ErrStoreClosed = errors.New("session store closed")
)

// AuthError is the error returned by [Store.Login]. Kind is one of the
// package sentinels; Err is the underlying cause, if any.
//
// errors.Is matches both Kind and anything in the Err chain.
type AuthError struct {
	Op   string
	Kind error
	Err  error
}

func (e *AuthError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("goConsole: ")
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Err != nil && e.Err != e.Kind {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *AuthError) Unwrap() []error {
	if e == nil {
		return nil
	}
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Message returns the operator-facing message stored in Snapshot.Error for this failure.
func (e *AuthError) Message() string {
	if e == nil {
		return ""
	}
	return messageFor(e.Kind)
}

func newAuthError(op string, kind, cause error) *AuthError {
	return &AuthError{Op: op, Kind: kind, Err: cause}
}

// classify maps an error returned by an APIClient to one of the sentinel
// kinds. Errors that wrap no known sentinel are treated as transport
// failures; fallback is used for errors that carry no more specific kind.
func classify(err, fallback error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNetworkUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return ErrNetworkUnavailable
	case errors.Is(err, ErrLoginRejected):
		return ErrLoginRejected
	case errors.Is(err, ErrCredentialRejected):
		return ErrCredentialRejected
	case errors.Is(err, ErrNoCredential):
		return ErrNoCredential
	}
	if fallback != nil {
		return fallback
	}
	return ErrNetworkUnavailable
}

func messageFor(kind error) string {
	switch kind {
	case ErrNoCredential:
		return "Please sign in."
	case ErrCredentialRejected:
		return "Your session has expired. Please sign in again."
	case ErrLoginRejected:
		return "Invalid email or password."
	case ErrNetworkUnavailable:
		return "Unable to reach the server. Check your connection and try again."
	case ErrCredentialStorage:
		return "Unable to read the saved session."
	case ErrSuperseded:
		return "Sign-in was replaced by a newer request."
	case ErrStoreClosed:
		return "The session is closed."
	default:
		return "Authentication failed."
	}
}
