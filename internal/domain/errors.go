package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
)

// Push delivery error taxonomy. Per-device failures are absorbed into the
// notification status; only ErrConfiguration and ErrStore may escape to the
// caller as hard errors.
var (
	// ErrInvalidToken: classification rejected the token or the provider
	// confirmed it dead. Triggers deactivation, never retried.
	ErrInvalidToken = errors.New("invalid push token")
	// ErrProviderTransient: timeout or 5xx from a provider. Retried with
	// backoff, then counted as a soft failure.
	ErrProviderTransient = errors.New("provider transient error")
	// ErrProviderRejected: non-token 4xx from a provider. Counted as a soft
	// failure without retry.
	ErrProviderRejected = errors.New("provider rejected message")
	// ErrConfiguration: missing credentials. Fatal at startup.
	ErrConfiguration = errors.New("push configuration error")
	// ErrStore: the record store failed; the notification is not sent.
	ErrStore = errors.New("store error")
)
