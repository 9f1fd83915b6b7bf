package domain

import "errors"

var (
	// ErrGatewayUnavailable wraps every transport or remote failure of the prediction endpoint.
	ErrGatewayUnavailable = errors.New("prediction gateway unavailable")

	// ErrGeneratorExhausted is returned by an EntropySource that cannot produce randomness.
	ErrGeneratorExhausted = errors.New("entropy source exhausted")

	// ErrTransportClosed means the client connection is gone.
	ErrTransportClosed = errors.New("transport closed")

	ErrSessionNotIdle  = errors.New("session is not idle")
	ErrUnknownPreset   = errors.New("unknown vitals preset")
	ErrUnauthenticated = errors.New("session not authenticated")
)
