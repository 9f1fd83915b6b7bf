// Package prediction implements the gateway to the external scoring service.
//
// A reading is posted as {"data": [8 floats]} in the fixed feature order. Transport
// failures, non-2xx statuses and an open circuit breaker all surface as
// domain.ErrGatewayUnavailable; any reachable 2xx body is passed through untouched.
package prediction
