// Package domain defines the core domain types and interfaces.
//
// Concept-oriented files (vitals.go, prediction.go, session.go, history.go, errors.go) hold
// the value types shared by the generator, gateway, session and broadcast packages, plus the
// consumer-side interfaces that wire them. No implementation code - just contracts.
package domain
