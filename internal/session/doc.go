// Package session drives one live connection: a private ticker, one reading per tick,
// and an asynchronous prediction per reading, all emitted to that connection only.
package session
