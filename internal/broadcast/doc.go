// Package broadcast accepts WebSocket connections and runs one telemetry session per
// connection.
//
// The registry of live sessions is owned by a single actor goroutine fed by a command
// channel (no mutexes). Each connection gets its own write goroutine with a bounded send
// buffer, so a slow client is evicted instead of stalling anyone else.
package broadcast
