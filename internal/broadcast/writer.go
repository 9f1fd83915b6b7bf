package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/domain"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	messageBufferSize = 16
)

type frame struct {
	event string
	data  []byte
}

// clientWriter serializes all writes to one connection and is that connection's Emitter.
type clientWriter struct {
	connection  *websocket.Conn
	clock       clockwork.Clock
	metrics     *metrics.WebSocketMetrics
	sendChannel chan frame
	doneChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

var _ domain.Emitter = (*clientWriter)(nil)

func newClientWriter(connection *websocket.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics) *clientWriter {
	cw := &clientWriter{
		connection:  connection,
		clock:       clock,
		metrics:     m,
		sendChannel: make(chan frame, messageBufferSize),
		doneChannel: make(chan struct{}),
	}
	cw.configurePongHandler()
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// Emit queues one event frame without blocking. A full buffer evicts the client.
func (cw *clientWriter) Emit(event string, seq uint64, payload any) error {
	select {
	case <-cw.doneChannel:
		return domain.ErrTransportClosed
	default:
	}

	data, err := json.Marshal(domain.Envelope{Event: event, Seq: seq, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", event, err)
	}

	select {
	case cw.sendChannel <- frame{event: event, data: data}:
		return nil
	case <-cw.doneChannel:
		return domain.ErrTransportClosed
	default:
		if cw.metrics != nil {
			cw.metrics.SlowClientsEvicted.Inc()
		}
		cw.shutdown()
		return fmt.Errorf("send buffer full, evicting slow client: %w", domain.ErrTransportClosed)
	}
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				cw.shutdown()
				return
			}
			if cw.metrics != nil {
				cw.metrics.MessagesSent.WithLabelValues(msg.event).Inc()
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if cw.metrics != nil {
					cw.metrics.PingFailures.Inc()
				}
				cw.shutdown()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

// shutdown marks the writer done and closes the connection without waiting for run.
// Every later Emit reports ErrTransportClosed.
func (cw *clientWriter) shutdown() {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
}

// stop closes the connection without a close frame. Safe to call repeatedly.
func (cw *clientWriter) stop() {
	cw.shutdown()
	cw.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		close(cw.doneChannel)

		// The run goroutine must be gone before we write, gorilla allows one writer.
		cw.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		cw.updateWriteDeadline()
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

func (cw *clientWriter) configurePongHandler() {
	cw.updateReadDeadline()
	cw.connection.SetPongHandler(func(string) error {
		cw.updateReadDeadline()
		return nil
	})
}

func (cw *clientWriter) updateWriteDeadline() {
	_ = cw.connection.SetWriteDeadline(cw.clock.Now().Add(writeDeadline))
}

func (cw *clientWriter) updateReadDeadline() {
	_ = cw.connection.SetReadDeadline(cw.clock.Now().Add(pongDeadline))
}
