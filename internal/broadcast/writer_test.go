package broadcast

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pscheid92/vitalpulse/internal/adapter/metrics"
	"github.com/pscheid92/vitalpulse/internal/domain"
)

func TestClientWriter_EmitWritesEnvelope(t *testing.T) {
	server, client := newTestConnPair(t)
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())
	cw := newClientWriter(server, clockwork.NewRealClock(), m)
	t.Cleanup(cw.stop)

	require.NoError(t, cw.Emit(domain.EventPrediction, 7, domain.PredictionResult{"risk": "High Risk"}))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	assert.JSONEq(t, `{"event":"prediction","seq":7,"data":{"risk":"High Risk"}}`, string(msg))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.MessagesSent.WithLabelValues(domain.EventPrediction)) == 1
	}, time.Second, 2*time.Millisecond)
}

func TestClientWriter_PreservesOrder(t *testing.T) {
	server, client := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)
	t.Cleanup(cw.stop)

	for seq := uint64(1); seq <= 5; seq++ {
		require.NoError(t, cw.Emit(domain.EventHealthData, seq, map[string]int{"n": int(seq)}))
	}

	for want := uint64(1); want <= 5; want++ {
		require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := client.ReadMessage()
		require.NoError(t, err)

		var env domain.Envelope
		require.NoError(t, json.Unmarshal(msg, &env))
		assert.Equal(t, want, env.Seq)
	}
}

func TestClientWriter_EmitAfterStop(t *testing.T) {
	server, _ := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)

	cw.stop()

	err := cw.Emit(domain.EventHealthData, 1, normalReading)
	assert.ErrorIs(t, err, domain.ErrTransportClosed)
}

func TestClientWriter_MarshalFailureIsNotTransportClosed(t *testing.T) {
	server, _ := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)
	t.Cleanup(cw.stop)

	err := cw.Emit(domain.EventPrediction, 1, map[string]any{"bad": make(chan int)})
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrTransportClosed))
}

func TestClientWriter_FullBufferEvictsClient(t *testing.T) {
	server, client := newTestConnPair(t)
	m := metrics.NewWebSocketMetrics(prometheus.NewRegistry())

	// No run goroutine: nothing drains the buffer.
	cw := &clientWriter{
		connection:  server,
		clock:       clockwork.NewRealClock(),
		metrics:     m,
		sendChannel: make(chan frame, 2),
		doneChannel: make(chan struct{}),
	}

	require.NoError(t, cw.Emit(domain.EventHealthData, 1, normalReading))
	require.NoError(t, cw.Emit(domain.EventPrediction, 1, domain.PredictionResult{}))

	err := cw.Emit(domain.EventHealthData, 2, normalReading)
	require.ErrorIs(t, err, domain.ErrTransportClosed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlowClientsEvicted))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = client.ReadMessage()
	assert.Error(t, err, "evicted client connection should be closed")

	assert.ErrorIs(t, cw.Emit(domain.EventHealthData, 3, normalReading), domain.ErrTransportClosed)
}

func TestClientWriter_WriteFailureShutsDown(t *testing.T) {
	server, _ := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)
	t.Cleanup(cw.stop)

	require.NoError(t, server.Close())
	_ = cw.Emit(domain.EventHealthData, 1, normalReading)

	assert.Eventually(t, func() bool {
		return errors.Is(cw.Emit(domain.EventHealthData, 2, normalReading), domain.ErrTransportClosed)
	}, time.Second, 2*time.Millisecond)
}

func TestClientWriter_PingOnInterval(t *testing.T) {
	server, client := newTestConnPair(t)
	clock := clockwork.NewFakeClockAt(time.Now())
	cw := newClientWriter(server, clock, nil)
	t.Cleanup(cw.stop)

	pinged := make(chan struct{}, 1)
	client.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})
	go func() {
		for {
			if _, _, err := client.ReadMessage(); err != nil {
				return
			}
		}
	}()

	require.NoError(t, clock.BlockUntilContext(t.Context(), 1))
	clock.Advance(pingInterval)

	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not receive a ping")
	}
}

func TestClientWriter_GracefulStop(t *testing.T) {
	server, client := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)

	cw.stopGraceful(shutdownReason)

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := client.ReadMessage()

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
		assert.Contains(t, closeErr.Text, "shutting down")
	} else {
		assert.Error(t, err, "connection should be closed")
	}
}

func TestClientWriter_ConcurrentStop(t *testing.T) {
	server, _ := newTestConnPair(t)
	cw := newClientWriter(server, clockwork.NewRealClock(), nil)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				cw.stop()
			} else {
				cw.stopGraceful("bye")
			}
		}()
	}
	wg.Wait()

	assert.ErrorIs(t, cw.Emit(domain.EventHealthData, 1, normalReading), domain.ErrTransportClosed)
}
