package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeboard/forgeboard/pkg/protocol"
)

// mockGenServer is an httptest server that upgrades to WebSocket and
// hands accepted connections to the test for scripting.
type mockGenServer struct {
	t      *testing.T
	server *httptest.Server
	connCh chan *websocket.Conn

	mu       sync.Mutex
	accepted int
}

func newMockGenServer(t *testing.T) *mockGenServer {
	t.Helper()

	m := &mockGenServer{t: t, connCh: make(chan *websocket.Conn, 8)}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			t.Logf("WebSocket accept error: %v", err)
			return
		}
		m.mu.Lock()
		m.accepted++
		m.mu.Unlock()
		m.connCh <- conn

		// Keep the connection open until the client goes away.
		for {
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(m.server.Close)
	return m
}

// waitConn blocks until the server accepts a connection.
func (m *mockGenServer) waitConn() *websocket.Conn {
	m.t.Helper()
	select {
	case conn := <-m.connCh:
		return conn
	case <-time.After(2 * time.Second):
		m.t.Fatal("timed out waiting for a client connection")
		return nil
	}
}

func (m *mockGenServer) acceptedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepted
}

// send pushes one raw frame to the client.
func (m *mockGenServer) send(conn *websocket.Conn, raw string) {
	m.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(m.t, conn.Write(ctx, websocket.MessageText, []byte(raw)))
}

func newTestClient(t *testing.T, cfg Config) *Client {
	t.Helper()
	client, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(client.Disconnect)
	return client
}

func TestClientConnectLifecycle(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{ServerURL: server.server.URL})

	opened := make(chan struct{}, 1)
	client.Subscribe(protocol.EventConnectionOpen, func(env *protocol.Envelope) {
		opened <- struct{}{}
	})

	require.NoError(t, client.Connect(context.Background()))
	assert.Equal(t, StateConnected, client.State())
	server.waitConn()

	select {
	case <-opened:
	case <-time.After(time.Second):
		t.Fatal("connection.open was not dispatched")
	}

	stats := client.StatsSnapshot()
	assert.Equal(t, 1, stats.TotalConnections)
	assert.NotNil(t, stats.ConnectedAt)

	// Connecting again without disconnecting is rejected.
	err := client.Connect(context.Background())
	assert.Error(t, err)

	client.Disconnect()
	assert.Equal(t, StateDisconnected, client.State())
	assert.Nil(t, client.StatsSnapshot().ConnectedAt)
}

func TestClientTracksGeneration(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{ServerURL: server.server.URL})

	done := make(chan struct{}, 1)
	client.Subscribe(protocol.EventExecuting, func(env *protocol.Envelope) {
		var data protocol.ExecutingData
		if env.DecodeData(&data) == nil && data.Node == nil {
			done <- struct{}{}
		}
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := server.waitConn()

	server.send(conn, `{"type":"execution_start","data":{"prompt_id":"p1"}}`)
	server.send(conn, `{"type":"progress","data":{"value":5,"max":10,"node":"3"}}`)
	server.send(conn, `{"type":"executing","data":{"node":null,"prompt_id":"p1"}}`)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("finish sentinel never arrived")
	}

	snap := client.ProgressSnapshot()
	assert.Equal(t, "p1", snap.PromptID)
	assert.Equal(t, 5, snap.Value)
	assert.Equal(t, 10, snap.Max)
	assert.False(t, snap.IsGenerating)
	assert.NotNil(t, snap.EndTime)

	stats := client.StatsSnapshot()
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Zero(t, stats.ParseErrors)
}

func TestClientMalformedFramesAreDroppedQuietly(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{ServerURL: server.server.URL})

	got := make(chan string, 4)
	client.Subscribe(KeyAll, func(env *protocol.Envelope) {
		got <- env.Type
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := server.waitConn()

	server.send(conn, `{not json at all`)
	server.send(conn, `{"data":{"value":1}}`)
	server.send(conn, `[1,2,3]`)
	server.send(conn, `{"type":"status","data":{"status":{"exec_info":{"queue_remaining":2}}}}`)

	// The valid frame after three malformed ones still flows through;
	// the connection never closed.
	require.Eventually(t, func() bool {
		for {
			select {
			case typ := <-got:
				if typ == protocol.EventStatus {
					return true
				}
			default:
				return false
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateConnected, client.State())

	stats := client.StatsSnapshot()
	assert.Equal(t, 3, stats.ParseErrors)
	assert.Equal(t, 1, stats.TotalMessages)
	assert.Equal(t, 2, client.ProgressSnapshot().QueueRemaining)
}

func TestClientCleanServerCloseDoesNotReconnect(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{
		ServerURL:         server.server.URL,
		AutoReconnect:     true,
		ReconnectInterval: 20 * time.Millisecond,
	})

	closed := make(chan struct{}, 1)
	client.Subscribe(protocol.EventConnectionClose, func(env *protocol.Envelope) {
		closed <- struct{}{}
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := server.waitConn()

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "server shutdown"))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("connection.close was not dispatched")
	}

	// Give any (incorrect) reconnect timer time to fire.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateDisconnected, client.State())
	assert.Equal(t, 1, server.acceptedCount())
	assert.Zero(t, client.StatsSnapshot().TotalReconnections)
}

func TestClientReconnectsAfterAbnormalClose(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{
		ServerURL:         server.server.URL,
		AutoReconnect:     true,
		ReconnectInterval: 20 * time.Millisecond,
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := server.waitConn()

	require.NoError(t, conn.Close(websocket.StatusInternalError, "server crash"))

	server.waitConn()
	require.Eventually(t, func() bool {
		return client.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	stats := client.StatsSnapshot()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.TotalReconnections)
}

func TestClientDisconnectCancelsPendingReconnect(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{
		ServerURL:         server.server.URL,
		AutoReconnect:     true,
		ReconnectInterval: 200 * time.Millisecond,
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := server.waitConn()

	require.NoError(t, conn.Close(websocket.StatusInternalError, "server crash"))
	require.Eventually(t, func() bool {
		return client.State() == StateReconnecting
	}, 2*time.Second, 10*time.Millisecond)

	client.Disconnect()
	assert.Equal(t, StateDisconnected, client.State())

	// Past the reconnect interval: the cancelled timer must not have
	// produced a new connection.
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, StateDisconnected, client.State())
	assert.Equal(t, 1, server.acceptedCount())
}

func TestClientTransportFailureEntersErrorState(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{ServerURL: server.server.URL})

	errCh := make(chan struct{}, 1)
	client.Subscribe(protocol.EventConnectionError, func(env *protocol.Envelope) {
		errCh <- struct{}{}
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := server.waitConn()

	// Kill the TCP connection without a close handshake. Note
	// CloseClientConnections would be a no-op here: httptest stops
	// tracking hijacked connections, so it never reaches the WebSocket.
	_ = conn.CloseNow()

	require.Eventually(t, func() bool {
		return client.State() == StateError
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case <-errCh:
	case <-time.After(time.Second):
		t.Fatal("connection.error was not dispatched")
	}

	assert.NotEmpty(t, client.StatsSnapshot().LastError)
	assert.Zero(t, client.StatsSnapshot().TotalReconnections)
}

func TestClientDisconnectDuringDialStaysDisconnected(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{
		ServerURL:         server.server.URL,
		AutoReconnect:     true,
		ReconnectInterval: 20 * time.Millisecond,
	})

	// A dial already in flight when Disconnect lands reports its failure
	// afterwards; the disconnected state must survive it.
	client.Disconnect()
	client.handleConnectFailure(context.DeadlineExceeded)

	assert.Equal(t, StateDisconnected, client.State())

	// No reconnect cycle either.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateDisconnected, client.State())
	assert.Zero(t, server.acceptedCount())
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	// A server that existed once and is now gone.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, Config{
		ServerURL:            url,
		AutoReconnect:        true,
		MaxReconnectAttempts: 3,
		ReconnectInterval:    10 * time.Millisecond,
		ConnectTimeout:       time.Second,
	})

	var mu sync.Mutex
	var errMsgs []string
	client.Subscribe(protocol.EventConnectionError, func(env *protocol.Envelope) {
		var data struct {
			Message string `json:"message"`
		}
		if env.DecodeData(&data) == nil {
			mu.Lock()
			errMsgs = append(errMsgs, data.Message)
			mu.Unlock()
		}
	})

	require.Error(t, client.Connect(context.Background()))

	require.Eventually(t, func() bool {
		return client.StatsSnapshot().LastError == ErrMaxReconnectAttempts.Error()
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, StateDisconnected, client.State())

	stats := client.StatsSnapshot()
	assert.Equal(t, 3, stats.TotalReconnections)
	assert.Zero(t, stats.TotalConnections)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, errMsgs)
	assert.Equal(t, ErrMaxReconnectAttempts.Error(), errMsgs[len(errMsgs)-1])
}

func TestClientHeartbeatTimeoutForcesReconnect(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{
		ServerURL:         server.server.URL,
		AutoReconnect:     true,
		ReconnectInterval: 20 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
	})

	require.NoError(t, client.Connect(context.Background()))
	server.waitConn()

	// The server goes silent. After two quiet heartbeat intervals the
	// client must tear the connection down and dial again on its own.
	server.waitConn()
	require.Eventually(t, func() bool {
		return client.State() == StateConnected && client.StatsSnapshot().TotalConnections >= 2
	}, 3*time.Second, 20*time.Millisecond)

	assert.GreaterOrEqual(t, client.StatsSnapshot().TotalReconnections, 1)
}

func TestClientHeartbeatSatisfiedByTraffic(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{
		ServerURL:         server.server.URL,
		AutoReconnect:     true,
		ReconnectInterval: 20 * time.Millisecond,
		HeartbeatInterval: 50 * time.Millisecond,
	})

	require.NoError(t, client.Connect(context.Background()))
	conn := server.waitConn()

	// Any parsed message counts as a heartbeat; regular traffic keeps
	// the connection alive well past the timeout horizon.
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		server.send(conn, `{"type":"status","data":{"status":{"exec_info":{"queue_remaining":0}}}}`)
		time.Sleep(40 * time.Millisecond)
	}

	assert.Equal(t, StateConnected, client.State())
	assert.Equal(t, 1, server.acceptedCount())
	assert.Zero(t, client.StatsSnapshot().TotalReconnections)
}

func TestClientDebugSnapshot(t *testing.T) {
	server := newMockGenServer(t)
	client := newTestClient(t, Config{ServerURL: server.server.URL})

	client.Subscribe(KeyAll, func(env *protocol.Envelope) {})

	info := client.DebugSnapshot()
	assert.NotEmpty(t, info.ClientID)
	assert.Equal(t, StateDisconnected, info.State)
	assert.Contains(t, info.StreamURL, "ws://")
	assert.Equal(t, map[string]int{KeyAll: 1}, info.Subscribers)
	assert.Zero(t, info.QueueDepth)
}

func TestClientConfigDefaults(t *testing.T) {
	cfg := DefaultConfig("http://127.0.0.1:8188")
	assert.True(t, cfg.AutoReconnect)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.MaxReconnectAttempts)
	assert.Equal(t, DefaultReconnectInterval, cfg.ReconnectInterval)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.HeartbeatInterval)
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)

	t.Run("invalid server URL", func(t *testing.T) {
		_, err := New(Config{ServerURL: "ftp://nope"})
		assert.Error(t, err)
	})
}
