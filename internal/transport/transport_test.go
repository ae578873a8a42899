package transport

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodalsync/engine/internal/transport/transporttest"
	"github.com/nodalsync/engine/pkg/protocol"
)

func testConfig(url string) Config {
	cfg := NewConfig(url, "alice@example.com", "rpa_abc", "rps_def")
	cfg.BaseBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PingTimeout = 200 * time.Millisecond
	return cfg
}

func TestTransport_ConnectsAndAuthenticates(t *testing.T) {
	srv, url := transporttest.New()
	defer srv.Close()

	var succeeded atomic.Bool
	tr := New(testConfig(url), Hooks{OnSucceeded: func() { succeeded.Store(true) }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool { return tr.State() == Connected }, time.Second, 5*time.Millisecond)
	assert.True(t, succeeded.Load())

	hello := <-srv.Received
	assert.Equal(t, protocol.TypeHello, hello.Type)
	assert.Equal(t, "alice@example.com", hello.User)
}

func TestTransport_AuthFailureBacksOff(t *testing.T) {
	srv, url := transporttest.New()
	defer srv.Close()
	srv.RejectHello = "bad credentials"

	var authFailed atomic.Bool
	tr := New(testConfig(url), Hooks{OnAuthFailed: func(reason string) { authFailed.Store(true) }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool { return authFailed.Load() }, time.Second, 5*time.Millisecond)
	assert.NotEqual(t, Connected, tr.State())
}

func TestTransport_ReconnectsAfterDrop(t *testing.T) {
	srv, url := transporttest.New()
	defer srv.Close()

	var successes atomic.Int32
	var losses atomic.Int32
	tr := New(testConfig(url), Hooks{
		OnSucceeded: func() { successes.Add(1) },
		OnLost:      func() { losses.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool { return successes.Load() == 1 }, time.Second, 5*time.Millisecond)

	srv.DropConnection()

	require.Eventually(t, func() bool { return losses.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return successes.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestTransport_SendWithoutConnectionErrors(t *testing.T) {
	tr := New(testConfig("ws://127.0.0.1:1"), Hooks{})
	err := tr.Send(protocol.Ping(0))
	assert.ErrorIs(t, err, errNotConnected)
}

func TestTransport_SendsApplicationLevelHeartbeat(t *testing.T) {
	srv, url := transporttest.New()
	defer srv.Close()

	tr := New(testConfig(url), Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool { return tr.State() == Connected }, time.Second, 5*time.Millisecond)

	select {
	case ping := <-srv.Pings:
		assert.Equal(t, protocol.TypePing, ping.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a heartbeat ping frame")
	}
}

func TestTransport_HeartbeatTimeoutTriggersConnectionLost(t *testing.T) {
	srv, url := transporttest.New()
	defer srv.Close()
	srv.AutoPong = false

	var losses atomic.Int32
	tr := New(testConfig(url), Hooks{OnLost: func() { losses.Add(1) }})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool { return tr.State() == Connected }, time.Second, 5*time.Millisecond)

	pingTimeout := testConfig(url).PingTimeout
	require.Eventually(t, func() bool { return losses.Load() == 1 }, pingTimeout+time.Second, 5*time.Millisecond)
}

func TestTransport_ForwardsInboundChangeFrames(t *testing.T) {
	srv, url := transporttest.New()
	defer srv.Close()

	tr := New(testConfig(url), Hooks{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	require.Eventually(t, func() bool { return tr.State() == Connected }, time.Second, 5*time.Millisecond)
	<-srv.Received // hello

	require.NoError(t, srv.SendFrame(protocol.ServerFrame{
		Type: protocol.TypeChange, Op: "create", ID: "doc-1", ServerRevision: 1,
		Body: []byte(`{"v":1}`),
	}))

	select {
	case frame := <-tr.Inbound():
		assert.Equal(t, "doc-1", frame.ID)
		assert.Equal(t, protocol.TypeChange, frame.Type)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for inbound frame")
	}
}
