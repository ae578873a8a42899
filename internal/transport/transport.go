// Package transport implements the Transport State Machine (§4.3): a
// reconnecting websocket client that authenticates with a signed hello
// handshake, heartbeats while connected, and backs off with jitter
// between attempts.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nodalsync/engine/internal/authsig"
	"github.com/nodalsync/engine/pkg/protocol"
)

// Config configures one Transport instance. NewConfig returns one with
// the default durations; zero-value durations in a Config built by hand
// are used as they are, not replaced.
type Config struct {
	ServerURL string
	Email     string
	APIKey    string
	APISecret string

	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	PingInterval time.Duration
	PingTimeout  time.Duration
}

// NewConfig returns a Config with every tunable set to its §4.3 default.
func NewConfig(serverURL, email, apiKey, apiSecret string) Config {
	return Config{
		ServerURL: serverURL, Email: email, APIKey: apiKey, APISecret: apiSecret,
		BaseBackoff: 500 * time.Millisecond, MaxBackoff: 30 * time.Second,
		PingInterval: 15 * time.Second, PingTimeout: 45 * time.Second,
	}
}

// Hooks are invoked on state transitions, per §4.3's transition table.
// Each is optional; a nil hook is simply not called. Hooks run on the
// Transport's own goroutine, so implementations should return quickly
// (the engine uses them only to enqueue events).
type Hooks struct {
	OnAttempted func(attempt int)
	OnSucceeded func()
	OnLost      func()
	OnAuthFailed func(reason string)
}

var errNotConnected = errors.New("transport: not connected")

// Transport drives one reconnecting connection to the sync server.
type Transport struct {
	cfg   Config
	hooks Hooks

	inbound chan protocol.ServerFrame

	mu     sync.RWMutex
	state  State
	active *conn
}

// New constructs a Transport. Run must be called to actually connect.
func New(cfg Config, hooks Hooks) *Transport {
	return &Transport{
		cfg:     cfg,
		hooks:   hooks,
		inbound: make(chan protocol.ServerFrame, 256),
		state:   Disconnected,
	}
}

// State returns the current transport state.
func (t *Transport) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// Inbound returns the channel of decoded server frames arriving while
// Connected. Change/ack/error frames are forwarded here; the hello
// handshake and heartbeat pongs are consumed internally.
func (t *Transport) Inbound() <-chan protocol.ServerFrame {
	return t.inbound
}

// Send transmits a client frame over the active connection. Returns
// errNotConnected if no connection is currently established.
func (t *Transport) Send(frame protocol.ClientFrame) error {
	t.mu.RLock()
	c := t.active
	t.mu.RUnlock()
	if c == nil {
		return errNotConnected
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errNotConnected
	}
}

// Run drives the state machine until ctx is cancelled. The engine runs
// it on a goroutine of its own, next to the sync loop's.
func (t *Transport) Run(ctx context.Context) {
	policy := newBackoffPolicy(t.cfg.BaseBackoff, t.cfg.MaxBackoff)
	attempt := 0
	t.setState(Disconnected)

	for {
		if ctx.Err() != nil {
			return
		}

		t.setState(Connecting)
		attempt++
		t.call(func() { t.hooks.OnAttempted(attempt) }, t.hooks.OnAttempted != nil)

		c, err := dial(t.cfg.ServerURL, t.cfg.PingInterval, t.cfg.PingTimeout)
		if err != nil {
			if !t.backoffWait(ctx, policy) {
				return
			}
			continue
		}

		runDone := make(chan error, 1)
		go func() { runDone <- c.run() }()

		t.setState(Authenticating)
		authErr := t.authenticate(ctx, c, runDone)
		if authErr != nil {
			c.close()
			<-runDone
			t.call(func() { t.hooks.OnAuthFailed(authErr.Error()) }, t.hooks.OnAuthFailed != nil)
			if !t.backoffWait(ctx, policy) {
				return
			}
			continue
		}

		policy.Reset()
		attempt = 0
		t.setActive(c)
		t.setState(Connected)
		t.call(t.hooks.OnSucceeded, t.hooks.OnSucceeded != nil)

		t.pumpUntilDone(ctx, c, runDone)
		t.clearActive()
		t.call(t.hooks.OnLost, t.hooks.OnLost != nil)

		if ctx.Err() != nil {
			return
		}
		if !t.backoffWait(ctx, policy) {
			return
		}
	}
}

// authenticate sends the signed hello frame and waits for hello_ok or
// hello_err, per §4.3 "Authentication".
func (t *Transport) authenticate(ctx context.Context, c *conn, runDone <-chan error) error {
	nonce, err := authsig.NewNonce()
	if err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}
	ts := time.Now().Unix()
	mac := authsig.Sign(t.cfg.APISecret, t.cfg.Email, t.cfg.APIKey, nonce, ts)
	hello := protocol.Hello(t.cfg.Email, t.cfg.APIKey, nonce, ts, mac)

	select {
	case c.send <- hello:
	case <-c.done:
		return errors.New("connection closed before hello could be sent")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case frame := <-c.inbound:
		switch frame.Type {
		case protocol.TypeHelloOK:
			return nil
		case protocol.TypeHelloErr:
			return fmt.Errorf("server rejected credentials: %s", frame.Reason)
		default:
			return fmt.Errorf("unexpected frame during handshake: %s", frame.Type)
		}
	case err := <-runDone:
		if err == nil {
			err = errors.New("connection closed during handshake")
		}
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(handshakeTimeout):
		return errors.New("handshake timed out waiting for hello_ok")
	}
}

// pumpUntilDone forwards inbound frames to t.inbound until the
// connection ends or ctx is cancelled, at which point it closes the
// connection and waits for the pumps to exit.
func (t *Transport) pumpUntilDone(ctx context.Context, c *conn, runDone <-chan error) {
	for {
		select {
		case frame := <-c.inbound:
			select {
			case t.inbound <- frame:
			case <-c.done:
			}
		case <-runDone:
			return
		case <-ctx.Done():
			c.close()
			<-runDone
			return
		}
	}
}

func (t *Transport) backoffWait(ctx context.Context, policy *backoffPolicy) bool {
	t.setState(Backoff)
	d := policy.Next()
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func (t *Transport) setState(s State) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *Transport) setActive(c *conn) {
	t.mu.Lock()
	t.active = c
	t.mu.Unlock()
}

func (t *Transport) clearActive() {
	t.mu.Lock()
	t.active = nil
	t.mu.Unlock()
}

func (t *Transport) call(fn func(), ok bool) {
	if ok {
		fn()
	}
}
