package transport

import (
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nodalsync/engine/pkg/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
	maxFrameSize     = 1 << 20
)

// conn wraps one live websocket connection with read/write pumps that
// speak the JSON frame protocol, mirroring the ReadPump/WritePump split
// the pack's websocket code uses on the server side.
type conn struct {
	ws *websocket.Conn

	send    chan protocol.ClientFrame
	inbound chan protocol.ServerFrame
	done    chan struct{}

	pingInterval time.Duration
	pingTimeout  time.Duration
}

func dial(serverURL string, pingInterval, pingTimeout time.Duration) (*conn, error) {
	dialer := &websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.Dial(serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", serverURL, err)
	}
	c := &conn{
		ws:           ws,
		send:         make(chan protocol.ClientFrame, 64),
		inbound:      make(chan protocol.ServerFrame, 64),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		pingTimeout:  pingTimeout,
	}
	ws.SetReadLimit(maxFrameSize)
	return c, nil
}

// run starts the read and write pumps and blocks until either pump
// exits (I/O error, heartbeat timeout, or close). It never returns nil
// for a connection that closed abnormally.
func (c *conn) run() error {
	errCh := make(chan error, 2)
	go func() { errCh <- c.readPump() }()
	go func() { errCh <- c.writePump() }()
	err := <-errCh
	c.close()
	<-errCh
	return err
}

// readPump extends the read deadline on every frame the peer sends,
// including heartbeat pongs, matching the application-level ping/pong
// frames the wire protocol defines instead of raw WebSocket control
// frames.
func (c *conn) readPump() error {
	c.ws.SetReadDeadline(time.Now().Add(c.pingTimeout))

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		c.ws.SetReadDeadline(time.Now().Add(c.pingTimeout))

		frame, err := protocol.ParseServerFrame(data)
		if err != nil {
			continue
		}
		if frame.Type == protocol.TypePong {
			continue
		}
		select {
		case c.inbound <- frame:
		case <-c.done:
			return nil
		}
	}
}

func (c *conn) writePump() error {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return nil
			}
			if err := c.writeFrame(frame); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.writeFrame(protocol.Ping(time.Now().UnixMilli())); err != nil {
				return err
			}
		case <-c.done:
			return nil
		}
	}
}

func (c *conn) writeFrame(frame protocol.ClientFrame) error {
	data, err := frame.Marshal()
	if err != nil {
		return nil
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (c *conn) close() {
	select {
	case <-c.done:
	default:
		close(c.done)
		c.ws.Close()
	}
}
