// Package transporttest provides an in-process fake sync server for
// exercising internal/transport without a real network peer, mirroring
// the pack's httptest.Server + gorilla/websocket test harness.
package transporttest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/nodalsync/engine/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server is a single-client fake websocket server. Tests drive it by
// reading ClientFrame values off Received and writing ServerFrame
// values with SendFrame.
type Server struct {
	httpServer *httptest.Server

	mu   sync.Mutex
	conn *websocket.Conn

	Received chan protocol.ClientFrame
	// Pings receives every inbound heartbeat ping frame, kept separate
	// from Received so tests asserting on business frames don't have to
	// account for heartbeat traffic interleaving.
	Pings     chan protocol.ClientFrame
	connected chan struct{}

	// AutoHello, when true, answers every hello frame with hello_ok
	// automatically so tests that don't care about auth can skip it.
	AutoHello bool
	// RejectHello, when set, makes AutoHello answer with hello_err
	// instead, carrying this reason.
	RejectHello string
	// AutoPong, when true, answers every inbound ping frame with pong
	// automatically. Tests exercising the heartbeat timeout set this
	// false to let the client's read deadline lapse.
	AutoPong bool
}

// New starts a fake server and returns it along with its ws:// URL.
func New() (*Server, string) {
	s := &Server{
		Received:  make(chan protocol.ClientFrame, 64),
		Pings:     make(chan protocol.ClientFrame, 64),
		connected: make(chan struct{}, 1),
		AutoHello: true,
		AutoPong:  true,
	}
	s.httpServer = httptest.NewServer(http.HandlerFunc(s.handle))
	url := "ws" + strings.TrimPrefix(s.httpServer.URL, "http")
	return s, url
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	select {
	case s.connected <- struct{}{}:
	default:
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.ParseClientFrame(data)
		if err != nil {
			continue
		}
		if frame.Type == protocol.TypeHello && s.AutoHello {
			if s.RejectHello != "" {
				s.SendFrame(protocol.ServerFrame{Type: protocol.TypeHelloErr, Reason: s.RejectHello})
			} else {
				s.SendFrame(protocol.ServerFrame{Type: protocol.TypeHelloOK, Session: "test-session"})
			}
		}
		if frame.Type == protocol.TypePing {
			if s.AutoPong {
				s.SendFrame(protocol.ServerFrame{Type: protocol.TypePong, Timestamp: frame.Timestamp})
			}
			select {
			case s.Pings <- frame:
			default:
			}
			continue
		}
		s.Received <- frame
	}
}

// WaitConnected blocks until the first client has connected.
func (s *Server) WaitConnected() {
	<-s.connected
}

// SendFrame writes a server frame to the currently connected client.
func (s *Server) SendFrame(f protocol.ServerFrame) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// DropConnection forcibly closes the current client connection,
// simulating an I/O error for reconnect tests.
func (s *Server) DropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close shuts down the fake server.
func (s *Server) Close() {
	s.httpServer.Close()
}
