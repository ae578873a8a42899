package protocol

import "encoding/json"

// Frame type discriminators, per the wire protocol.
const (
	TypeHello    = "hello"
	TypeHelloOK  = "hello_ok"
	TypeHelloErr = "hello_err"
	TypeCreate   = "create"
	TypeUpdate   = "update"
	TypeDelete   = "delete"
	TypeChange   = "change"
	TypeAck      = "ack"
	TypePing     = "ping"
	TypePong     = "pong"
	TypeError    = "error"
)

// ClientFrame is every shape a client can send. Only the fields relevant
// to Type are populated; the rest are omitted from the wire form.
type ClientFrame struct {
	Type            string          `json:"type"`
	User            string          `json:"user,omitempty"`
	Key             string          `json:"key,omitempty"`
	Nonce           string          `json:"nonce,omitempty"`
	Timestamp       int64           `json:"ts,omitempty"`
	MAC             string          `json:"mac,omitempty"`
	ID              string          `json:"id,omitempty"`
	Body            json.RawMessage `json:"body,omitempty"`
	ClientRevision  int64           `json:"client_revision,omitempty"`
}

// ServerFrame is every shape a server can send.
type ServerFrame struct {
	Type            string          `json:"type"`
	Session         string          `json:"session,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Op              string          `json:"op,omitempty"`
	ID              string          `json:"id,omitempty"`
	Body            json.RawMessage `json:"body,omitempty"`
	ServerRevision  int64           `json:"server_revision,omitempty"`
	UpdatedAt       int64           `json:"updated_at,omitempty"`
	Timestamp       int64           `json:"ts,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// Hello builds the client→server authentication frame.
func Hello(user, key, nonce string, ts int64, mac string) ClientFrame {
	return ClientFrame{Type: TypeHello, User: user, Key: key, Nonce: nonce, Timestamp: ts, MAC: mac}
}

// Mutation builds a create/update/delete client→server frame.
func Mutation(kind, id string, body json.RawMessage, clientRevision int64) ClientFrame {
	return ClientFrame{Type: kind, ID: id, Body: body, ClientRevision: clientRevision}
}

// Ping builds a client→server heartbeat frame.
func Ping(ts int64) ClientFrame {
	return ClientFrame{Type: TypePing, Timestamp: ts}
}

// Marshal encodes a client frame as a single JSON text frame.
func (f ClientFrame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Marshal encodes a server frame as a single JSON text frame.
func (f ServerFrame) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// ParseServerFrame decodes one JSON text frame from the server.
func ParseServerFrame(data []byte) (ServerFrame, error) {
	var f ServerFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ServerFrame{}, err
	}
	return f, nil
}

// ParseClientFrame decodes one JSON text frame from a client. Used by
// transporttest's fake server and by any real server implementation.
func ParseClientFrame(data []byte) (ClientFrame, error) {
	var f ClientFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return ClientFrame{}, err
	}
	return f, nil
}
