package surge

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the duplex byte-framed stream contract spec.md section 1
// treats as an external collaborator ("the WebSocket-like transport
// itself"). The connection subsystem only ever talks to this interface;
// WebsocketTransport is the one concrete production implementation,
// grounded on amps/client.go's Connect()/readRoutine() callback-driven
// read loop, adapted from raw length-prefixed TCP frames to
// websocket.Conn's native message framing.
type Transport interface {
	// Open dials host and blocks until the connection is established or
	// ctx is done / an error occurs. It must not block the caller
	// indefinitely once ctx is canceled.
	Open(ctx context.Context, host string, query url.Values, tlsEnabled bool) error
	// Send writes one frame. Safe to call only after a successful Open
	// and before Close.
	Send(frame []byte) error
	// Recv blocks until the next inbound frame, the transport closes, or
	// ctx is done.
	Recv(ctx context.Context) ([]byte, error)
	// Close releases the underlying connection. Idempotent.
	Close() error
}

// WebsocketTransport implements Transport over gorilla/websocket,
// wiring a dependency the teacher's go.mod declared but never imported
// into its own code (see DESIGN.md). HandshakeTimeout bounds the dial
// (the http_open_timeout option); zero means a 10s default.
type WebsocketTransport struct {
	conn             *websocket.Conn
	HandshakeTimeout time.Duration
}

// NewWebsocketTransport returns an unopened WebsocketTransport.
func NewWebsocketTransport() *WebsocketTransport { return &WebsocketTransport{} }

// Open dials a websocket connection to host carrying query as the
// handshake's query string (spec.md section 6, "External Interfaces").
func (t *WebsocketTransport) Open(ctx context.Context, host string, query url.Values, tlsEnabled bool) error {
	scheme := "ws"
	port := 80
	if tlsEnabled {
		scheme = "wss"
		port = 443
	}
	u := url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, port), Path: "/", RawQuery: query.Encode()}

	handshakeTimeout := t.HandshakeTimeout
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}
	if tlsEnabled {
		dialer.TLSClientConfig = &tls.Config{}
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return NewError(ConnectionError, err)
	}
	t.conn = conn
	return nil
}

// Send writes frame as one binary websocket message.
func (t *WebsocketTransport) Send(frame []byte) error {
	if t.conn == nil {
		return NewError(ConnectionError, "transport not open")
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return NewError(ConnectionError, err)
	}
	return nil
}

// Recv reads the next inbound websocket message's payload.
func (t *WebsocketTransport) Recv(ctx context.Context) ([]byte, error) {
	if t.conn == nil {
		return nil, NewError(ConnectionError, "transport not open")
	}
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		_, data, err := t.conn.ReadMessage()
		done <- result{data: data, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, NewError(ConnectionError, r.err)
		}
		return r.data, nil
	}
}

// Close closes the underlying websocket connection.
func (t *WebsocketTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}
