// transport.go — the wire transport to the game process (§6: a persistent
// duplex connection to a loopback endpoint, default localhost:15702,
// carrying JSON message envelopes). Adapted from the teacher's
// internal/capture/websocket.go connection tracking, but here the
// websocket IS the connection being tracked rather than something the
// Capture god object observes — gorilla/websocket is dialed outbound to
// the game instead of accepted inbound from a browser extension.
package gameconn

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the minimal duplex message transport the Manager drives.
// A fake implementation backs the manager's tests; websocketTransport is
// the production implementation.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a new Transport to the game. Swappable in tests.
type Dialer func(ctx context.Context, host string, port int) (Transport, error)

// DialWebSocket is the production Dialer: a gorilla/websocket client
// connection to ws://host:port/.
func DialWebSocket(ctx context.Context, host string, port int) (Transport, error) {
	u := url.URL{Scheme: "ws", Host: fmt.Sprintf("%s:%d", host, port), Path: "/"}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial game at %s: %w", u.String(), err)
	}
	return &websocketTransport{conn: conn}, nil
}

type websocketTransport struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (t *websocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *websocketTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *websocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() { err = t.conn.Close() })
	return err
}
