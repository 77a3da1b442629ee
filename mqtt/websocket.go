package mqtt

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"

	"github.com/eclipse/paho.golang/packets"
	"github.com/gorilla/websocket"
)

// WebSocketConnection is a ConnectionProvider that connects to an MQTT server
// over a WebSocket, using the "mqtt" subprotocol. urlStr must be a ws:// or
// wss:// URL. For wss://, tlsConfig configures the underlying TLS handshake
// and may be nil to use defaults.
//
// MQTT packets ride in binary WebSocket frames; ping/pong and close frames
// are handled transparently by the underlying connection and never reach the
// MQTT codec.
func WebSocketConnection(urlStr string, tlsConfig *tls.Config) ConnectionProvider {
	dialer := &websocket.Dialer{
		Subprotocols:    []string{"mqtt"},
		TLSClientConfig: tlsConfig,
	}

	return func(ctx context.Context) (net.Conn, error) {
		conn, _, err := dialer.DialContext(ctx, urlStr, http.Header{})
		if err != nil {
			return nil, &ConnectionError{
				message: "error opening WebSocket connection",
				wrapped: err,
			}
		}
		return packets.NewThreadSafeConn(conn.NetConn()), nil
	}
}
