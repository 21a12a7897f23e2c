package websockettest

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
)

// URL rewrites an httptest server URL plus path into a WebSocket URL.
func URL(serverURL, path string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + path
}

// Dial connects a test viewer. With ignorePongs set the connection never answers pings, which
// lets tests simulate an unresponsive peer.
func Dial(serverURL, path string, header http.Header, ignorePongs bool) (*websocket.Conn, *http.Response, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(URL(serverURL, path), header)
	if err != nil {
		return nil, resp, err
	}
	if ignorePongs {
		conn.SetPingHandler(func(string) error { return nil })
		conn.SetPongHandler(func(string) error { return nil })
	}
	return conn, resp, nil
}
