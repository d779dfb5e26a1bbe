// Package testhelpers provides common utilities for exercising the relay
// over real connections in tests.
package testhelpers

import (
	"bytes"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every blocking helper so a broken test fails instead of hanging.
const DefaultTimeout = 2 * time.Second

// DialTCP connects to addr and fails the test if the connection cannot be made.
// The connection is closed when the test ends.
func DialTCP(t *testing.T, addr string) net.Conn {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to dial %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadExactly reads until want bytes have arrived and fails the test if they
// differ from want or do not arrive in time.
func ReadExactly(t *testing.T, conn net.Conn, want string) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var got bytes.Buffer
	buf := make([]byte, 1024)
	for got.Len() < len(want) {
		n, err := conn.Read(buf)
		got.Write(buf[:n])
		if err != nil {
			t.Fatalf("Read failed after %q (want %q): %v", got.String(), want, err)
		}
	}

	if got.String() != want {
		t.Fatalf("Expected %q, got %q", want, got.String())
	}
}

// ExpectSilence fails the test if anything can be read from conn within wait.
func ExpectSilence(t *testing.T, conn net.Conn, wait time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	if n > 0 {
		t.Fatalf("Expected no data, got %q", buf[:n])
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		t.Fatalf("Expected read timeout, got %v", err)
	}
}

// Join dials addr, completes the name handshake, and consumes the welcome line.
func Join(t *testing.T, addr, name string) net.Conn {
	t.Helper()

	conn := DialTCP(t, addr)
	ReadExactly(t, conn, "Enter your name: ")
	Write(t, conn, name+"\n")
	ReadExactly(t, conn, "Welcome to the chat!\n")
	return conn
}

// Write sends s on conn and fails the test on error.
func Write(t *testing.T, conn net.Conn, s string) {
	t.Helper()

	if _, err := conn.Write([]byte(s)); err != nil {
		t.Fatalf("Write %q failed: %v", s, err)
	}
}

// WebSocketURL converts an httptest server URL into its /ws endpoint.
func WebSocketURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection with the given Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: DefaultTimeout,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// ReadText reads the next frame from a WebSocket and returns it as a string.
func ReadText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("WebSocket read failed: %v", err)
	}
	return string(data)
}
