package server

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	events chan Event
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{events: make(chan Event, 16)}
}

func (p *recordingPublisher) Submit(ctx context.Context, ev Event) error {
	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *recordingPublisher) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-p.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (p *recordingPublisher) assertEmpty(t *testing.T) {
	t.Helper()
	select {
	case ev := <-p.events:
		t.Fatalf("unexpected event %#v", ev)
	default:
	}
}

type readResult struct {
	data string
	err  error
}

// scriptedConn replays a fixed sequence of read results, then reports EOF.
type scriptedConn struct {
	reads  []readResult
	writes []string
	closed bool
}

func (s *scriptedConn) Read(p []byte) (int, error) {
	if len(s.reads) == 0 {
		return 0, io.EOF
	}
	r := s.reads[0]
	s.reads = s.reads[1:]
	return copy(p, r.data), r.err
}

func (s *scriptedConn) Write(p []byte) (int, error) {
	if s.closed {
		return 0, net.ErrClosed
	}
	s.writes = append(s.writes, string(p))
	return len(p), nil
}

func (s *scriptedConn) Close() error {
	s.closed = true
	return nil
}

func (s *scriptedConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 4242}
}

func startClient(t *testing.T, conn Conn, pub EventPublisher) <-chan error {
	t.Helper()
	cfg := DefaultConfig()
	client := NewClient(conn, pub, cfg, zap.NewNop())
	done := make(chan error, 1)
	go func() {
		done <- client.Run(context.Background())
	}()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not return")
		return nil
	}
}

func nextConnected(t *testing.T, pub *recordingPublisher) Connected {
	t.Helper()
	connected, ok := pub.next(t).(Connected)
	require.True(t, ok, "first event must be Connected")
	require.NotEmpty(t, connected.ConnID)
	return connected
}

func readPrompt(t *testing.T, conn net.Conn) {
	t.Helper()
	buf := make([]byte, len(namePrompt))
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, namePrompt, string(buf))
}

func TestClient_HandshakeRelayAndDisconnect(t *testing.T) {
	server, peer := net.Pipe()
	pub := newRecordingPublisher()
	done := startClient(t, server, pub)

	readPrompt(t, peer)
	_, err := peer.Write([]byte("alice\n"))
	require.NoError(t, err)

	connected := nextConnected(t, pub)
	assert.Equal(t, "alice", connected.Name)
	assert.Equal(t, server.RemoteAddr().String(), connected.Addr)
	assert.Equal(t, server, connected.Output)

	_, err = peer.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, TextReceived{Addr: connected.Addr, ConnID: connected.ConnID, Content: "hello\n"}, pub.next(t))

	require.NoError(t, peer.Close())
	assert.Equal(t, Disconnected{Addr: connected.Addr, ConnID: connected.ConnID}, pub.next(t))

	require.NoError(t, waitRun(t, done))
	pub.assertEmpty(t)
}

func TestClient_HandshakeFailureEmitsNothing(t *testing.T) {
	t.Run("peer closes before sending a name", func(t *testing.T) {
		server, peer := net.Pipe()
		pub := newRecordingPublisher()
		done := startClient(t, server, pub)

		readPrompt(t, peer)
		require.NoError(t, peer.Close())

		var hsErr *HandshakeError
		require.ErrorAs(t, waitRun(t, done), &hsErr)
		assert.Equal(t, "name", hsErr.Step)
		pub.assertEmpty(t)
	})

	t.Run("prompt cannot be written", func(t *testing.T) {
		server, peer := net.Pipe()
		require.NoError(t, peer.Close())
		pub := newRecordingPublisher()
		done := startClient(t, server, pub)

		var hsErr *HandshakeError
		require.ErrorAs(t, waitRun(t, done), &hsErr)
		assert.Equal(t, "prompt", hsErr.Step)
		pub.assertEmpty(t)
	})
}

func TestClient_EmptyNameIsAccepted(t *testing.T) {
	conn := &scriptedConn{reads: []readResult{{data: "\n"}}}
	pub := newRecordingPublisher()
	done := startClient(t, conn, pub)

	connected := nextConnected(t, pub)
	assert.Equal(t, "", connected.Name)
	assert.Equal(t, Disconnected{Addr: "192.0.2.7:4242", ConnID: connected.ConnID}, pub.next(t))
	require.NoError(t, waitRun(t, done))
	assert.Equal(t, []string{namePrompt}, conn.writes)
}

func TestClient_ReadErrorsDoNotEndTheLoop(t *testing.T) {
	conn := &scriptedConn{reads: []readResult{
		{data: "bob\n"},
		{err: errors.New("transient glitch")},
		{data: "after\n"},
		{data: "with error\n", err: errors.New("late glitch")},
	}}
	pub := newRecordingPublisher()
	done := startClient(t, conn, pub)

	id := nextConnected(t, pub).ConnID
	assert.Equal(t, TextReceived{Addr: "192.0.2.7:4242", ConnID: id, Content: "after\n"}, pub.next(t))
	assert.Equal(t, TextReceived{Addr: "192.0.2.7:4242", ConnID: id, Content: "with error\n"}, pub.next(t))
	assert.Equal(t, Disconnected{Addr: "192.0.2.7:4242", ConnID: id}, pub.next(t))
	require.NoError(t, waitRun(t, done))
}

func TestClient_DeadConnectionEndsTheLoop(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "closed locally", err: net.ErrClosed},
		{name: "reset by peer", err: &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF},
		{name: "closed pipe", err: io.ErrClosedPipe},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &scriptedConn{reads: []readResult{
				{data: "bob\n"},
				{err: tt.err},
				{data: "never read\n"},
			}}
			pub := newRecordingPublisher()
			done := startClient(t, conn, pub)

			id := nextConnected(t, pub).ConnID
			assert.Equal(t, Disconnected{Addr: "192.0.2.7:4242", ConnID: id}, pub.next(t))
			require.NoError(t, waitRun(t, done))
			pub.assertEmpty(t)
		})
	}
}

func TestClient_LossyDecoding(t *testing.T) {
	conn := &scriptedConn{reads: []readResult{
		{data: "b\xffob\n"},
		{data: "\xfe\xffhi\n"},
	}}
	pub := newRecordingPublisher()
	done := startClient(t, conn, pub)

	connected := nextConnected(t, pub)
	assert.Equal(t, "b\uFFFDob", connected.Name)

	text := pub.next(t).(TextReceived)
	assert.Equal(t, "\uFFFD\uFFFDhi\n", text.Content)

	assert.IsType(t, Disconnected{}, pub.next(t))
	require.NoError(t, waitRun(t, done))
}

type failingPublisher struct {
	err error
}

func (p failingPublisher) Submit(context.Context, Event) error {
	return p.err
}

func TestClient_StopsWhenPublisherGivesUp(t *testing.T) {
	conn := &scriptedConn{reads: []readResult{{data: "bob\n"}, {data: "unsent\n"}}}
	client := NewClient(conn, failingPublisher{err: ErrHubStopped}, DefaultConfig(), zap.NewNop())

	err := client.Run(context.Background())
	assert.ErrorIs(t, err, ErrHubStopped)
	assert.True(t, conn.closed)
	assert.Len(t, conn.reads, 1)
}

func TestParseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "alice\n", want: "alice"},
		{in: "alice\r\n", want: "alice"},
		{in: "alice", want: "alice"},
		{in: "\n", want: ""},
		{in: "  spaced out  \n", want: "  spaced out  "},
		{in: "two\nlines\n", want: "two\nlines"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseName([]byte(tt.in)))
		})
	}
}
