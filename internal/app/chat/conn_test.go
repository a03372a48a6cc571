package chat

import (
	"errors"
	"net"
	"slices"
	"sync"
	"testing"
	"time"

	"relaychat/internal/app/protocol"
	"relaychat/internal/configs"
	"relaychat/internal/pkg/errs"
)

const testTimeout = 2 * time.Second

// fakeConn is an in-memory transport.Conn. Frames pushed to in are read by the
// server; frames the server writes appear on out. Write deadlines are honored
// so a peer that never drains out looks like a stalled socket.
type fakeConn struct {
	in     chan protocol.Message
	out    chan protocol.Message
	closed chan struct{}
	once   sync.Once

	mu            sync.Mutex
	writeDeadline time.Time
}

func newFakeConn(outBuffer int) *fakeConn {
	return &fakeConn{
		in:     make(chan protocol.Message, 64),
		out:    make(chan protocol.Message, outBuffer),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (protocol.Message, error) {
	select {
	case m := <-f.in:
		return m, nil
	case <-f.closed:
		return protocol.Message{}, net.ErrClosed
	}
}

func (f *fakeConn) WriteMessage(m protocol.Message) error {
	f.mu.Lock()
	deadline := f.writeDeadline
	f.mu.Unlock()

	var timeout <-chan time.Time
	if !deadline.IsZero() {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}

	select {
	case f.out <- m:
		return nil
	case <-f.closed:
		return net.ErrClosed
	case <-timeout:
		return errors.New("write timeout")
	}
}

func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (f *fakeConn) SetWriteDeadline(t time.Time) error {
	f.mu.Lock()
	f.writeDeadline = t
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) RemoteAddr() string { return "127.0.0.1:40000" }

func (f *fakeConn) Kind() string { return "fake" }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func testConfig() *configs.AppConfig {
	return &configs.AppConfig{
		Environment:       "test",
		Host:              "127.0.0.1",
		Port:              0,
		PollInterval:      20 * time.Millisecond,
		IdleTimeout:       time.Minute,
		WriteTimeout:      100 * time.Millisecond,
		MaxClients:        100,
		MaxChannels:       1000,
		MaxChannelMembers: 1000,
		MaxChannelHistory: 100,
		AcceptRate:        1000,
		AcceptBurst:       1000,
	}
}

// newTestServer returns a server whose hub is running but which has no
// listener; peers are attached with connect.
func newTestServer(t *testing.T, cfg *configs.AppConfig) *Server {
	t.Helper()

	s := NewServer(cfg)
	s.startHub()
	t.Cleanup(s.Shutdown)

	return s
}

type testPeer struct {
	conn *fakeConn
	id   protocol.UserID
	done chan error
}

func connect(t *testing.T, s *Server) *testPeer {
	t.Helper()
	return connectBuffered(t, s, 1024)
}

func connectBuffered(t *testing.T, s *Server, outBuffer int) *testPeer {
	t.Helper()

	p := &testPeer{conn: newFakeConn(outBuffer), done: make(chan error, 1)}
	go func() { p.done <- s.ServeConn(p.conn) }()

	p.id = p.expectControl(t, protocol.TypeUserIDGet).UserID

	// the global sync may span several frames; the new user is listed last
	for {
		ids := p.expectControl(t, protocol.TypeUserListSync).UserIDs
		if slices.Contains(ids, p.id) {
			break
		}
	}

	return p
}

func (p *testPeer) next(t *testing.T) protocol.Message {
	t.Helper()

	select {
	case m := <-p.conn.out:
		return m
	case <-time.After(testTimeout):
		t.Fatalf("user %d: timed out waiting for a frame", p.id)
		return protocol.Message{}
	}
}

func (p *testPeer) expectControl(t *testing.T, want protocol.MessageType) protocol.Control {
	t.Helper()

	m := p.next(t)
	if !m.FromServer() {
		t.Fatalf("user %d: expected a control frame, got chat from %d on %d", p.id, m.Sender, m.Channel)
	}
	ctrl, err := m.Control()
	if err != nil {
		t.Fatalf("user %d: undecodable control: %v", p.id, err)
	}
	if ctrl.Type != want {
		t.Fatalf("user %d: expected %s but got %s (%+v)", p.id, want, ctrl.Type, ctrl)
	}
	return ctrl
}

func (p *testPeer) expectError(t *testing.T, code int) {
	t.Helper()

	ctrl := p.expectControl(t, protocol.TypeError)
	if int(ctrl.Code) != code {
		t.Fatalf("user %d: expected error code %d but got %d (%s)", p.id, code, ctrl.Code, ctrl.Text)
	}
}

// expectQuiet fails if any frame arrives within a short window.
func (p *testPeer) expectQuiet(t *testing.T) {
	t.Helper()

	select {
	case m := <-p.conn.out:
		t.Fatalf("user %d: expected no frame, got one on channel %d from %d", p.id, m.Channel, m.Sender)
	case <-time.After(100 * time.Millisecond):
	}
}

func (p *testPeer) send(m protocol.Message) {
	p.conn.in <- m
}

func (p *testPeer) sendControl(ctrl protocol.Control) {
	p.send(protocol.NewControlMessage(protocol.ChannelServer, ctrl, time.Now()))
}

func (p *testPeer) say(channel protocol.ChannelID, text string) {
	p.send(protocol.NewTextMessage(channel, text, time.Now()))
}

func (p *testPeer) setName(t *testing.T, name string, audience ...*testPeer) {
	t.Helper()

	p.sendControl(protocol.Control{Type: protocol.TypeUserNameSet, Text: name})
	for _, other := range audience {
		ctrl := other.expectControl(t, protocol.TypeUserJoin)
		if ctrl.UserID != p.id || ctrl.Text != name {
			t.Fatalf("expected UserJoin for %d %q, got %+v", p.id, name, ctrl)
		}
	}
}

func (p *testPeer) disconnect(t *testing.T) {
	t.Helper()

	p.conn.Close()
	select {
	case err := <-p.done:
		if err != nil {
			t.Fatalf("ServeConn returned %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatalf("user %d: ServeConn did not return", p.id)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func assertIDs(t *testing.T, want, got []protocol.UserID) {
	t.Helper()

	if !slices.Equal(want, got) {
		t.Fatalf("expected IDs %v but got %v", want, got)
	}
}

func assertCode(t *testing.T, want int, err error) {
	t.Helper()

	if got := errs.Code(err); got != want {
		t.Fatalf("expected error code %d but got %d (%v)", want, got, err)
	}
}
