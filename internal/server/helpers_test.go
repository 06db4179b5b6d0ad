package server

import (
	"encoding/json"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

const eventTimeout = 2 * time.Second

// fakeTransport is an in-memory Transport. Frames pushed with deliver are
// returned by ReadMessage; frames the client writes land in written.
type fakeTransport struct {
	inbound   chan fakeFrame
	written   chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu             sync.Mutex
	pongHandler    func(string) error
	respondToPings bool
	pings          int
	readLimit      int64
}

type fakeFrame struct {
	data []byte
	pong bool
}

func newFakeTransport(respondToPings bool) *fakeTransport {
	return &fakeTransport{
		inbound:        make(chan fakeFrame, 64),
		written:        make(chan []byte, 256),
		closed:         make(chan struct{}),
		respondToPings: respondToPings,
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	for {
		select {
		case <-f.closed:
			return -1, nil, io.EOF
		case fr := <-f.inbound:
			if fr.pong {
				f.mu.Lock()
				h := f.pongHandler
				f.mu.Unlock()
				if h != nil {
					_ = h("")
				}
				continue
			}
			return websocket.TextMessage, fr.data, nil
		}
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	select {
	case f.written <- data:
		return nil
	case <-f.closed:
		return net.ErrClosed
	}
}

func (f *fakeTransport) WriteControl(messageType int, _ []byte, _ time.Time) error {
	select {
	case <-f.closed:
		return net.ErrClosed
	default:
	}
	if messageType != websocket.PingMessage {
		return nil
	}

	f.mu.Lock()
	f.pings++
	respond := f.respondToPings
	f.mu.Unlock()

	if respond {
		select {
		case f.inbound <- fakeFrame{pong: true}:
		default:
		}
	}
	return nil
}

func (f *fakeTransport) SetReadLimit(limit int64) {
	f.mu.Lock()
	f.readLimit = limit
	f.mu.Unlock()
}

func (f *fakeTransport) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	f.pongHandler = h
	f.mu.Unlock()
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

// deliver queues an inbound frame as if the peer had sent it.
func (f *fakeTransport) deliver(t *testing.T, data string) {
	t.Helper()
	select {
	case f.inbound <- fakeFrame{data: []byte(data)}:
	case <-time.After(eventTimeout):
		t.Fatal("inbound queue full")
	}
}

// nextEvent waits for the next frame written to the peer.
func (f *fakeTransport) nextEvent(t *testing.T) Event {
	t.Helper()
	select {
	case frame := <-f.written:
		evt, err := decodeEvent(frame)
		if err != nil {
			t.Fatalf("server wrote invalid frame %q: %v", frame, err)
		}
		return evt
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

// expectEvent waits for the next frame and checks its type.
func (f *fakeTransport) expectEvent(t *testing.T, eventType string) Event {
	t.Helper()
	evt := f.nextEvent(t)
	if evt.Type != eventType {
		t.Fatalf("expected %q event, got %q (payload %s)", eventType, evt.Type, evt.Payload)
	}
	return evt
}

// expectNoEvent asserts nothing is written for d.
func (f *fakeTransport) expectNoEvent(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case frame := <-f.written:
		t.Fatalf("expected no event, got %s", frame)
	case <-time.After(d):
	}
}

func mustPayload[T any](t *testing.T, evt Event) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(evt.Payload, &v); err != nil {
		t.Fatalf("decode %s payload %s: %v", evt.Type, evt.Payload, err)
	}
	return v
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	cfg := NewConfig()
	h := NewHub(cfg, zaptest.NewLogger(t), nil)
	t.Cleanup(func() { _ = h.Shutdown(time.Second) })
	return h
}

// connectFake attaches a client over a fake transport and consumes its init
// and first client-list frames.
func connectFake(t *testing.T, h *Hub, key string, respondToPings bool) (*Client, *fakeTransport) {
	t.Helper()
	f := newFakeTransport(respondToPings)
	c := NewClient(f, deriveID(key), "127.0.0.1:40000", "cid-"+key, h.cfg, h.log)
	if err := h.Attach(c); err != nil {
		t.Fatalf("attach: %v", err)
	}
	f.expectEvent(t, EventInit)
	f.expectEvent(t, EventUpdateClientList)
	return c, f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(eventTimeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
