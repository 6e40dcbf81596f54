package hub

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/contrib/websocket"
)

// fakeConn records writes and blocks reads until closed.
type fakeConn struct {
	writes chan []byte
	frames chan []byte // close frame payloads
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		writes: make(chan []byte, 16),
		frames: make(chan []byte, 1),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) SetReadLimit(int64) {}
func (f *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	switch messageType {
	case websocket.TextMessage:
		f.writes <- data
	case websocket.CloseMessage:
		f.frames <- data
	}
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestHubBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)
	waitFor(t, h.IsRunning)

	conns := []*fakeConn{newFakeConn(), newFakeConn()}
	for _, c := range conns {
		go NewClient(h, c).Run()
	}
	waitFor(t, func() bool { return h.ClientCount() == 2 })

	if err := h.BroadcastJSON(map[string]int{"faces": 2}); err != nil {
		t.Fatalf("BroadcastJSON failed: %v", err)
	}

	for i, c := range conns {
		select {
		case got := <-c.writes:
			if string(got) != `{"faces":2}` {
				t.Errorf("client %d got %s", i, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("client %d received nothing", i)
		}
	}
}

func TestHubUnregister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := New("test", nil)
	go h.Run(ctx)

	c := newFakeConn()
	go NewClient(h, c).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	c.Close()
	waitFor(t, func() bool { return h.ClientCount() == 0 })
}

func TestHubStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", nil)

	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := newFakeConn()
	done := make(chan struct{})
	go func() {
		NewClient(h, c).Run()
		close(done)
	}()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()
	<-stopped
	if h.IsRunning() {
		t.Error("hub still reports running")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not exit after hub stopped")
	}

	// Registering after shutdown must not block
	registered := make(chan struct{})
	go func() {
		NewClient(h, newFakeConn())
		close(registered)
	}()
	select {
	case <-registered:
	case <-time.After(time.Second):
		t.Fatal("NewClient blocked on a stopped hub")
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("test", nil) // not running

	for i := 0; i < 300; i++ {
		h.Broadcast([]byte("x"))
	}
	if h.Dropped() != 300-256 {
		t.Errorf("Dropped() = %d, want %d", h.Dropped(), 300-256)
	}
}

func TestClientGoingAwayOnStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	h := New("test", nil)
	go h.Run(ctx)

	c := newFakeConn()
	go NewClient(h, c).Run()
	waitFor(t, func() bool { return h.ClientCount() == 1 })

	cancel()

	select {
	case frame := <-c.frames:
		if len(frame) < 2 {
			t.Fatalf("close frame too short: %v", frame)
		}
		if code := binary.BigEndian.Uint16(frame); code != websocket.CloseGoingAway {
			t.Errorf("close code = %d, want %d", code, websocket.CloseGoingAway)
		}
		if reason := string(frame[2:]); reason != closeReason {
			t.Errorf("close reason = %q, want %q", reason, closeReason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no close frame sent on shutdown")
	}
}

func TestClientIDsUnique(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h := New("test", nil)
	h.Run(ctx) // stopped hub: NewClient returns without registering

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		c := NewClient(h, newFakeConn())
		if c.ID == "" || seen[c.ID] {
			t.Fatalf("duplicate or empty client ID %q", c.ID)
		}
		seen[c.ID] = true
	}
}
