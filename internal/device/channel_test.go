package device_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sortbin/internal/config"
	"sortbin/internal/device"
	"sortbin/internal/logging"
)

// wsRecorder is a WebSocket server that records every text frame it receives.
type wsRecorder struct {
	server   *httptest.Server
	messages chan string
}

func newRecorder(t *testing.T) *wsRecorder {
	t.Helper()
	rec := &wsRecorder{messages: make(chan string, 64)}
	upgrader := websocket.Upgrader{}
	rec.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			rec.messages <- string(data)
		}
	}))
	t.Cleanup(rec.server.Close)
	return rec
}

func (r *wsRecorder) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *wsRecorder) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-r.messages:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device message")
		return ""
	}
}

func closeChannel(t *testing.T, ch *device.Channel) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ch.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestChannelDeliversInOrder(t *testing.T) {
	rec := newRecorder(t)
	ch := device.NewChannel(device.Options{URL: rec.url(), SendInterval: time.Millisecond, Logger: logging.NewNop()})

	want := []string{"bottle:recyclable waste", "user1000 name_alice disposal_correct current_score_100.0", "third"}
	for _, msg := range want {
		if err := ch.Send(msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	for _, expected := range want {
		if got := rec.next(t); got != expected {
			t.Fatalf("got %q, want %q", got, expected)
		}
	}
	closeChannel(t, ch)

	stats := ch.Stats()
	if stats.Sent != 3 || stats.Failed != 0 || stats.Connected {
		t.Fatalf("unexpected stats after close: %#v", stats)
	}
}

func TestChannelDrainsQueueOnClose(t *testing.T) {
	rec := newRecorder(t)
	ch := device.NewChannel(device.Options{URL: rec.url(), SendInterval: 5 * time.Millisecond})
	for _, msg := range []string{"a", "b", "c"} {
		_ = ch.Send(msg)
	}
	closeChannel(t, ch)

	for _, expected := range []string{"a", "b", "c"} {
		if got := rec.next(t); got != expected {
			t.Fatalf("got %q, want %q", got, expected)
		}
	}
	if err := ch.Send("late"); !errors.Is(err, device.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}

type fakeConn struct {
	mu       sync.Mutex
	written  []string
	failNext bool
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		return errors.New("broken pipe")
	}
	c.written = append(c.written, string(data))
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }
func (c *fakeConn) Close() error                     { return nil }

func (c *fakeConn) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.written...)
}

type fakeDialer struct {
	mu        sync.Mutex
	conn      *fakeConn
	failDials int
	dials     int
}

func (d *fakeDialer) Dial(context.Context, string) (device.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failDials > 0 {
		d.failDials--
		return nil, errors.New("connection refused")
	}
	return d.conn, nil
}

func TestAtMostOnceDropsFailedMessage(t *testing.T) {
	dialer := &fakeDialer{conn: &fakeConn{}, failDials: 1}
	ch := device.NewChannel(device.Options{URL: "ws://device/", Dialer: dialer})

	_ = ch.Send("lost")
	_ = ch.Send("kept")
	closeChannel(t, ch)

	if got := dialer.conn.messages(); len(got) != 1 || got[0] != "kept" {
		t.Fatalf("expected only second message delivered, got %v", got)
	}
	stats := ch.Stats()
	if stats.Failed != 1 || stats.Dropped != 1 || stats.Sent != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
	if dialer.dials != 2 {
		t.Fatalf("expected lazy redial on next message, got %d dials", dialer.dials)
	}
}

func TestAtLeastOnceRetriesAfterReconnect(t *testing.T) {
	conn := &fakeConn{failNext: true}
	dialer := &fakeDialer{conn: conn}
	ch := device.NewChannel(device.Options{
		URL:         "ws://device/",
		Dialer:      dialer,
		Delivery:    config.DeliveryAtLeastOnce,
		MaxAttempts: 3,
	})

	_ = ch.Send("important")
	closeChannel(t, ch)

	if got := conn.messages(); len(got) != 1 || got[0] != "important" {
		t.Fatalf("expected retried delivery, got %v", got)
	}
	if dialer.dials != 2 {
		t.Fatalf("expected reconnect before retry, got %d dials", dialer.dials)
	}
	if stats := ch.Stats(); stats.Sent != 1 || stats.Failed != 1 || stats.Dropped != 0 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestAtLeastOnceGivesUpAfterMaxAttempts(t *testing.T) {
	dialer := &fakeDialer{conn: &fakeConn{}, failDials: 10}
	ch := device.NewChannel(device.Options{
		URL:         "ws://device/",
		Dialer:      dialer,
		Delivery:    config.DeliveryAtLeastOnce,
		MaxAttempts: 2,
	})
	_ = ch.Send("doomed")
	closeChannel(t, ch)

	if stats := ch.Stats(); stats.Failed != 2 || stats.Dropped != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestSendDoesNotBlockWhenDeviceUnreachable(t *testing.T) {
	block := make(chan struct{})
	dialer := dialerFunc(func(ctx context.Context, _ string) (device.Conn, error) {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil, errors.New("unreachable")
	})
	ch := device.NewChannel(device.Options{URL: "ws://device/", Dialer: dialer, DialTimeout: time.Second})

	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := ch.Send("msg"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Send blocked for %s", elapsed)
	}
	close(block)
	closeChannel(t, ch)
}

type dialerFunc func(ctx context.Context, url string) (device.Conn, error)

func (f dialerFunc) Dial(ctx context.Context, url string) (device.Conn, error) { return f(ctx, url) }
