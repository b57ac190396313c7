package daemon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sortbin/internal/classify"
	"sortbin/internal/config"
	"sortbin/internal/device"
	"sortbin/internal/identity"
	"sortbin/internal/logging"
	"sortbin/internal/session"
	"sortbin/internal/testsupport"
)

type fixedDetector []classify.Detection

func (d fixedDetector) Detect(context.Context, []byte) ([]classify.Detection, error) {
	return d, nil
}

type fixedClassifier map[string]classify.Category

func (c fixedClassifier) Classify(_ context.Context, items []string) ([]classify.ItemCategory, error) {
	out := make([]classify.ItemCategory, 0, len(items))
	for _, item := range items {
		if category, ok := c[item]; ok {
			out = append(out, classify.ItemCategory{Item: item, Category: category})
		}
	}
	return out, nil
}

type fixedResolver identity.Result

func (r fixedResolver) Resolve(context.Context, string) (identity.Result, error) {
	return identity.Result(r), nil
}

// deviceServer is a WebSocket endpoint standing in for the capture device.
type deviceServer struct {
	server   *httptest.Server
	messages chan string
}

func newDeviceServer(t *testing.T) *deviceServer {
	t.Helper()
	ds := &deviceServer{messages: make(chan string, 32)}
	upgrader := websocket.Upgrader{}
	ds.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ds.messages <- string(data)
		}
	}))
	t.Cleanup(ds.server.Close)
	return ds
}

func (ds *deviceServer) url() string {
	return "ws" + strings.TrimPrefix(ds.server.URL, "http")
}

func (ds *deviceServer) next(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-ds.messages:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for device message")
		return ""
	}
}

// newTestDaemon wires a daemon around a real ledger and device channel with
// fixed detector, classifier, and resolver stubs.
func newTestDaemon(t *testing.T, opts ...testsupport.ConfigOption) (*Daemon, *config.Config) {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := testsupport.MustOpenLedger(t, cfg)
	channel := device.NewChannel(device.OptionsFromConfig(cfg, logging.NewNop()))

	sessionOpts := session.OptionsFromConfig(cfg)
	sessionOpts.Ledger = store
	sessionOpts.Device = channel
	sessionOpts.Processor = classify.NewAggregator(
		fixedDetector{{Label: "Hand", Confidence: 0.99}, {Label: "Bottle", Confidence: 0.91}},
		fixedClassifier{"bottle": classify.Recyclable},
	)
	sessionOpts.Resolver = fixedResolver{Name: "alice"}
	sessionOpts.Logger = logging.NewNop()
	machine, err := session.New(sessionOpts)
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}

	d, err := New(cfg, store, machine, channel, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		d.Close()
	})
	return d, cfg
}
