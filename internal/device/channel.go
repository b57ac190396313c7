package device

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"sortbin/internal/config"
	"sortbin/internal/logging"
)

// ErrClosed is returned by Send after Close has been called.
var ErrClosed = errors.New("device channel closed")

// Options configures a Channel.
type Options struct {
	URL          string
	SendInterval time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Delivery     string
	MaxAttempts  int
	Dialer       Dialer
	Logger       *slog.Logger
}

// OptionsFromConfig maps the [device] section onto Options.
func OptionsFromConfig(cfg *config.Config, logger *slog.Logger) Options {
	return Options{
		URL:          cfg.Device.URL,
		SendInterval: time.Duration(cfg.Device.SendIntervalMillis) * time.Millisecond,
		DialTimeout:  time.Duration(cfg.Device.DialTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Device.WriteTimeoutSeconds) * time.Second,
		Delivery:     cfg.Device.Delivery,
		MaxAttempts:  cfg.Device.MaxAttempts,
		Logger:       logger,
	}
}

// Stats counts delivery outcomes since the channel started.
type Stats struct {
	Queued    int    `json:"queued"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
	Dropped   int    `json:"dropped"`
	Connected bool   `json:"connected"`
	LastError string `json:"last_error,omitempty"`
}

type envelope struct {
	text     string
	attempts int
	sentinel bool
}

// Channel is a single-consumer outbound message queue bound to one device.
type Channel struct {
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	queue   []envelope
	closing bool
	stats   Stats

	wake chan struct{}
	done chan struct{}

	// conn is owned by the worker goroutine.
	conn Conn
}

// NewChannel starts the delivery worker.
func NewChannel(opts Options) *Channel {
	if opts.Dialer == nil {
		opts.Dialer = WebSocketDialer{HandshakeTimeout: opts.DialTimeout}
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.SendInterval < 0 {
		opts.SendInterval = 0
	}
	if opts.Delivery == "" {
		opts.Delivery = config.DeliveryAtMostOnce
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	c := &Channel{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "device"),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

// Send queues text for delivery. It never blocks on the network.
func (c *Channel) Send(text string) error {
	c.mu.Lock()
	if c.closing {
		c.stats.Dropped++
		c.mu.Unlock()
		return ErrClosed
	}
	c.queue = append(c.queue, envelope{text: text})
	c.stats.Queued = len(c.queue)
	c.mu.Unlock()
	c.signal()
	return nil
}

// Close queues the shutdown sentinel and waits for the worker to drain the
// queue and exit, or for ctx to expire.
func (c *Channel) Close(ctx context.Context) error {
	c.mu.Lock()
	if !c.closing {
		c.closing = true
		c.queue = append(c.queue, envelope{sentinel: true})
	}
	c.mu.Unlock()
	c.signal()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of delivery counters.
func (c *Channel) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Channel) next() envelope {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			msg := c.queue[0]
			c.queue[0] = envelope{}
			c.queue = c.queue[1:]
			c.stats.Queued = len(c.queue)
			c.mu.Unlock()
			return msg
		}
		c.mu.Unlock()
		<-c.wake
	}
}

func (c *Channel) run() {
	defer close(c.done)
	defer c.disconnect()

	for {
		msg := c.next()
		if msg.sentinel {
			return
		}
		c.deliver(msg)
		if c.opts.SendInterval > 0 {
			time.Sleep(c.opts.SendInterval)
		}
	}
}

func (c *Channel) deliver(msg envelope) {
	for {
		msg.attempts++
		err := c.write(msg.text)
		if err == nil {
			c.record(func(s *Stats) { s.Sent++ })
			c.logger.Debug("device message sent", logging.String("message", msg.text))
			return
		}

		c.record(func(s *Stats) {
			s.Failed++
			s.LastError = err.Error()
		})
		retry := c.opts.Delivery == config.DeliveryAtLeastOnce && msg.attempts < c.opts.MaxAttempts
		impact := "message dropped"
		if retry {
			impact = "message will be retried"
		}
		logging.WarnWithContext(c.logger, "device delivery failed", "device_delivery_failed",
			logging.String("message", msg.text),
			logging.Int("attempt", msg.attempts),
			logging.String("delivery", c.opts.Delivery),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check that the bin controller is powered and reachable at device.url"),
			logging.String(logging.FieldImpact, impact),
		)
		if !retry {
			c.record(func(s *Stats) { s.Dropped++ })
			return
		}
		if c.opts.SendInterval > 0 {
			time.Sleep(c.opts.SendInterval)
		}
	}
}

func (c *Channel) write(text string) error {
	if c.conn == nil {
		ctx, cancel := context.WithTimeout(context.Background(), c.opts.DialTimeout)
		conn, err := c.opts.Dialer.Dial(ctx, c.opts.URL)
		cancel()
		if err != nil {
			return err
		}
		c.conn = conn
		c.record(func(s *Stats) { s.Connected = true })
		c.logger.Info("device connected",
			logging.String("url", c.opts.URL),
			logging.String(logging.FieldEventType, "device_connected"),
		)
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
		c.disconnect()
		return err
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		c.disconnect()
		return err
	}
	return nil
}

func (c *Channel) disconnect() {
	if c.conn == nil {
		return
	}
	_ = c.conn.Close()
	c.conn = nil
	c.record(func(s *Stats) { s.Connected = false })
}

func (c *Channel) record(fn func(*Stats)) {
	c.mu.Lock()
	fn(&c.stats)
	c.mu.Unlock()
}
