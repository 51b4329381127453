// Package natsclient provides a thin NATS client used by the real-time
// output stage and the key-value action driver. It wraps connection
// management, JSON publishing and JetStream key-value access.
package natsclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/sctg-development/rust-photoacoustic-sub001/errors"
)

// Error variables for common connection states.
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrClosed       = stderrors.New("client closed")
)

// Client manages a NATS connection shared by all components that publish
// analytics or action state.
type Client struct {
	url    string
	logger *slog.Logger

	name          string
	timeout       time.Duration
	reconnectWait time.Duration
	maxReconnects int
	username      string
	password      string

	mu     sync.RWMutex
	conn   *nats.Conn
	js     jetstream.JetStream
	closed bool
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithName sets the client name reported to the server.
func WithName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the connect timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithReconnect sets the reconnect policy. maxReconnects < 0 means retry
// forever.
func WithReconnect(wait time.Duration, maxReconnects int) ClientOption {
	return func(c *Client) {
		c.reconnectWait = wait
		c.maxReconnects = maxReconnects
	}
}

// WithUserInfo sets username/password authentication.
func WithUserInfo(username, password string) ClientOption {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// NewClient creates a client for the given server URL. No I/O happens
// until Connect.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		name:          "photoacoustic",
		timeout:       5 * time.Second,
		reconnectWait: 2 * time.Second,
		maxReconnects: -1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection and the JetStream context.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.WrapFatal(ErrClosed, "natsclient", "connect", "checking state")
	}
	if c.conn != nil && c.conn.IsConnected() {
		return nil
	}

	opts := []nats.Option{
		nats.Name(c.name),
		nats.Timeout(c.timeout),
		nats.ReconnectWait(c.reconnectWait),
		nats.MaxReconnects(c.maxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if c.username != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}

	conn, err := nats.Connect(c.url, opts...)
	if err != nil {
		return errors.WrapDriver(err, "natsclient", "connect", "dialing server")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapDriver(err, "natsclient", "connect", "creating jetstream context")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("nats connected", "url", conn.ConnectedUrl())

	// Context cancellation during the dial window is handled by nats.Connect
	// timeout; an already-cancelled context still aborts.
	if err := ctx.Err(); err != nil {
		c.closeLocked()
		return errors.WrapDriver(err, "natsclient", "connect", "honoring context")
	}
	return nil
}

// Publish sends raw bytes to a subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapDriver(ErrNotConnected, "natsclient", "publish", "checking connection")
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapDriver(err, "natsclient", "publish", "publishing message")
	}
	return nil
}

// PublishJSON marshals the value and publishes it.
func (c *Client) PublishJSON(subject string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.WrapValidation(err, "natsclient", "publish", "marshaling payload")
	}
	return c.Publish(subject, data)
}

// Subscribe registers a handler for a subject. The returned subscription
// must be unsubscribed by the caller when no longer needed.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return nil, errors.WrapDriver(ErrNotConnected, "natsclient", "subscribe", "checking connection")
	}
	sub, err := conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapDriver(err, "natsclient", "subscribe", "subscribing to subject")
	}
	return sub, nil
}

// KeyValue opens (or creates) a JetStream key-value bucket.
func (c *Client) KeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, errors.WrapDriver(ErrNotConnected, "natsclient", "keyvalue", "checking connection")
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	})
	if err != nil {
		return nil, errors.WrapDriver(err, "natsclient", "keyvalue", "opening bucket")
	}
	return kv, nil
}

// IsConnected reports whether the underlying connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains and closes the connection. Safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.closed = true
}

func (c *Client) closeLocked() {
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
		c.conn = nil
		c.js = nil
	}
}
