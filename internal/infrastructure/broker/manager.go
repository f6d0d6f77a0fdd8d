// Package broker owns the single AMQP connection and channel used to publish
// notification events.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Channel is the subset of *amqp.Channel the publisher needs.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
	IsClosed() bool
}

// Connection is the subset of *amqp.Connection the manager needs.
type Connection interface {
	Channel() (Channel, error)
	Close() error
	IsClosed() bool
}

// DialFunc opens a broker connection. It must give up when ctx is done.
type DialFunc func(ctx context.Context, url string) (Connection, error)

var ErrClosed = errors.New("broker manager closed")

// Options configures a Manager.
type Options struct {
	URL string
	// DialTimeout bounds the TCP connect and the AMQP handshake.
	DialTimeout time.Duration
	// RetryAfter is how long a failed dial is reported to later callers
	// before the next dial is attempted.
	RetryAfter time.Duration
}

// Manager lazily creates and caches one connection and channel. All access
// to the cached handles happens while holding lock, a one-slot semaphore so
// that waiting callers can give up on their context.
type Manager struct {
	url        string
	dial       DialFunc
	retryAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time

	lock     chan struct{}
	conn     Connection
	ch       Channel
	closed   bool
	dialErr  error
	failedAt time.Time
}

func NewManager(opts Options, logger *slog.Logger) *Manager {
	return NewManagerWithDialer(opts, Dialer(opts.DialTimeout), logger)
}

func NewManagerWithDialer(opts Options, dial DialFunc, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		url:        opts.URL,
		dial:       dial,
		retryAfter: opts.RetryAfter,
		logger:     logger,
		now:        time.Now,
		lock:       make(chan struct{}, 1),
	}
}

func (m *Manager) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) release() { <-m.lock }

// Connect establishes the channel eagerly. Failures are logged and returned;
// later Channel calls try again.
func (m *Manager) Connect(ctx context.Context) error {
	_, err := m.Channel(ctx)
	return err
}

// Channel returns the cached channel, creating the connection and channel
// when absent or closed. A dial that failed less than RetryAfter ago is not
// repeated; its error is returned instead.
func (m *Manager) Channel(ctx context.Context) (Channel, error) {
	if err := m.acquire(ctx); err != nil {
		return nil, err
	}
	defer m.release()

	if m.closed {
		return nil, ErrClosed
	}
	if m.ch != nil && !m.ch.IsClosed() {
		return m.ch, nil
	}
	m.ch = nil

	if m.conn == nil || m.conn.IsClosed() {
		if m.dialErr != nil && m.now().Sub(m.failedAt) < m.retryAfter {
			return nil, fmt.Errorf("dial broker: %w", m.dialErr)
		}
		conn, err := m.dial(ctx, m.url)
		if err != nil {
			// a caller giving up is not a broker failure
			if ctx.Err() == nil {
				m.dialErr, m.failedAt = err, m.now()
			}
			m.logger.Error("broker connect failed", "error", err)
			return nil, fmt.Errorf("dial broker: %w", err)
		}
		m.conn = conn
		m.dialErr = nil
	}

	ch, err := m.conn.Channel()
	if err != nil {
		m.logger.Error("broker connect failed", "error", err)
		_ = m.conn.Close()
		m.conn = nil
		return nil, fmt.Errorf("open channel: %w", err)
	}
	m.ch = ch
	return ch, nil
}

// Discard drops ch if it is still the cached channel so the next Channel
// call builds a fresh one.
func (m *Manager) Discard(ch Channel) {
	m.lock <- struct{}{}
	defer m.release()
	if ch == nil || m.ch != ch {
		return
	}
	_ = ch.Close()
	m.ch = nil
}

// Close closes the channel and then the connection. Safe to call more than once.
func (m *Manager) Close() error {
	m.lock <- struct{}{}
	defer m.release()
	if m.closed {
		return nil
	}
	m.closed = true

	var errs []error
	if m.ch != nil {
		if err := m.ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close channel: %w", err))
		}
		m.ch = nil
	}
	if m.conn != nil {
		if err := m.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, fmt.Errorf("close connection: %w", err))
		}
		m.conn = nil
	}
	return errors.Join(errs...)
}

// Dialer returns a DialFunc that opens real AMQP connections. timeout bounds
// the TCP connect and the handshake; zero uses the library default.
func Dialer(timeout time.Duration) DialFunc {
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return func(ctx context.Context, url string) (Connection, error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: defaultHeartbeat,
			Locale:    defaultLocale,
			Dial:      dialContext(ctx, timeout),
		})
		if err != nil {
			return nil, err
		}
		return amqpConnection{conn}, nil
	}
}

const (
	defaultDialTimeout = 30 * time.Second
	defaultHeartbeat   = 10 * time.Second
	defaultLocale      = "en_US"
)

// dialContext connects under ctx and leaves a deadline on the socket for the
// handshake. The client clears it once the connection is open.
func dialContext(ctx context.Context, timeout time.Duration) func(network, addr string) (net.Conn, error) {
	return func(network, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		deadline := time.Now().Add(timeout)
		if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
			deadline = ctxDeadline
		}
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}
}

type amqpConnection struct {
	*amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}
