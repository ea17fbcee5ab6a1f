// Package live subscribes to the backend's notification channel. Each
// Subscription owns one websocket connection and a goroutine that delivers
// notifications and connection-state changes over a channel.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fentz26/reprocess/internal/logging"
	"github.com/fentz26/reprocess/internal/metrics"
	"github.com/fentz26/reprocess/internal/models"
	"github.com/gorilla/websocket"
)

// PingMessage is sent once after every successful connect.
const PingMessage = "ping"

// Kind classifies a Message.
type Kind int

const (
	// KindEvent carries a notification.
	KindEvent Kind = iota
	// KindConnected is sent after every successful connect.
	KindConnected
	// KindReconnecting is sent when an open connection drops and a new
	// attempt is scheduled.
	KindReconnecting
	// KindClosed is the last message before the channel closes.
	KindClosed
)

func (k Kind) String() string {
	switch k {
	case KindEvent:
		return "event"
	case KindConnected:
		return "connected"
	case KindReconnecting:
		return "reconnecting"
	case KindClosed:
		return "closed"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Message is one item delivered by a Subscription.
type Message struct {
	Kind  Kind
	Event models.Event

	// Reconnected is set on KindConnected when an earlier connection of the
	// same subscription was lost. Notifications may have been missed.
	Reconnected bool

	Err error
}

// Config controls reconnect behaviour.
type Config struct {
	Reconnect        bool
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Reconnect:        true,
		InitialBackoff:   500 * time.Millisecond,
		MaxBackoff:       30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Dialer opens subscriptions.
type Dialer struct {
	cfg     Config
	ws      *websocket.Dialer
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewDialer creates a Dialer. logger and m may be nil.
func NewDialer(cfg Config, logger *slog.Logger, m *metrics.Metrics) *Dialer {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	return &Dialer{
		cfg: cfg,
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger:  logging.OrDiscard(logger),
		metrics: m,
	}
}

// Subscription is one live connection, re-established on failure when
// reconnect is enabled.
type Subscription struct {
	scope  string
	url    func() string
	d      *Dialer
	out    chan Message
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe starts a subscription in the background. url is evaluated on
// every connect so a refreshed token is picked up. scope names the owner in
// logs.
func (d *Dialer) Subscribe(ctx context.Context, scope string, url func() string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		scope:  scope,
		url:    url,
		d:      d,
		out:    make(chan Message, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// Messages returns the delivery channel. It is closed after KindClosed.
func (s *Subscription) Messages() <-chan Message {
	return s.out
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.once.Do(s.cancel)
	<-s.done
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	log := s.d.logger.With("scope", s.scope)
	connectedBefore := false

	for {
		conn, err := s.connect(ctx, log)
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("live channel giving up", "error", err)
			}
			s.emit(ctx, Message{Kind: KindClosed, Err: err}, true)
			return
		}

		if connectedBefore {
			s.d.metrics.RecordReconnect()
			log.Info("live channel reconnected")
		} else {
			log.Debug("live channel connected")
		}
		s.emit(ctx, Message{Kind: KindConnected, Reconnected: connectedBefore}, false)
		connectedBefore = true

		err = s.read(ctx, conn, log)
		s.d.metrics.ConnectionClosed()

		if ctx.Err() != nil {
			s.emit(ctx, Message{Kind: KindClosed}, true)
			return
		}
		if errors.Is(err, ErrUnauthorized) || !s.d.cfg.Reconnect {
			log.Warn("live channel closed", "error", err)
			s.emit(ctx, Message{Kind: KindClosed, Err: err}, true)
			return
		}
		log.Warn("live channel dropped, reconnecting", "error", err)
		s.emit(ctx, Message{Kind: KindReconnecting, Err: err}, false)
	}
}

// connect dials until it succeeds, the token is rejected, or ctx ends. With
// reconnect disabled a single attempt is made.
func (s *Subscription) connect(ctx context.Context, log *slog.Logger) (*websocket.Conn, error) {
	dial := func() (*websocket.Conn, error) {
		conn, resp, err := s.d.ws.DialContext(ctx, s.url(), nil)
		if err != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return nil, backoff.Permanent(fmt.Errorf("%w: handshake status %d", ErrUnauthorized, resp.StatusCode))
			}
			return nil, fmt.Errorf("%w: %w", ErrConnectivity, err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(PingMessage)); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: ping: %w", ErrConnectivity, err)
		}
		s.d.metrics.ConnectionOpened()
		return conn, nil
	}

	if !s.d.cfg.Reconnect {
		conn, err := dial()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Unwrap()
		}
		return conn, err
	}

	for {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = s.d.cfg.InitialBackoff
		eb.MaxInterval = s.d.cfg.MaxBackoff

		conn, err := backoff.Retry(ctx, dial,
			backoff.WithBackOff(eb),
			backoff.WithNotify(func(err error, next time.Duration) {
				log.Debug("live dial failed", "error", err, "retry_in", next)
			}),
		)
		if err == nil {
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrUnauthorized) {
			return nil, err
		}
		// The retry budget ran out; start a fresh one.
		log.Warn("live channel still unreachable", "error", err)
	}
}

// read delivers notifications until the connection fails or ctx ends.
func (s *Subscription) read(ctx context.Context, conn *websocket.Conn, log *slog.Logger) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
		case <-stop:
			conn.Close()
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, CloseUnauthorized) {
				return ErrUnauthorized
			}
			return fmt.Errorf("%w: %w", ErrConnectivity, err)
		}

		ev, ok := decodeEvent(data)
		if !ok {
			s.d.metrics.RecordMalformed()
			log.Debug("dropping malformed notification", "payload", truncate(string(data), 120))
			continue
		}
		if !s.emit(ctx, Message{Kind: KindEvent, Event: ev}, false) {
			return ctx.Err()
		}
	}
}

// emit delivers m unless ctx has ended. final messages are delivered even
// after cancellation when the buffer has room.
func (s *Subscription) emit(ctx context.Context, m Message, final bool) bool {
	if final {
		select {
		case s.out <- m:
		default:
		}
		return true
	}
	select {
	case s.out <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

// decodeEvent parses a notification. Anything that is not a JSON object is
// malformed.
func decodeEvent(data []byte) (models.Event, bool) {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		return models.Event{}, false
	}
	var ev models.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return models.Event{}, false
	}
	return ev, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
