package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hotmic/internal/domain"
	"hotmic/internal/ports"
)

const (
	// CloseAbnormal is reported when the peer vanished without a close frame.
	CloseAbnormal = websocket.CloseAbnormalClosure

	sessionIDParam = "session_id"
	closeTimeout   = 2 * time.Second
)

// Config controls the agent websocket endpoint.
type Config struct {
	ServerURL        string
	Path             string
	HandshakeTimeout time.Duration
}

// WebSocketTransport opens agent connections over gorilla/websocket.
type WebSocketTransport struct {
	cfg    Config
	dialer *websocket.Dialer
	logger *zap.Logger
}

func NewWebSocketTransport(cfg Config, logger *zap.Logger) *WebSocketTransport {
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://localhost:8000"
	}
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketTransport{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadBufferSize:   16 * 1024,
			WriteBufferSize:  8 * 1024,
		},
		logger: logger,
	}
}

// Open dials the agent. The connection is closed when ctx is cancelled.
func (t *WebSocketTransport) Open(ctx context.Context, target ports.ConnectTarget) (ports.Connection, error) {
	wsURL, err := BuildURL(t.cfg.ServerURL, t.cfg.Path, target)
	if err != nil {
		return nil, &domain.ConnectError{Cause: err}
	}
	redacted := RedactURL(wsURL)

	if missing := target.Credentials.Missing(); len(missing) > 0 {
		return nil, &domain.ConnectError{
			Target: redacted,
			Cause:  fmt.Errorf("%w: %s", domain.ErrMissingCredentials, strings.Join(missing, ", ")),
		}
	}

	conn, resp, err := t.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %s)", err, resp.Status)
		}
		return nil, &domain.ConnectError{Target: redacted, Cause: err}
	}
	t.logger.Info("agent connection open", zap.String("url", redacted), zap.String("sessionID", target.SessionID))

	c := &wsConnection{
		conn:    conn,
		logger:  t.logger.With(zap.String("sessionID", target.SessionID)),
		units:   make(chan []byte, 64),
		frames:  make(chan []byte, 32),
		closing: make(chan struct{}),
		readEnd: make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.state.Store(domain.ConnOpen)

	c.wg.Add(2)
	go c.readLoop()
	go c.writeLoop()
	go func() {
		c.wg.Wait()
		_ = conn.Close()
		c.state.Store(domain.ConnClosed)
		c.logger.Debug("agent connection closed",
			zap.Int("code", c.info.Code),
			zap.String("reason", c.info.Reason),
			zap.Bool("local", c.info.Local))
		close(c.done)
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = c.Close()
		case <-c.done:
		}
	}()

	return c, nil
}

type wsConnection struct {
	conn   *websocket.Conn
	logger *zap.Logger

	state atomic.Value

	units   chan []byte
	frames  chan []byte
	closing chan struct{}
	readEnd chan struct{}
	done    chan struct{}

	wg sync.WaitGroup

	closeOnce sync.Once
	local     atomic.Bool

	infoOnce sync.Once
	info     domain.CloseInfo
}

func (c *wsConnection) State() domain.ConnState {
	return c.state.Load().(domain.ConnState)
}

// Send queues one binary frame without blocking. Frames are dropped when
// the connection is not open or the write queue is full.
func (c *wsConnection) Send(frame []byte) bool {
	if len(frame) == 0 || c.State() != domain.ConnOpen {
		return false
	}
	select {
	case c.frames <- frame:
		return true
	default:
		return false
	}
}

func (c *wsConnection) Units() <-chan []byte {
	return c.units
}

func (c *wsConnection) Done() <-chan struct{} {
	return c.done
}

// CloseInfo is valid once Done is closed.
func (c *wsConnection) CloseInfo() domain.CloseInfo {
	select {
	case <-c.done:
		return c.info
	default:
		return domain.CloseInfo{}
	}
}

func (c *wsConnection) Close() error {
	c.closeOnce.Do(func() {
		c.local.Store(true)
		if c.State() == domain.ConnOpen {
			c.state.Store(domain.ConnClosing)
		}
		close(c.closing)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))

		select {
		case <-c.readEnd:
		case <-time.After(closeTimeout):
			_ = c.conn.Close()
		}
	})
	<-c.done
	return nil
}

func (c *wsConnection) setInfo(err error) {
	c.infoOnce.Do(func() {
		info := domain.CloseInfo{Code: CloseAbnormal, Local: c.local.Load()}
		var closeErr *websocket.CloseError
		switch {
		case errors.As(err, &closeErr):
			info.Code = closeErr.Code
			info.Reason = closeErr.Text
		case info.Local:
			info.Code = websocket.CloseNormalClosure
		case err != nil:
			info.Reason = err.Error()
		}
		c.info = info
	})
}

func (c *wsConnection) readLoop() {
	defer c.wg.Done()
	defer close(c.readEnd)
	defer close(c.units)

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.setInfo(err)
			if c.State() == domain.ConnOpen {
				c.state.Store(domain.ConnClosing)
			}
			return
		}

		select {
		case c.units <- payload:
		case <-c.closing:
			c.setInfo(nil)
			return
		}
	}
}

func (c *wsConnection) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case frame := <-c.frames:
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				c.logger.Debug("frame write failed", zap.Error(err))
				_ = c.conn.Close()
				return
			}
		case <-c.closing:
			return
		case <-c.readEnd:
			return
		}
	}
}

// BuildURL derives the websocket endpoint from the HTTP server base URL and
// attaches the session id and every credential as query parameters.
func BuildURL(serverURL, path string, target ports.ConnectTarget) (string, error) {
	base := strings.TrimSpace(serverURL)
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	wsURL, err := url.Parse(base + path)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if wsURL.Scheme != "ws" && wsURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid server URL scheme %q", wsURL.Scheme)
	}

	query := wsURL.Query()
	if target.SessionID != "" {
		query.Set(sessionIDParam, target.SessionID)
	}
	names := make([]string, 0, len(target.Credentials))
	for name := range target.Credentials {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if value := target.Credentials[name]; value != "" {
			query.Set(name, value)
		}
	}
	wsURL.RawQuery = query.Encode()
	return wsURL.String(), nil
}

// RedactURL masks every query value except the session id.
func RedactURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	query := parsed.Query()
	for name := range query {
		if name != sessionIDParam {
			query.Set(name, "REDACTED")
		}
	}
	parsed.RawQuery = query.Encode()
	return parsed.String()
}
