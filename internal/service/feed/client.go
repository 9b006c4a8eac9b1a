package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// MaxSymbolsPerConn is the provider's hard cap on subscriptions per
// WebSocket connection.
const MaxSymbolsPerConn = 50

// Conn is the subset of a WebSocket connection the client needs.
// *websocket.Conn satisfies it; tests substitute fakes.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteJSON(v interface{}) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a connection to url. The default wraps gorilla's dialer.
type Dialer func(ctx context.Context, url string) (Conn, error)

func gorillaDialer(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// ReconnectConfig bounds the backoff loop after a dropped connection.
type ReconnectConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Client maintains one WebSocket connection per market segment, fans
// incoming trade and quote frames out to registered listeners, and
// reconnects dropped connections with exponential backoff.
type Client struct {
	baseURL      string
	token        string
	pingInterval time.Duration
	reconnect    ReconnectConfig
	dial         Dialer
	log          *logger.Logger
	metrics      repository.Metrics

	mu        sync.Mutex
	listeners []repository.FeedListener
	symbols   map[string]struct{}
	segments  map[string]*segmentConn
	started   bool
}

// Option configures a Client.
type Option func(*Client)

// WithDialer substitutes the connection factory, for tests.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m repository.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a feed client for the given market segments
// (e.g. "us", "us-quote").
func New(baseURL, token string, segments []string, pingInterval time.Duration, rc ReconnectConfig, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		token:        token,
		pingInterval: pingInterval,
		reconnect:    rc,
		dial:         gorillaDialer,
		log:          log,
		symbols:      make(map[string]struct{}),
		segments:     make(map[string]*segmentConn),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, seg := range segments {
		c.segments[seg] = &segmentConn{client: c, segment: seg}
	}
	return c
}

// AddListener registers a tick consumer. Must be called before Start.
func (c *Client) AddListener(l repository.FeedListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Start opens every segment connection and begins streaming. Connections
// that drop later are reconnected in the background.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("feed: already started")
	}
	c.started = true
	c.mu.Unlock()

	for _, sc := range c.segments {
		if err := sc.open(ctx); err != nil {
			return fmt.Errorf("feed %s: %w", sc.segment, err)
		}
		go sc.run(ctx)
	}
	return nil
}

// Subscribe adds symbols to every segment connection. It fails without
// side effects when the request would exceed the per-connection cap,
// reporting how many slots remain.
func (c *Client) Subscribe(symbols []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	fresh := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := c.symbols[s]; !ok {
			fresh = append(fresh, s)
		}
	}
	if len(fresh) == 0 {
		return nil
	}
	if len(c.symbols)+len(fresh) > MaxSymbolsPerConn {
		return fmt.Errorf("feed: subscription cap %d exceeded, %d slots remaining",
			MaxSymbolsPerConn, MaxSymbolsPerConn-len(c.symbols))
	}
	for _, s := range fresh {
		c.symbols[s] = struct{}{}
	}
	for _, sc := range c.segments {
		sc.send(controlMessage{Action: "subscribe", Symbols: strings.Join(fresh, ",")})
	}
	return nil
}

// Unsubscribe removes symbols from every segment connection. Unknown
// symbols are ignored.
func (c *Client) Unsubscribe(symbols []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var gone []string
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if _, ok := c.symbols[s]; ok {
			delete(c.symbols, s)
			gone = append(gone, s)
		}
	}
	if len(gone) == 0 {
		return
	}
	for _, sc := range c.segments {
		sc.send(controlMessage{Action: "unsubscribe", Symbols: strings.Join(gone, ",")})
	}
}

// Symbols returns the current subscription set, sorted.
func (c *Client) Symbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Close shuts every segment connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sc := range c.segments {
		sc.close()
	}
	return nil
}

func (c *Client) snapshotSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (c *Client) emitTick(tick *models.Tick) {
	c.mu.Lock()
	listeners := c.listeners
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnTick(tick)
	}
}

func (c *Client) emitError(segment string, err error, terminal bool) {
	c.mu.Lock()
	listeners := c.listeners
	c.mu.Unlock()
	for _, l := range listeners {
		l.OnFeedError(segment, err, terminal)
	}
}

type controlMessage struct {
	Action  string `json:"action"`
	Symbols string `json:"symbols,omitempty"`
}

// segmentConn owns one WebSocket connection and its read/ping loops.
type segmentConn struct {
	client  *Client
	segment string

	mu     sync.Mutex
	conn   Conn
	closed bool
}

func (sc *segmentConn) url() string {
	return fmt.Sprintf("%s/%s?api_token=%s", sc.client.baseURL, sc.segment, sc.client.token)
}

func (sc *segmentConn) open(ctx context.Context) error {
	conn, err := sc.client.dial(ctx, sc.url())
	if err != nil {
		return err
	}
	sc.mu.Lock()
	sc.conn = conn
	sc.mu.Unlock()

	// Replay the subscription set exactly once per connection.
	if symbols := sc.client.snapshotSymbols(); len(symbols) > 0 {
		sc.send(controlMessage{Action: "subscribe", Symbols: strings.Join(symbols, ",")})
	}
	sc.client.log.Info("feed connected",
		logger.String("segment", sc.segment))
	return nil
}

func (sc *segmentConn) send(msg controlMessage) {
	sc.mu.Lock()
	conn := sc.conn
	sc.mu.Unlock()
	if conn == nil {
		return
	}
	if err := conn.WriteJSON(msg); err != nil {
		sc.client.log.Warn("feed write failed",
			logger.String("segment", sc.segment),
			logger.String("action", msg.Action),
			logger.Error(err))
	}
}

func (sc *segmentConn) close() {
	sc.mu.Lock()
	sc.closed = true
	if sc.conn != nil {
		_ = sc.conn.Close()
		sc.conn = nil
	}
	sc.mu.Unlock()
}

func (sc *segmentConn) isClosed() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.closed
}

func (sc *segmentConn) run(ctx context.Context) {
	go sc.pingLoop(ctx)
	for {
		err := sc.readLoop(ctx)
		if ctx.Err() != nil || sc.isClosed() {
			return
		}
		sc.client.emitError(sc.segment, err, false)
		if !sc.reopen(ctx) {
			return
		}
	}
}

func (sc *segmentConn) pingLoop(ctx context.Context) {
	if sc.client.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(sc.client.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if sc.isClosed() {
				return
			}
			sc.send(controlMessage{Action: "ping"})
		}
	}
}

func (sc *segmentConn) readLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		sc.mu.Lock()
		conn := sc.conn
		sc.mu.Unlock()
		if conn == nil {
			return fmt.Errorf("feed %s: no connection", sc.segment)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed %s read: %w", sc.segment, err)
		}
		sc.handleFrame(data)
	}
}

// reopen dials with exponential backoff plus jitter. It gives up after
// MaxAttempts and reports the failure as terminal.
func (sc *segmentConn) reopen(ctx context.Context) bool {
	rc := sc.client.reconnect
	delay := rc.BaseDelay
	for attempt := 1; rc.MaxAttempts <= 0 || attempt <= rc.MaxAttempts; attempt++ {
		wait := delay + time.Duration(rand.Int63n(int64(delay)/2+1))
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
		if sc.isClosed() {
			return false
		}
		if err := sc.open(ctx); err != nil {
			sc.client.log.Warn("feed reconnect failed",
				logger.String("segment", sc.segment),
				logger.Int("attempt", attempt),
				logger.Error(err))
			delay *= 2
			if delay > rc.MaxDelay {
				delay = rc.MaxDelay
			}
			continue
		}
		if sc.client.metrics != nil {
			sc.client.metrics.RecordFeedReconnect(sc.segment)
		}
		return true
	}
	err := fmt.Errorf("feed %s: gave up after %d reconnect attempts", sc.segment, rc.MaxAttempts)
	sc.client.log.Error("feed terminal failure", logger.Error(err))
	sc.client.emitError(sc.segment, err, true)
	return false
}

// feedFrame is the superset of every frame shape the provider sends.
// Field presence decides the frame kind.
type feedFrame struct {
	Symbol     string   `json:"s"`
	Price      *float64 `json:"p"`
	Volume     float64  `json:"v"`
	BidPrice   *float64 `json:"bp"`
	BidSize    float64  `json:"bs"`
	AskPrice   *float64 `json:"ap"`
	AskSize    float64  `json:"as"`
	Timestamp  int64    `json:"t"` // ms
	StatusCode int      `json:"status_code"`
	Message    string   `json:"message"`
}

func (sc *segmentConn) handleFrame(data []byte) {
	var f feedFrame
	if err := json.Unmarshal(data, &f); err != nil {
		sc.client.log.Debug("feed unknown frame",
			logger.String("segment", sc.segment),
			logger.String("payload", string(data)))
		return
	}
	switch {
	case f.Symbol != "" && f.Price != nil:
		sc.client.emitTick(&models.Tick{
			Symbol:    f.Symbol,
			Kind:      "trade",
			Price:     *f.Price,
			Volume:    f.Volume,
			Timestamp: time.UnixMilli(f.Timestamp).UTC(),
		})
	case f.Symbol != "" && (f.BidPrice != nil || f.AskPrice != nil):
		tick := &models.Tick{
			Symbol:    f.Symbol,
			Kind:      "quote",
			BidSize:   f.BidSize,
			AskSize:   f.AskSize,
			Timestamp: time.UnixMilli(f.Timestamp).UTC(),
		}
		if f.BidPrice != nil {
			tick.BidPrice = *f.BidPrice
		}
		if f.AskPrice != nil {
			tick.AskPrice = *f.AskPrice
		}
		sc.client.emitTick(tick)
	case f.StatusCode != 0:
		// Subscription ack or provider-side error notice.
		if f.StatusCode >= 400 {
			sc.client.emitError(sc.segment, fmt.Errorf("feed %s: provider status %d: %s",
				sc.segment, f.StatusCode, f.Message), false)
			return
		}
		sc.client.log.Debug("feed ack",
			logger.String("segment", sc.segment),
			logger.Int("status", f.StatusCode),
			logger.String("message", f.Message))
	default:
		sc.client.log.Debug("feed unknown frame",
			logger.String("segment", sc.segment),
			logger.String("payload", string(data)))
	}
}
