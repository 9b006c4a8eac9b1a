package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

// fakeConn feeds scripted frames to the read loop and records writes.
type fakeConn struct {
	mu     sync.Mutex
	frames chan []byte
	writes []string
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan []byte, 16)}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	b, ok := <-f.frames
	if !ok {
		return 0, nil, fmt.Errorf("connection closed")
	}
	return 1, b, nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.writes = append(f.writes, string(b))
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error { return nil }

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.frames)
	}
	return nil
}

func (f *fakeConn) sentActions(action string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, w := range f.writes {
		if strings.Contains(w, `"action":"`+action+`"`) {
			out = append(out, w)
		}
	}
	return out
}

// collector buffers listener callbacks.
type collector struct {
	mu       sync.Mutex
	ticks    []*models.Tick
	errs     []error
	terminal bool
}

func (c *collector) OnTick(t *models.Tick) {
	c.mu.Lock()
	c.ticks = append(c.ticks, t)
	c.mu.Unlock()
}

func (c *collector) OnFeedError(segment string, err error, terminal bool) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	if terminal {
		c.terminal = true
	}
	c.mu.Unlock()
}

func (c *collector) tickCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ticks)
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
	t.Fatal("condition not met in time")
}

func newTestFeed(dial Dialer) (*Client, *collector) {
	c := New("wss://example.test/ws", "tok", []string{"us"}, 0,
		ReconnectConfig{BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond, MaxAttempts: 3},
		logger.Nop(), WithDialer(dial))
	col := &collector{}
	c.AddListener(col)
	return c, col
}

func TestClassifiesTradeAndQuoteFrames(t *testing.T) {
	conn := newFakeConn()
	c, col := newTestFeed(func(ctx context.Context, url string) (Conn, error) {
		return conn, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	conn.frames <- []byte(`{"s":"AAPL","p":229.5,"v":100,"t":1724800000123}`)
	conn.frames <- []byte(`{"s":"AAPL","bp":229.4,"bs":300,"ap":229.6,"as":200,"t":1724800000500}`)
	conn.frames <- []byte(`{"status_code":200,"message":"Authorized"}`)
	conn.frames <- []byte(`{"something":"else"}`)

	waitFor(t, func() bool { return col.tickCount() == 2 })

	col.mu.Lock()
	defer col.mu.Unlock()
	if col.ticks[0].Kind != "trade" || col.ticks[0].Price != 229.5 {
		t.Errorf("trade tick = %+v", col.ticks[0])
	}
	if col.ticks[1].Kind != "quote" || col.ticks[1].BidPrice != 229.4 || col.ticks[1].AskPrice != 229.6 {
		t.Errorf("quote tick = %+v", col.ticks[1])
	}
	if len(col.errs) != 0 {
		t.Errorf("unexpected errors: %v", col.errs)
	}
}

func TestSubscribeCapFailsFast(t *testing.T) {
	conn := newFakeConn()
	c, _ := newTestFeed(func(ctx context.Context, url string) (Conn, error) {
		return conn, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	first := make([]string, 48)
	for i := range first {
		first[i] = fmt.Sprintf("SYM%02d", i)
	}
	if err := c.Subscribe(first); err != nil {
		t.Fatalf("Subscribe 48: %v", err)
	}

	err := c.Subscribe([]string{"AAA", "BBB", "CCC"})
	if err == nil {
		t.Fatal("expected cap error")
	}
	if !strings.Contains(err.Error(), "2 slots remaining") {
		t.Errorf("err = %v", err)
	}
	// Failed request must not partially apply.
	if got := len(c.Symbols()); got != 48 {
		t.Errorf("symbols = %d, want 48", got)
	}
}

func TestResubscribesOnceAfterReconnect(t *testing.T) {
	var mu sync.Mutex
	var conns []*fakeConn
	dial := func(ctx context.Context, url string) (Conn, error) {
		conn := newFakeConn()
		mu.Lock()
		conns = append(conns, conn)
		mu.Unlock()
		return conn, nil
	}
	c, col := newTestFeed(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	if err := c.Subscribe([]string{"AAPL", "MSFT"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	// Drop the first connection; the client should dial a second one.
	mu.Lock()
	first := conns[0]
	mu.Unlock()
	first.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(conns) >= 2 && len(conns[1].sentActions("subscribe")) > 0
	})

	mu.Lock()
	second := conns[1]
	subs := second.sentActions("subscribe")
	mu.Unlock()
	if len(subs) != 1 {
		t.Fatalf("replayed %d subscribe frames, want 1: %v", len(subs), subs)
	}
	if !strings.Contains(subs[0], "AAPL,MSFT") {
		t.Errorf("subscribe frame = %s", subs[0])
	}

	col.mu.Lock()
	gotErr := len(col.errs) > 0
	terminal := col.terminal
	col.mu.Unlock()
	if !gotErr {
		t.Error("listener not told about the drop")
	}
	if terminal {
		t.Error("recovered drop must not be terminal")
	}
}

func TestTerminalAfterExhaustedReconnects(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	conn := newFakeConn()
	dial := func(ctx context.Context, url string) (Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 1 {
			return conn, nil
		}
		return nil, fmt.Errorf("refused")
	}
	c, col := newTestFeed(dial)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	conn.Close()

	waitFor(t, func() bool {
		col.mu.Lock()
		defer col.mu.Unlock()
		return col.terminal
	})
	mu.Lock()
	total := dials
	mu.Unlock()
	if total != 4 { // initial dial + 3 reconnect attempts
		t.Errorf("dials = %d, want 4", total)
	}
}

func TestUnsubscribeSendsFrame(t *testing.T) {
	conn := newFakeConn()
	c, _ := newTestFeed(func(ctx context.Context, url string) (Conn, error) {
		return conn, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer c.Close()

	if err := c.Subscribe([]string{"aapl"}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	c.Unsubscribe([]string{"AAPL", "NEVER"})

	if got := len(c.Symbols()); got != 0 {
		t.Errorf("symbols = %d, want 0", got)
	}
	unsubs := conn.sentActions("unsubscribe")
	if len(unsubs) != 1 || !strings.Contains(unsubs[0], `"AAPL"`) {
		t.Errorf("unsubscribe frames = %v", unsubs)
	}
}
