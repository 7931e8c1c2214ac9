package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xinguang/signaldesk/pkg/trading"
)

// WebSocketOptions configures a WebSocketProvider
type WebSocketOptions struct {
	URL string

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	ReconnectDelay time.Duration

	Logger *zap.Logger
}

// subscribeMessage is sent after every (re)connect
type subscribeMessage struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// WebSocketProvider consumes a JSON tick stream. After connecting it sends
// {"action":"subscribe","symbols":[...]} and expects either single tick
// objects or arrays of them, encoded like trading.Tick.
type WebSocketProvider struct {
	opts   WebSocketOptions
	logger *zap.Logger

	mu   sync.RWMutex
	last map[string]trading.Tick

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWebSocketProvider creates a streaming provider for url
func NewWebSocketProvider(opts WebSocketOptions) *WebSocketProvider {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &WebSocketProvider{
		opts:   opts,
		logger: opts.Logger.Named("websocket"),
		last:   make(map[string]trading.Tick),
	}
}

// ErrNoHistory is returned by streaming providers that keep no bar history
var ErrNoHistory = errors.New("provider has no history")

// Latest returns the last streamed tick for each requested symbol
func (w *WebSocketProvider) Latest(ctx context.Context, symbols []string) ([]trading.Tick, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	ticks := make([]trading.Tick, 0, len(symbols))
	for _, s := range symbols {
		if t, ok := w.last[s]; ok {
			ticks = append(ticks, t)
		}
	}
	return ticks, nil
}

// History is not available on a live stream
func (w *WebSocketProvider) History(ctx context.Context, symbol string, interval Interval, limit int) ([]trading.Tick, error) {
	return nil, ErrNoHistory
}

// Quote builds a quote from the last streamed tick
func (w *WebSocketProvider) Quote(ctx context.Context, symbol string) (*Quote, error) {
	w.mu.RLock()
	t, ok := w.last[symbol]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no data for %s: %w", symbol, trading.ErrNotFound)
	}
	return &Quote{Symbol: symbol, Price: t.Price, High: t.High, Low: t.Low, Volume: t.Volume, Timestamp: t.Timestamp}, nil
}

// Subscribe dials the stream and keeps it connected until ctx is done or
// Close is called. The first dial must succeed.
func (w *WebSocketProvider) Subscribe(ctx context.Context, symbols []string, callback func(trading.Tick)) error {
	symbols = append([]string(nil), symbols...)
	sort.Strings(symbols)

	conn, err := w.connect(ctx, symbols)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			err := w.pump(ctx, conn, callback)
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("stream disconnected, reconnecting", zap.Error(err))

			for {
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.opts.ReconnectDelay):
				}
				conn, err = w.connect(ctx, symbols)
				if err == nil {
					break
				}
				w.logger.Warn("reconnect failed", zap.Error(err))
			}
		}
	}()
	return nil
}

func (w *WebSocketProvider) connect(ctx context.Context, symbols []string) (*websocket.Conn, error) {
	w.logger.Info("connecting", zap.String("url", w.opts.URL))
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.opts.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", w.opts.URL, err)
	}

	conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
	if err := conn.WriteJSON(subscribeMessage{Action: "subscribe", Symbols: symbols}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	return conn, nil
}

// pump reads until the connection fails or ctx is done. A companion
// goroutine sends pings and closes the connection on cancellation.
func (w *WebSocketProvider) pump(ctx context.Context, conn *websocket.Conn, callback func(trading.Tick)) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(w.opts.PingInterval)
		defer func() {
			ticker.Stop()
			conn.Close()
		}()

		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(w.opts.WriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1024 * 1024)
	conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(w.opts.ReadTimeout))

		ticks, err := decodeTicks(message)
		if err != nil {
			w.logger.Debug("skipping message", zap.ByteString("message", message), zap.Error(err))
			continue
		}
		for _, t := range ticks {
			w.mu.Lock()
			w.last[t.Symbol] = t
			w.mu.Unlock()
			callback(t)
		}
	}
}

// decodeTicks accepts a tick object or an array of them. Ticks without a
// symbol or positive price are dropped; high and low default to the price.
func decodeTicks(message []byte) ([]trading.Tick, error) {
	var ticks []trading.Tick
	if len(message) > 0 && message[0] == '[' {
		if err := json.Unmarshal(message, &ticks); err != nil {
			return nil, err
		}
	} else {
		var t trading.Tick
		if err := json.Unmarshal(message, &t); err != nil {
			return nil, err
		}
		ticks = []trading.Tick{t}
	}

	out := ticks[:0]
	for _, t := range ticks {
		if t.Symbol == "" || t.Price <= 0 {
			continue
		}
		if t.High == 0 {
			t.High = t.Price
		}
		if t.Low == 0 {
			t.Low = t.Price
		}
		if t.Timestamp.IsZero() {
			t.Timestamp = time.Now()
		}
		out = append(out, t)
	}
	return out, nil
}

// Name implements Provider
func (w *WebSocketProvider) Name() string {
	return "websocket"
}

// Close stops the stream and waits for the reader to exit
func (w *WebSocketProvider) Close() error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	return nil
}
