package kraken

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"SpotAgent/internal/domain/models"
	"SpotAgent/pkg/logger"

	"github.com/gorilla/websocket"
)

const DefaultWebSocketURL = "wss://ws.kraken.com/v2"

// Stream keeps the latest ticker per symbol from the public v2 websocket.
type Stream struct {
	url            string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *logger.Logger
	now            func() time.Time

	mu        sync.RWMutex
	last      map[string]models.Ticker
	connected bool
}

type StreamOption func(*Stream)

func WithReconnectDelay(d time.Duration) StreamOption {
	return func(s *Stream) { s.reconnectDelay = d }
}

func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) { s.pingInterval = d }
}

func WithStreamLogger(l *logger.Logger) StreamOption {
	return func(s *Stream) { s.l = l }
}

// NewStream subscribes to symbols given in canonical "BASE/QUOTE" form,
// which is also the v2 wire form.
func NewStream(url string, symbols []string, opts ...StreamOption) *Stream {
	if url == "" {
		url = DefaultWebSocketURL
	}
	s := &Stream{
		url:            url,
		symbols:        symbols,
		reconnectDelay: 5 * time.Second,
		pingInterval:   30 * time.Second,
		l:              logger.Nop(),
		now:            time.Now,
		last:           map[string]models.Ticker{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Last returns the cached ticker when it is younger than maxAge.
func (s *Stream) Last(symbol string, maxAge time.Duration) (models.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.last[symbol]
	if !ok || t.Last <= 0 {
		return models.Ticker{}, false
	}
	if maxAge > 0 && s.now().Sub(t.Timestamp) > maxAge {
		return models.Ticker{}, false
	}
	return t, true
}

func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Run connects, subscribes and reads until ctx ends, reconnecting after
// every failure.
func (s *Stream) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		s.setConnected(false)
		if ctx.Err() != nil {
			return nil
		}
		s.l.Warn("kraken websocket disconnected", logger.Error(err), logger.Duration("retry_in", s.reconnectDelay))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.reconnectDelay):
		}
	}
}

func (s *Stream) session(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("kraken ws connect: %w", err)
	}
	defer conn.Close()

	sub := map[string]any{
		"method": "subscribe",
		"params": map[string]any{"channel": "ticker", "symbol": s.symbols},
	}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("kraken ws subscribe: %w", err)
	}
	s.setConnected(true)
	s.l.Info("kraken websocket subscribed", logger.Strings("symbols", s.symbols))

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var writeMu sync.Mutex
	go func() {
		ticker := time.NewTicker(s.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sessionCtx.Done():
				writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				writeMu.Unlock()
				_ = conn.Close()
				return
			case <-ticker.C:
				writeMu.Lock()
				_ = conn.WriteMessage(websocket.PingMessage, nil)
				writeMu.Unlock()
			}
		}
	}()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("kraken ws read: %w", err)
		}
		s.handle(b)
	}
}

func (s *Stream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

type wsTicker struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Last   float64 `json:"last"`
}

type wsMessage struct {
	Channel string     `json:"channel"`
	Type    string     `json:"type"`
	Data    []wsTicker `json:"data"`
}

// handle ignores everything but ticker snapshots and updates.
func (s *Stream) handle(b []byte) {
	var m wsMessage
	if err := json.Unmarshal(b, &m); err != nil || m.Channel != "ticker" {
		return
	}
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range m.Data {
		if d.Last <= 0 {
			continue
		}
		sym := NormalizeSymbol(d.Symbol)
		s.last[sym] = models.Ticker{Symbol: sym, Last: d.Last, Bid: d.Bid, Ask: d.Ask, Timestamp: now}
	}
}
