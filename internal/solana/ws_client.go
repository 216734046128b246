package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSConfig configures WebSocket client behavior.
type WSConfig struct {
	// ReconnectDelay is initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the delay between reconnect attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// SubscribeTimeout bounds the wait for subscription confirmation.
	SubscribeTimeout time.Duration
	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSConfig {
	return WSConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

// WSClient implements LogSubscriber over gorilla/websocket with
// automatic reconnect and resubscription.
type WSClient struct {
	endpoint string
	config   WSConfig
	logger   *zap.Logger

	conn      *websocket.Conn
	connMu    sync.Mutex
	closed    atomic.Bool
	requestID atomic.Uint64

	// subs maps server subscription ID to delivery channel.
	subs   map[int64]chan LogEvent
	subsMu sync.RWMutex

	// watched remembers the address behind each subscription for
	// resubscription after reconnect.
	watched   map[int64]string
	watchedMu sync.Mutex

	// pending maps request ID to a channel waiting for the subscription ID.
	pending   map[uint64]chan int64
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup

	reconnecting atomic.Bool
}

// NewWSClient connects to the endpoint and starts the read and ping loops.
func NewWSClient(ctx context.Context, endpoint string, config *WSConfig) (*WSClient, error) {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &WSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		subs:     make(map[int64]chan LogEvent),
		watched:  make(map[int64]string),
		pending:  make(map[uint64]chan int64),
		done:     make(chan struct{}),
	}

	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.wg.Add(2)
	go c.readLoop()
	go c.pingLoop()

	return c, nil
}

func (c *WSClient) connect(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn
	return nil
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type wsMessage struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Method string          `json:"method"`
	Params *wsNotifyParams `json:"params"`
}

type wsNotifyParams struct {
	Subscription int64           `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

type logsNotifyValue struct {
	Value struct {
		Signature string      `json:"signature"`
		Err       interface{} `json:"err"`
		Logs      []string    `json:"logs"`
	} `json:"value"`
}

// SubscribeAccountLogs subscribes to logs mentioning the address.
func (c *WSClient) SubscribeAccountLogs(ctx context.Context, address string) (<-chan LogEvent, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	subID, err := c.sendSubscribe(ctx, address)
	if err != nil {
		return nil, err
	}

	// Buffer absorbs bursts; dispatch drops on overflow rather than
	// blocking the read loop.
	ch := make(chan LogEvent, 1024)
	c.subsMu.Lock()
	c.subs[subID] = ch
	c.subsMu.Unlock()

	c.watchedMu.Lock()
	c.watched[subID] = address
	c.watchedMu.Unlock()

	return ch, nil
}

// sendSubscribe writes a logsSubscribe request and waits for confirmation.
func (c *WSClient) sendSubscribe(ctx context.Context, address string) (int64, error) {
	reqID := c.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{address}},
			map[string]string{"commitment": "confirmed"},
		},
	}

	confirmCh := make(chan int64, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = confirmCh
	c.pendingMu.Unlock()

	abandon := func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}

	c.connMu.Lock()
	if c.conn == nil {
		c.connMu.Unlock()
		abandon()
		return 0, fmt.Errorf("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	err := c.conn.WriteJSON(req)
	c.connMu.Unlock()
	if err != nil {
		abandon()
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	select {
	case subID := <-confirmCh:
		return subID, nil
	case <-time.After(c.config.SubscribeTimeout):
		abandon()
		return 0, fmt.Errorf("subscription confirmation timeout")
	case <-c.done:
		return 0, fmt.Errorf("client closed")
	case <-ctx.Done():
		abandon()
		return 0, ctx.Err()
	}
}

// Close closes the WebSocket connection and all subscription channels.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.connMu.Unlock()

	c.subsMu.Lock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.subsMu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	c.wg.Wait()
	return nil
}

// readLoop reads messages and dispatches them to subscribers, driving
// reconnect with exponential backoff on read failure.
func (c *WSClient) readLoop() {
	defer c.wg.Done()

	reconnectDelay := c.config.ReconnectDelay

	for !c.closed.Load() {
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}

			if !c.reconnecting.Swap(true) {
				go c.reconnect(reconnectDelay)
			}

			reconnectDelay *= 2
			if reconnectDelay > c.config.MaxReconnectDelay {
				reconnectDelay = c.config.MaxReconnectDelay
			}

			select {
			case <-c.done:
				return
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		reconnectDelay = c.config.ReconnectDelay
		c.handleMessage(message)
	}
}

func (c *WSClient) handleMessage(message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Debug("ws: drop unparsable message", zap.Error(err))
		return
	}

	// Subscription confirmation: {id, result: subID}
	if msg.ID != 0 && msg.Result != nil {
		var subID int64
		if err := json.Unmarshal(msg.Result, &subID); err != nil {
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- subID
		}
		return
	}

	if msg.Method != "logsNotification" || msg.Params == nil {
		return
	}

	var value logsNotifyValue
	if err := json.Unmarshal(msg.Params.Result, &value); err != nil {
		return
	}

	event := LogEvent{
		Signature: value.Value.Signature,
		Failed:    value.Value.Err != nil,
		Logs:      value.Value.Logs,
	}

	c.subsMu.RLock()
	ch, ok := c.subs[msg.Params.Subscription]
	c.subsMu.RUnlock()
	if !ok {
		return
	}

	select {
	case ch <- event:
	default:
		c.logger.Debug("ws: subscriber buffer full, dropping event",
			zap.String("signature", event.Signature))
	}
}

// reconnect re-establishes the connection and resubscribes all watched
// addresses under fresh subscription IDs.
func (c *WSClient) reconnect(delay time.Duration) {
	defer c.reconnecting.Store(false)

	if c.closed.Load() {
		return
	}

	select {
	case <-c.done:
		return
	case <-time.After(delay):
	}

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		c.logger.Warn("ws: reconnect failed", zap.Error(err))
		return
	}

	c.logger.Info("ws: reconnected", zap.String("endpoint", c.endpoint))
	c.resubscribeAll(ctx)
}

// resubscribeAll re-issues logsSubscribe for every watched address and
// rebinds the existing delivery channels to the new subscription IDs.
func (c *WSClient) resubscribeAll(ctx context.Context) {
	c.watchedMu.Lock()
	old := make(map[int64]string, len(c.watched))
	for id, address := range c.watched {
		old[id] = address
	}
	c.watchedMu.Unlock()

	for oldID, address := range old {
		newID, err := c.sendSubscribe(ctx, address)
		if err != nil {
			c.logger.Warn("ws: resubscribe failed",
				zap.String("address", address), zap.Error(err))
			continue
		}

		c.subsMu.Lock()
		if ch, ok := c.subs[oldID]; ok {
			delete(c.subs, oldID)
			c.subs[newID] = ch
		}
		c.subsMu.Unlock()

		c.watchedMu.Lock()
		delete(c.watched, oldID)
		c.watched[newID] = address
		c.watchedMu.Unlock()
	}
}

// pingLoop keeps the connection alive.
func (c *WSClient) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.logger.Debug("ws: ping failed", zap.Error(err))
				}
			}
			c.connMu.Unlock()
		}
	}
}

var _ LogSubscriber = (*WSClient)(nil)
