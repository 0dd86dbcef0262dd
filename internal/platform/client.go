// Package platform содержит websocket-клиент торговой платформы. Он ставит сделку и ждёт её закрытия.
package platform

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"signal_bot/internal/martingale"
	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/pkg/logger"
)

var (
	ErrNotConnected  = errors.New("platform not connected")
	ErrNotConfigured = errors.New("platform not configured")
	ErrRejected      = errors.New("platform rejected trade")
)

const (
	pingEvery   = 20 * time.Second
	writeWait   = 10 * time.Second
	maxBackoff  = 30 * time.Second
	baseBackoff = time.Second
)

type Options struct {
	URL  string
	SSID string
	// OnConnState: смена статуса соединения (health-флаг).
	OnConnState func(connected bool)
}

// call: одна сделка в полёте, request_id -> order_id -> результат.
type call struct {
	reqID   string
	orderID string
	done    chan callResult
}

type callResult struct {
	res martingale.Result
	err error
}

type Client struct {
	opts     Options
	wsDialer *websocket.Dialer

	connMu  sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	requests map[string]*call // request_id
	orders   map[string]*call // order_id

	seq       atomic.Uint64
	connected atomic.Bool

	balMu   sync.RWMutex
	balance decimal.Decimal
}

var _ martingale.Placer = (*Client)(nil)

func NewClient(opts Options) *Client {
	return &Client{
		opts:     opts,
		wsDialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		requests: make(map[string]*call),
		orders:   make(map[string]*call),
	}
}

func (c *Client) Connected() bool { return c.connected.Load() }

func (c *Client) Balance() decimal.Decimal {
	c.balMu.RLock()
	defer c.balMu.RUnlock()
	return c.balance
}

// Start: цикл подключения с переподключением до отмены ctx.
func (c *Client) Start(ctx context.Context) {
	if c.opts.URL == "" {
		logger.Warn("[WS] PLATFORM_WS_URL not set, trades will fail with %v", ErrNotConfigured)
		return
	}
	backoff := baseBackoff
	for {
		logger.Info("[WS] connect %s", c.opts.URL)
		conn, _, err := c.wsDialer.DialContext(ctx, c.opts.URL, nil)
		if err != nil {
			logger.Warn("[WS] dial error: %v", err)
		} else {
			backoff = baseBackoff
			c.serve(ctx, conn)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		metrics.PlatformReconnects.Inc()
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// serve обслуживает одно соединение: авторизация, keepalive, read-loop.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.setConnected(false)
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		_ = conn.Close()
	}()

	if err := c.send(outgoing{Name: msgSSID, Msg: c.opts.SSID}); err != nil {
		logger.Warn("[WS] auth send: %v", err)
		return
	}
	c.setConnected(true)

	// keepalive ping; платформа рвёт молчащие соединения
	stopPing := make(chan struct{})
	defer close(stopPing)
	go func() {
		t := time.NewTicker(pingEvery)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				c.writeMu.Lock()
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				c.writeMu.Unlock()
				_ = conn.Close()
				return
			case <-stopPing:
				return
			case <-t.C:
				c.writeMu.Lock()
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
				c.writeMu.Unlock()
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("[WS] read error: %v", err)
			}
			return
		}
		c.dispatch(raw)
	}
}

func (c *Client) setConnected(v bool) {
	if c.connected.Swap(v) != v && c.opts.OnConnState != nil {
		c.opts.OnConnState(v)
	}
}

func (c *Client) dispatch(raw []byte) {
	var env envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		logger.Debug("[WS] skip frame: %v", err)
		return
	}

	switch env.Name {
	case msgBalance:
		var m balanceMsg
		if err := sonic.Unmarshal(env.Msg, &m); err == nil {
			c.balMu.Lock()
			c.balance = m.Balance
			c.balMu.Unlock()
		}

	case msgTradeOpened:
		var m tradeOpenedMsg
		if err := sonic.Unmarshal(env.Msg, &m); err != nil {
			return
		}
		c.mu.Lock()
		if cl, ok := c.requests[env.RequestID]; ok {
			cl.orderID = m.OrderID
			c.orders[m.OrderID] = cl
		}
		c.mu.Unlock()
		logger.Info("[WS] trade opened req=%s order=%s", env.RequestID, m.OrderID)

	case msgTradeClosed:
		var m tradeClosedMsg
		if err := sonic.Unmarshal(env.Msg, &m); err != nil {
			return
		}
		out := models.OutcomeLoss
		if strings.EqualFold(m.Result, "win") {
			out = models.OutcomeWin
		}
		c.complete(c.byOrder(m.OrderID), callResult{res: martingale.Result{Outcome: out, Profit: m.Profit}})

	case msgError:
		var m errorMsg
		_ = sonic.Unmarshal(env.Msg, &m)
		c.mu.Lock()
		cl := c.requests[env.RequestID]
		c.mu.Unlock()
		if cl == nil {
			logger.Warn("[WS] platform error: %s", m.Message)
			return
		}
		c.complete(cl, callResult{err: errors.Wrap(ErrRejected, m.Message)})
	}
}

func (c *Client) byOrder(orderID string) *call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orders[orderID]
}

func (c *Client) complete(cl *call, r callResult) {
	if cl == nil {
		return
	}
	c.forget(cl)
	select {
	case cl.done <- r:
	default:
	}
}

func (c *Client) forget(cl *call) {
	c.mu.Lock()
	delete(c.requests, cl.reqID)
	if cl.orderID != "" {
		delete(c.orders, cl.orderID)
	}
	c.mu.Unlock()
}

func (c *Client) send(m outgoing) error {
	b, err := sonic.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encode")
	}

	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return errors.Wrap(conn.WriteMessage(websocket.TextMessage, b), "write")
}

// PlaceTrade ставит сделку и блокируется до trade-closed, ошибки платформы или отмены ctx.
// Обрыв соединения не роняет ожидание: после переподключения платформа досылает закрытие.
func (c *Client) PlaceTrade(ctx context.Context, asset string, dir models.Direction, stake decimal.Decimal, duration time.Duration) (martingale.Result, error) {
	if c.opts.URL == "" {
		return martingale.Result{}, ErrNotConfigured
	}
	if !c.Connected() {
		return martingale.Result{}, ErrNotConnected
	}

	cl := &call{
		reqID: strconv.FormatUint(c.seq.Add(1), 10),
		done:  make(chan callResult, 1),
	}
	c.mu.Lock()
	c.requests[cl.reqID] = cl
	c.mu.Unlock()

	err := c.send(outgoing{
		Name:      msgPlaceTrade,
		RequestID: cl.reqID,
		Msg: placeTradeMsg{
			Asset:     asset,
			Direction: strings.ToLower(string(dir)),
			Amount:    stake.String(),
			Duration:  int(duration / time.Second),
		},
	})
	if err != nil {
		c.forget(cl)
		return martingale.Result{}, errors.Wrap(err, "place trade")
	}

	select {
	case r := <-cl.done:
		return r.res, r.err
	case <-ctx.Done():
		c.forget(cl)
		return martingale.Result{}, ctx.Err()
	}
}
