package platform

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Имена сообщений протокола: {"name": ..., "request_id": ..., "msg": {...}}.
const (
	msgSSID        = "ssid"
	msgPlaceTrade  = "place-trade"
	msgTradeOpened = "trade-opened"
	msgTradeClosed = "trade-closed"
	msgBalance     = "balance"
	msgError       = "error"
)

type envelope struct {
	Name      string          `json:"name"`
	RequestID string          `json:"request_id,omitempty"`
	Msg       json.RawMessage `json:"msg,omitempty"`
}

type outgoing struct {
	Name      string `json:"name"`
	RequestID string `json:"request_id,omitempty"`
	Msg       any    `json:"msg"`
}

type placeTradeMsg struct {
	Asset     string `json:"asset"`
	Direction string `json:"direction"` // call | put
	Amount    string `json:"amount"`
	Duration  int    `json:"duration"` // секунды
}

type tradeOpenedMsg struct {
	OrderID string `json:"order_id"`
}

type tradeClosedMsg struct {
	OrderID string          `json:"order_id"`
	Result  string          `json:"result"` // win | loss
	Profit  decimal.Decimal `json:"profit"`
}

type balanceMsg struct {
	Balance decimal.Decimal `json:"balance"`
}

type errorMsg struct {
	Message string `json:"message"`
}
