package models

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Результат отдельной сделки в журнале.
const (
	ResultWin     = "WIN"
	ResultLoss    = "LOSS"
	ResultError   = "ERROR"
	ResultTimeout = "TIMEOUT"
)

// TradeRecord: одна попытка (вход или догон), как она лежит в журнале.
type TradeRecord struct {
	SessionID   string          `json:"session_id"`
	Asset       string          `json:"asset"`
	Direction   Direction       `json:"direction"`
	Stake       decimal.Decimal `json:"stake"`
	DurationSec int             `json:"duration_sec"`
	GaleIndex   int             `json:"gale_index"`
	Result      string          `json:"result"`
	Profit      decimal.Decimal `json:"profit"`
	Source      string          `json:"source"`
	Error       string          `json:"error,omitempty"`
	PlacedAt    time.Time       `json:"placed_at"`
	ResolvedAt  time.Time       `json:"resolved_at"`
}

type AssetStats struct {
	Asset   string
	Trades  int
	Wins    int
	Profit  decimal.Decimal
	WinRate float64
}

type Stats struct {
	Trades  int
	Wins    int
	Losses  int
	WinRate float64
	Profit  decimal.Decimal
	AvgPL   decimal.Decimal
	Best    []AssetStats
}

// Summarize считает статистику по набору сделок; best: сколько лучших активов вернуть.
func Summarize(records []TradeRecord, best int) Stats {
	st := Stats{Profit: decimal.Zero, AvgPL: decimal.Zero}
	byAsset := map[string]*AssetStats{}

	for _, r := range records {
		st.Trades++
		switch r.Result {
		case ResultWin:
			st.Wins++
		case ResultLoss:
			st.Losses++
		}
		st.Profit = st.Profit.Add(r.Profit)

		a, ok := byAsset[r.Asset]
		if !ok {
			a = &AssetStats{Asset: r.Asset, Profit: decimal.Zero}
			byAsset[r.Asset] = a
		}
		a.Trades++
		if r.Result == ResultWin {
			a.Wins++
		}
		a.Profit = a.Profit.Add(r.Profit)
	}
	if st.Trades == 0 {
		return st
	}
	st.WinRate = float64(st.Wins) / float64(st.Trades) * 100
	st.AvgPL = st.Profit.Div(decimal.NewFromInt(int64(st.Trades)))

	assets := make([]AssetStats, 0, len(byAsset))
	for _, a := range byAsset {
		a.WinRate = float64(a.Wins) / float64(a.Trades) * 100
		assets = append(assets, *a)
	}
	sort.Slice(assets, func(i, j int) bool {
		if c := assets[i].Profit.Cmp(assets[j].Profit); c != 0 {
			return c > 0
		}
		return assets[i].Asset < assets[j].Asset
	})
	if best > 0 && len(assets) > best {
		assets = assets[:best]
	}
	st.Best = assets
	return st
}
