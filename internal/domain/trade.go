package domain

import "time"

// Trade is a single executed trade as reported by the venue. Trades are
// immutable once fetched and are stored in the venue's native order.
type Trade struct {
	TradeID     string    `json:"trade_id"`
	Ticker      string    `json:"ticker"`
	Count       int64     `json:"count"`
	YesPrice    int64     `json:"yes_price"`
	NoPrice     int64     `json:"no_price"`
	TakerSide   string    `json:"taker_side"`
	CreatedTime time.Time `json:"created_time"`
}

// Snapshot is the complete, immutable set of trades for one trading date.
type Snapshot struct {
	Date  time.Time
	MinTS int64
	MaxTS int64
	// Complete marks a snapshot whose fetch observed the end-of-data signal.
	// A complete snapshot with no trades is a genuine zero-volume day.
	Complete  bool
	FetchedAt time.Time
	Trades    []Trade
}

// TotalVolume sums the executed contract count of every trade with a
// positive count.
func (s Snapshot) TotalVolume() int64 {
	var total int64
	for _, t := range s.Trades {
		if t.Count > 0 {
			total += t.Count
		}
	}
	return total
}
