package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// filePayload is the on-disk snapshot layout. The header keys precede
// "trades" so a reader can inspect them without the trade list.
type filePayload struct {
	Date       string         `json:"date"`
	MinTS      int64          `json:"min_ts"`
	MaxTS      int64          `json:"max_ts"`
	TradeCount int            `json:"trade_count"`
	Complete   *bool          `json:"complete,omitempty"`
	FetchedAt  *time.Time     `json:"fetched_at,omitempty"`
	Trades     []domain.Trade `json:"trades"`
}

// legacyPayload accepts files written by older tooling.
type legacyPayload struct {
	Date     string      `json:"date"`
	MinTS    int64       `json:"min_ts"`
	MaxTS    int64       `json:"max_ts"`
	Complete *bool       `json:"complete"`
	Fetched  *time.Time  `json:"fetched_at"`
	Trades   []fileTrade `json:"trades"`
}

// fileTrade tolerates the alternate field names seen in older exports.
type fileTrade struct {
	TradeID         string `json:"trade_id"`
	Ticker          string `json:"ticker"`
	TickerName      string `json:"ticker_name"`
	ReportTicker    string `json:"report_ticker"`
	Count           int64  `json:"count"`
	ContractsTraded int64  `json:"contracts_traded"`
	YesPrice        int64  `json:"yes_price"`
	NoPrice         int64  `json:"no_price"`
	TakerSide       string `json:"taker_side"`
	CreatedTime     string `json:"created_time"`
	Date            string `json:"date"`
}

func (t fileTrade) toDomain() domain.Trade {
	ticker := t.Ticker
	if ticker == "" {
		ticker = t.TickerName
	}
	if ticker == "" {
		ticker = t.ReportTicker
	}
	count := t.Count
	if count == 0 {
		count = t.ContractsTraded
	}

	var created time.Time
	if t.CreatedTime != "" {
		if ts, err := time.Parse(time.RFC3339Nano, t.CreatedTime); err == nil {
			created = ts.UTC()
		}
	}

	return domain.Trade{
		TradeID:     t.TradeID,
		Ticker:      ticker,
		Count:       count,
		YesPrice:    t.YesPrice,
		NoPrice:     t.NoPrice,
		TakerSide:   t.TakerSide,
		CreatedTime: created,
	}
}

// Encode renders a snapshot in the on-disk format.
func Encode(snap domain.Snapshot) ([]byte, error) {
	complete := snap.Complete
	payload := filePayload{
		Date:       domain.FormatDate(snap.Date),
		MinTS:      snap.MinTS,
		MaxTS:      snap.MaxTS,
		TradeCount: len(snap.Trades),
		Complete:   &complete,
		Trades:     snap.Trades,
	}
	if !snap.FetchedAt.IsZero() {
		fetched := snap.FetchedAt.UTC()
		payload.FetchedAt = &fetched
	}
	if payload.Trades == nil {
		payload.Trades = []domain.Trade{}
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode %s: %w", payload.Date, err)
	}
	return append(data, '\n'), nil
}

// Decode parses a snapshot payload. Both the object layout and a bare JSON
// array of trades are accepted. When the payload names no date, fallback
// (normally taken from the file name) is used. Files without an explicit
// "complete" flag predate the marker and were only written after a full
// fetch, so they are treated as complete.
func Decode(data []byte, fallback time.Time) (domain.Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return domain.Snapshot{}, fmt.Errorf("snapshot: decode: empty payload")
	}

	var raw legacyPayload
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raw.Trades); err != nil {
			return domain.Snapshot{}, fmt.Errorf("snapshot: decode trade list: %w", err)
		}
		if len(raw.Trades) > 0 {
			raw.Date = raw.Trades[0].Date
		}
	case '{':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return domain.Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
		}
	default:
		return domain.Snapshot{}, fmt.Errorf("snapshot: decode: unsupported payload starting with %q", trimmed[0])
	}

	date := domain.Day(fallback)
	if raw.Date != "" {
		d, err := domain.ParseDate(raw.Date)
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("snapshot: decode: %w", err)
		}
		date = d
	}
	if date.IsZero() {
		return domain.Snapshot{}, fmt.Errorf("snapshot: decode: %w: payload has no date", domain.ErrInvalidDate)
	}

	snap := domain.Snapshot{
		Date:     date,
		MinTS:    raw.MinTS,
		MaxTS:    raw.MaxTS,
		Complete: raw.Complete == nil || *raw.Complete,
		Trades:   make([]domain.Trade, 0, len(raw.Trades)),
	}
	if raw.Fetched != nil {
		snap.FetchedAt = *raw.Fetched
	}
	if snap.MinTS == 0 && snap.MaxTS == 0 {
		snap.MinTS, snap.MaxTS = domain.DayBounds(date)
	}
	for _, t := range raw.Trades {
		snap.Trades = append(snap.Trades, t.toDomain())
	}
	return snap, nil
}
