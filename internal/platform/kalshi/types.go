package kalshi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// --------------------------------------------------------------------------
// Kalshi API DTOs
// --------------------------------------------------------------------------

// APITrade is a trade as returned by GET /markets/trades.
type APITrade struct {
	TradeID     string `json:"trade_id"`
	Ticker      string `json:"ticker"`
	Count       int64  `json:"count"`
	YesPrice    int64  `json:"yes_price"`
	NoPrice     int64  `json:"no_price"`
	TakerSide   string `json:"taker_side"` // "yes" or "no"
	CreatedTime string `json:"created_time"`
}

// tradesResponse uses pointers so a missing key can be told apart from an
// empty value. Kalshi always sends "cursor"; an empty cursor is the
// end-of-data marker.
type tradesResponse struct {
	Trades *[]APITrade `json:"trades"`
	Cursor *string     `json:"cursor"`
}

// ErrorResponse is a Kalshi API error body. Older endpoints return the code
// and message at the top level, newer ones nest them under "error".
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (e ErrorResponse) codeAndMessage() (string, string) {
	if e.Error != nil {
		return e.Error.Code, e.Error.Message
	}
	return e.Code, e.Message
}

// TradesQuery selects one page of trades.
type TradesQuery struct {
	MinTS  int64
	MaxTS  int64
	Limit  int
	Cursor string
	// Ticker optionally restricts the query to a single market.
	Ticker string
}

// TradesPage is one decoded page. An empty Cursor means the venue has no
// further data for the query.
type TradesPage struct {
	Trades []domain.Trade
	Cursor string
}

// Done reports whether this page carried the end-of-data marker.
func (p TradesPage) Done() bool {
	return p.Cursor == ""
}

// --------------------------------------------------------------------------
// Errors
// --------------------------------------------------------------------------

// APIError is a non-2xx response from the Kalshi API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	// RetryAfter is the server-suggested wait parsed from Retry-After, if any.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kalshi: HTTP %d: %s (%s)", e.StatusCode, e.Message, e.Code)
}

// Temporary reports whether the request may succeed if repeated: rate
// limits, request timeouts and server-side failures.
func (e *APIError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode == http.StatusRequestTimeout:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// Is maps status codes onto the domain sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case domain.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case domain.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// IsRateLimited reports whether err is a Kalshi 429 response.
func IsRateLimited(err error) bool {
	return errors.Is(err, domain.ErrRateLimited)
}

// parseRetryAfter accepts either delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return 0
}

// --------------------------------------------------------------------------
// Conversion helpers
// --------------------------------------------------------------------------

// ToDomain converts an APITrade into a domain.Trade, rejecting values that
// violate the trade schema.
func (t APITrade) ToDomain() (domain.Trade, error) {
	if t.Count < 0 {
		return domain.Trade{}, fmt.Errorf("%w: trade %s has negative count %d", domain.ErrMalformedResponse, t.TradeID, t.Count)
	}
	var created time.Time
	if t.CreatedTime != "" {
		ts, err := time.Parse(time.RFC3339Nano, t.CreatedTime)
		if err != nil {
			return domain.Trade{}, fmt.Errorf("%w: trade %s created_time %q", domain.ErrMalformedResponse, t.TradeID, t.CreatedTime)
		}
		created = ts.UTC()
	}
	return domain.Trade{
		TradeID:     t.TradeID,
		Ticker:      t.Ticker,
		Count:       t.Count,
		YesPrice:    t.YesPrice,
		NoPrice:     t.NoPrice,
		TakerSide:   t.TakerSide,
		CreatedTime: created,
	}, nil
}
