package snapshot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_LegacyLayouts(t *testing.T) {
	fallback := mustDate(t, "2025-08-20")

	tests := []struct {
		name        string
		payload     string
		wantDate    string
		wantTickers []string
		wantVolume  int64
	}{
		{
			name:        "bare trade list uses file date",
			payload:     `[{"trade_id":"a","ticker":"KXBTC-25AUG20","count":3},{"trade_id":"b","ticker":"INX-25AUG20","count":2}]`,
			wantDate:    "2025-08-20",
			wantTickers: []string{"KXBTC-25AUG20", "INX-25AUG20"},
			wantVolume:  5,
		},
		{
			name:        "object without date",
			payload:     `{"trades":[{"trade_id":"a","ticker_name":"KXNBA-X","contracts_traded":9}]}`,
			wantDate:    "2025-08-20",
			wantTickers: []string{"KXNBA-X"},
			wantVolume:  9,
		},
		{
			name:        "report ticker fallback",
			payload:     `{"date":"2025-08-19","trades":[{"report_ticker":"KXNHL-Y","count":4}]}`,
			wantDate:    "2025-08-19",
			wantTickers: []string{"KXNHL-Y"},
			wantVolume:  4,
		},
		{
			name:        "negative counts excluded from volume",
			payload:     `{"date":"2025-08-20","trades":[{"ticker":"A","count":-4},{"ticker":"B","count":6}]}`,
			wantDate:    "2025-08-20",
			wantTickers: []string{"A", "B"},
			wantVolume:  6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap, err := Decode([]byte(tt.payload), fallback)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDate, snap.Date.Format("2006-01-02"))
			assert.True(t, snap.Complete, "legacy files predate the completeness marker")

			var tickers []string
			for _, tr := range snap.Trades {
				tickers = append(tickers, tr.Ticker)
			}
			assert.Equal(t, tt.wantTickers, tickers)
			assert.Equal(t, tt.wantVolume, snap.TotalVolume())
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	fallback := mustDate(t, "2025-08-20")
	for _, payload := range []string{"", "  ", `"text"`, `{"date":"yesterday","trades":[]}`, `[{"ticker":`} {
		_, err := Decode([]byte(payload), fallback)
		assert.Error(t, err, payload)
	}
}

func TestEncode_HeaderPrecedesTrades(t *testing.T) {
	data, err := Encode(sampleSnapshot(t, "2025-09-01", 1))
	require.NoError(t, err)

	s := string(data)
	assert.Less(t, strings.Index(s, `"complete"`), strings.Index(s, `"trades"`))
	assert.Contains(t, s, `"date": "2025-09-01"`)
	assert.Contains(t, s, `"trade_count": 1`)
}
