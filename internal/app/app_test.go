package app

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/kalshitracker/internal/config"
	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/report"
	"github.com/alanyoungcy/kalshitracker/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDate(s)
	require.NoError(t, err)
	return d
}

// venue serves four trades per day over two pages. Days listed in failing
// answer 500.
func venue(t *testing.T, failing ...string) *httptest.Server {
	t.Helper()
	fail := map[string]bool{}
	for _, d := range failing {
		fail[d] = true
	}
	const perDay, pageSize = 4, 3

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		minTS, err := strconv.ParseInt(r.URL.Query().Get("min_ts"), 10, 64)
		if err != nil {
			http.Error(w, `{"code":"bad_request","message":"min_ts"}`, http.StatusBadRequest)
			return
		}
		day := time.Unix(minTS, 0).UTC().Format(domain.DateLayout)
		if fail[day] {
			http.Error(w, `{"code":"internal","message":"boom"}`, http.StatusInternalServerError)
			return
		}
		offset, _ := strconv.Atoi(r.URL.Query().Get("cursor"))

		trades := []map[string]any{}
		for i := offset; i < perDay && i < offset+pageSize; i++ {
			ticker := "KXNFLGAME-" + day
			if i%2 == 1 {
				ticker = "KXBTCD-" + day
			}
			trades = append(trades, map[string]any{
				"trade_id":     fmt.Sprintf("%s-%d", day, i),
				"ticker":       ticker,
				"count":        i + 1,
				"created_time": time.Unix(minTS+int64(i), 0).UTC().Format(time.RFC3339),
			})
		}
		cursor := ""
		if offset+pageSize < perDay {
			cursor = strconv.Itoa(offset + pageSize)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"trades": trades, "cursor": cursor})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type notification struct {
	Title string
	Body  string
}

// larkSink records every card title posted to it.
func larkSink(t *testing.T) (*httptest.Server, func() []notification) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []notification
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var card struct {
			Card struct {
				Header struct {
					Title struct {
						Content string `json:"content"`
					} `json:"title"`
				} `json:"header"`
				Elements []struct {
					Text struct {
						Content string `json:"content"`
					} `json:"text"`
				} `json:"elements"`
			} `json:"card"`
		}
		if err := json.NewDecoder(r.Body).Decode(&card); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := notification{Title: card.Card.Header.Title.Content}
		if len(card.Card.Elements) > 0 {
			n.Body = card.Card.Elements[0].Text.Content
		}
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
		_, _ = io.WriteString(w, `{"code":0}`)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []notification {
		mu.Lock()
		defer mu.Unlock()
		return append([]notification(nil), got...)
	}
}

func testConfig(t *testing.T, venueURL, larkURL string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Mode = "full"
	cfg.Kalshi.BaseURL = venueURL
	cfg.Kalshi.MaxRetries = 1
	cfg.Kalshi.PageDelay.Duration = 0
	cfg.Kalshi.RetryDelay.Duration = time.Millisecond
	cfg.Sync.DataDir = filepath.Join(t.TempDir(), "trades")
	cfg.Sync.StartDate = "2025-09-01"
	cfg.Sync.Timezone = "UTC"
	cfg.Aggregate.OutputDir = filepath.Join(t.TempDir(), "analysis")
	cfg.Notify.LarkWebhookURL = larkURL
	return &cfg
}

func newTestApp(cfg *config.Config, now time.Time) *App {
	a := New(cfg, discardLogger())
	a.now = func() time.Time { return now }
	return a
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestResolveRange(t *testing.T) {
	now := time.Date(2025, 9, 10, 15, 0, 0, 0, time.UTC)
	base := config.SyncConfig{StartDate: "2025-08-15"}

	tests := []struct {
		name      string
		cfg       func(c config.SyncConfig) config.SyncConfig
		override  RangeOverride
		resume    string
		wantStart string
		wantEnd   string
		wantErr   bool
	}{
		{name: "empty store uses start_date", wantStart: "2025-08-15", wantEnd: "2025-09-09"},
		{name: "resume after latest", resume: "2025-09-05", wantStart: "2025-09-05", wantEnd: "2025-09-09"},
		{name: "flags win", resume: "2025-09-05", override: RangeOverride{Start: "2025-09-01", End: "2025-09-03"}, wantStart: "2025-09-01", wantEnd: "2025-09-03"},
		{
			name:      "configured end",
			cfg:       func(c config.SyncConfig) config.SyncConfig { c.EndDate = "2025-09-01"; return c },
			wantStart: "2025-08-15", wantEnd: "2025-09-01",
		},
		{name: "end clamped before today", override: RangeOverride{End: "2025-09-20"}, wantStart: "2025-08-15", wantEnd: "2025-09-09"},
		{
			name:      "include today",
			cfg:       func(c config.SyncConfig) config.SyncConfig { c.IncludeToday = true; return c },
			wantStart: "2025-08-15", wantEnd: "2025-09-10",
		},
		{
			name:      "include today still clamps future end",
			cfg:       func(c config.SyncConfig) config.SyncConfig { c.IncludeToday = true; return c },
			override:  RangeOverride{End: "2025-09-30"},
			wantStart: "2025-08-15", wantEnd: "2025-09-10",
		},
		{
			name:      "future configured end clamped to today",
			cfg:       func(c config.SyncConfig) config.SyncConfig { c.IncludeToday = true; c.EndDate = "2025-12-31"; return c },
			wantStart: "2025-08-15", wantEnd: "2025-09-10",
		},
		{name: "bad flag", override: RangeOverride{Start: "09/01/2025"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			if tt.cfg != nil {
				cfg = tt.cfg(cfg)
			}
			var resume time.Time
			if tt.resume != "" {
				resume = mustDate(t, tt.resume)
			}
			rng, err := resolveRange(cfg, tt.override, resume, tt.resume != "", now)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrInvalidDate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, domain.FormatDate(rng.Start))
			assert.Equal(t, tt.wantEnd, domain.FormatDate(rng.End))
		})
	}
}

func TestResolveRange_UpToDateIsEmpty(t *testing.T) {
	now := time.Date(2025, 9, 10, 1, 0, 0, 0, time.UTC)
	rng, err := resolveRange(config.SyncConfig{StartDate: "2025-08-15"}, RangeOverride{}, mustDate(t, "2025-09-10"), true, now)
	require.NoError(t, err)
	assert.True(t, rng.Empty())
}

func TestResumeDate(t *testing.T) {
	store, err := snapshot.NewStore(t.TempDir())
	require.NoError(t, err)

	_, ok, err := resumeDate(store, "2025-09-01")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, d := range []string{"2025-09-01", "2025-09-02", "2025-09-04"} {
		require.NoError(t, store.Write(domain.Snapshot{Date: mustDate(t, d), Complete: true}))
	}
	got, ok, err := resumeDate(store, "2025-09-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-09-03", domain.FormatDate(got), "earliest gap is retried first")

	require.NoError(t, store.Write(domain.Snapshot{Date: mustDate(t, "2025-09-03"), Complete: true}))
	got, ok, err = resumeDate(store, "2025-09-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2025-09-05", domain.FormatDate(got))
}

func TestApp_FullModeSyncsAndAggregates(t *testing.T) {
	lark, sent := larkSink(t)
	cfg := testConfig(t, venue(t).URL, lark.URL)
	a := newTestApp(cfg, time.Date(2025, 9, 6, 12, 0, 0, 0, time.UTC))
	defer a.Close()

	require.NoError(t, a.Run(context.Background()))

	store, err := snapshot.NewStore(cfg.Sync.DataDir)
	require.NoError(t, err)
	dates, err := store.Dates()
	require.NoError(t, err)
	require.Len(t, dates, 5)
	assert.Equal(t, "2025-09-01", domain.FormatDate(dates[0]))
	assert.Equal(t, "2025-09-05", domain.FormatDate(dates[4]))

	runDir := filepath.Join(cfg.Aggregate.OutputDir, "2025-09-06")
	for _, f := range []string{report.VolumeFile, report.CategoryFile, report.TopFile, report.SyncReportFile, report.ManifestFile} {
		assert.FileExists(t, filepath.Join(runDir, f))
	}

	// Each day holds counts 1+2+3+4; NFL gets 1+3 and crypto 2+4.
	volume := readCSV(t, filepath.Join(runDir, report.VolumeFile))
	require.Len(t, volume, 6)
	assert.Equal(t, []string{"2025-09-01", "10", "10", "1"}, volume[1])
	assert.Equal(t, []string{"2025-09-05", "10", "50", "5"}, volume[5])

	top := readCSV(t, filepath.Join(runDir, report.TopFile))
	require.Len(t, top, 3)
	assert.Equal(t, []string{"1", string(domain.CategoryCrypto), "6.00"}, top[1])
	assert.Equal(t, []string{"2", string(domain.CategoryNFL), "4.00"}, top[2])

	notes := sent()
	require.Len(t, notes, 2)
	assert.Equal(t, "Kalshi sync complete: 2025-09-01..2025-09-05", notes[0].Title)
	assert.Equal(t, "Kalshi report 2025-09-05", notes[1].Title)
}

func TestApp_SecondRunIsUpToDate(t *testing.T) {
	cfg := testConfig(t, venue(t).URL, "")
	cfg.Mode = "sync"
	now := time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)

	a := newTestApp(cfg, now)
	require.NoError(t, a.Run(context.Background()))
	a.Close()

	// A dead venue proves the second run needs no requests.
	cfg.Kalshi.BaseURL = "http://127.0.0.1:1"
	a = newTestApp(cfg, now)
	require.NoError(t, a.Run(context.Background()))
	a.Close()
}

func TestApp_FailedDatesReportedAndAggregationStillRuns(t *testing.T) {
	lark, sent := larkSink(t)
	cfg := testConfig(t, venue(t, "2025-09-02").URL, lark.URL)
	a := newTestApp(cfg, time.Date(2025, 9, 4, 12, 0, 0, 0, time.UTC))
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errDatesFailed)

	store, serr := snapshot.NewStore(cfg.Sync.DataDir)
	require.NoError(t, serr)
	has, serr := store.Has(mustDate(t, "2025-09-02"))
	require.NoError(t, serr)
	assert.False(t, has, "a failed date leaves no file behind")

	runDir := filepath.Join(cfg.Aggregate.OutputDir, "2025-09-04")
	assert.FileExists(t, filepath.Join(runDir, report.VolumeFile))

	notes := sent()
	require.Len(t, notes, 2)
	assert.Equal(t, "Kalshi sync failed: 2025-09-01..2025-09-03", notes[0].Title)
	assert.Contains(t, notes[0].Body, "2025-09-02")
	assert.Equal(t, "Kalshi report 2025-09-03", notes[1].Title)
}

func TestApp_AggregateEmptyStoreFails(t *testing.T) {
	lark, sent := larkSink(t)
	cfg := testConfig(t, "http://127.0.0.1:1", lark.URL)
	cfg.Mode = "aggregate"
	a := newTestApp(cfg, time.Date(2025, 9, 4, 12, 0, 0, 0, time.UTC))
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrEmptyStore))

	notes := sent()
	require.Len(t, notes, 1)
	assert.Equal(t, "Kalshi aggregate run failed", notes[0].Title)
}

func TestApp_RemovesStaleTodaySnapshot(t *testing.T) {
	cfg := testConfig(t, venue(t).URL, "")
	cfg.Mode = "sync"
	now := time.Date(2025, 9, 3, 12, 0, 0, 0, time.UTC)

	store, err := snapshot.NewStore(cfg.Sync.DataDir)
	require.NoError(t, err)
	today := mustDate(t, "2025-09-03")
	require.NoError(t, store.Write(domain.Snapshot{Date: today, Complete: true}))

	a := newTestApp(cfg, now)
	defer a.Close()
	require.NoError(t, a.Run(context.Background()))

	assert.NoFileExists(t, store.Path(today))
	has, err := store.Has(mustDate(t, "2025-09-02"))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestApp_UnknownMode(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", "")
	cfg.Mode = "trade"
	a := newTestApp(cfg, time.Now())
	defer a.Close()
	assert.Error(t, a.Run(context.Background()))
}

func TestApp_ScheduledServerListenFailureStopsRun(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", "")
	cfg.Mode = "aggregate"
	cfg.Schedule = "0 0 1 1 *"
	cfg.Server.Addr = "127.0.0.1:-1"
	a := newTestApp(cfg, time.Date(2025, 9, 4, 12, 0, 0, 0, time.UTC))
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server: listen")
	assert.Equal(t, "aggregate", a.status.Status().Mode)
}
