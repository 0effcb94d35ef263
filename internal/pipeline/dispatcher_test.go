package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
	"github.com/alanyoungcy/kalshitracker/internal/platform/kalshi"
)

// recordingSyncer counts calls per date and tracks peak concurrency.
type recordingSyncer struct {
	mu      sync.Mutex
	calls   map[string]int
	fail    map[string]error
	active  int32
	peak    int32
	store   SnapshotWriter
	holdFor time.Duration
}

func (s *recordingSyncer) SyncDay(ctx context.Context, date time.Time, _ Filter) error {
	n := atomic.AddInt32(&s.active, 1)
	defer atomic.AddInt32(&s.active, -1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(s.holdFor)

	key := domain.FormatDate(date)
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[key]++
	err := s.fail[key]
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if s.store != nil {
		return s.store.Write(domain.Snapshot{Date: date, Complete: true})
	}
	return nil
}

type recordingPusher struct {
	mu     sync.Mutex
	pushed []time.Time
	err    error
}

func (p *recordingPusher) Push(_ context.Context, date time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushed = append(p.pushed, date)
	return p.err
}

type failingBacklog struct{ err error }

func (f failingBacklog) Backlog(domain.DateRange, bool) ([]time.Time, error) {
	return nil, f.err
}

func TestDispatcher_CompleteRangeDoesNoFetching(t *testing.T) {
	store := newStore(t)
	rng := domain.NewDateRange(mustDate(t, "2025-09-01"), mustDate(t, "2025-09-05"))
	for _, d := range rng.Days() {
		require.NoError(t, store.Write(domain.Snapshot{Date: d, Complete: true}))
	}

	pager := &scriptedPager{respond: func(int, kalshi.TradesQuery) (kalshi.TradesPage, error) {
		t.Fatal("no network call expected")
		return kalshi.TradesPage{}, nil
	}}
	f, _ := newTestFetcher(t, pager, store)

	report := NewDispatcher(f, store, Filter{}, false, discardLogger()).Sync(context.Background(), rng, 4)

	assert.True(t, report.OK())
	assert.Equal(t, 0, pager.calls())
	assert.Empty(t, report.Fetched)
	assert.Equal(t, dateStrings(rng.Days()), dateStrings(report.Succeeded))
}

func TestDispatcher_FailureDoesNotAbortOthers(t *testing.T) {
	store := newStore(t)
	syncer := &recordingSyncer{
		store: store,
		fail:  map[string]error{"2025-09-03": errors.New("kalshi: HTTP 400")},
	}
	rng := domain.NewDateRange(mustDate(t, "2025-09-01"), mustDate(t, "2025-09-05"))

	report := NewDispatcher(syncer, store, Filter{}, false, discardLogger()).Sync(context.Background(), rng, 2)

	assert.False(t, report.OK())
	assert.Equal(t, []string{"2025-09-01", "2025-09-02", "2025-09-04", "2025-09-05"}, dateStrings(report.Succeeded))
	assert.Equal(t, dateStrings(report.Succeeded), dateStrings(report.Fetched))
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "2025-09-03", domain.FormatDate(report.Failed[0].Date))
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	has, err := store.Has(mustDate(t, "2025-09-03"))
	require.NoError(t, err)
	assert.False(t, has)

	// The failed date is the only backlog on the next run.
	backlog, err := store.Backlog(rng, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-09-03"}, dateStrings(backlog))
}

func TestDispatcher_EachDateClaimedOnceWithinWorkerBound(t *testing.T) {
	store := newStore(t)
	syncer := &recordingSyncer{holdFor: 5 * time.Millisecond}
	rng := domain.NewDateRange(mustDate(t, "2025-08-01"), mustDate(t, "2025-08-31"))

	report := NewDispatcher(syncer, store, Filter{}, false, discardLogger()).Sync(context.Background(), rng, 4)

	assert.True(t, report.OK())
	assert.Len(t, report.Fetched, 31)
	assert.Len(t, syncer.calls, 31)
	for date, n := range syncer.calls {
		assert.Equal(t, 1, n, date)
	}
	assert.LessOrEqual(t, atomic.LoadInt32(&syncer.peak), int32(4))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&syncer.peak), int32(1))
}

func TestDispatcher_OverwriteRefetchesEverything(t *testing.T) {
	store := newStore(t)
	rng := domain.NewDateRange(mustDate(t, "2025-09-01"), mustDate(t, "2025-09-03"))
	for _, d := range rng.Days() {
		require.NoError(t, store.Write(domain.Snapshot{Date: d, Complete: true}))
	}
	syncer := &recordingSyncer{store: store}

	report := NewDispatcher(syncer, store, Filter{}, true, discardLogger()).Sync(context.Background(), rng, 4)

	assert.True(t, report.OK())
	assert.Len(t, report.Fetched, 3)
	assert.Len(t, report.Succeeded, 3)
}

func TestDispatcher_BacklogFailureFailsRange(t *testing.T) {
	rng := domain.NewDateRange(mustDate(t, "2025-09-01"), mustDate(t, "2025-09-02"))
	boom := errors.New("permission denied")

	report := NewDispatcher(&recordingSyncer{}, failingBacklog{err: boom}, Filter{}, false, discardLogger()).
		Sync(context.Background(), rng, 4)

	require.Len(t, report.Failed, 2)
	for _, f := range report.Failed {
		assert.ErrorIs(t, f.Err, boom)
	}
	assert.Empty(t, report.Succeeded)
}

func TestDispatcher_CancelledRunRecordsRemainingDates(t *testing.T) {
	store := newStore(t)
	rng := domain.NewDateRange(mustDate(t, "2025-09-01"), mustDate(t, "2025-09-04"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewDispatcher(&recordingSyncer{store: store}, store, Filter{}, false, discardLogger()).Sync(ctx, rng, 2)

	assert.Len(t, report.Failed, 4)
	for _, f := range report.Failed {
		assert.ErrorIs(t, f.Err, context.Canceled)
	}
	dates, err := store.Dates()
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestDispatcher_PushesWrittenSnapshots(t *testing.T) {
	store := newStore(t)
	syncer := &recordingSyncer{
		store: store,
		fail:  map[string]error{"2025-09-02": errors.New("timeout")},
	}
	pusher := &recordingPusher{err: errors.New("s3 unavailable")}
	rng := domain.NewDateRange(mustDate(t, "2025-09-01"), mustDate(t, "2025-09-03"))

	report := NewDispatcher(syncer, store, Filter{}, false, discardLogger()).
		WithPusher(pusher).
		Sync(context.Background(), rng, 1)

	assert.Len(t, report.Fetched, 2, "push failures do not fail the date")
	assert.ElementsMatch(t, []string{"2025-09-01", "2025-09-03"}, dateStrings(pusher.pushed))
}

// fakeVenue serves one distinct trade set per UTC day keyed by min_ts and
// splits each day across several pages.
func fakeVenue(perDay int, pageSize int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		minTS, err := strconv.ParseInt(r.URL.Query().Get("min_ts"), 10, 64)
		if err != nil {
			http.Error(w, `{"code":"bad_request","message":"min_ts"}`, http.StatusBadRequest)
			return
		}
		offset := 0
		if c := r.URL.Query().Get("cursor"); c != "" {
			if offset, err = strconv.Atoi(c); err != nil {
				http.Error(w, `{"code":"bad_request","message":"cursor"}`, http.StatusBadRequest)
				return
			}
		}
		day := time.Unix(minTS, 0).UTC().Format(domain.DateLayout)

		type apiTrade struct {
			TradeID     string `json:"trade_id"`
			Ticker      string `json:"ticker"`
			Count       int64  `json:"count"`
			CreatedTime string `json:"created_time"`
		}
		trades := []apiTrade{}
		for i := offset; i < perDay && i < offset+pageSize; i++ {
			trades = append(trades, apiTrade{
				TradeID:     fmt.Sprintf("%s-%d", day, i),
				Ticker:      "KXNFLGAME-" + day,
				Count:       1,
				CreatedTime: time.Unix(minTS+int64(i), 0).UTC().Format(time.RFC3339),
			})
		}
		cursor := ""
		if offset+pageSize < perDay {
			cursor = strconv.Itoa(offset + pageSize)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"trades": trades, "cursor": cursor})
	}))
}

func TestDispatcher_EndToEndWriteIsolation(t *testing.T) {
	srv := fakeVenue(7, 3)
	defer srv.Close()

	client, err := kalshi.NewClient(kalshi.ClientConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	store := newStore(t)
	f, _ := newTestFetcher(t, client, store)
	rng := domain.NewDateRange(mustDate(t, "2025-09-01"), mustDate(t, "2025-09-10"))

	report := NewDispatcher(f, store, Filter{}, false, discardLogger()).Sync(context.Background(), rng, 4)
	require.True(t, report.OK(), "%+v", report.Failed)
	assert.Len(t, report.Fetched, 10)

	for _, d := range rng.Days() {
		snap, err := store.Read(d)
		require.NoError(t, err)
		require.Len(t, snap.Trades, 7)
		for _, tr := range snap.Trades {
			assert.Equal(t, "KXNFLGAME-"+domain.FormatDate(d), tr.Ticker, "trades from another day leaked into %s", domain.FormatDate(d))
		}
	}
}
