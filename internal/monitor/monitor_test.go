package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/sessionwatch/internal/models"
	"github.com/rewired-gh/sessionwatch/internal/session"
)

type fakeUniverse struct {
	symbols []string
	err     error
	calls   int
}

func (f *fakeUniverse) TopSymbols(_ context.Context, limit int) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.symbols) > limit {
		return f.symbols[:limit], nil
	}
	return f.symbols, nil
}

type fakeData struct {
	mu      sync.Mutex
	bars    map[string][]models.PriceBar
	barsErr map[string]error
	price   map[string]float64
	priceOK map[string]bool
}

func newFakeData() *fakeData {
	return &fakeData{
		bars:    make(map[string][]models.PriceBar),
		barsErr: make(map[string]error),
		price:   make(map[string]float64),
		priceOK: make(map[string]bool),
	}
}

func (f *fakeData) FetchKlines(_ context.Context, symbol string, _ int) ([]models.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.barsErr[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

func (f *fakeData) FetchPrice(_ context.Context, symbol string) (float64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price[symbol], f.priceOK[symbol], nil
}

func (f *fakeData) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price[symbol] = price
	f.priceOK[symbol] = true
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []models.Alert
	err  error
}

func (f *fakeNotifier) SendAlert(alert models.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, alert)
	return f.err
}

func (f *fakeNotifier) alerts() []models.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Alert, len(f.sent))
	copy(out, f.sent)
	return out
}

// testMonitor wires a monitor against fakes with a controllable clock.
func testMonitor(t *testing.T, symbols ...string) (*Monitor, *fakeData, *fakeNotifier, *time.Time) {
	t.Helper()
	clock, err := session.NewClock(-4, nil)
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	data := newFakeData()
	notifier := &fakeNotifier{}
	m := New(clock, &fakeUniverse{symbols: symbols}, data, notifier, nil, Config{
		UniverseSize: 500,
		KlineLimit:   96,
		Concurrency:  4,
	})
	now := time.Date(2024, 1, 9, 10, 0, 0, 0, refZone)
	m.now = func() time.Time { return now }
	return m, data, notifier, &now
}

func asiaBars(high, low float64) []models.PriceBar {
	return []models.PriceBar{
		barAt(1, 0, high, low+2),
		barAt(2, 0, high-1, low),
	}
}

func TestTick_LondonAgainstAsiaRange(t *testing.T) {
	m, data, notifier, now := testMonitor(t, "BTCUSDT")
	data.bars["BTCUSDT"] = asiaBars(100, 90)

	// 10:00 is London; price inside the Asia range fires nothing.
	data.setPrice("BTCUSDT", 95)
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := notifier.alerts(); len(got) != 0 {
		t.Fatalf("got %d alerts at price 95, want 0", len(got))
	}
	if rng, ok := m.ranges.Get("BTCUSDT", session.Asia, m.clock.TradingDay(*now)); !ok || rng.High != 100 || rng.Low != 90 {
		t.Fatalf("asia range = (%+v, %v), want high 100 low 90", rng, ok)
	}

	// Touch of the Asia high, inclusive boundary via a later overshoot.
	data.setPrice("BTCUSDT", 101)
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got := notifier.alerts()
	if len(got) != 1 {
		t.Fatalf("got %d alerts at price 101, want 1", len(got))
	}
	a := got[0]
	if a.Source != session.Asia || a.Boundary != models.High || a.Level != 100 || a.Price != 101 || a.Active != session.London {
		t.Errorf("unexpected alert: %+v", a)
	}

	// Oscillation down through the Asia low fires the independent low key.
	data.setPrice("BTCUSDT", 94)
	_ = m.Tick(context.Background())
	// 94 > 90, so no low touch yet.
	if got := notifier.alerts(); len(got) != 1 {
		t.Fatalf("got %d alerts at price 94, want still 1", len(got))
	}
	data.setPrice("BTCUSDT", 90) // exact touch counts
	_ = m.Tick(context.Background())
	got = notifier.alerts()
	if len(got) != 2 {
		t.Fatalf("got %d alerts after low touch, want 2", len(got))
	}
	if got[1].Boundary != models.Low || got[1].Level != 90 {
		t.Errorf("unexpected low alert: %+v", got[1])
	}

	// Holding above the high must not re-fire within the cycle.
	data.setPrice("BTCUSDT", 101)
	_ = m.Tick(context.Background())
	_ = m.Tick(context.Background())
	if got := notifier.alerts(); len(got) != 2 {
		t.Errorf("got %d alerts after repeated ticks, want 2", len(got))
	}
}

func TestTick_ActiveSessionNeverSelfEvaluated(t *testing.T) {
	m, data, notifier, now := testMonitor(t, "BTCUSDT")

	// 01:30 is Asia; the asia range exists but has no prior sessions.
	*now = time.Date(2024, 1, 9, 1, 30, 0, 0, refZone)
	data.bars["BTCUSDT"] = asiaBars(100, 90)
	data.setPrice("BTCUSDT", 150)

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := notifier.alerts(); len(got) != 0 {
		t.Errorf("active session evaluated against itself: %d alerts", len(got))
	}
}

func TestTick_TransitionClearsLedger(t *testing.T) {
	m, data, notifier, now := testMonitor(t, "BTCUSDT")
	data.bars["BTCUSDT"] = asiaBars(100, 90)
	data.setPrice("BTCUSDT", 101)

	// London cycle: the asia high fires once.
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := notifier.alerts(); len(got) != 1 {
		t.Fatalf("got %d alerts in london, want 1", len(got))
	}
	if m.ledger.Len() != 1 {
		t.Fatalf("ledger has %d keys, want 1", m.ledger.Len())
	}

	// New York cycle: same price alerts again against the same level.
	*now = time.Date(2024, 1, 9, 12, 30, 0, 0, refZone)
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got := notifier.alerts()
	if len(got) != 2 {
		t.Fatalf("got %d alerts after transition, want 2", len(got))
	}
	if got[1].Active != session.NewYork || got[1].Source != session.Asia {
		t.Errorf("unexpected post-transition alert: %+v", got[1])
	}
}

func TestTick_TransitionToNoneClearsLedgerAndIdles(t *testing.T) {
	m, data, notifier, now := testMonitor(t, "BTCUSDT")
	data.bars["BTCUSDT"] = asiaBars(100, 90)
	data.setPrice("BTCUSDT", 101)

	_ = m.Tick(context.Background())
	if m.ledger.Len() != 1 {
		t.Fatalf("ledger has %d keys, want 1", m.ledger.Len())
	}

	// 17:00 falls in the session-less gap: the pass is skipped entirely,
	// but the transition still clears the ledger.
	*now = time.Date(2024, 1, 9, 17, 0, 0, 0, refZone)
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick while idle: %v", err)
	}
	if m.ledger.Len() != 0 {
		t.Errorf("ledger has %d keys after idle transition, want 0", m.ledger.Len())
	}
	if got := notifier.alerts(); len(got) != 1 {
		t.Errorf("idle tick delivered alerts: %d total, want 1", len(got))
	}
}

func TestTick_NoBarsMeansNoActivity(t *testing.T) {
	m, data, notifier, _ := testMonitor(t, "BTCUSDT")
	data.bars["BTCUSDT"] = nil
	data.setPrice("BTCUSDT", 101)

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := notifier.alerts(); len(got) != 0 {
		t.Errorf("got %d alerts with no bars, want 0", len(got))
	}
	if m.ranges.Len() != 0 {
		t.Errorf("ranges recorded without bars: %d", m.ranges.Len())
	}
}

func TestTick_SymbolFailureDoesNotAbort(t *testing.T) {
	m, data, notifier, _ := testMonitor(t, "FAILUSDT", "BTCUSDT")
	data.barsErr["FAILUSDT"] = errors.New("timeout")
	data.bars["BTCUSDT"] = asiaBars(100, 90)
	data.setPrice("BTCUSDT", 101)

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	got := notifier.alerts()
	if len(got) != 1 || got[0].Symbol != "BTCUSDT" {
		t.Errorf("healthy symbol did not alert: %+v", got)
	}
}

func TestTick_MissingPriceSkipsDetection(t *testing.T) {
	m, data, notifier, now := testMonitor(t, "BTCUSDT")
	data.bars["BTCUSDT"] = asiaBars(100, 90)
	// Price never set: priceOK stays false.

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if got := notifier.alerts(); len(got) != 0 {
		t.Errorf("got %d alerts without a price, want 0", len(got))
	}
	// Ranges are still recorded so a later tick can detect immediately.
	if _, ok := m.ranges.Get("BTCUSDT", session.Asia, m.clock.TradingDay(*now)); !ok {
		t.Error("asia range missing despite available bars")
	}
}

func TestTick_UniverseFailure(t *testing.T) {
	clock, _ := session.NewClock(-4, nil)
	universe := &fakeUniverse{err: errors.New("api down")}
	m := New(clock, universe, newFakeData(), nil, nil, DefaultConfig())
	m.now = func() time.Time { return time.Date(2024, 1, 9, 10, 0, 0, 0, refZone) }

	if err := m.Tick(context.Background()); err == nil {
		t.Error("expected error when no universe is available")
	}
}

func TestTick_UniverseCachedWithinDay(t *testing.T) {
	m, data, _, _ := testMonitor(t, "BTCUSDT")
	data.bars["BTCUSDT"] = asiaBars(100, 90)
	data.setPrice("BTCUSDT", 95)

	_ = m.Tick(context.Background())
	_ = m.Tick(context.Background())
	_ = m.Tick(context.Background())

	if calls := m.universe.(*fakeUniverse).calls; calls != 1 {
		t.Errorf("universe fetched %d times within one day, want 1", calls)
	}
}

func TestTick_NotifierFailureStillDedupes(t *testing.T) {
	m, data, notifier, _ := testMonitor(t, "BTCUSDT")
	notifier.err = errors.New("telegram down")
	data.bars["BTCUSDT"] = asiaBars(100, 90)
	data.setPrice("BTCUSDT", 101)

	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// Fire-and-forget: exactly one delivery attempt even though it failed.
	if got := notifier.alerts(); len(got) != 1 {
		t.Errorf("got %d delivery attempts, want 1", len(got))
	}
}
