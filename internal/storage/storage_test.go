package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/rewired-gh/sessionwatch/internal/models"
	"github.com/rewired-gh/sessionwatch/internal/session"
)

func newTestStorage(t *testing.T, maxAlerts int) *Storage {
	t.Helper()
	s, err := New(maxAlerts, ":memory:")
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testAlert(symbol string, sentAt time.Time) *models.Alert {
	return &models.Alert{
		Symbol:   symbol,
		Source:   session.Asia,
		Boundary: models.High,
		Level:    100,
		Price:    101.5,
		Active:   session.London,
		SentAt:   sentAt,
	}
}

func TestStorage_RecordAndListAlerts(t *testing.T) {
	s := newTestStorage(t, 100)
	now := time.Now()

	a := testAlert("BTCUSDT", now)
	if err := s.RecordAlert(a); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	if a.ID == "" {
		t.Fatal("RecordAlert did not assign an ID")
	}

	alerts, err := s.RecentAlerts(10)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("got %d alerts, want 1", len(alerts))
	}
	got := alerts[0]
	if got.Symbol != "BTCUSDT" || got.Source != session.Asia || got.Boundary != models.High {
		t.Errorf("round-tripped alert = %+v", got)
	}
	if got.Level != 100 || got.Price != 101.5 || got.Active != session.London {
		t.Errorf("round-tripped alert fields = %+v", got)
	}
}

func TestStorage_RecordAlert_Invalid(t *testing.T) {
	s := newTestStorage(t, 100)
	bad := testAlert("", time.Now())
	if err := s.RecordAlert(bad); err == nil {
		t.Error("expected error for alert without symbol")
	}
}

func TestStorage_AlertCap(t *testing.T) {
	s := newTestStorage(t, 3)
	base := time.Now()

	for i := 0; i < 5; i++ {
		a := testAlert(fmt.Sprintf("SYM%dUSDT", i), base.Add(time.Duration(i)*time.Minute))
		if err := s.RecordAlert(a); err != nil {
			t.Fatalf("RecordAlert %d: %v", i, err)
		}
	}

	alerts, err := s.RecentAlerts(10)
	if err != nil {
		t.Fatalf("RecentAlerts: %v", err)
	}
	if len(alerts) != 3 {
		t.Fatalf("got %d alerts, want 3 (cap enforced)", len(alerts))
	}
	if alerts[0].Symbol != "SYM4USDT" {
		t.Errorf("newest alert = %s, want SYM4USDT", alerts[0].Symbol)
	}
}

func TestStorage_RecordRange_FirstWriteWins(t *testing.T) {
	s := newTestStorage(t, 100)
	rng := models.SessionRange{
		Symbol:     "BTCUSDT",
		Session:    session.Asia,
		High:       100,
		Low:        90,
		TradingDay: "2024-01-09",
		ComputedAt: time.Now(),
	}
	if err := s.RecordRange(rng); err != nil {
		t.Fatalf("RecordRange: %v", err)
	}

	drifted := rng
	drifted.High = 120
	if err := s.RecordRange(drifted); err != nil {
		t.Fatalf("RecordRange (second): %v", err)
	}

	ranges, err := s.RangesForDay("2024-01-09")
	if err != nil {
		t.Fatalf("RangesForDay: %v", err)
	}
	if len(ranges) != 1 {
		t.Fatalf("got %d ranges, want 1", len(ranges))
	}
	if ranges[0].High != 100 {
		t.Errorf("range high = %g, want 100 (first write wins)", ranges[0].High)
	}
}

func TestStorage_PruneRanges(t *testing.T) {
	s := newTestStorage(t, 100)
	for _, day := range []string{"2024-01-08", "2024-01-09"} {
		err := s.RecordRange(models.SessionRange{
			Symbol:     "BTCUSDT",
			Session:    session.London,
			High:       100,
			Low:        90,
			TradingDay: day,
			ComputedAt: time.Now(),
		})
		if err != nil {
			t.Fatalf("RecordRange %s: %v", day, err)
		}
	}

	if err := s.PruneRanges("2024-01-09"); err != nil {
		t.Fatalf("PruneRanges: %v", err)
	}

	old, err := s.RangesForDay("2024-01-08")
	if err != nil {
		t.Fatalf("RangesForDay: %v", err)
	}
	if len(old) != 0 {
		t.Errorf("old ranges survived prune: %d", len(old))
	}
	current, err := s.RangesForDay("2024-01-09")
	if err != nil {
		t.Fatalf("RangesForDay: %v", err)
	}
	if len(current) != 1 {
		t.Errorf("current day pruned: got %d ranges, want 1", len(current))
	}
}
