package monitor

import (
	"sync"
	"time"

	"github.com/rewired-gh/sessionwatch/internal/models"
	"github.com/rewired-gh/sessionwatch/internal/session"
)

type rangeKey struct {
	symbol string
	sess   session.Session
}

// RangeStore caches one SessionRange per (symbol, session) for the current
// trading day. Writes are first-write-wins: once a range is recorded it
// stays fixed for the rest of the day, so breakout comparisons always
// target a stable reference level instead of one that drifts as the source
// session's own bars keep streaming in.
//
// Session transitions never touch the store; earlier sessions' ranges must
// stay readable for later sessions on the same trading day. All ranges are
// dropped when the trading day changes.
type RangeStore struct {
	mu     sync.Mutex
	day    string
	ranges map[rangeKey]models.SessionRange
}

func NewRangeStore() *RangeStore {
	return &RangeStore{ranges: make(map[rangeKey]models.SessionRange)}
}

// rollover drops stale ranges when the trading day changes. Caller holds mu.
func (rs *RangeStore) rollover(day string) {
	if rs.day == day {
		return
	}
	rs.day = day
	rs.ranges = make(map[rangeKey]models.SessionRange)
}

// GetOrCompute returns the recorded range for (symbol, sess), computing and
// recording one from bars on first sight. created reports whether this call
// recorded a new range; ok is false when no range exists and bars is empty.
func (rs *RangeStore) GetOrCompute(symbol string, sess session.Session, day string, bars []models.PriceBar) (rng models.SessionRange, created, ok bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rollover(day)

	key := rangeKey{symbol: symbol, sess: sess}
	if r, exists := rs.ranges[key]; exists {
		return r, false, true
	}

	high, low, reduced := Reduce(bars)
	if !reduced {
		return models.SessionRange{}, false, false
	}
	r := models.SessionRange{
		Symbol:     symbol,
		Session:    sess,
		High:       high,
		Low:        low,
		TradingDay: day,
		ComputedAt: time.Now(),
	}
	rs.ranges[key] = r
	return r, true, true
}

// Get looks up the recorded range for (symbol, sess). It never computes.
func (rs *RangeStore) Get(symbol string, sess session.Session, day string) (models.SessionRange, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.rollover(day)

	r, ok := rs.ranges[rangeKey{symbol: symbol, sess: sess}]
	return r, ok
}

// Len returns the number of recorded ranges.
func (rs *RangeStore) Len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.ranges)
}
