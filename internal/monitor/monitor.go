// Package monitor implements the session range tracker and breakout-alert
// engine: per-tick classification of the active session, session high/low
// bookkeeping, and exactly-once level-touch alerting.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/sessionwatch/internal/logger"
	"github.com/rewired-gh/sessionwatch/internal/models"
	"github.com/rewired-gh/sessionwatch/internal/session"
)

// UniverseProvider ranks tradable symbols by recent traded volume.
// Best effort: it may return fewer symbols than asked for.
type UniverseProvider interface {
	TopSymbols(ctx context.Context, limit int) ([]string, error)
}

// MarketData supplies historical bars and the live price for a symbol.
// Empty results mean "no data yet", not failure.
type MarketData interface {
	FetchKlines(ctx context.Context, symbol string, limit int) ([]models.PriceBar, error)
	FetchPrice(ctx context.Context, symbol string) (float64, bool, error)
}

// Notifier delivers a level-touch alert to the operator channel.
type Notifier interface {
	SendAlert(alert models.Alert) error
}

// AuditLog records delivered alerts and computed ranges for later
// inspection. Its failures never affect a tick.
type AuditLog interface {
	RecordAlert(alert *models.Alert) error
	RecordRange(rng models.SessionRange) error
}

type Config struct {
	UniverseSize int // how many top-volume symbols to track
	KlineLimit   int // 15m bars fetched per symbol; 96 covers 24h
	Concurrency  int // max symbols processed in parallel per tick
}

func DefaultConfig() Config {
	return Config{
		UniverseSize: 500,
		KlineLimit:   96,
		Concurrency:  8,
	}
}

// Monitor drives one breakout-detection pass per tick over the symbol
// universe. It is Idle while no session window is active.
type Monitor struct {
	universe UniverseProvider
	data     MarketData
	notifier Notifier // nil disables delivery; emissions are logged only
	audit    AuditLog // nil disables the audit trail
	clock    *session.Clock
	ranges   *RangeStore
	ledger   *Ledger
	config   Config

	// previousActiveSession as observed at the last tick.
	prevActive session.Session
	prevOK     bool

	symbols    []string
	symbolsDay string

	now func() time.Time
}

func New(clock *session.Clock, universe UniverseProvider, data MarketData, notifier Notifier, audit AuditLog, config Config) *Monitor {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	return &Monitor{
		universe: universe,
		data:     data,
		notifier: notifier,
		audit:    audit,
		clock:    clock,
		ranges:   NewRangeStore(),
		ledger:   NewLedger(),
		config:   config,
		now:      time.Now,
	}
}

// Tick runs one monitoring pass: session-transition handling, then a
// bounded-fan-out sweep over the universe. A single symbol's failure is
// logged and skipped; Tick itself fails only when no symbol universe is
// available at all.
func (m *Monitor) Tick(ctx context.Context) error {
	now := m.now()
	active, ok := m.clock.Classify(now)

	// The ledger clear must happen exactly once per transition, before any
	// symbol's detection runs. Transitions to and from "no session" count.
	if ok != m.prevOK || (ok && active != m.prevActive) {
		cleared := m.ledger.Len()
		m.ledger.Clear()
		logger.Info("Session transition %s -> %s, cleared %d alerted levels",
			sessionName(m.prevActive, m.prevOK), sessionName(active, ok), cleared)
	}
	m.prevActive, m.prevOK = active, ok

	if !ok {
		logger.Debug("No active session, skipping pass")
		return nil
	}

	day := m.clock.TradingDay(now)
	symbols, err := m.universeSymbols(ctx, day)
	if err != nil {
		return fmt.Errorf("failed to resolve symbol universe: %w", err)
	}
	logger.Debug("Active session %s (trading day %s), sweeping %d symbols", active, day, len(symbols))

	sem := make(chan struct{}, m.config.Concurrency)
	var wg sync.WaitGroup
	for _, symbol := range symbols {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			defer func() { <-sem }()
			m.processSymbol(ctx, symbol, active, day)
		}(symbol)
	}
	wg.Wait()
	return nil
}

func sessionName(s session.Session, ok bool) string {
	if !ok {
		return "none"
	}
	return s.String()
}

// universeSymbols returns the cached top-volume universe, refreshing it on
// the first sweep of each trading day. A failed refresh falls back to the
// previous universe when one exists.
func (m *Monitor) universeSymbols(ctx context.Context, day string) ([]string, error) {
	if len(m.symbols) > 0 && m.symbolsDay == day {
		return m.symbols, nil
	}
	symbols, err := m.universe.TopSymbols(ctx, m.config.UniverseSize)
	if err != nil || len(symbols) == 0 {
		if len(m.symbols) > 0 {
			logger.Warn("Universe refresh failed (%v), keeping %d cached symbols", err, len(m.symbols))
			m.symbolsDay = day
			return m.symbols, nil
		}
		if err == nil {
			err = errors.New("universe provider returned no symbols")
		}
		return nil, err
	}
	m.symbols = symbols
	m.symbolsDay = day
	logger.Info("Tracking %d top-volume symbols", len(symbols))
	return symbols, nil
}

// processSymbol runs the fetch -> update ranges -> detect -> alert sequence
// for one symbol. Any failure skips the symbol for this tick only; the next
// tick retries naturally.
func (m *Monitor) processSymbol(ctx context.Context, symbol string, active session.Session, day string) {
	bars, err := m.data.FetchKlines(ctx, symbol, m.config.KlineLimit)
	if err != nil {
		logger.Warn("Failed to fetch bars for %s: %v", symbol, err)
		return
	}

	// Record a range for every session with at least one bar in the fetch
	// window, not just the active one.
	for sess, sessionBars := range SplitBySession(m.clock, bars) {
		rng, created, ok := m.ranges.GetOrCompute(symbol, sess, day, sessionBars)
		if !ok || !created {
			continue
		}
		logger.Info("%s %s session range: high=%g low=%g", symbol, sess, rng.High, rng.Low)
		if m.audit != nil {
			if err := m.audit.RecordRange(rng); err != nil {
				logger.Warn("Failed to record %s %s range: %v", symbol, sess, err)
			}
		}
	}

	price, ok, err := m.data.FetchPrice(ctx, symbol)
	if err != nil {
		logger.Warn("Failed to fetch price for %s: %v", symbol, err)
		return
	}
	if !ok {
		logger.Debug("No price for %s yet", symbol)
		return
	}

	for _, alert := range m.evaluate(symbol, active, day, price) {
		m.deliver(alert)
	}
}

// evaluate compares price against the recorded ranges of the sessions that
// precede active in the Asia -> London -> New York sequence and claims a
// ledger slot for each fresh touch. Touches are inclusive; the high and low
// of the same source session fire independently.
func (m *Monitor) evaluate(symbol string, active session.Session, day string, price float64) []models.Alert {
	var alerts []models.Alert
	for _, src := range session.Prior(active) {
		rng, ok := m.ranges.Get(symbol, src, day)
		if !ok {
			continue
		}
		if price >= rng.High {
			alerts = m.claim(alerts, symbol, src, models.High, rng.High, active, price)
		}
		if price <= rng.Low {
			alerts = m.claim(alerts, symbol, src, models.Low, rng.Low, active, price)
		}
	}
	return alerts
}

func (m *Monitor) claim(alerts []models.Alert, symbol string, src session.Session, boundary models.Boundary, level float64, active session.Session, price float64) []models.Alert {
	key := models.AlertKey{Symbol: symbol, Source: src, Boundary: boundary}
	if !m.ledger.MarkIfNew(key) {
		return alerts
	}
	return append(alerts, models.Alert{
		ID:       uuid.New().String(),
		Symbol:   symbol,
		Source:   src,
		Boundary: boundary,
		Level:    level,
		Price:    price,
		Active:   active,
		SentAt:   m.now(),
	})
}

// deliver is fire-and-forget: the ledger slot stays claimed even when
// delivery fails, so a flaky notifier cannot flood the channel with
// duplicates.
func (m *Monitor) deliver(alert models.Alert) {
	if m.notifier == nil {
		logger.Info("Alert (delivery disabled): %s touched %s session %s (%g) in %s session at %g",
			alert.Symbol, alert.Source.Display(), alert.Boundary, alert.Level, alert.Active.Display(), alert.Price)
	} else if err := m.notifier.SendAlert(alert); err != nil {
		logger.Error("Failed to deliver alert for %s: %v", alert.Symbol, err)
	}
	if m.audit != nil {
		if err := m.audit.RecordAlert(&alert); err != nil {
			logger.Warn("Failed to record alert for %s: %v", alert.Symbol, err)
		}
	}
}
