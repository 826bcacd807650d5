// Package models defines the core domain entities: price bars, session
// ranges, and level-touch alerts.
package models

import (
	"errors"
	"time"

	"github.com/rewired-gh/sessionwatch/internal/session"
)

// PriceBar is one fixed-duration interval of price action for one symbol.
type PriceBar struct {
	OpenTime time.Time `json:"open_time"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
}

// Validate checks bar field constraints.
func (b *PriceBar) Validate() error {
	if b.OpenTime.IsZero() {
		return errors.New("bar open time must be set")
	}
	if b.High <= 0 || b.Low <= 0 {
		return errors.New("bar prices must be positive")
	}
	if b.High < b.Low {
		return errors.New("bar high must not be below low")
	}
	return nil
}

// SessionRange is the high/low extent realized during one occurrence of a
// session for one symbol. Immutable once computed for a trading day.
type SessionRange struct {
	Symbol     string
	Session    session.Session
	High       float64
	Low        float64
	TradingDay string
	ComputedAt time.Time
}
