package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/sessionwatch/internal/session"
)

// Boundary identifies which edge of a session range was touched.
type Boundary int

const (
	High Boundary = iota
	Low
)

func (b Boundary) String() string {
	if b == High {
		return "HIGH"
	}
	return "LOW"
}

// ParseBoundary maps a stored boundary name back to its Boundary value.
func ParseBoundary(name string) (Boundary, error) {
	switch name {
	case "HIGH":
		return High, nil
	case "LOW":
		return Low, nil
	}
	return 0, fmt.Errorf("unknown boundary %q", name)
}

// AlertKey identifies one potential notification: one symbol touching one
// boundary of one source session's range. At most one alert per key is
// delivered per session cycle.
type AlertKey struct {
	Symbol   string
	Source   session.Session
	Boundary Boundary
}

// Alert is one delivered level-touch notification.
type Alert struct {
	ID       string
	Symbol   string
	Source   session.Session // session whose range was touched
	Boundary Boundary
	Level    float64 // the range boundary that was touched
	Price    float64 // live price at detection time
	Active   session.Session // session during which the touch happened
	SentAt   time.Time
}

// Key returns the deduplication key for the alert.
func (a *Alert) Key() AlertKey {
	return AlertKey{Symbol: a.Symbol, Source: a.Source, Boundary: a.Boundary}
}

// Validate checks alert field constraints.
func (a *Alert) Validate() error {
	if a.ID == "" {
		return errors.New("alert ID must not be empty")
	}
	if a.Symbol == "" {
		return errors.New("alert symbol must not be empty")
	}
	if a.Level <= 0 {
		return errors.New("alert level must be positive")
	}
	if a.Price <= 0 {
		return errors.New("alert price must be positive")
	}
	if a.SentAt.IsZero() {
		return errors.New("alert sent time must be set")
	}
	return nil
}
