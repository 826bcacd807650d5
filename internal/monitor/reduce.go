package monitor

import (
	"github.com/rewired-gh/sessionwatch/internal/models"
	"github.com/rewired-gh/sessionwatch/internal/session"
)

// Reduce collapses bars to the maximum high and minimum low across them.
// ok is false on empty input. The result does not depend on bar order.
func Reduce(bars []models.PriceBar) (high, low float64, ok bool) {
	if len(bars) == 0 {
		return 0, 0, false
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low, true
}

// SplitBySession buckets bars by the session window their open time falls
// in. Bars belonging to no session are dropped.
func SplitBySession(clock *session.Clock, bars []models.PriceBar) map[session.Session][]models.PriceBar {
	buckets := make(map[session.Session][]models.PriceBar)
	for _, b := range bars {
		if s, ok := clock.Classify(b.OpenTime); ok {
			buckets[s] = append(buckets[s], b)
		}
	}
	return buckets
}
