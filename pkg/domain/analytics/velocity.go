// Package analytics derives completion velocity and a simple forecast from
// task completion times.
package analytics

import (
	"math"
	"time"
)

// TrendDirection indicates the direction of velocity change over time.
type TrendDirection string

const (
	TrendAccelerating TrendDirection = "accelerating"
	TrendDecelerating TrendDirection = "decelerating"
	TrendStable       TrendDirection = "stable"
)

// DefaultWindows are the look-back windows in days, most recent first.
var DefaultWindows = []int{7, 14, 30}

// trendThreshold is the relative change needed to leave TrendStable.
const trendThreshold = 0.1

// Completion is one finished task.
type Completion struct {
	At     time.Time
	Points int
}

// VelocityWindow is velocity over the last Days days.
type VelocityWindow struct {
	Days     int     `json:"days"`
	Count    int     `json:"count"`
	Points   int     `json:"points"`
	Velocity float64 `json:"velocity"` // tasks per day
}

// VelocityTrend compares the shortest window with the longest.
type VelocityTrend struct {
	Direction  TrendDirection   `json:"direction"`
	Slope      float64          `json:"slope"`
	Confidence float64          `json:"confidence"`
	Windows    []VelocityWindow `json:"windows"`
}

// ConfidenceInterval holds low/expected/high estimates in days.
type ConfidenceInterval struct {
	Low      float64 `json:"low"`
	Expected float64 `json:"expected"`
	High     float64 `json:"high"`
}

// Range returns the difference between high and low estimates.
func (ci ConfidenceInterval) Range() float64 {
	return ci.High - ci.Low
}

// Forecast projects when the remaining tasks will be done.
type Forecast struct {
	Remaining     int                `json:"remaining"`
	Velocity      float64            `json:"velocity"`
	EstimatedDays float64            `json:"estimatedDays"`
	Interval      ConfidenceInterval `json:"interval"`
	Trend         VelocityTrend      `json:"trend"`
	// CompletionDate is nil when velocity is zero or nothing remains.
	CompletionDate *time.Time `json:"completionDate,omitempty"`
}

// OnTrack reports whether work is progressing without slowing down.
func (f Forecast) OnTrack() bool {
	return f.Trend.Direction != TrendDecelerating && f.Velocity > 0
}

// Windows counts completions inside each look-back window ending at now.
func Windows(completions []Completion, now time.Time, days ...int) []VelocityWindow {
	if len(days) == 0 {
		days = DefaultWindows
	}
	out := make([]VelocityWindow, 0, len(days))
	for _, d := range days {
		if d <= 0 {
			continue
		}
		cutoff := now.AddDate(0, 0, -d)
		w := VelocityWindow{Days: d}
		for _, c := range completions {
			if c.At.After(cutoff) && !c.At.After(now) {
				w.Count++
				w.Points += c.Points
			}
		}
		w.Velocity = float64(w.Count) / float64(d)
		out = append(out, w)
	}
	return out
}

// Trend compares the first (most recent) window with the last.
func Trend(windows []VelocityWindow) VelocityTrend {
	t := VelocityTrend{Direction: TrendStable, Windows: windows}
	if len(windows) < 2 {
		return t
	}
	short := windows[0].Velocity
	long := windows[len(windows)-1].Velocity
	if short == 0 && long == 0 {
		return t
	}

	switch {
	case long > 0:
		t.Slope = (short - long) / long
	case short > 0:
		t.Slope = 1
	}
	switch {
	case t.Slope > trendThreshold:
		t.Direction = TrendAccelerating
	case t.Slope < -trendThreshold:
		t.Direction = TrendDecelerating
	}
	t.Confidence = confidence(windows)
	return t
}

// confidence mixes data volume (log scale) with consistency across windows.
func confidence(windows []VelocityWindow) float64 {
	total := 0
	mean := 0.0
	for _, w := range windows {
		total += w.Count
		mean += w.Velocity
	}
	mean /= float64(len(windows))

	variance := 0.0
	for _, w := range windows {
		d := w.Velocity - mean
		variance += d * d
	}
	variance /= float64(len(windows))

	volume := math.Min(math.Log10(float64(total+1))/2, 1)
	consistency := 0.5
	if mean > 0 {
		consistency = math.Max(0, 1-math.Sqrt(variance)/mean)
	}
	return (volume + consistency) / 2
}

// NewForecast projects the remaining work using the most recent window's
// velocity, widening the interval for a slowing or uncertain trend.
func NewForecast(remaining int, completions []Completion, now time.Time) Forecast {
	trend := Trend(Windows(completions, now))
	f := Forecast{Remaining: remaining, Trend: trend}
	if len(trend.Windows) > 0 {
		f.Velocity = trend.Windows[0].Velocity
	}
	if f.Velocity <= 0 || remaining <= 0 {
		return f
	}

	expected := float64(remaining) / f.Velocity
	f.EstimatedDays = expected
	f.Interval = interval(expected, trend)
	done := now.Add(time.Duration(expected * 24 * float64(time.Hour)))
	f.CompletionDate = &done
	return f
}

func interval(expected float64, trend VelocityTrend) ConfidenceInterval {
	var low, high float64
	switch trend.Direction {
	case TrendAccelerating:
		low, high = expected*0.7, expected*1.2
	case TrendDecelerating:
		low, high = expected*0.9, expected*1.8
	default:
		low, high = expected*0.8, expected*1.3
	}
	if trend.Confidence < 0.5 {
		low *= 0.8
		high *= 1.5
	}
	return ConfidenceInterval{Low: low, Expected: expected, High: high}
}
