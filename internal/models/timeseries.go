package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Interval is the bucket granularity of a time series.
type Interval string

const (
	IntervalDaily   Interval = "DAILY"
	IntervalWeekly  Interval = "WEEKLY"
	IntervalMonthly Interval = "MONTHLY"
	IntervalYearly  Interval = "YEARLY"
)

// Valid returns true when the interval is supported.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly, IntervalYearly:
		return true
	default:
		return false
	}
}

// MinVisiblePoints is the number of buckets a chart shows without scrolling.
func (i Interval) MinVisiblePoints() int {
	switch i {
	case IntervalDaily:
		return 30
	case IntervalWeekly, IntervalMonthly:
		return 12
	case IntervalYearly:
		return 5
	default:
		return 12
	}
}

// TimeSeriesPoint is one dated sample carrying named metrics.
type TimeSeriesPoint struct {
	Date    time.Time
	Metrics map[string]float64
}

// Bucket holds the per-metric sums for one canonical date key.
type Bucket struct {
	Date    time.Time
	Metrics map[string]float64
}

// MarshalJSON flattens metrics next to the date key, e.g. {"date":"2024-01-01","fees":150}.
func (b Bucket) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(b.Metrics)+1)
	for name, value := range b.Metrics {
		out[name] = value
	}
	out["date"] = b.Date.Format(DateLayout)
	return json.Marshal(out)
}

// UnmarshalJSON reverses MarshalJSON so cached series round-trip.
func (b *Bucket) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var date string
	if err := json.Unmarshal(raw["date"], &date); err != nil {
		return fmt.Errorf("bucket date: %w", err)
	}
	parsed, err := time.Parse(DateLayout, date)
	if err != nil {
		return fmt.Errorf("bucket date: %w", err)
	}
	delete(raw, "date")
	metrics := make(map[string]float64, len(raw))
	for name, value := range raw {
		var v float64
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("bucket metric %s: %w", name, err)
		}
		metrics[name] = v
	}
	b.Date = parsed
	b.Metrics = metrics
	return nil
}

// TimeSeries is a chart-ready aggregated series.
type TimeSeries struct {
	Interval     Interval `json:"interval"`
	Buckets      []Bucket `json:"buckets"`
	MinPoints    int      `json:"min_points"`
	WidthPercent float64  `json:"width_percent"`
}

// TrendFilter scopes dashboard trend queries. From/To are inclusive calendar days.
type TrendFilter struct {
	From     time.Time
	To       time.Time
	ClassID  string
	TutorID  string
	Interval Interval
}
