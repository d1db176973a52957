package service

import (
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/tutor-ops-api/internal/dto"
	"github.com/noah-isme/tutor-ops-api/internal/models"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
)

// reservedMetric collides with the flattened bucket date key.
const reservedMetric = "date"

// ParseInterval normalises a client-supplied interval name.
func ParseInterval(raw string) (models.Interval, error) {
	interval := models.Interval(strings.ToUpper(strings.TrimSpace(raw)))
	if !interval.Valid() {
		return "", appErrors.WithDetails(appErrors.ErrValidation, "interval must be one of DAILY, WEEKLY, MONTHLY, YEARLY", "field", "interval", "value", raw)
	}
	return interval, nil
}

// ParsePoints converts raw points into typed points. Any point with an
// unparseable date or a reserved metric name rejects the whole batch and the
// offending indexes are reported.
func ParsePoints(raw []dto.RawTimeSeriesPoint) ([]models.TimeSeriesPoint, error) {
	points := make([]models.TimeSeriesPoint, 0, len(raw))
	var invalid []int
	for i, item := range raw {
		date, err := parseDay(item.Date)
		if err != nil {
			invalid = append(invalid, i)
			continue
		}
		if _, reserved := item.Metrics[reservedMetric]; reserved {
			invalid = append(invalid, i)
			continue
		}
		metrics := make(map[string]float64, len(item.Metrics))
		for name, value := range item.Metrics {
			metrics[name] = value
		}
		points = append(points, models.TimeSeriesPoint{Date: date, Metrics: metrics})
	}
	if len(invalid) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid time series points", "field", "points", "invalid_indexes", invalid)
	}
	return points, nil
}

// CanonicalKey maps a date to the start of its bucket. Weeks start on Monday.
func CanonicalKey(date time.Time, interval models.Interval) time.Time {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	switch interval {
	case models.IntervalWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case models.IntervalMonthly:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	case models.IntervalYearly:
		return time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Aggregate groups points by canonical key and sums each metric. The output
// is sorted ascending and independent of input order.
func Aggregate(points []models.TimeSeriesPoint, interval models.Interval) ([]models.Bucket, error) {
	if !interval.Valid() {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "unsupported interval", "field", "interval", "value", string(interval))
	}
	index := make(map[string]*models.Bucket)
	for i, point := range points {
		if point.Date.IsZero() {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "time series point has no date", "field", "points", "index", i)
		}
		key := CanonicalKey(point.Date, interval)
		isoKey := key.Format(models.DateLayout)
		bucket, ok := index[isoKey]
		if !ok {
			bucket = &models.Bucket{Date: key, Metrics: make(map[string]float64, len(point.Metrics))}
			index[isoKey] = bucket
		}
		for name, value := range point.Metrics {
			bucket.Metrics[name] += value
		}
	}

	buckets := make([]models.Bucket, 0, len(index))
	for _, bucket := range index {
		buckets = append(buckets, *bucket)
	}
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Date.Before(buckets[j].Date)
	})
	return buckets, nil
}

// ChartWidthPercent is the scrollable chart width hint: 100% until the bucket
// count exceeds the interval's visible minimum, then proportionally wider.
func ChartWidthPercent(bucketCount int, interval models.Interval) float64 {
	minPoints := interval.MinVisiblePoints()
	if bucketCount > minPoints {
		return float64(bucketCount) / float64(minPoints) * 100
	}
	return 100
}

// BuildSeries aggregates points and attaches the presentation hints.
func BuildSeries(points []models.TimeSeriesPoint, interval models.Interval) (*models.TimeSeries, error) {
	buckets, err := Aggregate(points, interval)
	if err != nil {
		return nil, err
	}
	return &models.TimeSeries{
		Interval:     interval,
		Buckets:      buckets,
		MinPoints:    interval.MinVisiblePoints(),
		WidthPercent: ChartWidthPercent(len(buckets), interval),
	}, nil
}

func parseDay(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(models.DateLayout, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}
