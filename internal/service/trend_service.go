package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-ops-api/internal/dto"
	"github.com/noah-isme/tutor-ops-api/internal/models"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
)

const (
	paymentTrendPrefix     = "trend:payments"
	attendanceTrendPrefix  = "trend:attendance"
	paymentTrendPattern    = paymentTrendPrefix + ":*"
	attendanceTrendPattern = attendanceTrendPrefix + ":*"
)

// maxTrendSpan bounds a single query so daily series stay chart-sized.
const maxTrendSpan = 5 * 366 * 24 * time.Hour

type trendSource interface {
	PaymentPoints(ctx context.Context, filter models.TrendFilter) ([]models.TimeSeriesPoint, error)
	AttendancePoints(ctx context.Context, filter models.TrendFilter) ([]models.TimeSeriesPoint, error)
}

// TrendServiceConfig tunes trend caching.
type TrendServiceConfig struct {
	CacheTTL time.Duration
}

// TrendService builds dashboard time series from payment and attendance history.
type TrendService struct {
	source    trendSource
	cache     *CacheService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TrendServiceConfig
}

// NewTrendService constructs a TrendService.
func NewTrendService(source trendSource, cache *CacheService, validate *validator.Validate, logger *zap.Logger, cfg TrendServiceConfig) *TrendService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &TrendService{source: source, cache: cache, validator: validate, logger: logger, cfg: cfg}
}

// ParseTrendQuery turns query-string input into a validated filter. The date
// range is explicit; nothing is derived from the wall clock.
func (s *TrendService) ParseTrendQuery(q dto.TrendQuery) (models.TrendFilter, error) {
	if err := s.validator.Struct(q); err != nil {
		return models.TrendFilter{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid trend query")
	}
	from, err := time.Parse(models.DateLayout, strings.TrimSpace(q.From))
	if err != nil {
		return models.TrendFilter{}, appErrors.WithDetails(appErrors.ErrValidation, "from must be YYYY-MM-DD", "field", "from", "value", q.From)
	}
	to, err := time.Parse(models.DateLayout, strings.TrimSpace(q.To))
	if err != nil {
		return models.TrendFilter{}, appErrors.WithDetails(appErrors.ErrValidation, "to must be YYYY-MM-DD", "field", "to", "value", q.To)
	}
	if to.Before(from) {
		return models.TrendFilter{}, appErrors.WithDetails(appErrors.ErrValidation, "to must not be before from", "field", "to")
	}
	if to.Sub(from) > maxTrendSpan {
		return models.TrendFilter{}, appErrors.WithDetails(appErrors.ErrValidation, "date range is too wide", "field", "to", "max_days", int(maxTrendSpan/(24*time.Hour)))
	}
	interval := models.IntervalMonthly
	if strings.TrimSpace(q.Interval) != "" {
		if interval, err = ParseInterval(q.Interval); err != nil {
			return models.TrendFilter{}, err
		}
	}
	return models.TrendFilter{
		From:     from,
		To:       to,
		ClassID:  strings.TrimSpace(q.ClassID),
		TutorID:  strings.TrimSpace(q.TutorID),
		Interval: interval,
	}, nil
}

// Payments returns the payment series (amount, paid, payments) for the filter.
func (s *TrendService) Payments(ctx context.Context, filter models.TrendFilter) (*models.TimeSeries, bool, error) {
	return s.series(ctx, paymentTrendPrefix, filter, s.source.PaymentPoints)
}

// Attendance returns the attendance series (sessions, hours, absences) for the filter.
func (s *TrendService) Attendance(ctx context.Context, filter models.TrendFilter) (*models.TimeSeries, bool, error) {
	return s.series(ctx, attendanceTrendPrefix, filter, s.source.AttendancePoints)
}

// AggregateRaw parses and aggregates ad-hoc points posted by a client.
func (s *TrendService) AggregateRaw(req dto.AggregateRequest) (*models.TimeSeries, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid aggregate request")
	}
	interval, err := ParseInterval(req.Interval)
	if err != nil {
		return nil, err
	}
	points, err := ParsePoints(req.Points)
	if err != nil {
		return nil, err
	}
	return BuildSeries(points, interval)
}

func (s *TrendService) series(ctx context.Context, prefix string, filter models.TrendFilter, load func(context.Context, models.TrendFilter) ([]models.TimeSeriesPoint, error)) (*models.TimeSeries, bool, error) {
	if !filter.Interval.Valid() {
		return nil, false, appErrors.WithDetails(appErrors.ErrValidation, "unsupported interval", "field", "interval", "value", string(filter.Interval))
	}
	key := trendCacheKey(prefix, filter)
	return Remember(ctx, s.cache, key, s.cfg.CacheTTL, func() (*models.TimeSeries, error) {
		points, err := load(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load trend history")
		}
		series, err := BuildSeries(points, filter.Interval)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("trend series built", zap.String("key", key), zap.Int("points", len(points)), zap.Int("buckets", len(series.Buckets)))
		return series, nil
	})
}

func trendCacheKey(prefix string, filter models.TrendFilter) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%s", prefix, filter.Interval,
		filter.From.Format(models.DateLayout), filter.To.Format(models.DateLayout),
		orAll(filter.ClassID), orAll(filter.TutorID))
}

func orAll(v string) string {
	if v == "" {
		return "all"
	}
	return v
}
