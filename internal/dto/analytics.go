package dto

// RawTimeSeriesPoint is an untyped point as posted by the dashboard.
type RawTimeSeriesPoint struct {
	Date    string             `json:"date"`
	Metrics map[string]float64 `json:"metrics"`
}

// AggregateRequest asks for an ad-hoc aggregation of raw points.
type AggregateRequest struct {
	Interval string               `json:"interval" validate:"required,oneof=DAILY WEEKLY MONTHLY YEARLY daily weekly monthly yearly"`
	Points   []RawTimeSeriesPoint `json:"points" validate:"dive"`
}

// TrendQuery holds dashboard trend query parameters.
type TrendQuery struct {
	From     string `form:"from" validate:"required"`
	To       string `form:"to" validate:"required"`
	Interval string `form:"interval" validate:"omitempty,oneof=DAILY WEEKLY MONTHLY YEARLY daily weekly monthly yearly"`
	ClassID  string `form:"class_id"`
	TutorID  string `form:"tutor_id"`
}
