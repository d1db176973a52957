package dto

// MarkAttendanceRequest is one day's mark for a class.
type MarkAttendanceRequest struct {
	Date          string  `json:"date" validate:"required,datetime=2006-01-02"`
	Status        string  `json:"status" validate:"required,oneof=PRESENT ABSENT CANCELLED PENDING"`
	DurationHours float64 `json:"duration_hours" validate:"gt=0,lte=24"`
	TopicsCovered *string `json:"topics_covered" validate:"omitempty,max=1000"`
}

// BulkMarkAttendanceRequest marks several days for the same class.
type BulkMarkAttendanceRequest struct {
	Items []MarkAttendanceRequest `json:"items" validate:"required,min=1,max=62,dive"`
}

// ExportQuery selects the sheet export format.
type ExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}
