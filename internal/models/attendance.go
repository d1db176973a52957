package models

import "time"

// AttendanceStatus represents the status of a single tutoring session.
type AttendanceStatus string

const (
	AttendanceStatusPresent   AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent    AttendanceStatus = "ABSENT"
	AttendanceStatusCancelled AttendanceStatus = "CANCELLED"
	AttendanceStatusPending   AttendanceStatus = "PENDING"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusCancelled, AttendanceStatusPending:
		return true
	default:
		return false
	}
}

// Completed reports whether the session counts towards billing.
func (s AttendanceStatus) Completed() bool {
	return s == AttendanceStatusPresent
}

// AttendanceRecord is one tutor-class-day mark. At most one exists per (class_id, date).
type AttendanceRecord struct {
	ID            string           `db:"id" json:"id"`
	ClassID       string           `db:"class_id" json:"class_id"`
	Date          time.Time        `db:"date" json:"date"`
	Status        AttendanceStatus `db:"status" json:"status"`
	DurationHours float64          `db:"duration_hours" json:"duration_hours"`
	TopicsCovered *string          `db:"topics_covered" json:"topics_covered,omitempty"`
	SheetMonth    *int             `db:"sheet_month" json:"sheet_month,omitempty"`
	SheetYear     *int             `db:"sheet_year" json:"sheet_year,omitempty"`
	MarkedAt      time.Time        `db:"marked_at" json:"marked_at"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// BelongsTo reports whether the record is part of the given sheet period.
// The explicit sheet tag wins; untagged legacy rows fall back to their own date.
func (r AttendanceRecord) BelongsTo(p SheetPeriod) bool {
	if r.SheetMonth != nil && r.SheetYear != nil {
		return *r.SheetMonth == p.Month && *r.SheetYear == p.Year
	}
	return r.Date.Year() == p.Year && int(r.Date.Month()) == p.Month
}

// AttendanceSummary counts session outcomes for a sheet.
type AttendanceSummary struct {
	Present        int     `json:"present"`
	Absent         int     `json:"absent"`
	Cancelled      int     `json:"cancelled"`
	Pending        int     `json:"pending"`
	Total          int     `json:"total"`
	CompletedHours float64 `json:"completed_hours"`
}

// Summarize tallies records by status.
func Summarize(records []AttendanceRecord) AttendanceSummary {
	var s AttendanceSummary
	for _, rec := range records {
		switch rec.Status {
		case AttendanceStatusPresent:
			s.Present++
			s.CompletedHours += rec.DurationHours
		case AttendanceStatusAbsent:
			s.Absent++
		case AttendanceStatusCancelled:
			s.Cancelled++
		case AttendanceStatusPending:
			s.Pending++
		}
		s.Total++
	}
	return s
}

// AttendanceBulkConflict captures rejected entries in bulk marking.
type AttendanceBulkConflict struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}
