package models

import (
	"fmt"
	"time"
)

// SheetStatus is the lifecycle state of a monthly attendance sheet.
type SheetStatus string

const (
	SheetStatusDraft     SheetStatus = "DRAFT"
	SheetStatusSubmitted SheetStatus = "SUBMITTED"
)

// sheetTransitions lists the allowed lifecycle moves. A correction flow would
// add SUBMITTED -> DRAFT here without touching the (class, month, year) key.
var sheetTransitions = map[SheetStatus][]SheetStatus{
	SheetStatusDraft: {SheetStatusSubmitted},
}

// CanTransition reports whether moving from s to next is allowed.
func (s SheetStatus) CanTransition(next SheetStatus) bool {
	for _, allowed := range sheetTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SheetPeriod identifies the calendar month a sheet covers.
type SheetPeriod struct {
	Month int `json:"month"`
	Year  int `json:"year"`
}

// PeriodOf returns the period containing date.
func PeriodOf(date time.Time) SheetPeriod {
	return SheetPeriod{Month: int(date.Month()), Year: date.Year()}
}

// Valid checks month range and a sane year window.
func (p SheetPeriod) Valid() bool {
	return p.Month >= 1 && p.Month <= 12 && p.Year >= 1970 && p.Year <= 9999
}

// FirstDay is the first calendar day of the period (UTC midnight).
func (p SheetPeriod) FirstDay() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

// LastDay is the last calendar day of the period (UTC midnight).
func (p SheetPeriod) LastDay() time.Time {
	return p.FirstDay().AddDate(0, 1, -1)
}

// DaysInMonth returns the number of days in the period.
func (p SheetPeriod) DaysInMonth() int {
	return p.LastDay().Day()
}

// Label renders the display string, e.g. "March 2024".
func (p SheetPeriod) Label() string {
	return fmt.Sprintf("%s %d", time.Month(p.Month).String(), p.Year)
}

// AttendanceSheet is the monthly attendance aggregate for one class.
type AttendanceSheet struct {
	ID          string             `db:"id" json:"id"`
	ClassID     string             `db:"class_id" json:"class_id"`
	Month       int                `db:"month" json:"month"`
	Year        int                `db:"year" json:"year"`
	Status      SheetStatus        `db:"status" json:"status"`
	SubmittedAt *time.Time         `db:"submitted_at" json:"submitted_at,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
	PeriodLabel string             `db:"-" json:"period_label"`
	FirstDay    string             `db:"-" json:"first_day"`
	LastDay     string             `db:"-" json:"last_day"`
	Records     []AttendanceRecord `db:"-" json:"records"`
	Summary     *AttendanceSummary `db:"-" json:"summary,omitempty"`
}

// Period returns the sheet's month/year pair.
func (s *AttendanceSheet) Period() SheetPeriod {
	return SheetPeriod{Month: s.Month, Year: s.Year}
}

// Derive fills the computed display fields from month/year.
func (s *AttendanceSheet) Derive() {
	p := s.Period()
	s.PeriodLabel = p.Label()
	s.FirstDay = p.FirstDay().Format(DateLayout)
	s.LastDay = p.LastDay().Format(DateLayout)
}

// Submitted reports whether the sheet is frozen.
func (s *AttendanceSheet) Submitted() bool {
	return s.Status == SheetStatusSubmitted
}

// DateLayout is the calendar-day wire format.
const DateLayout = "2006-01-02"
