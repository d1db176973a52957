package models

import (
	"strings"
	"time"
)

// RateType describes how a class is billed.
type RateType string

const (
	RatePerSession RateType = "PER_SESSION"
	RateHourly     RateType = "HOURLY"
	RateMonthly    RateType = "MONTHLY"
)

// Valid returns true when the rate type is supported.
func (r RateType) Valid() bool {
	switch r {
	case RatePerSession, RateHourly, RateMonthly:
		return true
	default:
		return false
	}
}

// Class is a tutoring engagement between one tutor and one student, and the
// source of the billing rate used during reconciliation.
type Class struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	StudentName string    `db:"student_name" json:"student_name"`
	TutorID     string    `db:"tutor_id" json:"tutor_id"`
	ParentName  *string   `db:"parent_name" json:"parent_name,omitempty"`
	ParentEmail *string   `db:"parent_email" json:"parent_email,omitempty"`
	ParentPhone *string   `db:"parent_phone" json:"parent_phone,omitempty"`
	RateType    RateType  `db:"rate_type" json:"rate_type"`
	Rate        float64   `db:"rate" json:"rate"`
	Currency    string    `db:"currency" json:"currency"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Contact resolves the payer contact used for reminders. Email wins over phone.
func (c *Class) Contact() (channel, address string, ok bool) {
	if c == nil {
		return "", "", false
	}
	if c.ParentEmail != nil && strings.TrimSpace(*c.ParentEmail) != "" {
		return "email", strings.TrimSpace(*c.ParentEmail), true
	}
	if c.ParentPhone != nil && strings.TrimSpace(*c.ParentPhone) != "" {
		return "sms", strings.TrimSpace(*c.ParentPhone), true
	}
	return "", "", false
}

// PayerName is the name addressed in reminders.
func (c *Class) PayerName() string {
	if c.ParentName != nil && strings.TrimSpace(*c.ParentName) != "" {
		return strings.TrimSpace(*c.ParentName)
	}
	return "Parent/Guardian"
}
