package models

import "time"

// PaymentStatus captures the billing state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusPaid    PaymentStatus = "PAID"
	PaymentStatusOverdue PaymentStatus = "OVERDUE"
)

// Valid returns true when the status is supported.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusOverdue:
		return true
	default:
		return false
	}
}

// PaymentMethod is how a payment was settled.
type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodUPI          PaymentMethod = "UPI"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
)

// Valid returns true when the method is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodUPI, PaymentMethodBankTransfer, PaymentMethodCard, PaymentMethodCheque:
		return true
	default:
		return false
	}
}

// Payment is the amount owed for a reconciled period.
type Payment struct {
	ID                string         `db:"id" json:"id"`
	ClassID           string         `db:"class_id" json:"class_id"`
	TutorID           string         `db:"tutor_id" json:"tutor_id"`
	Amount            float64        `db:"amount" json:"amount"`
	Currency          string         `db:"currency" json:"currency"`
	Status            PaymentStatus  `db:"status" json:"status"`
	DueDate           time.Time      `db:"due_date" json:"due_date"`
	PaidDate          *time.Time     `db:"paid_date" json:"paid_date,omitempty"`
	PaymentMethod     *PaymentMethod `db:"payment_method" json:"payment_method,omitempty"`
	AttendanceSheetID *string        `db:"attendance_sheet_id" json:"attendance_sheet_id,omitempty"`
	TransactionID     *string        `db:"transaction_id" json:"transaction_id,omitempty"`
	Notes             *string        `db:"notes" json:"notes,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`

	// Reminders is only populated on single-payment reads.
	Reminders []PaymentReminder `db:"-" json:"reminders,omitempty"`
}

// EffectiveStatus derives OVERDUE for pending payments whose due date is
// strictly before asOf's calendar day.
func (p Payment) EffectiveStatus(asOf time.Time) PaymentStatus {
	if p.Status != PaymentStatusPending {
		return p.Status
	}
	day := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	due := time.Date(p.DueDate.Year(), p.DueDate.Month(), p.DueDate.Day(), 0, 0, 0, 0, time.UTC)
	if due.Before(day) {
		return PaymentStatusOverdue
	}
	return PaymentStatusPending
}

// PaymentFilter scopes payment listing.
type PaymentFilter struct {
	ClassID  string
	TutorID  string
	Status   *PaymentStatus
	DueFrom  *time.Time
	DueTo    *time.Time
	AsOf     time.Time
	Page     int
	PageSize int
}

// PaymentReminder is the audit row of one dispatched reminder.
type PaymentReminder struct {
	ID        string    `db:"id" json:"id"`
	PaymentID string    `db:"payment_id" json:"payment_id"`
	Channel   string    `db:"channel" json:"channel"`
	Recipient string    `db:"recipient" json:"recipient"`
	Message   string    `db:"message" json:"message"`
	Custom    bool      `db:"custom" json:"custom"`
	SentAt    time.Time `db:"sent_at" json:"sent_at"`
}
