package dto

// UpdatePaymentStatusRequest changes a payment's billing state. A PAID
// target requires the settlement method.
type UpdatePaymentStatusRequest struct {
	Status        string  `json:"status" validate:"required,oneof=PENDING PAID"`
	PaymentMethod *string `json:"payment_method" validate:"required_if=Status PAID,omitempty,oneof=CASH UPI BANK_TRANSFER CARD CHEQUE"`
	TransactionID *string `json:"transaction_id" validate:"omitempty,max=128"`
	Notes         *string `json:"notes" validate:"omitempty,max=1000"`
	PaidDate      *string `json:"paid_date" validate:"omitempty,datetime=2006-01-02"`
}

// SendReminderRequest optionally overrides the templated reminder text.
type SendReminderRequest struct {
	CustomMessage *string `json:"custom_message" validate:"omitempty,min=10,max=500"`
}

// ReminderResult reports the outcome of a reminder dispatch.
type ReminderResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Channel   string `json:"channel"`
	Recipient string `json:"recipient"`
}

// PaymentListQuery captures filters for GET /payments.
type PaymentListQuery struct {
	ClassID  string `form:"class_id"`
	TutorID  string `form:"tutor_id"`
	Status   string `form:"status" validate:"omitempty,oneof=PENDING PAID OVERDUE"`
	DueFrom  string `form:"due_from" validate:"omitempty,datetime=2006-01-02"`
	DueTo    string `form:"due_to" validate:"omitempty,datetime=2006-01-02"`
	AsOf     string `form:"as_of" validate:"omitempty,datetime=2006-01-02"`
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=100"`
}
