package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-ops-api/internal/dto"
	"github.com/noah-isme/tutor-ops-api/internal/models"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
	"github.com/noah-isme/tutor-ops-api/pkg/logger"
	"github.com/noah-isme/tutor-ops-api/pkg/notify"
)

// Reminder text bounds, counted in characters after trimming.
const (
	ReminderMinLength = 10
	ReminderMaxLength = 500
)

type paymentStore interface {
	UpsertForSheet(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	UpdateStatus(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	InsertReminder(ctx context.Context, reminder *models.PaymentReminder) error
	ListReminders(ctx context.Context, paymentID string) ([]models.PaymentReminder, error)
}

type submittedSheetReader interface {
	GetSheet(ctx context.Context, sheetID string) (*models.AttendanceSheet, error)
}

type receiptRenderer interface {
	Receipt(payment *models.Payment, class *models.Class) (*ExportFile, error)
}

// BillingPolicy supplies currency and due-date rules for reconciliation.
type BillingPolicy struct {
	DefaultCurrency string
	// DueDays is added to the last day of the sheet's month.
	DueDays int
}

// DueDate computes the payment due date for a period.
func (p BillingPolicy) DueDate(period models.SheetPeriod) time.Time {
	return period.LastDay().AddDate(0, 0, p.DueDays)
}

// PaymentServiceParams groups constructor dependencies.
type PaymentServiceParams struct {
	Payments  paymentStore
	Sheets    submittedSheetReader
	Classes   classReader
	Sender    notify.Sender
	Receipts  receiptRenderer
	Policy    BillingPolicy
	Cache     *CacheService
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Now       func() time.Time
}

// PaymentService turns submitted sheets into payments and manages their
// settlement and reminders.
type PaymentService struct {
	payments  paymentStore
	sheets    submittedSheetReader
	classes   classReader
	sender    notify.Sender
	receipts  receiptRenderer
	policy    BillingPolicy
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewPaymentService constructs the service with sane defaults.
func NewPaymentService(params PaymentServiceParams) *PaymentService {
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	if params.Sender == nil {
		params.Sender = notify.NewLogSender(params.Logger)
	}
	if params.Receipts == nil {
		params.Receipts = NewExportService("", nil, nil)
	}
	if params.Policy.DefaultCurrency == "" {
		params.Policy.DefaultCurrency = "INR"
	}
	if params.Policy.DueDays < 0 {
		params.Policy.DueDays = 0
	}
	return &PaymentService{
		payments:  params.Payments,
		sheets:    params.Sheets,
		classes:   params.Classes,
		sender:    params.Sender,
		receipts:  params.Receipts,
		policy:    params.Policy,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: params.Validator,
		logger:    params.Logger,
		now:       params.Now,
	}
}

// ComputeAmount derives the payable amount for a sheet summary under the class rate.
func ComputeAmount(class *models.Class, summary models.AttendanceSummary) (float64, error) {
	if class == nil || !class.RateType.Valid() || class.Rate < 0 || math.IsNaN(class.Rate) {
		return 0, errors.New("class has no usable billing rate")
	}
	var amount float64
	switch class.RateType {
	case models.RatePerSession:
		amount = float64(summary.Present) * class.Rate
	case models.RateHourly:
		amount = summary.CompletedHours * class.Rate
	case models.RateMonthly:
		if summary.Present > 0 {
			amount = class.Rate
		}
	}
	return math.Round(amount*100) / 100, nil
}

// Reconcile creates or refreshes the payment for a submitted sheet. A payment
// already marked PAID is returned unchanged.
func (s *PaymentService) Reconcile(ctx context.Context, sheetID string) (*models.Payment, error) {
	sheet, err := s.sheets.GetSheet(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if !sheet.Submitted() {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "attendance sheet must be submitted before reconciliation",
			"sheet_id", sheet.ID, "status", string(sheet.Status))
	}
	class, err := s.loadClass(ctx, sheet.ClassID)
	if err != nil {
		return nil, err
	}

	summary := models.Summarize(sheet.Records)
	if sheet.Summary != nil {
		summary = *sheet.Summary
	}
	amount, err := ComputeAmount(class, summary)
	if err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, err.Error(),
			"class_id", class.ID, "rate_type", string(class.RateType))
	}
	currency := class.Currency
	if currency == "" {
		currency = s.policy.DefaultCurrency
	}
	sheetRef := sheet.ID

	stop := s.metrics.TimeQuery("payment.upsert")
	payment, preserved, err := s.payments.UpsertForSheet(ctx, &models.Payment{
		ClassID:           class.ID,
		TutorID:           class.TutorID,
		Amount:            amount,
		Currency:          currency,
		Status:            models.PaymentStatusPending,
		DueDate:           s.policy.DueDate(sheet.Period()),
		AttendanceSheetID: &sheetRef,
	})
	stop()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reconcile payment")
	}

	s.metrics.RecordReconciliation(preserved)
	if preserved {
		s.log(ctx).Info("reconcile kept settled payment",
			zap.String("payment_id", payment.ID),
			zap.String("sheet_id", sheet.ID),
			zap.Float64("computed_amount", amount),
		)
	} else {
		s.log(ctx).Info("payment reconciled",
			zap.String("payment_id", payment.ID),
			zap.String("sheet_id", sheet.ID),
			zap.Int("completed_sessions", summary.Present),
			zap.Float64("amount", payment.Amount),
			zap.Time("due_date", payment.DueDate),
		)
	}
	s.cache.Invalidate(ctx, paymentTrendPattern)
	return s.withEffectiveStatus(payment, s.now()), nil
}

// GetPayment returns a payment with its status evaluated as of asOf and its
// reminder history, newest first.
func (s *PaymentService) GetPayment(ctx context.Context, paymentID string, asOf time.Time) (*models.Payment, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	reminders, err := s.payments.ListReminders(ctx, paymentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment reminders")
	}
	payment.Reminders = reminders
	return s.withEffectiveStatus(payment, asOf), nil
}

// ListPayments returns a page of payments with statuses evaluated as of filter.AsOf.
func (s *PaymentService) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	if filter.AsOf.IsZero() {
		filter.AsOf = s.now()
	}
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, nil, appErrors.WithDetails(appErrors.ErrValidation, "unsupported payment status", "field", "status", "value", string(*filter.Status))
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	stop := s.metrics.TimeQuery("payment.list")
	items, total, err := s.payments.List(ctx, filter)
	stop()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	out := make([]models.Payment, len(items))
	for i := range items {
		out[i] = *s.withEffectiveStatus(&items[i], filter.AsOf)
	}
	return out, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// UpdateStatus applies a status change. PAID requires a payment method and
// is final: a settled payment is never moved back.
func (s *PaymentService) UpdateStatus(ctx context.Context, paymentID string, req dto.UpdatePaymentStatusRequest) (*models.Payment, error) {
	target := models.PaymentStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	req.Status = string(target)
	if target == models.PaymentStatusPaid && (req.PaymentMethod == nil || strings.TrimSpace(*req.PaymentMethod) == "") {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "payment_method is required when status is PAID",
			"field", "payment_method", "payment_id", paymentID)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WithDetails(
			appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment status payload"),
			"", "payment_id", paymentID)
	}

	current, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if current.Status == models.PaymentStatusPaid {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidState, "payment is already settled", "payment_id", paymentID, "status", string(current.Status))
	}

	update := *current
	update.Status = target
	if req.TransactionID != nil {
		update.TransactionID = req.TransactionID
	}
	if req.Notes != nil {
		update.Notes = req.Notes
	}
	switch target {
	case models.PaymentStatusPaid:
		method := models.PaymentMethod(*req.PaymentMethod)
		paid := s.now().UTC()
		if req.PaidDate != nil {
			if paid, err = time.Parse(models.DateLayout, *req.PaidDate); err != nil {
				return nil, appErrors.WithDetails(appErrors.ErrValidation, "paid_date must be YYYY-MM-DD", "field", "paid_date")
			}
		}
		update.PaymentMethod = &method
		update.PaidDate = &paid
	default:
		update.PaymentMethod = nil
		update.PaidDate = nil
	}

	stop := s.metrics.TimeQuery("payment.update_status")
	stored, err := s.payments.UpdateStatus(ctx, &update)
	stop()
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrInvalidState, "payment was settled concurrently", "payment_id", paymentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update payment status")
	}

	s.log(ctx).Info("payment status changed",
		zap.String("payment_id", paymentID),
		zap.String("from", string(current.Status)),
		zap.String("to", string(stored.Status)),
	)
	s.cache.Invalidate(ctx, paymentTrendPattern)
	return s.withEffectiveStatus(stored, s.now()), nil
}

// SendReminder renders and dispatches a payment reminder to the payer. A
// custom message must be 10 to 500 characters; otherwise a templated message
// naming the amount, due date and student is used.
func (s *PaymentService) SendReminder(ctx context.Context, paymentID string, req dto.SendReminderRequest) (*dto.ReminderResult, error) {
	var custom string
	if req.CustomMessage != nil {
		custom = strings.TrimSpace(*req.CustomMessage)
		if n := utf8.RuneCountInString(custom); n < ReminderMinLength || n > ReminderMaxLength {
			return nil, appErrors.WithDetails(appErrors.ErrValidation,
				fmt.Sprintf("custom_message must be between %d and %d characters", ReminderMinLength, ReminderMaxLength),
				"field", "custom_message", "length", n, "payment_id", paymentID)
		}
	}

	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == models.PaymentStatusPaid {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidState, "payment is already settled", "payment_id", paymentID)
	}
	class, err := s.loadClass(ctx, payment.ClassID)
	if err != nil {
		return nil, err
	}
	channel, recipient, ok := class.Contact()
	if !ok {
		return nil, appErrors.WithDetails(appErrors.ErrPreconditionFailed, "no payer contact on file for this class",
			"payment_id", paymentID, "class_id", class.ID)
	}

	now := s.now()
	body := custom
	if body == "" {
		body = ReminderMessage(payment, class, now)
	}
	msg := notify.Message{
		ID:            uuid.NewString(),
		PaymentID:     payment.ID,
		Channel:       channel,
		Recipient:     recipient,
		RecipientName: class.PayerName(),
		Subject:       fmt.Sprintf("Tuition fee reminder for %s", class.StudentName),
		Body:          body,
	}
	err = s.sender.Send(ctx, msg)
	s.metrics.RecordReminder(channel, err)
	if err != nil {
		s.log(ctx).Warn("reminder dispatch failed", zap.String("payment_id", paymentID), zap.String("channel", channel), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to dispatch reminder")
	}

	if err := s.payments.InsertReminder(ctx, &models.PaymentReminder{
		ID:        msg.ID,
		PaymentID: payment.ID,
		Channel:   channel,
		Recipient: recipient,
		Message:   body,
		Custom:    custom != "",
		SentAt:    now.UTC(),
	}); err != nil {
		s.log(ctx).Error("reminder sent but not recorded", zap.String("payment_id", paymentID), zap.String("reminder_id", msg.ID), zap.Error(err))
	}

	s.log(ctx).Info("payment reminder dispatched",
		zap.String("payment_id", paymentID),
		zap.String("channel", channel),
		zap.String("sender", s.sender.Name()),
		zap.Bool("custom", custom != ""),
	)
	return &dto.ReminderResult{Success: true, Message: body, Channel: channel, Recipient: recipient}, nil
}

// Receipt renders a PDF receipt; only settled payments have one.
func (s *PaymentService) Receipt(ctx context.Context, paymentID string) (*ExportFile, error) {
	payment, err := s.loadPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPaid {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidState, "receipt is only available for paid payments",
			"payment_id", paymentID, "status", string(payment.EffectiveStatus(s.now())))
	}
	class, err := s.loadClass(ctx, payment.ClassID)
	if err != nil {
		return nil, err
	}
	return s.receipts.Receipt(payment, class)
}

// ReminderMessage renders the default reminder text.
func ReminderMessage(payment *models.Payment, class *models.Class, asOf time.Time) string {
	due := payment.DueDate.Format("02 Jan 2006")
	verb := "is due on"
	if payment.EffectiveStatus(asOf) == models.PaymentStatusOverdue {
		verb = "was due on"
	}
	return fmt.Sprintf("Dear %s, this is a reminder that the tuition fee of %s for %s %s %s. Please ignore this message if you have already paid.",
		class.PayerName(), formatAmount(payment.Amount, payment.Currency), class.StudentName, verb, due)
}

func (s *PaymentService) withEffectiveStatus(payment *models.Payment, asOf time.Time) *models.Payment {
	out := *payment
	out.Status = payment.EffectiveStatus(asOf)
	return &out
}

func (s *PaymentService) loadPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "payment id is required", "field", "payment_id")
	}
	payment, err := s.payments.FindByID(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "payment not found", "payment_id", paymentID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

func (s *PaymentService) loadClass(ctx context.Context, classID string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, classID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WithDetails(appErrors.ErrNotFound, "class not found", "class_id", classID)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

func (s *PaymentService) log(ctx context.Context) *zap.Logger {
	return logger.FromContext(ctx, s.logger)
}
