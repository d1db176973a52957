package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/tutor-ops-api/internal/models"
	"github.com/noah-isme/tutor-ops-api/internal/repository"
	appErrors "github.com/noah-isme/tutor-ops-api/pkg/errors"
	"github.com/noah-isme/tutor-ops-api/pkg/notify"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func strPtr(v string) *string { return &v }

type memClassStore struct {
	classes map[string]*models.Class
}

func (s *memClassStore) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if class, ok := s.classes[id]; ok {
		clone := *class
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

// memSheetStore mimics the unique (class, month, year) key and the submit CAS.
type memSheetStore struct {
	mu      sync.Mutex
	byID    map[string]*models.AttendanceSheet
	byKey   map[string]string
	seq     int
	upserts int
}

func newMemSheetStore() *memSheetStore {
	return &memSheetStore{byID: map[string]*models.AttendanceSheet{}, byKey: map[string]string{}}
}

func (s *memSheetStore) Upsert(ctx context.Context, classID string, period models.SheetPeriod) (*models.AttendanceSheet, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	key := fmt.Sprintf("%s/%d/%d", classID, period.Year, period.Month)
	if id, ok := s.byKey[key]; ok {
		clone := *s.byID[id]
		return &clone, false, nil
	}
	s.seq++
	sheet := &models.AttendanceSheet{ID: fmt.Sprintf("sheet-%d", s.seq), ClassID: classID, Month: period.Month, Year: period.Year, Status: models.SheetStatusDraft}
	s.byID[sheet.ID] = sheet
	s.byKey[key] = sheet.ID
	clone := *sheet
	return &clone, true, nil
}

func (s *memSheetStore) FindByID(ctx context.Context, id string) (*models.AttendanceSheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, ok := s.byID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *sheet
	return &clone, nil
}

func (s *memSheetStore) FindByPeriod(ctx context.Context, classID string, period models.SheetPeriod) (*models.AttendanceSheet, error) {
	s.mu.Lock()
	id, ok := s.byKey[fmt.Sprintf("%s/%d/%d", classID, period.Year, period.Month)]
	s.mu.Unlock()
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s.FindByID(ctx, id)
}

func (s *memSheetStore) Submit(ctx context.Context, id string, at time.Time) (*models.AttendanceSheet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sheet, ok := s.byID[id]
	if !ok || sheet.Status != models.SheetStatusDraft {
		return nil, sql.ErrNoRows
	}
	sheet.Status = models.SheetStatusSubmitted
	sheet.SubmittedAt = &at
	clone := *sheet
	return &clone, nil
}

func (s *memSheetStore) status(id string) models.SheetStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sheet, ok := s.byID[id]; ok {
		return sheet.Status
	}
	return ""
}

type memAttendanceStore struct {
	mu      sync.Mutex
	sheets  *memSheetStore
	records map[string]models.AttendanceRecord
	seq     int

	// beforeWrite runs after the service checked sheet status, before locking.
	beforeWrite func()
}

func newMemAttendanceStore(sheets *memSheetStore) *memAttendanceStore {
	return &memAttendanceStore{sheets: sheets, records: map[string]models.AttendanceRecord{}}
}

func (s *memAttendanceStore) seed(rec models.AttendanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	rec.ID = fmt.Sprintf("rec-%d", s.seq)
	s.records[rec.ClassID+"/"+rec.Date.Format(models.DateLayout)] = rec
}

func (s *memAttendanceStore) ListByClass(ctx context.Context, classID string) ([]models.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AttendanceRecord
	for _, rec := range s.records {
		if rec.ClassID == classID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *memAttendanceStore) UpsertInSheets(ctx context.Context, batches []repository.SheetBatch) ([]models.AttendanceRecord, error) {
	if s.beforeWrite != nil {
		s.beforeWrite()
	}
	for _, b := range batches {
		switch s.sheets.status(b.SheetID) {
		case "":
			return nil, sql.ErrNoRows
		case models.SheetStatusSubmitted:
			return nil, &repository.SubmittedSheetError{SheetID: b.SheetID}
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AttendanceRecord
	for _, b := range batches {
		for _, rec := range b.Records {
			key := rec.ClassID + "/" + rec.Date.Format(models.DateLayout)
			if existing, ok := s.records[key]; ok {
				rec.ID = existing.ID
			} else {
				s.seq++
				rec.ID = fmt.Sprintf("rec-%d", s.seq)
			}
			s.records[key] = rec
			out = append(out, rec)
		}
	}
	return out, nil
}

type memPaymentStore struct {
	mu        sync.Mutex
	payments  map[string]*models.Payment
	reminders []models.PaymentReminder
	seq       int
	listArgs  []models.PaymentFilter
}

func newMemPaymentStore() *memPaymentStore {
	return &memPaymentStore{payments: map[string]*models.Payment{}}
}

func (s *memPaymentStore) put(p models.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[p.ID] = &p
}

func (s *memPaymentStore) UpsertForSheet(ctx context.Context, payment *models.Payment) (*models.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.payments {
		if existing.AttendanceSheetID != nil && *existing.AttendanceSheetID == *payment.AttendanceSheetID {
			if existing.Status == models.PaymentStatusPaid {
				clone := *existing
				return &clone, true, nil
			}
			existing.Amount = payment.Amount
			existing.Currency = payment.Currency
			existing.DueDate = payment.DueDate
			clone := *existing
			return &clone, false, nil
		}
	}
	s.seq++
	stored := *payment
	stored.ID = fmt.Sprintf("pay-%d", s.seq)
	stored.Status = models.PaymentStatusPending
	s.payments[stored.ID] = &stored
	clone := stored
	return &clone, false, nil
}

func (s *memPaymentStore) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *p
	return &clone, nil
}

func (s *memPaymentStore) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listArgs = append(s.listArgs, filter)
	var out []models.Payment
	for _, p := range s.payments {
		if filter.Status != nil && p.EffectiveStatus(filter.AsOf) != *filter.Status {
			continue
		}
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (s *memPaymentStore) UpdateStatus(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.payments[payment.ID]
	if !ok || existing.Status == models.PaymentStatusPaid {
		return nil, sql.ErrNoRows
	}
	stored := *payment
	s.payments[payment.ID] = &stored
	clone := stored
	return &clone, nil
}

func (s *memPaymentStore) InsertReminder(ctx context.Context, reminder *models.PaymentReminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders = append(s.reminders, *reminder)
	return nil
}

func (s *memPaymentStore) ListReminders(ctx context.Context, paymentID string) ([]models.PaymentReminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PaymentReminder
	for i := len(s.reminders) - 1; i >= 0; i-- {
		if s.reminders[i].PaymentID == paymentID {
			out = append(out, s.reminders[i])
		}
	}
	return out, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

// memCache is an in-process CacheRepository.
type memCache struct {
	mu      sync.Mutex
	entries map[string]interface{}
	deleted []string
}

func newMemCache() *memCache { return &memCache{entries: map[string]interface{}{}} }

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	switch d := dest.(type) {
	case *models.TimeSeries:
		*d = *(v.(*models.TimeSeries))
	default:
		return fmt.Errorf("unsupported cache destination %T", dest)
	}
	return nil
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) DeleteByPattern(ctx context.Context, pattern string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, pattern)
	prefix := pattern[:len(pattern)-1]
	for key := range c.entries {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(c.entries, key)
		}
	}
	return nil
}
