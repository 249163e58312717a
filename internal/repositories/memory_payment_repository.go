package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"salon_backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// MemoryPaymentRepository - PaymentRepository в памяти для тестов и локального запуска.
// FindByInvoiceIDForUpdate держит блокировку строки до конца транзакции,
// изменения видны другим только после коммита.
type MemoryPaymentRepository struct {
	mu    sync.Mutex
	rows  map[string]*models.Payment
	locks map[string]*sync.Mutex
	txs   map[*gorm.DB]*memoryTx
	calls map[string]int
	now   func() time.Time

	// OnTransaction вызывается в начале каждой транзакции (до блокировок)
	OnTransaction func(ctx context.Context)
}

var _ PaymentRepository = (*MemoryPaymentRepository)(nil)

type memoryTx struct {
	held   []*sync.Mutex
	staged map[string]*models.Payment
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{
		rows:  make(map[string]*models.Payment),
		locks: make(map[string]*sync.Mutex),
		txs:   make(map[*gorm.DB]*memoryTx),
		calls: make(map[string]int),
		now:   time.Now,
	}
}

// Calls - сколько раз вызывался метод репозитория
func (r *MemoryPaymentRepository) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

// Seed кладет строку как есть (для тестов)
func (r *MemoryPaymentRepository) Seed(p models.Payment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	r.rows[p.InvoiceID] = &p
}

func (r *MemoryPaymentRepository) track(method string) {
	r.mu.Lock()
	r.calls[method]++
	r.mu.Unlock()
}

func (r *MemoryPaymentRepository) Create(_ context.Context, draft *models.Payment) (*models.Payment, error) {
	r.track("Create")

	r.mu.Lock()
	defer r.mu.Unlock()

	if draft.Status == "" {
		draft.Status = models.PaymentStatusPending
	}
	for attempt := 0; attempt < invoiceIDAttempts; attempt++ {
		id := GenerateInvoiceID(r.now())
		if _, exists := r.rows[id]; exists {
			continue
		}
		now := r.now()
		draft.InvoiceID = id
		draft.ID = uuid.NewString()
		draft.CreatedAt, draft.UpdatedAt = now, now
		stored := *draft
		r.rows[id] = &stored
		return draft, nil
	}
	return nil, ErrInvoiceIDExhausted
}

func (r *MemoryPaymentRepository) FindByInvoiceID(_ context.Context, invoiceID string) (*models.Payment, error) {
	r.track("FindByInvoiceID")

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.copyOf(invoiceID), nil
}

func (r *MemoryPaymentRepository) FindByInvoiceIDForUpdate(_ context.Context, tx *gorm.DB, invoiceID string) (*models.Payment, error) {
	r.track("FindByInvoiceIDForUpdate")

	r.mu.Lock()
	state := r.txs[tx]
	lock, ok := r.locks[invoiceID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[invoiceID] = lock
	}
	r.mu.Unlock()

	if state == nil {
		return nil, gorm.ErrInvalidTransaction
	}

	lock.Lock()

	r.mu.Lock()
	defer r.mu.Unlock()
	state.held = append(state.held, lock)
	if staged, ok := state.staged[invoiceID]; ok {
		cp := *staged
		return &cp, nil
	}
	return r.copyOf(invoiceID), nil
}

func (r *MemoryPaymentRepository) UpdateStatusInTransaction(
	_ context.Context,
	tx *gorm.DB,
	invoiceID string,
	status models.PaymentStatus,
	upd models.StatusUpdate,
) (*models.Payment, error) {
	r.track("UpdateStatusInTransaction")

	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.txs[tx]
	if state == nil {
		return nil, gorm.ErrInvalidTransaction
	}

	current, ok := state.staged[invoiceID]
	if !ok {
		current = r.rows[invoiceID]
	}
	if current == nil || current.Status != models.PaymentStatusPending {
		return nil, ErrPaymentNotPending
	}

	now := upd.CompletedAt
	if now.IsZero() {
		now = r.now()
	}
	next := *current
	next.Status = status
	next.UpdatedAt = now
	switch status {
	case models.PaymentStatusSuccess:
		next.CompletedAt = &now
		if upd.OperationID != "" {
			op := upd.OperationID
			next.RobokassaOperationID = &op
		}
	case models.PaymentStatusFailed:
		msg := upd.ErrorMessage
		next.ErrorMessage = &msg
	}
	state.staged[invoiceID] = &next

	cp := next
	return &cp, nil
}

func (r *MemoryPaymentRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.track("WithTransaction")

	if r.OnTransaction != nil {
		r.OnTransaction(ctx)
	}

	// Уникальный указатель служит идентификатором транзакции
	tx := &gorm.DB{}
	state := &memoryTx{staged: make(map[string]*models.Payment)}

	r.mu.Lock()
	r.txs[tx] = state
	r.mu.Unlock()

	err := fn(tx)

	r.mu.Lock()
	if err == nil {
		for id, row := range state.staged {
			r.rows[id] = row
		}
	}
	delete(r.txs, tx)
	r.mu.Unlock()

	for _, lock := range state.held {
		lock.Unlock()
	}
	return err
}

func (r *MemoryPaymentRepository) FindBySalonID(_ context.Context, salonID int64, filter models.PaymentFilter) ([]models.Payment, error) {
	r.track("FindBySalonID")

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []models.Payment
	for _, row := range r.rows {
		if row.SalonID != salonID {
			continue
		}
		if filter.Status != "" && row.Status != filter.Status {
			continue
		}
		result = append(result, *row)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	limit := filter.EffectiveLimit()
	if filter.Offset >= len(result) {
		return []models.Payment{}, nil
	}
	result = result[filter.Offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryPaymentRepository) GetStatsBySalonID(_ context.Context, salonID int64) (*models.PaymentStats, error) {
	r.track("GetStatsBySalonID")

	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &models.PaymentStats{TotalAmount: decimal.Zero}
	for _, row := range r.rows {
		if row.SalonID != salonID {
			continue
		}
		switch row.Status {
		case models.PaymentStatusSuccess:
			stats.SuccessCount++
			stats.TotalAmount = stats.TotalAmount.Add(row.Amount)
		case models.PaymentStatusPending:
			stats.PendingCount++
		case models.PaymentStatusFailed:
			stats.FailedCount++
		}
	}
	return stats, nil
}

func (r *MemoryPaymentRepository) FindStalePending(_ context.Context, createdBefore time.Time, limit int) ([]models.Payment, error) {
	r.track("FindStalePending")

	r.mu.Lock()
	defer r.mu.Unlock()

	var result []models.Payment
	for _, row := range r.rows {
		if row.Status == models.PaymentStatusPending && row.CreatedAt.Before(createdBefore) {
			result = append(result, *row)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *MemoryPaymentRepository) copyOf(invoiceID string) *models.Payment {
	row, ok := r.rows[invoiceID]
	if !ok {
		return nil
	}
	cp := *row
	return &cp
}
