package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/stock-reservation/internal/domain/payment"
)

// PaymentRepository implements payment.Repository in memory
type PaymentRepository struct {
	mu       sync.Mutex
	payments map[uuid.UUID]payment.Payment
	faults   *faults
}

// NewPaymentRepository creates an empty repository
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		payments: make(map[uuid.UUID]payment.Payment),
		faults:   newFaults(),
	}
}

// FailOn makes the next call of op ("payments.create", "payments.update", ...) return err
func (r *PaymentRepository) FailOn(op string, err error) {
	r.faults.set(op, err)
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if err := r.faults.take("payments.create"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = *p
	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	if err := r.faults.take("payments.update"); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return payment.ErrPaymentNotFound
	}
	r.payments[p.ID] = *p
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*payment.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return &p, nil
}

func (r *PaymentRepository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]payment.Payment, error) {
	if err := r.faults.take("payments.list_by_order"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []payment.Payment
	for _, p := range r.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
