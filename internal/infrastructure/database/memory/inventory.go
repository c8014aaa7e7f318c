// Package memory holds in-process stores used by tests and DB_DRIVER=memory.
// Every read returns a copy, so callers never alias stored rows.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/stock-reservation/internal/domain/inventory"
)

type inventoryState struct {
	items        map[uuid.UUID]inventory.InventoryItem // keyed by product id
	reservations map[uuid.UUID]inventory.StockReservation
	movements    []inventory.StockMovement
}

func (s *inventoryState) clone() *inventoryState {
	c := &inventoryState{
		items:        make(map[uuid.UUID]inventory.InventoryItem, len(s.items)),
		reservations: make(map[uuid.UUID]inventory.StockReservation, len(s.reservations)),
		movements:    make([]inventory.StockMovement, len(s.movements)),
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	copy(c.movements, s.movements)
	return c
}

// InventoryStore implements inventory.Store in memory. Atomically holds the
// store's mutex for the whole unit of work and restores a snapshot on error.
type InventoryStore struct {
	mu     *sync.Mutex
	state  **inventoryState
	faults *faults
	inTx   bool
}

// NewInventoryStore creates an empty store
func NewInventoryStore() *InventoryStore {
	state := &inventoryState{
		items:        make(map[uuid.UUID]inventory.InventoryItem),
		reservations: make(map[uuid.UUID]inventory.StockReservation),
	}
	return &InventoryStore{
		mu:     &sync.Mutex{},
		state:  &state,
		faults: newFaults(),
	}
}

// FailOn makes the next call of op return err. Ops are named
// "<repository>.<method>", e.g. "movements.create".
func (s *InventoryStore) FailOn(op string, err error) {
	s.faults.set(op, err)
}

func (s *InventoryStore) Ledgers() inventory.LedgerRepository           { return ledgers{s} }
func (s *InventoryStore) Reservations() inventory.ReservationRepository { return reservations{s} }
func (s *InventoryStore) Movements() inventory.MovementRepository       { return movements{s} }

// Atomically implements inventory.Store
func (s *InventoryStore) Atomically(ctx context.Context, fn func(tx inventory.Store) error) error {
	if s.inTx {
		return fn(s)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := (*s.state).clone()
	tx := &InventoryStore{mu: s.mu, state: s.state, faults: s.faults, inTx: true}
	if err := fn(tx); err != nil {
		*s.state = snapshot
		return err
	}
	return nil
}

// do runs fn with the state, taking the mutex unless inside Atomically
func (s *InventoryStore) do(ctx context.Context, op string, fn func(st *inventoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.faults.take(op); err != nil {
		return err
	}
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(*s.state)
}

type ledgers struct{ s *InventoryStore }

func (r ledgers) GetByProductID(ctx context.Context, productID uuid.UUID) (*inventory.InventoryItem, error) {
	var out inventory.InventoryItem
	err := r.s.do(ctx, "ledgers.get", func(st *inventoryState) error {
		item, ok := st.items[productID]
		if !ok {
			return inventory.ErrProductNotFound
		}
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r ledgers) Create(ctx context.Context, item *inventory.InventoryItem) error {
	return r.s.do(ctx, "ledgers.create", func(st *inventoryState) error {
		if _, ok := st.items[item.ProductID]; ok {
			return inventory.ErrProductExists
		}
		st.items[item.ProductID] = *item
		return nil
	})
}

func (r ledgers) Update(ctx context.Context, item *inventory.InventoryItem) error {
	return r.s.do(ctx, "ledgers.update", func(st *inventoryState) error {
		stored, ok := st.items[item.ProductID]
		if !ok {
			return inventory.ErrProductNotFound
		}
		if stored.Version != item.Version {
			return inventory.ErrConcurrentUpdate
		}
		item.Version++
		item.UpdatedAt = time.Now().UTC()
		st.items[item.ProductID] = *item
		return nil
	})
}

func (r ledgers) ListLowStock(ctx context.Context) ([]inventory.InventoryItem, error) {
	var out []inventory.InventoryItem
	err := r.s.do(ctx, "ledgers.list_low_stock", func(st *inventoryState) error {
		for _, item := range st.items {
			if item.IsLowStock() {
				out = append(out, item)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].QuantityAvailable < out[j].QuantityAvailable })
	return out, err
}

type reservations struct{ s *InventoryStore }

func (r reservations) GetByID(ctx context.Context, id uuid.UUID) (*inventory.StockReservation, error) {
	var out inventory.StockReservation
	err := r.s.do(ctx, "reservations.get", func(st *inventoryState) error {
		res, ok := st.reservations[id]
		if !ok {
			return inventory.ErrReservationNotFound
		}
		out = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r reservations) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]inventory.StockReservation, error) {
	var out []inventory.StockReservation
	err := r.s.do(ctx, "reservations.list_by_order", func(st *inventoryState) error {
		for _, res := range st.reservations {
			if res.OrderID == orderID {
				out = append(out, res)
			}
		}
		return nil
	})
	sortReservations(out, func(r inventory.StockReservation) time.Time { return r.ReservedAt })
	return out, err
}

func (r reservations) ListExpired(ctx context.Context, now time.Time, limit int) ([]inventory.StockReservation, error) {
	var out []inventory.StockReservation
	err := r.s.do(ctx, "reservations.list_expired", func(st *inventoryState) error {
		for _, res := range st.reservations {
			if res.IsExpired(now) {
				out = append(out, res)
			}
		}
		return nil
	})
	sortReservations(out, func(r inventory.StockReservation) time.Time { return r.ExpiresAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r reservations) Create(ctx context.Context, res *inventory.StockReservation) error {
	return r.s.do(ctx, "reservations.create", func(st *inventoryState) error {
		st.reservations[res.ID] = *res
		return nil
	})
}

func (r reservations) Update(ctx context.Context, res *inventory.StockReservation) error {
	return r.s.do(ctx, "reservations.update", func(st *inventoryState) error {
		if _, ok := st.reservations[res.ID]; !ok {
			return inventory.ErrReservationNotFound
		}
		st.reservations[res.ID] = *res
		return nil
	})
}

func sortReservations(list []inventory.StockReservation, by func(inventory.StockReservation) time.Time) {
	sort.SliceStable(list, func(i, j int) bool {
		a, b := by(list[i]), by(list[j])
		if a.Equal(b) {
			return list[i].ID.String() < list[j].ID.String()
		}
		return a.Before(b)
	})
}

type movements struct{ s *InventoryStore }

func (r movements) Create(ctx context.Context, m *inventory.StockMovement) error {
	return r.s.do(ctx, "movements.create", func(st *inventoryState) error {
		st.movements = append(st.movements, *m)
		return nil
	})
}

func (r movements) ListByProductID(ctx context.Context, productID uuid.UUID, limit int) ([]inventory.StockMovement, error) {
	var out []inventory.StockMovement
	err := r.s.do(ctx, "movements.list_by_product", func(st *inventoryState) error {
		for i := len(st.movements) - 1; i >= 0; i-- {
			if st.movements[i].ProductID != productID {
				continue
			}
			out = append(out, st.movements[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

type faults struct {
	mu  sync.Mutex
	ops map[string]error
}

func newFaults() *faults {
	return &faults{ops: make(map[string]error)}
}

func (f *faults) set(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops[op] = err
}

func (f *faults) take(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.ops[op]
	delete(f.ops, op)
	return err
}
