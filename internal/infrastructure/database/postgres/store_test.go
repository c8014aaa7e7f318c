package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/your-org/stock-reservation/internal/config"
	"github.com/your-org/stock-reservation/internal/domain/events"
	"github.com/your-org/stock-reservation/internal/domain/inventory"
	"github.com/your-org/stock-reservation/internal/domain/payment"
	"github.com/your-org/stock-reservation/internal/pkg/lock"
)

// openTestDB returns a migrated in-memory SQLite database private to the test
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Discard,
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger, _ := test.NewNullLogger()
	migration := NewMigration(db, logger)
	require.NoError(t, migration.RunAutoMigrations())
	require.NoError(t, migration.CreateIndexes())
	return db
}

func TestLedgerRepository(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore(openTestDB(t))

	item, err := inventory.NewInventoryItem(uuid.New(), "Lamp", "LMP-1", 12, 10, 100)
	require.NoError(t, err)
	require.NoError(t, store.Ledgers().Create(ctx, item))
	assert.ErrorIs(t, store.Ledgers().Create(ctx, item), inventory.ErrProductExists)

	got, err := store.Ledgers().GetByProductID(ctx, item.ProductID)
	require.NoError(t, err)
	assert.Equal(t, 12, got.QuantityAvailable)

	stale, err := store.Ledgers().GetByProductID(ctx, item.ProductID)
	require.NoError(t, err)

	require.NoError(t, got.Reserve(3))
	require.NoError(t, store.Ledgers().Update(ctx, got))
	assert.Equal(t, 2, got.Version)

	require.NoError(t, stale.Reserve(1))
	assert.ErrorIs(t, store.Ledgers().Update(ctx, stale), inventory.ErrConcurrentUpdate)

	low, err := store.Ledgers().ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, 9, low[0].QuantityAvailable)

	_, err = store.Ledgers().GetByProductID(ctx, uuid.New())
	assert.ErrorIs(t, err, inventory.ErrProductNotFound)
}

func TestReservationAndMovementRepositories(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore(openTestDB(t))
	orderID := uuid.New()
	productID := uuid.New()

	fresh, err := inventory.NewStockReservation(productID, orderID, 2, time.Hour)
	require.NoError(t, err)
	due, err := inventory.NewStockReservation(productID, orderID, 1, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, store.Reservations().Create(ctx, fresh))
	require.NoError(t, store.Reservations().Create(ctx, due))

	list, err := store.Reservations().ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	expired, err := store.Reservations().ListExpired(ctx, time.Now().UTC().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, due.ID, expired[0].ID)

	require.NoError(t, due.Release("test"))
	require.NoError(t, store.Reservations().Update(ctx, due))
	reloaded, err := store.Reservations().GetByID(ctx, due.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.ReservationReleased, reloaded.Status)
	require.NotNil(t, reloaded.ReleasedAt)

	_, err = store.Reservations().GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, inventory.ErrReservationNotFound)

	for i := 1; i <= 3; i++ {
		m := inventory.NewStockMovement(productID, inventory.MovementStockIn, i, 0, i, "", "")
		m.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Movements().Create(ctx, m))
	}
	moves, err := store.Movements().ListByProductID(ctx, productID, 2)
	require.NoError(t, err)
	require.Len(t, moves, 2)
	assert.Equal(t, 3, moves[0].Quantity)
}

func TestAtomicallyRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewInventoryStore(openTestDB(t))
	item, err := inventory.NewInventoryItem(uuid.New(), "Desk", "DSK-1", 5, 1, 10)
	require.NoError(t, err)
	require.NoError(t, store.Ledgers().Create(ctx, item))

	err = store.Atomically(ctx, func(tx inventory.Store) error {
		ledger, err := tx.Ledgers().GetByProductID(ctx, item.ProductID)
		require.NoError(t, err)
		require.NoError(t, ledger.Reserve(5))
		require.NoError(t, tx.Ledgers().Update(ctx, ledger))
		return fmt.Errorf("abort")
	})
	require.Error(t, err)

	got, err := store.Ledgers().GetByProductID(ctx, item.ProductID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.QuantityAvailable)
	assert.Equal(t, 1, got.Version)
}

func TestSagaAgainstDatabase(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logger, _ := test.NewNullLogger()

	store := NewInventoryStore(db)
	opts := inventory.Options{
		Store:     store,
		Locker:    lock.NewMemoryLocker(),
		Publisher: events.NewRecorder(),
		Logger:    logger,
		Config: config.ReservationConfig{
			LockTTL:             30 * time.Second,
			ReservationTTL:      30 * time.Minute,
			CompensateOnFailure: true,
		},
	}
	service := inventory.NewService(opts)
	coordinator := inventory.NewCoordinator(opts)

	productA, productB := uuid.New(), uuid.New()
	for _, seed := range []struct {
		id  uuid.UUID
		qty int
	}{{productA, 100}, {productB, 50}} {
		_, err := service.CreateItem(ctx, inventory.CreateItemRequest{ProductID: seed.id, ProductName: "P", SKU: seed.id.String()[:8], InitialQuantity: seed.qty})
		require.NoError(t, err)
	}

	orderID := uuid.New()
	result, err := coordinator.ReserveOrder(ctx, events.OrderCreated{OrderID: orderID, Items: []events.OrderItem{
		{ProductID: productA, Quantity: 10},
		{ProductID: productB, Quantity: 5},
	}})
	require.NoError(t, err)
	assert.True(t, result.Success)

	a, err := service.GetItem(ctx, productA)
	require.NoError(t, err)
	assert.Equal(t, []int{90, 10}, []int{a.QuantityAvailable, a.QuantityReserved})
	b, err := service.GetItem(ctx, productB)
	require.NoError(t, err)
	assert.Equal(t, []int{45, 5}, []int{b.QuantityAvailable, b.QuantityReserved})

	_, err = coordinator.ReleaseOrder(ctx, events.PaymentFailed{OrderID: orderID, Reason: "declined"})
	require.NoError(t, err)

	a, err = service.GetItem(ctx, productA)
	require.NoError(t, err)
	assert.Equal(t, []int{100, 0}, []int{a.QuantityAvailable, a.QuantityReserved})

	moves, err := service.ListMovements(ctx, productA, 0)
	require.NoError(t, err)
	assert.Len(t, moves, 3)
}

func TestPaymentRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewPaymentRepository(openTestDB(t))
	orderID := uuid.New()

	p, err := payment.NewPayment(orderID, decimal.RequireFromString("50.25"))
	require.NoError(t, err)
	require.NoError(t, p.MarkProcessing())
	require.NoError(t, repo.Create(ctx, p))
	require.NoError(t, p.MarkSuccess("TXN-1", "{}"))
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, got.Status)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("50.25")), got.Amount.String())

	list, err := repo.ListByOrderID(ctx, orderID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, payment.ErrPaymentNotFound)
}

func TestSeedInitialDataIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	logger, _ := test.NewNullLogger()
	migration := NewMigration(db, logger)

	require.NoError(t, migration.SeedInitialData())
	require.NoError(t, migration.SeedInitialData())

	var count int64
	require.NoError(t, db.Model(&inventory.InventoryItem{}).Count(&count).Error)
	assert.EqualValues(t, 4, count)

	item, err := NewInventoryStore(db).Ledgers().GetByProductID(context.Background(), SeedProductID("KB-MECH-001"))
	require.NoError(t, err)
	assert.Equal(t, 100, item.QuantityAvailable)
}
