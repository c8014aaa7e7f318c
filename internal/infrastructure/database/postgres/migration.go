// internal/infrastructure/database/postgres/migration.go
package postgres

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/your-org/stock-reservation/internal/domain/inventory"
	"github.com/your-org/stock-reservation/internal/domain/payment"
)

// seedNamespace derives stable product ids from seed SKUs
var seedNamespace = uuid.MustParse("6f1c4b2e-8d3a-4f7e-9b5c-2a1d0e9f8c7b")

// Migration handles database migrations
type Migration struct {
	db     *gorm.DB
	logger logrus.FieldLogger
}

// NewMigration creates a new migration instance
func NewMigration(db *gorm.DB, logger logrus.FieldLogger) *Migration {
	return &Migration{
		db:     db,
		logger: logger,
	}
}

// RunAutoMigrations runs GORM auto-migrations for all models
func (m *Migration) RunAutoMigrations() error {
	m.logger.Info("🔄 Running database auto-migrations...")

	models := []interface{}{
		&inventory.InventoryItem{},
		&inventory.StockReservation{},
		&inventory.StockMovement{},
		&payment.Payment{},
	}

	for _, model := range models {
		m.logger.Debugf("Migrating model: %T", model)
		if err := m.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("failed to migrate model %T: %w", model, err)
		}
	}

	m.logger.Info("✅ Database auto-migrations completed successfully")
	return nil
}

// CreateIndexes creates the composite indexes the hot queries rely on
func (m *Migration) CreateIndexes() error {
	indexes := []string{
		// Reservation lookups by order and the expiry sweep
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_order_product ON stock_reservations(order_id, product_id)",
		"CREATE INDEX IF NOT EXISTS idx_stock_reservations_status_expires ON stock_reservations(status, expires_at)",

		// Movement history, newest first
		"CREATE INDEX IF NOT EXISTS idx_stock_movements_product_created ON stock_movements(product_id, created_at DESC)",

		// Low stock report
		"CREATE INDEX IF NOT EXISTS idx_inventory_items_available ON inventory_items(quantity_available)",

		// Payment replay lookups
		"CREATE INDEX IF NOT EXISTS idx_payments_order_status ON payments(order_id, status)",
		"CREATE INDEX IF NOT EXISTS idx_payments_created_at ON payments(created_at DESC)",
	}

	failed := 0
	for _, indexSQL := range indexes {
		if err := m.db.Exec(indexSQL).Error; err != nil {
			m.logger.WithError(err).Warn("⚠️ Failed to create index")
			failed++
		}
	}

	m.logger.Infof("✅ Created %d indexes successfully (%d failed)", len(indexes)-failed, failed)
	if failed > 0 {
		return fmt.Errorf("%d indexes could not be created", failed)
	}
	return nil
}

// SeedInitialData inserts demo stock when the ledger table is empty
func (m *Migration) SeedInitialData() error {
	var count int64
	if err := m.db.Model(&inventory.InventoryItem{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count inventory items: %w", err)
	}
	if count > 0 {
		m.logger.Info("Inventory already seeded, skipping")
		return nil
	}

	m.logger.Info("🌱 Seeding initial inventory...")

	seeds := []struct {
		name     string
		sku      string
		quantity int
	}{
		{"Mechanical Keyboard", "KB-MECH-001", 100},
		{"Wireless Mouse", "MS-WL-002", 250},
		{"27in Monitor", "MN-27-003", 40},
		{"USB-C Hub", "HB-USBC-004", 8},
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		for _, s := range seeds {
			item, err := inventory.NewInventoryItem(SeedProductID(s.sku), s.name, s.sku, s.quantity,
				inventory.DefaultReorderLevel, inventory.DefaultMaxStockLevel)
			if err != nil {
				return err
			}
			if err := tx.Create(item).Error; err != nil {
				return fmt.Errorf("failed to seed %s: %w", s.sku, err)
			}
			movement := inventory.NewStockMovement(item.ProductID, inventory.MovementStockIn, s.quantity,
				0, s.quantity, "INITIAL", "Initial stock creation")
			if err := tx.Create(movement).Error; err != nil {
				return fmt.Errorf("failed to seed movement for %s: %w", s.sku, err)
			}
			m.logger.WithFields(logrus.Fields{"sku": s.sku, "product_id": item.ProductID}).Info("Seeded inventory item")
		}
		return nil
	})
}

// SeedProductID is the product id SeedInitialData assigns to sku
func SeedProductID(sku string) uuid.UUID {
	return uuid.NewSHA1(seedNamespace, []byte(sku))
}

// DropAllTables removes every table this service owns
func (m *Migration) DropAllTables() error {
	m.logger.Warn("⚠️ WARNING: Dropping all database tables...")

	tables := []interface{}{
		&payment.Payment{},
		&inventory.StockMovement{},
		&inventory.StockReservation{},
		&inventory.InventoryItem{},
	}
	var errs []error
	for _, table := range tables {
		if err := m.db.Migrator().DropTable(table); err != nil {
			errs = append(errs, fmt.Errorf("drop %T: %w", table, err))
		}
	}
	return errors.Join(errs...)
}
