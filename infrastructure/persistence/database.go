package persistence

import (
	"context"
	"fmt"
	"time"

	"journal-relay/domain/persistence"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseManager implements the persistence.DatabaseManager interface
type DatabaseManager struct {
	db          *gorm.DB
	driver      string
	entryRepo   persistence.EntryRepository
	messageRepo persistence.MessageRepository
	summaryRepo persistence.SummaryRepository
}

// NewDatabaseManager creates a new database manager instance
func NewDatabaseManager() *DatabaseManager {
	return &DatabaseManager{}
}

// Connect establishes the database connection for the given driver
func (dm *DatabaseManager) Connect(ctx context.Context, driver, dsn string) error {
	logrus.WithField("driver", driver).Info("Connecting to database...")

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", driver)
	}

	gormLogger := logger.New(
		logrus.StandardLogger(),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite allows a single writer; in-memory databases live per connection
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	dm.useDB(db, driver)

	logrus.WithField("driver", driver).Info("Successfully connected to database")
	return nil
}

func (dm *DatabaseManager) useDB(db *gorm.DB, driver string) {
	dm.db = db
	dm.driver = driver
	dm.entryRepo = NewEntryRepository(db)
	dm.messageRepo = NewMessageRepository(db)
	dm.summaryRepo = NewSummaryRepository(db)
}

// Close closes the database connection
func (dm *DatabaseManager) Close() error {
	if dm.db == nil {
		return nil
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB for close: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	logrus.Info("Database connection closed successfully")
	return nil
}

// Migrate creates the journal tables and their lookup indexes
func (dm *DatabaseManager) Migrate() error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	logrus.Info("Running database migrations...")

	if err := dm.db.AutoMigrate(
		&persistence.JournalEntry{},
		&persistence.ConversationMessage{},
		&persistence.WeeklySummary{},
	); err != nil {
		return fmt.Errorf("failed to migrate tables: %w", err)
	}

	if err := dm.createIndexes(); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logrus.Info("Database migrations completed successfully")
	return nil
}

// createIndexes creates the composite indexes used by the journal queries
func (dm *DatabaseManager) createIndexes() error {
	indexes := []string{
		// Entry list per user, newest first
		"CREATE INDEX IF NOT EXISTS idx_journal_entries_user_created ON journal_entries (user_id, created_at DESC)",
		// Conversation replay in order
		"CREATE INDEX IF NOT EXISTS idx_conversation_messages_entry_created ON conversation_messages (entry_id, created_at)",
		"CREATE INDEX IF NOT EXISTS idx_weekly_summaries_user_week ON weekly_summaries (user_id, week_start DESC)",
	}

	for _, index := range indexes {
		if err := dm.db.Exec(index).Error; err != nil {
			logrus.WithError(err).Warnf("Failed to create index: %s", index)
		}
	}

	return nil
}

// Health checks database connectivity
func (dm *DatabaseManager) Health(ctx context.Context) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	sqlDB, err := dm.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// GetRepositories returns initialized repositories
func (dm *DatabaseManager) GetRepositories() (persistence.EntryRepository, persistence.MessageRepository, persistence.SummaryRepository) {
	return dm.entryRepo, dm.messageRepo, dm.summaryRepo
}

// WithTransaction executes a function within a database transaction
func (dm *DatabaseManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if dm.db == nil {
		return fmt.Errorf("database connection not established")
	}

	tx := dm.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	txCtx := context.WithValue(ctx, txContextKey, tx)

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback().Error; rbErr != nil {
			logrus.WithError(rbErr).Error("Failed to rollback transaction")
		}
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type contextKey string

// txContextKey carries the active *gorm.DB transaction through repository calls
const txContextKey contextKey = "gorm_tx"

// dbFromContext returns the transaction in ctx if present, otherwise db bound to ctx
func dbFromContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return db.WithContext(ctx)
}
