package db

import (
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/confessions/internal/models"
)

// Open connects to the database named by url, which must start with
// "postgres://" or "sqlite://".
func Open(url string, log *zap.Logger) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		memory    bool
	)

	switch {
	case strings.HasPrefix(url, "postgres://"):
		dialector = postgres.Open(url)
		log.Info("connecting to PostgreSQL database")
	case strings.HasPrefix(url, "sqlite://"):
		dsn := strings.TrimPrefix(url, "sqlite://")
		memory = strings.HasPrefix(dsn, ":memory:") || strings.Contains(dsn, "mode=memory")
		dialector = sqlite.Open(withPragmas(dsn))
		log.Info("connecting to SQLite database", zap.String("path", dsn))
	default:
		return nil, fmt.Errorf("invalid database url: must start with 'postgres://' or 'sqlite://'")
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // Be quiet by default
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if memory {
		// Every connection to :memory: is a separate database.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}

	log.Info("database connection established")
	return db, nil
}

// Migrate creates or updates the confessions and comments tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Confession{}, &models.Comment{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// withPragmas turns on SQLite foreign key enforcement, which is off by
// default and needed for ON DELETE CASCADE, and makes writers wait for a
// busy database instead of failing at once.
func withPragmas(dsn string) string {
	for _, pragma := range []string{"foreign_keys(1)", "busy_timeout(5000)"} {
		name := pragma[:strings.Index(pragma, "(")]
		if strings.Contains(dsn, name) {
			continue
		}
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=" + pragma
	}
	return dsn
}
