// Package storage holds the Postgres-backed stores, built on gorm with the
// pgx driver.
package storage

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type DB struct {
	gorm *gorm.DB
}

// Open connects to Postgres and migrates the hangman tables.
func Open(dsn string, log *zap.Logger) (*DB, error) {
	gl := logger.New(zap.NewStdLog(log.Named("gorm")), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&inviteRow{}, &sessionRow{}); err != nil {
		return nil, multierr.Append(fmt.Errorf("migrate: %w", err), closeGorm(db))
	}
	return &DB{gorm: db}, nil
}

func (d *DB) Invites() *InviteStore { return &InviteStore{db: d.gorm} }

func (d *DB) Sessions() *ArchiveStore { return &ArchiveStore{db: d.gorm} }

func (d *DB) Close() error { return closeGorm(d.gorm) }

func closeGorm(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
