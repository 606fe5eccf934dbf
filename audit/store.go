// Package audit implements the append-only audit log: the evolver writes
// one row per concluded evolution cycle. Record also accepts a "task" kind,
// but the task engine does not write rows. This module owns only the
// write side; the weekly audit-log analyzer that reads this
// table is an external, out-of-scope collaborator.
package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Record is one append-only audit row.
type Record struct {
	ID         uint      `gorm:"primaryKey"`
	Kind       string    `gorm:"index;not null"` // "task" or "evolution"
	SubjectID  string    `gorm:"index;not null"`
	Status     string    `gorm:"not null"`
	Detail     string
	RecordedAt time.Time `gorm:"index;not null"`
}

// TableName pins the table name so it survives struct renames.
func (Record) TableName() string { return "audit_records" }

// Store is the audit log's gorm-backed write side.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// dialectorFor selects a gorm dialector from a DSN. A bare sqlite file
// path or `file:` DSN is the default (zero-infra); `postgres://` and
// `mysql://` prefixes opt into an operator-provisioned database via the
// same Dialector seam, stripping the scheme mysql's own driver expects
// bare.
func dialectorFor(dsn string) gorm.Dialector {
	switch {
	case strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(dsn)
	case strings.HasPrefix(dsn, "mysql://"):
		return mysql.Open(strings.TrimPrefix(dsn, "mysql://"))
	default:
		return sqlite.Open(dsn)
	}
}

// Open connects to dsn, selecting sqlite/postgres/mysql by its scheme,
// and migrates the audit_records table.
func Open(dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(dialectorFor(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate audit table: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record appends one audit row. recordedAt is stamped by the caller's
// clock at call time via time.Now(), not by the database default, so the
// value matches whatever timestamp a simultaneous log line or memory
// record carries.
func (s *Store) Record(ctx context.Context, kind, subjectID, status, detail string) error {
	row := Record{
		Kind:       kind,
		SubjectID:  subjectID,
		Status:     status,
		Detail:     detail,
		RecordedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
