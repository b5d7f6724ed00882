// Package sqlstore provides a SQLite-backed kv.Storage using GORM. It is the
// default durable layer for statekitd: values survive daemon restarts the
// way browser local storage survives page reloads.
package sqlstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grantsnap/statekit/clock"
	"github.com/grantsnap/statekit/errors"
	"github.com/grantsnap/statekit/kv"
	"github.com/grantsnap/statekit/logger"
)

const backendName = "sqlite"

// Entry is one stored key-value row.
type Entry struct {
	Key       string `gorm:"column:entry_key;primaryKey;size:512"`
	Value     string `gorm:"type:text"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of GORM's pluralization.
func (Entry) TableName() string { return "kv_entries" }

// Store implements kv.Storage on a single SQLite table.
type Store struct {
	db     *gorm.DB
	log    *logger.Logger
	clock  clock.Clock
	closed bool
	mu     sync.Mutex
}

// Option configures Open.
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock sets the clock that stamps updated_at. Defaults to the real clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Open connects to the SQLite database described by cfg and migrates the schema.
func Open(ctx context.Context, cfg Config, log *logger.Logger, opts ...Option) (*Store, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	clk := clock.OrReal(o.clock)

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sqlite config: %w", err)
	}

	slowThreshold, _ := time.ParseDuration(cfg.SlowQueryThreshold)
	db, err := gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{
		Logger:  newGormLogger(log, slowThreshold, parseLogLevel(cfg.LogLevel)),
		NowFunc: clk.Now,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cfg.DSN, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite ping: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	if lifetime, parseErr := time.ParseDuration(cfg.ConnMaxLifetime); parseErr == nil {
		sqlDB.SetConnMaxLifetime(lifetime)
	}

	if err := db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}

	log.Info("SQLite store opened", logger.Fields("dsn", cfg.DSN))
	return &Store{db: db, log: log, clock: clk}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Take(&e).Error
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.StorageRead(backendName, key, err)
	}
	return e.Value, true, nil
}

// Set upserts value under key.
func (s *Store) Set(ctx context.Context, key, value string) error {
	e := Entry{Key: key, Value: value, UpdatedAt: s.clock.Now()}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&e).Error
	if err != nil {
		return errors.StorageWrite(backendName, key, err)
	}
	return nil
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).Where("entry_key = ?", key).Delete(&Entry{}).Error; err != nil {
		return errors.StorageWrite(backendName, key, err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool. Safe to call multiple times.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// compile-time interface check
var _ kv.Storage = (*Store)(nil)
