/*
Copyright (C) 2026 MediaFox

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package position implements the supplementary "rehydrated playlist"
// feature: persisting each playlist item's savedPosition to a
// pluggable SQL backend so a Playlist Coordinator recreated in a new
// process picks up where the previous one left off, not just across an
// in-process item switch.
package position

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/mediafoxhq/mediafox/internal/config"
	"github.com/mediafoxhq/mediafox/internal/playlist"
)

// Record is the GORM model backing one playlist item's last known
// position.
type Record struct {
	ItemID    string `gorm:"primaryKey"`
	Position  float64
	UpdatedAt time.Time
}

// Connect opens a GORM connection for cfg.PositionBackend/PositionDSN,
// selecting a dialector for whichever of the three backends is
// configured.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.PositionBackend {
	case config.DatabasePostgres:
		dialector = postgres.Open(cfg.PositionDSN)
	case config.DatabaseMySQL:
		dialector = mysql.Open(cfg.PositionDSN)
	case config.DatabaseSQLite:
		dialector = sqlite.Open(cfg.PositionDSN)
	default:
		return nil, fmt.Errorf("position: unknown database backend %q", cfg.PositionBackend)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("position: opening database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("position: unwrapping sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	return db, nil
}

// Migrate applies the position store's schema.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{})
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Store implements playlist.PositionStore plus the lookups a host uses
// to rehydrate a playlist's savedPosition fields at startup.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New wraps an already-connected, already-migrated *gorm.DB.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{db: db, logger: logger.With().Str("component", "position").Logger()}
}

var _ playlist.PositionStore = (*Store)(nil)

// SavePosition implements playlist.PositionStore: upserts itemID's
// last known position, creating the row on first write.
func (s *Store) SavePosition(ctx context.Context, itemID string, position float64) error {
	rec := Record{ItemID: itemID, Position: position, UpdatedAt: time.Now()}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "updated_at"}),
		}).
		Create(&rec).Error
	if err != nil {
		s.logger.Warn().Err(err).Str("itemId", itemID).Msg("failed to persist saved position")
		return fmt.Errorf("position: saving position for %q: %w", itemID, err)
	}
	return nil
}

// LoadPosition returns itemID's last saved position, or nil if none
// has ever been recorded.
func (s *Store) LoadPosition(ctx context.Context, itemID string) (*float64, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("item_id = ?", itemID).First(&rec).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("position: loading position for %q: %w", itemID, err)
	}
	return &rec.Position, nil
}

// LoadAll returns every persisted position keyed by item id, used to
// rehydrate an entire playlist's savedPosition fields in one query
// instead of one round-trip per item.
func (s *Store) LoadAll(ctx context.Context) (map[string]float64, error) {
	var records []Record
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("position: loading all positions: %w", err)
	}
	out := make(map[string]float64, len(records))
	for _, r := range records {
		out[r.ItemID] = r.Position
	}
	return out, nil
}
