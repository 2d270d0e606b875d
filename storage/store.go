package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rwalend/origination"
)

// Open opens the sqlite database at path and runs migrations. An empty path
// uses a shared in-memory database, which is what tests and ephemeral
// deployments want.
func Open(path string) (*gorm.DB, error) {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, nil
}

// Store is the display cache. It holds what the dashboard lists between
// ledger refreshes; nothing here feeds a transaction.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an opened database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ReplacePositions swaps the cached position set for one owner and chain in a
// single transaction, so readers never observe a partial refresh.
func (s *Store) ReplacePositions(ctx context.Context, owner common.Address, chainID uint64, positions []origination.AssetPosition) error {
	rows := make([]PositionRow, 0, len(positions))
	now := time.Now().UTC()
	for _, position := range positions {
		row := PositionRow{
			ID:             uuid.New(),
			Owner:          owner.Hex(),
			ChainID:        chainID,
			Authorized:     position.Authorized,
			Collateralized: position.Collateralized,
			Name:           position.Display.Name,
			AssetType:      position.Display.AssetType,
			Location:       position.Display.Location,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if position.TokenID != nil {
			row.TokenID = position.TokenID.String()
		}
		if position.CustodyAmount != nil {
			row.CustodyAmount = position.CustodyAmount.String()
		}
		if position.Display.Value != nil {
			row.ValueMinor = position.Display.Value.String()
		}
		rows = append(rows, row)
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("owner = ? AND chain_id = ?", owner.Hex(), chainID).Delete(&PositionRow{}).Error; err != nil {
			return fmt.Errorf("clear cached positions: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("cache positions: %w", err)
		}
		return nil
	})
}

// ListPositions returns the cached positions for an owner on a chain.
func (s *Store) ListPositions(ctx context.Context, owner common.Address, chainID uint64) ([]PositionRow, error) {
	var rows []PositionRow
	err := s.db.WithContext(ctx).
		Where("owner = ? AND chain_id = ?", owner.Hex(), chainID).
		Order("token_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list cached positions: %w", err)
	}
	return rows, nil
}

// RecordOrigination upserts the history row for a wizard, keyed by wizard ID
// so repeated snapshots of the same flow overwrite rather than duplicate.
func (s *Store) RecordOrigination(ctx context.Context, row OriginationRow) error {
	if row.WizardID == "" {
		return fmt.Errorf("wizard id required")
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wizard_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"state", "tx_hash", "failure_reason", "total_debt", "updated_at",
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("record origination: %w", err)
	}
	return nil
}

// ListOriginations returns an owner's origination history, newest first.
func (s *Store) ListOriginations(ctx context.Context, owner common.Address, limit int) ([]OriginationRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var rows []OriginationRow
	err := s.db.WithContext(ctx).
		Where("owner = ?", owner.Hex()).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list originations: %w", err)
	}
	return rows, nil
}
