package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PositionRow caches a resolved collateral position for dashboard listing.
// Rows are display data only; origination decisions always re-read the
// ledger.
type PositionRow struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Owner          string    `gorm:"size:64;index:idx_position_owner_chain"`
	ChainID        uint64    `gorm:"index:idx_position_owner_chain"`
	TokenID        string    `gorm:"size:96;index"`
	CustodyAmount  string    `gorm:"size:96"`
	Authorized     bool
	Collateralized bool
	Name           string `gorm:"size:255"`
	AssetType      string `gorm:"size:64"`
	Location       string `gorm:"size:255"`
	ValueMinor     string `gorm:"size:96"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OriginationRow records one wizard outcome for history views.
type OriginationRow struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	WizardID        string    `gorm:"size:64;uniqueIndex"`
	Owner           string    `gorm:"size:64;index"`
	ChainID         uint64    `gorm:"index"`
	TokenID         string    `gorm:"size:96"`
	Principal       string    `gorm:"size:96"`
	DurationSeconds uint64
	TotalDebt       string `gorm:"size:96"`
	State           string `gorm:"size:32;index"`
	TxHash          string `gorm:"size:80"`
	FailureReason   string `gorm:"size:512"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AutoMigrate performs all schema migrations for the service.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&PositionRow{},
		&OriginationRow{},
	)
}
