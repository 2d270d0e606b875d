package storage

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"rwalend/origination"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return NewStore(db)
}

func samplePositions(owner common.Address) []origination.AssetPosition {
	return []origination.AssetPosition{
		{
			Owner:         owner,
			TokenID:       big.NewInt(1),
			CustodyAmount: big.NewInt(5_000),
			Authorized:    true,
			Display: origination.DisplayMetadata{
				Name:      "Warehouse 4",
				AssetType: "real_estate",
				Location:  "Rotterdam",
				Value:     big.NewInt(25_000_000_000),
			},
		},
		{
			Owner:          owner,
			TokenID:        big.NewInt(2),
			CustodyAmount:  big.NewInt(900),
			Authorized:     true,
			Collateralized: true,
			Display:        origination.SynthesizeDisplay(big.NewInt(2)),
		},
	}
}

func TestReplacePositions(t *testing.T) {
	store := setupStore(t)
	owner := common.HexToAddress("0xaa")
	ctx := context.Background()

	if err := store.ReplacePositions(ctx, owner, 1001, samplePositions(owner)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	rows, err := store.ListPositions(ctx, owner, 1001)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("row count = %d", len(rows))
	}
	if rows[0].Name != "Warehouse 4" || rows[0].ValueMinor != "25000000000" {
		t.Fatalf("display fields not cached: %+v", rows[0])
	}
	if !rows[1].Collateralized {
		t.Fatalf("collateralized flag not cached")
	}

	// A refresh replaces the whole set, it never accumulates.
	if err := store.ReplacePositions(ctx, owner, 1001, samplePositions(owner)[:1]); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	rows, _ = store.ListPositions(ctx, owner, 1001)
	if len(rows) != 1 {
		t.Fatalf("refresh must replace, got %d rows", len(rows))
	}
}

func TestReplacePositionsScopedByChain(t *testing.T) {
	store := setupStore(t)
	owner := common.HexToAddress("0xaa")
	ctx := context.Background()

	if err := store.ReplacePositions(ctx, owner, 1001, samplePositions(owner)); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if err := store.ReplacePositions(ctx, owner, 2002, nil); err != nil {
		t.Fatalf("replace other chain: %v", err)
	}
	rows, _ := store.ListPositions(ctx, owner, 1001)
	if len(rows) != 2 {
		t.Fatalf("refresh on another chain must not clear, got %d rows", len(rows))
	}
}

func TestRecordOriginationUpsert(t *testing.T) {
	store := setupStore(t)
	owner := common.HexToAddress("0xbb")
	ctx := context.Background()
	wizardID := uuid.NewString()

	row := OriginationRow{
		WizardID:        wizardID,
		Owner:           owner.Hex(),
		ChainID:         1001,
		TokenID:         "7",
		Principal:       "10000000000",
		DurationSeconds: 180 * 24 * 60 * 60,
		State:           "SUBMITTING",
	}
	if err := store.RecordOrigination(ctx, row); err != nil {
		t.Fatalf("record: %v", err)
	}

	row.State = "COMPLETED"
	row.TxHash = "0xabc123"
	row.TotalDebt = "10600000000"
	if err := store.RecordOrigination(ctx, row); err != nil {
		t.Fatalf("update: %v", err)
	}

	rows, err := store.ListOriginations(ctx, owner, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("upsert must not duplicate, got %d rows", len(rows))
	}
	if rows[0].State != "COMPLETED" || rows[0].TxHash != "0xabc123" {
		t.Fatalf("row not updated: %+v", rows[0])
	}
}

func TestRecordOriginationRequiresWizardID(t *testing.T) {
	store := setupStore(t)
	if err := store.RecordOrigination(context.Background(), OriginationRow{}); err == nil {
		t.Fatalf("expected error for missing wizard id")
	}
}
