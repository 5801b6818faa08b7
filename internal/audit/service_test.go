package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/golosretail/golos-backend/pkg/db/models"
	"github.com/golosretail/golos-backend/pkg/types"
)

type fakeRepository struct {
	createFn func(ctx context.Context, entry *models.AuditLog) error
	entries  []models.AuditLog
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if f.createFn != nil {
		return f.createFn(ctx, entry)
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeRepository) ListBySaleID(ctx context.Context, saleID uuid.UUID) ([]models.AuditLog, error) {
	return f.entries, nil
}

func TestService_Record(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	saleID := uuid.New()
	entry, err := svc.Record(context.Background(), RecordInput{
		Source:    SourceWompi,
		Action:    "payment_event",
		SaleID:    &saleID,
		Reference: "evt-123",
		Result:    "applied",
		Payload:   types.JSONMap{"status": "APPROVED"},
	})
	if err != nil {
		t.Fatalf("Record error: %v", err)
	}
	if entry.Source != SourceWompi || entry.Action != "payment_event" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Reference == nil || *entry.Reference != "evt-123" {
		t.Fatalf("reference not stored: %+v", entry.Reference)
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected one persisted entry, got %d", len(repo.entries))
	}
}

func TestService_RecordValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		input RecordInput
	}{
		{name: "missing source", input: RecordInput{Action: "x", Result: "ok"}},
		{name: "missing action", input: RecordInput{Source: SourceOps, Result: "ok"}},
		{name: "missing result", input: RecordInput{Source: SourceOps, Action: "x"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Record(context.Background(), tc.input); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
