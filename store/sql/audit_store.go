package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AuditStore appends lead activity rows; it never updates them.
type AuditStore struct {
	db   *bun.DB
	repo repository.Repository[*leadActivityRecord]
	now  func() time.Time
}

func NewAuditStore(db *bun.DB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*leadActivityRecord](db, leadActivityHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid lead activity repository wiring: %w", err)
		}
	}
	return &AuditStore{db: db, repo: repo, now: time.Now}, nil
}

func (s *AuditStore) Record(ctx context.Context, entry core.AuditEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: audit store is not configured")
	}
	if strings.TrimSpace(entry.LeadID) == "" {
		return fmt.Errorf("sqlstore: audit entry lead id is required")
	}
	if strings.TrimSpace(string(entry.Type)) == "" {
		return fmt.Errorf("sqlstore: audit entry type is required")
	}
	record := newLeadActivityRecord(entry, s.now().UTC())
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// ListByLead returns a lead's activity oldest first.
func (s *AuditStore) ListByLead(ctx context.Context, leadID string) ([]core.AuditEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: audit store is not configured")
	}
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return nil, fmt.Errorf("sqlstore: lead id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("lead_id", "=", leadID),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.AuditEntry, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
