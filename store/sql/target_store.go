package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-leadhooks/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TargetStore persists the tenant webhook registry.
type TargetStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookTargetRecord]
	now  func() time.Time
}

func NewTargetStore(db *bun.DB) (*TargetStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookTargetRecord](db, webhookTargetHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook target repository wiring: %w", err)
		}
	}
	return &TargetStore{db: db, repo: repo, now: time.Now}, nil
}

func (s *TargetStore) Create(ctx context.Context, target core.WebhookTarget) (core.WebhookTarget, error) {
	if s == nil || s.repo == nil {
		return core.WebhookTarget{}, fmt.Errorf("sqlstore: webhook target store is not configured")
	}
	target = core.NormalizeTarget(target)
	if err := target.Validate(); err != nil {
		return core.WebhookTarget{}, err
	}
	if target.ID == "" {
		target.ID = uuid.NewString()
	}
	created, err := s.repo.Create(ctx, newWebhookTargetRecord(target, s.now().UTC()))
	if err != nil {
		return core.WebhookTarget{}, err
	}
	return created.toDomain(), nil
}

func (s *TargetStore) Get(ctx context.Context, id string) (core.WebhookTarget, error) {
	if s == nil || s.db == nil {
		return core.WebhookTarget{}, fmt.Errorf("sqlstore: webhook target store is not configured")
	}
	record := &webhookTargetRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.WebhookTarget{}, fmt.Errorf("%w: id %q", core.ErrTargetNotFound, id)
		}
		return core.WebhookTarget{}, err
	}
	return record.toDomain(), nil
}

// ListActive returns the tenant's active targets in creation order.
func (s *TargetStore) ListActive(ctx context.Context, tenantID string) ([]core.WebhookTarget, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: webhook target store is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("sqlstore: tenant id is required")
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.is_active = ?", true).
				Where("?TableAlias.deleted_at IS NULL")
		}),
		repository.OrderBy("created_at ASC"),
	)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookTarget, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// Update replaces the mutable fields of an existing target.
func (s *TargetStore) Update(ctx context.Context, target core.WebhookTarget) (core.WebhookTarget, error) {
	if s == nil || s.repo == nil {
		return core.WebhookTarget{}, fmt.Errorf("sqlstore: webhook target store is not configured")
	}
	target = core.NormalizeTarget(target)
	if target.ID == "" {
		return core.WebhookTarget{}, fmt.Errorf("sqlstore: webhook target id is required")
	}
	if err := target.Validate(); err != nil {
		return core.WebhookTarget{}, err
	}
	current, err := s.Get(ctx, target.ID)
	if err != nil {
		return core.WebhookTarget{}, err
	}
	if current.TenantID != target.TenantID {
		return core.WebhookTarget{}, fmt.Errorf("%w: id %q", core.ErrTargetNotFound, target.ID)
	}
	target.CreatedAt = current.CreatedAt
	record := newWebhookTargetRecord(target, s.now().UTC())
	_, err = s.db.NewUpdate().
		Model(record).
		Column("form_id", "name", "url", "secret", "events", "is_active", "updated_at").
		WherePK().
		Exec(ctx)
	if err != nil {
		return core.WebhookTarget{}, err
	}
	return record.toDomain(), nil
}

func (s *TargetStore) SetActive(ctx context.Context, id string, active bool) error {
	target, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	target.IsActive = active
	_, err = s.Update(ctx, target)
	return err
}

// Delete soft deletes a target.
func (s *TargetStore) Delete(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: webhook target store is not configured")
	}
	result, err := s.db.NewDelete().
		Model(&webhookTargetRecord{ID: strings.TrimSpace(id)}).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, affectedErr := result.RowsAffected(); affectedErr == nil && affected == 0 {
		return fmt.Errorf("%w: id %q", core.ErrTargetNotFound, id)
	}
	return nil
}
