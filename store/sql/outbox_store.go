package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-federation/core"
)

// OutboxStore reads and writes published objects outside the delivery
// transaction, for the HTTP read side.
type OutboxStore struct {
	db   *bun.DB
	repo repository.Repository[*outboxRecord]
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*outboxRecord](db, outboxHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid outbox repository wiring: %w", err)
		}
	}
	return &OutboxStore{db: db, repo: repo}, nil
}

func (s *OutboxStore) Insert(ctx context.Context, entry core.OutboxEntry) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if strings.TrimSpace(entry.ID) == "" {
		return fmt.Errorf("sqlstore: outbox entry id is required")
	}
	_, err := s.repo.Create(ctx, newOutboxRecord(entry))
	return err
}

func (s *OutboxStore) Get(ctx context.Context, id string) (core.OutboxEntry, error) {
	if s == nil || s.db == nil {
		return core.OutboxEntry{}, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	record := &outboxRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.OutboxEntry{}, notFoundError("sqlstore: object not found", map[string]any{"id": id})
		}
		return core.OutboxEntry{}, err
	}
	return record.toDomain(), nil
}

var _ core.OutboxStore = (*OutboxStore)(nil)
