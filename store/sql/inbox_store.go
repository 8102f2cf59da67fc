package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-federation/core"
)

// InboxStore is the permanent dedup ledger for inbound activity ids.
type InboxStore struct {
	db *bun.DB
}

func NewInboxStore(db *bun.DB) (*InboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &InboxStore{db: db}, nil
}

// InsertIfAbsent records an activity id and reports whether the id was
// newly inserted. A replayed id leaves the existing row untouched.
func (s *InboxStore) InsertIfAbsent(ctx context.Context, activityID string, createdAt time.Time) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("sqlstore: inbox store is not configured")
	}
	activityID = strings.TrimSpace(activityID)
	if activityID == "" {
		return false, fmt.Errorf("sqlstore: activity id is required")
	}
	record := &inboxEntryRecord{
		ID:        activityID,
		CreatedAt: createdAt.UTC(),
	}
	res, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

var _ core.InboxLedger = (*InboxStore)(nil)
