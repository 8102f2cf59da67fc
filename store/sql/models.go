package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/goliatone/go-federation/core"
)

// deliveryRecord is one pending delivery: one (outbox object,
// addressee) pair. The pair is the primary key, so re-queueing the
// same recipient for the same object is impossible.
type deliveryRecord struct {
	bun.BaseModel `bun:"table:deliveries,alias:d"`

	OutboxID   string    `bun:"outbox_id,pk"`
	Addressee  string    `bun:"addressee,pk"`
	Inbox      *string   `bun:"inbox"`
	AttemptAt  time.Time `bun:"attempt_at,notnull"`
	AttemptNum int       `bun:"attempt_num,notnull"`
}

func (r *deliveryRecord) toDomain() *core.Delivery {
	delivery := &core.Delivery{
		OutboxID:   r.OutboxID,
		Addressee:  r.Addressee,
		AttemptAt:  r.AttemptAt.UTC(),
		AttemptNum: r.AttemptNum,
	}
	if r.Inbox != nil {
		inbox := *r.Inbox
		delivery.Inbox = &inbox
	}
	return delivery
}

// inboxEntryRecord is the permanent dedup record of an inbound
// activity id.
type inboxEntryRecord struct {
	bun.BaseModel `bun:"table:inbox_entries,alias:ie"`

	ID        string    `bun:"id,pk"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

// outboxRecord stores a locally created object together with its
// wrapping activity.
type outboxRecord struct {
	bun.BaseModel `bun:"table:outbox,alias:o"`

	ID        string         `bun:"id,pk"`
	Object    map[string]any `bun:"object,type:jsonb,notnull"`
	Activity  map[string]any `bun:"activity,type:jsonb,notnull"`
	CreatedAt time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

func newOutboxRecord(entry core.OutboxEntry) *outboxRecord {
	return &outboxRecord{
		ID:        entry.ID,
		Object:    entry.Object,
		Activity:  entry.Activity,
		CreatedAt: entry.CreatedAt.UTC(),
	}
}

func (r *outboxRecord) toDomain() core.OutboxEntry {
	return core.OutboxEntry{
		ID:        r.ID,
		Object:    r.Object,
		Activity:  r.Activity,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
