package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/goliatone/go-federation/core"
)

// NotifyChannel is the postgres notification channel workers listen
// on for queue changes.
const NotifyChannel = "deliveries_changed"

// DeliveryStore is the durable delivery queue on bun. On postgres the
// dequeue select uses FOR UPDATE SKIP LOCKED so concurrent workers
// never claim the same row; on sqlite the single-writer connection
// makes the locking clauses unnecessary.
type DeliveryStore struct {
	db       *bun.DB
	postgres bool
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &DeliveryStore{
		db:       db,
		postgres: db.Dialect().Name() == dialect.PG,
	}, nil
}

func (s *DeliveryStore) Transact(ctx context.Context, fn func(ctx context.Context, tx core.DeliveryTx) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &deliveryTx{tx: tx, postgres: s.postgres})
	})
}

func (s *DeliveryStore) Notify(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if !s.postgres {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "NOTIFY "+NotifyChannel)
	return err
}

type deliveryTx struct {
	tx       bun.Tx
	postgres bool
}

func (t *deliveryTx) NextDelivery(ctx context.Context) (*core.Delivery, error) {
	record := &deliveryRecord{}
	query := t.tx.NewSelect().
		Model(record).
		OrderExpr("attempt_at ASC").
		Limit(1)
	if t.postgres {
		query = query.For("UPDATE SKIP LOCKED")
	}
	if err := query.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record.toDomain(), nil
}

func (t *deliveryTx) Insert(ctx context.Context, outboxID string, addressee string, attemptAt time.Time) error {
	record := &deliveryRecord{
		OutboxID:  outboxID,
		Addressee: addressee,
		AttemptAt: attemptAt.UTC(),
	}
	res, err := t.tx.NewInsert().Model(record).Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, 1, "insert delivery", map[string]any{
		"outbox_id": outboxID,
		"addressee": addressee,
	})
}

func (t *deliveryTx) LockUnresolvedByAddressee(ctx context.Context, addressee string) ([]string, error) {
	var outboxIDs []string
	query := t.tx.NewSelect().
		Model((*deliveryRecord)(nil)).
		Column("outbox_id").
		Where("addressee = ?", addressee).
		Where("inbox IS NULL")
	if t.postgres {
		query = query.For("UPDATE")
	}
	if err := query.Scan(ctx, &outboxIDs); err != nil {
		return nil, err
	}
	return outboxIDs, nil
}

func (t *deliveryTx) SetInboxByAddressee(ctx context.Context, outboxIDs []string, addressee, inbox string, attemptAt time.Time) error {
	if len(outboxIDs) == 0 {
		return nil
	}
	res, err := t.tx.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("inbox = ?", inbox).
		Set("attempt_at = ?", attemptAt.UTC()).
		Where("addressee = ?", addressee).
		Where("inbox IS NULL").
		Where("outbox_id IN (?)", bun.In(outboxIDs)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, len(outboxIDs), "stamp inbox", map[string]any{
		"addressee": addressee,
		"inbox":     inbox,
	})
}

func (t *deliveryTx) LockByInbox(ctx context.Context, outboxID, inbox string) ([]string, error) {
	var addressees []string
	query := t.tx.NewSelect().
		Model((*deliveryRecord)(nil)).
		Column("addressee").
		Where("outbox_id = ?", outboxID).
		Where("inbox = ?", inbox)
	if t.postgres {
		query = query.For("UPDATE")
	}
	if err := query.Scan(ctx, &addressees); err != nil {
		return nil, err
	}
	return addressees, nil
}

func (t *deliveryTx) Reschedule(ctx context.Context, outboxID string, addressees []string, attemptAt time.Time, attemptNum int) error {
	if len(addressees) == 0 {
		return nil
	}
	res, err := t.tx.NewUpdate().
		Model((*deliveryRecord)(nil)).
		Set("attempt_at = ?", attemptAt.UTC()).
		Set("attempt_num = ?", attemptNum).
		Where("outbox_id = ?", outboxID).
		Where("addressee IN (?)", bun.In(addressees)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, len(addressees), "reschedule deliveries", map[string]any{
		"outbox_id": outboxID,
	})
}

func (t *deliveryTx) Delete(ctx context.Context, outboxID string, addressees []string) error {
	if len(addressees) == 0 {
		return nil
	}
	res, err := t.tx.NewDelete().
		Model((*deliveryRecord)(nil)).
		Where("outbox_id = ?", outboxID).
		Where("addressee IN (?)", bun.In(addressees)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, len(addressees), "delete deliveries", map[string]any{
		"outbox_id": outboxID,
	})
}

func (t *deliveryTx) Outbox(ctx context.Context, outboxID string) (core.OutboxEntry, error) {
	record := &outboxRecord{}
	err := t.tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", outboxID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.OutboxEntry{}, integrityError(
				"sqlstore: delivery references missing outbox row",
				map[string]any{"outbox_id": outboxID},
			)
		}
		return core.OutboxEntry{}, err
	}
	return record.toDomain(), nil
}

func (t *deliveryTx) InsertOutbox(ctx context.Context, entry core.OutboxEntry) error {
	res, err := t.tx.NewInsert().Model(newOutboxRecord(entry)).Exec(ctx)
	if err != nil {
		return err
	}
	return expectRows(res, 1, "insert outbox entry", map[string]any{"id": entry.ID})
}

func (t *deliveryTx) Notify(ctx context.Context) error {
	if !t.postgres {
		return nil
	}
	_, err := t.tx.ExecContext(ctx, "NOTIFY "+NotifyChannel)
	return err
}

func expectRows(res sql.Result, want int, op string, metadata map[string]any) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected != int64(want) {
		metadata["rows"] = affected
		metadata["want"] = want
		return integrityError("sqlstore: "+op+" touched an unexpected number of rows", metadata)
	}
	return nil
}

var _ core.DeliveryStore = (*DeliveryStore)(nil)
var _ core.DeliveryTx = (*deliveryTx)(nil)
