package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

// NoteHandler consumes note-created events emitted by the inbox
// gateway. A single handler is registered with the gateway; fan-out is
// the application's concern.
type NoteHandler interface {
	NoteCreated(ctx context.Context, event NoteEvent) error
}

// NoteHandlerFunc adapts a function to the NoteHandler interface.
type NoteHandlerFunc func(ctx context.Context, event NoteEvent) error

func (f NoteHandlerFunc) NoteCreated(ctx context.Context, event NoteEvent) error {
	return f(ctx, event)
}

// InboxLedger is the permanent record of inbound activity ids.
type InboxLedger interface {
	// InsertIfAbsent records an activity id and reports whether the id
	// was newly inserted. An existing id is not an error.
	InsertIfAbsent(ctx context.Context, activityID string, createdAt time.Time) (bool, error)
}

// OutboxStore persists locally created objects and their wrapping
// activities.
type OutboxStore interface {
	Insert(ctx context.Context, entry OutboxEntry) error
	Get(ctx context.Context, id string) (OutboxEntry, error)
}

// DeliveryStore is the durable delivery queue. All mutating work runs
// inside Transact so a crash mid-cycle rolls back cleanly; worker
// processes coordinate purely through row locks taken by the Tx
// methods.
type DeliveryStore interface {
	Transact(ctx context.Context, fn func(ctx context.Context, tx DeliveryTx) error) error

	// Notify broadcasts the queue-changed signal outside a transaction.
	Notify(ctx context.Context) error
}

// DeliveryTx is one transaction against the delivery queue.
type DeliveryTx interface {
	// NextDelivery returns the unlocked row with the earliest
	// attempt_at, locking it for the duration of the transaction, or
	// nil when every pending row is locked by another worker or the
	// queue is empty.
	NextDelivery(ctx context.Context) (*Delivery, error)

	// Insert creates one pending row per addressee for an outbox id.
	Insert(ctx context.Context, outboxID string, addressee string, attemptAt time.Time) error

	// LockUnresolvedByAddressee locks every pending row for the
	// addressee that has no inbox yet and returns their outbox ids.
	LockUnresolvedByAddressee(ctx context.Context, addressee string) ([]string, error)

	// SetInboxByAddressee stamps the resolved inbox on the given rows.
	// The update must touch exactly len(outboxIDs) rows.
	SetInboxByAddressee(ctx context.Context, outboxIDs []string, addressee, inbox string, attemptAt time.Time) error

	// LockByInbox locks every pending row for the outbox id that shares
	// the resolved inbox and returns their addressees.
	LockByInbox(ctx context.Context, outboxID, inbox string) ([]string, error)

	// Reschedule updates attempt_at and attempt_num for every given
	// addressee of the outbox id in one statement. The update must
	// touch exactly len(addressees) rows.
	Reschedule(ctx context.Context, outboxID string, addressees []string, attemptAt time.Time, attemptNum int) error

	// Delete removes the rows for every given addressee of the outbox
	// id. The delete must touch exactly len(addressees) rows.
	Delete(ctx context.Context, outboxID string, addressees []string) error

	// Outbox loads the object and activity bodies for an outbox id.
	Outbox(ctx context.Context, outboxID string) (OutboxEntry, error)

	// InsertOutbox persists a locally created object inside the
	// transaction, so the entry and its delivery rows commit together.
	InsertOutbox(ctx context.Context, entry OutboxEntry) error

	// Notify broadcasts the queue-changed signal within the
	// transaction, waking idle workers on commit.
	Notify(ctx context.Context) error
}

// ChangeListener delivers queue-changed signals from other processes.
// Implementations hold a dedicated long-lived connection that is never
// reused for queries.
type ChangeListener interface {
	// Notifications never closes while the listener is healthy; each
	// receive means the queue may have new work.
	Notifications() <-chan struct{}
	Close() error
}
