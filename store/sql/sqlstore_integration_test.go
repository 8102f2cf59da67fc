package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"net/http"
	"reflect"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-federation/core"
	federationmigrations "github.com/goliatone/go-federation/migrations"
	sqlstore "github.com/goliatone/go-federation/store/sql"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-federation-tests"
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:federation-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = federationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != federationmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, federationmigrations.WithValidationTargets(federationmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func newFactory(t *testing.T, client *persistence.Client) *sqlstore.RepositoryFactory {
	t.Helper()
	factory := sqlstore.NewRepositoryFactory()
	if err := factory.BuildStores(client); err != nil {
		t.Fatalf("build stores: %v", err)
	}
	return factory
}

func testEntry(id string) core.OutboxEntry {
	return core.OutboxEntry{
		ID: id,
		Object: map[string]any{
			"@context": core.ActivityStreamsContext,
			"id":       id,
			"type":     "Note",
			"content":  "1. e4 e5 2. Nf3",
		},
		Activity: map[string]any{
			"id":     id + "/activity",
			"type":   "Create",
			"actor":  "https://chess.example.com/actor",
			"object": id,
		},
		CreatedAt: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range []string{"outbox", "deliveries", "inbox_entries"} {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestInboxStore_InsertIfAbsent(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client)

	ledger := factory.InboxStore()
	inserted, err := ledger.InsertIfAbsent(ctx, "https://remote.example.com/activities/1", time.Now())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !inserted {
		t.Fatalf("expected first insert to report a new row")
	}

	inserted, err = ledger.InsertIfAbsent(ctx, "https://remote.example.com/activities/1", time.Now())
	if err != nil {
		t.Fatalf("replay insert: %v", err)
	}
	if inserted {
		t.Fatalf("expected the replay to be absorbed silently")
	}
}

func TestOutboxStore_InsertAndGet(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client)

	store := factory.OutboxStore()
	entry := testEntry("https://chess.example.com/objects/read-side")
	if err := store.Insert(ctx, entry); err != nil {
		t.Fatalf("insert: %v", err)
	}

	loaded, err := store.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(loaded.Object, entry.Object) {
		t.Fatalf("object round trip mismatch: %v", loaded.Object)
	}
	if !reflect.DeepEqual(loaded.Activity, entry.Activity) {
		t.Fatalf("activity round trip mismatch: %v", loaded.Activity)
	}

	_, err = store.Get(ctx, "https://chess.example.com/objects/missing")
	if err == nil {
		t.Fatalf("expected a missing object to fail")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Code != http.StatusNotFound {
		t.Fatalf("expected a 404 envelope, got %v", err)
	}
}

func TestDeliveryQueue_FullCycle(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client)

	queue := factory.DeliveryStore()
	entry := testEntry("https://chess.example.com/objects/cycle")
	alice := "https://remote.example.com/alice"
	bob := "https://remote.example.com/bob"
	baseTime := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	err := queue.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		if err := tx.InsertOutbox(ctx, entry); err != nil {
			return err
		}
		if err := tx.Insert(ctx, entry.ID, alice, baseTime); err != nil {
			return err
		}
		if err := tx.Insert(ctx, entry.ID, bob, baseTime.Add(time.Second)); err != nil {
			return err
		}
		return tx.Notify(ctx)
	})
	if err != nil {
		t.Fatalf("seed queue: %v", err)
	}

	inbox := "https://remote.example.com/shared-inbox"
	err = queue.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		delivery, err := tx.NextDelivery(ctx)
		if err != nil {
			return err
		}
		if delivery == nil || delivery.Addressee != alice {
			return fmt.Errorf("expected the earliest row first, got %+v", delivery)
		}
		if delivery.Inbox != nil {
			return fmt.Errorf("expected an unresolved row, got inbox %q", *delivery.Inbox)
		}

		outboxIDs, err := tx.LockUnresolvedByAddressee(ctx, alice)
		if err != nil {
			return err
		}
		if len(outboxIDs) != 1 || outboxIDs[0] != entry.ID {
			return fmt.Errorf("unexpected unresolved rows %v", outboxIDs)
		}
		return tx.SetInboxByAddressee(ctx, outboxIDs, alice, inbox, baseTime.Add(2*time.Second))
	})
	if err != nil {
		t.Fatalf("resolve inbox: %v", err)
	}

	err = queue.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		addressees, err := tx.LockByInbox(ctx, entry.ID, inbox)
		if err != nil {
			return err
		}
		if len(addressees) != 1 || addressees[0] != alice {
			return fmt.Errorf("unexpected addressees for inbox: %v", addressees)
		}

		loaded, err := tx.Outbox(ctx, entry.ID)
		if err != nil {
			return err
		}
		if !reflect.DeepEqual(loaded.Activity, entry.Activity) {
			return fmt.Errorf("outbox activity mismatch: %v", loaded.Activity)
		}

		return tx.Reschedule(ctx, entry.ID, addressees, baseTime.Add(10*time.Second), 1)
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	err = queue.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		delivery, err := tx.NextDelivery(ctx)
		if err != nil {
			return err
		}
		// Bob's unresolved row is now the earliest.
		if delivery == nil || delivery.Addressee != bob {
			return fmt.Errorf("expected bob's row next, got %+v", delivery)
		}

		if err := tx.Delete(ctx, entry.ID, []string{alice, bob}); err != nil {
			return err
		}
		next, err := tx.NextDelivery(ctx)
		if err != nil {
			return err
		}
		if next != nil {
			return fmt.Errorf("expected an empty queue, got %+v", next)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("drain queue: %v", err)
	}

	// Notify is a no-op without postgres.
	if err := queue.Notify(ctx); err != nil {
		t.Fatalf("notify: %v", err)
	}
}

func TestDeliveryTx_RescheduledAttemptSurvives(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client)

	queue := factory.DeliveryStore()
	entry := testEntry("https://chess.example.com/objects/retry")
	alice := "https://remote.example.com/alice"
	attemptAt := time.Date(2026, 4, 1, 12, 0, 30, 0, time.UTC)

	err := queue.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		if err := tx.InsertOutbox(ctx, entry); err != nil {
			return err
		}
		if err := tx.Insert(ctx, entry.ID, alice, attemptAt.Add(-30*time.Second)); err != nil {
			return err
		}
		return tx.Reschedule(ctx, entry.ID, []string{alice}, attemptAt, 3)
	})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	err = queue.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		delivery, err := tx.NextDelivery(ctx)
		if err != nil {
			return err
		}
		if delivery == nil {
			return fmt.Errorf("expected the rescheduled row")
		}
		if delivery.AttemptNum != 3 {
			return fmt.Errorf("expected attempt count 3, got %d", delivery.AttemptNum)
		}
		if !delivery.AttemptAt.Equal(attemptAt) {
			return fmt.Errorf("expected attempt at %v, got %v", attemptAt, delivery.AttemptAt)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestDeliveryTx_MismatchedDeleteIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client)

	queue := factory.DeliveryStore()
	entry := testEntry("https://chess.example.com/objects/mismatch")

	err := queue.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		if err := tx.InsertOutbox(ctx, entry); err != nil {
			return err
		}
		return tx.Delete(ctx, entry.ID, []string{"https://remote.example.com/nobody"})
	})
	if err == nil {
		t.Fatalf("expected a delete touching no rows to fail the transaction")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryInternal {
		t.Fatalf("expected an internal integrity error, got %v", err)
	}
}

func TestDeliveryTx_DuplicateAddresseeRejected(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	factory := newFactory(t, client)

	queue := factory.DeliveryStore()
	entry := testEntry("https://chess.example.com/objects/duplicate")
	alice := "https://remote.example.com/alice"

	err := queue.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		if err := tx.InsertOutbox(ctx, entry); err != nil {
			return err
		}
		if err := tx.Insert(ctx, entry.ID, alice, time.Now()); err != nil {
			return err
		}
		return tx.Insert(ctx, entry.ID, alice, time.Now())
	})
	if err == nil {
		t.Fatalf("expected the duplicate addressee row to violate the primary key")
	}
}
