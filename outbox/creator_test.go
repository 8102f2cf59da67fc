package outbox

import (
	"context"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-federation/core"
)

var frozenNow = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

type queuedDelivery struct {
	outboxID  string
	addressee string
	attemptAt time.Time
}

// recordingStore captures what the creator writes in its transaction.
type recordingStore struct {
	entries    []core.OutboxEntry
	deliveries []queuedDelivery
	notified   int
	failWith   error
}

func (s *recordingStore) Transact(ctx context.Context, fn func(ctx context.Context, tx core.DeliveryTx) error) error {
	if s.failWith != nil {
		return s.failWith
	}
	return fn(ctx, &recordingTx{store: s})
}

func (s *recordingStore) Notify(context.Context) error {
	s.notified++
	return nil
}

type recordingTx struct {
	store *recordingStore
}

func (t *recordingTx) NextDelivery(context.Context) (*core.Delivery, error) { return nil, nil }

func (t *recordingTx) Insert(_ context.Context, outboxID, addressee string, attemptAt time.Time) error {
	t.store.deliveries = append(t.store.deliveries, queuedDelivery{
		outboxID:  outboxID,
		addressee: addressee,
		attemptAt: attemptAt,
	})
	return nil
}

func (t *recordingTx) LockUnresolvedByAddressee(context.Context, string) ([]string, error) {
	return nil, nil
}

func (t *recordingTx) SetInboxByAddressee(context.Context, []string, string, string, time.Time) error {
	return nil
}

func (t *recordingTx) LockByInbox(context.Context, string, string) ([]string, error) {
	return nil, nil
}

func (t *recordingTx) Reschedule(context.Context, string, []string, time.Time, int) error {
	return nil
}

func (t *recordingTx) Delete(context.Context, string, []string) error { return nil }

func (t *recordingTx) Outbox(context.Context, string) (core.OutboxEntry, error) {
	return core.OutboxEntry{}, nil
}

func (t *recordingTx) InsertOutbox(_ context.Context, entry core.OutboxEntry) error {
	t.store.entries = append(t.store.entries, entry)
	return nil
}

func (t *recordingTx) Notify(context.Context) error {
	t.store.notified++
	return nil
}

var _ core.DeliveryStore = (*recordingStore)(nil)
var _ core.DeliveryTx = (*recordingTx)(nil)

func testCreator(store *recordingStore) *Creator {
	cfg := core.DefaultConfig()
	cfg.Domain = "chess.example.com"
	cfg.ActorURL = "https://chess.example.com/actor"
	creator := NewCreator(cfg, store, nil)
	creator.Now = func() time.Time { return frozenNow }
	creator.NewID = func() string { return "fixed-id" }
	return creator
}

func TestCreateObject_AssignsIDAndDefaults(t *testing.T) {
	store := &recordingStore{}
	creator := testCreator(store)

	object := map[string]any{
		"type":    "Note",
		"content": "<p>Checkmate.</p>",
		"to": []any{
			"https://chess.example.com/actor",
			"https://remote.example.com/alice",
			core.PublicCollective,
		},
		"cc":  "https://remote.example.com/bob",
		"bcc": []any{"https://remote.example.com/alice"},
	}

	entry, err := creator.CreateObject(context.Background(), object)
	if err != nil {
		t.Fatalf("create object: %v", err)
	}

	if entry.ID != "https://chess.example.com/objects/fixed-id" {
		t.Fatalf("unexpected object id %q", entry.ID)
	}
	if entry.Object["id"] != entry.ID {
		t.Fatalf("expected the stored object to carry the assigned id")
	}
	if entry.Object["@context"] != core.ActivityStreamsContext {
		t.Fatalf("expected the default context, got %v", entry.Object["@context"])
	}
	if entry.Object["published"] != frozenNow.Format(time.RFC3339) {
		t.Fatalf("unexpected published stamp %v", entry.Object["published"])
	}
	if !entry.CreatedAt.Equal(frozenNow) {
		t.Fatalf("unexpected creation time %v", entry.CreatedAt)
	}

	if entry.Activity["id"] != entry.ID+"/activity" {
		t.Fatalf("unexpected activity id %v", entry.Activity["id"])
	}
	if entry.Activity["type"] != "Create" {
		t.Fatalf("unexpected activity type %v", entry.Activity["type"])
	}
	if entry.Activity["actor"] != "https://chess.example.com/actor" {
		t.Fatalf("unexpected activity actor %v", entry.Activity["actor"])
	}
	if entry.Activity["object"] != entry.ID {
		t.Fatalf("expected the activity to reference the object by id")
	}
	if _, ok := entry.Activity["bcc"]; ok {
		t.Fatalf("bcc must not leak into the activity envelope")
	}

	// The caller's map stays untouched.
	if _, ok := object["id"]; ok {
		t.Fatalf("input object was mutated")
	}
	if _, ok := object["@context"]; ok {
		t.Fatalf("input object was mutated with a context")
	}
}

func TestCreateObject_QueuesOneDeliveryPerAddressee(t *testing.T) {
	store := &recordingStore{}
	creator := testCreator(store)

	_, err := creator.CreateObject(context.Background(), map[string]any{
		"type": "Note",
		"to": []any{
			"https://chess.example.com/actor",
			"https://remote.example.com/alice",
			core.PublicCollective,
		},
		"cc":  "https://remote.example.com/bob",
		"bcc": []any{"https://remote.example.com/alice"},
	})
	if err != nil {
		t.Fatalf("create object: %v", err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("expected one outbox entry, got %d", len(store.entries))
	}
	want := []string{
		"https://remote.example.com/alice",
		"https://remote.example.com/bob",
	}
	if len(store.deliveries) != len(want) {
		t.Fatalf("expected %d delivery rows, got %d", len(want), len(store.deliveries))
	}
	for i, addressee := range want {
		row := store.deliveries[i]
		if row.addressee != addressee {
			t.Fatalf("delivery %d: expected %q, got %q", i, addressee, row.addressee)
		}
		if !row.attemptAt.Equal(frozenNow) {
			t.Fatalf("delivery %d: unexpected attempt time %v", i, row.attemptAt)
		}
	}
	if store.notified != 1 {
		t.Fatalf("expected one change notification, got %d", store.notified)
	}
}

func TestCreateObject_PreservesExplicitContextAndPublished(t *testing.T) {
	store := &recordingStore{}
	creator := testCreator(store)

	published := "2026-01-02T10:00:00Z"
	entry, err := creator.CreateObject(context.Background(), map[string]any{
		"@context":  []any{core.ActivityStreamsContext, "https://chess.example.com/ns"},
		"type":      "Note",
		"published": published,
		"to":        "https://remote.example.com/alice",
	})
	if err != nil {
		t.Fatalf("create object: %v", err)
	}

	if entry.Object["published"] != published {
		t.Fatalf("expected the explicit published stamp kept, got %v", entry.Object["published"])
	}
	expected := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	if !entry.CreatedAt.Equal(expected) {
		t.Fatalf("expected creation time from the published stamp, got %v", entry.CreatedAt)
	}
	if _, ok := entry.Object["@context"].([]any); !ok {
		t.Fatalf("expected the explicit context kept, got %v", entry.Object["@context"])
	}
	if !store.deliveries[0].attemptAt.Equal(expected) {
		t.Fatalf("expected the first attempt at the published time, got %v", store.deliveries[0].attemptAt)
	}
}

func TestCreateObject_RejectsEmptyObject(t *testing.T) {
	creator := testCreator(&recordingStore{})
	_, err := creator.CreateObject(context.Background(), nil)
	if err == nil {
		t.Fatalf("expected an empty object to be rejected")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected a rich error, got %v", err)
	}
	if richErr.Code != http.StatusBadRequest || richErr.TextCode != core.FederationErrorBadInput {
		t.Fatalf("unexpected error envelope %d %s", richErr.Code, richErr.TextCode)
	}
}

func TestCreateObject_PropagatesStoreFailure(t *testing.T) {
	store := &recordingStore{failWith: goerrors.New("store down", goerrors.CategoryInternal)}
	creator := testCreator(store)
	_, err := creator.CreateObject(context.Background(), map[string]any{"type": "Note"})
	if err == nil {
		t.Fatalf("expected the transaction failure to surface")
	}
}
