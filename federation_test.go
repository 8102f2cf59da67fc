package federation_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"database/sql"
	"encoding/pem"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	federation "github.com/goliatone/go-federation"
	"github.com/goliatone/go-federation/core"
	federationmigrations "github.com/goliatone/go-federation/migrations"
)

type testPersistenceConfig struct {
	server string
}

func (c testPersistenceConfig) GetDebug() bool                { return false }
func (c testPersistenceConfig) GetDriver() string             { return "sqlite3" }
func (c testPersistenceConfig) GetServer() string             { return c.server }
func (c testPersistenceConfig) GetPingTimeout() time.Duration { return time.Second }
func (c testPersistenceConfig) GetOtelIdentifier() string     { return "go-federation-tests" }

func newTestClient(t *testing.T) *persistence.Client {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:federation-facade-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	_, err = federationmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != federationmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, federationmigrations.WithValidationTargets(federationmigrations.DialectSQLite))
	if err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}

func testConfig() federation.Config {
	cfg := federation.DefaultConfig()
	cfg.Domain = "chess.example.com"
	cfg.ActorURL = "https://chess.example.com/actor"
	return cfg
}

func privateKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
}

func TestNew_BuildsServiceWithoutWorker(t *testing.T) {
	client := newTestClient(t)

	service, err := federation.New(testConfig(), federation.WithPersistenceClient(client))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	if service.Gateway() == nil {
		t.Fatalf("expected an inbox gateway")
	}
	if service.Creator() == nil {
		t.Fatalf("expected an outbox creator")
	}
	if service.Worker() != nil {
		t.Fatalf("expected no worker without a signing key")
	}
	if err := service.Run(context.Background()); err == nil {
		t.Fatalf("expected Run to fail without a worker")
	}
	if service.Resolver() == nil {
		t.Fatalf("expected a document resolver session")
	}
}

func TestNew_BuildsWorkerWithSigningKey(t *testing.T) {
	client := newTestClient(t)

	cfg := testConfig()
	cfg.PrivateKeyPEM = privateKeyPEM(t)
	cfg.PublicKeyURL = "https://chess.example.com/actor#key"

	service, err := federation.New(cfg, federation.WithPersistenceClient(client))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	if service.Worker() == nil {
		t.Fatalf("expected a delivery worker with a signing key")
	}
}

func TestNew_RejectsGarbageSigningKey(t *testing.T) {
	client := newTestClient(t)

	cfg := testConfig()
	cfg.PrivateKeyPEM = "not a key"

	if _, err := federation.New(cfg, federation.WithPersistenceClient(client)); err == nil {
		t.Fatalf("expected an invalid signing key to fail construction")
	}
}

func TestNew_RequiresPersistence(t *testing.T) {
	if _, err := federation.New(testConfig()); err == nil {
		t.Fatalf("expected construction without persistence to fail")
	}
}

func TestNew_ConfigLayering(t *testing.T) {
	client := newTestClient(t)

	loader := core.NewStaticRawConfigLoader(map[string]any{
		"domain":   "loaded.example.com",
		"resolver": core.ResolverSession,
	})

	runtime := federation.DefaultConfig()
	runtime.Domain = "chess.example.com"

	service, err := federation.New(runtime,
		federation.WithPersistenceClient(client),
		federation.WithRawConfigLoader(loader),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	cfg := service.Config()
	if cfg.Domain != "chess.example.com" {
		t.Fatalf("expected the runtime domain to win, got %q", cfg.Domain)
	}
	if cfg.Resolver != core.ResolverSession {
		t.Fatalf("expected the loaded resolver variant, got %q", cfg.Resolver)
	}
}

func TestService_RoutesAndPublishing(t *testing.T) {
	client := newTestClient(t)

	service, err := federation.New(testConfig(), federation.WithPersistenceClient(client))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	entry, err := service.Creator().CreateObject(context.Background(), map[string]any{
		"type":    "Note",
		"content": "Rematch?",
		"to":      "https://remote.example.com/alice",
	})
	if err != nil {
		t.Fatalf("create object: %v", err)
	}

	mux := http.NewServeMux()
	service.Routes(mux)

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest("GET", entry.ID, nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected the published object served, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest("GET", entry.ID+"/activity", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected the activity served, got %d", recorder.Code)
	}

	recorder = httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest("POST", "https://chess.example.com/inbox", nil))
	if recorder.Code == http.StatusNotFound {
		t.Fatalf("expected the inbox route mounted")
	}
}

func TestService_RegisterNoteHandler(t *testing.T) {
	client := newTestClient(t)

	service, err := federation.New(testConfig(), federation.WithPersistenceClient(client))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	defer service.Close()

	handler := federation.NoteHandlerFunc(func(context.Context, federation.NoteEvent) error {
		return nil
	})
	if err := service.RegisterNoteHandler(handler); err != nil {
		t.Fatalf("register handler: %v", err)
	}
	if err := service.RegisterNoteHandler(handler); err == nil {
		t.Fatalf("expected the second registration to conflict")
	}
}
