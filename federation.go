// Package federation assembles the message-exchange endpoint: the
// JSON-LD document resolver, the signed inbox gateway, the outbox, and
// the durable delivery queue, wired onto one persistence client.
package federation

import (
	"context"
	"fmt"
	"net/http"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-federation/core"
	"github.com/goliatone/go-federation/deliver"
	"github.com/goliatone/go-federation/httpsig"
	"github.com/goliatone/go-federation/inbound"
	"github.com/goliatone/go-federation/jsonld"
	"github.com/goliatone/go-federation/outbox"
	sqlstore "github.com/goliatone/go-federation/store/sql"
)

type Config = core.Config

type DeliveryConfig = core.DeliveryConfig

type NoteEvent = core.NoteEvent
type NoteHandler = core.NoteHandler
type NoteHandlerFunc = core.NoteHandlerFunc

type Delivery = core.Delivery
type OutboxEntry = core.OutboxEntry
type Actor = core.Actor

type ConfigProvider = core.ConfigProvider
type RawConfigLoader = core.RawConfigLoader
type OptionsResolver = core.OptionsResolver
type ChangeListener = core.ChangeListener

func DefaultConfig() Config {
	return core.DefaultConfig()
}

type Option func(*settings)

type settings struct {
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	httpClient        *http.Client
	persistenceClient any
	repositoryFactory *sqlstore.RepositoryFactory
	listener          core.ChangeListener
	resolverFactory   jsonld.Factory
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
}

func WithLogger(logger core.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(s *settings) { s.loggerProvider = provider }
}

// WithHTTPClient replaces the client used for document fetches and
// delivery POSTs.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) { s.httpClient = client }
}

// WithPersistenceClient accepts a *bun.DB or anything exposing one.
func WithPersistenceClient(client any) Option {
	return func(s *settings) { s.persistenceClient = client }
}

func WithRepositoryFactory(factory *sqlstore.RepositoryFactory) Option {
	return func(s *settings) { s.repositoryFactory = factory }
}

// WithChangeListener wires cross-process queue notifications, usually
// a sqlstore.Listener on the postgres DSN.
func WithChangeListener(listener core.ChangeListener) Option {
	return func(s *settings) { s.listener = listener }
}

func WithResolverFactory(factory jsonld.Factory) Option {
	return func(s *settings) { s.resolverFactory = factory }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(s *settings) { s.configProvider = provider }
}

func WithRawConfigLoader(loader core.RawConfigLoader) Option {
	return func(s *settings) { s.configProvider = core.NewCfgxConfigProvider(loader) }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(s *settings) { s.optionsResolver = resolver }
}

// Service is the assembled federation endpoint.
type Service struct {
	cfg      Config
	logger   core.Logger
	stores   *sqlstore.RepositoryFactory
	resolve  jsonld.Factory
	gateway  *inbound.Gateway
	creator  *outbox.Creator
	outbox   *outbox.Handler
	worker   *deliver.Worker
	listener core.ChangeListener
}

// New resolves the effective configuration and builds every component.
// The runtime cfg argument is the strongest configuration layer, on
// top of whatever the config provider loads, on top of defaults.
func New(cfg Config, opts ...Option) (*Service, error) {
	var s settings
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&s)
	}

	_, logger := glog.Resolve("federation", s.loggerProvider, s.logger)

	effective, err := resolveConfig(cfg, s)
	if err != nil {
		return nil, err
	}

	stores := s.repositoryFactory
	if stores == nil {
		stores = sqlstore.NewRepositoryFactory()
	}
	if stores.DB() == nil || s.persistenceClient != nil {
		if err := stores.BuildStores(s.persistenceClient); err != nil {
			return nil, err
		}
	}

	factory := s.resolverFactory
	if factory == nil {
		factory = jsonld.NewFactory(effective, s.httpClient)
	}

	service := &Service{
		cfg:      effective,
		logger:   logger,
		stores:   stores,
		resolve:  factory,
		gateway:  inbound.NewGateway(effective, factory, stores.InboxStore(), logger),
		creator:  outbox.NewCreator(effective, stores.DeliveryStore(), logger),
		outbox:   outbox.NewHandler(effective, stores.OutboxStore()),
		listener: s.listener,
	}

	if effective.PrivateKeyPEM != "" {
		signer, err := httpsig.NewSigner(effective.PublicKeyURL, effective.PrivateKeyPEM)
		if err != nil {
			return nil, err
		}
		service.worker = deliver.NewWorker(effective, stores.DeliveryStore(), factory, signer, s.listener, logger)
	}

	return service, nil
}

func resolveConfig(runtime Config, s settings) (Config, error) {
	defaults := core.DefaultConfig()
	loaded := defaults
	if s.configProvider != nil {
		var err error
		loaded, err = s.configProvider.Load(context.Background(), defaults)
		if err != nil {
			return Config{}, err
		}
	}
	resolver := s.optionsResolver
	if resolver == nil {
		resolver = core.GoOptionsResolver{}
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.cfg
}

func (s *Service) Stores() *sqlstore.RepositoryFactory {
	if s == nil {
		return nil
	}
	return s.stores
}

// Gateway is the inbound side; mount it at POST /inbox.
func (s *Service) Gateway() *inbound.Gateway {
	if s == nil {
		return nil
	}
	return s.gateway
}

// Creator publishes local objects into the outbox and delivery queue.
func (s *Service) Creator() *outbox.Creator {
	if s == nil {
		return nil
	}
	return s.creator
}

// Worker is the delivery queue worker, nil when no signing key was
// configured.
func (s *Service) Worker() *deliver.Worker {
	if s == nil {
		return nil
	}
	return s.worker
}

// Resolver returns a fresh session-scoped document resolver.
func (s *Service) Resolver() jsonld.Resolver {
	if s == nil || s.resolve == nil {
		return nil
	}
	return s.resolve()
}

// RegisterNoteHandler wires the application consumer of inbound notes.
func (s *Service) RegisterNoteHandler(handler core.NoteHandler) error {
	if s == nil || s.gateway == nil {
		return fmt.Errorf("federation: service is not initialized")
	}
	return s.gateway.RegisterNoteHandler(handler)
}

// Routes mounts the federation HTTP surface on the mux.
func (s *Service) Routes(mux *http.ServeMux) {
	mux.Handle("POST /inbox", s.gateway)
	s.outbox.Register(mux)
}

// Run drains the delivery queue until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if s == nil || s.worker == nil {
		return fmt.Errorf("federation: delivery worker requires a private signing key")
	}
	return s.worker.Run(ctx)
}

// Close releases the change listener, if one was configured.
func (s *Service) Close() error {
	if s == nil || s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
