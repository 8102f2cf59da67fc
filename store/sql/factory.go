package sqlstore

import (
	"fmt"

	"github.com/uptrace/bun"
)

// RepositoryFactory builds every federation store off one bun handle.
type RepositoryFactory struct {
	db *bun.DB

	deliveryStore *DeliveryStore
	inboxStore    *InboxStore
	outboxStore   *OutboxStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts either a *bun.DB or anything exposing one, such
// as a persistence client.
func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.deliveryStore != nil {
		return nil
	}

	deliveryStore, err := NewDeliveryStore(f.db)
	if err != nil {
		return err
	}
	inboxStore, err := NewInboxStore(f.db)
	if err != nil {
		return err
	}
	outboxStore, err := NewOutboxStore(f.db)
	if err != nil {
		return err
	}

	f.deliveryStore = deliveryStore
	f.inboxStore = inboxStore
	f.outboxStore = outboxStore
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) DeliveryStore() *DeliveryStore {
	if f == nil {
		return nil
	}
	return f.deliveryStore
}

func (f *RepositoryFactory) InboxStore() *InboxStore {
	if f == nil {
		return nil
	}
	return f.inboxStore
}

func (f *RepositoryFactory) OutboxStore() *OutboxStore {
	if f == nil {
		return nil
	}
	return f.outboxStore
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}
