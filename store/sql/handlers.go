package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func outboxHandlers() repository.ModelHandlers[*outboxRecord] {
	return repository.ModelHandlers[*outboxRecord]{
		NewRecord: func() *outboxRecord {
			return &outboxRecord{}
		},
		GetID: func(record *outboxRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			// Outbox ids are URLs ending in the object uuid.
			parts := strings.Split(strings.TrimSpace(record.ID), "/")
			parsed, err := uuid.Parse(parts[len(parts)-1])
			if err != nil {
				return uuid.Nil
			}
			return parsed
		},
		SetID: func(record *outboxRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *outboxRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.ID)
		},
	}
}
