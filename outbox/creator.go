package outbox

import (
	"context"
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"

	"github.com/goliatone/go-federation/core"
)

// Creator publishes local objects into the outbox and the delivery
// queue. The outbox row and the per-addressee delivery rows commit in
// one transaction, so a crash can never publish an object without
// queueing its deliveries.
type Creator struct {
	store    core.DeliveryStore
	origin   string
	actorURL string
	logger   core.Logger

	// Now and NewID are overridable for tests.
	Now   func() time.Time
	NewID func() string
}

func NewCreator(cfg core.Config, store core.DeliveryStore, logger core.Logger) *Creator {
	_, logger = glog.Resolve("outbox", nil, logger)
	return &Creator{
		store:    store,
		origin:   cfg.Origin(),
		actorURL: cfg.ActorURL,
		logger:   logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		NewID: uuid.NewString,
	}
}

// CreateObject assigns the object an id under the local origin, wraps
// it in a Create activity, stores both, and queues one delivery per
// addressee. Addressees come from to, cc, and bcc, minus the local
// actor and the public collective. The input map is not mutated.
func (c *Creator) CreateObject(ctx context.Context, object map[string]any) (core.OutboxEntry, error) {
	if len(object) == 0 {
		return core.OutboxEntry{}, goerrors.New("outbox: object is empty", goerrors.CategoryBadInput).
			WithCode(http.StatusBadRequest).
			WithTextCode(core.FederationErrorBadInput)
	}

	id := c.origin + "/objects/" + c.NewID()

	stored := make(map[string]any, len(object)+2)
	for key, value := range object {
		stored[key] = value
	}
	stored["id"] = id
	if _, ok := stored["@context"]; !ok {
		stored["@context"] = core.ActivityStreamsContext
	}

	createdAt := c.now()
	if _, ok := stored["published"]; !ok {
		stored["published"] = createdAt.Format(time.RFC3339)
	}
	if published, ok := stored["published"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, published); err == nil {
			createdAt = parsed.UTC()
		}
	}

	activity := map[string]any{
		"@context":  core.ActivityStreamsContext,
		"id":        id + "/activity",
		"type":      "Create",
		"actor":     c.actorURL,
		"object":    id,
		"published": stored["published"],
	}
	if to, ok := stored["to"]; ok {
		activity["to"] = to
	}
	if cc, ok := stored["cc"]; ok {
		activity["cc"] = cc
	}

	addressees := c.addressees(stored)
	entry := core.OutboxEntry{
		ID:        id,
		Object:    stored,
		Activity:  activity,
		CreatedAt: createdAt,
	}

	err := c.store.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		if err := tx.InsertOutbox(ctx, entry); err != nil {
			return err
		}
		for _, addressee := range addressees {
			if err := tx.Insert(ctx, id, addressee, createdAt); err != nil {
				return err
			}
		}
		return tx.Notify(ctx)
	})
	if err != nil {
		return core.OutboxEntry{}, err
	}

	c.logger.Debug("created object", "id", id, "addressees", len(addressees))
	return entry, nil
}

// addressees collects to, cc, and bcc recipients in document order,
// deduplicated, excluding the local actor and the public collective.
func (c *Creator) addressees(object map[string]any) []string {
	var out []string
	seen := map[string]struct{}{
		c.actorURL:            {},
		core.PublicCollective: {},
	}
	for _, field := range []string{"to", "cc", "bcc"} {
		for _, addressee := range stringList(object[field]) {
			if _, ok := seen[addressee]; ok {
				continue
			}
			seen[addressee] = struct{}{}
			out = append(out, addressee)
		}
	}
	return out
}

// stringList accepts the JSON shapes an addressing field can take: a
// single string, or a list of strings.
func stringList(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []string:
		return v
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func (c *Creator) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}
