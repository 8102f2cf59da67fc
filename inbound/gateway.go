package inbound

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-federation/core"
	"github.com/goliatone/go-federation/httpsig"
	"github.com/goliatone/go-federation/jsonld"
)

// maxBodyBytes bounds the inbound request body.
const maxBodyBytes = 1 << 20

// Gateway processes remote activities submitted to the local inbox.
type Gateway struct {
	resolve  jsonld.Factory
	verifier *httpsig.Verifier
	ledger   core.InboxLedger
	logger   core.Logger

	mu      sync.RWMutex
	handler core.NoteHandler

	// Now is overridable for tests.
	Now func() time.Time
}

func NewGateway(
	cfg core.Config,
	factory jsonld.Factory,
	ledger core.InboxLedger,
	logger core.Logger,
) *Gateway {
	_, logger = glog.Resolve("inbound", nil, logger)
	return &Gateway{
		resolve:  factory,
		verifier: &httpsig.Verifier{Domain: cfg.Domain},
		ledger:   ledger,
		logger:   logger,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RegisterNoteHandler sets the single downstream consumer of
// note-created events. Registering twice is a conflict.
func (g *Gateway) RegisterNoteHandler(handler core.NoteHandler) error {
	if handler == nil {
		return gatewayBadInput("inbound: handler is nil", nil)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.handler != nil {
		return gatewayError(
			"inbound: note handler already registered",
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.FederationErrorInternal,
			nil,
		)
	}
	g.handler = handler
	return nil
}

func (g *Gateway) noteHandler() core.NoteHandler {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.handler
}

// ServeHTTP is the POST /inbox adapter: 202 with an empty body on
// acceptance (including idempotent duplicates), 4xx with a plaintext
// reason on validation failure.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := g.Receive(r.Context(), r, body); err != nil {
		mapped := core.MapError(err)
		http.Error(w, mapped.Message, mapped.Code)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Receive runs the full inbound state machine over one request. A nil
// return means the activity was accepted (possibly as an ignored
// duplicate or an unhandled type).
func (g *Gateway) Receive(ctx context.Context, req *http.Request, body []byte) error {
	// Structural check: the body must be JSON with a string id.
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return gatewayBadInput("inbound: invalid request body", nil)
	}
	id, _ := parsed["id"].(string)
	if id == "" {
		return gatewayBadInput("inbound: invalid request body", nil)
	}

	claimedOrigin, err := originOf(id)
	if err != nil {
		return gatewayBadInput("inbound: activity id is not a valid absolute URL", map[string]any{"id": id})
	}

	// The inline body is authoritative for the activity document.
	resolver := g.resolve()
	activityNode, err := resolver.Resolve(ctx, parsed, core.AS)
	if err != nil {
		return gatewayWrapError(
			err,
			goerrors.CategoryBadInput,
			"inbound: activity document could not be resolved",
			http.StatusBadRequest,
			core.FederationErrorBadInput,
			map[string]any{"id": id},
		)
	}
	activity := jsonld.ActivityView(activityNode)
	if activity.Type == "" || activity.Actor == "" {
		return gatewayBadInput("inbound: incomplete activity object", map[string]any{"id": id})
	}

	publicKey, err := g.verifier.Verify(ctx, req, body, resolver)
	if err != nil {
		return err
	}
	if publicKey.Owner != activity.Actor {
		return gatewayError(
			"inbound: signature does not match actor",
			goerrors.CategoryAuth,
			http.StatusBadRequest,
			core.FederationErrorSignatureMismatch,
			map[string]any{"id": id, "actor": activity.Actor, "owner": publicKey.Owner},
		)
	}

	// Anti-spoofing: an activity cannot claim an origin different from
	// its actor's server.
	actorOrigin, err := originOf(activity.Actor)
	if err != nil || actorOrigin != claimedOrigin {
		return gatewayError(
			"inbound: actor origin does not match activity origin",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			core.FederationErrorOriginMismatch,
			map[string]any{"id": id, "actor": activity.Actor},
		)
	}

	// An activity from an unresolvable actor cannot be trusted.
	actorNode, err := resolver.Resolve(ctx, activity.Actor, core.AS)
	if err != nil {
		return gatewayWrapError(
			err,
			goerrors.CategoryBadInput,
			"inbound: actor document could not be resolved",
			http.StatusBadRequest,
			core.FederationErrorBadInput,
			map[string]any{"actor": activity.Actor},
		)
	}

	inserted, err := g.ledger.InsertIfAbsent(ctx, activity.ID, g.now())
	if err != nil {
		return gatewayWrapError(
			err,
			goerrors.CategoryInternal,
			"inbound: dedup ledger insert failed",
			http.StatusInternalServerError,
			core.FederationErrorInternal,
			map[string]any{"id": activity.ID},
		)
	}
	if !inserted {
		g.logger.Debug("ignoring duplicate activity", "id", activity.ID)
		return nil
	}

	return g.dispatch(ctx, resolver, activity, jsonld.ActorView(actorNode))
}

// dispatch hands Create/Note activities to application logic. Other
// combinations are accepted without producing an event, to stay
// protocol-compliant.
func (g *Gateway) dispatch(
	ctx context.Context,
	resolver jsonld.Resolver,
	activity core.Activity,
	actor core.Actor,
) error {
	if activity.Type != core.TypeCreate {
		return nil
	}
	if activity.Object == "" {
		return gatewayBadInput("inbound: missing object in Create activity", map[string]any{"id": activity.ID})
	}

	objectNode, err := resolver.Resolve(ctx, activity.Object, core.AS)
	if err != nil {
		return gatewayWrapError(
			err,
			goerrors.CategoryBadInput,
			"inbound: activity object could not be resolved",
			http.StatusBadRequest,
			core.FederationErrorBadInput,
			map[string]any{"object": activity.Object},
		)
	}
	object := jsonld.ObjectView(objectNode)
	if object.Type != core.TypeNote {
		return nil
	}
	if object.AttributedTo != activity.Actor {
		return gatewayBadInput(
			"inbound: activity creates a note not attributed to the actor",
			map[string]any{"id": activity.ID, "attributed_to": object.AttributedTo},
		)
	}

	event := core.NoteEvent{
		ID:          object.ID,
		Actor:       actor,
		Content:     object.Content,
		ContentText: ExtractText(object.Content),
		InReplyTo:   object.InReplyTo,
	}
	seen := map[string]struct{}{}
	for _, tagID := range object.Tags {
		tagNode, err := resolver.Resolve(ctx, tagID, core.AS)
		if err != nil {
			continue
		}
		tag := jsonld.TagView(tagNode)
		if tag.Type != core.TypeMention || tag.Href == "" {
			continue
		}
		if _, ok := seen[tag.Href]; ok {
			continue
		}
		seen[tag.Href] = struct{}{}
		event.Mentions = append(event.Mentions, tag.Href)
	}

	handler := g.noteHandler()
	if handler == nil {
		g.logger.Debug("no note handler registered, dropping event", "id", event.ID)
		return nil
	}

	g.logger.Debug("note created", "actor", event.Actor.ID, "content", event.ContentText)
	if err := handler.NoteCreated(ctx, event); err != nil {
		return gatewayWrapError(
			err,
			goerrors.CategoryInternal,
			"inbound: note handler failed",
			http.StatusInternalServerError,
			core.FederationErrorInternal,
			map[string]any{"id": event.ID},
		)
	}
	return nil
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

// originOf derives the scheme://host origin of an absolute URL.
func originOf(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", gatewayBadInput("inbound: URL is not absolute", map[string]any{"url": raw})
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), nil
}
