package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-federation/core"
	"github.com/goliatone/go-federation/httpsig"
	"github.com/goliatone/go-federation/jsonld"
)

// Worker drains the delivery queue. Run as many workers as you like,
// in as many processes as you like; each dequeue cycle claims one row
// with a skip-locked select, so workers never step on each other.
type Worker struct {
	store    core.DeliveryStore
	resolve  jsonld.Factory
	signer   *httpsig.Signer
	listener core.ChangeListener
	client   *http.Client
	logger   core.Logger

	cfg        core.DeliveryConfig
	production bool
	userAgent  string
	retry      RetryPolicy

	// Now is overridable for tests.
	Now func() time.Time
}

func NewWorker(
	cfg core.Config,
	store core.DeliveryStore,
	factory jsonld.Factory,
	signer *httpsig.Signer,
	listener core.ChangeListener,
	logger core.Logger,
) *Worker {
	_, logger = glog.Resolve("deliver", nil, logger)
	delivery := cfg.Delivery
	if delivery.PollInterval <= 0 {
		delivery.PollInterval = time.Minute
	}
	return &Worker{
		store:    store,
		resolve:  factory,
		signer:   signer,
		listener: listener,
		client:   &http.Client{Timeout: delivery.RequestTimeout},
		logger:   logger,

		cfg:        delivery,
		production: cfg.Production(),
		userAgent:  cfg.Origin(),
		retry: RetryPolicy{
			BaseDelay:   delivery.BaseDelay,
			MaxAttempts: delivery.MaxAttempts,
		},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run drains the queue until the context is canceled. The loop sleeps
// on whichever comes first: the poll interval, the next future row's
// attempt time, or a change notification.
func (w *Worker) Run(ctx context.Context) error {
	var notifications <-chan struct{}
	if w.listener != nil {
		notifications = w.listener.Notifications()
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		case <-notifications:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		timer.Reset(w.drain(ctx))
	}
}

// drain runs dequeue cycles until the queue yields no immediate work,
// then returns how long to sleep.
func (w *Worker) drain(ctx context.Context) time.Duration {
	for {
		processed, wait, err := w.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return w.cfg.PollInterval
			}
			w.logger.Error("delivery cycle failed", "error", err)
			return w.cfg.PollInterval
		}
		if processed {
			continue
		}
		if wait <= 0 || wait > w.cfg.PollInterval {
			wait = w.cfg.PollInterval
		}
		return wait
	}
}

// Dequeue runs one queue cycle in one transaction. It reports whether
// a row was processed and, when the earliest row lies in the future,
// how long until it is due.
func (w *Worker) Dequeue(ctx context.Context) (bool, time.Duration, error) {
	var processed bool
	var wait time.Duration

	err := w.store.Transact(ctx, func(ctx context.Context, tx core.DeliveryTx) error {
		delivery, err := tx.NextDelivery(ctx)
		if err != nil {
			return err
		}
		if delivery == nil {
			return nil
		}

		now := w.now()
		if delivery.AttemptAt.After(now) {
			wait = delivery.AttemptAt.Sub(now)
			return nil
		}

		if delivery.Inbox == nil {
			err = w.resolveInbox(ctx, tx, delivery, now)
		} else {
			err = w.deliverActivity(ctx, tx, delivery, now)
		}
		if err != nil {
			return err
		}

		processed = true
		return tx.Notify(ctx)
	})
	return processed, wait, err
}

// resolveInbox handles a row whose addressee has no inbox yet: it
// resolves the addressee's actor document, prefers the shared inbox,
// and stamps every pending row for the addressee in one update so
// sibling rows skip their own resolution round-trips.
func (w *Worker) resolveInbox(ctx context.Context, tx core.DeliveryTx, delivery *core.Delivery, now time.Time) error {
	outboxIDs, err := tx.LockUnresolvedByAddressee(ctx, delivery.Addressee)
	if err != nil {
		return err
	}
	if !contains(outboxIDs, delivery.OutboxID) {
		return integrityError("deliver: locked rows do not include the dequeued row", map[string]any{
			"outbox_id": delivery.OutboxID,
			"addressee": delivery.Addressee,
		})
	}

	actorNode, err := w.resolve().Resolve(ctx, delivery.Addressee, core.AS)
	if err != nil {
		w.logger.Warn("inbox resolution failed",
			"addressee", delivery.Addressee, "error", err)
		if !jsonld.Retryable(err) {
			return tx.Delete(ctx, delivery.OutboxID, []string{delivery.Addressee})
		}
		return w.scheduleRetry(ctx, tx, delivery, []string{delivery.Addressee}, now)
	}
	actor := jsonld.ActorView(actorNode)

	inbox := w.chooseInbox(ctx, actor)
	if inbox == "" {
		w.logger.Warn("addressee has no usable inbox", "addressee", delivery.Addressee)
		return tx.Delete(ctx, delivery.OutboxID, []string{delivery.Addressee})
	}

	w.logger.Debug("resolved inbox",
		"addressee", delivery.Addressee, "inbox", inbox, "rows", len(outboxIDs))
	return tx.SetInboxByAddressee(ctx, outboxIDs, delivery.Addressee, inbox, now.Add(w.cfg.ResolveDelay))
}

// chooseInbox prefers the actor's shared inbox, so deliveries to many
// actors on one server collapse into a single POST.
func (w *Worker) chooseInbox(ctx context.Context, actor core.Actor) string {
	if actor.Endpoints != "" {
		endpointsNode, err := w.resolve().Resolve(ctx, actor.Endpoints, core.AS)
		if err == nil {
			endpoints := jsonld.EndpointsView(endpointsNode)
			if w.usableInbox(endpoints.SharedInbox) {
				return endpoints.SharedInbox
			}
		}
	}
	if w.usableInbox(actor.Inbox) {
		return actor.Inbox
	}
	return ""
}

func (w *Worker) usableInbox(inbox string) bool {
	if inbox == "" {
		return false
	}
	return !w.production || core.IsPublicURL(inbox)
}

// deliverActivity handles a row with a resolved inbox: every pending
// row for the same outbox object sharing that inbox is locked and
// settled together on the outcome of one POST.
func (w *Worker) deliverActivity(ctx context.Context, tx core.DeliveryTx, delivery *core.Delivery, now time.Time) error {
	inbox := *delivery.Inbox
	addressees, err := tx.LockByInbox(ctx, delivery.OutboxID, inbox)
	if err != nil {
		return err
	}
	if !contains(addressees, delivery.Addressee) {
		return integrityError("deliver: locked rows do not include the dequeued row", map[string]any{
			"outbox_id": delivery.OutboxID,
			"inbox":     inbox,
		})
	}

	entry, err := tx.Outbox(ctx, delivery.OutboxID)
	if err != nil {
		return err
	}

	postErr := w.post(ctx, inbox, deliveryBody(entry))
	if postErr != nil {
		w.logger.Warn("delivery failed",
			"outbox_id", delivery.OutboxID, "inbox", inbox, "error", postErr)
		if !retryablePost(postErr) {
			return tx.Delete(ctx, delivery.OutboxID, addressees)
		}
		return w.scheduleRetry(ctx, tx, delivery, addressees, now)
	}

	w.logger.Info("delivered activity",
		"outbox_id", delivery.OutboxID, "inbox", inbox, "addressees", len(addressees))
	return tx.Delete(ctx, delivery.OutboxID, addressees)
}

// deliveryBody rebuilds the wire document: the activity envelope
// carries the object's @context, and the object is embedded without
// its own.
func deliveryBody(entry core.OutboxEntry) map[string]any {
	body := make(map[string]any, len(entry.Activity)+2)
	for key, value := range entry.Activity {
		body[key] = value
	}
	if context, ok := entry.Object["@context"]; ok {
		body["@context"] = context
	}

	object := make(map[string]any, len(entry.Object))
	for key, value := range entry.Object {
		if key == "@context" {
			continue
		}
		object[key] = value
	}
	body["object"] = object
	return body
}

func (w *Worker) post(ctx context.Context, inbox string, body map[string]any) *postError {
	payload, err := json.Marshal(body)
	if err != nil {
		return &postError{Inbox: inbox, StatusCode: http.StatusBadRequest, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(payload))
	if err != nil {
		return &postError{Inbox: inbox, StatusCode: http.StatusBadRequest, Err: err}
	}
	req.Header.Set("Content-Type", core.ActivityStreamsMime)
	req.Header.Set("Accept", core.JSONAccepts)
	req.Header.Set("User-Agent", w.userAgent)
	if err := w.signer.Sign(req, payload); err != nil {
		return &postError{Inbox: inbox, StatusCode: http.StatusBadRequest, Err: err}
	}

	res, err := w.client.Do(req)
	if err != nil {
		return &postError{Inbox: inbox, Err: err}
	}
	defer res.Body.Close()
	io.Copy(io.Discard, io.LimitReader(res.Body, 1<<16))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &postError{Inbox: inbox, StatusCode: res.StatusCode}
	}
	return nil
}

// scheduleRetry reschedules the given addressees with exponential
// backoff, or deletes them once the attempt budget is spent.
func (w *Worker) scheduleRetry(ctx context.Context, tx core.DeliveryTx, delivery *core.Delivery, addressees []string, now time.Time) error {
	delay, ok := w.retry.Next(delivery.AttemptNum)
	if !ok {
		w.logger.Error("dropping delivery after final attempt",
			"outbox_id", delivery.OutboxID, "addressees", len(addressees))
		return tx.Delete(ctx, delivery.OutboxID, addressees)
	}
	return tx.Reschedule(ctx, delivery.OutboxID, addressees, now.Add(delay), delivery.AttemptNum+1)
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
