package core

import "time"

// Actor is the resolved view of a federation participant.
type Actor struct {
	ID                string
	Type              string
	PreferredUsername string
	Inbox             string
	Endpoints         string
}

// Endpoints is the resolved view of an actor's endpoints node.
type Endpoints struct {
	ID          string
	SharedInbox string
}

// Activity is the resolved view of an activity envelope.
type Activity struct {
	ID     string
	Type   string
	Actor  string
	Object string
}

// Object is the resolved view of an activity's object.
type Object struct {
	ID           string
	Type         string
	AttributedTo string
	InReplyTo    string
	Content      string
	Tags         []string
}

// Tag is the resolved view of an object tag.
type Tag struct {
	ID   string
	Type string
	Href string
}

// PublicKey is the resolved view of an actor's signing key.
type PublicKey struct {
	ID           string
	Owner        string
	PublicKeyPem string
}

// NoteEvent is the normalized event the inbox gateway dispatches to
// application logic when a remote actor creates a note.
type NoteEvent struct {
	ID          string
	Actor       Actor
	Content     string
	ContentText string
	Mentions    []string
	InReplyTo   string
}

// Delivery is one pending delivery row: one (outbox object, addressee)
// pair. A nil Inbox means the addressee's inbox has not been resolved
// yet. Rows are deleted on terminal success or terminal failure.
type Delivery struct {
	OutboxID   string
	Addressee  string
	Inbox      *string
	AttemptAt  time.Time
	AttemptNum int
}

// OutboxEntry is a locally created object together with its wrapping
// Create activity, as stored in the outbox.
type OutboxEntry struct {
	ID        string
	Object    map[string]any
	Activity  map[string]any
	CreatedAt time.Time
}
