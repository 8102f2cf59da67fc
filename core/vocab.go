package core

// Namespace is a vocabulary base IRI. Term produces a full predicate
// IRI from a term name.
type Namespace string

func (n Namespace) Term(name string) string {
	return string(n) + name
}

// Vocabularies used by the federation protocol.
const (
	RDF Namespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	LDP Namespace = "http://www.w3.org/ns/ldp#"
	AS  Namespace = "https://www.w3.org/ns/activitystreams#"
	SEC Namespace = "https://w3id.org/security#"
)

// JSON-LD context documents.
const (
	ActivityStreamsContext = "https://www.w3.org/ns/activitystreams"
	SecurityContext        = "https://w3id.org/security/v1"
)

// MIME types used on the wire.
const (
	JSONMime            = "application/json"
	JSONLDMime          = "application/ld+json"
	ActivityStreamsMime = JSONLDMime + `; profile="` + ActivityStreamsContext + `"`
	LegacyActivityMime  = "application/activity+json"
)

// JSONAccepts is the Accept header value sent when requesting JSON-LD
// documents from remote peers.
const JSONAccepts = ActivityStreamsMime + "," + LegacyActivityMime + "," + JSONLDMime + "," + JSONMime

// PublicCollective is the pseudo-addressee representing delivery to
// everyone; it never receives a delivery row.
const PublicCollective = string(AS) + "Public"

// Activity and object types handled by the inbox gateway, as full IRIs.
const (
	TypeCreate  = string(AS) + "Create"
	TypeNote    = string(AS) + "Note"
	TypeMention = string(AS) + "Mention"
)
