package jsonld

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-federation/core"
	"github.com/piprate/json-gold/ld"
)

// Resolver answers subject-scoped lookups against a linked-data graph.
// Input is either an identifier (URL) or an inline document
// (map[string]any); the vocabulary selects how the returned node
// expands bare term names. Implementations cache every subject loaded
// during the session, so an already-seen identifier never triggers a
// fetch.
type Resolver interface {
	Resolve(ctx context.Context, input any, vocabulary core.Namespace) (*Node, error)
}

// Factory produces a fresh resolver session. Sessions are not safe for
// concurrent use; create one per inbound request or delivery cycle.
type Factory func() Resolver

// NewFactory selects the resolver variant from configuration. The
// json-gold processor, options, and caching document loader are shared
// across sessions; the graph cache is per-session.
func NewFactory(cfg core.Config, client *http.Client) Factory {
	env := newEnvironment(cfg, client)
	if strings.TrimSpace(cfg.Resolver) == core.ResolverSession {
		return func() Resolver { return newSessionResolver(env) }
	}
	return func() Resolver { return newStoreResolver(env) }
}

type environment struct {
	proc    *ld.JsonLdProcessor
	options *ld.JsonLdOptions
}

func newEnvironment(cfg core.Config, client *http.Client) *environment {
	options := ld.NewJsonLdOptions("")
	options.DocumentLoader = NewDocumentLoader(client, cfg.Origin()+"/", cfg.Production())
	return &environment{
		proc:    ld.NewJsonLdProcessor(),
		options: options,
	}
}

// blankIssuer renames blank-node identifiers to session-unique names,
// so anonymous nodes from different fetches never collide. Each
// resolve call gets its own scope: equal names within one document map
// to one session name.
type blankIssuer struct {
	counter int
}

type blankScope struct {
	issuer *blankIssuer
	names  map[string]string
}

func (i *blankIssuer) scope() *blankScope {
	return &blankScope{issuer: i, names: map[string]string{}}
}

func (s *blankScope) rename(name string) string {
	if !strings.HasPrefix(name, "_:") {
		return name
	}
	if renamed, ok := s.names[name]; ok {
		return renamed
	}
	renamed := fmt.Sprintf("_:b%d", s.issuer.counter)
	s.issuer.counter++
	s.names[name] = renamed
	return renamed
}

// expandInput runs JSON-LD expansion and determines the requested
// subject id. Shared by both resolver variants.
func expandInput(env *environment, input any) ([]any, string, error) {
	expanded, err := env.proc.Expand(input, env.options)
	if err != nil {
		return nil, "", resolutionError("jsonld: document expansion failed", err, metadataFor(input))
	}
	if len(expanded) == 0 {
		return nil, "", resolutionError("jsonld: document resolved to empty result", nil, metadataFor(input))
	}

	if id, ok := input.(string); ok {
		return expanded, id, nil
	}
	if node, ok := expanded[0].(map[string]any); ok {
		if id, ok := node["@id"].(string); ok {
			return expanded, id, nil
		}
	}
	return nil, "", resolutionError("jsonld: document has no identifier", nil, metadataFor(input))
}

func metadataFor(input any) map[string]any {
	if id, ok := input.(string); ok {
		return map[string]any{"id": id}
	}
	return nil
}

// StoreResolver retains the full dataset as quads, indexed by subject
// and predicate. This is the default, most defensive variant.
type StoreResolver struct {
	env    *environment
	issuer blankIssuer
	// spo is the dataset: subject → predicate → object terms.
	spo map[string]map[string][]Term
}

func newStoreResolver(env *environment) *StoreResolver {
	return &StoreResolver{env: env, spo: map[string]map[string][]Term{}}
}

func (r *StoreResolver) Resolve(_ context.Context, input any, vocabulary core.Namespace) (*Node, error) {
	if id, ok := input.(string); ok {
		if node := r.nodeFor(id, vocabulary); node != nil {
			return node, nil
		}
	}

	expanded, id, err := expandInput(r.env, input)
	if err != nil {
		return nil, err
	}

	raw, err := r.env.proc.ToRDF(expanded, r.env.options)
	if err != nil {
		return nil, resolutionError("jsonld: RDF conversion failed", err, map[string]any{"id": id})
	}
	dataset, ok := raw.(*ld.RDFDataset)
	if !ok {
		return nil, resolutionError("jsonld: unexpected RDF dataset form", nil, map[string]any{"id": id})
	}

	scope := r.issuer.scope()
	for _, quads := range dataset.Graphs {
		for _, quad := range quads {
			r.addQuad(scope, quad)
		}
	}

	node := r.nodeFor(id, vocabulary)
	if node == nil {
		return nil, resolutionError(
			fmt.Sprintf("jsonld: resolve failed for id %s", id),
			nil,
			map[string]any{"id": id},
		)
	}
	return node, nil
}

func (r *StoreResolver) addQuad(scope *blankScope, quad *ld.Quad) {
	if quad == nil || quad.Subject == nil || quad.Predicate == nil || quad.Object == nil {
		return
	}
	subject := scope.rename(quad.Subject.GetValue())
	predicate := quad.Predicate.GetValue()

	var term Term
	switch object := quad.Object.(type) {
	case *ld.Literal:
		term = Term{
			Type:     TermLiteral,
			Value:    object.Value,
			Datatype: object.Datatype,
			Language: object.Language,
		}
	case *ld.BlankNode:
		term = Term{Type: TermBlank, Value: scope.rename(object.Attribute)}
	default:
		term = Term{Type: TermIRI, Value: quad.Object.GetValue()}
	}

	po := r.spo[subject]
	if po == nil {
		po = map[string][]Term{}
		r.spo[subject] = po
	}
	for _, existing := range po[predicate] {
		if existing == term {
			return
		}
	}
	po[predicate] = append(po[predicate], term)
}

func (r *StoreResolver) nodeFor(id string, vocabulary core.Namespace) *Node {
	po, ok := r.spo[id]
	if !ok {
		return nil
	}
	node := newNode(id, vocabulary)
	for predicate, terms := range po {
		node.props[predicate] = append([]Term(nil), terms...)
	}
	return node
}

// SessionResolver keeps flattened JSON-LD node maps per subject. The
// lighter variant: no dataset retained beyond the node maps.
type SessionResolver struct {
	env    *environment
	issuer blankIssuer
	graph  map[string]map[string]any
}

func newSessionResolver(env *environment) *SessionResolver {
	return &SessionResolver{env: env, graph: map[string]map[string]any{}}
}

func (r *SessionResolver) Resolve(_ context.Context, input any, vocabulary core.Namespace) (*Node, error) {
	if id, ok := input.(string); ok {
		if loaded, ok := r.graph[id]; ok {
			return nodeFromExpanded(id, loaded, vocabulary), nil
		}
	}

	expanded, id, err := expandInput(r.env, input)
	if err != nil {
		return nil, err
	}

	flattened, err := r.env.proc.Flatten(expanded, nil, r.env.options)
	if err != nil {
		return nil, resolutionError("jsonld: document flattening failed", err, map[string]any{"id": id})
	}
	nodes, ok := flattened.([]any)
	if !ok {
		return nil, resolutionError("jsonld: unexpected flattened form", nil, map[string]any{"id": id})
	}

	scope := r.issuer.scope()
	for _, raw := range nodes {
		node, ok := raw.(map[string]any)
		if !ok || isSubjectReference(node) {
			continue
		}
		renamed := renameBlanks(node, scope)
		if nodeID, ok := renamed["@id"].(string); ok {
			r.graph[nodeID] = renamed
		}
	}

	loaded, ok := r.graph[id]
	if !ok {
		return nil, resolutionError(
			fmt.Sprintf("jsonld: resolve failed for id %s", id),
			nil,
			map[string]any{"id": id},
		)
	}
	return nodeFromExpanded(id, loaded, vocabulary), nil
}

// isSubjectReference reports whether a flattened node carries only an
// identifier and no properties.
func isSubjectReference(node map[string]any) bool {
	if len(node) != 1 {
		return false
	}
	_, ok := node["@id"]
	return ok
}

func renameBlanks(node map[string]any, scope *blankScope) map[string]any {
	out := make(map[string]any, len(node))
	for key, value := range node {
		switch key {
		case "@id":
			if id, ok := value.(string); ok {
				out[key] = scope.rename(id)
			} else {
				out[key] = value
			}
		default:
			out[key] = renameBlankValues(value, scope)
		}
	}
	return out
}

func renameBlankValues(value any, scope *blankScope) any {
	switch typed := value.(type) {
	case []any:
		out := make([]any, len(typed))
		for i, element := range typed {
			out[i] = renameBlankValues(element, scope)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, inner := range typed {
			if key == "@id" {
				if id, ok := inner.(string); ok {
					out[key] = scope.rename(id)
					continue
				}
			}
			out[key] = renameBlankValues(inner, scope)
		}
		return out
	default:
		return value
	}
}

// asSlice normalizes an expanded JSON-LD value: predicate values are
// usually []any, but @type may be a bare string.
func asSlice(value any) []any {
	switch typed := value.(type) {
	case []any:
		return typed
	case nil:
		return nil
	default:
		return []any{value}
	}
}

// nodeFromExpanded converts one expanded/flattened JSON-LD node map
// into the shared Node form.
func nodeFromExpanded(id string, node map[string]any, vocabulary core.Namespace) *Node {
	out := newNode(id, vocabulary)
	for key, value := range node {
		switch key {
		case "@id":
		case "@type":
			for _, raw := range asSlice(value) {
				if typeIRI, ok := raw.(string); ok {
					out.add(core.RDF.Term("type"), Term{Type: TermIRI, Value: typeIRI})
				}
			}
		default:
			if strings.HasPrefix(key, "@") {
				continue
			}
			for _, raw := range asSlice(value) {
				addExpandedTerm(out, key, raw)
			}
		}
	}
	return out
}

func addExpandedTerm(out *Node, predicate string, raw any) {
	element, ok := raw.(map[string]any)
	if !ok {
		return
	}

	if list, ok := element["@list"].([]any); ok {
		for _, inner := range list {
			addExpandedTerm(out, predicate, inner)
		}
		return
	}

	if ref, ok := element["@id"].(string); ok {
		termType := TermIRI
		if strings.HasPrefix(ref, "_:") {
			termType = TermBlank
		}
		out.add(predicate, Term{Type: termType, Value: ref})
		return
	}

	value, ok := element["@value"]
	if !ok {
		return
	}
	term := Term{Type: TermLiteral, Value: fmt.Sprint(value)}
	if language, ok := element["@language"].(string); ok && language != "" {
		term.Language = language
		term.Datatype = rdfLangString
	} else if datatype, ok := element["@type"].(string); ok && datatype != "" {
		term.Datatype = datatype
	} else {
		term.Datatype = xsdString
	}
	out.add(predicate, term)
}
