package jsonld

import (
	"strings"

	"github.com/goliatone/go-federation/core"
)

const (
	xsdString     = "http://www.w3.org/2001/XMLSchema#string"
	rdfLangString = string(core.RDF) + "langString"
)

type TermType int

const (
	TermIRI TermType = iota
	TermBlank
	TermLiteral
)

// Term is one object position of a subject/predicate pair, following
// the RDF data model: a named node, a blank node, or a literal.
type Term struct {
	Type     TermType
	Value    string
	Datatype string
	Language string
}

// Node is a subject's flattened predicate→term map, re-expressed under
// a preferred vocabulary. It is owned by the resolver session that
// produced it and is discarded with the session.
type Node struct {
	ID    string
	vocab core.Namespace
	props map[string][]Term
}

func newNode(id string, vocab core.Namespace) *Node {
	return &Node{ID: id, vocab: vocab, props: map[string][]Term{}}
}

// expand turns a bare term name into a full predicate IRI using the
// node's vocabulary; full IRIs pass through untouched.
func (n *Node) expand(predicate string) string {
	if strings.Contains(predicate, "://") {
		return predicate
	}
	return n.vocab.Term(predicate)
}

func (n *Node) add(predicate string, term Term) {
	for _, existing := range n.props[predicate] {
		if existing == term {
			return
		}
	}
	n.props[predicate] = append(n.props[predicate], term)
}

// Terms returns every object term for a predicate.
func (n *Node) Terms(predicate string) []Term {
	if n == nil {
		return nil
	}
	return n.props[n.expand(predicate)]
}

// Nodes returns the named and blank nodes for a predicate.
func (n *Node) Nodes(predicate string) []string {
	var out []string
	for _, term := range n.Terms(predicate) {
		if term.Type == TermIRI || term.Type == TermBlank {
			out = append(out, term.Value)
		}
	}
	return out
}

// Node returns the first named or blank node for a predicate.
func (n *Node) Node(predicate string) string {
	nodes := n.Nodes(predicate)
	if len(nodes) == 0 {
		return ""
	}
	return nodes[0]
}

// Type returns the subject's first rdf:type.
func (n *Node) Type() string {
	return n.Node(core.RDF.Term("type"))
}

// Text returns the first matching literal by language preference. A
// language of "" matches the plain string form first, then any
// language-tagged literal, and usually terminates the preference list.
func (n *Node) Text(predicate string, languages ...string) string {
	if len(languages) == 0 {
		languages = []string{""}
	}

	var strings_, langStrings []Term
	for _, term := range n.Terms(predicate) {
		if term.Type != TermLiteral {
			continue
		}
		switch term.Datatype {
		case xsdString, "":
			strings_ = append(strings_, term)
		case rdfLangString:
			langStrings = append(langStrings, term)
		}
	}

	for _, language := range languages {
		if language == "" {
			if len(strings_) > 0 {
				return strings_[0].Value
			}
			if len(langStrings) > 0 {
				return langStrings[0].Value
			}
			continue
		}
		for _, term := range langStrings {
			if term.Language == language {
				return term.Value
			}
		}
	}
	return ""
}
