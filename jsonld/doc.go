// Package jsonld resolves linked-data documents into subject-scoped
// nodes. A resolver session caches every subject it has seen, so
// repeated lookups during one inbound request or delivery cycle never
// refetch, and blank-node identifiers stay distinct across fetches.
//
// Two variants implement the same Resolver contract: SessionResolver
// keeps flattened JSON-LD node maps, StoreResolver keeps the full RDF
// quad dataset. The store variant is the default.
package jsonld
