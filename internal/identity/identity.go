// Package identity derives stable, content-addressed identifiers.
//
// Graph nodes are keyed by a normalized form of their name and chunk nodes
// by their parent data item. "Contains" edges have no stored id of their
// own, so they are keyed by a canonical text rendering of the relationship.
// All ids are version 5 UUIDs in the OID namespace, so independently
// computed ids for the same logical object always agree and re-inserting
// identical content is idempotent.
//
// The normalization rules are load-bearing: changing them breaks addressing
// of every previously stored node and edge. Bump KeyVersion and migrate if
// they ever have to change.
package identity

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// KeyVersion identifies the normalization and derivation rules in effect.
const KeyVersion = 1

// ContainsRelationship is the edge type linking a chunk to the entities it
// mentions. It is the only edge type indexed in a vector collection.
const ContainsRelationship = "contains"

var normalizer = strings.NewReplacer(" ", "_", "'", "")

// Normalize canonicalizes free text before hashing: lower-case, spaces to
// underscores, apostrophes stripped.
func Normalize(s string) string {
	return normalizer.Replace(strings.ToLower(s))
}

// NodeID derives the graph id for a named node (entity, entity type,
// document).
func NodeID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(Normalize(name)))
}

// ChunkID derives the graph id for the n-th chunk of a data item.
func ChunkID(dataID uuid.UUID, index int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s-%d", dataID, index)))
}

// DatasetID derives the relational id for a dataset from its name and owner,
// so the same logical dataset name never silently forks per caller.
func DatasetID(name string, ownerID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name+ownerID.String()))
}

// ContainsEdgeText renders the canonical text of a contains edge. The exact
// field order and separators are part of the addressing contract.
func ContainsEdgeText(entityName, entityDescription string) string {
	return strings.Join([]string{
		"relationship_name: " + ContainsRelationship,
		"entity_name: " + entityName,
		"entity_description: " + entityDescription,
	}, "; ")
}

// ContainsEdgeKey derives the vector-index id of a contains edge from the
// entity it points at.
func ContainsEdgeKey(entityName, entityDescription string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(Normalize(ContainsEdgeText(entityName, entityDescription))))
}

// EdgeSlug renders the ledger slug of an edge between two node slugs.
func EdgeSlug(sourceSlug, relationshipName, destinationSlug string) string {
	return sourceSlug + ":" + Normalize(relationshipName) + ":" + destinationSlug
}

// EdgeID derives the tracking-row slug id of an edge. Two data items
// recording the same logical edge produce the same id, which is how shared
// edges are recognized.
func EdgeID(sourceSlug, relationshipName, destinationSlug string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(EdgeSlug(sourceSlug, relationshipName, destinationSlug)))
}

// RoutingID derives the physical-database identity for a (dataset, owner)
// pair under backend isolation.
func RoutingID(datasetID, ownerID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(datasetID.String()+":"+ownerID.String()))
}

// RoutingSuffix returns the short hex form of RoutingID used in database and
// namespace names.
func RoutingSuffix(datasetID, ownerID uuid.UUID) string {
	id := RoutingID(datasetID, ownerID)
	return strings.ReplaceAll(id.String(), "-", "")[:12]
}
