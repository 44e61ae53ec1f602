package graphstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/mnemod/internal/tenant"
)

func scopedContext(t *testing.T, graphDB string) context.Context {
	t.Helper()
	ctx, err := tenant.ContextWithScope(context.Background(), &tenant.Scope{
		DatasetID:     uuid.New(),
		OwnerID:       uuid.New(),
		GraphDatabase: graphDB,
	})
	require.NoError(t, err)
	return ctx
}

func collectIDs(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func TestMemoryStore_AddAndExtractNodes(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()

	err := store.AddNodes(ctx, []*Node{
		{ID: "a", Name: "alpha", Type: NodeTypeEntity, Properties: map[string]any{"weight": 1}},
		{ID: "b", Name: "beta", Type: NodeTypeEntityType},
		nil,
		{Name: "no id, skipped"},
	})
	require.NoError(t, err)

	node, err := store.ExtractNode(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, "alpha", node.Name)
	assert.Equal(t, NodeTypeEntity, node.Type)
	assert.Equal(t, 1, node.Properties["weight"])

	// Returned nodes are copies.
	node.Name = "mutated"
	node.Properties["weight"] = 99
	again, err := store.ExtractNode(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "alpha", again.Name)
	assert.Equal(t, 1, again.Properties["weight"])

	missing, err := store.ExtractNode(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	nodes, err := store.ExtractNodes(ctx, []string{"a", "nope", "b"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, collectIDs(nodes))
}

func TestMemoryStore_AddNodes_UpsertReplaces(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()

	require.NoError(t, store.AddNodes(ctx, []*Node{{ID: "a", Name: "first"}}))
	require.NoError(t, store.AddNodes(ctx, []*Node{{ID: "a", Name: "second"}}))

	node, err := store.ExtractNode(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "second", node.Name)
}

func TestMemoryStore_AddEdges_DropsMissingEndpoints(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()

	require.NoError(t, store.AddNodes(ctx, []*Node{{ID: "a"}, {ID: "b"}}))
	err := store.AddEdges(ctx, []*Edge{
		{SourceID: "a", TargetID: "b", RelationshipName: RelationshipContains},
		{SourceID: "a", TargetID: "ghost", RelationshipName: RelationshipContains},
		{SourceID: "ghost", TargetID: "b", RelationshipName: RelationshipContains},
		nil,
	})
	require.NoError(t, err)

	_, edges, err := store.GetGraphData(ctx)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "a", edges[0].SourceID)
	assert.Equal(t, "b", edges[0].TargetID)
}

func TestMemoryStore_DeleteNode_RemovesIncidentEdges(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()

	require.NoError(t, store.AddNodes(ctx, []*Node{{ID: "a"}, {ID: "b"}, {ID: "c"}}))
	require.NoError(t, store.AddEdges(ctx, []*Edge{
		{SourceID: "a", TargetID: "b", RelationshipName: RelationshipContains},
		{SourceID: "b", TargetID: "c", RelationshipName: RelationshipContains},
		{SourceID: "a", TargetID: "c", RelationshipName: RelationshipContains},
	}))

	require.NoError(t, store.DeleteNode(ctx, "b"))

	nodes, edges, err := store.GetGraphData(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, collectIDs(nodes))
	require.Len(t, edges, 1)
	assert.Equal(t, "a", edges[0].SourceID)
	assert.Equal(t, "c", edges[0].TargetID)
}

func TestMemoryStore_DeleteNode_AbsentIsNoOp(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()

	require.NoError(t, store.AddNodes(ctx, []*Node{{ID: "a"}}))
	require.NoError(t, store.DeleteNode(ctx, "missing"))
	require.NoError(t, store.DeleteNodes(ctx, []string{"missing", "a", "missing"}))
	require.NoError(t, store.DeleteNodes(ctx, nil))

	node, err := store.ExtractNode(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, node)
}

func TestMemoryStore_GetConnections(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()

	require.NoError(t, store.AddNodes(ctx, []*Node{{ID: "chunk"}, {ID: "ent"}, {ID: "doc"}}))
	require.NoError(t, store.AddEdges(ctx, []*Edge{
		{SourceID: "chunk", TargetID: "ent", RelationshipName: RelationshipContains},
		{SourceID: "chunk", TargetID: "doc", RelationshipName: RelationshipIsPartOf},
		{SourceID: "ent", TargetID: "doc", RelationshipName: RelationshipIsA},
	}))

	connections, err := store.GetConnections(ctx, "chunk")
	require.NoError(t, err)
	require.Len(t, connections, 2)
	for _, conn := range connections {
		assert.Equal(t, "chunk", conn.Source.ID)
	}

	// Direction is preserved for in-edges.
	connections, err = store.GetConnections(ctx, "doc")
	require.NoError(t, err)
	require.Len(t, connections, 2)
	for _, conn := range connections {
		assert.Equal(t, "doc", conn.Target.ID)
	}

	connections, err = store.GetConnections(ctx, "absent")
	require.NoError(t, err)
	assert.Nil(t, connections)
}

func TestMemoryStore_ScopeIsolation(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctxA := scopedContext(t, "tenant_a")
	ctxB := scopedContext(t, "tenant_b")

	require.NoError(t, store.AddNodes(ctxA, []*Node{{ID: "only-a"}}))
	require.NoError(t, store.AddNodes(ctxB, []*Node{{ID: "only-b"}}))

	node, err := store.ExtractNode(ctxB, "only-a")
	require.NoError(t, err)
	assert.Nil(t, node)

	node, err = store.ExtractNode(ctxA, "only-a")
	require.NoError(t, err)
	require.NotNil(t, node)

	// Deleting one tenant's graph leaves the other intact.
	require.NoError(t, store.DeleteGraph(ctxA))
	node, err = store.ExtractNode(ctxA, "only-a")
	require.NoError(t, err)
	assert.Nil(t, node)
	node, err = store.ExtractNode(ctxB, "only-b")
	require.NoError(t, err)
	require.NotNil(t, node)
}

func TestMemoryStore_EmptyScopeFallsBackToDefault(t *testing.T) {
	store := NewMemoryStore(false, nil)
	scoped := scopedContext(t, "")

	require.NoError(t, store.AddNodes(scoped, []*Node{{ID: "shared"}}))

	// A scope without a graph database routes to the same default graph as
	// no scope at all.
	node, err := store.ExtractNode(context.Background(), "shared")
	require.NoError(t, err)
	require.NotNil(t, node)
}

func TestMemoryStore_RequireScope_FailsClosed(t *testing.T) {
	store := NewMemoryStore(true, nil)
	ctx := context.Background()

	err := store.AddNodes(ctx, []*Node{{ID: "a"}})
	require.ErrorIs(t, err, tenant.ErrMissingScope)

	_, err = store.ExtractNode(ctx, "a")
	require.ErrorIs(t, err, tenant.ErrMissingScope)

	err = store.DeleteNodes(ctx, []string{"a"})
	require.ErrorIs(t, err, tenant.ErrMissingScope)

	_, err = store.GetDocumentSubgraph(ctx, "hash")
	require.ErrorIs(t, err, tenant.ErrMissingScope)

	// Scoped operations still work.
	scoped := scopedContext(t, "tenant_a")
	require.NoError(t, store.AddNodes(scoped, []*Node{{ID: "a"}}))
}

// seedDocumentGraph builds two documents sharing one entity:
//
//	chunk1, chunk2 --is_part_of--> doc1 ("hash-1", TextDocument)
//	chunkOther     --is_part_of--> doc2 ("hash-2", PdfDocument)
//	chunk1 --contains--> entOrphan, entShared
//	chunkOther --contains--> entShared
//	entOrphan --is_a--> typeOrphan
//	entShared --is_a--> typeShared
//	summary --made_from--> chunk1
func seedDocumentGraph(t *testing.T, store *MemoryStore, ctx context.Context) {
	t.Helper()
	require.NoError(t, store.AddNodes(ctx, []*Node{
		{ID: "doc-1", Name: DocumentName("hash-1"), Type: NodeTypeTextDocument},
		{ID: "doc-2", Name: DocumentName("hash-2"), Type: NodeTypePdfDocument},
		{ID: "chunk-1", Type: NodeTypeDocumentChunk},
		{ID: "chunk-2", Type: NodeTypeDocumentChunk},
		{ID: "chunk-other", Type: NodeTypeDocumentChunk},
		{ID: "ent-orphan", Name: "BMW", Type: NodeTypeEntity},
		{ID: "ent-shared", Name: "Germany", Type: NodeTypeEntity},
		{ID: "type-orphan", Name: "vehicle", Type: NodeTypeEntityType},
		{ID: "type-shared", Name: "location", Type: NodeTypeEntityType},
		{ID: "sum-1", Type: NodeTypeTextSummary},
	}))
	require.NoError(t, store.AddEdges(ctx, []*Edge{
		{SourceID: "chunk-1", TargetID: "doc-1", RelationshipName: RelationshipIsPartOf},
		{SourceID: "chunk-2", TargetID: "doc-1", RelationshipName: RelationshipIsPartOf},
		{SourceID: "chunk-other", TargetID: "doc-2", RelationshipName: RelationshipIsPartOf},
		{SourceID: "chunk-1", TargetID: "ent-orphan", RelationshipName: RelationshipContains},
		{SourceID: "chunk-1", TargetID: "ent-shared", RelationshipName: RelationshipContains},
		{SourceID: "chunk-other", TargetID: "ent-shared", RelationshipName: RelationshipContains},
		{SourceID: "ent-orphan", TargetID: "type-orphan", RelationshipName: RelationshipIsA},
		{SourceID: "ent-shared", TargetID: "type-shared", RelationshipName: RelationshipIsA},
		{SourceID: "sum-1", TargetID: "chunk-1", RelationshipName: RelationshipMadeFrom},
	}))
}

func TestMemoryStore_GetDocumentSubgraph(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()
	seedDocumentGraph(t, store, ctx)

	subgraph, err := store.GetDocumentSubgraph(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, subgraph)

	require.Len(t, subgraph.Document, 1)
	assert.Equal(t, "doc-1", subgraph.Document[0].ID)
	assert.ElementsMatch(t, []string{"chunk-1", "chunk-2"}, collectIDs(subgraph.Chunks))

	// The shared entity is still contained by a chunk of the other document,
	// so only the exclusive entity and its type are orphaned.
	assert.ElementsMatch(t, []string{"ent-orphan"}, collectIDs(subgraph.OrphanEntities))
	assert.ElementsMatch(t, []string{"type-orphan"}, collectIDs(subgraph.OrphanTypes))
	assert.ElementsMatch(t, []string{"sum-1"}, collectIDs(subgraph.MadeFromNodes))
}

func TestMemoryStore_GetDocumentSubgraph_PdfDocument(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()
	seedDocumentGraph(t, store, ctx)

	subgraph, err := store.GetDocumentSubgraph(ctx, "hash-2")
	require.NoError(t, err)
	require.NotNil(t, subgraph)

	require.Len(t, subgraph.Document, 1)
	assert.Equal(t, "doc-2", subgraph.Document[0].ID)
	assert.ElementsMatch(t, []string{"chunk-other"}, collectIDs(subgraph.Chunks))

	// The shared entity is not orphaned from this side either: chunk-1 of
	// the other document still contains it.
	assert.Empty(t, subgraph.OrphanEntities)
	assert.Empty(t, subgraph.OrphanTypes)
	assert.Empty(t, subgraph.MadeFromNodes)
}

func TestMemoryStore_GetDocumentSubgraph_Missing(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()
	seedDocumentGraph(t, store, ctx)

	subgraph, err := store.GetDocumentSubgraph(ctx, "no-such-hash")
	require.NoError(t, err)
	assert.Nil(t, subgraph)
}

func TestMemoryStore_GetDocumentSubgraph_SharedTypeSurvives(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()

	// One orphan entity and one shared entity both classify into the same
	// type; the type must survive because one classifier survives.
	require.NoError(t, store.AddNodes(ctx, []*Node{
		{ID: "doc-1", Name: DocumentName("hash-1"), Type: NodeTypeTextDocument},
		{ID: "chunk-1", Type: NodeTypeDocumentChunk},
		{ID: "chunk-other", Type: NodeTypeDocumentChunk},
		{ID: "ent-orphan", Type: NodeTypeEntity},
		{ID: "ent-shared", Type: NodeTypeEntity},
		{ID: "type-both", Type: NodeTypeEntityType},
	}))
	require.NoError(t, store.AddEdges(ctx, []*Edge{
		{SourceID: "chunk-1", TargetID: "doc-1", RelationshipName: RelationshipIsPartOf},
		{SourceID: "chunk-1", TargetID: "ent-orphan", RelationshipName: RelationshipContains},
		{SourceID: "chunk-1", TargetID: "ent-shared", RelationshipName: RelationshipContains},
		{SourceID: "chunk-other", TargetID: "ent-shared", RelationshipName: RelationshipContains},
		{SourceID: "ent-orphan", TargetID: "type-both", RelationshipName: RelationshipInstanceOf},
		{SourceID: "ent-shared", TargetID: "type-both", RelationshipName: RelationshipInstanceOf},
	}))

	subgraph, err := store.GetDocumentSubgraph(ctx, "hash-1")
	require.NoError(t, err)
	require.NotNil(t, subgraph)
	assert.ElementsMatch(t, []string{"ent-orphan"}, collectIDs(subgraph.OrphanEntities))
	assert.Empty(t, subgraph.OrphanTypes)
}

func TestMemoryStore_GetDegreeOneNodes(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()

	require.NoError(t, store.AddNodes(ctx, []*Node{
		{ID: "c1", Type: NodeTypeDocumentChunk},
		{ID: "c2", Type: NodeTypeDocumentChunk},
		{ID: "e1", Type: NodeTypeEntity},
		{ID: "e2", Type: NodeTypeEntity},
		{ID: "t1", Type: NodeTypeEntityType},
	}))
	require.NoError(t, store.AddEdges(ctx, []*Edge{
		{SourceID: "c1", TargetID: "e1", RelationshipName: RelationshipContains},
		{SourceID: "c1", TargetID: "e2", RelationshipName: RelationshipContains},
		{SourceID: "c2", TargetID: "e2", RelationshipName: RelationshipContains},
		{SourceID: "e2", TargetID: "t1", RelationshipName: RelationshipIsA},
	}))

	entities, err := store.GetDegreeOneNodes(ctx, NodeTypeEntity)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"e1"}, collectIDs(entities))

	types, err := store.GetDegreeOneNodes(ctx, NodeTypeEntityType)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1"}, collectIDs(types))

	_, err = store.GetDegreeOneNodes(ctx, NodeTypeDocumentChunk)
	require.ErrorIs(t, err, ErrInvalidNodeType)
	_, err = store.GetDegreeOneNodes(ctx, "")
	require.ErrorIs(t, err, ErrInvalidNodeType)
}

func TestMemoryStore_GetGraphDataAndDeleteGraph(t *testing.T) {
	store := NewMemoryStore(false, nil)
	ctx := context.Background()
	seedDocumentGraph(t, store, ctx)

	nodes, edges, err := store.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Len(t, nodes, 10)
	assert.Len(t, edges, 9)

	require.NoError(t, store.DeleteGraph(ctx))
	nodes, edges, err = store.GetGraphData(ctx)
	require.NoError(t, err)
	assert.Empty(t, nodes)
	assert.Empty(t, edges)

	// Deleting an already empty graph is fine.
	require.NoError(t, store.DeleteGraph(ctx))
}
