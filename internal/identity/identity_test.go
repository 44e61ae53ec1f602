package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "Germany", "germany"},
		{"spaces to underscores", "neptune analytics", "neptune_analytics"},
		{"strips apostrophes", "O'Brien's Pub", "obriens_pub"},
		{"combined", "BMW's Home Country", "bmws_home_country"},
		{"already normal", "netherlands", "netherlands"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.input))
		})
	}
}

func TestNodeIDDeterministic(t *testing.T) {
	a := NodeID("Germany")
	b := NodeID("germany")
	c := NodeID("GERMANY")

	// Case variants address the same node.
	assert.Equal(t, a, b)
	assert.Equal(t, b, c)

	assert.NotEqual(t, a, NodeID("Netherlands"))
}

func TestNodeIDIsVersion5(t *testing.T) {
	id := NodeID("some entity")
	assert.Equal(t, uuid.Version(5), id.Version())
}

func TestChunkID(t *testing.T) {
	dataID := uuid.New()

	first := ChunkID(dataID, 0)
	again := ChunkID(dataID, 0)
	second := ChunkID(dataID, 1)

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, second)
	assert.NotEqual(t, first, ChunkID(uuid.New(), 0))
}

func TestDatasetIDNeverForks(t *testing.T) {
	owner := uuid.New()
	other := uuid.New()

	assert.Equal(t, DatasetID("reports", owner), DatasetID("reports", owner))
	assert.NotEqual(t, DatasetID("reports", owner), DatasetID("reports", other))
	assert.NotEqual(t, DatasetID("reports", owner), DatasetID("archive", owner))
}

func TestContainsEdgeText(t *testing.T) {
	text := ContainsEdgeText("Germany", "A country in Europe")
	assert.Equal(t, "relationship_name: contains; entity_name: Germany; entity_description: A country in Europe", text)
}

func TestContainsEdgeKeyAgreement(t *testing.T) {
	// Two independently computed deletions for the same logical edge must
	// agree on its key, regardless of surface casing.
	a := ContainsEdgeKey("Germany", "A country in Europe")
	b := ContainsEdgeKey("germany", "a country in europe")
	require.Equal(t, a, b)

	assert.NotEqual(t, a, ContainsEdgeKey("Germany", "Another description"))
	assert.NotEqual(t, a, ContainsEdgeKey("Netherlands", "A country in Europe"))
}

func TestEdgeSlug(t *testing.T) {
	slug := EdgeSlug("bmw", "is located in", "germany")
	assert.Equal(t, "bmw:is_located_in:germany", slug)
}

func TestEdgeIDSharedAcrossItems(t *testing.T) {
	a := EdgeID("bmw", "located_in", "germany")
	b := EdgeID("bmw", "Located In", "germany")
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, EdgeID("germany", "located_in", "bmw"))
	assert.NotEqual(t, a, EdgeID("bmw", "borders", "germany"))
}

func TestRoutingSuffix(t *testing.T) {
	dataset := uuid.New()
	owner := uuid.New()

	suffix := RoutingSuffix(dataset, owner)
	require.Len(t, suffix, 12)
	assert.Equal(t, suffix, RoutingSuffix(dataset, owner))
	assert.NotEqual(t, suffix, RoutingSuffix(dataset, uuid.New()))
}
