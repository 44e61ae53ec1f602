package vectorstore

import (
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestPointID(t *testing.T) {
	// UUID ids are used as-is.
	uuidID := pointID("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	require.NotNil(t, uuidID)
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", uuidID.GetUuid())

	// Non-UUID ids map deterministically, so re-adding overwrites.
	first := pointID("plain-id")
	second := pointID("plain-id")
	assert.Equal(t, first.GetUuid(), second.GetUuid())
	assert.NotEqual(t, first.GetUuid(), pointID("other-id").GetUuid())
}

func TestDataPointFromPayload_RoundTrip(t *testing.T) {
	payload := map[string]*qdrant.Value{
		payloadIDKey:   qdrant.NewValueString("p1"),
		payloadTextKey: qdrant.NewValueString("BMW"),
		"kind":         qdrant.NewValueString("entity"),
		"tokens":       qdrant.NewValueInt(42),
		"score":        qdrant.NewValueDouble(0.5),
		"active":       qdrant.NewValueBool(true),
	}

	point := dataPointFromPayload(payload)
	assert.Equal(t, "p1", point.ID)
	assert.Equal(t, "BMW", point.Text)
	assert.Equal(t, "entity", point.Payload["kind"])
	assert.Equal(t, int64(42), point.Payload["tokens"])
	assert.Equal(t, 0.5, point.Payload["score"])
	assert.Equal(t, true, point.Payload["active"])
}

func TestValueFromAny(t *testing.T) {
	assert.Equal(t, "s", valueFromAny("s").GetStringValue())
	assert.Equal(t, int64(7), valueFromAny(7).GetIntegerValue())
	assert.Equal(t, int64(9), valueFromAny(int64(9)).GetIntegerValue())
	assert.Equal(t, 1.5, valueFromAny(1.5).GetDoubleValue())
	assert.Equal(t, true, valueFromAny(true).GetBoolValue())
	// Unknown types degrade to their string form.
	assert.Equal(t, "[1 2]", valueFromAny([]int{1, 2}).GetStringValue())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, isTransient(nil))
	assert.False(t, isTransient(errors.New("plain error")))
	assert.True(t, isTransient(status.Error(grpccodes.Unavailable, "down")))
	assert.True(t, isTransient(status.Error(grpccodes.DeadlineExceeded, "slow")))
	assert.False(t, isTransient(status.Error(grpccodes.NotFound, "missing")))
	assert.False(t, isTransient(status.Error(grpccodes.InvalidArgument, "bad")))
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(status.Error(grpccodes.NotFound, "missing")))
	assert.False(t, isNotFound(status.Error(grpccodes.Unavailable, "down")))
	assert.False(t, isNotFound(errors.New("plain error")))
}
