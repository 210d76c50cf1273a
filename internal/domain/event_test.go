package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_CloneIsDeep(t *testing.T) {
	processedAt := time.Now()
	original := &Event{
		EventID:     "evt-1",
		Payload:     map[string]any{"nested": map[string]any{"k": "v"}, "list": []any{"a"}},
		Processors:  []string{"p1"},
		ProcessedAt: &processedAt,
	}

	c := original.Clone()
	c.Payload["nested"].(map[string]any)["k"] = "changed"
	c.Payload["list"].([]any)[0] = "b"
	c.Processors[0] = "p2"
	*c.ProcessedAt = processedAt.Add(time.Hour)

	assert.Equal(t, "v", original.Payload["nested"].(map[string]any)["k"])
	assert.Equal(t, "a", original.Payload["list"].([]any)[0])
	assert.Equal(t, "p1", original.Processors[0])
	assert.Equal(t, processedAt, *original.ProcessedAt)
}

func TestParseStreamID(t *testing.T) {
	id, entityType, entityID, err := ParseStreamID("order:42")
	require.NoError(t, err)
	assert.Equal(t, StreamID("order:42"), id)
	assert.Equal(t, "order", entityType)
	assert.Equal(t, "42", entityID)

	_, entityType, entityID, err = ParseStreamID("doc:a:b")
	require.NoError(t, err)
	assert.Equal(t, "doc", entityType)
	assert.Equal(t, "a:b", entityID)

	for _, raw := range []string{"", "order", ":42", "order:"} {
		_, _, _, err := ParseStreamID(raw)
		assert.Error(t, err, raw)
	}
}

func TestEnums(t *testing.T) {
	assert.True(t, SourceIoTDevice.Valid())
	assert.False(t, Source("mobile").Valid())
	assert.True(t, CategoryPageView.Valid())
	assert.False(t, Category("unknown").Valid())
	assert.True(t, StatusArchived.Valid())
	assert.True(t, ResultRetry.Failed())
	assert.False(t, ResultSkipped.Failed())
}
