package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsMessages(t *testing.T) {
	p := New()

	id1, err := p.Publish(context.Background(), map[string]int{"succeeded": 3})
	require.NoError(t, err)
	id2, err := p.Publish(context.Background(), map[string]int{"succeeded": 5})
	require.NoError(t, err)

	assert.Equal(t, "memory-1", id1)
	assert.Equal(t, "memory-2", id2)
	assert.Len(t, p.Messages(), 2)
}

func TestPublisherRejectsAfterClose(t *testing.T) {
	p := New()
	require.NoError(t, p.Close())

	_, err := p.Publish(context.Background(), "payload")
	require.Error(t, err)
	assert.Empty(t, p.Messages())
}
