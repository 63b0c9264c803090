package viewcommand

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendAndReceive(t *testing.T) {
	ch := NewChannel(1)
	id := uuid.New()

	require.NoError(t, ch.Send(context.Background(), Command{Kind: AppendStreamChunk, ConversationID: id, Text: "hello"}))

	cmd := <-ch.Commands()
	assert.Equal(t, AppendStreamChunk, cmd.Kind)
	assert.Equal(t, "hello", cmd.Text)
}

func TestSendFIFOOrder(t *testing.T) {
	ch := NewChannel(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, ch.Send(context.Background(), Command{Text: string(rune('a' + i))}))
	}
	for i := 0; i < 4; i++ {
		cmd := <-ch.Commands()
		assert.Equal(t, string(rune('a'+i)), cmd.Text)
	}
}

func TestSendRespectsContextCancellation(t *testing.T) {
	ch := NewChannel(1)
	require.NoError(t, ch.Send(context.Background(), Command{Text: "fill buffer"}))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := ch.Send(ctx, Command{Text: "blocked"})
	require.Error(t, err)
}
