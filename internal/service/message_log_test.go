package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/chatctx/internal/memstore"
	"github.com/xxxsen/chatctx/internal/model"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
)

func TestMessageLog_AppendValidation(t *testing.T) {
	store := memstore.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateWithMessage(ctx, &model.Chat{ID: "c1", UserID: "u"}, nil))
	log := NewMessageLog(store)

	tests := []struct {
		name      string
		chatID    string
		sender    model.Sender
		content   string
		modelUsed string
	}{
		{name: "empty chat", chatID: "", sender: model.SenderUser, content: "x"},
		{name: "bad sender", chatID: "c1", sender: "system", content: "x"},
		{name: "blank content", chatID: "c1", sender: model.SenderUser, content: " \n"},
		{name: "model on user turn", chatID: "c1", sender: model.SenderUser, content: "x", modelUsed: "m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := log.Append(ctx, tt.chatID, tt.sender, tt.content, tt.modelUsed)
			require.True(t, appErr.IsInvalid(err))
		})
	}

	_, err := log.Append(ctx, "missing", model.SenderUser, "x", "")
	require.True(t, appErr.IsNotFound(err))

	msg, err := log.Append(ctx, "c1", model.SenderAssistant, "reply", "m")
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, int64(1), msg.Seq)
	require.Equal(t, "m", msg.ModelUsed)
}

func TestMessageLog_Tail(t *testing.T) {
	store := memstore.NewStore()
	ctx := context.Background()
	require.NoError(t, store.CreateWithMessage(ctx, &model.Chat{ID: "c1", UserID: "u"}, nil))
	log := NewMessageLog(store)
	for _, content := range []string{"a", "b", "c", "d"} {
		_, err := log.Append(ctx, "c1", model.SenderUser, content, "")
		require.NoError(t, err)
	}

	tail, err := log.Tail(ctx, "c1", 2, 4)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	require.Equal(t, "b", tail[0].Content)
	require.Equal(t, "c", tail[1].Content)

	tail, err = log.Tail(ctx, "c1", 10, 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)

	tail, err = log.Tail(ctx, "c1", 0, 4)
	require.NoError(t, err)
	require.Empty(t, tail)
}
