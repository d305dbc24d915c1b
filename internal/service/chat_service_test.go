package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/chatctx/internal/model"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
)

func stages(ws []Warning) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Stage)
	}
	return out
}

func TestCreateChat_FirstMessageIsTitle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	res, err := env.svc.CreateChat(ctx, "alice", "Plan trip", "", "")
	require.NoError(t, err)
	require.Equal(t, "Plan trip", res.Chat.Title)
	require.Equal(t, "gpt-oss:20b", res.Chat.Model)
	require.Equal(t, "assistant", res.Chat.Agent)
	require.Empty(t, res.Warnings)

	msgs, err := env.log.ListByChat(ctx, res.Chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Equal(t, model.SenderUser, msgs[0].Sender)
	require.Equal(t, "Plan trip", msgs[0].Content)
	require.Equal(t, int64(1), msgs[0].Seq)

	entries, err := env.index.ListEntries(ctx, res.Chat.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, model.UserTurnMeta{Model: "gpt-oss:20b", Agent: "assistant"}, entries[0].Meta)
}

func TestCreateChat_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tests := []struct {
		name   string
		userID string
		title  string
		agent  string
		check  func(error) bool
	}{
		{name: "empty title", userID: "alice", title: "  ", check: appErr.IsInvalid},
		{name: "unknown agent", userID: "alice", title: "hi", agent: "pirate", check: appErr.IsInvalid},
		{name: "no user", userID: "", title: "hi", check: func(err error) bool { return errors.Is(err, appErr.ErrUnauthorized) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.CreateChat(ctx, tt.userID, tt.title, "", tt.agent)
			require.Error(t, err)
			require.True(t, tt.check(err), err.Error())
		})
	}
	chats, err := env.svc.ListChatsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Empty(t, chats)

	res, err := env.svc.CreateChat(ctx, "alice", "hi", "llama3", "Tutor")
	require.NoError(t, err)
	require.Equal(t, "llama3", res.Chat.Model)
	require.Equal(t, "tutor", res.Chat.Agent)
}

func TestSendMessage_ProducesExactlyTwoMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "hello")

	res, err := env.svc.SendMessage(ctx, chat.ID, "alice", "tell me more", false)
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, 0, res.ContextCount)
	require.Equal(t, model.SenderUser, res.UserMessage.Sender)
	require.Equal(t, model.SenderAssistant, res.AssistantMessage.Sender)
	require.Equal(t, "gpt-oss:20b", res.AssistantMessage.ModelUsed)

	msgs, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, res.UserMessage.ID, msgs[1].ID)
	require.Equal(t, res.AssistantMessage.ID, msgs[2].ID)
	for i, msg := range msgs {
		require.Equal(t, int64(i+1), msg.Seq)
	}

	entries, err := env.index.ListEntries(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
}

func TestSendMessage_ExcludesQueryMessageByID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "Plan trip")

	res, err := env.svc.SendMessage(ctx, chat.ID, "alice", "Plan trip", true)
	require.NoError(t, err)
	req := env.responder.last()
	require.NotNil(t, req)
	require.Len(t, req.Context, 1)
	require.Equal(t, 1, res.ContextCount)
	for _, item := range req.Context {
		require.NotEqual(t, res.UserMessage.ID, item.MessageID)
	}

	entries, err := env.index.ListEntries(ctx, chat.ID)
	require.NoError(t, err)
	var assistant model.IndexMeta
	for _, entry := range entries {
		if entry.MessageID == res.AssistantMessage.ID {
			assistant = entry.Meta
		}
	}
	require.Equal(t, model.AssistantTurnMeta{ModelUsed: "gpt-oss:20b", ContextEnabled: true, ContextCount: 1}, assistant)
}

func TestSendMessage_EmptyContentLeavesLogUnchanged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "hello")
	before, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)

	for _, content := range []string{"", "   \n\t"} {
		_, err := env.svc.SendMessage(ctx, chat.ID, "alice", content, true)
		require.True(t, appErr.IsInvalid(err))
	}
	after, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Equal(t, len(before), len(after))
	require.Empty(t, env.responder.reqs)
}

func TestSendMessage_ForeignChatIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "hello")

	_, err := env.svc.SendMessage(ctx, chat.ID, "bob", "hi", false)
	require.True(t, appErr.IsNotFound(err))
	_, err = env.svc.SendMessage(ctx, "missing", "alice", "hi", false)
	require.True(t, appErr.IsNotFound(err))

	msgs, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestSendMessage_IndexOutageDoesNotBlockLog(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "hello")
	env.vectors.down = true

	res, err := env.svc.SendMessage(ctx, chat.ID, "alice", "are you there?", true)
	require.NoError(t, err)
	require.NotNil(t, res.AssistantMessage)
	require.Equal(t, 0, res.ContextCount)
	require.Equal(t, []string{StageIndexUserMessage, StageContextFetch, StageIndexAssistantMessage}, stages(res.Warnings))

	msgs, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
}

func TestSendMessage_GeneratorFailureKeepsUserMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "hello")
	env.responder.err = errors.New("model offline")

	res, err := env.svc.SendMessage(ctx, chat.ID, "alice", "still there?", false)
	require.True(t, appErr.IsDependency(err))
	require.NotNil(t, res)
	require.NotNil(t, res.UserMessage)
	require.Nil(t, res.AssistantMessage)

	msgs, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "still there?", msgs[1].Content)
}

func TestSendMessage_HistoryTail(t *testing.T) {
	env := newTestEnv(t)
	env.svc.cfg.HistoryTail = 2
	ctx := context.Background()
	chat := env.createChat(t, "alice", "first")
	_, err := env.svc.SendMessage(ctx, chat.ID, "alice", "second", false)
	require.NoError(t, err)

	_, err = env.svc.SendMessage(ctx, chat.ID, "alice", "third", false)
	require.NoError(t, err)
	req := env.responder.last()
	require.Len(t, req.History, 2)
	require.Equal(t, "second", req.History[0].Content)
	require.Equal(t, "noted", req.History[1].Content)
	require.Equal(t, "third", req.Content)
}

func TestPlanTripScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "Plan trip")

	detail, err := env.svc.GetChat(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.Len(t, detail.Messages, 1)
	require.Equal(t, model.SenderUser, detail.Messages[0].Sender)

	ids := map[string]string{}
	for _, content := range []string{"How do I bake sourdough bread?", "Explain compound interest", "I love beaches"} {
		res, err := env.svc.SendMessage(ctx, chat.ID, "alice", content, false)
		require.NoError(t, err)
		ids[content] = res.UserMessage.ID
	}

	res, err := env.svc.SendMessage(ctx, chat.ID, "alice", "Where should I go in April?", true)
	require.NoError(t, err)
	require.LessOrEqual(t, res.ContextCount, 5)
	req := env.responder.last()
	require.Len(t, req.Context, res.ContextCount)
	found := false
	for _, item := range req.Context {
		if item.MessageID == ids["I love beaches"] {
			found = true
		}
	}
	require.True(t, found, "beach message should be part of the context")

	ctxRes, err := env.svc.GetContextForQuery(ctx, chat.ID, "alice", "Where should I go in April?", 20)
	require.NoError(t, err)
	rank := map[string]int{}
	for i, item := range ctxRes.Items {
		rank[item.MessageID] = i
	}
	require.Less(t, rank[ids["I love beaches"]], rank[ids["How do I bake sourdough bread?"]])
	require.Less(t, rank[ids["I love beaches"]], rank[ids["Explain compound interest"]])
}

func TestGetContextForQuery_LimitAndOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "trip budget")
	for _, content := range []string{"beach trip", "bread recipe", "tax budget", "travel in april", "vacation budget"} {
		_, err := env.svc.SendMessage(ctx, chat.ID, "alice", content, false)
		require.NoError(t, err)
	}

	res, err := env.svc.GetContextForQuery(ctx, chat.ID, "alice", "trip budget", 3)
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	require.Equal(t, 3, res.Count())
	for i := 1; i < len(res.Items); i++ {
		prev, cur := res.Items[i-1], res.Items[i]
		require.True(t, prev.Score > cur.Score || (prev.Score == cur.Score && prev.Ctime <= cur.Ctime))
	}

	res, err = env.svc.GetContextForQuery(ctx, chat.ID, "alice", "trip budget", 0)
	require.NoError(t, err)
	require.Len(t, res.Items, DefaultContextLimit)

	res, err = env.svc.GetContextForQuery(ctx, chat.ID, "alice", "trip budget", 1000)
	require.NoError(t, err)
	require.Len(t, res.Items, 11)

	_, err = env.svc.GetContextForQuery(ctx, chat.ID, "alice", "trip budget", -1)
	require.True(t, appErr.IsInvalid(err))
	_, err = env.svc.GetContextForQuery(ctx, chat.ID, "alice", " ", 3)
	require.True(t, appErr.IsInvalid(err))
	_, err = env.svc.GetContextForQuery(ctx, chat.ID, "bob", "trip", 3)
	require.True(t, appErr.IsNotFound(err))
}

func TestGetContextForQuery_EmptyChat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := &model.Chat{ID: "empty", UserID: "alice", Title: "t", Model: "m", Agent: "assistant"}
	require.NoError(t, env.store.CreateWithMessage(ctx, chat, nil))

	res, err := env.svc.GetContextForQuery(ctx, chat.ID, "alice", "anything", 5)
	require.NoError(t, err)
	require.NotNil(t, res.Items)
	require.Empty(t, res.Items)
	require.Equal(t, 0, env.embedder.count("RETRIEVAL_QUERY"))
}

func TestDeleteChat_ClearsLogEvenWhenIndexFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "hello")
	_, err := env.svc.SendMessage(ctx, chat.ID, "alice", "more", false)
	require.NoError(t, err)
	env.vectors.dropDown = true

	res, err := env.svc.DeleteChat(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(3), res.MessagesDeleted)
	require.Equal(t, []string{StageIndexDelete}, stages(res.Warnings))

	msgs, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Empty(t, msgs)
	_, err = env.svc.GetChat(ctx, chat.ID, "alice")
	require.True(t, appErr.IsNotFound(err))
}

func TestDeleteChat_DropsCollection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "hello")

	_, err := env.svc.DeleteChat(ctx, chat.ID, "bob")
	require.True(t, appErr.IsNotFound(err))

	res, err := env.svc.DeleteChat(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	_, has, err := env.vectors.CollectionDimension(ctx, chat.ID)
	require.NoError(t, err)
	require.False(t, has)
}

func TestRebuildIndex_YieldsOneEntryPerMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "Plan trip")
	_, err := env.svc.SendMessage(ctx, chat.ID, "alice", "beach?", true)
	require.NoError(t, err)
	_, err = env.svc.SendMessage(ctx, chat.ID, "alice", "bread?", false)
	require.NoError(t, err)

	// lose part of the index and plant a dangling entry
	msgs, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	_, err = env.vectors.DeleteEntries(ctx, chat.ID, []string{msgs[1].ID})
	require.NoError(t, err)
	require.NoError(t, env.index.Upsert(ctx, chat.ID, "ghost", "gone", model.SenderUser, model.UserTurnMeta{}, 1))

	res, err := env.svc.RebuildIndex(ctx, chat.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, len(msgs), res.Messages)
	require.Equal(t, len(msgs), res.Indexed)
	require.Empty(t, res.Warnings)

	entries, err := env.index.ListEntries(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, entries, len(msgs))
	want := map[string]bool{}
	for _, msg := range msgs {
		want[msg.ID] = true
	}
	for _, entry := range entries {
		require.True(t, want[entry.MessageID])
		if entry.MessageID == msgs[2].ID {
			require.Equal(t, model.AssistantTurnMeta{ModelUsed: "gpt-oss:20b", ContextEnabled: true, ContextCount: 1}, entry.Meta)
		}
	}

	_, err = env.svc.RebuildIndex(ctx, chat.ID, "bob")
	require.True(t, appErr.IsNotFound(err))
}

func TestRenameAndListChats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	older := &model.Chat{ID: "c1", UserID: "alice", Title: "older", Model: "m", Agent: "assistant", Ctime: 1000}
	newer := &model.Chat{ID: "c2", UserID: "alice", Title: "newer", Model: "m", Agent: "assistant", Ctime: 2000}
	other := &model.Chat{ID: "c3", UserID: "bob", Title: "bob's", Model: "m", Agent: "assistant", Ctime: 3000}
	for _, c := range []*model.Chat{older, newer, other} {
		require.NoError(t, env.store.CreateWithMessage(ctx, c, nil))
	}

	list, err := env.svc.ListChatsForUser(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, []model.ChatSummary{{ID: "c2", Title: "newer"}, {ID: "c1", Title: "older"}}, list)

	renamed, err := env.svc.RenameChat(ctx, "c1", "alice", "  trip notes ")
	require.NoError(t, err)
	require.Equal(t, "trip notes", renamed.Title)

	_, err = env.svc.RenameChat(ctx, "c1", "alice", "")
	require.True(t, appErr.IsInvalid(err))
	_, err = env.svc.RenameChat(ctx, "c3", "alice", "mine")
	require.True(t, appErr.IsNotFound(err))
}

func TestSendMessage_ConcurrentSameChatIndexesEveryMessage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	chat := env.createChat(t, "alice", "beach trip")

	const senders = 8
	var wg sync.WaitGroup
	errs := make(chan error, senders)
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := env.svc.SendMessage(ctx, chat.ID, "alice", fmt.Sprintf("bread recipe %d", i), i%2 == 0)
			if err == nil && len(res.Warnings) > 0 {
				err = fmt.Errorf("send %d: unexpected warnings %v", i, res.Warnings)
			}
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	msgs, err := env.log.ListByChat(ctx, chat.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1+2*senders)
	for i, msg := range msgs {
		require.Equal(t, int64(i+1), msg.Seq)
	}
	requireIndexMatchesLog(t, env, chat.ID)
}
