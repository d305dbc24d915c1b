package repo

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/chatctx/internal/model"
)

func TestMessageEmbeddingRepoSearchReportsSimilarity(t *testing.T) {
	db, mock := newMockDB(t)
	vectors := NewMessageEmbeddingRepo(db)

	mock.ExpectQuery(`SELECT message_id, sender, content, msg_ctime, 1 - \(embedding <=> \$2\) AS score`).
		WithArgs("chat-1", sqlmock.AnyArg(), 2).
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "sender", "content", "msg_ctime", "score"}).
			AddRow("m-1", "user", "plan a trip", int64(10), 0.9).
			AddRow("m-2", "assistant", "sure", int64(11), 0.4))

	hits, err := vectors.Search(context.Background(), "chat-1", []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	require.Equal(t, "m-1", hits[0].MessageID)
	require.Equal(t, model.SenderUser, hits[0].Sender)
	require.InDelta(t, 0.9, hits[0].Score, 1e-6)
	require.Equal(t, "chat-1", hits[1].ChatID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageEmbeddingRepoGetEntryMissing(t *testing.T) {
	db, mock := newMockDB(t)
	vectors := NewMessageEmbeddingRepo(db)

	mock.ExpectQuery(`FROM message_embeddings\s+WHERE chat_id = \$1 AND message_id = \$2`).
		WithArgs("chat-1", "m-9").
		WillReturnError(sql.ErrNoRows)

	entry, ok, err := vectors.GetEntry(context.Background(), "chat-1", "m-9")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, entry)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageEmbeddingRepoUpdateMeta(t *testing.T) {
	db, mock := newMockDB(t)
	vectors := NewMessageEmbeddingRepo(db)

	mock.ExpectExec(`UPDATE message_embeddings SET meta = \$3::jsonb, mtime = \$4`).
		WithArgs("chat-1", "m-1", sqlmock.AnyArg(), int64(9)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, vectors.UpdateMeta(context.Background(), "chat-1", "m-1", model.UserTurnMeta{Model: "x"}, 9))

	mock.ExpectExec(`UPDATE message_embeddings SET meta`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.Error(t, vectors.UpdateMeta(context.Background(), "chat-1", "gone", model.UserTurnMeta{}, 9))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageEmbeddingRepoCollectionDimension(t *testing.T) {
	db, mock := newMockDB(t)
	vectors := NewMessageEmbeddingRepo(db)

	mock.ExpectQuery(`SELECT dimension FROM index_collections`).
		WithArgs("chat-1").
		WillReturnRows(sqlmock.NewRows([]string{"dimension"}).AddRow(256))
	dim, ok, err := vectors.CollectionDimension(context.Background(), "chat-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 256, dim)

	mock.ExpectQuery(`SELECT dimension FROM index_collections`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	_, ok, err = vectors.CollectionDimension(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageEmbeddingRepoListEntriesDecodesMeta(t *testing.T) {
	db, mock := newMockDB(t)
	vectors := NewMessageEmbeddingRepo(db)

	meta, err := model.EncodeIndexMeta(model.AssistantTurnMeta{ModelUsed: "gpt-oss:20b", ContextEnabled: true, ContextCount: 2})
	require.NoError(t, err)
	mock.ExpectQuery(`FROM message_embeddings`).
		WithArgs("chat-1").
		WillReturnRows(sqlmock.NewRows([]string{"message_id", "sender", "content", "meta", "content_hash", "msg_ctime", "mtime"}).
			AddRow("m-2", "assistant", "reply", meta, "h2", int64(11), int64(12)))

	entries, err := vectors.ListEntries(context.Background(), "chat-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	got, ok := entries[0].Meta.(model.AssistantTurnMeta)
	require.True(t, ok)
	require.Equal(t, 2, got.ContextCount)
	require.Equal(t, "h2", entries[0].ContentHash)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMessageEmbeddingRepoDeleteEntries(t *testing.T) {
	db, mock := newMockDB(t)
	vectors := NewMessageEmbeddingRepo(db)

	n, err := vectors.DeleteEntries(context.Background(), "chat-1", nil)
	require.NoError(t, err)
	require.Zero(t, n)

	mock.ExpectExec(`DELETE FROM message_embeddings WHERE chat_id = \$1 AND message_id = ANY\(\$2\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = vectors.DeleteEntries(context.Background(), "chat-1", []string{"m-1", "m-2"})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEmbeddingCacheRepoMissIsNotError(t *testing.T) {
	db, mock := newMockDB(t)
	cache := NewEmbeddingCacheRepo(db)

	mock.ExpectQuery(`SELECT embedding\s+FROM embedding_cache`).
		WithArgs("local", "RETRIEVAL_QUERY", "abc").
		WillReturnError(sql.ErrNoRows)
	vec, ok, err := cache.Get(context.Background(), model.EmbeddingCacheKey{ModelName: "local", TaskType: "RETRIEVAL_QUERY", ContentHash: "abc"})
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, vec)

	mock.ExpectExec(`DELETE FROM embedding_cache WHERE ctime < \$1`).
		WithArgs(int64(100)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	n, err := cache.DeleteBefore(context.Background(), 100)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}
