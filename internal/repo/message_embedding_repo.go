package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/chatctx/internal/model"
)

// MessageEmbeddingRepo is the pgvector-backed vector store. Each chat owns a
// logical collection: one index_collections row plus its message_embeddings.
type MessageEmbeddingRepo struct {
	db *sql.DB
}

func NewMessageEmbeddingRepo(db *sql.DB) *MessageEmbeddingRepo {
	return &MessageEmbeddingRepo{db: db}
}

// EnsureCollection keeps the first dimension recorded for a chat; a row left
// with dimension 0 adopts the given one.
func (r *MessageEmbeddingRepo) EnsureCollection(ctx context.Context, chatID, modelName string, dimension int, now int64) error {
	const query = `
		INSERT INTO index_collections (chat_id, model_name, dimension, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (chat_id) DO UPDATE SET
			model_name = EXCLUDED.model_name,
			dimension = EXCLUDED.dimension
		WHERE index_collections.dimension = 0
	`
	_, err := r.db.ExecContext(ctx, query, chatID, modelName, dimension, now)
	return err
}

func (r *MessageEmbeddingRepo) CollectionDimension(ctx context.Context, chatID string) (int, bool, error) {
	const query = `SELECT dimension FROM index_collections WHERE chat_id = $1`
	var dimension int
	err := r.db.QueryRowContext(ctx, query, chatID).Scan(&dimension)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, err
	}
	return dimension, true, nil
}

func (r *MessageEmbeddingRepo) ListCollections(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT chat_id FROM index_collections ORDER BY ctime ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DropCollection is idempotent; entries go with the collection row.
func (r *MessageEmbeddingRepo) DropCollection(ctx context.Context, chatID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM index_collections WHERE chat_id = $1`, chatID)
	return err
}

func (r *MessageEmbeddingRepo) Upsert(ctx context.Context, entry *model.IndexEntry) error {
	meta, err := model.EncodeIndexMeta(entry.Meta)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO message_embeddings (chat_id, message_id, sender, content, meta, embedding, content_hash, msg_ctime, mtime)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET
			sender = EXCLUDED.sender,
			content = EXCLUDED.content,
			meta = EXCLUDED.meta,
			embedding = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			msg_ctime = EXCLUDED.msg_ctime,
			mtime = EXCLUDED.mtime
	`
	_, err = r.db.ExecContext(ctx, query,
		entry.ChatID,
		entry.MessageID,
		string(entry.Sender),
		entry.Content,
		string(meta),
		pgvector.NewVector(entry.Embedding),
		entry.ContentHash,
		entry.MsgCtime,
		entry.Mtime,
	)
	return err
}

func (r *MessageEmbeddingRepo) GetEntry(ctx context.Context, chatID, messageID string) (*model.IndexEntry, bool, error) {
	const query = `
		SELECT sender, content, meta, content_hash, msg_ctime, mtime
		FROM message_embeddings
		WHERE chat_id = $1 AND message_id = $2
	`
	entry := &model.IndexEntry{ChatID: chatID, MessageID: messageID}
	var sender string
	var meta []byte
	err := r.db.QueryRowContext(ctx, query, chatID, messageID).
		Scan(&sender, &entry.Content, &meta, &entry.ContentHash, &entry.MsgCtime, &entry.Mtime)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, false, nil
	case err != nil:
		return nil, false, err
	}
	entry.Sender = model.Sender(sender)
	if entry.Meta, err = model.DecodeIndexMeta(entry.Sender, meta); err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

func (r *MessageEmbeddingRepo) UpdateMeta(ctx context.Context, chatID, messageID string, meta model.IndexMeta, mtime int64) error {
	raw, err := model.EncodeIndexMeta(meta)
	if err != nil {
		return err
	}
	const query = `UPDATE message_embeddings SET meta = $3::jsonb, mtime = $4 WHERE chat_id = $1 AND message_id = $2`
	res, err := r.db.ExecContext(ctx, query, chatID, messageID, string(raw), mtime)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("index entry %s/%s does not exist", chatID, messageID)
	}
	return nil
}

// Search returns the k nearest entries of the chat by cosine distance; score
// is reported as cosine similarity.
func (r *MessageEmbeddingRepo) Search(ctx context.Context, chatID string, query []float32, k int) ([]model.IndexHit, error) {
	const stmt = `
		SELECT message_id, sender, content, msg_ctime, 1 - (embedding <=> $2) AS score
		FROM message_embeddings
		WHERE chat_id = $1
		ORDER BY embedding <=> $2, msg_ctime ASC, message_id ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, stmt, chatID, pgvector.NewVector(query), k)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	hits := make([]model.IndexHit, 0, k)
	for rows.Next() {
		hit := model.IndexHit{ChatID: chatID}
		var sender string
		var score float64
		if err := rows.Scan(&hit.MessageID, &sender, &hit.Content, &hit.MsgCtime, &score); err != nil {
			return nil, err
		}
		hit.Sender = model.Sender(sender)
		hit.Score = float32(score)
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

// ListEntries returns the chat's entries without their vectors.
func (r *MessageEmbeddingRepo) ListEntries(ctx context.Context, chatID string) ([]model.IndexEntry, error) {
	const stmt = `
		SELECT message_id, sender, content, meta, content_hash, msg_ctime, mtime
		FROM message_embeddings
		WHERE chat_id = $1
		ORDER BY msg_ctime ASC, message_id ASC
	`
	rows, err := r.db.QueryContext(ctx, stmt, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	entries := make([]model.IndexEntry, 0)
	for rows.Next() {
		entry := model.IndexEntry{ChatID: chatID}
		var sender string
		var meta []byte
		if err := rows.Scan(&entry.MessageID, &sender, &entry.Content, &meta, &entry.ContentHash, &entry.MsgCtime, &entry.Mtime); err != nil {
			return nil, err
		}
		entry.Sender = model.Sender(sender)
		decoded, err := model.DecodeIndexMeta(entry.Sender, meta)
		if err != nil {
			return nil, err
		}
		entry.Meta = decoded
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *MessageEmbeddingRepo) DeleteEntries(ctx context.Context, chatID string, messageIDs []string) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	const stmt = `DELETE FROM message_embeddings WHERE chat_id = $1 AND message_id = ANY($2)`
	result, err := r.db.ExecContext(ctx, stmt, chatID, pq.Array(messageIDs))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
