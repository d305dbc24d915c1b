package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/chatctx/internal/model"
	"github.com/xxxsen/chatctx/internal/pkg/dbutil"
	appErr "github.com/xxxsen/chatctx/internal/pkg/errors"
)

var messageColumns = []string{"id", "chat_id", "seq", "sender", "content", "model_used", "ctime"}

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append allocates the next sequence number of the chat and inserts msg in
// the same transaction. The chat row is locked by the UPDATE, so concurrent
// appends to one chat serialize on it.
func (r *MessageRepo) Append(ctx context.Context, msg *model.Message) error {
	return dbutil.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		seqSQL, seqArgs := dbutil.Finalize(
			"UPDATE chats SET msg_seq = msg_seq + 1, mtime = ? WHERE id = ? AND state = ? RETURNING msg_seq",
			[]interface{}{msg.Ctime, msg.ChatID, ChatStateNormal},
		)
		var seq int64
		if err := tx.QueryRowContext(ctx, seqSQL, seqArgs...).Scan(&seq); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErr.ErrNotFound
			}
			return err
		}
		msg.Seq = seq
		return r.insert(ctx, tx, msg)
	})
}

func (r *MessageRepo) insert(ctx context.Context, db execer, msg *model.Message) error {
	data := map[string]interface{}{
		"id":         msg.ID,
		"chat_id":    msg.ChatID,
		"seq":        msg.Seq,
		"sender":     string(msg.Sender),
		"content":    msg.Content,
		"model_used": msg.ModelUsed,
		"ctime":      msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

// ListByChat returns the chat's messages in ascending sequence order.
func (r *MessageRepo) ListByChat(ctx context.Context, chatID string) ([]model.Message, error) {
	where := map[string]interface{}{
		"chat_id":  chatID,
		"_orderby": "seq asc",
	}
	return r.list(ctx, where)
}

func (r *MessageRepo) ListByIDs(ctx context.Context, chatID string, ids []string) ([]model.Message, error) {
	if len(ids) == 0 {
		return []model.Message{}, nil
	}
	values := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		values = append(values, id)
	}
	where := map[string]interface{}{
		"chat_id":     chatID,
		"_custom_ids": builder.In{"id": values},
		"_orderby":    "seq asc",
	}
	return r.list(ctx, where)
}

// DeleteAllForChat must run inside the transaction that deletes the chat row.
func (r *MessageRepo) DeleteAllForChat(ctx context.Context, tx *sql.Tx, chatID string) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("messages", map[string]interface{}{"chat_id": chatID})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := tx.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *MessageRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Message, error) {
	sqlStr, args, err := builder.BuildSelect("messages", where, messageColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	messages := make([]model.Message, 0)
	for rows.Next() {
		var msg model.Message
		var sender string
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Seq, &sender, &msg.Content, &msg.ModelUsed, &msg.Ctime); err != nil {
			return nil, err
		}
		msg.Sender = model.Sender(sender)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
