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

var chatColumns = []string{"id", "user_id", "title", "model", "agent", "state", "msg_seq", "ctime", "mtime"}

type ChatRepo struct {
	db       *sql.DB
	messages *MessageRepo
}

func NewChatRepo(db *sql.DB, messages *MessageRepo) *ChatRepo {
	return &ChatRepo{db: db, messages: messages}
}

// CreateWithMessage inserts the chat and its first message in one transaction.
func (r *ChatRepo) CreateWithMessage(ctx context.Context, chat *model.Chat, first *model.Message) error {
	return dbutil.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		if first != nil {
			chat.MsgSeq = 1
			first.Seq = 1
		}
		data := map[string]interface{}{
			"id":      chat.ID,
			"user_id": chat.UserID,
			"title":   chat.Title,
			"model":   chat.Model,
			"agent":   chat.Agent,
			"state":   ChatStateNormal,
			"msg_seq": chat.MsgSeq,
			"ctime":   chat.Ctime,
			"mtime":   chat.Mtime,
		}
		sqlStr, args, err := builder.BuildInsert("chats", []map[string]interface{}{data})
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			if dbutil.IsConflict(err) {
				return appErr.ErrConflict
			}
			return err
		}
		chat.State = ChatStateNormal
		if first == nil {
			return nil
		}
		return r.messages.insert(ctx, tx, first)
	})
}

func (r *ChatRepo) GetByID(ctx context.Context, userID, chatID string) (*model.Chat, error) {
	return r.get(ctx, map[string]interface{}{
		"id":      chatID,
		"user_id": userID,
		"state":   ChatStateNormal,
	})
}

// Find loads a chat without an owner check; background jobs use it.
func (r *ChatRepo) Find(ctx context.Context, chatID string) (*model.Chat, error) {
	return r.get(ctx, map[string]interface{}{
		"id":    chatID,
		"state": ChatStateNormal,
	})
}

func (r *ChatRepo) get(ctx context.Context, where map[string]interface{}) (*model.Chat, error) {
	sqlStr, args, err := builder.BuildSelect("chats", where, chatColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, appErr.ErrNotFound
	}
	chat, err := scanChat(rows)
	if err != nil {
		return nil, err
	}
	return chat, nil
}

func (r *ChatRepo) Exists(ctx context.Context, chatID string) (bool, error) {
	sqlStr, args := dbutil.Finalize("SELECT COUNT(*) FROM chats WHERE id=? AND state=?", []interface{}{chatID, ChatStateNormal})
	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByUser returns the user's chats, most recent first.
func (r *ChatRepo) ListByUser(ctx context.Context, userID string) ([]model.Chat, error) {
	where := map[string]interface{}{
		"user_id":  userID,
		"state":    ChatStateNormal,
		"_orderby": "ctime desc, id desc",
	}
	sqlStr, args, err := builder.BuildSelect("chats", where, chatColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	chats := make([]model.Chat, 0)
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, *chat)
	}
	return chats, rows.Err()
}

func (r *ChatRepo) ListIDs(ctx context.Context) ([]string, error) {
	sqlStr, args := dbutil.Finalize("SELECT id FROM chats WHERE state=? ORDER BY ctime ASC", []interface{}{ChatStateNormal})
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
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

func (r *ChatRepo) UpdateTitle(ctx context.Context, userID, chatID, title string, mtime int64) error {
	where := map[string]interface{}{
		"id":      chatID,
		"user_id": userID,
		"state":   ChatStateNormal,
	}
	update := map[string]interface{}{
		"title": title,
		"mtime": mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("chats", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// DeleteWithMessages removes the chat row and all of its messages atomically
// and returns the number of messages deleted.
func (r *ChatRepo) DeleteWithMessages(ctx context.Context, userID, chatID string) (int64, error) {
	var deleted int64
	err := dbutil.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		lockSQL, lockArgs := dbutil.Finalize("SELECT id FROM chats WHERE id=? AND user_id=? AND state=? FOR UPDATE", []interface{}{chatID, userID, ChatStateNormal})
		var id string
		if err := tx.QueryRowContext(ctx, lockSQL, lockArgs...).Scan(&id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErr.ErrNotFound
			}
			return err
		}
		count, err := r.messages.DeleteAllForChat(ctx, tx, chatID)
		if err != nil {
			return err
		}
		sqlStr, args, err := builder.BuildDelete("chats", map[string]interface{}{"id": chatID, "user_id": userID})
		if err != nil {
			return err
		}
		sqlStr, args = dbutil.Finalize(sqlStr, args)
		if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
			return err
		}
		deleted = count
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func scanChat(rows *sql.Rows) (*model.Chat, error) {
	var chat model.Chat
	if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Model, &chat.Agent, &chat.State, &chat.MsgSeq, &chat.Ctime, &chat.Mtime); err != nil {
		return nil, err
	}
	return &chat, nil
}
