package model

import (
	"encoding/json"
	"fmt"
)

type IndexMetaKind string

const (
	IndexMetaUserTurn      IndexMetaKind = "user_turn"
	IndexMetaAssistantTurn IndexMetaKind = "assistant_turn"
)

// IndexMeta is the typed metadata attached to an index entry. The set of
// implementations is closed: UserTurnMeta and AssistantTurnMeta.
type IndexMeta interface {
	Kind() IndexMetaKind
	owner() Sender
}

type UserTurnMeta struct {
	Model string `json:"model"`
	Agent string `json:"agent"`
}

func (UserTurnMeta) Kind() IndexMetaKind { return IndexMetaUserTurn }
func (UserTurnMeta) owner() Sender       { return SenderUser }

type AssistantTurnMeta struct {
	ModelUsed      string `json:"model_used"`
	ContextEnabled bool   `json:"context_enabled"`
	ContextCount   int    `json:"context_count"`
}

func (AssistantTurnMeta) Kind() IndexMetaKind { return IndexMetaAssistantTurn }
func (AssistantTurnMeta) owner() Sender       { return SenderAssistant }

type indexMetaEnvelope struct {
	Kind IndexMetaKind   `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// CheckIndexMeta verifies that meta is the variant allowed for sender.
func CheckIndexMeta(sender Sender, meta IndexMeta) error {
	if !sender.Valid() {
		return fmt.Errorf("invalid sender %q", sender)
	}
	if meta == nil {
		return fmt.Errorf("missing index metadata for sender %s", sender)
	}
	if meta.owner() != sender {
		return fmt.Errorf("metadata %s not allowed for sender %s", meta.Kind(), sender)
	}
	return nil
}

func EncodeIndexMeta(meta IndexMeta) ([]byte, error) {
	if meta == nil {
		return nil, fmt.Errorf("nil index metadata")
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, err
	}
	return json.Marshal(indexMetaEnvelope{Kind: meta.Kind(), Data: data})
}

func DecodeIndexMeta(sender Sender, raw []byte) (IndexMeta, error) {
	var env indexMetaEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode index metadata: %w", err)
	}
	var meta IndexMeta
	switch env.Kind {
	case IndexMetaUserTurn:
		var m UserTurnMeta
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode user_turn metadata: %w", err)
		}
		meta = m
	case IndexMetaAssistantTurn:
		var m AssistantTurnMeta
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode assistant_turn metadata: %w", err)
		}
		meta = m
	default:
		return nil, fmt.Errorf("unknown index metadata kind %q", env.Kind)
	}
	if err := CheckIndexMeta(sender, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// IndexEntry is the derived, searchable mirror of one message.
type IndexEntry struct {
	ChatID      string    `json:"chat_id"`
	MessageID   string    `json:"message_id"`
	Sender      Sender    `json:"sender"`
	Content     string    `json:"content"`
	Embedding   []float32 `json:"-"`
	Meta        IndexMeta `json:"-"`
	ContentHash string    `json:"content_hash"`
	MsgCtime    int64     `json:"msg_ctime"`
	Mtime       int64     `json:"mtime"`
}

type IndexHit struct {
	ChatID    string  `json:"chat_id"`
	MessageID string  `json:"message_id"`
	Sender    Sender  `json:"sender"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
	MsgCtime  int64   `json:"msg_ctime"`
}
