package model

type ContextItem struct {
	MessageID string  `json:"message_id"`
	Sender    Sender  `json:"sender"`
	Content   string  `json:"content"`
	Score     float32 `json:"score"`
	Ctime     int64   `json:"ctime"`
}

type ContextResult struct {
	Query string        `json:"query"`
	Items []ContextItem `json:"context_messages"`
}

func (r *ContextResult) Count() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}
