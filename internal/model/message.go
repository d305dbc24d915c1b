package model

// Sender is the author role of a message. Only SenderUser and SenderAssistant are valid.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAssistant
}

func (s Sender) String() string {
	return string(s)
}

type Message struct {
	ID        string `json:"id"`
	ChatID    string `json:"chat_id"`
	Seq       int64  `json:"seq"`
	Sender    Sender `json:"sender"`
	Content   string `json:"content"`
	ModelUsed string `json:"model_used,omitempty"`
	Ctime     int64  `json:"ctime"`
}
