package model

type Chat struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Model  string `json:"model"`
	Agent  string `json:"agent"`
	State  int    `json:"state"`
	MsgSeq int64  `json:"msg_seq"`
	Ctime  int64  `json:"ctime"`
	Mtime  int64  `json:"mtime"`
}

type ChatSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
