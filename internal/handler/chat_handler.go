package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chatctx/internal/model"
	"github.com/xxxsen/chatctx/internal/pkg/response"
	"github.com/xxxsen/chatctx/internal/service"
)

type ChatHandler struct {
	chats *service.ChatService
}

func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

type createChatRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
	Agent string `json:"agent"`
}

type createChatResponse struct {
	ChatID   string            `json:"chat_id"`
	Title    string            `json:"title"`
	Model    string            `json:"model"`
	Agent    string            `json:"agent"`
	Ctime    int64             `json:"ctime"`
	Messages []*model.Message  `json:"messages"`
	Warnings []service.Warning `json:"warnings"`
}

type renameChatRequest struct {
	Title string `json:"title"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
	// EnableContext defaults to true when omitted.
	EnableContext *bool `json:"enable_context"`
}

type sendMessageResponse struct {
	UserMessage      *model.Message    `json:"user_message"`
	AssistantMessage *model.Message    `json:"assistant_message"`
	ContextUsed      int               `json:"context_used"`
	Warnings         []service.Warning `json:"warnings"`
}

type contextRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type contextResponse struct {
	Query           string              `json:"query"`
	ContextMessages []model.ContextItem `json:"context_messages"`
	ContextCount    int                 `json:"context_count"`
}

func (h *ChatHandler) Create(c *gin.Context) {
	var req createChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	res, err := h.chats.CreateChat(c.Request.Context(), getUserID(c), req.Title, req.Model, req.Agent)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, createChatResponse{
		ChatID:   res.Chat.ID,
		Title:    res.Chat.Title,
		Model:    res.Chat.Model,
		Agent:    res.Chat.Agent,
		Ctime:    res.Chat.Ctime,
		Messages: res.Messages,
		Warnings: res.Warnings,
	})
}

func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.chats.ListChatsForUser(c.Request.Context(), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, chats)
}

func (h *ChatHandler) Get(c *gin.Context) {
	detail, err := h.chats.GetChat(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}

func (h *ChatHandler) Rename(c *gin.Context) {
	var req renameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	chat, err := h.chats.RenameChat(c.Request.Context(), c.Param("id"), getUserID(c), req.Title)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, model.ChatSummary{ID: chat.ID, Title: chat.Title})
}

func (h *ChatHandler) Delete(c *gin.Context) {
	res, err := h.chats.DeleteChat(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	enable := true
	if req.EnableContext != nil {
		enable = *req.EnableContext
	}
	res, err := h.chats.SendMessage(c.Request.Context(), c.Param("id"), getUserID(c), req.Content, enable)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, sendMessageResponse{
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
		ContextUsed:      res.ContextCount,
		Warnings:         res.Warnings,
	})
}

func (h *ChatHandler) Context(c *gin.Context) {
	var req contextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	res, err := h.chats.GetContextForQuery(c.Request.Context(), c.Param("id"), getUserID(c), req.Query, req.Limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, contextResponse{
		Query:           res.Query,
		ContextMessages: res.Items,
		ContextCount:    res.Count(),
	})
}

func (h *ChatHandler) Reindex(c *gin.Context) {
	res, err := h.chats.RebuildIndex(c.Request.Context(), c.Param("id"), getUserID(c))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}
