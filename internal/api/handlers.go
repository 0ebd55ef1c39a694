package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"dirchat/internal/models"
	"dirchat/internal/service/conversation"
)

// Conversation is the orchestrator surface the handlers depend on.
type Conversation interface {
	StartChat(ctx context.Context, name, email string) (*models.Chat, *models.User, error)
	PostMessage(ctx context.Context, chatID int64, text string) (*conversation.Reply, error)
	Chat(ctx context.Context, chatID int64) (*models.Chat, error)
}

// Handler wires HTTP routes to the conversation service.
type Handler struct {
	conv Conversation
}

// NewHandler constructs a Handler instance.
func NewHandler(conv Conversation) *Handler {
	return &Handler{conv: conv}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.GET("/health", h.health)
	chat := api.Group("/chat")
	chat.POST("/start", h.startChat)
	chat.POST("/message", h.postMessage)
	chat.GET("/:chatId", h.getChat)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type startRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) startChat(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input data", "details": err.Error()})
		return
	}
	chat, user, err := h.conv.StartChat(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		if conversation.IsValidation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input data", "details": err.Error()})
			return
		}
		log.Printf("start chat: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chatId": chat.ID, "userId": user.ID})
}

type messageRequest struct {
	ChatID  int64  `json:"chatId" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func (h *Handler) postMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid input data", "details": err.Error()})
		return
	}
	reply, err := h.conv.PostMessage(c.Request.Context(), req.ChatID, req.Message)
	if err != nil {
		switch {
		case errors.Is(err, conversation.ErrChatNotFound), errors.Is(err, conversation.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			log.Printf("post message chat %d: %v", req.ChatID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "An unexpected error occurred"})
		}
		return
	}
	c.JSON(http.StatusOK, reply)
}

func (h *Handler) getChat(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("chatId"), 10, 64)
	if err != nil || chatID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat id"})
		return
	}
	chat, err := h.conv.Chat(c.Request.Context(), chatID)
	if err != nil {
		if errors.Is(err, conversation.ErrChatNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Chat not found"})
			return
		}
		log.Printf("get chat %d: %v", chatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch chat"})
		return
	}
	c.JSON(http.StatusOK, chat)
}
