package handlers

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"restaurantrec/internal/models"
)

// ChatProcessor is the conversation surface the chat routes need
type ChatProcessor interface {
	ProcessMessage(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error)
	GetSession(ctx context.Context, id string) (*models.ChatSession, bool, error)
	DeleteSession(ctx context.Context, id string) (bool, error)
}

// ChatHandler handles chat and session endpoints
type ChatHandler struct {
	chat    ChatProcessor
	timeout time.Duration
}

// NewChatHandler creates a new chat handler. timeout bounds a whole turn.
func NewChatHandler(chat ChatProcessor, timeout time.Duration) *ChatHandler {
	if timeout <= 0 {
		timeout = 3 * time.Minute
	}
	return &ChatHandler{chat: chat, timeout: timeout}
}

// Chat processes a message and returns recommendations
// POST /api/v1/chat
func (h *ChatHandler) Chat(c *fiber.Ctx) error {
	var req models.ChatRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), h.timeout)
	defer cancel()

	resp, err := h.chat.ProcessMessage(ctx, req)
	if err != nil {
		log.Printf("❌ [CHAT-API] Error processing chat request: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process chat request",
		})
	}
	return c.JSON(resp)
}

// GetSession returns the message history of a session
// GET /api/v1/chat/session/:id
func (h *ChatHandler) GetSession(c *fiber.Ctx) error {
	session, found, err := h.chat.GetSession(c.UserContext(), c.Params("id"))
	if err != nil {
		log.Printf("❌ [CHAT-API] Failed to load session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load session",
		})
	}
	if !found {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.JSON(session)
}

// DeleteSession clears a session
// DELETE /api/v1/chat/session/:id
func (h *ChatHandler) DeleteSession(c *fiber.Ctx) error {
	deleted, err := h.chat.DeleteSession(c.UserContext(), c.Params("id"))
	if err != nil {
		log.Printf("❌ [CHAT-API] Failed to delete session: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear session",
		})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Session not found",
		})
	}
	return c.JSON(fiber.Map{"message": "Session cleared successfully"})
}
