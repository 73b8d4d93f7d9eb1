package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/maya-ai/backend/internal/chat"
	"github.com/maya-ai/backend/internal/ranking"
	"github.com/maya-ai/backend/internal/storage/sqlite"
	"github.com/maya-ai/backend/pkg/logger"
)

type TurnProcessor interface {
	ProcessTurn(ctx context.Context, req chat.TurnRequest) *chat.TurnResponse
	History(ctx context.Context, sessionID string) ([]sqlite.StoredMessage, error)
	Sessions(ctx context.Context, limit int) ([]string, error)
}

type SchemeRanker interface {
	Run(ctx context.Context, query string) ranking.Result
}

type ChatHandler struct {
	service TurnProcessor
	ranker  SchemeRanker
}

func NewChatHandler(service TurnProcessor, ranker SchemeRanker) *ChatHandler {
	return &ChatHandler{
		service: service,
		ranker:  ranker,
	}
}

// HandleAgent is the main conversational endpoint: one user message in, one
// routed specialist response out.
func (h *ChatHandler) HandleAgent(c *fiber.Ctx) error {
	var req struct {
		Message   string         `json:"message"`
		SessionID string         `json:"session_id"`
		Profile   map[string]any `json:"user_profile"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	resp := h.service.ProcessTurn(c.Context(), chat.TurnRequest{
		Message:   req.Message,
		SessionID: req.SessionID,
		Profile:   req.Profile,
	})

	return c.JSON(resp)
}

// HandleSchemeSearch runs the retrieval and ranking pipeline directly,
// bypassing intent classification. Used by the scheme browser view.
func (h *ChatHandler) HandleSchemeSearch(c *fiber.Ctx) error {
	var req struct {
		Message string `json:"message"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message is required",
		})
	}

	result := h.ranker.Run(c.Context(), req.Message)

	return c.JSON(fiber.Map{
		"schemes": result.Schemes,
		"summary": result.Summary,
		"status":  string(result.Status),
	})
}

func (h *ChatHandler) GetSessions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)

	sessions, err := h.service.Sessions(c.Context(), limit)
	if err != nil {
		logger.Error("Failed to list sessions", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list sessions",
		})
	}

	if sessions == nil {
		sessions = []string{}
	}

	return c.JSON(fiber.Map{
		"sessions": sessions,
	})
}

func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	sessionID := c.Params("session_id")
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "session_id is required",
		})
	}

	history, err := h.service.History(c.Context(), sessionID)
	if err != nil {
		logger.Error("Failed to get history",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to get history",
		})
	}

	messages := make([]fiber.Map, 0, len(history))
	for _, m := range history {
		messages = append(messages, fiber.Map{
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt.Unix(),
		})
	}

	return c.JSON(fiber.Map{
		"session_id": sessionID,
		"messages":   messages,
	})
}
