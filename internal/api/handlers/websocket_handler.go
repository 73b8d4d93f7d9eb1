package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/maya-ai/backend/internal/chat"
	"github.com/maya-ai/backend/pkg/logger"
)

type WebSocketHandler struct {
	service TurnProcessor
}

func NewWebSocketHandler(service TurnProcessor) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
	}
}

// HandleConnection serves one chat connection: each incoming message is
// processed as a full turn, the response streamed back word by word, then a
// complete frame with the structured payload.
func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string         `json:"type"`
			Message   string         `json:"message"`
			SessionID string         `json:"session_id"`
			Profile   map[string]any `json:"user_profile"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Debug("WebSocket read ended", zap.Error(err))
			break
		}

		if msg.Type != "chat" || msg.Message == "" {
			continue
		}

		err = h.streamTurn(c, chat.TurnRequest{
			Message:   msg.Message,
			SessionID: msg.SessionID,
			Profile:   msg.Profile,
		})
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process message")
		}
	}
}

func (h *WebSocketHandler) streamTurn(c *websocket.Conn, req chat.TurnRequest) error {
	h.sendChunk(c, "status", "Thinking...")

	resp := h.service.ProcessTurn(context.Background(), req)

	words := splitIntoWords(resp.Response)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(map[string]interface{}{
		"type":       "complete",
		"agent":      resp.Agent,
		"session_id": resp.SessionID,
		"schemes":    resp.Schemes,
		"status":     resp.Status,
	})
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(map[string]interface{}{
		"type":    msgType,
		"content": content,
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	c.WriteJSON(map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	})
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
