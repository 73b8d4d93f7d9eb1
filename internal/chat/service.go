package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maya-ai/backend/internal/agents"
	"github.com/maya-ai/backend/internal/metrics"
	"github.com/maya-ai/backend/internal/model"
	"github.com/maya-ai/backend/internal/ranking"
	"github.com/maya-ai/backend/internal/storage/sqlite"
	"github.com/maya-ai/backend/pkg/logger"
)

const unavailableResponse = "I'm having trouble processing your request right now. " +
	"Please try again in a moment."

type Engine interface {
	Execute(ctx context.Context, state agents.ChatState) (agents.ChatState, error)
}

type HistoryStore interface {
	AppendMessage(ctx context.Context, sessionID, role, content string) error
	GetHistory(ctx context.Context, sessionID string, limit int) ([]sqlite.StoredMessage, error)
	ListSessions(ctx context.Context, limit int) ([]string, error)
}

type TurnRequest struct {
	Message   string
	SessionID string
	Profile   map[string]any
}

type TurnResponse struct {
	Response  string         `json:"response"`
	Agent     string         `json:"agent"`
	SessionID string         `json:"session_id"`
	Schemes   []model.Scheme `json:"schemes"`
	Status    string         `json:"status"`
}

// Service owns one conversation turn end to end: load history, run the
// dispatch graph, persist both sides of the exchange.
type Service struct {
	engine       Engine
	history      HistoryStore
	historyLimit int
}

func NewService(engine Engine, history HistoryStore, historyLimit int) *Service {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	return &Service{
		engine:       engine,
		history:      history,
		historyLimit: historyLimit,
	}
}

// ProcessTurn never returns an error to the transport layer: any failure
// degrades to a well-formed response the frontend can render.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (resp *TurnResponse) {
	start := time.Now()

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Turn processing panicked",
				zap.String("session_id", sessionID),
				zap.Any("panic", r),
			)
			metrics.TurnsTotal.WithLabelValues("unknown", "error").Inc()
			resp = &TurnResponse{
				Response:  unavailableResponse,
				Agent:     agents.AgentGeneral,
				SessionID: sessionID,
				Schemes:   []model.Scheme{},
				Status:    "error",
			}
		}
	}()

	state := agents.ChatState{
		Messages: s.loadHistory(ctx, sessionID),
		Profile:  req.Profile,
	}
	state = state.WithMessage(agents.RoleUser, req.Message)

	final, err := s.engine.Execute(ctx, state)
	if err != nil {
		logger.Error("Dispatch graph failed",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		metrics.TurnsTotal.WithLabelValues(final.CurrentAgent, "error").Inc()
		s.persist(ctx, sessionID, req.Message, unavailableResponse)
		return &TurnResponse{
			Response:  unavailableResponse,
			Agent:     agents.AgentGeneral,
			SessionID: sessionID,
			Schemes:   []model.Scheme{},
			Status:    "error",
		}
	}

	response := final.LastResponse()
	s.persist(ctx, sessionID, req.Message, response)

	metrics.TurnDuration.WithLabelValues(final.CurrentAgent).Observe(time.Since(start).Seconds())
	metrics.TurnsTotal.WithLabelValues(final.CurrentAgent, "success").Inc()

	logger.Info("Turn processed",
		zap.String("session_id", sessionID),
		zap.String("agent", final.CurrentAgent),
		zap.Int("schemes", len(final.Schemes)),
		zap.Duration("duration", time.Since(start)),
	)

	schemes := final.Schemes
	if schemes == nil {
		schemes = []model.Scheme{}
	}

	// A connectivity failure inside the ranking pipeline surfaces as a
	// distinct degraded status rather than a generic error.
	status := "success"
	if final.PipelineStatus == ranking.StatusStoreUnavailable {
		status = "degraded"
	}

	return &TurnResponse{
		Response:  response,
		Agent:     final.CurrentAgent,
		SessionID: sessionID,
		Schemes:   schemes,
		Status:    status,
	}
}

// History returns the stored transcript for a session in chronological order.
func (s *Service) History(ctx context.Context, sessionID string) ([]sqlite.StoredMessage, error) {
	return s.history.GetHistory(ctx, sessionID, s.historyLimit)
}

// Sessions returns known session ids, most recently active first.
func (s *Service) Sessions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = s.historyLimit
	}
	return s.history.ListSessions(ctx, limit)
}

// loadHistory is best-effort: a failed read starts the turn with an empty
// transcript instead of failing it.
func (s *Service) loadHistory(ctx context.Context, sessionID string) []agents.Message {
	if s.history == nil {
		return nil
	}

	stored, err := s.history.GetHistory(ctx, sessionID, s.historyLimit)
	if err != nil {
		logger.Warn("Failed to load history",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		return nil
	}

	messages := make([]agents.Message, 0, len(stored))
	for _, m := range stored {
		messages = append(messages, agents.Message{Role: m.Role, Content: m.Content})
	}
	return messages
}

// persist is best-effort for the same reason: losing one transcript entry is
// better than losing the turn.
func (s *Service) persist(ctx context.Context, sessionID, userMessage, response string) {
	if s.history == nil {
		return
	}

	if err := s.history.AppendMessage(ctx, sessionID, agents.RoleUser, userMessage); err != nil {
		logger.Warn("Failed to persist user message",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
	if response == "" {
		return
	}
	if err := s.history.AppendMessage(ctx, sessionID, agents.RoleAssistant, response); err != nil {
		logger.Warn("Failed to persist assistant message",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}
