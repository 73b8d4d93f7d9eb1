package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maya-ai/backend/internal/chat"
	"github.com/maya-ai/backend/internal/model"
	"github.com/maya-ai/backend/internal/ranking"
	"github.com/maya-ai/backend/internal/storage/sqlite"
)

type fakeService struct {
	response    *chat.TurnResponse
	history     []sqlite.StoredMessage
	sessions    []string
	historyErr  error
	sessionsErr error
	gotRequest  chat.TurnRequest
}

func (f *fakeService) ProcessTurn(ctx context.Context, req chat.TurnRequest) *chat.TurnResponse {
	f.gotRequest = req
	return f.response
}

func (f *fakeService) History(ctx context.Context, sessionID string) ([]sqlite.StoredMessage, error) {
	return f.history, f.historyErr
}

func (f *fakeService) Sessions(ctx context.Context, limit int) ([]string, error) {
	return f.sessions, f.sessionsErr
}

type fakeRanker struct {
	result ranking.Result
}

func (f *fakeRanker) Run(ctx context.Context, query string) ranking.Result {
	return f.result
}

func newTestApp(service TurnProcessor, ranker SchemeRanker) *fiber.App {
	h := NewChatHandler(service, ranker)

	app := fiber.New()
	app.Post("/api/chat/agent", h.HandleAgent)
	app.Post("/api/chat/schemes", h.HandleSchemeSearch)
	app.Get("/api/history/sessions", h.GetSessions)
	app.Get("/api/history/:session_id", h.GetHistory)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) *http.Response {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHandleAgentReturnsTurnResponse(t *testing.T) {
	service := &fakeService{response: &chat.TurnResponse{
		Response:  "Here are two schemes.",
		Agent:     "scheme",
		SessionID: "session-1",
		Schemes:   []model.Scheme{{ID: "mudra", Name: "Mudra Loan"}},
		Status:    "success",
	}}
	app := newTestApp(service, &fakeRanker{})

	resp := postJSON(t, app, "/api/chat/agent", map[string]any{
		"message":    "loans for my bakery",
		"session_id": "session-1",
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "Here are two schemes.", body["response"])
	assert.Equal(t, "scheme", body["agent"])
	assert.Equal(t, "session-1", body["session_id"])
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, "loans for my bakery", service.gotRequest.Message)
}

func TestHandleAgentRejectsEmptyMessage(t *testing.T) {
	app := newTestApp(&fakeService{}, &fakeRanker{})

	resp := postJSON(t, app, "/api/chat/agent", map[string]any{"message": ""})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAgentRejectsMalformedBody(t *testing.T) {
	app := newTestApp(&fakeService{}, &fakeRanker{})

	req := httptest.NewRequest(http.MethodPost, "/api/chat/agent", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleAgentPassesProfileThrough(t *testing.T) {
	service := &fakeService{response: &chat.TurnResponse{Status: "success"}}
	app := newTestApp(service, &fakeRanker{})

	postJSON(t, app, "/api/chat/agent", map[string]any{
		"message":      "schemes for me",
		"user_profile": map[string]any{"industry": "textiles", "location": "Surat"},
	})

	require.NotNil(t, service.gotRequest.Profile)
	assert.Equal(t, "textiles", service.gotRequest.Profile["industry"])
}

func TestHandleSchemeSearch(t *testing.T) {
	ranker := &fakeRanker{result: ranking.Result{
		Schemes: []model.Scheme{{ID: "cgtmse", Name: "CGTMSE"}},
		Summary: "One match.",
		Status:  ranking.StatusOK,
	}}
	app := newTestApp(&fakeService{}, ranker)

	resp := postJSON(t, app, "/api/chat/schemes", map[string]any{"message": "credit guarantee"})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "One match.", body["summary"])
	assert.Equal(t, "ok", body["status"])
	schemes, ok := body["schemes"].([]any)
	require.True(t, ok)
	assert.Len(t, schemes, 1)
}

func TestGetSessions(t *testing.T) {
	service := &fakeService{sessions: []string{"s1", "s2"}}
	app := newTestApp(service, &fakeRanker{})

	req := httptest.NewRequest(http.MethodGet, "/api/history/sessions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	assert.Len(t, sessions, 2)
}

func TestGetSessionsErrorReturns500(t *testing.T) {
	service := &fakeService{sessionsErr: errors.New("db gone")}
	app := newTestApp(service, &fakeRanker{})

	req := httptest.NewRequest(http.MethodGet, "/api/history/sessions", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetHistory(t *testing.T) {
	service := &fakeService{history: []sqlite.StoredMessage{
		{Role: "user", Content: "hi", CreatedAt: time.Unix(1700000000, 0)},
		{Role: "assistant", Content: "hello", CreatedAt: time.Unix(1700000001, 0)},
	}}
	app := newTestApp(service, &fakeRanker{})

	req := httptest.NewRequest(http.MethodGet, "/api/history/session-1", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "session-1", body["session_id"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	first := messages[0].(map[string]any)
	assert.Equal(t, "user", first["role"])
	assert.Equal(t, "hi", first["content"])
}

func TestGetHistoryEmptySessionStillWellFormed(t *testing.T) {
	app := newTestApp(&fakeService{}, &fakeRanker{})

	req := httptest.NewRequest(http.MethodGet, "/api/history/unknown", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Empty(t, messages)
}
