package httpadapter_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/cep-weather-assistant/internal/adapter/httpadapter"
	"github.com/couchcryptid/cep-weather-assistant/internal/chat"
	"github.com/couchcryptid/cep-weather-assistant/internal/domain"
	"github.com/couchcryptid/cep-weather-assistant/internal/session"
)

type mockChat struct {
	readyErr  error
	reply     chat.Reply
	handleErr error
	turns     map[string]domain.History

	gotID   string
	gotText string
}

func (m *mockChat) CheckReadiness(_ context.Context) error { return m.readyErr }

func (m *mockChat) Handle(_ context.Context, id, text string) (chat.Reply, error) {
	m.gotID, m.gotText = id, text
	if m.handleErr != nil {
		return chat.Reply{}, m.handleErr
	}
	return m.reply, nil
}

func (m *mockChat) Conversation(id string) (domain.History, error) {
	h, ok := m.turns[id]
	if !ok {
		return nil, session.ErrUnknownConversation
	}
	return h, nil
}

func newTestServer(m *mockChat) *httpadapter.Server {
	return httpadapter.NewServer(":0", m, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func post(srv http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.ServeHTTP(rec, req)
	return rec
}

func TestChat_ReturnsFlattenedOutcome(t *testing.T) {
	m := &mockChat{reply: chat.Reply{
		ConversationID: "conv-1",
		Outcome: domain.Outcome{
			Action:         domain.ActionConsultZipCode,
			InitialMessage: "Consultando o CEP 01310-100...",
			FinalMessage:   "CEP 01310-100:\nAvenida Paulista",
			Result:         domain.AddressOnly{Address: domain.AddressRecord{ZipCode: "01310100", City: "São Paulo", State: "SP"}},
		},
	}}
	rec := post(newTestServer(m), `{"conversation_id":"conv-1","message":"CEP 01310-100"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "conv-1", m.gotID)
	assert.Equal(t, "CEP 01310-100", m.gotText)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conv-1", body["conversation_id"])
	assert.Equal(t, "CONSULT_ZIP_CODE", body["action"])
	assert.Equal(t, "Consultando o CEP 01310-100...", body["initial_message"])
	address, ok := body["address"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "01310100", address["zip_code"])
	assert.NotContains(t, body, "forecast")
}

func TestChat_BadJSON(t *testing.T) {
	rec := post(newTestServer(&mockChat{}), `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat_EmptyMessage(t *testing.T) {
	rec := post(newTestServer(&mockChat{handleErr: chat.ErrEmptyMessage}), `{"message":"  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "message is empty", body["error"])
}

func TestChat_InternalError(t *testing.T) {
	rec := post(newTestServer(&mockChat{handleErr: errors.New("boom")}), `{"message":"oi"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestChat_MethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&mockChat{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestConversation(t *testing.T) {
	m := &mockChat{turns: map[string]domain.History{
		"conv-1": {
			{Role: domain.RoleUser, Content: "tempo em Ibitinga"},
			{Role: domain.RoleAssistant, Content: "Qual delas?", Payload: &domain.TurnPayload{Action: domain.ActionMultipleCities}},
		},
	}}
	srv := newTestServer(m)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations/conv-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		ConversationID string        `json:"conversation_id"`
		Turns          []domain.Turn `json:"turns"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conv-1", body.ConversationID)
	require.Len(t, body.Turns, 2)
	assert.Equal(t, domain.ActionMultipleCities, body.Turns[1].Payload.Action)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/conversations/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthzReturns200(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&mockChat{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns503WhenDraining(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&mockChat{readyErr: fmt.Errorf("service is shutting down")}).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "service is shutting down", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(&mockChat{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
