package mcpgateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(echoTool()))
	return Handler(reg)
}

func TestHandler_Search(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/search?q=echo", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Tools []SearchResult `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tools, 1)
	assert.Equal(t, "echo", body.Tools[0].Name)
}

func TestHandler_ExecuteSuccess(t *testing.T) {
	h := newTestHandler(t)

	payload, err := json.Marshal(executeRequest{Name: "echo", Arguments: map[string]any{"message": "hi"}})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Result string `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "hi", body.Result)
}

func TestHandler_ExecuteUnknownToolReturns404(t *testing.T) {
	h := newTestHandler(t)

	payload, err := json.Marshal(executeRequest{Name: "missing"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_ExecuteMalformedBodyReturns400(t *testing.T) {
	h := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
