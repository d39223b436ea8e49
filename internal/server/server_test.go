package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/tag-backend/internal/cache"
	"github.com/shaharia-lab/tag-backend/internal/embedding"
	"github.com/shaharia-lab/tag-backend/internal/graph"
	"github.com/shaharia-lab/tag-backend/internal/intent"
	"github.com/shaharia-lab/tag-backend/internal/manifest"
	"github.com/shaharia-lab/tag-backend/internal/metrics"
	"github.com/shaharia-lab/tag-backend/internal/orchestrator"
	"github.com/shaharia-lab/tag-backend/internal/schema"
	"github.com/shaharia-lab/tag-backend/internal/schemas"
	"github.com/shaharia-lab/tag-backend/internal/sessionstore"
	"github.com/shaharia-lab/tag-backend/internal/sqlbuild"
	"github.com/shaharia-lab/tag-backend/internal/sqlvalidate"
)

// testServer wires a Server around a fallback-only orchestrator with an
// empty manifest, enough to exercise the HTTP surface without a database.
func testServer(t *testing.T) *Server {
	t.Helper()
	catalog := manifest.New(&schemas.SchemaManifest{})
	inspector := schema.NewWithOpener(nil)
	connString := func(*schemas.AgentState) string { return "test-dsn" }

	g := graph.New(graph.Nodes{
		Route:              graph.NewRouteNode(intent.NewRouter(nil)),
		Chat:               graph.NewChatNode(nil),
		Intent:             graph.NewIntentNode(intent.NewIntent(nil), catalog, embedding.NoopEmbedder{}),
		MutationUnderstand: graph.NewMutationUnderstandNode(intent.NewMutationResolver(catalog)),
		SQLBuild:           graph.NewSQLBuildNode(catalog, sqlbuild.New(catalog, nil)),
		SQLValidate:        graph.NewSQLValidateNode(sqlvalidate.New(), inspector, connString),
		SQLExecute:         graph.NewSQLExecuteNode(inspector, connString),
		Respond:            graph.NewRespondNode(),
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := &orchestrator.Orchestrator{
		Graph:        g,
		Sessions:     sessionstore.New(nil, logger),
		Cache:        cache.New(nil, logger),
		Logger:       logger,
		Metrics:      metrics.New(prometheus.NewRegistry()),
		ProviderUsed: "fallback",
	}
	return New(orch, 0)
}

func postJSON(t *testing.T, s *Server, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleChat_StreamsNDJSON(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/chat", schemas.ChatRequest{SessionID: "s1", Message: "translate hello to french"}, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var token map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &token))
	assert.Equal(t, "token", token["type"])

	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &result))
	assert.Equal(t, "result", result["type"])
	assert.Equal(t, "s1", result["session_id"])
}

func TestHandleChat_QueryAliasServesSameHandler(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/query", schemas.ChatRequest{SessionID: "s1", Message: "hello there"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
}

func TestHandleChat_MissingMessageIsBadRequest(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/chat", schemas.ChatRequest{SessionID: "s1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_InvalidBodyIsBadRequest(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleChat_MissingSessionIDGetsMinted(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/chat", schemas.ChatRequest{Message: "hello"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimRight(rec.Body.String(), "\n"), "\n")
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &result))
	assert.NotEmpty(t, result["session_id"])
}

func TestHandleChat_MalformedUserContextHeaderIgnored(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/chat", schemas.ChatRequest{SessionID: "s1", Message: "hello"},
		map[string]string{"x-user-context": "%%%not-base64%%%"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSessionStart_MintsSessionID(t *testing.T) {
	s := testServer(t)
	rec := postJSON(t, s, "/session/start", map[string]any{}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["session_id"])
	assert.NotEmpty(t, body["message"])
}

func TestHealthz(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApplyUserContext_MergesIdentityAndMetadata(t *testing.T) {
	payload := map[string]any{
		"user_id":      "u-9",
		"user_role":    "admin",
		"user_name":    "Pat",
		"company_name": "Acme",
		"company_id":   7,
	}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	header := base64.StdEncoding.EncodeToString(raw)

	req := schemas.ChatRequest{SessionID: "s1", Message: "hi"}
	applyUserContext(&req, header)

	assert.Equal(t, "u-9", req.UserID)
	assert.Equal(t, "admin", req.UserRole)
	assert.Equal(t, "Pat", req.Metadata["user_name"])
	assert.Equal(t, "Acme", req.Metadata["company_name"])
	assert.Equal(t, float64(7), req.Metadata["company_id"])

	// round-trip: decoding then re-encoding the header is byte-stable
	decoded, err := base64.StdEncoding.DecodeString(header)
	require.NoError(t, err)
	assert.Equal(t, header, base64.StdEncoding.EncodeToString(decoded))
}

func TestApplyUserContext_EmptyAndMalformedAreNoOps(t *testing.T) {
	req := schemas.ChatRequest{SessionID: "s1", Message: "hi"}
	applyUserContext(&req, "")
	applyUserContext(&req, "!!!!")
	applyUserContext(&req, base64.StdEncoding.EncodeToString([]byte("not a json object")))

	assert.Empty(t, req.UserID)
	assert.Nil(t, req.Metadata)
}
