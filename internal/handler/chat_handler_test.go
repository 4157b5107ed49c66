package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-assistant/internal/conversation"
	"chat-assistant/internal/emailcheck"
	"chat-assistant/internal/mailer"
	"chat-assistant/internal/matcher"
	"chat-assistant/internal/moderation"
	"chat-assistant/internal/otp"
	"chat-assistant/internal/repository/memory"
	"chat-assistant/internal/responder"
	"chat-assistant/internal/service"
)

type okResolver struct{}

func (okResolver) LookupMX(context.Context, string) ([]*net.MX, error) {
	return []*net.MX{{Host: "mx.example.com.", Pref: 10}}, nil
}

func (okResolver) LookupIP(context.Context, string, string) ([]net.IP, error) {
	return []net.IP{net.IPv4(192, 0, 2, 1)}, nil
}

type nopSender struct{}

func (nopSender) Send(context.Context, mailer.Email) (string, error) { return "id", nil }

type healthStub map[string]error

func (h healthStub) HealthCheck(context.Context) map[string]error { return h }

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type testServer struct {
	router http.Handler
	store  *memory.SessionStore
}

func newTestServer(t *testing.T, health HealthChecker) *testServer {
	t.Helper()
	cat, err := matcher.LoadCatalog("")
	require.NoError(t, err)
	validator := emailcheck.NewValidator(nil, emailcheck.WithResolver(okResolver{}))

	ctl := conversation.NewController(conversation.Deps{
		Validator: validator,
		Codes:     otp.NewManager(nopSender{}, nil),
		Filter:    moderation.NewFilter(nil, nil, "", nil),
		Matcher:   matcher.New(cat),
		Responder: responder.New(cat, nil, nil),
		Catalog:   cat,
	}, conversation.Settings{ContactEmail: "sales@example.com"}, nil)

	store := memory.NewSessionStore(time.Hour)
	svc := service.NewChatService(ctl, store, validator, nil)
	router := NewRouter(NewChatHandler(svc, nil), health, RouterOptions{}, nil)
	return &testServer{router: router, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, apiResponse) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (s *testServer) create(t *testing.T) service.SessionView {
	t.Helper()
	code, resp := s.do(t, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, code)
	var view service.SessionView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	return view
}

func decodeView(t *testing.T, resp apiResponse) service.SessionView {
	t.Helper()
	var view service.SessionView
	require.NoError(t, json.Unmarshal(resp.Data, &view))
	return view
}

func TestCreateSessionReturnsGreeting(t *testing.T) {
	srv := newTestServer(t, nil)

	view := srv.create(t)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, conversation.PhaseAwaitingEmail, view.Phase)
	require.Len(t, view.Messages, 1)
	assert.Equal(t, conversation.RoleAssistant, view.Messages[0].Role)
}

func TestFullFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t, nil)
	view := srv.create(t)
	base := "/api/v1/sessions/" + view.ID

	code, resp := srv.do(t, http.MethodPost, base+"/messages", `{"text":"ops@acme-shipping.com"}`)
	require.Equal(t, http.StatusOK, code)
	view = decodeView(t, resp)
	require.Equal(t, conversation.PhaseAwaitingOtp, view.Phase)
	require.NotNil(t, view.AttemptsRemaining)
	assert.NotContains(t, string(resp.Data), `"code"`)

	sess, err := srv.store.Get(context.Background(), view.ID)
	require.NoError(t, err)

	code, resp = srv.do(t, http.MethodPost, base+"/messages", `{"text":"`+sess.OTP.Code+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, conversation.PhaseAwaitingSelection, decodeView(t, resp).Phase)

	code, resp = srv.do(t, http.MethodPost, base+"/selection", `{"topic":"services"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, conversation.PhaseFreeChat, decodeView(t, resp).Phase)

	code, _ = srv.do(t, http.MethodPost, base+"/otp/resend", "")
	assert.Equal(t, http.StatusConflict, code)

	code, resp = srv.do(t, http.MethodPost, base+"/end", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, conversation.PhaseEnded, decodeView(t, resp).Phase)

	code, resp = srv.do(t, http.MethodPost, base+"/messages", `{"text":"hello"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, resp.Success)
	assert.Equal(t, conversation.ErrSessionEnded.Error(), resp.Error)
}

func TestErrorStatusCodes(t *testing.T) {
	srv := newTestServer(t, nil)
	view := srv.create(t)
	base := "/api/v1/sessions/" + view.ID

	code, _ := srv.do(t, http.MethodGet, "/api/v1/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, code)

	code, resp := srv.do(t, http.MethodPost, base+"/messages", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, ErrInvalidBody.Error(), resp.Error)

	code, _ = srv.do(t, http.MethodPost, base+"/messages", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = srv.do(t, http.MethodPost, base+"/selection", `{"topic":"products"}`)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = srv.do(t, http.MethodGet, "/api/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, code)

	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, base+"/reset", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestExportSetsAttachment(t *testing.T) {
	srv := newTestServer(t, nil)
	view := srv.create(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+view.ID+"/export", nil)
	rec := httptest.NewRecorder()
	srv.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), "attachment;"))
	var export struct {
		Messages []conversation.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &export))
	assert.Len(t, export.Messages, 1)
}

func TestValidateEmailEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)

	code, resp := srv.do(t, http.MethodPost, "/api/v1/email/validate", `{"email":"someone@gmail.com"}`)
	require.Equal(t, http.StatusOK, code)
	var res emailcheck.Result
	require.NoError(t, json.Unmarshal(resp.Data, &res))
	assert.False(t, res.IsValid)
	assert.True(t, res.FormatValid)

	code, _ = srv.do(t, http.MethodPost, "/api/v1/email/validate", `{"email":""}`)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestHealth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	rec := httptest.NewRecorder()
	newTestServer(t, healthStub{}).router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"healthy"`)

	rec = httptest.NewRecorder()
	newTestServer(t, healthStub{"redis": errors.New("connection refused")}).router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestRequireHTTPS(t *testing.T) {
	router := NewRouter(NewChatHandler(nil, nil), nil, RouterOptions{RequireHTTPS: true}, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusUpgradeRequired, rec.Code)
}
