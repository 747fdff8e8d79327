package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/gfrancoarq/franco-orrego/internal/calendar"
	"github.com/gfrancoarq/franco-orrego/internal/lead"
	"github.com/gfrancoarq/franco-orrego/internal/store"
	"github.com/gfrancoarq/franco-orrego/internal/whatsapp"
)

type fakeQueue struct {
	enqueued []whatsapp.Inbound
}

func (q *fakeQueue) EnqueueInbound(_ context.Context, in whatsapp.Inbound) error {
	q.enqueued = append(q.enqueued, in)
	return nil
}

type fakeMessages struct {
	history  []lead.Message
	outbound []string
}

func (m *fakeMessages) Recent(context.Context, string, int) ([]lead.Message, error) {
	return m.history, nil
}

func (m *fakeMessages) InsertOutbound(_ context.Context, _ string, _ lead.Role, _ lead.MessageKind, body string) error {
	m.outbound = append(m.outbound, body)
	return nil
}

type fakeTemplates struct {
	templates []store.Template
	deleted   []int64
}

func (t *fakeTemplates) List(context.Context) ([]store.Template, error) {
	return t.templates, nil
}

func (t *fakeTemplates) Create(_ context.Context, tpl store.Template) (store.Template, error) {
	tpl.ID = int64(len(t.templates) + 1)
	t.templates = append(t.templates, tpl)
	return tpl, nil
}

func (t *fakeTemplates) Delete(_ context.Context, id int64) error {
	t.deleted = append(t.deleted, id)
	return nil
}

type fakeOperators struct {
	ops map[string]store.Operator
}

func (o *fakeOperators) GetByUsername(_ context.Context, username string) (store.Operator, error) {
	op, ok := o.ops[username]
	if !ok {
		return store.Operator{}, store.ErrOperatorNotFound
	}
	return op, nil
}

type fakeManualSender struct {
	sent []string
	err  error
}

func (s *fakeManualSender) SendText(_ context.Context, _, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, body)
	return nil
}

type convAdapter struct{ store *lead.MemStore }

func (a convAdapter) Get(ctx context.Context, phone string) (lead.Conversation, error) {
	return a.store.Get(ctx, phone)
}

func (a convAdapter) List(ctx context.Context, _ int) ([]lead.Conversation, error) {
	conv, err := a.store.Get(ctx, "+56911111111")
	if err != nil {
		return nil, nil
	}
	return []lead.Conversation{conv}, nil
}

type testServer struct {
	srv      *Server
	queue    *fakeQueue
	leads    *lead.MemStore
	messages *fakeMessages
	sender   *fakeManualSender
	tokens   *TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("secret-pw"), bcrypt.MinCost)
	require.NoError(t, err)

	leads := lead.NewMemStore(1)
	queue := &fakeQueue{}
	messages := &fakeMessages{}
	sender := &fakeManualSender{}
	tokens := NewTokenService("test-signing-key", time.Hour)

	srv := NewServer(Deps{
		Port:          0,
		VerifyToken:   "verify-me",
		Queue:         queue,
		Tracker:       lead.NewTracker(leads, lead.DefaultTrackerConfig(), zerolog.Nop()),
		Conversations: convAdapter{store: leads},
		Messages:      messages,
		Templates:     &fakeTemplates{},
		Operators:     &fakeOperators{ops: map[string]store.Operator{"mari": {ID: 1, Username: "mari", PasswordHash: string(hash)}}},
		Sender:        sender,
		Tokens:        tokens,
		Log:           zerolog.Nop(),
	})

	return &testServer{srv: srv, queue: queue, leads: leads, messages: messages, sender: sender, tokens: tokens}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) authed(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	token, _, err := ts.tokens.Issue("mari")
	require.NoError(t, err)

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestWebhookVerifyHandshake(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "12345", rec.Body.String())

	rec = ts.do(httptest.NewRequest(http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestWebhookDeliveryEnqueues(t *testing.T) {
	ts := newTestServer(t)

	payload := `{"entry":[{"changes":[{"value":{"messages":[
		{"from":"+56911111111","id":"wamid.abc","timestamp":"1767225600","type":"text","text":{"body":"hola"}}
	]}}]}]}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ts.queue.enqueued, 1)
	assert.Equal(t, "+56911111111", ts.queue.enqueued[0].From)
	assert.Equal(t, "wamid.abc", ts.queue.enqueued[0].PlatformMessageID)
	assert.Equal(t, "hola", ts.queue.enqueued[0].Text)
}

func TestWebhookStatusUpdateIsAcknowledgedOnly(t *testing.T) {
	ts := newTestServer(t)

	payload := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.x","status":"read"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := ts.do(req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.queue.enqueued)
}

func TestWebhookMalformedPayloadStill200(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rec := ts.do(req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, ts.queue.enqueued)
}

func TestLoginIssuesToken(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/login",
		strings.NewReader(`{"username":"mari","password":"secret-pw"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "Bearer", resp.TokenType)

	username, err := ts.tokens.Validate(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "mari", username)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/login",
		strings.NewReader(`{"username":"mari","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestConsoleRequiresAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTakeoverAndRelease(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()
	phone := "+56911111111"
	_, err := ts.leads.Upsert(ctx, phone)
	require.NoError(t, err)

	rec := ts.do(ts.authed(t, http.MethodPost, "/api/v1/conversations/"+phone+"/takeover", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	conv, err := ts.leads.Get(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, lead.ControlHuman, conv.ControlMode)
	assert.Equal(t, "mari", conv.AssignedOperator)

	rec = ts.do(ts.authed(t, http.MethodPost, "/api/v1/conversations/"+phone+"/release", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	conv, err = ts.leads.Get(ctx, phone)
	require.NoError(t, err)
	assert.Equal(t, lead.ControlAutomated, conv.ControlMode)
	assert.Equal(t, 1, conv.AutomationBudget, "release refills the budget")
}

func TestManualSendRecordsMessage(t *testing.T) {
	ts := newTestServer(t)
	phone := "+56911111111"
	_, err := ts.leads.Upsert(context.Background(), phone)
	require.NoError(t, err)

	rec := ts.do(ts.authed(t, http.MethodPost, "/api/v1/conversations/"+phone+"/send",
		`{"body":"hola, soy Mari"}`))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, ts.sender.sent, 1)
	assert.Equal(t, "hola, soy Mari", ts.sender.sent[0])
	require.Len(t, ts.messages.outbound, 1)

	// Manual send does not change who controls the thread.
	conv, err := ts.leads.Get(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, lead.ControlAutomated, conv.ControlMode)
}

func TestSetTemperatureValidation(t *testing.T) {
	ts := newTestServer(t)
	phone := "+56911111111"
	_, err := ts.leads.Upsert(context.Background(), phone)
	require.NoError(t, err)

	rec := ts.do(ts.authed(t, http.MethodPut, "/api/v1/conversations/"+phone+"/temperature",
		`{"temperature":"boiling"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(ts.authed(t, http.MethodPut, "/api/v1/conversations/"+phone+"/temperature",
		`{"temperature":"hot"}`))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	conv, err := ts.leads.Get(context.Background(), phone)
	require.NoError(t, err)
	assert.Equal(t, lead.TemperatureHot, conv.Temperature)
}

type fakeAgenda struct {
	busy []calendar.Interval
}

func (a *fakeAgenda) ListBusyIntervals(context.Context, time.Time, time.Time) ([]calendar.Interval, error) {
	return a.busy, nil
}

func TestAvailabilityReturnsFreeIntervals(t *testing.T) {
	ts := newTestServer(t)
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	ts.srv.agenda = &fakeAgenda{busy: []calendar.Interval{
		{Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour)},
	}}

	path := "/api/v1/availability?from=" + start.Format(time.RFC3339) +
		"&to=" + start.Add(6*time.Hour).Format(time.RFC3339)
	rec := ts.do(ts.authed(t, http.MethodGet, path, ""))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string][]calendar.Interval
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp["free"], 2)
	assert.Equal(t, start.Add(3*time.Hour), resp["free"][1].Start)
}

func TestAvailabilityWithoutAgendaIs503(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(ts.authed(t, http.MethodGet,
		"/api/v1/availability?from=2026-03-10T10:00:00Z&to=2026-03-10T16:00:00Z", ""))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestTemplateCRUD(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(ts.authed(t, http.MethodPost, "/api/v1/templates",
		`{"label":"ubicacion","content":"Estamos en Av. Providencia 1234 📍"}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created store.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "text", created.Kind, "kind defaults to text")

	rec = ts.do(ts.authed(t, http.MethodGet, "/api/v1/templates", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []store.Template
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	rec = ts.do(ts.authed(t, http.MethodDelete, "/api/v1/templates/1", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
