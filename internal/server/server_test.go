// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/kantama/portal/internal/config"
	"codeberg.org/kantama/portal/internal/events"
	"codeberg.org/kantama/portal/internal/i18n"
	"codeberg.org/kantama/portal/internal/models"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/server"
	"codeberg.org/kantama/portal/internal/services/email"
	"codeberg.org/kantama/portal/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const strongPassword = "kantama-Rahoitus-2025"

var t0 = time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)

type harness struct {
	t      *testing.T
	e      *echo.Echo
	app    *server.App
	repo   *repository.Repository
	sender *testutil.RecordingSender
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	require.NoError(t, i18n.Init())
	db, repo := testutil.NewTestDB(t)

	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:        "localhost",
			Port:        8080,
			BaseURL:     "http://localhost:8080",
			FrontendURL: "http://localhost:5173",
			MaxBodySize: 1,
		},
		Auth: config.AuthConfig{
			JWTSecret:  "test-secret",
			BcryptCost: 4,
		},
		Storage: config.StorageConfig{UploadDir: t.TempDir(), MaxUploadSize: 1},
	}
	sender := &testutil.RecordingSender{}
	app, err := server.NewApp(cfg, db, server.Deps{
		Sender:    sender,
		Publisher: events.LogPublisher{},
		Now:       testutil.FixedClock(t0),
	})
	require.NoError(t, err)

	return &harness{t: t, e: server.NewEcho(app), app: app, repo: repo, sender: sender}
}

func (h *harness) request(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func (h *harness) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return h.request(req, token)
}

func (h *harness) session(user *models.User) string {
	h.t.Helper()
	tok, _, err := h.app.Tokens.Issue(user)
	require.NoError(h.t, err)
	return tok
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Fields  []struct {
		Field string `json:"field"`
		Rule  string `json:"rule"`
	} `json:"fields"`
}

type tokenBody struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	User        models.User `json:"user"`
}

func TestHealthAndMetrics(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = h.do(http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portal_")
}

func TestRegisterLoginScenario(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email":      "Matti@Example.com",
		"password":   strongPassword,
		"first_name": "Matti",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reg := decode[tokenBody](t, rec)
	assert.Equal(t, "bearer", reg.TokenType)
	assert.NotEmpty(t, reg.AccessToken)
	assert.Equal(t, "matti@example.com", reg.User.Email)
	assert.Equal(t, models.RoleCustomer, reg.User.Role)
	assert.False(t, reg.User.IsVerified)
	assert.NotContains(t, rec.Body.String(), "password_hash")

	require.Equal(t, 1, h.sender.Count())
	assert.Equal(t, email.KindVerifyEmail, h.sender.Last().Kind)

	// duplicate in another casing
	rec = h.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "MATTI@example.com", "password": strongPassword,
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "duplicate_identity", decode[errorBody](t, rec).Error)

	rec = h.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "matti@example.com", "password": strongPassword,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	login := decode[tokenBody](t, rec)

	rec = h.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "matti@example.com", "password": "wrong-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	wrong := decode[errorBody](t, rec)
	assert.Equal(t, "invalid_credentials", wrong.Error)

	rec = h.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "wrong-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, wrong, decode[errorBody](t, rec))

	rec = h.do(http.MethodGet, "/api/auth/me", nil, login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, reg.User.ID, decode[models.User](t, rec).ID)

	rec = h.do(http.MethodGet, "/api/auth/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_session", decode[errorBody](t, rec).Error)

	rec = h.do(http.MethodGet, "/api/auth/me", nil, login.AccessToken+"x")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestVerifyEmailFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "liisa@example.com", "password": strongPassword,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	session := decode[tokenBody](t, rec).AccessToken
	plaintext := h.sender.Last().Data.Token

	rec = h.do(http.MethodPost, "/api/auth/resend-verification", nil, session)
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := h.sender.Last().Data.Token
	assert.NotEqual(t, plaintext, fresh)

	// the first link was overwritten
	rec = h.do(http.MethodPost, "/api/auth/verify/"+plaintext, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_token", decode[errorBody](t, rec).Error)

	rec = h.do(http.MethodPost, "/api/auth/verify/"+fresh, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[map[string]string](t, rec)["message"])

	rec = h.do(http.MethodPost, "/api/auth/verify/"+fresh, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/api/auth/resend-verification", nil, session)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "already_verified", decode[errorBody](t, rec).Error)
}

func TestForgotPasswordIsUniform(t *testing.T) {
	h := newHarness(t)
	testutil.NewTestUser(t, h.repo, "known@example.com", models.RoleCustomer)

	known := h.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "known@example.com"}, "")
	unknown := h.do(http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "unknown@example.com"}, "")

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/auth/forgot-password", strings.NewReader(`{"email": 5`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	malformed := h.request(req, "")
	assert.Equal(t, http.StatusOK, malformed.Code)
	assert.Equal(t, known.Body.String(), malformed.Body.String())

	require.Equal(t, 1, h.sender.Count())
	assert.Equal(t, email.KindResetPassword, h.sender.Last().Kind)

	rec := h.do(http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token": h.sender.Last().Data.Token, "password": strongPassword,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "known@example.com", "password": strongPassword,
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "not-an-email", "password": strongPassword,
	}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, "validation_error", body.Error)
	require.NotEmpty(t, body.Fields)
	assert.Equal(t, "email", body.Fields[0].Field)

	rec = h.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": "a@example.com", "password": "12345678",
	}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "weak_password", decode[errorBody](t, rec).Error)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewBufferString("{"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = h.request(req, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "bad_request", decode[errorBody](t, rec).Error)
}

func TestErrorsAreLocalized(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Accept-Language", "fi")
	rec := h.request(req, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Istunto on virheellinen tai vanhentunut. Kirjaudu uudelleen.", decode[errorBody](t, rec).Message)
}

func TestApplicationLifecycleScenario(t *testing.T) {
	h := newHarness(t)
	customer := testutil.NewTestUser(t, h.repo, "c@example.com", models.RoleCustomer)
	admin := testutil.NewTestUser(t, h.repo, "admin@example.com", models.RoleAdmin)
	bank := testutil.NewTestFinancier(t, h.repo, "Pankki Oyj", true)
	other := testutil.NewTestFinancier(t, h.repo, "Toinen Rahoitus", true)
	staff := testutil.NewTestStaff(t, h.repo, "staff@pankki.fi", bank.ID)
	cTok, aTok, sTok := h.session(customer), h.session(admin), h.session(staff)

	create := func() models.Application {
		rec := h.do(http.MethodPost, "/api/applications", map[string]any{
			"application_type":      "LEASING",
			"company_name":          "Testi Oy",
			"equipment_description": "Excavator",
			"amount_cents":          5_000_000,
			"term_months":           36,
			"submit":                true,
		}, cTok)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decode[models.Application](t, rec)
	}

	first := create()
	second := create()
	require.NotNil(t, first.ReferenceNumber)
	require.NotNil(t, second.ReferenceNumber)
	assert.Equal(t, "LEA-2025-00001", *first.ReferenceNumber)
	assert.Equal(t, "LEA-2025-00002", *second.ReferenceNumber)
	assert.Equal(t, models.StatusSubmitted, first.Status)

	path := fmt.Sprintf("/api/applications/%d", first.ID)
	move := func(token string, body map[string]any) *httptest.ResponseRecorder {
		return h.do(http.MethodPost, path+"/transitions", body, token)
	}

	// staff cannot see unassigned applications
	rec := h.do(http.MethodGet, path, nil, sTok)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = move(aTok, map[string]any{"status": "UNDER_REVIEW", "financier_id": bank.ID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = move(cTok, map[string]any{"status": "APPROVED"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unauthorized", decode[errorBody](t, rec).Error)

	rec = move(sTok, map[string]any{"status": "FUNDED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "illegal_transition", decode[errorBody](t, rec).Error)

	require.Equal(t, http.StatusOK, move(sTok, map[string]any{"status": "APPROVED"}).Code)
	rec = move(sTok, map[string]any{"status": "FUNDED", "note": "paid out"})
	require.Equal(t, http.StatusOK, rec.Code)
	funded := decode[models.Application](t, rec)
	assert.Equal(t, models.StatusFunded, funded.Status)
	assert.NotNil(t, funded.ClosedAt)

	rec = h.do(http.MethodPut, path+"/financier", map[string]any{"financier_id": other.ID}, aTok)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application_locked", decode[errorBody](t, rec).Error)

	rec = move(aTok, map[string]any{"status": "CANCELLED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application_locked", decode[errorBody](t, rec).Error)

	rec = h.do(http.MethodGet, path+"/history", nil, cTok)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[[]models.StatusChange](t, rec)
	require.Len(t, history, 4)
	assert.Equal(t, models.StatusFunded, history[3].ToStatus)
	assert.Equal(t, "paid out", history[3].Note)

	// the customer heard about every step taken by someone else
	kinds := 0
	for _, m := range h.sender.Messages {
		if m.Kind == email.KindStatusChanged && m.To == "c@example.com" {
			kinds++
		}
	}
	assert.Equal(t, 3, kinds)
}

func TestApplicationValidation(t *testing.T) {
	h := newHarness(t)
	customer := testutil.NewTestUser(t, h.repo, "c@example.com", models.RoleCustomer)
	tok := h.session(customer)

	rec := h.do(http.MethodPost, "/api/applications", map[string]any{"application_type": "MORTGAGE"}, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[errorBody](t, rec).Error)

	rec = h.do(http.MethodGet, "/api/applications?status=PENDING", nil, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodGet, "/api/applications/abc", nil, tok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListApplicationsFilters(t *testing.T) {
	h := newHarness(t)
	customer := testutil.NewTestUser(t, h.repo, "c@example.com", models.RoleCustomer)
	testutil.NewTestApplication(t, h.repo, customer.ID)
	tok := h.session(customer)

	rec := h.do(http.MethodGet, "/api/applications", nil, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Application](t, rec), 1)

	rec = h.do(http.MethodGet, "/api/applications?status=SUBMITTED", nil, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Application](t, rec))
}

func upload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAttachments(t *testing.T) {
	h := newHarness(t)
	customer := testutil.NewTestUser(t, h.repo, "c@example.com", models.RoleCustomer)
	app := testutil.NewTestApplication(t, h.repo, customer.ID)
	tok := h.session(customer)
	path := fmt.Sprintf("/api/applications/%d/attachments", app.ID)

	body, contentType := upload(t, "offer.pdf", []byte("%PDF-1.7"))
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := h.request(req, tok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "storage_key")

	rec = h.do(http.MethodGet, path, nil, tok)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]models.Attachment](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "offer.pdf", list[0].OriginalFilename)
	assert.Equal(t, int64(8), list[0].SizeBytes)

	// missing file field
	req = httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(""))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec = h.request(req, tok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// closed applications take no more documents
	app.Status = models.StatusCancelled
	require.NoError(t, h.repo.UpdateApplicationState(t.Context(), app, models.StatusDraft))
	body, contentType = upload(t, "late.pdf", []byte("x"))
	req = httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec = h.request(req, tok)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "application_locked", decode[errorBody](t, rec).Error)
}

func TestFinancierAndAdminRoutes(t *testing.T) {
	h := newHarness(t)
	customer := testutil.NewTestUser(t, h.repo, "c@example.com", models.RoleCustomer)
	admin := testutil.NewTestUser(t, h.repo, "admin@example.com", models.RoleAdmin)
	cTok, aTok := h.session(customer), h.session(admin)

	rec := h.do(http.MethodGet, "/api/financiers", nil, cTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "unauthorized", decode[errorBody](t, rec).Error)

	rec = h.do(http.MethodPost, "/api/financiers", map[string]string{"name": "Pankki Oyj"}, aTok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bank := decode[models.Financier](t, rec)

	rec = h.do(http.MethodPost, "/api/financiers", map[string]string{"name": "pankki oyj"}, aTok)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "duplicate_financier", decode[errorBody](t, rec).Error)

	rec = h.do(http.MethodPost, "/api/admin/users", map[string]any{
		"email":        "staff@pankki.fi",
		"password":     strongPassword,
		"role":         "FINANCIER_STAFF",
		"financier_id": bank.ID,
	}, aTok)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	staff := decode[models.User](t, rec)
	assert.Equal(t, email.KindWelcome, h.sender.Last().Kind)

	rec = h.do(http.MethodPost, fmt.Sprintf("/api/financiers/%d/deactivate", bank.ID), nil, aTok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Financier](t, rec).IsActive)

	rec = h.do(http.MethodGet, "/api/financiers?active=true", nil, aTok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]models.Financier](t, rec))

	rec = h.do(http.MethodPost, fmt.Sprintf("/api/admin/users/%d/deactivate", staff.ID), nil, aTok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.User](t, rec).IsActive)

	rec = h.do(http.MethodPost, "/api/auth/login", map[string]string{
		"email": "staff@pankki.fi", "password": strongPassword,
	}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "account_inactive", decode[errorBody](t, rec).Error)

	rec = h.do(http.MethodGet, "/api/admin/users", nil, cTok)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(http.MethodGet, "/api/admin/users", nil, aTok)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.User](t, rec), 3)

	rec = h.do(http.MethodPost, "/api/admin/users/999/activate", nil, aTok)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// readEvent reads one SSE event, skipping heartbeats.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data += strings.TrimPrefix(line, "data: ")
		}
	}
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	customer := testutil.NewTestUser(t, h.repo, "c@example.com", models.RoleCustomer)
	stranger := testutil.NewTestUser(t, h.repo, "s@example.com", models.RoleCustomer)
	app := testutil.NewTestApplication(t, h.repo, customer.ID)
	testutil.NewTestApplication(t, h.repo, stranger.ID)

	srv := httptest.NewServer(h.e)
	defer srv.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/events", nil)
	require.NoError(t, err)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+h.session(customer))
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get(echo.HeaderContentType))
	stream := bufio.NewReader(resp.Body)
	name, _ := readEvent(t, stream)
	require.Equal(t, "connected", name)

	// the stranger's submission is not visible on this stream
	rec := h.do(http.MethodPost, fmt.Sprintf("/api/applications/%d/transitions", app.ID+1),
		map[string]string{"status": "SUBMITTED"}, h.session(stranger))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, fmt.Sprintf("/api/applications/%d/transitions", app.ID),
		map[string]string{"status": "SUBMITTED"}, h.session(customer))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	name, data := readEvent(t, stream)
	assert.Equal(t, "status_changed", name)
	var event struct {
		ApplicationID   int64  `json:"application_id"`
		ReferenceNumber string `json:"reference_number"`
		To              string `json:"to_status"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &event))
	assert.Equal(t, app.ID, event.ApplicationID)
	assert.Equal(t, "SUBMITTED", event.To)
	assert.Equal(t, "LEA-2025-00002", event.ReferenceNumber)
}

func TestEventStreamRequiresSession(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/api/events", nil, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
