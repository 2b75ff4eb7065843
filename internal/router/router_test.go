package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/grievance-portal/internal/config"
	"github.com/iliyamo/grievance-portal/internal/handler"
	"github.com/iliyamo/grievance-portal/internal/limiter"
	"github.com/iliyamo/grievance-portal/internal/middleware"
	"github.com/iliyamo/grievance-portal/internal/notify"
	"github.com/iliyamo/grievance-portal/internal/repository/memory"
	"github.com/iliyamo/grievance-portal/internal/router"
	"github.com/iliyamo/grievance-portal/internal/service"
	"github.com/iliyamo/grievance-portal/internal/storage"
	"github.com/iliyamo/grievance-portal/internal/utils"
)

const maxUpload = 64

type app struct {
	e         *echo.Echo
	auth      *service.AuthService
	disp      *notify.Dispatcher
	uploadDir string
	outbox    string
}

func newApp(t *testing.T) *app {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()

	signer, err := utils.NewTokenSigner("test-secret", "HS256", time.Hour)
	require.NoError(t, err)
	lim := limiter.NewMemory(15*time.Minute, 5)
	t.Cleanup(lim.Close)

	dir := t.TempDir()
	uploadDir := filepath.Join(dir, "uploads")
	blobs, err := storage.NewDisk(uploadDir, storage.NewPolicy(maxUpload, config.DefaultAllowedContentTypes))
	require.NoError(t, err)

	outbox := filepath.Join(dir, "outbox.log")
	disp := notify.NewDispatcher(notify.NewRenderer(false), notify.NewFileSink(outbox, log), 2, 64, log)
	disp.Start(context.Background())
	t.Cleanup(func() { _ = disp.Close(context.Background()) })

	authSvc := service.NewAuthService(store.Users(), signer, lim, bcrypt.MinCost, log)
	guard := service.NewGuard(store.Users(), signer, log)
	grievances := service.NewGrievanceService(store.Grievances(), store.Users(), store.Departments(), disp, "admin@uni.edu", log)
	files := service.NewFileService(store.Files(), store.Grievances(), blobs, log)
	departments := service.NewDepartmentService(store.Departments())
	cache := middleware.NewResponseCache(config.CacheConfig{}, nil, log)

	gh := handler.NewGrievanceHandler(grievances, files)
	dh := handler.NewDepartmentHandler(departments, cache)

	e := echo.New()
	router.RegisterRoutes(e, nil)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc), guard)
	router.RegisterPublic(e, dh, cache)
	router.RegisterGrievances(e, gh, handler.NewFileHandler(files), guard)
	router.RegisterAdmin(e, gh, dh, guard)

	return &app{e: e, auth: authSvc, disp: disp, uploadDir: uploadDir, outbox: outbox}
}

func (a *app) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

// signup registers and logs in, returning the access token.
func (a *app) signup(t *testing.T, email string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": email, "password": "secret-pw"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return a.login(t, email, "secret-pw")
}

func (a *app) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, "bearer", out.TokenType)
	return out.AccessToken
}

func (a *app) admin(t *testing.T) string {
	t.Helper()
	_, err := a.auth.BootstrapAdmin(context.Background(), "root@uni.edu", "root-pw")
	require.NoError(t, err)
	return a.login(t, "root@uni.edu", "root-pw")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type grievanceResp struct {
	ID         uint64  `json:"id"`
	StudentID  uint64  `json:"student_id"`
	Status     string  `json:"status"`
	Resolution *string `json:"resolution"`
	HandlerID  *uint64 `json:"handler_id"`
}

func (a *app) file(t *testing.T, token, title string) grievanceResp {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/v1/grievances", token, echo.Map{"title": title, "category": "facilities", "description": "details"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[grievanceResp](t, rec)
}

func TestEndToEnd_ResolveKeepsText(t *testing.T) {
	a := newApp(t)
	tok := a.signup(t, "sam@uni.edu")

	g := a.file(t, tok, "Broken heater")
	assert.Equal(t, "submitted", g.Status)

	text := "Heater replaced on 3 March.\n  Contact facilities if it recurs.  "
	rec := a.do(t, http.MethodPost, fmt.Sprintf("/v1/grievances/%d/resolve", g.ID), tok, echo.Map{"resolution": text})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, fmt.Sprintf(`{"status":"resolved","grievance_id":%d}`, g.ID), rec.Body.String())

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/v1/grievances/%d", g.ID), tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[grievanceResp](t, rec)
	assert.Equal(t, "resolved", got.Status)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, text, *got.Resolution)

	// drain the queue and check what went out
	require.NoError(t, a.disp.Close(context.Background()))
	raw, err := os.ReadFile(a.outbox)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	out := string(raw)
	assert.Contains(t, out, `to=admin@uni.edu | subject="New Grievance Submitted: Broken heater"`)
	assert.Contains(t, out, `to=sam@uni.edu | subject="Grievance Received: Broken heater"`)
	assert.Contains(t, out, `to=sam@uni.edu | subject="Grievance Resolved: Broken heater"`)
}

func TestGrievanceAccess(t *testing.T) {
	a := newApp(t)
	owner := a.signup(t, "owner@uni.edu")
	other := a.signup(t, "other@uni.edu")
	admin := a.admin(t)
	g := a.file(t, owner, "Lost ID card")
	path := fmt.Sprintf("/v1/grievances/%d", g.ID)

	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, path, other, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, path, owner, nil).Code)
	assert.Equal(t, http.StatusOK, a.do(t, http.MethodGet, path, admin, nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/v1/grievances/9999", other, nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/v1/grievances/abc", owner, nil).Code)

	rec := a.do(t, http.MethodPatch, path, other, echo.Map{"status": "under_review"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	mine := decode[[]grievanceResp](t, a.do(t, http.MethodGet, "/v1/grievances", other, nil))
	assert.Empty(t, mine)
	all := decode[[]grievanceResp](t, a.do(t, http.MethodGet, "/v1/grievances", admin, nil))
	assert.Len(t, all, 1)
}

func TestStatusTransitions(t *testing.T) {
	a := newApp(t)
	tok := a.signup(t, "sam@uni.edu")
	admin := a.admin(t)
	g := a.file(t, tok, "Noise")
	path := fmt.Sprintf("/v1/grievances/%d", g.ID)

	rec := a.do(t, http.MethodPatch, path, admin, echo.Map{"status": "in_progress"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "in_progress", decode[grievanceResp](t, rec).Status)

	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPatch, path, admin, echo.Map{"status": "submitted"}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPatch, path, admin, echo.Map{"status": "archived"}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPatch, path, admin, echo.Map{}).Code)

	require.Equal(t, http.StatusOK, a.do(t, http.MethodPatch, path, admin, echo.Map{"status": "closed"}).Code)
	assert.Equal(t, http.StatusConflict, a.do(t, http.MethodPost, path+"/resolve", tok, echo.Map{"resolution": "x"}).Code)
}

func TestLogin_SixthAttemptIs429(t *testing.T) {
	a := newApp(t)
	a.signup(t, "sam@uni.edu")

	for i := 0; i < 5; i++ {
		rec := a.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "sam@uni.edu", "password": "wrong"})
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}
	rec := a.do(t, http.MethodPost, "/v1/auth/login", "", echo.Map{"email": "sam@uni.edu", "password": "secret-pw"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// other identities are unaffected
	a.signup(t, "kim@uni.edu")
}

func TestLogin_FormEncoded(t *testing.T) {
	a := newApp(t)
	a.signup(t, "sam@uni.edu")

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", strings.NewReader("username=sam%40uni.edu&password=secret-pw"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRegister_Errors(t *testing.T) {
	a := newApp(t)
	a.signup(t, "sam@uni.edu")

	rec := a.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "sam@uni.edu", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"email already registered"}`, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "not-an-email", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "a@uni.edu"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// passwords must be JSON strings; numbers are not coerced
	rec = a.do(t, http.MethodPost, "/v1/auth/register", "", echo.Map{"email": "pin@uni.edu", "password": 123456})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid body"}`, rec.Body.String())
}

func TestUnauthenticatedIsUniform(t *testing.T) {
	a := newApp(t)
	tok := a.signup(t, "sam@uni.edu")

	rec := a.do(t, http.MethodGet, "/v1/me", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sam@uni.edu", decode[map[string]any](t, rec)["email"])

	var bodies []string
	for _, bad := range []string{"", "garbage", tok + "x"} {
		rec := a.do(t, http.MethodGet, "/v1/me", bad, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		bodies = append(bodies, rec.Body.String())
	}
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[1], bodies[2])
	assert.Equal(t, http.StatusUnauthorized, a.do(t, http.MethodGet, "/v1/grievances", "", nil).Code)
}

func upload(t *testing.T, a *app, token, query, contentType, filename string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(body)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/files"+query, &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	require.NoError(t, filepath.WalkDir(dir, func(_ string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			n++
		}
		return err
	}))
	return n
}

func TestFiles(t *testing.T) {
	a := newApp(t)
	owner := a.signup(t, "owner@uni.edu")
	other := a.signup(t, "other@uni.edu")
	g := a.file(t, owner, "Fees")
	q := fmt.Sprintf("?grievance_id=%d", g.ID)

	rec := upload(t, a, owner, q, "application/x-executable", "run.bin", []byte("\x7fELF"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = upload(t, a, owner, q, "application/pdf", "big.pdf", bytes.Repeat([]byte("a"), maxUpload+1))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, countFiles(t, a.uploadDir))

	rec = upload(t, a, other, q, "application/pdf", "x.pdf", []byte("%PDF"))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = upload(t, a, owner, q, "application/pdf", "receipt.pdf", []byte("%PDF-1.7"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	f := decode[map[string]any](t, rec)
	id := uint64(f["id"].(float64))
	assert.Equal(t, "receipt.pdf", f["filename"])
	assert.Equal(t, 1, countFiles(t, a.uploadDir))

	rec = a.do(t, http.MethodGet, fmt.Sprintf("/v1/files/%d", id), owner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.7", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get(echo.HeaderContentType))
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "receipt.pdf")

	list := decode[[]map[string]any](t, a.do(t, http.MethodGet, fmt.Sprintf("/v1/grievances/%d/files", g.ID), owner, nil))
	assert.Len(t, list, 1)

	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodGet, fmt.Sprintf("/v1/files/%d", id), other, nil).Code)
	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodDelete, fmt.Sprintf("/v1/files/%d", id), other, nil).Code)
	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, fmt.Sprintf("/v1/files/%d", id), owner, nil).Code)
	assert.Zero(t, countFiles(t, a.uploadDir))
}

func TestAdminRoutes(t *testing.T) {
	a := newApp(t)
	student := a.signup(t, "sam@uni.edu")
	a.signup(t, "staff@uni.edu")
	admin := a.admin(t)
	g := a.file(t, student, "Library hours")

	staff := decode[map[string]any](t, a.do(t, http.MethodGet, "/v1/me", a.login(t, "staff@uni.edu", "secret-pw"), nil))
	staffID := uint64(staff["id"].(float64))
	assignPath := fmt.Sprintf("/v1/admin/grievances/%d/assign", g.ID)

	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, assignPath, student, echo.Map{"handler_id": staffID}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, assignPath, admin, echo.Map{"handler_id": 9999}).Code)
	rec := a.do(t, http.MethodPost, assignPath, admin, echo.Map{"handler_id": staffID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decode[grievanceResp](t, rec)
	require.NotNil(t, got.HandlerID)
	assert.Equal(t, staffID, *got.HandlerID)

	assert.Equal(t, http.StatusForbidden, a.do(t, http.MethodPost, "/v1/admin/departments", student, echo.Map{"name": "IT"}).Code)
	assert.Equal(t, http.StatusCreated, a.do(t, http.MethodPost, "/v1/admin/departments", admin, echo.Map{"name": "IT"}).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/v1/admin/departments", admin, echo.Map{"name": "IT"}).Code)

	deps := decode[[]map[string]any](t, a.do(t, http.MethodGet, "/v1/departments", "", nil))
	require.Len(t, deps, 1)
	assert.Equal(t, "IT", deps[0]["name"])
}

func TestHealth(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}
