package testutil

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/fileadmin/internal/api"
	"github.com/charlesng35/fileadmin/internal/app"
	iauth "github.com/charlesng35/fileadmin/internal/auth"
	"github.com/charlesng35/fileadmin/internal/cache"
	sharedtestutil "github.com/charlesng35/fileadmin/internal/database/testutil"
	"github.com/charlesng35/fileadmin/internal/middleware"
	"github.com/charlesng35/fileadmin/internal/monitoring"
	"github.com/charlesng35/fileadmin/internal/services"
	"github.com/charlesng35/fileadmin/internal/storage"
	"github.com/charlesng35/fileadmin/pkg/response"
)

// DemoPassword is the password of every seeded demo account.
const DemoPassword = "password123"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	Sessions *iauth.SessionService
	Storage  *storage.LocalStorage
}

// NewEnv provisions a fresh handler test environment with the permission
// catalog, default roles and demo users seeded.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithDemoUsers(DemoPassword))

	cfg := &app.Config{
		Uploads: app.UploadConfig{
			MaxFileSize:       1 << 20,
			AllowedExtensions: []string{"jpg", "jpeg", "png", "mp4"},
			KeyPrefix:         "uploads",
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "handler-test-suite-secret-0123456789",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store := cache.NewDatabaseStore(db)
	sessions, err := iauth.NewSessionService(db, jwtSvc, cfg.Auth.SessionServiceConfig(iauth.NewSessionCache(store)))
	require.NoError(t, err)

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	roles, err := services.NewRoleService(db, audit)
	require.NoError(t, err)
	users, err := services.NewUserService(db, audit,
		services.WithUserStorage(local),
		services.WithSessionInvalidator(sessions),
	)
	require.NoError(t, err)
	files, err := services.NewFileService(db, local, audit, cfg.Uploads.UploadPolicy())
	require.NoError(t, err)
	authSvc, err := services.NewAuthService(db, users, sessions, audit)
	require.NoError(t, err)

	health := monitoring.NewHealthManager(time.Second)
	health.RegisterReadiness(monitoring.DatabaseCheck(db))
	health.RegisterReadiness(monitoring.CacheCheck("cache", store))

	router, err := api.NewRouter(api.Deps{
		Config:    cfg,
		DB:        db,
		Sessions:  sessions,
		Auth:      authSvc,
		Roles:     roles,
		Users:     users,
		Files:     files,
		Health:    health,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		Sessions: sessions,
		Storage:  local,
	}
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Email       string        `json:"email"`
	Roles       []RolePayload `json:"roles"`
	Permissions []string      `json:"all_permissions"`
	RoleNames   []string      `json:"role_names"`
}

// RolePayload captures a role with its permissions.
type RolePayload struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Permissions []PermissionPayload `json:"permissions"`
}

// PermissionPayload captures a permission record.
type PermissionPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FilePayload captures a file view.
type FilePayload struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	Name          string `json:"name"`
	Mime          string `json:"mime"`
	Size          int64  `json:"size"`
	FormattedSize string `json:"formatted_size"`
	URL           string `json:"url"`
}

// UploadPayload mirrors the upload endpoint response data.
type UploadPayload struct {
	Status   string        `json:"status"`
	Files    []FilePayload `json:"files"`
	Failures []struct {
		File  string `json:"file"`
		Error string `json:"error"`
	} `json:"failures"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	User      UserPayload `json:"user"`
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// Login authenticates and returns the issued token.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.Token)
	require.Equal(e.T, email, result.User.Email)
	return result
}

// LoginAs logs in a seeded demo account and returns its bearer token.
func (e *Env) LoginAs(email string) string {
	e.T.Helper()
	return e.Login(email, DemoPassword).Token
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.serve(req, token)
}

// UploadFile is one part of a multipart upload.
type UploadFile struct {
	Name    string
	Content []byte
}

// Upload posts files as "files[]" parts to the upload endpoint.
func (e *Env) Upload(token string, files ...UploadFile) *httptest.ResponseRecorder {
	e.T.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, file := range files {
		part, err := writer.CreateFormFile("files[]", file.Name)
		require.NoError(e.T, err)
		_, err = part.Write(file.Content)
		require.NoError(e.T, err)
	}
	require.NoError(e.T, writer.Close())

	req, err := http.NewRequest(http.MethodPost, "/api/files/upload", &body)
	require.NoError(e.T, err)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.serve(req, token)
}

func (e *Env) serve(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
